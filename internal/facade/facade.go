// Package facade is the single entry point every front end (CLI, terminal
// menu, HTTP) uses to read and change the roster. It owns the in-memory
// roster and serializes mutations so that mutate, encode, write and publish
// happen as one step.
package facade

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vrcwmt/worldperm/internal/metrics"
	"github.com/vrcwmt/worldperm/internal/notifier"
	"github.com/vrcwmt/worldperm/internal/roster"
	"github.com/vrcwmt/worldperm/internal/sideimage"
	"github.com/vrcwmt/worldperm/internal/store"
)

const (
	notifyTimeout = 5 * time.Second

	// maxSaveAttempts bounds reload-and-retry rounds when another writer
	// keeps changing the backing file.
	maxSaveAttempts = 3
)

// Request is one mutation asked for by a front end.
type Request struct {
	ID        uuid.UUID       `json:"id"`
	Op        roster.Op       `json:"op"`
	Category  roster.Category `json:"category"`
	Pseudonym string          `json:"pseudonym"`
	Actor     string          `json:"actor,omitempty"`
}

// NewRequest returns a request with a fresh ID.
func NewRequest(op roster.Op, c roster.Category, pseudonym, actor string) Request {
	return Request{
		ID:        uuid.New(),
		Op:        op,
		Category:  c,
		Pseudonym: pseudonym,
		Actor:     actor,
	}
}

// ParseRequest is NewRequest for a category typed by a user. The token is
// matched case-insensitively.
func ParseRequest(op roster.Op, category, pseudonym, actor string) (Request, error) {
	c, err := roster.ParseCategoryFold(category)
	if err != nil {
		return Request{}, err
	}
	return NewRequest(op, c, pseudonym, actor), nil
}

// Result reports what Handle did.
type Result struct {
	Request Request `json:"request"`
	// Changed is false when the request was a no-op and nothing was saved.
	Changed bool   `json:"changed"`
	Message string `json:"message"`
}

type Option func(*Facade)

// WithNotifier sets who is told about applied changes.
func WithNotifier(n notifier.Notifier) Option {
	return func(f *Facade) {
		if n != nil {
			f.notifier = n
		}
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(f *Facade) {
		if m != nil {
			f.metrics = m
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(f *Facade) {
		if l != nil {
			f.logger = l
		}
	}
}

// WithImages enables the side image operations.
func WithImages(s *sideimage.Store) Option {
	return func(f *Facade) { f.images = s }
}

// WithClock overrides the clock used for change timestamps.
func WithClock(now func() time.Time) Option {
	return func(f *Facade) { f.now = now }
}

// Facade serializes roster access. It is safe for concurrent use.
type Facade struct {
	mu     sync.Mutex
	roster *roster.Roster
	dirty  bool
	// pending holds applied changes the backing file does not have yet.
	pending []roster.Request

	gateway  *store.Gateway
	images   *sideimage.Store
	notifier notifier.Notifier
	metrics  *metrics.Collector
	logger   *zap.SugaredLogger
	now      func() time.Time
}

// New takes ownership of r. Callers must not use r afterwards.
func New(r *roster.Roster, g *store.Gateway, opts ...Option) *Facade {
	f := &Facade{
		roster:   r,
		gateway:  g,
		notifier: notifier.Nop{},
		metrics:  metrics.New(nil),
		logger:   zap.NewNop().Sugar(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	f.refreshGauges()
	return f
}

// Open loads the roster through g and returns a Facade owning it.
func Open(ctx context.Context, g *store.Gateway, opts ...Option) (*Facade, error) {
	r, err := g.Load(ctx)
	if err != nil {
		return nil, err
	}
	return New(r, g, opts...), nil
}

// Handle applies req, saves the roster and notifies. No-op requests are not
// saved. On a persist failure the roster keeps the change, the facade is
// marked dirty and the error wraps store.ErrPersistFailure.
func (f *Facade) Handle(ctx context.Context, req Request) (Result, error) {
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	log := f.logger.With("request", req.ID.String(), "op", req.Op.String(), "category", req.Category.String())
	if req.Actor != "" {
		log = log.With("actor", req.Actor)
	}

	res, err := f.apply(ctx, req, log)
	if err != nil || !res.Changed {
		return res, err
	}

	f.notifyRoster(ctx, res.Request, log)
	return res, nil
}

func (f *Facade) apply(ctx context.Context, req Request, log *zap.SugaredLogger) (Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out, err := f.roster.Apply(roster.Request{Op: req.Op, Category: req.Category, Pseudonym: req.Pseudonym})
	if err != nil {
		f.metrics.Observe(req.Op.String(), req.Category.String(), metrics.ResultRejected)
		log.Infow("request rejected", "pseudonym", req.Pseudonym, "error", err)
		return Result{Request: req}, err
	}

	req.Pseudonym = out.Pseudonym
	res := Result{Request: req, Changed: out.Changed, Message: describe(req, out.Changed)}
	if !out.Changed {
		f.metrics.Observe(req.Op.String(), req.Category.String(), metrics.ResultNoop)
		log.Debugw("request was a no-op", "pseudonym", req.Pseudonym)
		return res, nil
	}

	f.dirty = true
	f.pending = append(f.pending, roster.Request{Op: req.Op, Category: req.Category, Pseudonym: req.Pseudonym})
	if err := f.saveLocked(ctx, commitMessage(req)); err != nil {
		f.metrics.Observe(req.Op.String(), req.Category.String(), metrics.ResultFailed)
		log.Errorw("change applied but not persisted", "pseudonym", req.Pseudonym, "error", err)
		return res, err
	}

	f.metrics.Observe(req.Op.String(), req.Category.String(), metrics.ResultChanged)
	log.Infow("roster updated", "pseudonym", req.Pseudonym)
	return res, nil
}

// Add adds pseudonym to the category named by the token category.
func (f *Facade) Add(ctx context.Context, category, pseudonym string) (Result, error) {
	req, err := ParseRequest(roster.OpAdd, category, pseudonym, "")
	if err != nil {
		return Result{}, err
	}
	return f.Handle(ctx, req)
}

// Remove removes pseudonym from the category named by the token category.
func (f *Facade) Remove(ctx context.Context, category, pseudonym string) (Result, error) {
	req, err := ParseRequest(roster.OpRemove, category, pseudonym, "")
	if err != nil {
		return Result{}, err
	}
	return f.Handle(ctx, req)
}

// List returns every category with its sorted members.
func (f *Facade) List() roster.Listing {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.roster.List()
}

// CategoriesOf returns the categories p belongs to, in canonical order.
func (f *Facade) CategoriesOf(p string) []roster.Category {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.roster.CategoriesOf(p)
}

// Snapshot returns a copy of the roster.
func (f *Facade) Snapshot() *roster.Roster {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.roster.Clone()
}

// Dirty reports whether the last save failed, so the file or its remote
// copy is behind the in-memory roster.
func (f *Facade) Dirty() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dirty
}

// Retry saves the roster again after a persist failure. It is a no-op when
// nothing is pending.
func (f *Facade) Retry(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.dirty {
		return nil
	}
	if err := f.saveLocked(ctx, store.DefaultMessage); err != nil {
		f.logger.Errorw("retry failed", "error", err)
		return err
	}
	f.logger.Infow("pending roster changes persisted")
	return nil
}

// UploadImage stores and publishes a new side image.
func (f *Facade) UploadImage(ctx context.Context, r io.Reader, contentType string) error {
	if f.images == nil {
		return fmt.Errorf("image store is not configured")
	}

	// The image shares the publish hook, so it shares the lock too.
	f.mu.Lock()
	err := f.images.Save(ctx, r, contentType)
	f.mu.Unlock()
	if err != nil {
		return err
	}

	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	if err := f.notifier.ImageUpdate(nctx, f.images.Path); err != nil {
		f.logger.Warnw("image notification failed", "path", f.images.Path, "error", err)
	}
	return nil
}

// OpenImage returns the stored side image.
func (f *Facade) OpenImage() (io.ReadCloser, error) {
	if f.images == nil {
		return nil, sideimage.ErrNoImage
	}
	return f.images.Open()
}

func (f *Facade) saveLocked(ctx context.Context, message string) error {
	var err error
	for attempt := 1; ; attempt++ {
		start := f.now()
		err = f.gateway.Save(ctx, f.roster, message)
		f.metrics.ObserveSave(f.now().Sub(start))

		if !errors.Is(err, store.ErrConflict) || attempt == maxSaveAttempts {
			break
		}
		f.logger.Infow("roster file changed on disk, reloading", "attempt", attempt, "pending", len(f.pending))
		if rerr := f.reloadLocked(ctx); rerr != nil {
			err = rerr
			break
		}
	}

	if store.PublishFailed(err) {
		f.metrics.PublishFailed()
	}
	if store.Written(err) {
		f.pending = nil
	}
	f.dirty = err != nil
	f.metrics.SetDirty(f.dirty)
	f.refreshGaugesLocked()
	return err
}

// reloadLocked replaces the in-memory roster with the backing file and
// replays the changes that were not written yet.
func (f *Facade) reloadLocked(ctx context.Context) error {
	r, err := f.gateway.Load(ctx)
	if err != nil {
		return err
	}
	for _, req := range f.pending {
		if _, err := r.Apply(req); err != nil {
			f.logger.Warnw("pending change no longer applies", "op", req.Op.String(), "category", req.Category.String(), "pseudonym", req.Pseudonym, "error", err)
		}
	}
	f.roster = r
	return nil
}

func (f *Facade) notifyRoster(ctx context.Context, req Request, log *zap.SugaredLogger) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()

	change := notifier.Change{
		RequestID: req.ID,
		Op:        req.Op,
		Category:  req.Category,
		Pseudonym: req.Pseudonym,
		Actor:     req.Actor,
		At:        f.now().UTC(),
	}
	if err := f.notifier.RosterUpdate(ctx, change); err != nil {
		log.Warnw("change notification failed", "error", err)
	}
}

func (f *Facade) refreshGauges() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshGaugesLocked()
}

func (f *Facade) refreshGaugesLocked() {
	for _, c := range roster.Categories() {
		f.metrics.SetMembers(c.String(), f.roster.Len(c))
	}
}

func commitMessage(req Request) string {
	return fmt.Sprintf("%s: %s %s %s", store.DefaultMessage, req.Op, req.Pseudonym, direction(req))
}

func direction(req Request) string {
	if req.Op == roster.OpRemove {
		return "from " + req.Category.String()
	}
	return "to " + req.Category.String()
}

func describe(req Request, changed bool) string {
	switch {
	case req.Op == roster.OpAdd && changed:
		return fmt.Sprintf("Pseudonym %q added to %s.", req.Pseudonym, req.Category)
	case req.Op == roster.OpAdd:
		return fmt.Sprintf("Pseudonym %q is already in %s.", req.Pseudonym, req.Category)
	case changed:
		return fmt.Sprintf("Pseudonym %q removed from %s.", req.Pseudonym, req.Category)
	default:
		return fmt.Sprintf("Pseudonym %q is not in %s.", req.Pseudonym, req.Category)
	}
}
