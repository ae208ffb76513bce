// Package store persists the roster to its PSC backing file and triggers the
// publish hook after every write.
package store

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"go.uber.org/zap"

	"github.com/vrcwmt/worldperm/internal/publish"
	"github.com/vrcwmt/worldperm/internal/roster"
)

const (
	opLoad    = "load"
	opSave    = "save"
	opPublish = "publish"
)

// DefaultPath is where the world reads its permission file, relative to the
// repository root.
const DefaultPath = "perm/WorldPermissions.PSC"

// DefaultMessage is the commit message used when a save has no description.
const DefaultMessage = "Update WorldPermissions.PSC"

type gatewayConfig struct {
	header      roster.Header
	stamp       string
	now         func() time.Time
	publisher   publish.Publisher
	logger      *zap.SugaredLogger
	lockTimeout time.Duration
	dirPerm     os.FileMode
	filePerm    os.FileMode
}

func defaultGatewayConfig() gatewayConfig {
	return gatewayConfig{
		header:      roster.DefaultHeader(),
		now:         time.Now,
		publisher:   publish.Nop{},
		logger:      zap.NewNop().Sugar(),
		lockTimeout: 5 * time.Second,
		dirPerm:     0o755,
		filePerm:    0o644,
	}
}

// Option configures a Gateway.
type Option func(*gatewayConfig)

// WithHeader sets the metadata block written at the top of the file.
func WithHeader(h roster.Header) Option {
	return func(c *gatewayConfig) { c.header = h }
}

// WithStamp makes every save rewrite the build line with the current time
// and the given version.
func WithStamp(version string) Option {
	return func(c *gatewayConfig) { c.stamp = version }
}

// WithClock overrides the clock used by WithStamp.
func WithClock(now func() time.Time) Option {
	return func(c *gatewayConfig) { c.now = now }
}

// WithPublisher sets the hook called after each successful write.
func WithPublisher(p publish.Publisher) Option {
	return func(c *gatewayConfig) {
		if p != nil {
			c.publisher = p
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(c *gatewayConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithLockTimeout bounds how long Save waits for another writer's lock.
func WithLockTimeout(d time.Duration) Option {
	return func(c *gatewayConfig) { c.lockTimeout = d }
}

// revision identifies the backing file content a gateway last observed.
type revision struct {
	known  bool
	exists bool
	sum    [sha256.Size]byte
}

func revisionOf(data []byte) revision {
	return revision{known: true, exists: true, sum: sha256.Sum256(data)}
}

// Gateway reads and writes one PSC backing file. Save refuses to overwrite
// a file that another writer changed after this gateway last read or wrote
// it, so read-modify-write cycles across processes cannot lose updates.
type Gateway struct {
	path string
	cfg  gatewayConfig
	lock *flock.Flock

	mu   sync.Mutex
	seen revision
}

// NewGateway creates a Gateway for the file at path.
func NewGateway(path string, opts ...Option) *Gateway {
	cfg := defaultGatewayConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Gateway{
		path: path,
		cfg:  cfg,
		lock: flock.New(path + ".lock"),
	}
}

// Path returns the backing file path.
func (g *Gateway) Path() string {
	return g.path
}

// Header returns the header written on save, before stamping.
func (g *Gateway) Header() roster.Header {
	return g.cfg.header
}

// Load reads the backing file. A missing file is not an error: the parent
// directory is created and an empty roster returned. Lines the decoder
// skipped are logged as warnings.
func (g *Gateway) Load(ctx context.Context) (*roster.Roster, error) {
	r, diags, exists, err := g.Inspect(ctx)
	if err != nil {
		return nil, err
	}

	if !exists {
		if err := os.MkdirAll(filepath.Dir(g.path), g.cfg.dirPerm); err != nil {
			return nil, &Error{Op: opLoad, Path: g.path, Kind: ErrIOFailure, Err: err}
		}
		g.cfg.logger.Infow("roster file not found, starting empty", "path", g.path)
		return r, nil
	}

	for _, d := range diags {
		g.cfg.logger.Warnw("ignored roster line", "path", g.path, "line", d.Line, "kind", d.Kind, "text", d.Text)
	}
	if n := diags.Dropped(); n > 0 {
		g.cfg.logger.Warnw("pseudonyms in unrecognized sections were dropped", "path", g.path, "count", n)
	}

	g.cfg.logger.Debugw("roster loaded", "path", g.path, "total", r.Total())
	return r, nil
}

// Inspect reads and decodes the backing file without creating anything.
// exists is false when the file is missing, in which case r is empty.
func (g *Gateway) Inspect(ctx context.Context) (r *roster.Roster, diags roster.Diagnostics, exists bool, err error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, false, err
	}

	data, rev, err := g.read()
	if err != nil {
		return nil, nil, false, &Error{Op: opLoad, Path: g.path, Kind: ErrIOFailure, Err: err}
	}
	if !rev.exists {
		g.observe(rev)
		return roster.New(), nil, false, nil
	}

	r, diags, err = roster.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, nil, true, &Error{Op: opLoad, Path: g.path, Kind: ErrIOFailure, Err: err}
	}
	g.observe(rev)
	return r, diags, true, nil
}

// read returns the file content and its revision. A missing file is not an
// error.
func (g *Gateway) read() ([]byte, revision, error) {
	data, err := os.ReadFile(g.path) //nolint:gosec // G304: path from trusted config
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, revision{known: true}, nil
		}
		return nil, revision{}, err
	}
	return data, revisionOf(data), nil
}

func (g *Gateway) observe(rev revision) {
	g.mu.Lock()
	g.seen = rev
	g.mu.Unlock()
}

// checkUnchanged fails with ErrConflict when the file on disk differs from
// the last observed revision. It must be called with the file lock held. A
// gateway that has not read or written the file yet accepts any content.
func (g *Gateway) checkUnchanged() error {
	g.mu.Lock()
	seen := g.seen
	g.mu.Unlock()
	if !seen.known {
		return nil
	}

	_, current, err := g.read()
	if err != nil {
		return fmt.Errorf("re-reading roster: %w", err)
	}
	if current != seen {
		return ErrConflict
	}
	return nil
}

// Save encodes r, replaces the backing file and then invokes the publish hook
// with message. The write is atomic: readers see either the old or the new
// file. If the hook fails the file is kept and a PersistFailure is returned;
// PublishFailed distinguishes that case from a failed write. If another
// writer changed the file since it was last observed, nothing is written and
// the error matches ErrConflict.
func (g *Gateway) Save(ctx context.Context, r *roster.Roster, message string) error {
	if message == "" {
		message = DefaultMessage
	}

	if err := os.MkdirAll(filepath.Dir(g.path), g.cfg.dirPerm); err != nil {
		return &Error{Op: opSave, Path: g.path, Kind: ErrPersistFailure, Err: fmt.Errorf("creating directory: %w", err)}
	}

	unlock, err := g.acquire(ctx)
	if err != nil {
		return &Error{Op: opSave, Path: g.path, Kind: ErrPersistFailure, Err: err}
	}
	defer unlock()

	if err := g.checkUnchanged(); err != nil {
		return &Error{Op: opSave, Path: g.path, Kind: ErrPersistFailure, Err: err}
	}

	header := g.cfg.header
	if g.cfg.stamp != "" {
		header = header.Stamped(g.cfg.now(), g.cfg.stamp)
	}

	var buf bytes.Buffer
	if err := roster.Encode(&buf, r, header); err != nil {
		return &Error{Op: opSave, Path: g.path, Kind: ErrPersistFailure, Err: err}
	}

	if err := writeFileAtomic(g.path, buf.Bytes(), g.cfg.filePerm); err != nil {
		return &Error{Op: opSave, Path: g.path, Kind: ErrPersistFailure, Err: err}
	}
	g.observe(revisionOf(buf.Bytes()))
	g.cfg.logger.Debugw("roster written", "path", g.path, "bytes", buf.Len())

	if err := g.cfg.publisher.Publish(ctx, []string{g.path}, message); err != nil {
		g.cfg.logger.Errorw("publish failed, file kept", "path", g.path, "error", err)
		return &Error{Op: opPublish, Path: g.path, Kind: ErrPersistFailure, Err: err}
	}

	g.cfg.logger.Infow("roster saved", "path", g.path, "message", message)
	return nil
}

// acquire takes the inter-process write lock.
func (g *Gateway) acquire(ctx context.Context) (func(), error) {
	lockCtx := ctx
	if g.cfg.lockTimeout > 0 {
		var cancel context.CancelFunc
		lockCtx, cancel = context.WithTimeout(ctx, g.cfg.lockTimeout)
		defer cancel()
	}

	ok, err := g.lock.TryLockContext(lockCtx, 50*time.Millisecond)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, ErrLocked
		}
		return nil, fmt.Errorf("acquiring lock: %w", err)
	}
	if !ok {
		return nil, ErrLocked
	}

	return func() {
		if err := g.lock.Unlock(); err != nil {
			g.cfg.logger.Warnw("releasing roster lock", "path", g.path, "error", err)
		}
	}, nil
}

// writeFileAtomic writes data to a temp file next to path and renames it over
// path.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return fmt.Errorf("setting permissions: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replacing %s: %w", filepath.Base(path), err)
	}
	return nil
}
