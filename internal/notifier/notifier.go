// Package notifier tells outside systems that the roster or the side image
// changed. Notifications are sent after the change has been persisted and are
// best-effort: a failed notification never undoes a change.
package notifier

//go:generate mockgen -source=notifier.go -destination=mock_notifier.go -package=notifier

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/vrcwmt/worldperm/internal/roster"
)

// Change is one applied roster mutation.
type Change struct {
	RequestID uuid.UUID       `json:"request_id"`
	Op        roster.Op       `json:"op"`
	Category  roster.Category `json:"category"`
	Pseudonym string          `json:"pseudonym"`
	Actor     string          `json:"actor,omitempty"`
	At        time.Time       `json:"at"`
}

type Notifier interface {
	RosterUpdate(ctx context.Context, change Change) error
	ImageUpdate(ctx context.Context, path string) error
}

type multi []Notifier

// Multi fans out to every notifier and joins their errors.
func Multi(ns ...Notifier) Notifier {
	return multi(ns)
}

func (m multi) RosterUpdate(ctx context.Context, change Change) error {
	var errs []error
	for _, n := range m {
		if err := n.RosterUpdate(ctx, change); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m multi) ImageUpdate(ctx context.Context, path string) error {
	var errs []error
	for _, n := range m {
		if err := n.ImageUpdate(ctx, path); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop drops every notification.
type Nop struct{}

func (Nop) RosterUpdate(context.Context, Change) error { return nil }
func (Nop) ImageUpdate(context.Context, string) error  { return nil }
