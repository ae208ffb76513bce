// Package publish propagates written files to a remote store after each
// successful write.
package publish

//go:generate mockgen -source=publish.go -destination=mock_publish.go -package=publish

import (
	"context"
	"errors"
)

// Publisher propagates the given files with a human-readable change message.
type Publisher interface {
	Publish(ctx context.Context, paths []string, message string) error
}

// Func adapts a function to Publisher.
type Func func(ctx context.Context, paths []string, message string) error

// Publish calls f.
func (f Func) Publish(ctx context.Context, paths []string, message string) error {
	return f(ctx, paths, message)
}

// Nop is a Publisher that does nothing. It is used when publishing is disabled.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(context.Context, []string, string) error { return nil }

// Multi runs every publisher in order and joins their errors.
// A failing publisher does not stop the ones after it.
func Multi(publishers ...Publisher) Publisher {
	return multi(publishers)
}

type multi []Publisher

func (m multi) Publish(ctx context.Context, paths []string, message string) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, paths, message); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
