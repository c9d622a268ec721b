package database

import (
	"errors"
	"sync"
)

// Backend bundles the stores the attendance engine runs on, together with
// the resources that must be released on shutdown.
type Backend struct {
	Templates TemplateStore
	Sessions  SessionStore
	Roster    RosterReader

	mu      sync.Mutex
	closers []func() error
}

// OnClose registers a cleanup function. Functions run in reverse order of registration.
func (b *Backend) OnClose(fn func() error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closers = append(b.closers, fn)
}

// Validate checks that every store is set.
func (b *Backend) Validate() error {
	var errs []error
	if b.Templates == nil {
		errs = append(errs, errors.New("template store not configured"))
	}
	if b.Sessions == nil {
		errs = append(errs, errors.New("session store not configured"))
	}
	if b.Roster == nil {
		errs = append(errs, errors.New("roster reader not configured"))
	}
	return errors.Join(errs...)
}

// Close releases all registered resources and returns the joined errors.
func (b *Backend) Close() error {
	b.mu.Lock()
	closers := b.closers
	b.closers = nil
	b.mu.Unlock()

	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
