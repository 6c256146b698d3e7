// Package core is the orchestration layer.  It composes transports,
// the pixel capability and telemetry into a running server and
// provides a builder that assembles that server from a Config.
//
// Architecture layers (bottom → top):
//
//	canvas  →  protocol  →  session  →  capability  →  core  →  cmd (CLI)
//	                           transport ─┘
package core

import (
	"context"
	"errors"
	"sync"
)

// Mode is a long-running part of the server (the pixel listener, the
// telemetry endpoint).  Each mode owns its full lifecycle and returns
// once ctx is cancelled.
type Mode interface {
	Run(ctx context.Context) error
}

// Group runs several modes side by side.  The first mode to fail
// cancels the others; Run returns once all of them have returned.
type Group []Mode

// Run starts every mode and waits for all of them.
func (g Group) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, m := range g {
		wg.Add(1)
		go func(m Mode) {
			defer wg.Done()
			if err := m.Run(ctx); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
				cancel()
			}
		}(m)
	}
	wg.Wait()
	return errors.Join(errs...)
}
