package service

import (
	"context"
	"errors"
	"sync"
)

type runEntry struct {
	token  uint64
	cancel context.CancelCauseFunc
}

// CancelRegistry maps a running project to the cancel func of its run
// context so an operator cancel can end an in-flight poll early instead of
// waiting for the next checkpoint.
type CancelRegistry struct {
	mu   sync.Mutex
	next uint64
	m    map[string]runEntry
}

func NewCancelRegistry() *CancelRegistry {
	return &CancelRegistry{m: make(map[string]runEntry)}
}

// Register is called by the orchestrator when a run starts. It refuses a
// second run of a project that already has one registered; the returned
// token identifies this run to Unregister.
func (r *CancelRegistry) Register(projectID string, cancel context.CancelCauseFunc) (uint64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.m[projectID]; ok {
		return 0, false
	}
	r.next++
	r.m[projectID] = runEntry{token: r.next, cancel: cancel}
	return r.next, true
}

// Unregister removes the entry only if it still belongs to the run holding token.
func (r *CancelRegistry) Unregister(projectID string, token uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.m[projectID]; ok && e.token == token {
		delete(r.m, projectID)
	}
}

// Running reports whether a run of the project is registered in this process.
func (r *CancelRegistry) Running(projectID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.m[projectID]
	return ok
}

// Cancel interrupts the local run of a project and reports whether one was
// found. The entry stays until the run unregisters, so Running keeps
// reporting a run that is still winding down.
func (r *CancelRegistry) Cancel(projectID, reason string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.m[projectID]
	if !ok {
		return false
	}
	e.cancel(errors.New(reason))
	return true
}
