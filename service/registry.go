package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"VideoFactory-server/config"
	"VideoFactory-server/logger"
	"VideoFactory-server/models"

	"github.com/google/uuid"
)

// Candidate is an enabled registry entry paired with the adapter that serves it.
type Candidate struct {
	Entry   models.ProviderEntry
	Adapter Adapter
}

// Registry resolves the provider chain of a capability. The ordering lives in
// the store and is re-read on every call so operator changes apply to the
// very next attempt.
type Registry struct {
	store *models.Store
	log   *logger.Logger

	mu       sync.RWMutex
	adapters map[string]Adapter
}

func NewRegistry(store *models.Store, log *logger.Logger, adapters ...Adapter) *Registry {
	r := &Registry{
		store:    store,
		log:      log.Component("ProviderRegistry"),
		adapters: make(map[string]Adapter),
	}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

// Register binds an adapter to the registry entries carrying its name.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Name()] = a
}

func (r *Registry) adapter(name string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[name]
	return a, ok
}

// Candidates returns the enabled providers of a capability sorted ascending by
// priority. A preferred provider, when enabled, is moved to the front.
func (r *Registry) Candidates(ctx context.Context, capability, preferred string) ([]Candidate, error) {
	entries, err := r.store.ListProviders(ctx, capability)
	if err != nil {
		return nil, fmt.Errorf("list providers: %w", err)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Priority != entries[j].Priority {
			return entries[i].Priority < entries[j].Priority
		}
		return entries[i].Name < entries[j].Name
	})

	out := make([]Candidate, 0, len(entries))
	for _, e := range entries {
		if !e.IsEnabled {
			continue
		}
		a, ok := r.adapter(e.Name)
		if !ok {
			r.log.Warn("enabled provider has no adapter", "capability", capability, "provider", e.Name)
			continue
		}
		out = append(out, Candidate{Entry: e, Adapter: a})
	}

	if preferred != "" {
		for i, c := range out {
			if c.Entry.Name == preferred && i > 0 {
				reordered := append([]Candidate{c}, out[:i]...)
				out = append(reordered, out[i+1:]...)
				break
			}
		}
	}
	return out, nil
}

// EnabledCount reports how many providers of a capability are currently usable.
func (r *Registry) EnabledCount(ctx context.Context, capability string) (int, error) {
	cands, err := r.Candidates(ctx, capability, "")
	if err != nil {
		return 0, err
	}
	return len(cands), nil
}

// ReportHealth records the last-known health of a provider. It never affects
// ordering.
func (r *Registry) ReportHealth(ctx context.Context, entryID string, healthy bool, errMsg string) {
	now := time.Now()
	health := models.HealthHealthy
	if !healthy {
		health = models.HealthDegraded
	}
	err := r.store.UpdateProvider(ctx, entryID, map[string]interface{}{
		"health":          health,
		"last_error":      errMsg,
		"last_checked_at": &now,
	})
	if err != nil {
		r.log.Warn("failed to record provider health", "provider_id", entryID, "error", err)
	}
}

// Seed creates registry entries for configured providers that are missing.
// Existing entries keep their operator-set priority and enablement.
func (r *Registry) Seed(ctx context.Context, providers []config.ProviderConfig) error {
	for _, p := range providers {
		_, err := r.store.GetProviderByName(ctx, p.Capability, p.Name)
		if err == nil {
			continue
		}
		if !errors.Is(err, models.ErrNotFound) {
			return fmt.Errorf("lookup provider %s: %w", p.Name, err)
		}
		entry := &models.ProviderEntry{
			ID:         uuid.NewString(),
			Capability: p.Capability,
			Name:       p.Name,
			Priority:   p.Priority,
			IsEnabled:  p.Enabled,
			Health:     models.HealthUnknown,
		}
		if err := r.store.CreateProvider(ctx, entry); err != nil {
			return fmt.Errorf("seed provider %s: %w", p.Name, err)
		}
		r.log.Info("provider seeded", "capability", p.Capability, "provider", p.Name, "priority", p.Priority)
	}
	return nil
}
