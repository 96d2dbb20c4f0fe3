package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"VideoFactory-server/logger"

	goredis "github.com/redis/go-redis/v9"
)

// OperationalStatus is the answer of the cooperative-cancellation oracle.
type OperationalStatus struct {
	Operational bool   `json:"operational"`
	Reason      string `json:"reason,omitempty"`
}

// Oracle tells the orchestrator whether a capability may keep running.
type Oracle interface {
	IsOperational(ctx context.Context, capability string) (OperationalStatus, error)
}

// SwitchStore holds the operator kill switch and per-category disable flags.
type SwitchStore interface {
	KillSwitch(ctx context.Context) (engaged bool, reason string, err error)
	SetKillSwitch(ctx context.Context, engaged bool, reason string) error
	CategoryDisabled(ctx context.Context, capability string) (disabled bool, reason string, err error)
	SetCategoryDisabled(ctx context.Context, capability string, disabled bool, reason string) error
}

// ControlPlane combines the switches with the provider registry: a capability
// is operational when the system is not killed, its category is not disabled
// and at least one of its providers is enabled.
type ControlPlane struct {
	switches SwitchStore
	registry *Registry
}

func NewControlPlane(switches SwitchStore, registry *Registry) *ControlPlane {
	return &ControlPlane{switches: switches, registry: registry}
}

func (c *ControlPlane) IsOperational(ctx context.Context, capability string) (OperationalStatus, error) {
	killed, reason, err := c.switches.KillSwitch(ctx)
	if err != nil {
		return OperationalStatus{}, fmt.Errorf("read kill switch: %w", err)
	}
	if killed {
		return OperationalStatus{Reason: withDefault(reason, "system disabled by operator")}, nil
	}
	disabled, reason, err := c.switches.CategoryDisabled(ctx, capability)
	if err != nil {
		return OperationalStatus{}, fmt.Errorf("read %s switch: %w", capability, err)
	}
	if disabled {
		return OperationalStatus{Reason: withDefault(reason, capability+" pipeline disabled by operator")}, nil
	}
	n, err := c.registry.EnabledCount(ctx, capability)
	if err != nil {
		return OperationalStatus{}, err
	}
	if n == 0 {
		return OperationalStatus{Reason: "no enabled " + capability + " providers"}, nil
	}
	return OperationalStatus{Operational: true}, nil
}

func withDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// RedisSwitchStore keeps switches in redis so every API and worker process
// sees the same operator state. A present key means engaged; its value is
// the reason.
type RedisSwitchStore struct {
	rdb    *goredis.Client
	prefix string
	log    *logger.Logger
}

func NewRedisSwitchStore(addr, password, prefix string, log *logger.Logger) (*RedisSwitchStore, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    password,
		DialTimeout: 5 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisSwitchStore{
		rdb:    rdb,
		prefix: prefix,
		log:    log.Component("RedisSwitchStore"),
	}, nil
}

func (s *RedisSwitchStore) killKey() string { return s.prefix + ":killswitch" }

func (s *RedisSwitchStore) categoryKey(capability string) string {
	return s.prefix + ":category:" + capability + ":disabled"
}

func (s *RedisSwitchStore) get(ctx context.Context, key string) (bool, string, error) {
	val, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, goredis.Nil) {
		return false, "", nil
	}
	if err != nil {
		return false, "", err
	}
	return true, val, nil
}

func (s *RedisSwitchStore) set(ctx context.Context, key string, on bool, reason string) error {
	if !on {
		return s.rdb.Del(ctx, key).Err()
	}
	return s.rdb.Set(ctx, key, reason, 0).Err()
}

func (s *RedisSwitchStore) KillSwitch(ctx context.Context) (bool, string, error) {
	return s.get(ctx, s.killKey())
}

func (s *RedisSwitchStore) SetKillSwitch(ctx context.Context, engaged bool, reason string) error {
	s.log.Info("kill switch changed", "engaged", engaged, "reason", reason)
	return s.set(ctx, s.killKey(), engaged, reason)
}

func (s *RedisSwitchStore) CategoryDisabled(ctx context.Context, capability string) (bool, string, error) {
	return s.get(ctx, s.categoryKey(capability))
}

func (s *RedisSwitchStore) SetCategoryDisabled(ctx context.Context, capability string, disabled bool, reason string) error {
	s.log.Info("category switch changed", "capability", capability, "disabled", disabled, "reason", reason)
	return s.set(ctx, s.categoryKey(capability), disabled, reason)
}

func (s *RedisSwitchStore) Close() error {
	return s.rdb.Close()
}

// MemorySwitchStore is the single-process switch store.
type MemorySwitchStore struct {
	mu         sync.RWMutex
	killed     bool
	killReason string
	categories map[string]string
}

func NewMemorySwitchStore() *MemorySwitchStore {
	return &MemorySwitchStore{categories: make(map[string]string)}
}

func (m *MemorySwitchStore) KillSwitch(ctx context.Context) (bool, string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.killed, m.killReason, nil
}

func (m *MemorySwitchStore) SetKillSwitch(ctx context.Context, engaged bool, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.killed = engaged
	m.killReason = reason
	if !engaged {
		m.killReason = ""
	}
	return nil
}

func (m *MemorySwitchStore) CategoryDisabled(ctx context.Context, capability string) (bool, string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	reason, ok := m.categories[capability]
	return ok, reason, nil
}

func (m *MemorySwitchStore) SetCategoryDisabled(ctx context.Context, capability string, disabled bool, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if disabled {
		m.categories[capability] = reason
	} else {
		delete(m.categories, capability)
	}
	return nil
}
