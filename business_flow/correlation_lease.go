package businessflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/amirphl/orochi-attribution/utils"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Lease is a held, expiring claim on a named resource
type Lease struct {
	Name      string
	Owner     string
	ExpiresAt time.Time
}

// LeaseManager hands out exclusive leases. Acquire never blocks: a held lease yields
// ErrCorrelationAlreadyRunning.
type LeaseManager interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (*Lease, error)
	Release(ctx context.Context, lease *Lease) error
}

// LocalLeaseManager serializes holders inside one process
type LocalLeaseManager struct {
	mu   sync.Mutex
	held map[string]Lease
	now  func() time.Time
}

func NewLocalLeaseManager() *LocalLeaseManager {
	return &LocalLeaseManager{held: make(map[string]Lease), now: utils.UTCNow}
}

func (m *LocalLeaseManager) Acquire(_ context.Context, name string, ttl time.Duration) (*Lease, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if cur, ok := m.held[name]; ok && now.Before(cur.ExpiresAt) {
		return nil, ErrCorrelationAlreadyRunning
	}
	lease := Lease{Name: name, Owner: uuid.NewString(), ExpiresAt: now.Add(ttl)}
	m.held[name] = lease
	return &lease, nil
}

func (m *LocalLeaseManager) Release(_ context.Context, lease *Lease) error {
	if lease == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.held[lease.Name]; ok && cur.Owner == lease.Owner {
		delete(m.held, lease.Name)
	}
	return nil
}

// releaseScript deletes the key only while it still belongs to the caller
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLeaseManager shares leases across replicas through SET NX PX
type RedisLeaseManager struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

func NewRedisLeaseManager(client *redis.Client, prefix string) *RedisLeaseManager {
	return &RedisLeaseManager{client: client, prefix: prefix, now: utils.UTCNow}
}

func (m *RedisLeaseManager) key(name string) string {
	return m.prefix + "lease:" + name
}

func (m *RedisLeaseManager) Acquire(ctx context.Context, name string, ttl time.Duration) (*Lease, error) {
	owner := uuid.NewString()
	ok, err := m.client.SetNX(ctx, m.key(name), owner, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lease %s: %w", name, err)
	}
	if !ok {
		return nil, ErrCorrelationAlreadyRunning
	}
	return &Lease{Name: name, Owner: owner, ExpiresAt: m.now().Add(ttl)}, nil
}

func (m *RedisLeaseManager) Release(ctx context.Context, lease *Lease) error {
	if lease == nil {
		return nil
	}
	if err := releaseScript.Run(ctx, m.client, []string{m.key(lease.Name)}, lease.Owner).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("failed to release lease %s: %w", lease.Name, err)
	}
	return nil
}
