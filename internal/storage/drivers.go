package storage

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/example/dispatch-engine/internal/geo"
	"github.com/example/dispatch-engine/internal/models"
)

// DriverReserver flips the available flag on a driver record. Reserve is
// the one mandatory compare-and-set in the system: it must only succeed
// when the flag currently reads true, so two orders can never claim the
// same driver.
type DriverReserver interface {
	Reserve(ctx context.Context, driverID string) (bool, error)
	Release(ctx context.Context, driverID string) error
}

// reserveScript flips available true -> false atomically inside Redis.
// Returns 1 on success, 0 when the driver was already taken or unknown.
var reserveScript = redis.NewScript(`
if redis.call("HGET", KEYS[1], "available") == "true" then
  redis.call("HSET", KEYS[1], "available", "false")
  return 1
end
return 0
`)

// RedisDriverStore reserves drivers against the same meta hash the geo
// index maintains.
type RedisDriverStore struct {
	client *redis.Client
}

func NewRedisDriverStore(client *redis.Client) *RedisDriverStore {
	return &RedisDriverStore{client: client}
}

func (r *RedisDriverStore) Reserve(ctx context.Context, driverID string) (bool, error) {
	n, err := reserveScript.Run(ctx, r.client, []string{geo.MetaKey(driverID)}).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *RedisDriverStore) Release(ctx context.Context, driverID string) error {
	return r.client.HSet(ctx, geo.MetaKey(driverID), "available", "true").Err()
}

// MemoryDriverStore backs tests and single-node runs. The mutex gives the
// same conditional-update semantics the Lua script gives in Redis.
type MemoryDriverStore struct {
	mu      sync.Mutex
	drivers map[string]*models.DriverAvailability
}

func NewMemoryDriverStore() *MemoryDriverStore {
	return &MemoryDriverStore{drivers: make(map[string]*models.DriverAvailability)}
}

// Put upserts a heartbeat. The available flag is CAS-guarded by
// Reserve/Release, so for a known driver the stored value wins over
// whatever the heartbeat payload carries.
func (m *MemoryDriverStore) Put(d models.DriverAvailability) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := d
	if prev, ok := m.drivers[d.DriverID]; ok {
		cp.Available = prev.Available
	}
	m.drivers[d.DriverID] = &cp
}

func (m *MemoryDriverStore) Get(driverID string) (models.DriverAvailability, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drivers[driverID]
	if !ok {
		return models.DriverAvailability{}, false
	}
	return *d, true
}

func (m *MemoryDriverStore) Reserve(_ context.Context, driverID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drivers[driverID]
	if !ok || !d.Available {
		return false, nil
	}
	d.Available = false
	return true, nil
}

func (m *MemoryDriverStore) Release(_ context.Context, driverID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.drivers[driverID]; ok {
		d.Available = true
	}
	return nil
}
