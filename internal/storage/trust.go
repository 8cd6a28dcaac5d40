package storage

import (
	"context"
	"strconv"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/example/dispatch-engine/internal/models"
)

// TrustSource reads the suspension record the fraud subsystem maintains.
// Reads are read-through; this process never writes trust data.
type TrustSource interface {
	TrustStatus(ctx context.Context, driverID string) (models.DriverTrustStatus, error)
}

type RedisTrustSource struct {
	client *redis.Client
}

func NewRedisTrustSource(client *redis.Client) *RedisTrustSource {
	return &RedisTrustSource{client: client}
}

func (r *RedisTrustSource) TrustStatus(ctx context.Context, driverID string) (models.DriverTrustStatus, error) {
	m, err := r.client.HGetAll(ctx, trustKey(driverID)).Result()
	if err != nil {
		return models.DriverTrustStatus{}, err
	}
	st := models.DriverTrustStatus{DriverID: driverID}
	st.Suspended = m["suspended"] == "true"
	st.Reason = m["reason"]
	if v, ok := m["unpaid_count"]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			st.UnpaidCount = n
		}
	}
	return st, nil
}

func trustKey(id string) string { return "driver:trust:" + id }

// MemoryTrustSource is a fixture-style source for tests.
type MemoryTrustSource struct {
	mu       sync.RWMutex
	statuses map[string]models.DriverTrustStatus
}

func NewMemoryTrustSource() *MemoryTrustSource {
	return &MemoryTrustSource{statuses: make(map[string]models.DriverTrustStatus)}
}

func (m *MemoryTrustSource) Put(st models.DriverTrustStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[st.DriverID] = st
}

func (m *MemoryTrustSource) TrustStatus(_ context.Context, driverID string) (models.DriverTrustStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	// unknown drivers are in good standing
	return m.statuses[driverID], nil
}
