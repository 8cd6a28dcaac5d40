package wallet

import (
	"context"
	"strconv"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/example/dispatch-engine/internal/models"
)

// BalanceSource reads a driver's wallet balance. Balances are consulted
// read-only during eligibility; ledger writes belong to the payments
// subsystem.
type BalanceSource interface {
	Balance(ctx context.Context, driverID string) (models.WalletBalance, error)
}

// RedisLedger reads balances mirrored into Redis by the payments
// subsystem.
type RedisLedger struct {
	client *redis.Client
}

func NewRedisLedger(client *redis.Client) *RedisLedger {
	return &RedisLedger{client: client}
}

func (r *RedisLedger) Balance(ctx context.Context, driverID string) (models.WalletBalance, error) {
	m, err := r.client.HGetAll(ctx, walletKey(driverID)).Result()
	if err != nil {
		return models.WalletBalance{}, err
	}
	b := models.WalletBalance{DriverID: driverID, Currency: m["currency"]}
	if v, ok := m["amount"]; ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			b.Amount = n
		}
	}
	return b, nil
}

func walletKey(id string) string { return "driver:wallet:" + id }

// MemoryLedger is a fixture-style balance source for tests.
type MemoryLedger struct {
	mu       sync.RWMutex
	balances map[string]models.WalletBalance
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{balances: make(map[string]models.WalletBalance)}
}

func (m *MemoryLedger) Put(b models.WalletBalance) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[b.DriverID] = b
}

func (m *MemoryLedger) Balance(_ context.Context, driverID string) (models.WalletBalance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.balances[driverID], nil
}
