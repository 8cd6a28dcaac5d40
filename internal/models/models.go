package models

import "time"

type Coord struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Valid reports whether the coordinate is usable for matching. The zero
// value (0,0) doubles as "missing" since no service area sits there.
func (c Coord) Valid() bool {
	if c.Lat == 0 && c.Lon == 0 {
		return false
	}
	return c.Lat >= -90 && c.Lat <= 90 && c.Lon >= -180 && c.Lon <= 180
}

type VehicleClass string

const (
	ClassMotorbike VehicleClass = "motorbike"
	ClassSedan     VehicleClass = "sedan"
	ClassVan       VehicleClass = "van"
	ClassTruck     VehicleClass = "truck"
)

// DriverAvailability mirrors the driver record contract of the external
// store. Position and heartbeat are written by the driver's client via the
// location pipeline; only the available flag is mutated here, and only
// through a conditional update.
type DriverAvailability struct {
	DriverID      string       `json:"driver_id"`
	Loc           Coord        `json:"loc"`
	Class         VehicleClass `json:"vehicle_class"`
	Services      []OrderType  `json:"services"`
	Online        bool         `json:"is_online"`
	Available     bool         `json:"is_available"`
	LastHeartbeat time.Time    `json:"last_heartbeat"`
}

func (d DriverAvailability) Serves(t OrderType) bool {
	for _, s := range d.Services {
		if s == t {
			return true
		}
	}
	return false
}

// DriverTrustStatus is maintained by the trust/fraud subsystem and is
// read-only input to eligibility checks.
type DriverTrustStatus struct {
	DriverID    string `json:"driver_id"`
	Suspended   bool   `json:"suspended"`
	Reason      string `json:"reason,omitempty"`
	UnpaidCount int    `json:"unpaid_obligations_count"`
}

type WalletBalance struct {
	DriverID string `json:"driver_id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// Candidate is a driver that survived the geo search, annotated with the
// great-circle distance to the pickup point.
type Candidate struct {
	Driver     DriverAvailability `json:"driver"`
	DistanceKm float64            `json:"distance_km"`
}

// CandidateScore is ephemeral, computed per (order, driver) pair during a
// single matching attempt. It is never persisted.
type CandidateScore struct {
	Driver     DriverAvailability `json:"driver"`
	DistanceKm float64            `json:"distance_km"`
	Activity   float64            `json:"activity"`
	Proximity  float64            `json:"proximity"`
	Composite  float64            `json:"score"`
}

// CancellationRecord is an append-only audit entry written when the sweep
// reclaims a stale order. Immutable once created.
type CancellationRecord struct {
	ID           string      `json:"id"`
	OrderID      string      `json:"order_id"`
	Type         string      `json:"cancellation_type"`
	PriorStatus  OrderStatus `json:"prior_status"`
	Actor        string      `json:"actor"`
	RefundAmount int64       `json:"refund_amount"`
	Currency     string      `json:"currency"`
	RefundStatus string      `json:"refund_status"`
	CreatedAt    time.Time   `json:"created_at"`
}

const (
	CancellationAutoTimeout = "auto_timeout"

	RefundNone    = "none"
	RefundPending = "pending"
)

type AlertPriority string

const (
	PriorityHigh   AlertPriority = "high"
	PriorityNormal AlertPriority = "normal"
)

// NotificationAlert is the outbound message record enqueued per
// (recipient, order) pair. DriverID carries the recipient identifier; for
// cancellation notices that is the order's requester or counterparty.
type NotificationAlert struct {
	ID        string        `json:"id"`
	DriverID  string        `json:"driver_id"`
	OrderID   string        `json:"order_id"`
	Message   string        `json:"message"`
	Priority  AlertPriority `json:"priority"`
	ExpiresAt time.Time     `json:"expires_at"`
}

// Actionable reports whether the alert can still be acted on at t.
func (a NotificationAlert) Actionable(t time.Time) bool {
	return t.Before(a.ExpiresAt)
}
