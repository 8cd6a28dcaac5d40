package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	_ "github.com/lib/pq"

	"github.com/example/dispatch-engine/internal/errs"
	"github.com/example/dispatch-engine/internal/models"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	// quick ping
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (p *PostgresStore) SaveOrder(ctx context.Context, o *models.Order) error {
	payload, err := payloadJSON(o)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `INSERT INTO orders(id, type, status, requester_id, pickup_lat, pickup_lon, dest_lat, dest_lon, required_class, estimated_fare, currency, driver_id, hold_id, payload, created_at)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,NULLIF($12,''),$13,$14,$15)`,
		o.ID, o.Type, o.Status, o.RequesterID, o.Pickup.Lat, o.Pickup.Lon, o.Destination.Lat, o.Destination.Lon,
		o.RequiredClass, o.EstimatedFare, o.Currency, o.DriverID, o.HoldID, payload, o.CreatedAt)
	if err != nil {
		return errs.Persistence("save order", err)
	}
	return nil
}

func (p *PostgresStore) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	row := p.db.QueryRowContext(ctx, `SELECT id, type, status, requester_id, pickup_lat, pickup_lon, COALESCE(dest_lat,0), COALESCE(dest_lon,0), required_class, estimated_fare, currency, COALESCE(driver_id,''), COALESCE(hold_id,''), payload, created_at, assigned_at, cancelled_at FROM orders WHERE id=$1`, id)
	return scanOrder(row)
}

func (p *PostgresStore) MarkAssigned(ctx context.Context, id, driverID string, at time.Time) (*models.Order, error) {
	res, err := p.db.ExecContext(ctx, `UPDATE orders SET driver_id=$1, status=$2, assigned_at=$3 WHERE id=$4 AND status=$5 AND driver_id IS NULL`,
		driverID, models.StatusAssigned, at, id, models.StatusPending)
	if err != nil {
		return nil, errs.Persistence("assign order", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, errs.Persistence("assign order", err)
	}
	if n == 0 {
		// distinguish a missing order from a lost race
		if _, err := p.GetOrder(ctx, id); err != nil {
			return nil, err
		}
		return nil, errs.ErrAssignmentConflict
	}
	return p.GetOrder(ctx, id)
}

func (p *PostgresStore) MarkCancelled(ctx context.Context, id, actor string, at time.Time) (*models.Order, bool, error) {
	res, err := p.db.ExecContext(ctx, `UPDATE orders SET status=$1, cancelled_at=$2, cancelled_by=$3 WHERE id=$4 AND status IN ($5,$6)`,
		models.StatusCancelled, at, actor, id, models.StatusPending, models.StatusAssigned)
	if err != nil {
		return nil, false, errs.Persistence("cancel order", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, errs.Persistence("cancel order", err)
	}
	if n == 0 {
		return nil, false, nil
	}
	o, err := p.GetOrder(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return o, true, nil
}

func (p *PostgresStore) SetHold(ctx context.Context, id, holdID string) error {
	res, err := p.db.ExecContext(ctx, `UPDATE orders SET hold_id=$1 WHERE id=$2`, holdID, id)
	if err != nil {
		return errs.Persistence("set hold", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errs.Persistence("set hold", err)
	}
	if n == 0 {
		return errs.ErrOrderNotFound
	}
	return nil
}

func (p *PostgresStore) StaleUnassigned(ctx context.Context, t models.OrderType, before time.Time) ([]*models.Order, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id, type, status, requester_id, pickup_lat, pickup_lon, COALESCE(dest_lat,0), COALESCE(dest_lon,0), required_class, estimated_fare, currency, COALESCE(driver_id,''), COALESCE(hold_id,''), payload, created_at, assigned_at, cancelled_at FROM orders WHERE type=$1 AND status=$2 AND driver_id IS NULL AND created_at < $3`,
		t, models.StatusPending, before)
	if err != nil {
		return nil, errs.Persistence("list stale orders", err)
	}
	defer rows.Close()
	var out []*models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (p *PostgresStore) Append(ctx context.Context, rec *models.CancellationRecord) error {
	_, err := p.db.ExecContext(ctx, `INSERT INTO cancellation_records(id, order_id, cancellation_type, prior_status, actor, refund_amount, currency, refund_status, created_at) VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		rec.ID, rec.OrderID, rec.Type, rec.PriorStatus, rec.Actor, rec.RefundAmount, rec.Currency, rec.RefundStatus, rec.CreatedAt)
	if err != nil {
		return errs.Persistence("append cancellation record", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*models.Order, error) {
	var o models.Order
	var payload []byte
	var assignedAt, cancelledAt sql.NullTime
	err := row.Scan(&o.ID, &o.Type, &o.Status, &o.RequesterID, &o.Pickup.Lat, &o.Pickup.Lon, &o.Destination.Lat, &o.Destination.Lon,
		&o.RequiredClass, &o.EstimatedFare, &o.Currency, &o.DriverID, &o.HoldID, &payload, &o.CreatedAt, &assignedAt, &cancelledAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.ErrOrderNotFound
	}
	if err != nil {
		return nil, errs.Persistence("scan order", err)
	}
	if assignedAt.Valid {
		o.AssignedAt = &assignedAt.Time
	}
	if cancelledAt.Valid {
		o.CancelledAt = &cancelledAt.Time
	}
	if err := applyPayload(&o, payload); err != nil {
		return nil, err
	}
	return &o, nil
}

// payloadJSON serializes the one type-specific detail struct. The column
// stays a single jsonb value keyed by the order type.
func payloadJSON(o *models.Order) ([]byte, error) {
	switch o.Type {
	case models.OrderTransport:
		return json.Marshal(o.Transport)
	case models.OrderDelivery:
		return json.Marshal(o.Delivery)
	case models.OrderMarketplace:
		return json.Marshal(o.Marketplace)
	}
	return []byte("null"), nil
}

func applyPayload(o *models.Order, payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	switch o.Type {
	case models.OrderTransport:
		return json.Unmarshal(payload, &o.Transport)
	case models.OrderDelivery:
		return json.Unmarshal(payload, &o.Delivery)
	case models.OrderMarketplace:
		return json.Unmarshal(payload, &o.Marketplace)
	}
	return nil
}
