package models

import "time"

type OrderType string

const (
	OrderTransport   OrderType = "transport"
	OrderDelivery    OrderType = "delivery"
	OrderMarketplace OrderType = "marketplace"
)

type OrderStatus string

const (
	StatusPending    OrderStatus = "pending"
	StatusAssigned   OrderStatus = "assigned"
	StatusInProgress OrderStatus = "in_progress"
	StatusCompleted  OrderStatus = "completed"
	StatusCancelled  OrderStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s OrderStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

var transitions = map[OrderStatus][]OrderStatus{
	StatusPending:    {StatusAssigned, StatusCancelled},
	StatusAssigned:   {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted},
}

// CanTransition reports whether from → to is a legal lifecycle move.
func CanTransition(from, to OrderStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type DeliveryMode string

const (
	DeliveryStandard DeliveryMode = "standard"
	DeliveryExpress  DeliveryMode = "express"
	DeliveryFreight  DeliveryMode = "freight"
)

// Order is the common header shared by all verticals; exactly one of the
// payload pointers is set, keyed by Type.
type Order struct {
	ID            string       `json:"id"`
	Type          OrderType    `json:"type"`
	Status        OrderStatus  `json:"status"`
	RequesterID   string       `json:"requester_id"`
	Pickup        Coord        `json:"pickup_coord"`
	Destination   Coord        `json:"destination_coord,omitempty"`
	RequiredClass VehicleClass `json:"required_class"`
	EstimatedFare int64        `json:"estimated_fare"`
	Currency      string       `json:"currency"`
	DriverID      string       `json:"driver_id,omitempty"`
	HoldID        string       `json:"hold_id,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	AssignedAt    *time.Time   `json:"assigned_at,omitempty"`
	CancelledAt   *time.Time   `json:"cancelled_at,omitempty"`

	Transport   *TransportDetails   `json:"transport,omitempty"`
	Delivery    *DeliveryDetails    `json:"delivery,omitempty"`
	Marketplace *MarketplaceDetails `json:"marketplace,omitempty"`
}

type TransportDetails struct {
	PassengerCount int `json:"passenger_count"`
}

type DeliveryDetails struct {
	Mode       DeliveryMode `json:"mode"`
	ParcelNote string       `json:"parcel_note,omitempty"`
}

type MarketplaceDetails struct {
	SellerID string `json:"seller_id"`
	BuyerID  string `json:"buyer_id"`
}

// NeededClass resolves the vehicle class an order actually requires.
// Delivery modes override the header class: express parcels ride on
// two-wheelers, freight needs a truck.
func (o *Order) NeededClass() (VehicleClass, bool) {
	if o.Type == OrderDelivery && o.Delivery != nil {
		switch o.Delivery.Mode {
		case DeliveryExpress:
			return ClassMotorbike, true
		case DeliveryFreight:
			return ClassTruck, true
		}
	}
	if o.RequiredClass == "" {
		return "", false
	}
	return o.RequiredClass, true
}

// Counterparty returns the second party to notify on cancellation, if any.
// Only marketplace orders have one (the seller when the buyer requested,
// and vice versa).
func (o *Order) Counterparty() string {
	if o.Type != OrderMarketplace || o.Marketplace == nil {
		return ""
	}
	if o.RequesterID == o.Marketplace.SellerID {
		return o.Marketplace.BuyerID
	}
	return o.Marketplace.SellerID
}
