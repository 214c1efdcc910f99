// Package model holds the order domain types.
package model

import "time"

// Order statuses. Any status may be set from any other: the lifecycle
// is deliberately permissive and imposes no forward-only ordering.
const (
	StatusUnderProcess = "under process"
	StatusShipping     = "shipping"
	StatusDelivered    = "delivered"
)

func ValidStatus(s string) bool {
	switch s {
	case StatusUnderProcess, StatusShipping, StatusDelivered:
		return true
	default:
		return false
	}
}

type Item struct {
	ItemID string `json:"itemId"`
	Qty    int    `json:"qty"`
}

// Order denormalizes the user's email and delivery address at creation
// time. Both are snapshots, not foreign keys: they drift from the user
// record until a sync event moves them forward.
type Order struct {
	ID              string    `json:"id"`
	Items           []Item    `json:"items"`
	UserEmail       string    `json:"userEmail"`
	DeliveryAddress string    `json:"deliveryAddress"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}
