package models

import (
	"time"

	"github.com/google/uuid"
)

// PushSubscription is a browser push endpoint registered by a technician.
type PushSubscription struct {
	ID           uuid.UUID `db:"id"            json:"id"`
	TechnicianID uuid.UUID `db:"technician_id" json:"technician_id"`
	Endpoint     string    `db:"endpoint"      json:"endpoint"`
	P256dh       string    `db:"p256dh"        json:"p256dh"`
	Auth         string    `db:"auth"          json:"auth"`
	CreatedAt    time.Time `db:"created_at"    json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"    json:"updated_at"`
}
