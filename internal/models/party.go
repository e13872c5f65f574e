package models

import (
	"time"

	"github.com/google/uuid"
)

// Client and Matter are the registry rows the wider platform maintains.
// The trust engine only checks existence and ownership against them before
// creating a ledger.

type Client struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name      string    `gorm:"index" json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type Matter struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ClientID  uuid.UUID `gorm:"type:uuid;index" json:"client_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}
