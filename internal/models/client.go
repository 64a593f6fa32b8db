package models

import "time"

type ClientStatus string

const (
	ClientStatusActive   ClientStatus = "ACTIVE"
	ClientStatusInactive ClientStatus = "INACTIVE"
	ClientStatusArchived ClientStatus = "ARCHIVED"
)

// Client deletion is always a soft delete: status flips to ARCHIVED and the
// row stays, keeping payment history intact.
type Client struct {
	ID        string       `json:"id"`
	Email     string       `json:"email"`
	Name      string       `json:"name"`
	Company   *string      `json:"company,omitempty"`
	Phone     *string      `json:"phone,omitempty"`
	Notes     *string      `json:"notes,omitempty"`
	Status    ClientStatus `json:"status"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}
