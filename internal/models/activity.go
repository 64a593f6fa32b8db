package models

import "time"

// ActivityEntry is append-only: rows are never updated or deleted.
type ActivityEntry struct {
	ID         string            `json:"id"`
	AdminID    string            `json:"admin_id"`
	Action     string            `json:"action"`
	EntityType string            `json:"entity_type"`
	EntityID   string            `json:"entity_id"`
	ClientID   *string           `json:"client_id,omitempty"`
	Details    map[string]string `json:"details,omitempty"`
	IPAddress  string            `json:"ip_address,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

const (
	ActionLogin              = "login"
	ActionClientCreated      = "client_created"
	ActionClientUpdated      = "client_updated"
	ActionClientArchived     = "client_archived"
	ActionProjectCreated     = "project_created"
	ActionProjectUpdated     = "project_updated"
	ActionPaymentRefunded    = "payment_refunded"
	ActionSubscriptionCancel = "subscription_canceled"
	ActionCheckoutCreated    = "checkout_created"
	ActionAccountCreated     = "account_created"
)
