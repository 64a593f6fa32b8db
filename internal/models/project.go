package models

import "time"

type ProjectStatus string

const (
	ProjectStatusDraft      ProjectStatus = "DRAFT"
	ProjectStatusInProgress ProjectStatus = "IN_PROGRESS"
	ProjectStatusReview     ProjectStatus = "REVIEW"
	ProjectStatusCompleted  ProjectStatus = "COMPLETED"
	ProjectStatusCanceled   ProjectStatus = "CANCELED"
)

type Project struct {
	ID          string        `json:"id"`
	ClientID    string        `json:"client_id"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Status      ProjectStatus `json:"status"`
	BudgetCents int64         `json:"budget_cents"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}
