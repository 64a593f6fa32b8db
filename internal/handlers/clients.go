package handlers

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	"atelier/api/internal/apperr"
	"atelier/api/internal/ids"
	"atelier/api/internal/middleware"
	"atelier/api/internal/models"
	"atelier/api/internal/repository"
)

func (h HandlerSet) ListClients(c *gin.Context) {
	filters := repository.NewFilters()
	if status := c.Query("status"); status != "" {
		if !validClientStatus(models.ClientStatus(status)) {
			h.fail(c, apperr.Validation("invalid client status"))
			return
		}
		filters.Eq("status", status)
	}
	if search := strings.TrimSpace(c.Query("search")); search != "" {
		filters.Search(search, "name", "email", "company")
	}

	limit, offset := pagination(c)
	clients, err := h.clients.List(c.Request.Context(), filters, limit, offset)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, gin.H{"clients": clients})
}

// GetClient returns the client together with its projects, subscriptions and
// most recent payments.
func (h HandlerSet) GetClient(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	client, err := h.clients.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrClientNotFound) {
			h.fail(c, apperr.NotFound("client not found"))
			return
		}
		h.fail(c, err)
		return
	}

	projects, err := h.projects.ListByClient(ctx, client.ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	subscriptions, err := h.subscriptions.ListByClient(ctx, client.ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	payments, err := h.payments.ListByClient(ctx, client.ID, 10)
	if err != nil {
		h.fail(c, err)
		return
	}

	h.ok(c, gin.H{
		"client":        client,
		"projects":      projects,
		"subscriptions": subscriptions,
		"payments":      payments,
	})
}

type createClientRequest struct {
	Email   string  `json:"email" binding:"required,email"`
	Name    string  `json:"name" binding:"required"`
	Company *string `json:"company"`
	Phone   *string `json:"phone"`
	Notes   *string `json:"notes"`
}

func (h HandlerSet) CreateClient(c *gin.Context) {
	var req createClientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.failValidation(c, err)
		return
	}

	client := models.Client{
		ID:      ids.New(),
		Email:   strings.TrimSpace(strings.ToLower(req.Email)),
		Name:    strings.TrimSpace(req.Name),
		Company: req.Company,
		Phone:   req.Phone,
		Notes:   req.Notes,
		Status:  models.ClientStatusActive,
	}

	if err := h.clients.Create(c.Request.Context(), client); err != nil {
		if repository.IsUniqueViolation(err) {
			h.fail(c, apperr.Conflict("a client with this email already exists"))
			return
		}
		h.fail(c, err)
		return
	}

	created, err := h.clients.GetByID(c.Request.Context(), client.ID)
	if err != nil {
		h.fail(c, err)
		return
	}

	h.recordAdminActivity(c, models.ActionClientCreated, "client", created.ID, &created.ID, nil)
	h.created(c, gin.H{"client": created})
}

type updateClientRequest struct {
	Name    *string `json:"name"`
	Company *string `json:"company"`
	Phone   *string `json:"phone"`
	Notes   *string `json:"notes"`
	Status  *string `json:"status"`
}

func (h HandlerSet) UpdateClient(c *gin.Context) {
	var req updateClientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.failValidation(c, err)
		return
	}

	ctx := c.Request.Context()
	client, err := h.clients.GetByID(ctx, c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrClientNotFound) {
			h.fail(c, apperr.NotFound("client not found"))
			return
		}
		h.fail(c, err)
		return
	}

	if req.Name != nil {
		if strings.TrimSpace(*req.Name) == "" {
			h.fail(c, apperr.Validation("name must not be empty"))
			return
		}
		client.Name = strings.TrimSpace(*req.Name)
	}
	if req.Company != nil {
		client.Company = req.Company
	}
	if req.Phone != nil {
		client.Phone = req.Phone
	}
	if req.Notes != nil {
		client.Notes = req.Notes
	}
	if req.Status != nil {
		status := models.ClientStatus(*req.Status)
		if !validClientStatus(status) {
			h.fail(c, apperr.Validation("invalid client status"))
			return
		}
		client.Status = status
	}

	if err := h.clients.Update(ctx, client); err != nil {
		if errors.Is(err, repository.ErrClientNotFound) {
			h.fail(c, apperr.NotFound("client not found"))
			return
		}
		h.fail(c, err)
		return
	}

	updated, err := h.clients.GetByID(ctx, client.ID)
	if err != nil {
		h.fail(c, err)
		return
	}

	h.recordAdminActivity(c, models.ActionClientUpdated, "client", updated.ID, &updated.ID, nil)
	h.ok(c, gin.H{"client": updated})
}

func (h HandlerSet) ArchiveClient(c *gin.Context) {
	id := c.Param("id")
	if err := h.clients.Archive(c.Request.Context(), id); err != nil {
		if errors.Is(err, repository.ErrClientNotFound) {
			h.fail(c, apperr.NotFound("client not found"))
			return
		}
		h.fail(c, err)
		return
	}

	h.recordAdminActivity(c, models.ActionClientArchived, "client", id, &id, nil)
	h.ok(c, gin.H{"archived": true})
}

func validClientStatus(status models.ClientStatus) bool {
	switch status {
	case models.ClientStatusActive, models.ClientStatusInactive, models.ClientStatusArchived:
		return true
	}
	return false
}

// recordAdminActivity writes one audit entry attributed to the admin resolved
// by the auth gate. Best-effort by construction: Record never returns an error.
func (h HandlerSet) recordAdminActivity(c *gin.Context, action, entityType, entityID string, clientID *string, details map[string]string) {
	admin, _ := middleware.CurrentAdmin(c)
	h.activity.Record(c.Request.Context(), models.ActivityEntry{
		AdminID:    admin.ID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		ClientID:   clientID,
		Details:    details,
		IPAddress:  c.ClientIP(),
	})
}
