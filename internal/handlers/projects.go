package handlers

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	"atelier/api/internal/apperr"
	"atelier/api/internal/ids"
	"atelier/api/internal/models"
	"atelier/api/internal/repository"
)

func (h HandlerSet) ListProjects(c *gin.Context) {
	filters := repository.NewFilters()
	if clientID := c.Query("client_id"); clientID != "" {
		filters.Eq("client_id", clientID)
	}
	if status := c.Query("status"); status != "" {
		if !validProjectStatus(models.ProjectStatus(status)) {
			h.fail(c, apperr.Validation("invalid project status"))
			return
		}
		filters.Eq("status", status)
	}

	limit, offset := pagination(c)
	projects, err := h.projects.List(c.Request.Context(), filters, limit, offset)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, gin.H{"projects": projects})
}

type createProjectRequest struct {
	ClientID    string `json:"client_id" binding:"required"`
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	BudgetCents int64  `json:"budget_cents" binding:"omitempty,gte=0"`
	Status      string `json:"status"`
}

func (h HandlerSet) CreateProject(c *gin.Context) {
	var req createProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.failValidation(c, err)
		return
	}

	status := models.ProjectStatusDraft
	if req.Status != "" {
		status = models.ProjectStatus(req.Status)
		if !validProjectStatus(status) {
			h.fail(c, apperr.Validation("invalid project status"))
			return
		}
	}

	ctx := c.Request.Context()
	if _, err := h.clients.GetByID(ctx, req.ClientID); err != nil {
		if errors.Is(err, repository.ErrClientNotFound) {
			h.fail(c, apperr.Validation("client does not exist"))
			return
		}
		h.fail(c, err)
		return
	}

	project := models.Project{
		ID:          ids.New(),
		ClientID:    req.ClientID,
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		Status:      status,
		BudgetCents: req.BudgetCents,
	}
	if err := h.projects.Create(ctx, project); err != nil {
		h.fail(c, err)
		return
	}

	created, err := h.projects.GetByID(ctx, project.ID)
	if err != nil {
		h.fail(c, err)
		return
	}

	h.recordAdminActivity(c, models.ActionProjectCreated, "project", created.ID, &created.ClientID, nil)
	h.created(c, gin.H{"project": created})
}

type updateProjectRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	BudgetCents *int64  `json:"budget_cents"`
	Status      *string `json:"status"`
}

func (h HandlerSet) UpdateProject(c *gin.Context) {
	var req updateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.failValidation(c, err)
		return
	}

	ctx := c.Request.Context()
	project, err := h.projects.GetByID(ctx, c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrProjectNotFound) {
			h.fail(c, apperr.NotFound("project not found"))
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
		project.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		project.Description = *req.Description
	}
	if req.BudgetCents != nil {
		if *req.BudgetCents < 0 {
			h.fail(c, apperr.Validation("budget_cents must not be negative"))
			return
		}
		project.BudgetCents = *req.BudgetCents
	}
	if req.Status != nil {
		status := models.ProjectStatus(*req.Status)
		if !validProjectStatus(status) {
			h.fail(c, apperr.Validation("invalid project status"))
			return
		}
		project.Status = status
	}

	if err := h.projects.Update(ctx, project); err != nil {
		if errors.Is(err, repository.ErrProjectNotFound) {
			h.fail(c, apperr.NotFound("project not found"))
			return
		}
		h.fail(c, err)
		return
	}

	updated, err := h.projects.GetByID(ctx, project.ID)
	if err != nil {
		h.fail(c, err)
		return
	}

	h.recordAdminActivity(c, models.ActionProjectUpdated, "project", updated.ID, &updated.ClientID, nil)
	h.ok(c, gin.H{"project": updated})
}

func validProjectStatus(status models.ProjectStatus) bool {
	switch status {
	case models.ProjectStatusDraft, models.ProjectStatusInProgress, models.ProjectStatusReview,
		models.ProjectStatusCompleted, models.ProjectStatusCanceled:
		return true
	}
	return false
}
