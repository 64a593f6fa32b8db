package handlers

import (
	"github.com/gin-gonic/gin"

	"atelier/api/internal/repository"
)

func (h HandlerSet) ListActivity(c *gin.Context) {
	filters := repository.NewFilters()
	if adminID := c.Query("admin_id"); adminID != "" {
		filters.Eq("admin_id", adminID)
	}
	if clientID := c.Query("client_id"); clientID != "" {
		filters.Eq("client_id", clientID)
	}
	if action := c.Query("action"); action != "" {
		filters.Eq("action", action)
	}

	limit, offset := pagination(c)
	entries, err := h.activityLog.List(c.Request.Context(), filters, limit, offset)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, gin.H{"entries": entries})
}
