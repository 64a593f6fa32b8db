package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"atelier/api/internal/apperr"
)

func (h HandlerSet) ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data})
}

func (h HandlerSet) created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, gin.H{"success": true, "data": data})
}

// fail maps a classified error onto the response envelope. Internal detail is
// logged, never returned.
func (h HandlerSet) fail(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.log.Error().
			Err(err).
			Str("path", c.Request.URL.Path).
			Msg("request failed")
	}
	c.JSON(status, gin.H{"success": false, "error": apperr.Message(err)})
}

func (h HandlerSet) failValidation(c *gin.Context, err error) {
	h.fail(c, apperr.Wrap(apperr.KindValidation, err.Error(), err))
}

func pagination(c *gin.Context) (limit, offset int) {
	limit = 50
	offset = 0

	if perPage := c.Query("perPage"); perPage != "" {
		if v, err := strconv.Atoi(perPage); err == nil && v > 0 && v <= 200 {
			limit = v
		}
	}
	if page := c.Query("page"); page != "" {
		if v, err := strconv.Atoi(page); err == nil && v > 1 {
			offset = (v - 1) * limit
		}
	}
	return limit, offset
}
