package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"atelier/api/internal/models"
)

func TestPagination(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		name       string
		query      string
		wantLimit  int
		wantOffset int
	}{
		{"defaults", "", 50, 0},
		{"explicit page size", "perPage=20", 20, 0},
		{"second page", "perPage=20&page=2", 20, 20},
		{"first page explicit", "perPage=20&page=1", 20, 0},
		{"oversized page size clamped", "perPage=9999", 50, 0},
		{"garbage ignored", "perPage=abc&page=-3", 50, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			c.Request = httptest.NewRequest(http.MethodGet, "/?"+tc.query, nil)
			limit, offset := pagination(c)
			assert.Equal(t, tc.wantLimit, limit)
			assert.Equal(t, tc.wantOffset, offset)
		})
	}
}

func TestStatusValidators(t *testing.T) {
	assert.True(t, validClientStatus(models.ClientStatusArchived))
	assert.False(t, validClientStatus("DELETED"))

	assert.True(t, validProjectStatus(models.ProjectStatusInProgress))
	assert.False(t, validProjectStatus("STARTED"))

	assert.True(t, validPaymentStatus(models.PaymentStatusRefunded))
	assert.False(t, validPaymentStatus("VOID"))

	assert.True(t, validPaymentType(models.PaymentTypeFinalPayment))
	assert.False(t, validPaymentType("TIP"))

	assert.True(t, validSubscriptionStatus(models.SubscriptionStatusPastDue))
	assert.False(t, validSubscriptionStatus("PAUSED"))
}
