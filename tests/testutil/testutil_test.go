package testutil

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestNewMockDB(t *testing.T) {
	mockDB := NewMockDB(t)

	assert.NotNil(t, mockDB.DB)
	assert.NotNil(t, mockDB.Mock)
	mockDB.ExpectationsWereMet(t)
}

func TestTestContext(t *testing.T) {
	tc := NewTestContext(t)
	assert.Equal(t, http.MethodGet, tc.Context.Request.Method)

	tc.SetRequestID("req-123")
	val, exists := tc.Context.Get("X-Request-ID")
	assert.True(t, exists)
	assert.Equal(t, "req-123", val)

	tc.SetParam("sku", "TS-S")
	assert.Equal(t, "TS-S", tc.Context.Param("sku"))

	tc.SetHeader("X-Custom", "v")
	assert.Equal(t, "v", tc.Context.Request.Header.Get("X-Custom"))
}

func TestNewTestUUID_Deterministic(t *testing.T) {
	assert.Equal(t, NewTestUUID("a"), NewTestUUID("a"))
	assert.NotEqual(t, NewTestUUID("a"), NewTestUUID("b"))
}

func TestRunHTTPTestCases(t *testing.T) {
	echo := func(c *gin.Context) {
		var body map[string]any
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error":   gin.H{"code": "ERR_VALIDATION"},
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "sku": c.Param("sku")})
	}

	RunHTTPTestCases(t, echo, []HTTPTestCase{
		{
			Name:           "ok",
			Method:         http.MethodPut,
			Body:           map[string]any{"quantity": 3},
			Setup:          func(_ *testing.T, tc *TestContext) { tc.SetParam("sku", "TS-S") },
			ExpectedStatus: http.StatusOK,
			ExpectedBody:   map[string]any{"success": true, "sku": "TS-S"},
		},
		{
			Name:           "invalid body",
			Method:         http.MethodPut,
			ExpectedStatus: http.StatusBadRequest,
			Validate: func(t *testing.T, tc *TestContext) {
				AssertErrorResponse(t, tc, "ERR_VALIDATION")
			},
		},
	})
}

func TestMockEventHandler(t *testing.T) {
	h := NewMockEventHandler("order.placed")
	assert.Equal(t, []string{"order.placed"}, h.EventTypes())

	event := NewTestEvent("order.placed")
	assert.NoError(t, h.Handle(ContextWithTimeout(t, time.Second), event))

	h.SetError(errors.New("boom"))
	assert.Error(t, h.Handle(ContextWithTimeout(t, time.Second), event))

	WaitForEventCount(t, h, 2, time.Second)
	assert.Len(t, h.Handled(), 2)
	assert.Equal(t, "order.placed", h.Handled()[0].EventType())
}
