package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	appintegration "github.com/mendlyio/LaCabrade-V4/internal/application/integration"
	"github.com/mendlyio/LaCabrade-V4/internal/domain/integration"
	"github.com/mendlyio/LaCabrade-V4/internal/domain/shared"
	"github.com/mendlyio/LaCabrade-V4/internal/infrastructure/logger"
	"github.com/mendlyio/LaCabrade-V4/internal/interfaces/http/dto"
	"github.com/mendlyio/LaCabrade-V4/internal/interfaces/http/middleware"
)

const ginRequestIDKey = "request_id"

// BaseHandler provides common handler utilities
type BaseHandler struct{}

func getRequestID(c *gin.Context) string {
	if id := c.GetString(ginRequestIDKey); id != "" {
		return id
	}
	return c.GetHeader(logger.RequestIDHeader)
}

// Success sends a success response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// Accepted sends a 202 response
func (h *BaseHandler) Accepted(c *gin.Context, data any) {
	c.JSON(http.StatusAccepted, dto.NewSuccessResponse(data))
}

// NoContent sends a 204 no content response
func (h *BaseHandler) NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// Error sends an error response with the appropriate status code
func (h *BaseHandler) Error(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, dto.NewErrorResponseWithRequestID(code, message, getRequestID(c)))
}

// ErrorWithCode sends an error response, deriving status code from error code
func (h *BaseHandler) ErrorWithCode(c *gin.Context, code, message string) {
	h.Error(c, dto.GetHTTPStatus(code), code, message)
}

// BadRequest sends a 400 bad request response
func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	h.Error(c, http.StatusBadRequest, dto.ErrCodeBadRequest, message)
}

// BindError answers a request whose body or query failed to bind
func (h *BaseHandler) BindError(c *gin.Context, err error) {
	middleware.HandleValidationError(c, err)
}

// errorMapping pairs a sentinel error with its API code
type errorMapping struct {
	target error
	code   string
}

var errorMappings = []errorMapping{
	{integration.ErrERPNotConfigured, dto.ErrCodeERPNotConfigured},
	{integration.ErrERPUnavailable, dto.ErrCodeERPUnavailable},
	{integration.ErrERPAuthFailed, dto.ErrCodeERPAuth},
	{integration.ErrERPSessionExpired, dto.ErrCodeERPAuth},
	{integration.ErrERPRequestFailed, dto.ErrCodeERPFailed},
	{integration.ErrERPInvalidResponse, dto.ErrCodeERPFailed},
	{integration.ErrLocalProductNotFound, dto.ErrCodeNotFound},
	{integration.ErrLocalVariantNotFound, dto.ErrCodeNotFound},
	{integration.ErrInventoryItemMissing, dto.ErrCodeNotFound},
	{integration.ErrStockNotFound, dto.ErrCodeNotFound},
	{integration.ErrNoStockLocation, dto.ErrCodeConflict},
	{integration.ErrEmptyProductSelection, dto.ErrCodeInvalidInput},
	{integration.ErrInvalidPageRequest, dto.ErrCodeInvalidInput},
	{integration.ErrInvalidExternalID, dto.ErrCodeInvalidInput},
	{integration.ErrInvalidOrder, dto.ErrCodeInvalidInput},
	{appintegration.ErrMissingSKU, dto.ErrCodeInvalidInput},
}

// HandleError maps service errors to the error envelope. Unknown errors are
// logged and answered 500 without their message.
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)

	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		h.ErrorWithCode(c, dto.NormalizeErrorCode(domainErr.Code), domainErr.Message)
		return
	}

	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			h.ErrorWithCode(c, m.code, err.Error())
			return
		}
	}

	logger.GetGinLogger(c).Error("unhandled error", zap.Error(err))
	h.Error(c, http.StatusInternalServerError, dto.ErrCodeInternal, "An unexpected error occurred")
}
