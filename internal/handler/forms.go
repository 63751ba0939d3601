package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/trialworks/formengine/internal/repository"
	"github.com/trialworks/formengine/internal/service"
	"github.com/trialworks/formengine/pkg/model"
	"go.uber.org/zap"
)

// RegisterProtocolRequest carries a visit's ordered field list.
type RegisterProtocolRequest struct {
	Name   string              `json:"name"`
	Fields []model.FieldSchema `json:"fields" binding:"required"`
}

// RegisterProtocolResponse returns the generated protocol id.
type RegisterProtocolResponse struct {
	ProtocolID string `json:"protocolId"`
}

// ProtocolResponse returns a registered form definition.
type ProtocolResponse struct {
	ProtocolID string              `json:"protocolId"`
	Name       string              `json:"name"`
	Fields     []model.FieldSchema `json:"fields"`
}

// EvaluateRequest carries the values entered so far.
type EvaluateRequest struct {
	Values map[string]any `json:"values"`
}

// SubmitRequest carries the final values and the visit identification.
type SubmitRequest struct {
	Values map[string]any  `json:"values"`
	Visit  model.VisitInfo `json:"visit"`
}

// SubmitBlockedResponse is returned with 422 when error-severity findings
// prevent serialization.
type SubmitBlockedResponse struct {
	Code     string          `json:"code"`
	Message  string          `json:"message"`
	Findings []model.Finding `json:"findings"`
}

// FormHandler implements the form engine API endpoints
type FormHandler struct {
	service *service.FormService
	logger  *zap.Logger
}

// NewFormHandler creates a new FormHandler
func NewFormHandler(service *service.FormService, logger *zap.Logger) *FormHandler {
	return &FormHandler{
		service: service,
		logger:  logger,
	}
}

// PostProtocols registers a visit form definition
func (h *FormHandler) PostProtocols(c *gin.Context) {
	var req RegisterProtocolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("invalid request body", zap.Error(err))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "Invalid request body",
			Details: stringPtr(err.Error()),
		})
		return
	}

	id, err := h.service.RegisterProtocol(c.Request.Context(), req.Name, req.Fields)
	if err != nil {
		h.logger.Error("failed to register protocol", zap.Error(err))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "INVALID_SCHEMA",
			Message: "Failed to register protocol",
			Details: stringPtr(err.Error()),
		})
		return
	}

	c.JSON(http.StatusCreated, RegisterProtocolResponse{ProtocolID: id})
}

// GetProtocol returns a registered form definition
func (h *FormHandler) GetProtocol(c *gin.Context) {
	id := c.Param("id")

	p, err := h.service.GetProtocol(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrProtocolNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Code:    "NOT_FOUND",
				Message: "Protocol not found",
			})
			return
		}
		h.logger.Error("failed to get protocol", zap.Error(err), zap.String("protocol_id", id))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Code:    "INTERNAL_ERROR",
			Message: "Failed to get protocol",
			Details: stringPtr(err.Error()),
		})
		return
	}

	c.JSON(http.StatusOK, ProtocolResponse{
		ProtocolID: p.ID,
		Name:       p.Name,
		Fields:     p.Fields,
	})
}

// PostEvaluate runs visibility, calculation and validation over the
// entered values without submitting
func (h *FormHandler) PostEvaluate(c *gin.Context) {
	id := c.Param("id")

	var req EvaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("invalid request body", zap.Error(err))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "Invalid request body",
			Details: stringPtr(err.Error()),
		})
		return
	}

	result, err := h.service.Evaluate(c.Request.Context(), id, req.Values)
	if err != nil {
		if errors.Is(err, repository.ErrProtocolNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Code:    "NOT_FOUND",
				Message: "Protocol not found",
			})
			return
		}
		h.logger.Error("failed to evaluate form", zap.Error(err), zap.String("protocol_id", id))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Code:    "INTERNAL_ERROR",
			Message: "Failed to evaluate form",
			Details: stringPtr(err.Error()),
		})
		return
	}

	c.JSON(http.StatusOK, result)
}

// PostSubmit validates the entered values and returns the canonical visit
// record, or 422 with the blocking findings
func (h *FormHandler) PostSubmit(c *gin.Context) {
	id := c.Param("id")

	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("invalid request body", zap.Error(err))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "Invalid request body",
			Details: stringPtr(err.Error()),
		})
		return
	}

	record, findings, err := h.service.Submit(c.Request.Context(), id, req.Values, req.Visit)
	if err != nil {
		if errors.Is(err, service.ErrValidationBlocked) {
			c.JSON(http.StatusUnprocessableEntity, SubmitBlockedResponse{
				Code:     "VALIDATION_BLOCKED",
				Message:  "Submission blocked by validation errors",
				Findings: findings,
			})
			return
		}
		if errors.Is(err, repository.ErrProtocolNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Code:    "NOT_FOUND",
				Message: "Protocol not found",
			})
			return
		}
		h.logger.Error("failed to submit form", zap.Error(err), zap.String("protocol_id", id))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Code:    "INTERNAL_ERROR",
			Message: "Failed to submit form",
			Details: stringPtr(err.Error()),
		})
		return
	}

	c.JSON(http.StatusOK, record)
}
