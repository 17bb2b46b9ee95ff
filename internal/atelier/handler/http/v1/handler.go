// Copyright © 2025 jackelyj <dreamerlyj@gmail.com>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.
//

// Package v1 exposes the workflow engine over HTTP.
package v1

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/innovationmech/atelier/internal/atelier/workflows"
	"github.com/innovationmech/atelier/pkg/logger"
	"github.com/innovationmech/atelier/pkg/workflow"
	"github.com/innovationmech/atelier/pkg/workflow/engine"
	"github.com/innovationmech/atelier/pkg/workflow/idempotency"
)

// HeaderIdempotencyKey carries the caller chosen idempotency key.
const HeaderIdempotencyKey = "Idempotency-Key"

// WorkflowService is the engine surface used by the handlers.
type WorkflowService interface {
	Submit(ctx context.Context, req engine.Request) (*workflow.Outcome, error)
	Status(ctx context.Context, idempotencyKey string) (*workflow.Instance, error)
	Resume(ctx context.Context, idempotencyKey, credential string) (*workflow.Outcome, error)
}

// AvailabilityService answers availability queries.
type AvailabilityService interface {
	Availability(ctx context.Context, resource, date string) (*workflows.Availability, error)
}

// Handler serves the v1 API.
type Handler struct {
	workflows      WorkflowService
	calendar       AvailabilityService
	maxUploadBytes int64
	logger         *zap.Logger
}

// NewHandler creates a handler. maxUploadBytes bounds multipart requests.
func NewHandler(workflows WorkflowService, calendar AvailabilityService, maxUploadBytes int64) *Handler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = 32 << 20
	}
	return &Handler{
		workflows:      workflows,
		calendar:       calendar,
		maxUploadBytes: maxUploadBytes,
		logger:         logger.GetLogger().Named("http"),
	}
}

// RegisterRoutes mounts the API under /api/v1.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	api := r.Group("/api/v1")
	{
		// :id is a workflow name on submission and an idempotency key otherwise.
		api.POST("/workflows/:id", h.SubmitWorkflow)
		api.GET("/workflows/:id", h.GetWorkflow)
		api.POST("/workflows/:id/resume", h.ResumeWorkflow)

		api.GET("/availability", h.GetAvailability)
		api.POST("/admin/products", h.PublishProduct)
		api.POST("/orders", h.FulfillOrder)
	}
}

// bearer returns the credential of an "Authorization: Bearer" header.
func bearer(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}

// StatusCode maps an outcome to its HTTP status.
func StatusCode(out *workflow.Outcome) int {
	switch out.Kind {
	case workflow.OutcomeSuccess, workflow.OutcomeSuccessWithWarning:
		return http.StatusOK
	case workflow.OutcomeConflict:
		return http.StatusConflict
	}
	if out.Error != nil {
		switch out.Error.Kind {
		case workflow.KindValidation:
			return http.StatusBadRequest
		case workflow.KindUnauthorized:
			return http.StatusUnauthorized
		}
	}
	return http.StatusUnprocessableEntity
}

func (h *Handler) respond(c *gin.Context, out *workflow.Outcome, err error) {
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(StatusCode(out), out)
}

func (h *Handler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, workflow.ErrUnknownWorkflow), errors.Is(err, idempotency.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, engine.ErrEngineClosed):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		h.logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
