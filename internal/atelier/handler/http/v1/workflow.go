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

package v1

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/innovationmech/atelier/pkg/workflow/engine"
)

// SubmitWorkflow runs the workflow named in the path with the JSON body as input.
func (h *Handler) SubmitWorkflow(c *gin.Context) {
	key := c.GetHeader(HeaderIdempotencyKey)
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": HeaderIdempotencyKey + " header is required"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, h.maxUploadBytes+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if int64(len(body)) > h.maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body too large"})
		return
	}
	if len(body) > 0 && !json.Valid(body) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "request body is not valid JSON"})
		return
	}

	out, err := h.workflows.Submit(c.Request.Context(), engine.Request{
		Workflow:       c.Param("id"),
		IdempotencyKey: key,
		Input:          json.RawMessage(body),
		Credential:     bearer(c),
	})
	h.respond(c, out, err)
}

// GetWorkflow returns the instance stored for an idempotency key. The
// submitted input is omitted.
func (h *Handler) GetWorkflow(c *gin.Context) {
	inst, err := h.workflows.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	view := *inst
	view.Input = nil
	c.JSON(http.StatusOK, &view)
}

// ResumeWorkflow continues a stalled instance.
func (h *Handler) ResumeWorkflow(c *gin.Context) {
	out, err := h.workflows.Resume(c.Request.Context(), c.Param("id"), bearer(c))
	h.respond(c, out, err)
}

// GetAvailability lists the bookable hours of a date.
func (h *Handler) GetAvailability(c *gin.Context) {
	date := c.Query("date")
	if date == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date is required"})
		return
	}
	avail, err := h.calendar.Availability(c.Request.Context(), c.Query("resource"), date)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, avail)
}
