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
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/innovationmech/atelier/internal/atelier/interfaces"
	"github.com/innovationmech/atelier/internal/atelier/workflows"
	"github.com/innovationmech/atelier/pkg/workflow/engine"
)

// orderRequest is the body of an approved-order callback.
type orderRequest struct {
	ProviderOrderID string `json:"provider_order_id" binding:"required"`
	ProductID       string `json:"product_id" binding:"required"`
}

// PublishProduct accepts the admin product form: title, description, price,
// currency and the image and document files. Without an Idempotency-Key
// header the key is derived from the form content, so a resubmitted form
// replays the first outcome.
func (h *Handler) PublishProduct(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)

	image, err := formAsset(c, "image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	document, err := formAsset(c, "document")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	input := workflows.PublishAssetBundleInput{
		Title:       c.PostForm("title"),
		Description: c.PostForm("description"),
		Price:       c.PostForm("price"),
		Currency:    c.DefaultPostForm("currency", "EUR"),
		Image:       image,
		Document:    document,
	}

	key := c.GetHeader(HeaderIdempotencyKey)
	if key == "" {
		key = contentKey(input)
	}

	out, err := h.workflows.Submit(c.Request.Context(), engine.Request{
		Workflow:       workflows.PublishAssetBundle,
		IdempotencyKey: key,
		Input:          input,
		Credential:     bearer(c),
	})
	h.respond(c, out, err)
}

// FulfillOrder completes an approved order. The idempotency key is derived
// from the provider order id, so a repeated callback replays the outcome.
func (h *Handler) FulfillOrder(c *gin.Context) {
	var req orderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	out, err := h.workflows.Submit(c.Request.Context(), engine.Request{
		Workflow:       workflows.FulfillPurchase,
		IdempotencyKey: workflows.OrderKey(req.ProviderOrderID),
		Input: workflows.FulfillPurchaseInput{
			ProviderOrderID: req.ProviderOrderID,
			ProductID:       req.ProductID,
		},
	})
	h.respond(c, out, err)
}

func formAsset(c *gin.Context, field string) (interfaces.Asset, error) {
	fh, err := c.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return interfaces.Asset{}, fmt.Errorf("%s file is required", field)
	}
	if err != nil {
		return interfaces.Asset{}, err
	}
	data, err := readFile(fh)
	if err != nil {
		return interfaces.Asset{}, fmt.Errorf("read %s: %w", field, err)
	}
	contentType := fh.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}
	return interfaces.Asset{Filename: fh.Filename, ContentType: contentType, Data: data}, nil
}

func readFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func contentKey(in workflows.PublishAssetBundleInput) string {
	h := sha256.New()
	for _, part := range [][]byte{
		[]byte(in.Title), []byte(in.Price), []byte(in.Currency),
		in.Image.Data, in.Document.Data,
	} {
		h.Write(part)
		h.Write([]byte{0})
	}
	return "product-" + hex.EncodeToString(h.Sum(nil))[:32]
}
