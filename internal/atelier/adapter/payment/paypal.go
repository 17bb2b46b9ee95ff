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

// Package payment captures approved orders through a PayPal compatible
// checkout API authenticated with OAuth2 client credentials.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/innovationmech/atelier/internal/atelier/interfaces"
	"github.com/innovationmech/atelier/pkg/logger"
	"github.com/innovationmech/atelier/pkg/workflow"
)

// ErrAmountMismatch is returned when the captured amount differs from the expected one.
var ErrAmountMismatch = errors.New("captured amount does not match product price")

// Config configures the checkout API client.
type Config struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
}

// Client implements interfaces.PaymentProcessor.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// NewClient creates a client whose requests carry a client credentials token.
// base, when set, is the transport used for token and API requests.
func NewClient(ctx context.Context, cfg Config, base *http.Client) (*Client, error) {
	if cfg.BaseURL == "" || cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("payment base url, client id and client secret are required")
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")

	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     baseURL + "/v1/oauth2/token",
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	if base != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, base)
	}
	httpClient := cc.Client(ctx)
	if cfg.Timeout > 0 {
		httpClient.Timeout = cfg.Timeout
	}

	return &Client{
		baseURL: baseURL,
		http:    httpClient,
		logger:  logger.GetLogger().Named("payment"),
	}, nil
}

type money struct {
	Value        string `json:"value"`
	CurrencyCode string `json:"currency_code"`
}

type captureResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Payer  struct {
		EmailAddress string `json:"email_address"`
		Name         struct {
			GivenName string `json:"given_name"`
			Surname   string `json:"surname"`
		} `json:"name"`
	} `json:"payer"`
	PurchaseUnits []struct {
		Payments struct {
			Captures []struct {
				ID     string `json:"id"`
				Status string `json:"status"`
				Amount money  `json:"amount"`
			} `json:"captures"`
		} `json:"payments"`
	} `json:"purchase_units"`
}

type apiError struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	Details []struct {
		Issue string `json:"issue"`
	} `json:"details"`
}

// Capture implements interfaces.PaymentProcessor. The request id header makes
// a repeated capture return the original result instead of charging twice.
func (c *Client) Capture(ctx context.Context, intent interfaces.OrderIntent) (interfaces.PaymentResult, error) {
	if intent.ProviderOrderID == "" {
		return interfaces.PaymentResult{}, workflow.Permanent(errors.New("provider order id is required"))
	}

	endpoint := fmt.Sprintf("%s/v2/checkout/orders/%s/capture", c.baseURL, url.PathEscape(intent.ProviderOrderID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader([]byte("{}")))
	if err != nil {
		return interfaces.PaymentResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "return=representation")
	if intent.RequestID != "" {
		req.Header.Set("PayPal-Request-Id", intent.RequestID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return interfaces.PaymentResult{}, fmt.Errorf("capture %s: %w", intent.ProviderOrderID, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return interfaces.PaymentResult{}, err
	}

	if resp.StatusCode >= 400 {
		var apiErr apiError
		_ = json.Unmarshal(data, &apiErr)
		err := fmt.Errorf("capture %s: provider returned %d %s", intent.ProviderOrderID, resp.StatusCode, describe(apiErr))
		if resp.StatusCode >= 500 {
			return interfaces.PaymentResult{}, err
		}
		return interfaces.PaymentResult{}, workflow.Permanent(err)
	}

	var body captureResponse
	if err := json.Unmarshal(data, &body); err != nil {
		return interfaces.PaymentResult{}, fmt.Errorf("decode capture response: %w", err)
	}
	if body.Status != "COMPLETED" || len(body.PurchaseUnits) == 0 || len(body.PurchaseUnits[0].Payments.Captures) == 0 {
		return interfaces.PaymentResult{}, workflow.Permanent(fmt.Errorf("capture %s: order status %s", intent.ProviderOrderID, body.Status))
	}

	capture := body.PurchaseUnits[0].Payments.Captures[0]
	if intent.Amount != "" && (capture.Amount.Value != intent.Amount || !strings.EqualFold(capture.Amount.CurrencyCode, intent.Currency)) {
		return interfaces.PaymentResult{}, workflow.Permanent(fmt.Errorf("%w: got %s %s, want %s %s", ErrAmountMismatch,
			capture.Amount.Value, capture.Amount.CurrencyCode, intent.Amount, intent.Currency))
	}

	c.logger.Info("payment captured",
		zap.String("provider_order_id", intent.ProviderOrderID),
		zap.String("capture_id", capture.ID),
		zap.String("amount", capture.Amount.Value),
		zap.String("currency", capture.Amount.CurrencyCode))

	return interfaces.PaymentResult{
		CaptureID:  capture.ID,
		PayerEmail: body.Payer.EmailAddress,
		PayerName:  strings.TrimSpace(body.Payer.Name.GivenName + " " + body.Payer.Name.Surname),
		Amount:     capture.Amount.Value,
		Currency:   capture.Amount.CurrencyCode,
	}, nil
}

func describe(e apiError) string {
	parts := []string{e.Name}
	for _, d := range e.Details {
		parts = append(parts, d.Issue)
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}
