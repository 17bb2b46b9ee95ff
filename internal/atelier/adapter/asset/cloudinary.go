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

// Package asset uploads product images and documents to a Cloudinary
// compatible media API.
package asset

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/innovationmech/atelier/internal/atelier/interfaces"
	"github.com/innovationmech/atelier/pkg/logger"
	"github.com/innovationmech/atelier/pkg/workflow"
)

// Config configures the media API client.
type Config struct {
	APIBaseURL      string
	DeliveryBaseURL string
	CloudName       string
	APIKey          string
	APISecret       string
	Folder          string
	Timeout         time.Duration
}

// Validate checks the required credentials.
func (c *Config) Validate() error {
	if c.APIBaseURL == "" || c.DeliveryBaseURL == "" {
		return errors.New("asset api and delivery base urls are required")
	}
	if c.CloudName == "" || c.APIKey == "" || c.APISecret == "" {
		return errors.New("asset cloud name, api key and api secret are required")
	}
	return nil
}

// Store implements interfaces.AssetStore.
type Store struct {
	config Config
	client *http.Client
	now    func() time.Time
	logger *zap.Logger
}

// NewStore creates a media API client.
func NewStore(cfg Config, client *http.Client) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &Store{
		config: cfg,
		client: client,
		now:    time.Now,
		logger: logger.GetLogger().Named("asset"),
	}, nil
}

// resourceType maps an asset kind to the API resource type.
func resourceType(kind interfaces.AssetKind) string {
	if kind == interfaces.AssetDocument {
		return "raw"
	}
	return "image"
}

type uploadResponse struct {
	PublicID  string `json:"public_id"`
	SecureURL string `json:"secure_url"`
}

// Upload implements interfaces.AssetStore. The upload overwrites an existing
// asset with the same public id.
func (s *Store) Upload(ctx context.Context, asset interfaces.Asset, publicID string) (interfaces.AssetReference, error) {
	if len(asset.Data) == 0 {
		return interfaces.AssetReference{}, workflow.Permanent(errors.New("asset is empty"))
	}

	params := map[string]string{
		"public_id": publicID,
		"overwrite": "true",
		"timestamp": strconv.FormatInt(s.now().Unix(), 10),
	}
	if s.config.Folder != "" {
		params["folder"] = s.config.Folder
	}
	params["signature"] = s.sign(params)
	params["api_key"] = s.config.APIKey

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for _, k := range sortedKeys(params) {
		if err := writer.WriteField(k, params[k]); err != nil {
			return interfaces.AssetReference{}, err
		}
	}
	part, err := writer.CreateFormFile("file", asset.Filename)
	if err != nil {
		return interfaces.AssetReference{}, err
	}
	if _, err := part.Write(asset.Data); err != nil {
		return interfaces.AssetReference{}, err
	}
	if err := writer.Close(); err != nil {
		return interfaces.AssetReference{}, err
	}

	endpoint := s.endpoint(asset.Kind, "upload")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return interfaces.AssetReference{}, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	var resp uploadResponse
	if err := s.do(req, &resp); err != nil {
		return interfaces.AssetReference{}, fmt.Errorf("upload %s: %w", asset.Filename, err)
	}

	s.logger.Info("asset uploaded",
		zap.String("public_id", resp.PublicID),
		zap.String("kind", string(asset.Kind)),
		zap.Int("bytes", len(asset.Data)))
	return interfaces.AssetReference{URL: resp.SecureURL, PublicID: resp.PublicID, Kind: asset.Kind}, nil
}

type destroyResponse struct {
	Result string `json:"result"`
}

// Delete implements interfaces.AssetStore.
func (s *Store) Delete(ctx context.Context, publicID string, kind interfaces.AssetKind) error {
	params := map[string]string{
		"public_id":  publicID,
		"invalidate": "true",
		"timestamp":  strconv.FormatInt(s.now().Unix(), 10),
	}
	params["signature"] = s.sign(params)
	params["api_key"] = s.config.APIKey

	form := url.Values{}
	for k, v := range params {
		form.Set(k, v)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint(kind, "destroy"), strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var resp destroyResponse
	if err := s.do(req, &resp); err != nil {
		return fmt.Errorf("delete %s: %w", publicID, err)
	}
	switch resp.Result {
	case "ok", "not found":
		s.logger.Info("asset deleted", zap.String("public_id", publicID), zap.String("result", resp.Result))
		return nil
	default:
		return fmt.Errorf("delete %s: unexpected result %q", publicID, resp.Result)
	}
}

// DeliveryURL implements interfaces.AssetStore.
func (s *Store) DeliveryURL(publicID string, kind interfaces.AssetKind) string {
	return fmt.Sprintf("%s/%s/%s/upload/%s",
		strings.TrimRight(s.config.DeliveryBaseURL, "/"), s.config.CloudName, resourceType(kind), publicID)
}

func (s *Store) endpoint(kind interfaces.AssetKind, action string) string {
	return fmt.Sprintf("%s/v1_1/%s/%s/%s",
		strings.TrimRight(s.config.APIBaseURL, "/"), s.config.CloudName, resourceType(kind), action)
}

// sign computes the request signature: SHA-1 of the sorted parameters
// joined as k=v with & followed by the API secret.
func (s *Store) sign(params map[string]string) string {
	pairs := make([]string, 0, len(params))
	for _, k := range sortedKeys(params) {
		pairs = append(pairs, k+"="+params[k])
	}
	sum := sha1.Sum([]byte(strings.Join(pairs, "&") + s.config.APISecret))
	return hex.EncodeToString(sum[:])
}

// do sends req and decodes a JSON response. Client errors are permanent.
func (s *Store) do(req *http.Request, out interface{}) error {
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		err := fmt.Errorf("media api returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
		if resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests && resp.StatusCode != http.StatusRequestTimeout {
			return workflow.Permanent(err)
		}
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode media api response: %w", err)
	}
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
