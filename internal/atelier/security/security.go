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

// Package security checks submission credentials against workflow capabilities.
package security

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/innovationmech/atelier/pkg/workflow"
)

// Capabilities used by the workflows.
const (
	CapabilityCatalogWrite = "catalog:write"
	CapabilityContentWrite = "content:write"

	// ScopeAll grants every capability.
	ScopeAll = "*"
)

var (
	// ErrMissingCredential is returned when no credential was presented.
	ErrMissingCredential = errors.New("credential is required")
	// ErrInsufficientScope is returned when a valid credential lacks the capability.
	ErrInsufficientScope = errors.New("credential does not grant capability")
	// ErrInvalidSecret is returned when an admin secret does not match.
	ErrInvalidSecret = errors.New("invalid admin secret")
)

// Claims are the JWT claims of an access token. Scope is space separated.
type Claims struct {
	Scope string `json:"scope"`
	jwt.RegisteredClaims
}

// Scopes returns the granted scopes.
func (c *Claims) Scopes() []string {
	return strings.Fields(c.Scope)
}

// JWTChecker validates HS256 access tokens.
type JWTChecker struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewJWTChecker creates a checker. An empty issuer accepts any issuer.
func NewJWTChecker(secret, issuer string) (*JWTChecker, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	return &JWTChecker{secret: []byte(secret), issuer: issuer, now: time.Now}, nil
}

// Issue signs a token granting scopes to subject for ttl.
func (c *JWTChecker) Issue(subject string, scopes []string, ttl time.Duration) (string, error) {
	now := c.now()
	claims := Claims{
		Scope: strings.Join(scopes, " "),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
}

// Parse validates token and returns its claims.
func (c *JWTChecker) Parse(token string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	}
	if c.issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.issuer))
	}
	claims := &Claims{}
	if _, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return c.secret, nil
	}, opts...); err != nil {
		return nil, err
	}
	return claims, nil
}

// Check implements workflow.CapabilityChecker.
func (c *JWTChecker) Check(_ context.Context, credential, capability string) error {
	if credential == "" {
		return ErrMissingCredential
	}
	claims, err := c.Parse(credential)
	if err != nil {
		return fmt.Errorf("invalid token: %w", err)
	}
	scopes := claims.Scopes()
	if slices.Contains(scopes, capability) || slices.Contains(scopes, ScopeAll) {
		return nil
	}
	return fmt.Errorf("%w %q", ErrInsufficientScope, capability)
}

// SecretChecker grants every capability to the holder of the admin secret.
type SecretChecker struct {
	hash []byte
}

// NewSecretChecker creates a checker for a bcrypt hash produced by HashSecret.
func NewSecretChecker(hash string) (*SecretChecker, error) {
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return nil, fmt.Errorf("invalid admin secret hash: %w", err)
	}
	return &SecretChecker{hash: []byte(hash)}, nil
}

// Check implements workflow.CapabilityChecker.
func (c *SecretChecker) Check(_ context.Context, credential, _ string) error {
	if credential == "" {
		return ErrMissingCredential
	}
	if err := bcrypt.CompareHashAndPassword(c.hash, []byte(credential)); err != nil {
		return ErrInvalidSecret
	}
	return nil
}

// HashSecret returns the bcrypt hash of an admin secret.
func HashSecret(secret string) (string, error) {
	if len(secret) < 12 {
		return "", errors.New("admin secret must be at least 12 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Chain grants a capability when any of its checkers does.
type Chain []workflow.CapabilityChecker

// Check implements workflow.CapabilityChecker.
func (c Chain) Check(ctx context.Context, credential, capability string) error {
	if credential == "" {
		return ErrMissingCredential
	}
	if len(c) == 0 {
		return errors.New("no credential checkers configured")
	}
	var errs []error
	for _, checker := range c {
		err := checker.Check(ctx, credential, capability)
		if err == nil {
			return nil
		}
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
