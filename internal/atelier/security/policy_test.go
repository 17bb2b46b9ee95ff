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

package security

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPolicy = `package atelier.authz

import rego.v1

default allow := false

allow if input.capability in input.scopes

allow if {
	input.subject == "publisher"
	startswith(input.capability, "content:")
}
`

func TestPolicyChecker(t *testing.T) {
	tokens, err := NewJWTChecker("policy-secret", "atelier")
	require.NoError(t, err)

	checker, err := NewPolicyChecker(context.Background(), tokens, testPolicy)
	require.NoError(t, err)

	catalog, err := tokens.Issue("editor", []string{CapabilityCatalogWrite}, time.Hour)
	require.NoError(t, err)
	publisher, err := tokens.Issue("publisher", []string{"profile:read"}, time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name       string
		credential string
		capability string
		wantErr    error
		wantAnyErr bool
	}{
		{name: "scope granted", credential: catalog, capability: CapabilityCatalogWrite},
		{name: "scope missing", credential: catalog, capability: CapabilityContentWrite, wantErr: ErrInsufficientScope},
		{name: "subject rule", credential: publisher, capability: CapabilityContentWrite},
		{name: "subject rule does not cover catalog", credential: publisher, capability: CapabilityCatalogWrite, wantErr: ErrInsufficientScope},
		{name: "no credential", capability: CapabilityCatalogWrite, wantErr: ErrMissingCredential},
		{name: "invalid token", credential: "nope", capability: CapabilityCatalogWrite, wantAnyErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checker.Check(context.Background(), tt.credential, tt.capability)
			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.wantAnyErr:
				assert.Error(t, err)
			default:
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadPolicyChecker(t *testing.T) {
	tokens, err := NewJWTChecker("policy-secret", "atelier")
	require.NoError(t, err)
	dir := t.TempDir()

	path := filepath.Join(dir, "authz.rego")
	require.NoError(t, os.WriteFile(path, []byte(testPolicy), 0o600))
	_, err = LoadPolicyChecker(context.Background(), tokens, path)
	assert.NoError(t, err)

	broken := filepath.Join(dir, "broken.rego")
	require.NoError(t, os.WriteFile(broken, []byte("package atelier.authz\nallow if {"), 0o600))
	_, err = LoadPolicyChecker(context.Background(), tokens, broken)
	assert.Error(t, err)

	_, err = LoadPolicyChecker(context.Background(), tokens, filepath.Join(dir, "missing.rego"))
	assert.Error(t, err)

	_, err = NewPolicyChecker(context.Background(), nil, testPolicy)
	assert.Error(t, err)
}
