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

package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/innovationmech/atelier/internal/atelier/security"
	"github.com/innovationmech/atelier/pkg/logger"
)

func init() {
	logger.Logger, _ = zap.NewDevelopment()
}

func execute(cmd *cobra.Command, stdin string, args ...string) (string, error) {
	stdout := new(bytes.Buffer)
	cmd.SetOut(stdout)
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), err
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "atelier.yaml"), []byte(content), 0o600))
	return dir
}

func TestNewRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	assert.Equal(t, "atelier", cmd.Use)
	assert.False(t, cmd.HasParent())

	var names []string
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}
	assert.ElementsMatch(t, []string{"serve", "version", "config", "hash-secret", "issue-token"}, names)
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(NewRootCommand(), "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "atelier version")
}

func TestConfigPrint_RedactsSecrets(t *testing.T) {
	dir := writeConfig(t, `
security:
  jwt_secret: super-secret-value
database:
  dsn: user:hunter2@tcp(db:3306)/atelier
slots:
  resource: room-1
`)
	out, err := execute(NewRootCommand(), "", "config", "print", "--config-dir", dir)
	require.NoError(t, err)

	assert.NotContains(t, out, "super-secret-value")
	assert.NotContains(t, out, "hunter2")
	assert.Contains(t, out, "******")
	assert.Contains(t, out, "resource: room-1")
	assert.Contains(t, out, "hold_window: 10m0s")
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{name: "defaults", yaml: "logging:\n  level: debug\n"},
		{name: "unknown store backend", yaml: "store:\n  backend: etcd\n", wantErr: "store.backend"},
		{name: "inverted business hours", yaml: "slots:\n  open_hour: 18\n  close_hour: 9\n", wantErr: "business hours"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(NewRootCommand(), "", "config", "validate", "--config-dir", writeConfig(t, tt.yaml))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Contains(t, out, "configuration is valid")
		})
	}
}

func TestHashSecret(t *testing.T) {
	t.Run("hashes stdin", func(t *testing.T) {
		out, err := execute(NewRootCommand(), "correct horse battery\n", "hash-secret")
		require.NoError(t, err)
		hash := strings.TrimSpace(out)
		assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("correct horse battery")))
	})

	t.Run("rejects short secret", func(t *testing.T) {
		_, err := execute(NewRootCommand(), "short\n", "hash-secret")
		assert.Error(t, err)
	})

	t.Run("rejects empty stdin", func(t *testing.T) {
		_, err := execute(NewRootCommand(), "", "hash-secret")
		assert.Error(t, err)
	})
}

func TestIssueToken(t *testing.T) {
	dir := writeConfig(t, "security:\n  jwt_secret: token-signing-secret\n  jwt_issuer: atelier-test\n")

	t.Run("issues a token the checker accepts", func(t *testing.T) {
		out, err := execute(NewRootCommand(), "", "issue-token", "--config-dir", dir,
			"--subject", "admin", "--scope", security.CapabilityCatalogWrite)
		require.NoError(t, err)

		checker, err := security.NewJWTChecker("token-signing-secret", "atelier-test")
		require.NoError(t, err)
		claims, err := checker.Parse(strings.TrimSpace(out))
		require.NoError(t, err)
		assert.Equal(t, "admin", claims.Subject)
		assert.Equal(t, []string{security.CapabilityCatalogWrite}, claims.Scopes())
	})

	tests := []struct {
		name string
		args []string
	}{
		{name: "missing subject", args: []string{"issue-token", "--config-dir", dir, "--scope", "*"}},
		{name: "missing scope", args: []string{"issue-token", "--config-dir", dir, "--subject", "admin"}},
		{name: "no signing secret", args: []string{"issue-token", "--config-dir", t.TempDir(), "--subject", "admin", "--scope", "*"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(NewRootCommand(), "", tt.args...)
			assert.Error(t, err)
		})
	}
}
