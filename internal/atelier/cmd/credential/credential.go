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

// Package credential provides commands that produce capability credentials.
package credential

import (
	"bufio"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	atelierconfig "github.com/innovationmech/atelier/internal/atelier/config"
	"github.com/innovationmech/atelier/internal/atelier/security"
)

// NewHashSecretCommand creates the 'hash-secret' command. The secret is read
// from the first line of stdin so it stays out of shell history.
func NewHashSecretCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-secret",
		Short: "Hash an admin secret for security.admin_secret_hash",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			scanner := bufio.NewScanner(cmd.InOrStdin())
			if !scanner.Scan() {
				if err := scanner.Err(); err != nil {
					return err
				}
				return errors.New("no secret on stdin")
			}
			hash, err := security.HashSecret(strings.TrimSpace(scanner.Text()))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}

// NewIssueTokenCommand creates the 'issue-token' command, which signs a
// capability token with security.jwt_secret.
func NewIssueTokenCommand() *cobra.Command {
	var (
		configDir string
		subject   string
		scopes    []string
		ttl       time.Duration
	)
	cmd := &cobra.Command{
		Use:   "issue-token",
		Short: "Issue a capability token",
		Example: `  atelier issue-token --subject admin --scope catalog:write --scope content:write
  atelier issue-token --subject ops --scope '*' --ttl 1h`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if subject == "" {
				return errors.New("--subject is required")
			}
			if len(scopes) == 0 {
				return errors.New("at least one --scope is required")
			}
			if ttl <= 0 {
				return errors.New("--ttl must be positive")
			}
			cfg, err := atelierconfig.Load(atelierconfig.NewManager(configDir))
			if err != nil {
				return err
			}
			checker, err := security.NewJWTChecker(cfg.Security.JWTSecret, cfg.Security.JWTIssuer)
			if err != nil {
				return err
			}
			token, err := checker.Issue(subject, scopes, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&configDir, "config-dir", "", "Directory holding atelier.yaml (default: current directory)")
	cmd.Flags().StringVar(&subject, "subject", "", "Token subject")
	cmd.Flags().StringArrayVar(&scopes, "scope", nil, "Granted capability, repeatable")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	return cmd
}
