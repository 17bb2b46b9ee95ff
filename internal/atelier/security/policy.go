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
	"fmt"
	"os"

	"github.com/open-policy-agent/opa/rego"
)

// PolicyQuery is the rule a policy module must define.
const PolicyQuery = "data.atelier.authz.allow"

// PolicyChecker authenticates a JWT and leaves the capability decision to a
// Rego policy. The policy sees input.capability, input.subject,
// input.issuer and input.scopes.
type PolicyChecker struct {
	tokens *JWTChecker
	query  rego.PreparedEvalQuery
}

// NewPolicyChecker compiles module once.
func NewPolicyChecker(ctx context.Context, tokens *JWTChecker, module string) (*PolicyChecker, error) {
	if tokens == nil {
		return nil, fmt.Errorf("policy checker needs a token checker")
	}
	query, err := rego.New(
		rego.Query(PolicyQuery),
		rego.Module("atelier_authz.rego", module),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile policy: %w", err)
	}
	return &PolicyChecker{tokens: tokens, query: query}, nil
}

// LoadPolicyChecker reads the policy module from path.
func LoadPolicyChecker(ctx context.Context, tokens *JWTChecker, path string) (*PolicyChecker, error) {
	module, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy: %w", err)
	}
	return NewPolicyChecker(ctx, tokens, string(module))
}

// Check implements workflow.CapabilityChecker.
func (c *PolicyChecker) Check(ctx context.Context, credential, capability string) error {
	if credential == "" {
		return ErrMissingCredential
	}
	claims, err := c.tokens.Parse(credential)
	if err != nil {
		return fmt.Errorf("invalid token: %w", err)
	}
	input := map[string]interface{}{
		"capability": capability,
		"subject":    claims.Subject,
		"issuer":     claims.Issuer,
		"scopes":     claims.Scopes(),
	}
	rs, err := c.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return fmt.Errorf("evaluate policy: %w", err)
	}
	if !rs.Allowed() {
		return fmt.Errorf("%w %q", ErrInsufficientScope, capability)
	}
	return nil
}
