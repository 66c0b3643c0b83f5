// Package policy evaluates access rules for tool invocations using
// embedded OPA/Rego. The rules themselves are data-free: callers pass the
// authoritative values (role from the user row, quota counts from the
// store) and the engine only decides allow/deny.
package policy

import (
	"context"
	"embed"
	"fmt"

	"github.com/open-policy-agent/opa/rego"
	"go.opentelemetry.io/otel/attribute"

	banotel "github.com/ovenworks/banneton/internal/otel"
)

var tracer = banotel.Tracer("github.com/ovenworks/banneton/internal/policy")

//go:embed rego/*.rego
var embeddedPolicies embed.FS

// Decision represents the result of a policy evaluation.
type Decision struct {
	Allowed bool     `json:"allowed"`
	Reasons []string `json:"reasons,omitempty"`
}

// regoPolicy maps a Rego file to the OPA query used to extract deny messages.
type regoPolicy struct {
	file  string
	query string
}

var allPolicies = []regoPolicy{
	{file: "rego/role_access.rego", query: "data.banneton.policy.role_access.deny"},
	{file: "rego/quota_limits.rego", query: "data.banneton.policy.quota_limits.deny"},
}

// Engine evaluates access policies using embedded OPA.
type Engine struct {
	prepared map[string]rego.PreparedEvalQuery
}

// NewEngine creates a policy engine with precompiled Rego policies.
func NewEngine(ctx context.Context) (*Engine, error) {
	ctx, span := tracer.Start(ctx, "policy.engine.new")
	defer span.End()

	prepared := make(map[string]rego.PreparedEvalQuery, len(allPolicies))
	for _, rp := range allPolicies {
		content, err := embeddedPolicies.ReadFile(rp.file)
		if err != nil {
			return nil, fmt.Errorf("reading embedded policy %s: %w", rp.file, err)
		}
		r := rego.New(
			rego.Query(rp.query),
			rego.Module(rp.file, string(content)),
		)
		pq, err := r.PrepareForEval(ctx)
		if err != nil {
			return nil, fmt.Errorf("preparing Rego policy %s: %w", rp.file, err)
		}
		prepared[rp.file] = pq
	}

	span.SetAttributes(attribute.Int("policy.prepared_count", len(prepared)))
	return &Engine{prepared: prepared}, nil
}

// EvaluateRoleAccess decides whether role may invoke a tool restricted to
// allowedRoles.
func (e *Engine) EvaluateRoleAccess(ctx context.Context, role string, allowedRoles []string) (*Decision, error) {
	input := map[string]interface{}{
		"role":          role,
		"allowed_roles": stringsToInterface(allowedRoles),
	}
	return e.evaluate(ctx, "rego/role_access.rego", input)
}

// EvaluateQuota decides whether an operation with the given usage snapshot
// may proceed. metricLabel is the operator-facing name rendered into the
// deny message (e.g. "Monthly order").
func (e *Engine) EvaluateQuota(ctx context.Context, metricLabel string, currentValue, maxValue int) (*Decision, error) {
	input := map[string]interface{}{
		"metric_label":  metricLabel,
		"current_value": currentValue,
		"max_value":     maxValue,
	}
	return e.evaluate(ctx, "rego/quota_limits.rego", input)
}

func (e *Engine) evaluate(ctx context.Context, pkg string, input map[string]interface{}) (*Decision, error) {
	ctx, span := tracer.Start(ctx, "policy.evaluate")
	defer span.End()

	reasons, err := evaluateDenyReasons(ctx, e.prepared, pkg, input)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	decision := &Decision{Allowed: len(reasons) == 0, Reasons: reasons}
	span.SetAttributes(
		attribute.String("policy.package", pkg),
		attribute.Bool("policy.allowed", decision.Allowed),
		attribute.Int("policy.deny_reasons", len(reasons)),
	)
	return decision, nil
}

// evaluateDenyReasons runs a single prepared Rego policy that produces a
// set of deny reason strings.
func evaluateDenyReasons(ctx context.Context, prepared map[string]rego.PreparedEvalQuery, pkg string, input map[string]interface{}) ([]string, error) {
	pq, ok := prepared[pkg]
	if !ok {
		return nil, fmt.Errorf("policy package %s not prepared", pkg)
	}

	results, err := pq.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, fmt.Errorf("evaluating %s: %w", pkg, err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return nil, nil
	}

	// The result of querying "data.xxx.deny" is a set of strings. OPA
	// returns it as []interface{} or, occasionally, map[string]interface{}.
	var reasons []string
	switch v := results[0].Expressions[0].Value.(type) {
	case []interface{}:
		for _, msg := range v {
			if msgStr, ok := msg.(string); ok {
				reasons = append(reasons, msgStr)
			}
		}
	case map[string]interface{}:
		for _, msg := range v {
			if msgStr, ok := msg.(string); ok {
				reasons = append(reasons, msgStr)
			}
		}
	}
	return reasons, nil
}

func stringsToInterface(s []string) []interface{} {
	out := make([]interface{}, len(s))
	for i, v := range s {
		out[i] = v
	}
	return out
}
