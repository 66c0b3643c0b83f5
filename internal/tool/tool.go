// Package tool implements the capability units the conversational model
// may invoke, and the registry that catalogs them.
//
// Every tool shares one fixed invocation algorithm: sanitize arguments,
// pass the three access checks (tenant, role, quota) in order, validate
// arguments against the tool's JSON schema, run the business action, then
// offer the invocation to the audit trail. No business action ever
// executes unless every check passed, and every invocation produces
// exactly one Result whether it was allowed, denied, or failed. Errors
// never cross the Invoke boundary.
package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ovenworks/banneton/internal/access"
	"github.com/ovenworks/banneton/internal/audit"
	"github.com/ovenworks/banneton/internal/execctx"
	banotel "github.com/ovenworks/banneton/internal/otel"
	"github.com/ovenworks/banneton/internal/sanitize"
)

var tracer = banotel.Tracer("github.com/ovenworks/banneton/internal/tool")

// Result is the uniform envelope returned for every invocation. Exactly
// one of Data/Error is set. The envelope shape does not reveal which
// validation stage denied a call; only the human-readable string varies.
type Result struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

func failure(msg string) Result {
	return Result{Success: false, Error: msg}
}

// Descriptor declares a tool: its model-facing schema, role allow-list,
// and optional quota operation.
type Descriptor struct {
	Name           string
	Description    string
	Parameters     map[string]any // JSON-schema object for the arguments
	AllowedRoles   []string
	QuotaOperation access.QuotaOperation // "" = no quota check
}

// Handler is the tool-specific business action. It receives sanitized,
// schema-validated arguments and the verified execution context. Errors it
// returns are surfaced to the model inside the envelope; they never
// propagate further.
type Handler func(ctx context.Context, args map[string]any, ec *execctx.Context) (any, error)

// Deps are the shared collaborators every tool invokes through.
type Deps struct {
	Validator *access.Validator
	Recorder  *audit.Recorder
}

// Tool is one named capability. Construct with New; the parameter schema
// is compiled once at construction.
type Tool struct {
	desc    Descriptor
	handler Handler
	schema  *jsonschema.Schema
	deps    Deps
}

// New builds a tool from its descriptor and business action, compiling the
// parameter schema. Descriptor problems (empty name, unknown roles, bad
// schema) are configuration errors and fail at startup.
func New(desc Descriptor, handler Handler, deps Deps) (*Tool, error) {
	if desc.Name == "" {
		return nil, fmt.Errorf("tool descriptor: name is required")
	}
	if handler == nil {
		return nil, fmt.Errorf("tool %s: handler is required", desc.Name)
	}
	for _, r := range desc.AllowedRoles {
		if !access.ValidRole(r) {
			return nil, fmt.Errorf("tool %s: unknown role %q in allow-list", desc.Name, r)
		}
	}
	if desc.Parameters == nil {
		desc.Parameters = map[string]any{"type": "object", "properties": map[string]any{}}
	}

	schema, err := compileSchema(desc.Name, desc.Parameters)
	if err != nil {
		return nil, fmt.Errorf("tool %s: compiling parameter schema: %w", desc.Name, err)
	}

	return &Tool{desc: desc, handler: handler, schema: schema, deps: deps}, nil
}

// Name returns the tool's unique name.
func (t *Tool) Name() string { return t.desc.Name }

// Descriptor returns a copy of the tool's declaration.
func (t *Tool) Descriptor() Descriptor { return t.desc }

// Invoke runs the fixed invocation algorithm and always returns a Result.
func (t *Tool) Invoke(ctx context.Context, rawArgs map[string]any, ec *execctx.Context) Result {
	ctx, span := tracer.Start(ctx, "tool.invoke",
		trace.WithAttributes(
			attribute.String("tool.name", t.desc.Name),
			attribute.String("tenant_id", ec.TenantID()),
		))
	defer span.End()

	args := sanitize.Map(rawArgs)
	res := t.run(ctx, args, ec)
	span.SetAttributes(attribute.Bool("tool.success", res.Success))

	t.recordAudit(ctx, ec, args, res)
	return res
}

// run executes checks and the business action, converting panics into a
// generic failure envelope so nothing escapes the Tool boundary.
func (t *Tool) run(ctx context.Context, args map[string]any, ec *execctx.Context) (res Result) {
	defer func() {
		if p := recover(); p != nil {
			log.Error().Interface("panic", p).Str("tool", t.desc.Name).Msg("tool_action_panicked")
			res = failure("Operation failed: internal error")
		}
	}()

	if c := t.deps.Validator.TenantAccess(ctx, ec.TenantID(), ec.UserID()); !c.Allowed {
		return failure(c.Reason)
	}
	if c := t.deps.Validator.RolePermission(ctx, ec.TenantID(), ec.UserID(), t.desc.AllowedRoles); !c.Allowed {
		return failure(c.Reason)
	}
	if t.desc.QuotaOperation != "" {
		if c := t.deps.Validator.Quota(ctx, ec.TenantID(), t.desc.QuotaOperation); !c.Allowed {
			return failure(c.Reason)
		}
	}

	if err := t.validateArgs(args); err != nil {
		return failure("Invalid parameters: " + err.Error())
	}

	data, err := t.handler(ctx, args, ec)
	if err != nil {
		return failure(err.Error())
	}
	return Result{Success: true, Data: data, Message: "Operation completed successfully"}
}

// validateArgs checks the sanitized arguments against the compiled schema.
// Arguments are round-tripped through JSON so in-process callers get the
// same validation semantics as decoded model output.
func (t *Tool) validateArgs(args map[string]any) error {
	raw, err := json.Marshal(args)
	if err != nil {
		return err
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return err
	}
	return t.schema.Validate(doc)
}

// recordAudit offers the invocation to the trail. Best-effort: the
// recorder swallows failures and this never affects res.
func (t *Tool) recordAudit(ctx context.Context, ec *execctx.Context, args map[string]any, res Result) {
	params, err := json.Marshal(args)
	if err != nil {
		params = []byte("{}")
	}
	resJSON, err := json.Marshal(res)
	if err != nil {
		resJSON = []byte("{}")
	}
	t.deps.Recorder.Record(ctx, &audit.Record{
		TenantID:   ec.TenantID(),
		UserID:     ec.UserID(),
		ToolName:   t.desc.Name,
		Parameters: params,
		Result:     resJSON,
		Success:    res.Success,
	})
}

func compileSchema(name string, params map[string]any) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	c := jsonschema.NewCompiler()
	url := "banneton://tools/" + name + ".json"
	if err := c.AddResource(url, doc); err != nil {
		return nil, err
	}
	return c.Compile(url)
}
