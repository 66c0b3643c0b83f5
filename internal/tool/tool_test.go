package tool_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovenworks/banneton/internal/access"
	"github.com/ovenworks/banneton/internal/audit"
	"github.com/ovenworks/banneton/internal/execctx"
	"github.com/ovenworks/banneton/internal/store"
	"github.com/ovenworks/banneton/internal/testutil"
	"github.com/ovenworks/banneton/internal/tool"
)

func echoDescriptor(name string, roles ...string) tool.Descriptor {
	return tool.Descriptor{
		Name:        name,
		Description: "echoes its input",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"note": map[string]any{"type": "string"},
			},
		},
		AllowedRoles: roles,
	}
}

func TestInvokeSuccessEnvelope(t *testing.T) {
	f := testutil.NewFixture(t)
	ec := f.Context(t, access.RoleClient)

	tl, err := tool.New(echoDescriptor("echo", access.RoleClient),
		func(_ context.Context, args map[string]any, _ *execctx.Context) (any, error) {
			return map[string]any{"note": args["note"]}, nil
		},
		tool.Deps{Validator: f.Validator, Recorder: f.Recorder})
	require.NoError(t, err)

	res := tl.Invoke(context.Background(), map[string]any{"note": "hello"}, ec)
	assert.True(t, res.Success)
	assert.Equal(t, "Operation completed successfully", res.Message)
	assert.Empty(t, res.Error)
	require.NotNil(t, res.Data)
}

func TestInvokeRoleDenialSkipsHandler(t *testing.T) {
	f := testutil.NewFixture(t)
	ec := f.Context(t, access.RoleClient)

	invocations := 0
	tl, err := tool.New(echoDescriptor("driver_only", access.RoleDriver),
		func(_ context.Context, _ map[string]any, _ *execctx.Context) (any, error) {
			invocations++
			return nil, nil
		},
		tool.Deps{Validator: f.Validator, Recorder: f.Recorder})
	require.NoError(t, err)

	res := tl.Invoke(context.Background(), map[string]any{}, ec)
	assert.False(t, res.Success)
	assert.Equal(t, "Access denied: Required roles: driver", res.Error)
	assert.Zero(t, invocations)
}

func TestInvokeQuotaDenialAtLimit(t *testing.T) {
	f := testutil.NewFixture(t)
	ctx := context.Background()

	// A tenant whose user quota is already fully used.
	tenant := &store.Tenant{Name: "Tiny Bakery", Status: store.StatusActive,
		MaxUsers: 1, MaxProducts: 10, MaxOrdersPerMonth: 10}
	require.NoError(t, f.Store.CreateTenant(ctx, tenant))
	admin := &store.User{TenantID: tenant.ID, Name: "admin", Email: "a@example.test",
		Role: access.RoleTenantAdmin, Status: store.StatusActive}
	require.NoError(t, f.Store.CreateUser(ctx, admin))
	ec, err := f.Factory.Create(ctx, tenant.ID, admin.ID)
	require.NoError(t, err)

	invocations := 0
	desc := echoDescriptor("add_member", access.RoleTenantAdmin)
	desc.QuotaOperation = access.QuotaAddUser
	tl, err := tool.New(desc,
		func(_ context.Context, _ map[string]any, _ *execctx.Context) (any, error) {
			invocations++
			return nil, nil
		},
		tool.Deps{Validator: f.Validator, Recorder: f.Recorder})
	require.NoError(t, err)

	res := tl.Invoke(ctx, map[string]any{}, ec)
	assert.False(t, res.Success)
	assert.Equal(t, "Operation blocked: User limit exceeded", res.Error)
	assert.Zero(t, invocations)
}

func TestInvokeSchemaRejection(t *testing.T) {
	f := testutil.NewFixture(t)
	ec := f.Context(t, access.RoleClient)

	desc := tool.Descriptor{
		Name:        "strict",
		Description: "requires a quantity",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"quantity": map[string]any{"type": "number", "minimum": 1},
			},
			"required": []any{"quantity"},
		},
		AllowedRoles: []string{access.RoleClient},
	}
	invocations := 0
	tl, err := tool.New(desc,
		func(_ context.Context, _ map[string]any, _ *execctx.Context) (any, error) {
			invocations++
			return nil, nil
		},
		tool.Deps{Validator: f.Validator, Recorder: f.Recorder})
	require.NoError(t, err)

	res := tl.Invoke(context.Background(), map[string]any{}, ec)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "Invalid parameters:")
	assert.Zero(t, invocations)

	res = tl.Invoke(context.Background(), map[string]any{"quantity": float64(3)}, ec)
	assert.True(t, res.Success)
}

func TestInvokeHandlerErrorBecomesEnvelope(t *testing.T) {
	f := testutil.NewFixture(t)
	ec := f.Context(t, access.RoleClient)

	tl, err := tool.New(echoDescriptor("failing", access.RoleClient),
		func(_ context.Context, _ map[string]any, _ *execctx.Context) (any, error) {
			return nil, errors.New("oven is cold")
		},
		tool.Deps{Validator: f.Validator, Recorder: f.Recorder})
	require.NoError(t, err)

	res := tl.Invoke(context.Background(), map[string]any{}, ec)
	assert.False(t, res.Success)
	assert.Equal(t, "oven is cold", res.Error)
}

func TestInvokeHandlerPanicRecovered(t *testing.T) {
	f := testutil.NewFixture(t)
	ec := f.Context(t, access.RoleClient)

	tl, err := tool.New(echoDescriptor("panicky", access.RoleClient),
		func(_ context.Context, _ map[string]any, _ *execctx.Context) (any, error) {
			panic("boom")
		},
		tool.Deps{Validator: f.Validator, Recorder: f.Recorder})
	require.NoError(t, err)

	res := tl.Invoke(context.Background(), map[string]any{}, ec)
	assert.False(t, res.Success)
	assert.Equal(t, "Operation failed: internal error", res.Error)
}

func TestInvokeAuditsDenialsAndSuccesses(t *testing.T) {
	f := testutil.NewFixture(t)
	ctx := context.Background()

	tl, err := tool.New(echoDescriptor("audited", access.RoleClient),
		func(_ context.Context, _ map[string]any, _ *execctx.Context) (any, error) {
			return "ok", nil
		},
		tool.Deps{Validator: f.Validator, Recorder: f.Recorder})
	require.NoError(t, err)

	tl.Invoke(ctx, map[string]any{"note": "first"}, f.Context(t, access.RoleClient))
	tl.Invoke(ctx, map[string]any{}, f.Context(t, access.RoleDriver)) // denied by role

	recs, err := f.AuditStore.List(ctx, f.TenantID, "audited", 10)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	var successes, denials int
	for _, r := range recs {
		if r.Success {
			successes++
		} else {
			denials++
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, denials)
}

func TestInvokeSucceedsWhenAuditWriteFails(t *testing.T) {
	f := testutil.NewFixture(t)
	ec := f.Context(t, access.RoleClient)

	tl, err := tool.New(echoDescriptor("resilient", access.RoleClient),
		func(_ context.Context, _ map[string]any, _ *execctx.Context) (any, error) {
			return "ok", nil
		},
		tool.Deps{Validator: f.Validator, Recorder: f.Recorder})
	require.NoError(t, err)

	// Closing the audit database makes every write fail.
	require.NoError(t, f.AuditStore.Close())

	res := tl.Invoke(context.Background(), map[string]any{}, ec)
	assert.True(t, res.Success)
	assert.Equal(t, "Operation completed successfully", res.Message)
}

func TestInvokeNilRecorder(t *testing.T) {
	f := testutil.NewFixture(t)
	ec := f.Context(t, access.RoleClient)

	tl, err := tool.New(echoDescriptor("untracked", access.RoleClient),
		func(_ context.Context, _ map[string]any, _ *execctx.Context) (any, error) {
			return "ok", nil
		},
		tool.Deps{Validator: f.Validator, Recorder: audit.NewRecorder(nil)})
	require.NoError(t, err)

	res := tl.Invoke(context.Background(), map[string]any{}, ec)
	assert.True(t, res.Success)
}

func TestNewRejectsBadDescriptors(t *testing.T) {
	f := testutil.NewFixture(t)
	deps := tool.Deps{Validator: f.Validator, Recorder: f.Recorder}
	noop := func(_ context.Context, _ map[string]any, _ *execctx.Context) (any, error) {
		return nil, nil
	}

	_, err := tool.New(tool.Descriptor{}, noop, deps)
	assert.Error(t, err)

	_, err = tool.New(echoDescriptor("no_handler", access.RoleClient), nil, deps)
	assert.Error(t, err)

	_, err = tool.New(echoDescriptor("bad_role", "superuser"), noop, deps)
	assert.Error(t, err)
}
