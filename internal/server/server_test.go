package server_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovenworks/banneton/internal/access"
	"github.com/ovenworks/banneton/internal/agent"
	"github.com/ovenworks/banneton/internal/llm"
	"github.com/ovenworks/banneton/internal/server"
	"github.com/ovenworks/banneton/internal/tenant"
	"github.com/ovenworks/banneton/internal/testutil"
	"github.com/ovenworks/banneton/internal/tool"
	"github.com/ovenworks/banneton/internal/tool/catalog"
)

const testAPIKey = "test-api-key"

func newTestServer(t *testing.T, f *testutil.Fixture, provider llm.Provider) http.Handler {
	t.Helper()
	reg := tool.NewRegistry()
	require.NoError(t, catalog.Register(reg, tool.Deps{Validator: f.Validator, Recorder: f.Recorder}))
	o := agent.New(agent.Config{Registry: reg, Provider: provider, Model: "gpt-4o-mini"})
	srv := server.NewServer(o, reg, f.Factory, f.AuditStore,
		map[string]string{testAPIKey: f.TenantID},
		server.WithTenantManager(tenant.NewManager(f.Store)))
	return srv.Routes()
}

func doJSON(t *testing.T, h http.Handler, method, path, apiKey string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if apiKey != "" {
		req.Header.Set("X-Banneton-Key", apiKey)
	}
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthUnauthenticated(t *testing.T) {
	f := testutil.NewFixture(t)
	h := newTestServer(t, f, &testutil.MockProvider{ProviderName: "openai"})

	rec := doJSON(t, h, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestChatRequiresAPIKey(t *testing.T) {
	f := testutil.NewFixture(t)
	h := newTestServer(t, f, &testutil.MockProvider{ProviderName: "openai"})

	rec := doJSON(t, h, http.MethodPost, "/v1/chat", "", map[string]string{
		"user_id": f.Users[access.RoleClient], "message": "hi",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/v1/chat", "wrong-key", map[string]string{
		"user_id": f.Users[access.RoleClient], "message": "hi",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestChatValidation(t *testing.T) {
	f := testutil.NewFixture(t)
	h := newTestServer(t, f, &testutil.MockProvider{ProviderName: "openai"})

	rec := doJSON(t, h, http.MethodPost, "/v1/chat", testAPIKey, map[string]string{
		"message": "hi",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/v1/chat", testAPIKey, map[string]string{
		"user_id": f.Users[access.RoleClient], "message": "   ",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/v1/chat", testAPIKey, map[string]string{
		"user_id": f.Users[access.RoleClient],
		"message": strings.Repeat("a", agent.MaxMessageLength+1),
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// A bad message must be rejected before any user lookup, so an oversized
// message paired with an unknown user is an input error, not a forbidden.
func TestChatInputRejectedBeforeUserLookup(t *testing.T) {
	f := testutil.NewFixture(t)
	h := newTestServer(t, f, &testutil.MockProvider{ProviderName: "openai"})

	rec := doJSON(t, h, http.MethodPost, "/v1/chat", testAPIKey, map[string]string{
		"user_id": "usr_missing",
		"message": strings.Repeat("a", agent.MaxMessageLength+1),
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatRejectsUnknownUser(t *testing.T) {
	f := testutil.NewFixture(t)
	h := newTestServer(t, f, &testutil.MockProvider{ProviderName: "openai"})

	rec := doJSON(t, h, http.MethodPost, "/v1/chat", testAPIKey, map[string]string{
		"user_id": "usr_missing", "message": "hi",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestChatHappyPath(t *testing.T) {
	f := testutil.NewFixture(t)
	provider := &testutil.ToolCallMockProvider{
		Responses: []*llm.Response{
			{
				FinishReason: "tool_calls",
				ToolCalls: []llm.ToolCall{
					{ID: "call_1", Name: "list_products", Arguments: map[string]any{}},
				},
			},
			{Content: "We have three products today.", FinishReason: "stop"},
		},
	}
	h := newTestServer(t, f, provider)

	rec := doJSON(t, h, http.MethodPost, "/v1/chat", testAPIKey, map[string]string{
		"user_id": f.Users[access.RoleClient], "message": "what do you sell?",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Response  string `json:"response"`
		ToolCalls []struct {
			Name string `json:"name"`
		} `json:"tool_calls"`
		Metadata struct {
			Role              string `json:"role"`
			ExecutedToolCount int    `json:"executed_tool_count"`
			FallbackMode      bool   `json:"fallback_mode"`
		} `json:"metadata"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "We have three products today.", resp.Response)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "list_products", resp.ToolCalls[0].Name)
	assert.Equal(t, access.RoleClient, resp.Metadata.Role)
	assert.Equal(t, 1, resp.Metadata.ExecutedToolCount)
	assert.False(t, resp.Metadata.FallbackMode)
}

func TestToolsListFilteredByRole(t *testing.T) {
	f := testutil.NewFixture(t)
	h := newTestServer(t, f, &testutil.MockProvider{ProviderName: "openai"})

	rec := doJSON(t, h, http.MethodGet, "/v1/tools?role=driver", testAPIKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Tools []struct {
			Name string `json:"name"`
		} `json:"tools"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Tools, 2)

	rec = doJSON(t, h, http.MethodGet, "/v1/tools?role=wizard", testAPIKey, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/v1/tools", testAPIKey, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuditEndpointsScopedToTenant(t *testing.T) {
	f := testutil.NewFixture(t)
	provider := &testutil.ToolCallMockProvider{
		Responses: []*llm.Response{
			{
				FinishReason: "tool_calls",
				ToolCalls: []llm.ToolCall{
					{ID: "call_1", Name: "list_products", Arguments: map[string]any{}},
				},
			},
			{Content: "done", FinishReason: "stop"},
		},
	}
	h := newTestServer(t, f, provider)

	rec := doJSON(t, h, http.MethodPost, "/v1/chat", testAPIKey, map[string]string{
		"user_id": f.Users[access.RoleClient], "message": "list products",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/v1/audit?tool=list_products", testAPIKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var list struct {
		Records []struct {
			ID string `json:"id"`
		} `json:"records"`
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Equal(t, 1, list.Count)
	id := list.Records[0].ID

	rec = doJSON(t, h, http.MethodGet, "/v1/audit/"+id, testAPIKey, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/v1/audit/"+id+"/verify", testAPIKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var verify struct {
		Valid bool `json:"valid"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &verify))
	assert.True(t, verify.Valid)

	rec = doJSON(t, h, http.MethodGet, "/v1/audit/aud_missing", testAPIKey, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
