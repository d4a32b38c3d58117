package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JDHayesBC/Awareness-sub005/internal/ppserr"
)

func TestToolRouteSuccess(t *testing.T) {
	registry := map[string]ToolHandler{
		"echo_args": func(ctx context.Context, raw json.RawMessage) (any, error) {
			var body map[string]any
			if err := decode(raw, &body); err != nil {
				return nil, err
			}
			return body, nil
		},
	}
	e := NewServer(registry)

	req := httptest.NewRequest(http.MethodPost, "/tools/echo_args", strings.NewReader(`{"q":"hello"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Equal(t, "hello", out["q"])
}

func TestToolRouteDependencyDown(t *testing.T) {
	registry := map[string]ToolHandler{
		"unconfigured_tool": func(ctx context.Context, raw json.RawMessage) (any, error) {
			return nil, ppserr.New(ppserr.DependencyDown, "api.unconfigured_tool", "layer not configured")
		},
	}
	e := NewServer(registry)

	req := httptest.NewRequest(http.MethodPost, "/tools/unconfigured_tool", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, ppserr.DependencyDown, body.Error.Kind)
}

func TestToolRouteUnknownToolIs404(t *testing.T) {
	e := NewServer(map[string]ToolHandler{})

	req := httptest.NewRequest(http.MethodPost, "/tools/does_not_exist", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthzRoute(t *testing.T) {
	e := NewServer(map[string]ToolHandler{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestBuildRegistryReturnsDependencyDownForUnconfiguredLayers(t *testing.T) {
	registry := BuildRegistry(&Deps{})
	require.NotEmpty(t, registry)

	handler, ok := registry["anchor_search"]
	require.True(t, ok)
	_, err := handler(context.Background(), json.RawMessage(`{"query":"x"}`))
	require.Error(t, err)
	require.Equal(t, ppserr.DependencyDown, ppserr.KindOf(err))
}

func TestBuildRegistryCoversFrozenToolNames(t *testing.T) {
	registry := BuildRegistry(&Deps{})
	for _, name := range []string{
		"ambient_recall", "anchor_search", "raw_search", "texture_search",
		"texture_explore", "texture_timeline", "get_crystals", "get_recent_summaries",
		"search_summaries", "get_turns_since_summary", "get_turns_around",
		"get_conversation_context", "anchor_save", "anchor_delete", "anchor_resync",
		"texture_add", "texture_add_triplet", "texture_delete", "crystallize",
		"summarize_messages", "store_summary", "ingest_batch_to_graphiti",
		"graphiti_ingestion_stats", "pps_health", "summary_stats", "inventory_list",
		"inventory_add", "inventory_get", "inventory_delete", "inventory_categories",
		"enter_space", "list_spaces",
	} {
		_, ok := registry[name]
		require.Truef(t, ok, "missing tool handler: %s", name)
	}
}
