package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yungbote/neurobridge-studygen/internal/platform/logger"
)

func responseBody(t *testing.T, obj any) []byte {
	t.Helper()
	inner, err := json.Marshal(obj)
	require.NoError(t, err)
	out, err := json.Marshal(map[string]any{
		"output": []any{
			map[string]any{
				"type": "message",
				"role": "assistant",
				"content": []any{
					map[string]any{"type": "output_text", "text": string(inner)},
				},
			},
		},
	})
	require.NoError(t, err)
	return out
}

func newTestClient(t *testing.T, url string, retries int) Client {
	t.Helper()
	temp := 0.2
	c, err := NewClientWithConfig(logger.Nop(), Config{
		APIKey:      "k",
		BaseURL:     url,
		Model:       "test-model",
		Timeout:     5 * time.Second,
		MaxRetries:  retries,
		Temperature: &temp,
	})
	require.NoError(t, err)
	return c
}

func TestGenerateJSONSendsStrictSchema(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/responses", r.URL.Path)
		require.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		raw, _ := io.ReadAll(r.Body)
		var req map[string]any
		require.NoError(t, json.Unmarshal(raw, &req))
		format := req["text"].(map[string]any)["format"].(map[string]any)
		require.Equal(t, "json_schema", format["type"])
		require.Equal(t, "flashcards", format["name"])
		require.Equal(t, true, format["strict"])
		_, _ = w.Write(responseBody(t, map[string]any{"cards": []any{}}))
	}))
	defer srv.Close()

	obj, err := newTestClient(t, srv.URL, 0).GenerateJSON(context.Background(), "sys", "usr", "flashcards", map[string]any{"type": "object"})
	require.NoError(t, err)
	require.Contains(t, obj, "cards")
}

func TestGenerateJSONRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write(responseBody(t, map[string]any{"ok": true}))
	}))
	defer srv.Close()

	obj, err := newTestClient(t, srv.URL, 2).GenerateJSON(context.Background(), "s", "u", "x", map[string]any{})
	require.NoError(t, err)
	require.Equal(t, true, obj["ok"])
	require.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestGenerateJSONDropsRejectedTemperature(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		raw, _ := io.ReadAll(r.Body)
		var req map[string]any
		require.NoError(t, json.Unmarshal(raw, &req))
		if _, ok := req["temperature"]; ok {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"message":"Unsupported parameter: 'temperature'"}}`))
			return
		}
		_, _ = w.Write(responseBody(t, map[string]any{"ok": true}))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 0)
	_, err := c.GenerateJSON(context.Background(), "s", "u", "x", map[string]any{})
	require.NoError(t, err)
	_, err = c.GenerateJSON(context.Background(), "s", "u", "x", map[string]any{})
	require.NoError(t, err)
	require.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestGenerateJSONNonRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL, 3).GenerateJSON(context.Background(), "s", "u", "x", map[string]any{})
	require.Error(t, err)
	var httpErr *openAIHTTPError
	require.ErrorAs(t, err, &httpErr)
	require.Equal(t, http.StatusUnauthorized, httpErr.StatusCode)
}
