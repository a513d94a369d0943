package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docquery/docquery/internal/core"
)

func completionHandler(t *testing.T, content string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.NotEmpty(t, req.Messages)

		resp := map[string]interface{}{
			"choices": []map[string]interface{}{
				{"finish_reason": "stop", "message": map[string]string{"role": "assistant", "content": content}},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}
}

func TestCompleteReturnsContent(t *testing.T) {
	srv := httptest.NewServer(completionHandler(t, "A grace period of thirty days applies."))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	answer, err := c.Complete(context.Background(), "What is the grace period?", 500, 0.1)
	require.NoError(t, err)
	assert.Equal(t, "A grace period of thirty days applies.", answer)
}

func TestCompleteSendsRequestFields(t *testing.T) {
	var got ChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		completionHandler(t, "ok")(w, r)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Model: "gpt-3.5-turbo"})
	_, err := c.Complete(context.Background(), "question", 321, 0.1)
	require.NoError(t, err)
	assert.Equal(t, "gpt-3.5-turbo", got.Model)
	assert.Equal(t, 321, got.MaxTokens)
	assert.InDelta(t, 0.1, float64(got.Temperature), 1e-6)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "user", got.Messages[0].Role)
	assert.Equal(t, "question", got.Messages[0].Content)
}

func TestCompleteRetriesServerErrors(t *testing.T) {
	var calls int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt64(&calls, 1) == 1 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		completionHandler(t, "recovered")(w, r)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	answer, err := c.Complete(context.Background(), "question", 100, 0.1)
	require.NoError(t, err)
	assert.Equal(t, "recovered", answer)
	assert.EqualValues(t, 2, atomic.LoadInt64(&calls))
}

func TestCompleteClientErrorNotRetried(t *testing.T) {
	var calls int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	_, err := c.Complete(context.Background(), "question", 100, 0.1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrLLM))
	assert.EqualValues(t, 1, atomic.LoadInt64(&calls))
}

func TestCompleteAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]string{"message": "context length exceeded", "type": "invalid_request_error"},
		})
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	_, err := c.Complete(context.Background(), "question", 100, 0.1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrLLM))
	assert.Contains(t, err.Error(), "context length exceeded")
}

func TestCompleteNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"choices": []interface{}{}})
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	_, err := c.Complete(context.Background(), "question", 100, 0.1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrLLM))
}
