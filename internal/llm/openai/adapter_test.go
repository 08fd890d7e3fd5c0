package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nulzo/llm-gateway/internal/llm"
	"github.com/nulzo/llm-gateway/pkg/api"
)

func testConfig(endpoint string) llm.ClientConfig {
	return llm.ClientConfig{
		Name:     "gpt4",
		Model:    "gpt-4o",
		Endpoint: endpoint,
		APIKey:   "sk-test",
		Timeout:  2 * time.Second,
	}
}

func chatRequest() *api.ChatRequest {
	return &api.ChatRequest{
		Model:     "gpt-4o",
		MaxTokens: 64,
		Messages: []api.ChatMessage{
			{Role: string(api.User), Content: "hi"},
		},
	}
}

func TestNewAdapter_RejectsBadEndpoint(t *testing.T) {
	_, err := NewAdapter(testConfig("ftp://nope"))
	require.Error(t, err)

	_, err = NewAdapter(testConfig("https://"))
	require.Error(t, err)
}

func TestChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req api.ChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o", req.Model)
		assert.False(t, req.Stream, "non-streaming call must not set the stream flag")

		json.NewEncoder(w).Encode(api.ChatResponse{
			ID:    "chatcmpl-1",
			Model: "gpt-4o",
			Choices: []api.Choice{{
				Message:      &api.ChatMessage{Role: "assistant", Content: "hello"},
				FinishReason: "stop",
			}},
			Usage: &api.ResponseUsage{PromptTokens: 3, CompletionTokens: 1, TotalTokens: 4},
		})
	}))
	defer srv.Close()

	a, err := NewAdapter(testConfig(srv.URL))
	require.NoError(t, err)

	resp, err := a.Chat(context.Background(), chatRequest())
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Text())
	assert.Equal(t, 4, resp.Usage.TotalTokens)
}

func TestChat_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"overloaded"}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	a, err := NewAdapter(testConfig(srv.URL))
	require.NoError(t, err)

	_, err = a.Chat(context.Background(), chatRequest())
	require.Error(t, err)
}

func TestStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req api.ChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Stream)
		require.NotNil(t, req.StreamOptions)
		assert.True(t, req.StreamOptions.IncludeUsage)

		w.Header().Set("Content-Type", "text/event-stream")
		for _, text := range []string{"Hel", "lo"} {
			chunk, _ := json.Marshal(api.ChatResponse{
				Choices: []api.Choice{{Delta: &api.ChatMessage{Content: text}}},
			})
			fmt.Fprintf(w, "data: %s\n\n", chunk)
		}
		fmt.Fprint(w, ": keep-alive comment\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	a, err := NewAdapter(testConfig(srv.URL))
	require.NoError(t, err)

	ch, err := a.Stream(context.Background(), chatRequest())
	require.NoError(t, err)

	var got []string
	for res := range ch {
		require.NoError(t, res.Err)
		got = append(got, res.Response.DeltaText())
	}
	assert.Equal(t, []string{"Hel", "lo"}, got)
}

func TestStream_UpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	a, err := NewAdapter(testConfig(srv.URL))
	require.NoError(t, err)

	ch, err := a.Stream(context.Background(), chatRequest())
	require.NoError(t, err)

	res, ok := <-ch
	require.True(t, ok)
	require.Error(t, res.Err)

	_, ok = <-ch
	assert.False(t, ok, "channel closes after the terminal error")
}

func TestStream_ConsumerCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		f, _ := w.(http.Flusher)
		chunk, _ := json.Marshal(api.ChatResponse{
			Choices: []api.Choice{{Delta: &api.ChatMessage{Content: "x"}}},
		})
		for {
			if _, err := fmt.Fprintf(w, "data: %s\n\n", chunk); err != nil {
				return
			}
			if f != nil {
				f.Flush()
			}
			select {
			case <-r.Context().Done():
				return
			case <-time.After(10 * time.Millisecond):
			}
		}
	}))
	defer srv.Close()

	a, err := NewAdapter(testConfig(srv.URL))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := a.Stream(ctx, chatRequest())
	require.NoError(t, err)

	res, ok := <-ch
	require.True(t, ok)
	require.NoError(t, res.Err)
	cancel()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("stream channel did not close after cancellation")
		}
	}
}
