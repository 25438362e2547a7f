package recommend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/interestbot/internal/apperr"
)

func newTestServer(t *testing.T, status int, reply string, seen *openai.ChatCompletionRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		if seen != nil {
			assert.NoError(t, json.NewDecoder(r.Body).Decode(seen))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			_, _ = w.Write([]byte(`{"error":{"message":"backend down","type":"server_error"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{{
				Message:      openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: reply},
				FinishReason: openai.FinishReasonStop,
			}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAIGeneratorSendsPrompt(t *testing.T) {
	var seen openai.ChatCompletionRequest
	srv := newTestServer(t, http.StatusOK, "  1. Chess club night  ", &seen)

	gen, err := NewOpenAI(Config{APIKey: "k", BaseURL: srv.URL + "/v1", Model: "test-model"})
	require.NoError(t, err)

	out, err := gen.Generate(context.Background(), "hello there")
	require.NoError(t, err)
	assert.Equal(t, "1. Chess club night", out)

	assert.Equal(t, "test-model", seen.Model)
	require.Len(t, seen.Messages, 2)
	assert.Equal(t, openai.ChatMessageRoleSystem, seen.Messages[0].Role)
	assert.Equal(t, "hello there", seen.Messages[1].Content)
}

func TestOpenAIGeneratorBackendErrorIsTransient(t *testing.T) {
	srv := newTestServer(t, http.StatusInternalServerError, "", nil)

	gen, err := NewOpenAI(Config{APIKey: "k", BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)

	_, err = gen.Generate(context.Background(), "anything")
	require.Error(t, err)
	assert.True(t, apperr.IsTransient(err))
}

func TestOpenAIGeneratorEmptyCompletionIsTransient(t *testing.T) {
	srv := newTestServer(t, http.StatusOK, "   ", nil)

	gen, err := NewOpenAI(Config{APIKey: "k", BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)

	_, err = gen.Generate(context.Background(), "anything")
	assert.True(t, apperr.IsTransient(err))
}

func TestNewOpenAIValidatesConfig(t *testing.T) {
	_, err := NewOpenAI(Config{})
	assert.Error(t, err)

	_, err = NewOpenAI(Config{APIKey: "k", Provider: "azure"})
	assert.Error(t, err)

	_, err = NewOpenAI(Config{APIKey: "k", Provider: "bard"})
	assert.Error(t, err)
}

func TestPromptEmbedsInterest(t *testing.T) {
	p, err := NewPrompt("")
	require.NoError(t, err)

	out, err := p.Render("photography")
	require.NoError(t, err)
	assert.Contains(t, out, "Recommend 3 online activities about photography.")

	custom, err := NewPrompt("Ideas for {{.Interest}}")
	require.NoError(t, err)
	out, err = custom.Render("chess")
	require.NoError(t, err)
	assert.Equal(t, "Ideas for chess", out)

	_, err = NewPrompt("{{.Interest")
	assert.Error(t, err)
}
