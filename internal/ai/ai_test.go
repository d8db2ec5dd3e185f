package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaxOutputTokens(t *testing.T) {
	assert.EqualValues(t, 2000, MaxOutputTokens("gemini-2.5-flash"))
	assert.EqualValues(t, 4000, MaxOutputTokens("gemini-2.5-pro"))
	assert.EqualValues(t, 4000, MaxOutputTokens(""))
}

func TestGeminiHistoryRoles(t *testing.T) {
	history := toGeminiHistory([]Turn{
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello"},
		{Role: "user", Content: "again"},
	})
	require.Len(t, history, 3)
	assert.Equal(t, "user", history[0].Role)
	assert.Equal(t, "model", history[1].Role)
	assert.Equal(t, "user", history[2].Role)
	assert.Equal(t, genai.Text("hello"), history[1].Parts[0])
}

func TestResponseText(t *testing.T) {
	assert.Empty(t, responseText(nil))
	assert.Empty(t, responseText(&genai.GenerateContentResponse{}))
	assert.Empty(t, responseText(&genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: nil}},
	}))

	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []genai.Part{genai.Text("Hello, "), genai.Text("world")}},
		}},
	}
	assert.Equal(t, "Hello, world", responseText(resp))
}

func TestNewGeminiClientRequiresKey(t *testing.T) {
	_, err := NewGeminiClient(context.Background(), GeminiConfig{})
	assert.Error(t, err)
}

func TestOpenAICompatibleGenerate(t *testing.T) {
	var got struct {
		Model     string        `json:"model"`
		Messages  []ChatMessage `json:"messages"`
		MaxTokens int           `json:"max_tokens"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"pong"}}]}`))
	}))
	defer srv.Close()

	client, err := NewOpenAICompatibleClient(ChatConfig{BaseURL: srv.URL + "/v1/", APIKey: "key", Model: "m"})
	require.NoError(t, err)

	text, err := client.Generate(context.Background(), "ping", []Turn{
		{Role: "user", Content: "a"},
		{Role: "assistant", Content: "b"},
	})
	require.NoError(t, err)
	assert.Equal(t, "pong", text)
	assert.Equal(t, "m", got.Model)
	assert.Equal(t, 4000, got.MaxTokens)
	assert.Equal(t, []ChatMessage{
		{Role: "user", Content: "a"},
		{Role: "assistant", Content: "b"},
		{Role: "user", Content: "ping"},
	}, got.Messages)
}

func TestOpenAICompatibleEmptyAndErrors(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"empty content", http.StatusOK, `{"choices":[{"message":{"content":"  "}}]}`, ErrEmptyResponse},
		{"no choices", http.StatusOK, `{"choices":[]}`, ErrEmptyResponse},
		{"server error", http.StatusInternalServerError, `boom`, ErrBackend},
		{"bad json", http.StatusOK, `{`, ErrBackend},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			client, err := NewOpenAICompatibleClient(ChatConfig{BaseURL: srv.URL, Model: "m"})
			require.NoError(t, err)
			_, err = client.Generate(context.Background(), "ping", nil)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}
