package semantic_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/signalnine/gradecheck/internal/semantic"
)

func TestOpenAIScorer(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer sk-test" {
			t.Errorf("unexpected auth header %q", auth)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"{\"score\":3}"}}],"usage":{"prompt_tokens":120,"completion_tokens":30}}`))
	}))
	defer srv.Close()

	s := semantic.NewOpenAIScorer(srv.URL+"/v1/", "sk-test", "")
	resp, err := s.Score(context.Background(), semantic.Request{System: "sys", Prompt: "grade it", Temperature: 0.3, MaxTokens: 500})
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if resp.Content != `{"score":3}` || resp.InputTokens != 120 || resp.OutputTokens != 30 {
		t.Errorf("response: %+v", resp)
	}
	if got["model"] != semantic.DefaultOpenAIModel || got["temperature"] != 0.3 {
		t.Errorf("request body: %v", got)
	}
	if rf, _ := got["response_format"].(map[string]any); rf["type"] != "json_object" {
		t.Errorf("response_format: %v", got["response_format"])
	}
	msgs, _ := got["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("expected system and user messages, got %v", msgs)
	}
	if first, _ := msgs[0].(map[string]any); first["role"] != "system" {
		t.Errorf("first message: %v", first)
	}
}

func TestOpenAIScorerErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{"rate limited", http.StatusTooManyRequests, `{"error":"slow down"}`, "429"},
		{"no choices", http.StatusOK, `{"choices":[]}`, "no choices"},
		{"garbage", http.StatusOK, `not json`, "decoding"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()
			_, err := semantic.NewOpenAIScorer(srv.URL, "k", "m").Score(context.Background(), semantic.Request{Prompt: "p"})
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("got %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestAnthropicScorer(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if key := r.Header.Get("X-Api-Key"); key != "ak-test" {
			t.Errorf("unexpected api key %q", key)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant","model":"claude-sonnet-4-20250514",
			"content":[{"type":"text","text":"{\"score\": 2}"}],"stop_reason":"end_turn",
			"usage":{"input_tokens":80,"output_tokens":12}}`))
	}))
	defer srv.Close()

	s := semantic.NewAnthropicScorer(context.Background(), semantic.Config{
		Provider: semantic.ProviderAnthropic,
		APIKey:   "ak-test",
		BaseURL:  srv.URL,
	})
	if s.Provider() != "anthropic" || s.Model() != semantic.DefaultAnthropicModel {
		t.Errorf("provider/model: %s %s", s.Provider(), s.Model())
	}
	resp, err := s.Score(context.Background(), semantic.Request{System: "sys", Prompt: "grade it", Temperature: 0.3, MaxTokens: 500})
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if resp.Content != `{"score": 2}` || resp.InputTokens != 80 || resp.OutputTokens != 12 {
		t.Errorf("response: %+v", resp)
	}
	if got["max_tokens"] != float64(500) || got["temperature"] != 0.3 {
		t.Errorf("request body: %v", got)
	}
}

func TestNewScorer(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "")
	ctx := context.Background()

	if _, err := semantic.NewScorer(ctx, semantic.Config{}); !errors.Is(err, semantic.ErrNoCredentials) {
		t.Errorf("openai without key: got %v", err)
	}
	if _, err := semantic.NewScorer(ctx, semantic.Config{Provider: "anthropic"}); !errors.Is(err, semantic.ErrNoCredentials) {
		t.Errorf("anthropic without key: got %v", err)
	}
	if _, err := semantic.NewScorer(ctx, semantic.Config{Provider: "oracle"}); err == nil {
		t.Error("expected error for unknown provider")
	}

	t.Setenv("OPENAI_API_KEY", "sk-env")
	s, err := semantic.NewScorer(ctx, semantic.Config{Model: "gpt-4o-mini"})
	if err != nil {
		t.Fatalf("NewScorer: %v", err)
	}
	if s.Provider() != "openai" || s.Model() != "gpt-4o-mini" {
		t.Errorf("scorer: %s %s", s.Provider(), s.Model())
	}
	if o, ok := s.(*semantic.OpenAIScorer); !ok || o.APIKey != "sk-env" {
		t.Errorf("expected env key fallback, got %+v", s)
	}
}
