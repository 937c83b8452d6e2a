package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pratik-mahalle/bibleplan/internal/config"
	"github.com/pratik-mahalle/bibleplan/internal/domain/chat"
)

func TestOpenAICompleter_Complete(t *testing.T) {
	var gotBody map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s, want /chat/completions", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Authorization = %q", got)
		}
		_ = json.NewDecoder(r.Body).Decode(&gotBody)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"model": "gpt-4o-mini",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "In the beginning..."}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 4, "total_tokens": 16}
		}`))
	}))
	defer server.Close()

	c, err := newOpenAICompleter(config.ChatConfig{OpenAIAPIKey: "sk-test", Model: "gpt-4o-mini", MaxTokens: 50}, server.URL)
	if err != nil {
		t.Fatalf("newOpenAICompleter() error = %v", err)
	}

	got, err := c.Complete(context.Background(), []chat.Message{
		{Role: chat.RoleSystem, Content: "be kind"},
		{Role: chat.RoleUser, Content: "What is Genesis 1:1?"},
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if got.Content != "In the beginning..." {
		t.Errorf("Content = %q", got.Content)
	}
	if got.PromptTokens != 12 || got.CompletionTokens != 4 {
		t.Errorf("usage = %d/%d, want 12/4", got.PromptTokens, got.CompletionTokens)
	}

	msgs, _ := gotBody["messages"].([]interface{})
	if len(msgs) != 2 {
		t.Fatalf("sent %d messages, want 2", len(msgs))
	}
	if first, _ := msgs[0].(map[string]interface{}); first["role"] != "system" {
		t.Errorf("first role = %v, want system", first["role"])
	}
}

func TestOpenAICompleter_UpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": {"message": "rate limited", "type": "requests"}}`))
	}))
	defer server.Close()

	c, err := newOpenAICompleter(config.ChatConfig{OpenAIAPIKey: "sk-test"}, server.URL)
	if err != nil {
		t.Fatalf("newOpenAICompleter() error = %v", err)
	}

	if _, err := c.Complete(context.Background(), []chat.Message{{Role: chat.RoleUser, Content: "hi"}}); err == nil {
		t.Error("Complete() error = nil, want upstream error")
	}
}

func TestNewOpenAICompleter_RequiresKey(t *testing.T) {
	if _, err := NewOpenAICompleter(config.ChatConfig{}); !errors.Is(err, chat.ErrNotConfigured) {
		t.Errorf("NewOpenAICompleter() error = %v, want ErrNotConfigured", err)
	}
}
