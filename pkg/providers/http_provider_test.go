package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHTTPProvider_Generate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", got)
		}
		var req struct {
			Model    string `json:"model"`
			Stream   bool   `json:"stream"`
			Messages []struct {
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Stream {
			t.Errorf("expected non-streaming request")
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": "推荐番茄炒蛋"}},
			},
		})
	}))
	defer server.Close()

	p, err := NewHTTPProvider(Options{APIKey: "test-key", APIBase: server.URL})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}

	reply, err := p.Generate(context.Background(), "今晚吃什么")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if reply != "推荐番茄炒蛋" {
		t.Fatalf("unexpected reply %q", reply)
	}
}

func TestHTTPProvider_GenerateStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		chunks := []string{"番茄", "炒蛋"}
		for _, c := range chunks {
			payload, _ := json.Marshal(map[string]interface{}{
				"choices": []map[string]interface{}{
					{"delta": map[string]string{"content": c}},
				},
			})
			_, _ = w.Write([]byte("data: " + string(payload) + "\n\n"))
		}
		_, _ = w.Write([]byte("data: [DONE]\n\n"))
	}))
	defer server.Close()

	p, err := NewHTTPProvider(Options{APIKey: "test-key", APIBase: server.URL})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}

	var fragments []string
	err = p.GenerateStream(context.Background(), "今晚吃什么", func(f string) {
		fragments = append(fragments, f)
	})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if strings.Join(fragments, "") != "番茄炒蛋" {
		t.Fatalf("unexpected fragments %v", fragments)
	}
}

func TestHTTPProvider_NonOKStatusIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer server.Close()

	p, err := NewHTTPProvider(Options{APIKey: "k", APIBase: server.URL})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	if _, err := p.Generate(context.Background(), "hi"); err == nil {
		t.Fatalf("expected error for 429 response")
	}
}

func TestHTTPProvider_ContextTimeoutIsErrTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer server.Close()

	p, err := NewHTTPProvider(Options{APIKey: "k", APIBase: server.URL})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = p.Generate(ctx, "hi")
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestNewHTTPProvider_RequiresAPIKey(t *testing.T) {
	if _, err := NewHTTPProvider(Options{}); err == nil {
		t.Fatalf("expected error without API key")
	}
}
