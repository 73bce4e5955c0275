package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"lingopaste/pkg/domain"
)

func fakeOpenAI(t *testing.T, status int, content string) (*httptest.Server, *[]string) {
	t.Helper()
	var prompts []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		for _, m := range req.Messages {
			if m.Role == "system" {
				prompts = append(prompts, m.Content)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			w.Write([]byte(`{"error":{"message":"upstream busy","type":"server_error"}}`))
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"choices": []map[string]interface{}{{"index": 0, "message": map[string]string{"role": "assistant", "content": content}}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &prompts
}

func TestOpenAI_DetectLanguage(t *testing.T) {
	srv, _ := fakeOpenAI(t, http.StatusOK, " 'FR'.\n")
	p := NewOpenAI(OpenAIConfig{APIKey: "test", BaseURL: srv.URL + "/v1"})

	code, err := p.DetectLanguage(context.Background(), "Bonjour tout le monde")
	if err != nil {
		t.Fatalf("DetectLanguage failed: %v", err)
	}
	if code != "fr" {
		t.Errorf("expected fr, got %q", code)
	}
}

func TestOpenAI_TranslateUsesTone(t *testing.T) {
	srv, prompts := fakeOpenAI(t, http.StatusOK, "Hallo")
	p := NewOpenAI(OpenAIConfig{APIKey: "test", BaseURL: srv.URL + "/v1"})

	out, err := p.Translate(context.Background(), "Hello", "de", domain.ToneBrusque)
	if err != nil {
		t.Fatalf("Translate failed: %v", err)
	}
	if out != "Hallo" {
		t.Errorf("expected Hallo, got %q", out)
	}
	if len(*prompts) != 1 || !strings.Contains((*prompts)[0], "German") || !strings.Contains((*prompts)[0], "direct and concise") {
		t.Errorf("system prompt missing language or tone: %v", *prompts)
	}
}

func TestOpenAI_ServerErrorIsRetryable(t *testing.T) {
	srv, _ := fakeOpenAI(t, http.StatusServiceUnavailable, "")
	p := NewOpenAI(OpenAIConfig{APIKey: "test", BaseURL: srv.URL + "/v1"})

	_, err := p.Translate(context.Background(), "Hello", "de", domain.ToneDefault)
	var pe *Error
	if !errors.As(err, &pe) {
		t.Fatalf("expected *Error, got %T %v", err, err)
	}
	if !pe.Retryable {
		t.Errorf("503 should be retryable")
	}
}

func TestOpenAI_EmptyTranslationRejected(t *testing.T) {
	srv, _ := fakeOpenAI(t, http.StatusOK, "   ")
	p := NewOpenAI(OpenAIConfig{APIKey: "test", BaseURL: srv.URL + "/v1"})

	if _, err := p.Translate(context.Background(), "Hello", "de", domain.ToneDefault); err == nil {
		t.Error("expected error for blank translation")
	}
}

func TestToneInstruction(t *testing.T) {
	if toneInstruction(domain.ToneProfessional) == toneInstruction(domain.ToneDefault) {
		t.Error("professional tone must differ from default")
	}
	if toneInstruction("unknown") != toneInstruction(domain.ToneDefault) {
		t.Error("unknown tone should fall back to default")
	}
}
