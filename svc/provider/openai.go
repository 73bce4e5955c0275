package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"lingopaste/metrics"
	"lingopaste/pkg/domain"
)

type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

type OpenAI struct {
	client *openai.Client
	model  string
}

func NewOpenAI(c OpenAIConfig) *OpenAI {
	config := openai.DefaultConfig(c.APIKey)
	if c.BaseURL != "" {
		config.BaseURL = c.BaseURL
	}
	model := c.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAI{
		client: openai.NewClientWithConfig(config),
		model:  model,
	}
}

const detectPrompt = "You are a language detection assistant. Respond with ONLY the ISO 639-1 language code (e.g. 'en', 'es', 'fr', 'de', 'ja', 'zh') for the given text. No explanations, just the code."

func (p *OpenAI) DetectLanguage(ctx context.Context, text string) (string, error) {
	out, err := p.complete(ctx, "detect", detectPrompt, text, 0.1, 10)
	if err != nil {
		return "", err
	}
	code := domain.NormalizeLanguage(strings.Trim(out, " \t\r\n.'\"`"))
	if code == "" {
		return "", &Error{Op: "detect", Cause: fmt.Errorf("unusable language code %q", out)}
	}
	return code, nil
}
func (p *OpenAI) Translate(ctx context.Context, text, targetLang string, tone domain.Tone) (string, error) {
	out, err := p.complete(ctx, "translate", buildSystemPrompt(targetLang, tone), text, 0.3, 0)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(out) == "" {
		return "", &Error{Op: "translate", Cause: errors.New("empty translation")}
	}
	return out, nil
}
func (p *OpenAI) complete(ctx context.Context, op, system, user string, temperature float32, maxTokens int) (string, error) {
	start := time.Now()
	defer func() {
		metrics.ProviderDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}()
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", &Error{Op: op, Cause: err, Retryable: isRetryable(err)}
	}
	if len(resp.Choices) == 0 {
		return "", &Error{Op: op, Cause: errors.New("no choices in response"), Retryable: true}
	}
	return resp.Choices[0].Message.Content, nil
}

func buildSystemPrompt(targetLang string, tone domain.Tone) string {
	return fmt.Sprintf(`You are a professional translator. Translate the following text to %s.

Tone: %s

Important:
- Preserve all formatting (line breaks, spacing, etc.)
- Translate all content accurately
- Maintain the original meaning and context
- Return ONLY the translated text, nothing else

Target language: %s`, domain.LanguageName(targetLang), toneInstruction(tone), targetLang)
}
func toneInstruction(tone domain.Tone) string {
	switch tone {
	case domain.ToneProfessional:
		return "Use formal business language. Be polite, professional, and respectful."
	case domain.ToneFriendly:
		return "Use warm and conversational language. Be approachable and personable."
	case domain.ToneBrusque:
		return "Be direct and concise. Get straight to the point without unnecessary words."
	default:
		return "Use natural and accurate language. Be clear and appropriate for general use."
	}
}
func isRetryable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests || reqErr.HTTPStatusCode >= 500
	}
	return false
}

var _ Provider = (*OpenAI)(nil)
