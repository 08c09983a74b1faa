// Package openai provides an OpenAI-backed machine translation fallback
// using the chat completions API with a fixed translation prompt. It
// implements mt.Provider.
package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/voxbridge/voxbridge/pkg/provider/mt"
	"github.com/voxbridge/voxbridge/pkg/types"
)

const defaultModel = "gpt-4o-mini"

// defaultConfidence is assigned to chat-completion translations. Slightly
// below the primary provider's score: an instruction-following model may
// occasionally paraphrase.
const defaultConfidence = 0.85

const systemPrompt = "You are a professional real-time interpreter. " +
	"Translate the user's message from %s to %s. " +
	"Reply with the translation only: no quotes, no commentary, no alternatives. " +
	"Preserve any text wrapped in ⟦ ⟧ exactly as written. " +
	"Keep the register and tone of the original."

// Option is a functional option for configuring the Provider.
type Option func(*Provider)

// WithModel sets the chat model (e.g. "gpt-4o-mini").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// Provider implements mt.Provider backed by OpenAI chat completions.
type Provider struct {
	client openai.Client
	model  string
}

// New creates a new OpenAI translation Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai: apiKey must not be empty")
	}
	p := &Provider{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  defaultModel,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Translate issues a single chat completion with the fixed translation
// prompt and returns the trimmed reply.
func (p *Provider) Translate(ctx context.Context, req mt.Request) (types.Translation, error) {
	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(p.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(fmt.Sprintf(systemPrompt,
				languageName(req.SourceLang), languageName(req.TargetLang))),
			openai.UserMessage(req.Text),
		},
	})
	if err != nil {
		return types.Translation{}, classifyError(err)
	}
	if len(resp.Choices) == 0 {
		return types.Translation{}, errors.New("openai: empty choices")
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return types.Translation{}, errors.New("openai: empty translation")
	}

	return types.Translation{
		Text:             text,
		DetectedLanguage: types.PrimaryLang(req.SourceLang),
		Confidence:       defaultConfidence,
	}, nil
}

// classifyError maps openai-go API errors onto the mt taxonomy.
func classifyError(err error) error {
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		return err
	}
	switch {
	case apiErr.StatusCode == 429:
		return fmt.Errorf("%w: %v", mt.ErrQuotaExhausted, err)
	case apiErr.StatusCode == 401 || apiErr.StatusCode == 403:
		return fmt.Errorf("%w: %v", mt.ErrAuthInvalid, err)
	default:
		return &mt.ProviderError{
			Provider:  "openai",
			Status:    apiErr.StatusCode,
			Temporary: apiErr.StatusCode >= 500,
			Message:   apiErr.Error(),
		}
	}
}

// languageName expands a handful of common tags into the English language
// name the prompt reads best with; unknown tags pass through unchanged.
func languageName(tag string) string {
	names := map[string]string{
		"en": "English",
		"tr": "Turkish",
		"de": "German",
		"fr": "French",
		"es": "Spanish",
		"it": "Italian",
		"pt": "Portuguese",
		"nl": "Dutch",
		"pl": "Polish",
		"ru": "Russian",
		"ja": "Japanese",
		"ko": "Korean",
		"zh": "Chinese",
		"ar": "Arabic",
		"fi": "Finnish",
		"hu": "Hungarian",
	}
	if name, ok := names[types.PrimaryLang(tag)]; ok {
		return name
	}
	return tag
}
