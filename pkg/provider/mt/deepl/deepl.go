// Package deepl provides a DeepL-backed machine translation provider using
// the v2 REST API. It implements mt.Provider.
package deepl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/voxbridge/voxbridge/pkg/provider/mt"
	"github.com/voxbridge/voxbridge/pkg/types"
)

const defaultBaseURL = "https://api-free.deepl.com"

// defaultConfidence is assigned to DeepL results: the API does not report a
// confidence score, and its output is reliable enough to pass the pipeline
// unpenalized.
const defaultConfidence = 0.9

// Option is a functional option for configuring the Provider.
type Option func(*Provider)

// WithBaseURL overrides the API base URL (e.g. the paid endpoint
// "https://api.deepl.com", or a test server).
func WithBaseURL(u string) Option {
	return func(p *Provider) {
		p.baseURL = strings.TrimRight(u, "/")
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// Provider implements mt.Provider backed by the DeepL v2 REST API.
type Provider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// New creates a new DeepL Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepl: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// translateResponse is the JSON body returned by POST /v2/translate.
type translateResponse struct {
	Translations []struct {
		DetectedSourceLanguage string `json:"detected_source_language"`
		Text                   string `json:"text"`
	} `json:"translations"`
}

// Translate sends a form-encoded translation request and classifies failures
// per the pipeline taxonomy: 429/456 quota, 401/403 auth, 5xx transient.
func (p *Provider) Translate(ctx context.Context, req mt.Request) (types.Translation, error) {
	form := url.Values{}
	form.Set("text", req.Text)
	form.Set("source_lang", deeplLang(req.SourceLang))
	form.Set("target_lang", deeplLang(req.TargetLang))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.baseURL+"/v2/translate", strings.NewReader(form.Encode()))
	if err != nil {
		return types.Translation{}, fmt.Errorf("deepl: build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "DeepL-Auth-Key "+p.apiKey)
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return types.Translation{}, fmt.Errorf("deepl: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return types.Translation{}, classifyStatus(resp)
	}

	var tr translateResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return types.Translation{}, fmt.Errorf("deepl: decode response: %w", err)
	}
	if len(tr.Translations) == 0 {
		return types.Translation{}, errors.New("deepl: empty translations array")
	}

	t := tr.Translations[0]
	return types.Translation{
		Text:             t.Text,
		DetectedLanguage: strings.ToLower(t.DetectedSourceLanguage),
		Confidence:       defaultConfidence,
	}, nil
}

// classifyStatus maps a non-200 response onto the mt error taxonomy.
func classifyStatus(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == 456:
		// 456 is DeepL's character-quota-exceeded status.
		return fmt.Errorf("%w: status %d", mt.ErrQuotaExhausted, resp.StatusCode)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: status %d", mt.ErrAuthInvalid, resp.StatusCode)
	default:
		return &mt.ProviderError{
			Provider:  "deepl",
			Status:    resp.StatusCode,
			Temporary: resp.StatusCode >= 500,
			Message:   string(body),
		}
	}
}

// deeplLang converts a BCP-47-ish tag to DeepL's uppercase primary-tag form.
func deeplLang(tag string) string {
	return strings.ToUpper(types.PrimaryLang(tag))
}
