package mt

import (
	"context"
	"fmt"
	"time"

	"github.com/voxbridge/voxbridge/pkg/types"
)

// defaultTimeout bounds a single Translate call including its retry.
const defaultTimeout = 10 * time.Second

// ClientOption is a functional option for configuring a Client.
type ClientOption func(*Client)

// WithTimeout overrides the per-call translation timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = d
	}
}

// Client wraps a Provider with the pipeline's translation semantics: it
// refuses empty text, protects dosage/time/numeric spans around the provider
// call, bounds the call with a hard timeout, and retries exactly once on
// transient failures.
type Client struct {
	provider Provider
	timeout  time.Duration
}

// NewClient wraps provider. provider must be non-nil.
func NewClient(provider Provider, opts ...ClientOption) (*Client, error) {
	if provider == nil {
		return nil, fmt.Errorf("mt: provider must not be nil")
	}
	c := &Client{
		provider: provider,
		timeout:  defaultTimeout,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Translate translates text from srcLang to tgtLang.
func (c *Client) Translate(ctx context.Context, text, srcLang, tgtLang string) (types.Translation, error) {
	if text == "" {
		return types.Translation{}, ErrEmptyText
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req := Request{
		Text:       ProtectSpans(text),
		SourceLang: srcLang,
		TargetLang: tgtLang,
	}

	res, err := c.provider.Translate(ctx, req)
	if err != nil && IsTemporary(err) && ctx.Err() == nil {
		res, err = c.provider.Translate(ctx, req)
	}
	if err != nil {
		return types.Translation{}, fmt.Errorf("mt: translate: %w", err)
	}

	res.Text = UnprotectSpans(res.Text)
	return res, nil
}
