// Package whisper provides a batch ASR recognizer backed by a running
// whisper-server binary, which exposes a REST API at POST /inference.
// It implements asr.Recognizer; the chunked package adapts it into the
// streaming asr.Provider contract.
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/voxbridge/voxbridge/pkg/audio"
	"github.com/voxbridge/voxbridge/pkg/types"
)

// defaultConfidence is assigned to whisper results: the server does not
// report a per-utterance confidence, and batch transcripts of complete
// utterances are reliable enough to clear the pipeline's confidence floor.
const defaultConfidence = 0.85

// Option is a functional option for configuring a Recognizer.
type Option func(*Recognizer)

// WithModel sets the model identifier forwarded to the whisper server
// (e.g., "base", "small"). When empty the server uses whichever model it was
// started with.
func WithModel(model string) Option {
	return func(r *Recognizer) {
		r.model = model
	}
}

// WithHTTPClient overrides the HTTP client used for inference requests.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Recognizer) {
		r.httpClient = c
	}
}

// Recognizer implements asr.Recognizer backed by a whisper-server HTTP API.
type Recognizer struct {
	serverURL  string
	model      string
	httpClient *http.Client
}

// New creates a Recognizer that connects to the whisper server at serverURL
// (e.g., "http://localhost:8080"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Recognizer, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	r := &Recognizer{
		serverURL:  serverURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

// Name identifies the recognizer in logs and stream errors.
func (r *Recognizer) Name() string { return "whisper" }

// inferenceResponse is the JSON body returned by POST /inference.
type inferenceResponse struct {
	Text  string `json:"text"`
	Error string `json:"error,omitempty"`
}

// Recognize encodes pcm as a WAV file and POSTs it to the /inference endpoint
// as multipart/form-data, returning the normalized transcript.
func (r *Recognizer) Recognize(ctx context.Context, pcm []byte, language string) (types.Transcript, error) {
	wav := audio.EncodeWAV(pcm, audio.SampleRate, audio.Channels)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return types.Transcript{}, fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return types.Transcript{}, fmt.Errorf("whisper: write wav data: %w", err)
	}

	if language != "" {
		if err := mw.WriteField("language", types.PrimaryLang(language)); err != nil {
			return types.Transcript{}, fmt.Errorf("whisper: write language field: %w", err)
		}
	}
	if r.model != "" {
		if err := mw.WriteField("model", r.model); err != nil {
			return types.Transcript{}, fmt.Errorf("whisper: write model field: %w", err)
		}
	}

	if err := mw.Close(); err != nil {
		return types.Transcript{}, fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.serverURL+"/inference", &body)
	if err != nil {
		return types.Transcript{}, fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return types.Transcript{}, fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return types.Transcript{}, fmt.Errorf("whisper: inference: status %d: %s", resp.StatusCode, b)
	}

	var ir inferenceResponse
	if err := json.NewDecoder(resp.Body).Decode(&ir); err != nil {
		return types.Transcript{}, fmt.Errorf("whisper: decode response: %w", err)
	}
	if ir.Error != "" {
		return types.Transcript{}, fmt.Errorf("whisper: inference: %s", ir.Error)
	}

	return types.Transcript{
		Text:       strings.TrimSpace(ir.Text),
		IsFinal:    true,
		Confidence: defaultConfidence,
		Language:   language,
		Timestamp:  time.Now(),
	}, nil
}
