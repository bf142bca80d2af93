// Package gemini implements model.Provider on top of the Google Gen AI SDK.
package gemini

import (
	"context"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/nstogner/scholarmate/pkg/domain"
	"github.com/nstogner/scholarmate/pkg/model"
	"google.golang.org/genai"
)

// Config configures the Gemini provider.
type Config struct {
	// APIKey authenticates requests. When empty the SDK falls back to the
	// GEMINI_API_KEY / GOOGLE_API_KEY environment variables.
	APIKey string
	// BaseURL overrides the API endpoint.
	BaseURL string
	// APIVersion overrides the API version (e.g. "v1beta").
	APIVersion string
	// Transport is the base RoundTripper. Defaults to http.DefaultTransport.
	Transport http.RoundTripper
}

// Provider implements model.Provider using the Google Gen AI SDK.
//
// The SDK client is created on first use, so a missing credential surfaces
// from StartChat instead of preventing startup.
type Provider struct {
	cfg Config

	mu     sync.Mutex
	client *genai.Client
}

// Verify interface compliance.
var _ model.Provider = (*Provider)(nil)

// New creates a new Gemini provider.
func New(cfg Config) *Provider {
	if cfg.Transport == nil {
		cfg.Transport = http.DefaultTransport
	}
	return &Provider{cfg: cfg}
}

// Name returns the provider identifier.
func (p *Provider) Name() string { return "gemini" }

func (p *Provider) genaiClient(ctx context.Context) (*genai.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		return p.client, nil
	}

	cc := &genai.ClientConfig{
		APIKey:  p.cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
		HTTPClient: &http.Client{
			Transport: &loggingTransport{
				base:   p.cfg.Transport,
				apiKey: p.cfg.APIKey,
			},
		},
	}
	if p.cfg.BaseURL != "" || p.cfg.APIVersion != "" {
		cc.HTTPOptions = genai.HTTPOptions{
			BaseURL:    p.cfg.BaseURL,
			APIVersion: p.cfg.APIVersion,
		}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	p.client = client
	return client, nil
}

// List returns available Gemini models.
func (p *Provider) List(ctx context.Context) ([]domain.Model, error) {
	client, err := p.genaiClient(ctx)
	if err != nil {
		return nil, err
	}

	var models []domain.Model
	for m, err := range client.Models.All(ctx) {
		if err != nil {
			return nil, err
		}

		// Filter for models that support generateContent.
		supportsGenerate := false
		if !strings.Contains(strings.ToLower(m.Name), "gemma") {
			for _, action := range m.SupportedActions {
				if action == "generateContent" {
					supportsGenerate = true
					break
				}
			}
		}

		if supportsGenerate {
			models = append(models, domain.Model{
				ID:        m.Name,
				Name:      m.DisplayName,
				Provider:  "gemini",
				MaxTokens: int(m.InputTokenLimit),
			})
		}
	}
	return models, nil
}

// StartChat creates a chat bound to the persona and toolset in cfg. The chat
// keeps its own history; the remote side holds no state between requests.
func (p *Provider) StartChat(ctx context.Context, cfg model.ChatConfig) (model.Chat, error) {
	client, err := p.genaiClient(ctx)
	if err != nil {
		return nil, err
	}

	config := &genai.GenerateContentConfig{
		Tools: buildTools(cfg.Tools),
	}
	if cfg.Instructions != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: cfg.Instructions}},
		}
	}

	c, err := client.Chats.Create(ctx, cfg.Model, config, nil)
	if err != nil {
		return nil, fmt.Errorf("creating chat: %w", err)
	}
	slog.Debug("Gemini.StartChat", "model", cfg.Model, "tools", len(config.Tools))
	return &geminiChat{chat: c, model: cfg.Model}, nil
}

func buildTools(tools []model.Tool) []*genai.Tool {
	var out []*genai.Tool
	for _, t := range tools {
		switch t {
		case model.ToolGoogleSearch:
			out = append(out, &genai.Tool{GoogleSearch: &genai.GoogleSearch{}})
		default:
			slog.Warn("Ignoring unsupported tool", "tool", t)
		}
	}
	return out
}

type geminiChat struct {
	chat  *genai.Chat
	model string
}

func (c *geminiChat) SendStream(ctx context.Context, text string) (model.ModelStream, error) {
	slog.Debug("Gemini.SendStream", "model", c.model, "length", len(text))

	streamCtx, cancel := context.WithCancel(ctx)
	next, stop := iter.Pull2(c.chat.SendMessageStream(streamCtx, genai.Part{Text: text}))

	return &geminiStream{
		next:   next,
		stop:   stop,
		cancel: cancel,
	}, nil
}

// geminiStream adapts the SDK's push iterator to a pull-based ModelStream.
type geminiStream struct {
	next   func() (*genai.GenerateContentResponse, error, bool)
	stop   func()
	cancel context.CancelFunc
}

func (s *geminiStream) Next() (model.Fragment, error) {
	resp, err, ok := s.next()
	if !ok {
		return model.Fragment{}, io.EOF
	}
	if err != nil {
		return model.Fragment{}, err
	}
	return fragmentFromResponse(resp), nil
}

func (s *geminiStream) Close() error {
	s.stop()
	s.cancel()
	return nil
}

// fragmentFromResponse extracts the text delta and grounding metadata of the
// first candidate. Thought parts are skipped.
func fragmentFromResponse(resp *genai.GenerateContentResponse) model.Fragment {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return model.Fragment{}
	}
	cand := resp.Candidates[0]

	var text strings.Builder
	if cand.Content != nil {
		for _, part := range cand.Content.Parts {
			if part == nil || part.Thought {
				continue
			}
			text.WriteString(part.Text)
		}
	}

	return model.Fragment{
		Text:     text.String(),
		Metadata: groundingFromGenAI(cand.GroundingMetadata),
	}
}

func groundingFromGenAI(gm *genai.GroundingMetadata) *domain.GroundingMetadata {
	if gm == nil {
		return nil
	}
	md := &domain.GroundingMetadata{}
	for _, chunk := range gm.GroundingChunks {
		if chunk == nil || chunk.Web == nil {
			continue
		}
		md.Sources = append(md.Sources, domain.GroundingSource{
			URI:   chunk.Web.URI,
			Title: chunk.Web.Title,
		})
	}
	if len(gm.WebSearchQueries) > 0 {
		md.WebSearchQueries = append([]string(nil), gm.WebSearchQueries...)
	}
	if md.IsEmpty() {
		return nil
	}
	return md
}
