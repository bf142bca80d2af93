package gemini

import (
	"log/slog"
	"net/http"
	"net/http/httputil"
	"strings"

	"github.com/nstogner/scholarmate/pkg/config"
)

type loggingTransport struct {
	base   http.RoundTripper
	apiKey string
}

func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// A custom http.Client can bypass the SDK's own key injection.
	if t.apiKey != "" && req.Header.Get("x-goog-api-key") == "" && req.URL.Query().Get("key") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("x-goog-api-key", t.apiKey)
	}

	if !slog.Default().Enabled(req.Context(), config.LevelTrace) {
		return t.base.RoundTrip(req)
	}

	reqDump, err := httputil.DumpRequestOut(req, true)
	if err != nil {
		slog.Debug("Failed to dump Gemini request", "error", err)
	} else {
		slog.Log(req.Context(), config.LevelTrace, "Gemini REST Request", "url", redact(req.URL.String()), "dump", redact(string(reqDump)))
	}

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	// Streaming bodies are never dumped; reading them would block the stream.
	isStream := strings.Contains(resp.Header.Get("Content-Type"), "text/event-stream") ||
		strings.Contains(req.URL.Query().Get("alt"), "sse")

	respDump, err := httputil.DumpResponse(resp, !isStream)
	if err != nil {
		slog.Debug("Failed to dump Gemini response", "error", err)
	} else {
		slog.Log(req.Context(), config.LevelTrace, "Gemini REST Response", "isStream", isStream, "dump", string(respDump))
	}

	return resp, nil
}

// redact hides the API key in dumped request text.
func redact(s string) string {
	const header = "X-Goog-Api-Key: "
	i := strings.Index(s, header)
	if i < 0 {
		return s
	}
	end := strings.Index(s[i:], "\r\n")
	if end < 0 {
		return s[:i] + header + "REDACTED"
	}
	return s[:i] + header + "REDACTED" + s[i+end:]
}
