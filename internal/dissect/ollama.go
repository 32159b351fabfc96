package dissect

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/starford/bok/internal/apperr"
)

const (
	defaultOllamaURL  = "http://localhost"
	defaultOllamaPort = 11434
	generatePath      = "/api/generate"
)

const dissectPrompt = `You dissect Markdown documents into their smallest semantic units.
For every unit, in document order, output exactly one line holding a JSON array of two strings:
["<short blurb of at most 50 characters>", "<the unit's full content, verbatim>"]
Units are separated by blank lines in the source; joining all contents with a blank line must
reproduce the document exactly. Do not output anything else.

Document:
`

type generateRequest struct {
	Model  string `json:"model"`
	Stream bool   `json:"stream"`
	Think  bool   `json:"think"`
	Prompt string `json:"prompt"`
}

type generateChunk struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

// Ollama dissects documents with a streaming Ollama-compatible generate
// endpoint. Each Dissect call issues one request and is single-pass.
type Ollama struct {
	model    string
	endpoint string
	client   *http.Client
	logger   *slog.Logger
}

// NewOllama returns a remote provider. An empty baseURL or zero port falls
// back to http://localhost:11434; a port already present in baseURL wins.
func NewOllama(model, baseURL string, port int, logger *slog.Logger) *Ollama {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ollama{
		model:    model,
		endpoint: endpoint(baseURL, port),
		client:   &http.Client{},
		logger:   logger,
	}
}

func endpoint(baseURL string, port int) string {
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}
	if port <= 0 {
		port = defaultOllamaPort
	}
	base := strings.TrimRight(baseURL, "/")
	if u, err := url.Parse(base); err == nil && u.Host != "" && u.Port() == "" {
		u.Host = u.Host + ":" + strconv.Itoa(port)
		base = u.String()
	}
	return base + generatePath
}

// Kind implements Provider.
func (o *Ollama) Kind() Kind { return KindOllama }

// Endpoint returns the generate URL requests are sent to.
func (o *Ollama) Endpoint() string { return o.endpoint }

// Dissect implements Provider. Parts are yielded as soon as their line is
// complete in the streamed response, so consumers can start working before
// the model has finished.
func (o *Ollama) Dissect(ctx context.Context, document string) iter.Seq2[Part, error] {
	return func(yield func(Part, error) bool) {
		body, err := json.Marshal(generateRequest{
			Model:  o.model,
			Stream: true,
			Think:  false,
			Prompt: dissectPrompt + document,
		})
		if err != nil {
			yield(Part{}, fmt.Errorf("dissect: encode request: %w", err))
			return
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint, bytes.NewReader(body))
		if err != nil {
			yield(Part{}, fmt.Errorf("dissect: build request: %w: %w", apperr.ErrNetwork, err))
			return
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := o.client.Do(req)
		if err != nil {
			yield(Part{}, fmt.Errorf("dissect: ollama request: %w: %w", apperr.ErrNetwork, err))
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			yield(Part{}, fmt.Errorf("dissect: ollama status %d: %s: %w",
				resp.StatusCode, strings.TrimSpace(string(snippet)), apperr.ErrNetwork))
			return
		}

		o.stream(resp.Body, yield)
	}
}

// stream decodes the newline-delimited response envelopes in r and yields
// every completed segment.
func (o *Ollama) stream(r io.Reader, yield func(Part, error) bool) {
	dec := json.NewDecoder(r)
	var lines lineBuffer
	for {
		var chunk generateChunk
		if err := dec.Decode(&chunk); err != nil {
			if errors.Is(err, io.EOF) {
				o.logger.Warn("dissect: stream ended without done flag")
				o.emit(lines.Rest(), yield)
				return
			}
			yield(Part{}, classifyDecodeError(err))
			return
		}
		if chunk.Error != "" {
			yield(Part{}, fmt.Errorf("dissect: ollama: %s: %w", chunk.Error, apperr.ErrNetwork))
			return
		}
		for _, line := range lines.Feed(chunk.Response) {
			if !o.emit(line, yield) {
				return
			}
		}
		if chunk.Done {
			o.emit(lines.Rest(), yield)
			return
		}
	}
}

// emit parses one segment and hands it to yield. Blank segments are dropped.
// It reports whether the consumer wants more.
func (o *Ollama) emit(segment string, yield func(Part, error) bool) bool {
	part, ok, err := parseSegment(segment)
	if err != nil {
		o.logger.Warn("dissect: malformed segment", slog.String("segment", segment), slog.String("error", err.Error()))
		return yield(Part{}, err)
	}
	if !ok {
		return true
	}
	return yield(part, nil)
}

// classifyDecodeError tags envelope failures. A broken envelope ends the
// stream, so it carries apperr.ErrNetwork even when the cause is malformed
// JSON.
func classifyDecodeError(err error) error {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return fmt.Errorf("dissect: decode stream: %w: %w: %w", apperr.ErrNetwork, apperr.ErrProtocol, err)
	}
	return fmt.Errorf("dissect: read stream: %w: %w", apperr.ErrNetwork, err)
}

// parseSegment decodes a ["label", "content"] line. ok is false for blank
// lines.
func parseSegment(segment string) (part Part, ok bool, err error) {
	line := strings.TrimSpace(segment)
	if line == "" {
		return Part{}, false, nil
	}
	var pair []string
	if err := json.Unmarshal([]byte(line), &pair); err != nil {
		return Part{}, false, fmt.Errorf("dissect: segment %q: %w: %w", line, apperr.ErrProtocol, err)
	}
	if len(pair) != 2 {
		return Part{}, false, fmt.Errorf("dissect: segment %q has %d elements, want 2: %w",
			line, len(pair), apperr.ErrProtocol)
	}
	return Part{Label: pair[0], Content: pair[1]}, true, nil
}

// lineBuffer accumulates streamed text and releases newline-terminated lines.
type lineBuffer struct {
	pending strings.Builder
}

// Feed appends chunk and returns every line completed by it, without the
// trailing newline.
func (b *lineBuffer) Feed(chunk string) []string {
	b.pending.WriteString(chunk)
	if !strings.Contains(chunk, "\n") {
		return nil
	}
	text := b.pending.String()
	cut := strings.LastIndexByte(text, '\n')
	lines := strings.Split(text[:cut], "\n")
	b.pending.Reset()
	b.pending.WriteString(text[cut+1:])
	return lines
}

// Rest drains and returns the unterminated remainder.
func (b *lineBuffer) Rest() string {
	rest := b.pending.String()
	b.pending.Reset()
	return rest
}
