package dissect

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/bok/internal/apperr"
)

type item struct {
	part Part
	err  error
}

func collect(seq func(func(Part, error) bool)) []item {
	var out []item
	seq(func(p Part, err error) bool {
		out = append(out, item{p, err})
		return true
	})
	return out
}

func TestLocal_SplitsOnBlankLine(t *testing.T) {
	doc := "This is the first part.\n\nThis is the second part.\n\n# Heading for third part."
	items := collect(NewLocal(0).Dissect(context.Background(), doc))

	require.Len(t, items, 3)
	assert.Equal(t, Part{Label: "This is the first part.", Content: "This is the first part."}, items[0].part)
	assert.Equal(t, "This is the second part.", items[1].part.Content)
	assert.Equal(t, Part{Label: "Heading for third part.", Content: "# Heading for third part."}, items[2].part)
	for _, it := range items {
		assert.NoError(t, it.err)
	}
}

func TestLocal_Restartable(t *testing.T) {
	seq := NewLocal(0).Dissect(context.Background(), "a\n\nb")
	assert.Equal(t, collect(seq), collect(seq))
}

func TestLocal_BoundedLabel(t *testing.T) {
	items := collect(NewLocal(5).Dissect(context.Background(), "abcdefghij"))
	require.Len(t, items, 1)
	assert.Equal(t, "abcde", items[0].part.Label)
	assert.Equal(t, "abcdefghij", items[0].part.Content)
}

func TestLocal_EarlyBreak(t *testing.T) {
	n := 0
	for range NewLocal(0).Dissect(context.Background(), "a\n\nb\n\nc") {
		n++
		break
	}
	assert.Equal(t, 1, n)
}

func TestNew_SelectsVariant(t *testing.T) {
	p, err := New(Settings{Provider: "dummy"}, nil)
	require.NoError(t, err)
	assert.Equal(t, KindLocal, p.Kind())

	p, err = New(Settings{Provider: "ollama", Model: "m", BaseURL: "http://example.com", Port: 1234}, nil)
	require.NoError(t, err)
	assert.Equal(t, KindOllama, p.Kind())
	assert.Equal(t, "http://example.com:1234/api/generate", p.(*Ollama).Endpoint())

	_, err = New(Settings{Provider: "carrier-pigeon"}, nil)
	assert.Error(t, err)
}

func TestEndpoint(t *testing.T) {
	assert.Equal(t, "http://localhost:11434/api/generate", endpoint("", 0))
	assert.Equal(t, "http://host:9000/api/generate", endpoint("http://host:9000/", 11434))
}

func TestLineBuffer(t *testing.T) {
	var b lineBuffer
	assert.Nil(t, b.Feed(`["a","b"`))
	assert.Equal(t, []string{`["a","b"]`, `["c"`}, b.Feed("]\n[\"c\"\n"))
	assert.Equal(t, []string{""}, b.Feed("\n"))
	b.Feed(`tail`)
	assert.Equal(t, "tail", b.Rest())
	assert.Equal(t, "", b.Rest())
}

func TestParseSegment(t *testing.T) {
	p, ok, err := parseSegment(` ["x", "y\n\nz"] `)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, Part{Label: "x", Content: "y\n\nz"}, p)

	_, ok, err = parseSegment("   ")
	assert.NoError(t, err)
	assert.False(t, ok)

	for _, bad := range []string{`["only"]`, `{"a":1}`, `["a",1]`, "```json", `["a","b","c"]`} {
		_, _, err := parseSegment(bad)
		assert.ErrorIs(t, err, apperr.ErrProtocol, bad)
	}
}

// ndjsonServer streams one envelope per chunk and records the request body.
func ndjsonServer(t *testing.T, chunks []generateChunk, got *generateRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, generatePath, r.URL.Path)
		if got != nil {
			body, _ := io.ReadAll(r.Body)
			assert.NoError(t, json.Unmarshal(body, got))
		}
		w.Header().Set("Content-Type", "application/x-ndjson")
		flusher := w.(http.Flusher)
		enc := json.NewEncoder(w)
		for _, c := range chunks {
			_ = enc.Encode(c)
			flusher.Flush()
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOllama_StreamingSegmentation(t *testing.T) {
	var req generateRequest
	srv := ndjsonServer(t, []generateChunk{
		{Response: "[\"a\",\"b\"]\n[\"c\""},
		{Response: "\",\"d\"]\n"},
		{Done: true},
	}, &req)

	items := collect(NewOllama("qwen3:8b", srv.URL, 0, nil).Dissect(context.Background(), "doc"))

	require.Len(t, items, 2)
	assert.Equal(t, Part{Label: "a", Content: "b"}, items[0].part)
	assert.Equal(t, Part{Label: "c", Content: "d"}, items[1].part)
	assert.NoError(t, items[0].err)
	assert.NoError(t, items[1].err)

	assert.Equal(t, "qwen3:8b", req.Model)
	assert.True(t, req.Stream)
	assert.False(t, req.Think)
	assert.True(t, strings.HasSuffix(req.Prompt, "doc"))
}

func TestOllama_FlushesUnterminatedTailOnDone(t *testing.T) {
	srv := ndjsonServer(t, []generateChunk{
		{Response: `["a","b"]` + "\n" + `["tail",`},
		{Response: `"end"]`, Done: true},
	}, nil)

	items := collect(NewOllama("m", srv.URL, 0, nil).Dissect(context.Background(), "doc"))
	require.Len(t, items, 2)
	assert.Equal(t, Part{Label: "tail", Content: "end"}, items[1].part)
}

func TestOllama_MalformedSegmentIsReportedAndStreamContinues(t *testing.T) {
	srv := ndjsonServer(t, []generateChunk{
		{Response: "[\"a\",\"b\"]\nnot json\n\n[\"c\",\"d\"]\n"},
		{Done: true},
	}, nil)

	items := collect(NewOllama("m", srv.URL, 0, nil).Dissect(context.Background(), "doc"))
	require.Len(t, items, 3)
	assert.NoError(t, items[0].err)
	assert.ErrorIs(t, items[1].err, apperr.ErrProtocol)
	assert.Equal(t, Part{Label: "c", Content: "d"}, items[2].part)
}

func TestOllama_HTTPErrorIsNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	items := collect(NewOllama("m", srv.URL, 0, nil).Dissect(context.Background(), "doc"))
	require.Len(t, items, 1)
	assert.ErrorIs(t, items[0].err, apperr.ErrNetwork)
	assert.Contains(t, items[0].err.Error(), "model not found")
}

func TestOllama_ServerErrorEnvelope(t *testing.T) {
	srv := ndjsonServer(t, []generateChunk{{Error: "out of memory"}}, nil)
	items := collect(NewOllama("m", srv.URL, 0, nil).Dissect(context.Background(), "doc"))
	require.Len(t, items, 1)
	assert.ErrorIs(t, items[0].err, apperr.ErrNetwork)
}

func TestOllama_UnreachableEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	items := collect(NewOllama("m", url, 0, nil).Dissect(context.Background(), "doc"))
	require.Len(t, items, 1)
	assert.ErrorIs(t, items[0].err, apperr.ErrNetwork)
}

func TestOllama_EarlyBreakStopsConsumption(t *testing.T) {
	srv := ndjsonServer(t, []generateChunk{
		{Response: "[\"a\",\"b\"]\n[\"c\",\"d\"]\n"},
		{Done: true},
	}, nil)

	var seen []Part
	for p, err := range NewOllama("m", srv.URL, 0, nil).Dissect(context.Background(), "doc") {
		require.NoError(t, err)
		seen = append(seen, p)
		break
	}
	assert.Len(t, seen, 1)
}

func TestOllama_YieldsPartsBeforeStreamCompletes(t *testing.T) {
	release := make(chan struct{})
	var doneSent atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		enc := json.NewEncoder(w)
		_ = enc.Encode(generateChunk{Response: "[\"a\",\"b\"]\n"})
		flusher.Flush()
		select {
		case <-release:
		case <-r.Context().Done():
			return
		case <-time.After(5 * time.Second):
		}
		doneSent.Store(true)
		_ = enc.Encode(generateChunk{Response: "[\"c\",\"d\"]\n", Done: true})
		flusher.Flush()
	}))
	defer srv.Close()

	var parts []Part
	for p, err := range NewOllama("m", srv.URL, 0, nil).Dissect(context.Background(), "doc") {
		require.NoError(t, err)
		if len(parts) == 0 {
			assert.False(t, doneSent.Load(), "first part arrived only after the server finished")
			close(release)
		}
		parts = append(parts, p)
	}
	assert.Equal(t, []Part{{Label: "a", Content: "b"}, {Label: "c", Content: "d"}}, parts)
}

func TestOllama_BrokenEnvelopeEndsStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"response":"[\"a\",\"b\"]\n"}`+"\n"+`{not json`+"\n")
	}))
	defer srv.Close()

	items := collect(NewOllama("m", srv.URL, 0, nil).Dissect(context.Background(), "doc"))
	require.Len(t, items, 2)
	assert.Equal(t, Part{Label: "a", Content: "b"}, items[0].part)
	assert.ErrorIs(t, items[1].err, apperr.ErrNetwork)
	assert.ErrorIs(t, items[1].err, apperr.ErrProtocol)
}
