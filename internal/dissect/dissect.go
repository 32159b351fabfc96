// Package dissect splits a document into an ordered sequence of labelled parts.
//
// A Provider is either the local paragraph splitter or a remote streaming
// language-model endpoint. Both hand out the same lazy sequence, so callers
// do not care whether parts are produced synchronously or arrive over the
// network. Stopping the range loop (or cancelling the context) releases the
// underlying connection.
package dissect

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"strings"
)

// Kind tags the provider variant.
type Kind string

// Provider kinds accepted in configuration.
const (
	KindLocal  Kind = "local"
	KindDummy  Kind = "dummy" // alias of KindLocal
	KindOllama Kind = "ollama"
)

// Separator joins consecutive parts of a document.
const Separator = "\n\n"

// Part is one dissected unit of a document.
type Part struct {
	Label   string `json:"label"`
	Content string `json:"content"`
}

// Provider produces the parts of a document.
//
// Items carrying a non-nil error describe a part that could not be produced.
// The sequence goes on after a single malformed segment (apperr.ErrProtocol)
// and ends after any error that breaks the stream itself, such as
// apperr.ErrNetwork.
type Provider interface {
	Kind() Kind
	Dissect(ctx context.Context, document string) iter.Seq2[Part, error]
}

// Settings selects and configures a provider.
type Settings struct {
	Provider string
	Model    string
	BaseURL  string
	Port     int
}

// New returns the provider described by s.
func New(s Settings, logger *slog.Logger) (Provider, error) {
	switch Kind(strings.ToLower(s.Provider)) {
	case KindLocal, KindDummy, "":
		return NewLocal(0), nil
	case KindOllama:
		return NewOllama(s.Model, s.BaseURL, s.Port, logger), nil
	default:
		return nil, fmt.Errorf("dissect: unknown provider %q", s.Provider)
	}
}
