package dissect

import (
	"context"
	"iter"
	"strings"

	"github.com/starford/bok/internal/parser"
)

// Local splits documents on Separator. It never fails and can be ranged over
// any number of times.
type Local struct {
	labelLength int
}

// NewLocal returns a local splitter whose labels are at most labelLength
// runes (parser.DefaultBlurbLength when <= 0).
func NewLocal(labelLength int) *Local {
	if labelLength <= 0 {
		labelLength = parser.DefaultBlurbLength
	}
	return &Local{labelLength: labelLength}
}

// Kind implements Provider.
func (l *Local) Kind() Kind { return KindLocal }

// Dissect implements Provider.
func (l *Local) Dissect(ctx context.Context, document string) iter.Seq2[Part, error] {
	return func(yield func(Part, error) bool) {
		for _, chunk := range strings.Split(document, Separator) {
			if ctx.Err() != nil {
				yield(Part{}, ctx.Err())
				return
			}
			part := Part{Label: parser.Blurb(chunk, l.labelLength), Content: chunk}
			if !yield(part, nil) {
				return
			}
		}
	}
}
