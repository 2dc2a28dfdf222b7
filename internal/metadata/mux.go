package metadata

import (
	"context"
	"fmt"
	"strings"

	"basegraph.app/docwatch/internal/model"
)

// Mux routes tokens to sources by scheme prefix ("gitlab:..."). Tokens
// without a registered scheme go to the fallback source.
type Mux struct {
	schemes  map[string]Source
	fallback Source
}

func NewMux(fallback Source) *Mux {
	return &Mux{schemes: make(map[string]Source), fallback: fallback}
}

// Handle registers src for tokens starting with scheme + ":".
func (m *Mux) Handle(scheme string, src Source) {
	m.schemes[scheme] = src
}

func (m *Mux) Lookup(ctx context.Context, token string) (model.Metadata, error) {
	if scheme, _, ok := strings.Cut(token, ":"); ok {
		if src, found := m.schemes[scheme]; found {
			return src.Lookup(ctx, token)
		}
	}
	if m.fallback == nil {
		return model.Metadata{}, NewInvalidError(token, fmt.Errorf("no metadata source accepts token"))
	}
	return m.fallback.Lookup(ctx, token)
}
