package source

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

type Factory func(ctx context.Context, opts Options, logger *zerolog.Logger) (TileSource, error)

var reg = map[string]Factory{}

// Register installs a factory under a capability token. Call at startup,
// before any New.
func Register(token string, f Factory) {
	reg[token] = f
}

// New constructs a source for the given token. Unrecognized tokens report
// ErrNotHandled so a dispatcher can try other handlers.
func New(ctx context.Context, token string, opts Options, logger *zerolog.Logger) (TileSource, error) {
	f, ok := reg[token]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotHandled, token)
	}
	return f(ctx, opts, logger)
}

// Tokens lists the registered capability tokens.
func Tokens() []string {
	out := make([]string, 0, len(reg))
	for t := range reg {
		out = append(out, t)
	}
	return out
}
