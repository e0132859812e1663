// Package keys builds cache keys for tiles.
package keys

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

// Tile returns the cache key for one tile of one source. The source name is
// sanitized for key safety; the service URL is folded in as a digest so that
// two deployments mapping the same source name to different services never
// share entries.
func Tile(source, serviceURL string, level, row, col int, format string) string {
	name := sanitize(strings.TrimSpace(source))
	sum := xxhash.Sum64String(strings.TrimSpace(serviceURL))
	return fmt.Sprintf("tile:%s:%016x:%d:%d:%d.%s", name, sum, level, row, col, sanitize(format))
}

// Prefix returns the common key prefix of every tile of a source, for
// targeted invalidation.
func Prefix(source, serviceURL string) string {
	name := sanitize(strings.TrimSpace(source))
	sum := xxhash.Sum64String(strings.TrimSpace(serviceURL))
	return fmt.Sprintf("tile:%s:%016x:", name, sum)
}

func sanitize(s string) string {
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))
	var prev rune
	for _, r := range s {
		out := rune(0)
		switch {
		case r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f':
			out = '_'
		case isAlphaNum(r) || r == '_' || r == '-' || r == '.':
			out = r
		default:
			out = '-'
		}
		if (out == '_' || out == '-') && out == prev {
			continue
		}
		b.WriteRune(out)
		prev = out
	}
	return b.String()
}

func isAlphaNum(r rune) bool {
	return (r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		unicode.IsDigit(r)
}
