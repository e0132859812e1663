package keys

import (
	"regexp"
	"strings"
	"testing"
)

func TestTile_Deterministic(t *testing.T) {
	k1 := Tile("imagery", "https://host/arcgis/rest/services/World/MapServer", 3, 5, 2, "png")
	k2 := Tile("imagery", "https://host/arcgis/rest/services/World/MapServer", 3, 5, 2, "png")
	if k1 != k2 {
		t.Fatalf("determinism failed:\n k1=%s\n k2=%s", k1, k2)
	}
}

func TestTile_DifferentServiceURLsDiffer(t *testing.T) {
	k1 := Tile("imagery", "https://a/MapServer", 3, 5, 2, "png")
	k2 := Tile("imagery", "https://b/MapServer", 3, 5, 2, "png")
	if k1 == k2 {
		t.Fatal("same name over different services must produce different keys")
	}
}

func TestTile_AddressComponentsPresent(t *testing.T) {
	k := Tile("imagery", "https://a/MapServer", 3, 5, 2, "png")
	if !strings.HasSuffix(k, ":3:5:2.png") {
		t.Fatalf("key %q missing level:row:col.format suffix", k)
	}
	if !regexp.MustCompile(`^tile:imagery:[0-9a-f]{16}:`).MatchString(k) {
		t.Fatalf("key %q missing name and url digest", k)
	}
}

func TestTile_SanitizesName(t *testing.T) {
	k := Tile("  wild name/雪  ", "https://a", 0, 0, 0, "png")
	for _, r := range k {
		if r > 127 {
			t.Fatalf("non-ASCII rune leaked into key: %q in %s", r, k)
		}
	}
	if strings.Contains(k, " ") || strings.Contains(k, "/") {
		t.Fatalf("unsafe characters in key: %s", k)
	}
}

func TestPrefix_CoversTileKeys(t *testing.T) {
	p := Prefix("imagery", "https://a/MapServer")
	k := Tile("imagery", "https://a/MapServer", 7, 11, 13, "png")
	if !strings.HasPrefix(k, p) {
		t.Fatalf("key %q not under prefix %q", k, p)
	}

	other := Tile("imagery", "https://b/MapServer", 7, 11, 13, "png")
	if strings.HasPrefix(other, p) {
		t.Fatalf("key of a different service %q matches prefix %q", other, p)
	}
}
