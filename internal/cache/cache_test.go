package cache

import (
	"testing"

	"github.com/veyor/stencil/internal/config"
)

func TestKeyForDeterministic(t *testing.T) {
	k1 := KeyFor("src", []string{"a", "b"}, []string{"f", "g"}, true, config.DebugNone)
	k2 := KeyFor("src", []string{"a", "b"}, []string{"g", "f"}, true, config.DebugNone)
	if k1 != k2 {
		t.Error("func order must not change the key")
	}

	if KeyFor("src", []string{"a", "b"}, nil, true, config.DebugNone) ==
		KeyFor("src", []string{"b", "a"}, nil, true, config.DebugNone) {
		t.Error("param order selects slots and must change the key")
	}
	if KeyFor("src", nil, nil, true, config.DebugNone) ==
		KeyFor("src", nil, nil, false, config.DebugNone) {
		t.Error("escape option must change the key")
	}
	if KeyFor("a", nil, nil, false, config.DebugNone) ==
		KeyFor("b", nil, nil, false, config.DebugNone) {
		t.Error("source must change the key")
	}
}

func TestStorePutLookup(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("open: %s", err)
	}

	key := KeyFor("template", nil, nil, false, config.DebugNone)
	image := []byte{1, 2, 3, 4}
	if err := s.Put(key, image, &Entry{Name: "template"}); err != nil {
		t.Fatalf("put: %s", err)
	}

	got, e := s.Lookup(key)
	if e == nil {
		t.Fatal("entry not found after put")
	}
	if string(got) != string(image) {
		t.Errorf("image = %v, want %v", got, image)
	}
	if e.Name != "template" {
		t.Errorf("entry name = %q", e.Name)
	}
	if e.CreatedAt == 0 {
		t.Error("CreatedAt should be stamped")
	}
}

func TestStoreReload(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("open: %s", err)
	}
	key := KeyFor("x", []string{"p"}, nil, true, config.DebugMinimal)
	if err := s.Put(key, []byte("image"), &Entry{Name: "x", Params: []string{"p"}, Escape: true, Debug: "minimal"}); err != nil {
		t.Fatalf("put: %s", err)
	}

	// A fresh store over the same directory sees the entry.
	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen: %s", err)
	}
	if s2.Len() != 1 {
		t.Fatalf("reloaded store has %d entries, want 1", s2.Len())
	}
	img, e := s2.Lookup(key)
	if e == nil || string(img) != "image" {
		t.Fatalf("reloaded lookup failed: entry=%+v image=%q", e, img)
	}
	if len(e.Params) != 1 || e.Params[0] != "p" || !e.Escape || e.Debug != "minimal" {
		t.Errorf("manifest round trip lost fields: %+v", e)
	}
}

func TestLookupMissing(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("open: %s", err)
	}
	if img, e := s.Lookup(KeyFor("missing", nil, nil, false, config.DebugNone)); img != nil || e != nil {
		t.Error("missing key should return nils")
	}
}
