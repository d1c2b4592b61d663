package filehandler

import (
	"os"
	"path/filepath"
	"testing"
)

func TestHashBytes(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"},
		{"abc", "abc", "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := HashBytes([]byte(tt.in))
			if got != tt.want {
				t.Errorf("HashBytes(%q) = %s, want %s", tt.in, got, tt.want)
			}
			if again := HashBytes([]byte(tt.in)); again != got {
				t.Errorf("HashBytes not deterministic: %s vs %s", got, again)
			}
		})
	}
}

func TestHashFile(t *testing.T) {
	dir := t.TempDir()
	data := []byte("some image bytes")

	a := filepath.Join(dir, "a.jpg")
	b := filepath.Join(dir, "renamed.png")
	for _, p := range []string{a, b} {
		if err := os.WriteFile(p, data, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	ha, err := HashFile(a)
	if err != nil {
		t.Fatalf("HashFile: %v", err)
	}
	hb, err := HashFile(b)
	if err != nil {
		t.Fatalf("HashFile: %v", err)
	}

	if ha != hb {
		t.Errorf("filename changed the hash: %s vs %s", ha, hb)
	}
	if ha != HashBytes(data) {
		t.Errorf("HashFile = %s, HashBytes = %s", ha, HashBytes(data))
	}
	if len(ha) != 64 {
		t.Errorf("hash length = %d, want 64", len(ha))
	}

	if _, err := HashFile(filepath.Join(dir, "missing")); err == nil {
		t.Error("expected error for missing file")
	}
}
