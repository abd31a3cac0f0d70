package security

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestResolveWithin(t *testing.T) {
	tmpDir := t.TempDir()
	root := filepath.Join(tmpDir, "results")
	outside := filepath.Join(tmpDir, "outside")
	for _, d := range []string{filepath.Join(root, "run_a"), outside} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", d, err)
		}
	}
	if err := os.WriteFile(filepath.Join(outside, "secret.png"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	link := filepath.Join(root, "evil")
	if err := os.Symlink(outside, link); err != nil {
		t.Fatalf("symlink: %v", err)
	}

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"relative file", "run_a/Convolution.png", false},
		{"missing nested file", "run_b/deeper/Depth.png", false},
		{"absolute inside", filepath.Join(root, "run_a", "attributes.ini"), false},
		{"dot dot", "../outside/secret.png", true},
		{"dot dot after dir", "run_a/../../outside/secret.png", true},
		{"absolute outside", "/etc/passwd", true},
		{"through symlink", "evil/secret.png", true},
		{"symlink itself", "evil", true},
		{"new file under symlink", "evil/new.png", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ResolveWithin(root, tt.path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ResolveWithin(%q) = %q, %v; wantErr %v", tt.path, p, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrOutsideRoot) {
				t.Errorf("error %v is not ErrOutsideRoot", err)
			}
			if err == nil && !filepath.IsAbs(p) {
				t.Errorf("path %q is not absolute", p)
			}
		})
	}
}

func TestResolveWithinMissingRoot(t *testing.T) {
	if _, err := ResolveWithin(filepath.Join(t.TempDir(), "nope"), "a.png"); err == nil {
		t.Error("expected error for missing root")
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"MainCamera", "MainCamera"},
		{"thin lens", "thin_lens"},
		{"a//b\\c", "a_b_c"},
		{"../../etc", "etc"},
		{"  ", "unknown"},
		{"", "unknown"},
		{"cam-1.v2", "cam-1.v2"},
		{"über?", "ber"},
	}
	for _, tt := range tests {
		if got := SanitizeFilename(tt.in); got != tt.want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
	if got := SanitizeFilename(strings.Repeat("x", 300)); len(got) > 128 {
		t.Errorf("length %d exceeds limit", len(got))
	}
}
