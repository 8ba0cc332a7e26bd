package security

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithinDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "config"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config", "settings.xml"), nil, 0644))

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"existing file", filepath.Join(dir, "config", "settings.xml"), false},
		{"missing file", filepath.Join(dir, "config", "new.xml"), false},
		{"missing nested", filepath.Join(dir, "a", "b", "c.py"), false},
		{"dir itself", dir, false},
		{"parent", filepath.Join(dir, ".."), true},
		{"traversal", filepath.Join(dir, "config", "..", "..", "escape.xml"), true},
		{"absolute elsewhere", "/etc/passwd", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := WithinDirectory(tt.path, dir)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestWithinDirectory_Symlink(t *testing.T) {
	dir := t.TempDir()
	outside := t.TempDir()
	link := filepath.Join(dir, "link")
	if err := os.Symlink(outside, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	assert.Error(t, WithinDirectory(filepath.Join(link, "plot.py"), dir))
}

func TestWithinDirectory_MissingDir(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope")
	assert.Error(t, WithinDirectory(filepath.Join(missing, "x"), missing))
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"space_seperation", "space_seperation"},
		{"oxygen diffusion/coefficient", "oxygen_diffusion_coefficient"},
		{"a  //  b", "a_b"},
		{"__x__", "x"},
		{"../../etc", "etc"},
		{"", "unknown"},
		{"///", "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizeFilename(tt.in), tt.in)
	}

	long := SanitizeFilename(strings.Repeat("a", 300))
	assert.Len(t, long, 128)
}
