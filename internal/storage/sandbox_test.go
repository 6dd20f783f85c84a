package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSandbox(t *testing.T) {
	sandboxDir := filepath.Join(t.TempDir(), "sandbox")

	sb, err := NewSandbox(sandboxDir)
	require.NoError(t, err)
	require.NotNil(t, sb)

	info, err := os.Stat(sandboxDir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.True(t, filepath.IsAbs(sb.BaseDir()))
}

func TestSandbox_ResolvePath(t *testing.T) {
	sb := setupTestSandbox(t)

	tests := []struct {
		name        string
		path        string
		shouldError bool
	}{
		{"simple file", "test.frag", false},
		{"nested path", "ab/test.frag", false},
		{"current dir", ".", false},
		{"parent escape attempt", "../escape.frag", true},
		{"nested parent escape", "ab/../../escape.frag", true},
		{"absolute path escape", "/etc/passwd", true},
		{"dot dot name", "..test", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolved, err := sb.ResolvePath(tt.path)
			if tt.shouldError {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "escapes sandbox")
			} else {
				require.NoError(t, err)
				assert.True(t, strings.HasPrefix(resolved, sb.BaseDir()))
			}
		})
	}
}

func TestSandbox_AtomicWriteAndReadInto(t *testing.T) {
	sb := setupTestSandbox(t)
	content := []byte("fragment payload")

	require.NoError(t, sb.AtomicWrite("a/b/test.frag", content))

	exists, err := sb.Exists("a/b/test.frag")
	require.NoError(t, err)
	assert.True(t, exists)

	buf := make([]byte, len(content))
	n, err := sb.ReadInto("a/b/test.frag", buf)
	require.NoError(t, err)
	assert.Equal(t, len(content), n)
	assert.Equal(t, content, buf)

	// Short buffers receive a prefix.
	short := make([]byte, 4)
	n, err = sb.ReadInto("a/b/test.frag", short)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, []byte("frag"), short)

	// No temporary files are left behind.
	entries, err := os.ReadDir(filepath.Join(sb.BaseDir(), "a", "b"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestSandbox_SizeAndRemove(t *testing.T) {
	sb := setupTestSandbox(t)
	require.NoError(t, sb.AtomicWrite("x.frag", []byte("12345")))

	size, err := sb.Size("x.frag")
	require.NoError(t, err)
	assert.Equal(t, int64(5), size)

	require.NoError(t, sb.Remove("x.frag"))
	exists, err := sb.Exists("x.frag")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = sb.Size("x.frag")
	assert.Error(t, err)
}

func TestSandbox_ClearAndDestroy(t *testing.T) {
	sb := setupTestSandbox(t)
	require.NoError(t, sb.AtomicWrite("a/1.frag", []byte("1")))
	require.NoError(t, sb.AtomicWrite("b/2.frag", []byte("2")))

	require.NoError(t, sb.Clear())
	entries, err := os.ReadDir(sb.BaseDir())
	require.NoError(t, err)
	assert.Empty(t, entries)

	require.NoError(t, sb.Destroy())
	_, err = os.Stat(sb.BaseDir())
	assert.True(t, os.IsNotExist(err))
}

func TestSandbox_PathTraversalAttempts(t *testing.T) {
	sb := setupTestSandbox(t)

	attacks := []string{
		"../../../etc/passwd",
		"ab/../../../etc/passwd",
		"/absolute/path",
		"ab/../../..",
		"ab/./../../etc/passwd",
	}

	for _, attack := range attacks {
		t.Run(attack, func(t *testing.T) {
			_, err := sb.ResolvePath(attack)
			assert.Error(t, err, "path traversal should be blocked: %s", attack)
			assert.Error(t, sb.AtomicWrite(attack, []byte("x")))
		})
	}
}

func setupTestSandbox(t *testing.T) *Sandbox {
	t.Helper()

	sb, err := NewSandbox(t.TempDir())
	require.NoError(t, err)

	return sb
}
