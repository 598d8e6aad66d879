package tools

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveWorkspacePath(t *testing.T) {
	ws := t.TempDir()

	cases := []struct {
		name    string
		raw     string
		want    string
		wantErr error
	}{
		{name: "relative", raw: "notes.txt", want: filepath.Join(ws, "notes.txt")},
		{name: "nested", raw: "src/main.go", want: filepath.Join(ws, "src", "main.go")},
		{name: "inner dotdot", raw: "a/../b.txt", want: filepath.Join(ws, "b.txt")},
		{name: "absolute inside", raw: filepath.Join(ws, "x.txt"), want: filepath.Join(ws, "x.txt")},
		{name: "parent escape", raw: "../x", wantErr: ErrPathEscape},
		{name: "absolute outside", raw: "/etc/passwd", wantErr: ErrPathEscape},
		{name: "home", raw: "~/.bashrc", wantErr: ErrPathEscape},
		{name: "empty", raw: "  ", wantErr: ErrInvalidArguments},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ResolveWorkspacePath(ws, tc.raw)
			if tc.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tc.wantErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestResolveWorkspacePathRejectsSymlinkEscape(t *testing.T) {
	ws := t.TempDir()
	outside := t.TempDir()
	if err := os.Symlink(outside, filepath.Join(ws, "link")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	_, err := ResolveWorkspacePath(ws, "link/secret.txt")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPathEscape)
}

func TestCheckCommandPaths(t *testing.T) {
	ws := t.TempDir()

	allowed := []string{
		"ls -la",
		"python3 script.py > out.txt",
		"/usr/bin/env python3 -c 'print(1)'",
		"cat sub/../notes.txt",
		"grep foo notes.txt 2>/dev/null",
		"cat " + filepath.Join(ws, "notes.txt"),
	}
	for _, cmd := range allowed {
		assert.NoError(t, CheckCommandPaths(ws, cmd), cmd)
	}

	rejected := []string{
		"cat ../../etc/passwd",
		"cat /etc/passwd",
		"ls ~",
		"cp notes.txt ~/backup",
		"echo hi>/tmp/out",
		"cat /usr/../etc/shadow",
	}
	for _, cmd := range rejected {
		err := CheckCommandPaths(ws, cmd)
		require.Error(t, err, cmd)
		assert.ErrorIs(t, err, ErrPathEscape, cmd)
	}
}
