package tools

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// systemPathPrefixes are absolute locations a terminal command may reference
// without escaping the workspace: interpreters, binaries and device sinks.
var systemPathPrefixes = []string{
	"/usr/",
	"/bin/",
	"/sbin/",
	"/opt/",
	"/dev/null",
	"/dev/stdout",
	"/dev/stderr",
}

// ResolveWorkspacePath resolves a model-supplied path against the task
// workspace. Absolute paths are accepted only when they already point inside
// the workspace. Symlinks on the existing part of the path are followed so a
// link cannot smuggle writes outside.
func ResolveWorkspacePath(workspace, raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("%w: path cannot be empty", ErrInvalidArguments)
	}
	if strings.HasPrefix(trimmed, "~") {
		return "", fmt.Errorf("%w: %q refers to a home directory", ErrPathEscape, trimmed)
	}

	var target string
	if filepath.IsAbs(trimmed) {
		target = filepath.Clean(trimmed)
	} else {
		target = filepath.Join(workspace, trimmed)
	}
	if !pathWithinBase(workspace, target) {
		return "", fmt.Errorf("%w: %q resolves outside the task workspace", ErrPathEscape, trimmed)
	}

	realBase, err := filepath.EvalSymlinks(workspace)
	if err != nil {
		return "", fmt.Errorf("resolve workspace: %w", err)
	}
	realTarget, err := evalExisting(target)
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}
	if !pathWithinBase(realBase, realTarget) {
		return "", fmt.Errorf("%w: %q follows a link outside the task workspace", ErrPathEscape, trimmed)
	}
	return target, nil
}

// CheckCommandPaths applies a token-level heuristic to a shell command:
// parent-directory traversal that leaves the workspace, home-directory
// references and absolute paths outside the workspace and the system
// prefixes are rejected. It cannot see through variable expansion or
// subshell tricks; the terminal tool also runs with the workspace as cwd.
func CheckCommandPaths(workspace, command string) error {
	tokens := strings.FieldsFunc(command, func(r rune) bool {
		switch r {
		case ' ', '\t', '\n', '\r', ';', '|', '&', '<', '>', '(', ')', '`', '"', '\'', '=':
			return true
		}
		return false
	})
	for _, token := range tokens {
		if strings.HasPrefix(token, "~") {
			return fmt.Errorf("%w: %q refers to a home directory", ErrPathEscape, token)
		}
		if filepath.IsAbs(token) {
			if allowedSystemPath(token) || pathWithinBase(workspace, token) {
				continue
			}
			return fmt.Errorf("%w: %q is outside the task workspace", ErrPathEscape, token)
		}
		if hasParentSegment(token) && !pathWithinBase(workspace, filepath.Join(workspace, token)) {
			return fmt.Errorf("%w: %q resolves outside the task workspace", ErrPathEscape, token)
		}
	}
	return nil
}

func allowedSystemPath(token string) bool {
	clean := filepath.Clean(token)
	for _, prefix := range systemPathPrefixes {
		if strings.HasSuffix(prefix, "/") {
			if strings.HasPrefix(clean+"/", prefix) && !hasParentSegment(token) {
				return true
			}
			continue
		}
		if clean == prefix {
			return true
		}
	}
	return false
}

func hasParentSegment(token string) bool {
	for _, part := range strings.Split(filepath.ToSlash(token), "/") {
		if part == ".." {
			return true
		}
	}
	return false
}

func pathWithinBase(base, target string) bool {
	baseClean, err := filepath.Abs(filepath.Clean(base))
	if err != nil {
		return false
	}
	targetClean, err := filepath.Abs(filepath.Clean(target))
	if err != nil {
		return false
	}

	rel, err := filepath.Rel(baseClean, targetClean)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	if strings.HasPrefix(rel, ".."+string(filepath.Separator)) || rel == ".." {
		return false
	}
	return true
}

// evalExisting resolves symlinks on the longest existing prefix of path and
// re-appends the missing tail.
func evalExisting(path string) (string, error) {
	current := path
	var tail []string
	for {
		resolved, err := filepath.EvalSymlinks(current)
		if err == nil {
			for i := len(tail) - 1; i >= 0; i-- {
				resolved = filepath.Join(resolved, tail[i])
			}
			return resolved, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(current)
		if parent == current {
			return path, nil
		}
		tail = append(tail, filepath.Base(current))
		current = parent
	}
}
