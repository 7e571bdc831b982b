package pathsec

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"cover-art-server/internal/logger"
)

var log = logger.WithComponent("PATHSEC")

// Path security errors.
var (
	ErrPathTraversal   = errors.New("path traversal detected")
	ErrSymlinkEscape   = errors.New("symlink escape detected")
	ErrInvalidPath     = errors.New("invalid path")
	ErrNotFound        = errors.New("file not found")
	ErrEmptyFilename   = errors.New("empty filename")
	ErrInvalidFilename = errors.New("invalid filename")
)

// PathSecurityError wraps path security errors with context.
type PathSecurityError struct {
	Op      string
	Path    string
	Wrapped error
}

func (e *PathSecurityError) Error() string {
	return fmt.Sprintf("%s: %q: %v", e.Op, e.Path, e.Wrapped)
}

func (e *PathSecurityError) Unwrap() error {
	return e.Wrapped
}

// IsForbidden reports whether err is a confinement violation.
func IsForbidden(err error) bool {
	return errors.Is(err, ErrPathTraversal) || errors.Is(err, ErrSymlinkEscape)
}

// Resolver confines untrusted paths to a single root directory.
type Resolver struct {
	root     string // absolute, cleaned
	realRoot string // root with symlinks resolved
}

// NewResolver builds a resolver for root. The root does not need to exist
// yet; if it does, symlinks in it are resolved once here.
func NewResolver(root string) (*Resolver, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, &PathSecurityError{Op: "resolve_root", Path: root, Wrapped: ErrInvalidPath}
	}
	realRoot, err := filepath.EvalSymlinks(abs)
	if err != nil {
		realRoot = abs
	}
	return &Resolver{root: abs, realRoot: realRoot}, nil
}

// Root returns the absolute root directory.
func (p *Resolver) Root() string {
	return p.root
}

// RealRoot returns the root with symlinks resolved.
func (p *Resolver) RealRoot() string {
	return p.realRoot
}

// ResolveForRead maps a requested sub-path onto the filesystem. The result is
// guaranteed to be root itself or a descendant of it, both lexically and
// after symlink resolution. It does not check that the path exists.
func (p *Resolver) ResolveForRead(requested string) (string, error) {
	if strings.IndexByte(requested, 0) >= 0 {
		return "", &PathSecurityError{Op: "check_nul", Path: requested, Wrapped: ErrInvalidPath}
	}

	// Absolute paths would replace the root entirely.
	if filepath.IsAbs(requested) || strings.HasPrefix(requested, "/") || strings.HasPrefix(requested, `\`) {
		return "", &PathSecurityError{Op: "check_absolute", Path: requested, Wrapped: ErrPathTraversal}
	}

	absPath := filepath.Join(p.root, requested)
	if !IsWithinBase(absPath, p.root) {
		return "", &PathSecurityError{Op: "check_traversal", Path: requested, Wrapped: ErrPathTraversal}
	}

	if _, err := os.Lstat(absPath); err != nil {
		return absPath, nil
	}

	realPath, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		// Dangling symlink: nothing to serve.
		return "", &PathSecurityError{Op: "resolve_symlink", Path: requested, Wrapped: ErrNotFound}
	}
	if !IsWithinBase(realPath, p.realRoot) {
		log.Warn("Symlink escape attempt: %s -> %s (root: %s)", absPath, realPath, p.realRoot)
		return "", &PathSecurityError{Op: "check_symlink", Path: requested, Wrapped: ErrSymlinkEscape}
	}
	return realPath, nil
}

// StatRegular returns the file info for a resolved path, treating missing
// paths and anything other than a regular file as not found.
func (p *Resolver) StatRegular(resolved string) (os.FileInfo, error) {
	info, err := os.Stat(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) || errors.Is(err, syscall.ENOTDIR) {
			return nil, &PathSecurityError{Op: "stat", Path: resolved, Wrapped: ErrNotFound}
		}
		return nil, fmt.Errorf("stat %s: %w", resolved, err)
	}
	if !info.Mode().IsRegular() {
		return nil, &PathSecurityError{Op: "check_regular", Path: resolved, Wrapped: ErrNotFound}
	}
	return info, nil
}

// ResolveForWrite joins a sanitized filename onto the root.
func (p *Resolver) ResolveForWrite(safeName string) (string, error) {
	if !IsValidFilename(safeName) {
		return "", &PathSecurityError{Op: "check_filename", Path: safeName, Wrapped: ErrInvalidFilename}
	}
	dest := filepath.Join(p.root, safeName)
	if filepath.Dir(dest) != p.root {
		return "", &PathSecurityError{Op: "check_traversal", Path: safeName, Wrapped: ErrPathTraversal}
	}
	return dest, nil
}

// IsWithinBase reports whether path equals base or lies below it. Both must
// be absolute and clean; the separator bound keeps "images-private" from
// matching "images".
func IsWithinBase(path, base string) bool {
	if path == base {
		return true
	}
	if !strings.HasSuffix(base, string(os.PathSeparator)) {
		base += string(os.PathSeparator)
	}
	return strings.HasPrefix(path, base)
}

// IsValidFilename checks if a filename is a single safe path segment.
func IsValidFilename(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, "/\\\x00")
}
