package coverart

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"cover-art-server/internal/pathsec"
)

// stagingDir holds in-progress uploads. It lives under the root so the final
// rename stays on one filesystem; reads never resolve into it.
const stagingDir = ".incoming"

// Store reads and writes cover-art files confined to one root directory.
type Store struct {
	resolver *pathsec.Resolver
}

// NewStore creates the root directory if needed and returns a store for it.
func NewStore(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("create images directory %s: %w", root, err)
	}
	resolver, err := pathsec.NewResolver(root)
	if err != nil {
		return nil, err
	}
	return &Store{resolver: resolver}, nil
}

// Root returns the absolute root directory.
func (s *Store) Root() string {
	return s.resolver.Root()
}

// Open returns the regular file stored at the requested sub-path. The caller
// closes the file.
func (s *Store) Open(requested string) (*os.File, os.FileInfo, error) {
	resolved, err := s.resolver.ResolveForRead(requested)
	if err != nil {
		return nil, nil, err
	}
	if s.isStaging(resolved) {
		return nil, nil, &pathsec.PathSecurityError{Op: "check_staging", Path: requested, Wrapped: pathsec.ErrNotFound}
	}

	if _, err := s.resolver.StatRegular(resolved); err != nil {
		return nil, nil, err
	}

	f, err := os.Open(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, &pathsec.PathSecurityError{Op: "open", Path: requested, Wrapped: pathsec.ErrNotFound}
		}
		return nil, nil, fmt.Errorf("open %s: %w", resolved, err)
	}
	// Stat the open handle so a concurrent replace cannot swap in a directory.
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("stat %s: %w", resolved, err)
	}
	if !info.Mode().IsRegular() {
		f.Close()
		return nil, nil, &pathsec.PathSecurityError{Op: "check_regular", Path: requested, Wrapped: pathsec.ErrNotFound}
	}
	return f, info, nil
}

// Save writes src under safeName, replacing any existing file. The data goes
// to a temporary file that is renamed into place once complete, so readers
// see either the old content or the new content in full.
func (s *Store) Save(safeName string, src io.Reader) (int64, error) {
	dest, err := s.resolver.ResolveForWrite(safeName)
	if err != nil {
		return 0, err
	}

	if info, err := os.Lstat(dest); err == nil && info.IsDir() {
		return 0, &pathsec.PathSecurityError{Op: "check_destination", Path: safeName, Wrapped: pathsec.ErrInvalidFilename}
	}

	staging := filepath.Join(s.Root(), stagingDir)
	if err := os.MkdirAll(staging, 0755); err != nil {
		return 0, fmt.Errorf("create staging directory: %w", err)
	}

	tmp, err := os.CreateTemp(staging, "upload-*.part")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpPath)
		}
	}()

	n, err := io.Copy(tmp, src)
	if err != nil {
		tmp.Close()
		return 0, fmt.Errorf("write %s: %w", tmpPath, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return 0, fmt.Errorf("sync %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("close %s: %w", tmpPath, err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		return 0, fmt.Errorf("chmod %s: %w", tmpPath, err)
	}

	if err := os.Rename(tmpPath, dest); err != nil {
		return 0, fmt.Errorf("replace %s: %w", dest, err)
	}
	committed = true
	return n, nil
}

func (s *Store) isStaging(resolved string) bool {
	return pathsec.IsWithinBase(resolved, filepath.Join(s.Root(), stagingDir)) ||
		pathsec.IsWithinBase(resolved, filepath.Join(s.resolver.RealRoot(), stagingDir))
}
