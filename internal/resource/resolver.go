// Package resource locates transition scripts and loads the transition
// snapshot of a scope from them.
package resource

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"strings"
)

// FSResolver opens scripts from a directory inside an fs.FS. It serves plain
// directories (os.DirFS), embedded trees (embed.FS) and zip archives alike.
type FSResolver struct {
	fsys   fs.FS
	dir    string
	closer io.Closer
}

// NewFSResolver resolves script names relative to dir inside fsys. An empty
// dir means the root of fsys.
func NewFSResolver(fsys fs.FS, dir string) (*FSResolver, error) {
	dir = cleanDir(dir)
	if !fs.ValidPath(dir) {
		return nil, fmt.Errorf("invalid script directory %q", dir)
	}
	return &FSResolver{fsys: fsys, dir: dir}, nil
}

// NewDirResolver resolves scripts from a directory on disk.
func NewDirResolver(dir string) (*FSResolver, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("script directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("script directory %s is not a directory", dir)
	}
	return NewFSResolver(os.DirFS(dir), ".")
}

// OpenArchive resolves scripts from dir inside a zip archive. The returned
// resolver must be closed to release the archive.
func OpenArchive(archivePath, dir string) (*FSResolver, error) {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, fmt.Errorf("open script archive %s: %w", archivePath, err)
	}
	r, err := NewFSResolver(zr, dir)
	if err != nil {
		zr.Close()
		return nil, err
	}
	r.closer = zr
	return r, nil
}

// Open implements migration.ResourceResolver. Missing scripts produce an
// error wrapping fs.ErrNotExist, as do names that leave the directory.
func (r *FSResolver) Open(name string) (io.ReadCloser, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}
	f, err := r.fsys.Open(r.join(name))
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.IsDir() {
		f.Close()
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}
	return f, nil
}

// Names lists the *.sql scripts directly inside the resolver's directory,
// sorted by name.
func (r *FSResolver) Names() ([]string, error) {
	entries, err := fs.ReadDir(r.fsys, r.dir)
	if err != nil {
		return nil, fmt.Errorf("read script directory %q: %w", r.dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		names = append(names, entry.Name())
	}
	return names, nil
}

// Close releases the archive behind the resolver, if any.
func (r *FSResolver) Close() error {
	if r.closer == nil {
		return nil
	}
	err := r.closer.Close()
	r.closer = nil
	if errors.Is(err, fs.ErrClosed) {
		return nil
	}
	return err
}

func (r *FSResolver) join(name string) string {
	if r.dir == "." {
		return name
	}
	return path.Join(r.dir, name)
}

func cleanDir(dir string) string {
	dir = strings.Trim(path.Clean("/"+strings.ReplaceAll(dir, "\\", "/")), "/")
	if dir == "" {
		return "."
	}
	return dir
}
