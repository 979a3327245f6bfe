// Package upload stores order photos on disk. Stored names are always
// server-generated; nothing from the client ever reaches the filesystem
// path, which is what keeps /uploads traversal-safe.
package upload

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"os"
	"path/filepath"
	"time"
)

const (
	// MaxFiles is the per-request photo ceiling.
	MaxFiles = 30
	// MaxFileSize is the per-file ceiling: 10 MiB.
	MaxFileSize = 10 << 20
)

// Errors returned by Save. Each maps to its own wire error code.
var (
	ErrTooManyFiles = errors.New("too many files")
	ErrFileTooLarge = errors.New("file too large")
	ErrInvalidType  = errors.New("invalid file type")
)

// extByMime doubles as the MIME allowlist: a type without an entry is
// rejected, and the stored extension comes from here, not from the client.
var extByMime = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// SavedPhoto describes one photo written to disk.
type SavedPhoto struct {
	Filename     string // server-generated, unique
	OriginalName string // untrusted, display only
	Mime         string
	Size         int64
	Path         string // absolute location on disk
}

// Saver writes validated photos into a single uploads directory.
type Saver struct {
	dir string
}

// NewSaver creates the uploads directory if needed.
func NewSaver(dir string) (*Saver, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Saver{dir: dir}, nil
}

// Dir returns the uploads directory, for static serving and ZIP export.
func (s *Saver) Dir() string {
	return s.dir
}

// Save validates the whole batch first (count, per-file size, MIME type) and
// only then writes anything, so a rejected request leaves no files behind.
// If a write fails partway, the already-written files are removed.
func (s *Saver) Save(files []*multipart.FileHeader) ([]SavedPhoto, error) {
	if len(files) > MaxFiles {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyFiles, len(files), MaxFiles)
	}
	for _, fh := range files {
		if fh.Size > MaxFileSize {
			return nil, fmt.Errorf("%w: %q is %d bytes", ErrFileTooLarge, fh.Filename, fh.Size)
		}
		if _, ok := extByMime[fh.Header.Get("Content-Type")]; !ok {
			return nil, fmt.Errorf("%w: %q is %q", ErrInvalidType, fh.Filename, fh.Header.Get("Content-Type"))
		}
	}

	saved := make([]SavedPhoto, 0, len(files))
	for _, fh := range files {
		photo, err := s.saveOne(fh)
		if err != nil {
			s.Cleanup(saved)
			return nil, err
		}
		saved = append(saved, photo)
	}
	return saved, nil
}

func (s *Saver) saveOne(fh *multipart.FileHeader) (SavedPhoto, error) {
	mime := fh.Header.Get("Content-Type")

	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return SavedPhoto{}, fmt.Errorf("random filename: %w", err)
	}
	name := fmt.Sprintf("%d_%s%s", time.Now().UnixMilli(), hex.EncodeToString(buf[:]), extByMime[mime])
	path := filepath.Join(s.dir, name)

	src, err := fh.Open()
	if err != nil {
		return SavedPhoto{}, fmt.Errorf("open upload %q: %w", fh.Filename, err)
	}
	defer src.Close()

	dst, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return SavedPhoto{}, fmt.Errorf("create %q: %w", name, err)
	}

	written, err := io.Copy(dst, src)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return SavedPhoto{}, fmt.Errorf("write %q: %w", name, err)
	}

	return SavedPhoto{
		Filename:     name,
		OriginalName: fh.Filename,
		Mime:         mime,
		Size:         written,
		Path:         path,
	}, nil
}

// Cleanup removes already-saved photos after a failed request, so validation
// or persistence failures leave no orphaned files on disk.
func (s *Saver) Cleanup(photos []SavedPhoto) {
	for _, p := range photos {
		if err := os.Remove(p.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Printf("ERROR: cleanup upload %s: %v", p.Filename, err)
		}
	}
}
