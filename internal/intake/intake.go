// Package intake validates uploaded X-ray images and stores them under a
// collision-free name in the upload directory.
package intake

import (
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v3/disk"

	"github.com/tphakala/pneumodetect/internal/conf"
	"github.com/tphakala/pneumodetect/internal/errors"
	"github.com/tphakala/pneumodetect/internal/logger"
)

// Rejection reasons. Every error returned by Accept wraps one of these.
var (
	ErrNoFileProvided       = errors.NewStd("no file part")
	ErrEmptyFilename        = errors.NewStd("no selected file")
	ErrUnsupportedExtension = errors.NewStd("invalid file type")
	ErrFileTooLarge         = errors.NewStd("file too large")
	ErrInsufficientSpace    = errors.NewStd("insufficient disk space for upload")
	ErrInvalidName          = errors.NewStd("invalid stored file name")
)

const (
	thumbsDir     = "thumbs"
	maxNameLength = 255
	bytesPerMB    = 1024 * 1024
)

// StoredFile describes an accepted upload.
type StoredFile struct {
	Name string // stored file name, <uuid>_<sanitised original>
	Path string // absolute path on disk
	Size int64
}

// Store accepts uploads into a single directory.
type Store struct {
	dir        string
	allowed    []string
	maxSize    int64
	minFreeMB  uint64
	thumbnails bool
	log        logger.Logger

	// diskUsage is replaceable in tests
	diskUsage func(path string) (*disk.UsageStat, error)
}

// New creates the upload directory, if needed, and returns a Store for it.
func New(settings conf.IntakeSettings) (*Store, error) {
	dir, err := filepath.Abs(settings.UploadDir)
	if err != nil {
		return nil, fileError(err, "resolve_upload_dir")
	}
	if err := os.MkdirAll(filepath.Join(dir, thumbsDir), 0o755); err != nil {
		return nil, fileError(err, "create_upload_dir")
	}

	allowed := make([]string, 0, len(settings.AllowedExtensions))
	for _, ext := range settings.AllowedExtensions {
		allowed = append(allowed, strings.ToLower(strings.TrimPrefix(ext, ".")))
	}
	if len(allowed) == 0 {
		allowed = slices.Clone(conf.DefaultAllowedExtensions)
	}

	maxSize := settings.MaxUploadSize
	if maxSize <= 0 {
		maxSize = conf.DefaultMaxUploadSize
	}

	return &Store{
		dir:        dir,
		allowed:    allowed,
		maxSize:    maxSize,
		minFreeMB:  settings.MinFreeMB,
		thumbnails: settings.Thumbnails,
		log:        GetLogger(),
		diskUsage:  disk.Usage,
	}, nil
}

// Dir returns the absolute upload directory.
func (s *Store) Dir() string {
	return s.dir
}

// MaxSize returns the largest accepted upload in bytes.
func (s *Store) MaxSize() int64 {
	return s.maxSize
}

// Allowed reports whether filename carries an allowed extension. The check
// is case-insensitive and looks at the text after the last dot only.
func (s *Store) Allowed(filename string) bool {
	ext, ok := extension(filename)
	return ok && slices.Contains(s.allowed, ext)
}

// Accept validates a multipart upload and writes it to the upload
// directory. A nil header means the request carried no file part. Nothing
// is written when validation fails.
func (s *Store) Accept(fh *multipart.FileHeader) (StoredFile, error) {
	if fh == nil {
		return StoredFile{}, rejection(ErrNoFileProvided, "")
	}
	if err := s.validate(fh.Filename, fh.Size); err != nil {
		return StoredFile{}, err
	}

	src, err := fh.Open()
	if err != nil {
		return StoredFile{}, fileError(err, "open_upload")
	}
	defer src.Close()

	return s.write(fh.Filename, src)
}

// AcceptReader is Accept for callers that already hold the file contents,
// such as the command line classifier. size may be -1 when unknown.
func (s *Store) AcceptReader(filename string, size int64, r io.Reader) (StoredFile, error) {
	if r == nil {
		return StoredFile{}, rejection(ErrNoFileProvided, "")
	}
	if err := s.validate(filename, size); err != nil {
		return StoredFile{}, err
	}
	return s.write(filename, r)
}

func (s *Store) validate(filename string, size int64) error {
	if strings.TrimSpace(filename) == "" {
		return rejection(ErrEmptyFilename, "")
	}
	if !s.Allowed(filename) {
		return rejection(ErrUnsupportedExtension, filename)
	}
	if size > s.maxSize {
		return rejection(ErrFileTooLarge, filename)
	}
	return s.checkFreeSpace()
}

// checkFreeSpace refuses uploads when the upload filesystem is nearly
// full. Failing to read usage is logged and does not block the upload.
func (s *Store) checkFreeSpace() error {
	if s.minFreeMB == 0 {
		return nil
	}
	usage, err := s.diskUsage(s.dir)
	if err != nil {
		s.log.Warn("failed to read disk usage", logger.String("dir", s.dir), logger.Error(err))
		return nil
	}
	if usage.Free < s.minFreeMB*bytesPerMB {
		return errors.New(ErrInsufficientSpace).
			Component("intake").
			Category(errors.CategoryDiskUsage).
			Context("free_mb", usage.Free/bytesPerMB).
			Context("min_free_mb", s.minFreeMB).
			Build()
	}
	return nil
}

// write stores r under a fresh name. The file is created exclusively so
// an existing upload is never overwritten.
func (s *Store) write(original string, r io.Reader) (StoredFile, error) {
	name := StoredName(original)
	path := filepath.Join(s.dir, name)

	dst, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return StoredFile{}, fileError(err, "create_upload")
	}

	n, copyErr := io.Copy(dst, io.LimitReader(r, s.maxSize+1))
	closeErr := dst.Close()
	switch {
	case copyErr != nil:
		s.remove(path)
		return StoredFile{}, fileError(copyErr, "write_upload")
	case closeErr != nil:
		s.remove(path)
		return StoredFile{}, fileError(closeErr, "close_upload")
	case n > s.maxSize:
		s.remove(path)
		return StoredFile{}, rejection(ErrFileTooLarge, original)
	}

	s.log.Debug("upload stored",
		logger.String("name", name),
		logger.Int64("size", n))
	return StoredFile{Name: name, Path: path, Size: n}, nil
}

// Resolve maps a stored name back to its absolute path. Names containing
// path elements are rejected.
func (s *Store) Resolve(name string) (string, error) {
	if !validStoredName(name) {
		return "", rejection(ErrInvalidName, name)
	}
	return filepath.Join(s.dir, name), nil
}

// Remove deletes a stored upload and its thumbnail, if present.
func (s *Store) Remove(name string) error {
	path, err := s.Resolve(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fileError(err, "remove_upload")
	}
	s.remove(filepath.Join(s.dir, thumbsDir, ThumbnailName(name)))
	return nil
}

func (s *Store) remove(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		s.log.Warn("failed to remove file", logger.String("path", path), logger.Error(err))
	}
}

// StoredName returns "<uuid>_<sanitised original>". The result contains
// only [A-Za-z0-9._-], keeps the original extension and fits in 255 bytes.
func StoredName(original string) string {
	prefix := uuid.NewString() + "_"
	return prefix + SanitizeFilename(original, maxNameLength-len(prefix))
}

// SanitizeFilename reduces name to its base name, replaces characters
// outside [A-Za-z0-9._-] with '_', strips leading dots and underscores
// and truncates the stem so the result is at most maxLen bytes.
func SanitizeFilename(name string, maxLen int) string {
	name = strings.ReplaceAll(name, `\`, "/")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}

	stem, ext := name, ""
	if i := strings.LastIndex(name, "."); i >= 0 {
		stem, ext = name[:i], strings.ToLower(name[i+1:])
	}
	stem = strings.TrimLeft(cleanChars(stem), "._")
	ext = strings.Trim(cleanChars(ext), "._")

	if stem == "" {
		stem = "upload"
	}
	suffix := ""
	if ext != "" {
		suffix = "." + ext
	}
	if limit := maxLen - len(suffix); limit > 0 && len(stem) > limit {
		stem = stem[:limit]
	}
	return stem + suffix
}

func cleanChars(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

func extension(filename string) (string, bool) {
	i := strings.LastIndex(filename, ".")
	if i < 0 || i == len(filename)-1 {
		return "", false
	}
	return strings.ToLower(filename[i+1:]), true
}

func validStoredName(name string) bool {
	if name == "" || name == "." || name == ".." || len(name) > maxNameLength {
		return false
	}
	return cleanChars(name) == name && !strings.HasPrefix(name, ".")
}

func rejection(sentinel error, filename string) error {
	b := errors.New(sentinel).
		Component("intake").
		Category(errors.CategoryValidation)
	if ext, ok := extension(filename); ok {
		b = b.Context("extension", ext)
	}
	return b.Build()
}

func fileError(err error, operation string) error {
	return errors.New(fmt.Errorf("%s: %w", operation, err)).
		Component("intake").
		Category(errors.CategoryFileIO).
		Context("operation", operation).
		Build()
}
