package intake

import (
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/tphakala/pneumodetect/internal/logger"
)

// ThumbnailSize is the bounding box of generated thumbnails in pixels.
const ThumbnailSize = 160

// ThumbnailName returns the thumbnail file name for a stored upload.
func ThumbnailName(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name)) + ".jpg"
}

// Thumbnail writes a JPEG thumbnail of the stored upload into the thumbs
// directory and returns its name. It is a no-op returning "" when
// thumbnails are disabled.
func (s *Store) Thumbnail(name string) (string, error) {
	if !s.thumbnails {
		return "", nil
	}
	src, err := s.Resolve(name)
	if err != nil {
		return "", err
	}

	img, err := imaging.Open(src, imaging.AutoOrientation(true))
	if err != nil {
		return "", fileError(err, "open_for_thumbnail")
	}

	thumbName := ThumbnailName(name)
	thumb := imaging.Fit(img, ThumbnailSize, ThumbnailSize, imaging.Lanczos)
	if err := imaging.Save(thumb, filepath.Join(s.dir, thumbsDir, thumbName), imaging.JPEGQuality(80)); err != nil {
		return "", fileError(err, "save_thumbnail")
	}

	s.log.Trace("thumbnail written", logger.String("name", thumbName))
	return thumbName, nil
}

// ResolveThumbnail maps a thumbnail name to its absolute path.
func (s *Store) ResolveThumbnail(name string) (string, error) {
	if !validStoredName(name) {
		return "", rejection(ErrInvalidName, name)
	}
	return filepath.Join(s.dir, thumbsDir, name), nil
}
