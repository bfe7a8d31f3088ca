// Package media stores message attachments in the upload directory and
// produces the URLs dashboards fetch them from.
package media

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/soyeahso/wadesk/internal/domain"
	"github.com/soyeahso/wadesk/internal/logging"

	_ "golang.org/x/image/webp"
)

// ErrEmptyPayload is returned for media without content.
var ErrEmptyPayload = errors.New("media: empty payload")

// Options configures a Materializer.
type Options struct {
	Dir         string // upload directory
	URLPrefix   string // public prefix, e.g. /uploads
	MaxWidth    int    // images wider than this are downscaled
	JPEGQuality int
}

// Materializer writes media payloads to disk under generated names.
type Materializer struct {
	opts Options
	log  *logging.Logger
}

// New creates a Materializer. Zero option values take the stock defaults.
func New(opts Options, log *logging.Logger) *Materializer {
	if opts.URLPrefix == "" {
		opts.URLPrefix = "/uploads"
	}
	if opts.MaxWidth <= 0 {
		opts.MaxWidth = 800
	}
	if opts.JPEGQuality <= 0 {
		opts.JPEGQuality = 80
	}
	opts.URLPrefix = "/" + strings.Trim(opts.URLPrefix, "/")
	return &Materializer{opts: opts, log: log.Sub("media")}
}

// Dir returns the upload directory.
func (m *Materializer) Dir() string { return m.opts.Dir }

// URLPrefix returns the public path prefix of stored assets.
func (m *Materializer) URLPrefix() string { return m.opts.URLPrefix }

// Materialize stores p. Images are downscaled to MaxWidth and re-encoded as
// JPEG; an image that cannot be decoded is stored as received. Everything
// else is stored verbatim.
func (m *Materializer) Materialize(ctx context.Context, p domain.MediaPayload) (domain.MediaAsset, error) {
	if len(p.Data) == 0 {
		return domain.MediaAsset{}, ErrEmptyPayload
	}
	if err := ctx.Err(); err != nil {
		return domain.MediaAsset{}, err
	}

	if IsImage(p.MimeType) {
		data, err := m.transcode(p.Data)
		if err == nil {
			return m.write(uuid.New().String()+".jpg", data, "image/jpeg")
		}
		m.log.Warn().Err(err).Str("mimeType", p.MimeType).Msg("image transcode failed, storing original")
	}
	return m.write(uuid.New().String()+Extension(p.MimeType, p.Filename), p.Data, p.MimeType)
}

// Save stores data verbatim, keeping the extension of filename.
func (m *Materializer) Save(filename string, data []byte, mimeType string) (domain.MediaAsset, error) {
	if len(data) == 0 {
		return domain.MediaAsset{}, ErrEmptyPayload
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		ext = Extension(mimeType, "")
	}
	return m.write(uuid.New().String()+ext, data, mimeType)
}

func (m *Materializer) transcode(data []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	if img.Bounds().Dx() > m.opts.MaxWidth {
		img = imaging.Resize(img, m.opts.MaxWidth, 0, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(m.opts.JPEGQuality)); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

func (m *Materializer) write(name string, data []byte, mimeType string) (domain.MediaAsset, error) {
	if err := os.MkdirAll(m.opts.Dir, 0o755); err != nil {
		return domain.MediaAsset{}, fmt.Errorf("creating upload dir: %w", err)
	}
	full := filepath.Join(m.opts.Dir, name)
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return domain.MediaAsset{}, fmt.Errorf("writing %s: %w", name, err)
	}

	m.log.Debug().Str("file", name).Int("bytes", len(data)).Msg("media stored")
	return domain.MediaAsset{
		Name:     name,
		Path:     full,
		URL:      path.Join(m.opts.URLPrefix, name),
		MimeType: mimeType,
		Size:     int64(len(data)),
	}, nil
}

// IsImage reports whether mimeType names an image type.
func IsImage(mimeType string) bool {
	return strings.HasPrefix(BaseType(mimeType), "image/")
}

// BaseType strips parameters from a MIME type, e.g. "audio/ogg; codecs=opus"
// becomes "audio/ogg".
func BaseType(mimeType string) string {
	if mt, _, err := mime.ParseMediaType(mimeType); err == nil {
		return mt
	}
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = mimeType[:i]
	}
	return strings.ToLower(strings.TrimSpace(mimeType))
}

// Extension picks a file extension (with dot) for the given type. The
// subtype is used when it is a plain token; otherwise the filename's
// extension, then ".bin".
func Extension(mimeType, filename string) string {
	base := BaseType(mimeType)
	if _, sub, ok := strings.Cut(base, "/"); ok && sub != "" {
		if ext, known := subtypeExt[sub]; known {
			return ext
		}
		if isToken(sub) {
			return "." + sub
		}
	}
	if ext := filepath.Ext(filename); ext != "" {
		return strings.ToLower(ext)
	}
	return ".bin"
}

var subtypeExt = map[string]string{
	"jpeg":         ".jpg",
	"svg+xml":      ".svg",
	"plain":        ".txt",
	"mpeg":         ".mp3",
	"quicktime":    ".mov",
	"x-msvideo":    ".avi",
	"msword":       ".doc",
	"vnd.ms-excel": ".xls",

	"vnd.openxmlformats-officedocument.wordprocessingml.document": ".docx",

	"vnd.openxmlformats-officedocument.spreadsheetml.sheet": ".xlsx",
}

func isToken(s string) bool {
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '-') {
			return false
		}
	}
	return len(s) <= 10
}

// DecodeBase64 decodes a base64 payload, accepting an optional data URL
// prefix ("data:image/png;base64,").
func DecodeBase64(s string) ([]byte, error) {
	if strings.HasPrefix(s, "data:") {
		if i := strings.Index(s, ","); i >= 0 {
			s = s[i+1:]
		}
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrEmptyPayload
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		if raw, rawErr := base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "=")); rawErr == nil {
			return raw, nil
		}
		return nil, fmt.Errorf("decoding base64 media: %w", err)
	}
	return data, nil
}
