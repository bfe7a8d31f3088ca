package media

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/soyeahso/wadesk/internal/domain"
	"github.com/soyeahso/wadesk/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMaterializer(t *testing.T) *Materializer {
	t.Helper()
	return New(Options{Dir: t.TempDir()}, logging.New(nil, "silent"))
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := range w {
		for y := range h {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func decodeJPEG(t *testing.T, path string) image.Image {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	img, err := jpeg.Decode(f)
	require.NoError(t, err)
	return img
}

func TestMaterializeDownscalesWideImage(t *testing.T) {
	m := newTestMaterializer(t)

	asset, err := m.Materialize(context.Background(), domain.MediaPayload{
		Data:     pngBytes(t, 1600, 400),
		MimeType: "image/png",
	})
	require.NoError(t, err)

	assert.True(t, strings.HasSuffix(asset.Name, ".jpg"))
	assert.Equal(t, "/uploads/"+asset.Name, asset.URL)
	assert.Equal(t, "image/jpeg", asset.MimeType)

	img := decodeJPEG(t, asset.Path)
	assert.Equal(t, 800, img.Bounds().Dx())
	assert.Equal(t, 200, img.Bounds().Dy())
}

func TestMaterializeDoesNotUpscale(t *testing.T) {
	m := newTestMaterializer(t)

	asset, err := m.Materialize(context.Background(), domain.MediaPayload{
		Data:     pngBytes(t, 120, 60),
		MimeType: "image/png",
	})
	require.NoError(t, err)

	img := decodeJPEG(t, asset.Path)
	assert.Equal(t, 120, img.Bounds().Dx())
}

func TestMaterializeUndecodableImageStoredVerbatim(t *testing.T) {
	m := newTestMaterializer(t)
	junk := []byte("definitely not a jpeg")

	asset, err := m.Materialize(context.Background(), domain.MediaPayload{Data: junk, MimeType: "image/jpeg"})
	require.NoError(t, err)

	data, err := os.ReadFile(asset.Path)
	require.NoError(t, err)
	assert.Equal(t, junk, data)
	assert.Equal(t, ".jpg", filepath.Ext(asset.Name))
}

func TestMaterializeNonImageVerbatim(t *testing.T) {
	m := newTestMaterializer(t)
	audio := []byte{0x4f, 0x67, 0x67, 0x53, 0x00}

	asset, err := m.Materialize(context.Background(), domain.MediaPayload{
		Data:     audio,
		MimeType: "audio/ogg; codecs=opus",
	})
	require.NoError(t, err)

	assert.Equal(t, ".ogg", filepath.Ext(asset.Name))
	assert.Equal(t, int64(len(audio)), asset.Size)
	data, err := os.ReadFile(asset.Path)
	require.NoError(t, err)
	assert.Equal(t, audio, data)
}

func TestMaterializeEmpty(t *testing.T) {
	m := newTestMaterializer(t)
	_, err := m.Materialize(context.Background(), domain.MediaPayload{MimeType: "image/png"})
	assert.ErrorIs(t, err, ErrEmptyPayload)
}

func TestMaterializeCancelledContext(t *testing.T) {
	m := newTestMaterializer(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := m.Materialize(ctx, domain.MediaPayload{Data: []byte("x"), MimeType: "text/plain"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMaterializeUniqueNames(t *testing.T) {
	m := newTestMaterializer(t)
	seen := map[string]bool{}
	for range 20 {
		asset, err := m.Materialize(context.Background(), domain.MediaPayload{Data: []byte("x"), MimeType: "text/plain"})
		require.NoError(t, err)
		assert.False(t, seen[asset.Name])
		seen[asset.Name] = true
	}
}

func TestSaveKeepsFilenameExtension(t *testing.T) {
	m := New(Options{Dir: t.TempDir(), URLPrefix: "media/"}, logging.New(nil, "silent"))

	asset, err := m.Save("Orçamento.PDF", []byte("%PDF-1.4"), "application/pdf")
	require.NoError(t, err)
	assert.Equal(t, ".pdf", filepath.Ext(asset.Name))
	assert.True(t, strings.HasPrefix(asset.URL, "/media/"))
	assert.Equal(t, "/media", m.URLPrefix())
}

func TestExtension(t *testing.T) {
	tests := []struct {
		mime, filename, want string
	}{
		{"image/jpeg", "", ".jpg"},
		{"image/webp", "", ".webp"},
		{"audio/ogg; codecs=opus", "", ".ogg"},
		{"application/pdf", "x.doc", ".pdf"},
		{"application/vnd.openxmlformats-officedocument.wordprocessingml.document", "", ".docx"},
		{"application/vnd.custom.thing", "report.XYZ", ".xyz"},
		{"", "notes.txt", ".txt"},
		{"", "", ".bin"},
	}
	for _, tt := range tests {
		t.Run(tt.mime+"|"+tt.filename, func(t *testing.T) {
			assert.Equal(t, tt.want, Extension(tt.mime, tt.filename))
		})
	}
}

func TestIsImage(t *testing.T) {
	assert.True(t, IsImage("image/png"))
	assert.True(t, IsImage("IMAGE/JPEG"))
	assert.False(t, IsImage("video/mp4"))
	assert.False(t, IsImage(""))
}

func TestDecodeBase64(t *testing.T) {
	data, err := DecodeBase64("aGVsbG8=")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)

	data, err = DecodeBase64("data:text/plain;base64,aGVsbG8=")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)

	data, err = DecodeBase64("aGVsbG8")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)

	_, err = DecodeBase64("")
	assert.ErrorIs(t, err, ErrEmptyPayload)

	_, err = DecodeBase64("!!!not base64!!!")
	assert.Error(t, err)
}
