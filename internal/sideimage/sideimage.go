// Package sideimage keeps the world's preview image next to the roster file.
// Uploaded images are resized to a fixed size, stored as PNG and published
// through the same hook as the roster.
package sideimage

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // registers the GIF decoder
	_ "image/jpeg" // registers the JPEG decoder
	"image/png"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	_ "golang.org/x/image/bmp"  // registers the BMP decoder
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // registers the WebP decoder

	"github.com/vrcwmt/worldperm/internal/publish"
)

const (
	DefaultPath    = "pub/sfinx.png"
	DefaultWidth   = 1431
	DefaultHeight  = 1820
	DefaultMessage = "Update sfinx.png"
)

var (
	// ErrNotImage is returned when the upload is not an image.
	ErrNotImage = errors.New("uploaded file is not an image")

	// ErrNoImage is returned by Open when no image has been stored.
	ErrNoImage = errors.New("no image is stored")
)

// Store writes the side image.
type Store struct {
	Path   string
	Width  int
	Height int

	Publisher publish.Publisher
	Logger    *zap.SugaredLogger
}

// New returns a Store with the default target size.
func New(path string, pub publish.Publisher, logger *zap.SugaredLogger) *Store {
	return &Store{
		Path:      path,
		Width:     DefaultWidth,
		Height:    DefaultHeight,
		Publisher: pub,
		Logger:    logger,
	}
}

// Save decodes r, resizes it to the store's size, writes it as PNG and
// publishes it. contentType may be empty, in which case it is sniffed.
func (s *Store) Save(ctx context.Context, r io.Reader, contentType string) error {
	br := bufio.NewReader(r)
	if contentType == "" {
		head, _ := br.Peek(512)
		contentType = http.DetectContentType(head)
	}
	if !strings.HasPrefix(contentType, "image/") {
		return fmt.Errorf("%w: %s", ErrNotImage, contentType)
	}

	src, format, err := image.Decode(br)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotImage, err)
	}

	dst := Resize(src, s.Width, s.Height)

	if err := os.MkdirAll(filepath.Dir(s.Path), 0o755); err != nil {
		return fmt.Errorf("creating image directory: %w", err)
	}
	if err := s.write(dst); err != nil {
		return err
	}
	s.logger().Infow("image stored",
		"path", s.Path,
		"source_format", format,
		"source_size", src.Bounds().Size().String(),
		"size", dst.Bounds().Size().String())

	if s.Publisher == nil {
		return nil
	}
	if err := s.Publisher.Publish(ctx, []string{s.Path}, DefaultMessage); err != nil {
		s.logger().Errorw("publish failed, image kept", "path", s.Path, "error", err)
		return fmt.Errorf("publishing image: %w", err)
	}
	return nil
}

// Open returns the stored image. The caller closes it.
func (s *Store) Open() (io.ReadCloser, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoImage
		}
		return nil, fmt.Errorf("opening image: %w", err)
	}
	return f, nil
}

// Resize scales src to exactly w by h with a Catmull-Rom filter. The aspect
// ratio is not preserved.
func Resize(src image.Image, w, h int) *image.NRGBA {
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}

func (s *Store) write(img image.Image) error {
	tmp, err := os.CreateTemp(filepath.Dir(s.Path), "."+filepath.Base(s.Path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := png.Encode(tmp, img); err != nil {
		tmp.Close()
		return fmt.Errorf("encoding png: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("setting permissions: %w", err)
	}
	if err := os.Rename(tmpName, s.Path); err != nil {
		return fmt.Errorf("replacing %s: %w", filepath.Base(s.Path), err)
	}
	return nil
}

func (s *Store) logger() *zap.SugaredLogger {
	if s.Logger == nil {
		return zap.NewNop().Sugar()
	}
	return s.Logger
}
