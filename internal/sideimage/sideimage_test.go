package sideimage

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vrcwmt/worldperm/internal/publish"
)

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func pngBytes(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestSave_ResizesAndPublishes(t *testing.T) {
	ctrl := gomock.NewController(t)
	pub := publish.NewMockPublisher(ctrl)

	path := filepath.Join(t.TempDir(), "pub", "sfinx.png")
	pub.EXPECT().Publish(gomock.Any(), []string{path}, DefaultMessage).Return(nil)

	s := New(path, pub, nil)
	data := pngBytes(t, solid(40, 30, color.RGBA{R: 200, A: 255}))
	require.NoError(t, s.Save(context.Background(), bytes.NewReader(data), "image/png"))

	f, err := s.Open()
	require.NoError(t, err)
	defer f.Close()

	cfg, format, err := image.DecodeConfig(f)
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	assert.Equal(t, DefaultWidth, cfg.Width)
	assert.Equal(t, DefaultHeight, cfg.Height)
}

func TestSave_SniffsContentType(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sfinx.png")
	s := &Store{Path: path, Width: 8, Height: 4}

	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, solid(16, 16, color.White), nil))
	require.NoError(t, s.Save(context.Background(), &buf, ""))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 8, 4), img.Bounds())
}

func TestSave_RejectsNonImages(t *testing.T) {
	ctrl := gomock.NewController(t)
	pub := publish.NewMockPublisher(ctrl) // never called

	path := filepath.Join(t.TempDir(), "sfinx.png")
	s := New(path, pub, nil)

	err := s.Save(context.Background(), strings.NewReader("hello"), "text/plain")
	assert.ErrorIs(t, err, ErrNotImage)

	err = s.Save(context.Background(), strings.NewReader("hello"), "")
	assert.ErrorIs(t, err, ErrNotImage)

	// Claims to be an image but is not decodable.
	err = s.Save(context.Background(), strings.NewReader("hello"), "image/png")
	assert.ErrorIs(t, err, ErrNotImage)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestSave_PublishFailureKeepsImage(t *testing.T) {
	ctrl := gomock.NewController(t)
	pub := publish.NewMockPublisher(ctrl)
	boom := errors.New("push rejected")
	pub.EXPECT().Publish(gomock.Any(), gomock.Any(), gomock.Any()).Return(boom)

	path := filepath.Join(t.TempDir(), "sfinx.png")
	s := &Store{Path: path, Width: 2, Height: 2, Publisher: pub}

	err := s.Save(context.Background(), bytes.NewReader(pngBytes(t, solid(4, 4, color.Black))), "image/png")
	assert.ErrorIs(t, err, boom)

	_, statErr := os.Stat(path)
	assert.NoError(t, statErr)
}

func TestOpen_Missing(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "sfinx.png"), nil, nil)
	_, err := s.Open()
	assert.ErrorIs(t, err, ErrNoImage)
}

func TestResize(t *testing.T) {
	dst := Resize(solid(10, 10, color.RGBA{G: 255, A: 255}), 3, 7)
	assert.Equal(t, image.Rect(0, 0, 3, 7), dst.Bounds())

	r, g, b, a := dst.At(1, 3).RGBA()
	assert.Zero(t, r)
	assert.InDelta(t, 0xffff, g, 0x100)
	assert.Zero(t, b)
	assert.InDelta(t, 0xffff, a, 0x100)
}

func TestOpen_ReturnsStoredBytes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sfinx.png")
	require.NoError(t, os.WriteFile(path, []byte("png"), 0644))

	f, err := New(path, nil, nil).Open()
	require.NoError(t, err)
	defer f.Close()
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "png", string(data))
}
