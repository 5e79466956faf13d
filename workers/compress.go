package workers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png" // decoder registration

	xdraw "golang.org/x/image/draw"
)

// DefaultJPEGQuality is used when CompressRequest.Quality is unset.
const DefaultJPEGQuality = 80

// ErrEmptyImage is returned when no image bytes are supplied.
var ErrEmptyImage = errors.New("empty image")

// CompressRequest re-encodes Image as JPEG. MaxWidth > 0 downscales wider
// images, keeping the aspect ratio.
type CompressRequest struct {
	Image    []byte `json:"image"`
	Quality  int    `json:"quality,omitempty"`
	MaxWidth int    `json:"max_width,omitempty"`
}

// CompressResponse holds the re-encoded JPEG.
type CompressResponse struct {
	Image        []byte `json:"image"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	OriginalSize int    `json:"original_size"`
}

// Compress decodes a JPEG or PNG photo and re-encodes it as JPEG.
func Compress(ctx context.Context, req CompressRequest) (CompressResponse, error) {
	src, err := decodeImage(req.Image)
	if err != nil {
		return CompressResponse{}, err
	}
	if err := ctx.Err(); err != nil {
		return CompressResponse{}, err
	}

	quality := req.Quality
	if quality <= 0 || quality > 100 {
		quality = DefaultJPEGQuality
	}

	img := downscale(src, req.MaxWidth)
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return CompressResponse{}, fmt.Errorf("failed to encode jpeg: %w", err)
	}

	b := img.Bounds()
	return CompressResponse{
		Image:        buf.Bytes(),
		Width:        b.Dx(),
		Height:       b.Dy(),
		OriginalSize: len(req.Image),
	}, nil
}

func decodeImage(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

func downscale(src image.Image, maxWidth int) image.Image {
	b := src.Bounds()
	if maxWidth <= 0 || b.Dx() <= maxWidth {
		return src
	}
	h := b.Dy() * maxWidth / b.Dx()
	if h < 1 {
		h = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, maxWidth, h))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, b, xdraw.Over, nil)
	return dst
}
