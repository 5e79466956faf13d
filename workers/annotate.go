package workers

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"strconv"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	boxThickness = 3
	labelPadding = 2
)

var defaultBoxColor = color.RGBA{R: 0xE5, G: 0x39, B: 0x35, A: 0xFF}

// Box is a detection bounding box in image pixel coordinates.
type Box struct {
	X      int     `json:"x"`
	Y      int     `json:"y"`
	Width  int     `json:"width"`
	Height int     `json:"height"`
	Label  string  `json:"label,omitempty"`
	Score  float64 `json:"score,omitempty"`
	Color  string  `json:"color,omitempty"` // #RRGGBB
}

// AnnotateRequest overlays Boxes on Image.
type AnnotateRequest struct {
	Image []byte `json:"image"`
	Boxes []Box  `json:"boxes"`
}

// AnnotateResponse holds the annotated image as PNG.
type AnnotateResponse struct {
	Image []byte `json:"image"`
	Boxes int    `json:"boxes"`
}

// Annotate draws labelled detection boxes onto a photo.
func Annotate(ctx context.Context, req AnnotateRequest) (AnnotateResponse, error) {
	src, err := decodeImage(req.Image)
	if err != nil {
		return AnnotateResponse{}, err
	}

	canvas := image.NewRGBA(src.Bounds())
	draw.Draw(canvas, canvas.Bounds(), src, src.Bounds().Min, draw.Src)

	drawn := 0
	for _, box := range req.Boxes {
		if err := ctx.Err(); err != nil {
			return AnnotateResponse{}, err
		}
		c, err := parseHexColor(box.Color)
		if err != nil {
			return AnnotateResponse{}, err
		}
		r := image.Rect(box.X, box.Y, box.X+box.Width, box.Y+box.Height).Intersect(canvas.Bounds())
		if r.Empty() {
			continue
		}
		strokeRect(canvas, r, c)
		if text := boxLabel(box); text != "" {
			drawLabel(canvas, r.Min, text, c)
		}
		drawn++
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		return AnnotateResponse{}, fmt.Errorf("failed to encode png: %w", err)
	}
	return AnnotateResponse{Image: buf.Bytes(), Boxes: drawn}, nil
}

func strokeRect(dst *image.RGBA, r image.Rectangle, c color.Color) {
	fill := image.NewUniform(c)
	t := boxThickness
	edges := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+t),
		image.Rect(r.Min.X, r.Max.Y-t, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+t, r.Max.Y),
		image.Rect(r.Max.X-t, r.Min.Y, r.Max.X, r.Max.Y),
	}
	for _, e := range edges {
		draw.Draw(dst, e.Intersect(r), fill, image.Point{}, draw.Src)
	}
}

func drawLabel(dst *image.RGBA, at image.Point, text string, bg color.Color) {
	face := basicfont.Face7x13
	width := font.MeasureString(face, text).Ceil()
	height := face.Metrics().Height.Ceil()

	top := at.Y - height - 2*labelPadding
	if top < dst.Bounds().Min.Y {
		top = at.Y
	}
	band := image.Rect(at.X, top, at.X+width+2*labelPadding, top+height+2*labelPadding)
	draw.Draw(dst, band.Intersect(dst.Bounds()), image.NewUniform(bg), image.Point{}, draw.Src)

	d := &font.Drawer{
		Dst:  dst,
		Src:  image.White,
		Face: face,
		Dot:  fixed.P(at.X+labelPadding, top+labelPadding+face.Metrics().Ascent.Ceil()),
	}
	d.DrawString(text)
}

func boxLabel(b Box) string {
	switch {
	case b.Label != "" && b.Score > 0:
		return fmt.Sprintf("%s %.0f%%", b.Label, b.Score*100)
	case b.Label != "":
		return b.Label
	case b.Score > 0:
		return fmt.Sprintf("%.0f%%", b.Score*100)
	}
	return ""
}

func parseHexColor(s string) (color.RGBA, error) {
	if s == "" {
		return defaultBoxColor, nil
	}
	hex := strings.TrimPrefix(s, "#")
	if len(hex) != 6 {
		return color.RGBA{}, fmt.Errorf("%w: invalid color %q", ErrBadPayload, s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("%w: invalid color %q", ErrBadPayload, s)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xFF}, nil
}
