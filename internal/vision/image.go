package vision

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"

	"golang.org/x/image/draw"
)

// ErrEmptyCrop is returned when a requested crop has no area after clipping.
var ErrEmptyCrop = errors.New("empty crop region")

// Downscale resizes the frame by a fixed factor (e.g. 0.5) to bound detection
// cost. Factors outside (0, 1] return the frame unchanged.
func Downscale(f *Frame, factor float64) *Frame {
	if factor <= 0 || factor >= 1 {
		return f
	}
	w := int(float64(f.Width) * factor)
	h := int(float64(f.Height) * factor)
	if w < 1 || h < 1 {
		return f
	}

	resized := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(resized, resized.Bounds(), f.Image, f.Image.Bounds(), draw.Over, nil)
	return NewFrame(resized, f.Seq)
}

// Crop extracts the region of the frame covered by the box. The box is clipped
// to the frame bounds first; a degenerate result yields ErrEmptyCrop.
func Crop(f *Frame, box Box) (image.Image, error) {
	box = box.Clip(f.Width, f.Height)
	if box.Empty() {
		return nil, ErrEmptyCrop
	}

	min := f.Image.Bounds().Min
	rect := image.Rect(min.X+box.X1, min.Y+box.Y1, min.X+box.X2, min.Y+box.Y2)

	if sub, ok := f.Image.(interface {
		SubImage(image.Rectangle) image.Image
	}); ok {
		return sub.SubImage(rect), nil
	}

	out := image.NewRGBA(image.Rect(0, 0, box.Width(), box.Height()))
	draw.Draw(out, out.Bounds(), f.Image, rect.Min, draw.Src)
	return out, nil
}

// ResizeTo scales an image to an exact width and height, ignoring aspect
// ratio. Used to produce the fixed-size model input patches.
func ResizeTo(img image.Image, width, height int) image.Image {
	b := img.Bounds()
	if b.Dx() == width && b.Dy() == height {
		return img
	}
	resized := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(resized, resized.Bounds(), img, b, draw.Over, nil)
	return resized
}

// EncodeJPEG encodes an image for transport to the model server.
func EncodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85}); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}
