// Package vision provides the frame and box geometry primitives used by the
// recognition pipeline. All operations are pure; frames are owned transiently
// by a single pipeline pass and discarded afterwards.
package vision

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
)

// Frame is one decoded video frame. Seq reflects arrival order; there is no
// explicit timestamp.
type Frame struct {
	Image  image.Image
	Width  int
	Height int
	Seq    uint64
}

// NewFrame wraps a decoded image.
func NewFrame(img image.Image, seq uint64) *Frame {
	b := img.Bounds()
	return &Frame{
		Image:  img,
		Width:  b.Dx(),
		Height: b.Dy(),
		Seq:    seq,
	}
}

// DecodeFrame decodes an encoded image (JPEG, PNG or BMP) into a frame.
func DecodeFrame(data []byte, seq uint64) (*Frame, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode frame: %w", err)
	}
	return NewFrame(img, seq), nil
}

// Placeholder returns a black frame of the given size. Streams substitute it
// when no real frame arrives in time so downstream consumers never stall.
func Placeholder(width, height int, seq uint64) *Frame {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	return NewFrame(img, seq)
}
