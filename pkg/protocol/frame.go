package protocol

import (
	"fmt"
	"image"

	"github.com/cespare/xxhash"
)

// BytesPerPixel is the RGBA8888 pixel size.
const BytesPerPixel = 4

// Frame is one rendered video frame: RGBA8888, row-major, no row padding.
type Frame struct {
	Width  uint32
	Height uint32
	Pixels []byte
}

// NewFrame allocates a zeroed frame of the given size.
func NewFrame(width, height uint32) Frame {
	return Frame{
		Width:  width,
		Height: height,
		Pixels: make([]byte, int(width)*int(height)*BytesPerPixel),
	}
}

// Validate checks that the pixel buffer is exactly Width*Height*4 bytes.
func (f Frame) Validate() error {
	want := uint64(f.Width) * uint64(f.Height) * BytesPerPixel
	if uint64(len(f.Pixels)) != want {
		return fmt.Errorf("frame %dx%d: pixel buffer is %d bytes, want %d",
			f.Width, f.Height, len(f.Pixels), want)
	}
	return nil
}

// Empty reports whether no frame has been captured yet.
func (f Frame) Empty() bool {
	return f.Width == 0 && f.Height == 0
}

// Clone returns a frame with its own copy of the pixel buffer.
func (f Frame) Clone() Frame {
	out := f
	out.Pixels = append([]byte(nil), f.Pixels...)
	return out
}

// Digest is the xxhash64 of the pixel buffer. Equal frames have equal digests.
func (f Frame) Digest() uint64 {
	return xxhash.Sum64(f.Pixels)
}

// Image wraps the pixel buffer as an *image.RGBA without copying.
func (f Frame) Image() *image.RGBA {
	return &image.RGBA{
		Pix:    f.Pixels,
		Stride: int(f.Width) * BytesPerPixel,
		Rect:   image.Rect(0, 0, int(f.Width), int(f.Height)),
	}
}

// Pointer positions the IR pointer of a Wiimote.
type Pointer struct {
	Port int
	X    float64
	Y    float64
}

// State is the reply to GetState. The emulator side has no state snapshot
// yet, so the only value ever sent is the empty one.
type State struct{}
