package metadata

import (
	"image"

	xdraw "golang.org/x/image/draw"
)

// PixelsFromImage converts any image.Image into tightly packed RGBA8 bytes
// suitable as a texture upload payload. The returned slice is
// width*height*4 bytes with no row padding; staging providers apply row
// pitch alignment on their side.
func PixelsFromImage(img image.Image) ([]byte, uint32, uint32) {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	rgba, ok := img.(*image.RGBA)
	if !ok || rgba.Stride != width*4 {
		converted := image.NewRGBA(image.Rect(0, 0, width, height))
		xdraw.Draw(converted, converted.Bounds(), img, bounds.Min, xdraw.Src)
		rgba = converted
	}

	return rgba.Pix[:width*height*4], uint32(width), uint32(height)
}
