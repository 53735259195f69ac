package capture

import "math"

const (
	// GuideAspectRatio is the width:height ratio of an ID card (1318:832).
	GuideAspectRatio = 1318.0 / 832.0
	// GuideWidthFraction is the share of the preview width covered by the guide frame.
	GuideWidthFraction = 0.9
	// GuideTopAnchor is the guide frame's top edge as a fraction of preview height.
	GuideTopAnchor = 0.35
)

// Viewport is the size of the on-screen camera preview in logical pixels.
type Viewport struct {
	Width  float64
	Height float64
}

// Rect is an axis-aligned rectangle with a floating point origin and size.
type Rect struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// GuideFrame is the document guide overlaid on the preview, in preview coordinates.
type GuideFrame struct {
	Rect
}

// CropRegion is the guide frame mapped into the captured image's pixel space.
type CropRegion struct {
	Rect
}

// NewGuideFrame computes the guide frame for a preview viewport.
func NewGuideFrame(vp Viewport) GuideFrame {
	w := vp.Width * GuideWidthFraction
	h := w / GuideAspectRatio
	return GuideFrame{Rect{
		X:      (vp.Width - w) / 2,
		Y:      vp.Height * GuideTopAnchor,
		Width:  w,
		Height: h,
	}}
}

// ComputeCropRegion maps the guide frame of a preview that is previewWidth
// logical pixels wide onto an image of imageWidth x imageHeight pixels.
//
// The region is vertically centered on the captured image and clipped to the
// image bounds when the guide proportions would overflow it.
func ComputeCropRegion(previewWidth float64, imageWidth, imageHeight int) (CropRegion, error) {
	if !(previewWidth > 0) || math.IsInf(previewWidth, 1) || imageWidth <= 0 || imageHeight <= 0 {
		return CropRegion{}, ErrCaptureGeometry
	}

	wi := float64(imageWidth)
	hi := float64(imageHeight)

	guideWidth := previewWidth * GuideWidthFraction
	guideHeight := guideWidth / GuideAspectRatio
	scale := wi / previewWidth

	r := Rect{
		X:      (previewWidth - guideWidth) / 2 * scale,
		Y:      (hi - guideHeight*scale) / 2,
		Width:  guideWidth * scale,
		Height: guideHeight * scale,
	}

	return CropRegion{clampRect(r, wi, hi)}, nil
}

// clampRect clips r to [0,maxW] x [0,maxH].
func clampRect(r Rect, maxW, maxH float64) Rect {
	x0 := clamp(r.X, 0, maxW)
	y0 := clamp(r.Y, 0, maxH)
	x1 := clamp(r.X+r.Width, x0, maxW)
	y1 := clamp(r.Y+r.Height, y0, maxH)
	return Rect{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}
