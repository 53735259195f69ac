package capture

import (
	"bytes"
	"errors"
	"image"
	"math"
	"path"
	"strings"

	"github.com/disintegration/imaging"
)

// CropJPEGQuality is the re-encode quality used for cropped images.
const CropJPEGQuality = 100

// Pixels converts the region to whole pixels, clipped to a w x h image.
func (r CropRegion) Pixels(w, h int) image.Rectangle {
	x0 := int(math.Round(r.X))
	y0 := int(math.Round(r.Y))
	x1 := int(math.Round(r.X + r.Width))
	y1 := int(math.Round(r.Y + r.Height))
	return image.Rect(x0, y0, x1, y1).Intersect(image.Rect(0, 0, w, h))
}

// Crop cuts region out of img and re-encodes the result as a JPEG. img is left
// untouched. Decode and encode failures are returned as *CropError.
func Crop(img *CapturedImage, region CropRegion) (*CapturedImage, error) {
	src, err := imaging.Decode(bytes.NewReader(img.data))
	if err != nil {
		return nil, &CropError{Err: err}
	}

	b := src.Bounds()
	rect := region.Pixels(b.Dx(), b.Dy()).Add(b.Min)
	if rect.Empty() {
		return nil, &CropError{Err: errors.New("crop region is empty")}
	}

	cropped := imaging.Crop(src, rect)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, cropped, imaging.JPEG, imaging.JPEGQuality(CropJPEGQuality)); err != nil {
		return nil, &CropError{Err: err}
	}

	return &CapturedImage{
		data:     buf.Bytes(),
		width:    cropped.Bounds().Dx(),
		height:   cropped.Bounds().Dy(),
		source:   img.source,
		location: jpegLocation(img.location),
	}, nil
}

// jpegLocation swaps a non-JPEG extension for .jpg since crops are always JPEG.
func jpegLocation(loc string) string {
	if loc == "" {
		return ""
	}
	switch strings.ToLower(path.Ext(loc)) {
	case ".jpg", ".jpeg":
		return loc
	}
	return strings.TrimSuffix(loc, path.Ext(loc)) + ".jpg"
}
