package pipeline

import (
	"errors"

	"github.com/raine/telegram-cin-bot/internal/capture"
	"github.com/raine/telegram-cin-bot/internal/metrics"
	"github.com/rs/zerolog/log"
)

// CropPolicy prepares an acquired image for submission.
type CropPolicy interface {
	Apply(img *capture.CapturedImage, vp capture.Viewport) (*capture.CapturedImage, error)
}

// GuideFrameCrop cuts camera captures down to the on-screen guide frame.
type GuideFrameCrop struct{}

// Apply crops img to the guide frame of vp. When the geometry cannot be
// computed the image is returned uncropped. Crop failures are returned.
func (GuideFrameCrop) Apply(img *capture.CapturedImage, vp capture.Viewport) (*capture.CapturedImage, error) {
	region, err := capture.ComputeCropRegion(vp.Width, img.Width(), img.Height())
	if errors.Is(err, capture.ErrCaptureGeometry) {
		log.Warn().
			Float64("previewWidth", vp.Width).
			Int("width", img.Width()).
			Int("height", img.Height()).
			Msg("capture geometry unavailable, submitting uncropped image")
		metrics.CropsTotal.WithLabelValues("skipped_geometry").Inc()
		return img, nil
	}
	if err != nil {
		return nil, err
	}

	cropped, err := capture.Crop(img, region)
	if err != nil {
		metrics.CropsTotal.WithLabelValues("failed").Inc()
		return nil, err
	}

	log.Debug().
		Float64("x", region.X).
		Float64("y", region.Y).
		Float64("w", region.Width).
		Float64("h", region.Height).
		Msg("cropped capture to guide frame")
	metrics.CropsTotal.WithLabelValues("cropped").Inc()
	return cropped, nil
}

// Passthrough leaves the image as selected.
type Passthrough struct{}

func (Passthrough) Apply(img *capture.CapturedImage, _ capture.Viewport) (*capture.CapturedImage, error) {
	return img, nil
}

// PolicyFor returns the crop policy for a source: camera captures are
// cropped, gallery picks were already composed by the user.
func PolicyFor(source capture.Source) CropPolicy {
	if source == capture.SourceCamera {
		return GuideFrameCrop{}
	}
	return Passthrough{}
}
