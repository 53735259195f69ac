// Package pipeline acquires a document image, crops camera captures to the
// guide frame, submits the result to an extractor and keeps the latest image
// and extraction result.
package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/raine/telegram-cin-bot/internal/capture"
	"github.com/raine/telegram-cin-bot/internal/metrics"
	"github.com/rs/zerolog/log"
)

// ErrSubmitInFlight is returned when Submit is called while a previous
// submission has not finished.
var ErrSubmitInFlight = errors.New("a submission is already in progress")

// Extractor turns an uploaded image into document fields.
type Extractor interface {
	Extract(ctx context.Context, payload capture.UploadPayload) (capture.ExtractionResult, error)
}

// Pipeline owns the current image and current result of one user.
//
// Acquisition, crop and submission are sequential steps driven by the caller;
// the mutex only keeps the image/result pair consistent for readers.
type Pipeline struct {
	extractor Extractor
	perms     capture.Permissions

	mu         sync.Mutex
	viewport   capture.Viewport
	image      *capture.CapturedImage
	result     capture.ExtractionResult
	submitting bool
}

// New creates a pipeline. vp is the preview viewport used for camera crops.
func New(extractor Extractor, perms capture.Permissions, vp capture.Viewport) *Pipeline {
	return &Pipeline{
		extractor: extractor,
		perms:     perms,
		viewport:  vp,
	}
}

// SetViewport records a new preview size.
func (p *Pipeline) SetViewport(vp capture.Viewport) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.viewport = vp
}

// Viewport returns the current preview size.
func (p *Pipeline) Viewport() capture.Viewport {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.viewport
}

// GuideFrame returns the guide frame for the current viewport.
func (p *Pipeline) GuideFrame() capture.GuideFrame {
	return capture.NewGuideFrame(p.Viewport())
}

// CaptureFromCamera takes a photo from dev and crops it to the guide frame.
func (p *Pipeline) CaptureFromCamera(ctx context.Context, dev capture.Device) (*capture.CapturedImage, error) {
	return p.acquire(ctx, capture.SourceCamera, dev)
}

// SelectFromGallery picks an image from dev without cropping.
func (p *Pipeline) SelectFromGallery(ctx context.Context, dev capture.Device) (*capture.CapturedImage, error) {
	return p.acquire(ctx, capture.SourceGallery, dev)
}

func (p *Pipeline) acquire(ctx context.Context, source capture.Source, dev capture.Device) (*capture.CapturedImage, error) {
	img, err := capture.Acquire(ctx, p.perms, source, dev)
	if err != nil {
		var denied *capture.PermissionDeniedError
		if errors.As(err, &denied) {
			metrics.AcquisitionsTotal.WithLabelValues(source.String(), "permission_denied").Inc()
		} else {
			metrics.AcquisitionsTotal.WithLabelValues(source.String(), "error").Inc()
		}
		return nil, err
	}

	prepared, err := PolicyFor(source).Apply(img, p.Viewport())
	if err != nil {
		metrics.AcquisitionsTotal.WithLabelValues(source.String(), "error").Inc()
		return nil, err
	}

	// The previous result belongs to the previous image.
	p.mu.Lock()
	p.image = prepared
	p.result = nil
	p.mu.Unlock()

	metrics.AcquisitionsTotal.WithLabelValues(source.String(), "ok").Inc()
	log.Info().
		Str("source", source.String()).
		Int("width", prepared.Width()).
		Int("height", prepared.Height()).
		Msg("image acquired")

	return prepared, nil
}

// Submit uploads the current image and stores the extraction result.
// It fails with capture.ErrNoImageSelected before any network activity when
// no image is held.
func (p *Pipeline) Submit(ctx context.Context) (capture.ExtractionResult, error) {
	p.mu.Lock()
	img := p.image
	if img == nil {
		p.mu.Unlock()
		metrics.SubmissionsTotal.WithLabelValues("no_image").Inc()
		return nil, capture.ErrNoImageSelected
	}
	if p.submitting {
		p.mu.Unlock()
		return nil, ErrSubmitInFlight
	}
	p.submitting = true
	p.mu.Unlock()

	start := time.Now()
	result, err := p.extractor.Extract(ctx, capture.NewUploadPayload(img))
	metrics.SubmissionDuration.Observe(time.Since(start).Seconds())

	p.mu.Lock()
	defer p.mu.Unlock()
	p.submitting = false

	if err != nil {
		metrics.SubmissionsTotal.WithLabelValues(submissionOutcome(err)).Inc()
		return nil, err
	}
	metrics.SubmissionsTotal.WithLabelValues("ok").Inc()

	// An image acquired meanwhile must not be paired with this result.
	if p.image == img {
		p.result = result
	} else {
		log.Warn().Msg("image replaced during submission, result not kept")
	}
	return result, nil
}

func submissionOutcome(err error) string {
	var rejected *capture.UploadRejectedError
	if errors.As(err, &rejected) {
		return "rejected"
	}
	return "failed"
}

// Image returns the current image, or nil.
func (p *Pipeline) Image() *capture.CapturedImage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.image
}

// Result returns a copy of the current extraction result, or nil.
func (p *Pipeline) Result() capture.ExtractionResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.result == nil {
		return nil
	}
	out := make(capture.ExtractionResult, len(p.result))
	for k, v := range p.result {
		out[k] = v
	}
	return out
}

// Discard drops the local image and result. A submission already in flight
// still completes; its result is not kept.
func (p *Pipeline) Discard() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.image = nil
	p.result = nil
}
