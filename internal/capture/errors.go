package capture

import (
	"errors"
	"fmt"
)

var (
	// ErrCaptureGeometry is returned when the preview or image dimensions are
	// unusable for computing a crop region.
	ErrCaptureGeometry = errors.New("capture geometry unavailable")

	// ErrCropFailed matches any CropError.
	ErrCropFailed = errors.New("crop failed")

	// ErrUploadFailed matches any UploadFailedError.
	ErrUploadFailed = errors.New("upload failed")

	// ErrNoImageSelected is returned when submitting without a current image.
	ErrNoImageSelected = errors.New("no image selected")
)

// PermissionDeniedError is returned when the user has not granted access to
// the resource an acquisition needs.
type PermissionDeniedError struct {
	Resource Resource
}

func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("permission denied: %s", e.Resource)
}

// CropError wraps the underlying image processing failure.
type CropError struct {
	Err error
}

func (e *CropError) Error() string {
	return fmt.Sprintf("crop failed: %v", e.Err)
}

func (e *CropError) Unwrap() error { return e.Err }

func (e *CropError) Is(target error) bool { return target == ErrCropFailed }

// UploadRejectedError is returned when the upload endpoint answers with any
// status other than 201 Created.
type UploadRejectedError struct {
	Status  int
	Message string // server-supplied "error" field, may be empty
}

func (e *UploadRejectedError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("upload rejected (status %d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("upload rejected (status %d)", e.Status)
}

// UploadFailedError is returned when no response was received at all.
type UploadFailedError struct {
	Err error
}

func (e *UploadFailedError) Error() string {
	return fmt.Sprintf("upload failed: %v", e.Err)
}

func (e *UploadFailedError) Unwrap() error { return e.Err }

func (e *UploadFailedError) Is(target error) bool { return target == ErrUploadFailed }
