package capture

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"path"
	"sort"
	"strings"
)

// Source tells where a captured image came from.
type Source int

const (
	SourceCamera Source = iota
	SourceGallery
)

func (s Source) String() string {
	switch s {
	case SourceCamera:
		return "camera"
	case SourceGallery:
		return "gallery"
	default:
		return "unknown"
	}
}

// Resource is a device capability the user must grant access to.
type Resource string

const (
	ResourceCamera  Resource = "camera"
	ResourceGallery Resource = "gallery"
)

// Resource returns the permission needed to acquire from s.
func (s Source) Resource() Resource {
	if s == SourceCamera {
		return ResourceCamera
	}
	return ResourceGallery
}

// ParseResource parses "camera" or "gallery".
func ParseResource(s string) (Resource, bool) {
	switch Resource(strings.ToLower(strings.TrimSpace(s))) {
	case ResourceCamera:
		return ResourceCamera, true
	case ResourceGallery:
		return ResourceGallery, true
	}
	return "", false
}

// CapturedImage is an acquired image. Values are never mutated after
// construction; a new capture produces a new value.
type CapturedImage struct {
	data     []byte
	width    int
	height   int
	source   Source
	location string
}

// NewCapturedImage reads the pixel dimensions from the encoded image header.
// location is the storage location the image was read from (file path or
// URL), used to derive the upload filename. It may be empty.
func NewCapturedImage(data []byte, source Source, location string) (*CapturedImage, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to read image dimensions: %w", err)
	}
	return &CapturedImage{
		data:     data,
		width:    cfg.Width,
		height:   cfg.Height,
		source:   source,
		location: location,
	}, nil
}

// Data returns a copy of the encoded image bytes.
func (c *CapturedImage) Data() []byte {
	out := make([]byte, len(c.data))
	copy(out, c.data)
	return out
}

func (c *CapturedImage) Width() int       { return c.width }
func (c *CapturedImage) Height() int      { return c.height }
func (c *CapturedImage) Source() Source   { return c.source }
func (c *CapturedImage) Location() string { return c.location }
func (c *CapturedImage) Size() int        { return len(c.data) }

const (
	// DefaultFilename is used when no name can be derived from the location.
	DefaultFilename = "photo.jpg"
	// UploadContentType is the content type of the uploaded image part.
	UploadContentType = "image/jpeg"
	// UploadFieldName is the multipart form field carrying the image.
	UploadFieldName = "image"
)

// UploadPayload is one multipart image submission.
type UploadPayload struct {
	FieldName   string
	Filename    string
	ContentType string
	Data        []byte
}

// NewUploadPayload packages img for submission.
func NewUploadPayload(img *CapturedImage) UploadPayload {
	return UploadPayload{
		FieldName:   UploadFieldName,
		Filename:    DeriveFilename(img.location),
		ContentType: UploadContentType,
		Data:        img.data,
	}
}

// DeriveFilename returns the last path segment of location, or
// DefaultFilename when there is none.
func DeriveFilename(location string) string {
	loc := location
	if i := strings.IndexAny(loc, "?#"); i >= 0 {
		loc = loc[:i]
	}
	loc = strings.ReplaceAll(loc, "\\", "/")
	if loc == "" || strings.HasSuffix(loc, "/") {
		return DefaultFilename
	}
	name := path.Base(loc)
	if name == "." || name == "/" || name == "" {
		return DefaultFilename
	}
	return name
}

// ExtractionResult maps recognised field names to their values.
type ExtractionResult map[string]string

// Keys returns the field names in sorted order.
func (r ExtractionResult) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
