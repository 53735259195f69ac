package capture

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(x), uint8(y), 128, 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}))
	return buf.Bytes()
}

func makePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

func TestCrop_ProducesRegionSizedJPEG(t *testing.T) {
	data := makeJPEG(t, 300, 400)
	img, err := NewCapturedImage(data, SourceCamera, "/tmp/cam/IMG_0001.jpg")
	require.NoError(t, err)

	region, err := ComputeCropRegion(100, img.Width(), img.Height())
	require.NoError(t, err)

	cropped, err := Crop(img, region)
	require.NoError(t, err)

	assert.Equal(t, 270, cropped.Width())
	assert.Equal(t, 170, cropped.Height())
	assert.Equal(t, SourceCamera, cropped.Source())
	assert.Equal(t, "/tmp/cam/IMG_0001.jpg", cropped.Location())

	cfg, format, err := image.DecodeConfig(bytes.NewReader(cropped.Data()))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 270, cfg.Width)
	assert.Equal(t, 170, cfg.Height)
}

func TestCrop_DoesNotMutateSource(t *testing.T) {
	data := makeJPEG(t, 120, 160)
	original := append([]byte(nil), data...)

	img, err := NewCapturedImage(data, SourceCamera, "")
	require.NoError(t, err)

	_, err = Crop(img, CropRegion{Rect{X: 10, Y: 10, Width: 50, Height: 50}})
	require.NoError(t, err)

	assert.Equal(t, original, img.Data())
	assert.Equal(t, 120, img.Width())
	assert.Equal(t, 160, img.Height())
}

func TestCrop_ReencodesPNGAsJPEG(t *testing.T) {
	img, err := NewCapturedImage(makePNG(t, 64, 64), SourceCamera, "shots/card.png")
	require.NoError(t, err)

	cropped, err := Crop(img, CropRegion{Rect{X: 0, Y: 0, Width: 32, Height: 16}})
	require.NoError(t, err)

	_, format, err := image.DecodeConfig(bytes.NewReader(cropped.Data()))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, "shots/card.jpg", cropped.Location())
}

func TestCrop_CorruptDataFails(t *testing.T) {
	data := makeJPEG(t, 64, 64)
	img, err := NewCapturedImage(data, SourceCamera, "")
	require.NoError(t, err)

	// Keep the header intact so dimensions were readable, but drop the scan data.
	img.data = img.data[:len(img.data)/4]

	_, err = Crop(img, CropRegion{Rect{X: 0, Y: 0, Width: 10, Height: 10}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCropFailed))

	var cropErr *CropError
	assert.True(t, errors.As(err, &cropErr))
}

func TestCrop_EmptyRegionFails(t *testing.T) {
	img, err := NewCapturedImage(makeJPEG(t, 32, 32), SourceCamera, "")
	require.NoError(t, err)

	_, err = Crop(img, CropRegion{Rect{X: 40, Y: 40, Width: 10, Height: 10}})
	assert.True(t, errors.Is(err, ErrCropFailed))
}
