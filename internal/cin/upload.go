package cin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-resty/resty/v2"
	"github.com/raine/telegram-cin-bot/internal/capture"
	"github.com/rs/zerolog/log"
)

// UploadPath is the extraction endpoint.
const UploadPath = "/upload_cin"

// ErrInvalidResult is returned when a 201 response body is not a JSON object.
var ErrInvalidResult = errors.New("invalid extraction result")

// UploadClient submits document images to the extraction service.
type UploadClient struct {
	httpClient *resty.Client
}

// NewUploadClient creates a client for the upload service at opts.BaseURL.
func NewUploadClient(opts ClientOpts) *UploadClient {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = DefaultUploadBaseURL
	}
	return &UploadClient{httpClient: newRestyClient(baseURL, opts.Debug)}
}

// Extract implements the pipeline's extractor by uploading the payload.
func (c *UploadClient) Extract(ctx context.Context, payload capture.UploadPayload) (capture.ExtractionResult, error) {
	return c.UploadCIN(ctx, payload)
}

// UploadCIN posts the image as a multipart form and maps the response.
// Only 201 Created counts as success. There is exactly one attempt.
func (c *UploadClient) UploadCIN(ctx context.Context, payload capture.UploadPayload) (capture.ExtractionResult, error) {
	log.Info().
		Str("filename", payload.Filename).
		Int("bytes", len(payload.Data)).
		Msg("uploading document image")

	res, err := c.httpClient.R().
		SetContext(ctx).
		SetMultipartField(payload.FieldName, payload.Filename, payload.ContentType, bytes.NewReader(payload.Data)).
		Post(UploadPath)
	if err != nil {
		return nil, &capture.UploadFailedError{Err: err}
	}

	if res.StatusCode() != http.StatusCreated {
		rejected := &capture.UploadRejectedError{
			Status:  res.StatusCode(),
			Message: serverMessage(res.Body()),
		}
		log.Warn().Int("status", rejected.Status).Str("error", rejected.Message).Msg("upload rejected")
		return nil, rejected
	}

	result, err := parseExtractionResult(res.Body())
	if err != nil {
		return nil, err
	}
	log.Info().Int("fields", len(result)).Msg("document fields extracted")
	return result, nil
}

// parseExtractionResult decodes a flat JSON object. Non-string scalars are
// rendered as text so that every returned key can be displayed.
func parseExtractionResult(body []byte) (capture.ExtractionResult, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResult, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: body is null", ErrInvalidResult)
	}

	result := make(capture.ExtractionResult, len(raw))
	for k, v := range raw {
		result[k] = stringifyValue(v)
	}
	return result, nil
}

func stringifyValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(b)
	}
}
