package bot

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/raine/telegram-cin-bot/internal/capture"
	"github.com/rs/zerolog/log"
)

// DefaultMaxImageSize is the largest file accepted from Telegram (10MB).
const DefaultMaxImageSize = 10 * 1024 * 1024

// httpClient is reused for file downloads to avoid creating new clients per request
var httpClient = resty.New().SetDebug(false).SetTimeout(30 * time.Second)

func downloadFileURL(ctx context.Context, fileURL string) ([]byte, error) {
	res, err := httpClient.R().SetContext(ctx).Get(fileURL)
	if err != nil {
		return nil, err
	}
	if res.IsError() {
		return nil, fmt.Errorf("request failed: %v", res.Status())
	}
	if len(res.Body()) > DefaultMaxImageSize {
		return nil, fmt.Errorf("file too large: %d bytes", len(res.Body()))
	}
	return res.Body(), nil
}

// telegramFile is a capture.Device reading one Telegram file. The storage
// location is the original file name when known, otherwise the file path
// Telegram serves it under.
type telegramFile struct {
	getFileDirectURL func(fileID string) (string, error)
	fileID           string
	fileName         string
}

func (f telegramFile) Fetch(ctx context.Context) (capture.Frame, error) {
	log.Info().Str("fileID", f.fileID).Msg("downloading file id")
	fileURL, err := f.getFileDirectURL(f.fileID)
	if err != nil {
		return capture.Frame{}, fmt.Errorf("failed to resolve file: %w", err)
	}

	data, err := downloadFileURL(ctx, fileURL)
	if err != nil {
		return capture.Frame{}, fmt.Errorf("failed to download file: %w", err)
	}

	location := f.fileName
	if location == "" {
		if u, err := url.Parse(fileURL); err == nil {
			location = path.Base(u.Path)
		}
	}

	return capture.Frame{Data: data, Location: location}, nil
}
