package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/raine/telegram-cin-bot/config"
	"github.com/raine/telegram-cin-bot/internal/capture"
	"github.com/raine/telegram-cin-bot/internal/cin"
	"github.com/raine/telegram-cin-bot/internal/llm"
	"github.com/raine/telegram-cin-bot/internal/pipeline"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s <image-path> [camera|gallery] [remote|gemini]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\n'camera' crops the image to the guide frame before upload.\n")
		fmt.Fprintf(os.Stderr, "\nEnvironment variables:\n")
		fmt.Fprintf(os.Stderr, "  CIN_UPLOAD_URL     - Upload service (default %s)\n", cin.DefaultUploadBaseURL)
		fmt.Fprintf(os.Stderr, "  CIN_PREVIEW_WIDTH  - Preview width for the guide frame (default 411)\n")
		fmt.Fprintf(os.Stderr, "  GEMINI_API_KEY     - Required for gemini\n")
		os.Exit(1)
	}

	config.LoadEnvFile()

	imagePath := os.Args[1]
	source := "gallery"
	if len(os.Args) >= 3 {
		source = os.Args[2]
	}
	extractorName := config.ExtractorRemote
	if len(os.Args) >= 4 {
		extractorName = os.Args[3]
	}

	ctx := context.Background()

	extractor, err := newExtractor(ctx, extractorName)
	if err != nil {
		fatal("%v", err)
	}

	vp := capture.Viewport{Width: envFloat("CIN_PREVIEW_WIDTH", 411), Height: envFloat("CIN_PREVIEW_HEIGHT", 731)}
	perms := capture.StaticPermissions{capture.ResourceCamera: true, capture.ResourceGallery: true}
	p := pipeline.New(extractor, perms, vp)

	dev := capture.DeviceFunc(func(context.Context) (capture.Frame, error) {
		data, err := os.ReadFile(imagePath)
		if err != nil {
			return capture.Frame{}, err
		}
		return capture.Frame{Data: data, Location: imagePath}, nil
	})

	var img *capture.CapturedImage
	switch source {
	case "camera":
		img, err = p.CaptureFromCamera(ctx, dev)
	case "gallery":
		img, err = p.SelectFromGallery(ctx, dev)
	default:
		fatal("Unknown source: %s (use camera or gallery)", source)
	}
	if err != nil {
		fatal("Failed to acquire image: %v", err)
	}
	fmt.Printf("Image: %d x %d px, %d bytes, %s\n", img.Width(), img.Height(), img.Size(), capture.DeriveFilename(img.Location()))

	result, err := p.Submit(ctx)
	if err != nil {
		var rejected *capture.UploadRejectedError
		if errors.As(err, &rejected) {
			fatal("Upload rejected with status %d: %s", rejected.Status, rejected.Message)
		}
		fatal("Upload failed: %v", err)
	}

	fmt.Println("\n" + strings.Repeat("-", 40))
	for _, k := range result.Keys() {
		fmt.Printf("%-16s %s\n", k+":", result[k])
	}
}

func newExtractor(ctx context.Context, name string) (pipeline.Extractor, error) {
	switch name {
	case config.ExtractorRemote:
		return cin.NewUploadClient(cin.ClientOpts{BaseURL: os.Getenv("CIN_UPLOAD_URL")}), nil
	case config.ExtractorGemini:
		key := os.Getenv("GEMINI_API_KEY")
		if key == "" {
			return nil, errors.New("GEMINI_API_KEY is required for gemini")
		}
		gemini, err := llm.NewGeminiExtractor(ctx, key)
		if err != nil {
			return nil, err
		}
		return gemini, nil
	default:
		return nil, fmt.Errorf("unknown extractor: %s (use remote or gemini)", name)
	}
}

func envFloat(name string, fallback float64) float64 {
	var f float64
	if _, err := fmt.Sscanf(os.Getenv(name), "%g", &f); err != nil || f <= 0 {
		return fallback
	}
	return f
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
