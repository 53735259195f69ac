// Package llm provides a Gemini-backed document extractor that can stand in
// for the remote recognition service.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/raine/telegram-cin-bot/internal/capture"
	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

const geminiModel = "gemini-3-flash-preview"

// cinFields are the keys the recognition service returns for a CIN card.
var cinFields = []string{"nom", "prenom", "numcin", "ddn", "lieu_naissance", "ville"}

const extractionPrompt = `This image is the front of a Tunisian national identity card (CIN).

Read the printed fields and respond with a JSON object using exactly these keys:
- nom: family name
- prenom: given name
- numcin: the 8-digit card number
- ddn: date of birth as DD/MM/YYYY
- lieu_naissance: place of birth
- ville: city of residence if printed

Use an empty string for any field you cannot read. Transliterate Arabic text to Latin script.

Respond ONLY with the JSON object, no markdown or other text.`

// ErrNoResponse is returned when the model produced no candidates.
var ErrNoResponse = errors.New("no response from Gemini")

// GeminiExtractor reads CIN fields from an image with Gemini.
type GeminiExtractor struct {
	client *genai.Client
}

// NewGeminiExtractor creates a Gemini client using apiKey.
func NewGeminiExtractor(ctx context.Context, apiKey string) (*GeminiExtractor, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiExtractor{client: client}, nil
}

// Extract sends the payload image to Gemini and maps the answer to an
// ExtractionResult. Failures are reported as upload failures so callers
// handle both extractors alike.
func (g *GeminiExtractor) Extract(ctx context.Context, payload capture.UploadPayload) (capture.ExtractionResult, error) {
	parts := []*genai.Part{
		genai.NewPartFromText(extractionPrompt),
		{InlineData: &genai.Blob{Data: payload.Data, MIMEType: payload.ContentType}},
	}
	contents := []*genai.Content{
		genai.NewContentFromParts(parts, genai.RoleUser),
	}
	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   extractionSchema(),
	}

	result, err := g.client.Models.GenerateContent(ctx, geminiModel, contents, config)
	if err != nil {
		return nil, &capture.UploadFailedError{Err: fmt.Errorf("failed to generate content: %w", err)}
	}
	if len(result.Candidates) == 0 || result.Candidates[0].Content == nil || len(result.Candidates[0].Content.Parts) == 0 {
		return nil, &capture.UploadFailedError{Err: ErrNoResponse}
	}

	fields, err := parseExtraction(result.Text())
	if err != nil {
		return nil, &capture.UploadFailedError{Err: err}
	}

	usage := Usage{}
	if result.UsageMetadata != nil {
		usage.InputTokens = int64(result.UsageMetadata.PromptTokenCount)
		usage.OutputTokens = int64(result.UsageMetadata.CandidatesTokenCount)
		usage.TotalTokens = int64(result.UsageMetadata.TotalTokenCount)
		usage.CostUSD = calculateGeminiCost(usage.InputTokens, usage.OutputTokens, geminiInputPricePerMillion, geminiOutputPricePerMillion)
	}

	log.Info().
		Str("model", geminiModel).
		Str("filename", payload.Filename).
		Int("fieldCount", len(fields)).
		Int64("inputTokens", usage.InputTokens).
		Int64("outputTokens", usage.OutputTokens).
		Float64("costUSD", usage.CostUSD).
		Msg("extraction llm call")

	return fields, nil
}

func extractionSchema() *genai.Schema {
	props := make(map[string]*genai.Schema, len(cinFields))
	for _, f := range cinFields {
		props[f] = &genai.Schema{Type: genai.TypeString}
	}
	return &genai.Schema{
		Type:       genai.TypeObject,
		Properties: props,
		Required:   cinFields,
	}
}

// extractJSONObject extracts a JSON object from text that may contain markdown
// code blocks or other formatting.
func extractJSONObject(text string) (string, error) {
	text = strings.TrimSpace(text)
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end <= start {
		return "", fmt.Errorf("no JSON object found in response: %s", text)
	}
	return text[start : end+1], nil
}

// parseExtraction turns the model's JSON answer into a flat result. Values
// that are not strings are kept in their JSON form.
func parseExtraction(text string) (capture.ExtractionResult, error) {
	jsonStr, err := extractJSONObject(text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse response JSON: %w", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(jsonStr), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse response JSON: %w (response: %s)", err, jsonStr)
	}

	result := make(capture.ExtractionResult, len(raw))
	for k, v := range raw {
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			result[k] = strings.TrimSpace(s)
			continue
		}
		if bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
			result[k] = ""
			continue
		}
		result[k] = string(bytes.TrimSpace(v))
	}
	return result, nil
}
