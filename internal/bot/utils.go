package bot

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/lithammer/dedent"
	"github.com/raine/telegram-cin-bot/internal/capture"
)

func formatReplyText(text string, a ...any) string {
	return fmt.Sprintf(strings.TrimSpace(dedent.Dedent(text)), a...)
}

func parseCommand(s string) (string, []string) {
	parts := strings.Fields(s)
	if len(parts) == 0 {
		return "", nil
	}
	// Commands addressed to the bot in groups look like /send@cin_bot.
	command, _, _ := strings.Cut(parts[0], "@")
	return strings.ToLower(command), parts[1:]
}

// escapeMarkdown escapes special characters for Telegram Markdown V1
func escapeMarkdown(text string) string {
	text = strings.ReplaceAll(text, "*", "\\*")
	text = strings.ReplaceAll(text, "_", "\\_")
	text = strings.ReplaceAll(text, "`", "\\`")
	text = strings.ReplaceAll(text, "[", "\\[")
	return text
}

// parseViewport parses "WIDTHxHEIGHT" in logical pixels.
func parseViewport(s string) (capture.Viewport, bool) {
	w, h, ok := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "x")
	if !ok {
		return capture.Viewport{}, false
	}
	width, err := strconv.ParseFloat(strings.TrimSpace(w), 64)
	if err != nil || width <= 0 || width > 10000 {
		return capture.Viewport{}, false
	}
	height, err := strconv.ParseFloat(strings.TrimSpace(h), 64)
	if err != nil || height <= 0 || height > 10000 {
		return capture.Viewport{}, false
	}
	return capture.Viewport{Width: width, Height: height}, true
}

// formatExtractionResult renders one "key: value" line per field, sorted by key.
func formatExtractionResult(result capture.ExtractionResult) string {
	var sb strings.Builder
	for _, k := range result.Keys() {
		sb.WriteString(fmt.Sprintf("*%s* : %s\n", escapeMarkdown(k), escapeMarkdown(result[k])))
	}
	return sb.String()
}

// serverMessage suffixes a rejection message with the server's explanation.
func serverMessage(msg string) string {
	if msg == "" {
		return ""
	}
	return " : " + escapeMarkdown(msg)
}
