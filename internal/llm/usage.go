package llm

// Usage contains token usage and cost information for one call.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
	TotalTokens  int64
	CostUSD      float64
}

// Gemini pricing (per million tokens)
const (
	geminiInputPricePerMillion  = 0.50
	geminiOutputPricePerMillion = 3.00
)

func calculateGeminiCost(inputTokens, outputTokens int64, inputPrice, outputPrice float64) float64 {
	inputCost := float64(inputTokens) / 1_000_000 * inputPrice
	outputCost := float64(outputTokens) / 1_000_000 * outputPrice
	return inputCost + outputCost
}
