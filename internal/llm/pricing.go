package llm

// ModelPrice is the per-1M-token price pair for one model tag.
type ModelPrice struct {
	InputPerMTok  float64
	OutputPerMTok float64
}

// pricing is the built-in price table, USD per 1M tokens. Unknown tags fall
// back to the configured default price.
var pricing = map[string]ModelPrice{
	"claude-3-5-haiku-latest":   {InputPerMTok: 0.80, OutputPerMTok: 4.00},
	"claude-3-5-haiku-20241022": {InputPerMTok: 0.80, OutputPerMTok: 4.00},
	"claude-3-5-sonnet-latest":  {InputPerMTok: 3.00, OutputPerMTok: 15.00},
	"claude-sonnet-4-5":         {InputPerMTok: 3.00, OutputPerMTok: 15.00},
	"claude-sonnet-4-0":         {InputPerMTok: 3.00, OutputPerMTok: 15.00},
	"claude-opus-4-1":           {InputPerMTok: 15.00, OutputPerMTok: 75.00},
	"claude-3-haiku-20240307":   {InputPerMTok: 0.25, OutputPerMTok: 1.25},
}

// PriceFor resolves the price for a model tag.
func (c *Client) PriceFor(modelTag string) ModelPrice {
	if price, ok := pricing[modelTag]; ok {
		return price
	}
	return ModelPrice{
		InputPerMTok:  c.cfg.DefaultInputPerMTok,
		OutputPerMTok: c.cfg.DefaultOutputPerMTok,
	}
}

// Cost computes the USD cost of one call.
func (p ModelPrice) Cost(inputTokens, outputTokens int64) float64 {
	return float64(inputTokens)*p.InputPerMTok/1e6 + float64(outputTokens)*p.OutputPerMTok/1e6
}

// EstimatePerItem returns the estimated cost of analyzing one item at the
// configured average token count, assuming an input-heavy split.
func (p ModelPrice) EstimatePerItem(avgTokensPerItem int) float64 {
	// Preview estimates charge the whole average at the input rate.
	return float64(avgTokensPerItem) * p.InputPerMTok / 1e6
}
