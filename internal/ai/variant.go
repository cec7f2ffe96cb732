package ai

// ProviderKind is the closed set of provider families the playground can
// talk to.
type ProviderKind string

const (
	ProviderOpenAI    ProviderKind = "openai"
	ProviderAnthropic ProviderKind = "anthropic"
)

// Variant holds the request rules that differ per provider family.
type Variant struct {
	Kind                 ProviderKind
	SupportsTopK         bool
	SupportsOutputFormat bool
	// MaxOutputTokens caps models that have no catalog entry.
	MaxOutputTokens int
}

var variants = map[ProviderKind]Variant{
	ProviderOpenAI: {
		Kind:                 ProviderOpenAI,
		SupportsTopK:         false,
		SupportsOutputFormat: true,
		MaxOutputTokens:      defaultMaxOutputTokens,
	},
	ProviderAnthropic: {
		Kind:                 ProviderAnthropic,
		SupportsTopK:         true,
		SupportsOutputFormat: false,
		MaxOutputTokens:      defaultMaxOutputTokens,
	},
}

func (k ProviderKind) Variant() (Variant, bool) {
	v, ok := variants[k]
	return v, ok
}

func (k ProviderKind) Valid() bool {
	_, ok := variants[k]
	return ok
}

// Normalize strips the fields this variant cannot express and clamps
// MaxTokens against caps.
func (v Variant) Normalize(req *ChatRequest, caps Capabilities) {
	if !v.SupportsTopK || !caps.SupportsTopK {
		req.TopK = nil
	}
	if !v.SupportsOutputFormat || !caps.SupportsJSONMode {
		req.OutputFormat = nil
	} else if req.OutputFormat != nil && req.OutputFormat.Type == OutputText {
		req.OutputFormat = nil
	}
	req.MaxTokens = ClampMaxTokens(req.MaxTokens, caps)
}

// ClampMaxTokens applies the model's output ceiling. It is a safety cap, not
// a default: values under the ceiling pass through unchanged.
func ClampMaxTokens(maxTokens int, caps Capabilities) int {
	limit := caps.MaxOutputTokens
	if limit <= 0 {
		limit = defaultMaxOutputTokens
	}
	if maxTokens > limit {
		return limit
	}
	return maxTokens
}
