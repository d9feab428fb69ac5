package domain

// DefaultConfidence is assigned to matched tags the model gave no score for.
const DefaultConfidence = 0.7

// ClassificationResult is the outcome of one successful classification.
// It is built once and not modified afterwards.
type ClassificationResult struct {
	MatchedTags []string           `json:"matched_tags"`
	Confidence  map[string]float64 `json:"confidence,omitempty"`
	Reasoning   string             `json:"reasoning,omitempty"`
}

// Has reports whether tag was matched.
func (r *ClassificationResult) Has(tag string) bool {
	if r == nil {
		return false
	}
	for _, t := range r.MatchedTags {
		if t == tag {
			return true
		}
	}
	return false
}

// ConfidenceFor returns the score for tag, or 0 when it was not matched.
func (r *ClassificationResult) ConfidenceFor(tag string) float64 {
	if !r.Has(tag) {
		return 0
	}
	if c, ok := r.Confidence[tag]; ok {
		return c
	}
	return DefaultConfidence
}

// EmptyClassification is the vacuous "no tags apply" success.
func EmptyClassification() *ClassificationResult {
	return &ClassificationResult{MatchedTags: []string{}, Confidence: map[string]float64{}}
}
