package classification

import (
	"strings"

	"github.com/goccy/go-json"

	"smart_mailbox/core/domain"
	"smart_mailbox/core/service/tagcatalog"
)

const fence = "```"

// ExtractFenced returns the content of the first fenced code block. The
// info string after the opening fence ("json", "JSON", ...) is dropped.
func ExtractFenced(s string) (string, bool) {
	start := strings.Index(s, fence)
	if start < 0 {
		return s, false
	}
	rest := s[start+len(fence):]
	end := strings.Index(rest, fence)
	if end < 0 {
		return s, false
	}
	block := rest[:end]

	// Info string runs to the first newline, if it is a single word.
	if nl := strings.IndexByte(block, '\n'); nl >= 0 {
		if info := strings.TrimSpace(block[:nl]); info == "" || isInfoString(info) {
			block = block[nl+1:]
		}
	} else if lower := strings.ToLower(block); strings.HasPrefix(lower, "json") {
		block = block[len("json"):]
	}
	return strings.TrimSpace(block), true
}

func isInfoString(s string) bool {
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '_') {
			return false
		}
	}
	return true
}

// ExtractBracketSpan returns the span from the first '[' or '{' (whichever
// comes first) to the last matching closing bracket.
func ExtractBracketSpan(s string) (string, bool) {
	open := strings.IndexAny(s, "[{")
	if open < 0 {
		return "", false
	}
	closer := byte(']')
	if s[open] == '{' {
		closer = '}'
	}
	end := strings.LastIndexByte(s, closer)
	if end <= open {
		return "", false
	}
	return s[open : end+1], true
}

// decoded is what a successful structured decode yields.
type decoded struct {
	tags       []string
	confidence map[string]float64
	reasoning  string
}

// DecodeTags decodes span as JSON and keeps only valid tag names, in the
// order they appear, without duplicates. ok is false when span is not JSON.
func DecodeTags(span string, catalog *tagcatalog.Catalog) ([]string, bool) {
	d, ok := decode(span, catalog)
	if !ok {
		return nil, false
	}
	return d.tags, true
}

func decode(span string, catalog *tagcatalog.Catalog) (*decoded, bool) {
	var v any
	if err := json.Unmarshal([]byte(span), &v); err != nil {
		return nil, false
	}

	switch val := v.(type) {
	case []any:
		return &decoded{tags: filterValid(val, catalog)}, true
	case map[string]any:
		d := &decoded{
			confidence: readConfidence(val),
			reasoning:  readReasoning(val),
		}
		if arr, ok := val["tags"].([]any); ok {
			d.tags = filterValid(arr, catalog)
			return d, true
		}
		d.tags = scanValues(val, catalog)
		return d, true
	default:
		return nil, false
	}
}

func filterValid(items []any, catalog *tagcatalog.Catalog) []string {
	tags := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			continue
		}
		name := strings.TrimSpace(s)
		if !catalog.IsValid(name) {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		tags = append(tags, name)
	}
	return tags
}

// scanValues collects valid names from every string or string-list value.
// Map order is random, so matches come back in catalog order.
func scanValues(obj map[string]any, catalog *tagcatalog.Catalog) []string {
	found := make(map[string]struct{})
	for _, v := range obj {
		switch val := v.(type) {
		case string:
			if name := strings.TrimSpace(val); catalog.IsValid(name) {
				found[name] = struct{}{}
			}
		case []any:
			for _, name := range filterValid(val, catalog) {
				found[name] = struct{}{}
			}
		}
	}
	return inCatalogOrder(found, catalog)
}

// ScanPlainText is the last resort: any valid tag name appearing verbatim
// in text is a match. A name mentioned in a negative sense still matches.
func ScanPlainText(text string, catalog *tagcatalog.Catalog) []string {
	tags := []string{}
	for _, name := range catalog.Names() {
		if strings.Contains(text, name) {
			tags = append(tags, name)
		}
	}
	return tags
}

func inCatalogOrder(set map[string]struct{}, catalog *tagcatalog.Catalog) []string {
	tags := make([]string, 0, len(set))
	for _, name := range catalog.Names() {
		if _, ok := set[name]; ok {
			tags = append(tags, name)
		}
	}
	return tags
}

func readConfidence(obj map[string]any) map[string]float64 {
	raw, ok := obj["confidence"]
	if !ok {
		raw, ok = obj["confidence_scores"]
	}
	if !ok {
		return nil
	}
	switch val := raw.(type) {
	case float64:
		return map[string]float64{"*": clamp(val)}
	case map[string]any:
		m := make(map[string]float64, len(val))
		for k, x := range val {
			if f, ok := x.(float64); ok {
				m[strings.TrimSpace(k)] = clamp(f)
			}
		}
		return m
	}
	return nil
}

func readReasoning(obj map[string]any) string {
	for _, key := range []string{"reasoning", "reason"} {
		if s, ok := obj[key].(string); ok {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

func clamp(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}

// Strategy names which parsing layer produced a result.
type Strategy string

const (
	StrategyStructured Strategy = "structured"
	StrategyPlainText  Strategy = "plain_text"
)

// ParseResponse turns raw model output into a result. It never fails:
// output that is not JSON falls back to a plain-text scan.
func ParseResponse(raw string, catalog *tagcatalog.Catalog) (*domain.ClassificationResult, Strategy) {
	text, _ := ExtractFenced(raw)

	var d *decoded
	strategy := StrategyStructured
	if span, ok := ExtractBracketSpan(text); ok {
		d, _ = decode(span, catalog)
	}
	if d == nil {
		d = &decoded{tags: ScanPlainText(text, catalog)}
		strategy = StrategyPlainText
	}
	return newResult(d), strategy
}

func newResult(d *decoded) *domain.ClassificationResult {
	result := &domain.ClassificationResult{
		MatchedTags: d.tags,
		Confidence:  make(map[string]float64, len(d.tags)),
		Reasoning:   d.reasoning,
	}
	if result.MatchedTags == nil {
		result.MatchedTags = []string{}
	}
	overall, hasOverall := d.confidence["*"]
	for _, tag := range result.MatchedTags {
		switch c, ok := d.confidence[tag]; {
		case ok:
			result.Confidence[tag] = c
		case hasOverall:
			result.Confidence[tag] = overall
		default:
			result.Confidence[tag] = domain.DefaultConfidence
		}
	}
	return result
}
