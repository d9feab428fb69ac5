package classification

import (
	"reflect"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"smart_mailbox/core/domain"
	"smart_mailbox/core/service/tagcatalog"
)

func testCatalog(names ...string) *tagcatalog.Catalog {
	tags := make([]*domain.TagDefinition, len(names))
	for i, n := range names {
		tags[i] = &domain.TagDefinition{Name: n, Criterion: "criterion for " + n, IsActive: true}
	}
	return tagcatalog.New(tags)
}

func TestExtractFenced(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
		found    bool
	}{
		{"json fence", "blah ```json\n[\"A\"]\n``` blah", `["A"]`, true},
		{"upper info", "```JSON\n[\"A\"]\n```", `["A"]`, true},
		{"bare fence", "```\n{\"tags\":[]}\n```", `{"tags":[]}`, true},
		{"single line", "```json [\"A\"]```", `["A"]`, true},
		{"first block only", "```\n[\"A\"]\n``` and ```\n[\"B\"]\n```", `["A"]`, true},
		{"content on first line", "```[\"A\",\n\"B\"]```", "[\"A\",\n\"B\"]", true},
		{"no fence", `["A"]`, `["A"]`, false},
		{"unclosed", "```json\n[\"A\"]", "```json\n[\"A\"]", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, found := ExtractFenced(tt.input)
			if got != tt.expected || found != tt.found {
				t.Errorf("expected (%q, %v), got (%q, %v)", tt.expected, tt.found, got, found)
			}
		})
	}
}

func TestExtractBracketSpan(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
		found    bool
	}{
		{"array with prose", `Sure! ["A", "B"] hope this helps`, `["A", "B"]`, true},
		{"object first", `Result: {"tags": ["A"]} done`, `{"tags": ["A"]}`, true},
		{"array first wins", `["A"] then {"x": 1}`, `["A"]`, true},
		{"last closer", `[["A"], ["B"]] trailing ]`, `[["A"], ["B"]] trailing ]`, true},
		{"no brackets", "Urgent and NeedsReply", "", false},
		{"no closer", `["A"`, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, found := ExtractBracketSpan(tt.input)
			if got != tt.expected || found != tt.found {
				t.Errorf("expected (%q, %v), got (%q, %v)", tt.expected, tt.found, got, found)
			}
		})
	}
}

func TestDecodeTags(t *testing.T) {
	catalog := testCatalog("Important", "SpamLike", "NeedsReply")

	tests := []struct {
		name     string
		span     string
		expected []string
		ok       bool
	}{
		{"array filters and dedupes", `["Important","Bogus","Important"]`, []string{"Important"}, true},
		{"array trims", `[" NeedsReply ", "Important"]`, []string{"NeedsReply", "Important"}, true},
		{"array ignores non strings", `[1, null, "SpamLike", {"x":"Important"}]`, []string{"SpamLike"}, true},
		{"no case folding", `["important"]`, []string{}, true},
		{"object tags key", `{"tags": ["SpamLike", "Nope"], "reasoning": "x"}`, []string{"SpamLike"}, true},
		{"object other key", `{"matched": ["NeedsReply", "Important"]}`, []string{"Important", "NeedsReply"}, true},
		{"object string value", `{"result": "SpamLike", "note": "Important stuff"}`, []string{"SpamLike"}, true},
		{"object tags is string", `{"tags": "Important"}`, []string{"Important"}, true},
		{"empty array", `[]`, []string{}, true},
		{"invalid json", `{"tags": [Important]}`, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := DecodeTags(tt.span, catalog)
			if ok != tt.ok {
				t.Fatalf("expected ok=%v, got %v", tt.ok, ok)
			}
			if tt.ok && !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestScanPlainText(t *testing.T) {
	catalog := testCatalog("Urgent", "NeedsReply", "Spam")

	got := ScanPlainText("I think this is Urgent. It is NOT Spam.", catalog)
	if !reflect.DeepEqual(got, []string{"Urgent", "Spam"}) {
		t.Errorf("expected substring matches incl. negated mention, got %v", got)
	}
	if got := ScanPlainText("nothing relevant", catalog); len(got) != 0 {
		t.Errorf("expected no matches, got %v", got)
	}
}

func TestParseResponse(t *testing.T) {
	catalog := testCatalog("Urgent", "NeedsReply", "Spam")

	tests := []struct {
		name     string
		raw      string
		expected []string
		strategy Strategy
	}{
		{"fenced", "```json\n[\"Urgent\", \"NeedsReply\"]\n```", []string{"Urgent", "NeedsReply"}, StrategyStructured},
		{"fence beats prose brackets", "ignore [\"Spam\"] ```json\n[\"Urgent\"]\n```", []string{"Urgent"}, StrategyStructured},
		{"prose around array", "The tags are: [\"Spam\"]. Done.", []string{"Spam"}, StrategyStructured},
		{"empty success", "[]", []string{}, StrategyStructured},
		{"broken json falls back", "[\"Urgent\", NeedsReply", []string{"Urgent", "NeedsReply"}, StrategyPlainText},
		{"plain text", "Urgent", []string{"Urgent"}, StrategyPlainText},
		{"garbage", "lorem ipsum", []string{}, StrategyPlainText},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, strategy := ParseResponse(tt.raw, catalog)
			if !reflect.DeepEqual(result.MatchedTags, tt.expected) {
				t.Errorf("expected %v, got %v", tt.expected, result.MatchedTags)
			}
			if strategy != tt.strategy {
				t.Errorf("expected strategy %s, got %s", tt.strategy, strategy)
			}
		})
	}
}

func TestParseResponseConfidence(t *testing.T) {
	catalog := testCatalog("Urgent", "NeedsReply")

	result, _ := ParseResponse(`{"tags":["Urgent","NeedsReply"],"confidence":{"Urgent":0.95,"Other":0.1},"reasoning":" deadline "}`, catalog)
	if result.Confidence["Urgent"] != 0.95 {
		t.Errorf("expected 0.95, got %v", result.Confidence["Urgent"])
	}
	if result.Confidence["NeedsReply"] != domain.DefaultConfidence {
		t.Errorf("expected default confidence, got %v", result.Confidence["NeedsReply"])
	}
	if _, ok := result.Confidence["Other"]; ok {
		t.Error("expected no confidence for unmatched tag")
	}
	if result.Reasoning != "deadline" {
		t.Errorf("expected reasoning, got %q", result.Reasoning)
	}

	result, _ = ParseResponse(`{"tags":["Urgent"],"confidence":1.7}`, catalog)
	if result.Confidence["Urgent"] != 1 {
		t.Errorf("expected clamped 1, got %v", result.Confidence["Urgent"])
	}
}

// Every valid name appears at most once and no invalid name survives.
func TestDecodeTagsFilteringProperty(t *testing.T) {
	valid := []string{"Important", "SpamLike", "NeedsReply"}
	catalog := testCatalog(valid...)
	names := gen.OneConstOf("Important", "SpamLike", "NeedsReply", "Bogus", "important", "Spam", "")

	properties := gopter.NewProperties(gopter.DefaultTestParameters())
	properties.Property("only valid names, no duplicates", prop.ForAll(
		func(items []string) bool {
			quoted := make([]string, len(items))
			for i, s := range items {
				quoted[i] = `"` + s + `"`
			}
			got, ok := DecodeTags("["+strings.Join(quoted, ",")+"]", catalog)
			if !ok {
				return false
			}

			seen := map[string]bool{}
			for _, g := range got {
				if seen[g] || !catalog.IsValid(g) {
					return false
				}
				seen[g] = true
			}
			for _, s := range items {
				if catalog.IsValid(s) && !seen[s] {
					return false
				}
			}
			return true
		},
		gen.SliceOf(names),
	))
	properties.TestingRun(t)
}

// Text without brackets or tag names never produces a match and never panics.
func TestParseResponseGarbageProperty(t *testing.T) {
	catalog := testCatalog("Urgent", "NeedsReply")

	properties := gopter.NewProperties(gopter.DefaultTestParameters())
	properties.Property("garbage yields empty result", prop.ForAll(
		func(s string) bool {
			result, _ := ParseResponse(s, catalog)
			return result != nil && len(result.MatchedTags) == 0
		},
		gen.NumString(),
	))
	properties.Property("arbitrary text never panics", prop.ForAll(
		func(s string) bool {
			result, _ := ParseResponse(s, catalog)
			return result != nil && result.MatchedTags != nil
		},
		gen.AnyString(),
	))
	properties.TestingRun(t)
}
