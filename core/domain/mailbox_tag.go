package domain

import "strings"

// TagDefinition is one entry of the tag catalog.
type TagDefinition struct {
	Name        string `json:"name" yaml:"name" db:"name" bson:"_id"`
	DisplayName string `json:"display_name,omitempty" yaml:"display_name" db:"display_name" bson:"display_name,omitempty"`
	// Criterion is the natural-language instruction telling the model when the tag applies.
	Criterion   string `json:"ai_prompt" yaml:"criterion" db:"criterion" bson:"criterion"`
	Description string `json:"description,omitempty" yaml:"description" db:"description" bson:"description,omitempty"`
	Color       string `json:"color,omitempty" yaml:"color" db:"color" bson:"color,omitempty"`
	IsActive    bool   `json:"is_active" yaml:"active" db:"is_active" bson:"is_active"`
	IsSystem    bool   `json:"is_system" yaml:"system" db:"is_system" bson:"is_system"`
}

// Eligible reports whether the tag can take part in classification.
func (t *TagDefinition) Eligible() bool {
	return t.IsActive && strings.TrimSpace(t.Name) != "" && strings.TrimSpace(t.Criterion) != ""
}

// Default tag names.
const (
	TagImportant     = "Important"
	TagNeedsReply    = "NeedsReply"
	TagSpam          = "Spam"
	TagAdvertisement = "Advertisement"
)

// DefaultTags is the catalog used when nothing is configured.
func DefaultTags() []*TagDefinition {
	return []*TagDefinition{
		{
			Name:        TagImportant,
			DisplayName: "Important",
			Criterion:   "The email is from a manager, client or official, or concerns a deadline, payment, contract or anything that must not be missed.",
			Color:       "#FF4444",
			IsActive:    true,
			IsSystem:    true,
		},
		{
			Name:        TagNeedsReply,
			DisplayName: "Needs reply",
			Criterion:   "The sender asks a question, requests an action or explicitly expects an answer.",
			Color:       "#4488FF",
			IsActive:    true,
			IsSystem:    true,
		},
		{
			Name:        TagSpam,
			DisplayName: "Spam",
			Criterion:   "Unsolicited bulk mail, phishing, scams or messages from unknown senders with suspicious links.",
			Color:       "#888888",
			IsActive:    true,
			IsSystem:    true,
		},
		{
			Name:        TagAdvertisement,
			DisplayName: "Advertisement",
			Criterion:   "Marketing, newsletters, promotions, discounts or product announcements.",
			Color:       "#FFAA00",
			IsActive:    true,
			IsSystem:    true,
		},
	}
}
