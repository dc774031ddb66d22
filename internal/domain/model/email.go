package model

// Email is one templated message to one address.
type Email struct {
	From       string
	To         string
	TemplateID string
	// Model is a flat mapping of string keys to primitives, maps and slices
	// rendered by the provider's template.
	Model map[string]any
}
