package scene

import (
	"fmt"
	"regexp"
)

// PopupTemplate is a declarative popup rule. Title and Content carry
// {Field} placeholders that the engine substitutes when the popup opens.
type PopupTemplate struct {
	Title   string `json:"title" yaml:"title" doc:"Title with {Field} placeholders" example:"{Name}"`
	Content string `json:"content,omitempty" yaml:"content,omitempty" doc:"Content (text or HTML) with {Field} placeholders" example:"{Description}"`
}

// PlaceholderPolicy decides what happens to popup placeholders that name
// no attribute.
type PlaceholderPolicy int

const (
	// PlaceholderStrict rejects unresolved placeholders at composition time.
	PlaceholderStrict PlaceholderPolicy = iota
	// PlaceholderPassthrough leaves them for the engine, which renders
	// them as literal text.
	PlaceholderPassthrough
)

// ParsePlaceholderPolicy maps "strict" and "passthrough" to a policy.
func ParsePlaceholderPolicy(s string) (PlaceholderPolicy, bool) {
	switch s {
	case "strict", "":
		return PlaceholderStrict, true
	case "passthrough":
		return PlaceholderPassthrough, true
	}
	return PlaceholderStrict, false
}

func (p PlaceholderPolicy) String() string {
	if p == PlaceholderPassthrough {
		return "passthrough"
	}
	return "strict"
}

// Field names only; CSS blocks like {width:100%} never match.
var placeholderRe = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_.]*)\}`)

// Placeholders returns the distinct placeholder keys in title then
// content order.
func (p PopupTemplate) Placeholders() []string {
	seen := map[string]bool{}
	var keys []string
	for _, text := range []string{p.Title, p.Content} {
		for _, m := range placeholderRe.FindAllStringSubmatch(text, -1) {
			if !seen[m[1]] {
				seen[m[1]] = true
				keys = append(keys, m[1])
			}
		}
	}
	return keys
}

// Render substitutes placeholders from attrs. Unresolved placeholders are
// kept as literal text, matching what the engine shows.
func (p PopupTemplate) Render(attrs map[string]any) (title, content string) {
	sub := func(text string) string {
		return placeholderRe.ReplaceAllStringFunc(text, func(m string) string {
			key := m[1 : len(m)-1]
			if v, ok := attrs[key]; ok {
				return fmt.Sprint(v)
			}
			return m
		})
	}
	return sub(p.Title), sub(p.Content)
}
