package stats

import (
	"regexp"
	"strings"
)

// DefaultTraitPrefix is the set prefix used when none is configured
const DefaultTraitPrefix = "TFT13_"

// setPrefixPattern matches any versioned set prefix such as "TFT9_" or "TFT13_"
var setPrefixPattern = regexp.MustCompile(`^(?i)tft\d+_`)

// Normalizer turns provider trait ids into display keys.
// Prefix changes every content season, so it is supplied by configuration.
// An empty Prefix strips any versioned set prefix.
type Normalizer struct {
	Prefix string
}

// NewNormalizer creates a normalizer for the given set prefix
func NewNormalizer(prefix string) Normalizer {
	return Normalizer{Prefix: strings.TrimSpace(prefix)}
}

// TraitName strips the set prefix and lower-cases the result
func (n Normalizer) TraitName(name string) string {
	name = strings.TrimSpace(name)
	if n.Prefix == "" {
		return strings.ToLower(setPrefixPattern.ReplaceAllString(name, ""))
	}
	if len(name) >= len(n.Prefix) && strings.EqualFold(name[:len(n.Prefix)], n.Prefix) {
		name = name[len(n.Prefix):]
	}
	return strings.ToLower(name)
}
