package stats

import "testing"

func TestNormalizer_TraitName(t *testing.T) {
	tests := []struct {
		prefix string
		input  string
		want   string
	}{
		{"TFT13_", "TFT13_Challenger", "challenger"},
		{"TFT13_", "tft13_Sniper", "sniper"},
		{"TFT13_", "TFT12_Frost", "tft12_frost"},
		{"TFT13_", "Set13_Bruiser", "set13_bruiser"},
		{"TFT14_", "TFT14_Cyberboss", "cyberboss"},
		{"", "TFT9_Bastion", "bastion"},
		{"", "TFT13_Challenger", "challenger"},
		{"", "Invoker", "invoker"},
	}

	for _, tt := range tests {
		got := NewNormalizer(tt.prefix).TraitName(tt.input)
		if got != tt.want {
			t.Errorf("Normalizer{%q}.TraitName(%q) = %q, expected %q", tt.prefix, tt.input, got, tt.want)
		}
	}
}
