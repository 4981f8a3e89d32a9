package complaint

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseCategories(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{name: "single", text: "portal", want: []string{"portal"}},
		{name: "normalised", text: " Monster , ENVIRONMENTAL.", want: []string{"monster", "environmental"}},
		{name: "duplicates keep first position", text: "psychic, portal, psychic", want: []string{"psychic", "portal"}},
		{name: "unknown becomes other", text: "weather, portal, ghosts", want: []string{"other", "portal"}},
		{name: "lines", text: "- portal\n- monster", want: []string{"portal", "monster"}},
		{name: "nothing usable", text: ", ,", want: []string{"other"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, parseCategories(tt.text))
		})
	}
}

func TestParseVerdict(t *testing.T) {
	ok, reason := parseVerdict("VALID\nMentions the lab.", "VALID")
	require.True(t, ok)
	require.Equal(t, "Mentions the lab.", reason)

	ok, reason = parseVerdict("**REJECT**", "VALID")
	require.False(t, ok)
	require.Equal(t, "**REJECT**", reason)

	ok, _ = parseVerdict("INVALID\nno", "VALID")
	require.False(t, ok)

	ok, _ = parseVerdict("UNSATISFIED\nno", "SATISFIED")
	require.False(t, ok)

	ok, _ = parseVerdict("satisfied.", "SATISFIED")
	require.True(t, ok)
}

func TestParseResolution(t *testing.T) {
	report := parseResolution("Here you go.\nRESOLUTION:\nStep one.\nStep two.\n\nESCALATION: yes\n\nEFFECTIVENESS: Low")
	require.Equal(t, resolutionReport{
		Resolution:    "Step one.\nStep two.",
		Escalate:      true,
		Effectiveness: EffectivenessLow,
	}, report)

	report = parseResolution("Just reset the breaker.")
	require.Equal(t, resolutionReport{
		Resolution:    "Just reset the breaker.",
		Effectiveness: EffectivenessMedium,
	}, report)

	report = parseResolution("RESOLUTION: inline\nEFFECTIVENESS: excellent")
	require.Equal(t, "inline", report.Resolution)
	require.Equal(t, EffectivenessMedium, report.Effectiveness)
}
