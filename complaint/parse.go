package complaint

import (
	"slices"
	"strings"
)

// parseCategories turns a comma separated category list into known category
// names. Unknown names become other; duplicates keep their first position.
func parseCategories(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return r == ',' || r == '\n' || r == ';'
	})
	var out []string
	for _, field := range fields {
		name := strings.ToLower(strings.Trim(field, " \t\r.*-\"'`"))
		if name == "" {
			continue
		}
		if !slices.Contains(Categories, name) {
			name = CategoryOther
		}
		if !slices.Contains(out, name) {
			out = append(out, name)
		}
	}
	if len(out) == 0 {
		return []string{CategoryOther}
	}
	return out
}

// parseVerdict splits a "WORD\nreason" answer. ok reports whether the first
// line starts with want.
func parseVerdict(text, want string) (ok bool, reason string) {
	first, rest, _ := strings.Cut(strings.TrimSpace(text), "\n")
	word := strings.ToUpper(strings.Trim(first, " \t\r.*:"))
	reason = strings.TrimSpace(rest)
	if reason == "" {
		reason = strings.TrimSpace(first)
	}
	return strings.HasPrefix(word, want), reason
}

// resolutionReport is the parsed answer of the resolution prompt.
type resolutionReport struct {
	Resolution    string
	Escalate      bool
	Effectiveness string
}

func parseResolution(text string) resolutionReport {
	report := resolutionReport{Effectiveness: EffectivenessMedium}
	var (
		preamble, body []string
		sawHeader      bool
		inBody         bool
	)
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if rest, ok := cutPrefixFold(trimmed, "RESOLUTION:"); ok {
			sawHeader, inBody = true, true
			if rest = strings.TrimSpace(rest); rest != "" {
				body = append(body, rest)
			}
			continue
		}
		if rest, ok := cutPrefixFold(trimmed, "ESCALATION:"); ok {
			inBody = false
			report.Escalate = strings.HasPrefix(strings.ToUpper(strings.TrimSpace(rest)), "YES")
			continue
		}
		if rest, ok := cutPrefixFold(trimmed, "EFFECTIVENESS:"); ok {
			inBody = false
			report.Effectiveness = parseEffectiveness(rest)
			continue
		}
		switch {
		case inBody:
			body = append(body, line)
		case !sawHeader:
			preamble = append(preamble, line)
		}
	}
	if !sawHeader {
		body = preamble
	}
	report.Resolution = strings.TrimSpace(strings.Join(body, "\n"))
	return report
}

func parseEffectiveness(text string) string {
	word := strings.ToLower(strings.Trim(text, " \t\r.*"))
	for _, rating := range []string{EffectivenessHigh, EffectivenessMedium, EffectivenessLow} {
		if strings.HasPrefix(word, rating) {
			return rating
		}
	}
	return EffectivenessMedium
}

func cutPrefixFold(s, prefix string) (string, bool) {
	if len(s) < len(prefix) || !strings.EqualFold(s[:len(prefix)], prefix) {
		return s, false
	}
	return s[len(prefix):], true
}
