package schema

import "strings"

const maxTypeLen = 64

// NormalizeType upper-cases an entity or relationship type and reports
// whether the result is a usable identifier (A-Z, 0-9, _).
func NormalizeType(value string) (string, bool) {
	out := strings.ToUpper(strings.TrimSpace(value))
	out = strings.NewReplacer("-", "_", " ", "_").Replace(out)
	if len(out) < 2 || len(out) > maxTypeLen {
		return "", false
	}
	for _, r := range out {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
		default:
			return "", false
		}
	}
	return out, true
}
