package sanitizer

import (
	"strings"
	"unicode"
)

func TrimAndNormalize(s string) string {
	s = strings.TrimSpace(s)

	if s == "" {
		return ""
	}

	var result strings.Builder
	var lastWasSpace bool

	for _, r := range s {
		switch {
		case unicode.IsControl(r):
			continue
		case unicode.IsSpace(r):
			if !lastWasSpace {
				result.WriteRune(' ')
				lastWasSpace = true
			}
		default:
			result.WriteRune(r)
			lastWasSpace = false
		}
	}

	return result.String()
}

func NormalizeCity(city string) string {
	return TrimAndNormalize(city)
}

func NormalizeAddress(address string) string {
	return TrimAndNormalize(address)
}

// NormalizeMessage keeps chat bodies single-spaced and free of control
// characters without lowercasing user text.
func NormalizeMessage(body string) string {
	return TrimAndNormalize(body)
}

func NormalizePlate(plate string) string {
	return strings.ToUpper(TrimAndNormalize(plate))
}
