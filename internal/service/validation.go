package service

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

var (
	phonePattern = regexp.MustCompile(`^\+?[0-9]{10,15}$`)
	emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

	phoneNoise = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "")
)

const (
	minNameLength    = 2
	minAddressLength = 10
)

var (
	confirmWords = map[string]bool{"yes": true, "y": true, "confirm": true, "correct": true}
	abortWords   = map[string]bool{"no": true, "n": true, "cancel": true}
)

func ValidName(s string) bool {
	return utf8.RuneCountInString(strings.TrimSpace(s)) >= minNameLength
}

// ValidPhone accepts 10 to 15 digits with an optional leading plus, ignoring
// spaces, dashes and parentheses.
func ValidPhone(s string) bool {
	return phonePattern.MatchString(phoneNoise.Replace(strings.TrimSpace(s)))
}

func ValidEmail(s string) bool {
	return emailPattern.MatchString(strings.TrimSpace(s))
}

func ValidAddress(s string) bool {
	return utf8.RuneCountInString(strings.TrimSpace(s)) >= minAddressLength
}

// ParseChoice parses a 1-based menu choice. ok is false for non-numeric input
// and for numbers outside [1, n].
func ParseChoice(s string, n int) (idx int, numeric bool, ok bool) {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, false, false
	}
	if v < 1 || v > n {
		return 0, true, false
	}
	return v - 1, true, true
}

// NormalizeIdentity strips formatting from a phone-like identity and makes sure it
// carries a leading plus. A channel prefix such as "whatsapp:" is preserved.
func NormalizeIdentity(s string) string {
	s = strings.TrimSpace(s)
	prefix := ""
	if i := strings.LastIndex(s, ":"); i >= 0 {
		prefix, s = s[:i+1], s[i+1:]
	}
	s = phoneNoise.Replace(s)
	if s != "" && !strings.HasPrefix(s, "+") {
		s = "+" + s
	}
	return prefix + s
}

func isKeyword(text string, words []string) bool {
	t := strings.ToLower(strings.TrimSpace(text))
	for _, w := range words {
		if t == strings.ToLower(w) {
			return true
		}
	}
	return false
}
