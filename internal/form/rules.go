package form

import (
	"strings"
	"unicode/utf8"
)

// Required fails on nil, blank strings and empty lists.
func Required(message string) Rule {
	return Rule{
		Message: message,
		Check: func(value any) bool {
			switch v := value.(type) {
			case nil:
				return false
			case string:
				return strings.TrimSpace(v) != ""
			case []string:
				return len(v) > 0
			default:
				return true
			}
		},
	}
}

// MinLength requires a string of at least n characters.
func MinLength(n int, message string) Rule {
	return Rule{
		Message: message,
		Check: func(value any) bool {
			s, ok := value.(string)
			return ok && utf8.RuneCountInString(s) >= n
		},
	}
}

// Contains requires the value to include substr.
func Contains(substr, message string) Rule {
	return Rule{
		Message: message,
		Check: func(value any) bool {
			s, ok := value.(string)
			return ok && strings.Contains(s, substr)
		},
	}
}

// OneOf requires the value to be one of the allowed strings.
func OneOf(allowed []string, message string) Rule {
	set := make(map[string]struct{}, len(allowed))
	for _, a := range allowed {
		set[a] = struct{}{}
	}
	return Rule{
		Message: message,
		Check: func(value any) bool {
			s, ok := value.(string)
			if !ok {
				return false
			}
			_, found := set[s]
			return found
		},
	}
}

// Digits requires a non-empty run of decimal digits, so a whole number of
// zero or more. Numbers decoded from JSON qualify when they are integral.
func Digits(message string) Rule {
	return Rule{
		Message: message,
		Check: func(value any) bool {
			s := asString(value)
			if s == "" {
				return false
			}
			for _, r := range s {
				if r < '0' || r > '9' {
					return false
				}
			}
			return true
		},
	}
}
