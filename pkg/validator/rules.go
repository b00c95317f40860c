package validator

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"
)

// RequiredString fails for empty or whitespace-only values.
func RequiredString(field, value string) Rule {
	return Rule{
		Check: func() bool { return strings.TrimSpace(value) != "" },
		Error: ValidationError{Field: field, Message: "field is required"},
	}
}

// MaxLenString limits the length in runes.
func MaxLenString(field, value string, limit int) Rule {
	return Rule{
		Check: func() bool { return utf8.RuneCountInString(value) <= limit },
		Error: ValidationError{Field: field, Message: fmt.Sprintf("must be at most %d characters long", limit)},
	}
}

// MatchesPattern passes empty values; combine with RequiredString when needed.
func MatchesPattern(field, value string, re *regexp.Regexp, message string) Rule {
	return Rule{
		Check: func() bool { return value == "" || re.MatchString(value) },
		Error: ValidationError{Field: field, Message: message},
	}
}

// HTTPURL passes empty values and absolute http(s) URLs with a host.
func HTTPURL(field, value string) Rule {
	return Rule{
		Check: func() bool {
			if value == "" {
				return true
			}
			u, err := url.Parse(value)
			return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
		},
		Error: ValidationError{Field: field, Message: "must be an absolute http or https URL"},
	}
}

// NonNegative fails for values below zero.
func NonNegative(field string, value int) Rule {
	return Rule{
		Check: func() bool { return value >= 0 },
		Error: ValidationError{Field: field, Message: "must not be negative"},
	}
}

// When keeps rules only if cond holds, for validating optional fields.
func When(cond bool, rules ...Rule) []Rule {
	if !cond {
		return nil
	}
	return rules
}
