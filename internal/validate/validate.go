// Package validate holds the pure input checks shared by the registration form and the RSVP upload.
package validate

import (
	"strconv"
	"strings"
	"sync"
	"unicode"

	"github.com/go-playground/validator/v10"
)

const (
	minPhoneDigits = 10
	maxPhoneDigits = 15
)

var (
	validateOnce sync.Once
	checker      *validator.Validate
)

func get() *validator.Validate {
	validateOnce.Do(func() { checker = validator.New() })
	return checker
}

// IsEmail reports whether s is a syntactically valid email address.
func IsEmail(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	return get().Var(s, "email") == nil
}

// IsPhone reports whether s is blank or has between 10 and 15 digits once non-digits are stripped.
func IsPhone(s string) bool {
	if strings.TrimSpace(s) == "" {
		return true
	}
	digits := 0
	for _, r := range s {
		if unicode.IsDigit(r) {
			digits++
		}
	}
	return digits >= minPhoneDigits && digits <= maxPhoneDigits
}

// NormalizeEmail trims and lowercases an address.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Bool coerces loosely typed form input into a bool.
// Accepts JSON booleans, 0/1 numbers and the usual yes/no spellings; ok is false otherwise.
func Bool(v any) (value bool, ok bool) {
	switch x := v.(type) {
	case nil:
		return false, true
	case bool:
		return x, true
	case float64:
		switch x {
		case 0:
			return false, true
		case 1:
			return true, true
		}
		return false, false
	case int:
		return x != 0, x == 0 || x == 1
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "true", "1", "yes", "y", "on":
			return true, true
		case "false", "0", "no", "n", "off", "":
			return false, true
		}
	}
	return false, false
}

// String coerces form input into a string, kept as sent. Numbers are formatted; objects are rejected.
func String(v any) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "", true
	case string:
		return x, true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case int:
		return strconv.Itoa(x), true
	case int64:
		return strconv.FormatInt(x, 10), true
	}
	return "", false
}

// MissingRequired returns, in the order of required, the names whose value is absent or blank.
func MissingRequired(values map[string]string, required []string) []string {
	var missing []string
	for _, name := range required {
		if strings.TrimSpace(values[name]) == "" {
			missing = append(missing, name)
		}
	}
	return missing
}

// BlankedRequired returns the required names that are present in a partial update but blank.
// Names not present are left alone.
func BlankedRequired(values map[string]string, required []string) []string {
	var blanked []string
	for _, name := range required {
		v, present := values[name]
		if present && strings.TrimSpace(v) == "" {
			blanked = append(blanked, name)
		}
	}
	return blanked
}
