// Package phone turns human-entered recipients into network addresses.
package phone

import (
	"strings"

	"wagate/internal/domain"
)

// DefaultCountryCode replaces a single leading trunk zero.
const DefaultCountryCode = "62"

// Normalizer canonicalizes recipient identifiers. The zero value uses
// DefaultCountryCode.
type Normalizer struct {
	CountryCode string
}

// New returns a Normalizer for the given country calling code (digits only).
func New(countryCode string) Normalizer {
	return Normalizer{CountryCode: digits(countryCode)}
}

// Normalize is the package-level shortcut using DefaultCountryCode.
func Normalize(raw string) string {
	return Normalizer{}.Normalize(raw)
}

// Normalize strips formatting, resolves international and trunk prefixes
// and appends the user suffix. A group address keeps its group suffix.
// Input without any digit yields "". Normalize is idempotent.
func (n Normalizer) Normalize(raw string) string {
	suffix := domain.UserSuffix
	local := strings.TrimSpace(raw)
	if i := strings.IndexByte(local, '@'); i >= 0 {
		if strings.EqualFold(local[i:], domain.GroupSuffix) {
			suffix = domain.GroupSuffix
		}
		local = local[:i]
	}

	// Group ids carry a creator-timestamp form ("1203630-1612345678").
	if suffix == domain.GroupSuffix {
		id := keep(local, func(r rune) bool { return isDigit(r) || r == '-' })
		if id == "" {
			return ""
		}
		return id + suffix
	}

	number := digits(local)
	if number == "" {
		return ""
	}
	number = n.applyPrefix(number)
	if number == "" {
		return ""
	}
	return number + suffix
}

func (n Normalizer) applyPrefix(number string) string {
	cc := n.CountryCode
	if cc == "" {
		cc = DefaultCountryCode
	}
	if strings.HasPrefix(number, "00") {
		number = strings.TrimLeft(number, "0")
	} else if strings.HasPrefix(number, "0") {
		number = cc + number[1:]
	}
	return strings.TrimLeft(number, "0")
}

// IsGroup reports whether the address names a group chat.
func IsGroup(address string) bool {
	return strings.HasSuffix(address, domain.GroupSuffix)
}

func digits(s string) string {
	return keep(s, isDigit)
}

func keep(s string, ok func(rune) bool) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if ok(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isDigit(r rune) bool { return r >= '0' && r <= '9' }
