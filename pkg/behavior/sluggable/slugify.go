package sluggable

import (
	"strings"
	"unicode"

	"github.com/go-openapi/inflect"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Slug styles
const (
	StyleDefault = "default"
	StyleLower   = "lower"
	StyleUpper   = "upper"
	StyleCamel   = "camel"
)

// DefaultSeparator joins slug words
const DefaultSeparator = "-"

// Slugify turns text into a URL-safe slug: accents are stripped, every run of
// characters other than letters and digits becomes one separator.
func Slugify(text, separator, style string) string {
	if separator == "" {
		separator = DefaultSeparator
	}

	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	plain, _, err := transform.String(t, text)
	if err != nil {
		plain = text
	}

	words := strings.FieldsFunc(plain, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	slug := inflect.ParameterizeJoin(strings.Join(words, " "), "-")
	if slug == "" {
		return ""
	}

	parts := strings.Split(slug, "-")
	switch style {
	case StyleUpper:
		for i := range parts {
			parts[i] = strings.ToUpper(parts[i])
		}
	case StyleCamel:
		title := cases.Title(language.Und)
		for i := range parts {
			parts[i] = title.String(parts[i])
		}
	}
	return strings.Join(parts, separator)
}
