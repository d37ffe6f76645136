// Package normalize provides the pure string helpers shared by the import
// pipeline: sort keys, address comparison keys, chunking, and filter-literal
// escaping for the remote store's query dialect.
package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	deaccent   = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	whitespace = regexp.MustCompile(`\s+`)

	trailingNumber = regexp.MustCompile(`^(.*\d+)`)
	leadingNumber  = regexp.MustCompile(`^\d+`)
)

// stripAccents removes combining diacritical marks ("García" -> "Garcia").
func stripAccents(s string) string {
	out, _, err := transform.String(deaccent, s)
	if err != nil {
		return s
	}
	return out
}

// SortKey folds a display value into a case- and accent-insensitive key
// suitable for lexicographic ordering.
func SortKey(s string) string {
	return strings.ToLower(stripAccents(strings.TrimSpace(s)))
}

// AddressKey folds an address into the comparison key used for duplicate
// detection: lower-cased, accents stripped, whitespace collapsed.
func AddressKey(s string) string {
	key := strings.ToLower(stripAccents(s))
	key = whitespace.ReplaceAllString(key, " ")
	return strings.TrimSpace(key)
}

// IdentifierKey normalizes a CIF-style identifier for equality checks:
// upper-cased with all whitespace removed, so spaced export variants of the
// same identifier compare equal.
func IdentifierKey(s string) string {
	return strings.ToUpper(whitespace.ReplaceAllString(s, ""))
}

// Chunk splits values into consecutive slices of at most size elements.
// A non-positive size yields a single chunk with all values.
func Chunk(values []string, size int) [][]string {
	if len(values) == 0 {
		return nil
	}
	if size <= 0 {
		return [][]string{values}
	}
	chunks := make([][]string, 0, (len(values)+size-1)/size)
	for start := 0; start < len(values); start += size {
		end := start + size
		if end > len(values) {
			end = len(values)
		}
		chunks = append(chunks, values[start:end])
	}
	return chunks
}

// EscapeFilterLiteral quotes a string literal for use inside an `in.(...)`
// filter expression. Backslashes and double quotes are escaped so values
// containing commas or quotes survive the comma-joined list syntax.
func EscapeFilterLiteral(value string) string {
	escaped := strings.ReplaceAll(value, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)
	return `"` + escaped + `"`
}

// ShortAddress derives the short "street + number" form of a full residence
// address. It keeps the first comma-separated token up to its trailing house
// number; when the number lives in the second token instead, the two are
// joined with a space. Addresses with no house number keep the first token
// unchanged.
func ShortAddress(address string) string {
	var tokens []string
	for _, tok := range strings.Split(address, ",") {
		tok = strings.TrimSpace(tok)
		if tok != "" {
			tokens = append(tokens, tok)
		}
	}
	if len(tokens) == 0 {
		return ""
	}

	first := tokens[0]
	if m := trailingNumber.FindString(first); m != "" {
		return strings.TrimSpace(m)
	}
	if len(tokens) > 1 {
		if num := leadingNumber.FindString(tokens[1]); num != "" {
			return first + " " + num
		}
	}
	return first
}
