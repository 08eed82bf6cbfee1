// Package fingerprint derives the stable 256-bit entity key used as the
// primary key of an evidence row and the idempotency key of a job.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"screenguard/internal/apperr"
	"screenguard/internal/domain"
)

// dobLayouts are the locale-agnostic forms accepted for a date of birth,
// tried in order.
var dobLayouts = []string{
	"2006-01-02",
	"02-01-2006",
	"2006/01/02",
	"02/01/2006",
	"2006",
}

// Derive computes the stable fingerprint for (name, entityType, dob).
// It is pure and deterministic: same logical input always yields the same
// output, across processes and releases.
func Derive(name string, entityType domain.EntityType, dob string) (domain.Fingerprint, error) {
	normName := NormalizeName(name)
	if normName == "" {
		return domain.Fingerprint{}, apperr.Invalid("name", "display name is empty after normalization")
	}
	normDOB := NormalizeDOB(dob)
	material := normName + "|" + strings.ToLower(string(entityType)) + "|" + normDOB
	return domain.Fingerprint(sha256.Sum256([]byte(material))), nil
}

// NormalizeName applies NFKD fold, strips combining marks and punctuation,
// lowercases, and collapses internal whitespace.
func NormalizeName(name string) string {
	decomposed := norm.NFKD.String(name)

	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue // combining mark, dropped by the fold
		}
		if unicode.IsPunct(r) {
			continue
		}
		b.WriteRune(r)
	}

	folded := strings.ToLower(b.String())
	fields := strings.Fields(folded)
	return strings.Join(fields, " ")
}

// NormalizeDOB renders dob as YYYY-MM-DD if parseable under any recognized
// full-date form, keeps a year-only input as "YYYY", else returns "".
func NormalizeDOB(dob string) string {
	dob = strings.TrimSpace(dob)
	if dob == "" {
		return ""
	}
	for _, layout := range dobLayouts {
		t, err := time.Parse(layout, dob)
		if err != nil {
			continue
		}
		if layout == "2006" {
			return t.Format("2006")
		}
		return t.Format("2006-01-02")
	}
	return ""
}

// ParseHex decodes a fingerprint's hex string form, as surfaced in URL path
// segments, back into its binary identity.
func ParseHex(s string) (domain.Fingerprint, error) {
	var fp domain.Fingerprint
	decoded, err := hex.DecodeString(s)
	if err != nil || len(decoded) != len(fp) {
		return domain.Fingerprint{}, apperr.Invalid("fingerprint", "fingerprint must be a 64-character hex string")
	}
	copy(fp[:], decoded)
	return fp, nil
}
