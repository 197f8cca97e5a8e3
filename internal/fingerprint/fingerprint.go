// Package fingerprint derives stable review identities for deduplication.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"ReviewRadar/internal/domain"
)

// Compute returns a deterministic hex digest over the review's stable fields.
// Text and author are normalized first so formatting differences between the
// API and scraping variants do not split one review into two identities. The
// posted timestamp is truncated to the day, the coarsest precision a source
// reports; a missing date hashes as an empty field.
func Compute(businessID string, raw domain.RawReview) string {
	day := ""
	if !raw.PostedAt.IsZero() {
		day = raw.PostedAt.UTC().Truncate(24 * time.Hour).Format("2006-01-02")
	}

	h := sha256.New()
	fmt.Fprintf(h, "%s\x1f%s\x1f%d\x1f%s\x1f%s",
		businessID,
		Normalize(raw.Author),
		raw.Rating,
		Normalize(raw.Text),
		day,
	)
	return hex.EncodeToString(h.Sum(nil))
}

// Normalize trims, lowercases and collapses runs of whitespace.
func Normalize(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}
