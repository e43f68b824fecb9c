package identity

import "strings"

// NormalizeEmail performs case-insensitive canonicalization before the email
// is turned into its lookup envelope.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
