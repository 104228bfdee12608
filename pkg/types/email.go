package types

import "strings"

// NormalizeEmail is the canonical form used for lookups, flow keys and uniqueness.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
