package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// ShareTokenLength is the exact length of a share token (32 hex chars)
const ShareTokenLength = 32

// hexRegex matches hexadecimal strings
var hexRegex = regexp.MustCompile(`^[0-9a-fA-F]+$`)

// uuidRegex matches canonical UUID string form
var uuidRegex = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// NormalizeEmail lowercases and trims an email address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateSessionID validates a session ID from URL parameters.
// Session IDs are canonical UUIDs.
func ValidateSessionID(sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session_id is required")
	}
	if !uuidRegex.MatchString(sessionID) {
		return fmt.Errorf("session_id must be a UUID")
	}
	return nil
}

// ValidateShareToken validates a share token from URL parameters
// Share tokens must be exactly 32 hexadecimal characters
func ValidateShareToken(shareToken string) error {
	if shareToken == "" {
		return fmt.Errorf("share_token is required")
	}
	if len(shareToken) != ShareTokenLength {
		return fmt.Errorf("share_token must be exactly %d characters", ShareTokenLength)
	}
	if !hexRegex.MatchString(shareToken) {
		return fmt.Errorf("share_token must be hexadecimal")
	}
	return nil
}
