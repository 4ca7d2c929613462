package utils

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
)

var (
	emailRegex   = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	controlRegex = regexp.MustCompile(`[\x00-\x08\x0b\x0c\x0e-\x1f\x7f]`)
)

// ValidateEmail validates an email address
func ValidateEmail(email string) error {
	if !emailRegex.MatchString(email) {
		return fmt.Errorf("invalid email format: %s", email)
	}
	return nil
}

// ValidateChatID validates a Lark group chat id (oc_...)
func ValidateChatID(chatID string) error {
	if !strings.HasPrefix(chatID, "oc_") || len(chatID) <= len("oc_") {
		return fmt.Errorf("invalid chat id: %q", chatID)
	}
	return nil
}

// ValidatePort validates a TCP port number
func ValidatePort(port int) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("port out of range: %d", port)
	}
	return nil
}

// ValidateOneOf checks that value is one of allowed
func ValidateOneOf(field, value string, allowed ...string) error {
	if !slices.Contains(allowed, value) {
		return fmt.Errorf("%s must be one of %s, got %q", field, strings.Join(allowed, ", "), value)
	}
	return nil
}

// SanitizeText removes control characters but keeps newlines and tabs
func SanitizeText(s string) string {
	return controlRegex.ReplaceAllString(s, "")
}
