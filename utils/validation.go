package utils

import (
	netmail "net/mail"
	"strings"
)

func ValidateEmail(email string) error {
	_, err := netmail.ParseAddress(email)

	return err
}

// NormalizeEmail trims and lowercases an address for storage and logging.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
