package payments

import (
	"fmt"
	"strings"

	"rental-service/internal/models"
)

// NormalizePhone converts a Kenyan mobile number to the 2547XXXXXXXX or
// 2541XXXXXXXX form. Accepted inputs: 07.., 01.., 7.., 1.., 2547.., +2547..
// with optional spaces or dashes.
func NormalizePhone(raw string) (string, error) {
	digits := strings.Map(func(r rune) rune {
		switch {
		case r >= '0' && r <= '9':
			return r
		case r == ' ' || r == '-' || r == '+' || r == '(' || r == ')':
			return -1
		default:
			return 'x'
		}
	}, strings.TrimSpace(raw))

	if strings.ContainsRune(digits, 'x') {
		return "", fmt.Errorf("phone %q has invalid characters: %w", raw, models.ErrInvalidInput)
	}

	switch {
	case len(digits) == 12 && strings.HasPrefix(digits, "254"):
		digits = digits[3:]
	case len(digits) == 10 && strings.HasPrefix(digits, "0"):
		digits = digits[1:]
	case len(digits) == 9:
	default:
		return "", fmt.Errorf("phone %q is not a Kenyan mobile number: %w", raw, models.ErrInvalidInput)
	}

	if digits[0] != '7' && digits[0] != '1' {
		return "", fmt.Errorf("phone %q is not a Kenyan mobile number: %w", raw, models.ErrInvalidInput)
	}
	return "254" + digits, nil
}

// ValidPhone reports whether raw normalizes to a Kenyan mobile number
func ValidPhone(raw string) bool {
	_, err := NormalizePhone(raw)
	return err == nil
}
