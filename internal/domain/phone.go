package domain

import (
	"errors"
	"regexp"
	"strings"
)

var nonDigitRgx = regexp.MustCompile(`[^0-9]`)

var ErrInvalidPhoneNumber = errors.New("invalid mobile money phone number")

// NormalizeMSISDN strips formatting from phone and returns it in international
// digits-only form. A national number starting with 0 gets countryCode in place
// of the leading zero.
func NormalizeMSISDN(phone, countryCode string) (string, error) {
	sanitized := nonDigitRgx.ReplaceAllString(phone, "")

	if strings.HasPrefix(sanitized, "00") {
		sanitized = sanitized[2:]
	} else if strings.HasPrefix(sanitized, "0") && countryCode != "" {
		sanitized = countryCode + sanitized[1:]
	}

	if len(sanitized) < 9 || len(sanitized) > 15 {
		return "", ErrInvalidPhoneNumber
	}

	return sanitized, nil
}
