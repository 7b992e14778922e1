// Package phone validates and normalizes Brazilian phone numbers for the
// WhatsApp authentication flow. Numbers are accepted with or without the
// +55 country code and normalized to E.164 format.
package phone

import (
	"errors"
	"regexp"
	"strings"
)

var (
	// ErrEmpty indicates an empty phone number.
	ErrEmpty = errors.New("phone.empty")

	// ErrInvalidLength indicates the number has the wrong digit count.
	ErrInvalidLength = errors.New("phone.invalid_length")

	// ErrInvalidAreaCode indicates an unknown Brazilian DDD area code.
	ErrInvalidAreaCode = errors.New("phone.invalid_area_code")

	// ErrInvalidMobile indicates an 11-digit number that is not a mobile
	// number (mobile numbers start with 9 after the area code).
	ErrInvalidMobile = errors.New("phone.invalid_mobile")
)

var nonDigitRegex = regexp.MustCompile(`\D`)

// validDDDs lists the Brazilian area codes in service (ANATEL allocation).
var validDDDs = map[string]bool{
	"11": true, "12": true, "13": true, "14": true, "15": true, "16": true,
	"17": true, "18": true, "19": true, "21": true, "22": true, "24": true,
	"27": true, "28": true, "31": true, "32": true, "33": true, "34": true,
	"35": true, "37": true, "38": true, "41": true, "42": true, "43": true,
	"44": true, "45": true, "46": true, "47": true, "48": true, "49": true,
	"51": true, "53": true, "54": true, "55": true, "61": true, "62": true,
	"63": true, "64": true, "65": true, "66": true, "67": true, "68": true,
	"69": true, "71": true, "73": true, "74": true, "75": true, "77": true,
	"79": true, "81": true, "82": true, "83": true, "84": true, "85": true,
	"86": true, "87": true, "88": true, "89": true, "91": true, "92": true,
	"93": true, "94": true, "95": true, "96": true, "97": true, "98": true,
	"99": true,
}

// Digits strips all non-digit characters and a leading 55 country code,
// returning the bare DDD+number form.
func Digits(phone string) string {
	digits := nonDigitRegex.ReplaceAllString(phone, "")
	// 12-13 digits means the country code is present; a bare number never
	// exceeds 11 digits.
	if len(digits) >= 12 && strings.HasPrefix(digits, "55") {
		digits = digits[2:]
	}
	return digits
}

// Validate checks that the value is a dialable Brazilian number: 10 digits
// (landline) or 11 digits (mobile, third digit 9) with a valid DDD.
func Validate(phone string) error {
	digits := Digits(phone)
	if digits == "" {
		return ErrEmpty
	}

	if len(digits) != 10 && len(digits) != 11 {
		return ErrInvalidLength
	}

	if !validDDDs[digits[:2]] {
		return ErrInvalidAreaCode
	}

	if len(digits) == 11 && digits[2] != '9' {
		return ErrInvalidMobile
	}

	return nil
}

// Normalize returns the E.164 representation ("+55" + DDD + number).
// Returns an error when the number does not validate.
func Normalize(phone string) (string, error) {
	if err := Validate(phone); err != nil {
		return "", err
	}
	return "+55" + Digits(phone), nil
}

// Mask redacts all but the last four digits for logging.
func Mask(phone string) string {
	digits := Digits(phone)
	if len(digits) < 4 {
		return strings.Repeat("*", len(digits))
	}
	return strings.Repeat("*", len(digits)-4) + digits[len(digits)-4:]
}
