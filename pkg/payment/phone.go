package payment

import (
	"regexp"
	"strings"
)

var kenyanMSISDN = regexp.MustCompile(`^254[17]\d{8}$`)

// NormalizePhone converts common Kenyan formats (0712..., +254712..., 712...)
// to the 254XXXXXXXXX form M-Pesa expects. The result is not validated.
func NormalizePhone(phone string) string {
	cleaned := strings.NewReplacer(" ", "", "-", "", "+", "").Replace(strings.TrimSpace(phone))

	switch {
	case strings.HasPrefix(cleaned, "0"):
		cleaned = "254" + cleaned[1:]
	case strings.HasPrefix(cleaned, "7"), strings.HasPrefix(cleaned, "1"):
		cleaned = "254" + cleaned
	}
	return cleaned
}

// ValidPhone reports whether phone normalises to a Safaricom-style mobile number.
func ValidPhone(phone string) bool {
	return kenyanMSISDN.MatchString(NormalizePhone(phone))
}
