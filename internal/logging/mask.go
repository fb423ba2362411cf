package logging

import "strings"

// MaskEmail keeps the first two characters of the local part and the domain,
// so log lines stay correlatable without carrying the full address.
func MaskEmail(email string) string {
	if len(email) < 3 {
		return "***"
	}
	at := strings.IndexByte(email, '@')
	if at < 2 {
		return email[:2] + "***"
	}
	return email[:2] + "***" + email[at:]
}
