package core

import "strings"

// urgentKeywords trigger the urgent bypass when they appear anywhere in a
// beneficiary message. Fixed data; matching is case-insensitive substring,
// any hit is sufficient.
var urgentKeywords = []string{
	"chest pain",
	"shortness of breath",
	"can't breathe",
	"severe bleeding",
	"unconscious",
	"stroke",
	"heart attack",
}

// IsUrgent reports whether text contains emergency language.
func IsUrgent(text string) bool {
	t := strings.ToLower(text)
	for _, kw := range urgentKeywords {
		if strings.Contains(t, kw) {
			return true
		}
	}
	return false
}
