package util

import (
	"regexp"

	"github.com/google/uuid"
)

var childIDRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.:-]{0,127}$`)

// IsValidUUID accepts only the canonical hyphenated form.
func IsValidUUID(s string) bool {
	if len(s) != 36 {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}

// IsValidChildID reports whether s can name a child. Child identifiers come
// from the identity provider and are not necessarily UUIDs.
func IsValidChildID(s string) bool {
	return childIDRegex.MatchString(s)
}

func IsValidEnum(value string, validValues []string) bool {
	if value == "" {
		return true
	}
	for _, v := range validValues {
		if value == v {
			return true
		}
	}
	return false
}
