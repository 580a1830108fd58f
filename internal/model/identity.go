package model

import (
	"fmt"
	"regexp"
	"strconv"
)

// Identity derivations. Each level's identity is its parent's identity plus
// a zero-padded local sequence number. These strings are human-facing labels
// and dedup keys when matching externally supplied identifiers; uniqueness in
// the store is always enforced by foreign key + number, never by the derived
// string.

// AllocationName derives the project name from term and number,
// e.g. ("10B", 36) -> "GBT10B-036".
func AllocationName(term string, number int) string {
	return fmt.Sprintf("GBT%s-%03d", term, number)
}

var allocationNamePattern = regexp.MustCompile(`^GBT(\d{2}[A-Z])-(\d{3,})$`)

// ParseAllocationName decomposes an allocation name of the form "GBT10B-036"
// back into term "10B" and number 36.
func ParseAllocationName(name string) (term string, number int, err error) {
	m := allocationNamePattern.FindStringSubmatch(name)
	if m == nil {
		return "", 0, fmt.Errorf("malformed allocation name: %q", name)
	}
	number, err = strconv.Atoi(m[2])
	if err != nil {
		return "", 0, fmt.Errorf("malformed allocation number in %q: %w", name, err)
	}
	return m[1], number, nil
}

// SessionIdentity derives a session label, e.g. "GBT10B-036.0005".
func SessionIdentity(allocationName string, number int) string {
	return fmt.Sprintf("%s.%04d", allocationName, number)
}

// ScanIdentity derives a scan label, e.g. "GBT10B-036.0005.0012".
func ScanIdentity(sessionIdentity string, number int) string {
	return fmt.Sprintf("%s.%04d", sessionIdentity, number)
}

// GuppiFileIdentity derives a file label, e.g. "GBT10B-036.0005.0012.0001".
func GuppiFileIdentity(scanIdentity string, number int) string {
	return fmt.Sprintf("%s.%04d", scanIdentity, number)
}
