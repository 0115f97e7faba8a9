package domain

import (
	"errors"
	"regexp"
	"strings"
)

var emailRegexp = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// recipientDelims matches any run of the characters that separate pasted
// addresses: commas, semicolons, and whitespace.
var recipientDelims = regexp.MustCompile(`[,;\s]+`)

// Errors returned by RecipientList.Add.
var (
	ErrInvalidRecipient   = errors.New("invalid recipient address")
	ErrDuplicateRecipient = errors.New("recipient already present")
)

// ValidEmail reports whether s has the shape local@domain.tld.
func ValidEmail(s string) bool {
	return emailRegexp.MatchString(s)
}

// RecipientList is an ordered set of validated email addresses.
type RecipientList []string

// Add appends addr after trimming and lowercasing. Invalid or duplicate
// addresses leave the list unchanged and return a sentinel error.
func (l *RecipientList) Add(addr string) error {
	addr = strings.TrimSpace(strings.ToLower(addr))
	if !ValidEmail(addr) {
		return ErrInvalidRecipient
	}
	for _, existing := range *l {
		if existing == addr {
			return ErrDuplicateRecipient
		}
	}
	*l = append(*l, addr)
	return nil
}

// RemoveAt removes the address at index i, preserving the relative order of
// the rest. Out-of-range indexes are ignored.
func (l *RecipientList) RemoveAt(i int) {
	if i < 0 || i >= len(*l) {
		return
	}
	*l = append((*l)[:i], (*l)[i+1:]...)
}

// ParseRecipients splits text on runs of comma/semicolon/whitespace and
// returns the valid, deduplicated addresses in first-seen order. Invalid and
// duplicate fragments are silently dropped.
func ParseRecipients(text string) RecipientList {
	list := RecipientList{}
	for _, frag := range recipientDelims.Split(text, -1) {
		if frag == "" {
			continue
		}
		// Add already handles validation and dedup.
		_ = list.Add(frag)
	}
	return list
}
