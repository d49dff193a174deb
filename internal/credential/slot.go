package credential

import (
	"fmt"
	"strings"

	"surveydesk-go/internal/constants"
	"surveydesk-go/internal/events"
)

// Slot names one of the two independent identity tracks.
type Slot string

const (
	SlotUser    Slot = "user"
	SlotVisitor Slot = "visitor"
)

// Slots lists every slot in a stable order.
func Slots() []Slot { return []Slot{SlotUser, SlotVisitor} }

// Key is the storage key and cookie name for the slot.
func (s Slot) Key() string {
	switch s {
	case SlotUser:
		return constants.UserTokenKey
	case SlotVisitor:
		return constants.VisitorTokenKey
	default:
		return ""
	}
}

// Kind is the hub event kind published when the slot changes.
func (s Slot) Kind() events.Kind {
	if s == SlotUser {
		return events.UserCredentialChanged
	}
	return events.VisitorCredentialChanged
}

// SlotForKey maps a storage key back to its slot.
func SlotForKey(key string) (Slot, bool) {
	switch key {
	case constants.UserTokenKey:
		return SlotUser, true
	case constants.VisitorTokenKey:
		return SlotVisitor, true
	default:
		return "", false
	}
}

// ParseSlot accepts "user" or "visitor".
func ParseSlot(raw string) (Slot, error) {
	switch Slot(strings.ToLower(strings.TrimSpace(raw))) {
	case SlotUser:
		return SlotUser, nil
	case SlotVisitor:
		return SlotVisitor, nil
	default:
		return "", fmt.Errorf("unknown credential slot %q", raw)
	}
}

// Change is the hub payload for a credential write.
type Change struct {
	Slot    Slot   `json:"slot"`
	Present bool   `json:"present"`
	Value   string `json:"-"`
}

// Validate reports whether token may be used as a credential. Empty values
// and HTML documents (an error page stored in place of a token) are rejected.
func Validate(token string) bool {
	t := strings.TrimSpace(token)
	if t == "" {
		return false
	}
	return !LooksLikeHTML(t)
}

// LooksLikeHTML reports whether s starts with a doctype or html tag,
// ignoring case and leading whitespace.
func LooksLikeHTML(s string) bool {
	t := strings.ToLower(strings.TrimLeft(s, " \t\r\n\ufeff"))
	return strings.HasPrefix(t, "<!doctype") || strings.HasPrefix(t, "<html")
}
