package wa

import (
	"fmt"
	"strings"

	"go.mau.fi/whatsmeow/types"
)

// ParseJID parses a full JID string, normalizing away agent/device parts.
func ParseJID(s string) (types.JID, error) {
	jid, err := types.ParseJID(s)
	if err != nil {
		return types.EmptyJID, fmt.Errorf("parse jid %q: %w", s, err)
	}
	return jid.ToNonAD(), nil
}

// NormalizeRecipient converts a user-supplied recipient into the provider's
// addressing format. Bare phone numbers are stripped to digits and given the
// default user server; strings that already carry a server part are parsed
// and validated as-is.
func NormalizeRecipient(to string) (string, error) {
	to = strings.TrimSpace(to)
	if to == "" {
		return "", fmt.Errorf("empty recipient")
	}
	if strings.ContainsRune(to, '@') {
		jid, err := ParseJID(to)
		if err != nil {
			return "", err
		}
		return jid.String(), nil
	}

	var digits strings.Builder
	for _, r := range to {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	if digits.Len() == 0 {
		return "", fmt.Errorf("recipient %q has no digits", to)
	}
	return digits.String() + "@" + types.DefaultUserServer, nil
}
