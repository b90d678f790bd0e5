package bridge

import (
	"strings"

	"github.com/relaydesk/wabridge/internal/session"
)

// ResolvePhone maps a raw sender identifier to the canonical phone number
// that downstream logging and billing key on.
//
// The protocol may address a sender either by a stable phone-suffixed JID or
// by a privacy-preserving linked identifier. For linked identifiers the
// accompanying participant field is consulted, but only trusted when it
// itself carries the standard phone suffix; otherwise the identifier's local
// part is kept as-is.
func ResolvePhone(senderJID, participant string) string {
	phone := session.JIDLocal(senderJID)
	if strings.HasSuffix(senderJID, session.LIDSuffix) &&
		strings.HasSuffix(participant, session.PhoneSuffix) {
		phone = session.JIDLocal(participant)
	}
	return phone
}
