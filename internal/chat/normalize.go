package chat

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeEmoji returns the NFC form of an emoji key with surrounding
// whitespace removed.
//
// Peers on different platforms may compose the same symbol differently;
// reaction membership is keyed on the normalized form so toggles from
// either peer address the same set.
func NormalizeEmoji(emoji string) string {
	return norm.NFC.String(strings.TrimSpace(emoji))
}
