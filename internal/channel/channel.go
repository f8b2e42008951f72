// Package channel implements the transport clients that turn platform
// traffic into pipeline inputs and deliver replies back.
package channel

import (
	"errors"
	"strings"
	"unicode/utf8"
)

// ErrThrottled is returned when a platform rejects a call for rate limiting.
var ErrThrottled = errors.New("throttled by platform")

// errorNotice is what chat users see when their message could not be processed.
const errorNotice = "Sorry, I encountered an error processing your message."

// splitMessage splits a message into chunks that fit within the max length,
// trying to split on newlines when possible. Chunks never split a rune.
func splitMessage(msg string, maxLen int) []string {
	if len(msg) <= maxLen {
		return []string{msg}
	}

	var chunks []string
	for len(msg) > 0 {
		if len(msg) <= maxLen {
			chunks = append(chunks, msg)
			break
		}

		cut := maxLen
		for cut > 0 && !utf8.RuneStart(msg[cut]) {
			cut--
		}
		if cut == 0 {
			_, cut = utf8.DecodeRuneInString(msg)
		}
		if idx := strings.LastIndex(msg[:cut], "\n"); idx > maxLen/2 {
			cut = idx + 1
		}

		chunks = append(chunks, msg[:cut])
		msg = msg[cut:]
	}
	return chunks
}
