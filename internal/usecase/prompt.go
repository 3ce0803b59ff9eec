package usecase

import (
	"crypto/md5"
	"encoding/hex"
	"strings"

	"github.com/Flamme-VRM/KazakhBot/internal/domain"
)

// contextWindowSize is the number of trailing utterances included in a prompt.
// The persisted history is longer (see internal/store); only this window is
// ever sent to the backend.
const contextWindowSize = 10

const assistantLabel = "AlatauLLM"

// contextWindow returns the trailing n utterances of history.
func contextWindow(history []domain.Utterance, n int) []domain.Utterance {
	if len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}

// buildPrompt concatenates the system instruction preamble with the labeled
// context window into the single prompt string sent to the backend.
func buildPrompt(systemPrompt string, window []domain.Utterance) string {
	var sb strings.Builder
	sb.WriteString(strings.TrimSpace(systemPrompt))
	sb.WriteString("\n\nConversation History: \n")
	for i, u := range window {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(speakerLabel(u.Role))
		sb.WriteString(": ")
		sb.WriteString(u.Text)
	}
	return sb.String()
}

func speakerLabel(role string) string {
	if role == domain.RoleAssistant {
		return assistantLabel
	}
	return "User"
}

// Fingerprint returns the deterministic cache key for a fully assembled
// prompt.
func Fingerprint(prompt string) string {
	sum := md5.Sum([]byte(prompt))
	return hex.EncodeToString(sum[:])
}
