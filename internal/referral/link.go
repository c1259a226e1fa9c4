package referral

import (
	"fmt"
	"strings"

	"partner-bot/internal/store"
)

const (
	directPayloadPrefix = "ref_direct_"
	multiPayloadPrefix  = "ref_multi_"
)

// BuildLink produces the shareable bot deep link for a referral code. The
// payload prefix encodes the program the code was issued under.
func BuildLink(code string, program store.ProgramType, botUsername string) (string, error) {
	code = strings.TrimSpace(code)
	botUsername = strings.TrimSpace(strings.TrimPrefix(botUsername, "@"))
	if code == "" {
		return "", fmt.Errorf("build link: empty referral code")
	}
	if botUsername == "" {
		return "", fmt.Errorf("build link: empty bot username")
	}

	var prefix string
	switch program {
	case store.ProgramDirect:
		prefix = directPayloadPrefix
	case store.ProgramMultiLevel:
		prefix = multiPayloadPrefix
	default:
		return "", fmt.Errorf("build link: unknown program type %q", program)
	}

	return fmt.Sprintf("https://t.me/%s?start=%s%s", botUsername, prefix, code), nil
}

// ParseStartPayload is the inverse of BuildLink's payload: it extracts the
// referral code and program type from a bot /start payload. ok is false for
// payloads that are not referral links.
func ParseStartPayload(payload string) (code string, program store.ProgramType, ok bool) {
	payload = strings.TrimSpace(payload)
	switch {
	case strings.HasPrefix(payload, directPayloadPrefix):
		code = strings.TrimPrefix(payload, directPayloadPrefix)
		program = store.ProgramDirect
	case strings.HasPrefix(payload, multiPayloadPrefix):
		code = strings.TrimPrefix(payload, multiPayloadPrefix)
		program = store.ProgramMultiLevel
	default:
		return "", "", false
	}
	if code == "" {
		return "", "", false
	}
	return code, program, true
}
