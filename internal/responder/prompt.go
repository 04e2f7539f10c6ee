package responder

import (
	"fmt"
	"strings"

	"github.com/realorai/session-service/internal/llm"
	"github.com/realorai/session-service/internal/model"
)

// SystemPrompt builds the persona instruction from its profile.
func SystemPrompt(p model.Persona) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are %s, %d years old, chatting with a match on a dating app.\n", p.Name, p.Age)
	if p.Bio != "" {
		fmt.Fprintf(&b, "Your bio: %s\n", p.Bio)
	}
	if len(p.Traits) > 0 {
		fmt.Fprintf(&b, "Your personality: %s.\n", strings.Join(p.Traits, ", "))
	}
	if p.VoiceStyle != "" {
		fmt.Fprintf(&b, "The way you text: %s.\n", p.VoiceStyle)
	}
	b.WriteString(`Text like a real person on your phone: lowercase, short, one or two sentences at most.
Be a little flirty and curious, ask things back, have opinions.
Never say you are an AI, a bot, or an assistant, and never offer help like a chatbot would.
If asked whether you are real, deflect playfully.`)

	return b.String()
}

// BuildHistory keeps the last window messages, drops leading assistant turns so the
// conversation opens with the user, and appends the latest user message.
func BuildHistory(history []model.Message, latest string, window int) []llm.ChatMessage {
	if window > 0 && len(history) > window {
		history = history[len(history)-window:]
	}

	start := 0
	for start < len(history) && history[start].Role != model.RoleUser {
		start++
	}
	history = history[start:]

	out := make([]llm.ChatMessage, 0, len(history)+1)
	for _, m := range history {
		out = append(out, llm.ChatMessage{Role: string(m.Role), Content: m.Content})
	}
	if latest != "" {
		out = append(out, llm.ChatMessage{Role: string(model.RoleUser), Content: latest})
	}
	return out
}
