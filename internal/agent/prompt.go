package agent

import (
	"fmt"
	"strings"
	"time"

	"github.com/marlowe-agent/marlowe/internal/buildinfo"
)

// defaultPersona is used when the configuration supplies no system
// prompt of its own.
const defaultPersona = "You are Marlowe, a conversational assistant. Be concise, direct, and honest about what you do not know."

// buildSystemPrompt assembles the session system prompt: identity,
// session details, then persistent memories when a source is wired.
func (g *Gateway) buildSystemPrompt(channel string) string {
	persona := g.persona
	if persona == "" {
		persona = defaultPersona
	}

	var b strings.Builder
	b.WriteString(persona)
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "Session details:\n")
	fmt.Fprintf(&b, "- Current time: %s\n", time.Now().Format("Monday, 2 January 2006 15:04 MST"))
	if channel != "" {
		fmt.Fprintf(&b, "- Channel: %s\n", channel)
	}
	fmt.Fprintf(&b, "- Runtime: %s\n", buildinfo.String())

	if g.prompts != nil {
		if memories := g.prompts.PersistentMemories(); len(memories) > 0 {
			b.WriteString("\nThings you remember:\n")
			for _, m := range memories {
				fmt.Fprintf(&b, "- %s\n", m)
			}
		}
	}

	return strings.TrimRight(b.String(), "\n")
}
