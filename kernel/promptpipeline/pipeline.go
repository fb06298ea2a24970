package promptpipeline

import (
	"strings"

	"github.com/OnslaughtSnail/edgechat/kernel/model"
	"github.com/OnslaughtSnail/edgechat/kernel/session"
)

const summaryPrefix = "Conversation summary: "

// Spec describes prompt assembly inputs.
type Spec struct {
	SystemPrompt string
	Guardrails   string
	Summary      string
	History      []session.Turn
	UserMessage  string
}

// FromWindow builds a Spec from the given templates and a bounded
// conversation window.
func FromWindow(t Templates, w session.Window, userMessage string) Spec {
	t = t.WithDefaults()
	return Spec{
		SystemPrompt: t.System,
		Guardrails:   t.Guardrails,
		Summary:      w.Summary,
		History:      w.Turns,
		UserMessage:  userMessage,
	}
}

// Assemble returns the ordered prompt: system prompt, guardrails, the
// conversation summary when present, history in order, then the new user
// message.
func Assemble(spec Spec) []model.Message {
	out := make([]model.Message, 0, len(spec.History)+4)
	if text := normalizeText(spec.SystemPrompt); text != "" {
		out = append(out, model.Message{Role: model.RoleSystem, Text: text})
	}
	if text := normalizeText(spec.Guardrails); text != "" {
		out = append(out, model.Message{Role: model.RoleSystem, Text: text})
	}
	if text := normalizeText(spec.Summary); text != "" {
		out = append(out, model.Message{Role: model.RoleSystem, Text: summaryPrefix + text})
	}
	for _, turn := range spec.History {
		role := model.RoleUser
		if turn.Role == session.RoleAssistant {
			role = model.RoleAssistant
		}
		out = append(out, model.Message{Role: role, Text: turn.Content})
	}
	out = append(out, model.Message{Role: model.RoleUser, Text: spec.UserMessage})
	return out
}

// SummaryRequest builds the messages asking a model to summarise turns,
// one "ROLE: content" line per turn.
func SummaryRequest(instruction string, turns []session.Turn) []model.Message {
	if normalizeText(instruction) == "" {
		instruction = defaultSummaryInstruction
	}
	lines := make([]string, 0, len(turns))
	for _, turn := range turns {
		lines = append(lines, strings.ToUpper(string(turn.Role))+": "+turn.Content)
	}
	return []model.Message{
		{Role: model.RoleSystem, Text: instruction},
		{Role: model.RoleUser, Text: strings.Join(lines, "\n")},
	}
}

func normalizeText(input string) string {
	input = strings.ReplaceAll(input, "\r\n", "\n")
	input = strings.ReplaceAll(input, "\r", "\n")
	input = strings.TrimPrefix(input, "\ufeff")
	return strings.TrimSpace(input)
}
