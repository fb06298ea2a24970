package promptpipeline

// Templates holds the built-in prompt texts. Callers may override any of
// them from configuration; empty fields fall back to the defaults.
type Templates struct {
	System     string
	Guardrails string
	Summary    string
}

const (
	defaultSystemPrompt = `You are Edge Assistant, a concise and reliable backend-focused AI.
- Prioritise accurate, actionable guidance about distributed systems, networking, security, and edge platform tooling.
- Remember the user's goals using provided memory and keep answers under 200 words when possible.
- Be explicit about assumptions, cite relevant products, and never fabricate capabilities.`

	defaultGuardrails = `Decline to provide harmful, abusive, or policy-violating content. Encourage secure configuration and privacy-preserving behaviours.`

	defaultSummaryInstruction = `Summarise the following conversation between a user and an assistant into 2-3 bullet points highlighting goals and follow-ups.`
)

func Defaults() Templates {
	return Templates{
		System:     defaultSystemPrompt,
		Guardrails: defaultGuardrails,
		Summary:    defaultSummaryInstruction,
	}
}

// WithDefaults fills empty fields of t from Defaults.
func (t Templates) WithDefaults() Templates {
	d := Defaults()
	if normalizeText(t.System) == "" {
		t.System = d.System
	}
	if normalizeText(t.Guardrails) == "" {
		t.Guardrails = d.Guardrails
	}
	if normalizeText(t.Summary) == "" {
		t.Summary = d.Summary
	}
	return t
}
