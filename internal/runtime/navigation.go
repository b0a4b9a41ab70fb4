package runtime

import (
	"fmt"
	"strings"

	"github.com/aretw0/feelflow/pkg/domain"
)

type armKind int

const (
	armNone armKind = iota
	armPrimary
	armSecondary
)

// scriptLine is the reply given to an answer received at a step, and where the session goes next.
type scriptLine struct {
	reply func(answer string) string
	next  domain.Step
	arm   armKind
}

func fixed(text string) func(string) string {
	return func(string) string { return text }
}

// EchoFeeling is the prompt that asks the user to sit with a named feeling.
func EchoFeeling(feeling string) string {
	return fmt.Sprintf("Feel %s — what does %s feel like?", feeling, feeling)
}

// StillFeel is the cycle check question.
func StillFeel(feeling string) string {
	return fmt.Sprintf("Do you still feel %s?", feeling)
}

// The closing reflection (StepDesiredDetail) is not listed: it needs the catalog.
var scripts = map[domain.Path]map[domain.Step]scriptLine{
	domain.PathFeeling: {
		domain.StepPrimaryFeeling: {reply: EchoFeeling, next: domain.StepFeelingDetail, arm: armPrimary},
		domain.StepFeelingDetail:  {reply: fixed(domain.PromptNowFeeling), next: domain.StepNowFeeling, arm: armSecondary},
		domain.StepNowFeeling:     {reply: fixed(domain.PromptOpposite), next: domain.StepDesiredFeeling},
		domain.StepDesiredFeeling: {
			reply: func(a string) string { return fmt.Sprintf("What would it feel like to feel %s?", a) },
			next:  domain.StepDesiredDetail,
		},
	},
	domain.PathGoal: {
		domain.StepGoal: {
			reply: func(a string) string { return fmt.Sprintf("What would it feel like to %s?", a) },
			next:  domain.StepPrimaryFeeling,
		},
		domain.StepPrimaryFeeling: {reply: EchoFeeling, next: domain.StepFeelingDetail, arm: armPrimary},
		domain.StepFeelingDetail:  {reply: fixed(domain.PromptNowFeeling), next: domain.StepNowFeeling, arm: armSecondary},
		domain.StepNowFeeling:     {reply: fixed(domain.PromptOpposite), next: domain.StepDesiredFeeling},
		domain.StepDesiredFeeling: {reply: EchoFeeling, next: domain.StepDesiredDetail},
	},
}

func scriptFor(p domain.Path, s domain.Step) (scriptLine, bool) {
	line, ok := scripts[p][s]
	return line, ok
}

// classifyPath maps the greeting answer to a path. Feeling wins when both words appear.
func classifyPath(input string) domain.Path {
	trimmed := strings.TrimSpace(input)
	lower := strings.ToLower(trimmed)
	switch {
	case strings.Contains(lower, "feel") || trimmed == "1":
		return domain.PathFeeling
	case strings.Contains(lower, "goal") || trimmed == "2":
		return domain.PathGoal
	}
	return domain.PathNone
}

// IsAffirmative reports whether input contains any of the restart words.
func IsAffirmative(input string) bool {
	lower := strings.ToLower(strings.TrimSpace(input))
	for _, w := range domain.Affirmatives {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}
