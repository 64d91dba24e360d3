package flow

import (
	"fmt"
	"strings"

	"github.com/BTreeMap/IntakePipe/internal/docpath"
	"github.com/BTreeMap/IntakePipe/internal/models"
	"github.com/BTreeMap/IntakePipe/internal/state"
	"github.com/BTreeMap/IntakePipe/internal/validate"
)

// Fixed agent lines.
const (
	CompletionMessage        = "Application complete."
	NewItemMessage           = "Got it, let's capture the additional details."
	ClarifyEscalationMessage = "Let's enter a precise number to continue."
	additionalEntryPrefix    = "For this additional entry: "
)

// Prompt returns what the agent should ask next for doc: the pending repeat
// question, the active field's question, or the completion line.
func (f *IntakeFlow) Prompt(doc *state.Document) string {
	if doc.Runtime.Awaiting() {
		return doc.Runtime.RepeatPrompt
	}
	field, _, ok := f.machine.Current(doc)
	if !ok {
		return CompletionMessage
	}
	return f.question(doc, field)
}

// question renders field for the item currently being filled. Items after the
// first of a collection use the repeat wording.
func (f *IntakeFlow) question(doc *state.Document, field models.FieldDescriptor) string {
	resolved := doc.Resolve(field.Path)
	for _, idx := range docpath.Indices(resolved) {
		if idx > 0 {
			if strings.TrimSpace(field.RepeatQuestion) != "" {
				return field.RepeatQuestion
			}
			return additionalEntryPrefix + field.QuestionText()
		}
	}
	return field.QuestionText()
}

func uncertainMessage(question string) string {
	return "I want to be precise: " + question
}

func rejectionMessage(reason validate.Reason, question string) string {
	return fmt.Sprintf("That value seems unusual (%s). %s", reason, question)
}

func repeatRetryMessage(prompt string) string {
	return "Please answer yes or no: " + prompt
}
