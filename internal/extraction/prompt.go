package extraction

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/BTreeMap/IntakePipe/internal/docpath"
	"github.com/BTreeMap/IntakePipe/internal/models"
)

const systemTemplate = `You are a regulated banking data extraction engine.

Target field: %[1]s
Field type: %[2]s
Question asked: %[3]s
%[4]s
Respond with a JSON object of the form {"patches": [ ... ]} holding exactly ONE proposal.

PRIORITY RULES:
1) If the user indicates an additional item in a repeating collection, return add_object
   immediately, even if no value is given.
2) Only if no structural intent exists, attempt value extraction.
3) Never return "none" when structural intent is present.

Operations:
replace    the user gave one clear value for the target field
uncertain  the user mentioned numbers but they are ambiguous
none       the user did not answer the question
add_object the user mentioned another item of a repeating collection

Every replace, uncertain and none proposal MUST carry "path": "%[1]s".
If the message contains ANY numeric amount that is not a single exact value (a range such as
70-80k, "about 5k", "around 5000", "2 or 3 thousand", "depends", "maybe 4000") you MUST
return uncertain, never none.

Examples:
"75000"          -> {"patches": [{"operation": "replace", "path": "%[1]s", "value": 75000}]}
"roughly 70-80k" -> {"patches": [{"operation": "uncertain", "path": "%[1]s", "reason": "range_detected"}]}
"no idea"        -> {"patches": [{"operation": "none", "path": "%[1]s"}]}
%[5]s`

// BuildPrompt renders the system and user prompts for req.
func BuildPrompt(req Request, instructions string) (system, user string, err error) {
	system = fmt.Sprintf(systemTemplate,
		req.TargetPath,
		req.Field.Type,
		req.Field.QuestionText(),
		fieldConstraints(req.Field),
		structuralSection(req.TargetPath, req.Sections),
	)
	if strings.TrimSpace(instructions) != "" {
		system += "\nAGENT INSTRUCTIONS:\n" + instructions
	}

	var current []byte
	if req.Document != nil {
		current, err = json.MarshalIndent(req.Document, "", "  ")
		if err != nil {
			return "", "", fmt.Errorf("failed to encode state for prompt: %w", err)
		}
	}
	user = fmt.Sprintf("CURRENT STATE:\n%s\n\nUSER MESSAGE:\n%s\n", current, req.UserText)
	return system, user, nil
}

func fieldConstraints(f models.FieldDescriptor) string {
	var b strings.Builder
	if len(f.Values) > 0 {
		fmt.Fprintf(&b, "Allowed values: %s\n", strings.Join(f.Values, ", "))
	}
	if f.Min != nil {
		fmt.Fprintf(&b, "Minimum: %v\n", *f.Min)
	}
	if f.Max != nil {
		fmt.Fprintf(&b, "Maximum: %v\n", *f.Max)
	}
	return b.String()
}

func structuralSection(target string, sections []string) string {
	if len(sections) == 0 {
		return "\nThis form has no repeating collections; never return add_object.\n"
	}
	var b strings.Builder
	if parent := docpath.ArrayParent(target); parent != "" {
		fmt.Fprintf(&b, "\nCURRENT SECTION: this question belongs to the repeating collection %s.\n", parent)
		b.WriteString("If the user mentions another item in this same category you MUST use add_object.\n")
	}
	b.WriteString("\nSTRUCTURAL INTENT: when the user mentions another job, a second job, additional income,\n")
	b.WriteString("a side job or any other extra item, return\n")
	fmt.Fprintf(&b, `{"patches": [{"operation": "add_object", "target_array": "%s"}]}`+"\n", sections[0])
	fmt.Fprintf(&b, "target_array must be one of: %s\n", strings.Join(sections, ", "))
	b.WriteString("Do NOT ask for the amount yet; the system handles questioning.\n")
	return b.String()
}
