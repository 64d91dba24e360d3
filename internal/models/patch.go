package models

// Operation is the patch vocabulary tag.
type Operation string

const (
	OpAdd       Operation = "add"
	OpReplace   Operation = "replace"
	OpAppend    Operation = "append"
	OpAddObject Operation = "add_object" // structural intent: start a new repeating item
	OpUncertain Operation = "uncertain"  // the answer was ambiguous, ask again
	OpNone      Operation = "none"
)

// Patch is a proposed atomic mutation of the state document.
// Patches are never persisted; only their effect on state is.
type Patch struct {
	Operation     Operation `json:"operation"`
	Path          string    `json:"path,omitempty"`
	Value         any       `json:"value,omitempty"`
	Justification string    `json:"justification,omitempty"`
	TargetArray   string    `json:"target_array,omitempty"`
	Reason        string    `json:"reason,omitempty"`
}

// PatchStatus is the per-patch outcome reported by the patch engine.
type PatchStatus string

const (
	PatchSuccess PatchStatus = "success"
	PatchIgnored PatchStatus = "ignored"
	PatchBlocked PatchStatus = "blocked"
	PatchFailed  PatchStatus = "failed"
)

// PatchResult pairs a patch with its outcome.
type PatchResult struct {
	Status PatchStatus `json:"status"`
	Patch  Patch       `json:"patch"`
	Error  string      `json:"error,omitempty"`
}

// IsValidOperation reports whether op belongs to the patch vocabulary.
func IsValidOperation(op Operation) bool {
	switch op {
	case OpAdd, OpReplace, OpAppend, OpAddObject, OpUncertain, OpNone:
		return true
	default:
		return false
	}
}
