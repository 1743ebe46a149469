package definition

// Action is the closed set of step actions the interpreter knows.
type Action int

const (
	ActionUnknown Action = iota
	ActionClick
	ActionToggle
	ActionInput
	ActionDate
	ActionEditor
	ActionSelect
	ActionUpload
	ActionAutocomplete
	ActionToggleState
	ActionMultiSelectCreate
	ActionCheckbox
	ActionClickItem
)

var actionNames = map[string]Action{
	"click":                   ActionClick,
	"toggle":                  ActionToggle,
	"input":                   ActionInput,
	"date":                    ActionDate,
	"editor":                  ActionEditor,
	"select":                  ActionSelect,
	"upload":                  ActionUpload,
	"autocomplete":            ActionAutocomplete,
	"toggleState":             ActionToggleState,
	"multiSelectCreate":       ActionMultiSelectCreate,
	"checkbox":                ActionCheckbox,
	"clickPerticularJobTitle": ActionClickItem,
	"clickParticularItem":     ActionClickItem,
}

// ParseAction maps a wire action name to its variant. Unrecognized names
// yield ActionUnknown rather than an error.
func ParseAction(name string) Action {
	if a, ok := actionNames[name]; ok {
		return a
	}
	return ActionUnknown
}

func (a Action) String() string {
	switch a {
	case ActionClick:
		return "click"
	case ActionToggle:
		return "toggle"
	case ActionInput:
		return "input"
	case ActionDate:
		return "date"
	case ActionEditor:
		return "editor"
	case ActionSelect:
		return "select"
	case ActionUpload:
		return "upload"
	case ActionAutocomplete:
		return "autocomplete"
	case ActionToggleState:
		return "toggleState"
	case ActionMultiSelectCreate:
		return "multiSelectCreate"
	case ActionCheckbox:
		return "checkbox"
	case ActionClickItem:
		return "clickParticularItem"
	default:
		return "unknown"
	}
}

// RequiresData reports whether the action needs a per-run literal value.
func (a Action) RequiresData() bool {
	switch a {
	case ActionClickItem, ActionCheckbox, ActionMultiSelectCreate, ActionToggleState,
		ActionAutocomplete, ActionEditor, ActionDate, ActionUpload, ActionSelect, ActionInput:
		return true
	}
	return false
}

// MultiValue reports whether the action takes a list of values.
func (a Action) MultiValue() bool {
	return a == ActionMultiSelectCreate || a == ActionUpload
}

// AssertKind is the closed set of assertion kinds.
type AssertKind int

const (
	AssertUnknown AssertKind = iota
	AssertVisible
	AssertHidden
	AssertText
	AssertContains
	AssertListContains
	AssertValue
)

var assertNames = map[string]AssertKind{
	"visible":       AssertVisible,
	"hidden":        AssertHidden,
	"text":          AssertText,
	"contains":      AssertContains,
	"arrayContains": AssertListContains,
	"value":         AssertValue,
}

// ParseAssertKind maps a wire assertion name to its variant.
func ParseAssertKind(name string) AssertKind {
	if k, ok := assertNames[name]; ok {
		return k
	}
	return AssertUnknown
}

func (k AssertKind) String() string {
	switch k {
	case AssertVisible:
		return "visible"
	case AssertHidden:
		return "hidden"
	case AssertText:
		return "text"
	case AssertContains:
		return "contains"
	case AssertListContains:
		return "arrayContains"
	case AssertValue:
		return "value"
	default:
		return "unknown"
	}
}

// RequiresData reports whether the expected value comes from the data row.
func (k AssertKind) RequiresData() bool {
	return k == AssertText || k == AssertListContains
}

// OutputAction is the closed set of extraction actions of output steps.
type OutputAction int

const (
	OutputUnknown OutputAction = iota
	OutputJobIDFromURL
)

// ParseOutputAction maps a wire output action name to its variant.
func ParseOutputAction(name string) OutputAction {
	if name == "saveJobID" {
		return OutputJobIDFromURL
	}
	return OutputUnknown
}

func (o OutputAction) String() string {
	if o == OutputJobIDFromURL {
		return "saveJobID"
	}
	return "unknown"
}
