package definition

import (
	"fmt"
	"strings"
	"time"
)

// StepType distinguishes the three kinds of flow entries.
type StepType string

const (
	StepAction StepType = "step"
	StepAssert StepType = "assert"
	StepOutput StepType = "output"
)

// ElementDefinition describes one element of a page. Every locator is an
// opaque descriptor handed verbatim to the page driver.
type ElementDefinition struct {
	Name    string `json:"name"`
	Locator string `json:"locator"`

	// Suggestion list for autocomplete and multi-select-create.
	DropdownLocator string `json:"dropdownLocator,omitempty"`

	// State labels for toggle-state.
	OnLocator  string `json:"onLocator,omitempty"`
	OffLocator string `json:"offLocator,omitempty"`

	// Paginated search for click-specific-item.
	ItemLocator     string `json:"requiredJobTitleLocator,omitempty"`
	PageCountLabel  string `json:"numberOfPages,omitempty"`
	NextPageLocator string `json:"nextPage,omitempty"`
}

// itemTokens are the template markers an item locator may carry.
var itemTokens = []string{"${jobId}", "${id}"}

// ItemLocatorFor fills the item locator template with the given identifier.
func (e *ElementDefinition) ItemLocatorFor(identifier string) string {
	loc := e.ItemLocator
	for _, tok := range itemTokens {
		loc = strings.ReplaceAll(loc, tok, identifier)
	}
	return loc
}

// PageDefinition is a named collection of elements.
type PageDefinition struct {
	Name     string              `json:"page"`
	Elements []ElementDefinition `json:"elements"`
}

// Element returns the element with the given name.
func (p *PageDefinition) Element(name string) (*ElementDefinition, bool) {
	for i := range p.Elements {
		if p.Elements[i].Name == name {
			return &p.Elements[i], true
		}
	}
	return nil, false
}

// Step is one entry of a scenario flow.
type Step struct {
	Type     StepType `json:"type"`
	Page     string   `json:"page,omitempty"`
	Element  string   `json:"element,omitempty"`
	Action   string   `json:"action,omitempty"`
	Assert   string   `json:"assert,omitempty"`
	Expected any      `json:"expected,omitempty"`
	Key      string   `json:"key,omitempty"`
}

// RequiresData reports whether the step consumes a per-run literal value.
func (s *Step) RequiresData() bool {
	switch s.Type {
	case StepAction:
		return ParseAction(s.Action).RequiresData()
	case StepAssert:
		return ParseAssertKind(s.Assert).RequiresData()
	}
	return false
}

// ScenarioDefinition is an ordered, reusable UI flow fragment.
type ScenarioDefinition struct {
	ID   string `json:"scenario_id"`
	Name string `json:"name"`
	Flow []Step `json:"flow"`
}

// StepID returns the identifier of the step at index within this scenario.
func (s *ScenarioDefinition) StepID(index int) string {
	return StepID(s.ID, index)
}

// DataStepIDs lists the identifiers of the data-required steps, in flow order.
func (s *ScenarioDefinition) DataStepIDs() []string {
	var ids []string
	for i := range s.Flow {
		if s.Flow[i].RequiresData() {
			ids = append(ids, s.StepID(i))
		}
	}
	return ids
}

// PageNames returns the distinct page names referenced by the flow.
func (s *ScenarioDefinition) PageNames() []string {
	seen := make(map[string]bool)
	var names []string
	for _, step := range s.Flow {
		if step.Page == "" || seen[step.Page] {
			continue
		}
		seen[step.Page] = true
		names = append(names, step.Page)
	}
	return names
}

// StepID builds the "<scenarioId>_<index>" step identifier.
func StepID(scenarioID string, index int) string {
	return fmt.Sprintf("%s_%d", scenarioID, index)
}

// TestCaseDefinition is an ordered list of scenario references.
type TestCaseDefinition struct {
	ID        string   `json:"testcase_id"`
	Name      string   `json:"name"`
	Scenarios []string `json:"scenarios"`
	Tags      []string `json:"tags,omitempty"`
}

// DataItem binds a literal value (or array of values) to a step identifier.
type DataItem struct {
	ID    string `json:"id"`
	Value any    `json:"value"`
}

// TestData is the selected data row of one testcase.
type TestData struct {
	TestcaseID string     `json:"testcase_id"`
	Data       []DataItem `json:"data"`
}

// Values flattens the row into a step identifier mapping.
func (d *TestData) Values() map[string]any {
	values := make(map[string]any, len(d.Data))
	for _, item := range d.Data {
		values[item.ID] = item.Value
	}
	return values
}

// RunMetadata carries run-level settings and target-site credentials.
type RunMetadata struct {
	TestcaseCount int       `json:"testcaseCount"`
	ScenarioCount int       `json:"scenarioCount"`
	PageCount     int       `json:"pageCount"`
	RunMode       string    `json:"runMode"`
	ViewMode      string    `json:"viewMode,omitempty"`
	ReportName    string    `json:"reportName"`
	CreatedAt     time.Time `json:"createdAt"`
	URL           string    `json:"url"`
	Email         string    `json:"email"`
	Password      string    `json:"password"`
	UserID        string    `json:"userId"`
}

// MainConfig holds the target-site credentials of a user.
type MainConfig struct {
	URL      string `json:"url" yaml:"url"`
	Email    string `json:"email" yaml:"email"`
	Password string `json:"password" yaml:"password"`
}
