package interpreter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/flowspec/packages/assertions"
	"github.com/abdul-hamid-achik/flowspec/packages/core/definition"
	"github.com/abdul-hamid-achik/flowspec/packages/flowerr"
	"github.com/abdul-hamid-achik/flowspec/packages/logging"
)

const (
	DefaultWaitTimeout        = 70 * time.Second
	DefaultSuggestionTimeout  = 10 * time.Second
	DefaultAssertTimeout      = 5 * time.Second
	DefaultSettleDelay        = 1 * time.Second
	DefaultAutocompleteDelay  = 1 * time.Second
	DefaultAutocompleteSettle = 300 * time.Millisecond
	DefaultMultiSelectSettle  = 500 * time.Millisecond
	DefaultUploadDir          = "uploadFiles"
)

type Config struct {
	// WaitTimeout bounds the visibility wait before every action and assertion.
	WaitTimeout time.Duration
	// SuggestionTimeout bounds the wait for autocomplete suggestions.
	SuggestionTimeout time.Duration
	// AssertTimeout bounds the state-label check after a toggle.
	AssertTimeout time.Duration
	// SettleDelay is waited after advancing a paginated list.
	SettleDelay        time.Duration
	AutocompleteDelay  time.Duration
	AutocompleteSettle time.Duration
	MultiSelectSettle  time.Duration
	UploadDir          string
	// ActionRate caps driver calls per second; zero disables pacing.
	ActionRate float64
}

// DefaultConfig returns the production timing budget.
func DefaultConfig() *Config {
	return &Config{
		WaitTimeout:        DefaultWaitTimeout,
		SuggestionTimeout:  DefaultSuggestionTimeout,
		AssertTimeout:      DefaultAssertTimeout,
		SettleDelay:        DefaultSettleDelay,
		AutocompleteDelay:  DefaultAutocompleteDelay,
		AutocompleteSettle: DefaultAutocompleteSettle,
		MultiSelectSettle:  DefaultMultiSelectSettle,
		UploadDir:          DefaultUploadDir,
	}
}

// OutputWriter stores values produced by output steps.
type OutputWriter interface {
	Set(userID, testcaseID, scenarioID, key string, value any) error
}

type StepStatus string

const (
	StepPassed  StepStatus = "passed"
	StepFailed  StepStatus = "failed"
	StepSkipped StepStatus = "skipped"
)

type StepResult struct {
	ID         string
	Index      int
	Type       definition.StepType
	Page       string
	Element    string
	Action     string
	Status     StepStatus
	SkipReason string
	Data       any
	Assertion  *assertions.Result
	OutputKey  string
	Output     any
	Duration   time.Duration
	Error      error
}

type ScenarioResult struct {
	ScenarioID string
	Name       string
	Steps      []*StepResult
	Duration   time.Duration
	Passed     bool
	Error      error
}

// Skipped counts the steps skipped for lack of data or unknown variants.
func (r *ScenarioResult) Skipped() int {
	n := 0
	for _, s := range r.Steps {
		if s.Status == StepSkipped {
			n++
		}
	}
	return n
}

// Scope identifies whose data a scenario reads and writes.
type Scope struct {
	UserID     string
	TestcaseID string
}

// flowContext is threaded through the steps of one scenario. It is replaced,
// never mutated, when the flow moves to another page.
type flowContext struct {
	userID     string
	testcaseID string
	scenarioID string
	page       *definition.PageDefinition
}

func (fc flowContext) withPage(page *definition.PageDefinition) flowContext {
	fc.page = page
	return fc
}

type actionHandler func(ctx context.Context, fc flowContext, el *definition.ElementDefinition, data any) error

type Interpreter struct {
	driver    PageDriver
	pages     map[string]*definition.PageDefinition
	outputs   OutputWriter
	evaluator *assertions.Evaluator
	config    *Config
	logger    *slog.Logger
	sleep     func(ctx context.Context, d time.Duration) error
	handlers  map[definition.Action]actionHandler
}

// Option is a functional option for configuring an Interpreter.
type Option func(*Interpreter)

// WithLogger sets the logger used for step progress.
func WithLogger(logger *slog.Logger) Option {
	return func(i *Interpreter) {
		i.logger = logger
	}
}

// WithSleep replaces every settle delay and poll delay of the interpreter.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(i *Interpreter) {
		i.sleep = sleep
	}
}

func New(driver PageDriver, pages map[string]*definition.PageDefinition, outputs OutputWriter, cfg *Config, opts ...Option) *Interpreter {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	i := &Interpreter{
		driver:  NewRateLimitedDriver(driver, cfg.ActionRate),
		pages:   pages,
		outputs: outputs,
		config:  cfg,
		logger:  logging.Discard(),
		sleep:   assertions.Sleep,
	}
	for _, opt := range opts {
		opt(i)
	}
	i.evaluator = assertions.NewEvaluator(i.driver, assertions.WithSleep(i.sleep))

	i.handlers = map[definition.Action]actionHandler{
		definition.ActionClick:             i.click,
		definition.ActionToggle:            i.click,
		definition.ActionInput:             i.fill,
		definition.ActionDate:              i.fill,
		definition.ActionEditor:            i.fill,
		definition.ActionSelect:            i.selectOption,
		definition.ActionUpload:            i.upload,
		definition.ActionAutocomplete:      i.autocomplete,
		definition.ActionToggleState:       i.toggleState,
		definition.ActionMultiSelectCreate: i.multiSelectCreate,
		definition.ActionCheckbox:          i.checkbox,
		definition.ActionClickItem:         i.clickItem,
	}
	return i
}

// RunScenario executes every step of scenario in order. data is the resolved,
// fully literal data row of the testcase. The returned error is the first
// step failure, also recorded on the result.
func (i *Interpreter) RunScenario(ctx context.Context, scope Scope, scenario *definition.ScenarioDefinition, data map[string]any) (*ScenarioResult, error) {
	start := time.Now()
	result := &ScenarioResult{
		ScenarioID: scenario.ID,
		Name:       scenario.Name,
		Passed:     true,
	}

	ctx = logging.WithScenarioID(ctx, scenario.ID)
	fc := flowContext{
		userID:     scope.UserID,
		testcaseID: scope.TestcaseID,
		scenarioID: scenario.ID,
	}

	for index := range scenario.Flow {
		step := &scenario.Flow[index]
		stepID := scenario.StepID(index)
		stepCtx := logging.WithStepID(ctx, stepID)

		if err := ctx.Err(); err != nil {
			result.Passed = false
			result.Error = err
			break
		}

		// Page changes apply before the step runs, whatever its type.
		if step.Page != "" && (fc.page == nil || fc.page.Name != step.Page) {
			page, ok := i.pages[step.Page]
			if !ok {
				sr := &StepResult{ID: stepID, Index: index, Type: step.Type, Page: step.Page, Element: step.Element}
				sr.Status = StepFailed
				sr.Error = flowerr.PageNotFound(step.Page).WithStep(stepID)
				result.Steps = append(result.Steps, sr)
				result.Passed = false
				result.Error = sr.Error
				break
			}
			fc = fc.withPage(page)
		}

		sr := i.runStep(stepCtx, fc, step, stepID, index, data)
		result.Steps = append(result.Steps, sr)
		if sr.Status == StepFailed {
			result.Passed = false
			result.Error = sr.Error
			break
		}
	}

	result.Duration = time.Since(start)
	return result, result.Error
}

func (i *Interpreter) runStep(ctx context.Context, fc flowContext, step *definition.Step, stepID string, index int, data map[string]any) *StepResult {
	start := time.Now()
	sr := &StepResult{
		ID:      stepID,
		Index:   index,
		Type:    step.Type,
		Page:    step.Page,
		Element: step.Element,
		Status:  StepPassed,
	}
	if fc.page != nil {
		sr.Page = fc.page.Name
	}

	var err error
	switch step.Type {
	case definition.StepAction:
		sr.Action = actionName(step.Action)
		err = i.runAction(ctx, fc, step, stepID, data, sr)
	case definition.StepAssert:
		sr.Action = step.Assert
		err = i.runAssert(ctx, fc, step, stepID, data, sr)
	case definition.StepOutput:
		sr.Action = step.Action
		err = i.runOutput(ctx, fc, step, sr)
	default:
		i.logger.WarnContext(ctx, "unknown step type, skipping", "type", string(step.Type))
		sr.Status = StepSkipped
		sr.SkipReason = "unknown step type"
	}

	sr.Duration = time.Since(start)
	if err != nil {
		sr.Status = StepFailed
		sr.Error = withStep(err, stepID)
		i.logger.ErrorContext(ctx, "step failed", "error", sr.Error)
	}
	return sr
}

func (i *Interpreter) runAction(ctx context.Context, fc flowContext, step *definition.Step, stepID string, data map[string]any, sr *StepResult) error {
	el, err := resolveElement(fc, step.Element)
	if err != nil {
		return err
	}

	action := definition.ParseAction(step.Action)
	handler, ok := i.handlers[action]
	if !ok {
		i.logger.WarnContext(ctx, "unknown action, ignoring", "action", step.Action, "element", step.Element)
		sr.Status = StepSkipped
		sr.SkipReason = "unknown action"
		return nil
	}

	var value any
	if action.RequiresData() {
		v, present := stepValue(action, data, stepID)
		if !present {
			i.logger.InfoContext(ctx, "skipping step (no data)", "action", step.Action, "element", step.Element)
			sr.Status = StepSkipped
			sr.SkipReason = "no data"
			return nil
		}
		value = v
		sr.Data = v
	}

	// The paginated click waits on its own pagination label.
	if action != definition.ActionClickItem {
		if err := i.waitVisible(ctx, el.Locator, i.config.WaitTimeout); err != nil {
			return err
		}
	}

	i.logger.InfoContext(ctx, "action", "action", step.Action, "element", step.Element)
	return handler(ctx, fc, el, value)
}

func (i *Interpreter) runAssert(ctx context.Context, fc flowContext, step *definition.Step, stepID string, data map[string]any, sr *StepResult) error {
	el, err := resolveElement(fc, step.Element)
	if err != nil {
		return err
	}

	kind := definition.ParseAssertKind(step.Assert)
	if kind == definition.AssertUnknown {
		i.logger.WarnContext(ctx, "unknown assertion, ignoring", "assert", step.Assert, "element", step.Element)
		sr.Status = StepSkipped
		sr.SkipReason = "unknown assertion"
		return nil
	}

	expected := step.Expected
	if v, ok := data[stepID]; ok && !isEmpty(v) {
		expected = v
	}
	if kind.RequiresData() && isEmpty(expected) {
		i.logger.InfoContext(ctx, "skipping assertion (no data)", "assert", step.Assert, "element", step.Element)
		sr.Status = StepSkipped
		sr.SkipReason = "no data"
		return nil
	}
	sr.Data = expected

	if kind != definition.AssertHidden {
		if err := i.waitVisible(ctx, el.Locator, i.config.WaitTimeout); err != nil {
			return err
		}
	}

	i.logger.InfoContext(ctx, "assert", "assert", step.Assert, "element", step.Element)
	res, err := i.evaluator.Evaluate(ctx, kind, el.Locator, expected)
	if err != nil {
		return fmt.Errorf("%s assertion on %s: %w", kind, el.Name, err)
	}
	sr.Assertion = res
	if !res.Passed {
		return flowerr.AssertionFailed(fmt.Sprintf("%s assertion on %s: %s", kind, el.Name, res.Message), res.Expected, res.Actual)
	}
	return nil
}

func (i *Interpreter) runOutput(ctx context.Context, fc flowContext, step *definition.Step, sr *StepResult) error {
	if step.Key == "" {
		return flowerr.New(flowerr.CodeInvalidStep, "output step has no key")
	}
	sr.OutputKey = step.Key

	var value any
	switch definition.ParseOutputAction(step.Action) {
	case definition.OutputJobIDFromURL:
		v, err := i.jobIDFromURL(ctx)
		if err != nil {
			return err
		}
		value = v
	default:
		return flowerr.Newf(flowerr.CodeInvalidStep, "unknown output action: %s", step.Action)
	}

	if err := i.outputs.Set(fc.userID, fc.testcaseID, fc.scenarioID, step.Key, value); err != nil {
		return fmt.Errorf("storing output %s: %w", step.Key, err)
	}
	sr.Output = value
	i.logger.InfoContext(ctx, "stored output", "key", step.Key, "value", value)
	return nil
}

func (i *Interpreter) waitVisible(ctx context.Context, locator string, timeout time.Duration) error {
	if err := i.driver.WaitVisible(ctx, locator, timeout); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return flowerr.Newf(flowerr.CodeDriverTimeout, "element not visible in time: %s", locator).
			WithCause(err).
			WithDetails(map[string]any{"locator": locator, "timeout": timeout.String()})
	}
	return nil
}

func resolveElement(fc flowContext, name string) (*definition.ElementDefinition, error) {
	if fc.page == nil {
		return nil, flowerr.Newf(flowerr.CodeInvalidStep, "element %q referenced before any page", name)
	}
	el, ok := fc.page.Element(name)
	if !ok {
		return nil, flowerr.ElementNotFound(fc.page.Name, name)
	}
	return el, nil
}

// stepValue returns the literal value for a data-required step, normalized
// for multi-value actions. present is false when the step must be skipped.
func stepValue(action definition.Action, data map[string]any, stepID string) (any, bool) {
	raw, ok := data[stepID]
	if !ok || isEmpty(raw) {
		return nil, false
	}
	if !action.MultiValue() {
		return raw, true
	}
	values := SplitMultiValue(raw)
	if length(values) == 0 {
		return nil, false
	}
	return values, true
}

// SplitMultiValue turns a comma-delimited string into a trimmed list, keeps
// lists as they are and wraps any other scalar.
func SplitMultiValue(raw any) any {
	switch v := raw.(type) {
	case []any, []string:
		return v
	case string:
		parts := strings.Split(v, ",")
		values := make([]any, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				values = append(values, p)
			}
		}
		return values
	default:
		return []any{v}
	}
}

func length(v any) int {
	switch l := v.(type) {
	case []any:
		return len(l)
	case []string:
		return len(l)
	}
	return 1
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}

func toString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", val)
	}
}

func toStrings(v any) []string {
	switch l := v.(type) {
	case []string:
		return l
	case []any:
		out := make([]string, 0, len(l))
		for _, item := range l {
			out = append(out, toString(item))
		}
		return out
	default:
		return []string{toString(v)}
	}
}

// withStep tags err with the step identifier, keeping its code.
func withStep(err error, stepID string) error {
	var fe *flowerr.Error
	if errors.As(err, &fe) {
		if fe.StepID == "" {
			fe.StepID = stepID
		}
		return err
	}
	return fmt.Errorf("step %s: %w", stepID, err)
}

// actionName reports known actions by their canonical name.
func actionName(raw string) string {
	if a := definition.ParseAction(raw); a != definition.ActionUnknown {
		return a.String()
	}
	return raw
}
