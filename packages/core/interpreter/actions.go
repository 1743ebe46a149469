package interpreter

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/abdul-hamid-achik/flowspec/packages/core/definition"
	"github.com/abdul-hamid-achik/flowspec/packages/flowerr"
)

var (
	firstInteger = regexp.MustCompile(`\d+`)
	jobIDPattern = regexp.MustCompile(`/j/(\d+)/`)
)

// Toggle-state vocabulary.
var (
	onWords  = map[string]bool{"yes": true, "private": true, "on": true, "true": true}
	offWords = map[string]bool{"no": true, "public": true, "off": true, "false": true}
)

func (i *Interpreter) click(ctx context.Context, _ flowContext, el *definition.ElementDefinition, _ any) error {
	if err := i.driver.Click(ctx, el.Locator); err != nil {
		return fmt.Errorf("clicking %s: %w", el.Name, err)
	}
	return nil
}

func (i *Interpreter) fill(ctx context.Context, _ flowContext, el *definition.ElementDefinition, data any) error {
	if err := i.driver.Fill(ctx, el.Locator, toString(data)); err != nil {
		return fmt.Errorf("filling %s: %w", el.Name, err)
	}
	return nil
}

func (i *Interpreter) selectOption(ctx context.Context, _ flowContext, el *definition.ElementDefinition, data any) error {
	if err := i.driver.SelectOption(ctx, el.Locator, toString(data)); err != nil {
		return fmt.Errorf("selecting %v in %s: %w", data, el.Name, err)
	}
	return nil
}

func (i *Interpreter) upload(ctx context.Context, _ flowContext, el *definition.ElementDefinition, data any) error {
	names := toStrings(data)
	files := make([]string, 0, len(names))
	for _, name := range names {
		if !filepath.IsAbs(name) {
			name = filepath.Join(i.config.UploadDir, name)
		}
		files = append(files, name)
	}
	if err := i.driver.SetFiles(ctx, el.Locator, files); err != nil {
		return fmt.Errorf("uploading to %s: %w", el.Name, err)
	}
	return nil
}

// toggleState drives a two-state switch whose state is shown by two labels.
func (i *Interpreter) toggleState(ctx context.Context, _ flowContext, el *definition.ElementDefinition, data any) error {
	desired := strings.ToLower(strings.TrimSpace(toString(data)))
	wantOn := onWords[desired]
	if !wantOn && !offWords[desired] {
		return flowerr.Newf(flowerr.CodeInvalidStep, "invalid toggle state %q for %s", desired, el.Name)
	}

	isOn, err := i.driver.IsVisible(ctx, el.OnLocator)
	if err != nil {
		return fmt.Errorf("reading on state of %s: %w", el.Name, err)
	}
	isOff, err := i.driver.IsVisible(ctx, el.OffLocator)
	if err != nil {
		return fmt.Errorf("reading off state of %s: %w", el.Name, err)
	}
	if (wantOn && isOn) || (!wantOn && isOff) {
		return nil
	}

	if err := i.driver.Click(ctx, el.Locator); err != nil {
		return fmt.Errorf("toggling %s: %w", el.Name, err)
	}

	label, state := el.OffLocator, "off"
	if wantOn {
		label, state = el.OnLocator, "on"
	}
	if err := i.driver.WaitVisible(ctx, label, i.config.AssertTimeout); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return flowerr.AssertionFailed(fmt.Sprintf("%s did not switch %s", el.Name, state), state, "unchanged").
			WithCause(err)
	}
	return nil
}

func (i *Interpreter) checkbox(ctx context.Context, _ flowContext, el *definition.ElementDefinition, data any) error {
	desired := strings.ToLower(strings.TrimSpace(toString(data)))
	var want bool
	switch desired {
	case "check":
		want = true
	case "uncheck":
		want = false
	default:
		return flowerr.Newf(flowerr.CodeInvalidStep, "invalid checkbox action: %s", desired)
	}

	checked, err := i.driver.IsChecked(ctx, el.Locator)
	if err != nil {
		return fmt.Errorf("reading %s: %w", el.Name, err)
	}
	if checked != want {
		if want {
			err = i.driver.Check(ctx, el.Locator)
		} else {
			err = i.driver.Uncheck(ctx, el.Locator)
		}
		if err != nil {
			return fmt.Errorf("%s %s: %w", desired, el.Name, err)
		}
	}

	checked, err = i.driver.IsChecked(ctx, el.Locator)
	if err != nil {
		return fmt.Errorf("reading %s: %w", el.Name, err)
	}
	if checked != want {
		return flowerr.AssertionFailed(fmt.Sprintf("checkbox %s not %sed", el.Name, desired), want, checked)
	}
	return nil
}

// clickItem pages through a list until the item carrying the identifier is
// visible, then clicks it.
func (i *Interpreter) clickItem(ctx context.Context, _ flowContext, el *definition.ElementDefinition, data any) error {
	id := toString(data)
	if el.ItemLocator == "" {
		return flowerr.Newf(flowerr.CodeInvalidStep, "element %s has no item locator", el.Name)
	}
	itemLocator := el.ItemLocatorFor(id)

	totalPages, err := i.pageCount(ctx, el)
	if err != nil {
		return err
	}
	i.logger.InfoContext(ctx, "searching item", "id", id, "pages", totalPages)

	for page := 1; page <= totalPages; page++ {
		visible, err := i.driver.IsVisible(ctx, itemLocator)
		if err != nil {
			return fmt.Errorf("probing item %s: %w", id, err)
		}
		if visible {
			i.logger.InfoContext(ctx, "item found", "id", id, "page", page)
			if err := i.driver.Click(ctx, itemLocator); err != nil {
				return fmt.Errorf("clicking item %s: %w", id, err)
			}
			return nil
		}

		if page < totalPages {
			if err := i.driver.Click(ctx, el.NextPageLocator); err != nil {
				return fmt.Errorf("advancing to page %d: %w", page+1, err)
			}
			if err := i.sleep(ctx, i.config.SettleDelay); err != nil {
				return err
			}
		}
	}

	return flowerr.Newf(flowerr.CodeItemNotFound, "item %s not found after checking %d pages", id, totalPages).
		WithDetails(map[string]any{"id": id, "pages": totalPages})
}

// pageCount reads the first integer of the pagination label. A list without
// a label, or a label without a number, is a single page.
func (i *Interpreter) pageCount(ctx context.Context, el *definition.ElementDefinition) (int, error) {
	if el.PageCountLabel == "" {
		return 1, nil
	}
	if err := i.waitVisible(ctx, el.PageCountLabel, i.config.WaitTimeout); err != nil {
		return 0, err
	}
	text, err := i.driver.InnerText(ctx, el.PageCountLabel)
	if err != nil {
		return 0, fmt.Errorf("reading page count of %s: %w", el.Name, err)
	}
	n, err := strconv.Atoi(firstInteger.FindString(text))
	if err != nil || n < 1 {
		return 1, nil
	}
	return n, nil
}

func (i *Interpreter) autocomplete(ctx context.Context, _ flowContext, el *definition.ElementDefinition, data any) error {
	if err := i.sleep(ctx, i.config.AutocompleteDelay); err != nil {
		return err
	}
	if err := i.pickSuggestion(ctx, el, toString(data)); err != nil {
		return err
	}
	return i.sleep(ctx, i.config.AutocompleteSettle)
}

func (i *Interpreter) multiSelectCreate(ctx context.Context, _ flowContext, el *definition.ElementDefinition, data any) error {
	for _, value := range toStrings(data) {
		if err := i.waitVisible(ctx, el.Locator, i.config.WaitTimeout); err != nil {
			return err
		}
		if err := i.pickSuggestion(ctx, el, value); err != nil {
			return err
		}
		if err := i.sleep(ctx, i.config.MultiSelectSettle); err != nil {
			return err
		}
	}
	return nil
}

// pickSuggestion types value and clicks the best suggestion. Missing
// suggestions are logged, never fatal.
func (i *Interpreter) pickSuggestion(ctx context.Context, el *definition.ElementDefinition, value string) error {
	if err := i.driver.TypeText(ctx, el.Locator, value); err != nil {
		return fmt.Errorf("typing into %s: %w", el.Name, err)
	}

	if err := i.driver.WaitVisible(ctx, el.DropdownLocator, i.config.SuggestionTimeout); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		i.logger.WarnContext(ctx, "no suggestions appeared", "element", el.Name, "value", value)
		return nil
	}

	options, err := i.driver.AllInnerTexts(ctx, el.DropdownLocator)
	if err != nil {
		return fmt.Errorf("reading suggestions of %s: %w", el.Name, err)
	}

	index, tier := MatchSuggestion(options, value)
	if index < 0 {
		i.logger.WarnContext(ctx, "no suggestion to pick", "element", el.Name, "value", value)
		return nil
	}
	i.logger.DebugContext(ctx, "picking suggestion", "option", options[index], "match", tier)

	if err := i.driver.ClickNth(ctx, el.DropdownLocator, index); err != nil {
		return fmt.Errorf("picking suggestion %q: %w", options[index], err)
	}
	return nil
}

// Suggestion match tiers, in order of preference.
const (
	MatchExact  = "exact"
	MatchCreate = "create"
	MatchFirst  = "first"
)

// MatchSuggestion returns the index of the option to pick for value and the
// tier that matched: an exact case-insensitive match, else a
// `Create "<value>"` affordance, else the first option. It returns -1 when
// there are no options.
func MatchSuggestion(options []string, value string) (int, string) {
	want := strings.ToLower(strings.TrimSpace(value))
	for idx, opt := range options {
		if strings.ToLower(strings.TrimSpace(opt)) == want {
			return idx, MatchExact
		}
	}

	create := regexp.MustCompile(`(?i)create\s*["']?` + regexp.QuoteMeta(strings.TrimSpace(value)) + `["']?`)
	for idx, opt := range options {
		if create.MatchString(opt) {
			return idx, MatchCreate
		}
	}

	if len(options) > 0 {
		return 0, MatchFirst
	}
	return -1, ""
}

func (i *Interpreter) jobIDFromURL(ctx context.Context) (string, error) {
	current, err := i.driver.CurrentURL(ctx)
	if err != nil {
		return "", fmt.Errorf("reading current url: %w", err)
	}
	m := jobIDPattern.FindStringSubmatch(current)
	if m == nil {
		return "", flowerr.Newf(flowerr.CodeItemNotFound, "job id not found in url: %s", current).
			WithDetails(map[string]any{"url": current})
	}
	return m[1], nil
}
