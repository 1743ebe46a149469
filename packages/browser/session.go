package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/chromedp"
)

// Session is one browser page.
type Session struct {
	ctx         context.Context
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc
}

func allocatorOptions(opts Options) []chromedp.ExecAllocatorOption {
	allocOpts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	allocOpts = append(allocOpts, chromedp.Flag("headless", opts.Headless))
	if opts.WindowWidth > 0 && opts.WindowHeight > 0 {
		allocOpts = append(allocOpts, chromedp.WindowSize(opts.WindowWidth, opts.WindowHeight))
	}
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}
	return allocOpts
}

func newSession(ctx context.Context, opts Options) (*Session, error) {
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocatorOptions(opts)...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)

	// The first Run starts the browser.
	if err := chromedp.Run(tabCtx); err != nil {
		cancelTab()
		cancelAlloc()
		return nil, fmt.Errorf("starting %s: %w", opts.Browser, err)
	}

	return &Session{ctx: tabCtx, cancelTab: cancelTab, cancelAlloc: cancelAlloc}, nil
}

// Close shuts the page and its browser down.
func (s *Session) Close() error {
	s.cancelTab()
	s.cancelAlloc()
	return nil
}

// run executes actions on the page, bounded by the caller's context.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		defer cancelDeadline()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	return s.run(ctx, chromedp.Navigate(url))
}

func (s *Session) Click(ctx context.Context, locator string) error {
	return s.run(ctx, chromedp.Click(locator, chromedp.BySearch))
}

// ClickNth clicks the index-th node matching locator.
func (s *Session) ClickNth(ctx context.Context, locator string, index int) error {
	var nodes []*cdp.Node
	if err := s.run(ctx, chromedp.Nodes(locator, &nodes, chromedp.BySearch)); err != nil {
		return err
	}
	if index < 0 || index >= len(nodes) {
		return fmt.Errorf("%s matched %d nodes, no index %d", locator, len(nodes), index)
	}
	return s.run(ctx, chromedp.MouseClickNode(nodes[index]))
}

// Fill replaces the value of an input.
func (s *Session) Fill(ctx context.Context, locator, value string) error {
	return s.run(ctx,
		chromedp.Clear(locator, chromedp.BySearch),
		chromedp.SendKeys(locator, value, chromedp.BySearch),
	)
}

// TypeText types into an input without clearing it first.
func (s *Session) TypeText(ctx context.Context, locator, value string) error {
	return s.run(ctx, chromedp.SendKeys(locator, value, chromedp.BySearch))
}

// SelectOption opens a custom select, types the value and clicks the option
// whose text is the value.
func (s *Session) SelectOption(ctx context.Context, locator, value string) error {
	option := fmt.Sprintf("//*[normalize-space(text())=%s]", xpathLiteral(value))
	return s.run(ctx,
		chromedp.Click(locator, chromedp.BySearch),
		chromedp.SendKeys(locator, value, chromedp.BySearch),
		chromedp.Click(option, chromedp.BySearch),
	)
}

func (s *Session) Check(ctx context.Context, locator string) error {
	return s.setChecked(ctx, locator, true)
}

func (s *Session) Uncheck(ctx context.Context, locator string) error {
	return s.setChecked(ctx, locator, false)
}

func (s *Session) setChecked(ctx context.Context, locator string, want bool) error {
	checked, err := s.IsChecked(ctx, locator)
	if err != nil {
		return err
	}
	if checked == want {
		return nil
	}
	return s.Click(ctx, locator)
}

func (s *Session) SetFiles(ctx context.Context, locator string, files []string) error {
	return s.run(ctx, chromedp.SetUploadFiles(locator, files, chromedp.BySearch))
}

func (s *Session) WaitVisible(ctx context.Context, locator string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return s.run(ctx, chromedp.WaitVisible(locator, chromedp.BySearch))
}

// IsVisible checks the first node matching locator without waiting.
func (s *Session) IsVisible(ctx context.Context, locator string) (bool, error) {
	var nodes []*cdp.Node
	if err := s.run(ctx, chromedp.Nodes(locator, &nodes, chromedp.BySearch, chromedp.AtLeast(0))); err != nil {
		return false, err
	}
	if len(nodes) == 0 {
		return false, nil
	}

	// Nodes without a box model are not rendered.
	err := s.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, err := dom.GetBoxModel().WithNodeID(nodes[0].NodeID).Do(ctx)
		return err
	}))
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	return err == nil, nil
}

func (s *Session) IsChecked(ctx context.Context, locator string) (bool, error) {
	var checked bool
	if err := s.run(ctx, chromedp.JavascriptAttribute(locator, "checked", &checked, chromedp.BySearch)); err != nil {
		return false, err
	}
	return checked, nil
}

func (s *Session) InnerText(ctx context.Context, locator string) (string, error) {
	var text string
	if err := s.run(ctx, chromedp.Text(locator, &text, chromedp.BySearch)); err != nil {
		return "", err
	}
	return text, nil
}

// AllInnerTexts returns the text of every node matching locator, in document
// order. No match yields an empty list.
func (s *Session) AllInnerTexts(ctx context.Context, locator string) ([]string, error) {
	var nodes []*cdp.Node
	if err := s.run(ctx, chromedp.Nodes(locator, &nodes, chromedp.BySearch, chromedp.AtLeast(0))); err != nil {
		return nil, err
	}

	texts := make([]string, 0, len(nodes))
	for _, n := range nodes {
		var text string
		if err := s.run(ctx, chromedp.Text([]cdp.NodeID{n.NodeID}, &text, chromedp.ByNodeID)); err != nil {
			return nil, err
		}
		texts = append(texts, text)
	}
	return texts, nil
}

func (s *Session) InputValue(ctx context.Context, locator string) (string, error) {
	var value string
	if err := s.run(ctx, chromedp.Value(locator, &value, chromedp.BySearch)); err != nil {
		return "", err
	}
	return value, nil
}

func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	var url string
	if err := s.run(ctx, chromedp.Location(&url)); err != nil {
		return "", err
	}
	return url, nil
}

// xpathLiteral quotes s for use in an XPath expression.
func xpathLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	quoted := make([]string, len(parts))
	for i, p := range parts {
		quoted[i] = "'" + p + "'"
	}
	return "concat(" + strings.Join(quoted, `, "'", `) + ")"
}
