package interpreter

import (
	"context"
	"time"

	"github.com/abdul-hamid-achik/flowspec/packages/assertions"
	"golang.org/x/time/rate"
)

// PageDriver is the capability surface of a browser session. Locators are
// opaque strings taken verbatim from page definitions.
type PageDriver interface {
	assertions.Reader

	Navigate(ctx context.Context, url string) error
	Click(ctx context.Context, locator string) error
	// ClickNth clicks the index-th (0-based) element matched by locator.
	ClickNth(ctx context.Context, locator string, index int) error
	Fill(ctx context.Context, locator, value string) error
	// TypeText types value key by key, triggering suggestion lists.
	TypeText(ctx context.Context, locator, value string) error
	SelectOption(ctx context.Context, locator, value string) error
	Check(ctx context.Context, locator string) error
	Uncheck(ctx context.Context, locator string) error
	SetFiles(ctx context.Context, locator string, files []string) error
	WaitVisible(ctx context.Context, locator string, timeout time.Duration) error
	IsChecked(ctx context.Context, locator string) (bool, error)
	CurrentURL(ctx context.Context) (string, error)
}

// rateLimitedDriver paces every driver call through a token bucket.
type rateLimitedDriver struct {
	next    PageDriver
	limiter *rate.Limiter
}

// NewRateLimitedDriver wraps driver so that at most perSecond calls are made
// per second. A non-positive rate returns driver unchanged.
func NewRateLimitedDriver(driver PageDriver, perSecond float64) PageDriver {
	if perSecond <= 0 {
		return driver
	}
	return &rateLimitedDriver{
		next:    driver,
		limiter: rate.NewLimiter(rate.Limit(perSecond), 1),
	}
}

func (d *rateLimitedDriver) Navigate(ctx context.Context, url string) error {
	if err := d.limiter.Wait(ctx); err != nil {
		return err
	}
	return d.next.Navigate(ctx, url)
}

func (d *rateLimitedDriver) Click(ctx context.Context, locator string) error {
	if err := d.limiter.Wait(ctx); err != nil {
		return err
	}
	return d.next.Click(ctx, locator)
}

func (d *rateLimitedDriver) ClickNth(ctx context.Context, locator string, index int) error {
	if err := d.limiter.Wait(ctx); err != nil {
		return err
	}
	return d.next.ClickNth(ctx, locator, index)
}

func (d *rateLimitedDriver) Fill(ctx context.Context, locator, value string) error {
	if err := d.limiter.Wait(ctx); err != nil {
		return err
	}
	return d.next.Fill(ctx, locator, value)
}

func (d *rateLimitedDriver) TypeText(ctx context.Context, locator, value string) error {
	if err := d.limiter.Wait(ctx); err != nil {
		return err
	}
	return d.next.TypeText(ctx, locator, value)
}

func (d *rateLimitedDriver) SelectOption(ctx context.Context, locator, value string) error {
	if err := d.limiter.Wait(ctx); err != nil {
		return err
	}
	return d.next.SelectOption(ctx, locator, value)
}

func (d *rateLimitedDriver) Check(ctx context.Context, locator string) error {
	if err := d.limiter.Wait(ctx); err != nil {
		return err
	}
	return d.next.Check(ctx, locator)
}

func (d *rateLimitedDriver) Uncheck(ctx context.Context, locator string) error {
	if err := d.limiter.Wait(ctx); err != nil {
		return err
	}
	return d.next.Uncheck(ctx, locator)
}

func (d *rateLimitedDriver) SetFiles(ctx context.Context, locator string, files []string) error {
	if err := d.limiter.Wait(ctx); err != nil {
		return err
	}
	return d.next.SetFiles(ctx, locator, files)
}

func (d *rateLimitedDriver) WaitVisible(ctx context.Context, locator string, timeout time.Duration) error {
	if err := d.limiter.Wait(ctx); err != nil {
		return err
	}
	return d.next.WaitVisible(ctx, locator, timeout)
}

func (d *rateLimitedDriver) IsVisible(ctx context.Context, locator string) (bool, error) {
	if err := d.limiter.Wait(ctx); err != nil {
		return false, err
	}
	return d.next.IsVisible(ctx, locator)
}

func (d *rateLimitedDriver) IsChecked(ctx context.Context, locator string) (bool, error) {
	if err := d.limiter.Wait(ctx); err != nil {
		return false, err
	}
	return d.next.IsChecked(ctx, locator)
}

func (d *rateLimitedDriver) InnerText(ctx context.Context, locator string) (string, error) {
	if err := d.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return d.next.InnerText(ctx, locator)
}

func (d *rateLimitedDriver) AllInnerTexts(ctx context.Context, locator string) ([]string, error) {
	if err := d.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return d.next.AllInnerTexts(ctx, locator)
}

func (d *rateLimitedDriver) InputValue(ctx context.Context, locator string) (string, error) {
	if err := d.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return d.next.InputValue(ctx, locator)
}

func (d *rateLimitedDriver) CurrentURL(ctx context.Context) (string, error) {
	if err := d.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return d.next.CurrentURL(ctx)
}
