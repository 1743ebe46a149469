package interpreter

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// fakeDriver is an in-memory page. Every call is recorded as "<method> <args>".
type fakeDriver struct {
	mu      sync.Mutex
	calls   []string
	visible map[string]bool
	// never lists locators that never become visible.
	never   map[string]bool
	checked map[string]bool
	texts   map[string]string
	lists   map[string][]string
	values  map[string]string
	url     string
	onClick map[string]func(d *fakeDriver)
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		visible: map[string]bool{},
		never:   map[string]bool{},
		checked: map[string]bool{},
		texts:   map[string]string{},
		lists:   map[string][]string{},
		values:  map[string]string{},
		onClick: map[string]func(d *fakeDriver){},
	}
}

func (d *fakeDriver) record(format string, args ...any) {
	d.calls = append(d.calls, fmt.Sprintf(format, args...))
}

func (d *fakeDriver) Calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}

func (d *fakeDriver) count(prefix string) int {
	n := 0
	for _, c := range d.Calls() {
		if len(c) >= len(prefix) && c[:len(prefix)] == prefix {
			n++
		}
	}
	return n
}

func (d *fakeDriver) Navigate(_ context.Context, url string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("navigate %s", url)
	d.url = url
	return nil
}

func (d *fakeDriver) Click(_ context.Context, loc string) error {
	d.mu.Lock()
	d.record("click %s", loc)
	fn := d.onClick[loc]
	d.mu.Unlock()
	if fn != nil {
		fn(d)
	}
	return nil
}

func (d *fakeDriver) ClickNth(_ context.Context, loc string, index int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("clickNth %s %d", loc, index)
	return nil
}

func (d *fakeDriver) Fill(_ context.Context, loc, value string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("fill %s %s", loc, value)
	d.values[loc] = value
	return nil
}

func (d *fakeDriver) TypeText(_ context.Context, loc, value string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("type %s %s", loc, value)
	return nil
}

func (d *fakeDriver) SelectOption(_ context.Context, loc, value string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("select %s %s", loc, value)
	return nil
}

func (d *fakeDriver) Check(_ context.Context, loc string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("check %s", loc)
	d.checked[loc] = true
	return nil
}

func (d *fakeDriver) Uncheck(_ context.Context, loc string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("uncheck %s", loc)
	d.checked[loc] = false
	return nil
}

func (d *fakeDriver) SetFiles(_ context.Context, loc string, files []string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("setFiles %s %v", loc, files)
	return nil
}

func (d *fakeDriver) WaitVisible(_ context.Context, loc string, timeout time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("wait %s", loc)
	if d.never[loc] {
		return context.DeadlineExceeded
	}
	return nil
}

func (d *fakeDriver) IsVisible(_ context.Context, loc string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("isVisible %s", loc)
	return d.visible[loc], nil
}

func (d *fakeDriver) IsChecked(_ context.Context, loc string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("isChecked %s", loc)
	return d.checked[loc], nil
}

func (d *fakeDriver) InnerText(_ context.Context, loc string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("innerText %s", loc)
	return d.texts[loc], nil
}

func (d *fakeDriver) AllInnerTexts(_ context.Context, loc string) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("allInnerTexts %s", loc)
	return d.lists[loc], nil
}

func (d *fakeDriver) InputValue(_ context.Context, loc string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("inputValue %s", loc)
	return d.values[loc], nil
}

func (d *fakeDriver) CurrentURL(_ context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("url")
	return d.url, nil
}
