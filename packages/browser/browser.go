// Package browser drives Chromium through the DevTools protocol with chromedp.
// Locators are handed to chromedp unchanged and matched with BySearch, so a
// locator may be a CSS selector, an XPath expression or plain text.
package browser

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// ErrUnsupportedBrowser is returned for browser names chromedp cannot drive.
var ErrUnsupportedBrowser = errors.New("unsupported browser")

// ErrBrowserNotFound is returned when no executable of a browser is installed.
var ErrBrowserNotFound = errors.New("browser executable not found")

// ViewModeHeaded shows the browser window.
const ViewModeHeaded = "headed"

// executables lists the candidates tried for each browser, in order. An
// empty list leaves the lookup to chromedp, which finds Chromium or Chrome.
var executables = map[string][]string{
	"chromium": nil,
	"chrome": {
		"google-chrome",
		"google-chrome-stable",
		"chrome",
		"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
		`C:\Program Files\Google\Chrome\Application\chrome.exe`,
	},
	"msedge": {
		"microsoft-edge",
		"microsoft-edge-stable",
		"msedge",
		"/Applications/Microsoft Edge.app/Contents/MacOS/Microsoft Edge",
		`C:\Program Files (x86)\Microsoft\Edge\Application\msedge.exe`,
	},
}

var lookPath = exec.LookPath

// Supported reports whether name is a Chromium-family browser.
func Supported(name string) bool {
	_, ok := executables[strings.ToLower(strings.TrimSpace(name))]
	return ok
}

// Options configures browser sessions.
type Options struct {
	Browser      string
	Headless     bool
	ExecPath     string
	WindowWidth  int
	WindowHeight int
}

// OptionsFor returns session options for a browser name and run view mode.
// chrome and msedge run their own installed executable.
func OptionsFor(name, viewMode string) (Options, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	candidates, ok := executables[name]
	if !ok {
		return Options{}, fmt.Errorf("%w: %s", ErrUnsupportedBrowser, name)
	}
	opts := Options{
		Browser:      name,
		Headless:     viewMode != ViewModeHeaded,
		WindowWidth:  1920,
		WindowHeight: 1080,
	}
	if len(candidates) == 0 {
		return opts, nil
	}
	for _, candidate := range candidates {
		if path, err := lookPath(candidate); err == nil {
			opts.ExecPath = path
			return opts, nil
		}
	}
	return Options{}, fmt.Errorf("%w: %s", ErrBrowserNotFound, name)
}

// Launcher opens one isolated browser per session.
type Launcher struct {
	opts Options
}

func NewLauncher(opts Options) *Launcher {
	return &Launcher{opts: opts}
}

// NewSession starts a browser and returns its first page.
func (l *Launcher) NewSession(ctx context.Context) (*Session, error) {
	return newSession(ctx, l.opts)
}
