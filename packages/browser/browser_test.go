package browser

import (
	"errors"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSupported(t *testing.T) {
	assert.True(t, Supported("chromium"))
	assert.True(t, Supported(" Chrome "))
	assert.True(t, Supported("msedge"))
	assert.False(t, Supported("firefox"))
	assert.False(t, Supported("webkit"))
	assert.False(t, Supported(""))
}

func TestOptionsFor(t *testing.T) {
	opts, err := OptionsFor("Chromium", "headed")
	require.NoError(t, err)
	assert.Equal(t, "chromium", opts.Browser)
	assert.False(t, opts.Headless)

	opts, err = OptionsFor("chromium", "")
	require.NoError(t, err)
	assert.True(t, opts.Headless)

	_, err = OptionsFor("webkit", "headed")
	assert.True(t, errors.Is(err, ErrUnsupportedBrowser))
}

func TestOptionsFor_BrandedExecutables(t *testing.T) {
	installed := map[string]string{
		"google-chrome-stable": "/usr/bin/google-chrome-stable",
		"microsoft-edge":       "/usr/bin/microsoft-edge",
	}
	old := lookPath
	lookPath = func(file string) (string, error) {
		if path, ok := installed[file]; ok {
			return path, nil
		}
		return "", exec.ErrNotFound
	}
	t.Cleanup(func() { lookPath = old })

	opts, err := OptionsFor("chrome", "")
	require.NoError(t, err)
	assert.Equal(t, "/usr/bin/google-chrome-stable", opts.ExecPath)

	opts, err = OptionsFor("MSEdge", "")
	require.NoError(t, err)
	assert.Equal(t, "msedge", opts.Browser)
	assert.Equal(t, "/usr/bin/microsoft-edge", opts.ExecPath)

	opts, err = OptionsFor("chromium", "")
	require.NoError(t, err)
	assert.Empty(t, opts.ExecPath)

	delete(installed, "microsoft-edge")
	_, err = OptionsFor("msedge", "")
	assert.True(t, errors.Is(err, ErrBrowserNotFound))
}

func TestAllocatorOptions(t *testing.T) {
	base := len(allocatorOptions(Options{}))
	assert.Equal(t, base+2, len(allocatorOptions(Options{WindowWidth: 800, WindowHeight: 600, ExecPath: "/usr/bin/chromium"})))
}

func TestXPathLiteral(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Full time", "'Full time'"},
		{"Don't", `"Don't"`},
		{`It's "quoted"`, `concat('It', "'", 's "quoted"')`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, xpathLiteral(tt.in), tt.in)
	}
}
