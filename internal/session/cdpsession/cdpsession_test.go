// internal/session/cdpsession/cdpsession_test.go
package cdpsession

import (
	"strings"
	"testing"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/kwdriver/internal/config"
	"github.com/xkilldash9x/kwdriver/internal/fault"
	"github.com/xkilldash9x/kwdriver/internal/session"
)

func TestParseFlag(t *testing.T) {
	tests := []struct {
		arg       string
		wantName  string
		wantValue any
	}{
		{"--no-zygote", "no-zygote", true},
		{"no-zygote", "no-zygote", true},
		{"--proxy-server=http://127.0.0.1:8080", "proxy-server", "http://127.0.0.1:8080"},
		{"lang=de-DE", "lang", "de-DE"},
		{"--js-flags=--expose-gc", "js-flags", "--expose-gc"},
		{"  ", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.arg, func(t *testing.T) {
			name, value := parseFlag(tt.arg)
			assert.Equal(t, tt.wantName, name)
			assert.Equal(t, tt.wantValue, value)
		})
	}
}

func TestAllocatorOptions(t *testing.T) {
	base := len(Options{Headless: true}.allocatorOptions())

	assert.Len(t, Options{Headless: false}.allocatorOptions(), base+1, "headed mode overrides the default")
	assert.Len(t, Options{Headless: true, WindowWidth: 1280, WindowHeight: 720}.allocatorOptions(), base+1)
	assert.Len(t, Options{Headless: true, WindowWidth: 1280}.allocatorOptions(), base, "a partial window size is ignored")
	assert.Len(t, Options{Headless: true, Args: []string{"--a", "b=c", ""}}.allocatorOptions(), base+2)
}

func TestOptionsFrom(t *testing.T) {
	o := OptionsFrom(config.BrowserConfig{Headless: true, Args: []string{"--x"}, WindowWidth: 800, WindowHeight: 600, NavigationTimeout: time.Minute})
	assert.Equal(t, Options{Headless: true, Args: []string{"--x"}, WindowWidth: 800, WindowHeight: 600, NavigationTimeout: time.Minute}, o)
}

func TestFindScript(t *testing.T) {
	css := findScript("#login .btn", false)
	assert.Contains(t, css, `const root = this;`)
	assert.Contains(t, css, `"#login .btn"`)
	assert.Contains(t, css, `if (false)`)

	xp := findScript(`//a[text()="Next"]`, true)
	assert.Contains(t, xp, `const root = this.contentDocument;`)
	assert.Contains(t, xp, `"//a[text()=\"Next\"]"`, "locators are embedded as JSON string literals")
	assert.Contains(t, xp, `if (true)`)
}

func TestFrameUserScriptEscapes(t *testing.T) {
	js := frameUserScript(`return document.title + "'";`)
	assert.Contains(t, js, `"return document.title + \"'\";"`)
	assert.True(t, strings.HasPrefix(userScript("return 1"), "(async function() { return 1 })"))
}

func TestMapError(t *testing.T) {
	assert.NoError(t, mapError(nil))

	err := mapError(assert.AnError)
	assert.Same(t, assert.AnError, err)

	stale := mapError(errorString("Could not find object with given id (-32000)"))
	assert.ErrorIs(t, stale, session.ErrStaleElement)
	assert.True(t, fault.IsTransient(stale))

	noDialog := mapError(errorString("No dialog is showing (-32602)"))
	assert.ErrorIs(t, noDialog, session.ErrNoAlertOpen)
}

type errorString string

func (e errorString) Error() string { return string(e) }

func TestLocatorError(t *testing.T) {
	syntax := &runtime.ExceptionDetails{Text: "Uncaught", Exception: &runtime.RemoteObject{
		Description: "SyntaxError: Failed to execute 'querySelectorAll' on 'Document': '##' is not a valid selector.",
	}}
	err := locatorError("##", syntax)
	assert.True(t, fault.IsValidation(err))
	assert.Contains(t, err.Error(), `invalid locator "##"`)

	frameGone := &runtime.ExceptionDetails{Exception: &runtime.RemoteObject{Description: "Error: frame document is not accessible"}}
	assert.ErrorIs(t, locatorError("#x", frameGone), session.ErrNoSuchFrame)

	other := &runtime.ExceptionDetails{Text: "Uncaught ReferenceError"}
	err = locatorError("#x", other)
	assert.EqualError(t, err, "script error: Uncaught ReferenceError")
}

func TestPageWindows(t *testing.T) {
	infos := []*target.Info{
		{TargetID: "A", Type: "page", Title: "Shop", URL: "https://shop.test/"},
		{TargetID: "W", Type: "service_worker", URL: "https://shop.test/sw.js"},
		{TargetID: "B", Type: "page", Title: "Pay", URL: "https://pay.test/"},
	}
	windows := pageWindows(infos)
	require.Len(t, windows, 2)
	assert.Equal(t, session.Window{Handle: "A", Title: "Shop", URL: "https://shop.test/"}, windows[0])
	assert.True(t, hasWindow(windows, "B"))
	assert.False(t, hasWindow(windows, "W"))
}

func TestDecodeValue(t *testing.T) {
	var n int
	require.NoError(t, decodeValue(&runtime.RemoteObject{Value: []byte("3")}, &n))
	assert.Equal(t, 3, n)

	var untouched = 7
	require.NoError(t, decodeValue(&runtime.RemoteObject{}, &untouched), "undefined leaves the target alone")
	assert.Equal(t, 7, untouched)

	assert.Error(t, decodeValue(&runtime.RemoteObject{Value: []byte("{")}, &n))
}
