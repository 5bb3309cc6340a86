// internal/session/cdpsession/integration_test.go
package cdpsession

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/kwdriver/internal/execution"
	"github.com/xkilldash9x/kwdriver/internal/keywords"
	"github.com/xkilldash9x/kwdriver/internal/wait"
)

const pageHTML = `<!doctype html>
<html><head><title>Fixture</title></head>
<body>
  <input id="name" value="old">
  <label><input id="agree" type="checkbox"> agree</label>
  <select id="colour"><option>Red</option><option>Blue</option></select>
  <button id="late" style="display:none" onclick="document.getElementById('out').textContent='clicked'">Go</button>
  <p id="out"></p>
  <iframe id="inner" name="inner" src="/frame"></iframe>
  <script>setTimeout(() => { document.getElementById('late').style.display = 'inline'; }, 300);</script>
</body></html>`

const frameHTML = `<!doctype html><html><body><span id="deep">inside</span></body></html>`

// Set KWDRIVER_CHROME_TESTS=1 to run against a locally installed Chrome.
func newChrome(t *testing.T) *Session {
	t.Helper()
	if testing.Short() || os.Getenv("KWDRIVER_CHROME_TESTS") == "" {
		t.Skip("chrome integration tests disabled")
	}
	s, err := New(context.Background(), Options{Headless: true}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func fixtureServer(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte(pageHTML)) })
	mux.HandleFunc("/frame", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte(frameHTML)) })
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestChrome_Keywords(t *testing.T) {
	s := newChrome(t)
	srv := fixtureServer(t)
	logger := zaptest.NewLogger(t)
	rec := &execution.Recorder{}
	kw := keywords.New(keywords.Deps{
		Session:  s,
		Engine:   wait.NewEngine(logger, nil),
		Defaults: wait.Defaults{Timeout: 5 * time.Second, Interval: 100 * time.Millisecond},
		Executor: execution.NewExecutor(rec, logger),
		Logger:   logger,
	})
	ctx := context.Background()

	_, err := kw.Navigate(ctx, execution.Hard, srv.URL)
	require.NoError(t, err)
	ok, err := kw.VerifyTitle(ctx, execution.Hard, "Fixture")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = kw.Type(ctx, execution.Hard, "#name", "Ada")
	require.NoError(t, err)
	ok, err = kw.VerifyValue(ctx, execution.Hard, "#name", "Ada")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = kw.SetChecked(ctx, execution.Hard, "#agree", true)
	require.NoError(t, err)
	ok, err = kw.VerifySelected(ctx, execution.Hard, "#agree")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = kw.SelectByText(ctx, execution.Hard, "#colour", "Blue")
	require.NoError(t, err)
	ok, err = kw.VerifyValue(ctx, execution.Hard, "#colour", "Blue")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = kw.Click(ctx, execution.Hard, "#late")
	require.NoError(t, err, "the click waits for the button to be shown")
	ok, err = kw.VerifyText(ctx, execution.Hard, "#out", "clicked")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = kw.SwitchFrame(ctx, execution.Hard, "#inner")
	require.NoError(t, err)
	text, err := kw.GetText(ctx, execution.Hard, "//span[@id='deep']")
	require.NoError(t, err)
	assert.Equal(t, "inside", text.Value)
	assert.Equal(t, []string{"inner"}, s.Context().Frames)
	_, err = kw.SwitchDefaultContent(ctx, execution.Hard)
	require.NoError(t, err)

	// A click that opens a dialog blocks the input domain until the dialog closes, so the
	// dialog is opened from a timer instead.
	_, err = kw.ExecuteScript(ctx, execution.Hard,
		"setTimeout(() => { document.getElementById('out').textContent = confirm('Sure?') ? 'yes' : 'no'; }, 50); return null;")
	require.NoError(t, err)
	msg, err := kw.AlertText(ctx, execution.Hard)
	require.NoError(t, err)
	assert.Equal(t, "Sure?", msg.Value)
	_, err = kw.DismissAlert(ctx, execution.Hard)
	require.NoError(t, err)
	ok, err = kw.VerifyText(ctx, execution.Hard, "#out", "no")
	require.NoError(t, err)
	assert.True(t, ok)

	out, err := kw.ExecuteScript(ctx, execution.Hard, "return document.querySelectorAll('button').length")
	require.NoError(t, err)
	assert.EqualValues(t, 1, out.Value)

	ok, err = kw.VerifyVisible(ctx, execution.Soft, "#missing", wait.Timeout(300*time.Millisecond))
	require.NoError(t, err)
	assert.False(t, ok)
}
