// internal/browser/integration_test.go
package browser_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/devicesweep/internal/browser"
	"github.com/xkilldash9x/devicesweep/internal/config"
	"github.com/xkilldash9x/devicesweep/internal/device"
	"github.com/xkilldash9x/devicesweep/internal/interactor"
)

const formPage = `<!doctype html>
<html><body>
<h1>Claim your passport</h1>
<form id="f" onsubmit="return check()">
  <label for="email">Email</label>
  <input id="email" type="email" placeholder="you@example.com" novalidate>
  <button type="submit">Submit</button>
</form>
<p id="msg"></p>
<script>
function check() {
  var v = document.getElementById('email').value;
  if (v.indexOf('@') < 0) {
    document.getElementById('msg').innerText = 'Please enter a valid email address';
    return false;
  }
  window.location.href = '/done';
  return false;
}
</script>
</body></html>`

func newFormServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, formPage)
	})
	mux.HandleFunc("/done", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body>Check your inbox</body></html>")
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// These tests launch a real Chromium and are opt-in.
func requireBrowser(t *testing.T) {
	t.Helper()
	if os.Getenv("DEVICESWEEP_BROWSER_TESTS") == "" {
		t.Skip("set DEVICESWEEP_BROWSER_TESTS=1 to run browser integration tests")
	}
}

func TestDrivers_FormFlow(t *testing.T) {
	requireBrowser(t)
	srv := newFormServer(t)

	for _, name := range []string{"chromedp", "playwright"} {
		t.Run(name, func(t *testing.T) {
			logger := zaptest.NewLogger(t)
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()

			driver, err := browser.NewDriver(config.BrowserConfig{Driver: name, Headless: true, Args: []string{"--no-sandbox"}}, logger)
			require.NoError(t, err)
			require.NoError(t, driver.Start(ctx))
			defer driver.Shutdown(context.Background())

			profile, err := device.Builtin("iPhone X")
			require.NoError(t, err)
			videoDir := ""
			if driver.SupportsVideo() {
				videoDir = t.TempDir()
			}
			sess, err := driver.NewDevice(ctx, profile, browser.DeviceOptions{VideoDir: videoDir, NavigationTimeout: 20 * time.Second, ActionTimeout: 5 * time.Second})
			require.NoError(t, err)

			in := interactor.New(sess, interactor.Options{CandidateTimeout: 2 * time.Second}, logger)
			require.NoError(t, sess.Navigate(ctx, srv.URL))

			// Both drivers match text case-insensitively on normalized whitespace.
			heading, err := in.ResolveAndAct(ctx, interactor.MustParseLocators("text=claim   YOUR passport"), interactor.ReadText(), 0)
			require.NoError(t, err)
			require.True(t, heading.Succeeded)
			assert.Equal(t, "Claim your passport", heading.Result)

			email := interactor.MustParseLocators("css=#missing", "label=email", "id=email")
			submit := interactor.MustParseLocators(`role=button[name="Submit"]`)
			errorPatterns := []*regexp.Regexp{regexp.MustCompile(`valid email`)}
			successPatterns := []*regexp.Regexp{regexp.MustCompile(`Check your inbox`)}

			res, err := in.ResolveAndAct(ctx, email, interactor.Fill("notanemail"), 0)
			require.NoError(t, err)
			require.True(t, res.Succeeded)
			assert.Equal(t, 1, res.Index, "the missing css candidate is skipped")

			origin, err := sess.URL(ctx)
			require.NoError(t, err)
			res, err = in.ResolveAndAct(ctx, submit, interactor.Click(), 0)
			require.NoError(t, err)
			require.True(t, res.Succeeded)

			out, err := in.WaitForOutcome(ctx, interactor.OutcomeOptions{
				OriginURL: origin, ErrorPatterns: errorPatterns, SuccessPatterns: successPatterns, Timeout: 6 * time.Second,
			})
			require.NoError(t, err)
			assert.Equal(t, interactor.KindErrorText, out.Kind)

			_, err = in.ResolveAndAct(ctx, email, interactor.Fill(fmt.Sprintf("qa+%d@example.com", time.Now().Unix())), 0)
			require.NoError(t, err)
			_, err = in.ResolveAndAct(ctx, submit, interactor.Click(), 0)
			require.NoError(t, err)

			out, err = in.WaitForOutcome(ctx, interactor.OutcomeOptions{OriginURL: origin, Timeout: 10 * time.Second})
			require.NoError(t, err)
			assert.Equal(t, interactor.KindRedirected, out.Kind)

			shot := filepath.Join(t.TempDir(), "shot.png")
			require.NoError(t, sess.Screenshot(ctx, shot))
			assert.FileExists(t, shot)

			artifacts, err := sess.Close(ctx)
			require.NoError(t, err)
			if driver.SupportsVideo() {
				assert.FileExists(t, artifacts.VideoPath)
			}
		})
	}
}
