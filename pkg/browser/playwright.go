package browser

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"
)

// defaultTimeout bounds driver operations that take no explicit timeout.
const defaultTimeout = 30 * time.Second

// windowPollInterval is how often the session checks for window changes while
// switching focus or holding idle.
const windowPollInterval = 500 * time.Millisecond

// PlaywrightDriver launches Firefox sessions through Playwright.
type PlaywrightDriver struct{}

// NewPlaywrightDriver returns a driver backed by Playwright-managed Firefox.
func NewPlaywrightDriver() *PlaywrightDriver {
	return &PlaywrightDriver{}
}

// Launch installs the driver if needed, starts Firefox with the configured
// preferences and returns a ready session with one open page.
func (d *PlaywrightDriver) Launch(opts LaunchOptions) (Session, error) {
	runOpts := &playwright.RunOptions{
		Browsers: []string{"firefox"},
		Verbose:  false,
		Stdout:   io.Discard,
		Stderr:   io.Discard,
	}
	if opts.DriverPath != "" {
		runOpts.DriverDirectory = opts.DriverPath
	}

	if err := playwright.Install(runOpts); err != nil {
		return nil, fmt.Errorf("failed to install automation driver: %w", err)
	}

	pw, err := playwright.Run(runOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to start automation driver: %w", err)
	}

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless:         playwright.Bool(opts.HideUI),
		FirefoxUserPrefs: firefoxPrefs(opts.RaspberryPi),
	}
	b, err := pw.Firefox.Launch(launchOpts)
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	bctx, err := b.NewContext()
	if err != nil {
		b.Close()
		pw.Stop()
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}

	page, err := bctx.NewPage()
	if err != nil {
		bctx.Close()
		b.Close()
		pw.Stop()
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	page.SetDefaultTimeout(float64(defaultTimeout.Milliseconds()))

	return &playwrightSession{
		pw:        pw,
		browser:   b,
		context:   bctx,
		page:      page,
		openPages: len(bctx.Pages()),
	}, nil
}

// firefoxPrefs builds the Firefox preference map for a session. Fake media
// devices are always enabled so the meeting page never blocks on a real
// camera/microphone permission prompt. The Raspberry Pi set forces hardware
// acceleration and disables WebM, since the Pi can only hardware-decode h.264.
func firefoxPrefs(raspberryPi bool) map[string]interface{} {
	prefs := map[string]interface{}{
		"media.navigator.streams.fake": true,
	}

	if raspberryPi {
		prefs["layers.acceleration.force-enabled"] = true
		prefs["media.ffmpeg.vaapi.enabled"] = true
		prefs["webgl.force-enabled"] = true
		prefs["media.mediasource.webm.enabled"] = false
		prefs["media.webm.enabled"] = false
	}

	return prefs
}

type playwrightSession struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	page    playwright.Page

	// frame is non-nil while lookups are scoped to an iframe.
	frame playwright.Frame

	// openPages is the page count last accounted for. Captured at session
	// creation, before any click can spawn a window, so a popup that
	// registers before SwitchToNewWindow runs still counts as new.
	openPages int
}

func (s *playwrightSession) Navigate(url string) error {
	if _, err := s.page.Goto(url); err != nil {
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	return nil
}

// waitFor resolves a selector in the current scope, page or entered frame.
func (s *playwrightSession) waitFor(selector string, timeout time.Duration) (playwright.ElementHandle, error) {
	ms := float64(timeout.Milliseconds())

	if s.frame != nil {
		return s.frame.WaitForSelector(selector, playwright.FrameWaitForSelectorOptions{
			Timeout: playwright.Float(ms),
		})
	}
	return s.page.WaitForSelector(selector, playwright.PageWaitForSelectorOptions{
		Timeout: playwright.Float(ms),
	})
}

func (s *playwrightSession) Find(selector string, timeout time.Duration) (Element, error) {
	el, err := s.waitFor(selector, timeout)
	if err != nil {
		return nil, fmt.Errorf("element %q did not appear: %w", selector, err)
	}
	return el, nil
}

func (s *playwrightSession) FindByID(id string, timeout time.Duration) (Element, error) {
	// Portal ids contain dots, so a #id selector would misparse.
	return s.Find(fmt.Sprintf(`[id=%q]`, id), timeout)
}

func (s *playwrightSession) FindByText(text, tag string, timeout time.Duration) (Element, error) {
	if tag == "" {
		tag = "*"
	}
	selector := fmt.Sprintf(`xpath=//%s[normalize-space(text())=%s]`, tag, xpathLiteral(text))
	return s.Find(selector, timeout)
}

// xpathLiteral quotes s as an XPath 1.0 string literal. XPath has no escape
// sequences, so text mixing both quote characters is split into a concat().
func xpathLiteral(s string) string {
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}

	parts := strings.Split(s, `"`)
	for i, part := range parts {
		parts[i] = `"` + part + `"`
	}
	return "concat(" + strings.Join(parts, `, '"', `) + ")"
}

func asHandle(el Element) (playwright.ElementHandle, error) {
	handle, ok := el.(playwright.ElementHandle)
	if !ok {
		return nil, fmt.Errorf("element %T does not belong to this session", el)
	}
	return handle, nil
}

// Click dispatches the click from script rather than through a synthesized
// mouse event, so overlapped or partially obscured elements still respond.
func (s *playwrightSession) Click(el Element) error {
	handle, err := asHandle(el)
	if err != nil {
		return err
	}
	if _, err := handle.Evaluate("el => el.click()"); err != nil {
		return fmt.Errorf("click failed: %w", err)
	}
	return nil
}

func (s *playwrightSession) Type(el Element, text string) error {
	handle, err := asHandle(el)
	if err != nil {
		return err
	}
	if err := handle.Fill(text); err != nil {
		return fmt.Errorf("fill failed: %w", err)
	}
	return nil
}

func (s *playwrightSession) UploadFile(el Element, path string) error {
	handle, err := asHandle(el)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("cannot read upload file: %w", err)
	}

	file := playwright.InputFile{
		Name:   filepath.Base(path),
		Buffer: data,
	}
	if err := handle.SetInputFiles([]playwright.InputFile{file}); err != nil {
		return fmt.Errorf("upload failed: %w", err)
	}
	return nil
}

func (s *playwrightSession) EnterFrame(el Element) error {
	handle, err := asHandle(el)
	if err != nil {
		return err
	}
	frame, err := handle.ContentFrame()
	if err != nil {
		return fmt.Errorf("element has no content frame: %w", err)
	}
	s.frame = frame
	return nil
}

func (s *playwrightSession) LeaveFrame() {
	s.frame = nil
}

func (s *playwrightSession) SetLocalStorage(key, value string) error {
	_, err := s.page.Evaluate(
		"([key, value]) => window.localStorage.setItem(key, value)",
		[]string{key, value},
	)
	if err != nil {
		return fmt.Errorf("localStorage set failed: %w", err)
	}
	return nil
}

// waitForPageCount polls count until it exceeds known or timeout passes.
// A count already above known on the first poll succeeds immediately, so a
// window that opened before the wait began is still picked up.
func waitForPageCount(count func() int, known int, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)

	for {
		if count() > known {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("no new window appeared within %s", timeout)
		}
		time.Sleep(windowPollInterval)
	}
}

// SwitchToNewWindow waits for a page beyond the ones open when the session was
// created and makes the newest one the session's active page. The baseline is
// not re-read here: the popup may already have registered between the click
// that spawned it and this call.
func (s *playwrightSession) SwitchToNewWindow(timeout time.Duration) error {
	pageCount := func() int { return len(s.context.Pages()) }
	if err := waitForPageCount(pageCount, s.openPages, timeout); err != nil {
		return err
	}

	pages := s.context.Pages()
	s.frame = nil
	s.page = pages[len(pages)-1]
	s.openPages = len(pages)
	s.page.SetDefaultTimeout(float64(defaultTimeout.Milliseconds()))
	if err := s.page.BringToFront(); err != nil {
		return fmt.Errorf("cannot focus new window: %w", err)
	}
	return nil
}

// WaitClosed blocks until every window is gone or the browser disconnects.
// Cancelling ctx returns without touching the browser, leaving it running.
func (s *playwrightSession) WaitClosed(ctx context.Context) error {
	ticker := time.NewTicker(windowPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if !s.browser.IsConnected() || len(s.context.Pages()) == 0 {
				return nil
			}
		}
	}
}

// Close tears down the page, context, browser and driver in order, continuing
// past individual failures so a partial teardown still releases the rest.
func (s *playwrightSession) Close() error {
	_ = s.page.Close()
	_ = s.context.Close()
	err := s.browser.Close()

	if stopErr := s.pw.Stop(); stopErr != nil && err == nil {
		err = stopErr
	}
	return err
}
