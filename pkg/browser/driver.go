// Package browser owns the lifecycle of one automated browser session.
//
// The Driver and Session interfaces are the only surface the rest of the
// program sees; everything Playwright-specific stays inside this package so a
// driver change, or a fake for tests, swaps in at one seam.
package browser

import (
	"context"
	"time"
)

// Element is an opaque handle to an element located on the current page.
// Elements are only valid with the Session that produced them.
type Element interface{}

// LaunchOptions configures a new browser session.
type LaunchOptions struct {
	// HideUI runs the browser without a visible window.
	HideUI bool

	// RaspberryPi applies the hardware-acceleration preference set for
	// low-power devices.
	RaspberryPi bool

	// DriverPath optionally overrides the automation driver location.
	DriverPath string
}

// Driver launches browser sessions.
type Driver interface {
	Launch(opts LaunchOptions) (Session, error)
}

// Session is a single running browser, exclusively owned by its creator.
//
// Every lookup takes a bounded timeout; an element that does not appear in
// time is a terminal error, never retried.
type Session interface {
	// Navigate loads a URL in the current page.
	Navigate(url string) error

	// Find waits for an element matching a CSS selector.
	Find(selector string, timeout time.Duration) (Element, error)

	// FindByID waits for the element with the given id attribute.
	FindByID(id string, timeout time.Duration) (Element, error)

	// FindByText waits for an element of the given tag ("*" for any) whose
	// trimmed visible text equals text exactly.
	FindByText(text, tag string, timeout time.Duration) (Element, error)

	// Click clicks an element through script, so it works even when the
	// element is overlapped by another.
	Click(el Element) error

	// Type fills a text input.
	Type(el Element, text string) error

	// UploadFile submits a local file through a file input element.
	UploadFile(el Element, path string) error

	// EnterFrame scopes subsequent lookups to an iframe element;
	// LeaveFrame restores page scope.
	EnterFrame(el Element) error
	LeaveFrame()

	// SetLocalStorage stores a key in the current page's localStorage.
	SetLocalStorage(key, value string) error

	// SwitchToNewWindow moves focus to a window opened after the session
	// started, waiting up to timeout for it to appear.
	SwitchToNewWindow(timeout time.Duration) error

	// WaitClosed blocks until the human closes the browser or ctx ends.
	WaitClosed(ctx context.Context) error

	// Close tears the browser down. Not called after a successful run; the
	// session is deliberately left open for the human.
	Close() error
}
