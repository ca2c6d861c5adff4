// Package collaborate drives one end-to-end launch of a Blackboard
// Collaborate Ultra session: sign in, open the course page, click the
// configured session, then leave the browser to the human.
package collaborate

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/openlms/collab-launcher/pkg/browser"
	"github.com/openlms/collab-launcher/pkg/config"
	"github.com/openlms/collab-launcher/pkg/logging"
)

// DefaultFindTimeout bounds every element lookup in the flow.
const DefaultFindTimeout = 30 * time.Second

// dialogTimeout bounds lookups for prompts that are allowed to be absent.
// Kept short so sessions without the prompts do not stall on every one.
const dialogTimeout = 5 * time.Second

// Element ids and labels of the Blackboard (Classic) portal and the
// Collaborate session page. These are the flow's only structural assumptions
// about the site.
const (
	usernameFieldID   = "user_id"
	passwordFieldID   = "password"
	loginButtonID     = "entry-login"
	logoutControlID   = "topframe.logout.label"
	collaborateFrame  = "collabUltraLtiFrame"
	joinRoomLabel     = "Join Course Room"
	loadingMarkerID   = "site-loading"
	avatarInputSelect = `input[type="file"]`
)

// localStorage flags that skip the Collaborate first-run screens.
var setupFlags = map[string]string{
	"techcheck.initial-techcheck":    "complete",
	"techcheck.status":               "complete",
	"ftue.announcement.introduction": "true",
}

// techCheckDialogs are the microphone and webcam prompts some sessions show
// before joining. Each is dismissed by clicking its confirmation control;
// absence is tolerated.
var techCheckDialogs = []struct {
	name    string
	confirm string
}{
	{name: "microphone check", confirm: "Yes - it's working"},
	{name: "webcam check", confirm: "Yes - it's working"},
}

// Launcher runs the automation flow for one class.
type Launcher struct {
	class       *config.Class
	driver      browser.Driver
	log         *logging.Logger
	findTimeout time.Duration
}

// New builds a Launcher for the given class. A nil log discards output.
func New(class *config.Class, driver browser.Driver, log *logging.Logger) *Launcher {
	if log == nil {
		log = logging.Nop()
	}
	return &Launcher{
		class:       class,
		driver:      driver,
		log:         log,
		findTimeout: DefaultFindTimeout,
	}
}

// Run performs the whole launch. On success it blocks in the idle hold until
// the human closes the browser or ctx ends, and the browser is left running.
// On any earlier failure the browser is torn down and the error says which
// step broke and what it was waiting for.
func (l *Launcher) Run(ctx context.Context) error {
	l.log.Infof("launching session for class %s", l.class.Name)

	session, err := l.driver.Launch(browser.LaunchOptions{
		HideUI:      l.class.HideUI,
		RaspberryPi: l.class.RaspberryPi,
		DriverPath:  l.class.DriverPath,
	})
	if err != nil {
		return &LaunchError{Err: err}
	}

	idle := false
	defer func() {
		if !idle {
			if closeErr := session.Close(); closeErr != nil {
				l.log.Warnf("teardown after failure: %v", closeErr)
			}
		}
	}()

	steps := []func(browser.Session) error{
		l.signIn,
		l.openCourseRoom,
		l.configureSession,
		l.uploadProfilePicture,
	}
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := step(session); err != nil {
			return err
		}
	}

	idle = true
	l.log.Infof("session ready, holding until the browser closes")
	if err := session.WaitClosed(ctx); err != nil {
		// Reaching the hold is success; an interrupted hold only means the
		// human took over, so it is logged, never surfaced.
		l.log.Infof("idle hold ended: %v", err)
	}
	return nil
}

// signIn logs into the portal and waits for the authenticated landing page.
func (l *Launcher) signIn(s browser.Session) error {
	const step = "sign-in"

	l.log.Infof("signing in to %s as %s", l.class.BaseURL, l.class.Username)

	if err := s.Navigate(l.class.BaseURL); err != nil {
		return &NavigationError{Step: step, Target: "login page", Err: err}
	}

	userField, err := s.FindByID(usernameFieldID, l.findTimeout)
	if err != nil {
		return &NavigationError{Step: step, Target: "username field", Err: err}
	}
	if err := s.Type(userField, l.class.Username); err != nil {
		return &NavigationError{Step: step, Target: "username field", Err: err}
	}

	passField, err := s.FindByID(passwordFieldID, l.findTimeout)
	if err != nil {
		return &NavigationError{Step: step, Target: "password field", Err: err}
	}
	if err := s.Type(passField, l.class.Password); err != nil {
		return &NavigationError{Step: step, Target: "password field", Err: err}
	}

	loginButton, err := s.FindByID(loginButtonID, l.findTimeout)
	if err != nil {
		return &NavigationError{Step: step, Target: "login button", Err: err}
	}
	if err := s.Click(loginButton); err != nil {
		return &NavigationError{Step: step, Target: "login button", Err: err}
	}

	// The logout control only renders once authentication has succeeded.
	if _, err := s.FindByID(logoutControlID, l.findTimeout); err != nil {
		return &NavigationError{Step: step, Target: "authenticated landing page", Err: err}
	}
	return nil
}

// courseURL builds the Collaborate tool address for the configured course.
func (l *Launcher) courseURL() string {
	return fmt.Sprintf("%s/webapps/collab-ultra/tool/collabultra?course_id=%s",
		strings.TrimRight(l.class.BaseURL, "/"), url.QueryEscape(l.class.CourseID))
}

// openCourseRoom opens the course's Collaborate page, clicks the configured
// session inside the LTI frame and moves focus to the window it opens.
func (l *Launcher) openCourseRoom(s browser.Session) error {
	const step = "course page"

	target := l.courseURL()
	l.log.Infof("opening course page %s", target)

	if err := s.Navigate(target); err != nil {
		return &NavigationError{Step: step, Target: "course page", Err: err}
	}

	frame, err := s.FindByID(collaborateFrame, l.findTimeout)
	if err != nil {
		return &NavigationError{Step: step, Target: "Collaborate frame", Err: err}
	}
	if err := s.EnterFrame(frame); err != nil {
		return &NavigationError{Step: step, Target: "Collaborate frame", Err: err}
	}
	defer s.LeaveFrame()

	launchButton, err := s.FindByText(l.class.LaunchButton, "*", l.findTimeout)
	if err != nil {
		return &NavigationError{
			Step:   "launch button",
			Target: fmt.Sprintf("element with text %q", l.class.LaunchButton),
			Err:    err,
		}
	}
	if err := s.Click(launchButton); err != nil {
		return &NavigationError{Step: "launch button", Target: l.class.LaunchButton, Err: err}
	}

	joinButton, err := s.FindByText(joinRoomLabel, "*", l.findTimeout)
	if err != nil {
		return &NavigationError{
			Step:   "launch button",
			Target: fmt.Sprintf("element with text %q", joinRoomLabel),
			Err:    err,
		}
	}
	if err := s.Click(joinButton); err != nil {
		return &NavigationError{Step: "launch button", Target: joinRoomLabel, Err: err}
	}

	if err := s.SwitchToNewWindow(l.findTimeout); err != nil {
		return &NavigationError{Step: "switch window", Target: "session window", Err: err}
	}
	return nil
}

// configureSession skips the Collaborate first-run screens and dismisses the
// microphone/webcam prompts when they show up. A missing prompt may mean it
// was already dismissed or that the page changed shape, so each absence is
// logged rather than silently ignored.
func (l *Launcher) configureSession(s browser.Session) error {
	const step = "session setup"

	if _, err := s.FindByID(loadingMarkerID, l.findTimeout); err != nil {
		return &NavigationError{Step: step, Target: "session page", Err: err}
	}

	for key, value := range setupFlags {
		if err := s.SetLocalStorage(key, value); err != nil {
			return &NavigationError{Step: step, Target: "session page storage", Err: err}
		}
	}

	for _, dialog := range techCheckDialogs {
		confirm, err := s.FindByText(dialog.confirm, "*", dialogTimeout)
		if err != nil {
			l.log.Debugf("%s prompt not present, continuing", dialog.name)
			continue
		}
		if err := s.Click(confirm); err != nil {
			return &NavigationError{Step: step, Target: dialog.name + " prompt", Err: err}
		}
		l.log.Infof("dismissed %s prompt", dialog.name)
	}
	return nil
}

// uploadProfilePicture submits the configured avatar, when there is one.
func (l *Launcher) uploadProfilePicture(s browser.Session) error {
	if l.class.ProfilePicture == "" {
		return nil
	}
	const step = "profile picture"

	input, err := s.Find(avatarInputSelect, l.findTimeout)
	if err != nil {
		return &NavigationError{Step: step, Target: "avatar upload input", Err: err}
	}
	if err := s.UploadFile(input, l.class.ProfilePicture); err != nil {
		return &NavigationError{Step: step, Target: "avatar upload input", Err: err}
	}

	l.log.Infof("uploaded profile picture %s", l.class.ProfilePicture)
	return nil
}
