package collaborate

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openlms/collab-launcher/pkg/browser"
	"github.com/openlms/collab-launcher/pkg/config"
)

// fakeSession simulates the portal. Elements exist if their key is present;
// every interaction is recorded for assertions.
type fakeSession struct {
	ids       map[string]bool
	texts     map[string]bool
	selectors map[string]bool

	navigated    []string
	findTimeouts map[string]time.Duration
	typed        map[string]string
	clicked      []string
	storage      map[string]string
	uploads      map[string]string
	frames       []string
	leftFrame    int
	switched     bool
	waited       bool
	closed       bool
}

// newPortalSession returns a session where login succeeds and the given
// visible texts exist.
func newPortalSession(texts ...string) *fakeSession {
	s := &fakeSession{
		ids: map[string]bool{
			"user_id":               true,
			"password":              true,
			"entry-login":           true,
			"topframe.logout.label": true,
			"collabUltraLtiFrame":   true,
			"site-loading":          true,
		},
		texts:        map[string]bool{},
		selectors:    map[string]bool{},
		findTimeouts: map[string]time.Duration{},
		typed:        map[string]string{},
		storage:      map[string]string{},
		uploads:      map[string]string{},
	}
	for _, text := range texts {
		s.texts[text] = true
	}
	return s
}

func (s *fakeSession) Navigate(url string) error {
	s.navigated = append(s.navigated, url)
	return nil
}

func (s *fakeSession) Find(selector string, timeout time.Duration) (browser.Element, error) {
	s.findTimeouts["css:"+selector] = timeout
	if !s.selectors[selector] {
		return nil, fmt.Errorf("no element %q within %s", selector, timeout)
	}
	return "css:" + selector, nil
}

func (s *fakeSession) FindByID(id string, timeout time.Duration) (browser.Element, error) {
	s.findTimeouts["id:"+id] = timeout
	if !s.ids[id] {
		return nil, fmt.Errorf("no element with id %q within %s", id, timeout)
	}
	return "id:" + id, nil
}

func (s *fakeSession) FindByText(text, tag string, timeout time.Duration) (browser.Element, error) {
	s.findTimeouts["text:"+text] = timeout
	if !s.texts[text] {
		return nil, fmt.Errorf("no element with text %q within %s", text, timeout)
	}
	return "text:" + text, nil
}

func (s *fakeSession) Click(el browser.Element) error {
	s.clicked = append(s.clicked, el.(string))
	return nil
}

func (s *fakeSession) Type(el browser.Element, text string) error {
	s.typed[el.(string)] = text
	return nil
}

func (s *fakeSession) UploadFile(el browser.Element, path string) error {
	s.uploads[el.(string)] = path
	return nil
}

func (s *fakeSession) EnterFrame(el browser.Element) error {
	s.frames = append(s.frames, el.(string))
	return nil
}

func (s *fakeSession) LeaveFrame() {
	s.leftFrame++
}

func (s *fakeSession) SetLocalStorage(key, value string) error {
	s.storage[key] = value
	return nil
}

func (s *fakeSession) SwitchToNewWindow(timeout time.Duration) error {
	s.switched = true
	return nil
}

func (s *fakeSession) WaitClosed(ctx context.Context) error {
	s.waited = true
	return nil
}

func (s *fakeSession) Close() error {
	s.closed = true
	return nil
}

type fakeDriver struct {
	session   *fakeSession
	launchErr error
	opts      browser.LaunchOptions
	launched  bool
}

func (d *fakeDriver) Launch(opts browser.LaunchOptions) (browser.Session, error) {
	d.launched = true
	d.opts = opts
	if d.launchErr != nil {
		return nil, d.launchErr
	}
	return d.session, nil
}

func biologyClass() *config.Class {
	return &config.Class{
		Name:         "Biology",
		BaseURL:      "https://bb.example.edu",
		Username:     "u",
		Password:     "p",
		CourseID:     "_1_2",
		LaunchButton: "Bio 101",
	}
}

func TestRunReachesIdleHold(t *testing.T) {
	session := newPortalSession("Bio 101", "Join Course Room")
	driver := &fakeDriver{session: session}

	err := New(biologyClass(), driver, nil).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, session.navigated, 2)
	assert.Equal(t, "https://bb.example.edu", session.navigated[0])
	assert.Equal(t,
		"https://bb.example.edu/webapps/collab-ultra/tool/collabultra?course_id=_1_2",
		session.navigated[1])

	assert.Equal(t, "u", session.typed["id:user_id"])
	assert.Equal(t, "p", session.typed["id:password"])
	assert.Contains(t, session.clicked, "id:entry-login")

	assert.Equal(t, []string{"id:collabUltraLtiFrame"}, session.frames)
	assert.Equal(t, 1, session.leftFrame)
	assert.Contains(t, session.clicked, "text:Bio 101")
	assert.Contains(t, session.clicked, "text:Join Course Room")
	assert.True(t, session.switched)

	assert.Equal(t, "complete", session.storage["techcheck.initial-techcheck"])
	assert.Equal(t, "complete", session.storage["techcheck.status"])
	assert.Equal(t, "true", session.storage["ftue.announcement.introduction"])

	assert.True(t, session.waited, "flow must enter the idle hold")
	assert.False(t, session.closed, "browser must stay open after a successful run")
}

func TestRunMissingLaunchButton(t *testing.T) {
	session := newPortalSession("Join Course Room") // "Bio 101" never appears
	driver := &fakeDriver{session: session}

	err := New(biologyClass(), driver, nil).Run(context.Background())

	var navErr *NavigationError
	require.ErrorAs(t, err, &navErr)
	assert.Equal(t, "launch button", navErr.Step)
	assert.Contains(t, navErr.Target, "Bio 101")

	assert.True(t, session.closed, "browser must be torn down on failure")
	assert.False(t, session.waited)
}

func TestRunFailedSignIn(t *testing.T) {
	session := newPortalSession("Bio 101", "Join Course Room")
	delete(session.ids, "topframe.logout.label") // login never completes
	driver := &fakeDriver{session: session}

	err := New(biologyClass(), driver, nil).Run(context.Background())

	var navErr *NavigationError
	require.ErrorAs(t, err, &navErr)
	assert.Equal(t, "sign-in", navErr.Step)
	assert.Equal(t, "authenticated landing page", navErr.Target)
	assert.True(t, session.closed)
}

func TestRunDriverLaunchFailure(t *testing.T) {
	driver := &fakeDriver{launchErr: errors.New("driver binary not found")}

	err := New(biologyClass(), driver, nil).Run(context.Background())

	var launchErr *LaunchError
	require.ErrorAs(t, err, &launchErr)
	assert.Contains(t, launchErr.Error(), "driver binary not found")
}

func TestRunForwardsLaunchOptions(t *testing.T) {
	class := biologyClass()
	class.HideUI = true
	class.RaspberryPi = true
	class.DriverPath = "/opt/playwright"

	session := newPortalSession("Bio 101", "Join Course Room")
	driver := &fakeDriver{session: session}

	require.NoError(t, New(class, driver, nil).Run(context.Background()))

	assert.True(t, driver.opts.HideUI)
	assert.True(t, driver.opts.RaspberryPi)
	assert.Equal(t, "/opt/playwright", driver.opts.DriverPath)
}

func TestRunDismissesTechCheckPrompts(t *testing.T) {
	session := newPortalSession("Bio 101", "Join Course Room", "Yes - it's working")
	driver := &fakeDriver{session: session}

	require.NoError(t, New(biologyClass(), driver, nil).Run(context.Background()))

	dismissed := 0
	for _, click := range session.clicked {
		if click == "text:Yes - it's working" {
			dismissed++
		}
	}
	assert.Equal(t, 2, dismissed, "both the microphone and webcam prompts are confirmed")
}

func TestRunBoundsEveryLookup(t *testing.T) {
	session := newPortalSession("Bio 101", "Join Course Room")
	driver := &fakeDriver{session: session}

	require.NoError(t, New(biologyClass(), driver, nil).Run(context.Background()))

	assert.Equal(t, DefaultFindTimeout, session.findTimeouts["id:user_id"])
	assert.Equal(t, DefaultFindTimeout, session.findTimeouts["id:topframe.logout.label"])
	assert.Equal(t, DefaultFindTimeout, session.findTimeouts["text:Bio 101"])

	// Prompts that are allowed to be absent get the short bound so a session
	// without them cannot stall on every lookup.
	assert.Equal(t, dialogTimeout, session.findTimeouts["text:Yes - it's working"])
}

func TestRunUploadsProfilePicture(t *testing.T) {
	class := biologyClass()
	class.ProfilePicture = "/home/me/avatar.png"

	session := newPortalSession("Bio 101", "Join Course Room")
	session.selectors[`input[type="file"]`] = true
	driver := &fakeDriver{session: session}

	require.NoError(t, New(class, driver, nil).Run(context.Background()))

	assert.Equal(t, "/home/me/avatar.png", session.uploads[`css:input[type="file"]`])
}

func TestRunSkipsUploadWhenUnconfigured(t *testing.T) {
	session := newPortalSession("Bio 101", "Join Course Room")
	driver := &fakeDriver{session: session}

	require.NoError(t, New(biologyClass(), driver, nil).Run(context.Background()))

	assert.Empty(t, session.uploads)
}

func TestRunCancelledContextTearsDown(t *testing.T) {
	session := newPortalSession("Bio 101", "Join Course Room")
	driver := &fakeDriver{session: session}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := New(biologyClass(), driver, nil).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.True(t, session.closed)
}

func TestCourseURLEscapesCourseID(t *testing.T) {
	class := biologyClass()
	class.BaseURL = "https://bb.example.edu/"
	class.CourseID = "_1 2&x"

	launcher := New(class, &fakeDriver{}, nil)
	assert.Equal(t,
		"https://bb.example.edu/webapps/collab-ultra/tool/collabultra?course_id=_1+2%26x",
		launcher.courseURL())
}
