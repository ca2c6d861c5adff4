package collaborate

import "fmt"

// LaunchError means the browser automation process failed to start, for
// example because the driver binary is missing.
type LaunchError struct {
	Err error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("failed to start browser session: %v", e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}

// NavigationError means an expected page element never appeared or the page
// structure was not the one the flow assumes. It names the step that failed
// and the element it was waiting for; the run is over, nothing is retried.
type NavigationError struct {
	Step   string
	Target string
	Err    error
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("%s: expected %s: %v", e.Step, e.Target, e.Err)
}

func (e *NavigationError) Unwrap() error {
	return e.Err
}
