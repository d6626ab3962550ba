package supervisor

import (
	"errors"
	"fmt"
)

// ConfigurationError reports a simulator setting that points nowhere. It names
// the offending path and the environment variable that fixes it.
type ConfigurationError struct {
	Setting string
	Path    string
	EnvVar  string
	Err     error
}

func (e *ConfigurationError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("simulation %s is not configured; set %s", e.Setting, e.EnvVar)
	}
	return fmt.Sprintf("simulation %s not found at %q; set %s to a valid path", e.Setting, e.Path, e.EnvVar)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// Hint returns operator guidance for the error.
func (e *ConfigurationError) Hint() string {
	return fmt.Sprintf("export %s=/path/to/%s", e.EnvVar, e.Setting)
}

// ErrExitedEarly is returned by Start when the process exits before the settle
// delay has elapsed.
var ErrExitedEarly = errors.New("simulation exited during startup")
