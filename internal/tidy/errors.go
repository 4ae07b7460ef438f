package tidy

import "fmt"

// ConfigError is a failure the user can fix through configuration, such as
// a missing executable or a document outside any workspace.
type ConfigError struct {
	Msg string
	Err error
}

func (e *ConfigError) Error() string {
	return e.Msg
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// InternalError is any other launch or stream failure.
type InternalError struct {
	Op  string
	Err error
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *InternalError) Unwrap() error {
	return e.Err
}

// StartError is returned by a Runner when the process could not be launched.
type StartError struct {
	Path string
	Err  error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("start %s: %v", e.Path, e.Err)
}

func (e *StartError) Unwrap() error {
	return e.Err
}

func notFoundError(configured string, err error) *ConfigError {
	msg := fmt.Sprintf("perltidy executable not found: %q", configured)
	if configured == DefaultExecutable {
		msg += ". Install Perl::Tidy (for example \"cpanm Perl::Tidy\") or set " +
			"perltidy-more.executable to its path"
	}
	return &ConfigError{Msg: msg, Err: err}
}
