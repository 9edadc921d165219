package grid

import "fmt"

// ConfigurationError reports misuse of the grid construction and
// configuration API. It is never recovered internally.
type ConfigurationError struct {
	Op  string
	Msg string
	Err error
}

func (e *ConfigurationError) Error() string {
	s := "grid: " + e.Op + ": " + e.Msg
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

func configError(op string, err error, format string, args ...interface{}) error {
	return &ConfigurationError{Op: op, Msg: fmt.Sprintf(format, args...), Err: err}
}
