package rubric

import "fmt"

// ConfigError reports a missing or invalid rubric or a configuration entry
// that points at criteria the rubric does not define. It is always fatal.
type ConfigError struct {
	Source string
	Field  string
	Msg    string
	Err    error
}

func (e *ConfigError) Error() string {
	s := "config error"
	if e.Source != "" {
		s += " in " + e.Source
	}
	if e.Field != "" {
		s += fmt.Sprintf(" (%s)", e.Field)
	}
	s += ": " + e.Msg
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *ConfigError) Unwrap() error { return e.Err }
