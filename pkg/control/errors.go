package control

import "fmt"

// ConfigError reports invalid control configuration: malformed
// selectors, gain array length mismatches, empty input ranges.
type ConfigError struct {
	msg string
}

func (e *ConfigError) Error() string { return "control: " + e.msg }

func configErrorf(format string, args ...any) *ConfigError {
	return &ConfigError{msg: fmt.Sprintf(format, args...)}
}

// InvalidGainError reports a non-finite gain value or a non-positive
// step period. It is fatal to the control session.
type InvalidGainError struct {
	Gain  string
	Joint int
	Value float64
}

func (e *InvalidGainError) Error() string {
	return fmt.Sprintf("control: invalid %s for joint %d: %g", e.Gain, e.Joint, e.Value)
}
