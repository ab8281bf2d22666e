package message

import "strings"

// Status is the application-level outcome code carried on a response.
// Built-in values cover the common cases; any other string is treated
// as a caller-defined custom status. Names are always uppercase.
type Status string

const (
	StatusSuccess  Status = "SUCCESS"
	StatusError    Status = "ERROR"
	StatusTimeout  Status = "TIMEOUT"
	StatusNotFound Status = "NOT_FOUND"
	StatusInvalid  Status = "INVALID"
	StatusPending  Status = "PENDING"
)

// StatusFromString normalizes a status name. Unknown names become
// custom statuses rather than errors; an empty name maps to SUCCESS.
func StatusFromString(name string) Status {
	if name == "" {
		return StatusSuccess
	}
	return Status(strings.ToUpper(name))
}

func (s Status) IsSuccess() bool { return s == StatusSuccess }
func (s Status) IsError() bool   { return s == StatusError }
func (s Status) IsTimeout() bool { return s == StatusTimeout }

func (s Status) String() string { return string(s) }
