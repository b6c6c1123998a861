package repositories

import "fmt"

// CounterFailure classifies why a sequence could not advance.
type CounterFailure int

const (
	// CounterInvalid means the counter id or increment was rejected.
	CounterInvalid CounterFailure = iota + 1
	// CounterExhausted means the next value would pass the configured maximum.
	CounterExhausted
)

func (f CounterFailure) String() string {
	switch f {
	case CounterInvalid:
		return "invalid"
	case CounterExhausted:
		return "exhausted"
	}
	return "unknown"
}

// CounterError is returned by CounterRepository for failures callers can act on.
type CounterError struct {
	CounterID string
	Failure   CounterFailure
	Detail    string
}

func (e *CounterError) Error() string {
	if e.CounterID == "" {
		return fmt.Sprintf("counter %s: %s", e.Failure, e.Detail)
	}
	return fmt.Sprintf("counter %s %s: %s", e.CounterID, e.Failure, e.Detail)
}

// InvalidCounter reports a rejected counter request.
func InvalidCounter(counterID, detail string) *CounterError {
	return &CounterError{CounterID: counterID, Failure: CounterInvalid, Detail: detail}
}

// ExhaustedCounter reports a counter that reached max.
func ExhaustedCounter(counterID string, max int64) *CounterError {
	return &CounterError{CounterID: counterID, Failure: CounterExhausted, Detail: fmt.Sprintf("max value %d reached", max)}
}
