package controller

// Outcome is what the caller observed while performing the permitted
// action. The controller never performs the network action itself; it only
// classifies the reported result.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeTimeout
	OutcomeServerError // 5xx-class signals
	OutcomeConnReset
	OutcomeBanned // explicit ban signal from the target
	OutcomeValidationFailed
	OutcomeMalformedResponse
	OutcomeCancelled // caller abandoned the request before sending
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeServerError:
		return "server_error"
	case OutcomeConnReset:
		return "conn_reset"
	case OutcomeBanned:
		return "banned"
	case OutcomeValidationFailed:
		return "validation_failed"
	case OutcomeMalformedResponse:
		return "malformed_response"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Class is the controller's verdict on an outcome.
type Class int

const (
	// ClassSuccess clears failure streaks.
	ClassSuccess Class = iota
	// ClassRetryable outcomes may be retried by the caller after backoff,
	// with a different identity.
	ClassRetryable
	// ClassFatal outcomes blacklist the identity used and must not be
	// retried with it.
	ClassFatal
	// ClassNeutral outcomes charge nothing to failure streaks.
	ClassNeutral
)

func (c Class) String() string {
	switch c {
	case ClassSuccess:
		return "success"
	case ClassRetryable:
		return "retryable"
	case ClassFatal:
		return "fatal"
	default:
		return "neutral"
	}
}

// Classify maps an outcome to its class. Outcomes the controller does not
// recognize are treated conservatively as retryable; the caller gets a
// second chance rather than a spurious blacklist.
func Classify(o Outcome) (Class, bool) {
	switch o {
	case OutcomeSuccess:
		return ClassSuccess, true
	case OutcomeTimeout, OutcomeServerError, OutcomeConnReset:
		return ClassRetryable, true
	case OutcomeBanned, OutcomeValidationFailed, OutcomeMalformedResponse:
		return ClassFatal, true
	case OutcomeCancelled:
		return ClassNeutral, true
	default:
		return ClassRetryable, false
	}
}
