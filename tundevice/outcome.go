package tundevice

import "fmt"

// OutcomeKind is the variant of an interface creation result.
type OutcomeKind int

const (
	// OutcomeSuccess means a device was established.
	OutcomeSuccess OutcomeKind = iota
	// OutcomePermissionDenied means the user or the OS refused the tunnel.
	OutcomePermissionDenied
	// OutcomeDeviceError means any other platform failure.
	OutcomeDeviceError
)

// String returns a human-readable representation of the kind.
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "Success"
	case OutcomePermissionDenied:
		return "PermissionDenied"
	case OutcomeDeviceError:
		return "DeviceError"
	default:
		return "Unknown"
	}
}

// Outcome is the result of CreateInterface. Device is set only for
// OutcomeSuccess, Err only for the failure kinds.
type Outcome struct {
	Kind   OutcomeKind
	Device *Device
	Err    error
}

// Retryable reports whether creating the interface again may succeed.
func (o Outcome) Retryable() bool {
	return o.Kind != OutcomePermissionDenied
}

func (o Outcome) String() string {
	if o.Err != nil {
		return fmt.Sprintf("%s: %v", o.Kind, o.Err)
	}
	return o.Kind.String()
}
