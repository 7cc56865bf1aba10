// Package errdefs defines the error taxonomy shared by the provisioning and
// scheduling code.
//
// Errors are tagged with a Kind at the point where the failure is understood
// and wrapped with fmt.Errorf("...: %w") on their way up. The CLI and the API
// server inspect the kind to pick a remediation message; nothing below them
// swallows errors based on their kind.
package errdefs

import (
	"errors"
	"fmt"
)

// Kind classifies an error.
type Kind int

const (
	// KindUnknown is the zero value. Errors of this kind are plain failures.
	KindUnknown Kind = iota
	// KindConfig is a rejected input, detected before any external call.
	KindConfig
	// KindProvider is a failed or refused cloud provider call.
	KindProvider
	// KindTimeout is a convergence wait that ran out of time.
	KindTimeout
	// KindInstanceState is an instance that reached a terminal state mid-launch.
	KindInstanceState
	// KindNoActiveCluster means no cluster is recorded locally.
	KindNoActiveCluster
	// KindConflict is a second background task while one is running.
	KindConflict
	// KindPartial is a provisioning failure after cloud resources exist.
	KindPartial
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "configuration"
	case KindProvider:
		return "provider"
	case KindTimeout:
		return "timeout"
	case KindInstanceState:
		return "instance state"
	case KindNoActiveCluster:
		return "no active cluster"
	case KindConflict:
		return "conflict"
	case KindPartial:
		return "partial cluster"
	default:
		return "unknown"
	}
}

// Error is a tagged error.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New tags err with kind. A nil err yields nil.
func New(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Configf returns a configuration error.
func Configf(format string, args ...any) error {
	return &Error{Kind: KindConfig, Err: fmt.Errorf(format, args...)}
}

// Provider tags a provider failure.
func Provider(op string, err error) error {
	return New(KindProvider, op, err)
}

// Timeoutf returns a timeout error.
func Timeoutf(format string, args ...any) error {
	return &Error{Kind: KindTimeout, Err: fmt.Errorf(format, args...)}
}

// InstanceStatef returns an error for an instance stuck in a terminal state.
func InstanceStatef(format string, args ...any) error {
	return &Error{Kind: KindInstanceState, Err: fmt.Errorf(format, args...)}
}

// Conflictf returns a conflict error.
func Conflictf(format string, args ...any) error {
	return &Error{Kind: KindConflict, Err: fmt.Errorf(format, args...)}
}

// Partial marks err as having left cluster partially provisioned.
func Partial(cluster string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindPartial, Op: fmt.Sprintf("cluster %s is partially provisioned", cluster), Err: err}
}

// ErrNoActiveCluster is returned by every operation that needs a target
// cluster when none is recorded locally.
var ErrNoActiveCluster = &Error{Kind: KindNoActiveCluster, Err: errors.New("no active cluster")}

// KindOf returns the kind of the outermost tagged error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func IsConfig(err error) bool          { return hasKind(err, KindConfig) }
func IsProvider(err error) bool        { return hasKind(err, KindProvider) }
func IsTimeout(err error) bool         { return hasKind(err, KindTimeout) }
func IsInstanceState(err error) bool   { return hasKind(err, KindInstanceState) }
func IsNoActiveCluster(err error) bool { return hasKind(err, KindNoActiveCluster) }
func IsConflict(err error) bool        { return hasKind(err, KindConflict) }
func IsPartial(err error) bool         { return hasKind(err, KindPartial) }

// hasKind walks the whole chain, so an inner tag survives outer wrapping by
// another tagged error.
func hasKind(err error, kind Kind) bool {
	for err != nil {
		if e, ok := err.(*Error); ok && e.Kind == kind {
			return true
		}
		if joined, ok := err.(interface{ Unwrap() []error }); ok {
			for _, inner := range joined.Unwrap() {
				if hasKind(inner, kind) {
					return true
				}
			}
			return false
		}
		err = errors.Unwrap(err)
	}
	return false
}

// Remediation returns the instruction shown to a user after err.
func Remediation(err error) string {
	switch {
	case err == nil:
		return ""
	case IsNoActiveCluster(err):
		return "No cluster is active. Create one with 'clusterous create' or select one with 'clusterous workon'."
	case IsPartial(err):
		return "Some cluster resources were created. Remove them with 'clusterous destroy' before trying again."
	case IsConfig(err):
		return "Fix the configuration and try again. No resources were changed."
	case IsConflict(err):
		return "Another operation is in progress. Wait for it to finish and check 'clusterous status'."
	case IsInstanceState(err), IsTimeout(err), IsProvider(err):
		return "The cluster may be partially provisioned. Inspect it with 'clusterous status' or remove it with 'clusterous destroy'."
	default:
		return ""
	}
}
