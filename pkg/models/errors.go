package models

import "fmt"

// ResolutionError reports that a host name could not be resolved.
// It is fatal to the invoking operation; it is never used for per-probe
// or per-port outcomes.
type ResolutionError struct {
	Host string
	Err  error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("cannot resolve host %q: %v", e.Host, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// DependencyUnavailableError reports that a required OS facility (such
// as the network I/O counter source) is missing or unreadable. Distinct
// from a zero-valued result, which is valid data.
type DependencyUnavailableError struct {
	Dependency string
	Err        error
}

func (e *DependencyUnavailableError) Error() string {
	return fmt.Sprintf("dependency unavailable: %s: %v", e.Dependency, e.Err)
}

func (e *DependencyUnavailableError) Unwrap() error { return e.Err }

// OperationUnavailableError reports that an operation cannot run at all
// on this host, for example because the neighbor-table lookup tool is
// absent or privileges are insufficient.
type OperationUnavailableError struct {
	Operation string
	Reason    string
}

func (e *OperationUnavailableError) Error() string {
	return fmt.Sprintf("%s unavailable: %s", e.Operation, e.Reason)
}
