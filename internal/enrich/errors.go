package enrich

import (
	"fmt"
)

// Error type tags recorded on failed results.
const (
	ErrTypeDependencyNotMet = "dependency_not_met"
	ErrTypeDataNotFound     = "data_not_found"
	ErrTypeModuleError      = "module_error"
	ErrTypeTimeout          = "timeout"
	ErrTypeCitationMissing  = "citation_missing"
	ErrTypeCitationExpired  = "citation_expired"
	ErrTypeCancelled        = "cancelled"
)

// DependencyNotMetError is raised when a declared prerequisite is absent or
// did not succeed. The scheduler converts it to a skipped result.
type DependencyNotMetError struct {
	ModuleID string
	Missing  string
}

func (e *DependencyNotMetError) Error() string {
	return fmt.Sprintf("%s: dependency %s not met", e.ModuleID, e.Missing)
}

// DataNotFoundError is benign: the upstream has no data for this domain.
// Modules catching it emit a degraded but still cited result.
type DataNotFoundError struct {
	ModuleID string
	Reason   string
}

func (e *DataNotFoundError) Error() string {
	return fmt.Sprintf("%s: data not found: %s", e.ModuleID, e.Reason)
}

// CitationError marks a result violating the citation mandate. Kind is one
// of ErrTypeCitationMissing or ErrTypeCitationExpired.
type CitationError struct {
	ModuleID string
	Kind     string
	Detail   string
}

func (e *CitationError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.ModuleID, e.Kind, e.Detail)
}

// ModuleError is a hard module failure.
type ModuleError struct {
	ModuleID string
	Cause    error
}

func (e *ModuleError) Error() string {
	return fmt.Sprintf("%s: %v", e.ModuleID, e.Cause)
}

func (e *ModuleError) Unwrap() error { return e.Cause }
