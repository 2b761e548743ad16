package citation

import (
	"fmt"
)

// SourcedValue pairs a value with the citation that produced it.
// Construction without a citation is a programming error, rejected here.
type SourcedValue[T any] struct {
	Value     T               `json:"value"`
	Citation  *SourceCitation `json:"citation"`
	FieldName string          `json:"field_name,omitempty"`
	Unit      string          `json:"unit,omitempty"`
}

// NewSourced wraps a value with its citation.
func NewSourced[T any](value T, c *SourceCitation) (*SourcedValue[T], error) {
	if c == nil {
		return nil, fmt.Errorf("sourced value requires a citation")
	}
	return &SourcedValue[T]{Value: value, Citation: c}, nil
}

// IsValid reports whether the backing citation has not expired.
func (sv *SourcedValue[T]) IsValid() bool {
	return IsValid(sv.Citation)
}

// MultiSourcedValue carries a value derived from several sources: one primary
// citation plus supporting citations and the aggregation method used.
type MultiSourcedValue[T any] struct {
	Value              T                 `json:"value"`
	PrimaryCitation    *SourceCitation   `json:"primary_citation"`
	SupportingCitations []*SourceCitation `json:"supporting_citations,omitempty"`
	AggregationMethod  string            `json:"aggregation_method,omitempty"`
}

// NewMultiSourced wraps an aggregated value with its citation set.
func NewMultiSourced[T any](value T, primary *SourceCitation, supporting []*SourceCitation, method string) (*MultiSourcedValue[T], error) {
	if primary == nil {
		return nil, fmt.Errorf("multi-sourced value requires a primary citation")
	}
	return &MultiSourcedValue[T]{
		Value:               value,
		PrimaryCitation:     primary,
		SupportingCitations: supporting,
		AggregationMethod:   method,
	}, nil
}

// IsValid is the AND of all citation validities.
func (mv *MultiSourcedValue[T]) IsValid() bool {
	if !IsValid(mv.PrimaryCitation) {
		return false
	}
	for _, c := range mv.SupportingCitations {
		if !IsValid(c) {
			return false
		}
	}
	return true
}
