// Package enrich defines the module framework: the Module contract, the
// per-module result envelope, the wave definitions, and the registry the
// scheduler discovers modules through.
package enrich

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/leadscope/enrich/internal/citation"
)

// Status is the lifecycle state of one module execution.
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
	StatusTimeout Status = "timeout"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	switch s {
	case StatusSuccess, StatusFailed, StatusSkipped, StatusTimeout:
		return true
	}
	return false
}

// Result is the per-module output envelope. Read-only once emitted.
type Result struct {
	ModuleID            string                     `json:"module_id"`
	Domain              string                     `json:"domain"`
	Status              Status                     `json:"status"`
	Data                map[string]any             `json:"data"`
	PrimaryCitation     *citation.SourceCitation   `json:"primary_citation"`
	SupportingCitations []*citation.SourceCitation `json:"supporting_citations,omitempty"`
	ExecutedAt          time.Time                  `json:"executed_at"`
	DurationMS          int64                      `json:"duration_ms"`
	Cached              bool                       `json:"cached"`
	ErrorMessage        string                     `json:"error_message,omitempty"`
	ErrorType           string                     `json:"error_type,omitempty"`
}

// Succeeded reports a successful terminal state.
func (r *Result) Succeeded() bool {
	return r != nil && r.Status == StatusSuccess
}

// Citations returns primary plus supporting citations.
func (r *Result) Citations() []*citation.SourceCitation {
	out := make([]*citation.SourceCitation, 0, 1+len(r.SupportingCitations))
	if r.PrimaryCitation != nil {
		out = append(out, r.PrimaryCitation)
	}
	return append(out, r.SupportingCitations...)
}

// NewSuccess builds a success envelope around a typed payload.
func NewSuccess(moduleID, domain string, payload any, primary *citation.SourceCitation, supporting ...*citation.SourceCitation) (*Result, error) {
	if primary == nil {
		return nil, fmt.Errorf("%s: success result requires a primary citation", moduleID)
	}
	data, err := EncodePayload(payload)
	if err != nil {
		return nil, fmt.Errorf("%s: payload encoding: %w", moduleID, err)
	}
	return &Result{
		ModuleID:            moduleID,
		Domain:              domain,
		Status:              StatusSuccess,
		Data:                data,
		PrimaryCitation:     primary,
		SupportingCitations: supporting,
		ExecutedAt:          time.Now().UTC(),
	}, nil
}

// NewFailed builds a failed envelope carrying a placeholder citation so the
// record stays P0-compliant when persisted.
func NewFailed(moduleID, domain, errType string, err error) *Result {
	placeholder := citation.Placeholder(citation.SourceManual,
		"https://"+domain+"/", fmt.Sprintf("module %s failed", moduleID))
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return &Result{
		ModuleID:        moduleID,
		Domain:          domain,
		Status:          StatusFailed,
		Data:            map[string]any{},
		PrimaryCitation: placeholder,
		ExecutedAt:      time.Now().UTC(),
		ErrorMessage:    msg,
		ErrorType:       errType,
	}
}

// NewSkipped builds a skipped envelope with the reason recorded.
func NewSkipped(moduleID, domain, reason string) *Result {
	placeholder := citation.Placeholder(citation.SourceManual,
		"https://"+domain+"/", reason)
	return &Result{
		ModuleID:        moduleID,
		Domain:          domain,
		Status:          StatusSkipped,
		Data:            map[string]any{},
		PrimaryCitation: placeholder,
		ExecutedAt:      time.Now().UTC(),
		ErrorMessage:    reason,
		ErrorType:       "dependency_not_met",
	}
}

// EncodePayload flattens a typed payload into the string-keyed form used at
// the storage boundary.
func EncodePayload(payload any) (map[string]any, error) {
	if payload == nil {
		return map[string]any{}, nil
	}
	if m, ok := payload.(map[string]any); ok {
		return m, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, err
	}
	return data, nil
}

// DecodePayload reconstructs a typed payload from the storage form.
func DecodePayload[T any](data map[string]any) (*T, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
