// Package werror implements the error taxonomy used across wheelhouse's
// pipeline stages: a small set of error kinds (not Go types) distinguished
// by Code, each carrying an audience-tagged detail set and an inner error.
package werror

import "fmt"

const (
	AudienceInternal Audience = "internal"
	AudienceExternal Audience = "external"
)

type Audience string
type Code string
type DetailKey string
type Details map[DetailKey]Detail

// Error is the single error representation used by every pipeline stage.
// A failed Job (see internal/pipeline) always carries one of these.
type Error struct {
	innerErr  error
	errorText string
	message   string
	details   Details
	audience  Audience
	code      Code
}

func New(message string, audience Audience, code Code, inner error) Error {
	return NewWithDetails(message, nil, audience, code, inner)
}

func NewWithDetails(message string, details Details, audience Audience, code Code, inner error) Error {
	return Error{
		message:   message,
		errorText: makeErrorText(message, details, inner),
		details:   details,
		audience:  audience,
		code:      code,
		innerErr:  inner,
	}
}

func (e Error) Error() string {
	if e.errorText != "" {
		return e.errorText
	}
	return e.message
}

func (e Error) Unwrap() error { return e.innerErr }

func (e Error) Message() string { return e.message }

func (e Error) Details() map[DetailKey]Detail {
	m := make(Details, len(e.details))
	for k, v := range e.details {
		m[k] = v
	}
	return m
}

func (e Error) Audience() Audience { return e.audience }

func (e Error) Code() Code { return e.code }

// Wrap returns a copy of the error with the inner error replaced by innerErr.
func (e Error) Wrap(innerErr error) Error {
	return Error{
		innerErr:  innerErr,
		errorText: makeErrorText(e.message, e.details, innerErr),
		message:   e.message,
		details:   e.Details(),
		audience:  e.audience,
		code:      e.code,
	}
}

// IDetail returns a copy of the error with an internal-audience detail appended.
func (e Error) IDetail(key DetailKey, value interface{}) Error {
	return e.withDetail(AudienceInternal, key, value)
}

// EDetail returns a copy of the error with an external-audience detail appended.
func (e Error) EDetail(key DetailKey, value interface{}) Error {
	return e.withDetail(AudienceExternal, key, value)
}

func (e Error) withDetail(audience Audience, key DetailKey, value interface{}) Error {
	details := e.Details()
	details[key] = NewDetail(audience, key, value)
	return Error{
		details:   details,
		errorText: makeErrorText(e.message, details, e.innerErr),
		innerErr:  e.innerErr,
		message:   e.message,
		audience:  e.audience,
		code:      e.code,
	}
}

func makeErrorText(message string, details Details, inner error) string {
	var detailsStr string
	if len(details) > 0 {
		detailsStr = " ["
		for k, v := range details {
			if detailsStr == " [" {
				detailsStr += fmt.Sprintf("%s=%v", k, v.value)
			} else {
				detailsStr += fmt.Sprintf(", %s=%v", k, v.value)
			}
		}
		detailsStr += "]"
	}
	var errStr string
	if inner != nil {
		errStr = fmt.Sprintf(": %v", inner)
	}
	return fmt.Sprintf("%s%s%s", message, detailsStr, errStr)
}

type Detail struct {
	audience Audience
	key      DetailKey
	value    interface{}
}

func NewDetail(audience Audience, key DetailKey, value interface{}) Detail {
	return Detail{audience: audience, key: key, value: value}
}

func (d Detail) Audience() Audience { return d.audience }
func (d Detail) Key() DetailKey     { return d.key }
func (d Detail) Value() interface{} { return d.value }
