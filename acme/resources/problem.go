package resources

import "fmt"

// Problem is an RFC 7807 problem document returned by the ACME server for
// error responses. It implements the error interface so well-formed API
// errors can be surfaced to callers verbatim.
//
// See https://tools.ietf.org/html/rfc8555#section-6.7
type Problem struct {
	Type        string    `json:"type,omitempty"`
	Detail      string    `json:"detail,omitempty"`
	Status      int       `json:"status,omitempty"`
	Subproblems []Problem `json:"subproblems,omitempty"`
}

func (p *Problem) Error() string {
	if p.Detail == "" {
		return fmt.Sprintf("acme error %q", p.Type)
	}
	return fmt.Sprintf("acme error %q: %s", p.Type, p.Detail)
}
