package resources

// The ACME Challenge resource represents an action the client must take to
// authorize an account for a specific identifier.
//
// For information about the Challenge resource see
// https://tools.ietf.org/html/rfc8555#section-7.1.5
//
// To understand the Challenge types specified by RFC 8555 see
// https://tools.ietf.org/html/rfc8555#section-8
type Challenge struct {
	// The Type of the challenge (expected values include "http-01", "dns-01"
	// and "tls-alpn-01").
	Type string `json:"type"`
	// The URL of the challenge, used to trigger and poll validation.
	URL string `json:"url"`
	// The Status of the challenge.
	Status string `json:"status,omitempty"`
	// The challenge token, combined with the account key thumbprint to form
	// the key authorization.
	Token string `json:"token,omitempty"`
	// RFC 3339 timestamp of the completed validation, if any.
	Validated string `json:"validated,omitempty"`
	// The error that occurred while validating the challenge, if any.
	Error *Problem `json:"error,omitempty"`
}

// String returns the Challenge's URL.
func (c Challenge) String() string {
	return c.URL
}
