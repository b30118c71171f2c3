package resources

// The Identifier resource represents a subject identifier that can be
// included in a certificate.
//
// See:
// https://tools.ietf.org/html/rfc8555#section-7.4
//
// In practice most ACME servers only support "dns" type identifiers where
// the value specifies a fully qualified domain name.
type Identifier struct {
	// The Type of the Identifier value.
	Type string `json:"type"`
	// The Identifier value.
	Value string `json:"value"`
}

// The Order resource represents a collection of identifiers that an account
// wishes to create a Certificate for.
//
// See https://tools.ietf.org/html/rfc8555#section-7.1.3
//
// To understand the Status changes specified by ACME for the Order resource
// see https://tools.ietf.org/html/rfc8555#section-7.1.6
type Order struct {
	// The server-assigned URL identifying the Order, taken from the Location
	// header of the creation response. Not part of the wire format.
	Location string `json:"-"`
	// The Status of the Order.
	Status string `json:"status,omitempty"`
	// A string representing an RFC 3339 date at which time the server
	// considers the Order expired.
	Expires string `json:"expires,omitempty"`
	// The Identifiers the Order wishes to finalize a Certificate for once
	// the Order is ready.
	Identifiers []Identifier `json:"identifiers"`
	// A list of URLs for the Authorization resources the server requires to
	// be satisfied before issuance.
	Authorizations []string `json:"authorizations,omitempty"`
	// A URL used to Finalize the Order with a CSR once the Order has
	// a status of "ready".
	Finalize string `json:"finalize,omitempty"`
	// A URL used to fetch the Certificate issued for the Order after it was
	// finalized. Present and non-empty when the Order status is "valid".
	Certificate string `json:"certificate,omitempty"`
	// The error that occurred while processing the Order, if any.
	Error *Problem `json:"error,omitempty"`
}

// String returns the Order's URL.
func (o Order) String() string {
	return o.Location
}
