// Package resources provides types for representing and interacting with ACME
// protocol resources.
package resources

// Directory holds the ACME server's resource endpoint URLs. It is fetched
// once per client session from the configured directory URL and never
// mutated afterwards.
//
// See https://tools.ietf.org/html/rfc8555#section-7.1.1
type Directory struct {
	// The URL the Directory was fetched from. Not part of the wire format.
	URL string `json:"-"`
	// Endpoint for fetching a fresh anti-replay nonce with a HEAD request.
	NewNonce string `json:"newNonce"`
	// Endpoint for registering a new account.
	NewAccount string `json:"newAccount"`
	// Endpoint for creating a new certificate order.
	NewOrder string `json:"newOrder"`
	// Endpoint for revoking a certificate.
	RevokeCert string `json:"revokeCert,omitempty"`
	// Endpoint for rolling over an account key.
	KeyChange string `json:"keyChange,omitempty"`
	// Optional server metadata.
	Meta *DirectoryMeta `json:"meta,omitempty"`
}

// DirectoryMeta carries the optional "meta" object of a Directory.
type DirectoryMeta struct {
	TermsOfService          string   `json:"termsOfService,omitempty"`
	Website                 string   `json:"website,omitempty"`
	CAAIdentities           []string `json:"caaIdentities,omitempty"`
	ExternalAccountRequired bool     `json:"externalAccountRequired,omitempty"`
}

// TermsOfServiceURL returns the terms-of-service URL from the directory
// metadata, or an empty string if the server does not publish one.
func (d *Directory) TermsOfServiceURL() string {
	if d.Meta == nil {
		return ""
	}
	return d.Meta.TermsOfService
}
