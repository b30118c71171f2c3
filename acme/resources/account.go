package resources

import "crypto"

// Account pairs the server-side ACME Account resource with the private key
// used to sign requests on its behalf. If the Location field is empty the
// account has not yet been registered with the ACME server.
//
// The Location field holds the server assigned account URL that is returned
// in the Location header at registration time and used as the JWS KeyID for
// authenticating subsequent requests.
//
// The Signer is the account keypair. It never leaves the client package;
// outgoing requests are signed before they reach the transport layer.
type Account struct {
	// The server assigned account URL, used as the JWS KeyID.
	Location string `json:"location"`
	// The most recent server-side representation of the account.
	Data AccountData `json:"data"`
	// The account keypair used for request signing.
	Signer crypto.Signer `json:"-"`
}

// AccountData is the wire representation of an Account resource.
//
// See https://tools.ietf.org/html/rfc8555#section-7.1.2
type AccountData struct {
	Status               string   `json:"status,omitempty"`
	Contact              []string `json:"contact,omitempty"`
	TermsOfServiceAgreed bool     `json:"termsOfServiceAgreed,omitempty"`
	Orders               string   `json:"orders,omitempty"`
}

// String returns the account's server assigned URL or an empty string if it
// has not been registered.
func (a Account) String() string {
	return a.Location
}
