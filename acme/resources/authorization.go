package resources

// The ACME Authorization resource represents an Account's authorization to
// issue for a specified identifier, based on interactions with associated
// Challenges.
//
// For information about the Authorization resource see
// https://tools.ietf.org/html/rfc8555#section-7.1.4
//
// To understand the Authorization Status changes specified by ACME see
// https://tools.ietf.org/html/rfc8555#section-7.1.6
type Authorization struct {
	// The URL the Authorization was fetched from. Not part of the wire
	// format.
	Location string `json:"-"`
	// The identifier the account is authorized to represent.
	Identifier Identifier `json:"identifier"`
	// The status of this authorization. Possible values are: "pending",
	// "valid", "invalid", "deactivated", "expired", and "revoked".
	Status string `json:"status,omitempty"`
	// A string representing an RFC 3339 date at which time the server
	// considers the Authorization expired.
	Expires string `json:"expires,omitempty"`
	// For pending authorizations, the challenges the client can fulfill in
	// order to prove possession of the identifier. For valid authorizations,
	// the challenge that was validated.
	Challenges []Challenge `json:"challenges,omitempty"`
	// True for authorizations created from an identifier with a wildcard
	// prefix. The identifier value itself carries no "*." prefix then.
	Wildcard bool `json:"wildcard,omitempty"`
}

// String returns the Authorization's URL.
func (a Authorization) String() string {
	return a.Location
}
