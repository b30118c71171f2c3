// Package acme provides ACME protocol constants. See RFC 8555.
package acme

const (
	// Directory constants
	// See https://tools.ietf.org/html/rfc8555#section-9.7.5

	// The ACME directory key for the newNonce endpoint.
	NEW_NONCE_ENDPOINT = "newNonce"
	// The ACME directory key for the newAccount endpoint.
	NEW_ACCOUNT_ENDPOINT = "newAccount"
	// The ACME directory key for the newOrder endpoint.
	NEW_ORDER_ENDPOINT = "newOrder"
	// The ACME directory key for the revokeCert endpoint.
	REVOKE_CERT_ENDPOINT = "revokeCert"
	// The ACME directory key for the keyChange endpoint.
	KEY_CHANGE_ENDPOINT = "keyChange"

	// The HTTP response header used by ACME to communicate a fresh nonce. See
	// https://tools.ietf.org/html/rfc8555#section-9.3
	REPLAY_NONCE_HEADER = "Replay-Nonce"
	// The HTTP response header carrying the URL of a created resource.
	LOCATION_HEADER = "Location"

	// The media type for JWS-signed ACME request bodies.
	JOSE_CONTENT_TYPE = "application/jose+json"

	// The problem document type the server replies with when it rejects
	// a request nonce.
	// See https://tools.ietf.org/html/rfc8555#section-6.7
	BAD_NONCE_PROBLEM = "urn:ietf:params:acme:error:badNonce"

	// Challenge type identifiers.
	// See https://tools.ietf.org/html/rfc8555#section-8
	CHALLENGE_DNS01  = "dns-01"
	CHALLENGE_HTTP01 = "http-01"

	// The path prefix HTTP-01 challenge responses are served under.
	// See https://tools.ietf.org/html/rfc8555#section-8.3
	HTTP01_PATH_PREFIX = "/.well-known/acme-challenge/"

	// The DNS label TXT records for DNS-01 challenges are published under.
	// See https://tools.ietf.org/html/rfc8555#section-8.4
	DNS01_LABEL = "_acme-challenge"
)
