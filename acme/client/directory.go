package client

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"

	"github.com/acmedriver/acmedriver/acme/resources"
)

// Directory returns the cached server Directory, fetching and parsing it
// from the client's directory URL on first use. A failed fetch is fatal
// for the calling operation but leaves the cache empty, so a later
// attempt fetches again.
//
// See https://tools.ietf.org/html/rfc8555#section-7.1.1
func (c *Client) Directory() (*resources.Directory, error) {
	if c.directory != nil {
		return c.directory, nil
	}

	resp, err := c.net.Execute(http.MethodGet, c.DirectoryURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get directory info")
	}
	// Some servers hand out a nonce with the directory already.
	c.updateNonce(resp)

	if !resp.IsSuccess() {
		return nil, fmt.Errorf("GET on the directory URL returned error status (%d)", resp.StatusCode)
	}

	var dir resources.Directory
	if err := resp.JSON(&dir); err != nil {
		return nil, errors.Wrap(err, "failed to parse directory")
	}
	dir.URL = c.DirectoryURL

	c.directory = &dir
	return c.directory, nil
}
