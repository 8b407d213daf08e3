// Copyright © 2024 Crestflow <dev@crestflow.io>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

// Package fcrest is a hand-written client for the REST facade fronting the
// remote machines. Every call authenticates with a client-credentials bearer
// token and names its machine through the X-Machine-Name header. Staged
// transfers run against signed object-storage URLs outside that session.
package fcrest

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/crestflow/crestflow/common"
)

// localStagingHost is the private address the facade's demo deployment hands
// out in signed URLs; local testing swaps it for localhost.
const localStagingHost = "192.168.220.19"

// Config collects what a Client needs to reach one facade deployment.
type Config struct {
	BaseURL      string
	TokenURL     string
	ClientID     string
	ClientSecret string
	MachineName  string

	// LocalTesting rewrites localStagingHost in signed URLs to localhost.
	// With LocalDataDir also set, staged downloads skip HTTP entirely and
	// read the file straight from that directory tree.
	LocalTesting bool
	LocalDataDir string

	// HTTPClient overrides the transport underneath both the authorized
	// session and the signed-URL requests. Leave nil outside tests.
	HTTPClient *http.Client
}

// Client is safe for concurrent use by independent requests; the token is
// fetched lazily and refreshed by the oauth2 transport.
type Client struct {
	base         string
	machine      string
	session      *http.Client // bearer-authorized, facade endpoints only
	plain        *http.Client // signed-URL requests carry their own auth
	localTesting bool
	localDataDir string
}

func NewClient(cfg Config) *Client {
	plain := cfg.HTTPClient
	if plain == nil {
		plain = http.DefaultClient
	}
	cc := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
	}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, plain)
	return &Client{
		base:         strings.TrimRight(cfg.BaseURL, "/"),
		machine:      cfg.MachineName,
		session:      cc.Client(ctx),
		plain:        plain,
		localTesting: cfg.LocalTesting,
		localDataDir: cfg.LocalDataDir,
	}
}

// MachineName is the machine every request of this client targets.
func (c *Client) MachineName() string { return c.machine }

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body io.Reader) (*http.Request, error) {
	u := c.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, errors.Wrapf(err, "build %s %s", method, path)
	}
	req.Header.Set("X-Machine-Name", c.machine)
	req.Header.Set("User-Agent", common.UserAgent)
	return req, nil
}

// getJSON issues a GET and decodes the enveloped output field into out.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, want int, out interface{}) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return err
	}
	resp, err := c.session.Do(req)
	if err != nil {
		return errors.Wrapf(err, "GET %s", path)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp, path, want); err != nil {
		return err
	}
	var envelope struct {
		Output json.RawMessage `json:"output"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return errors.Wrapf(err, "decode %s response", path)
	}
	if err := json.Unmarshal(envelope.Output, out); err != nil {
		return errors.Wrapf(err, "decode %s output", path)
	}
	return nil
}

// postForm issues an urlencoded POST. When out is non-nil the raw response
// body is decoded into it (task-creating endpoints answer without envelope).
func (c *Client) postForm(ctx context.Context, path string, form url.Values, want int, out interface{}) error {
	req, err := c.newRequest(ctx, http.MethodPost, path, nil, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := c.session.Do(req)
	if err != nil {
		return errors.Wrapf(err, "POST %s", path)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp, path, want); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "decode %s response", path)
	}
	return nil
}

func (c *Client) rewriteLocal(u string) string {
	if !c.localTesting {
		return u
	}
	return strings.Replace(u, localStagingHost, "localhost", 1)
}
