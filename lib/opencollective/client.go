/*
Copyright 2024 Gravitational, Inc.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package opencollective

import (
	"context"
	"math"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/gravitational/oc-donor-bot/lib/auth"
	"github.com/gravitational/trace"
	jsoniter "github.com/json-iterator/go"
	"github.com/tidwall/gjson"
)

const (
	// DefaultAPIURL is the GraphQL v2 endpoint.
	DefaultAPIURL = "https://api.opencollective.com/graphql/v2"
	// DefaultPageSize is the page size used for paginated queries.
	DefaultPageSize = 100

	ocMaxConns    = 100
	ocHTTPTimeout = 10 * time.Second
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ClientConfig configures a ledger Client.
type ClientConfig struct {
	// APIURL is the GraphQL endpoint. Set only in tests.
	APIURL string
	// Slug is the collective whose members and transactions are scanned.
	Slug string
	// PageSize is the number of nodes requested per page.
	PageSize int
	// Tokens provides the bearer token for every query.
	Tokens auth.AccessTokenProvider
}

// CheckAndSetDefaults validates the config and fills the defaults in.
func (c *ClientConfig) CheckAndSetDefaults() error {
	if c.Slug == "" {
		return trace.BadParameter("missing required value collective slug")
	}
	if c.Tokens == nil {
		return trace.BadParameter("missing access token provider")
	}
	if c.APIURL == "" {
		c.APIURL = DefaultAPIURL
	}
	if c.PageSize <= 0 {
		c.PageSize = DefaultPageSize
	}
	return nil
}

// Client queries the OpenCollective GraphQL API.
type Client struct {
	client   *resty.Client
	apiURL   string
	slug     string
	pageSize int
	tokens   auth.AccessTokenProvider
}

// NewClient builds a ledger client.
func NewClient(conf ClientConfig) (*Client, error) {
	if err := conf.CheckAndSetDefaults(); err != nil {
		return nil, trace.Wrap(err)
	}

	client := makeClient().
		SetHeader("Content-Type", "application/json")

	return &Client{
		client:   client,
		apiURL:   conf.APIURL,
		slug:     conf.Slug,
		pageSize: conf.PageSize,
		tokens:   conf.Tokens,
	}, nil
}

func makeClient() *resty.Client {
	return resty.
		NewWithClient(&http.Client{
			Timeout: ocHTTPTimeout,
			Transport: &http.Transport{
				MaxConnsPerHost:     ocMaxConns,
				MaxIdleConnsPerHost: ocMaxConns,
			},
		}).
		SetJSONMarshaler(json.Marshal).
		SetJSONUnmarshaler(json.Unmarshal).
		SetHeader("Accept", "application/json")
}

// Slug returns the collective slug the client scans.
func (c *Client) Slug() string {
	return c.slug
}

// CheckHealth makes sure the token is accepted and the collective exists.
func (c *Client) CheckHealth(ctx context.Context) error {
	body, err := c.query(ctx, accountQuery, map[string]interface{}{"slug": c.slug})
	if err != nil {
		return trace.Wrap(err)
	}
	if account := gjson.GetBytes(body, accountPath); !account.Exists() || account.Type == gjson.Null {
		return trace.NotFound("collective %q not found", c.slug)
	}
	return nil
}

// query posts a GraphQL query and returns the raw response body.
func (c *Client) query(ctx context.Context, query string, variables map[string]interface{}) ([]byte, error) {
	token, err := c.tokens.GetAccessToken()
	if err != nil {
		return nil, trace.Wrap(err, "no OpenCollective OAuth token available, run setup-oauth first")
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetBody(graphqlRequest{Query: query, Variables: variables}).
		Post(c.apiURL)
	if err != nil {
		return nil, trace.ConnectionProblem(err, "OpenCollective API request failed")
	}

	switch code := resp.StatusCode(); {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return nil, trace.AccessDenied("OpenCollective OAuth token is invalid or expired (status: %d), run setup-oauth to re-authenticate", code)
	case !resp.IsSuccess():
		return nil, trace.ConnectionProblem(nil, "OpenCollective API error (status: %d)", code)
	}

	body := resp.Body()
	if errs := gjson.GetBytes(body, "errors"); errs.IsArray() && len(errs.Array()) > 0 {
		return nil, trace.Errorf("OpenCollective GraphQL error: %s", errs.Get("0.message").String())
	}

	return body, nil
}

// fetchPage runs a paginated query and decodes the connection found at path.
func fetchPage[T any](ctx context.Context, c *Client, query, path string, offset int) (page[T], error) {
	var result page[T]

	body, err := c.query(ctx, query, map[string]interface{}{
		"slug":   c.slug,
		"limit":  c.pageSize,
		"offset": offset,
	})
	if err != nil {
		return result, trace.Wrap(err)
	}

	if account := gjson.GetBytes(body, accountPath); !account.Exists() || account.Type == gjson.Null {
		return result, trace.NotFound("collective %q not found", c.slug)
	}

	connection := gjson.GetBytes(body, path)
	if !connection.IsObject() {
		return result, trace.BadParameter("unexpected OpenCollective response: %s is missing", path)
	}
	if err := json.Unmarshal([]byte(connection.Raw), &result); err != nil {
		return result, trace.Wrap(err, "failed to decode OpenCollective response")
	}

	return result, nil
}

// scan walks every page of a connection in increasing offset order until
// match accepts a node. totalCount is re-read from every page; if it shifts
// between pages, nodes may be skipped or scanned twice.
func scan[T any](ctx context.Context, c *Client, query, path string, match func(T) (DonorRecord, bool)) (DonorRecord, bool, error) {
	total := math.MaxInt
	for offset := 0; offset < total; offset += c.pageSize {
		p, err := fetchPage[T](ctx, c, query, path, offset)
		if err != nil {
			return DonorRecord{}, false, trace.Wrap(err)
		}
		total = p.TotalCount

		for _, node := range p.Nodes {
			if record, ok := match(node); ok {
				return record, true, nil
			}
		}
	}

	return DonorRecord{}, false, nil
}
