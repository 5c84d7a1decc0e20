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

	"github.com/go-resty/resty/v2"
	"github.com/gravitational/oc-donor-bot/lib/auth/oauth"
	"github.com/gravitational/oc-donor-bot/lib/auth/state"
	"github.com/gravitational/trace"
)

const (
	// DefaultAuthorizeURL is the OAuth authorization endpoint.
	DefaultAuthorizeURL = "https://opencollective.com/oauth/authorize"
	// DefaultTokenURL is the OAuth token endpoint.
	DefaultTokenURL = "https://opencollective.com/oauth/token"
)

// Scopes are the OAuth scopes the bot needs: emails of backers and account
// data.
var Scopes = []string{"email", "account"}

// Authorizer implements oauth.Exchanger for OpenCollective.
type Authorizer struct {
	client *resty.Client

	tokenURL     string
	clientID     string
	clientSecret string
}

// NewAuthorizer returns a new Authorizer
func NewAuthorizer(clientID string, clientSecret string) *Authorizer {
	return newAuthorizer(makeClient(), DefaultTokenURL, clientID, clientSecret)
}

func newAuthorizer(client *resty.Client, tokenURL, clientID, clientSecret string) *Authorizer {
	return &Authorizer{
		client:       client,
		tokenURL:     tokenURL,
		clientID:     clientID,
		clientSecret: clientSecret,
	}
}

// Exchange implements oauth.Exchanger
func (a *Authorizer) Exchange(ctx context.Context, authorizationCode string, redirectURI string) (*state.Credentials, error) {
	resp, err := a.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"grant_type":    "authorization_code",
			"client_id":     a.clientID,
			"client_secret": a.clientSecret,
			"code":          authorizationCode,
			"redirect_uri":  redirectURI,
		}).
		Post(a.tokenURL)
	if err != nil {
		return nil, trace.ConnectionProblem(err, "token exchange request failed")
	}

	var result AccessResponse
	if !resp.IsSuccess() {
		if json.Unmarshal(resp.Body(), &result) == nil && result.Error != "" {
			return nil, trace.Errorf("token exchange failed (status: %d): %s %s", resp.StatusCode(), result.Error, result.Description)
		}
		return nil, trace.Errorf("token exchange failed (status: %d): %s", resp.StatusCode(), resp.String())
	}

	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return nil, trace.Wrap(err, "malformed token exchange response")
	}
	if result.AccessToken == "" {
		return nil, trace.Errorf("no access_token in token exchange response")
	}

	return &state.Credentials{AccessToken: result.AccessToken}, nil
}

var _ oauth.Exchanger = &Authorizer{}
