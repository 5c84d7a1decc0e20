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

package auth

import (
	"context"
	"sync"

	"github.com/gravitational/oc-donor-bot/lib/auth/state"
	"github.com/gravitational/oc-donor-bot/lib/logger"
	"github.com/gravitational/trace"
	"github.com/sirupsen/logrus"
)

type AccessTokenProvider interface {
	GetAccessToken() (string, error)
}

type StaticAccessTokenProvider struct {
	token string
}

func NewStaticAccessTokenProvider(token string) *StaticAccessTokenProvider {
	return &StaticAccessTokenProvider{token: token}
}

func (s *StaticAccessTokenProvider) GetAccessToken() (string, error) {
	if s.token == "" {
		return "", trace.NotFound("no access token configured")
	}
	return s.token, nil
}

// StoredAccessTokenProvider serves the credential loaded from the state once
// at startup. The state is read again only when Reload is called: tokens are
// never refreshed automatically.
type StoredAccessTokenProvider struct {
	state state.State

	log logrus.FieldLogger

	lock  sync.RWMutex // protects the below fields
	creds *state.Credentials
}

func NewStoredAccessTokenProvider(ctx context.Context, st state.State) (*StoredAccessTokenProvider, error) {
	provider := &StoredAccessTokenProvider{
		state: st,
		log:   logger.Get(ctx),
	}

	if err := provider.Reload(ctx); err != nil {
		return nil, trace.Wrap(err)
	}

	return provider, nil
}

func (r *StoredAccessTokenProvider) GetAccessToken() (string, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	if r.creds == nil {
		return "", trace.NotFound("no access token loaded")
	}
	return r.creds.AccessToken, nil
}

// Credentials returns a copy of the loaded credential.
func (r *StoredAccessTokenProvider) Credentials() state.Credentials {
	r.lock.RLock()
	defer r.lock.RUnlock()
	if r.creds == nil {
		return state.Credentials{}
	}
	return *r.creds
}

// Reload re-reads the credential from the state. On failure the previously
// loaded credential stays in use.
func (r *StoredAccessTokenProvider) Reload(ctx context.Context) error {
	creds, err := r.state.GetCredentials(ctx)
	if err != nil {
		return trace.Wrap(err)
	}

	r.lock.Lock()
	r.creds = creds
	r.lock.Unlock()

	r.log.WithField("obtained_at", creds.ObtainedAt).Debug("Loaded access token")
	return nil
}
