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

package state

import (
	"context"
	"time"
)

// Credentials is the OAuth credential used to query the ledger API.
type Credentials struct {
	// AccessToken is the Bearer token used to access the provider's API.
	AccessToken string `json:"access_token"`
	// ObtainedAt is when the token was acquired. Tokens are never refreshed,
	// the timestamp is informational.
	ObtainedAt time.Time `json:"obtained_at"`
}

// State persists the single OAuth credential.
type State interface {
	GetCredentials(context.Context) (*Credentials, error)
	PutCredentials(context.Context, *Credentials) error
}
