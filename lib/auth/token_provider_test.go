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
	"testing"
	"time"

	"github.com/gravitational/oc-donor-bot/lib/auth/state"
	"github.com/gravitational/trace"
	"github.com/stretchr/testify/require"
)

type mockState struct {
	getCredentials func() (*state.Credentials, error)
	putCredentials func(*state.Credentials) error
}

// GetCredentials implements state.State
func (s *mockState) GetCredentials(ctx context.Context) (*state.Credentials, error) {
	return s.getCredentials()
}

// PutCredentials implements state.State
func (s *mockState) PutCredentials(ctx context.Context, creds *state.Credentials) error {
	return s.putCredentials(creds)
}

func TestStoredAccessTokenProvider(t *testing.T) {
	obtainedAt := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("Init", func(t *testing.T) {
		mockState := &mockState{
			getCredentials: func() (*state.Credentials, error) {
				return &state.Credentials{AccessToken: "my-access-token", ObtainedAt: obtainedAt}, nil
			},
		}

		provider, err := NewStoredAccessTokenProvider(context.Background(), mockState)
		require.NoError(t, err)
		token, err := provider.GetAccessToken()
		require.NoError(t, err)
		require.Equal(t, "my-access-token", token)
		require.Equal(t, obtainedAt, provider.Credentials().ObtainedAt)
	})

	t.Run("InitFail", func(t *testing.T) {
		mockState := &mockState{
			getCredentials: func() (*state.Credentials, error) {
				return nil, trace.NotFound("not found")
			},
		}

		provider, err := NewStoredAccessTokenProvider(context.Background(), mockState)
		require.Error(t, err)
		require.True(t, trace.IsNotFound(err))
		require.Nil(t, provider)
	})

	t.Run("ReadsOnce", func(t *testing.T) {
		var reads int
		mockState := &mockState{
			getCredentials: func() (*state.Credentials, error) {
				reads++
				return &state.Credentials{AccessToken: "my-access-token"}, nil
			},
		}

		provider, err := NewStoredAccessTokenProvider(context.Background(), mockState)
		require.NoError(t, err)
		for i := 0; i < 3; i++ {
			_, err := provider.GetAccessToken()
			require.NoError(t, err)
		}
		require.Equal(t, 1, reads)
	})

	t.Run("Reload", func(t *testing.T) {
		token := "my-access-token"
		var fail bool
		mockState := &mockState{
			getCredentials: func() (*state.Credentials, error) {
				if fail {
					return nil, trace.NotFound("gone")
				}
				return &state.Credentials{AccessToken: token}, nil
			},
		}

		provider, err := NewStoredAccessTokenProvider(context.Background(), mockState)
		require.NoError(t, err)

		token = "my-access-token2"
		require.NoError(t, provider.Reload(context.Background()))
		got, err := provider.GetAccessToken()
		require.NoError(t, err)
		require.Equal(t, "my-access-token2", got)

		// a failed reload keeps the previous token
		fail = true
		require.Error(t, provider.Reload(context.Background()))
		got, err = provider.GetAccessToken()
		require.NoError(t, err)
		require.Equal(t, "my-access-token2", got)
	})
}

func TestStaticAccessTokenProvider(t *testing.T) {
	token, err := NewStaticAccessTokenProvider("abc").GetAccessToken()
	require.NoError(t, err)
	require.Equal(t, "abc", token)

	_, err = NewStaticAccessTokenProvider("").GetAccessToken()
	require.True(t, trace.IsNotFound(err))
}
