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

package main

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"io"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/gravitational/oc-donor-bot/lib"
	"github.com/gravitational/oc-donor-bot/lib/opencollective"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type interactionTest struct {
	url      string
	priv     ed25519.PrivateKey
	discord  *FakeDiscord
	verifier *mockVerifier
	server   *InteractionServer
}

func startInteractionServer(t *testing.T, verifier *mockVerifier) *interactionTest {
	t.Helper()

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	discord := newFakeDiscord(t, "bot-token")
	claims := NewClaimHandler(verifier, NewDiscordBot(testDiscordConfig(t, discord)), donatorRoleID, nil)

	server, err := NewInteractionServer(lib.HTTPConfig{Listen: "127.0.0.1:0"}, pub, claims)
	require.NoError(t, err)
	require.NoError(t, server.Bind())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	return &interactionTest{
		url:      "http://" + server.Addr(),
		priv:     priv,
		discord:  discord,
		verifier: verifier,
		server:   server,
	}
}

func (it *interactionTest) post(t *testing.T, body []byte, sign func(req *http.Request)) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, it.url+interactionsPath, bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if sign != nil {
		sign(req)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (it *interactionTest) signer(body []byte) func(req *http.Request) {
	return func(req *http.Request) {
		timestamp := strconv.FormatInt(time.Now().Unix(), 10)
		signature := ed25519.Sign(it.priv, append([]byte(timestamp), body...))
		req.Header.Set("X-Signature-Ed25519", hex.EncodeToString(signature))
		req.Header.Set("X-Signature-Timestamp", timestamp)
	}
}

func (it *interactionTest) send(t *testing.T, interaction *Interaction) InteractionResponse {
	t.Helper()
	body, err := json.Marshal(interaction)
	require.NoError(t, err)

	resp := it.post(t, body, it.signer(body))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result InteractionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	return result
}

func TestInteractionPing(t *testing.T) {
	it := startInteractionServer(t, &mockVerifier{})

	resp := it.send(t, &Interaction{ID: "1", Type: InteractionTypePing})
	assert.Equal(t, InteractionResponse{Type: ResponseTypePong}, resp)
}

func TestInteractionBadSignature(t *testing.T) {
	it := startInteractionServer(t, &mockVerifier{})
	body := []byte(`{"id":"1","type":1}`)

	resp := it.post(t, body, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = it.post(t, body, func(req *http.Request) {
		it.signer(body)(req)
		req.Header.Set("X-Signature-Timestamp", "1")
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	otherBody := []byte(`{"id":"2","type":1}`)
	resp = it.post(t, body, it.signer(otherBody))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestInteractionCommandShowsModal(t *testing.T) {
	it := startInteractionServer(t, &mockVerifier{})

	resp := it.send(t, &Interaction{
		ID:   "1",
		Type: InteractionTypeApplicationCommand,
		Data: &InteractionData{Name: claimCommandName},
	})
	assert.Equal(t, ResponseTypeModal, resp.Type)
	require.NotNil(t, resp.Data)
	assert.Equal(t, claimModalID, resp.Data.CustomID)
}

func TestInteractionUnknownCommand(t *testing.T) {
	it := startInteractionServer(t, &mockVerifier{})

	resp := it.send(t, &Interaction{
		ID:   "1",
		Type: InteractionTypeApplicationCommand,
		Data: &InteractionData{Name: "something-else"},
	})
	assert.Equal(t, ephemeral(msgUnexpected), resp)
}

func TestInteractionModalSubmitVerified(t *testing.T) {
	verifier := &mockVerifier{record: opencollective.DonorRecord{Found: true, Name: "Jane", Source: opencollective.StrategyMembers}}
	it := startInteractionServer(t, verifier)

	resp := it.send(t, modalSubmit("42", "donor@example.com"))
	assert.Equal(t, deferredEphemeral(), resp)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	edit, err := it.discord.CheckEdit(ctx)
	require.NoError(t, err)
	assert.Equal(t, "token-42", edit.InteractionToken)
	assert.Equal(t, "900", edit.ApplicationID)
	assert.Equal(t, msgVerified, edit.Content)
	assert.Equal(t, []FakeRoleAdd{{GuildID: "500", UserID: "42", RoleID: donatorRoleID}}, it.discord.RoleAdds())

	require.NoError(t, it.server.WaitFollowUps(ctx))
}

func TestInteractionModalSubmitAlreadyDonator(t *testing.T) {
	verifier := &mockVerifier{}
	it := startInteractionServer(t, verifier)

	resp := it.send(t, modalSubmit("42", "donor@example.com", donatorRoleID))
	assert.Equal(t, ephemeral(msgAlreadyDonator), resp)
	assert.Empty(t, verifier.Calls())
	assert.Zero(t, it.discord.Requests())
}

func TestInteractionMalformedPayload(t *testing.T) {
	it := startInteractionServer(t, &mockVerifier{})
	body := []byte(`{not json`)

	resp := it.post(t, body, it.signer(body))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealthz(t *testing.T) {
	it := startInteractionServer(t, &mockVerifier{})

	resp, err := http.Get(it.url + healthzPath)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))
}
