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
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/require"
)

type FakeDiscord struct {
	srv   *httptest.Server
	token string

	edits chan FakeEdit

	mu          sync.Mutex
	requests    int
	roleAdds    []FakeRoleAdd
	commands    []ApplicationCommand
	failRoleAdd bool
}

type FakeRoleAdd struct {
	GuildID string
	UserID  string
	RoleID  string
}

type FakeEdit struct {
	ApplicationID    string
	InteractionToken string
	Content          string
}

func NewFakeDiscord(token string) *FakeDiscord {
	router := httprouter.New()
	s := &FakeDiscord{
		token: token,
		edits: make(chan FakeEdit, 20),
		srv:   httptest.NewServer(router),
	}

	authorized := func(handle httprouter.Handle) httprouter.Handle {
		return func(rw http.ResponseWriter, r *http.Request, ps httprouter.Params) {
			s.mu.Lock()
			s.requests++
			s.mu.Unlock()
			if r.Header.Get("Authorization") != "Bot "+s.token {
				writeDiscordError(rw, http.StatusUnauthorized, 0, "401: Unauthorized")
				return
			}
			handle(rw, r, ps)
		}
	}

	router.GET("/users/@me", authorized(func(rw http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		writeFakeJSON(rw, http.StatusOK, User{ID: "1000", Username: "donor-bot"})
	}))

	router.PUT("/guilds/:guild/members/:user/roles/:role", authorized(func(rw http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.failRoleAdd {
			writeDiscordError(rw, http.StatusForbidden, 50013, "Missing Permissions")
			return
		}
		s.roleAdds = append(s.roleAdds, FakeRoleAdd{
			GuildID: ps.ByName("guild"),
			UserID:  ps.ByName("user"),
			RoleID:  ps.ByName("role"),
		})
		rw.WriteHeader(http.StatusNoContent)
	}))

	router.PATCH("/webhooks/:app/:token/messages/@original", authorized(func(rw http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		var msg EditMessage
		panicIf(json.NewDecoder(r.Body).Decode(&msg))
		s.edits <- FakeEdit{
			ApplicationID:    ps.ByName("app"),
			InteractionToken: ps.ByName("token"),
			Content:          msg.Content,
		}
		writeFakeJSON(rw, http.StatusOK, map[string]string{"id": "1", "content": msg.Content})
	}))

	router.PUT("/applications/:app/guilds/:guild/commands", authorized(func(rw http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		var commands []ApplicationCommand
		panicIf(json.NewDecoder(r.Body).Decode(&commands))

		s.mu.Lock()
		defer s.mu.Unlock()
		for i := range commands {
			commands[i].ID = fmt.Sprintf("%s-%s-%d", ps.ByName("app"), ps.ByName("guild"), i+1)
		}
		s.commands = commands
		writeFakeJSON(rw, http.StatusOK, commands)
	}))

	return s
}

func (s *FakeDiscord) URL() string {
	return s.srv.URL
}

func (s *FakeDiscord) Close() {
	s.srv.Close()
}

func (s *FakeDiscord) Requests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests
}

func (s *FakeDiscord) RoleAdds() []FakeRoleAdd {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]FakeRoleAdd(nil), s.roleAdds...)
}

func (s *FakeDiscord) Commands() []ApplicationCommand {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ApplicationCommand(nil), s.commands...)
}

func (s *FakeDiscord) SetFailRoleAdd(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failRoleAdd = fail
}

func (s *FakeDiscord) CheckEdit(ctx context.Context) (FakeEdit, error) {
	select {
	case edit := <-s.edits:
		return edit, nil
	case <-ctx.Done():
		return FakeEdit{}, ctx.Err()
	}
}

func newFakeDiscord(t *testing.T, token string) *FakeDiscord {
	t.Helper()
	fake := NewFakeDiscord(token)
	t.Cleanup(fake.Close)
	return fake
}

func testDiscordConfig(t *testing.T, fake *FakeDiscord) DiscordConfig {
	t.Helper()
	conf := DiscordConfig{
		DiscordBotToken:      "bot-token",
		DiscordGuildID:       "500",
		DiscordDonatorRoleID: "700",
		DiscordApplicationID: "900",
		DiscordAPIURL:        fake.URL(),
	}
	require.NoError(t, conf.CheckAndSetDefaults())
	return conf
}

func writeDiscordError(rw http.ResponseWriter, status, code int, message string) {
	writeFakeJSON(rw, status, DiscordResponse{Code: code, Message: message})
}

func writeFakeJSON(rw http.ResponseWriter, status int, v interface{}) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	panicIf(json.NewEncoder(rw).Encode(v))
}

func panicIf(err error) {
	if err != nil {
		panic(err)
	}
}
