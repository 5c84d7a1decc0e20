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
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/julienschmidt/httprouter"
)

// failure describes how the fake answers a query instead of serving data.
type failure struct {
	status       int
	graphqlError string
}

type FakeOpenCollective struct {
	srv   *httptest.Server
	token string

	mu                  sync.Mutex
	members             []Member
	transactions        []Transaction
	accountMissing      bool
	membersFailure      func(offset int) *failure
	transactionsFailure func(offset int) *failure
	memberOffsets       []int
	transactionOffsets  []int
	requests            int
}

func NewFakeOpenCollective(token string) *FakeOpenCollective {
	router := httprouter.New()
	s := &FakeOpenCollective{
		token: token,
		srv:   httptest.NewServer(router),
	}

	router.POST("/graphql/v2", func(rw http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.requests++

		if r.Header.Get("Authorization") != "Bearer "+s.token {
			http.Error(rw, `{"error":"unauthorized"}`, http.StatusUnauthorized)
			return
		}

		var req graphqlRequest
		panicIf(json.NewDecoder(r.Body).Decode(&req))

		if s.accountMissing {
			writeJSON(rw, map[string]interface{}{"data": map[string]interface{}{"account": nil}})
			return
		}

		switch {
		case strings.Contains(req.Query, "members("):
			offset, limit := pagination(req.Variables)
			s.memberOffsets = append(s.memberOffsets, offset)
			if s.membersFailure != nil {
				if f := s.membersFailure(offset); f != nil {
					writeFailure(rw, f)
					return
				}
			}
			writeConnection(rw, "members", len(s.members), pageOf(s.members, offset, limit))
		case strings.Contains(req.Query, "transactions("):
			offset, limit := pagination(req.Variables)
			s.transactionOffsets = append(s.transactionOffsets, offset)
			if s.transactionsFailure != nil {
				if f := s.transactionsFailure(offset); f != nil {
					writeFailure(rw, f)
					return
				}
			}
			writeConnection(rw, "transactions", len(s.transactions), pageOf(s.transactions, offset, limit))
		default:
			writeJSON(rw, map[string]interface{}{
				"data": map[string]interface{}{
					"account": map[string]interface{}{"slug": req.Variables["slug"], "name": "RetroDECK"},
				},
			})
		}
	})

	return s
}

func (s *FakeOpenCollective) URL() string {
	return s.srv.URL + "/graphql/v2"
}

func (s *FakeOpenCollective) Close() {
	s.srv.Close()
}

// Configure mutates the fake while no request is being served.
func (s *FakeOpenCollective) Configure(fn func(*FakeOpenCollective)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s)
}

func (s *FakeOpenCollective) MemberOffsets() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.memberOffsets...)
}

func (s *FakeOpenCollective) TransactionOffsets() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.transactionOffsets...)
}

func (s *FakeOpenCollective) Requests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests
}

func pagination(vars map[string]interface{}) (int, int) {
	offset, _ := vars["offset"].(float64)
	limit, _ := vars["limit"].(float64)
	return int(offset), int(limit)
}

func pageOf[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return []T{}
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

func writeConnection(rw http.ResponseWriter, field string, total int, nodes interface{}) {
	writeJSON(rw, map[string]interface{}{
		"data": map[string]interface{}{
			"account": map[string]interface{}{
				field: map[string]interface{}{
					"totalCount": total,
					"nodes":      nodes,
				},
			},
		},
	})
}

func writeFailure(rw http.ResponseWriter, f *failure) {
	if f.graphqlError != "" {
		writeJSON(rw, map[string]interface{}{
			"errors": []map[string]interface{}{{"message": f.graphqlError}},
		})
		return
	}
	http.Error(rw, "", f.status)
}

func writeJSON(rw http.ResponseWriter, v interface{}) {
	rw.Header().Set("Content-Type", "application/json")
	panicIf(json.NewEncoder(rw).Encode(v))
}

func panicIf(err error) {
	if err != nil {
		panic(err)
	}
}
