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
	"crypto/ed25519"
	"encoding/hex"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gravitational/oc-donor-bot/lib"
	"github.com/gravitational/oc-donor-bot/lib/logger"
	"github.com/gravitational/trace"
	"github.com/julienschmidt/httprouter"
	log "github.com/sirupsen/logrus"
)

const (
	interactionsPath = "/interactions"
	healthzPath      = "/healthz"

	maxInteractionSize = 1 << 20
)

// InteractionServer receives Discord interactions over HTTP.
type InteractionServer struct {
	http      *lib.HTTP
	publicKey ed25519.PublicKey
	claims    *ClaimHandler

	// baseCtx outlives single requests, follow-ups run within it.
	baseCtx   context.Context
	followUps sync.WaitGroup
}

func NewInteractionServer(conf lib.HTTPConfig, publicKey ed25519.PublicKey, claims *ClaimHandler) (*InteractionServer, error) {
	httpSrv, err := lib.NewHTTP(conf)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	srv := &InteractionServer{
		http:      httpSrv,
		publicKey: publicKey,
		claims:    claims,
		baseCtx:   context.Background(),
	}
	srv.http.POST(interactionsPath, srv.processInteraction)
	srv.http.GET(healthzPath, srv.healthz)
	return srv, nil
}

// InteractionsURL is the URL to set as the application's interactions
// endpoint.
func (s *InteractionServer) InteractionsURL() string {
	return s.http.NewURL(interactionsPath, nil).String()
}

// Bind binds the listening socket.
func (s *InteractionServer) Bind() error {
	return trace.Wrap(s.http.Bind())
}

func (s *InteractionServer) Addr() string {
	return s.http.Addr()
}

// Run serves interactions until ctx is done. Follow-ups are bound to ctx.
func (s *InteractionServer) Run(ctx context.Context) error {
	s.baseCtx = ctx
	return s.http.ListenAndServe(ctx)
}

// Shutdown stops accepting interactions and waits for running follow-ups.
func (s *InteractionServer) Shutdown(ctx context.Context) error {
	err := s.http.ShutdownWithTimeout(ctx, time.Second*5)
	return trace.NewAggregate(err, s.WaitFollowUps(ctx))
}

func (s *InteractionServer) Close() error {
	return s.http.Close()
}

// WaitFollowUps waits until every spawned follow-up finished or ctx is done.
func (s *InteractionServer) WaitFollowUps(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.followUps.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return trace.Wrap(ctx.Err())
	}
}

func (s *InteractionServer) healthz(rw http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	rw.Header().Set("Content-Type", "text/plain")
	_, _ = io.WriteString(rw, "ok")
}

func (s *InteractionServer) processInteraction(rw http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, log := logger.WithField(r.Context(), "interaction_request_id", uuid.NewString())

	body, err := io.ReadAll(io.LimitReader(r.Body, maxInteractionSize))
	if err != nil {
		log.WithError(err).Error("Failed to read interaction payload")
		http.Error(rw, "", http.StatusInternalServerError)
		return
	}

	if !verifySignature(s.publicKey, r.Header, body) {
		log.Warn("Invalid interaction signature")
		http.Error(rw, "invalid request signature", http.StatusUnauthorized)
		return
	}

	var interaction Interaction
	if err := json.Unmarshal(body, &interaction); err != nil {
		log.WithError(err).Error("Failed to parse interaction payload")
		http.Error(rw, "", http.StatusBadRequest)
		return
	}

	ctx, log = logger.WithFields(ctx, logrusFields(&interaction))

	var (
		resp     InteractionResponse
		followUp FollowUp
	)
	switch interaction.Type {
	case InteractionTypePing:
		resp = InteractionResponse{Type: ResponseTypePong}
	case InteractionTypeApplicationCommand:
		if interaction.Data == nil || interaction.Data.Name != claimCommandName {
			err = trace.BadParameter("unknown command")
			break
		}
		resp = s.claims.HandleCommand(ctx, &interaction)
	case InteractionTypeModalSubmit:
		if interaction.Data == nil || interaction.Data.CustomID != claimModalID {
			err = trace.BadParameter("unknown modal")
			break
		}
		resp, followUp, err = s.claims.HandleModalSubmit(ctx, &interaction)
	default:
		log.Warningf("Received unsupported interaction type %d", interaction.Type)
		http.Error(rw, "", http.StatusBadRequest)
		return
	}

	if err != nil {
		log.WithError(err).Error("Unhandled interaction error")
		log.Debugf("%v", trace.DebugReport(err))
		resp = ephemeral(msgUnexpected)
		followUp = nil
	}

	rw.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(rw).Encode(resp); err != nil {
		log.WithError(err).Error("Failed to write interaction response")
		return
	}

	if followUp != nil {
		if flusher, ok := rw.(http.Flusher); ok {
			flusher.Flush()
		}
		s.spawn(log, interaction.Token, followUp)
	}
}

// spawn runs a follow-up detached from the request. A panicking follow-up
// still edits the deferred reply so the user is never left waiting.
func (s *InteractionServer) spawn(log log.FieldLogger, interactionToken string, followUp FollowUp) {
	ctx := logger.WithLogger(s.baseCtx, log)
	s.followUps.Add(1)
	go func() {
		defer s.followUps.Done()
		defer func() {
			if r := recover(); r != nil {
				log.Errorf("Unhandled interaction error: %v", r)
				if err := s.claims.discord.EditOriginalResponse(ctx, interactionToken, msgUnexpected); err != nil {
					log.WithError(err).Error("Failed to edit the deferred reply")
				}
			}
		}()
		followUp(ctx)
	}()
}

func logrusFields(i *Interaction) log.Fields {
	return log.Fields{
		"interaction_id":   i.ID,
		"interaction_type": i.Type,
		"user_id":          i.UserID(),
	}
}

// verifySignature checks the Ed25519 signature Discord puts on every
// interaction, computed over the timestamp header followed by the body.
func verifySignature(key ed25519.PublicKey, header http.Header, body []byte) bool {
	signature, err := hex.DecodeString(header.Get("X-Signature-Ed25519"))
	if err != nil || len(signature) != ed25519.SignatureSize {
		return false
	}
	timestamp := header.Get("X-Signature-Timestamp")
	if timestamp == "" || len(key) != ed25519.PublicKeySize {
		return false
	}

	message := make([]byte, 0, len(timestamp)+len(body))
	message = append(message, timestamp...)
	message = append(message, body...)
	return ed25519.Verify(key, message, signature)
}
