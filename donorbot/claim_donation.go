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
	"strings"

	"github.com/gravitational/oc-donor-bot/lib"
	"github.com/gravitational/oc-donor-bot/lib/logger"
	"github.com/gravitational/oc-donor-bot/lib/opencollective"
	"github.com/gravitational/trace"
	"github.com/sethvargo/go-limiter"
	"github.com/sethvargo/go-limiter/memorystore"
)

const (
	claimCommandName        = "claim-donation"
	claimCommandDescription = "Claim your Donator role by verifying your OpenCollective donation"
	claimModalID            = "claim-donation-modal"
	claimModalTitle         = "Verify Your Donation"
	emailInputID            = "email-input"

	msgAlreadyDonator  = "You already have the Donator role! Thank you for your support."
	msgVerified        = "Donation verified! You have been given the **Donator** role. Thank you for supporting RetroDECK!"
	msgMissingEmail    = "Please enter the email you used on OpenCollective."
	msgTooManyAttempts = "You have made too many verification attempts. Please try again later."
	msgVerifyFailed    = "Something went wrong while verifying your donation. Please try again later or contact a moderator."
	msgUnexpected      = "An unexpected error occurred. Please try again later."
	msgNotFound        = "Could not find a donation matching that email. Please double-check the email you used on OpenCollective.\n\n" +
		"If you donated as a guest or anonymously, automatic verification isn't possible. " +
		"Please contact a moderator for manual verification."
)

// Verifier looks donors up in the ledger.
type Verifier interface {
	VerifyDonor(ctx context.Context, email string) (opencollective.DonorRecord, error)
}

// DiscordAPI is the part of the Discord REST API the claim flow uses.
type DiscordAPI interface {
	AddRole(ctx context.Context, userID string) error
	EditOriginalResponse(ctx context.Context, interactionToken, content string) error
}

// FollowUp completes an interaction after its initial response was sent.
type FollowUp func(ctx context.Context)

// ClaimHandler implements the claim-donation command and its modal.
type ClaimHandler struct {
	verifier Verifier
	discord  DiscordAPI
	roleID   string
	throttle limiter.Store
}

// NewClaimHandler builds the handler. throttle may be nil.
func NewClaimHandler(verifier Verifier, discord DiscordAPI, roleID string, throttle limiter.Store) *ClaimHandler {
	return &ClaimHandler{
		verifier: verifier,
		discord:  discord,
		roleID:   roleID,
		throttle: throttle,
	}
}

// NewClaimThrottle returns a per-user attempts limiter, or nil when the
// limit is disabled.
func NewClaimThrottle(conf ClaimConfig) (limiter.Store, error) {
	if conf.ClaimMaxAttempts <= 0 {
		return nil, nil
	}
	store, err := memorystore.New(&memorystore.Config{
		Tokens:   uint64(conf.ClaimMaxAttempts),
		Interval: conf.ClaimWindow,
	})
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return store, nil
}

// Command is the slash command definition.
func (h *ClaimHandler) Command() ApplicationCommand {
	return ApplicationCommand{
		Name:        claimCommandName,
		Description: claimCommandDescription,
		Type:        ApplicationCommandTypeChatInput,
	}
}

// HandleCommand answers the slash command with the email modal.
func (h *ClaimHandler) HandleCommand(_ context.Context, _ *Interaction) InteractionResponse {
	return InteractionResponse{
		Type: ResponseTypeModal,
		Data: &InteractionResponseData{
			CustomID: claimModalID,
			Title:    claimModalTitle,
			Components: []Component{{
				Type: ComponentTypeActionRow,
				Components: []Component{{
					Type:        ComponentTypeTextInput,
					CustomID:    emailInputID,
					Label:       "Email used on OpenCollective",
					Placeholder: "your-email@example.com",
					Style:       TextInputStyleShort,
					Required:    true,
				}},
			}},
		},
	}
}

// HandleModalSubmit answers a submitted modal. When the ledger has to be
// queried, the response is a deferred ephemeral reply and the returned
// FollowUp does the lookup and edits that reply.
func (h *ClaimHandler) HandleModalSubmit(ctx context.Context, i *Interaction) (InteractionResponse, FollowUp, error) {
	log := logger.Get(ctx)

	userID := i.UserID()
	if userID == "" {
		return InteractionResponse{}, nil, trace.BadParameter("interaction %v carries no user", i.ID)
	}

	if i.HasRole(h.roleID) {
		log.Debug("Member already has the donator role")
		return ephemeral(msgAlreadyDonator), nil, nil
	}

	value, ok := i.TextInputValue(emailInputID)
	if !ok {
		return InteractionResponse{}, nil, trace.BadParameter("modal submission is missing the %s field", emailInputID)
	}
	email := strings.TrimSpace(value)
	if email == "" {
		return ephemeral(msgMissingEmail), nil, nil
	}

	if h.throttle != nil {
		_, _, _, allowed, err := h.throttle.Take(ctx, userID)
		switch {
		case err != nil:
			log.WithError(err).Warn("Claim throttle failed, letting the attempt through")
		case !allowed:
			log.Info("Too many claim attempts")
			return ephemeral(msgTooManyAttempts), nil, nil
		}
	}

	followUp := func(ctx context.Context) {
		h.verify(ctx, userID, i.Token, email)
	}
	return deferredEphemeral(), followUp, nil
}

// verify looks the email up, grants the role when found and edits the
// deferred reply with the outcome.
func (h *ClaimHandler) verify(ctx context.Context, userID, interactionToken, email string) {
	log := logger.Get(ctx)

	var content string
	record, err := h.verifier.VerifyDonor(ctx, email)
	switch {
	case lib.IsCanceled(err) || lib.IsDeadline(err):
		log.WithError(err).Warn("Donation lookup interrupted")
		content = msgVerifyFailed
	case err != nil:
		log.WithError(err).Error("Error verifying donation")
		if opencollective.IsAuthError(err) {
			log.Error("OpenCollective rejected the OAuth token, run setup-oauth to re-authenticate")
		}
		content = msgVerifyFailed
	case record.Found:
		if err := h.discord.AddRole(ctx, userID); err != nil {
			log.WithError(err).Error("Failed to grant the donator role")
			content = msgVerifyFailed
			break
		}
		log.WithField("source", record.Source).Info("Donation verified, donator role granted")
		content = msgVerified
	default:
		log.Info("No donation found for the submitted email")
		content = msgNotFound
	}

	if err := h.discord.EditOriginalResponse(ctx, interactionToken, content); err != nil {
		log.WithError(err).Error("Failed to edit the deferred reply")
	}
}

func ephemeral(content string) InteractionResponse {
	return InteractionResponse{
		Type: ResponseTypeChannelMessageWithSource,
		Data: &InteractionResponseData{Content: content, Flags: MessageFlagEphemeral},
	}
}

func deferredEphemeral() InteractionResponse {
	return InteractionResponse{
		Type: ResponseTypeDeferredChannelMessage,
		Data: &InteractionResponseData{Flags: MessageFlagEphemeral},
	}
}
