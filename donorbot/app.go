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
	"sync"
	"time"

	"github.com/gravitational/oc-donor-bot/lib"
	"github.com/gravitational/oc-donor-bot/lib/auth"
	"github.com/gravitational/oc-donor-bot/lib/auth/state"
	"github.com/gravitational/oc-donor-bot/lib/logger"
	"github.com/gravitational/oc-donor-bot/lib/opencollective"
	"github.com/gravitational/trace"
	"github.com/sethvargo/go-limiter"
	"golang.org/x/sync/errgroup"
)

const followUpDrainTimeout = 15 * time.Second

// App is the bot process: it checks both upstream APIs and serves
// interactions until it is shut down.
type App struct {
	conf StartCmd

	ledger   *opencollective.Client
	bot      *DiscordBot
	throttle limiter.Store

	mu     sync.Mutex // protects the below fields
	tokens *auth.StoredAccessTokenProvider
	server *InteractionServer
	cancel context.CancelFunc
}

// NewApp builds the app. conf must have been checked with
// CheckAndSetDefaults.
func NewApp(conf StartCmd) *App {
	return &App{conf: conf}
}

// Run loads the OpenCollective token, checks both APIs and serves
// interactions. A missing token is reported before Discord is contacted.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	a.mu.Lock()
	a.cancel = cancel
	a.mu.Unlock()

	log := logger.Get(ctx)
	log.Infof("Starting %s %s:%s", appName, Version, Gitref)

	if err := a.setup(ctx); err != nil {
		return trace.Wrap(err)
	}
	if a.throttle != nil {
		defer a.throttle.Close(context.Background())
	}

	server, err := NewInteractionServer(a.conf.HTTPConfig, a.conf.publicKey,
		NewClaimHandler(a.ledger, a.bot, a.conf.DiscordDonatorRoleID, a.throttle))
	if err != nil {
		return trace.Wrap(err)
	}
	if err := server.Bind(); err != nil {
		return trace.Wrap(err)
	}
	a.mu.Lock()
	a.server = server
	a.mu.Unlock()

	log.WithField("addr", server.Addr()).Infof("Serving Discord interactions, endpoint %s", server.InteractionsURL())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return trace.Wrap(server.Run(gctx))
	})
	g.Go(func() error {
		<-gctx.Done()
		drainCtx, drainCancel := context.WithTimeout(context.Background(), followUpDrainTimeout)
		defer drainCancel()
		if err := server.WaitFollowUps(drainCtx); lib.IsDeadline(err) {
			log.Warnf("Some interactions were still being processed after %v, exiting anyway", followUpDrainTimeout)
		} else if err != nil {
			log.WithError(err).Warn("Failed to wait for pending interactions")
		}
		return nil
	})

	return trace.Wrap(g.Wait())
}

// setup loads the token and builds the API clients. The token comes first so
// that a bot without one never contacts Discord.
func (a *App) setup(ctx context.Context) error {
	log := logger.Get(ctx)

	st, err := state.NewFileState(a.conf.OCTokenPath)
	if err != nil {
		return trace.Wrap(err)
	}
	tokens, err := auth.NewStoredAccessTokenProvider(ctx, st)
	if trace.IsNotFound(err) {
		return trace.NotFound("No OpenCollective OAuth token found at %s. "+
			"Run setup-oauth to authenticate with OpenCollective before starting the bot.", st.Path())
	}
	if err != nil {
		return trace.Wrap(err, "failed to load the OpenCollective OAuth token from %s", st.Path())
	}
	a.mu.Lock()
	a.tokens = tokens
	a.mu.Unlock()
	log.Info("OpenCollective OAuth token loaded.")

	a.ledger, err = opencollective.NewClient(opencollective.ClientConfig{
		APIURL:   a.conf.OCAPIURL,
		Slug:     a.conf.OCCollectiveSlug,
		PageSize: a.conf.OCPageSize,
		Tokens:   tokens,
	})
	if err != nil {
		return trace.Wrap(err)
	}

	log.Debug("Starting OpenCollective API health check...")
	if err := a.ledger.CheckHealth(ctx); err != nil {
		if opencollective.IsAuthError(err) {
			log.Error("OpenCollective rejected the OAuth token, run setup-oauth to re-authenticate")
		}
		return trace.Wrap(err, "OpenCollective API health check failed")
	}
	log.Debug("OpenCollective API health check finished ok")

	a.bot = NewDiscordBot(a.conf.DiscordConfig)
	log.Debug("Starting Discord API health check...")
	if err := a.bot.CheckHealth(ctx); err != nil {
		return trace.Wrap(err, "Discord API health check failed")
	}
	log.Debug("Discord API health check finished ok")

	a.throttle, err = NewClaimThrottle(a.conf.ClaimConfig)
	return trace.Wrap(err)
}

// Shutdown stops serving and waits for running verifications.
func (a *App) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	server, cancel := a.server, a.cancel
	a.mu.Unlock()

	var err error
	if server != nil {
		err = server.Shutdown(ctx)
	}
	if cancel != nil {
		cancel()
	}
	return trace.Wrap(err)
}

// Close stops the app immediately.
func (a *App) Close() {
	a.mu.Lock()
	server, cancel := a.server, a.cancel
	a.mu.Unlock()

	if server != nil {
		server.Close()
	}
	if cancel != nil {
		cancel()
	}
}

// Reload re-reads the OpenCollective token from disk.
func (a *App) Reload(ctx context.Context) error {
	a.mu.Lock()
	tokens := a.tokens
	a.mu.Unlock()

	if tokens == nil {
		return trace.NotFound("the app is not running")
	}
	if err := tokens.Reload(ctx); err != nil {
		return trace.Wrap(err, "failed to reload the OpenCollective OAuth token")
	}
	logger.Get(ctx).Info("OpenCollective OAuth token reloaded.")
	return nil
}
