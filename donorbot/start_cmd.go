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
	"time"

	"github.com/gravitational/oc-donor-bot/lib"
	"github.com/gravitational/trace"
	log "github.com/sirupsen/logrus"
)

const shutdownTimeout = 15 * time.Second

// Run starts the bot
func (c *StartCmd) Run(cli *CLI) error {
	if err := setupLogger(c.Config, cli.Debug); err != nil {
		return trace.Wrap(err)
	}
	if err := c.CheckAndSetDefaults(); err != nil {
		return trace.Wrap(err)
	}

	log.WithField("path", c.OCTokenPath).Debug("Using OpenCollective token file")
	log.WithField("slug", c.OCCollectiveSlug).Debug("Using OpenCollective collective")
	log.WithField("guild", c.DiscordGuildID).Debug("Using Discord guild")
	if c.ClaimMaxAttempts > 0 {
		log.WithField("attempts", c.ClaimMaxAttempts).WithField("window", c.ClaimWindow).Info("Claim attempts are limited per user")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app := NewApp(*c)
	go lib.ServeSignals(ctx, app, shutdownTimeout)

	return trace.Wrap(app.Run(ctx))
}
