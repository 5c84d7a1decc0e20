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

	"github.com/gravitational/oc-donor-bot/lib/logger"
	"github.com/gravitational/trace"
	log "github.com/sirupsen/logrus"
)

// Run registers the claim-donation command in the configured guild
func (c *RegisterCommandsCmd) Run(cli *CLI) error {
	if err := setupLogger(logger.Config{}, cli.Debug); err != nil {
		return trace.Wrap(err)
	}
	if err := c.DiscordConfig.CheckAndSetDefaults(); err != nil {
		return trace.Wrap(err)
	}

	log.Info("Registering slash commands...")
	registered, err := registerCommands(context.Background(), NewDiscordBot(c.DiscordConfig))
	if err != nil {
		return trace.Wrap(err, "failed to register commands")
	}
	for _, cmd := range registered {
		log.WithField("id", cmd.ID).Infof("Registered /%s", cmd.Name)
	}
	fmt.Println("Slash commands registered successfully.")
	return nil
}

type commandRegistrar interface {
	RegisterCommands(ctx context.Context, commands []ApplicationCommand) ([]ApplicationCommand, error)
}

func registerCommands(ctx context.Context, bot commandRegistrar) ([]ApplicationCommand, error) {
	claims := NewClaimHandler(nil, nil, "", nil)
	registered, err := bot.RegisterCommands(ctx, []ApplicationCommand{claims.Command()})
	return registered, trace.Wrap(err)
}
