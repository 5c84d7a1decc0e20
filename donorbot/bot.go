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
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/gravitational/trace"
	jsoniter "github.com/json-iterator/go"
)

const (
	discordMaxConns    = 100
	discordHTTPTimeout = 10 * time.Second

	defaultDiscordAPIURL = "https://discord.com/api/v10"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DiscordBot is a Discord REST client acting as the bot. It grants the
// donator role, edits deferred interaction replies and registers commands.
type DiscordBot struct {
	client        *resty.Client
	applicationID string
	guildID       string
	roleID        string
}

// NewDiscordBot initializes the Discord REST client. The config must have
// been checked with CheckAndSetDefaults.
func NewDiscordBot(conf DiscordConfig) *DiscordBot {
	client := resty.
		NewWithClient(&http.Client{
			Timeout: discordHTTPTimeout,
			Transport: &http.Transport{
				MaxConnsPerHost:     discordMaxConns,
				MaxIdleConnsPerHost: discordMaxConns,
			},
		}).
		SetJSONMarshaler(json.Marshal).
		SetJSONUnmarshaler(json.Unmarshal).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetHeader("Authorization", "Bot "+conf.DiscordBotToken).
		OnAfterResponse(onAfterResponseDiscord)

	// APIURL parameter is set only in tests
	if endpoint := conf.DiscordAPIURL; endpoint != "" {
		client.SetBaseURL(endpoint)
	} else {
		client.SetBaseURL(defaultDiscordAPIURL)
	}

	return &DiscordBot{
		client:        client,
		applicationID: conf.DiscordApplicationID,
		guildID:       conf.DiscordGuildID,
		roleID:        conf.DiscordDonatorRoleID,
	}
}

// onAfterResponseDiscord resty error function for Discord
func onAfterResponseDiscord(_ *resty.Client, resp *resty.Response) error {
	if resp.IsSuccess() {
		return nil
	}

	var result DiscordResponse
	if err := json.Unmarshal(resp.Body(), &result); err == nil && result.Message != "" {
		if resp.StatusCode() == http.StatusUnauthorized || resp.StatusCode() == http.StatusForbidden {
			return trace.AccessDenied("%s (code: %v, status: %d)", result.Message, result.Code, resp.StatusCode())
		}
		return trace.Errorf("%s (code: %v, status: %d)", result.Message, result.Code, resp.StatusCode())
	}

	return trace.Errorf("Discord API returned error: %s (status: %d)", string(resp.Body()), resp.StatusCode())
}

// CheckHealth makes sure the bot token is accepted.
func (b *DiscordBot) CheckHealth(ctx context.Context) error {
	_, err := b.client.NewRequest().
		SetContext(ctx).
		Get("/users/@me")
	if err != nil {
		return trace.Wrap(err, "health check failed, probably invalid token")
	}

	return nil
}

// AddRole grants the donator role to a guild member.
func (b *DiscordBot) AddRole(ctx context.Context, userID string) error {
	_, err := b.client.NewRequest().
		SetContext(ctx).
		SetPathParams(map[string]string{
			"guild": b.guildID,
			"user":  userID,
			"role":  b.roleID,
		}).
		Put("/guilds/{guild}/members/{user}/roles/{role}")
	return trace.Wrap(err)
}

// EditOriginalResponse replaces the content of a deferred interaction reply.
func (b *DiscordBot) EditOriginalResponse(ctx context.Context, interactionToken, content string) error {
	_, err := b.client.NewRequest().
		SetContext(ctx).
		SetPathParams(map[string]string{
			"app":   b.applicationID,
			"token": interactionToken,
		}).
		SetBody(EditMessage{Content: content}).
		Patch("/webhooks/{app}/{token}/messages/@original")
	return trace.Wrap(err)
}

// RegisterCommands overwrites the guild commands of the application.
func (b *DiscordBot) RegisterCommands(ctx context.Context, commands []ApplicationCommand) ([]ApplicationCommand, error) {
	var result []ApplicationCommand
	_, err := b.client.NewRequest().
		SetContext(ctx).
		SetPathParams(map[string]string{
			"app":   b.applicationID,
			"guild": b.guildID,
		}).
		SetBody(commands).
		SetResult(&result).
		Put("/applications/{app}/guilds/{guild}/commands")
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return result, nil
}
