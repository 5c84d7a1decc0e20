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
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"net/url"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/gravitational/oc-donor-bot/lib"
	"github.com/gravitational/oc-donor-bot/lib/auth/oauth"
	"github.com/gravitational/oc-donor-bot/lib/auth/state"
	"github.com/gravitational/oc-donor-bot/lib/logger"
	"github.com/gravitational/trace"
)

// DiscordConfig is the Discord application configuration.
type DiscordConfig struct {
	// DiscordBotToken authenticates REST calls as the bot
	DiscordBotToken string `name:"discord-bot-token" help:"Discord bot token" env:"DISCORD_BOT_TOKEN"`

	// DiscordGuildID is the only guild the bot serves
	DiscordGuildID string `name:"discord-guild-id" help:"Discord guild (server) id" env:"DISCORD_GUILD_ID"`

	// DiscordDonatorRoleID is granted to verified donors
	DiscordDonatorRoleID string `name:"discord-donator-role-id" help:"Id of the role granted to verified donors" env:"DISCORD_DONATOR_ROLE_ID"`

	// DiscordPublicKey is the hex-encoded application key interactions are signed with
	DiscordPublicKey string `name:"discord-public-key" help:"Application public key used to verify interaction signatures" env:"DISCORD_PUBLIC_KEY"`

	// DiscordApplicationID is derived from the bot token when empty
	DiscordApplicationID string `name:"discord-application-id" help:"Application id, derived from the bot token when empty" env:"DISCORD_APPLICATION_ID"`

	// DiscordAPIURL is set only in tests
	DiscordAPIURL string `kong:"-"`
}

// OpenCollectiveConfig is the ledger configuration.
type OpenCollectiveConfig struct {
	// OCCollectiveSlug is the collective whose backers are verified
	OCCollectiveSlug string `name:"oc-collective-slug" help:"OpenCollective collective slug" env:"OC_COLLECTIVE_SLUG"`

	// OCPageSize is the number of nodes fetched per GraphQL page
	OCPageSize int `name:"oc-page-size" help:"Ledger query page size" default:"100" env:"OC_PAGE_SIZE"`

	// OCAPIURL is set only in tests
	OCAPIURL string `kong:"-"`
}

// TokenConfig locates the stored OAuth credential.
type TokenConfig struct {
	OCTokenPath string `name:"oc-token-path" help:"Path of the OpenCollective OAuth token file" default:"data/oc-token.json" env:"OC_TOKEN_PATH"`
}

// OAuthConfig is the OpenCollective OAuth application configuration.
type OAuthConfig struct {
	OCClientID     string `name:"oc-client-id" help:"OpenCollective OAuth client id" env:"OC_CLIENT_ID"`
	OCClientSecret string `name:"oc-client-secret" help:"OpenCollective OAuth client secret" env:"OC_CLIENT_SECRET"`
	OCRedirectURI  string `name:"oc-redirect-uri" help:"OAuth redirect uri, the callback listener binds its port" default:"http://localhost:3000/callback" env:"OC_REDIRECT_URI"`
}

// ClaimConfig throttles claim attempts per user. Disabled when
// ClaimMaxAttempts is zero.
type ClaimConfig struct {
	ClaimMaxAttempts int           `name:"claim-max-attempts" help:"Claim attempts allowed per user within the window, 0 disables the limit" default:"0" env:"DONORBOT_CLAIM_MAX_ATTEMPTS"`
	ClaimWindow      time.Duration `name:"claim-window" help:"Claim attempts window" default:"1h" env:"DONORBOT_CLAIM_WINDOW"`
}

// StartCmd is the start command configuration
type StartCmd struct {
	DiscordConfig
	OpenCollectiveConfig
	TokenConfig
	ClaimConfig
	lib.HTTPConfig
	logger.Config

	publicKey ed25519.PublicKey
}

// SetupOAuthCmd is the setup-oauth command configuration
type SetupOAuthCmd struct {
	OAuthConfig
	TokenConfig

	Timeout   time.Duration `help:"How long to wait for the OAuth callback" default:"10m"`
	Yes       bool          `help:"Overwrite an existing token without asking" short:"y"`
	NoBrowser bool          `help:"Do not try to open the authorization URL in a browser"`
}

// RegisterCommandsCmd is the register-commands command configuration
type RegisterCommandsCmd struct {
	DiscordConfig
}

// TokenInfoCmd is the token-info command configuration
type TokenInfoCmd struct {
	TokenConfig
	OpenCollectiveConfig

	Check bool `help:"Check the token against the OpenCollective API"`
}

// ConfigureCmd prints an example configuration file
type ConfigureCmd struct {
	Out   string `arg:"true" optional:"true" help:"Write the example to this file instead of stdout"`
	Force bool   `help:"Overwrite the output file if it exists"`
}

// VersionCmd prints the version
type VersionCmd struct{}

// CLI represents command structure
type CLI struct {
	// Config is the path to configuration file
	Config kong.ConfigFlag `help:"Path to TOML configuration file" optional:"true" type:"existingfile" env:"DONORBOT_CONFIG"`

	// Debug is a debug logging mode flag
	Debug bool `help:"Debug logging" short:"d"`

	Version          VersionCmd          `cmd:"true" help:"Print bot version"`
	Configure        ConfigureCmd        `cmd:"true" help:"Print an example configuration file"`
	Start            StartCmd            `cmd:"true" help:"Serve Discord interactions"`
	SetupOAuth       SetupOAuthCmd       `cmd:"true" name:"setup-oauth" help:"Authorize the bot with OpenCollective and store the token"`
	RegisterCommands RegisterCommandsCmd `cmd:"true" name:"register-commands" help:"Register the slash command in the guild"`
	TokenInfo        TokenInfoCmd        `cmd:"true" name:"token-info" help:"Show the stored OpenCollective token"`
}

// CheckAndSetDefaults checks the bot credentials and derives the application
// id when it is not configured.
func (c *DiscordConfig) CheckAndSetDefaults() error {
	if c.DiscordBotToken == "" {
		return trace.BadParameter("missing required value discord-bot-token (DISCORD_BOT_TOKEN)")
	}
	if c.DiscordGuildID == "" {
		return trace.BadParameter("missing required value discord-guild-id (DISCORD_GUILD_ID)")
	}
	if c.DiscordApplicationID == "" {
		id, err := applicationIDFromToken(c.DiscordBotToken)
		if err != nil {
			return trace.Wrap(err)
		}
		c.DiscordApplicationID = id
	}
	return nil
}

// applicationIDFromToken decodes the application id carried by the first
// segment of a bot token.
func applicationIDFromToken(token string) (string, error) {
	first, _, _ := strings.Cut(token, ".")
	first = strings.TrimRight(first, "=")

	raw, err := base64.RawStdEncoding.DecodeString(first)
	if err != nil {
		raw, err = base64.RawURLEncoding.DecodeString(first)
	}
	id := string(raw)
	if err != nil || id == "" || strings.Trim(id, "0123456789") != "" {
		return "", trace.BadParameter("cannot derive the application id from the bot token, set discord-application-id (DISCORD_APPLICATION_ID)")
	}
	return id, nil
}

// CheckAndSetDefaults validates the start command configuration.
func (c *StartCmd) CheckAndSetDefaults() error {
	if err := c.DiscordConfig.CheckAndSetDefaults(); err != nil {
		return trace.Wrap(err)
	}
	if c.DiscordDonatorRoleID == "" {
		return trace.BadParameter("missing required value discord-donator-role-id (DISCORD_DONATOR_ROLE_ID)")
	}
	if c.DiscordPublicKey == "" {
		return trace.BadParameter("missing required value discord-public-key (DISCORD_PUBLIC_KEY)")
	}
	key, err := hex.DecodeString(c.DiscordPublicKey)
	if err != nil || len(key) != ed25519.PublicKeySize {
		return trace.BadParameter("discord-public-key must be a hex-encoded %d-byte ed25519 key", ed25519.PublicKeySize)
	}
	c.publicKey = ed25519.PublicKey(key)

	if c.OCCollectiveSlug == "" {
		return trace.BadParameter("missing required value oc-collective-slug (OC_COLLECTIVE_SLUG)")
	}
	if c.OCTokenPath == "" {
		c.OCTokenPath = state.DefaultPath
	}
	if c.ClaimMaxAttempts < 0 {
		return trace.BadParameter("claim-max-attempts must not be negative")
	}
	if c.ClaimMaxAttempts > 0 && c.ClaimWindow <= 0 {
		return trace.BadParameter("claim-window must be positive when claim-max-attempts is set")
	}
	return trace.Wrap(c.HTTPConfig.Check())
}

// CheckAndSetDefaults validates the setup-oauth command configuration.
func (c *SetupOAuthCmd) CheckAndSetDefaults() error {
	if c.OCClientID == "" || c.OCClientSecret == "" {
		return trace.BadParameter("missing OC_CLIENT_ID or OC_CLIENT_SECRET")
	}
	if c.OCRedirectURI == "" {
		c.OCRedirectURI = oauth.DefaultRedirectURI
	}
	redirect, err := url.Parse(c.OCRedirectURI)
	if err != nil || (redirect.Scheme != "http" && redirect.Scheme != "https") {
		return trace.BadParameter("oc-redirect-uri %q must be an http(s) url", c.OCRedirectURI)
	}
	if c.OCTokenPath == "" {
		c.OCTokenPath = state.DefaultPath
	}
	if c.Timeout <= 0 {
		c.Timeout = oauth.DefaultTimeout
	}
	return nil
}
