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
	"testing"
	"time"

	"github.com/gravitational/trace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscordBotCheckHealth(t *testing.T) {
	fake := newFakeDiscord(t, "bot-token")
	conf := testDiscordConfig(t, fake)

	require.NoError(t, NewDiscordBot(conf).CheckHealth(context.Background()))

	conf.DiscordBotToken = "wrong-token"
	err := NewDiscordBot(conf).CheckHealth(context.Background())
	require.Error(t, err)
	assert.True(t, trace.IsAccessDenied(err))
}

func TestDiscordBotAddRole(t *testing.T) {
	fake := newFakeDiscord(t, "bot-token")
	bot := NewDiscordBot(testDiscordConfig(t, fake))

	require.NoError(t, bot.AddRole(context.Background(), "42"))
	assert.Equal(t, []FakeRoleAdd{{GuildID: "500", UserID: "42", RoleID: "700"}}, fake.RoleAdds())

	fake.SetFailRoleAdd(true)
	err := bot.AddRole(context.Background(), "43")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Missing Permissions")
	assert.Contains(t, err.Error(), "50013")
}

func TestDiscordBotEditOriginalResponse(t *testing.T) {
	fake := newFakeDiscord(t, "bot-token")
	bot := NewDiscordBot(testDiscordConfig(t, fake))

	require.NoError(t, bot.EditOriginalResponse(context.Background(), "interaction-token", "hello"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	edit, err := fake.CheckEdit(ctx)
	require.NoError(t, err)
	assert.Equal(t, FakeEdit{ApplicationID: "900", InteractionToken: "interaction-token", Content: "hello"}, edit)
}

func TestRegisterCommands(t *testing.T) {
	fake := newFakeDiscord(t, "bot-token")
	bot := NewDiscordBot(testDiscordConfig(t, fake))

	registered, err := registerCommands(context.Background(), bot)
	require.NoError(t, err)
	require.Len(t, registered, 1)
	assert.Equal(t, "900-500-1", registered[0].ID)
	assert.Equal(t, claimCommandName, registered[0].Name)

	commands := fake.Commands()
	require.Len(t, commands, 1)
	assert.Equal(t, claimCommandDescription, commands[0].Description)
	assert.Equal(t, ApplicationCommandTypeChatInput, commands[0].Type)
}
