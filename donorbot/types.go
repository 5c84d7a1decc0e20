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

// InteractionType is the kind of an incoming interaction.
type InteractionType int

const (
	InteractionTypePing               InteractionType = 1
	InteractionTypeApplicationCommand InteractionType = 2
	InteractionTypeMessageComponent   InteractionType = 3
	InteractionTypeAutocomplete       InteractionType = 4
	InteractionTypeModalSubmit        InteractionType = 5
)

// ResponseType is the kind of an interaction response.
type ResponseType int

const (
	ResponseTypePong                     ResponseType = 1
	ResponseTypeChannelMessageWithSource ResponseType = 4
	ResponseTypeDeferredChannelMessage   ResponseType = 5
	ResponseTypeModal                    ResponseType = 9
)

// ComponentType is the kind of a message or modal component.
type ComponentType int

const (
	ComponentTypeActionRow ComponentType = 1
	ComponentTypeTextInput ComponentType = 4
)

const (
	// MessageFlagEphemeral makes a reply visible to the invoking user only.
	MessageFlagEphemeral = 1 << 6

	// TextInputStyleShort is a single-line text input.
	TextInputStyleShort = 1

	// ApplicationCommandTypeChatInput is a slash command.
	ApplicationCommandTypeChatInput = 1
)

type User struct {
	ID       string `json:"id"`
	Username string `json:"username,omitempty"`
}

type GuildMember struct {
	User  *User    `json:"user,omitempty"`
	Roles []string `json:"roles"`
}

type Component struct {
	Type        ComponentType `json:"type"`
	CustomID    string        `json:"custom_id,omitempty"`
	Label       string        `json:"label,omitempty"`
	Placeholder string        `json:"placeholder,omitempty"`
	Style       int           `json:"style,omitempty"`
	Required    bool          `json:"required,omitempty"`
	Value       string        `json:"value,omitempty"`
	Components  []Component   `json:"components,omitempty"`
}

type InteractionData struct {
	// Name is set for application commands.
	Name string `json:"name,omitempty"`
	// CustomID is set for modal submissions.
	CustomID   string      `json:"custom_id,omitempty"`
	Components []Component `json:"components,omitempty"`
}

// Interaction is the payload Discord posts to the interactions endpoint.
type Interaction struct {
	ID            string           `json:"id"`
	ApplicationID string           `json:"application_id"`
	Type          InteractionType  `json:"type"`
	Data          *InteractionData `json:"data,omitempty"`
	GuildID       string           `json:"guild_id,omitempty"`
	Member        *GuildMember     `json:"member,omitempty"`
	User          *User            `json:"user,omitempty"`
	Token         string           `json:"token"`
}

// UserID returns the id of the invoking user, inside or outside of a guild.
func (i *Interaction) UserID() string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}

// HasRole reports whether the invoking guild member holds the role.
func (i *Interaction) HasRole(roleID string) bool {
	if i.Member == nil {
		return false
	}
	for _, role := range i.Member.Roles {
		if role == roleID {
			return true
		}
	}
	return false
}

// TextInputValue returns the submitted value of a modal text input.
func (i *Interaction) TextInputValue(customID string) (string, bool) {
	if i.Data == nil {
		return "", false
	}
	return findTextInput(i.Data.Components, customID)
}

func findTextInput(components []Component, customID string) (string, bool) {
	for _, c := range components {
		if c.Type == ComponentTypeTextInput && c.CustomID == customID {
			return c.Value, true
		}
		if value, ok := findTextInput(c.Components, customID); ok {
			return value, true
		}
	}
	return "", false
}

type InteractionResponseData struct {
	Content    string      `json:"content,omitempty"`
	Flags      int         `json:"flags,omitempty"`
	CustomID   string      `json:"custom_id,omitempty"`
	Title      string      `json:"title,omitempty"`
	Components []Component `json:"components,omitempty"`
}

type InteractionResponse struct {
	Type ResponseType             `json:"type"`
	Data *InteractionResponseData `json:"data,omitempty"`
}

// EditMessage is the body of an original response edit.
type EditMessage struct {
	Content string `json:"content"`
}

// ApplicationCommand is a command definition as registered with Discord.
type ApplicationCommand struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Type        int    `json:"type,omitempty"`
}

// DiscordResponse is the Discord API error body.
type DiscordResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}
