package main

import "context"

// ChatPlatform is the set of chat capabilities the bot needs. Implementations
// report ErrArtifactMissing when a channel or message no longer resolves and
// ErrCollaboratorUnavailable for any other failure.
type ChatPlatform interface {
	CreatePrivateChannel(ctx context.Context, spec ChannelSpec) (ChannelRef, error)
	SendMessage(ctx context.Context, channelID string, msg Message) (MessageRef, error)
	EditMessage(ctx context.Context, ref MessageRef, msg Message) error
	DeleteChannel(ctx context.Context, channelID string) error
}

// Identity is a chat user as seen by the bot.
type Identity struct {
	UserID   string
	Username string
	Roles    []string
}

func (i Identity) Mention() string {
	return "<@" + i.UserID + ">"
}

// ChannelSpec describes a channel only VisibleTo (and the bot) can see.
type ChannelSpec struct {
	GuildID   string
	Name      string
	Category  string
	VisibleTo []string
}

type ChannelRef struct {
	GuildID   string
	ChannelID string
	Name      string
}

func (c ChannelRef) Mention() string {
	return "<#" + c.ChannelID + ">"
}

type MessageRef struct {
	ChannelID string
	MessageID string
}

type ButtonStyle int

const (
	ButtonPrimary ButtonStyle = 1
	ButtonSuccess ButtonStyle = 3
)

type Button struct {
	Label    string
	CustomID string
	Style    ButtonStyle
}

type EmbedField struct {
	Name   string
	Value  string
	Inline bool
}

type Embed struct {
	Title       string
	Description string
	Color       int
	Fields      []EmbedField
}

type Message struct {
	Content string
	Embeds  []Embed
	Buttons []Button
}

const (
	colorBlue    = 0x3498DB
	colorBlurple = 0x5865F2
)
