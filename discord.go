package main

import (
	"context"
	"net/http"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/juju/errors"
	"golang.org/x/time/rate"
)

type DiscordConfig struct {
	Token         string
	ApplicationID string
	// RequestsPerSecond caps this process's REST traffic on top of the
	// per-route buckets discordgo tracks.
	RequestsPerSecond float64
	HTTPClient        *http.Client
	Logger            *Logger
}

// DiscordClient is a ChatPlatform over the Discord REST API. It never opens a
// gateway connection.
type DiscordClient struct {
	session       *discordgo.Session
	applicationID string
	limiter       *rate.Limiter
	log           *Logger

	selfMu    sync.Mutex
	botUserID string

	categoryMu sync.Mutex
	categories map[string]string
}

func NewDiscordClient(cfg DiscordConfig) (*DiscordClient, error) {
	if cfg.Token == "" {
		return nil, errors.NotValidf("empty discord token")
	}
	if cfg.ApplicationID == "" {
		return nil, errors.NotValidf("empty application id")
	}
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, errors.Annotate(err, "creating discord session")
	}
	session.StateEnabled = false
	if cfg.HTTPClient != nil {
		session.Client = cfg.HTTPClient
	}

	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	log := cfg.Logger
	if log == nil {
		log = NewNopLogger()
	}
	return &DiscordClient{
		session:       session,
		applicationID: cfg.ApplicationID,
		limiter:       rate.NewLimiter(rate.Limit(rps), 1),
		log:           log.With("component", "discord"),
		categories:    make(map[string]string),
	}, nil
}

/* ======================
   Message conversion
   ====================== */

func discordEmbeds(msg Message) []*discordgo.MessageEmbed {
	embeds := make([]*discordgo.MessageEmbed, 0, len(msg.Embeds))
	for _, e := range msg.Embeds {
		embed := &discordgo.MessageEmbed{Title: e.Title, Description: e.Description, Color: e.Color}
		for _, f := range e.Fields {
			embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: f.Name, Value: f.Value, Inline: f.Inline})
		}
		embeds = append(embeds, embed)
	}
	return embeds
}

func discordComponents(msg Message) []discordgo.MessageComponent {
	if len(msg.Buttons) == 0 {
		return []discordgo.MessageComponent{}
	}
	row := discordgo.ActionsRow{}
	for _, b := range msg.Buttons {
		row.Components = append(row.Components, discordgo.Button{
			Label:    b.Label,
			Style:    discordgo.ButtonStyle(b.Style),
			CustomID: b.CustomID,
		})
	}
	return []discordgo.MessageComponent{row}
}

/* ======================
   ChatPlatform
   ====================== */

// CreatePrivateChannel creates a text channel under the named category,
// creating the category on first use. Only spec.VisibleTo and the bot can
// see the channel.
func (c *DiscordClient) CreatePrivateChannel(ctx context.Context, spec ChannelSpec) (ChannelRef, error) {
	botID, err := c.selfID(ctx)
	if err != nil {
		return ChannelRef{}, err
	}
	parentID, err := c.ensureCategory(ctx, spec.GuildID, spec.Category)
	if err != nil {
		if errors.Is(err, ErrArtifactMissing) {
			return ChannelRef{}, errors.Annotatef(ErrCollaboratorUnavailable, "guild %s not resolvable: %v", spec.GuildID, err)
		}
		return ChannelRef{}, err
	}

	overwrites := []*discordgo.PermissionOverwrite{
		// The @everyone role shares the guild's id.
		{ID: spec.GuildID, Type: discordgo.PermissionOverwriteTypeRole, Deny: discordgo.PermissionViewChannel},
		{ID: botID, Type: discordgo.PermissionOverwriteTypeMember, Allow: discordgo.PermissionViewChannel},
	}
	for _, id := range spec.VisibleTo {
		overwrites = append(overwrites, &discordgo.PermissionOverwrite{
			ID:    id,
			Type:  discordgo.PermissionOverwriteTypeMember,
			Allow: discordgo.PermissionViewChannel,
		})
	}

	var created *discordgo.Channel
	err = c.call(ctx, "create channel "+spec.Name, func(opt discordgo.RequestOption) (err error) {
		created, err = c.session.GuildChannelCreateComplex(spec.GuildID, discordgo.GuildChannelCreateData{
			Name:                 spec.Name,
			Type:                 discordgo.ChannelTypeGuildText,
			ParentID:             parentID,
			PermissionOverwrites: overwrites,
		}, opt)
		return err
	})
	if err != nil {
		c.forgetCategory(spec.GuildID, spec.Category)
		if errors.Is(err, ErrArtifactMissing) {
			return ChannelRef{}, errors.Annotatef(ErrCollaboratorUnavailable, "guild %s not resolvable: %v", spec.GuildID, err)
		}
		return ChannelRef{}, err
	}
	return ChannelRef{GuildID: spec.GuildID, ChannelID: created.ID, Name: created.Name}, nil
}

func (c *DiscordClient) SendMessage(ctx context.Context, channelID string, msg Message) (MessageRef, error) {
	var sent *discordgo.Message
	err := c.call(ctx, "send message to "+channelID, func(opt discordgo.RequestOption) (err error) {
		sent, err = c.session.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
			Content:    msg.Content,
			Embeds:     discordEmbeds(msg),
			Components: discordComponents(msg),
		}, opt)
		return err
	})
	if err != nil {
		return MessageRef{}, err
	}
	ref := MessageRef{ChannelID: sent.ChannelID, MessageID: sent.ID}
	if ref.ChannelID == "" {
		ref.ChannelID = channelID
	}
	return ref, nil
}

// EditMessage replaces the message's content, embeds and components.
func (c *DiscordClient) EditMessage(ctx context.Context, ref MessageRef, msg Message) error {
	content := msg.Content
	embeds := discordEmbeds(msg)
	components := discordComponents(msg)
	return c.call(ctx, "edit message "+ref.MessageID, func(opt discordgo.RequestOption) error {
		_, err := c.session.ChannelMessageEditComplex(&discordgo.MessageEdit{
			ID:         ref.MessageID,
			Channel:    ref.ChannelID,
			Content:    &content,
			Embeds:     &embeds,
			Components: &components,
		}, opt)
		return err
	})
}

func (c *DiscordClient) DeleteChannel(ctx context.Context, channelID string) error {
	return c.call(ctx, "delete channel "+channelID, func(opt discordgo.RequestOption) error {
		_, err := c.session.ChannelDelete(channelID, opt)
		return err
	})
}

// SendFollowup posts a follow-up message for a deferred interaction.
func (c *DiscordClient) SendFollowup(ctx context.Context, interactionToken string, content string, ephemeral bool) error {
	params := &discordgo.WebhookParams{Content: content}
	if ephemeral {
		params.Flags = discordgo.MessageFlagsEphemeral
	}
	interaction := &discordgo.Interaction{AppID: c.applicationID, Token: interactionToken}
	return c.call(ctx, "interaction follow-up", func(opt discordgo.RequestOption) error {
		_, err := c.session.FollowupMessageCreate(interaction, false, params, opt)
		return err
	})
}

// SyncCommands replaces the guild's slash commands with commands.
func (c *DiscordClient) SyncCommands(ctx context.Context, guildID string, commands []*discordgo.ApplicationCommand) error {
	return c.call(ctx, "sync commands", func(opt discordgo.RequestOption) error {
		_, err := c.session.ApplicationCommandBulkOverwrite(c.applicationID, guildID, commands, opt)
		return err
	})
}

/* ======================
   Identity and categories
   ====================== */

// selfID returns the bot's user id. It is looked up once; older
// applications have a bot user id that differs from the application id.
func (c *DiscordClient) selfID(ctx context.Context) (string, error) {
	c.selfMu.Lock()
	defer c.selfMu.Unlock()
	if c.botUserID != "" {
		return c.botUserID, nil
	}
	var me *discordgo.User
	err := c.call(ctx, "current user", func(opt discordgo.RequestOption) (err error) {
		me, err = c.session.User("@me", opt)
		return err
	})
	if err != nil {
		return "", errors.Annotate(err, "resolving bot user")
	}
	c.botUserID = me.ID
	return me.ID, nil
}

func (c *DiscordClient) ensureCategory(ctx context.Context, guildID, name string) (string, error) {
	if name == "" {
		return "", nil
	}
	c.categoryMu.Lock()
	defer c.categoryMu.Unlock()

	key := guildID + "/" + name
	if id, ok := c.categories[key]; ok {
		return id, nil
	}

	var channels []*discordgo.Channel
	err := c.call(ctx, "list channels of "+guildID, func(opt discordgo.RequestOption) (err error) {
		channels, err = c.session.GuildChannels(guildID, opt)
		return err
	})
	if err != nil {
		return "", err
	}
	for _, ch := range channels {
		if ch.Type == discordgo.ChannelTypeGuildCategory && ch.Name == name {
			c.categories[key] = ch.ID
			return ch.ID, nil
		}
	}

	var created *discordgo.Channel
	err = c.call(ctx, "create category "+name, func(opt discordgo.RequestOption) (err error) {
		created, err = c.session.GuildChannelCreateComplex(guildID, discordgo.GuildChannelCreateData{
			Name: name,
			Type: discordgo.ChannelTypeGuildCategory,
		}, opt)
		return err
	})
	if err != nil {
		return "", err
	}
	c.log.Info("created ticket category", "guild_id", guildID, "category_id", created.ID, "name", name)
	c.categories[key] = created.ID
	return created.ID, nil
}

func (c *DiscordClient) forgetCategory(guildID, name string) {
	c.categoryMu.Lock()
	defer c.categoryMu.Unlock()
	delete(c.categories, guildID+"/"+name)
}

/* ======================
   Transport
   ====================== */

// call runs one discordgo REST call bound to ctx. 404 maps to
// ErrArtifactMissing and every other failure to ErrCollaboratorUnavailable.
func (c *DiscordClient) call(ctx context.Context, op string, fn func(opt discordgo.RequestOption) error) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return errors.Annotatef(ErrCollaboratorUnavailable, "%s: %v", op, err)
	}
	err := fn(discordgo.WithContext(ctx))
	if err == nil {
		return nil
	}

	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil {
		status := restErr.Response.StatusCode
		if status == http.StatusNotFound {
			return errors.Annotatef(ErrArtifactMissing, "%s", op)
		}
		return errors.Annotatef(ErrCollaboratorUnavailable, "%s: status %d: %s", op, status, truncate(string(restErr.ResponseBody), 200))
	}
	return errors.Annotatef(ErrCollaboratorUnavailable, "%s: %v", op, err)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
