package main

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
	"github.com/juju/errors"
)

const maxInteractionBody = 1 << 20

const (
	cmdTicketsShow   = "tickets_show"
	cmdBalance       = "balance"
	cmdAddBalance    = "add_balance"
	cmdRemoveBalance = "remove_balance"
	cmdCloseTicket   = "close_ticket"
	cmdInvites       = "invites"
	cmdAddInvites    = "add_invites"
	cmdStatus        = "status"
)

/* ======================
   Interaction payloads
   ====================== */

// commandInput is a slash command with the channel it was invoked in.
// discordgo's Interaction does not carry the channel name, which
// close_ticket checks, so it is decoded from the raw body.
type commandInput struct {
	data    discordgo.ApplicationCommandInteractionData
	channel ChannelRef
}

type interactionChannel struct {
	Channel *struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"channel"`
}

func callerOf(in *discordgo.Interaction) Identity {
	var user *discordgo.User
	var roles []string
	if in.Member != nil {
		user = in.Member.User
		roles = in.Member.Roles
	}
	if user == nil {
		user = in.User
	}
	if user == nil {
		return Identity{}
	}
	return Identity{UserID: user.ID, Username: displayName(user), Roles: roles}
}

func channelOf(in *discordgo.Interaction, body []byte) ChannelRef {
	ref := ChannelRef{GuildID: in.GuildID, ChannelID: in.ChannelID}
	var raw interactionChannel
	if err := json.Unmarshal(body, &raw); err == nil && raw.Channel != nil {
		ref.Name = raw.Channel.Name
		if ref.ChannelID == "" {
			ref.ChannelID = raw.Channel.ID
		}
	}
	return ref
}

func displayName(u *discordgo.User) string {
	if u.GlobalName != "" {
		return u.GlobalName
	}
	return u.Username
}

func option(data discordgo.ApplicationCommandInteractionData, name string) (*discordgo.ApplicationCommandInteractionDataOption, bool) {
	for _, opt := range data.Options {
		if opt != nil && opt.Name == name {
			return opt, true
		}
	}
	return nil, false
}

func stringOption(data discordgo.ApplicationCommandInteractionData, name string) string {
	opt, ok := option(data, name)
	if !ok {
		return ""
	}
	s, _ := opt.Value.(string)
	return s
}

func intOption(data discordgo.ApplicationCommandInteractionData, name string) (int64, bool) {
	opt, ok := option(data, name)
	if !ok {
		return 0, false
	}
	switch v := opt.Value.(type) {
	case float64:
		return int64(v), true
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}

// userOption resolves a USER option to an Identity using the resolved data
// Discord sends alongside the command.
func userOption(data discordgo.ApplicationCommandInteractionData, name string) (Identity, bool) {
	id := stringOption(data, name)
	if id == "" {
		return Identity{}, false
	}
	target := Identity{UserID: id}
	if data.Resolved == nil {
		return target, true
	}
	if u, ok := data.Resolved.Users[id]; ok && u != nil {
		target.Username = displayName(u)
	}
	if m, ok := data.Resolved.Members[id]; ok && m != nil {
		target.Roles = m.Roles
	}
	return target, true
}

/* ======================
   Dispatcher
   ====================== */

// FollowupSender completes deferred interactions.
type FollowupSender interface {
	SendFollowup(ctx context.Context, interactionToken string, content string, ephemeral bool) error
}

// Dispatcher is the HTTP endpoint Discord posts interactions to.
type Dispatcher struct {
	bot             *Bot
	followups       FollowupSender
	publicKey       ed25519.PublicKey
	followupTimeout time.Duration
	log             *Logger

	inflight sync.WaitGroup
}

func NewDispatcher(bot *Bot, followups FollowupSender, publicKeyHex string, log *Logger) (*Dispatcher, error) {
	key, err := hex.DecodeString(publicKeyHex)
	if err != nil || len(key) != ed25519.PublicKeySize {
		return nil, errors.NotValidf("discord public key")
	}
	return &Dispatcher{
		bot:             bot,
		followups:       followups,
		publicKey:       ed25519.PublicKey(key),
		followupTimeout: 30 * time.Second,
		log:             log.With("component", "interactions"),
	}, nil
}

// Wait blocks until every deferred interaction has finished.
func (d *Dispatcher) Wait() {
	d.inflight.Wait()
}

func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxInteractionBody)
	if !discordgo.VerifyInteraction(r, d.publicKey) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	// VerifyInteraction leaves the body readable again.
	body, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	var in discordgo.Interaction
	if err := json.Unmarshal(body, &in); err != nil {
		d.log.Warn("undecodable interaction", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	resp := d.handle(r.Context(), &in, body)
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		d.log.Warn("writing interaction response failed", "interaction_id", in.ID, "type", resp.Type, "error", err)
	}
}

func (d *Dispatcher) handle(ctx context.Context, in *discordgo.Interaction, body []byte) *discordgo.InteractionResponse {
	if in.Type == discordgo.InteractionPing {
		return &discordgo.InteractionResponse{Type: discordgo.InteractionResponsePong}
	}

	log := d.log.With("request_id", uuid.NewString(), "interaction_id", in.ID)
	caller := callerOf(in)
	d.observe(caller)

	switch in.Type {
	case discordgo.InteractionApplicationCommand:
		cmd := commandInput{data: in.ApplicationCommandData(), channel: channelOf(in, body)}
		log.Debug("command", "name", cmd.data.Name, "user_id", caller.UserID)
		return d.command(ctx, log, in, caller, cmd)
	case discordgo.InteractionMessageComponent:
		customID := in.MessageComponentData().CustomID
		log.Debug("component", "custom_id", customID, "user_id", caller.UserID)
		return d.component(log, in, caller, customID)
	default:
		log.Warn("unsupported interaction type", "type", int(in.Type))
		return ephemeral(userMessageFor(errors.NotSupportedf("interaction type %d", int(in.Type))))
	}
}

// observe records the caller's display name off the reply path.
func (d *Dispatcher) observe(caller Identity) {
	if caller.UserID == "" || caller.Username == "" {
		return
	}
	d.inflight.Add(1)
	go func() {
		defer d.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), d.followupTimeout)
		defer cancel()
		d.bot.Observe(ctx, caller)
	}()
}

func (d *Dispatcher) command(ctx context.Context, log *Logger, in *discordgo.Interaction, caller Identity, cmd commandInput) *discordgo.InteractionResponse {
	data := cmd.data
	switch data.Name {
	case cmdBalance:
		target, ok := userOption(data, "member")
		if !ok {
			target = caller
		}
		return public("💰 " + target.Mention() + " has " + FormatAmount(d.bot.Balance(target.UserID)))

	case cmdInvites:
		target, ok := userOption(data, "member")
		if !ok {
			target = caller
		}
		return public("📩 " + target.Mention() + " has " + strconv.FormatInt(d.bot.Invites(target.UserID), 10) + " invites")

	case cmdAddBalance, cmdRemoveBalance:
		target, ok := userOption(data, "member")
		if !ok {
			return ephemeral("❌ Missing member.")
		}
		amountText := stringOption(data, "amount")
		if data.Name == cmdAddBalance {
			amount, err := d.bot.AddBalance(ctx, caller, target, amountText)
			if err != nil {
				return d.failed(log, err)
			}
			return public("✅ Added " + FormatAmount(amount) + " to " + target.Mention())
		}
		amount, err := d.bot.RemoveBalance(ctx, caller, target, amountText)
		if err != nil {
			return d.failed(log, err)
		}
		return public("✅ Removed " + FormatAmount(amount) + " from " + target.Mention())

	case cmdAddInvites:
		target, ok := userOption(data, "member")
		if !ok {
			return ephemeral("❌ Missing member.")
		}
		count, _ := intOption(data, "count")
		total, err := d.bot.AddInvites(ctx, caller, target, count)
		if err != nil {
			return d.failed(log, err)
		}
		return public("✅ " + target.Mention() + " now has " + strconv.FormatInt(total, 10) + " invites")

	case cmdStatus:
		// The panel edit is a REST round trip; acknowledge first.
		if !d.bot.privileges.IsPrivileged(caller) {
			return ephemeral(userMessageFor(ErrPermissionDenied))
		}
		return d.deferred(log, in, func(ctx context.Context) (string, error) {
			result, err := d.bot.Status(ctx, caller)
			if err != nil {
				return "", err
			}
			return statusReply(result), nil
		})

	case cmdTicketsShow:
		if !d.bot.privileges.IsPrivileged(caller) {
			return ephemeral(userMessageFor(ErrPermissionDenied))
		}
		return d.deferred(log, in, func(ctx context.Context) (string, error) {
			if _, err := d.bot.ShowPanel(ctx, caller, in.GuildID, in.ChannelID); err != nil {
				return "", err
			}
			return "✅ Panel created!", nil
		})

	case cmdCloseTicket:
		channel := cmd.channel
		if !isTicketChannel(channel.Name) {
			return ephemeral(userMessageFor(ErrNotATicket))
		}
		return d.deferred(log, in, func(ctx context.Context) (string, error) {
			if err := d.bot.CloseTicket(ctx, caller, channel); err != nil {
				return "", err
			}
			// The channel, and with it the interaction's thread, is gone.
			return "", nil
		})

	default:
		log.Warn("unknown command", "name", data.Name)
		return ephemeral("❌ Unknown command.")
	}
}

func (d *Dispatcher) component(log *Logger, in *discordgo.Interaction, caller Identity, customID string) *discordgo.InteractionResponse {
	switch customID {
	case createTicketButtonID:
		return d.deferred(log, in, func(ctx context.Context) (string, error) {
			ticket, err := d.bot.CreateTicket(ctx, caller, in.GuildID)
			if err != nil {
				return "", err
			}
			return "✅ Ticket created: " + ticket.Channel.Mention(), nil
		})

	case handleTicketButtonID:
		d.async(log, in, func(ctx context.Context) (string, error) {
			return "", d.bot.HandleTicket(ctx, caller, in.ChannelID)
		})
		return &discordgo.InteractionResponse{Type: discordgo.InteractionResponseDeferredMessageUpdate}

	default:
		log.Warn("unknown component", "custom_id", customID)
		return ephemeral("❌ Unknown button.")
	}
}

// deferred acknowledges the interaction now and finishes work in the
// background, reporting the outcome as an ephemeral follow-up.
func (d *Dispatcher) deferred(log *Logger, in *discordgo.Interaction, work func(ctx context.Context) (string, error)) *discordgo.InteractionResponse {
	d.async(log, in, work)
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
	}
}

func (d *Dispatcher) async(log *Logger, in *discordgo.Interaction, work func(ctx context.Context) (string, error)) {
	token := in.Token
	d.inflight.Add(1)
	go func() {
		defer d.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), d.followupTimeout)
		defer cancel()

		content, err := work(ctx)
		if err != nil {
			log.Warn("interaction failed", "error", err)
			content = userMessageFor(err)
		}
		if content == "" {
			return
		}
		if err := d.followups.SendFollowup(ctx, token, content, true); err != nil {
			log.Error("follow-up failed", "error", err)
		}
	}()
}

func (d *Dispatcher) failed(log *Logger, err error) *discordgo.InteractionResponse {
	if errors.Is(err, ErrInvalidAmount) || errors.Is(err, ErrPermissionDenied) {
		log.Info("command rejected", "error", err)
	} else {
		log.Error("command failed", "error", err)
	}
	return ephemeral(userMessageFor(err))
}

func statusReply(result ReconcileResult) string {
	switch result {
	case ReconcileUpdated:
		return panelStatusOnline + " (panel updated)"
	case ReconcileFailed:
		return panelStatusOnline + " (panel could not be updated)"
	default:
		return panelStatusOnline + " (no panel)"
	}
}

func ephemeral(content string) *discordgo.InteractionResponse {
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Content: content, Flags: discordgo.MessageFlagsEphemeral},
	}
}

func public(content string) *discordgo.InteractionResponse {
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Content: content},
	}
}

/* ======================
   Command registration
   ====================== */

func slashCommands() []*discordgo.ApplicationCommand {
	one := 1.0
	member := func(required bool) *discordgo.ApplicationCommandOption {
		return &discordgo.ApplicationCommandOption{Type: discordgo.ApplicationCommandOptionUser, Name: "member", Description: "Member", Required: required}
	}
	amount := &discordgo.ApplicationCommandOption{Type: discordgo.ApplicationCommandOptionString, Name: "amount", Description: "Amount (1K, 1M, 1Qa...)", Required: true}
	return []*discordgo.ApplicationCommand{
		{Name: cmdTicketsShow, Description: "Show ticket panel"},
		{Name: cmdBalance, Description: "Check your balance", Options: []*discordgo.ApplicationCommandOption{member(false)}},
		{Name: cmdAddBalance, Description: "Add balance", Options: []*discordgo.ApplicationCommandOption{member(true), amount}},
		{Name: cmdRemoveBalance, Description: "Remove balance", Options: []*discordgo.ApplicationCommandOption{member(true), amount}},
		{Name: cmdCloseTicket, Description: "Close this ticket"},
		{Name: cmdInvites, Description: "Check invites", Options: []*discordgo.ApplicationCommandOption{member(false)}},
		{Name: cmdAddInvites, Description: "Add invites", Options: []*discordgo.ApplicationCommandOption{
			member(true),
			{Type: discordgo.ApplicationCommandOptionInteger, Name: "count", Description: "Invites to add", Required: true, MinValue: &one},
		}},
		{Name: cmdStatus, Description: "Refresh the panel status"},
	}
}
