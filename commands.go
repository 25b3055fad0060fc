package main

import (
	"context"
	"strconv"

	"github.com/juju/errors"
)

// Bot implements the user-facing commands on top of the store and the chat
// platform. Nothing here knows about the interaction wire format.
type Bot struct {
	store          *Store
	chat           ChatPlatform
	panel          *PanelReconciler
	privileges     Privileges
	ticketCategory string
	log            *Logger
	metrics        *Metrics
}

type BotConfig struct {
	Store          *Store
	Chat           ChatPlatform
	Privileges     Privileges
	TicketCategory string
	Logger         *Logger
	Metrics        *Metrics
}

func NewBot(cfg BotConfig) *Bot {
	category := cfg.TicketCategory
	if category == "" {
		category = defaultTicketCategory
	}
	return &Bot{
		store:          cfg.Store,
		chat:           cfg.Chat,
		panel:          NewPanelReconciler(cfg.Store, cfg.Chat, cfg.Logger, cfg.Metrics),
		privileges:     cfg.Privileges,
		ticketCategory: category,
		log:            cfg.Logger,
		metrics:        cfg.Metrics,
	}
}

// Observe records the caller's username. Failures are logged only.
func (b *Bot) Observe(ctx context.Context, caller Identity) {
	if caller.UserID == "" || caller.Username == "" {
		return
	}
	known := ""
	b.store.View(func(state *State) {
		known = state.Ledger.Username(caller.UserID)
	})
	if known == caller.Username {
		return
	}
	err := b.store.WithMutation(ctx, func(state *State) error {
		state.Ledger.SetUsername(caller.UserID, caller.Username)
		return nil
	})
	if err != nil {
		b.log.Warn("recording username failed", "user_id", caller.UserID, "error", err)
	}
}

/* ======================
   Panel
   ====================== */

func (b *Bot) ShowPanel(ctx context.Context, caller Identity, guildID, channelID string) (PanelRecord, error) {
	if err := b.privileges.require(caller, "tickets_show"); err != nil {
		return PanelRecord{}, err
	}
	return b.panel.CreatePanel(ctx, guildID, channelID)
}

// Status handles an explicit status check: the panel is re-rendered as
// online.
func (b *Bot) Status(ctx context.Context, caller Identity) (ReconcileResult, error) {
	if err := b.privileges.require(caller, "status"); err != nil {
		return "", err
	}
	return b.panel.ReconcileStatus(ctx, panelStatusOnline), nil
}

func (b *Bot) ReconcilePanel(ctx context.Context, status string) ReconcileResult {
	return b.panel.ReconcileStatus(ctx, status)
}

/* ======================
   Ledger
   ====================== */

func (b *Bot) Balance(userID string) float64 {
	var balance float64
	b.store.View(func(state *State) {
		balance = state.Ledger.Balance(userID)
	})
	return balance
}

func (b *Bot) Invites(userID string) int64 {
	var invites int64
	b.store.View(func(state *State) {
		invites = state.Ledger.Invites(userID)
	})
	return invites
}

// AddBalance credits target with the parsed amount and returns that amount.
func (b *Bot) AddBalance(ctx context.Context, caller, target Identity, amountText string) (float64, error) {
	if err := b.privileges.require(caller, "add_balance"); err != nil {
		return 0, err
	}
	amount, err := ParseAmount(amountText)
	if err != nil {
		return 0, err
	}
	err = b.store.WithMutation(ctx, func(state *State) error {
		_, err := state.Ledger.Credit(target.UserID, amount)
		return err
	})
	if err != nil {
		return 0, errors.Trace(err)
	}
	b.metrics.ledgerMutation("credit")
	b.log.Info("balance credited", "admin_id", caller.UserID, "user_id", target.UserID, "amount", amount)
	return amount, nil
}

// RemoveBalance debits target, clamping at zero, and returns the parsed amount.
func (b *Bot) RemoveBalance(ctx context.Context, caller, target Identity, amountText string) (float64, error) {
	if err := b.privileges.require(caller, "remove_balance"); err != nil {
		return 0, err
	}
	amount, err := ParseAmount(amountText)
	if err != nil {
		return 0, err
	}
	err = b.store.WithMutation(ctx, func(state *State) error {
		_, err := state.Ledger.Debit(target.UserID, amount)
		return err
	})
	if err != nil {
		return 0, errors.Trace(err)
	}
	b.metrics.ledgerMutation("debit")
	b.log.Info("balance debited", "admin_id", caller.UserID, "user_id", target.UserID, "amount", amount)
	return amount, nil
}

func (b *Bot) AddInvites(ctx context.Context, caller, target Identity, count int64) (int64, error) {
	if err := b.privileges.require(caller, "add_invites"); err != nil {
		return 0, err
	}
	var total int64
	err := b.store.WithMutation(ctx, func(state *State) error {
		var err error
		total, err = state.Ledger.RecordInvites(target.UserID, count)
		return err
	})
	if err != nil {
		return 0, errors.Trace(err)
	}
	b.metrics.ledgerMutation("invites")
	return total, nil
}

/* ======================
   Tickets
   ====================== */

type Ticket struct {
	Label   string
	Channel ChannelRef
}

// CreateTicket reserves a ticket number and opens a private channel for the
// caller. The number is reserved before any platform call and is not handed
// back if the channel cannot be created, so ticket numbers may have gaps.
func (b *Bot) CreateTicket(ctx context.Context, caller Identity, guildID string) (Ticket, error) {
	var (
		label   string
		invites int64
		balance float64
	)
	err := b.store.WithMutation(ctx, func(state *State) error {
		label = state.Tickets.Next()
		invites = state.Ledger.Invites(caller.UserID)
		balance = state.Ledger.Balance(caller.UserID)
		return nil
	})
	if err != nil {
		return Ticket{}, errors.Trace(err)
	}
	b.metrics.ticketCreated()

	channel, err := b.chat.CreatePrivateChannel(ctx, ChannelSpec{
		GuildID:   guildID,
		Name:      ticketChannelName(label),
		Category:  b.ticketCategory,
		VisibleTo: []string{caller.UserID},
	})
	if err != nil {
		b.metrics.collaboratorFailure("create_channel")
		b.log.Warn("ticket channel creation failed; number stays used",
			"ticket", label, "user_id", caller.UserID, "error", err)
		return Ticket{Label: label}, errors.Annotatef(err, "creating channel for ticket %s", label)
	}

	if _, err := b.chat.SendMessage(ctx, channel.ChannelID, renderTicketIntro(label, caller, invites, balance)); err != nil {
		b.metrics.collaboratorFailure("send_ticket_intro")
		b.log.Warn("ticket intro message failed", "ticket", label, "channel_id", channel.ChannelID, "error", err)
	}
	b.log.Info("ticket created", "ticket", label, "user_id", caller.UserID, "channel_id", channel.ChannelID)
	return Ticket{Label: label, Channel: channel}, nil
}

func renderTicketIntro(label string, owner Identity, invites int64, balance float64) Message {
	return Message{
		Embeds: []Embed{{
			Title:       "🎫 Ticket #" + label,
			Description: owner.Mention() + " created this ticket.",
			Color:       colorBlurple,
			Fields: []EmbedField{
				{Name: "📩 Invites", Value: strconv.FormatInt(invites, 10)},
				{Name: "💰 Balance", Value: FormatAmount(balance)},
			},
		}},
		Buttons: []Button{{Label: "🔧 Handle Ticket", CustomID: handleTicketButtonID, Style: ButtonPrimary}},
	}
}

// HandleTicket announces in the ticket channel that caller picked it up.
func (b *Bot) HandleTicket(ctx context.Context, caller Identity, channelID string) error {
	_, err := b.chat.SendMessage(ctx, channelID, Message{
		Content: "✅ " + caller.Mention() + " is handling this ticket.",
	})
	if err != nil {
		b.metrics.collaboratorFailure("send_handle_notice")
		return errors.Annotatef(err, "announcing handler in %s", channelID)
	}
	return nil
}

// CloseTicket deletes a ticket channel. Channels not named ticket-* are refused.
func (b *Bot) CloseTicket(ctx context.Context, caller Identity, channel ChannelRef) error {
	if !isTicketChannel(channel.Name) {
		return errors.Annotatef(ErrNotATicket, "channel %q", channel.Name)
	}
	if err := b.chat.DeleteChannel(ctx, channel.ChannelID); err != nil {
		b.metrics.collaboratorFailure("delete_channel")
		return errors.Annotatef(err, "deleting %s", channel.Name)
	}
	b.log.Info("ticket closed", "channel", channel.Name, "user_id", caller.UserID)
	return nil
}
