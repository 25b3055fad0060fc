package main

import (
	"context"

	"github.com/juju/errors"
)

const (
	panelStatusOnline  = "🟢 Online"
	panelStatusOffline = "🔴 Offline"

	createTicketButtonID = "create_ticket_btn"
	handleTicketButtonID = "handle_ticket_btn"
)

// PanelRecord locates the one status panel message.
type PanelRecord struct {
	GuildID   string
	ChannelID string
	MessageID string
}

func (p PanelRecord) messageRef() MessageRef {
	return MessageRef{ChannelID: p.ChannelID, MessageID: p.MessageID}
}

type ReconcileResult string

const (
	ReconcileNoPanel ReconcileResult = "no_panel"
	ReconcileUpdated ReconcileResult = "updated"
	ReconcileFailed  ReconcileResult = "failed"
)

// PanelReconciler creates the status panel and keeps its status field in
// step with the bot.
type PanelReconciler struct {
	store   *Store
	chat    ChatPlatform
	log     *Logger
	metrics *Metrics
}

func NewPanelReconciler(store *Store, chat ChatPlatform, log *Logger, metrics *Metrics) *PanelReconciler {
	return &PanelReconciler{
		store:   store,
		chat:    chat,
		log:     log.With("component", "panel"),
		metrics: metrics,
	}
}

func renderPanel(status string) Message {
	return Message{
		Embeds: []Embed{{
			Title:       "🎟️ Ticket Panel",
			Description: "Click to make a ticket!",
			Color:       colorBlue,
			Fields:      []EmbedField{{Name: "Bot Status", Value: status}},
		}},
		Buttons: []Button{{Label: "🎟️ Create Ticket", CustomID: createTicketButtonID, Style: ButtonSuccess}},
	}
}

// CreatePanel posts a new panel in channelID and records it. Any previously
// recorded panel is replaced; its message is left where it is.
func (r *PanelReconciler) CreatePanel(ctx context.Context, guildID, channelID string) (PanelRecord, error) {
	ref, err := r.chat.SendMessage(ctx, channelID, renderPanel(panelStatusOnline))
	if err != nil {
		r.metrics.collaboratorFailure("send_panel")
		return PanelRecord{}, errors.Annotatef(err, "posting panel in %s", channelID)
	}
	record := PanelRecord{GuildID: guildID, ChannelID: ref.ChannelID, MessageID: ref.MessageID}

	var previous *PanelRecord
	err = r.store.WithMutation(ctx, func(state *State) error {
		previous = state.Panel
		state.Panel = &record
		return nil
	})
	if err != nil {
		return PanelRecord{}, errors.Trace(err)
	}
	if previous != nil && *previous != record {
		r.log.Info("panel replaced",
			"old_channel_id", previous.ChannelID,
			"old_message_id", previous.MessageID,
			"channel_id", record.ChannelID,
			"message_id", record.MessageID,
		)
	}
	return record, nil
}

// ReconcileStatus rewrites the panel's status field. Without a recorded
// panel it does nothing. Platform failures are logged and reported in the
// result only; the stored record is never touched.
func (r *PanelReconciler) ReconcileStatus(ctx context.Context, status string) ReconcileResult {
	var record *PanelRecord
	r.store.View(func(state *State) {
		if state.Panel != nil {
			p := *state.Panel
			record = &p
		}
	})
	if record == nil {
		r.metrics.panelReconciled(string(ReconcileNoPanel))
		return ReconcileNoPanel
	}

	if err := r.chat.EditMessage(ctx, record.messageRef(), renderPanel(status)); err != nil {
		r.log.Warn("panel status update failed",
			"channel_id", record.ChannelID,
			"message_id", record.MessageID,
			"missing", errors.Is(err, ErrArtifactMissing),
			"error", err,
		)
		r.metrics.collaboratorFailure("edit_panel")
		r.metrics.panelReconciled(string(ReconcileFailed))
		return ReconcileFailed
	}
	r.metrics.panelReconciled(string(ReconcileUpdated))
	return ReconcileUpdated
}
