package main

import (
	"context"
	"strings"
	"testing"

	"github.com/juju/errors"
)

func TestBalanceCommandsRequirePrivilege(t *testing.T) {
	bot, _, backend := newTestBot(t)
	ctx := context.Background()
	saves := backend.saves

	if _, err := bot.AddBalance(ctx, member, member, "1M"); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("AddBalance error = %v", err)
	}
	if _, err := bot.RemoveBalance(ctx, member, owner, "1"); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("RemoveBalance error = %v", err)
	}
	if _, err := bot.AddInvites(ctx, member, member, 5); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("AddInvites error = %v", err)
	}
	if bot.Balance(member.UserID) != 0 || bot.Invites(member.UserID) != 0 {
		t.Fatal("unprivileged command changed the ledger")
	}
	if backend.saves != saves {
		t.Fatal("unprivileged command wrote a snapshot")
	}
}

func TestAddRemoveBalance(t *testing.T) {
	bot, _, _ := newTestBot(t)
	ctx := context.Background()

	amount, err := bot.AddBalance(ctx, owner, member, "1.5k")
	if err != nil || amount != 1500 {
		t.Fatalf("AddBalance = %v, %v", amount, err)
	}
	if _, err := bot.AddBalance(ctx, admin, member, "1K"); err != nil {
		t.Fatalf("admin AddBalance: %v", err)
	}
	if got := bot.Balance(member.UserID); got != 2500 {
		t.Fatalf("balance = %v", got)
	}
	if _, err := bot.RemoveBalance(ctx, owner, member, "10K"); err != nil {
		t.Fatalf("RemoveBalance: %v", err)
	}
	if got := bot.Balance(member.UserID); got != 0 {
		t.Fatalf("balance after overdraw = %v, want 0", got)
	}
}

func TestAddBalanceInvalidAmount(t *testing.T) {
	bot, _, _ := newTestBot(t)
	if _, err := bot.AddBalance(context.Background(), owner, member, "abc"); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("error = %v", err)
	}
	if bot.Balance(member.UserID) != 0 {
		t.Fatal("invalid amount changed the ledger")
	}
}

func TestAddInvites(t *testing.T) {
	bot, _, _ := newTestBot(t)
	ctx := context.Background()
	if total, err := bot.AddInvites(ctx, owner, member, 3); err != nil || total != 3 {
		t.Fatalf("AddInvites = %d, %v", total, err)
	}
	if _, err := bot.AddInvites(ctx, owner, member, 0); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("zero invites error = %v", err)
	}
	if bot.Invites(member.UserID) != 3 {
		t.Fatalf("invites = %d", bot.Invites(member.UserID))
	}
}

func TestCreateTicket(t *testing.T) {
	bot, chat, backend := newTestBot(t)
	ctx := context.Background()
	if _, err := bot.AddBalance(ctx, owner, member, "2M"); err != nil {
		t.Fatal(err)
	}

	ticket, err := bot.CreateTicket(ctx, member, testGuildID)
	if err != nil {
		t.Fatalf("CreateTicket: %v", err)
	}
	if ticket.Label != "001" || ticket.Channel.Name != "ticket-001" {
		t.Fatalf("ticket = %+v", ticket)
	}
	spec := chat.created[0]
	if spec.Category != defaultTicketCategory || len(spec.VisibleTo) != 1 || spec.VisibleTo[0] != member.UserID {
		t.Fatalf("channel spec = %+v", spec)
	}

	intro := chat.sent[0]
	if intro.ChannelID != ticket.Channel.ChannelID {
		t.Fatalf("intro sent to %s", intro.ChannelID)
	}
	embed := intro.Message.Embeds[0]
	if embed.Title != "🎫 Ticket #001" || embed.Fields[1].Value != "2M" {
		t.Fatalf("intro embed = %+v", embed)
	}
	if intro.Message.Buttons[0].CustomID != handleTicketButtonID {
		t.Fatalf("intro buttons = %+v", intro.Message.Buttons)
	}
	if backend.saved(t).Tickets.Counter() != 1 {
		t.Fatal("counter not persisted")
	}
}

func TestCreateTicketChannelFailureBurnsNumber(t *testing.T) {
	bot, chat, _ := newTestBot(t)
	ctx := context.Background()

	chat.createErr = errors.Annotate(ErrCollaboratorUnavailable, "discord down")
	ticket, err := bot.CreateTicket(ctx, member, testGuildID)
	if !errors.Is(err, ErrCollaboratorUnavailable) {
		t.Fatalf("error = %v", err)
	}
	if ticket.Label != "001" {
		t.Fatalf("label = %q", ticket.Label)
	}

	chat.createErr = nil
	ticket, err = bot.CreateTicket(ctx, member, testGuildID)
	if err != nil {
		t.Fatalf("CreateTicket: %v", err)
	}
	if ticket.Label != "002" {
		t.Fatalf("label after failure = %q, want 002", ticket.Label)
	}
}

func TestCreateTicketIntroFailureStillSucceeds(t *testing.T) {
	bot, chat, _ := newTestBot(t)
	chat.sendErr = errors.Annotate(ErrCollaboratorUnavailable, "send failed")
	if _, err := bot.CreateTicket(context.Background(), member, testGuildID); err != nil {
		t.Fatalf("CreateTicket: %v", err)
	}
}

func TestHandleTicket(t *testing.T) {
	bot, chat, _ := newTestBot(t)
	if err := bot.HandleTicket(context.Background(), admin, "777"); err != nil {
		t.Fatal(err)
	}
	if got := chat.sent[0].Message.Content; !strings.Contains(got, admin.Mention()) || chat.sent[0].ChannelID != "777" {
		t.Fatalf("notice = %q in %s", got, chat.sent[0].ChannelID)
	}
}

func TestCloseTicket(t *testing.T) {
	bot, chat, _ := newTestBot(t)
	ctx := context.Background()

	err := bot.CloseTicket(ctx, member, ChannelRef{ChannelID: "1", Name: "general"})
	if !errors.Is(err, ErrNotATicket) {
		t.Fatalf("error = %v", err)
	}
	if len(chat.deleted) != 0 {
		t.Fatal("non-ticket channel deleted")
	}
	if err := bot.CloseTicket(ctx, member, ChannelRef{ChannelID: "2", Name: "ticket-004"}); err != nil {
		t.Fatalf("CloseTicket: %v", err)
	}
	if len(chat.deleted) != 1 || chat.deleted[0] != "2" {
		t.Fatalf("deleted = %v", chat.deleted)
	}
}

func TestShowPanelAndStatus(t *testing.T) {
	bot, chat, _ := newTestBot(t)
	ctx := context.Background()

	if _, err := bot.ShowPanel(ctx, member, testGuildID, "555"); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("ShowPanel error = %v", err)
	}
	if result, err := bot.Status(ctx, owner); err != nil || result != ReconcileNoPanel {
		t.Fatalf("Status = %s, %v", result, err)
	}
	if _, err := bot.ShowPanel(ctx, owner, testGuildID, "555"); err != nil {
		t.Fatalf("ShowPanel: %v", err)
	}
	if result, err := bot.Status(ctx, admin); err != nil || result != ReconcileUpdated {
		t.Fatalf("Status = %s, %v", result, err)
	}
	if chat.editCount() != 1 {
		t.Fatalf("edits = %d", chat.editCount())
	}
}

func TestObserveRecordsUsernameOnChange(t *testing.T) {
	bot, _, backend := newTestBot(t)
	ctx := context.Background()

	bot.Observe(ctx, member)
	saves := backend.saves
	bot.Observe(ctx, member)
	if backend.saves != saves {
		t.Fatal("unchanged username wrote a snapshot")
	}
	if got := backend.saved(t).Ledger.Username(member.UserID); got != "member" {
		t.Fatalf("username = %q", got)
	}
}
