package main

import (
	"context"
	"testing"

	"github.com/juju/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsRecordBotActivity(t *testing.T) {
	metrics := NewMetrics()
	registry := prometheus.NewRegistry()
	registry.MustRegister(metrics)

	backend := &memoryBackend{}
	store, err := OpenStore(context.Background(), backend, NewNopLogger(), metrics, false)
	if err != nil {
		t.Fatal(err)
	}
	chat := newFakeChat()
	bot := NewBot(BotConfig{
		Store:      store,
		Chat:       chat,
		Privileges: NewPrivileges(testOwnerID, nil),
		Logger:     NewNopLogger(),
		Metrics:    metrics,
	})
	ctx := context.Background()

	bot.AddBalance(ctx, owner, member, "5")
	bot.CreateTicket(ctx, member, testGuildID)
	chat.createErr = errors.Annotate(ErrCollaboratorUnavailable, "down")
	bot.CreateTicket(ctx, member, testGuildID)
	bot.ReconcilePanel(ctx, panelStatusOnline)

	if got := testutil.ToFloat64(metrics.ticketsCreated); got != 2 {
		t.Errorf("tickets_created_total = %v", got)
	}
	if got := testutil.ToFloat64(metrics.ledgerMutations.WithLabelValues("credit")); got != 1 {
		t.Errorf("credit mutations = %v", got)
	}
	if got := testutil.ToFloat64(metrics.collaboratorFailures.WithLabelValues("create_channel")); got != 1 {
		t.Errorf("create_channel failures = %v", got)
	}
	if got := testutil.ToFloat64(metrics.panelReconciles.WithLabelValues(string(ReconcileNoPanel))); got != 1 {
		t.Errorf("no_panel reconciles = %v", got)
	}
	if n := testutil.CollectAndCount(metrics, "ticket_ledger_state_persist_seconds"); n != 1 {
		t.Errorf("persist histogram series = %d", n)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ticketCreated()
	m.ledgerMutation("credit")
	m.collaboratorFailure("x")
	m.panelReconciled("updated")
	m.observePersist(0, nil)
}
