package main

import (
	"fmt"
	"strings"
)

const ticketChannelPrefix = "ticket-"

// TicketSequencer issues ticket numbers. It is not safe for concurrent use on
// its own; callers go through Store.WithMutation.
type TicketSequencer struct {
	counter int64
}

// Next advances the counter and returns the new label. Labels are padded to
// three digits and grow wider past 999.
func (t *TicketSequencer) Next() string {
	t.counter++
	return ticketLabel(t.counter)
}

func (t *TicketSequencer) Counter() int64 {
	return t.counter
}

func ticketLabel(n int64) string {
	return fmt.Sprintf("%03d", n)
}

func ticketChannelName(label string) string {
	return ticketChannelPrefix + label
}

func isTicketChannel(name string) bool {
	return strings.HasPrefix(name, ticketChannelPrefix)
}
