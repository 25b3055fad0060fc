package main

import (
	"context"
	"encoding/json"

	"github.com/juju/errors"
)

// SnapshotBackend is durable storage for the whole state document. Load
// returns an error satisfying errors.Is(err, errors.NotFound) when nothing
// has been saved yet.
type SnapshotBackend interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, data []byte) error
	// Quarantine moves an unreadable snapshot out of the way so the next Load
	// reports not found.
	Quarantine(ctx context.Context) error
	Close() error
}

// snapshotDoc is the on-disk layout. Field names match the data.json files
// written by earlier deployments of the bot.
type snapshotDoc struct {
	TicketCounter int64                      `json:"ticket_counter"`
	Balances      map[string]snapshotAmount  `json:"balances"`
	Usernames     map[string]string          `json:"usernames"`
	Links         map[string]json.RawMessage `json:"links"`
	Invites       map[string]int64           `json:"invites"`
	Panel         *snapshotPanel             `json:"panel"`
}

type snapshotPanel struct {
	Guild   snowflake `json:"guild"`
	Channel snowflake `json:"channel"`
	Message snowflake `json:"message"`
}

// snowflake is a platform id. Older snapshots store ids as JSON numbers;
// new ones are written as strings.
type snowflake string

func (s *snowflake) UnmarshalJSON(b []byte) error {
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return errors.Annotatef(err, "id %s", b)
	}
	*s = snowflake(n.String())
	return nil
}

// snapshotAmount accepts a JSON number, a numeric string or a suffixed
// string such as "1.5K".
type snapshotAmount float64

func (a *snapshotAmount) UnmarshalJSON(b []byte) error {
	var n json.Number
	if err := json.Unmarshal(b, &n); err == nil {
		f, err := n.Float64()
		if err != nil {
			return errors.Annotatef(err, "balance %s", b)
		}
		*a = snapshotAmount(f)
		return nil
	}
	var text string
	if err := json.Unmarshal(b, &text); err != nil {
		return errors.Annotatef(err, "balance %s", b)
	}
	f, err := ParseAmount(text)
	if err != nil {
		return err
	}
	*a = snapshotAmount(f)
	return nil
}

func encodeSnapshot(state *State) ([]byte, error) {
	doc := snapshotDoc{
		TicketCounter: state.Tickets.Counter(),
		Balances:      make(map[string]snapshotAmount, len(state.Ledger.balances)),
		Usernames:     state.Ledger.usernames,
		Links:         state.links,
		Invites:       state.Ledger.invites,
	}
	for id, bal := range state.Ledger.balances {
		doc.Balances[id] = snapshotAmount(bal)
	}
	if doc.Links == nil {
		doc.Links = map[string]json.RawMessage{}
	}
	if state.Panel != nil {
		doc.Panel = &snapshotPanel{
			Guild:   snowflake(state.Panel.GuildID),
			Channel: snowflake(state.Panel.ChannelID),
			Message: snowflake(state.Panel.MessageID),
		}
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, errors.Annotate(err, "encoding snapshot")
	}
	return append(data, '\n'), nil
}

// decodeSnapshot rebuilds state from a stored document. Anything that does
// not parse, or that breaks the counter and balance invariants, is
// ErrStateCorruption.
func decodeSnapshot(data []byte) (*State, error) {
	var doc snapshotDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.Annotatef(ErrStateCorruption, "decoding snapshot: %v", err)
	}
	if doc.TicketCounter < 0 {
		return nil, errors.Annotatef(ErrStateCorruption, "negative ticket_counter %d", doc.TicketCounter)
	}

	state := newState()
	state.Tickets.counter = doc.TicketCounter
	for id, bal := range doc.Balances {
		if validateAmount(float64(bal)) != nil {
			return nil, errors.Annotatef(ErrStateCorruption, "balance for %s is %v", id, float64(bal))
		}
		state.Ledger.balances[id] = float64(bal)
	}
	for id, n := range doc.Invites {
		if n < 0 {
			return nil, errors.Annotatef(ErrStateCorruption, "invites for %s is %d", id, n)
		}
		state.Ledger.invites[id] = n
	}
	for id, name := range doc.Usernames {
		state.Ledger.usernames[id] = name
	}
	for id, raw := range doc.Links {
		state.links[id] = raw
	}
	if doc.Panel != nil {
		state.Panel = &PanelRecord{
			GuildID:   string(doc.Panel.Guild),
			ChannelID: string(doc.Panel.Channel),
			MessageID: string(doc.Panel.Message),
		}
	}
	return state, nil
}
