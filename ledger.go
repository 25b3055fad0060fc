package main

import (
	"github.com/juju/errors"
)

// Ledger maps user identities to a balance and an invite counter.
// Accounts exist implicitly: an unknown identity reads as zero.
type Ledger struct {
	balances  map[string]float64
	invites   map[string]int64
	usernames map[string]string
}

func newLedger() *Ledger {
	return &Ledger{
		balances:  make(map[string]float64),
		invites:   make(map[string]int64),
		usernames: make(map[string]string),
	}
}

func (l *Ledger) Balance(userID string) float64 {
	return l.balances[userID]
}

// Credit adds amount to the user's balance and returns the new balance.
func (l *Ledger) Credit(userID string, amount float64) (float64, error) {
	if err := validateAmount(amount); err != nil {
		return l.balances[userID], errors.Annotatef(err, "credit %v", amount)
	}
	l.balances[userID] += amount
	return l.balances[userID], nil
}

// Debit subtracts amount from the user's balance, clamping at zero.
// Insufficient funds are not an error.
func (l *Ledger) Debit(userID string, amount float64) (float64, error) {
	if err := validateAmount(amount); err != nil {
		return l.balances[userID], errors.Annotatef(err, "debit %v", amount)
	}
	next := l.balances[userID] - amount
	if next < 0 {
		next = 0
	}
	l.balances[userID] = next
	return next, nil
}

func (l *Ledger) Invites(userID string) int64 {
	return l.invites[userID]
}

// RecordInvites bumps the invite counter; count must be positive so the
// counter never goes down.
func (l *Ledger) RecordInvites(userID string, count int64) (int64, error) {
	if count <= 0 {
		return l.invites[userID], errors.Annotatef(ErrInvalidAmount, "invite count %d", count)
	}
	l.invites[userID] += count
	return l.invites[userID], nil
}

func (l *Ledger) Username(userID string) string {
	return l.usernames[userID]
}

// SetUsername records the last seen name for a user and reports whether it
// changed.
func (l *Ledger) SetUsername(userID string, name string) bool {
	if name == "" || l.usernames[userID] == name {
		return false
	}
	l.usernames[userID] = name
	return true
}

// Accounts returns the number of identities with a balance or invite entry.
func (l *Ledger) Accounts() int {
	seen := make(map[string]struct{}, len(l.balances))
	for id := range l.balances {
		seen[id] = struct{}{}
	}
	for id := range l.invites {
		seen[id] = struct{}{}
	}
	return len(seen)
}

func (l *Ledger) clone() *Ledger {
	out := &Ledger{
		balances:  make(map[string]float64, len(l.balances)),
		invites:   make(map[string]int64, len(l.invites)),
		usernames: make(map[string]string, len(l.usernames)),
	}
	for k, v := range l.balances {
		out.balances[k] = v
	}
	for k, v := range l.invites {
		out.invites[k] = v
	}
	for k, v := range l.usernames {
		out.usernames[k] = v
	}
	return out
}
