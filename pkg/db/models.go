package db

import "time"

// TerminalSession is one row of the legacy session registry, keyed by the
// integer terminal login.
type TerminalSession struct {
	Login     int64
	Server    string
	Status    string
	IsActive  bool
	LastError string
	LastSeen  time.Time
	CreatedAt time.Time
}

// SessionInstrument is one enabled instrument of a legacy session, with its
// strategy parameters stored as JSON.
type SessionInstrument struct {
	ID           int64
	Login        int64
	Symbol       string
	StrategyType string
	Parameters   string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// User represents an application user of the control API.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// OrderAudit is one submitted order outcome, recorded for reconciliation.
// The scheduler writes these and never reads them back.
type OrderAudit struct {
	ID        string
	AccountNS string
	AccountID string
	Symbol    string
	Action    string
	Volume    float64
	Price     float64
	Status    string
	Note      string
	CreatedAt time.Time
}
