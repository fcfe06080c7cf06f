package bridge

import "time"

// Credentials identify one broker account at the terminal bridge.
type Credentials struct {
	Login    int64  `json:"login"`
	Password string `json:"password"`
	Server   string `json:"server"`
}

// SessionInfo is returned by a successful connect call.
type SessionInfo struct {
	SessionID     string `json:"session_id"`
	Login         int64  `json:"login"`
	Server        string `json:"server"`
	TerminalBuild int    `json:"terminal_build"`
}

// Quote is the latest tick for a symbol.
type Quote struct {
	Symbol string    `json:"symbol"`
	Bid    float64   `json:"bid"`
	Ask    float64   `json:"ask"`
	Time   time.Time `json:"time"`
}

// Position is one open position as reported by the terminal.
type Position struct {
	Ticket       int64   `json:"ticket"`
	Symbol       string  `json:"symbol"`
	Type         string  `json:"type"` // BUY or SELL
	Volume       float64 `json:"volume"`
	PriceOpen    float64 `json:"price_open"`
	PriceCurrent float64 `json:"price_current"`
	StopLoss     float64 `json:"sl"`
	TakeProfit   float64 `json:"tp"`
	Profit       float64 `json:"profit"`
}

// AccountInfo is the terminal-side account snapshot.
type AccountInfo struct {
	Login      int64   `json:"login"`
	Balance    float64 `json:"balance"`
	Equity     float64 `json:"equity"`
	Margin     float64 `json:"margin"`
	MarginFree float64 `json:"margin_free"`
	Currency   string  `json:"currency"`
}

// OrderRequest captures an order intent to be sent to the terminal.
type OrderRequest struct {
	Symbol     string  `json:"symbol"`
	Action     string  `json:"action"` // BUY or SELL
	Volume     float64 `json:"volume"`
	Price      float64 `json:"price"` // 0 means market
	StopLoss   float64 `json:"sl"`
	TakeProfit float64 `json:"tp"`
	ClientID   string  `json:"client_id"`
	Comment    string  `json:"comment"`
}

// OrderResult is the terminal's answer to an order submission.
type OrderResult struct {
	OrderID string  `json:"order_id"`
	Status  string  `json:"status"` // FILLED, PLACED, REJECTED
	Price   float64 `json:"price"`
	Message string  `json:"message"`
}
