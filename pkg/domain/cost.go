package domain

import "time"

// BackendKind names the strategy that served a generation.
type BackendKind string

const (
	BackendMock BackendKind = "mock"
	BackendReal BackendKind = "real"
)

// Window identifies a cost accounting window.
type Window string

const (
	WindowHour Window = "hour"
	WindowDay  Window = "day"
)

// Usage is the token accounting of one generation.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Total returns the sum of input and output tokens.
func (u Usage) Total() int { return u.InputTokens + u.OutputTokens }

// LedgerEntry records one priced backend call.
type LedgerEntry struct {
	HourWindow   time.Time   `json:"hour_window"`
	DayWindow    time.Time   `json:"day_window"`
	Backend      BackendKind `json:"backend"`
	Model        string      `json:"model,omitempty"`
	InputTokens  int         `json:"input_tokens"`
	OutputTokens int         `json:"output_tokens"`
	Cost         float64     `json:"cost"`
	RecordedAt   time.Time   `json:"recorded_at"`
}

// WindowStats is the state of one accounting window.
type WindowStats struct {
	Start   time.Time `json:"start"`
	Cost    float64   `json:"cost"`
	Pending float64   `json:"pending"`
	Tokens  int       `json:"tokens"`
	Calls   int       `json:"calls"`
	Limit   float64   `json:"limit"`
}

// Ratio returns committed and pending cost as a fraction of the limit.
func (w WindowStats) Ratio() float64 {
	if w.Limit <= 0 {
		return 0
	}
	return (w.Cost + w.Pending) / w.Limit
}

// CostStats is a snapshot of the ledger.
type CostStats struct {
	Hour       WindowStats `json:"hour"`
	Day        WindowStats `json:"day"`
	TotalCost  float64     `json:"total_cost"`
	TotalCalls int         `json:"total_calls"`
}
