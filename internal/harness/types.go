package harness

import "fmt"

// Result is the outcome of running a scenario.
type Result struct {
	// Pass is true when every expectation held.
	Pass bool

	// Errors lists the expectations that failed.
	Errors []string

	// Trace records what each step did.
	Trace []TraceEvent

	// Tips is the final tip table, oldest first.
	Tips []TipView

	// Broadcasts are the payments autopay made.
	Broadcasts []BroadcastView
}

// NewResult creates a passing result with empty slices.
func NewResult() *Result {
	return &Result{
		Pass:       true,
		Errors:     []string{},
		Trace:      []TraceEvent{},
		Tips:       []TipView{},
		Broadcasts: []BroadcastView{},
	}
}

// Fail records a failed expectation.
func (r *Result) Fail(format string, args ...any) {
	r.Pass = false
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// TraceEvent is one line of the run log.
type TraceEvent struct {
	Step   int    `json:"step"`
	Event  string `json:"event"`
	Detail string `json:"detail,omitempty"`
}

// TipView is the stable rendering of a tip. Addresses are shown by their
// scenario labels.
type TipView struct {
	ID            string `json:"id"`
	Reference     string `json:"reference"`
	Username      string `json:"username"`
	Recipient     string `json:"recipient"`
	RealRecipient string `json:"real_recipient,omitempty"`
	Amount        string `json:"amount,omitempty"`
	DefaultUsed   bool   `json:"default_used,omitempty"`
	Payment       string `json:"payment,omitempty"`
	Acceptance    string `json:"acceptance"`
	Confirmation  string `json:"confirmation,omitempty"`
	Read          string `json:"read"`
	Received      string `json:"received,omitempty"`
	AutopayTxID   string `json:"autopay_txid,omitempty"`
}

// BroadcastView is one payment transaction.
type BroadcastView struct {
	TxID    string       `json:"txid"`
	Outputs []OutputView `json:"outputs"`
}

// OutputView is one output of a broadcast.
type OutputView struct {
	To     string `json:"to"`
	Amount string `json:"amount"`
}
