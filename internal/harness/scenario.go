package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Scenario is one scripted run of the engine.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	Config ScenarioConfig `yaml:"config"`

	// Rates are fixed exchange rates, units of currency per BCH.
	Rates map[string]string `yaml:"rates,omitempty"`

	// Comments are the tipping comments the inbox can fetch.
	Comments []CommentFixture `yaml:"comments,omitempty"`

	// Broadcast scripts the wallet.
	Broadcast BroadcastConfig `yaml:"broadcast,omitempty"`

	Steps []Step `yaml:"steps"`

	Expect Expect `yaml:"expect"`
}

// ScenarioConfig overrides the engine configuration. Unset fields keep the
// built-in defaults, except that the autopay wait defaults to 3s.
type ScenarioConfig struct {
	Autopay         *bool           `yaml:"autopay,omitempty"`
	UseLimit        *bool           `yaml:"use_limit,omitempty"`
	Limit           string          `yaml:"limit,omitempty"`
	DisallowDefault *bool           `yaml:"disallow_default,omitempty"`
	MarkRead        *bool           `yaml:"mark_read,omitempty"`
	Grace           time.Duration   `yaml:"grace,omitempty"`
	AutopayWait     time.Duration   `yaml:"autopay_wait,omitempty"`
	DefaultAmount   string          `yaml:"default_amount,omitempty"`
	DefaultCurrency string          `yaml:"default_currency,omitempty"`
	Overrides       map[string]bool `yaml:"overrides,omitempty"`
}

// CommentFixture is a fetchable tipping comment.
type CommentFixture struct {
	ID   string `yaml:"id"`
	Body string `yaml:"body"`
}

// BroadcastConfig scripts payment failures. Each entry fails one Pay call,
// in order; "insufficient_funds" fails with the wallet's out-of-funds
// error.
type BroadcastConfig struct {
	Fail []string `yaml:"fail,omitempty"`
}

// AddressRef names an address.
type AddressRef struct {
	Seed    int    `yaml:"seed,omitempty"`
	Relay   bool   `yaml:"relay,omitempty"`
	Address string `yaml:"address,omitempty"`
}

func (r AddressRef) empty() bool {
	return r.Seed == 0 && r.Address == ""
}

// Step is one scripted action. Exactly one field is set.
type Step struct {
	Inbox      *InboxStep    `yaml:"inbox,omitempty"`
	ChainTx    *TxStep       `yaml:"chain_tx,omitempty"`
	Advance    time.Duration `yaml:"advance,omitempty"`
	Cycle      int           `yaml:"cycle,omitempty"`
	SetAutopay *bool         `yaml:"set_autopay,omitempty"`
	Remove     string        `yaml:"remove,omitempty"`
	InboxError string        `yaml:"inbox_error,omitempty"`
	Restart    bool          `yaml:"restart,omitempty"`
}

// InboxStep delivers one notification.
type InboxStep struct {
	ID   string `yaml:"id"`
	Kind string `yaml:"kind"`

	// User and To describe a tip notification.
	User string      `yaml:"user,omitempty"`
	To   *AddressRef `yaml:"to,omitempty"`

	// Comment is the tipping comment the notification refers to.
	Comment string `yaml:"comment,omitempty"`

	// Body is the text of a confirmation or other item.
	Body string `yaml:"body,omitempty"`
}

// Inbox step kinds.
const (
	KindTip          = "tip"
	KindClaimed      = "claimed"
	KindReturned     = "returned"
	KindFunded       = "funded"
	KindConfirmation = "confirmation"
	KindOther        = "other"
)

// TxStep mines one transaction.
type TxStep struct {
	From AddressRef `yaml:"from"`
	To   []Output   `yaml:"to"`
}

// Output is one transaction output.
type Output struct {
	AddressRef `yaml:",inline"`
	Amount     string `yaml:"amount"`
}

// Expect lists the final-state assertions.
type Expect struct {
	Tips       []TipExpectation `yaml:"tips,omitempty"`
	Broadcasts *int             `yaml:"broadcasts,omitempty"`
	Buffered   *int             `yaml:"buffered,omitempty"`
	Tipless    *int             `yaml:"tipless,omitempty"`
	Unread     []string         `yaml:"unread,omitempty"`
}

// TipExpectation checks fields of one tip. Only the fields set are
// compared.
type TipExpectation struct {
	ID            string      `yaml:"id"`
	Absent        bool        `yaml:"absent,omitempty"`
	Payment       *string     `yaml:"payment,omitempty"`
	State         *string     `yaml:"state,omitempty"`
	Acceptance    *string     `yaml:"acceptance,omitempty"`
	Confirmation  *string     `yaml:"confirmation,omitempty"`
	Amount        *string     `yaml:"amount,omitempty"`
	Received      *string     `yaml:"received,omitempty"`
	DefaultUsed   *bool       `yaml:"default_used,omitempty"`
	Read          *string     `yaml:"read,omitempty"`
	RealRecipient *AddressRef `yaml:"real_recipient,omitempty"`
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is invalid.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps must not be empty")
	}
	for i, step := range s.Steps {
		if err := validateStep(i, step); err != nil {
			return err
		}
	}
	for i, c := range s.Comments {
		if c.ID == "" {
			return fmt.Errorf("comments[%d]: id is required", i)
		}
	}
	for i, e := range s.Expect.Tips {
		if e.ID == "" {
			return fmt.Errorf("expect.tips[%d]: id is required", i)
		}
	}
	return nil
}

func validateStep(index int, step Step) error {
	set := 0
	if step.Inbox != nil {
		set++
	}
	if step.ChainTx != nil {
		set++
	}
	if step.Advance != 0 {
		set++
	}
	if step.Cycle != 0 {
		set++
	}
	if step.SetAutopay != nil {
		set++
	}
	if step.Remove != "" {
		set++
	}
	if step.InboxError != "" {
		set++
	}
	if step.Restart {
		set++
	}
	if set != 1 {
		return fmt.Errorf("steps[%d]: exactly one action is required, found %d", index, set)
	}

	switch {
	case step.Inbox != nil:
		return validateInbox(index, step.Inbox)
	case step.ChainTx != nil:
		if len(step.ChainTx.To) == 0 {
			return fmt.Errorf("steps[%d]: chain_tx needs at least one output", index)
		}
		if step.ChainTx.From.empty() {
			return fmt.Errorf("steps[%d]: chain_tx needs from", index)
		}
		for j, out := range step.ChainTx.To {
			if out.empty() || out.Amount == "" {
				return fmt.Errorf("steps[%d]: chain_tx output %d needs an address and amount", index, j)
			}
		}
	case step.Advance < 0:
		return fmt.Errorf("steps[%d]: advance must be positive", index)
	case step.Cycle < 0:
		return fmt.Errorf("steps[%d]: cycle count must be positive", index)
	}
	return nil
}

func validateInbox(index int, in *InboxStep) error {
	if in.ID == "" {
		return fmt.Errorf("steps[%d]: inbox id is required", index)
	}
	switch in.Kind {
	case KindTip:
		if in.User == "" || in.To == nil || in.To.empty() {
			return fmt.Errorf("steps[%d]: tip needs user and to", index)
		}
	case KindClaimed, KindReturned, KindFunded, KindConfirmation:
		if in.Comment == "" {
			return fmt.Errorf("steps[%d]: %s needs comment", index, in.Kind)
		}
	case KindOther:
	default:
		return fmt.Errorf("steps[%d]: unknown inbox kind %q", index, in.Kind)
	}
	return nil
}
