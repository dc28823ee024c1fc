package digest

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/tipsync/internal/inbox"
	"github.com/roach88/tipsync/internal/tip"
)

// Shape is what kind of notification an item is.
type Shape int

const (
	ShapeOther Shape = iota
	ShapeAcceptance
	ShapeCreation
	ShapeConfirmation
)

func (s Shape) String() string {
	switch s {
	case ShapeAcceptance:
		return "acceptance"
	case ShapeCreation:
		return "creation"
	case ShapeConfirmation:
		return "confirmation"
	default:
		return "other"
	}
}

// Classification is the structured content extracted from an item.
type Classification struct {
	Shape Shape

	// Reference links acceptance and confirmation events to their tip.
	Reference    string
	Acceptance   tip.Acceptance
	Confirmation tip.Confirmation

	// Creation fields.
	Username         string
	Address          string
	TippingCommentID string
}

var (
	reAction    = regexp.MustCompile(`^Tip (claimed|returned|funded)\b`)
	reSubject   = regexp.MustCompile(`^Tip \S+`)
	reTipLink   = regexp.MustCompile(`\[your tip\]\(\S*/_/(\w+)\)`)
	reRecipient = regexp.MustCompile(`(?ms)^u/(\S+) has.*?\*\*([^*\s]+)\*\*`)
)

var actionAcceptance = map[string]tip.Acceptance{
	"claimed":  tip.AcceptanceClaimed,
	"returned": tip.AcceptanceReturned,
	"funded":   tip.AcceptanceReceived,
}

// Classifier recognises the bot's notifications by a fixed priority of
// pattern matchers: acceptance actions, tip creation, confirmation comments.
type Classifier struct {
	bot string
}

// NewClassifier creates a classifier for notifications sent by bot.
func NewClassifier(bot string) *Classifier {
	return &Classifier{bot: bot}
}

// Classify inspects item. Items not authored by the bot are ShapeOther.
func (c *Classifier) Classify(item inbox.Item) Classification {
	if !strings.EqualFold(item.Author, c.bot) {
		return Classification{}
	}
	subject := norm.NFC.String(strings.TrimSpace(item.Subject))
	body := norm.NFC.String(item.Body)

	if item.Kind == inbox.KindComment {
		return classifyConfirmation(item, body)
	}

	if m := reAction.FindStringSubmatch(subject); m != nil {
		link := reTipLink.FindStringSubmatch(body)
		if link == nil {
			return Classification{}
		}
		return Classification{
			Shape:      ShapeAcceptance,
			Reference:  link[1],
			Acceptance: actionAcceptance[m[1]],
		}
	}

	if reSubject.MatchString(subject) {
		r := reRecipient.FindStringSubmatch(body)
		if r == nil {
			return Classification{}
		}
		out := Classification{
			Shape:    ShapeCreation,
			Username: r[1],
			Address:  r[2],
		}
		if link := reTipLink.FindStringSubmatch(body); link != nil {
			out.TippingCommentID = link[1]
		}
		return out
	}

	return Classification{}
}

func classifyConfirmation(item inbox.Item, body string) Classification {
	ref := StripKind(item.ParentID)
	if ref == "" {
		return Classification{}
	}

	for _, p := range confirmationPhrases {
		if p.re.MatchString(body) {
			return Classification{Shape: ShapeConfirmation, Reference: ref, Confirmation: p.status}
		}
	}
	return Classification{}
}

// confirmationPhrases are tried in order. Each matches a whole phrase of
// the bot's reply, so "consent" or "has not been claimed" match nothing.
var confirmationPhrases = []struct {
	re     *regexp.Regexp
	status tip.Confirmation
}{
	{regexp.MustCompile(`(?i)\bplease\s+claim\b`), tip.ConfirmationUnclaimed},
	{regexp.MustCompile(`(?i)\b(?:was|been)\s+returned\b`), tip.ConfirmationReturned},
	{regexp.MustCompile(`(?i)\bhas\s+claimed\b`), tip.ConfirmationClaimed},
	{regexp.MustCompile(`(?i)\b(?:is|was|been)\s+(?:confirmed|sent)\b`), tip.ConfirmationConfirmed},
}

// StripKind removes a platform kind prefix ("t1_", "t3_") from an id.
func StripKind(id string) string {
	if len(id) > 3 && id[0] == 't' && id[2] == '_' {
		return id[3:]
	}
	return id
}
