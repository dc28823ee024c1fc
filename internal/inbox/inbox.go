// Package inbox describes the bot account's message and comment inbox.
package inbox

import (
	"context"
	"errors"
	"time"
)

// ErrUnauthorized is returned by an Inbox whose credentials were rejected.
// The reconciliation loop stops on it rather than retrying.
var ErrUnauthorized = errors.New("inbox: unauthorized")

// Kind distinguishes private messages from comment replies.
type Kind string

const (
	KindMessage Kind = "message"
	KindComment Kind = "comment"
)

// Item is one inbox entry.
type Item struct {
	ID        string    `json:"id" yaml:"id"`
	Kind      Kind      `json:"kind" yaml:"kind"`
	Author    string    `json:"author" yaml:"author"`
	Subject   string    `json:"subject,omitempty" yaml:"subject"`
	Body      string    `json:"body" yaml:"body"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`

	// ParentID is the document this comment replies to. Empty for messages.
	ParentID string `json:"parent_id,omitempty" yaml:"parent_id"`

	// LinkID is the post a comment belongs to. Empty for messages.
	LinkID string `json:"link_id,omitempty" yaml:"link_id"`
}

// Comment is a document fetched by id for enrichment.
type Comment struct {
	ID       string
	Author   string
	Body     string
	ParentID string
	LinkID   string
}

// Inbox is the social platform's message service.
type Inbox interface {
	// ListUnread returns up to limit unread items, oldest first. A non-empty
	// after starts the page past the item with that id, so callers can page
	// beyond items they are deliberately leaving unread.
	ListUnread(ctx context.Context, after string, limit int) ([]Item, error)

	// FetchComments returns the comments with the given ids. Ids the
	// platform does not know are omitted from the result.
	FetchComments(ctx context.Context, ids []string) ([]Comment, error)

	MarkRead(ctx context.Context, ids []string) error
	MarkUnread(ctx context.Context, ids []string) error
}
