package testutil

import (
	"fmt"
	"time"

	"github.com/roach88/tipsync/internal/inbox"
)

// Bot is the notification author the fixtures use.
const Bot = "chaintip"

func tipLink(commentID string) string {
	return fmt.Sprintf("[your tip](https://www.reddit.com/r/btc/comments/abc123/_/%s)", commentID)
}

// TipMessage is a tip-creation notification. An empty commentID omits the
// link back to the tipping comment.
func TipMessage(id, username, address, commentID string, at time.Time) inbox.Item {
	body := ""
	if commentID != "" {
		body = "Thanks for using chaintip. " + tipLink(commentID) + " is on its way.\n\n"
	}
	body += fmt.Sprintf("u/%s has been notified. Please send the tip to **%s**\n\n***\n^(beep boop)", username, address)
	return inbox.Item{
		ID:        id,
		Kind:      inbox.KindMessage,
		Author:    Bot,
		Subject:   "Tip pending",
		Body:      body,
		CreatedAt: at,
	}
}

// ActionMessage is a claimed/returned/funded notification about the tip
// made in commentID.
func ActionMessage(id, action, commentID string, at time.Time) inbox.Item {
	return inbox.Item{
		ID:        id,
		Kind:      inbox.KindMessage,
		Author:    Bot,
		Subject:   "Tip " + action,
		Body:      fmt.Sprintf("Your tip was %s. See %s for details.", action, tipLink(commentID)),
		CreatedAt: at,
	}
}

// ConfirmationComment is the bot's public reply to the tipping comment.
func ConfirmationComment(id, commentID, body string, at time.Time) inbox.Item {
	return inbox.Item{
		ID:        id,
		Kind:      inbox.KindComment,
		Author:    Bot,
		Body:      body,
		CreatedAt: at,
		ParentID:  "t1_" + commentID,
		LinkID:    "t3_abc123",
	}
}

// TippingComment is the user comment that addressed the bot.
func TippingComment(id, body string) inbox.Comment {
	return inbox.Comment{
		ID:       id,
		Author:   "tipper",
		Body:     body,
		ParentID: "t1_tippee" + id,
		LinkID:   "t3_abc123",
	}
}
