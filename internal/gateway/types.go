// Package gateway defines the transport-neutral contract between the
// announcement core and a chat platform driver.
package gateway

import "context"

// Attachment is a binary payload travelling with a message, in either
// direction.
type Attachment struct {
	Filename string
	Data     []byte
}

// Inbound is one operator message as received by a driver.
type Inbound struct {
	AuthorID    int64
	AuthorName  string
	AuthorIcon  string
	Text        string
	Attachments []Attachment
}

// Button is a link button rendered under the announcement.
type Button struct {
	Label string
	URL   string
}

// Outbound is a composed announcement ready for delivery.
type Outbound struct {
	Body        string // rendered inside the rich announcement body
	Sidecar     string // plain text outside it (mention tokens, broadcast marker)
	Color       int
	Buttons     []Button
	Attachments []Attachment
	AuthorName  string
	AuthorIcon  string
}

// MessageRef identifies a delivered message for follow-up calls.
type MessageRef struct {
	ChannelID string
	MessageID string
}

// Gateway is the surface the core needs from a chat platform.
//
// Start feeds operator messages into inbox until ctx is done; drivers drop
// updates rather than block when the consumer lags.
type Gateway interface {
	Start(ctx context.Context, inbox chan<- Inbound) error
	Stop(ctx context.Context) error

	// Destinations lists the names announcements can be delivered to.
	Destinations(ctx context.Context) ([]string, error)
	// Roles lists mentionable role names. Drivers without a role concept
	// return an empty list; mention queries then soft-fail per name.
	Roles(ctx context.Context) ([]string, error)
	// MentionToken renders the platform token that pings a resolved role.
	MentionToken(role string) string

	Publish(ctx context.Context, destination string, msg Outbound) (MessageRef, error)
	// AddPollMarks attaches the two opposed vote reactions to a delivered message.
	AddPollMarks(ctx context.Context, ref MessageRef) error
	// NotifyOperator sends a plain status message to the operator's private chat.
	NotifyOperator(ctx context.Context, operatorID int64, text string) error
}
