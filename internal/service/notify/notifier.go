package notify

import (
	"context"
	"fmt"
	"strings"

	"camwatch/internal/model"
)

// Kinds of outbound message, also used as metric labels.
const (
	KindInitial = "initial"
	KindStatus  = "status"
	KindImage   = "image"
	KindInvalid = "invalid"
)

// InvalidResponseText is sent when an operator reply is neither "1" nor "2".
const InvalidResponseText = `Invalid response. Please reply with "1" for current status or "2" for current image.`

// Notifier delivers messages to the human operator. Implementations must honour ctx deadlines.
type Notifier interface {
	SendInitialAlert(ctx context.Context, level model.DangerLevel, description string) error
	SendStatusResponse(ctx context.Context, level model.DangerLevel) error
	SendImageResponse(ctx context.Context, imageURL string) error
	SendInvalidResponse(ctx context.Context) error
}

// Message is the transport-neutral form of an outbound notification.
type Message struct {
	Kind     string `json:"kind"`
	Body     string `json:"body"`
	MediaURL string `json:"mediaUrl,omitempty"`
}

func InitialAlertMessage(level model.DangerLevel, description string) Message {
	body := fmt.Sprintf("ALERT: %s detected by camera monitoring.", level)
	if description = strings.TrimSpace(description); description != "" {
		body += "\n" + description
	}
	body += "\nReply 1 for current status or 2 for current image."
	return Message{Kind: KindInitial, Body: body}
}

func StatusResponseMessage(level model.DangerLevel) Message {
	return Message{
		Kind: KindStatus,
		Body: fmt.Sprintf("Current status: %s.\nReply 1 for current status or 2 for current image.", level),
	}
}

func ImageResponseMessage(imageURL string) Message {
	if imageURL == "" {
		return Message{Kind: KindImage, Body: "No current camera image is available."}
	}
	return Message{Kind: KindImage, Body: "Current camera image:", MediaURL: imageURL}
}

func InvalidResponseMessage() Message {
	return Message{Kind: KindInvalid, Body: InvalidResponseText}
}

// sender adapts a single delivery function to the Notifier interface.
type sender struct {
	send func(ctx context.Context, msg Message) error
}

func (s sender) SendInitialAlert(ctx context.Context, level model.DangerLevel, description string) error {
	return s.send(ctx, InitialAlertMessage(level, description))
}

func (s sender) SendStatusResponse(ctx context.Context, level model.DangerLevel) error {
	return s.send(ctx, StatusResponseMessage(level))
}

func (s sender) SendImageResponse(ctx context.Context, imageURL string) error {
	return s.send(ctx, ImageResponseMessage(imageURL))
}

func (s sender) SendInvalidResponse(ctx context.Context) error {
	return s.send(ctx, InvalidResponseMessage())
}
