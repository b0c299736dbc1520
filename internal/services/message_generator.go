package services

import (
	"strings"

	"github.com/visioninhope/tiledesk-whatsapp-connector/internal/adapters/tiledesk"
)

// GenerateMessage builds the Tiledesk message carried by a "message" command.
// The command message inherits routing fields from the message that carried
// the command list; the parent is never modified.
func GenerateMessage(parent *tiledesk.Message, cmd tiledesk.Command) *tiledesk.Message {
	if cmd.Message == nil {
		return nil
	}

	msg := *cmd.Message
	msg.Text = strings.TrimSpace(msg.Text)
	if msg.Attributes != nil {
		attrs := *msg.Attributes
		// nested command lists are not executed
		attrs.Commands = nil
		msg.Attributes = &attrs
	}

	if parent != nil {
		if msg.Sender == "" {
			msg.Sender = parent.Sender
		}
		if msg.SenderFullname == "" {
			msg.SenderFullname = parent.SenderFullname
		}
		if msg.Recipient == "" {
			msg.Recipient = parent.Recipient
		}
		if msg.ProjectID == "" {
			msg.ProjectID = parent.ProjectID
		}
	}
	return &msg
}
