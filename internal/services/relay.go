package services

import (
	"strings"

	"github.com/visioninhope/tiledesk-whatsapp-connector/internal/adapters/tiledesk"
	"github.com/visioninhope/tiledesk-whatsapp-connector/internal/adapters/whatsapp"
	"github.com/visioninhope/tiledesk-whatsapp-connector/internal/models"
	"github.com/visioninhope/tiledesk-whatsapp-connector/internal/translator"
)

// DecisionKind tells the /tiledesk handler what to do with a message.
type DecisionKind int

const (
	// Acknowledge answers 200 with nothing to do.
	Acknowledge DecisionKind = iota
	// Skip answers 200 without sending; Reason says why.
	Skip
	// Expired sends Notice back to Tiledesk instead of relaying.
	Expired
	// RunSequence hands Commands to the sequencer.
	RunSequence
	// Forward sends Message to WhatsApp.
	Forward
	// Reject answers 400: the message could not be translated.
	Reject
)

func (k DecisionKind) String() string {
	switch k {
	case Acknowledge:
		return "acknowledge"
	case Skip:
		return "skip"
	case Expired:
		return "expired"
	case RunSequence:
		return "sequence"
	case Forward:
		return "forward"
	case Reject:
		return "reject"
	}
	return "unknown"
}

// Subtypes of Tiledesk system notices, never forwarded.
const (
	SubtypeInfo        = "info"
	SubtypeInfoSupport = "info/support"
)

// ExpiredNoticeText is the text sent back to Tiledesk for expired plans.
const ExpiredNoticeText = "Expired. Upgrade Plan."

// Decision is the outcome of DecideOutbound.
type Decision struct {
	Kind          DecisionKind
	Reason        string
	Receiver      string
	PhoneNumberID string

	Message    *whatsapp.OutboundMessage // Forward
	Commands   []tiledesk.Command        // RunSequence
	Notice     *tiledesk.Message         // Expired
	NoticeInfo tiledesk.MessageInfo      // Expired
}

// DecideOutbound computes what to do with a message Tiledesk posted to the
// channel. It performs no I/O. settings is nil when the project has no
// WhatsApp configuration.
func DecideOutbound(msg *tiledesk.Message, settings *models.ChannelSettings) Decision {
	if msg == nil {
		return Decision{Kind: Skip, Reason: "empty payload"}
	}
	if settings == nil {
		return Decision{Kind: Skip, Reason: "no settings for project"}
	}
	if strings.Contains(msg.Sender, tiledesk.SenderTag) {
		return Decision{Kind: Skip, Reason: "same sender"}
	}
	if subtype := msg.Subtype(); subtype == SubtypeInfo || subtype == SubtypeInfoSupport {
		return Decision{Kind: Skip, Reason: "subtype " + subtype}
	}

	receiver, phoneNumberID := tiledesk.ParseRecipient(msg.Recipient)
	d := Decision{Receiver: receiver, PhoneNumberID: phoneNumberID}

	if settings.Expired {
		d.Kind = Expired
		d.Notice = &tiledesk.Message{
			Text:           ExpiredNoticeText,
			Sender:         msg.Sender,
			SenderFullname: "System",
			Attributes:     &tiledesk.Attributes{Subtype: SubtypeInfo},
			Channel:        &tiledesk.Channel{Name: translator.ChannelName},
		}
		d.NoticeInfo = tiledesk.MessageInfo{
			Channel: translator.ChannelName,
			Whatsapp: tiledesk.WhatsappInfo{
				From:          receiver,
				PhoneNumberID: phoneNumberID,
			},
		}
		return d
	}

	if commands := msg.Commands(); len(commands) > 0 {
		d.Kind = RunSequence
		d.Commands = commands
		return d
	}

	if msg.Text == "" && msg.Metadata == nil {
		d.Kind = Acknowledge
		d.Reason = "no command, no text"
		return d
	}

	out := translator.ToWhatsapp(msg, receiver)
	if out == nil {
		d.Kind = Reject
		d.Reason = "translation empty"
		return d
	}
	d.Kind = Forward
	d.Message = out
	return d
}
