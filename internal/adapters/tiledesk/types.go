package tiledesk

import "strings"

// Message is a Tiledesk channel message, in both directions.
type Message struct {
	UID            string      `json:"uid,omitempty"`
	Text           string      `json:"text,omitempty"`
	Type           string      `json:"type,omitempty"`
	Sender         string      `json:"sender,omitempty"`
	SenderFullname string      `json:"senderFullname,omitempty"`
	Recipient      string      `json:"recipient,omitempty"`
	ProjectID      string      `json:"id_project,omitempty"`
	Attributes     *Attributes `json:"attributes,omitempty"`
	Metadata       *Metadata   `json:"metadata,omitempty"`
	Channel        *Channel    `json:"channel,omitempty"`
	Participants   []string    `json:"participants,omitempty"`
	DepartmentID   string      `json:"departmentid,omitempty"`
}

// HasAttachment reports whether attributes.attachment is set.
func (m *Message) HasAttachment() bool {
	return m.Attributes != nil && m.Attributes.Attachment != nil
}

// Subtype returns attributes.subtype or "".
func (m *Message) Subtype() string {
	if m.Attributes == nil {
		return ""
	}
	return m.Attributes.Subtype
}

// Commands returns attributes.commands or nil.
func (m *Message) Commands() []Command {
	if m.Attributes == nil {
		return nil
	}
	return m.Attributes.Commands
}

// Attributes carries the optional structured part of a message.
type Attributes struct {
	Subtype    string      `json:"subtype,omitempty"`
	Commands   []Command   `json:"commands,omitempty"`
	Attachment *Attachment `json:"attachment,omitempty"`
}

// Attachment is either a WhatsApp template or a set of buttons.
type Attachment struct {
	Type     string    `json:"type,omitempty"`
	Template *Template `json:"template,omitempty"`
	Buttons  []Button  `json:"buttons,omitempty"`
}

// AttachmentTemplate marks an attachment that must be sent as a WhatsApp template.
const AttachmentTemplate = "wa_template"

// Template names a pre-approved WhatsApp template.
type Template struct {
	Name       string `json:"name"`
	Language   string `json:"language"`
	Components []any  `json:"components,omitempty"`
}

// Button types.
const (
	ButtonText   = "text"
	ButtonURL    = "url"
	ButtonAction = "action"
)

// Button is a quick reply or link button.
type Button struct {
	Type  string `json:"type"`
	Value string `json:"value"`
	Link  string `json:"link,omitempty"`
}

// Metadata describes an attached media file.
type Metadata struct {
	Src    string `json:"src,omitempty"`
	Name   string `json:"name,omitempty"`
	Type   string `json:"type,omitempty"` // mime type
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

// Channel names the source channel of a message.
type Channel struct {
	Name string `json:"name"`
}

// Command is one step of a scripted outbound sequence.
type Command struct {
	Type    string   `json:"type"`
	Time    int64    `json:"time,omitempty"` // milliseconds, wait only
	Message *Message `json:"message,omitempty"`
}

// MessageInfo is the routing envelope sent along with a message to Tiledesk.
type MessageInfo struct {
	Channel  string       `json:"channel"`
	Whatsapp WhatsappInfo `json:"whatsapp"`
}

// WhatsappInfo identifies the WhatsApp conversation a message belongs to.
type WhatsappInfo struct {
	PhoneNumberID string `json:"phone_number_id"`
	From          string `json:"from"`
	Firstname     string `json:"firstname,omitempty"`
	Lastname      string `json:"lastname,omitempty"`
}

// SenderTag is embedded in every sender id produced by the connector.
const SenderTag = "wab"

// ParseRecipient extracts the WhatsApp receiver and the business phone number id
// from a request id shaped like "support-group-<project>-<uid>-wab-<phone_number_id>-<receiver>".
func ParseRecipient(recipient string) (receiver, phoneNumberID string) {
	last := strings.LastIndex(recipient, "-")
	receiver = recipient[last+1:]
	tag := strings.LastIndex(recipient, SenderTag+"-")
	if tag >= 0 && last > tag+len(SenderTag)+1 {
		phoneNumberID = recipient[tag+len(SenderTag)+1 : last]
	}
	return receiver, phoneNumberID
}

// RequestIDSuffix is the tail every request id of a WhatsApp conversation ends with.
func RequestIDSuffix(info MessageInfo) string {
	return "-" + SenderTag + "-" + info.Whatsapp.PhoneNumberID + "-" + info.Whatsapp.From
}

// OutboundEvent is the body Tiledesk posts to the subscription webhook.
type OutboundEvent struct {
	Payload *Message `json:"payload"`
}

// signinResponse is the body of /auth/signinWithCustomToken.
type signinResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token"`
}

// requestsResponse is the body of /{project}/requests/me.
type requestsResponse struct {
	Requests []struct {
		RequestID string `json:"request_id"`
	} `json:"requests"`
}

// uploadResponse is the body of /{images|files}/users.
type uploadResponse struct {
	Message   string `json:"message"`
	Filename  string `json:"filename"`
	Thumbnail string `json:"thumbnail,omitempty"`
}

// SentMessage is the message returned by the request messages API.
type SentMessage struct {
	ID        string `json:"_id"`
	RequestID string `json:"recipient"`
	Text      string `json:"text"`
}
