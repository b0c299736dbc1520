// Package translator converts messages between the Tiledesk channel format and
// the WhatsApp Cloud API format. It performs no I/O: media must already be hosted.
package translator

import (
	"fmt"
	"strings"

	"github.com/visioninhope/tiledesk-whatsapp-connector/internal/adapters/tiledesk"
	"github.com/visioninhope/tiledesk-whatsapp-connector/internal/adapters/whatsapp"
)

const (
	ChannelName = "whatsapp"

	maxReplyButtons   = 3
	maxButtonTitle    = 20
	maxListRows       = 10
	maxListRowTitle   = 24
	listActionButton  = "Choose an option"
	quickReplyIDStart = "quick_"
)

// ToWhatsapp builds the WhatsApp payload for a Tiledesk message addressed to
// the given receiver. It returns nil when there is nothing to send.
func ToWhatsapp(msg *tiledesk.Message, to string) *whatsapp.OutboundMessage {
	if msg == nil || (msg.Text == "" && msg.Metadata == nil && !msg.HasAttachment()) {
		return nil
	}

	out := &whatsapp.OutboundMessage{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
	}

	if msg.HasAttachment() && msg.Attributes.Attachment.Type == tiledesk.AttachmentTemplate {
		tpl := msg.Attributes.Attachment.Template
		if tpl == nil || tpl.Name == "" {
			return nil
		}
		out.Type = whatsapp.TypeTemplate
		out.Template = &whatsapp.Template{
			Name:       tpl.Name,
			Language:   whatsapp.TemplateLanguage{Code: tpl.Language},
			Components: tpl.Components,
		}
		return out
	}

	if msg.Metadata != nil && msg.Metadata.Src != "" {
		media := &whatsapp.OutboundMedia{Link: msg.Metadata.Src, Caption: msg.Text}
		switch mediaKind(msg) {
		case whatsapp.TypeImage:
			out.Type, out.Image = whatsapp.TypeImage, media
		case whatsapp.TypeVideo:
			out.Type, out.Video = whatsapp.TypeVideo, media
		case whatsapp.TypeAudio:
			// audio messages do not accept a caption
			media.Caption = ""
			out.Type, out.Audio = whatsapp.TypeAudio, media
		default:
			media.Filename = msg.Metadata.Name
			media.Caption = stripMarkdownLink(msg.Text)
			out.Type, out.Document = whatsapp.TypeDocument, media
		}
		return out
	}

	if msg.HasAttachment() && len(msg.Attributes.Attachment.Buttons) > 0 {
		if interactive := buildInteractive(msg.Text, msg.Attributes.Attachment.Buttons); interactive != nil {
			out.Type = whatsapp.TypeInteractive
			out.Interactive = interactive
			return out
		}
		// only link buttons: they are appended to the text
		text := appendLinks(msg.Text, msg.Attributes.Attachment.Buttons)
		if text == "" {
			return nil
		}
		out.Type = whatsapp.TypeText
		out.Text = &whatsapp.TextContent{Body: text}
		return out
	}

	if msg.Text == "" {
		return nil
	}
	out.Type = whatsapp.TypeText
	out.Text = &whatsapp.TextContent{Body: msg.Text}
	return out
}

func mediaKind(msg *tiledesk.Message) string {
	mime := msg.Metadata.Type
	switch {
	case msg.Type == "image" || strings.HasPrefix(mime, "image/"):
		return whatsapp.TypeImage
	case msg.Type == "video" || strings.HasPrefix(mime, "video/"):
		return whatsapp.TypeVideo
	case strings.HasPrefix(mime, "audio/"):
		return whatsapp.TypeAudio
	}
	return whatsapp.TypeDocument
}

func buildInteractive(text string, buttons []tiledesk.Button) *whatsapp.OutboundInteractive {
	var replies []tiledesk.Button
	for _, b := range buttons {
		if b.Type == tiledesk.ButtonText || b.Type == tiledesk.ButtonAction {
			replies = append(replies, b)
		}
	}
	if len(replies) == 0 {
		return nil
	}

	body := appendLinks(text, buttons)
	if body == "" {
		// interactive messages require a body
		body = " "
	}

	if len(replies) <= maxReplyButtons {
		action := whatsapp.InteractiveAction{}
		for i, b := range replies {
			action.Buttons = append(action.Buttons, whatsapp.ReplyButton{
				Type: "reply",
				Reply: whatsapp.ButtonReply{
					ID:    fmt.Sprintf("%s%d", quickReplyIDStart, i),
					Title: truncate(b.Value, maxButtonTitle),
				},
			})
		}
		return &whatsapp.OutboundInteractive{
			Type:   "button",
			Body:   whatsapp.InteractiveBody{Text: body},
			Action: action,
		}
	}

	section := whatsapp.ListSection{}
	for i, b := range replies {
		if i == maxListRows {
			break
		}
		section.Rows = append(section.Rows, whatsapp.ListRow{
			ID:    fmt.Sprintf("%s%d", quickReplyIDStart, i),
			Title: truncate(b.Value, maxListRowTitle),
		})
	}
	return &whatsapp.OutboundInteractive{
		Type: "list",
		Body: whatsapp.InteractiveBody{Text: body},
		Action: whatsapp.InteractiveAction{
			Button:   listActionButton,
			Sections: []whatsapp.ListSection{section},
		},
	}
}

func appendLinks(text string, buttons []tiledesk.Button) string {
	var b strings.Builder
	b.WriteString(text)
	for _, btn := range buttons {
		if btn.Type != tiledesk.ButtonURL || btn.Link == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(btn.Value + ": " + btn.Link)
	}
	return b.String()
}

// ToTiledesk builds the Tiledesk message for an inbound WhatsApp message.
// Media types need mediaURL, the already hosted copy of the media. It returns
// nil when the message cannot be represented.
func ToTiledesk(msg *whatsapp.InboundMessage, displayName, mediaURL string) *tiledesk.Message {
	if msg == nil {
		return nil
	}

	out := &tiledesk.Message{
		SenderFullname: displayName,
		Channel:        &tiledesk.Channel{Name: ChannelName},
	}

	switch msg.Type {
	case whatsapp.TypeText:
		if msg.Text == nil {
			return nil
		}
		out.Text = msg.Text.Body
		return out

	case whatsapp.TypeInteractive:
		if msg.Interactive == nil {
			return nil
		}
		switch {
		case msg.Interactive.ButtonReply != nil:
			out.Text = msg.Interactive.ButtonReply.Title
		case msg.Interactive.ListReply != nil:
			out.Text = msg.Interactive.ListReply.Title
		default:
			return nil
		}
		return out

	case whatsapp.TypeImage, whatsapp.TypeVideo, whatsapp.TypeAudio, whatsapp.TypeDocument:
		media := msg.Media()
		if media == nil || mediaURL == "" {
			return nil
		}
		return mediaMessage(out, msg.Type, media, mediaURL)
	}

	return nil
}

func mediaMessage(out *tiledesk.Message, kind string, media *whatsapp.MediaContent, mediaURL string) *tiledesk.Message {
	out.Metadata = &tiledesk.Metadata{Src: mediaURL, Type: media.MimeType}

	switch kind {
	case whatsapp.TypeImage:
		out.Type = "image"
		out.Text = media.Caption
		if out.Text == "" {
			out.Text = "Attached image"
		}
	case whatsapp.TypeVideo:
		out.Type = "video"
		out.Metadata.Name = fileName(media, "video")
		out.Text = withCaption("["+out.Metadata.Name+"]("+mediaURL+")", media.Caption)
	case whatsapp.TypeAudio:
		out.Type = "file"
		out.Metadata.Name = fileName(media, "audio")
		out.Text = "[" + out.Metadata.Name + "](" + mediaURL + ")"
	default:
		out.Type = "file"
		out.Metadata.Name = fileName(media, "document")
		out.Text = withCaption("["+out.Metadata.Name+"]("+mediaURL+")", media.Caption)
	}
	return out
}

func fileName(media *whatsapp.MediaContent, fallback string) string {
	if media.Filename != "" {
		return media.Filename
	}
	return fallback
}

func withCaption(link, caption string) string {
	if caption == "" {
		return link
	}
	return caption + "\n" + link
}

// stripMarkdownLink drops the "[name](url)" part Tiledesk adds to file messages.
func stripMarkdownLink(text string) string {
	start := strings.Index(text, "[")
	mid := strings.Index(text, "](")
	end := strings.LastIndex(text, ")")
	if start < 0 || mid < start || end < mid {
		return text
	}
	return strings.TrimSpace(text[:start] + text[end+1:])
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
