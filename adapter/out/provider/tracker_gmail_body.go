package provider

import (
	"encoding/base64"

	"google.golang.org/api/gmail/v1"
)

// MessageBody holds the decoded body variants of one message.
type MessageBody struct {
	Text string
	HTML string
}

// ExtractBody walks the MIME tree depth-first and decodes the first
// text/plain and first text/html leaves it finds. Later duplicates are
// ignored. A leaf that fails base64 decoding is skipped, leaving that
// variant empty rather than failing the message.
func ExtractBody(payload *gmail.MessagePart) MessageBody {
	var body MessageBody
	extractBody(payload, &body)
	return body
}

func extractBody(part *gmail.MessagePart, body *MessageBody) {
	if part == nil {
		return
	}

	if part.Body != nil && part.Body.Data != "" {
		switch part.MimeType {
		case "text/plain":
			if body.Text == "" {
				if data, err := base64.URLEncoding.DecodeString(part.Body.Data); err == nil {
					body.Text = string(data)
				}
			}
		case "text/html":
			if body.HTML == "" {
				if data, err := base64.URLEncoding.DecodeString(part.Body.Data); err == nil {
					body.HTML = string(data)
				}
			}
		}
	}

	for _, p := range part.Parts {
		extractBody(p, body)
	}
}
