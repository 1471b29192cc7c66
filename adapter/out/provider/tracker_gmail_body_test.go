package provider

import (
	"encoding/base64"
	"testing"

	"google.golang.org/api/gmail/v1"
)

func enc(s string) string {
	return base64.URLEncoding.EncodeToString([]byte(s))
}

func leaf(mime, data string) *gmail.MessagePart {
	return &gmail.MessagePart{
		MimeType: mime,
		Body:     &gmail.MessagePartBody{Data: data},
	}
}

func TestExtractBodyFlatMessage(t *testing.T) {
	payload := leaf("text/plain", enc("plain body"))

	body := ExtractBody(payload)
	if body.Text != "plain body" {
		t.Errorf("Text = %q, want %q", body.Text, "plain body")
	}
	if body.HTML != "" {
		t.Errorf("HTML = %q, want empty", body.HTML)
	}
}

func TestExtractBodyMultipartAlternative(t *testing.T) {
	payload := &gmail.MessagePart{
		MimeType: "multipart/alternative",
		Parts: []*gmail.MessagePart{
			leaf("text/plain", enc("plain variant")),
			leaf("text/html", enc("<p>html variant</p>")),
		},
	}

	body := ExtractBody(payload)
	if body.Text != "plain variant" {
		t.Errorf("Text = %q", body.Text)
	}
	if body.HTML != "<p>html variant</p>" {
		t.Errorf("HTML = %q", body.HTML)
	}
}

func TestExtractBodyNestedMultipart(t *testing.T) {
	// multipart/mixed wrapping multipart/alternative, the common shape
	// for messages with attachments
	payload := &gmail.MessagePart{
		MimeType: "multipart/mixed",
		Parts: []*gmail.MessagePart{
			{
				MimeType: "multipart/alternative",
				Parts: []*gmail.MessagePart{
					leaf("text/plain", enc("deep plain")),
					leaf("text/html", enc("<b>deep html</b>")),
				},
			},
			leaf("application/pdf", enc("binarystuff")),
		},
	}

	body := ExtractBody(payload)
	if body.Text != "deep plain" {
		t.Errorf("Text = %q", body.Text)
	}
	if body.HTML != "<b>deep html</b>" {
		t.Errorf("HTML = %q", body.HTML)
	}
}

func TestExtractBodyFirstVariantWins(t *testing.T) {
	payload := &gmail.MessagePart{
		MimeType: "multipart/mixed",
		Parts: []*gmail.MessagePart{
			leaf("text/plain", enc("first")),
			leaf("text/plain", enc("second")),
		},
	}

	body := ExtractBody(payload)
	if body.Text != "first" {
		t.Errorf("Text = %q, want first occurrence", body.Text)
	}
}

func TestExtractBodyCorruptLeafDegrades(t *testing.T) {
	payload := &gmail.MessagePart{
		MimeType: "multipart/alternative",
		Parts: []*gmail.MessagePart{
			leaf("text/plain", "!!!not-base64!!!"),
			leaf("text/html", enc("<i>still here</i>")),
		},
	}

	body := ExtractBody(payload)
	if body.Text != "" {
		t.Errorf("Text = %q, want empty for corrupt part", body.Text)
	}
	if body.HTML != "<i>still here</i>" {
		t.Errorf("HTML = %q", body.HTML)
	}
}

func TestExtractBodyNilPayload(t *testing.T) {
	body := ExtractBody(nil)
	if body.Text != "" || body.HTML != "" {
		t.Errorf("expected empty body, got %+v", body)
	}
}
