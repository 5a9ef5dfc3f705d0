package chat

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func int64p(v int64) *int64 { return &v }
func intp(v int) *int       { return &v }

func TestNormalizeTrimsBody(t *testing.T) {
	out, err := DefaultPolicy().Normalize(MessageInput{Body: "  hello \n", ClientMessageID: " c-1 "})
	require.NoError(t, err)
	assert.Equal(t, "hello", out.Body)
	assert.Equal(t, "c-1", out.ClientMessageID)
}

func TestNormalizeAttachmentOnly(t *testing.T) {
	in := MessageInput{Attachments: []Attachment{{Type: AttachmentImage, URL: "/media/a.jpg"}}}
	out, err := DefaultPolicy().Normalize(in)
	require.NoError(t, err)
	assert.Empty(t, out.Body)
	assert.Len(t, out.Attachments, 1)
}

func TestNormalizeRejects(t *testing.T) {
	p := Policy{MaxAttachments: 2, MaxBodyLength: 10, AllowedURLPrefixes: []string{"https://cdn.example.com/"}}
	img := func(url string) Attachment { return Attachment{Type: AttachmentImage, URL: url} }

	cases := []struct {
		name  string
		in    MessageInput
		field string
	}{
		{"empty", MessageInput{Body: "   "}, ""},
		{"empty attachments", MessageInput{Attachments: []Attachment{}}, ""},
		{"body too long", MessageInput{Body: strings.Repeat("é", 11)}, "body"},
		{"too many attachments", MessageInput{Attachments: []Attachment{img("/a"), img("/b"), img("/c")}}, "attachments"},
		{"client id too long", MessageInput{Body: "x", ClientMessageID: strings.Repeat("a", 65)}, "client_message_id"},
		{"bad type", MessageInput{Attachments: []Attachment{{Type: "video", URL: "/a"}}}, "attachments.type"},
		{"missing url", MessageInput{Attachments: []Attachment{{Type: AttachmentFile}}}, "attachments.url"},
		{"relative url", MessageInput{Attachments: []Attachment{img("media/a.png")}}, "attachments.url"},
		{"foreign host", MessageInput{Attachments: []Attachment{img("https://evil.example.org/a.png")}}, "attachments.url"},
		{"negative size", MessageInput{Attachments: []Attachment{{Type: AttachmentFile, URL: "/f", Size: int64p(-1)}}}, "attachments.size"},
		{"zero width", MessageInput{Attachments: []Attachment{{Type: AttachmentImage, URL: "/i", Width: intp(0)}}}, "attachments.width"},
		{"long name", MessageInput{Attachments: []Attachment{{Type: AttachmentFile, URL: "/f", Name: strings.Repeat("n", 256)}}}, "attachments.name"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := p.Normalize(tc.in)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidMessage))
			var ve *ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tc.field, ve.Field)
		})
	}
}

func TestNormalizeAllowsConfiguredHost(t *testing.T) {
	p := Policy{AllowedURLPrefixes: []string{"https://cdn.example.com/"}}
	_, err := p.Normalize(MessageInput{Attachments: []Attachment{{
		Type: AttachmentImage, URL: "https://cdn.example.com/a.png", Width: intp(640), Height: intp(480), Size: int64p(0),
	}}})
	require.NoError(t, err)
}
