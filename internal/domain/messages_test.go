package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestResponsePhases(t *testing.T) {
	assert.False(t, RequestResponse{Request: "q"}.IsAnswer())
	assert.True(t, RequestResponse{Request: "q", Response: "a"}.IsAnswer())
}

func TestNewFrameInfersKind(t *testing.T) {
	cases := []struct {
		msg  interface{}
		kind string
	}{
		{RequestResponse{Request: "q"}, KindRequestResponse},
		{QueryRequest{Query: "q"}, KindQueryRequest},
		{ToolRequest{Params: map[string]interface{}{"data": "d"}}, KindToolRequest},
		{ToolResponse{Result: "r"}, KindToolResponse},
		{ImageResponse{Request: "q"}, KindImageResponse},
		{NewTextChat("hi", false), KindChatMessage},
		{ChatAcknowledgement{AcknowledgedMsgID: "msg_1"}, KindChatAck},
	}
	for _, tc := range cases {
		frame, err := NewFrame("agent://a", "agent://b", tc.msg)
		require.NoError(t, err)
		assert.Equal(t, tc.kind, frame.Kind)

		decoded, err := frame.Decode()
		require.NoError(t, err)
		assert.IsType(t, tc.msg, decoded)
	}
}

func TestNewFrameRejectsUnknownType(t *testing.T) {
	_, err := NewFrame("agent://a", "agent://b", struct{ X int }{1})
	require.Error(t, err)
}

func TestNewTextChat(t *testing.T) {
	m := NewTextChat("hello", false)
	assert.True(t, strings.HasPrefix(m.MsgID, "msg_"))
	assert.Equal(t, "hello", m.Text())
	require.Len(t, m.Content, 1)

	closing := NewTextChat("bye", true)
	require.Len(t, closing.Content, 2)
	assert.Equal(t, ContentTypeEndSession, closing.Content[1].Type)
}

func TestChatTextSkipsMarkers(t *testing.T) {
	m := ChatMessage{Content: []ChatContent{
		{Type: ContentTypeStartSession},
		{Type: ContentTypeText, Text: "the question"},
	}}
	assert.Equal(t, "the question", m.Text())
	assert.Equal(t, "", ChatMessage{}.Text())
}
