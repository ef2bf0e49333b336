package protocol

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		line string
		want Command
	}{
		{
			name: "auth",
			line: "AUTH:tok-123",
			want: Command{Kind: KindAuth, Token: "tok-123"},
		},
		{
			name: "auth with empty token",
			line: "AUTH:",
			want: Command{Kind: KindUnknown},
		},
		{
			name: "ping",
			line: "PING",
			want: Command{Kind: KindPing},
		},
		{
			name: "chat",
			line: "CHAT:drsmith:how is bed 4 doing",
			want: Command{Kind: KindChat, Target: "drsmith", Text: "how is bed 4 doing"},
		},
		{
			name: "chat with colons in text",
			line: "CHAT:drsmith:note: check at 14:00",
			want: Command{Kind: KindChat, Target: "drsmith", Text: "note: check at 14:00"},
		},
		{
			name: "chat without text separator",
			line: "CHAT:drsmith",
			want: Command{Kind: KindUnknown},
		},
		{
			name: "chat with empty target",
			line: "CHAT::hello",
			want: Command{Kind: KindUnknown},
		},
		{
			name: "status",
			line: "STATUS:on rounds",
			want: Command{Kind: KindStatus, Text: "on rounds"},
		},
		{
			name: "emergency",
			line: "EMERGENCY:Fire in ward 3",
			want: Command{Kind: KindEmergency, Text: "Fire in ward 3"},
		},
		{
			name: "unknown prefix",
			line: "WIBBLE:whatever",
			want: Command{Kind: KindUnknown},
		},
		{
			name: "empty line",
			line: "",
			want: Command{Kind: KindUnknown},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(tt.line)
			tt.want.Raw = tt.line
			require.Equal(t, tt.want, got)
		})
	}
}

func TestOutboundFrames(t *testing.T) {
	require.Equal(t, "AUTH_SUCCESS:Welcome Dr Smith", AuthSuccess("Welcome Dr Smith"))
	require.Equal(t, "AUTH_FAILED:Invalid session token", AuthFailed("Invalid session token"))
	require.Equal(t, "AUTH_REQUIRED:Please authenticate first", AuthRequired("Please authenticate first"))
	require.Equal(t, "PONG", Pong())
	require.Equal(t, "CHAT_SENT:Message sent to drsmith", ChatSent("Message sent to drsmith"))
	require.Equal(t, "STATUS_UPDATED:ok", StatusUpdated("ok"))
	require.Equal(t, "EMERGENCY_SENT:broadcasted", EmergencySent("broadcasted"))
	require.Equal(t, "EMERGENCY:Nurse Joy - Fire in ward 3", Emergency("Nurse Joy", "Fire in ward 3"))
	require.Equal(t, "NOTIFICATION:CHAT:Dr Smith:see you at 5", Notification("CHAT", "Dr Smith", "see you at 5"))
	require.Equal(t, "ALERT:evacuate", Alert("evacuate"))
}
