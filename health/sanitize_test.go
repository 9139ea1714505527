package health

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeErrorMessage(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "empty message",
			input: "",
			want:  "",
		},
		{
			name:  "unix path",
			input: "read /var/lib/bridgekit/modules.yaml: permission denied",
			want:  "read [PATH]: permission denied",
		},
		{
			name:  "windows path",
			input: `cannot load D:\BridgeKit\modules.json`,
			want:  "cannot load [PATH]",
		},
		{
			name:  "https url",
			input: "gateway handshake to https://bridge.example.com/ws failed",
			want:  "gateway handshake to [URL] failed",
		},
		{
			name:  "nats url",
			input: "dial nats://settings-kv:4222 timed out",
			want:  "dial [URL] timed out",
		},
		{
			name:  "websocket url",
			input: "client reconnect to wss://bridge.local/ws denied",
			want:  "client reconnect to [URL] denied",
		},
		{
			name:  "ip address",
			input: "dispatcher peer 10.1.2.3 unreachable",
			want:  "dispatcher peer [IP] unreachable",
		},
		{
			name:  "bare port",
			input: "gateway listen on :9443 refused",
			want:  "gateway listen on [PORT] refused",
		},
		{
			name:  "credential assignment",
			input: "module auth rejected: token=tk_98f2 expired",
			want:  "module auth rejected: [REDACTED] expired",
		},
		{
			name:  "url with embedded address and secret",
			input: "push to https://10.0.0.7:9443/modules with secret=s3cr3t failed",
			want:  "push to [URL] with [REDACTED] failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sanitizeErrorMessage(tt.input))
		})
	}
}
