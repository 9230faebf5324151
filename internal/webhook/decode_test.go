package webhook

import (
	"errors"
	"testing"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		wantErr  bool
		identity string
		clientIP string
	}{
		{
			name:     "minimal user.created",
			raw:      `{"type":"user.created","data":{"id":"user_abc"}}`,
			identity: "user_abc",
		},
		{
			name:     "with client ip and extra fields",
			raw:      `{"type":"user.created","object":"event","data":{"id":"user_eu","email":"x@y.z"},"attributes":{"clientIp":"81.2.69.160"}}`,
			identity: "user_eu",
			clientIP: "81.2.69.160",
		},
		{name: "not json", raw: `not json`, wantErr: true},
		{name: "empty body", raw: ``, wantErr: true},
		{name: "missing type", raw: `{"data":{"id":"user_abc"}}`, wantErr: true},
		{name: "missing data.id", raw: `{"type":"user.created","data":{}}`, wantErr: true},
		{name: "data wrong shape", raw: `{"type":"user.created","data":"user_abc"}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, err := Decode([]byte(tt.raw))
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedPayload) {
					t.Fatalf("expected ErrMalformedPayload, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if event.IdentityKey() != tt.identity {
				t.Errorf("IdentityKey = %q, want %q", event.IdentityKey(), tt.identity)
			}
			if event.ClientIP() != tt.clientIP {
				t.Errorf("ClientIP = %q, want %q", event.ClientIP(), tt.clientIP)
			}
		})
	}
}
