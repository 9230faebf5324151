package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"strconv"
	"testing"
	"time"
)

const testSecret = "whsec_MfKQ9r8GKYqrTwjUPD8ILPZIo2LaLaSw"

var testBody = []byte(`{"type":"user.created","data":{"id":"user_abc"}}`)

func signedHeaders(t *testing.T, body []byte, ts time.Time) http.Header {
	t.Helper()
	h, err := Sign("msg_1", ts, body, testSecret)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	return h
}

func TestVerify_ValidSignature(t *testing.T) {
	now := time.Now()
	h := signedHeaders(t, testBody, now)

	res := Verify(h, testBody, testSecret, now)
	if !res.Valid {
		t.Fatalf("expected valid signature, got reason %q", res.Reason)
	}
}

func TestVerify_MatchesReferenceComputation(t *testing.T) {
	now := time.Unix(1700000000, 0)
	h := signedHeaders(t, testBody, now)

	key, _ := base64.StdEncoding.DecodeString("MfKQ9r8GKYqrTwjUPD8ILPZIo2LaLaSw")
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte("msg_1." + strconv.FormatInt(now.Unix(), 10) + "."))
	mac.Write(testBody)
	want := "v1," + base64.StdEncoding.EncodeToString(mac.Sum(nil))

	if got := h.Get(HeaderSignature); got != want {
		t.Errorf("signature mismatch:\n  got:  %s\n  want: %s", got, want)
	}
}

func TestVerify_SvixHeaderAliases(t *testing.T) {
	now := time.Now()
	signed := signedHeaders(t, testBody, now)

	h := http.Header{}
	h.Set("svix-id", signed.Get(HeaderID))
	h.Set("svix-timestamp", signed.Get(HeaderTimestamp))
	h.Set("svix-signature", signed.Get(HeaderSignature))

	if res := Verify(h, testBody, testSecret, now); !res.Valid {
		t.Fatalf("expected svix headers to verify, got reason %q", res.Reason)
	}
}

func TestVerify_AnyMatchingEntryValidates(t *testing.T) {
	now := time.Now()
	h := signedHeaders(t, testBody, now)
	h.Set(HeaderSignature, "v1,bm90LXRoaXMtb25l v2,ignored "+h.Get(HeaderSignature))

	if res := Verify(h, testBody, testSecret, now); !res.Valid {
		t.Fatalf("expected rotated-secret header to verify, got reason %q", res.Reason)
	}
}

func TestVerify_RawSecretWithoutPrefix(t *testing.T) {
	now := time.Now()
	h, err := Sign("msg_raw", now, testBody, "plain-secret")
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if res := Verify(h, testBody, "plain-secret", now); !res.Valid {
		t.Fatalf("expected valid, got reason %q", res.Reason)
	}
}

func TestVerify_Rejections(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name   string
		mutate func(h http.Header) (http.Header, []byte, string)
		reason string
	}{
		{
			name: "missing signature header",
			mutate: func(h http.Header) (http.Header, []byte, string) {
				h.Del(HeaderSignature)
				return h, testBody, testSecret
			},
			reason: ReasonMissingHeaders,
		},
		{
			name: "no headers at all",
			mutate: func(h http.Header) (http.Header, []byte, string) {
				return http.Header{}, testBody, testSecret
			},
			reason: ReasonMissingHeaders,
		},
		{
			name: "tampered body",
			mutate: func(h http.Header) (http.Header, []byte, string) {
				return h, []byte(`{"type":"user.created","data":{"id":"user_evil"}}`), testSecret
			},
			reason: ReasonNoMatchingSig,
		},
		{
			name: "reformatted body",
			mutate: func(h http.Header) (http.Header, []byte, string) {
				return h, []byte(`{"type": "user.created", "data": {"id": "user_abc"}}`), testSecret
			},
			reason: ReasonNoMatchingSig,
		},
		{
			name: "wrong secret",
			mutate: func(h http.Header) (http.Header, []byte, string) {
				return h, testBody, "whsec_d3Jvbmctc2VjcmV0"
			},
			reason: ReasonNoMatchingSig,
		},
		{
			name: "empty secret",
			mutate: func(h http.Header) (http.Header, []byte, string) {
				return h, testBody, ""
			},
			reason: ReasonMissingSecret,
		},
		{
			name: "undecodable whsec secret",
			mutate: func(h http.Header) (http.Header, []byte, string) {
				return h, testBody, "whsec_not*base64!"
			},
			reason: ReasonBadSecret,
		},
		{
			name: "non numeric timestamp",
			mutate: func(h http.Header) (http.Header, []byte, string) {
				h.Set(HeaderTimestamp, "yesterday")
				return h, testBody, testSecret
			},
			reason: ReasonBadTimestamp,
		},
		{
			name: "stale timestamp",
			mutate: func(h http.Header) (http.Header, []byte, string) {
				h.Set(HeaderTimestamp, strconv.FormatInt(now.Add(-10*time.Minute).Unix(), 10))
				return h, testBody, testSecret
			},
			reason: ReasonTimestampTooOld,
		},
		{
			name: "no v1 entries",
			mutate: func(h http.Header) (http.Header, []byte, string) {
				h.Set(HeaderSignature, "garbage v2,abc")
				return h, testBody, testSecret
			},
			reason: ReasonMalformedSig,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, body, secret := tt.mutate(signedHeaders(t, testBody, now))

			res := Verify(h, body, secret, now)
			if res.Valid {
				t.Fatal("expected signature to be rejected")
			}
			if res.Reason != tt.reason {
				t.Errorf("reason = %q, want %q", res.Reason, tt.reason)
			}
		})
	}
}

func TestValidateSecret(t *testing.T) {
	tests := []struct {
		secret  string
		wantErr bool
	}{
		{testSecret, false},
		{"raw-secret", false},
		{"", true},
		{"whsec_not*base64!", true},
	}

	for _, tt := range tests {
		if err := ValidateSecret(tt.secret); (err != nil) != tt.wantErr {
			t.Errorf("ValidateSecret(%q) error = %v, wantErr %v", tt.secret, err, tt.wantErr)
		}
	}
}

func TestMessageID(t *testing.T) {
	h := http.Header{}
	h.Set("svix-id", "msg_svix")
	if got := MessageID(h); got != "msg_svix" {
		t.Errorf("MessageID = %q, want %q", got, "msg_svix")
	}

	h.Set(HeaderID, "msg_std")
	if got := MessageID(h); got != "msg_std" {
		t.Errorf("MessageID = %q, want %q", got, "msg_std")
	}
}
