// Package webhook verifies and decodes deliveries from the webhook gateway.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Priya8975/userdb-provisioner/internal/domain"
)

// Standard Webhooks header names. The gateway may send the svix- prefixed
// variants instead.
const (
	HeaderID        = "webhook-id"
	HeaderTimestamp = "webhook-timestamp"
	HeaderSignature = "webhook-signature"

	svixHeaderID        = "svix-id"
	svixHeaderTimestamp = "svix-timestamp"
	svixHeaderSignature = "svix-signature"

	secretPrefix = "whsec_"
)

// Tolerance bounds how far a delivery timestamp may drift from now.
const Tolerance = 5 * time.Minute

// Verification failure reasons.
const (
	ReasonMissingSecret   = "missing_secret"
	ReasonBadSecret       = "malformed_secret"
	ReasonMissingHeaders  = "missing_headers"
	ReasonBadTimestamp    = "malformed_timestamp"
	ReasonTimestampTooOld = "timestamp_out_of_tolerance"
	ReasonMalformedSig    = "malformed_signature"
	ReasonNoMatchingSig   = "no_matching_signature"
)

// Verify checks the signature of a raw delivery body. It never returns an
// error: a bad signature is an expected input and yields Valid=false.
func Verify(headers http.Header, body []byte, secret string, now time.Time) domain.VerificationResult {
	if secret == "" {
		return invalid(ReasonMissingSecret)
	}

	msgID := firstHeader(headers, HeaderID, svixHeaderID)
	tsRaw := firstHeader(headers, HeaderTimestamp, svixHeaderTimestamp)
	sigHeader := firstHeader(headers, HeaderSignature, svixHeaderSignature)
	if msgID == "" || tsRaw == "" || sigHeader == "" {
		return invalid(ReasonMissingHeaders)
	}

	ts, err := strconv.ParseInt(tsRaw, 10, 64)
	if err != nil {
		return invalid(ReasonBadTimestamp)
	}
	sent := time.Unix(ts, 0)
	if now.Sub(sent) > Tolerance || sent.Sub(now) > Tolerance {
		return invalid(ReasonTimestampTooOld)
	}

	key, err := signingKey(secret)
	if err != nil {
		return invalid(ReasonBadSecret)
	}
	expected := []byte(computeSignature(key, msgID, tsRaw, body))

	sawV1 := false
	for _, entry := range strings.Fields(sigHeader) {
		version, sig, ok := strings.Cut(entry, ",")
		if !ok || version != "v1" || sig == "" {
			continue
		}
		sawV1 = true
		if hmac.Equal([]byte(sig), expected) {
			return domain.VerificationResult{Valid: true}
		}
	}

	if !sawV1 {
		return invalid(ReasonMalformedSig)
	}
	return invalid(ReasonNoMatchingSig)
}

// Sign produces the header set a gateway would attach to body.
func Sign(msgID string, ts time.Time, body []byte, secret string) (http.Header, error) {
	key, err := signingKey(secret)
	if err != nil {
		return nil, err
	}
	tsRaw := strconv.FormatInt(ts.Unix(), 10)

	h := http.Header{}
	h.Set(HeaderID, msgID)
	h.Set(HeaderTimestamp, tsRaw)
	h.Set(HeaderSignature, "v1,"+computeSignature(key, msgID, tsRaw, body))
	return h, nil
}

// ValidateSecret reports whether secret can be used as a signing key.
func ValidateSecret(secret string) error {
	_, err := signingKey(secret)
	return err
}

// MessageID returns the gateway's delivery id, which is stable across retries.
func MessageID(headers http.Header) string {
	return firstHeader(headers, HeaderID, svixHeaderID)
}

// computeSignature signs "{id}.{timestamp}.{body}" with HMAC-SHA256.
func computeSignature(key []byte, msgID, ts string, body []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(msgID))
	mac.Write([]byte("."))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func signingKey(secret string) ([]byte, error) {
	if secret == "" {
		return nil, fmt.Errorf("empty signing secret")
	}
	if !strings.HasPrefix(secret, secretPrefix) {
		return []byte(secret), nil
	}
	key, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(secret, secretPrefix))
	if err != nil {
		return nil, fmt.Errorf("decoding signing secret: %w", err)
	}
	return key, nil
}

func firstHeader(h http.Header, names ...string) string {
	for _, name := range names {
		if v := strings.TrimSpace(h.Get(name)); v != "" {
			return v
		}
	}
	return ""
}

func invalid(reason string) domain.VerificationResult {
	return domain.VerificationResult{Valid: false, Reason: reason}
}
