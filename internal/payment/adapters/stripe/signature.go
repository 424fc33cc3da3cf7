package stripe

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	SignatureHeader = "Stripe-Signature"

	signatureScheme = "v1"
)

var errMalformedHeader = errors.New("malformed_signature_header")

type signatureHeader struct {
	timestamp  time.Time
	signatures [][]byte
}

// parseSignatureHeader reads "t=<unix>,v1=<hex>[,v1=<hex>...]". Pairs with other
// keys (v0, future schemes) are skipped; undecodable v1 values never match.
func parseSignatureHeader(header string) (signatureHeader, error) {
	var (
		parsed    signatureHeader
		rawTS     string
		sawScheme bool
	)
	for _, part := range strings.Split(header, ",") {
		piece := strings.TrimSpace(part)
		if piece == "" {
			continue
		}
		keyValue := strings.SplitN(piece, "=", 2)
		if len(keyValue) != 2 {
			continue
		}
		key := strings.TrimSpace(keyValue[0])
		value := strings.TrimSpace(keyValue[1])
		switch key {
		case "t":
			rawTS = value
		case signatureScheme:
			sawScheme = true
			sig, err := hex.DecodeString(value)
			if err != nil {
				continue
			}
			parsed.signatures = append(parsed.signatures, sig)
		}
	}
	if rawTS == "" || !sawScheme {
		return signatureHeader{}, errMalformedHeader
	}
	unix, err := strconv.ParseInt(rawTS, 10, 64)
	if err != nil {
		return signatureHeader{}, errMalformedHeader
	}
	parsed.timestamp = time.Unix(unix, 0).UTC()
	return parsed, nil
}

func computeSignature(secret string, timestamp time.Time, payload []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(strconv.FormatInt(timestamp.Unix(), 10)))
	_, _ = mac.Write([]byte("."))
	_, _ = mac.Write(payload)
	return mac.Sum(nil)
}

// SignPayload builds a Stripe-Signature header value for payload, the way the
// processor signs deliveries. Used to exercise the webhook endpoint locally.
func SignPayload(secret string, payload []byte, timestamp time.Time) string {
	signature := hex.EncodeToString(computeSignature(secret, timestamp, payload))
	return fmt.Sprintf("t=%d,%s=%s", timestamp.Unix(), signatureScheme, signature)
}
