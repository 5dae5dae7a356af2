package exchange

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/efreitasn/webhookbot/internal/domain"
)

// DefaultRecvWindow matches the exchange default validity of a signed timestamp.
const DefaultRecvWindow = 5000 * time.Millisecond

// SignedRequest is a wire-ready order request. Body is the exact byte slice
// that was signed (v5) or derived from the signed parameters (legacy).
type SignedRequest struct {
	Path       string
	Timestamp  time.Time
	RecvWindow time.Duration
	Body       []byte
	Signature  string
	Header     http.Header

	// payload is the string fed to HMAC. Kept unexported so it never leaks
	// into results or error messages.
	payload string
}

// TimestampMillis is the signed timestamp as sent on the wire.
func (r SignedRequest) TimestampMillis() int64 {
	return r.Timestamp.UnixMilli()
}

// Fresh reports whether the exchange would still accept the signed timestamp at now.
func (r SignedRequest) Fresh(now time.Time) bool {
	return now.Sub(r.Timestamp) < r.RecvWindow
}

// Scheme is an exchange authentication strategy. For a fixed
// (intent, credentials, timestamp, recvWindow) Sign is deterministic.
type Scheme interface {
	Name() string
	Sign(intent domain.OrderIntent, creds domain.Credentials, ts time.Time, recvWindow time.Duration) (SignedRequest, error)
}

// Scheme names accepted by SchemeByName.
const (
	SchemeV5     = "v5"
	SchemeLegacy = "legacy"
)

// SchemeByName resolves a configured signing scheme.
func SchemeByName(name string) (Scheme, error) {
	switch name {
	case "", SchemeV5:
		return V5Scheme{}, nil
	case SchemeLegacy:
		return LegacyScheme{}, nil
	}
	return nil, fmt.Errorf("unknown signing scheme %q, must be one of: %s, %s", name, SchemeV5, SchemeLegacy)
}

// V5Scheme signs timestamp + apiKey + recvWindow + body and carries the
// signature in X-BAPI-* headers.
type V5Scheme struct{}

func (V5Scheme) Name() string { return SchemeV5 }

// Sign signs ts + apiKey + recvWindow + body.
func (V5Scheme) Sign(intent domain.OrderIntent, creds domain.Credentials, ts time.Time, recvWindow time.Duration) (SignedRequest, error) {
	body, err := CanonicalBody(intent)
	if err != nil {
		return SignedRequest{}, err
	}

	tsStr := strconv.FormatInt(ts.UnixMilli(), 10)
	rwStr := strconv.FormatInt(recvWindow.Milliseconds(), 10)
	payload := tsStr + creds.APIKey + rwStr + string(body)
	signature := hmacHex(creds.Secret, payload)

	header := http.Header{}
	header.Set("Content-Type", "application/json")
	header.Set("X-BAPI-API-KEY", creds.APIKey)
	header.Set("X-BAPI-TIMESTAMP", tsStr)
	header.Set("X-BAPI-RECV-WINDOW", rwStr)
	header.Set("X-BAPI-SIGN", signature)
	header.Set("X-BAPI-SIGN-TYPE", "2")

	return SignedRequest{
		Path:       "/v5/order/create",
		Timestamp:  ts,
		RecvWindow: recvWindow,
		Body:       body,
		Signature:  signature,
		Header:     header,
		payload:    payload,
	}, nil
}

// LegacyScheme is the older spot v3 scheme: apiKey and timestamp travel in the
// body and the signature covers the sorted key=value query string of all fields.
type LegacyScheme struct{}

func (LegacyScheme) Name() string { return SchemeLegacy }

// Sign signs the sorted query string of the order fields.
func (LegacyScheme) Sign(intent domain.OrderIntent, creds domain.Credentials, ts time.Time, recvWindow time.Duration) (SignedRequest, error) {
	params := orderParams(intent)
	params["apiKey"] = creds.APIKey
	params["timestamp"] = strconv.FormatInt(ts.UnixMilli(), 10)

	payload := sortedQuery(params)
	signature := hmacHex(creds.Secret, payload)

	// encoding/json sorts map keys, so the body follows the same order as payload.
	body, err := json.Marshal(params)
	if err != nil {
		return SignedRequest{}, fmt.Errorf("failed to marshal order body: %w", err)
	}

	header := http.Header{}
	header.Set("Content-Type", "application/json")
	header.Set("X-BYBIT-SIGN", signature)

	return SignedRequest{
		Path:       "/spot/v3/private/order",
		Timestamp:  ts,
		RecvWindow: recvWindow,
		Body:       body,
		Signature:  signature,
		Header:     header,
		payload:    payload,
	}, nil
}

func sortedQuery(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(params[k])
	}
	return sb.String()
}

func hmacHex(secret, payload string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}
