// Package signature verifies the authenticity of inbound webhook payloads.
package signature

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1" // #nosec G505 -- some senders still sign with HMAC-SHA1
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"math"
	"strconv"
	"strings"
	"time"
)

// Algorithm selects the HMAC hash function.
type Algorithm string

const (
	SHA256 Algorithm = "sha256"
	SHA1   Algorithm = "sha1"
)

// DefaultMaxAge is the replay window applied to signed timestamps.
const DefaultMaxAge = 300 * time.Second

func (a Algorithm) hasher() func() hash.Hash {
	if a == SHA1 {
		return sha1.New
	}
	return sha256.New
}

// ComputeHMAC returns the lowercase hex HMAC of body under secret.
func ComputeHMAC(body []byte, secret string, alg Algorithm) string {
	mac := hmac.New(alg.hasher(), []byte(secret))
	_, _ = mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyHMAC checks signature against the HMAC of body. prefix, when set,
// is prepended to the computed digest before comparison (e.g. "sha256=").
func VerifyHMAC(body []byte, signature, secret string, alg Algorithm, prefix string) bool {
	expected := prefix + ComputeHMAC(body, secret, alg)
	return SecureCompare(signature, expected)
}

var compareKey = func() []byte {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		panic("signature: cannot seed compare key: " + err.Error())
	}
	return key
}()

// SecureCompare reports whether a and b are equal. Both inputs are reduced to
// fixed-size MACs first, so the comparison cost does not depend on where the
// inputs differ or on whether their lengths match.
func SecureCompare(a, b string) bool {
	ma := hmac.New(sha256.New, compareKey)
	_, _ = ma.Write([]byte(a))
	mb := hmac.New(sha256.New, compareKey)
	_, _ = mb.Write([]byte(b))
	equalDigest := hmac.Equal(ma.Sum(nil), mb.Sum(nil))
	equalLen := len(a) == len(b)
	return equalDigest && equalLen
}

const isoLocalLayout = "2006-01-02T15:04:05.999999999"

// IsTimestampValid reports whether ts lies within maxAge of now in either
// direction. ts is Unix seconds or, when it contains a "T", an ISO-8601 time.
// ISO-8601 times without a zone are read as UTC.
func IsTimestampValid(ts string, maxAge time.Duration, now time.Time) bool {
	ts = strings.TrimSpace(ts)
	if ts == "" {
		return false
	}

	var seconds float64
	if strings.Contains(ts, "T") {
		parsed, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			parsed, err = time.ParseInLocation(isoLocalLayout, ts, time.UTC)
		}
		if err != nil {
			return false
		}
		seconds = float64(parsed.UnixNano()) / float64(time.Second)
	} else {
		n, err := strconv.ParseInt(ts, 10, 64)
		if err != nil {
			return false
		}
		seconds = float64(n)
	}

	nowSeconds := float64(now.UnixNano()) / float64(time.Second)
	age := math.Abs(nowSeconds - seconds)
	return age <= maxAge.Seconds()
}
