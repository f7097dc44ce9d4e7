package signature

import (
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"sort"
	"strconv"
	"strings"
	"time"

	"coinwall/pkg/errutil"
)

var (
	ErrUnknownAppKey     = errors.New("unknown appKey")
	ErrExpiredTimestamp  = errors.New("timestamp outside accepted window")
	ErrSignatureMismatch = errors.New("signature mismatch")
)

// Verifier authenticates partner reward callbacks against the registered
// app secrets. Pure: a verification has no side effects.
type Verifier struct {
	apps    map[string]string
	maxSkew time.Duration
	now     func() time.Time
}

func NewVerifier(apps map[string]string, maxSkew time.Duration) *Verifier {
	return &Verifier{
		apps:    apps,
		maxSkew: maxSkew,
		now:     time.Now,
	}
}

// Verify checks that the callback was produced by the partner holding the
// secret registered for appKey and that its timestamp (epoch millis) is
// within the accepted window on either side of server time.
func (v *Verifier) Verify(appKey string, timestamp int64, coins int64, userID string, sign string) error {
	secret, ok := v.apps[appKey]
	if !ok {
		return errutil.Unauthorized("unknown appKey", ErrUnknownAppKey)
	}

	skew := v.now().UnixMilli() - timestamp
	if skew < 0 {
		skew = -skew
	}
	if skew > v.maxSkew.Milliseconds() {
		return errutil.Unauthorized("callback timestamp expired", ErrExpiredTimestamp)
	}

	expected := Sign(secret, coins, timestamp, userID)
	// digest stays MD5 for partner interop; only the compare is hardened
	if subtle.ConstantTimeCompare([]byte(expected), []byte(sign)) != 1 {
		return errutil.Unauthorized("signature mismatch", ErrSignatureMismatch)
	}

	return nil
}

// SignString builds the canonical string the partner signs: the four fields
// sorted lexicographically by key and joined as key=value pairs.
func SignString(appSecret string, coins int64, timestamp int64, userID string) string {
	fields := map[string]string{
		"app_secret": appSecret,
		"coins":      strconv.FormatInt(coins, 10),
		"time":       strconv.FormatInt(timestamp, 10),
		"userId":     userID,
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+fields[k])
	}

	return strings.Join(parts, "&")
}

// Sign computes md5(signString + appSecret) in lowercase hex, byte-exact
// with the partner implementation.
func Sign(appSecret string, coins int64, timestamp int64, userID string) string {
	sum := md5.Sum([]byte(SignString(appSecret, coins, timestamp, userID) + appSecret))
	return hex.EncodeToString(sum[:])
}
