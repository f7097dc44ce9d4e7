package signature

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const (
	testAppKey = "CS001"
	testSecret = "s3cr3t"
)

func newTestVerifier(now time.Time) *Verifier {
	v := NewVerifier(map[string]string{testAppKey: testSecret}, 5*time.Minute)
	v.now = func() time.Time { return now }
	return v
}

func TestSignKnownVector(t *testing.T) {
	require.Equal(t,
		"app_secret=s3cr3t&coins=10&time=1700000000000&userId=12345",
		SignString(testSecret, 10, 1700000000000, "12345"),
	)
	require.Equal(t,
		"da96a76452174e22c0936358374050c1",
		Sign(testSecret, 10, 1700000000000, "12345"),
	)
}

func TestVerifyAcceptsValidSignature(t *testing.T) {
	ts := int64(1700000000000)
	v := newTestVerifier(time.UnixMilli(ts))

	sign := Sign(testSecret, 10, ts, "12345")
	require.NoError(t, v.Verify(testAppKey, ts, 10, "12345", sign))
}

func TestVerifyUnknownAppKey(t *testing.T) {
	ts := int64(1700000000000)
	v := newTestVerifier(time.UnixMilli(ts))

	err := v.Verify("CS999", ts, 10, "12345", Sign(testSecret, 10, ts, "12345"))
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrUnknownAppKey))
}

func TestVerifyExpiredTimestamp(t *testing.T) {
	ts := int64(1700000000000)

	for _, offset := range []time.Duration{5*time.Minute + time.Millisecond, -(5*time.Minute + time.Millisecond)} {
		v := newTestVerifier(time.UnixMilli(ts).Add(offset))

		err := v.Verify(testAppKey, ts, 10, "12345", Sign(testSecret, 10, ts, "12345"))
		require.Error(t, err)
		require.True(t, errors.Is(err, ErrExpiredTimestamp))
	}
}

func TestVerifyTimestampAtWindowEdge(t *testing.T) {
	ts := int64(1700000000000)
	v := newTestVerifier(time.UnixMilli(ts).Add(5 * time.Minute))

	require.NoError(t, v.Verify(testAppKey, ts, 10, "12345", Sign(testSecret, 10, ts, "12345")))
}

func TestVerifySignatureMismatch(t *testing.T) {
	ts := int64(1700000000000)
	v := newTestVerifier(time.UnixMilli(ts))

	err := v.Verify(testAppKey, ts, 10, "12345", "deadbeefdeadbeefdeadbeefdeadbeef")
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrSignatureMismatch))

	// signing with a different field set must not validate
	err = v.Verify(testAppKey, ts, 10, "12345", Sign(testSecret, 11, ts, "12345"))
	require.True(t, errors.Is(err, ErrSignatureMismatch))
}
