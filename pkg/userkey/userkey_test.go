package userkey

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func TestResolve(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want string
	}{
		{"numeric passthrough", "12345", "12345"},
		{"surrounding whitespace", " 42 ", "42"},
		{"leading zeros collapse", "007", "7"},
		{"embedded digit runs concatenate", "u123-456", "123456"},
		{"no digits falls back to hash", "hello", "99162322"},
		{"email falls back to hash", "user@example.com", "1084137992"},
		{"non-ascii falls back to hash", "微信用户", "750307138"},
		{"prefixed identifier", "wx_abc", "774349308"},
		{"digit overflow falls back to hash", "99999999999999999999999999", "2038403936"},
	}

	r := NewResolver()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := r.Resolve(tc.raw)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestResolveEmpty(t *testing.T) {
	r := NewResolver()

	for _, raw := range []string{"", "   "} {
		_, err := r.Resolve(raw)
		require.Error(t, err)
	}
}

func TestResolveStable(t *testing.T) {
	r := NewResolver()

	a, err := r.Resolve("some-opaque-id")
	require.NoError(t, err)
	b, err := r.Resolve("some-opaque-id")
	require.NoError(t, err)
	require.Equal(t, a, b)
}
