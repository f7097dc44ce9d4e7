package userkey

import (
	"regexp"
	"strconv"
	"strings"

	"coinwall/pkg/errutil"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("userkey", fx.Provide(NewResolver))

// Resolver maps an externally supplied user identifier onto the canonical
// user key the ledger is scoped by. Injected so the reward core never touches
// account storage directly.
type Resolver interface {
	Resolve(raw string) (string, error)
}

func NewResolver() Resolver {
	return NormalizeResolver{}
}

var digitRun = regexp.MustCompile(`\d+`)

// NormalizeResolver is the deterministic normalization the partner contract
// was built against: numeric identifiers pass through, otherwise embedded
// digit runs are concatenated, otherwise a stable string hash. The digit and
// hash fallbacks are not injective; distinct raw identifiers can collide.
// Kept bug-compatible because partner-visible balances already depend on it.
type NormalizeResolver struct{}

func (NormalizeResolver) Resolve(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errutil.BadRequest("empty user identifier", nil)
	}

	if isDigits(raw) {
		if n, err := strconv.ParseUint(raw, 10, 64); err == nil {
			return strconv.FormatUint(n, 10), nil
		}
	}

	if runs := digitRun.FindAllString(raw, -1); len(runs) > 0 {
		combined := strings.Join(runs, "")
		if n, err := strconv.ParseUint(combined, 10, 64); err == nil {
			zap.L().Debug("userkey normalized from embedded digits",
				zap.String("raw", raw), zap.Uint64("user_key", n))
			return strconv.FormatUint(n, 10), nil
		}
	}

	hashed := stringHash(raw)
	zap.L().Warn("userkey normalized via string hash, collisions possible",
		zap.String("raw", raw), zap.Int64("user_key", hashed))
	return strconv.FormatInt(hashed, 10), nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// stringHash is the 31-multiplier rolling hash with 32-bit wraparound the
// partner integration has always used, taken absolute.
func stringHash(s string) int64 {
	var h int32
	for _, r := range s {
		h = (h << 5) - h + int32(r)
	}

	v := int64(h)
	if v < 0 {
		v = -v
	}
	return v
}
