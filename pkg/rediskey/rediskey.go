package rediskey

import "fmt"

// Coin keys (global convention across services)
const (
	StatsPrefix   = "coin:stats"
	CheckinPrefix = "coin:checkin"
)

func NamespaceKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s", namespace, key)
}

// BuildStatsKey returns "coin:stats:{date}"
func BuildStatsKey(date string) string {
	return NamespaceKey(StatsPrefix, date)
}

// BuildCheckinKey returns "coin:checkin:{userKey}:{date}"
func BuildCheckinKey(userKey, date string) string {
	return NamespaceKey(CheckinPrefix, fmt.Sprintf("%s:%s", userKey, date))
}
