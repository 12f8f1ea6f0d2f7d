package storage

import "fmt"

// keyPrefix namespaces every persisted key by user id so switching accounts
// on one device never leaks state across identities.
const keyPrefix = "lumiscan"

// Per-user storage slots.
const (
	slotProfile    = "profile"
	slotScans      = "scans"
	slotTips       = "tips"
	slotChallenges = "challenges"
	slotDailyUsage = "daily_usage"
	slotLifetime   = "lifetime_stats"
)

func userKey(userID, slot string) string {
	return fmt.Sprintf("%s:%s:%s", keyPrefix, userID, slot)
}

func userPrefix(userID string) string {
	return fmt.Sprintf("%s:%s:", keyPrefix, userID)
}
