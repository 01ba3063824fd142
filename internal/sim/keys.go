package sim

// Local cache keys.
const (
	CacheKeyPrefix  = "simulation_state_"
	PreviewCacheKey = "preview"
)

// CacheKey returns the local cache key for a session, or the preview
// sentinel for an ephemeral run.
func CacheKey(sessionID string) string {
	if sessionID == "" {
		return PreviewCacheKey
	}
	return CacheKeyPrefix + sessionID
}
