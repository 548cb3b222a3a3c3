package domain

// Session holds the short-lived credentials minted by the session endpoint.
// It is read-only to the negotiator; expiry is not tracked proactively, a
// stale token simply surfaces as a signaling failure on the next attempt.
type Session struct {
	Token     string `json:"token"`
	Model     string `json:"model"`
	ExpiresAt int64  `json:"expires_at"`
	SessionID string `json:"session_id"`
}
