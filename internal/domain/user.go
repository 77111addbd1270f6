package domain

import "time"

// APICredentials are one exchange's API key pair for a user. Credentials are
// stored encrypted at rest and only decrypted in memory for the duration of an
// order call.
type APICredentials struct {
	Key    string `json:"key"`
	Secret string `json:"secret"`
}

// User is an account known to the monitor. RiskLevel and AutoTrading form the
// user's risk profile; they are read-only inputs to sizing decisions and are
// mutated only through explicit settings changes.
type User struct {
	ID            int64
	EncryptedKeys []byte // encrypted JSON map exchange -> APICredentials; empty when no keys
	RiskLevel     int    // 1..5
	AutoTrading   bool
	Strategy      string
	VIPUntil      *time.Time
	FreeSignals   int
}

// VIPActive reports whether the user's VIP subscription covers the given time.
func (u User) VIPActive(at time.Time) bool {
	return u.VIPUntil != nil && u.VIPUntil.After(at)
}
