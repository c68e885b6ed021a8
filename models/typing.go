package models

import "time"

// TypingEntry, bir scope'ta yazmakta olan kullanıcı.
// LastSeenAt liveness penceresinden (3sn) eskiyse entry, sweep'i beklemeden
// mantıksal olarak dolmuş sayılır.
type TypingEntry struct {
	UserID      int64
	DisplayName string
	LastSeenAt  time.Time
}
