package models

// ConnectionState, push bağlantısının durumu.
// Sadece ConnectionManager yazar.
//
//	Disconnected → Connecting → Connected → Disconnected
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
)

func (s ConnectionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}
