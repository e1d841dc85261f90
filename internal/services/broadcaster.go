package services

type Broadcaster interface {
	BroadcastBalanceUpdate(userID string, balance, pending float64)
	BroadcastFarmingUpdate(userID string, pending float64)
}

// NoopBroadcaster satisfies Broadcaster when no websocket hub is wired in.
type NoopBroadcaster struct{}

func (NoopBroadcaster) BroadcastBalanceUpdate(string, float64, float64) {}
func (NoopBroadcaster) BroadcastFarmingUpdate(string, float64)          {}
