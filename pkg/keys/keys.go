// Package keys names the Redis keys and channels shared by the processor and the gateway.
package keys

const (
	snapshotPrefix = "stock:"
	historyPrefix  = "history:"
	ChannelPrefix  = "prices."
)

// Snapshot holds the latest InstrumentUpdate JSON for a symbol.
func Snapshot(symbol string) string { return snapshotPrefix + symbol }

// History is a list of HistoryPoint JSON, oldest first.
func History(symbol string) string { return historyPrefix + symbol }

// Channel carries every InstrumentUpdate for a symbol.
func Channel(symbol string) string { return ChannelPrefix + symbol }
