package notify

// Event types dispatched by the ledger service. The notifier's allowed-events
// filter matches against these strings.
const (
	EventMarketCreated    = "market.created"
	EventLedgerPaused     = "ledger.paused"
	EventReceiverUpdated  = "ledger.receiver_updated"
	EventOwnershipChanged = "ledger.ownership_changed"
	EventRefreshFailed    = "aggregator.refresh_failed"
)
