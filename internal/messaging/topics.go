package messaging

// Topic constants for the accounting messaging system
const (
	// Inbound from the stratum tier
	TopicShares = "accounting.shares" // stratum → sharerecorder

	// Outbound accounting events
	TopicBlocksFound = "accounting.blocks_found" // sharerecorder → paymentd, statsd
	TopicPayouts     = "accounting.payouts"      // paymentd → statsd, notifier
)
