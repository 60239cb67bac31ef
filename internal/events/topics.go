package events

// Topic constants for domain events emitted by the checkout engine.
const (
	TopicBillOpened    = "bill.opened"
	TopicBillClosed    = "bill.closed"
	TopicBillCancelled = "bill.cancelled"
	TopicLineVoided    = "line.voided"
	TopicPairFormed    = "pair.formed"
)

// DefaultTopics returns the canonical list of topics that support notifications.
func DefaultTopics() []string {
	return []string{
		TopicBillOpened,
		TopicBillClosed,
		TopicBillCancelled,
		TopicLineVoided,
		TopicPairFormed,
	}
}
