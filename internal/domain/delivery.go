package domain

// DeliveryOutcome is the result of delivering one event to one partner,
// after the sender's internal retries are exhausted.
type DeliveryOutcome struct {
	PartnerName string
	EventID     string

	Success    bool
	StatusCode int // 0 when no HTTP status was observed
	Attempt    int // attempts consumed, 1-based
	Error      string
}
