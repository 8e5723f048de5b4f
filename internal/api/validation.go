package api

import "fmt"

func validateBatch(events []EventRequest, maxSize int) error {
	if len(events) == 0 {
		return fmt.Errorf("batch must contain at least 1 event")
	}
	if len(events) > maxSize {
		return fmt.Errorf("batch exceeds maximum of %d events", maxSize)
	}

	for i, ev := range events {
		if ev.EventType == "" {
			return fmt.Errorf("events[%d].eventType: must be a non-empty string", i)
		}
		if ev.Data.OrderID == "" {
			return fmt.Errorf("events[%d].data.orderId: must be a non-empty string", i)
		}
		if ev.Data.Value == nil {
			return fmt.Errorf("events[%d].data.value: is required", i)
		}
	}
	return nil
}
