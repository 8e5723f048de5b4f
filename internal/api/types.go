package api

import "github.com/hooklinehq/hookline/internal/domain"

// EventRequest is one entry of the submitted batch. The request body is
// a bare JSON array of these.
type EventRequest struct {
	EventType string           `json:"eventType"`
	Data      EventDataRequest `json:"data"`
}

// EventDataRequest carries the event's business payload. Value is a
// pointer so a missing field is distinguishable from zero.
type EventDataRequest struct {
	OrderID string   `json:"orderId"`
	Value   *float64 `json:"value"`
}

// BatchResponse is the 202/207 response body.
type BatchResponse struct {
	Message string               `json:"message"`
	Results []domain.EventResult `json:"results"`
}

// HealthResponse represents the /health endpoint response.
type HealthResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func toDomain(events []EventRequest) []domain.Event {
	result := make([]domain.Event, len(events))
	for i, ev := range events {
		result[i] = domain.Event{
			EventType: ev.EventType,
			Data: domain.EventData{
				OrderID: ev.Data.OrderID,
				Value:   *ev.Data.Value,
			},
		}
	}
	return result
}
