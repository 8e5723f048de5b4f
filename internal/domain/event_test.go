package domain

import (
	"strings"
	"testing"
)

func TestNewEventID_Format(t *testing.T) {
	id := NewEventID()

	if !strings.HasPrefix(id, "event_") {
		t.Errorf("expected event_ prefix, got %q", id)
	}
	hexPart := strings.TrimPrefix(id, "event_")
	if len(hexPart) != 24 {
		t.Errorf("expected 24 hex chars, got %d (%q)", len(hexPart), hexPart)
	}
	for _, c := range hexPart {
		if !strings.ContainsRune("0123456789abcdef", c) {
			t.Errorf("unexpected character %q in %q", c, id)
		}
	}
}

func TestNewEventID_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewEventID()
		if seen[id] {
			t.Fatalf("duplicate event id generated: %s", id)
		}
		seen[id] = true
	}
}

func TestPartner_Deliverable(t *testing.T) {
	tests := []struct {
		name    string
		partner Partner
		want    bool
	}{
		{"active with url", Partner{IsActive: true, WebhookURL: "https://example.com/hook"}, true},
		{"inactive", Partner{IsActive: false, WebhookURL: "https://example.com/hook"}, false},
		{"missing url", Partner{IsActive: true, WebhookURL: ""}, false},
		{"inactive and missing url", Partner{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.partner.Deliverable(); got != tt.want {
				t.Errorf("Deliverable() = %v, want %v", got, tt.want)
			}
		})
	}
}
