package models

import "testing"

func TestOrderStatusIsTerminal(t *testing.T) {
	tests := []struct {
		status OrderStatus
		want   bool
	}{
		{OrderStatusCreated, false},
		{OrderStatusAccepted, false},
		{OrderStatusPaid, true},
	}

	for _, tt := range tests {
		if got := tt.status.IsTerminal(); got != tt.want {
			t.Errorf("%s: expected IsTerminal %v, got %v", tt.status, tt.want, got)
		}
	}
}
