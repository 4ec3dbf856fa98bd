package timeout_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/signalnine/gradecheck/internal/timeout"
)

func TestCheck(t *testing.T) {
	expired, cancel := context.WithTimeout(context.Background(), -time.Second)
	defer cancel()
	boom := errors.New("boom")

	tests := []struct {
		name    string
		ctx     context.Context
		err     error
		timeout bool
	}{
		{"nil error", expired, nil, false},
		{"deadline on context", expired, boom, true},
		{"wrapped deadline", context.Background(), fmt.Errorf("post: %w", context.DeadlineExceeded), true},
		{"plain error", context.Background(), boom, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := timeout.Check(tt.ctx, "suite Routing", 5*time.Minute, tt.err)
			if timeout.Is(got) != tt.timeout {
				t.Fatalf("Is(%v) = %v, want %v", got, timeout.Is(got), tt.timeout)
			}
			if tt.err == nil && got != nil {
				t.Errorf("nil error became %v", got)
			}
			if !tt.timeout && tt.err != nil && got != tt.err {
				t.Errorf("error changed: %v", got)
			}
		})
	}

	err := timeout.Check(expired, "suite Routing", 5*time.Minute, boom)
	if err.Error() != "suite Routing timed out after 5m0s" {
		t.Errorf("message: %q", err.Error())
	}
}
