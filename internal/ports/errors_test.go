package ports

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFeedError(t *testing.T) {
	tests := []struct {
		name       string
		err        *FeedError
		wantReason string
		wantError  string
	}{
		{
			name:       "status and message",
			err:        &FeedError{Status: "Bad Request", Message: "Invalid granularity", Err: ErrInvalidRequest},
			wantReason: "Bad Request. Invalid granularity",
			wantError:  "invalid request parameters or format: Bad Request. Invalid granularity",
		},
		{
			name:       "no status",
			err:        &FeedError{Message: "boom"},
			wantReason: "boom",
			wantError:  "boom",
		},
		{
			name:       "nothing known",
			err:        &FeedError{Err: ErrUnknown},
			wantReason: "Unknown reason.",
			wantError:  "unknown error occurred: Unknown reason.",
		},
		{
			name:       "status only",
			err:        &FeedError{Status: "Service Unavailable", Err: ErrFeedUnavailable},
			wantReason: "Service Unavailable",
			wantError:  "data feed is unavailable: Service Unavailable",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantReason, tt.err.Reason())
			assert.Equal(t, tt.wantError, tt.err.Error())
		})
	}

	wrapped := fmt.Errorf("Fetch failed: %w", &FeedError{Status: "Too Many Requests", Err: ErrRateLimited})
	assert.ErrorIs(t, wrapped, ErrRateLimited)
	var fe *FeedError
	assert.True(t, errors.As(wrapped, &fe))
	assert.Equal(t, "Too Many Requests", fe.Reason())
}
