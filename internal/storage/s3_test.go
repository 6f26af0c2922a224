package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func httpErr(code int) error {
	return &smithyhttp.ResponseError{
		Response: &smithyhttp.Response{Response: &http.Response{StatusCode: code}},
		Err:      errors.New("boom"),
	}
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"not found", ErrObjectNotFound, false},
		{"cancelled", fmt.Errorf("op: %w", context.Canceled), false},
		{"throttled", httpErr(http.StatusTooManyRequests), true},
		{"server error", httpErr(http.StatusServiceUnavailable), true},
		{"forbidden", httpErr(http.StatusForbidden), false},
		{"slow down", &smithy.GenericAPIError{Code: "SlowDown"}, true},
		{"access denied", &smithy.GenericAPIError{Code: "AccessDenied", Fault: smithy.FaultClient}, false},
		{"server fault", &smithy.GenericAPIError{Code: "Weird", Fault: smithy.FaultServer}, true},
		{"transport", errors.New("connection reset"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, retryable(tt.err))
		})
	}
}

func TestS3Storage_WithRetry(t *testing.T) {
	s := NewS3StorageWithClient(nil, "bucket", S3Config{MaxRetries: 2, BaseBackoff: time.Millisecond})
	ctx := context.Background()

	calls := 0
	err := s.withRetry(ctx, func() error {
		calls++
		return httpErr(http.StatusInternalServerError)
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	err = s.withRetry(ctx, func() error {
		calls++
		return &smithy.GenericAPIError{Code: "AccessDenied", Fault: smithy.FaultClient}
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)

	calls = 0
	err = s.withRetry(ctx, func() error {
		calls++
		if calls < 2 {
			return errors.New("connection reset")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestS3Storage_WithRetryStopsOnCancel(t *testing.T) {
	s := NewS3StorageWithClient(nil, "bucket", S3Config{MaxRetries: 5, BaseBackoff: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())

	err := s.withRetry(ctx, func() error {
		cancel()
		return errors.New("connection reset")
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestS3Storage_ObjectKey(t *testing.T) {
	s := NewS3StorageWithClient(nil, "bucket", S3Config{KeyPrefix: "team-a"})

	key, err := s.objectKey("analyses/1/lsa.json.sz")
	require.NoError(t, err)
	assert.Equal(t, "team-a/analyses/1/lsa.json.sz", key)

	_, err = s.objectKey("../escape")
	assert.ErrorIs(t, err, ErrInvalidKey)

	// invalid keys are rejected before any request is made
	_, err = s.Get(context.Background(), "/abs")
	assert.ErrorIs(t, err, ErrInvalidKey)
}
