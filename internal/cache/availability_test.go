package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/metinatakli/hostel-booking/internal/domain"
	"github.com/metinatakli/hostel-booking/internal/mocks"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestRedisAvailabilityCacheGet(t *testing.T) {
	tests := []struct {
		name      string
		result    *redis.StringCmd
		wantFound bool
		wantErr   bool
		want      *domain.Availability
	}{
		{
			name:      "hit",
			result:    redis.NewStringResult(`{"available":true,"message":"ok"}`, nil),
			wantFound: true,
			want:      &domain.Availability{Available: true, Message: "ok"},
		},
		{
			name:   "miss",
			result: redis.NewStringResult("", redis.Nil),
		},
		{
			name:    "redis failure",
			result:  redis.NewStringResult("", errors.New("connection refused")),
			wantErr: true,
		},
		{
			name:    "corrupt entry",
			result:  redis.NewStringResult("not-json", nil),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := new(mocks.MockRedisClient)
			client.On("Get", mock.Anything, "payment_method_availability:card").Return(tt.result).Once()
			defer client.AssertExpectations(t)

			got, found, err := NewRedisAvailabilityCache(client).Get(context.Background(), domain.PaymentMethodCard)

			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantFound, found)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRedisAvailabilityCacheSet(t *testing.T) {
	client := new(mocks.MockRedisClient)
	client.On("Set", mock.Anything, "payment_method_availability:mobile-money",
		[]byte(`{"available":false,"message":"down"}`), 30*time.Second).
		Return(redis.NewStatusResult("OK", nil)).Once()
	defer client.AssertExpectations(t)

	err := NewRedisAvailabilityCache(client).Set(
		context.Background(),
		domain.PaymentMethodMobileMoney,
		domain.Availability{Available: false, Message: "down"},
		30*time.Second,
	)

	assert.NoError(t, err)
}
