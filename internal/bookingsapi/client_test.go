package bookingsapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookingslots/internal/model"
)

func day(hour int) time.Time {
	return time.Date(2024, 10, 2, hour, 0, 0, 0, time.UTC)
}

func TestListLocationBookings(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/appointments", r.URL.Path)
		assert.Equal(t, "loc-1", r.URL.Query().Get("locationId"))
		assert.Equal(t, "2024-10-02 00:00:00", r.URL.Query().Get("after"))
		assert.Equal(t, "2024-10-02 23:59:59", r.URL.Query().Get("before"))
		assert.Equal(t, "true", r.URL.Query().Get("all"))
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))

		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]string{
				{"id": "a1", "locationId": "loc-1", "startTime": "2024-10-02 10:00:00", "endTime": "2024-10-02 11:00:00"},
			},
			"count": 1,
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key", time.Second)
	got, err := c.ListLocationBookings(context.Background(), "loc-1", day(0), day(23).Add(59*time.Minute+59*time.Second))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a1", got[0].ID)
	assert.Equal(t, "2024-10-02 10:00:00", got[0].StartTime)
}

func TestListLocationAssignments(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/locationAssignments", r.URL.Path)
		assert.Equal(t, "2024-10-02", r.URL.Query().Get("after"))
		_, _ = w.Write([]byte(`{"data":[{"id":"s1","date":"2024-10-02","startTime":"09:00:00","endTime":"12:00:00"}],"count":1}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second)
	got, err := c.ListLocationAssignments(context.Background(), "loc-1", "2024-10-02", "2024-10-02")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "09:00:00", got[0].StartTime)
}

func TestRequestIDPropagates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "req-42", r.Header.Get("X-Request-ID"))
		_, _ = w.Write([]byte(`{"data":[],"count":0}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second)
	_, err := c.ListLocationBookings(WithRequestID(context.Background(), "req-42"), "loc-1", day(0), day(23))
	require.NoError(t, err)
}

func TestCreateLocationBooking(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		body         string
		wantErr      bool
		wantConflict bool
	}{
		{"created", http.StatusOK, `{"id":"new","startTime":"2024-10-02 09:00:00","endTime":"2024-10-02 10:00:00"}`, false, false},
		{"conflict", http.StatusConflict, `{"error":{"message":"Location is already booked"}}`, true, true},
		{"server error", http.StatusInternalServerError, `oops`, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "/api/appointments/locationBooking", r.URL.Path)

				var req model.BookingRequest
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
				assert.Equal(t, "p1", req.PatientID)

				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := NewClient(srv.URL, "", time.Second)
			got, err := c.CreateLocationBooking(context.Background(), model.BookingRequest{
				PatientID:  "p1",
				LocationID: "loc-1",
				StartTime:  "2024-10-02 09:00:00",
				EndTime:    "2024-10-02 10:00:00",
			})

			if !tt.wantErr {
				require.NoError(t, err)
				assert.Equal(t, "new", got.ID)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantConflict, errors.Is(err, ErrConflict))

			var serr *StatusError
			require.ErrorAs(t, err, &serr)
			assert.Equal(t, tt.status, serr.Code)
		})
	}
}

func TestRedisCacheAndInvalidate(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"data":[{"id":"a1","startTime":"2024-10-02 10:00:00","endTime":"2024-10-02 11:00:00"}],"count":1}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second)
	c.UseRedisCache(rdb, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		got, err := c.ListLocationBookings(ctx, "loc-1", day(0), day(23))
		require.NoError(t, err)
		require.Len(t, got, 1)
	}
	assert.Equal(t, int32(1), calls.Load())
	assert.Len(t, mr.Keys(), 1)

	require.NoError(t, c.InvalidateLocation(ctx, model.KindBookings, "loc-1"))
	assert.Empty(t, mr.Keys())

	_, err := c.ListLocationBookings(ctx, "loc-1", day(0), day(23))
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestInvalidateLocation_LeavesOtherLocations(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	require.NoError(t, mr.Set("bookingslots:bookings:loc-1:x", "1"))
	require.NoError(t, mr.Set("bookingslots:bookings:loc-10:x", "1"))

	c := NewClient("http://unused", "", time.Second)
	c.UseRedisCache(rdb, time.Minute)
	require.NoError(t, c.InvalidateLocation(context.Background(), model.KindBookings, "loc-1"))

	assert.Equal(t, []string{"bookingslots:bookings:loc-10:x"}, mr.Keys())
}

func TestRateLimitHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[],"count":0}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second)
	c.UseRateLimit(0.001, 1)

	_, err := c.ListLocationBookings(context.Background(), "loc-1", day(0), day(23))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = c.ListLocationBookings(ctx, "loc-1", day(0), day(23))
	assert.Error(t, err)
}

func TestHealthCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/healthz" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	assert.NoError(t, NewClient(srv.URL, "", time.Second).HealthCheck(context.Background()))
	assert.Error(t, NewClient(srv.URL+"/nope", "", time.Second).HealthCheck(context.Background()))
}
