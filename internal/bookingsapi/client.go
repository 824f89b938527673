// Package bookingsapi is the HTTP client for the bookings backend.
package bookingsapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"bookingslots/internal/metrics"
	"bookingslots/internal/model"
)

// ErrConflict is returned when the backend rejects a write because the
// interval is already taken.
var ErrConflict = errors.New("booking conflicts with an existing booking")

// StatusError is a non-2xx backend response.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("http %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("http %d", e.Code)
}

// Client calls the bookings backend REST API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter

	redis    *redis.Client
	cacheTTL time.Duration
}

// ListResponse is the backend's list envelope.
type ListResponse[T any] struct {
	Data  []T `json:"data"`
	Count int `json:"count"`
}

// NewClient constructs a client with baseURL and API key.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// UseRedisCache configures optional Redis caching for GET endpoints.
func (c *Client) UseRedisCache(redisClient *redis.Client, ttl time.Duration) {
	c.redis = redisClient
	c.cacheTTL = ttl
}

// UseRateLimit caps outgoing requests. A non-positive rate disables limiting.
func (c *Client) UseRateLimit(perSecond float64, burst int) {
	if perSecond <= 0 {
		c.limiter = nil
		return
	}
	if burst <= 0 {
		burst = 1
	}
	c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
}

// ListLocationBookings returns every appointment at the location that
// overlaps [after, before].
func (c *Client) ListLocationBookings(ctx context.Context, locationID string, after, before time.Time) ([]model.Appointment, error) {
	q := url.Values{}
	q.Set("locationId", locationID)
	q.Set("after", after.Format(model.DateTimeLayout))
	q.Set("before", before.Format(model.DateTimeLayout))
	q.Set("all", "true")
	endpoint := fmt.Sprintf("%s/api/appointments?%s", c.baseURL, q.Encode())

	cacheKey := fmt.Sprintf("%s:%s:%s", cachePrefix(model.KindBookings, locationID), after.Format(model.DateTimeLayout), before.Format(model.DateTimeLayout))
	var resp ListResponse[model.Appointment]

	if c.readCache(ctx, cacheKey, &resp) {
		return resp.Data, nil
	}

	if err := c.doGet(ctx, "appointments", endpoint, &resp); err != nil {
		return nil, fmt.Errorf("list location bookings: %w", err)
	}
	c.writeCache(ctx, cacheKey, resp)
	return resp.Data, nil
}

// ListLocationAssignments returns the location's assignments between the
// after and before dates (YYYY-MM-DD), inclusive.
func (c *Client) ListLocationAssignments(ctx context.Context, locationID, after, before string) ([]model.LocationAssignment, error) {
	q := url.Values{}
	q.Set("locationId", locationID)
	q.Set("after", after)
	q.Set("before", before)
	q.Set("all", "true")
	endpoint := fmt.Sprintf("%s/api/locationAssignments?%s", c.baseURL, q.Encode())

	cacheKey := fmt.Sprintf("%s:%s:%s", cachePrefix(model.KindAssignments, locationID), after, before)
	var resp ListResponse[model.LocationAssignment]

	if c.readCache(ctx, cacheKey, &resp) {
		return resp.Data, nil
	}

	if err := c.doGet(ctx, "locationAssignments", endpoint, &resp); err != nil {
		return nil, fmt.Errorf("list location assignments: %w", err)
	}
	c.writeCache(ctx, cacheKey, resp)
	return resp.Data, nil
}

// CreateLocationBooking writes a booking. A 409 from the backend is reported
// as ErrConflict.
func (c *Client) CreateLocationBooking(ctx context.Context, req model.BookingRequest) (*model.Appointment, error) {
	endpoint := fmt.Sprintf("%s/api/appointments/locationBooking", c.baseURL)
	var resp model.Appointment
	if err := c.doPost(ctx, "locationBooking", endpoint, req, &resp); err != nil {
		return nil, fmt.Errorf("create location booking: %w", err)
	}
	return &resp, nil
}

// InvalidateLocation drops every cached response for the location and kind.
func (c *Client) InvalidateLocation(ctx context.Context, kind model.Kind, locationID string) error {
	if c.redis == nil {
		return nil
	}
	iter := c.redis.Scan(ctx, 0, cachePrefix(kind, locationID)+":*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan cache keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	return c.redis.Del(ctx, keys...).Err()
}

// HealthCheck checks if the bookings backend is available.
func (c *Client) HealthCheck(ctx context.Context) error {
	endpoint := fmt.Sprintf("%s/healthz", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed: %d", resp.StatusCode)
	}
	return nil
}

func cachePrefix(kind model.Kind, locationID string) string {
	return fmt.Sprintf("bookingslots:%s:%s", kind, locationID)
}

func (c *Client) readCache(ctx context.Context, key string, out any) bool {
	if c.redis == nil || c.cacheTTL <= 0 {
		return false
	}
	val, err := c.redis.Get(ctx, key).Result()
	if err != nil {
		return false
	}
	if err := json.Unmarshal([]byte(val), out); err != nil {
		return false
	}
	return true
}

func (c *Client) writeCache(ctx context.Context, key string, val any) {
	if c.redis == nil || c.cacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, key, data, c.cacheTTL).Err()
}

func (c *Client) doGet(ctx context.Context, name, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return err
	}
	c.addHeaders(req)
	return c.do(name, req, out)
}

func (c *Client) doPost(ctx context.Context, name, endpoint string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.addHeaders(req)
	return c.do(name, req, out)
}

func (c *Client) do(name string, req *http.Request, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(req.Context()); err != nil {
			metrics.IncUpstreamRequest(name, "throttled")
			return err
		}
	}

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.ObserveUpstreamLatency(name, time.Since(started).Seconds())
	if err != nil {
		metrics.IncUpstreamRequest(name, "error")
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		metrics.IncUpstreamRequest(name, fmt.Sprintf("%d", resp.StatusCode))
		serr := &StatusError{Code: resp.StatusCode, Message: errorMessage(resp)}
		if resp.StatusCode == http.StatusConflict {
			return fmt.Errorf("%w: %w", ErrConflict, serr)
		}
		return serr
	}
	metrics.IncUpstreamRequest(name, "ok")
	if out == nil {
		return nil
	}
	dec := json.NewDecoder(resp.Body)
	return dec.Decode(out)
}

// errorMessage pulls the backend's error message out of a failed response.
func errorMessage(resp *http.Response) string {
	var body struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return ""
	}
	return body.Error.Message
}

func (c *Client) addHeaders(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	id := RequestIDFromContext(req.Context())
	if id == "" {
		id = uuid.NewString()
	}
	req.Header.Set("X-Request-ID", id)
}

type requestIDKey struct{}

// WithRequestID attaches an inbound request id so upstream calls carry it.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the request id set by WithRequestID.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
