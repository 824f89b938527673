package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookingslots/internal/model"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_ExpandsEnvAndDefaults(t *testing.T) {
	t.Setenv("BOOKINGS_API_KEY", "secret")
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
api:
  base_url: http://backend.local
  api_key: ${BOOKINGS_API_KEY}
redis:
  address: localhost:6379
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "secret", cfg.API.APIKey)
	assert.Equal(t, "http://backend.local", cfg.API.BaseURL)
	assert.Equal(t, "configs/facility.yaml", cfg.FacilityConfigPath)
	assert.Equal(t, 8080, cfg.HTTPPort())
	assert.Equal(t, 30*time.Minute, cfg.SessionIdleTimeout())
	assert.Equal(t, 256, cfg.CacheSize())
	assert.Equal(t, time.Duration(0), cfg.APICacheTTL())
	assert.Equal(t, 10*time.Second, cfg.APITimeout())

	rate, burst := cfg.APIRate()
	assert.Zero(t, rate)
	assert.Equal(t, 10, burst)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

const facilityYAML = `
timezone: UTC
bookingSlots:
  startTime: "09:00"
  endTime: "17:00"
  slotDuration: 30min
`

func TestLoadFacilityConfig(t *testing.T) {
	path := writeFile(t, t.TempDir(), "facility.yaml", facilityYAML)

	cfg, err := LoadFacilityConfig(path)
	require.NoError(t, err)
	assert.Equal(t, time.UTC, cfg.Location())

	sc, err := cfg.SlotConfig(model.KindBookings)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, sc.SlotDuration)
	assert.Equal(t, "09:00", sc.StartTime)

	// Assignment grid falls back to the booking grid.
	ac, err := cfg.SlotConfig(model.KindAssignments)
	require.NoError(t, err)
	assert.Equal(t, sc, ac)
}

func TestFacilityConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     FacilityConfig
		wantErr bool
	}{
		{
			"valid",
			FacilityConfig{
				BookingSlots:    SlotSettings{StartTime: "08:00", EndTime: "20:00", SlotDuration: "1h"},
				AssignmentSlots: SlotSettings{SlotDuration: "15min"},
			},
			false,
		},
		{"missing duration", FacilityConfig{BookingSlots: SlotSettings{StartTime: "08:00"}, AssignmentSlots: SlotSettings{SlotDuration: "1h"}}, true},
		{"zero duration", FacilityConfig{BookingSlots: SlotSettings{SlotDuration: "0"}, AssignmentSlots: SlotSettings{SlotDuration: "1h"}}, true},
		{"sub-minute duration", FacilityConfig{BookingSlots: SlotSettings{SlotDuration: "0.001ms"}, AssignmentSlots: SlotSettings{SlotDuration: "1h"}}, true},
		{"millisecond assignment grid", FacilityConfig{BookingSlots: SlotSettings{SlotDuration: "1h"}, AssignmentSlots: SlotSettings{SlotDuration: "1ms"}}, true},
		{"bad clock", FacilityConfig{BookingSlots: SlotSettings{StartTime: "8am", SlotDuration: "1h"}, AssignmentSlots: SlotSettings{SlotDuration: "1h"}}, true},
		{"inverted window", FacilityConfig{BookingSlots: SlotSettings{StartTime: "18:00", EndTime: "08:00", SlotDuration: "1h"}, AssignmentSlots: SlotSettings{SlotDuration: "1h"}}, true},
		{"unknown timezone", FacilityConfig{Timezone: "Mars/Olympus", BookingSlots: SlotSettings{SlotDuration: "1h"}, AssignmentSlots: SlotSettings{SlotDuration: "1h"}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidSettings)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestWatchFacility_Reloads(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "facility.yaml", facilityYAML)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	updates := make(chan *FacilityConfig, 4)
	errs := make(chan error, 4)
	err := WatchFacility(ctx, path, 10*time.Millisecond,
		func(c *FacilityConfig) { updates <- c },
		func(err error) { errs <- err })
	require.NoError(t, err)

	first := <-updates
	assert.Equal(t, "30min", first.BookingSlots.SlotDuration)

	future := time.Now().Add(time.Minute)
	writeFile(t, dir, "facility.yaml", `
bookingSlots:
  startTime: "09:00"
  endTime: "17:00"
  slotDuration: 1h
`)
	require.NoError(t, os.Chtimes(path, future, future))

	select {
	case next := <-updates:
		assert.Equal(t, "1h", next.BookingSlots.SlotDuration)
	case <-time.After(2 * time.Second):
		t.Fatal("config was not reloaded")
	}

	writeFile(t, dir, "facility.yaml", "bookingSlots: {slotDuration: nope}\n")
	later := future.Add(time.Minute)
	require.NoError(t, os.Chtimes(path, later, later))

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, ErrInvalidSettings)
	case <-time.After(2 * time.Second):
		t.Fatal("invalid config was not reported")
	}
}
