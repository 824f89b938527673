package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"bookingslots/internal/model"
	"bookingslots/internal/slots"
)

// ErrInvalidSettings is returned for facility settings that cannot produce a
// slot grid.
var ErrInvalidSettings = errors.New("invalid facility settings")

// SlotSettings configures one slot grid.
type SlotSettings struct {
	StartTime    string `yaml:"startTime"`    // "09:00"
	EndTime      string `yaml:"endTime"`      // "17:00"
	SlotDuration string `yaml:"slotDuration"` // "30min"
}

// FacilityConfig is the root of facility.yaml.
type FacilityConfig struct {
	Timezone        string       `yaml:"timezone"`
	BookingSlots    SlotSettings `yaml:"bookingSlots"`
	AssignmentSlots SlotSettings `yaml:"assignmentSlots"`

	location *time.Location
}

// LoadFacilityConfig loads and validates facility settings from a YAML file.
func LoadFacilityConfig(path string) (*FacilityConfig, error) {
	if path == "" {
		path = "configs/facility.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read facility config: %w", err)
	}

	var cfg FacilityConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse facility config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate facility config: %w", err)
	}

	return &cfg, nil
}

// applyDefaults copies booking settings into an unset assignment grid.
func (c *FacilityConfig) applyDefaults() {
	if c.AssignmentSlots == (SlotSettings{}) {
		c.AssignmentSlots = c.BookingSlots
	}
}

// Validate checks the settings and resolves the timezone.
func (c *FacilityConfig) Validate() error {
	loc := time.Local
	if c.Timezone != "" {
		l, err := time.LoadLocation(c.Timezone)
		if err != nil {
			return fmt.Errorf("%w: timezone %q: %v", ErrInvalidSettings, c.Timezone, err)
		}
		loc = l
	}
	c.location = loc

	if err := validateSlotSettings(c.BookingSlots, "bookingSlots"); err != nil {
		return err
	}
	return validateSlotSettings(c.AssignmentSlots, "assignmentSlots")
}

func validateSlotSettings(s SlotSettings, prefix string) error {
	if s.SlotDuration == "" {
		return fmt.Errorf("%w: %s.slotDuration is required", ErrInvalidSettings, prefix)
	}
	if _, err := slots.ParseSlotDuration(s.SlotDuration); err != nil {
		return fmt.Errorf("%w: %s.slotDuration: %v", ErrInvalidSettings, prefix, err)
	}
	if s.StartTime != "" {
		if err := slots.ValidateClock(s.StartTime); err != nil {
			return fmt.Errorf("%w: %s.startTime: %v", ErrInvalidSettings, prefix, err)
		}
	}
	if s.EndTime != "" {
		if err := slots.ValidateClock(s.EndTime); err != nil {
			return fmt.Errorf("%w: %s.endTime: %v", ErrInvalidSettings, prefix, err)
		}
	}

	cfg, err := s.slotConfig(time.UTC)
	if err != nil {
		return err
	}
	if !cfg.Valid() {
		return fmt.Errorf("%w: %s: endTime must be after startTime", ErrInvalidSettings, prefix)
	}
	return nil
}

func (s SlotSettings) slotConfig(loc *time.Location) (slots.Config, error) {
	d, err := slots.ParseSlotDuration(s.SlotDuration)
	if err != nil {
		return slots.Config{}, fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	return slots.Config{
		SlotDuration: d,
		StartTime:    s.StartTime,
		EndTime:      s.EndTime,
		Location:     loc,
	}, nil
}

// Location returns the facility timezone.
func (c *FacilityConfig) Location() *time.Location {
	if c.location == nil {
		return time.Local
	}
	return c.location
}

// SlotConfig returns the calculator settings for the given grid kind.
func (c *FacilityConfig) SlotConfig(kind model.Kind) (slots.Config, error) {
	s := c.BookingSlots
	if kind == model.KindAssignments {
		s = c.AssignmentSlots
	}
	return s.slotConfig(c.Location())
}

// String returns a summary of the configuration.
func (c *FacilityConfig) String() string {
	return fmt.Sprintf("FacilityConfig: tz=%s bookings=%s-%s/%s assignments=%s-%s/%s",
		c.Location(),
		c.BookingSlots.StartTime, c.BookingSlots.EndTime, c.BookingSlots.SlotDuration,
		c.AssignmentSlots.StartTime, c.AssignmentSlots.EndTime, c.AssignmentSlots.SlotDuration)
}
