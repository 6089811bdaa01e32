package travel

import (
	"fmt"
	"math"

	"github.com/kilianp07/slotshare/core/model"
)

const earthRadiusKm = 6371.0

// DistanceKm returns the great-circle distance between two points.
func DistanceKm(a, b model.GeoPoint) float64 {
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(a.Lat*math.Pi/180)*math.Cos(b.Lat*math.Pi/180)*
			math.Sin(dLng/2)*math.Sin(dLng/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// Config tunes travel leg computation.
type Config struct {
	// SpeedsKmh overrides the default speed per travel mode.
	SpeedsKmh map[string]float64 `json:"speeds_kmh"`
	// RoundMinutes is the increment travel legs are rounded up to.
	RoundMinutes int `json:"round_minutes"`
}

// DefaultSpeeds are the average speeds in km/h per travel mode.
var DefaultSpeeds = map[model.TravelMode]float64{
	model.TravelDriving:   40,
	model.TravelTransit:   30,
	model.TravelWalking:   5,
	model.TravelBicycling: 15,
}

// SetDefaults fills zero values.
func (c *Config) SetDefaults() {
	if c.RoundMinutes <= 0 {
		c.RoundMinutes = 10
	}
}

// Validate checks the configured values.
func (c Config) Validate() error {
	for mode, v := range c.SpeedsKmh {
		if v <= 0 {
			return fmt.Errorf("speeds_kmh.%s must be positive", mode)
		}
	}
	if c.RoundMinutes > 60 {
		return fmt.Errorf("round_minutes must not exceed 60")
	}
	return nil
}

// LegMinutes returns the travel time between two locations rounded up to the
// configured increment. Unknown locations and TravelNone yield zero.
func (s *Simulator) LegMinutes(from, to *model.GeoPoint, mode model.TravelMode) int {
	if from == nil || to == nil || mode == model.TravelNone || mode == "" {
		return 0
	}
	speed := s.speed(mode)
	if speed <= 0 {
		return 0
	}
	raw := DistanceKm(*from, *to) / speed * 60
	if raw <= 0 {
		return 0
	}
	step := float64(s.round)
	return int(math.Ceil(raw/step) * step)
}

func (s *Simulator) speed(mode model.TravelMode) float64 {
	if v, ok := s.speeds[mode]; ok {
		return v
	}
	return 0
}
