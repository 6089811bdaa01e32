// Package fixtures loads a room and its members from YAML so the scheduling
// core can be exercised without a store.
package fixtures

import (
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/kilianp07/slotshare/core/model"
)

type MemberDef struct {
	ID                  string                     `yaml:"id"`
	Name                string                     `yaml:"name"`
	Location            *model.GeoPoint            `yaml:"location,omitempty"`
	RecurringWindows    []model.PreferenceWindow   `yaml:"recurring_windows"`
	DateWindows         []model.PreferenceWindow   `yaml:"date_windows"`
	BlockingCommitments []model.BlockingCommitment `yaml:"blocking_commitments"`
}

func (m MemberDef) ToModel() model.Member {
	return model.Member{
		ID:                  m.ID,
		Name:                m.Name,
		Location:            m.Location,
		RecurringWindows:    m.RecurringWindows,
		DateWindows:         m.DateWindows,
		BlockingCommitments: m.BlockingCommitments,
	}
}

// JoinDef is a membership. Members without JoinedAt join in file order.
type JoinDef struct {
	ID             string    `yaml:"id"`
	JoinedAt       time.Time `yaml:"joined_at"`
	CarryOverHours float64   `yaml:"carry_over_hours"`
	Priority       int       `yaml:"priority"`
}

type SlotDef struct {
	ID     string       `yaml:"id"`
	Member string       `yaml:"member"`
	Date   model.Date   `yaml:"date"`
	Start  model.Minute `yaml:"start"`
	End    model.Minute `yaml:"end"`
}

type SettingsDef struct {
	DayStart       model.Minute          `yaml:"day_start"`
	DayEnd         model.Minute          `yaml:"day_end"`
	BlockedWindows []model.BlockedWindow `yaml:"blocked_windows"`
	DateExceptions []model.DateException `yaml:"date_exceptions"`
	MinWeeklyHours float64               `yaml:"min_weekly_hours"`
	AssignmentMode string                `yaml:"assignment_mode"`
	SlotMinutes    int                   `yaml:"slot_minutes"`
}

type RoomDef struct {
	ID         string      `yaml:"id"`
	Name       string      `yaml:"name"`
	Owner      string      `yaml:"owner"`
	TravelMode string      `yaml:"travel_mode"`
	Settings   SettingsDef `yaml:"settings"`
	Members    []JoinDef   `yaml:"members"`
	Slots      []SlotDef   `yaml:"slots"`
}

// Fixture is one room with the documents of its participants.
type Fixture struct {
	Name        string      `yaml:"name"`
	Description string      `yaml:"description,omitempty"`
	Room        RoomDef     `yaml:"room"`
	Members     []MemberDef `yaml:"members"`
}

// Load reads and validates the fixture at path.
func Load(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes a fixture and checks that it converts cleanly.
func Parse(data []byte) (*Fixture, error) {
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode fixture: %w", err)
	}
	if _, err := f.RoomModel(); err != nil {
		return nil, err
	}
	for _, m := range f.Members {
		if err := m.ToModel().Validate(); err != nil {
			return nil, fmt.Errorf("member %s: %w", m.ID, err)
		}
	}
	return &f, nil
}

// epoch anchors members listed without a join time.
var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// RoomModel converts the room definition.
func (f *Fixture) RoomModel() (model.Room, error) {
	mode, err := model.ParseAssignmentMode(f.Room.Settings.AssignmentMode)
	if err != nil {
		return model.Room{}, err
	}
	travel, err := model.ParseTravelMode(f.Room.TravelMode)
	if err != nil {
		return model.Room{}, err
	}
	if f.Room.Owner == "" {
		return model.Room{}, fmt.Errorf("room %s has no owner", f.Room.ID)
	}
	sd := f.Room.Settings
	room := model.Room{
		ID:         f.Room.ID,
		Name:       f.Room.Name,
		OwnerID:    f.Room.Owner,
		TravelMode: travel,
		Settings: model.Settings{
			DayStart:       sd.DayStart,
			DayEnd:         sd.DayEnd,
			BlockedWindows: sd.BlockedWindows,
			DateExceptions: sd.DateExceptions,
			MinWeeklyHours: decimal.NewFromFloat(sd.MinWeeklyHours),
			AssignmentMode: mode,
			SlotMinutes:    sd.SlotMinutes,
		},
	}
	for i, j := range f.Room.Members {
		joined := j.JoinedAt
		if joined.IsZero() {
			joined = epoch.Add(time.Duration(i) * time.Minute)
		}
		room.Members = append(room.Members, model.RoomMember{
			MemberID:       j.ID,
			JoinedAt:       joined,
			CarryOverHours: decimal.NewFromFloat(j.CarryOverHours),
			Priority:       j.Priority,
		})
	}
	for i, s := range f.Room.Slots {
		if s.End <= s.Start {
			return model.Room{}, fmt.Errorf("slot %d: %w", i, model.ErrInvalidRange)
		}
		if !room.IsParticipant(s.Member) {
			return model.Room{}, fmt.Errorf("slot %d: %w: %s", i, model.ErrUnknownMember, s.Member)
		}
		id := s.ID
		if id == "" {
			id = fmt.Sprintf("fixture-%d", i+1)
		}
		room.Slots = append(room.Slots, model.NewSlot(id, s.Date, s.Start, s.End, s.Member, model.SourceManual))
	}
	model.SortSlots(room.Slots)
	return room, nil
}

// MemberModels returns the member documents keyed by id.
func (f *Fixture) MemberModels() map[string]model.Member {
	out := make(map[string]model.Member, len(f.Members))
	for _, m := range f.Members {
		out[m.ID] = m.ToModel()
	}
	return out
}
