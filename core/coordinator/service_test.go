package coordinator_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/slotshare/core/allocation"
	"github.com/kilianp07/slotshare/core/audit"
	"github.com/kilianp07/slotshare/core/coordinator"
	"github.com/kilianp07/slotshare/core/events"
	"github.com/kilianp07/slotshare/core/model"
	"github.com/kilianp07/slotshare/core/travel"
	"github.com/kilianp07/slotshare/infra/store/memory"
)

var (
	monday = model.Date("2025-01-06")
	now    = time.Date(2025, 1, 6, 7, 0, 0, 0, time.UTC)
)

func hm(s string) model.Minute { return model.MustMinute(s) }

type recorder struct {
	mu  sync.Mutex
	got []events.RoomEvent
}

func (r *recorder) Publish(ev events.RoomEvent) {
	r.mu.Lock()
	r.got = append(r.got, ev)
	r.mu.Unlock()
}

func (r *recorder) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, ev := range r.got {
		out = append(out, ev.Name)
	}
	return out
}

type env struct {
	store *memory.Store
	svc   *coordinator.Service
	bus   *recorder
	log   *audit.MemoryLog
}

var aliceWindows = []model.PreferenceWindow{{Weekday: 1, Start: hm("09:00"), End: hm("12:00"), Priority: model.PriorityHigh}}

func newEnv(t *testing.T, cfg coordinator.Config) *env {
	t.Helper()
	ctx := context.Background()
	st := memory.New()
	_, err := st.SaveRoom(ctx, model.Room{
		ID: "r1", Name: "Piano", OwnerID: "owner",
		Settings: model.Settings{MinWeeklyHours: decimal.NewFromInt(2), AssignmentMode: model.ModeFirstCome, SlotMinutes: 30},
		Members:  []model.RoomMember{{MemberID: "alice", JoinedAt: now}},
	})
	require.NoError(t, err)
	for _, m := range []model.Member{
		{ID: "owner", Name: "Olga"},
		{ID: "alice", Name: "Alice", RecurringWindows: aliceWindows},
	} {
		_, err := st.SaveMember(ctx, m)
		require.NoError(t, err)
	}
	e := &env{store: st, bus: &recorder{}, log: &audit.MemoryLog{}}
	sim := travel.New(travel.Config{})
	n := 0
	e.svc = coordinator.New(cfg, st, allocation.New(allocation.Config{}, sim, nil), sim,
		coordinator.WithPublisher(e.bus),
		coordinator.WithAudit(e.log),
		coordinator.WithClock(func() time.Time { return now }),
		coordinator.WithIDs(func() string {
			n++
			return fmt.Sprintf("id-%d", n)
		}),
	)
	return e
}

func TestAllocatePersistsSlotsAndSplitsPreferences(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, coordinator.Config{ArmAfterAllocate: true, AutoConfirmMinutes: 60})

	report, err := e.svc.Allocate(ctx, coordinator.AllocateParams{RoomID: "r1", ActorID: "owner"})
	require.NoError(t, err)
	assert.Equal(t, monday, report.WeekStart)
	assert.Empty(t, report.Unassigned)

	room, err := e.store.GetRoom(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, room.Slots, 1)
	assert.Equal(t, model.Interval{Start: hm("09:00"), End: hm("11:00")}, room.Slots[0].Interval())
	require.NotNil(t, room.AutoConfirmAt)
	assert.Equal(t, now.Add(time.Hour), *room.AutoConfirmAt)
	assert.True(t, room.Members[0].TotalProgressHours.Equal(decimal.NewFromInt(2)))

	alice, err := e.store.GetMember(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, alice.RecurringWindows, 1)
	assert.Equal(t, hm("11:00"), alice.RecurringWindows[0].Start)
	assert.Len(t, alice.PreferenceBackups["r1"], 1)

	assert.Contains(t, e.bus.names(), events.AllocationCompleted)
	entries, err := e.log.Entries(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Olga", entries[0].ActorName)
}

func TestAllocateDryRunStoresNothing(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, coordinator.Config{})
	report, err := e.svc.Allocate(ctx, coordinator.AllocateParams{RoomID: "r1", DryRun: true})
	require.NoError(t, err)
	require.Len(t, report.Members, 1)
	assert.Len(t, report.Members[0].Slots, 1)

	room, err := e.store.GetRoom(ctx, "r1")
	require.NoError(t, err)
	assert.Empty(t, room.Slots)
	assert.Empty(t, e.bus.names())
}

func TestResetRestoresPreferences(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, coordinator.Config{})
	_, err := e.svc.Allocate(ctx, coordinator.AllocateParams{RoomID: "r1"})
	require.NoError(t, err)
	slot, res, err := e.svc.InsertSlot(ctx, coordinator.InsertParams{RoomID: "r1", MemberID: "alice", Date: monday, Start: hm("11:00"), End: hm("12:00")})
	require.NoError(t, err)
	require.True(t, res.IsValid)
	require.NotEmpty(t, slot.ID)

	alice, err := e.store.GetMember(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, alice.RecurringWindows)
	assert.Len(t, alice.PreferenceBackups["r1"], 2, "later splits extend the room log")

	n, err := e.svc.ResetSlots(ctx, "r1", "owner")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	room, err := e.store.GetRoom(ctx, "r1")
	require.NoError(t, err)
	assert.Empty(t, room.Slots)

	alice, err = e.store.GetMember(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, aliceWindows, alice.RecurringWindows)
	assert.NotContains(t, alice.PreferenceBackups, "r1")
}

func TestInsertSlotRefusedBySimulator(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, coordinator.Config{})
	slot, res, err := e.svc.InsertSlot(ctx, coordinator.InsertParams{RoomID: "r1", MemberID: "alice", Date: monday, Start: hm("13:00"), End: hm("14:00")})
	require.NoError(t, err)
	assert.False(t, res.IsValid)
	assert.Equal(t, travel.ReasonPreference, res.Code)
	require.NotNil(t, res.SuggestedEarliest)
	assert.Equal(t, hm("09:00"), *res.SuggestedEarliest)
	assert.Empty(t, slot.ID)

	room, err := e.store.GetRoom(ctx, "r1")
	require.NoError(t, err)
	assert.Empty(t, room.Slots)

	_, _, err = e.svc.InsertSlot(ctx, coordinator.InsertParams{RoomID: "r1", MemberID: "alice", Date: monday, Start: hm("10:00"), End: hm("09:00")})
	assert.ErrorIs(t, err, model.ErrInvalidRange)
}

func TestInsertSlotPlacedAfterTravel(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	home := &model.GeoPoint{Lat: 48.80, Lng: 2.35}
	north := &model.GeoPoint{Lat: 48.97, Lng: 2.35}
	_, err := st.SaveRoom(ctx, model.Room{
		ID: "r1", Name: "Piano", OwnerID: "owner", TravelMode: model.TravelDriving,
		Members: []model.RoomMember{{MemberID: "alice", JoinedAt: now}, {MemberID: "bob", JoinedAt: now}},
		Slots: []model.Slot{
			model.NewSlot("a1", monday, hm("09:00"), hm("10:00"), "alice", model.SourceAllocator),
			model.NewSlot("a2", monday, hm("12:00"), hm("13:00"), "alice", model.SourceAllocator),
		},
	})
	require.NoError(t, err)
	for _, m := range []model.Member{
		{ID: "owner", Location: home},
		{ID: "alice", Location: home},
		{ID: "bob", Location: north, RecurringWindows: []model.PreferenceWindow{{Weekday: 1, Start: hm("09:00"), End: hm("13:00"), Priority: model.PriorityHigh}}},
	} {
		_, err := st.SaveMember(ctx, m)
		require.NoError(t, err)
	}
	sim := travel.New(travel.Config{})
	svc := coordinator.New(coordinator.Config{}, st, allocation.New(allocation.Config{}, sim, nil), sim,
		coordinator.WithClock(func() time.Time { return now }),
		coordinator.WithIDs(func() string { return "manual" }),
	)

	slot, res, err := svc.InsertSlot(ctx, coordinator.InsertParams{RoomID: "r1", MemberID: "bob", Date: monday, Start: hm("10:00"), End: hm("11:30")})
	require.NoError(t, err)
	assert.False(t, res.IsValid)
	assert.Equal(t, travel.ReasonDisplaces, res.Code, "alice's 12:00 class would start at 12:30")
	assert.Empty(t, slot.ID)

	slot, res, err = svc.InsertSlot(ctx, coordinator.InsertParams{RoomID: "r1", MemberID: "bob", Date: monday, Start: hm("10:00"), End: hm("11:00")})
	require.NoError(t, err)
	require.True(t, res.IsValid, res.Reason)
	assert.Equal(t, model.Interval{Start: hm("10:30"), End: hm("11:30")}, slot.Interval())

	room, err := st.GetRoom(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, room.Slots, 3)
	assert.Equal(t, model.Interval{Start: hm("10:30"), End: hm("11:30")}, room.Slots[1].Interval())
}

func TestAutoConfirmRearm(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, coordinator.Config{AutoConfirmMinutes: 30})

	room, err := e.svc.ArmAutoConfirm(ctx, "r1", 0)
	require.NoError(t, err)
	assert.Equal(t, now.Add(30*time.Minute), *room.AutoConfirmAt)

	room, err = e.svc.ArmAutoConfirm(ctx, "r1", 90)
	require.NoError(t, err)
	assert.Equal(t, now.Add(90*time.Minute), *room.AutoConfirmAt, "a new deadline replaces the old one")
	assert.Equal(t, 90, room.AutoConfirmDurationMinutes)

	room, err = e.svc.DisarmAutoConfirm(ctx, "r1")
	require.NoError(t, err)
	assert.Nil(t, room.AutoConfirmAt)
	assert.Contains(t, e.bus.names(), events.AutoConfirmArmed)
}

func TestUpdatePreferences(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, coordinator.Config{})

	_, err := e.svc.UpdatePreferences(ctx, "r1", "alice", coordinator.PreferencesUpdate{
		RecurringWindows: []model.PreferenceWindow{{Weekday: 9, Start: hm("10:00"), End: hm("09:00"), Priority: 4}},
	})
	var vErr *model.ValidationError
	require.ErrorAs(t, err, &vErr)

	_, err = e.svc.Allocate(ctx, coordinator.AllocateParams{RoomID: "r1"})
	require.NoError(t, err)
	m, err := e.svc.UpdatePreferences(ctx, "r1", "alice", coordinator.PreferencesUpdate{
		RecurringWindows: []model.PreferenceWindow{{Weekday: 1, Start: hm("08:00"), End: hm("18:00"), Priority: model.PriorityNormal}},
	})
	require.NoError(t, err)
	require.Len(t, m.RecurringWindows, 2, "the held 09:00-11:00 slot is carved out")
	assert.Equal(t, hm("08:00"), m.RecurringWindows[0].Start)
	assert.Equal(t, hm("09:00"), m.RecurringWindows[0].End)
	assert.Contains(t, e.bus.names(), events.AnalysisUpdated)
}
