package coordinator

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/kilianp07/slotshare/core/allocation"
	"github.com/kilianp07/slotshare/core/events"
	"github.com/kilianp07/slotshare/core/metrics"
	"github.com/kilianp07/slotshare/core/model"
	"github.com/kilianp07/slotshare/core/store"
)

// AllocateParams selects the week and mode of an allocation run.
type AllocateParams struct {
	RoomID    string               `json:"room_id"`
	WeekStart model.Date           `json:"week_start"`
	Today     model.Date           `json:"today"`
	Mode      model.AssignmentMode `json:"mode"`
	DryRun    bool                 `json:"dry_run"`
	ActorID   string               `json:"actor_id"`
}

// Allocate runs the allocator and, unless DryRun is set, stores the new slots
// and membership records in one room write, then splits each member's
// preferences around their new slots. On a version conflict the allocation is
// recomputed against the fresh room.
func (s *Service) Allocate(ctx context.Context, p AllocateParams) (allocation.Report, error) {
	start := s.now()
	if p.Today == "" {
		p.Today = s.today()
	}
	if p.WeekStart == "" {
		p.WeekStart = p.Today
	}
	room, err := s.store.GetRoom(ctx, p.RoomID)
	if err != nil {
		return allocation.Report{}, fmt.Errorf("load room: %w", err)
	}
	members, err := s.members(ctx, &room)
	if err != nil {
		return allocation.Report{}, err
	}
	input := func(r *model.Room) allocation.Input {
		return allocation.Input{Room: r, Members: members, WeekStart: p.WeekStart, Today: p.Today, Mode: p.Mode}
	}

	var res allocation.Result
	if p.DryRun {
		res, err = s.alloc.Allocate(input(&room))
		if err != nil {
			return allocation.Report{}, err
		}
	} else {
		_, err = store.UpdateRoom(ctx, s.store, s.retry, p.RoomID, func(r *model.Room) error {
			out, aErr := s.alloc.Allocate(input(r))
			if aErr != nil {
				return aErr
			}
			res = out
			r.Slots = append(r.Slots, res.Slots...)
			model.SortSlots(r.Slots)
			updated := make(map[string]model.RoomMember, len(res.Members))
			for _, rm := range res.Members {
				updated[rm.MemberID] = rm
			}
			for i := range r.Members {
				if rm, ok := updated[r.Members[i].MemberID]; ok {
					r.Members[i] = rm
				}
			}
			if s.cfg.ArmAfterAllocate && len(res.Slots) > 0 {
				r.ArmAutoConfirm(s.now().UTC(), s.autoMinutes(r))
			}
			return nil
		})
		if err != nil {
			return allocation.Report{}, fmt.Errorf("store allocation: %w", err)
		}
		byMember := map[string][]model.Slot{}
		for _, sl := range res.Slots {
			byMember[sl.MemberID] = append(byMember[sl.MemberID], sl)
		}
		for _, mr := range res.Report.Members {
			if err := s.carve(ctx, p.RoomID, mr.MemberID, byMember[mr.MemberID]); err != nil {
				return allocation.Report{}, err
			}
		}
	}

	report := res.Report
	hours := make([]float64, 0, len(report.Members))
	for _, mr := range report.Members {
		hours = append(hours, mr.AssignedHours.InexactFloat64())
	}
	if err := s.sink.RecordAllocation(metrics.AllocationEvent{
		RoomID:        p.RoomID,
		Mode:          string(report.Mode),
		DryRun:        p.DryRun,
		Slots:         len(res.Slots),
		AssignedHours: floats.Sum(hours),
		Unassigned:    len(report.Unassigned),
		Duration:      s.now().Sub(start),
		Time:          start,
	}); err != nil {
		s.log.Warnf("record allocation metric: %v", err)
	}
	if p.DryRun {
		return report, nil
	}

	s.publish(p.RoomID, events.AllocationCompleted, nil, map[string]any{
		"week_start": string(report.WeekStart),
		"slots":      len(res.Slots),
		"unassigned": len(report.Unassigned),
	})
	for _, adv := range report.Advisories {
		s.publish(p.RoomID, events.CarryOverAdvisory, []string{room.OwnerID, adv.MemberID}, map[string]any{
			"member_id": adv.MemberID,
			"message":   adv.Message,
		})
	}
	s.record(ctx, p.RoomID, p.ActorID, "schedule.allocate",
		fmt.Sprintf("allocated %d slots for week %s (%s), %d members short", len(res.Slots), report.WeekStart, report.Mode, len(report.Unassigned)))
	s.log.Infow("allocation stored", map[string]any{"room_id": p.RoomID, "slots": len(res.Slots), "week": string(report.WeekStart)})
	return report, nil
}

// Reanalyze publishes a dry-run allocation report for the current week.
// Concurrent triggers for the same room collapse into one trailing rerun;
// ran is false when the call only scheduled that rerun.
func (s *Service) Reanalyze(ctx context.Context, roomID string) (ran bool, err error) {
	return s.analysis.Do(roomID, func() error {
		report, err := s.Allocate(ctx, AllocateParams{RoomID: roomID, DryRun: true})
		if err != nil {
			return err
		}
		short := make([]string, 0, len(report.Unassigned))
		for _, u := range report.Unassigned {
			short = append(short, u.MemberID)
		}
		s.publish(roomID, events.AnalysisUpdated, nil, map[string]any{
			"week_start":    string(report.WeekStart),
			"short":         short,
			"mean_hours":    report.MeanHours,
			"std_dev_hours": report.StdDevHours,
		})
		return nil
	})
}
