package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/slotshare/core/allocation"
	"github.com/kilianp07/slotshare/core/model"
	"github.com/kilianp07/slotshare/core/travel"
	"github.com/kilianp07/slotshare/infra/logger"
	"github.com/kilianp07/slotshare/qa/fixtures"
)

var (
	fixturePath string

	simMember   string
	simDate     string
	simStart    string
	simDuration int
	simExclude  []string

	allocWeek  string
	allocToday string
	allocMode  string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Check a hypothetical slot against a fixture room",
	RunE:  runSimulate,
}

var allocateCmd = &cobra.Command{
	Use:   "allocate",
	Short: "Run the allocator on a fixture room and print the report",
	RunE:  runAllocate,
}

func init() {
	for _, c := range []*cobra.Command{simulateCmd, allocateCmd} {
		c.Flags().StringVarP(&fixturePath, "fixture", "f", "", "room fixture (YAML)")
		_ = c.MarkFlagRequired("fixture")
		rootCmd.AddCommand(c)
	}
	simulateCmd.Flags().StringVar(&simMember, "member", "", "candidate member id")
	simulateCmd.Flags().StringVar(&simDate, "date", "", "date (YYYY-MM-DD)")
	simulateCmd.Flags().StringVar(&simStart, "start", "", "start time (HH:MM)")
	simulateCmd.Flags().IntVar(&simDuration, "duration", 60, "class length in minutes")
	simulateCmd.Flags().StringSliceVar(&simExclude, "exclude", nil, "slot ids treated as vacated")
	for _, name := range []string{"member", "date", "start"} {
		_ = simulateCmd.MarkFlagRequired(name)
	}

	allocateCmd.Flags().StringVar(&allocWeek, "week", "", "any day of the target week (YYYY-MM-DD), defaults to today")
	allocateCmd.Flags().StringVar(&allocToday, "today", "", "current day for the from-today mode")
	allocateCmd.Flags().StringVar(&allocMode, "mode", "", "priority-first, first-come or from-today; defaults to the room's mode")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	f, err := fixtures.Load(fixturePath)
	if err != nil {
		return fmt.Errorf("load fixture: %w", err)
	}
	room, err := f.RoomModel()
	if err != nil {
		return err
	}
	date, err := model.ParseDate(simDate)
	if err != nil {
		return err
	}
	start, err := model.ParseMinute(simStart)
	if err != nil {
		return err
	}
	res, err := travel.New(cfg.Travel).Simulate(travel.Request{
		Room:        &room,
		Members:     f.MemberModels(),
		CandidateID: simMember,
		Date:        date,
		Start:       start,
		Duration:    simDuration,
		Exclude:     simExclude,
	})
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), res)
}

func runAllocate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	f, err := fixtures.Load(fixturePath)
	if err != nil {
		return fmt.Errorf("load fixture: %w", err)
	}
	room, err := f.RoomModel()
	if err != nil {
		return err
	}
	var mode model.AssignmentMode
	if allocMode != "" {
		if mode, err = model.ParseAssignmentMode(allocMode); err != nil {
			return err
		}
	}
	today := model.DateOf(time.Now())
	if allocToday != "" {
		today = model.Date(allocToday)
	}
	week := today
	if allocWeek != "" {
		week = model.Date(allocWeek)
	}
	sim := travel.New(cfg.Travel)
	res, err := allocation.New(cfg.Allocation, sim, logger.New("allocation")).Allocate(allocation.Input{
		Room:      &room,
		Members:   f.MemberModels(),
		WeekStart: week,
		Today:     today,
		Mode:      mode,
	})
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), res)
}
