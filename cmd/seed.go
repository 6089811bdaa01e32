package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kilianp07/slotshare/infra/store/sqlite"
	"github.com/kilianp07/slotshare/qa/fixtures"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Write a fixture room and its members into the sqlite store",
	RunE:  runSeed,
}

func init() {
	seedCmd.Flags().StringVarP(&fixturePath, "fixture", "f", "", "room fixture (YAML)")
	_ = seedCmd.MarkFlagRequired("fixture")
	rootCmd.AddCommand(seedCmd)
}

func runSeed(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Store.Backend != "sqlite" {
		return fmt.Errorf("seed needs the sqlite store, got %s", cfg.Store.Backend)
	}
	f, err := fixtures.Load(fixturePath)
	if err != nil {
		return fmt.Errorf("load fixture: %w", err)
	}
	room, err := f.RoomModel()
	if err != nil {
		return err
	}
	st, err := sqlite.Open(cfg.Store.DSN)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()
	for _, m := range f.MemberModels() {
		if _, err := st.SaveMember(ctx, m); err != nil {
			return fmt.Errorf("save member %s: %w", m.ID, err)
		}
	}
	if _, err := st.SaveRoom(ctx, room); err != nil {
		return fmt.Errorf("save room %s: %w", room.ID, err)
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "seeded room %s with %d members into %s\n", room.ID, len(f.Members), cfg.Store.DSN)
	return err
}
