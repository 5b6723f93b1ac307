package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	app "github.com/moodtrail/tracker/internal/app"
	"github.com/moodtrail/tracker/internal/app/runtime"
	"github.com/moodtrail/tracker/internal/app/services/journal"
	"github.com/moodtrail/tracker/internal/app/services/users"
	apperrors "github.com/moodtrail/tracker/internal/errors"
)

const (
	demoName     = "Demo User"
	demoEmail    = "demo@example.com"
	demoPassword = "password123"
)

type demoEntry struct {
	content string
	mood    string
	energy  int
	tags    []string
}

var demoEntries = []demoEntry{
	{"Finished the quarterly report ahead of schedule.", "productive", 8, []string{"work", "focus"}},
	{"Slept badly, dragged through the afternoon.", "tired", 5, []string{"sleep"}},
	{"Long walk by the river with friends.", "happy", 9, []string{"outdoors", "friends"}},
}

func newSeedCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Create the demo user with sample journal entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			cfg.Scheduler.Enabled = false

			application, err := runtime.NewApplication(cmd.Context(), cfg, runtime.NewLogger(cfg.Logging))
			if err != nil {
				return fmt.Errorf("build application: %w", err)
			}
			defer application.Shutdown(context.Background())

			created, err := seedDemo(cmd.Context(), application.Core())
			if err != nil {
				return err
			}
			if created == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "%s already exists; nothing to do\n", demoEmail)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s (password %q) with %d journal entries\n", demoEmail, demoPassword, created)
			return nil
		},
	}
}

// seedDemo registers the demo account and its entries. It returns the number
// of entries created, zero when the account already existed.
func seedDemo(ctx context.Context, application *app.Application) (int, error) {
	u, err := application.Users.Register(ctx, users.RegisterInput{
		Name:     demoName,
		Email:    demoEmail,
		Password: demoPassword,
	})
	if apperrors.IsCode(err, apperrors.CodeAlreadyExists) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("register demo user: %w", err)
	}

	for i, e := range demoEntries {
		content, mood, energy := e.content, e.mood, e.energy
		if _, err := application.Journal.Create(ctx, u.ID, journal.Input{
			Content:     &content,
			Mood:        &mood,
			EnergyLevel: &energy,
			Tags:        e.tags,
			HasTags:     true,
		}); err != nil {
			return i, errors.Join(fmt.Errorf("create demo entry %d", i+1), err)
		}
	}
	return len(demoEntries), nil
}
