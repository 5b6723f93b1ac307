package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	app "github.com/moodtrail/tracker/internal/app"
	"github.com/moodtrail/tracker/internal/app/domain/journal"
	"github.com/moodtrail/tracker/pkg/logger"
)

func TestSeedDemoIsIdempotent(t *testing.T) {
	ctx := context.Background()
	application, err := app.New(app.Stores{}, app.Options{BcryptCost: 4}, logger.NewDiscard())
	require.NoError(t, err)

	created, err := seedDemo(ctx, application)
	require.NoError(t, err)
	assert.Equal(t, 3, created)

	u, err := application.Users.Authenticate(ctx, demoEmail, demoPassword)
	require.NoError(t, err)

	entries, err := application.Journal.List(ctx, journal.Filter{UserID: u.ID})
	require.NoError(t, err)
	moods := map[string]int{}
	for _, e := range entries {
		moods[e.Mood] = e.EnergyLevel
	}
	assert.Equal(t, map[string]int{"productive": 8, "tired": 5, "happy": 9}, moods)

	created, err = seedDemo(ctx, application)
	require.NoError(t, err)
	assert.Zero(t, created)
}

func TestSeedCommandWithMemoryDriver(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "memory")
	t.Setenv("BCRYPT_COST", "4")
	t.Setenv("LOG_OUTPUT", "stderr")

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"seed"})
	require.NoError(t, cmd.ExecuteContext(context.Background()))
	assert.True(t, strings.HasPrefix(out.String(), "created demo@example.com"), out.String())
}

func TestMigrateRequiresArgsFreeSubcommand(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"migrate", "up", "extra"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	assert.Error(t, cmd.Execute())
}
