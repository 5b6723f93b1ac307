package journal

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/moodtrail/tracker/internal/app/domain/journal"
	"github.com/moodtrail/tracker/internal/app/domain/user"
	"github.com/moodtrail/tracker/internal/app/storage/memory"
	apperrors "github.com/moodtrail/tracker/internal/errors"
	"github.com/moodtrail/tracker/pkg/logger"
)

type countingInvalidator map[string]int

func (c countingInvalidator) Invalidate(_ context.Context, userID string) { c[userID]++ }

func setup(t *testing.T) (*Service, user.User, countingInvalidator) {
	t.Helper()
	store := memory.New()
	u, err := store.CreateUser(context.Background(), user.User{Name: "Dana", Email: "dana@example.com"})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	svc := New(store, store, logger.NewDiscard())
	inv := countingInvalidator{}
	svc.WithInvalidator(inv)
	return svc, u, inv
}

func mustParse(t *testing.T, body string) Input {
	t.Helper()
	in, err := ParseInput([]byte(body))
	if err != nil {
		t.Fatalf("parse %s: %v", body, err)
	}
	return in
}

func TestParseInputIsLenient(t *testing.T) {
	in := mustParse(t, `{"content":"c","mood":"Happy","tags":" work, ,focus ","energyLevel":"7","activities":["run"," "],"extra":true}`)
	if diff := cmp.Diff([]string{"work", "focus"}, in.Tags); diff != "" {
		t.Fatalf("tags (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"run"}, in.Activities); diff != "" {
		t.Fatalf("activities (-want +got):\n%s", diff)
	}
	if in.EnergyLevel == nil || *in.EnergyLevel != 7 {
		t.Fatalf("energy not parsed")
	}

	in = mustParse(t, `{"tags":["a","b"],"energyLevel":3}`)
	if !in.HasTags || len(in.Tags) != 2 || *in.EnergyLevel != 3 {
		t.Fatalf("array form not parsed: %+v", in)
	}

	in = mustParse(t, `{"tags":""}`)
	if in.HasTags {
		t.Fatalf("empty tag string should count as absent")
	}

	for _, body := range []string{`not json`, `[1,2]`, `{"energyLevel":"high"}`, `{"energyLevel":2.5}`} {
		if _, err := ParseInput([]byte(body)); !apperrors.IsCode(err, apperrors.CodeInvalidInput) {
			t.Fatalf("expected invalid input for %s, got %v", body, err)
		}
	}
}

func TestCreateDefaultsAndValidation(t *testing.T) {
	svc, u, inv := setup(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, u.ID, mustParse(t, `{"content":"  "}`))
	if se := apperrors.GetServiceError(err); se == nil || se.Message != "Content and mood are required" {
		t.Fatalf("expected required error, got %v", err)
	}
	_, err = svc.Create(ctx, u.ID, mustParse(t, `{"content":"c","mood":"ok","energyLevel":11}`))
	if !apperrors.IsCode(err, apperrors.CodeInvalidInput) {
		t.Fatalf("expected energy range error, got %v", err)
	}
	_, err = svc.Create(ctx, "ghost", mustParse(t, `{"content":"c","mood":"ok"}`))
	if !apperrors.IsCode(err, apperrors.CodeNotFound) {
		t.Fatalf("expected unknown user error, got %v", err)
	}

	e, err := svc.Create(ctx, u.ID, mustParse(t, `{"content":" Slept well ","mood":" Happy "}`))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if e.EnergyLevel != journal.DefaultEnergyLevel || e.Mood != "happy" || e.Content != "Slept well" {
		t.Fatalf("defaults not applied: %+v", e)
	}
	if e.Tags == nil || e.Activities == nil {
		t.Fatalf("lists should be empty, not nil")
	}
	if e.User == nil || e.User.Email != "dana@example.com" {
		t.Fatalf("author missing: %+v", e.User)
	}
	if inv[u.ID] != 1 {
		t.Fatalf("dashboard not invalidated on create")
	}
}

func TestUpdateOnlyTouchesPresentFields(t *testing.T) {
	svc, u, inv := setup(t)
	ctx := context.Background()

	e, err := svc.Create(ctx, u.ID, mustParse(t, `{"title":"Day","content":"c","mood":"tired","energyLevel":4,"tags":"a,b"}`))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	updated, err := svc.Update(ctx, e.ID, mustParse(t, `{"title":"","mood":"Rested","energyLevel":9}`))
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Title != "Day" || updated.Content != "c" {
		t.Fatalf("empty or absent fields changed: %+v", updated)
	}
	if updated.Mood != "rested" || updated.EnergyLevel != 9 {
		t.Fatalf("present fields not applied: %+v", updated)
	}
	if diff := cmp.Diff([]string{"a", "b"}, updated.Tags); diff != "" {
		t.Fatalf("tags changed (-want +got):\n%s", diff)
	}
	if !updated.UpdatedAt.After(e.UpdatedAt) && !updated.UpdatedAt.Equal(e.UpdatedAt) {
		t.Fatalf("updatedAt went backwards")
	}

	if _, err := svc.Update(ctx, "missing", Input{}); !apperrors.IsCode(err, apperrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if inv[u.ID] != 2 {
		t.Fatalf("expected 2 invalidations, got %d", inv[u.ID])
	}
}

func TestListFiltersAndDelete(t *testing.T) {
	svc, u, _ := setup(t)
	ctx := context.Background()

	bodies := []string{
		`{"content":"Morning run by the river","mood":"productive","tags":"fitness"}`,
		`{"content":"Long meeting","mood":"tired","tags":"work"}`,
		`{"content":"Dinner with friends","mood":"happy","tags":["social","food"]}`,
	}
	for _, b := range bodies {
		if _, err := svc.Create(ctx, u.ID, mustParse(t, b)); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	cases := []struct {
		name   string
		filter journal.Filter
		want   int
	}{
		{"all", journal.Filter{UserID: u.ID}, 3},
		{"mood all", journal.Filter{UserID: u.ID, Mood: "all"}, 3},
		{"search content", journal.Filter{UserID: u.ID, Search: "RIVER"}, 1},
		{"search tag", journal.Filter{UserID: u.ID, Search: "soc"}, 1},
		{"mood", journal.Filter{UserID: u.ID, Mood: "tired"}, 1},
		{"tag", journal.Filter{UserID: u.ID, Tag: "Work"}, 1},
		{"limit", journal.Filter{UserID: u.ID, Limit: 2}, 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := svc.List(ctx, tc.filter)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(got) != tc.want {
				t.Fatalf("got %d entries, want %d", len(got), tc.want)
			}
		})
	}

	if _, err := svc.List(ctx, journal.Filter{Date: "2026/01/01"}); !apperrors.IsCode(err, apperrors.CodeInvalidInput) {
		t.Fatalf("expected bad date error, got %v", err)
	}

	all, _ := svc.List(ctx, journal.Filter{UserID: u.ID})
	if all[0].Content != "Dinner with friends" {
		t.Fatalf("expected newest first, got %q", all[0].Content)
	}
	if err := svc.Delete(ctx, all[0].ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := svc.Delete(ctx, all[0].ID); !apperrors.IsCode(err, apperrors.CodeNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}
