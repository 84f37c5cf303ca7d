package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/memexpert/memexpert/internal/domain"
)

func TestSearchLogRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := NewUsageRepository(openTestDB(t))

	query := "грустный кот"
	searchID, err := repo.CreateSearchLog(ctx, 100, &query)
	if err != nil {
		t.Fatalf("CreateSearchLog failed: %v", err)
	}
	if searchID == 0 {
		t.Fatal("Expected a non-zero search log ID")
	}

	if err := repo.SaveChosen(ctx, searchID, 7, domain.SourceQuery); err != nil {
		t.Fatalf("SaveChosen failed: %v", err)
	}
	if err := repo.SaveChosen(ctx, searchID+1000, 7, domain.SourceQuery); !errors.Is(err, ErrNotFound) {
		t.Errorf("SaveChosen for a missing log should return ErrNotFound, got %v", err)
	}
}

func TestRecentChosenIDs(t *testing.T) {
	ctx := context.Background()
	repo := NewUsageRepository(openTestDB(t))

	choose := func(userID int64, memeID int32) {
		t.Helper()
		searchID, err := repo.CreateSearchLog(ctx, userID, nil)
		if err != nil {
			t.Fatalf("CreateSearchLog failed: %v", err)
		}
		if err := repo.SaveChosen(ctx, searchID, memeID, domain.SourceQuery); err != nil {
			t.Fatalf("SaveChosen failed: %v", err)
		}
	}

	// User 1 picks 1, 2, 1, 3; user 2's history must not leak in.
	choose(1, 1)
	choose(1, 2)
	choose(2, 99)
	choose(1, 1)
	choose(1, 3)

	// An abandoned search with no chosen result is skipped.
	if _, err := repo.CreateSearchLog(ctx, 1, nil); err != nil {
		t.Fatalf("CreateSearchLog failed: %v", err)
	}

	ids, err := repo.RecentChosenIDs(ctx, 1, 10)
	if err != nil {
		t.Fatalf("RecentChosenIDs failed: %v", err)
	}
	want := []int32{3, 1, 2}
	if len(ids) != len(want) {
		t.Fatalf("Got %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("Got %v, want %v", ids, want)
		}
	}

	ids, err = repo.RecentChosenIDs(ctx, 1, 2)
	if err != nil {
		t.Fatalf("RecentChosenIDs failed: %v", err)
	}
	if len(ids) != 2 || ids[0] != 3 || ids[1] != 1 {
		t.Errorf("Limit not honored: got %v, want [3 1]", ids)
	}
}

func TestPopularIDs(t *testing.T) {
	ctx := context.Background()
	repo := NewUsageRepository(openTestDB(t))

	visit := func(memeID int32, isBot bool, at time.Time) {
		t.Helper()
		if err := repo.CreateWebVisit(ctx, &domain.WebVisit{
			MemeID:       memeID,
			UserAgent:    "test",
			IsBot:        isBot,
			CreationTime: at,
		}); err != nil {
			t.Fatalf("CreateWebVisit failed: %v", err)
		}
	}

	now := time.Now().UTC()
	old := now.Add(-48 * time.Hour)

	// Meme 1: three fresh visits. Memes 4 and 5: two each, tie broken by
	// ID. Meme 2: bot traffic only. Meme 3: visits outside the window.
	for i := 0; i < 3; i++ {
		visit(1, false, now)
	}
	for i := 0; i < 2; i++ {
		visit(4, false, now)
		visit(5, false, now)
	}
	for i := 0; i < 5; i++ {
		visit(2, true, now)
	}
	visit(3, false, old)

	ids, err := repo.PopularIDs(ctx, 24*time.Hour, 10)
	if err != nil {
		t.Fatalf("PopularIDs failed: %v", err)
	}
	want := []int32{1, 4, 5}
	if len(ids) != len(want) {
		t.Fatalf("Got %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("Got %v, want %v", ids, want)
		}
	}

	ids, err = repo.PopularIDs(ctx, 24*time.Hour, 1)
	if err != nil {
		t.Fatalf("PopularIDs failed: %v", err)
	}
	if len(ids) != 1 || ids[0] != 1 {
		t.Errorf("Limit not honored: got %v, want [1]", ids)
	}
}
