//go:build integration

package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/cloodei/apt-attendance/internal/config"
	"github.com/cloodei/apt-attendance/internal/gallery"
	"github.com/cloodei/apt-attendance/internal/store"
)

func setupTestContainer(t *testing.T) (*Pool, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "pgvector/pgvector:pg16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("Docker not available or container failed to start, skipping integration test: %v", err)
		return nil, func() {}
	}
	if container == nil {
		t.Skip("Docker not available, skipping integration test")
		return nil, func() {}
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	dbURL := fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port())

	cfg := &config.DatabaseConfig{
		URL:          dbURL,
		MaxOpenConns: 5,
		MaxIdleConns: 2,
	}

	pool, err := NewPool(cfg)
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("Failed to create pool: %v", err)
	}

	if err := pool.Migrate(ctx); err != nil {
		pool.Close()
		container.Terminate(ctx)
		t.Fatalf("Failed to run migrations: %v", err)
	}

	cleanup := func() {
		pool.Close()
		container.Terminate(ctx)
	}

	return pool, cleanup
}

func TestSessionRepository(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	repo := NewSessionRepository(pool)

	t.Run("CreateAndGet", func(t *testing.T) {
		err := repo.CreateSession(ctx, &store.Session{
			ID:        "s-1",
			ClassName: "CS101",
			StartedAt: time.Now().UTC(),
			Roster:    map[int64]string{1: "Alice", 2: "Bob"},
		})
		if err != nil {
			t.Fatalf("Failed to create session: %v", err)
		}

		got, err := repo.GetSession(ctx, "s-1")
		if err != nil {
			t.Fatalf("Failed to get session: %v", err)
		}
		if got.ClassName != "CS101" {
			t.Errorf("Expected class CS101, got %q", got.ClassName)
		}
		if !got.Active() {
			t.Error("Expected session to be active")
		}
		if len(got.Roster) != 2 || got.Roster[1] != "Alice" {
			t.Errorf("Roster did not round-trip: %+v", got.Roster)
		}
	})

	t.Run("GetMissing", func(t *testing.T) {
		if _, err := repo.GetSession(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})

	t.Run("End", func(t *testing.T) {
		if err := repo.EndSession(ctx, "s-1"); err != nil {
			t.Fatalf("Failed to end session: %v", err)
		}

		got, err := repo.GetSession(ctx, "s-1")
		if err != nil {
			t.Fatalf("Failed to get session: %v", err)
		}
		if got.Active() {
			t.Error("Expected ended session to be inactive")
		}

		first := *got.EndedAt
		time.Sleep(10 * time.Millisecond)
		if err := repo.EndSession(ctx, "s-1"); err != nil {
			t.Fatalf("Failed to end session twice: %v", err)
		}
		got, _ = repo.GetSession(ctx, "s-1")
		if !got.EndedAt.Equal(first) {
			t.Error("Expected end time to be stable across repeated ends")
		}
	})

	t.Run("EndMissing", func(t *testing.T) {
		if err := repo.EndSession(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})

	t.Run("List", func(t *testing.T) {
		sessions, err := repo.ListSessions(ctx)
		if err != nil {
			t.Fatalf("Failed to list sessions: %v", err)
		}
		if len(sessions) != 1 {
			t.Errorf("Expected 1 session, got %d", len(sessions))
		}
	})
}

func TestRecordRepository(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	sessions := NewSessionRepository(pool)
	records := NewRecordRepository(pool)

	err := sessions.CreateSession(ctx, &store.Session{
		ID:        "s-2",
		StartedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	in := time.Now().UTC().Truncate(time.Microsecond)
	avg := 0.87
	batch := []store.AttendanceRecord{
		{StudentID: 2, StudentName: "Bob", InTime: in},
		{StudentID: 1, StudentName: "Alice", InTime: in, AvgConfidence: &avg},
	}

	t.Run("SaveAndList", func(t *testing.T) {
		if err := records.SaveRecords(ctx, "s-2", batch); err != nil {
			t.Fatalf("Failed to save records: %v", err)
		}

		got, err := records.ListRecords(ctx, "s-2")
		if err != nil {
			t.Fatalf("Failed to list records: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("Expected 2 records, got %d", len(got))
		}
		if got[0].StudentID != 1 || got[1].StudentID != 2 {
			t.Errorf("Expected records ordered by student, got %+v", got)
		}
		if got[0].AvgConfidence == nil || *got[0].AvgConfidence != avg {
			t.Errorf("Average confidence did not round-trip: %+v", got[0])
		}
		if got[0].OutTime != nil {
			t.Errorf("Expected nil out time, got %v", got[0].OutTime)
		}
	})

	t.Run("RepeatedSaveOverwrites", func(t *testing.T) {
		out := in.Add(45 * time.Minute)
		batch[0].OutTime = &out
		if err := records.SaveRecords(ctx, "s-2", batch); err != nil {
			t.Fatalf("Failed to re-save records: %v", err)
		}

		got, err := records.ListRecords(ctx, "s-2")
		if err != nil {
			t.Fatalf("Failed to list records: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("Expected repeated save to overwrite, got %d records", len(got))
		}
		if got[1].OutTime == nil {
			t.Error("Expected out time after overwrite")
		}
	})
}

func TestPgGalleryResolver(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	resolver := gallery.NewPgResolver(pool.DB(), 0.65)

	ref := make([]float32, 512)
	ref[0] = 1
	if err := resolver.Enroll(ctx, 42, ref); err != nil {
		t.Fatalf("Failed to enroll embedding: %v", err)
	}

	t.Run("ExactMatch", func(t *testing.T) {
		match, err := resolver.Resolve(ctx, ref)
		if err != nil {
			t.Fatalf("Failed to resolve: %v", err)
		}
		if match.StudentID != 42 {
			t.Errorf("Expected student 42, got %d", match.StudentID)
		}
		if match.Similarity < 0.999 {
			t.Errorf("Expected similarity 1.0 for an exact match, got %v", match.Similarity)
		}
	})

	t.Run("FarQueryIsUnknown", func(t *testing.T) {
		far := make([]float32, 512)
		for i := range far {
			far[i] = -3
		}
		match, err := resolver.Resolve(ctx, far)
		if err != nil {
			t.Fatalf("Failed to resolve: %v", err)
		}
		if match.Known() {
			t.Errorf("Expected Unknown for a distant query, got %+v", match)
		}
	})
}
