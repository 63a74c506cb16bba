package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/elsanchez/resfetch/internal/domain"
)

func TestDatabase_CreateAndGetSubmission(t *testing.T) {
	// Crear DB temporal
	tmpDir := t.TempDir()
	db, err := NewDatabase(tmpDir)
	if err != nil {
		t.Fatalf("failed to create database: %v", err)
	}
	defer db.Close()

	ctx := context.Background()

	sub := &domain.Submission{
		RunID: "run-1",
		Target: domain.TargetSpec{
			ID:      "42",
			BaseURL: "https://example.com",
			Params:  map[string]string{"file_id": "42"},
		},
	}

	id, err := db.SubmissionRepo.Create(ctx, sub)
	if err != nil {
		t.Fatalf("failed to create submission: %v", err)
	}

	if id == 0 {
		t.Fatal("expected non-zero ID")
	}

	retrieved, err := db.SubmissionRepo.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("failed to get submission: %v", err)
	}

	if retrieved.Target.BaseURL != "https://example.com" {
		t.Errorf("expected base URL https://example.com, got %s", retrieved.Target.BaseURL)
	}

	if retrieved.Target.Params["file_id"] != "42" {
		t.Errorf("expected file_id 42, got %q", retrieved.Target.Params["file_id"])
	}

	if retrieved.Status != domain.QueuePending {
		t.Errorf("expected status pending, got %s", retrieved.Status)
	}

	if retrieved.Report != nil {
		t.Error("pending submission should have no report")
	}

	t.Logf("✅ Submission created with ID: %d", id)
}

func TestDatabase_FinishStoresReport(t *testing.T) {
	tmpDir := t.TempDir()
	db, err := NewDatabase(tmpDir)
	if err != nil {
		t.Fatalf("failed to create database: %v", err)
	}
	defer db.Close()

	ctx := context.Background()

	id, err := db.SubmissionRepo.Create(ctx, &domain.Submission{
		RunID:  "run-2",
		Target: domain.TargetSpec{ID: "7", BaseURL: "https://example.com"},
	})
	if err != nil {
		t.Fatalf("failed to create submission: %v", err)
	}

	if err := db.SubmissionRepo.UpdateStatus(ctx, id, domain.QueueRunning); err != nil {
		t.Fatalf("failed to update status: %v", err)
	}

	pending, err := db.SubmissionRepo.GetPending(ctx)
	if err != nil {
		t.Fatalf("failed to get pending: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("expected no pending submissions, got %d", len(pending))
	}

	report := &domain.TaskResult{
		Target:     domain.TargetSpec{ID: "7"},
		Outcome:    domain.OutcomeComplete,
		Download:   domain.DownloadResult{Success: true, Status: domain.JobComplete, FinalPath: "/tmp/out/7.mp3", BytesWritten: 5000},
		StartedAt:  time.Now().Add(-time.Second),
		FinishedAt: time.Now(),
	}
	if err := db.SubmissionRepo.Finish(ctx, id, report); err != nil {
		t.Fatalf("failed to finish submission: %v", err)
	}

	got, err := db.SubmissionRepo.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("failed to get submission: %v", err)
	}

	if got.Status != domain.QueueFinished {
		t.Errorf("expected status finished, got %s", got.Status)
	}
	if got.Outcome != domain.OutcomeComplete {
		t.Errorf("expected outcome complete, got %s", got.Outcome)
	}
	if got.OutputPath != "/tmp/out/7.mp3" {
		t.Errorf("expected output path /tmp/out/7.mp3, got %s", got.OutputPath)
	}
	if got.CompletedAt == nil {
		t.Error("expected completed_at to be set")
	}
	if got.Report == nil || got.Report.Download.BytesWritten != 5000 {
		t.Errorf("report was not round-tripped: %+v", got.Report)
	}

	counts, err := db.SubmissionRepo.CountByOutcome(ctx)
	if err != nil {
		t.Fatalf("failed to count by outcome: %v", err)
	}
	if counts[domain.OutcomeComplete] != 1 {
		t.Errorf("expected 1 complete, got %d", counts[domain.OutcomeComplete])
	}

	t.Log("✅ Report stored and counted")
}

func TestDatabase_GetByRunKeepsOrder(t *testing.T) {
	tmpDir := t.TempDir()
	db, err := NewDatabase(tmpDir)
	if err != nil {
		t.Fatalf("failed to create database: %v", err)
	}
	defer db.Close()

	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if _, err := db.SubmissionRepo.Create(ctx, &domain.Submission{
			RunID:  "run-3",
			Target: domain.TargetSpec{ID: id, BaseURL: "https://example.com"},
		}); err != nil {
			t.Fatalf("failed to create submission %s: %v", id, err)
		}
	}
	if _, err := db.SubmissionRepo.Create(ctx, &domain.Submission{
		RunID:  "other",
		Target: domain.TargetSpec{ID: "z", BaseURL: "https://example.com"},
	}); err != nil {
		t.Fatalf("failed to create submission: %v", err)
	}

	subs, err := db.SubmissionRepo.GetByRun(ctx, "run-3")
	if err != nil {
		t.Fatalf("failed to get by run: %v", err)
	}

	if len(subs) != 3 {
		t.Fatalf("expected 3 submissions, got %d", len(subs))
	}
	for i, want := range []string{"a", "b", "c"} {
		if subs[i].Target.ID != want {
			t.Errorf("position %d: expected %s, got %s", i, want, subs[i].Target.ID)
		}
	}

	total, err := db.SubmissionRepo.CountTotal(ctx)
	if err != nil {
		t.Fatalf("failed to count: %v", err)
	}
	if total != 4 {
		t.Errorf("expected 4 submissions, got %d", total)
	}

	t.Log("✅ Run grouping works correctly")
}

func TestDatabase_MigrationsApplied(t *testing.T) {
	// Crear DB temporal
	tmpDir := t.TempDir()
	db, err := NewDatabase(tmpDir)
	if err != nil {
		t.Fatalf("failed to create database: %v", err)
	}
	defer db.Close()

	// Verificar que existe el archivo de base de datos
	dbPath := filepath.Join(tmpDir, "resfetch.db")
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Fatal("database file was not created")
	}

	ctx := context.Background()

	for _, table := range []string{"submissions", "accounts"} {
		var count int
		err = db.DB.GetContext(ctx, &count, "SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table)
		if err != nil {
			t.Fatalf("failed to query tables: %v", err)
		}

		if count != 1 {
			t.Errorf("%s table was not created", table)
		}
	}

	t.Log("✅ Migrations applied successfully")
}

func TestDatabase_AccountActiveSwitch(t *testing.T) {
	tmpDir := t.TempDir()
	db, err := NewDatabase(tmpDir)
	if err != nil {
		t.Fatalf("failed to create database: %v", err)
	}
	defer db.Close()

	ctx := context.Background()

	// Dos cuentas para el mismo dominio
	acc1 := &domain.Account{
		Domain:     "example.com",
		Name:       "personal",
		CookiePath: "/path/to/cookies1.txt",
		IsActive:   true,
	}

	id1, err := db.AccountRepo.Create(ctx, acc1)
	if err != nil {
		t.Fatalf("failed to create account 1: %v", err)
	}

	acc2 := &domain.Account{
		Domain:     "example.com",
		Name:       "work",
		CookiePath: "/path/to/cookies2.txt",
		IsActive:   false,
	}

	id2, err := db.AccountRepo.Create(ctx, acc2)
	if err != nil {
		t.Fatalf("failed to create account 2: %v", err)
	}

	active, err := db.AccountRepo.GetActive(ctx, "example.com")
	if err != nil {
		t.Fatalf("failed to get active account: %v", err)
	}

	if active.ID != id1 {
		t.Errorf("expected account %d to be active, got %d", id1, active.ID)
	}

	if err := db.AccountRepo.SetActive(ctx, "example.com", "work"); err != nil {
		t.Fatalf("failed to set active account: %v", err)
	}

	active, err = db.AccountRepo.GetActive(ctx, "example.com")
	if err != nil {
		t.Fatalf("failed to get active account: %v", err)
	}

	if active.ID != id2 {
		t.Errorf("expected account %d to be active, got %d", id2, active.ID)
	}

	acc1Updated, err := db.AccountRepo.GetByID(ctx, id1)
	if err != nil {
		t.Fatalf("failed to get account 1: %v", err)
	}

	if acc1Updated.IsActive {
		t.Error("account 1 should be inactive after switch")
	}

	if err := db.AccountRepo.SetActive(ctx, "example.com", "missing"); err == nil {
		t.Error("expected error activating unknown account")
	}

	t.Log("✅ Account switching works correctly")
}

func TestDatabase_AccountValidation(t *testing.T) {
	tmpDir := t.TempDir()
	db, err := NewDatabase(tmpDir)
	if err != nil {
		t.Fatalf("failed to create database: %v", err)
	}
	defer db.Close()

	ctx := context.Background()

	id, err := db.AccountRepo.Create(ctx, &domain.Account{
		Domain:     "example.com",
		Name:       "main",
		CookiePath: "/path/to/cookies.txt",
		IsActive:   true,
	})
	if err != nil {
		t.Fatalf("failed to create account: %v", err)
	}

	acc, err := db.AccountRepo.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("failed to get account: %v", err)
	}
	if acc.ValidationStatus != domain.ValidationStatusUnknown {
		t.Errorf("expected unknown validation status, got %s", acc.ValidationStatus)
	}

	msg := "cookies expired"
	if err := db.AccountRepo.UpdateValidation(ctx, id, domain.ValidationStatusExpired, &msg); err != nil {
		t.Fatalf("failed to update validation: %v", err)
	}

	acc, err = db.AccountRepo.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("failed to get account: %v", err)
	}
	if acc.ValidationStatus != domain.ValidationStatusExpired {
		t.Errorf("expected expired, got %s", acc.ValidationStatus)
	}
	if acc.ValidationError == nil || *acc.ValidationError != msg {
		t.Errorf("expected validation error %q, got %v", msg, acc.ValidationError)
	}

	domains, err := db.AccountRepo.ListDomains(ctx)
	if err != nil {
		t.Fatalf("failed to list domains: %v", err)
	}
	if len(domains) != 1 || domains[0] != "example.com" {
		t.Errorf("unexpected domains: %v", domains)
	}

	none, err := db.AccountRepo.GetActive(ctx, "other.org")
	if err != nil {
		t.Fatalf("failed to get active account: %v", err)
	}
	if none != nil {
		t.Error("expected no active account for other.org")
	}

	t.Log("✅ Validation status persisted")
}
