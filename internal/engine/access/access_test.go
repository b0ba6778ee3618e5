package access_test

import (
	"context"
	"errors"
	"testing"

	"brewboard/internal/db"
	"brewboard/internal/domain"
	"brewboard/internal/engine/access"
	"brewboard/internal/migrate"
	"brewboard/internal/repo"
)

func newService(t *testing.T) access.Service {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return access.Service{DB: conn}
}

func assign(t *testing.T, svc access.Service, actorID string, role domain.Role) {
	t.Helper()
	tx, err := svc.DB.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := svc.AssignRole(context.Background(), tx, actorID, role); err != nil {
		tx.Rollback()
		t.Fatalf("assign: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

func TestUnknownIdentityIsGuest(t *testing.T) {
	svc := newService(t)
	role, err := svc.RoleOf(context.Background(), "nobody")
	if err != nil || role != domain.RoleGuest {
		t.Fatalf("expected guest, got %s (%v)", role, err)
	}
	role, err = svc.RoleOf(context.Background(), "")
	if err != nil || role != domain.RoleGuest {
		t.Fatalf("empty identity should be guest, got %s (%v)", role, err)
	}
}

func TestAssignRoleOverwrites(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	assign(t, svc, "alice", domain.RoleUser)
	assign(t, svc, "alice", domain.RoleAdmin)
	role, err := svc.RoleOf(ctx, "alice")
	if err != nil || role != domain.RoleAdmin {
		t.Fatalf("expected admin after reassignment, got %s (%v)", role, err)
	}
	assign(t, svc, "alice", domain.RoleGuest)
	ok, err := svc.IsAdmin(ctx, "alice")
	if err != nil || ok {
		t.Fatalf("demotion did not stick: %v %v", ok, err)
	}
}

func TestServiceSharesRoleStore(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	assign(t, svc, "alice", domain.RoleAdmin)
	assign(t, svc, "bob", domain.RoleUser)

	store := repo.Repo{DB: svc.DB}
	role, err := store.GetRole(ctx, "alice")
	if err != nil || role != domain.RoleAdmin {
		t.Fatalf("assignment not visible in the store, got %s (%v)", role, err)
	}
	roles, err := store.ListRoles(ctx)
	if err != nil || len(roles) != 2 || roles["bob"] != domain.RoleUser {
		t.Fatalf("unexpected store contents: %v (%v)", roles, err)
	}

	tx, err := svc.DB.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Rollback()
	if err := store.UpsertRole(ctx, tx, "carol", domain.RoleUser); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	role, err = svc.RoleOfTx(ctx, tx, "carol")
	if err != nil || role != domain.RoleUser {
		t.Fatalf("store write not visible through the service, got %s (%v)", role, err)
	}
}

func TestRequireAdmin(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	assign(t, svc, "boss", domain.RoleAdmin)
	assign(t, svc, "bob", domain.RoleUser)

	if err := svc.RequireAdmin(ctx, "boss", "test op"); err != nil {
		t.Fatalf("admin rejected: %v", err)
	}
	var unauthorized access.UnauthorizedError
	if err := svc.RequireAdmin(ctx, "bob", "test op"); !errors.As(err, &unauthorized) {
		t.Fatalf("expected UnauthorizedError for user, got %v", err)
	}
	if err := svc.RequireAdmin(ctx, "stranger", "test op"); !errors.As(err, &unauthorized) {
		t.Fatalf("expected UnauthorizedError for guest, got %v", err)
	}
}
