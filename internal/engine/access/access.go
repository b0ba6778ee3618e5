package access

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"brewboard/internal/domain"
	"brewboard/internal/repo"
)

// UnauthorizedError indicates the caller's role does not allow the operation.
type UnauthorizedError struct {
	Operation string
}

func (e UnauthorizedError) Error() string {
	return fmt.Sprintf("admin role required for %s", e.Operation)
}

// UnauthenticatedError indicates the caller has no registered profile.
type UnauthenticatedError struct{}

func (e UnauthenticatedError) Error() string {
	return "caller is not registered"
}

// Service answers role questions backed by the role store. Identities with no
// explicit assignment are guests.
type Service struct {
	DB *sql.DB
}

func (s Service) store() repo.Repo {
	return repo.Repo{DB: s.DB}
}

func (s Service) RoleOf(ctx context.Context, actorID string) (domain.Role, error) {
	if actorID == "" {
		return domain.RoleGuest, nil
	}
	role, err := s.store().GetRole(ctx, actorID)
	if err != nil {
		return "", err
	}
	return checkRole(role, actorID)
}

func (s Service) RoleOfTx(ctx context.Context, tx *sql.Tx, actorID string) (domain.Role, error) {
	if actorID == "" {
		return domain.RoleGuest, nil
	}
	role, err := s.store().GetRoleTx(ctx, tx, actorID)
	if err != nil {
		return "", err
	}
	return checkRole(role, actorID)
}

func checkRole(role domain.Role, actorID string) (domain.Role, error) {
	if !domain.ValidRole(role) {
		return "", fmt.Errorf("corrupt role %q for %s", role, actorID)
	}
	return role, nil
}

func (s Service) IsAdmin(ctx context.Context, actorID string) (bool, error) {
	role, err := s.RoleOf(ctx, actorID)
	if err != nil {
		return false, err
	}
	return role == domain.RoleAdmin, nil
}

// RequireAdmin returns UnauthorizedError when the caller is not an admin.
func (s Service) RequireAdmin(ctx context.Context, actorID, operation string) error {
	role, err := s.RoleOf(ctx, actorID)
	if err != nil {
		return err
	}
	if role != domain.RoleAdmin {
		return UnauthorizedError{Operation: operation}
	}
	return nil
}

func (s Service) RequireAdminTx(ctx context.Context, tx *sql.Tx, actorID, operation string) error {
	role, err := s.RoleOfTx(ctx, tx, actorID)
	if err != nil {
		return err
	}
	if role != domain.RoleAdmin {
		return UnauthorizedError{Operation: operation}
	}
	return nil
}

// AssignRole overwrites the caller-visible role for an identity inside the
// caller's transaction. Role assignments and profiles are independent: a
// profile is not required to hold a role.
func (s Service) AssignRole(ctx context.Context, tx *sql.Tx, actorID string, role domain.Role) error {
	if actorID == "" {
		return errors.New("actor_id required")
	}
	if !domain.ValidRole(role) {
		return fmt.Errorf("unknown role %q", role)
	}
	return s.store().UpsertRole(ctx, tx, actorID, role)
}
