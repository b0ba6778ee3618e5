package engine_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"brewboard/internal/config"
	"brewboard/internal/db"
	"brewboard/internal/domain"
	"brewboard/internal/engine"
	"brewboard/internal/engine/access"
	"brewboard/internal/migrate"
	"brewboard/internal/repo"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, config.Default())
	eng.Now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	ctx := context.Background()
	if err := eng.EnsureAdmin(ctx, "boss"); err != nil {
		t.Fatalf("bootstrap admin: %v", err)
	}
	return testEnv{Engine: eng, Ctx: ctx}
}

func (env testEnv) register(t *testing.T, actorID, username string) domain.Profile {
	t.Helper()
	p, err := env.Engine.RegisterUser(env.Ctx, actorID, username)
	if err != nil {
		t.Fatalf("register %s: %v", actorID, err)
	}
	return p
}

func (env testEnv) addTask(t *testing.T, title string, reward uint64) domain.Task {
	t.Helper()
	task, err := env.Engine.AddTask(env.Ctx, "boss", engine.AddTaskOptions{
		Title:       title,
		Description: "see title",
		Reward:      reward,
		Category:    domain.CategoryCoffee,
	})
	if err != nil {
		t.Fatalf("add task %q: %v", title, err)
	}
	return task
}

func TestRegisterCreatesProfile(t *testing.T) {
	env := newTestEnv(t)
	p := env.register(t, "alice", "Alice")
	if p.Username != "Alice" || p.Balance != 0 {
		t.Fatalf("unexpected profile: %+v", p)
	}
	role, err := env.Engine.RoleOf(env.Ctx, "alice")
	if err != nil || role != domain.RoleUser {
		t.Fatalf("expected user role after register, got %s (%v)", role, err)
	}
	_, err = env.Engine.RegisterUser(env.Ctx, "alice", "Alice2")
	if !errors.Is(err, engine.ErrAlreadyRegistered) {
		t.Fatalf("expected ErrAlreadyRegistered, got %v", err)
	}
}

func TestRegisterKeepsAdminRole(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "boss", "The Boss")
	role, err := env.Engine.RoleOf(env.Ctx, "boss")
	if err != nil || role != domain.RoleAdmin {
		t.Fatalf("register must not demote an admin, got %s (%v)", role, err)
	}
}

func TestUsernameValidation(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.RegisterUser(env.Ctx, "a1", "   "); !errors.Is(err, engine.ErrInvalidInput) {
		t.Fatalf("blank username: %v", err)
	}
	long := strings.Repeat("x", 33)
	if _, err := env.Engine.RegisterUser(env.Ctx, "a2", long); !errors.Is(err, engine.ErrInvalidInput) {
		t.Fatalf("overlong username: %v", err)
	}
	// 32 runes of multibyte text is within the limit
	if _, err := env.Engine.RegisterUser(env.Ctx, "a3", strings.Repeat("é", 32)); err != nil {
		t.Fatalf("rune-count limit: %v", err)
	}
}

func TestRewardFlow(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice", "Alice")
	task := env.addTask(t, "Descale the machine", 40)

	c, err := env.Engine.SubmitCompletion(env.Ctx, "alice", task.ID)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if c.Approved {
		t.Fatalf("completion must start unapproved")
	}
	balance, err := env.Engine.MyBalance(env.Ctx, "alice")
	if err != nil || balance != 0 {
		t.Fatalf("no credit before approval, got %d (%v)", balance, err)
	}

	approved, err := env.Engine.ApproveCompletion(env.Ctx, "boss", task.ID, "alice")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if !approved.Approved || approved.ApprovedBy == nil || *approved.ApprovedBy != "boss" {
		t.Fatalf("unexpected approval record: %+v", approved)
	}
	balance, err = env.Engine.MyBalance(env.Ctx, "alice")
	if err != nil || balance != 40 {
		t.Fatalf("expected balance 40, got %d (%v)", balance, err)
	}
}

func TestApproveIsExactlyOnce(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice", "Alice")
	task := env.addTask(t, "Snack run", 25)
	if _, err := env.Engine.SubmitCompletion(env.Ctx, "alice", task.ID); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := env.Engine.ApproveCompletion(env.Ctx, "boss", task.ID, "alice"); err != nil {
		t.Fatalf("first approve: %v", err)
	}
	_, err := env.Engine.ApproveCompletion(env.Ctx, "boss", task.ID, "alice")
	if !errors.Is(err, engine.ErrAlreadyApproved) {
		t.Fatalf("expected ErrAlreadyApproved, got %v", err)
	}
	balance, _ := env.Engine.MyBalance(env.Ctx, "alice")
	if balance != 25 {
		t.Fatalf("second approve must not credit again, balance %d", balance)
	}
}

func TestConcurrentApprovalsCreditOnce(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice", "Alice")
	task := env.addTask(t, "Tea round", 10)
	if _, err := env.Engine.SubmitCompletion(env.Ctx, "alice", task.ID); err != nil {
		t.Fatalf("submit: %v", err)
	}

	const attempts = 4
	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.Engine.ApproveCompletion(env.Ctx, "boss", task.ID, "alice")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	wins := 0
	for err := range results {
		if err == nil {
			wins++
		} else if !errors.Is(err, engine.ErrAlreadyApproved) {
			t.Fatalf("unexpected approval error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one winning approval, got %d", wins)
	}
	balance, _ := env.Engine.MyBalance(env.Ctx, "alice")
	if balance != 10 {
		t.Fatalf("reward credited %d times", balance/10)
	}
}

func TestNonAdminCannotApprove(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice", "Alice")
	env.register(t, "bob", "Bob")
	task := env.addTask(t, "Dish duty", 15)
	if _, err := env.Engine.SubmitCompletion(env.Ctx, "alice", task.ID); err != nil {
		t.Fatalf("submit: %v", err)
	}

	_, err := env.Engine.ApproveCompletion(env.Ctx, "bob", task.ID, "alice")
	var unauthorized access.UnauthorizedError
	if !errors.As(err, &unauthorized) {
		t.Fatalf("expected UnauthorizedError, got %v", err)
	}
	balance, _ := env.Engine.MyBalance(env.Ctx, "alice")
	if balance != 0 {
		t.Fatalf("rejected approval must not credit, balance %d", balance)
	}
	pending, err := env.Engine.PendingCompletions(env.Ctx, "boss")
	if err != nil || len(pending) != 1 {
		t.Fatalf("completion should still be pending: %v (%d)", err, len(pending))
	}
}

func TestNonAdminCannotAssignRole(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "bob", "Bob")

	err := env.Engine.AssignRole(env.Ctx, "bob", "alice", domain.RoleAdmin)
	var unauthorized access.UnauthorizedError
	if !errors.As(err, &unauthorized) {
		t.Fatalf("expected UnauthorizedError, got %v", err)
	}
	role, err := env.Engine.RoleOf(env.Ctx, "alice")
	if err != nil || role != domain.RoleGuest {
		t.Fatalf("rejected assignment must not change the role, got %s (%v)", role, err)
	}
	role, err = env.Engine.RoleOf(env.Ctx, "bob")
	if err != nil || role != domain.RoleUser {
		t.Fatalf("caller role must be untouched, got %s (%v)", role, err)
	}
}

func TestSubmitCompletionGuards(t *testing.T) {
	env := newTestEnv(t)
	task := env.addTask(t, "Water plants", 5)

	_, err := env.Engine.SubmitCompletion(env.Ctx, "ghost", task.ID)
	var unauthenticated access.UnauthenticatedError
	if !errors.As(err, &unauthenticated) {
		t.Fatalf("unregistered submit: %v", err)
	}

	env.register(t, "alice", "Alice")
	if _, err := env.Engine.SubmitCompletion(env.Ctx, "alice", 9999); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("unknown task: %v", err)
	}
	if _, err := env.Engine.SubmitCompletion(env.Ctx, "alice", task.ID); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := env.Engine.SubmitCompletion(env.Ctx, "alice", task.ID); !errors.Is(err, engine.ErrAlreadySubmitted) {
		t.Fatalf("duplicate submit: %v", err)
	}
}

func TestTaskListingOrderAndFilters(t *testing.T) {
	env := newTestEnv(t)
	first := env.addTask(t, "First", 1)
	second := env.addTask(t, "Second", 2)
	third := env.addTask(t, "Third", 3)

	if _, err := env.Engine.SetTaskStatus(env.Ctx, "boss", second.ID, domain.TaskCompleted); err != nil {
		t.Fatalf("set status: %v", err)
	}

	available, err := env.Engine.ListAvailableTasks(env.Ctx)
	if err != nil {
		t.Fatalf("list available: %v", err)
	}
	if len(available) != 2 || available[0].ID != first.ID || available[1].ID != third.ID {
		t.Fatalf("unexpected available listing: %+v", available)
	}

	all, err := env.Engine.ListTasks(env.Ctx, repo.TaskFilters{})
	if err != nil || len(all) != 3 {
		t.Fatalf("list all: %v (%d)", err, len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].ID <= all[i-1].ID {
			t.Fatalf("listing not in ascending id order: %+v", all)
		}
	}
}

func TestBoardStatusCounts(t *testing.T) {
	env := newTestEnv(t)
	env.addTask(t, "One", 1)
	env.addTask(t, "Two", 2)
	third := env.addTask(t, "Three", 3)
	if _, err := env.Engine.SetTaskStatus(env.Ctx, "boss", third.ID, domain.TaskCompleted); err != nil {
		t.Fatalf("set status: %v", err)
	}

	counts, err := env.Engine.BoardStatus(env.Ctx)
	if err != nil {
		t.Fatalf("board status: %v", err)
	}
	if counts[string(domain.TaskAvailable)] != 2 || counts[string(domain.TaskCompleted)] != 1 {
		t.Fatalf("unexpected counts: %v", counts)
	}
}

func TestAdminListings(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice", "Alice")
	env.register(t, "bob", "Bob")
	if _, err := env.Engine.SubmitContactForm(env.Ctx, "Ann", "", "grinder jams"); err != nil {
		t.Fatalf("submit contact: %v", err)
	}

	profiles, err := env.Engine.ListProfiles(env.Ctx, "boss")
	if err != nil || len(profiles) != 2 {
		t.Fatalf("admin profile listing: %v (%d)", err, len(profiles))
	}
	messages, err := env.Engine.ListContactMessages(env.Ctx, "boss")
	if err != nil || len(messages) != 1 || messages[0].Name != "Ann" {
		t.Fatalf("admin contact listing: %v %+v", err, messages)
	}

	var unauthorized access.UnauthorizedError
	if _, err := env.Engine.ListProfiles(env.Ctx, "alice"); !errors.As(err, &unauthorized) {
		t.Fatalf("non-admin profile listing: %v", err)
	}
	if _, err := env.Engine.ListContactMessages(env.Ctx, "alice"); !errors.As(err, &unauthorized) {
		t.Fatalf("non-admin contact listing: %v", err)
	}
}

func TestTaskStatusTransitions(t *testing.T) {
	env := newTestEnv(t)
	task := env.addTask(t, "Lifecycle", 1)

	task, err := env.Engine.SetTaskStatus(env.Ctx, "boss", task.ID, domain.TaskInProgress)
	if err != nil || task.Status != domain.TaskInProgress {
		t.Fatalf("to inProgress: %v", err)
	}
	task, err = env.Engine.SetTaskStatus(env.Ctx, "boss", task.ID, domain.TaskCompleted)
	if err != nil || task.Status != domain.TaskCompleted {
		t.Fatalf("to completed: %v", err)
	}
	// moving backwards is rejected
	if _, err := env.Engine.SetTaskStatus(env.Ctx, "boss", task.ID, domain.TaskAvailable); !errors.Is(err, engine.ErrInvalidInput) {
		t.Fatalf("backwards transition: %v", err)
	}

	// skipping inProgress is allowed
	skip := env.addTask(t, "Skip", 1)
	if _, err := env.Engine.SetTaskStatus(env.Ctx, "boss", skip.ID, domain.TaskCompleted); err != nil {
		t.Fatalf("available to completed: %v", err)
	}
}

func TestWithdrawalIntake(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice", "Alice")
	task := env.addTask(t, "Big job", 50)
	if _, err := env.Engine.SubmitCompletion(env.Ctx, "alice", task.ID); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := env.Engine.ApproveCompletion(env.Ctx, "boss", task.ID, "alice"); err != nil {
		t.Fatalf("approve: %v", err)
	}

	if _, err := env.Engine.RequestWithdrawal(env.Ctx, "alice", 0); !errors.Is(err, engine.ErrInvalidAmount) {
		t.Fatalf("zero amount: %v", err)
	}
	if _, err := env.Engine.RequestWithdrawal(env.Ctx, "alice", 51); !errors.Is(err, engine.ErrInvalidAmount) {
		t.Fatalf("amount over balance: %v", err)
	}

	w, err := env.Engine.RequestWithdrawal(env.Ctx, "alice", 50)
	if err != nil {
		t.Fatalf("full-balance withdrawal: %v", err)
	}
	if w.Status != "pending" {
		t.Fatalf("expected pending status, got %s", w.Status)
	}
	// intake only: the balance is not debited
	balance, _ := env.Engine.MyBalance(env.Ctx, "alice")
	if balance != 50 {
		t.Fatalf("withdrawal must not debit, balance %d", balance)
	}
}

func TestWithdrawalListingVisibility(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice", "Alice")
	env.register(t, "bob", "Bob")
	task := env.addTask(t, "Shared", 20)
	for _, who := range []string{"alice", "bob"} {
		if _, err := env.Engine.SubmitCompletion(env.Ctx, who, task.ID); err != nil {
			t.Fatalf("submit %s: %v", who, err)
		}
		if _, err := env.Engine.ApproveCompletion(env.Ctx, "boss", task.ID, who); err != nil {
			t.Fatalf("approve %s: %v", who, err)
		}
		if _, err := env.Engine.RequestWithdrawal(env.Ctx, who, 10); err != nil {
			t.Fatalf("withdraw %s: %v", who, err)
		}
	}

	mine, err := env.Engine.ListWithdrawals(env.Ctx, "alice", "")
	if err != nil || len(mine) != 1 || mine[0].UserID != "alice" {
		t.Fatalf("non-admin should only see own withdrawals: %v %+v", err, mine)
	}
	all, err := env.Engine.ListWithdrawals(env.Ctx, "boss", "")
	if err != nil || len(all) != 2 {
		t.Fatalf("admin should see all withdrawals: %v (%d)", err, len(all))
	}

	var unauthenticated access.UnauthenticatedError
	if _, err := env.Engine.ListWithdrawals(env.Ctx, "ghost", ""); !errors.As(err, &unauthenticated) {
		t.Fatalf("unregistered listing: %v", err)
	}
}

func TestMyBalanceRequiresRegistration(t *testing.T) {
	env := newTestEnv(t)
	var unauthenticated access.UnauthenticatedError
	if _, err := env.Engine.MyBalance(env.Ctx, "ghost"); !errors.As(err, &unauthenticated) {
		t.Fatalf("expected UnauthenticatedError, got %v", err)
	}
}

func TestUserProfileVisibility(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice", "Alice")
	env.register(t, "bob", "Bob")

	if _, err := env.Engine.UserProfile(env.Ctx, "alice", "alice"); err != nil {
		t.Fatalf("own profile: %v", err)
	}
	var unauthorized access.UnauthorizedError
	if _, err := env.Engine.UserProfile(env.Ctx, "alice", "bob"); !errors.As(err, &unauthorized) {
		t.Fatalf("cross-user read by non-admin: %v", err)
	}
	if _, err := env.Engine.UserProfile(env.Ctx, "boss", "bob"); err != nil {
		t.Fatalf("admin read: %v", err)
	}
}

func TestContactFormValidation(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.SubmitContactForm(env.Ctx, "", "a@b.c", "hi"); !errors.Is(err, engine.ErrInvalidInput) {
		t.Fatalf("missing name: %v", err)
	}
	if _, err := env.Engine.SubmitContactForm(env.Ctx, "Ann", "not-an-email", "hi"); !errors.Is(err, engine.ErrInvalidInput) {
		t.Fatalf("malformed email: %v", err)
	}
	m, err := env.Engine.SubmitContactForm(env.Ctx, "Ann", "", "machine is broken")
	if err != nil {
		t.Fatalf("submit contact: %v", err)
	}
	if m.ID == "" || m.ReceivedAt == "" {
		t.Fatalf("unexpected contact message: %+v", m)
	}
}

func TestAPIKeyLifecycle(t *testing.T) {
	env := newTestEnv(t)
	key, plain, err := env.Engine.CreateAPIKey(env.Ctx, "boss", "alice", "ci")
	if err != nil {
		t.Fatalf("create key: %v", err)
	}
	if !strings.HasPrefix(plain, "bb_") {
		t.Fatalf("unexpected key format: %s", plain)
	}
	found, err := env.Engine.Repo.GetAPIKeyByHash(env.Ctx, repo.HashAPIKey(plain))
	if err != nil || found.ActorID != "alice" {
		t.Fatalf("lookup by hash: %v %+v", err, found)
	}

	keys, err := env.Engine.ListAPIKeys(env.Ctx, "boss", "")
	if err != nil || len(keys) != 1 {
		t.Fatalf("list keys: %v (%d)", err, len(keys))
	}
	if err := env.Engine.RevokeAPIKey(env.Ctx, "boss", key.ID); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := env.Engine.Repo.GetAPIKeyByHash(env.Ctx, repo.HashAPIKey(plain)); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("revoked key still resolves: %v", err)
	}

	var unauthorized access.UnauthorizedError
	env.register(t, "bob", "Bob")
	if _, _, err := env.Engine.CreateAPIKey(env.Ctx, "bob", "bob", ""); !errors.As(err, &unauthorized) {
		t.Fatalf("non-admin create key: %v", err)
	}
}
