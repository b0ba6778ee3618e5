package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"brewboard/internal/config"
	"brewboard/internal/domain"
	"brewboard/internal/engine/access"
	"brewboard/internal/events"
	"brewboard/internal/repo"
)

var (
	ErrAlreadyRegistered = errors.New("identity already registered")
	ErrAlreadySubmitted  = errors.New("completion already submitted")
	ErrAlreadyApproved   = errors.New("completion already approved")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInvalidAmount     = errors.New("invalid amount")
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Access access.Service
	Events events.Writer
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Access: access.Service{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) nowRFC3339() string {
	return e.now().UTC().Format(time.RFC3339)
}

// RegisterUser creates a profile for the calling identity and promotes guests
// to the user role. The starting balance is always zero.
func (e Engine) RegisterUser(ctx context.Context, actorID, username string) (domain.Profile, error) {
	if actorID == "" {
		return domain.Profile{}, fmt.Errorf("%w: actor id required", ErrInvalidInput)
	}
	username = strings.TrimSpace(username)
	if err := e.validateUsername(username); err != nil {
		return domain.Profile{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Profile{}, err
	}
	defer tx.Rollback()

	if _, err := e.Repo.GetProfileTx(ctx, tx, actorID); err == nil {
		return domain.Profile{}, ErrAlreadyRegistered
	} else if err != repo.ErrNotFound {
		return domain.Profile{}, err
	}
	p := domain.Profile{
		ActorID:   actorID,
		Username:  username,
		Balance:   0,
		CreatedAt: e.nowRFC3339(),
	}
	if err := e.Repo.InsertProfile(ctx, tx, p); err != nil {
		return domain.Profile{}, fmt.Errorf("insert profile: %w", err)
	}
	role, err := e.Access.RoleOfTx(ctx, tx, actorID)
	if err != nil {
		return domain.Profile{}, err
	}
	if role == domain.RoleGuest {
		if err := e.Access.AssignRole(ctx, tx, actorID, domain.RoleUser); err != nil {
			return domain.Profile{}, err
		}
	}
	if err := e.Events.Append(ctx, tx, "user.registered", "profile", actorID, actorID, events.EventPayload{"username": username}); err != nil {
		return domain.Profile{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Profile{}, err
	}
	return p, nil
}

// SaveCallerProfile updates the caller's username. The balance is not
// writable through this path.
func (e Engine) SaveCallerProfile(ctx context.Context, actorID, username string) (domain.Profile, error) {
	username = strings.TrimSpace(username)
	if err := e.validateUsername(username); err != nil {
		return domain.Profile{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Profile{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.UpdateUsername(ctx, tx, actorID, username); err != nil {
		if err == repo.ErrNotFound {
			return domain.Profile{}, access.UnauthenticatedError{}
		}
		return domain.Profile{}, err
	}
	p, err := e.Repo.GetProfileTx(ctx, tx, actorID)
	if err != nil {
		return domain.Profile{}, err
	}
	if err := e.Events.Append(ctx, tx, "profile.saved", "profile", actorID, actorID, events.EventPayload{"username": username}); err != nil {
		return domain.Profile{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Profile{}, err
	}
	return p, nil
}

func (e Engine) validateUsername(username string) error {
	if username == "" {
		return fmt.Errorf("%w: username required", ErrInvalidInput)
	}
	maxLen := 32
	if e.Config != nil && e.Config.Limits.UsernameMaxLen > 0 {
		maxLen = e.Config.Limits.UsernameMaxLen
	}
	if utf8.RuneCountInString(username) > maxLen {
		return fmt.Errorf("%w: username exceeds %d characters", ErrInvalidInput, maxLen)
	}
	return nil
}

// CallerProfile returns the caller's profile, or nil when the identity has
// not registered. This is the only profile read that does not fail for
// unregistered callers.
func (e Engine) CallerProfile(ctx context.Context, actorID string) (*domain.Profile, error) {
	if actorID == "" {
		return nil, nil
	}
	p, err := e.Repo.GetProfile(ctx, actorID)
	if err == repo.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (e Engine) MyProfile(ctx context.Context, actorID string) (domain.Profile, error) {
	p, err := e.Repo.GetProfile(ctx, actorID)
	if err == repo.ErrNotFound {
		return domain.Profile{}, access.UnauthenticatedError{}
	}
	return p, err
}

// UserProfile returns another identity's profile. Callers may always read
// their own; reading someone else's requires the admin role.
func (e Engine) UserProfile(ctx context.Context, callerID, targetID string) (domain.Profile, error) {
	if callerID != targetID {
		if err := e.Access.RequireAdmin(ctx, callerID, "read user profile"); err != nil {
			return domain.Profile{}, err
		}
	}
	return e.Repo.GetProfile(ctx, targetID)
}

// ListProfiles returns every registered profile. Admin only.
func (e Engine) ListProfiles(ctx context.Context, callerID string) ([]domain.Profile, error) {
	if err := e.Access.RequireAdmin(ctx, callerID, "list profiles"); err != nil {
		return nil, err
	}
	return e.Repo.ListProfiles(ctx)
}

func (e Engine) MyBalance(ctx context.Context, actorID string) (uint64, error) {
	p, err := e.MyProfile(ctx, actorID)
	if err != nil {
		return 0, err
	}
	return p.Balance, nil
}

// AssignRole sets the role for an identity. Only admins may assign roles, and
// an assignment replaces whatever role the identity had before.
func (e Engine) AssignRole(ctx context.Context, callerID, targetID string, role domain.Role) error {
	if err := e.Access.RequireAdmin(ctx, callerID, "assign role"); err != nil {
		return err
	}
	if targetID == "" {
		return fmt.Errorf("%w: target actor id required", ErrInvalidInput)
	}
	if !domain.ValidRole(role) {
		return fmt.Errorf("%w: unknown role %q", ErrInvalidInput, role)
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := e.Access.AssignRole(ctx, tx, targetID, role); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "role.assigned", "role", targetID, callerID, events.EventPayload{"role": string(role)}); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) RoleOf(ctx context.Context, actorID string) (domain.Role, error) {
	return e.Access.RoleOf(ctx, actorID)
}

func (e Engine) IsAdmin(ctx context.Context, actorID string) (bool, error) {
	return e.Access.IsAdmin(ctx, actorID)
}

// EnsureAdmin grants the admin role without an admin caller. Reserved for
// workspace bootstrap; idempotent.
func (e Engine) EnsureAdmin(ctx context.Context, actorID string) error {
	if actorID == "" {
		return fmt.Errorf("%w: actor id required", ErrInvalidInput)
	}
	role, err := e.Access.RoleOf(ctx, actorID)
	if err != nil {
		return err
	}
	if role == domain.RoleAdmin {
		return nil
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := e.Access.AssignRole(ctx, tx, actorID, domain.RoleAdmin); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "role.assigned", "role", actorID, actorID, events.EventPayload{"role": string(domain.RoleAdmin), "bootstrap": true}); err != nil {
		return err
	}
	return tx.Commit()
}

type AddTaskOptions struct {
	Title       string
	Description string
	Reward      uint64
	Category    domain.Category
}

// AddTask registers a new task. Admin only. The registry assigns the id;
// ids are monotonic and never reused.
func (e Engine) AddTask(ctx context.Context, callerID string, opts AddTaskOptions) (domain.Task, error) {
	if err := e.Access.RequireAdmin(ctx, callerID, "add task"); err != nil {
		return domain.Task{}, err
	}
	opts.Title = strings.TrimSpace(opts.Title)
	opts.Description = strings.TrimSpace(opts.Description)
	if opts.Title == "" {
		return domain.Task{}, fmt.Errorf("%w: title required", ErrInvalidInput)
	}
	if opts.Description == "" {
		return domain.Task{}, fmt.Errorf("%w: description required", ErrInvalidInput)
	}
	if opts.Reward == 0 {
		return domain.Task{}, fmt.Errorf("%w: reward must be positive", ErrInvalidInput)
	}
	if e.Config != nil && e.Config.Limits.MaxReward > 0 && opts.Reward > e.Config.Limits.MaxReward {
		return domain.Task{}, fmt.Errorf("%w: reward exceeds configured cap %d", ErrInvalidInput, e.Config.Limits.MaxReward)
	}
	if !domain.ValidCategory(opts.Category) {
		return domain.Task{}, fmt.Errorf("%w: unknown category %q", ErrInvalidInput, opts.Category)
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	t := domain.Task{
		Title:       opts.Title,
		Description: opts.Description,
		Reward:      opts.Reward,
		Category:    opts.Category,
		Status:      domain.TaskAvailable,
		CreatedBy:   callerID,
		CreatedAt:   e.nowRFC3339(),
	}
	t, err = e.Repo.InsertTask(ctx, tx, t)
	if err != nil {
		return domain.Task{}, fmt.Errorf("insert task: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "task.added", "task", fmt.Sprint(t.ID), callerID, events.EventPayload{"reward": t.Reward, "category": string(t.Category)}); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// ListAvailableTasks is the public task listing: only tasks still open for
// completion, in ascending id order.
func (e Engine) ListAvailableTasks(ctx context.Context) ([]domain.Task, error) {
	return e.Repo.ListTasks(ctx, repo.TaskFilters{Status: domain.TaskAvailable})
}

func (e Engine) ListTasks(ctx context.Context, f repo.TaskFilters) ([]domain.Task, error) {
	return e.Repo.ListTasks(ctx, f)
}

func (e Engine) GetTask(ctx context.Context, id uint64) (domain.Task, error) {
	return e.Repo.GetTask(ctx, id)
}

// BoardStatus summarizes the board: how many tasks sit in each status.
func (e Engine) BoardStatus(ctx context.Context) (map[string]int, error) {
	return e.Repo.CountTasksByStatus(ctx)
}

// SetTaskStatus moves a task along available -> inProgress -> completed.
// Admin only. Skipping inProgress is allowed; moving backwards is not.
func (e Engine) SetTaskStatus(ctx context.Context, callerID string, id uint64, status domain.TaskStatus) (domain.Task, error) {
	if err := e.Access.RequireAdmin(ctx, callerID, "set task status"); err != nil {
		return domain.Task{}, err
	}
	if !domain.ValidTaskStatus(status) {
		return domain.Task{}, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, status)
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	t, err := e.Repo.GetTaskTx(ctx, tx, id)
	if err != nil {
		return domain.Task{}, err
	}
	if !validTransition(t.Status, status) {
		return domain.Task{}, fmt.Errorf("%w: cannot move task from %s to %s", ErrInvalidInput, t.Status, status)
	}
	if err := e.Repo.UpdateTaskStatus(ctx, tx, id, status); err != nil {
		return domain.Task{}, err
	}
	if err := e.Events.Append(ctx, tx, "task.status_changed", "task", fmt.Sprint(id), callerID, events.EventPayload{"from": string(t.Status), "to": string(status)}); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	t.Status = status
	return t, nil
}

func validTransition(from, to domain.TaskStatus) bool {
	switch from {
	case domain.TaskAvailable:
		return to == domain.TaskInProgress || to == domain.TaskCompleted
	case domain.TaskInProgress:
		return to == domain.TaskCompleted
	}
	return false
}

// SubmitCompletion records that the caller finished a task. The entry starts
// unapproved; no balance changes until an admin approves it. One entry per
// task and identity.
func (e Engine) SubmitCompletion(ctx context.Context, callerID string, taskID uint64) (domain.Completion, error) {
	registered, err := e.Repo.HasProfile(ctx, callerID)
	if err != nil {
		return domain.Completion{}, err
	}
	if !registered {
		return domain.Completion{}, access.UnauthenticatedError{}
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Completion{}, err
	}
	defer tx.Rollback()

	if _, err := e.Repo.GetTaskTx(ctx, tx, taskID); err != nil {
		return domain.Completion{}, err
	}
	if _, err := e.Repo.GetCompletionTx(ctx, tx, taskID, callerID); err == nil {
		return domain.Completion{}, ErrAlreadySubmitted
	} else if err != repo.ErrNotFound {
		return domain.Completion{}, err
	}
	c := domain.Completion{
		ID:          uuid.NewString(),
		TaskID:      taskID,
		UserID:      callerID,
		CompletedAt: e.nowRFC3339(),
		Approved:    false,
	}
	if err := e.Repo.InsertCompletion(ctx, tx, c); err != nil {
		return domain.Completion{}, fmt.Errorf("insert completion: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "completion.submitted", "completion", c.ID, callerID, events.EventPayload{"task_id": taskID}); err != nil {
		return domain.Completion{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Completion{}, err
	}
	return c, nil
}

// ApproveCompletion marks a completion approved and credits the submitter's
// balance with the task reward, atomically. A completion is credited at most
// once: the guarded update wins or loses as a unit with the credit.
func (e Engine) ApproveCompletion(ctx context.Context, callerID string, taskID uint64, userID string) (domain.Completion, error) {
	if err := e.Access.RequireAdmin(ctx, callerID, "approve completion"); err != nil {
		return domain.Completion{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Completion{}, err
	}
	defer tx.Rollback()

	now := e.nowRFC3339()
	// The guarded update runs first so the transaction takes the write lock
	// before any reads it depends on.
	flipped, err := e.Repo.MarkCompletionApproved(ctx, tx, taskID, userID, callerID, now)
	if err != nil {
		return domain.Completion{}, err
	}
	if !flipped {
		c, err := e.Repo.GetCompletionTx(ctx, tx, taskID, userID)
		if err != nil {
			return domain.Completion{}, err
		}
		if c.Approved {
			return domain.Completion{}, ErrAlreadyApproved
		}
		return domain.Completion{}, repo.ErrNotFound
	}
	t, err := e.Repo.GetTaskTx(ctx, tx, taskID)
	if err != nil {
		return domain.Completion{}, err
	}
	if err := e.Repo.CreditProfile(ctx, tx, userID, t.Reward); err != nil {
		return domain.Completion{}, fmt.Errorf("credit reward: %w", err)
	}
	c, err := e.Repo.GetCompletionTx(ctx, tx, taskID, userID)
	if err != nil {
		return domain.Completion{}, err
	}
	if err := e.Events.Append(ctx, tx, "completion.approved", "completion", c.ID, callerID, events.EventPayload{"task_id": taskID, "user_id": userID, "reward": t.Reward}); err != nil {
		return domain.Completion{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Completion{}, err
	}
	return c, nil
}

// MyCompletions lists the caller's completion entries, newest first.
func (e Engine) MyCompletions(ctx context.Context, callerID string) ([]domain.Completion, error) {
	registered, err := e.Repo.HasProfile(ctx, callerID)
	if err != nil {
		return nil, err
	}
	if !registered {
		return nil, access.UnauthenticatedError{}
	}
	return e.Repo.ListCompletionsByUser(ctx, callerID)
}

// PendingCompletions lists entries awaiting approval. Admin only.
func (e Engine) PendingCompletions(ctx context.Context, callerID string) ([]domain.Completion, error) {
	if err := e.Access.RequireAdmin(ctx, callerID, "list pending completions"); err != nil {
		return nil, err
	}
	approved := false
	return e.Repo.ListCompletions(ctx, repo.CompletionFilters{Approved: &approved})
}

// RequestWithdrawal records a withdrawal request. Intake only: the balance is
// not debited and the request stays pending. The amount must be positive and
// covered by the caller's balance at the time of the request.
func (e Engine) RequestWithdrawal(ctx context.Context, callerID string, amount uint64) (domain.Withdrawal, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Withdrawal{}, err
	}
	defer tx.Rollback()

	p, err := e.Repo.GetProfileTx(ctx, tx, callerID)
	if err == repo.ErrNotFound {
		return domain.Withdrawal{}, access.UnauthenticatedError{}
	}
	if err != nil {
		return domain.Withdrawal{}, err
	}
	if amount == 0 {
		return domain.Withdrawal{}, fmt.Errorf("%w: amount must be positive", ErrInvalidAmount)
	}
	if amount > p.Balance {
		return domain.Withdrawal{}, fmt.Errorf("%w: amount %d exceeds balance %d", ErrInvalidAmount, amount, p.Balance)
	}
	w := domain.Withdrawal{
		ID:          uuid.NewString(),
		UserID:      callerID,
		Amount:      amount,
		Status:      "pending",
		RequestedAt: e.nowRFC3339(),
	}
	if err := e.Repo.InsertWithdrawal(ctx, tx, w); err != nil {
		return domain.Withdrawal{}, fmt.Errorf("insert withdrawal: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "withdrawal.requested", "withdrawal", w.ID, callerID, events.EventPayload{"amount": amount}); err != nil {
		return domain.Withdrawal{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Withdrawal{}, err
	}
	return w, nil
}

// ListWithdrawals returns withdrawal requests. Admins see everyone's;
// other registered callers see only their own.
func (e Engine) ListWithdrawals(ctx context.Context, callerID, userID string) ([]domain.Withdrawal, error) {
	isAdmin, err := e.Access.IsAdmin(ctx, callerID)
	if err != nil {
		return nil, err
	}
	if !isAdmin {
		registered, err := e.Repo.HasProfile(ctx, callerID)
		if err != nil {
			return nil, err
		}
		if !registered {
			return nil, access.UnauthenticatedError{}
		}
		userID = callerID
	}
	return e.Repo.ListWithdrawals(ctx, userID)
}

// SubmitContactForm stores a message from the public contact form. No
// authentication required.
func (e Engine) SubmitContactForm(ctx context.Context, name, email, message string) (domain.ContactMessage, error) {
	name = strings.TrimSpace(name)
	message = strings.TrimSpace(message)
	email = strings.TrimSpace(email)
	if name == "" {
		return domain.ContactMessage{}, fmt.Errorf("%w: name required", ErrInvalidInput)
	}
	if message == "" {
		return domain.ContactMessage{}, fmt.Errorf("%w: message required", ErrInvalidInput)
	}
	if email != "" && !strings.Contains(email, "@") {
		return domain.ContactMessage{}, fmt.Errorf("%w: email looks malformed", ErrInvalidInput)
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ContactMessage{}, err
	}
	defer tx.Rollback()

	m := domain.ContactMessage{
		ID:         uuid.NewString(),
		Name:       name,
		Email:      email,
		Message:    message,
		ReceivedAt: e.nowRFC3339(),
	}
	if err := e.Repo.InsertContactMessage(ctx, tx, m); err != nil {
		return domain.ContactMessage{}, fmt.Errorf("insert contact message: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "contact.received", "contact", m.ID, "", events.EventPayload{"name": name}); err != nil {
		return domain.ContactMessage{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.ContactMessage{}, err
	}
	return m, nil
}

// ListContactMessages returns every stored contact message, newest first.
// Admin only.
func (e Engine) ListContactMessages(ctx context.Context, callerID string) ([]domain.ContactMessage, error) {
	if err := e.Access.RequireAdmin(ctx, callerID, "list contact messages"); err != nil {
		return nil, err
	}
	return e.Repo.ListContactMessages(ctx)
}

// CreateAPIKey mints a new API key for an identity and returns the plaintext
// once. Only the SHA-256 digest is stored. Admin only.
func (e Engine) CreateAPIKey(ctx context.Context, callerID, actorID, name string) (domain.APIKey, string, error) {
	if err := e.Access.RequireAdmin(ctx, callerID, "create api key"); err != nil {
		return domain.APIKey{}, "", err
	}
	if actorID == "" {
		return domain.APIKey{}, "", fmt.Errorf("%w: actor id required", ErrInvalidInput)
	}
	plain := "bb_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	key := domain.APIKey{
		ID:        uuid.NewString(),
		ActorID:   actorID,
		Name:      name,
		KeyHash:   repo.HashAPIKey(plain),
		CreatedAt: e.nowRFC3339(),
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.APIKey{}, "", err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertAPIKey(ctx, tx, key); err != nil {
		return domain.APIKey{}, "", err
	}
	if err := e.Events.Append(ctx, tx, "apikey.created", "apikey", key.ID, callerID, events.EventPayload{"actor_id": actorID}); err != nil {
		return domain.APIKey{}, "", err
	}
	if err := tx.Commit(); err != nil {
		return domain.APIKey{}, "", err
	}
	return key, plain, nil
}

func (e Engine) ListAPIKeys(ctx context.Context, callerID, actorID string) ([]domain.APIKey, error) {
	if err := e.Access.RequireAdmin(ctx, callerID, "list api keys"); err != nil {
		return nil, err
	}
	return e.Repo.ListAPIKeys(ctx, actorID)
}

func (e Engine) RevokeAPIKey(ctx context.Context, callerID, id string) error {
	if err := e.Access.RequireAdmin(ctx, callerID, "revoke api key"); err != nil {
		return err
	}
	return e.Repo.DeleteAPIKey(ctx, id)
}
