package server

import (
	"brewboard/internal/domain"
)

// Request payloads

type RegisterUserRequest struct {
	Username string `json:"username" maxLength:"32"`
}

type SaveProfileRequest struct {
	Username string `json:"username" maxLength:"32"`
}

type AddTaskRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Reward      uint64 `json:"reward" minimum:"1"`
	Category    string `json:"category" enum:"tea,coffee,snacks,meals"`
}

type SetTaskStatusRequest struct {
	Status string `json:"status" enum:"available,inProgress,completed"`
}

type AssignRoleRequest struct {
	ActorID string `json:"actor_id"`
	Role    string `json:"role" enum:"admin,user,guest"`
}

type WithdrawalRequest struct {
	Amount uint64 `json:"amount" minimum:"1"`
}

type ContactRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email,omitempty"`
	Message string `json:"message"`
}

type CreateAPIKeyRequest struct {
	ActorID string `json:"actor_id"`
	Name    string `json:"name,omitempty"`
}

type DevLoginRequest struct {
	ActorID string `json:"actor_id"`
}

// Response payloads

type ProfileResponse struct {
	ActorID   string `json:"actor_id"`
	Username  string `json:"username"`
	Balance   uint64 `json:"balance"`
	CreatedAt string `json:"created_at"`
}

type MeResponse struct {
	ActorID string           `json:"actor_id"`
	Role    string           `json:"role" enum:"admin,user,guest"`
	Profile *ProfileResponse `json:"profile"`
	Source  string           `json:"source,omitempty"`
}

type TaskResponse struct {
	ID          uint64 `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Reward      uint64 `json:"reward"`
	Category    string `json:"category"`
	Status      string `json:"status"`
	CreatedBy   string `json:"created_by"`
	CreatedAt   string `json:"created_at"`
}

type CompletionResponse struct {
	ID          string  `json:"id"`
	TaskID      uint64  `json:"task_id"`
	UserID      string  `json:"user_id"`
	CompletedAt string  `json:"completed_at"`
	Approved    bool    `json:"approved"`
	ApprovedBy  *string `json:"approved_by,omitempty"`
	ApprovedAt  *string `json:"approved_at,omitempty"`
}

type WithdrawalResponse struct {
	ID          string `json:"id"`
	UserID      string `json:"user_id"`
	Amount      uint64 `json:"amount"`
	Status      string `json:"status"`
	RequestedAt string `json:"requested_at"`
}

type BalanceResponse struct {
	Balance uint64 `json:"balance"`
}

type RoleResponse struct {
	ActorID string `json:"actor_id"`
	Role    string `json:"role" enum:"admin,user,guest"`
}

type ContactResponse struct {
	ID         string `json:"id"`
	ReceivedAt string `json:"received_at"`
}

type ContactMessageResponse struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Email      string `json:"email,omitempty"`
	Message    string `json:"message"`
	ReceivedAt string `json:"received_at"`
}

type APIKeyResponse struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	CreatedAt string `json:"created_at"`
	Key       string `json:"key,omitempty"`
}

type EventResponse struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id,omitempty"`
	Payload    string `json:"payload_json,omitempty"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

func profileResponse(p domain.Profile) ProfileResponse {
	return ProfileResponse{
		ActorID:   p.ActorID,
		Username:  p.Username,
		Balance:   p.Balance,
		CreatedAt: p.CreatedAt,
	}
}

func taskResponse(t domain.Task) TaskResponse {
	return TaskResponse{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Reward:      t.Reward,
		Category:    string(t.Category),
		Status:      string(t.Status),
		CreatedBy:   t.CreatedBy,
		CreatedAt:   t.CreatedAt,
	}
}

func completionResponse(c domain.Completion) CompletionResponse {
	return CompletionResponse{
		ID:          c.ID,
		TaskID:      c.TaskID,
		UserID:      c.UserID,
		CompletedAt: c.CompletedAt,
		Approved:    c.Approved,
		ApprovedBy:  c.ApprovedBy,
		ApprovedAt:  c.ApprovedAt,
	}
}

func withdrawalResponse(w domain.Withdrawal) WithdrawalResponse {
	return WithdrawalResponse{
		ID:          w.ID,
		UserID:      w.UserID,
		Amount:      w.Amount,
		Status:      w.Status,
		RequestedAt: w.RequestedAt,
	}
}

func mapProfiles(items []domain.Profile) []ProfileResponse {
	res := make([]ProfileResponse, 0, len(items))
	for _, p := range items {
		res = append(res, profileResponse(p))
	}
	return res
}

func mapContactMessages(items []domain.ContactMessage) []ContactMessageResponse {
	res := make([]ContactMessageResponse, 0, len(items))
	for _, m := range items {
		res = append(res, ContactMessageResponse{
			ID:         m.ID,
			Name:       m.Name,
			Email:      m.Email,
			Message:    m.Message,
			ReceivedAt: m.ReceivedAt,
		})
	}
	return res
}

func mapTasks(items []domain.Task) []TaskResponse {
	res := make([]TaskResponse, 0, len(items))
	for _, t := range items {
		res = append(res, taskResponse(t))
	}
	return res
}

func mapCompletions(items []domain.Completion) []CompletionResponse {
	res := make([]CompletionResponse, 0, len(items))
	for _, c := range items {
		res = append(res, completionResponse(c))
	}
	return res
}

func mapWithdrawals(items []domain.Withdrawal) []WithdrawalResponse {
	res := make([]WithdrawalResponse, 0, len(items))
	for _, w := range items {
		res = append(res, withdrawalResponse(w))
	}
	return res
}

func mapEvents(items []domain.Event) []EventResponse {
	res := make([]EventResponse, 0, len(items))
	for _, e := range items {
		res = append(res, EventResponse{
			ID:         e.ID,
			TS:         e.TS,
			Type:       e.Type,
			EntityKind: e.EntityKind,
			EntityID:   e.EntityID,
			ActorID:    e.ActorID,
			Payload:    e.Payload,
		})
	}
	return res
}
