package domain

type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
	RoleGuest Role = "guest"
)

// ValidRole reports whether r is one of the three known roles.
func ValidRole(r Role) bool {
	switch r {
	case RoleAdmin, RoleUser, RoleGuest:
		return true
	}
	return false
}

type Category string

const (
	CategoryTea    Category = "tea"
	CategoryCoffee Category = "coffee"
	CategorySnacks Category = "snacks"
	CategoryMeals  Category = "meals"
)

// ValidCategory reports whether c is a known task category.
func ValidCategory(c Category) bool {
	switch c {
	case CategoryTea, CategoryCoffee, CategorySnacks, CategoryMeals:
		return true
	}
	return false
}

type TaskStatus string

const (
	TaskAvailable  TaskStatus = "available"
	TaskInProgress TaskStatus = "inProgress"
	TaskCompleted  TaskStatus = "completed"
)

// ValidTaskStatus reports whether s is a known task status.
func ValidTaskStatus(s TaskStatus) bool {
	switch s {
	case TaskAvailable, TaskInProgress, TaskCompleted:
		return true
	}
	return false
}

type Profile struct {
	ActorID   string `json:"actor_id"`
	Username  string `json:"username"`
	Balance   uint64 `json:"balance"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Task struct {
	ID          uint64     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Reward      uint64     `json:"reward"`
	Category    Category   `json:"category" enum:"tea,coffee,snacks,meals"`
	Status      TaskStatus `json:"status" enum:"available,inProgress,completed"`
	CreatedBy   string     `json:"created_by"`
	CreatedAt   string     `json:"created_at" format:"date-time"`
}

type Completion struct {
	ID          string  `json:"id"`
	TaskID      uint64  `json:"task_id"`
	UserID      string  `json:"user_id"`
	CompletedAt string  `json:"completed_at" format:"date-time"`
	Approved    bool    `json:"approved"`
	ApprovedBy  *string `json:"approved_by,omitempty"`
	ApprovedAt  *string `json:"approved_at,omitempty" format:"date-time"`
}

type Withdrawal struct {
	ID          string `json:"id"`
	UserID      string `json:"user_id"`
	Amount      uint64 `json:"amount"`
	Status      string `json:"status"`
	RequestedAt string `json:"requested_at" format:"date-time"`
}

type ContactMessage struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Email      string  `json:"email"`
	Message    string  `json:"message"`
	ReceivedAt string  `json:"received_at" format:"date-time"`
	NotifiedAt *string `json:"notified_at,omitempty" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
