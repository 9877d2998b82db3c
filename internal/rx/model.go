package rx

// Status is the review state of a submission. Transitions are
// admin-triggered only and any status is reachable from any other.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusApproved  Status = "APPROVED"
	StatusNeedsInfo Status = "NEEDS_INFO"
	StatusRejected  Status = "REJECTED"
)

// PrettyTitle maps a status to the human-readable word used in
// notification titles.
func (s Status) PrettyTitle() string {
	switch s {
	case StatusApproved:
		return "Approved"
	case StatusNeedsInfo:
		return "Needs Info"
	case StatusRejected:
		return "Rejected"
	default:
		return "Updated"
	}
}

// Submission is one prescription upload under review. Timestamps are Unix
// milliseconds, matching the browser build's documents.
type Submission struct {
	ID             string `json:"id"`
	UserKey        string `json:"userKey"`
	FullName       string `json:"fullName"`
	Phone          string `json:"phone"`
	Notes          string `json:"notes"`
	FileName       string `json:"fileName"`
	FileType       string `json:"fileType"`
	FileDataURL    string `json:"fileDataUrl"`
	NotifyOnUpdate bool   `json:"notifyOnUpdate"`
	Status         Status `json:"status"`
	AdminMessage   string `json:"adminMessage"`
	CreatedAt      int64  `json:"createdAt"`
	UpdatedAt      int64  `json:"updatedAt"`
}

// Notification is one message in a user's inbox.
type Notification struct {
	ID        string         `json:"id"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Link      string         `json:"link"`
	Meta      map[string]any `json:"meta"`
	Read      bool           `json:"read"`
	CreatedAt int64          `json:"createdAt"`
}
