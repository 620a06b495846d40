package domain

import "time"

// UserRole is the platform role of an account.
type UserRole string

const (
	UserRoleAdmin  UserRole = "admin"
	UserRoleUser   UserRole = "user"
	UserRoleViewer UserRole = "viewer"
)

// Valid reports whether r is a known role.
func (r UserRole) Valid() bool {
	switch r {
	case UserRoleAdmin, UserRoleUser, UserRoleViewer:
		return true
	}
	return false
}

// User is the account returned by /users/me and the admin listing.
type User struct {
	ID                  int64    `json:"id"`
	Email               string   `json:"email"`
	FullName            string   `json:"full_name,omitempty"`
	Role                UserRole `json:"role"`
	Plan                string   `json:"plan"`
	TokenUsageThisMonth int      `json:"token_usage_this_month"`
}

// Registration is the body of the three account-creation endpoints.
type Registration struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
}

// Validate rejects empty required fields before any request is sent.
func (r Registration) Validate() error {
	if r.Email == "" {
		return &ValidationError{Field: "email", Message: "email is required"}
	}
	if r.Password == "" {
		return &ValidationError{Field: "password", Message: "password is required"}
	}
	return nil
}

// ProfileUpdate is the body of PUT /users/me.
type ProfileUpdate struct {
	FullName *string `json:"full_name,omitempty"`
	Email    *string `json:"email,omitempty"`
}

// AccessToken is the response of POST /login/access-token.
type AccessToken struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// Integration is a third-party credential registered for the current user.
// The token itself is never returned by the backend.
type Integration struct {
	ID          int64     `json:"id"`
	ServiceName string    `json:"service_name"`
	CreatedAt   Timestamp `json:"created_at"`
}

// IntegrationCreate is the body of POST /integrations/.
type IntegrationCreate struct {
	ServiceName string `json:"service_name"`
	Token       string `json:"token"`
}

// Validate rejects empty required fields before any request is sent.
func (i IntegrationCreate) Validate() error {
	if i.ServiceName == "" {
		return &ValidationError{Field: "service_name", Message: "service name is required"}
	}
	if i.Token == "" {
		return &ValidationError{Field: "token", Message: "token is required"}
	}
	return nil
}

// RedirectSession is returned by the billing endpoints.
type RedirectSession struct {
	URL string `json:"url"`
}

// Analytics is the admin platform summary.
type Analytics struct {
	TotalUsers         int               `json:"total_users"`
	TotalAgents        int               `json:"total_agents"`
	TotalMessages      int               `json:"total_messages"`
	AvgResponseTime    float64           `json:"avg_response_time"`
	TotalTokensUsed    int               `json:"total_tokens_used"`
	MessagesTimeSeries []TimeSeriesPoint `json:"messages_time_series"`
}

// TimeSeriesPoint is one day of message volume.
type TimeSeriesPoint struct {
	Date     string `json:"date"`
	Messages int    `json:"messages"`
}

// Day parses Date; a malformed date yields the zero time.
func (p TimeSeriesPoint) Day() time.Time {
	t, _ := time.Parse(time.DateOnly, p.Date)
	return t
}
