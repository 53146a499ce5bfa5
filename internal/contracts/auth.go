package contracts

// RPC request/response payloads for the auth queues. Requests are flat JSON
// objects; validation tags are enforced by the RPC handlers before any domain
// logic runs.

type RegisterRequest struct {
	Username string `json:"username" validate:"required,min=3,max=32"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

type RegisterResponse struct {
	AccountID int64 `json:"account_id"`
}

type IssueTokenRequest struct {
	Username  string `json:"username" validate:"required"`
	Password  string `json:"password" validate:"required"`
	UserAgent string `json:"user_agent,omitempty"`
	IP        string `json:"ip,omitempty"`
}

// TokenPairResponse is shared by issue and refresh.
type TokenPairResponse struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	AccountID    int64  `json:"account_id"`
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
	UserAgent    string `json:"user_agent,omitempty"`
	IP           string `json:"ip,omitempty"`
}

type LogoutRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type LogoutResponse struct {
	LoggedOut bool `json:"logged_out"`
}

type ValidateTokenRequest struct {
	AccessToken string `json:"access_token" validate:"required"`
}

type ValidateTokenResponse struct {
	Valid        bool     `json:"valid"`
	AccountID    int64    `json:"account_id,omitempty"`
	ClientID     string   `json:"client_id,omitempty"`
	Scopes       []string `json:"scopes,omitempty"`
	Exp          int64    `json:"exp,omitempty"`
	ErrorCode    string   `json:"error_code,omitempty"`
	ErrorMessage string   `json:"error_message,omitempty"`
}
