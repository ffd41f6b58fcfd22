// Входные/выходные модели REST-эндпойнтов /auth/*.
package models

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	Role            Role   `json:"role"`
	PhoneNumber     string `json:"phone_number,omitempty"`
}

// TokenPair — пара токенов в ответе login/register.
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

type AuthResponse struct {
	Message string    `json:"message"`
	User    User      `json:"user"`
	Tokens  TokenPair `json:"tokens"`
}

// CredentialSet собирает набор учётных данных из ответа login/register.
func (r *AuthResponse) CredentialSet() CredentialSet {
	return CredentialSet{
		AccessToken:  r.Tokens.Access,
		RefreshToken: r.Tokens.Refresh,
		User:         r.User.Clone(),
	}
}

type RefreshRequest struct {
	Refresh string `json:"refresh"`
}

// RefreshResponse — ответ /auth/refresh/.
// Refresh заполняется только если backend ротирует refresh-токен.
type RefreshResponse struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh,omitempty"`
}

type LogoutRequest struct {
	Refresh string `json:"refresh"`
}
