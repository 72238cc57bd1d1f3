package auth

// AdminLoginRequest — вход администратора
type AdminLoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// TokenResponse — выданный токен доступа
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
	Role        string `json:"role"`
}

// ChangePasswordRequest — смена пароля администратора
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// Identity is the verified content of a token.
type Identity struct {
	Subject string
	Role    string
}

// ErrorResponse — формат ошибки
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
