package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"chmura-plikow/internal/auth"
	"chmura-plikow/internal/database"

	"github.com/google/uuid"
	"github.com/jaevor/go-nanoid"
)

type RegisterRequest struct {
	Name     string `json:"name" example:"Jan Kowalski"`
	Email    string `json:"email" example:"jan@example.com"`
	Password string `json:"password" example:"password123"`
}

type LoginRequest struct {
	Email    string `json:"email" example:"jan@example.com"`
	Password string `json:"password" example:"password123"`
}

type TokenResponse struct {
	AccessToken  string `json:"access_token" example:"eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9...."`
	RefreshToken string `json:"refresh_token" example:"V1StGXR8_Z5jdHi6B-myT78q_Z5jdHi6B-myT78q"`
}

// @Summary      Register a new account
// @Description  Creates a new user account with the default storage quota.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        registerRequest  body      RegisterRequest  true  "Registration data"
// @Success      201              {object}  models.User
// @Failure      400              {string}  string "Missing fields"
// @Failure      409              {string}  string "Email already in use"
// @Failure      500              {string}  string "Internal Server Error"
// @Router       /auth/register [post]
func (s *Server) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Name == "" || req.Email == "" || req.Password == "" {
		http.Error(w, "Missing fields", http.StatusBadRequest)
		return
	}

	hashedPassword, err := auth.HashPassword(req.Password)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	user, err := s.store.CreateUser(r.Context(), database.CreateUserParams{
		Email:        req.Email,
		DisplayName:  req.Name,
		PasswordHash: &hashedPassword,
		QuotaBytes:   s.config.Storage.DefaultQuotaBytes,
	})
	if err != nil {
		if errors.Is(err, database.ErrEmailTaken) {
			http.Error(w, "Email already in use", http.StatusConflict)
			return
		}
		http.Error(w, "Failed to register user", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(user)
}

// @Summary      Logs a user in
// @Description  Authenticates a user and returns a short-lived access token and a long-lived refresh token.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        loginRequest   body      LoginRequest  true  "Login Credentials"
// @Success      200            {object}  TokenResponse
// @Failure      400            {string}  string "Invalid request body"
// @Failure      401            {string}  string "Invalid email or password"
// @Failure      500            {string}  string "Internal Server Error"
// @Router       /auth/login [post]
func (s *Server) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	user, err := s.store.GetUserByEmail(r.Context(), strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	// Konta federacyjne nie mają hasła i nie logują się tą ścieżką.
	if user == nil || user.PasswordHash == nil || !auth.CheckPasswordHash(req.Password, *user.PasswordHash) {
		http.Error(w, "Invalid email or password", http.StatusUnauthorized)
		return
	}

	accessToken, err := auth.GenerateJWT(user, s.config.JWT.Secret)
	if err != nil {
		http.Error(w, "Failed to generate access token", http.StatusInternalServerError)
		return
	}

	generateID, err := nanoid.Standard(40)
	if err != nil {
		log.Printf("CRITICAL: Failed to initialize nanoid generator: %v", err)
		http.Error(w, "Internal server error (token generation)", http.StatusInternalServerError)
		return
	}
	refreshToken := generateID()

	sessionParams := database.CreateSessionParams{
		ID:           uuid.New(),
		UserID:       user.ID,
		RefreshToken: refreshToken,
		UserAgent:    r.UserAgent(),
		ClientIP:     r.RemoteAddr,
		ExpiresAt:    time.Now().Add(7 * 24 * time.Hour),
	}

	if err := s.store.CreateSession(r.Context(), sessionParams); err != nil {
		log.Printf("ERROR: Failed to create session for user %d: %v", user.ID, err)
		http.Error(w, "Failed to process login session", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	})
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" example:"V1StGXR8_Z5jdHi6B-myT78q_Z5jdHi6B-myT78q"`
}

// @Summary      Refresh access token
// @Description  Exchanges a valid refresh token for a new token pair. Implements refresh token rotation.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        refreshTokenRequest   body      RefreshTokenRequest  true  "Refresh Token"
// @Success      200                   {object}  TokenResponse
// @Failure      400                   {string}  string "Invalid request body or missing token"
// @Failure      401                   {string}  string "Invalid or expired refresh token"
// @Failure      500                   {string}  string "Internal Server Error"
// @Router       /auth/refresh [post]
func (s *Server) RefreshTokenHandler(w http.ResponseWriter, r *http.Request) {
	var req RefreshTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.RefreshToken == "" {
		http.Error(w, "Refresh token is required", http.StatusBadRequest)
		return
	}

	var errInvalidRefresh = errors.New("invalid or expired refresh token")
	var newAccessToken, newRefreshToken string

	txErr := s.store.ExecTx(r.Context(), func(q *database.Queries) error {
		user, err := q.GetUserByRefreshToken(r.Context(), req.RefreshToken)
		if err != nil {
			return err
		}
		if user == nil {
			return errInvalidRefresh
		}

		if err := q.DeleteSessionByRefreshToken(r.Context(), req.RefreshToken); err != nil {
			return err
		}

		newAccessToken, err = auth.GenerateJWT(user, s.config.JWT.Secret)
		if err != nil {
			return err
		}

		generateID, err := nanoid.Standard(40)
		if err != nil {
			return err
		}
		newRefreshToken = generateID()

		return q.CreateSession(r.Context(), database.CreateSessionParams{
			ID:           uuid.New(),
			UserID:       user.ID,
			RefreshToken: newRefreshToken,
			UserAgent:    r.UserAgent(),
			ClientIP:     r.RemoteAddr,
			ExpiresAt:    time.Now().Add(7 * 24 * time.Hour),
		})
	})

	if txErr != nil {
		if errors.Is(txErr, errInvalidRefresh) {
			http.Error(w, txErr.Error(), http.StatusUnauthorized)
		} else {
			log.Printf("ERROR: Refresh token transaction failed: %v", txErr)
			http.Error(w, "Failed to refresh token", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(TokenResponse{
		AccessToken:  newAccessToken,
		RefreshToken: newRefreshToken,
	})
}

type ForgotPasswordRequest struct {
	Email string `json:"email" example:"jan@example.com"`
}

type ForgotPasswordResponse struct {
	OK         bool       `json:"ok"`
	Message    string     `json:"message"`
	ResetToken *uuid.UUID `json:"reset_token,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

// @Summary      Request a password reset
// @Description  Creates a reset token valid for one hour. Responds 200 regardless of whether the account exists.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        forgotPasswordRequest  body      ForgotPasswordRequest  true  "Account email"
// @Success      200                    {object}  ForgotPasswordResponse
// @Failure      400                    {string}  string "Email required"
// @Failure      500                    {string}  string "Internal Server Error"
// @Router       /auth/forgot-password [post]
func (s *Server) ForgotPasswordHandler(w http.ResponseWriter, r *http.Request) {
	var req ForgotPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Email) == "" {
		http.Error(w, "Email required", http.StatusBadRequest)
		return
	}

	user, err := s.store.GetUserByEmail(r.Context(), strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	// Celowo ta sama odpowiedź dla nieistniejącego konta - brak enumeracji
	// adresów email.
	if user == nil {
		json.NewEncoder(w).Encode(ForgotPasswordResponse{
			OK:      true,
			Message: "If account exists, a reset token was created",
		})
		return
	}

	token := uuid.New()
	expiresAt := time.Now().Add(1 * time.Hour)
	if _, err := s.store.CreateResetToken(r.Context(), user.ID, token, expiresAt); err != nil {
		http.Error(w, "Failed to create reset token", http.StatusInternalServerError)
		return
	}

	// W produkcji token powinien wyjść mailem; zwracamy go w odpowiedzi dla
	// wygody testów i frontu deweloperskiego.
	json.NewEncoder(w).Encode(ForgotPasswordResponse{
		OK:         true,
		Message:    "Reset token created",
		ResetToken: &token,
		ExpiresAt:  &expiresAt,
	})
}

type ResetPasswordRequest struct {
	Token    string `json:"token" example:"a1b2c3d4-e5f6-7890-1234-567890abcdef"`
	Password string `json:"password" example:"newPassword123"`
}

// @Summary      Reset password
// @Description  Sets a new password in exchange for a valid reset token. All reset tokens and sessions of the account are purged.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        resetPasswordRequest  body      ResetPasswordRequest  true  "Token and new password"
// @Success      200                   {string}  string "ok"
// @Failure      400                   {string}  string "Invalid or expired token"
// @Failure      500                   {string}  string "Internal Server Error"
// @Router       /auth/reset-password [post]
func (s *Server) ResetPasswordHandler(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Token == "" || req.Password == "" {
		http.Error(w, "Missing fields", http.StatusBadRequest)
		return
	}

	token, err := uuid.Parse(req.Token)
	if err != nil {
		http.Error(w, "Invalid or expired token", http.StatusBadRequest)
		return
	}

	hashedPassword, err := auth.HashPassword(req.Password)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	txErr := s.store.ExecTx(r.Context(), func(q *database.Queries) error {
		rt, err := q.GetValidResetToken(r.Context(), token)
		if err != nil {
			return err
		}
		if rt == nil {
			return database.ErrResetTokenInvalid
		}

		if err := q.UpdateUserPassword(r.Context(), rt.UserID, hashedPassword); err != nil {
			return err
		}
		if err := q.PurgeResetTokens(r.Context(), rt.UserID); err != nil {
			return err
		}
		// Zmiana hasła unieważnia wszystkie zalogowane sesje.
		return q.DeleteAllSessionsForUser(r.Context(), rt.UserID)
	})

	if txErr != nil {
		if errors.Is(txErr, database.ErrResetTokenInvalid) {
			http.Error(w, "Invalid or expired token", http.StatusBadRequest)
			return
		}
		http.Error(w, "Failed to reset password", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"ok": true, "message": "Password reset successful"})
}
