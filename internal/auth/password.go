package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"github.com/GracePathHQ/gracepath-web/internal/db"
	"github.com/GracePathHQ/gracepath-web/internal/logger"
	"github.com/GracePathHQ/gracepath-web/internal/validation"
)

// BcryptCost balances security and login latency (~250ms on modern hardware)
const BcryptCost = 12

const minPasswordLength = 8

// HashPassword creates a bcrypt hash of the password
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(bytes), nil
}

// CheckPassword compares a password against a bcrypt hash in constant time
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

type credentialsRequest struct {
	Email    string  `json:"email"`
	Password string  `json:"password"`
	Name     *string `json:"name,omitempty"`
}

type userResponse struct {
	ID    int64   `json:"id"`
	Email string  `json:"email"`
	Name  *string `json:"name,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// HandleRegister handles POST /auth/register
func HandleRegister(database *db.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		log := logger.Ctx(ctx)

		var req credentialsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		email := validation.NormalizeEmail(req.Email)
		if !validation.IsValidEmail(email) {
			writeError(w, http.StatusBadRequest, "Invalid email address")
			return
		}
		if len(req.Password) < minPasswordLength {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("Password must be at least %d characters", minPasswordLength))
			return
		}

		hash, err := HashPassword(req.Password)
		if err != nil {
			log.Error("Failed to hash password", "error", err)
			writeError(w, http.StatusInternalServerError, "Registration failed")
			return
		}

		user, err := database.CreateUser(ctx, email, req.Name, hash)
		if err != nil {
			if errors.Is(err, db.ErrEmailTaken) {
				writeError(w, http.StatusConflict, "Email is already registered")
				return
			}
			log.Error("Failed to create user", "error", err)
			writeError(w, http.StatusInternalServerError, "Registration failed")
			return
		}

		if err := CreateSession(ctx, w, database, user.ID); err != nil {
			log.Error("Failed to create session", "error", err, "user_id", user.ID)
			writeError(w, http.StatusInternalServerError, "Registration failed")
			return
		}

		log.Info("User registered", "user_id", user.ID)
		writeJSON(w, http.StatusCreated, userResponse{ID: user.ID, Email: user.Email, Name: user.Name})
	}
}

// HandleLogin handles POST /auth/login
func HandleLogin(database *db.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		log := logger.Ctx(ctx)

		var req credentialsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		email := validation.NormalizeEmail(req.Email)
		if !validation.IsValidEmail(email) || req.Password == "" {
			writeError(w, http.StatusBadRequest, "Email and password are required")
			return
		}

		user, hash, err := database.GetUserCredentials(ctx, email)
		if err != nil {
			if errors.Is(err, db.ErrUserNotFound) {
				log.Warn("Failed login attempt", "email", email)
				writeError(w, http.StatusUnauthorized, "Invalid email or password")
				return
			}
			log.Error("Login lookup failed", "error", err)
			writeError(w, http.StatusInternalServerError, "Login failed")
			return
		}

		if !CheckPassword(hash, req.Password) {
			log.Warn("Failed login attempt", "email", email)
			writeError(w, http.StatusUnauthorized, "Invalid email or password")
			return
		}

		if err := CreateSession(ctx, w, database, user.ID); err != nil {
			log.Error("Failed to create session", "error", err, "user_id", user.ID)
			writeError(w, http.StatusInternalServerError, "Login failed")
			return
		}

		log.Info("Login successful", "user_id", user.ID)
		writeJSON(w, http.StatusOK, userResponse{ID: user.ID, Email: user.Email, Name: user.Name})
	}
}

// HandleLogout handles POST /auth/logout
func HandleLogout(database *db.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ClearSession(r.Context(), w, r, database)
		w.WriteHeader(http.StatusNoContent)
	}
}
