package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"chmura-plikow/internal/auth"
	"chmura-plikow/internal/database"
)

type UserResponse struct {
	ID                int64  `json:"id" example:"1"`
	Email             string `json:"email" example:"jan@example.com"`
	DisplayName       string `json:"display_name" example:"Jan Kowalski"`
	StorageQuotaBytes int64  `json:"storage_quota_bytes" example:"1073741824"`
	StorageUsedBytes  int64  `json:"storage_used_bytes" example:"52428800"`
}

// @Summary      Get current user info
// @Description  Retrieves the profile and storage counters of the authenticated user.
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  UserResponse
// @Failure      401  {string}  string "Unauthorized"
// @Failure      404  {string}  string "User not found"
// @Failure      500  {string}  string "Internal Server Error"
// @Router       /me [get]
func (s *Server) GetCurrentUserHandler(w http.ResponseWriter, r *http.Request) {
	claims := GetUserFromContext(r.Context())

	user, err := s.store.GetUserByID(r.Context(), claims.UserID)
	if err != nil {
		http.Error(w, "Failed to retrieve user data", http.StatusInternalServerError)
		return
	}
	if user == nil {
		http.Error(w, "User not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(UserResponse{
		ID:                user.ID,
		Email:             user.Email,
		DisplayName:       user.DisplayName,
		StorageQuotaBytes: user.StorageQuotaBytes,
		StorageUsedBytes:  user.StorageUsedBytes,
	})
}

type UpdateProfileRequest struct {
	Name     *string `json:"name"`
	Email    *string `json:"email"`
	Password *string `json:"password"`
}

// @Summary      Update profile
// @Description  Updates name, email and/or password of the authenticated user. Only provided fields change.
// @Tags         users
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  UserResponse
// @Failure      400  {string}  string "Bad Request"
// @Failure      401  {string}  string "Unauthorized"
// @Failure      409  {string}  string "Email already in use"
// @Failure      500  {string}  string "Internal Server Error"
// @Router       /me [patch]
func (s *Server) UpdateProfileHandler(w http.ResponseWriter, r *http.Request) {
	claims := GetUserFromContext(r.Context())

	var req UpdateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	params := database.UpdateUserProfileParams{UserID: claims.UserID}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			http.Error(w, "Name cannot be empty", http.StatusBadRequest)
			return
		}
		params.DisplayName = &name
	}
	if req.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*req.Email))
		if email == "" {
			http.Error(w, "Email cannot be empty", http.StatusBadRequest)
			return
		}
		params.Email = &email
	}
	if req.Password != nil {
		if *req.Password == "" {
			http.Error(w, "Password cannot be empty", http.StatusBadRequest)
			return
		}
		hashed, err := auth.HashPassword(*req.Password)
		if err != nil {
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		params.PasswordHash = &hashed
	}

	if params.DisplayName == nil && params.Email == nil && params.PasswordHash == nil {
		http.Error(w, "No update operation specified (provide 'name', 'email' or 'password')", http.StatusBadRequest)
		return
	}

	user, err := s.store.UpdateUserProfile(r.Context(), params)
	if err != nil {
		if errors.Is(err, database.ErrEmailTaken) {
			http.Error(w, "Email already in use", http.StatusConflict)
			return
		}
		if errors.Is(err, database.ErrUserNotFound) {
			http.Error(w, "User not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to update profile", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(UserResponse{
		ID:                user.ID,
		Email:             user.Email,
		DisplayName:       user.DisplayName,
		StorageQuotaBytes: user.StorageQuotaBytes,
		StorageUsedBytes:  user.StorageUsedBytes,
	})
}

type StorageUsageResponse struct {
	UsedBytes  int64 `json:"used_bytes"`
	QuotaBytes int64 `json:"quota_bytes"`
	// Faktyczny stan policzony z wpisów; może się różnić od licznika konta,
	// gdy po awarii został osierocony blob.
	TotalEntries   int64 `json:"total_entries"`
	TotalSizeBytes int64 `json:"total_size_bytes"`
}

// @Summary      Get storage usage
// @Description  Retrieves the quota counters of the account together with a live recount over its entries.
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  StorageUsageResponse
// @Failure      401  {string}  string "Unauthorized"
// @Failure      404  {string}  string "User not found"
// @Failure      500  {string}  string "Internal Server Error"
// @Router       /me/storage [get]
func (s *Server) GetStorageUsageHandler(w http.ResponseWriter, r *http.Request) {
	claims := GetUserFromContext(r.Context())

	user, err := s.store.GetUserByID(r.Context(), claims.UserID)
	if err != nil {
		http.Error(w, "Failed to retrieve user data", http.StatusInternalServerError)
		return
	}
	if user == nil {
		http.Error(w, "User not found", http.StatusNotFound)
		return
	}

	summary, err := s.store.GetStorageSummary(r.Context(), claims.UserID)
	if err != nil {
		http.Error(w, "Failed to compute storage summary", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(StorageUsageResponse{
		UsedBytes:      user.StorageUsedBytes,
		QuotaBytes:     user.StorageQuotaBytes,
		TotalEntries:   summary.TotalEntries,
		TotalSizeBytes: summary.TotalSizeBytes,
	})
}

type DeleteAccountResponse struct {
	OK             bool     `json:"ok"`
	DeletedBlobs   int      `json:"deleted_blobs"`
	FailedBlobRefs []string `json:"failed_blob_refs,omitempty"`
}

// @Summary      Delete account
// @Description  Permanently deletes the account together with all entries, blobs, reset tokens and sessions. Blob deletion is best-effort; failures are reported per blob.
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  DeleteAccountResponse
// @Failure      401  {string}  string "Unauthorized"
// @Failure      404  {string}  string "User not found"
// @Failure      500  {string}  string "Internal Server Error"
// @Router       /me [delete]
func (s *Server) DeleteAccountHandler(w http.ResponseWriter, r *http.Request) {
	claims := GetUserFromContext(r.Context())

	blobRefs, err := s.store.ListBlobRefsForOwner(r.Context(), claims.UserID)
	if err != nil {
		http.Error(w, "Failed to list account blobs", http.StatusInternalServerError)
		return
	}

	// Najpierw fizyczne pliki - pojedyncze niepowodzenie nie przerywa
	// kasowania konta, ale jest odnotowane w odpowiedzi.
	result := DeleteAccountResponse{OK: true}
	for _, ref := range blobRefs {
		if err := s.storage.Delete(ref); err != nil {
			log.Printf("WARN: Failed to delete blob %s during account deletion: %v", ref, err)
			result.FailedBlobRefs = append(result.FailedBlobRefs, ref)
			continue
		}
		result.DeletedBlobs++
	}

	var deleted bool
	txErr := s.store.ExecTx(r.Context(), func(q *database.Queries) error {
		if err := q.PurgeResetTokens(r.Context(), claims.UserID); err != nil {
			return err
		}
		if err := q.DeleteAllSessionsForUser(r.Context(), claims.UserID); err != nil {
			return err
		}
		// Wpisy i udostępnienia schodzą kaskadą razem z kontem.
		var err error
		deleted, err = q.DeleteUser(r.Context(), claims.UserID)
		return err
	})

	if txErr != nil {
		http.Error(w, "Failed to delete account", http.StatusInternalServerError)
		return
	}
	if !deleted {
		http.Error(w, "User not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}
