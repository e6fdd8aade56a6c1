package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/creditkeeper/internal/common"
	"github.com/dmitrijs2005/creditkeeper/internal/server/handles"
	"github.com/dmitrijs2005/creditkeeper/internal/server/models"
)

type availabilityResponse struct {
	Available bool   `json:"available"`
	Message   string `json:"message"`
}

type updateUsernameRequest struct {
	ExternalID string `json:"externalId"`
	Username   string `json:"username"`
}

type userSummary struct {
	ExternalID       string  `json:"externalId"`
	Email            string  `json:"email"`
	Username         *string `json:"username"`
	FirstName        string  `json:"firstName"`
	LastName         string  `json:"lastName"`
	Photo            string  `json:"photo"`
	CreditBalance    int64   `json:"creditBalance"`
	ProfileCompleted bool    `json:"profileCompleted"`
}

func summarize(u *models.User) userSummary {
	return userSummary{
		ExternalID:       u.ExternalID,
		Email:            u.Email,
		Username:         u.Handle,
		FirstName:        u.FirstName,
		LastName:         u.LastName,
		Photo:            u.Photo,
		CreditBalance:    u.CreditBalance,
		ProfileCompleted: u.ProfileCompleted,
	}
}

func (s *Server) checkUsername(w http.ResponseWriter, r *http.Request) {
	requester, _ := externalIDFromContext(r.Context())

	a, err := s.identity.CheckAvailability(r.Context(), r.URL.Query().Get("username"), requester)
	if err != nil {
		s.logger.Error(r.Context(), "error checking username", "error", err)
		writeJSON(w, http.StatusInternalServerError, availabilityResponse{Message: "Error checking username"})
		return
	}
	writeJSON(w, http.StatusOK, availabilityResponse{Available: a.Available, Message: a.Message})
}

func (s *Server) updateUsername(w http.ResponseWriter, r *http.Request) {
	caller, ok := externalIDFromContext(r.Context())
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req updateUsernameRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.ExternalID != caller {
		s.metrics.HandleCommit("forbidden")
		writeMessage(w, http.StatusForbidden, "Forbidden")
		return
	}

	user, err := s.identity.CommitHandle(r.Context(), req.ExternalID, req.Username)
	if err != nil {
		s.commitFailed(w, r, err)
		return
	}

	s.metrics.HandleCommit("committed")
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Username updated successfully",
		"user":    summarize(user),
	})
}

func (s *Server) commitFailed(w http.ResponseWriter, r *http.Request, err error) {
	var v *handles.Violation
	switch {
	case errors.As(err, &v):
		s.metrics.HandleCommit("invalid")
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"message": v.Message, "reason": string(v.Reason)})
	case errors.Is(err, common.ErrConflict):
		s.metrics.HandleCommit("conflict")
		writeMessage(w, http.StatusConflict, "Username already exists")
	case errors.Is(err, common.ErrHandleAlreadyClaimed):
		s.metrics.HandleCommit("already_claimed")
		writeMessage(w, http.StatusConflict, "Username already set")
	case errors.Is(err, common.ErrUnknownUser):
		s.metrics.HandleCommit("unknown_user")
		writeMessage(w, http.StatusNotFound, "User not found")
	default:
		s.logger.Error(r.Context(), "error updating username", "error", err)
		s.metrics.HandleCommit("error")
		writeMessage(w, http.StatusInternalServerError, "Internal server error")
	}
}

func (s *Server) profileStatus(w http.ResponseWriter, r *http.Request) {
	externalID := strings.TrimSpace(r.URL.Query().Get("externalId"))
	if externalID == "" {
		writeMessage(w, http.StatusBadRequest, "External ID is required")
		return
	}

	st, err := s.identity.ProfileStatus(r.Context(), externalID)
	if err != nil {
		s.logger.Error(r.Context(), "error checking profile status", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"profileCompleted": false,
			"handle":           nil,
			"username":         nil,
			"message":          "Error checking profile status",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"profileCompleted": st.ProfileCompleted,
		"handle":           st.Handle,
		"username":         st.Handle,
		"hasUsername":      st.Handle != nil,
	})
}
