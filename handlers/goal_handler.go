package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"studyPathAPI/middleware"
	"studyPathAPI/services"
)

type GoalHandler struct {
	goalService *services.GoalService
	userService *services.UserService
}

func NewGoalHandler(goalService *services.GoalService, userService *services.UserService) *GoalHandler {
	return &GoalHandler{
		goalService: goalService,
		userService: userService,
	}
}

func (h *GoalHandler) userID(ctx context.Context, w http.ResponseWriter) (uuid.UUID, bool) {
	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return uuid.Nil, false
	}
	userID, err := h.userService.ResolveClerkID(ctx, clerkID)
	if err != nil {
		respondWithServiceError(w, err)
		return uuid.Nil, false
	}
	return userID, true
}

// GET /api/v1/goals/active
func (h *GoalHandler) GetActiveGoal(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := h.userID(ctx, w)
	if !ok {
		return
	}

	active, err := h.goalService.GetOrAssignActiveGoal(ctx, userID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, active)
}

// POST /api/v1/goals/steps/{id}/complete
func (h *GoalHandler) CompleteStep(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := h.userID(ctx, w)
	if !ok {
		return
	}

	stepID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid step ID")
		return
	}

	result, err := h.goalService.CompleteStep(ctx, userID, stepID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, result)
}

// POST /api/v1/goals/{id}/snooze
func (h *GoalHandler) SnoozeGoal(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := h.userID(ctx, w)
	if !ok {
		return
	}

	goalID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid goal ID")
		return
	}

	var body struct {
		Days int `json:"days"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	replacement, snoozedUntil, err := h.goalService.SnoozeGoal(ctx, userID, goalID, body.Days)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	resp := map[string]interface{}{
		"snoozed_until":      snoozedUntil,
		"new_goal_activated": replacement != nil,
	}
	if replacement != nil {
		resp["new_goal_id"] = replacement.GoalID
	}
	respondWithJSON(w, http.StatusOK, resp)
}
