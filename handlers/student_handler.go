package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"studyPathAPI/internal/types/challenge"
	"studyPathAPI/middleware"
	"studyPathAPI/services"
	"studyPathAPI/utils"
)

// StudentHandler serves the Today's Task surface: the dashboard payload and
// the slot mutations (add second slot, swap, snooze).
type StudentHandler struct {
	todayService     *services.TodayService
	challengeService *services.ChallengeService
	userService      *services.UserService
	notifier         utils.NotificationGenerator
}

func NewStudentHandler(todayService *services.TodayService, challengeService *services.ChallengeService, userService *services.UserService) *StudentHandler {
	return &StudentHandler{
		todayService:     todayService,
		challengeService: challengeService,
		userService:      userService,
	}
}

// SetNotifier wires the post-view notification refresh. Optional.
func (h *StudentHandler) SetNotifier(n utils.NotificationGenerator) {
	h.notifier = n
}

func (h *StudentHandler) userID(ctx context.Context, w http.ResponseWriter) (uuid.UUID, bool) {
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

// GET /api/v1/student/today
func (h *StudentHandler) GetToday(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := h.userID(ctx, w)
	if !ok {
		return
	}

	today, err := h.todayService.Today(ctx, userID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	if h.notifier != nil {
		utils.RefreshAfterLogin(h.notifier, userID)
	}

	respondWithJSON(w, http.StatusOK, today)
}

// POST /api/v1/student/today/add-slot
func (h *StudentHandler) AddSecondSlot(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := h.userID(ctx, w)
	if !ok {
		return
	}

	resp, err := h.todayService.AddSecondSlot(ctx, userID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	code := http.StatusCreated
	if resp.AlreadyEnabled {
		code = http.StatusOK
	}
	respondWithJSON(w, code, resp)
}

// POST /api/v1/student/today/swap
func (h *StudentHandler) SwapChallenge(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := h.userID(ctx, w)
	if !ok {
		return
	}

	var body challenge.SwapRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if body.Slot == 0 {
		body.Slot = services.SlotPrimary
	}

	resp, err := h.todayService.Swap(ctx, userID, body.Slot, body.NewChallengeID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, resp)
}

// POST /api/v1/student/today/snooze
func (h *StudentHandler) SnoozeChallenge(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := h.userID(ctx, w)
	if !ok {
		return
	}

	var body challenge.SnoozeRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	resp, err := h.todayService.Snooze(ctx, userID, body.ChallengeID, body.Days)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, resp)
}

// POST /api/v1/student/challenges/{id}/complete
//
// Force-completes a whole challenge without walking its objectives. Kept for
// the older client surface; the objective flow is the preferred path.
func (h *StudentHandler) CompleteChallenge(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := h.userID(ctx, w)
	if !ok {
		return
	}

	challengeID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid challenge ID")
		return
	}

	result, err := h.challengeService.CompleteChallenge(ctx, userID, challengeID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	if h.notifier != nil {
		utils.StreakAfterCompletion(h.notifier, userID)
	}

	respondWithJSON(w, http.StatusOK, result)
}
