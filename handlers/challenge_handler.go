package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"studyPathAPI/middleware"
	"studyPathAPI/services"
	"studyPathAPI/utils"
)

type ChallengeHandler struct {
	challengeService *services.ChallengeService
	userService      *services.UserService
	notifier         utils.NotificationGenerator
}

func NewChallengeHandler(challengeService *services.ChallengeService, userService *services.UserService) *ChallengeHandler {
	return &ChallengeHandler{
		challengeService: challengeService,
		userService:      userService,
	}
}

func (h *ChallengeHandler) SetNotifier(n utils.NotificationGenerator) {
	h.notifier = n
}

// GET /api/v1/challenges/active
func (h *ChallengeHandler) GetActiveChallenge(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}
	userID, err := h.userService.ResolveClerkID(ctx, clerkID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	active, err := h.challengeService.GetOrAssignActive(ctx, userID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, active)
}

// POST /api/v1/objectives/{id}/complete
func (h *ChallengeHandler) CompleteObjective(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}
	userID, err := h.userService.ResolveClerkID(ctx, clerkID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	objectiveID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid objective ID")
		return
	}

	result, err := h.challengeService.CompleteObjective(ctx, userID, objectiveID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	if h.notifier != nil {
		utils.StreakAfterCompletion(h.notifier, userID)
	}

	respondWithJSON(w, http.StatusOK, result)
}

// GET /api/v1/challenges/{id}/chain?depth=5
func (h *ChallengeHandler) PreviewChain(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	challengeID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid challenge ID")
		return
	}

	depth, _ := strconv.Atoi(r.URL.Query().Get("depth"))

	chain, err := h.challengeService.PreviewChain(ctx, challengeID, depth)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{"chain": chain})
}
