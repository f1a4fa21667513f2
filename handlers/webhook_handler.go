package handlers

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"

	"studyPathAPI/services"
)

// WebhookHandler syncs Clerk user lifecycle events into the users table.
// Students never self-register against this API directly.
type WebhookHandler struct {
	userService *services.UserService
}

func NewWebhookHandler(userService *services.UserService) *WebhookHandler {
	return &WebhookHandler{userService: userService}
}

type clerkWebhookEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type clerkUserData struct {
	ID             string `json:"id"`
	Username       string `json:"username"`
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	EmailAddresses []struct {
		EmailAddress string `json:"email_address"`
	} `json:"email_addresses"`
}

// POST /webhooks/clerk
func (h *WebhookHandler) HandleClerkWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Error reading body", http.StatusBadRequest)
		return
	}

	if !verifyClerkSignature(r, body) {
		log.Println("Invalid webhook signature")
		http.Error(w, "Invalid signature", http.StatusUnauthorized)
		return
	}

	var event clerkWebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		http.Error(w, "Error parsing webhook", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	switch event.Type {
	case "user.created", "user.updated":
		var userData clerkUserData
		if err := json.Unmarshal(event.Data, &userData); err != nil {
			http.Error(w, "Error parsing user data", http.StatusBadRequest)
			return
		}

		email := ""
		if len(userData.EmailAddresses) > 0 {
			email = userData.EmailAddresses[0].EmailAddress
		}
		displayName := userData.Username
		if displayName == "" {
			displayName = userData.FirstName + " " + userData.LastName
		}

		if _, err := h.userService.EnsureUser(ctx, userData.ID, email, displayName); err != nil {
			log.Printf("Error syncing user %s: %v", userData.ID, err)
			http.Error(w, "Error processing webhook", http.StatusInternalServerError)
			return
		}

	case "user.deleted":
		var userData struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(event.Data, &userData); err != nil {
			http.Error(w, "Error parsing user data", http.StatusBadRequest)
			return
		}
		if err := h.userService.DeleteByClerkID(ctx, userData.ID); err != nil {
			log.Printf("Error deleting user %s: %v", userData.ID, err)
		}

	default:
		log.Printf("Unhandled webhook event type: %s", event.Type)
	}

	respondWithJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// verifyClerkSignature checks the svix v1 HMAC Clerk puts on webhook
// deliveries. With no secret configured (local dev) verification is skipped.
func verifyClerkSignature(r *http.Request, body []byte) bool {
	secret := os.Getenv("CLERK_WEBHOOK_SECRET")
	if secret == "" {
		log.Println("CLERK_WEBHOOK_SECRET not set, skipping signature verification")
		return true
	}

	svixID := r.Header.Get("svix-id")
	svixTimestamp := r.Header.Get("svix-timestamp")
	svixSignature := r.Header.Get("svix-signature")
	if svixID == "" || svixTimestamp == "" || svixSignature == "" {
		return false
	}

	signedContent := fmt.Sprintf("%s.%s.%s", svixID, svixTimestamp, body)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(signedContent))
	expected := hex.EncodeToString(mac.Sum(nil))

	if !bytes.HasPrefix([]byte(svixSignature), []byte("v1,")) {
		return false
	}
	return hmac.Equal([]byte(expected), []byte(svixSignature[3:]))
}
