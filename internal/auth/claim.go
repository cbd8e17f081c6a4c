package auth

import (
	"crypto/rand"
	"encoding/base32"
	"net/http"
	"sync"
	"time"

	"github.com/streamvault/streamvault/internal/httputil"
	"github.com/streamvault/streamvault/internal/models"
)

// claimTTL bounds how long an unconfirmed pairing code stays valid.
const claimTTL = 2 * time.Minute

// claimResult is what a confirmed pairing hands back to the device
// that started it.
type claimResult struct {
	userID   models.UserID
	deviceID models.DeviceID
	isOwner  bool
}

type pendingClaim struct {
	deviceName string
	code       string
	expiresAt  time.Time
	confirmed  bool
	result     claimResult
}

// ClaimRegistry pairs a new device with an already-authenticated
// account without ever asking the new device for a password: the
// device posts a device_token it generated itself to claim/start and
// gets back a short code to display; a second, signed-in client enters
// that code via claim/confirm. The device then polls claim/start again
// with the same device_token until it sees the confirmed session. Kept
// entirely in memory, like the scan queue's debounce set - a pairing
// in flight across a process restart is simply lost and the device
// starts over.
type ClaimRegistry struct {
	mu          sync.Mutex
	byToken     map[string]*pendingClaim
	codeToToken map[string]string
}

func NewClaimRegistry() *ClaimRegistry {
	return &ClaimRegistry{
		byToken:     make(map[string]*pendingClaim),
		codeToToken: make(map[string]string),
	}
}

func newClaimCode() (string, error) {
	buf := make([]byte, 5)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(buf)[:8], nil
}

func (c *ClaimRegistry) evictLocked(token string, code string) {
	delete(c.byToken, token)
	delete(c.codeToToken, code)
}

// setupStatus reports whether the instance still needs its first-run
// admin account, so a client knows whether to show FirstRunSetup.
func (h *Handler) setupStatus(w http.ResponseWriter, r *http.Request) {
	var userCount, libraryCount int
	if err := h.db.QueryRow("SELECT COUNT(*) FROM users").Scan(&userCount); err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "INTERNAL", "failed to count users")
		return
	}
	h.db.QueryRow("SELECT COUNT(*) FROM libraries").Scan(&libraryCount)

	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"needs_setup":          userCount == 0,
		"has_admin":            userCount > 0,
		"requires_setup_token": false,
		"user_count":           userCount,
		"library_count":        libraryCount,
	})
}

// claimStart both creates a pairing code (first call for a given
// device_token) and polls for its confirmation (every call after). A
// still-pending claim returns 202 with the code; a confirmed one
// returns the same session shape login/refresh do and consumes the
// claim.
func (h *Handler) claimStart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DeviceToken string `json:"device_token"`
		DeviceName  string `json:"device_name,omitempty"`
	}
	if err := httputil.ReadJSON(r, &req); err != nil || req.DeviceToken == "" {
		httputil.WriteError(w, http.StatusBadRequest, "MISSING_FIELDS", "device_token is required")
		return
	}

	h.claims.mu.Lock()
	pc, exists := h.claims.byToken[req.DeviceToken]
	if exists && time.Now().After(pc.expiresAt) {
		h.claims.evictLocked(req.DeviceToken, pc.code)
		exists = false
	}
	if !exists {
		if req.DeviceName == "" {
			h.claims.mu.Unlock()
			httputil.WriteError(w, http.StatusBadRequest, "MISSING_FIELDS", "device_name is required to start a new claim")
			return
		}
		code, err := newClaimCode()
		if err != nil {
			h.claims.mu.Unlock()
			httputil.WriteError(w, http.StatusInternalServerError, "INTERNAL", "failed to generate claim code")
			return
		}
		pc = &pendingClaim{deviceName: req.DeviceName, code: code, expiresAt: time.Now().Add(claimTTL)}
		h.claims.byToken[req.DeviceToken] = pc
		h.claims.codeToToken[code] = req.DeviceToken
	}

	confirmed := pc.confirmed
	result := pc.result
	code := pc.code
	if confirmed {
		h.claims.evictLocked(req.DeviceToken, code)
	}
	h.claims.mu.Unlock()

	if !confirmed {
		httputil.WriteJSON(w, http.StatusAccepted, map[string]interface{}{
			"status":     "pending",
			"code":       code,
			"expires_in": int(claimTTL.Seconds()),
		})
		return
	}

	h.issueSession(w, result.userID, result.deviceID, result.isOwner)
}

// claimConfirm is called by an already-authenticated client that read
// the code off the pairing device's screen. It registers the new
// device under the caller's account and marks the claim confirmed so
// the next claimStart poll picks up a session.
func (h *Handler) claimConfirm(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	if user == nil {
		httputil.WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
		return
	}
	var req struct {
		Code string `json:"code"`
	}
	if err := httputil.ReadJSON(r, &req); err != nil || req.Code == "" {
		httputil.WriteError(w, http.StatusBadRequest, "MISSING_FIELDS", "code is required")
		return
	}

	h.claims.mu.Lock()
	token, ok := h.claims.codeToToken[req.Code]
	var pc *pendingClaim
	if ok {
		pc, ok = h.claims.byToken[token]
	}
	if ok && time.Now().After(pc.expiresAt) {
		h.claims.evictLocked(token, req.Code)
		ok = false
	}
	h.claims.mu.Unlock()
	if !ok {
		httputil.WriteError(w, http.StatusNotFound, "UNKNOWN_CODE", "claim code not found or expired")
		return
	}

	device, err := h.registerDevice(user.UserID, pc.deviceName)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "INTERNAL", "failed to register device")
		return
	}

	h.claims.mu.Lock()
	pc.confirmed = true
	pc.result = claimResult{userID: user.UserID, deviceID: device.ID, isOwner: user.IsOwner}
	h.claims.mu.Unlock()

	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "paired"})
}
