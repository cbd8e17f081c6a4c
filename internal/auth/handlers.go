package auth

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/streamvault/streamvault/internal/httputil"
	"github.com/streamvault/streamvault/internal/models"
)

// Handler serves the setup, login, device-pin, refresh, and logout
// endpoints. Apart from the in-memory ClaimRegistry used by device
// pairing, every call is a handful of database round trips against the
// users/devices/auth_tokens tables.
type Handler struct {
	db        *sql.DB
	jwtSecret []byte
	claims    *ClaimRegistry
}

func NewHandler(db *sql.DB, jwtSecret []byte) *Handler {
	return &Handler{db: db, jwtSecret: jwtSecret, claims: NewClaimRegistry()}
}

// Router serves the session endpoints: login, PIN login, PIN setup,
// refresh, logout. First-run setup and device pairing live under
// SetupRouter, mounted separately by internal/api since they sit at a
// different URL prefix.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.Post("/login", h.login)
	r.Post("/login/pin", h.loginPIN)
	r.Post("/pin", h.setPIN)
	r.Post("/refresh", h.refresh)
	r.Post("/logout", h.logout)
	return r
}

// SetupRouter serves the unauthenticated half of first-run setup and
// device pairing: status, admin creation, and claim/start. claim/confirm
// requires an authenticated caller, so internal/api mounts
// ClaimConfirmHandler separately behind its auth middleware rather than
// through this router.
func (h *Handler) SetupRouter() chi.Router {
	r := chi.NewRouter()
	r.Get("/status", h.setupStatus)
	r.Post("/create-admin", h.setup)
	r.Post("/claim/start", h.claimStart)
	return r
}

// ClaimConfirmHandler exposes claimConfirm for mounting behind an auth
// middleware the caller supplies.
func (h *Handler) ClaimConfirmHandler() http.HandlerFunc { return h.claimConfirm }

// setup creates the owner account. It only succeeds once: if any user
// already exists, the account holder is expected to use /login instead.
func (h *Handler) setup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FullName   string `json:"full_name"`
		Email      string `json:"email"`
		Password   string `json:"password"`
		DeviceName string `json:"device_name"`
	}
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "INVALID_JSON", "invalid request body")
		return
	}
	if req.FullName == "" || req.Email == "" || req.Password == "" || req.DeviceName == "" {
		httputil.WriteError(w, http.StatusBadRequest, "MISSING_FIELDS", "full_name, email, password, and device_name are required")
		return
	}

	var count int
	h.db.QueryRow("SELECT COUNT(*) FROM users").Scan(&count)
	if count > 0 {
		httputil.WriteError(w, http.StatusConflict, "ALREADY_SET_UP", "an account already exists; use /login")
		return
	}

	req.Email = NormalizeEmail(req.Email)
	if err := ValidatePassword(req.Password, 8, false); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "WEAK_PASSWORD", err.Error())
		return
	}
	hash, err := HashPassword(req.Password)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "INTERNAL", "failed to hash password")
		return
	}

	userID := models.NewUserID()
	_, err = h.db.Exec(
		`INSERT INTO users (id, full_name, email, password_hash, is_owner) VALUES ($1, $2, $3, $4, true)`,
		userID, req.FullName, req.Email, hash,
	)
	if err != nil {
		httputil.WriteError(w, http.StatusConflict, "EMAIL_EXISTS", "email already registered")
		return
	}

	device, err := h.registerDevice(userID, req.DeviceName)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "INTERNAL", "failed to register device")
		return
	}

	h.issueSession(w, userID, device.ID, true)
}

// login authenticates with the account password and either binds a new
// device (when device_name is given and not yet known) or reuses an
// existing device_id supplied by the client.
func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email      string `json:"email"`
		Password   string `json:"password"`
		DeviceID   string `json:"device_id,omitempty"`
		DeviceName string `json:"device_name,omitempty"`
	}
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "INVALID_JSON", "invalid request body")
		return
	}
	req.Email = NormalizeEmail(req.Email)

	var userID models.UserID
	var passwordHash string
	var isOwner bool
	err := h.db.QueryRow(
		"SELECT id, password_hash, is_owner FROM users WHERE email=$1", req.Email,
	).Scan(&userID, &passwordHash, &isOwner)
	if err != nil || !CheckPassword(passwordHash, req.Password) {
		httputil.WriteError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid email or password")
		return
	}

	var deviceID models.DeviceID
	if req.DeviceID != "" {
		parsed, parseErr := uuid.Parse(req.DeviceID)
		if parseErr != nil {
			httputil.WriteError(w, http.StatusBadRequest, "INVALID_DEVICE", "invalid device_id")
			return
		}
		deviceID = models.DeviceID(parsed)
		var owner models.UserID
		if err := h.db.QueryRow("SELECT user_id FROM devices WHERE id=$1", deviceID).Scan(&owner); err != nil || owner != userID {
			httputil.WriteError(w, http.StatusUnauthorized, "UNKNOWN_DEVICE", "device not registered to this account")
			return
		}
	} else {
		if req.DeviceName == "" {
			httputil.WriteError(w, http.StatusBadRequest, "MISSING_FIELDS", "device_name is required for a new device")
			return
		}
		device, regErr := h.registerDevice(userID, req.DeviceName)
		if regErr != nil {
			httputil.WriteError(w, http.StatusInternalServerError, "INTERNAL", "failed to register device")
			return
		}
		deviceID = device.ID
	}

	h.issueSession(w, userID, deviceID, isOwner)
}

// loginPIN re-authenticates an already-trusted device using its short
// PIN instead of the account password. Failed attempts count toward a
// lockout; PIN correctness never short-circuits the attempt counter.
func (h *Handler) loginPIN(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DeviceID string `json:"device_id"`
		PIN      string `json:"pin"`
	}
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "INVALID_JSON", "invalid request body")
		return
	}
	deviceUUID, err := uuid.Parse(req.DeviceID)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "INVALID_DEVICE", "invalid device_id")
		return
	}
	deviceID := models.DeviceID(deviceUUID)

	var userID models.UserID
	var isOwner bool
	var pinHash sql.NullString
	var failedAttempts int
	var lockedUntil sql.NullTime
	err = h.db.QueryRow(`
		SELECT d.user_id, u.is_owner, d.pin_hash, d.failed_pin_attempts, d.locked_until
		FROM devices d JOIN users u ON u.id = d.user_id
		WHERE d.id=$1`, deviceID,
	).Scan(&userID, &isOwner, &pinHash, &failedAttempts, &lockedUntil)
	if err != nil || !pinHash.Valid {
		httputil.WriteError(w, http.StatusUnauthorized, "INVALID_PIN", "invalid PIN")
		return
	}

	now := time.Now()
	if lockedUntil.Valid && now.Before(lockedUntil.Time) {
		httputil.WriteError(w, http.StatusTooManyRequests, "DEVICE_LOCKED", "too many failed PIN attempts; try again later")
		return
	}

	if !CheckPassword(pinHash.String, req.PIN) {
		failedAttempts++
		if failedAttempts >= models.MaxPINAttempts {
			until := now.Add(models.PINLockoutDuration)
			h.db.Exec("UPDATE devices SET failed_pin_attempts=$1, locked_until=$2 WHERE id=$3", failedAttempts, until, deviceID)
			httputil.WriteError(w, http.StatusTooManyRequests, "DEVICE_LOCKED", "too many failed PIN attempts; device locked")
			return
		}
		h.db.Exec("UPDATE devices SET failed_pin_attempts=$1 WHERE id=$2", failedAttempts, deviceID)
		httputil.WriteError(w, http.StatusUnauthorized, "INVALID_PIN", "invalid PIN")
		return
	}

	h.db.Exec("UPDATE devices SET failed_pin_attempts=0, locked_until=NULL, last_seen_at=$1 WHERE id=$2", now, deviceID)
	h.issueSession(w, userID, deviceID, isOwner)
}

// setPIN lets an already-authenticated device adopt a PIN for future
// loginPIN calls. Requires a valid access token, not the PIN itself.
func (h *Handler) setPIN(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	if user == nil {
		httputil.WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
		return
	}
	var req struct {
		PIN string `json:"pin"`
	}
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "INVALID_JSON", "invalid request body")
		return
	}
	if !ValidatePIN(req.PIN, 4) {
		httputil.WriteError(w, http.StatusBadRequest, "WEAK_PIN", "pin must be at least 4 digits")
		return
	}
	hash, err := HashPassword(req.PIN)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "INTERNAL", "failed to hash pin")
		return
	}
	h.db.Exec("UPDATE devices SET pin_hash=$1, failed_pin_attempts=0, locked_until=NULL WHERE id=$2 AND user_id=$3",
		hash, user.DeviceID, user.UserID)
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "pin set"})
}

// refresh exchanges the opaque refresh_token cookie for a new access
// token and rotates the refresh token.
func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie("refresh_token")
	if err != nil || cookie.Value == "" {
		httputil.WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing refresh token")
		return
	}
	tokenHash := HashRefreshToken(cookie.Value)

	var userID models.UserID
	var deviceID models.DeviceID
	var isOwner bool
	var expiresAt time.Time
	var revokedAt sql.NullTime
	err = h.db.QueryRow(`
		SELECT t.user_id, t.device_id, u.is_owner, t.expires_at, t.revoked_at
		FROM auth_tokens t JOIN users u ON u.id = t.user_id
		WHERE t.token_hash=$1`, tokenHash,
	).Scan(&userID, &deviceID, &isOwner, &expiresAt, &revokedAt)
	now := time.Now()
	if err != nil || revokedAt.Valid || now.After(expiresAt) {
		httputil.WriteError(w, http.StatusUnauthorized, "INVALID_REFRESH_TOKEN", "refresh token is invalid or expired")
		return
	}

	h.db.Exec("UPDATE auth_tokens SET revoked_at=$1 WHERE token_hash=$2", now, tokenHash)
	h.issueSession(w, userID, deviceID, isOwner)
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie("refresh_token"); err == nil && cookie.Value != "" {
		h.db.Exec("UPDATE auth_tokens SET revoked_at=$1 WHERE token_hash=$2", time.Now(), HashRefreshToken(cookie.Value))
	}
	http.SetCookie(w, &http.Cookie{
		Name:     "refresh_token",
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

func (h *Handler) registerDevice(userID models.UserID, name string) (models.Device, error) {
	device := models.Device{
		ID:     models.NewDeviceID(),
		UserID: userID,
		Name:   name,
	}
	_, err := h.db.Exec(
		"INSERT INTO devices (id, user_id, name, registered_at, last_seen_at) VALUES ($1, $2, $3, now(), now())",
		device.ID, device.UserID, device.Name,
	)
	return device, err
}

// issueSession signs a fresh access token, mints and stores a fresh
// refresh token, and writes the refresh token as an HttpOnly cookie.
// The access token is returned in the JSON body for the client to hold
// in memory and attach as a bearer token.
func (h *Handler) issueSession(w http.ResponseWriter, userID models.UserID, deviceID models.DeviceID, isOwner bool) {
	accessToken, err := IssueAccessToken(h.jwtSecret, userID, deviceID, isOwner)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "INTERNAL", "failed to issue access token")
		return
	}
	refreshToken, err := GenerateRefreshToken()
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "INTERNAL", "failed to issue refresh token")
		return
	}
	expiresAt := time.Now().Add(RefreshTokenTTL)
	h.db.Exec(
		"INSERT INTO auth_tokens (id, user_id, device_id, token_hash, expires_at, created_at) VALUES ($1, $2, $3, $4, $5, now())",
		uuid.New(), userID, deviceID, HashRefreshToken(refreshToken), expiresAt,
	)

	http.SetCookie(w, &http.Cookie{
		Name:     "refresh_token",
		Value:    refreshToken,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(RefreshTokenTTL.Seconds()),
	})

	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"user_id":      userID,
		"device_id":    deviceID,
		"is_owner":     isOwner,
		"access_token": accessToken,
		"expires_in":   int(AccessTokenTTL.Seconds()),
	})
}
