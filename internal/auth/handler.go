package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
)

const (
	maxJSONBodyBytes  = 1 << 20
	refreshCookieName = "refreshToken"
)

type Handler struct {
	service      *Service
	refreshTTL   time.Duration
	cookieSecure bool
}

func NewHandler(service *Service, refreshTTL time.Duration, cookieSecure bool) *Handler {
	return &Handler{
		service:      service,
		refreshTTL:   refreshTTL,
		cookieSecure: cookieSecure,
	}
}

// tokenResponse is the envelope every account endpoint answers with.
// Field names match what the web client expects, legacy "secondName"
// included.
type tokenResponse struct {
	Success     bool   `json:"success"`
	Error       string `json:"error,omitempty"`
	ErrorCode   string `json:"errorCode,omitempty"`
	AccessToken string `json:"accessToken,omitempty"`
	MfaRequired bool   `json:"mfaRequired,omitempty"`
	UserID      int64  `json:"userId,omitempty"`
	FirstName   string `json:"firstName,omitempty"`
	SecondName  string `json:"secondName,omitempty"`
	Email       string `json:"email,omitempty"`
}

type userView struct {
	ID          int64  `json:"id"`
	Email       string `json:"email"`
	FirstName   string `json:"firstName"`
	SecondName  string `json:"secondName"`
	DOB         string `json:"dob,omitempty"`
	Role        Role   `json:"role"`
	Active      bool   `json:"active"`
	Verified    bool   `json:"verified"`
	MfaEnabled  bool   `json:"mfaEnabled"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
	CreatedAt   string `json:"createdAt"`
}

func viewOf(u User) userView {
	return userView{
		ID:          u.ID,
		Email:       u.Email,
		FirstName:   u.FirstName,
		SecondName:  u.LastName,
		DOB:         u.DOB,
		Role:        u.Role,
		Active:      u.Active,
		Verified:    u.Verified != nil,
		MfaEnabled:  u.MfaEnabled,
		PhoneNumber: u.PhoneNumber,
		CreatedAt:   u.CreatedAt.UTC().Format(time.RFC3339),
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var body loginRequest
	if !decodeBody(w, r, &body) {
		return
	}

	result, err := h.service.Login(r.Context(), body.Email, body.Password)
	if err != nil {
		switch {
		case errors.Is(err, ErrMissingCredentials):
			writeFailure(w, http.StatusBadRequest, "L01", "email and password are required")
		case errors.Is(err, ErrUnknownEmail):
			writeFailure(w, http.StatusUnauthorized, "L02", "no account found for this email")
		case errors.Is(err, ErrWrongPassword):
			writeFailure(w, http.StatusUnauthorized, "L03", "incorrect password")
		default:
			serverError(w, err)
		}
		return
	}

	if result.MfaRequired {
		writeJSON(w, http.StatusOK, tokenResponse{
			Success:     true,
			MfaRequired: true,
			UserID:      result.User.UserID,
			FirstName:   result.User.FirstName,
			SecondName:  result.User.LastName,
			Email:       result.User.Email,
		})
		return
	}

	h.setRefreshCookie(w, result.Tokens.RefreshToken)
	writeJSON(w, http.StatusOK, sessionResponse(result))
}

type verifyMfaRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

func (h *Handler) VerifyMfa(w http.ResponseWriter, r *http.Request) {
	var body verifyMfaRequest
	if !decodeBody(w, r, &body) {
		return
	}

	result, err := h.service.VerifyMfaAndIssue(r.Context(), body.Email, body.Code)
	if err != nil {
		switch {
		case errors.Is(err, ErrMfaNotChallenged):
			writeFailure(w, http.StatusBadRequest, "MFA01", "invalid verification request")
		case errors.Is(err, ErrMfaWrongCode):
			writeFailure(w, http.StatusUnauthorized, "MFA02", "verification code is incorrect")
		case errors.Is(err, ErrMfaCodeExpired):
			writeFailure(w, http.StatusUnauthorized, "MFA03", "verification code has expired")
		default:
			serverError(w, err)
		}
		return
	}

	h.setRefreshCookie(w, result.Tokens.RefreshToken)
	writeJSON(w, http.StatusOK, sessionResponse(result))
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// Refresh reads the refresh token from the cookie, falling back to the
// body for clients that cannot carry cookies.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	raw := ""
	if cookie, err := r.Cookie(refreshCookieName); err == nil {
		raw = cookie.Value
	}
	if raw == "" {
		var body refreshRequest
		if dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)); dec.Decode(&body) == nil {
			raw = body.RefreshToken
		}
	}

	result, err := h.service.Refresh(r.Context(), raw)
	if err != nil {
		if errors.Is(err, ErrInvalidRefreshToken) {
			h.clearRefreshCookie(w)
			writeFailure(w, http.StatusUnauthorized, "invalid_grant", "refresh token is invalid or expired")
			return
		}
		serverError(w, err)
		return
	}

	h.setRefreshCookie(w, result.Tokens.RefreshToken)
	writeJSON(w, http.StatusOK, sessionResponse(result))
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	if err := h.service.Logout(r.Context(), user.ID); err != nil {
		serverError(w, err)
		return
	}

	h.clearRefreshCookie(w)
	writeJSON(w, http.StatusOK, tokenResponse{Success: true})
}

type registerRequest struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
	FirstName       string `json:"firstName"`
	SecondName      string `json:"secondName"`
	DOB             string `json:"dob"`
	PhoneNumber     string `json:"phoneNumber"`
	MfaEnabled      bool   `json:"mfaEnabled"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var body registerRequest
	if !decodeBody(w, r, &body) {
		return
	}

	result, err := h.service.Register(r.Context(), RegisterInput{
		Email:           body.Email,
		Password:        body.Password,
		ConfirmPassword: body.ConfirmPassword,
		FirstName:       body.FirstName,
		LastName:        body.SecondName,
		DOB:             body.DOB,
		PhoneNumber:     body.PhoneNumber,
		MfaEnabled:      body.MfaEnabled,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrPasswordMismatch):
			writeFailure(w, http.StatusBadRequest, "S01", "passwords do not match")
		case errors.Is(err, ErrMissingCredentials):
			writeFailure(w, http.StatusBadRequest, "S03", "email and password are required")
		case errors.Is(err, ErrPhoneRequired):
			writeFailure(w, http.StatusBadRequest, "S04", "phone number is required when MFA is enabled")
		case errors.Is(err, ErrPhoneInvalid):
			writeFailure(w, http.StatusBadRequest, "S05", "phone number must be in E.164 format")
		default:
			serverError(w, err)
		}
		return
	}

	// A taken email still answers success so the endpoint cannot be
	// used to enumerate accounts; S02 tells the genuine owner's client
	// apart in logs.
	if result.AlreadyRegistered {
		writeJSON(w, http.StatusOK, tokenResponse{Success: true, ErrorCode: "S02"})
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{Success: true})
}

type confirmEmailRequest struct {
	Token string `json:"token"`
	DOB   string `json:"dob"`
}

func (h *Handler) ConfirmEmail(w http.ResponseWriter, r *http.Request) {
	var body confirmEmailRequest
	if !decodeBody(w, r, &body) {
		return
	}

	if err := h.service.ConfirmEmail(r.Context(), body.Token, body.DOB); err != nil {
		switch {
		case errors.Is(err, ErrVerificationTokenInvalid):
			writeFailure(w, http.StatusBadRequest, "V01", "verification token is invalid")
		case errors.Is(err, ErrDobMismatch):
			writeFailure(w, http.StatusBadRequest, "V02", "date of birth does not match")
		case errors.Is(err, ErrAlreadyVerified):
			writeFailure(w, http.StatusBadRequest, "V03", "email is already verified")
		default:
			serverError(w, err)
		}
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{Success: true})
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var body forgotPasswordRequest
	if !decodeBody(w, r, &body) {
		return
	}

	if err := h.service.ForgotPassword(r.Context(), body.Email); err != nil {
		serverError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{Success: true})
}

type resetPasswordRequest struct {
	Token           string `json:"token"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var body resetPasswordRequest
	if !decodeBody(w, r, &body) {
		return
	}

	if err := h.service.ResetPassword(r.Context(), body.Token, body.Password, body.ConfirmPassword); err != nil {
		switch {
		case errors.Is(err, ErrResetTokenInvalid):
			writeFailure(w, http.StatusBadRequest, "R01", "reset token is invalid")
		case errors.Is(err, ErrResetTokenExpired):
			writeFailure(w, http.StatusBadRequest, "R02", "reset token has expired")
		case errors.Is(err, ErrPasswordMismatch):
			writeFailure(w, http.StatusBadRequest, "R03", "passwords do not match")
		default:
			serverError(w, err)
		}
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{Success: true})
}

type enableMfaRequest struct {
	PhoneNumber string `json:"phoneNumber"`
}

// EnableMfa acts on the authenticated account; the body names at most a
// phone number, never whose MFA is being toggled.
func (h *Handler) EnableMfa(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var body enableMfaRequest
	if !decodeBody(w, r, &body) {
		return
	}

	if err := h.service.EnableMfa(r.Context(), user.ID, body.PhoneNumber); err != nil {
		switch {
		case errors.Is(err, ErrUserNotFound):
			writeFailure(w, http.StatusNotFound, "MFA04", "user not found")
		case errors.Is(err, ErrPhoneRequired):
			writeFailure(w, http.StatusBadRequest, "S04", "phone number is required when MFA is enabled")
		case errors.Is(err, ErrPhoneInvalid):
			writeFailure(w, http.StatusBadRequest, "S05", "phone number must be in E.164 format")
		default:
			serverError(w, err)
		}
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{Success: true})
}

func (h *Handler) DisableMfa(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	if err := h.service.DisableMfa(r.Context(), user.ID); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			writeFailure(w, http.StatusNotFound, "MFA05", "user not found")
			return
		}
		serverError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{Success: true})
}

func (h *Handler) Info(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	current, err := h.service.Info(r.Context(), user.ID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			writeFailure(w, http.StatusNotFound, "I001", "user no longer exists")
			return
		}
		serverError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, viewOf(current))
}

func (h *Handler) All(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListAll(r.Context())
	if err != nil {
		serverError(w, err)
		return
	}

	views := make([]userView, 0, len(users))
	for _, u := range users {
		views = append(views, viewOf(u))
	}

	writeJSON(w, http.StatusOK, views)
}

func sessionResponse(result LoginResult) tokenResponse {
	return tokenResponse{
		Success:     true,
		AccessToken: result.Tokens.AccessToken,
		UserID:      result.User.UserID,
		FirstName:   result.User.FirstName,
		SecondName:  result.User.LastName,
		Email:       result.User.Email,
	}
}

func (h *Handler) setRefreshCookie(w http.ResponseWriter, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   int(h.refreshTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeFailure(w, http.StatusBadRequest, "", "invalid json body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeFailure(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, tokenResponse{Error: message, ErrorCode: code})
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func serverError(w http.ResponseWriter, err error) {
	sentry.CaptureException(err)
	writeFailure(w, http.StatusInternalServerError, "", "something went wrong")
}
