package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/shopspring/decimal"

	"partner-bot/internal/referral"
	"partner-bot/internal/store"
)

type orderCompletedRequest struct {
	UserID  string      `json:"user_id"`
	Amount  json.Number `json:"amount"`
	OrderID string      `json:"order_id"`
}

// handleOrderCompleted is the at-least-once trigger for bonus distribution.
// Retrying the same order_id is safe: partners already credited carry
// per-order markers and are skipped, so a replay only finishes what an
// earlier run missed.
func (s *Server) handleOrderCompleted(w http.ResponseWriter, r *http.Request) {
	var req orderCompletedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if req.UserID == "" || req.OrderID == "" {
		writeError(w, http.StatusBadRequest, "user_id and order_id are required")
		return
	}
	amount, err := decimal.NewFromString(req.Amount.String())
	if err != nil || amount.IsNegative() {
		writeError(w, http.StatusBadRequest, "amount must be a non-negative number")
		return
	}

	// The buyer may themselves be a partner crossing the purchase threshold.
	if _, err := s.deps.Activation.MaybeActivateByPurchase(r.Context(), req.UserID, amount); err != nil {
		s.logger.Error("purchase-threshold activation failed", "user_id", req.UserID, "error", err)
	}

	awards, err := s.deps.Distributor.Distribute(r.Context(), req.UserID, amount, req.OrderID)
	if err != nil && len(awards) == 0 {
		s.logger.Error("bonus distribution failed", "order_id", req.OrderID, "error", err)
		writeError(w, http.StatusInternalServerError, "bonus distribution failed")
		return
	}

	resp := map[string]any{
		"order_id": req.OrderID,
		"awards":   awards,
	}
	if err != nil {
		// Partial distribution: some partners were credited, some were not.
		// The caller retries the same order_id to finish the rest.
		s.logger.Warn("bonus distribution incomplete", "order_id", req.OrderID, "error", err)
		resp["incomplete"] = true
	}
	writeJSON(w, http.StatusOK, resp)
}

type signupRequest struct {
	UserID  string  `json:"user_id"`
	Payload string  `json:"payload"`
	Contact *string `json:"contact,omitempty"`
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	edge, err := s.deps.Signup.RecordSignup(r.Context(), req.UserID, req.Payload, req.Contact)
	switch {
	case errors.Is(err, referral.ErrInvalidPayload):
		writeError(w, http.StatusBadRequest, "payload is not a referral link")
	case errors.Is(err, referral.ErrProfileNotFound):
		writeError(w, http.StatusNotFound, "unknown referral code")
	case errors.Is(err, referral.ErrSelfReferral):
		writeError(w, http.StatusConflict, "self referral is not allowed")
	case err != nil:
		s.logger.Error("signup recording failed", "user_id", req.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to record signup")
	default:
		writeJSON(w, http.StatusCreated, map[string]any{
			"referral_id":   edge.ID,
			"profile_id":    edge.ProfileID,
			"referred_id":   edge.ReferredID,
			"level":         edge.Level,
			"referral_type": edge.ReferralType,
		})
	}
}

type createPartnerRequest struct {
	UserID      string `json:"user_id"`
	ProgramType string `json:"program_type,omitempty"`
}

func (s *Server) handleCreatePartner(w http.ResponseWriter, r *http.Request) {
	var req createPartnerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	program := s.deps.DefaultProgram
	switch req.ProgramType {
	case "":
	case string(store.ProgramDirect):
		program = store.ProgramDirect
	case string(store.ProgramMultiLevel):
		program = store.ProgramMultiLevel
	default:
		writeError(w, http.StatusBadRequest, "unknown program_type")
		return
	}

	profile, err := s.deps.Store.GetOrCreateProfile(r.Context(), req.UserID, program)
	if err != nil {
		s.logger.Error("partner profile creation failed", "user_id", req.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create partner profile")
		return
	}

	link, err := referral.BuildLink(profile.ReferralCode, profile.ProgramType, s.deps.BotUsername)
	if err != nil {
		s.logger.Warn("referral link unavailable", "profile_id", profile.ID, "error", err)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"profile":       profileView(profile),
		"referral_link": link,
	})
}

// handlePartnerDashboard is the sanctioned low-frequency path that runs the
// mutating expiry check before rendering partner state.
func (s *Server) handlePartnerDashboard(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userID")

	active, err := s.deps.Activation.CheckAndExpire(r.Context(), userID)
	if err != nil {
		s.logger.Error("expiry check failed", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to check activation")
		return
	}

	profile, err := s.deps.Store.GetProfileByUserID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "partner profile not found")
			return
		}
		s.logger.Error("profile load failed", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load profile")
		return
	}

	link, err := referral.BuildLink(profile.ReferralCode, profile.ProgramType, s.deps.BotUsername)
	if err != nil {
		s.logger.Warn("referral link unavailable", "profile_id", profile.ID, "error", err)
	}

	referralCount, err := s.deps.Store.CountReferralsByProfile(r.Context(), profile.ID)
	if err != nil {
		s.logger.Warn("referral count unavailable", "profile_id", profile.ID, "error", err)
	}

	txs, err := s.deps.Store.ListTransactions(r.Context(), profile.ID)
	if err != nil {
		s.logger.Warn("ledger history unavailable", "profile_id", profile.ID, "error", err)
	}
	if len(txs) > 10 {
		txs = txs[len(txs)-10:]
	}

	history, err := s.deps.Store.ListActivationHistory(r.Context(), profile.ID, 10)
	if err != nil {
		s.logger.Warn("activation history unavailable", "profile_id", profile.ID, "error", err)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"profile":            profileView(profile),
		"active":             active,
		"referral_link":      link,
		"referral_count":     referralCount,
		"recent_txs":         txs,
		"activation_history": history,
	})
}

type adminActivateRequest struct {
	Months  int     `json:"months,omitempty"`
	Reason  string  `json:"reason,omitempty"`
	AdminID *string `json:"admin_id,omitempty"`
}

func (s *Server) handleAdminActivate(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userID")
	var req adminActivateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	profile, err := s.deps.Activation.Activate(r.Context(), userID, store.ActivationAdmin, req.Months, req.Reason, req.AdminID)
	if err != nil {
		if errors.Is(err, referral.ErrProfileNotFound) {
			writeError(w, http.StatusNotFound, "partner profile not found")
			return
		}
		s.logger.Error("admin activation failed", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "activation failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"profile": profileView(profile)})
}

type adminDeactivateRequest struct {
	Reason  string  `json:"reason"`
	AdminID *string `json:"admin_id,omitempty"`
}

func (s *Server) handleAdminDeactivate(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userID")
	var req adminDeactivateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if req.Reason == "" {
		writeError(w, http.StatusBadRequest, "reason is required")
		return
	}

	profile, err := s.deps.Activation.Deactivate(r.Context(), userID, req.Reason, req.AdminID)
	if err != nil {
		if errors.Is(err, referral.ErrProfileNotFound) {
			writeError(w, http.StatusNotFound, "partner profile not found")
			return
		}
		s.logger.Error("admin deactivation failed", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "deactivation failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"profile": profileView(profile)})
}

func profileView(p *store.PartnerProfile) map[string]any {
	return map[string]any{
		"id":              p.ID,
		"user_id":         p.UserID,
		"referral_code":   p.ReferralCode,
		"program_type":    p.ProgramType,
		"is_active":       p.IsActive,
		"activated_at":    p.ActivatedAt,
		"expires_at":      p.ExpiresAt,
		"activation_type": p.ActivationType,
		"balance":         p.Balance,
		"bonus":           p.Bonus,
	}
}
