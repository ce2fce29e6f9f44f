package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/ashureev/support-relay/internal/domain"
	"github.com/ashureev/support-relay/internal/knowledge"
	"github.com/ashureev/support-relay/internal/store"
	"github.com/go-chi/chi/v5"
)

// AdminHandler exposes the knowledge-upload and customer endpoints
// used by operators rather than chat clients.
type AdminHandler struct {
	repo store.Repository
	kb   *knowledge.Cache
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(repo store.Repository, kb *knowledge.Cache) *AdminHandler {
	return &AdminHandler{repo: repo, kb: kb}
}

// RegisterRoutes registers the admin API routes.
func (h *AdminHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Put("/companies/{companyID}/kb", h.UploadKnowledge)
		r.Patch("/customers/{customerID}", h.UpdateCustomer)
		r.Get("/customers/{customerID}/conversations", h.ListConversations)
	})
}

type uploadKnowledgeRequest struct {
	Entries []string `json:"entries"`
}

// UploadKnowledge replaces a company's knowledge text and refreshes
// its fast-store cache.
func (h *AdminHandler) UploadKnowledge(w http.ResponseWriter, r *http.Request) {
	companyID := chi.URLParam(r, "companyID")
	if companyID == "" {
		Error(w, http.StatusBadRequest, "company id is required")
		return
	}

	var req uploadKnowledgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	entries := make([]string, 0, len(req.Entries))
	for _, entry := range req.Entries {
		if entry = strings.TrimSpace(entry); entry != "" {
			entries = append(entries, entry)
		}
	}
	if len(entries) == 0 {
		Error(w, http.StatusBadRequest, "at least one non-empty entry is required")
		return
	}

	if err := h.kb.Put(r.Context(), companyID, entries); err != nil {
		slog.Error("Failed to upload company knowledge", "company_id", companyID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to store knowledge")
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"company_id": companyID,
		"entries":    len(entries),
	})
}

// UpdateCustomer applies optional profile updates to a customer record.
func (h *AdminHandler) UpdateCustomer(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "customerID")
	if customerID == "" {
		Error(w, http.StatusBadRequest, "customer id is required")
		return
	}

	var update domain.CustomerUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if update.Empty() {
		Error(w, http.StatusBadRequest, "no fields to update")
		return
	}

	customer, err := h.repo.GetCustomer(r.Context(), customerID)
	if err != nil {
		slog.Error("Failed to load customer", "customer_id", customerID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to load customer")
		return
	}
	if customer == nil {
		Error(w, http.StatusNotFound, "customer not found")
		return
	}

	if err := h.repo.UpdateCustomerProfile(r.Context(), customerID, update); err != nil {
		slog.Error("Failed to update customer", "customer_id", customerID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to update customer")
		return
	}

	updated, err := h.repo.GetCustomer(r.Context(), customerID)
	if err != nil || updated == nil {
		slog.Error("Failed to re-read customer after update", "customer_id", customerID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to load customer")
		return
	}

	JSON(w, http.StatusOK, updated)
}

// ListConversations returns a customer's most recent transcripts.
func (h *AdminHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "customerID")
	if customerID == "" {
		Error(w, http.StatusBadRequest, "customer id is required")
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			Error(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	conversations, err := h.repo.ConversationsByCustomer(r.Context(), customerID, limit)
	if err != nil {
		slog.Error("Failed to list conversations", "customer_id", customerID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to list conversations")
		return
	}
	if conversations == nil {
		conversations = []*domain.Conversation{}
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"customer_id":   customerID,
		"conversations": conversations,
	})
}
