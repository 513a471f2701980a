// ABOUTME: Request handlers and JSON types for the responder HTTP API
// ABOUTME: Maps rule errors to 400/409 and hides storage failures behind 500

package api

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"

	"github.com/2389/coven-responder/internal/autoreply"
	"github.com/2389/coven-responder/internal/store"
)

// DispatchRequest is the JSON body for POST /api/chats/{chat}/dispatch.
type DispatchRequest struct {
	Text      string `json:"text"`
	ForceFire bool   `json:"force_fire"`
}

// DispatchResponse carries what the chat should send back. Both fields are
// omitted when nothing fired.
type DispatchResponse struct {
	Text string `json:"text,omitempty"`
	Item string `json:"item,omitempty"`
}

// RuleRequest is the JSON body for POST /api/chats/{chat}/rules.
// Exactly one of Text and Item must be set.
type RuleRequest struct {
	Name    string `json:"name"`
	Pattern string `json:"pattern"`
	Text    string `json:"text,omitempty"`
	Item    string `json:"item,omitempty"`
}

// RuleResponse describes one rule.
type RuleResponse struct {
	Name          string `json:"name"`
	Pattern       string `json:"pattern"`
	ResponseKind  string `json:"response_kind"`
	ResponseValue string `json:"response_value"`
}

// ItemRequest is the JSON body for POST /api/chats/{chat}/items.
// With Gate set the candidate is only returned if it passes the chat's
// fire probability. Item echo cannot be forced.
type ItemRequest struct {
	Category   string `json:"category"`
	UniqueID   string `json:"unique_id"`
	PayloadRef string `json:"payload_ref"`
	Gate       bool   `json:"gate"`
}

// ItemResponse holds the item to echo back, if any.
type ItemResponse struct {
	Candidate *store.ItemRecord `json:"candidate"`
}

// ConfigUpdate is the JSON body for PUT /api/chats/{chat}/config.
// Absent fields are left unchanged.
type ConfigUpdate struct {
	FireProbability *float64 `json:"fire_probability"`
	RecencyCapacity *int     `json:"recency_capacity"`
}

func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	var req DispatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	out, err := s.core.Dispatch(r.Context(), r.PathValue("chat"), req.Text, req.ForceFire)
	if err != nil {
		s.sendCoreError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, DispatchResponse{Text: out.Text, Item: out.Item})
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	rules := s.core.Rules(r.PathValue("chat"))

	resp := make([]RuleResponse, 0, len(rules))
	for _, rule := range rules {
		resp = append(resp, toRuleResponse(rule))
	}
	s.sendJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var req RuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Name == "" {
		s.sendJSONError(w, http.StatusBadRequest, "name is required")
		return
	}

	var response autoreply.Response
	switch {
	case req.Text != "" && req.Item != "":
		s.sendJSONError(w, http.StatusBadRequest, "set only one of text and item")
		return
	case req.Item != "":
		response = autoreply.ItemRef{ID: req.Item}
	case req.Text != "":
		response = autoreply.Literal{Text: req.Text}
	default:
		s.sendJSONError(w, http.StatusBadRequest, "text or item is required")
		return
	}

	chatID := r.PathValue("chat")
	if err := s.core.RegisterRule(r.Context(), chatID, req.Name, req.Pattern, response); err != nil {
		s.sendCoreError(w, r, err)
		return
	}

	kind, value := responseFields(response)
	s.sendJSON(w, http.StatusCreated, RuleResponse{
		Name:          req.Name,
		Pattern:       req.Pattern,
		ResponseKind:  kind,
		ResponseValue: value,
	})
}

func (s *Server) handleItemPosted(w http.ResponseWriter, r *http.Request) {
	var req ItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Category == "" || req.UniqueID == "" {
		s.sendJSONError(w, http.StatusBadRequest, "category and unique_id are required")
		return
	}
	if req.PayloadRef == "" {
		req.PayloadRef = req.UniqueID
	}

	chatID := r.PathValue("chat")
	item := store.ItemRecord{UniqueID: req.UniqueID, PayloadRef: req.PayloadRef}

	var (
		candidate store.ItemRecord
		ok        bool
		err       error
	)
	if req.Gate {
		candidate, ok, err = s.core.Echo(r.Context(), chatID, req.Category, item)
	} else {
		candidate, ok, err = s.core.NoteItemPosted(r.Context(), chatID, req.Category, item)
	}
	if err != nil {
		s.sendCoreError(w, r, err)
		return
	}

	resp := ItemResponse{}
	if ok {
		resp.Candidate = &candidate
	}
	s.sendJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.core.Config(r.Context(), r.PathValue("chat"))
	if err != nil {
		s.sendCoreError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, cfg)
}

// handleUpdateConfig stores the given fields together or not at all.
func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	var req ConfigUpdate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if p := req.FireProbability; p != nil && (math.IsNaN(*p) || *p < 0 || *p > 1) {
		s.sendJSONError(w, http.StatusBadRequest, "fire_probability must be between 0 and 1")
		return
	}
	if c := req.RecencyCapacity; c != nil && *c < 0 {
		s.sendJSONError(w, http.StatusBadRequest, "recency_capacity must not be negative")
		return
	}

	update := store.SettingsUpdate{
		FireProbability: req.FireProbability,
		RecencyCapacity: req.RecencyCapacity,
	}
	if err := s.core.UpdateConfig(r.Context(), r.PathValue("chat"), update); err != nil {
		s.sendCoreError(w, r, err)
		return
	}

	s.handleGetConfig(w, r)
}

func toRuleResponse(rule *autoreply.Rule) RuleResponse {
	kind, value := responseFields(rule.Response())
	return RuleResponse{
		Name:          rule.Name(),
		Pattern:       rule.Pattern(),
		ResponseKind:  kind,
		ResponseValue: value,
	}
}

func responseFields(resp autoreply.Response) (kind, value string) {
	switch resp := resp.(type) {
	case autoreply.Literal:
		return store.ResponseKindLiteral, resp.Text
	case autoreply.ItemRef:
		return store.ResponseKindItem, resp.ID
	default:
		panic("api: unhandled response type")
	}
}

// sendCoreError writes rule errors with their message and logs everything else.
func (s *Server) sendCoreError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, autoreply.ErrInvalidPattern), errors.Is(err, autoreply.ErrEmptyResponse):
		s.sendJSONError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, autoreply.ErrDuplicateName):
		s.sendJSONError(w, http.StatusConflict, err.Error())
	default:
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (s *Server) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("failed to write response", "error", err)
	}
}

func (s *Server) sendJSONError(w http.ResponseWriter, status int, message string) {
	s.sendJSON(w, status, map[string]string{"error": message})
}
