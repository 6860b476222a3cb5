package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/Yuzori/l-Agence/internal/agency"
	"github.com/Yuzori/l-Agence/internal/logger"
	"github.com/Yuzori/l-Agence/internal/realtime"
	"github.com/Yuzori/l-Agence/internal/telemetry"
)

// Exporter renders a dossier to a printable PDF.
type Exporter interface {
	RenderDossierPDF(ctx context.Context, d agency.Dossier) ([]byte, error)
}

// Reviewer runs an LLM content review over a dossier and applies the
// admin removal path on a "remove" verdict.
type Reviewer interface {
	ReviewDossier(ctx context.Context, id int64) (verdict, reason string, err error)
}

type Options struct {
	Store    agency.API
	Hub      *realtime.Hub
	Exporter Exporter
	Reviewer Reviewer
	Admins   []string
	RateRPS  float64
	Burst    int
}

type Server struct {
	store    agency.API
	hub      *realtime.Hub
	exporter Exporter
	reviewer Reviewer
	admins   map[string]struct{}
}

func NewServer(opts Options) http.Handler {
	admins := map[string]struct{}{}
	for _, a := range opts.Admins {
		if v := strings.TrimSpace(a); v != "" {
			admins[v] = struct{}{}
		}
	}
	s := &Server{
		store:    opts.Store,
		hub:      opts.Hub,
		exporter: opts.Exporter,
		reviewer: opts.Reviewer,
		admins:   admins,
	}

	r := mux.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(accessLogMiddleware)
	r.Use(rateLimitMiddleware(newLimiterPool(opts.RateRPS, opts.Burst)))
	r.Use(metricsMiddleware)

	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/contacts/request", s.handleRequestContact).Methods(http.MethodPost)
	api.HandleFunc("/contacts/accept", s.handleAcceptContact).Methods(http.MethodPost)
	api.HandleFunc("/contacts/decline", s.handleDeclineContact).Methods(http.MethodPost)
	api.HandleFunc("/contacts/{agent}", s.handleListContacts).Methods(http.MethodGet)

	api.HandleFunc("/conversations/{agent1}/{agent2}", s.handleGetConversation).Methods(http.MethodGet)
	api.HandleFunc("/messages", s.handleSendMessage).Methods(http.MethodPost)
	api.HandleFunc("/messages/{id}/reactions", s.handleReact).Methods(http.MethodPost)

	api.HandleFunc("/notifications/read-all/{agent}", s.handleMarkAllRead).Methods(http.MethodPost)
	api.HandleFunc("/notifications/{agent}", s.handleListNotifications).Methods(http.MethodGet)
	api.HandleFunc("/notifications/{id}/read", s.handleMarkRead).Methods(http.MethodPost)
	api.HandleFunc("/notifications/{id}", s.handleDeleteNotification).Methods(http.MethodDelete)

	api.HandleFunc("/dossiers", s.handleListDossiers).Methods(http.MethodGet)
	api.HandleFunc("/dossiers", s.handleCreateDossier).Methods(http.MethodPost)
	api.HandleFunc("/dossiers/{id}/export.pdf", s.handleExportPDF).Methods(http.MethodGet)
	api.HandleFunc("/dossiers/{id}", s.handleGetDossier).Methods(http.MethodGet)
	api.HandleFunc("/dossiers/{id}", s.handleUpdateDossier).Methods(http.MethodPut)
	api.HandleFunc("/dossiers/{id}", s.handleDeleteDossier).Methods(http.MethodDelete)
	api.HandleFunc("/dossiers/{id}/like", s.handleLikeDossier).Methods(http.MethodPost)
	api.HandleFunc("/dossiers/{id}/dislike", s.handleDislikeDossier).Methods(http.MethodPost)
	api.HandleFunc("/dossiers/{id}/repost", s.handleRepostDossier).Methods(http.MethodPost)
	api.HandleFunc("/dossiers/{id}/comments", s.handleAddComment).Methods(http.MethodPost)
	api.HandleFunc("/comments/{id}", s.handleEditComment).Methods(http.MethodPut)
	api.HandleFunc("/comments/{id}", s.handleDeleteComment).Methods(http.MethodDelete)
	api.HandleFunc("/comments/{id}/like", s.handleLikeComment).Methods(http.MethodPost)
	api.HandleFunc("/comments/{id}/replies", s.handleReplyToComment).Methods(http.MethodPost)

	api.HandleFunc("/admin/dossiers/{id}/review", s.handleReviewDossier).Methods(http.MethodPost)

	api.HandleFunc("/agents", s.handleListAgents).Methods(http.MethodGet)
	api.HandleFunc("/stream/{agent}", s.handleStream).Methods(http.MethodGet)

	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.handleReadyz).Methods(http.MethodGet)
	r.Handle("/metrics", telemetry.MetricsHandler()).Methods(http.MethodGet)

	return r
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	var ae *agency.Error
	if errors.As(err, &ae) {
		writeJSON(w, ae.Status, map[string]any{
			"ok": false,
			"error": map[string]any{
				"code":    ae.Code,
				"message": ae.Message,
			},
		})
		return
	}
	logger.Error("unexpected_error", "error", err)
	writeJSON(w, 500, map[string]any{
		"ok": false,
		"error": map[string]any{
			"code":    agency.CodeInternal,
			"message": "internal server error",
		},
	})
}

func writeAck(w http.ResponseWriter, message string) {
	writeJSON(w, 200, map[string]any{"ok": true, "message": message})
}

func decodeBody(r *http.Request, dst any) error {
	if r.Body == nil {
		return agency.NewInvalidInputError("request body is required")
	}
	blob, err := io.ReadAll(r.Body)
	if err != nil {
		return agency.NewValidationJSONError(err)
	}
	if len(blob) == 0 {
		blob = []byte("{}")
	}
	if err := json.Unmarshal(blob, dst); err != nil {
		return agency.NewValidationJSONError(err)
	}
	return nil
}

func pathID(r *http.Request) (int64, error) {
	raw := mux.Vars(r)["id"]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, agency.NewInvalidInputError("invalid id: " + raw)
	}
	return id, nil
}

func (s *Server) isAdmin(agent string) bool {
	_, ok := s.admins[agent]
	return ok
}

// --- contacts ---

func (s *Server) handleRequestContact(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Sender    string `json:"sender"`
		Recipient string `json:"recipient"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if _, err := s.store.RequestContact(req.Sender, req.Recipient); err != nil {
		writeError(w, err)
		return
	}
	writeAck(w, "contact request sent")
}

func (s *Server) handleAcceptContact(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ContactID int64  `json:"contactId"`
		AgentName string `json:"agentName"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if _, err := s.store.AcceptContact(req.ContactID, req.AgentName); err != nil {
		writeError(w, err)
		return
	}
	writeAck(w, "contact request accepted")
}

func (s *Server) handleDeclineContact(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ContactID int64  `json:"contactId"`
		AgentName string `json:"agentName"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if _, err := s.store.DeclineContact(req.ContactID, req.AgentName); err != nil {
		writeError(w, err)
		return
	}
	writeAck(w, "contact request declined")
}

func (s *Server) handleListContacts(w http.ResponseWriter, r *http.Request) {
	contacts, err := s.store.ListContacts(mux.Vars(r)["agent"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, 200, map[string]any{"contacts": contacts})
}

// --- messaging ---

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	messages, err := s.store.GetConversation(vars["agent1"], vars["agent2"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, 200, map[string]any{"messages": messages})
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Sender    string        `json:"sender"`
		Recipient string        `json:"recipient"`
		Text      string        `json:"text"`
		Media     *agency.Media `json:"media"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	m, err := s.store.SendMessage(agency.SendMessageInput{
		Sender:    req.Sender,
		Recipient: req.Recipient,
		Text:      req.Text,
		Media:     req.Media,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, 200, map[string]any{"ok": true, "message": m})
}

func (s *Server) handleReact(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		AgentName string `json:"agentName"`
		Emoji     string `json:"emoji"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	reactions, err := s.store.React(id, req.AgentName, req.Emoji)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, 200, map[string]any{"reactions": reactions})
}

// --- notifications ---

func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	notifications, err := s.store.ListNotifications(mux.Vars(r)["agent"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, 200, map[string]any{"notifications": notifications})
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		AgentName string `json:"agentName"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.store.MarkRead(id, req.AgentName); err != nil {
		writeError(w, err)
		return
	}
	writeAck(w, "notification marked as read")
}

func (s *Server) handleMarkAllRead(w http.ResponseWriter, r *http.Request) {
	if err := s.store.MarkAllRead(mux.Vars(r)["agent"]); err != nil {
		writeError(w, err)
		return
	}
	writeAck(w, "all notifications marked as read")
}

func (s *Server) handleDeleteNotification(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.store.DeleteNotification(id); err != nil {
		writeError(w, err)
		return
	}
	writeAck(w, "notification deleted")
}

// --- dossiers ---

func (s *Server) handleListDossiers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, 200, map[string]any{"dossiers": s.store.ListDossiers()})
}

func (s *Server) handleGetDossier(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	d, err := s.store.GetDossier(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, 200, map[string]any{"dossier": d})
}

func (s *Server) handleCreateDossier(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Author      string        `json:"author"`
		Title       string        `json:"title"`
		Description string        `json:"description"`
		Media       *agency.Media `json:"media"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	d, err := s.store.CreateDossier(agency.CreateDossierInput{
		Author:      req.Author,
		Title:       req.Title,
		Description: req.Description,
		Media:       req.Media,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, 200, map[string]any{"ok": true, "dossier": d})
}

func (s *Server) handleUpdateDossier(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		Editor      string        `json:"editor"`
		Title       *string       `json:"title"`
		Description *string       `json:"description"`
		Media       *agency.Media `json:"media"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	d, err := s.store.UpdateDossier(agency.UpdateDossierInput{
		ID:          id,
		Editor:      req.Editor,
		Title:       req.Title,
		Description: req.Description,
		Media:       req.Media,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, 200, map[string]any{"ok": true, "dossier": d})
}

func (s *Server) handleDeleteDossier(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		AgentName string `json:"agentName"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.store.DeleteDossier(id, req.AgentName); err != nil {
		writeError(w, err)
		return
	}
	writeAck(w, "dossier deleted")
}

func (s *Server) handleLikeDossier(w http.ResponseWriter, r *http.Request) {
	s.handleRate(w, r, s.store.LikeDossier)
}

func (s *Server) handleDislikeDossier(w http.ResponseWriter, r *http.Request) {
	s.handleRate(w, r, s.store.DislikeDossier)
}

func (s *Server) handleRate(w http.ResponseWriter, r *http.Request, op func(int64, string) (*agency.Dossier, error)) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		AgentName string `json:"agentName"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	d, err := op(id, req.AgentName)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, 200, map[string]any{"ok": true, "likes": d.Likes, "dislikes": d.Dislikes})
}

func (s *Server) handleRepostDossier(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		AgentName string `json:"agentName"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	d, err := s.store.RepostDossier(id, req.AgentName)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, 200, map[string]any{"ok": true, "reposts": d.Reposts})
}

func (s *Server) handleAddComment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		Author string `json:"author"`
		Text   string `json:"text"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	c, err := s.store.AddComment(id, req.Author, req.Text)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, 200, map[string]any{"ok": true, "comment": c})
}

func (s *Server) handleReplyToComment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		Author string `json:"author"`
		Text   string `json:"text"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	c, err := s.store.ReplyToComment(id, req.Author, req.Text)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, 200, map[string]any{"ok": true, "comment": c})
}

func (s *Server) handleEditComment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		Editor string `json:"editor"`
		Text   string `json:"text"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	c, err := s.store.EditComment(id, req.Editor, req.Text)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, 200, map[string]any{"ok": true, "comment": c})
}

func (s *Server) handleDeleteComment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		AgentName string `json:"agentName"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.store.DeleteComment(id, req.AgentName); err != nil {
		writeError(w, err)
		return
	}
	writeAck(w, "comment deleted")
}

func (s *Server) handleLikeComment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		AgentName string `json:"agentName"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	c, err := s.store.LikeComment(id, req.AgentName)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, 200, map[string]any{"ok": true, "likes": c.Likes})
}

// --- export & moderation ---

func (s *Server) handleExportPDF(w http.ResponseWriter, r *http.Request) {
	if s.exporter == nil {
		writeError(w, agency.NewInternalError("pdf export is not configured"))
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	d, err := s.store.GetDossier(id)
	if err != nil {
		writeError(w, err)
		return
	}
	pdf, err := s.exporter.RenderDossierPDF(r.Context(), *d)
	if err != nil {
		logger.Error("pdf_export_failed", "dossier", id, "error", err)
		writeError(w, agency.NewInternalError("pdf export failed"))
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="dossier-`+strconv.FormatInt(id, 10)+`.pdf"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

func (s *Server) handleReviewDossier(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		AgentName string `json:"agentName"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if !s.isAdmin(strings.TrimSpace(req.AgentName)) {
		writeError(w, &agency.Error{Code: agency.CodeForbidden, Message: "admin access required", Status: 403})
		return
	}
	if s.reviewer == nil {
		writeError(w, agency.NewInternalError("moderation is not configured"))
		return
	}
	verdict, reason, err := s.reviewer.ReviewDossier(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, 200, map[string]any{"ok": true, "verdict": verdict, "reason": reason})
}

// --- roster & ops ---

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, 200, map[string]any{"agents": s.store.ListAgents()})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, 200, s.store.Health())
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, 200, map[string]any{"ok": true, "status": "ready"})
}
