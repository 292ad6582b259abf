package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/RevTvGG/l4d2-ranked-sub000/internal/constants"
	"github.com/RevTvGG/l4d2-ranked-sub000/internal/domain"
	"github.com/RevTvGG/l4d2-ranked-sub000/internal/middleware"
	"github.com/RevTvGG/l4d2-ranked-sub000/internal/repository"
	"github.com/RevTvGG/l4d2-ranked-sub000/internal/service"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// Server exposes the matchmaking surface over JSON HTTP. The caller's
// identity arrives pre-resolved in X-Player-ID (see middleware.Principal).
type Server struct {
	queueSvc   *service.QueueService
	acceptance *service.AcceptanceService
	matchSvc   *service.MatchService
	players    *repository.PlayerRepository
	logger     zerolog.Logger
}

func New(
	queueSvc *service.QueueService,
	acceptance *service.AcceptanceService,
	matchSvc *service.MatchService,
	players *repository.PlayerRepository,
	logger zerolog.Logger,
) *Server {
	return &Server{
		queueSvc:   queueSvc,
		acceptance: acceptance,
		matchSvc:   matchSvc,
		players:    players,
		logger:     logger,
	}
}

func (s *Server) Routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/players", s.handleCreatePlayer).Methods(http.MethodPost)
	api.HandleFunc("/players/{id}", s.handleGetPlayer).Methods(http.MethodGet)

	api.HandleFunc("/queue", s.handleEnqueue).Methods(http.MethodPost)
	api.HandleFunc("/queue", s.handleDequeue).Methods(http.MethodDelete)
	api.HandleFunc("/queue", s.handleQueueStatus).Methods(http.MethodGet)

	api.HandleFunc("/matches/{id}", s.handleGetMatch).Methods(http.MethodGet)
	api.HandleFunc("/matches/{id}/accept", s.handleAccept).Methods(http.MethodPost)
	api.HandleFunc("/matches/{id}/vote", s.handleVote).Methods(http.MethodPost)

	// Callbacks from the game-server integration layer.
	api.HandleFunc("/matches/{id}/server", s.handleServerAssigned).Methods(http.MethodPost)
	api.HandleFunc("/matches/{id}/started", s.handleStarted).Methods(http.MethodPost)
	api.HandleFunc("/matches/{id}/completed", s.handleCompleted).Methods(http.MethodPost)
	api.HandleFunc("/matches/{id}/disconnected", s.handleDisconnected).Methods(http.MethodPost)
	api.HandleFunc("/matches/{id}/reconnected", s.handleReconnected).Methods(http.MethodPost)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type createPlayerRequest struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	SteamID string `json:"steam_id"`
}

func (s *Server) handleCreatePlayer(w http.ResponseWriter, r *http.Request) {
	var req createPlayerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	player := &domain.Player{
		ID:      req.ID,
		Name:    req.Name,
		SteamID: req.SteamID,
		Rating:  constants.DefaultRating,
	}
	if err := s.players.Create(r.Context(), player); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, playerView(player))
}

func (s *Server) handleGetPlayer(w http.ResponseWriter, r *http.Request) {
	player, err := s.players.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, playerView(player))
}

func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	playerID := middleware.GetPlayerID(r.Context())
	if playerID == "" {
		writeError(w, http.StatusBadRequest, "missing player identity")
		return
	}

	entry, err := s.queueSvc.Enqueue(r.Context(), playerID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entryView(entry))
}

func (s *Server) handleDequeue(w http.ResponseWriter, r *http.Request) {
	playerID := middleware.GetPlayerID(r.Context())
	if playerID == "" {
		writeError(w, http.StatusBadRequest, "missing player identity")
		return
	}

	if err := s.queueSvc.Dequeue(r.Context(), playerID); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleQueueStatus(w http.ResponseWriter, r *http.Request) {
	playerID := middleware.GetPlayerID(r.Context())
	if playerID == "" {
		writeError(w, http.StatusBadRequest, "missing player identity")
		return
	}

	state, err := s.queueSvc.Status(r.Context(), playerID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	resp := map[string]any{"total_waiting": state.TotalWaiting}
	if state.Entry != nil {
		resp["entry"] = entryView(state.Entry)
	}
	if state.Match != nil {
		resp["match"] = matchView(state.Match)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetMatch(w http.ResponseWriter, r *http.Request) {
	match, err := s.matchSvc.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, matchView(match))
}

func (s *Server) handleAccept(w http.ResponseWriter, r *http.Request) {
	playerID := middleware.GetPlayerID(r.Context())
	if playerID == "" {
		writeError(w, http.StatusBadRequest, "missing player identity")
		return
	}

	match, err := s.acceptance.Accept(r.Context(), mux.Vars(r)["id"], playerID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, matchView(match))
}

type voteRequest struct {
	Map string `json:"map"`
}

func (s *Server) handleVote(w http.ResponseWriter, r *http.Request) {
	playerID := middleware.GetPlayerID(r.Context())
	if playerID == "" {
		writeError(w, http.StatusBadRequest, "missing player identity")
		return
	}

	var req voteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := s.matchSvc.Vote(r.Context(), mux.Vars(r)["id"], playerID, req.Map)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	resp := map[string]any{"ok": true, "match": matchView(result.Match)}
	if result.Resolved != "" {
		resp["resolved"] = result.Resolved
	}
	writeJSON(w, http.StatusOK, resp)
}

type serverAssignedRequest struct {
	IP       string `json:"ip"`
	Port     int    `json:"port"`
	Password string `json:"password"`
}

func (s *Server) handleServerAssigned(w http.ResponseWriter, r *http.Request) {
	var req serverAssignedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.IP == "" || req.Port == 0 {
		writeError(w, http.StatusBadRequest, "ip and port are required")
		return
	}

	err := s.matchSvc.ReportServerAssigned(r.Context(), mux.Vars(r)["id"], req.IP, req.Port, req.Password)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleStarted(w http.ResponseWriter, r *http.Request) {
	if err := s.matchSvc.ReportMatchStarted(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type completedRequest struct {
	TeamAScore int `json:"team_a_score"`
	TeamBScore int `json:"team_b_score"`
	WinnerTeam int `json:"winner_team"`
}

func (s *Server) handleCompleted(w http.ResponseWriter, r *http.Request) {
	var req completedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err := s.matchSvc.ReportMatchCompleted(r.Context(), mux.Vars(r)["id"], req.TeamAScore, req.TeamBScore, req.WinnerTeam)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type connectionRequest struct {
	PlayerID string `json:"player_id"`
}

func (s *Server) handleDisconnected(w http.ResponseWriter, r *http.Request) {
	var req connectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PlayerID == "" {
		writeError(w, http.StatusBadRequest, "player_id is required")
		return
	}

	err := s.matchSvc.ReportPlayerDisconnected(r.Context(), mux.Vars(r)["id"], req.PlayerID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleReconnected(w http.ResponseWriter, r *http.Request) {
	var req connectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PlayerID == "" {
		writeError(w, http.StatusBadRequest, "player_id is required")
		return
	}

	err := s.matchSvc.ReportPlayerReconnected(r.Context(), mux.Vars(r)["id"], req.PlayerID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// writeDomainError maps the error taxonomy to the wire: not-found 404,
// ban rejections 403, other precondition violations 409, everything else
// "system unavailable" 503.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var banned *domain.BannedError
	switch {
	case errors.As(err, &banned):
		writeError(w, http.StatusForbidden, banned.Error())
	case errors.Is(err, domain.ErrMatchNotFound), errors.Is(err, domain.ErrPlayerNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case domain.IsUserError(err):
		writeError(w, http.StatusConflict, err.Error())
	default:
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, http.StatusServiceUnavailable, "system unavailable, try again")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func playerView(p *domain.Player) map[string]any {
	return map[string]any{
		"id":        p.ID,
		"name":      p.Name,
		"steam_id":  p.SteamID,
		"rating":    p.Rating,
		"ban_count": p.BanCount,
	}
}

func entryView(e *domain.QueueEntry) map[string]any {
	return map[string]any{
		"player_id":  e.PlayerID,
		"mmr":        e.MMR,
		"status":     e.Status,
		"created_at": e.CreatedAt.Format(time.RFC3339),
		"expires_at": e.ExpiresAt.Format(time.RFC3339),
	}
}

func matchView(m *domain.Match) map[string]any {
	players := make([]map[string]any, 0, len(m.Players))
	for _, p := range m.Players {
		players = append(players, map[string]any{
			"player_id": p.PlayerID,
			"team":      p.Team,
			"mmr":       p.MMR,
			"accepted":  p.Accepted,
			"connected": p.Connected,
		})
	}
	votes := make([]map[string]any, 0, len(m.Votes))
	for _, v := range m.Votes {
		votes = append(votes, map[string]any{
			"player_id": v.PlayerID,
			"map":       v.MapID,
			"cast_at":   v.CastAt.Format(time.RFC3339),
		})
	}

	view := map[string]any{
		"id":              m.ID,
		"status":          m.Status,
		"players":         players,
		"votes":           votes,
		"team_a_score":    m.TeamAScore,
		"team_b_score":    m.TeamBScore,
		"accept_deadline": m.AcceptDeadline.Format(time.RFC3339),
	}
	if m.SelectedMap != "" {
		view["selected_map"] = m.SelectedMap
	}
	if m.ServerIP != "" {
		view["server_ip"] = m.ServerIP
		view["server_port"] = m.ServerPort
		view["server_password"] = m.ServerPassword
	}
	if m.WinnerTeam != 0 {
		view["winner_team"] = m.WinnerTeam
	}
	return view
}
