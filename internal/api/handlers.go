package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"slices"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-mystery/internal/game"
	"github.com/npezzotti/go-mystery/internal/scenario"
	"github.com/npezzotti/go-mystery/internal/server"
	"github.com/npezzotti/go-mystery/internal/session"
	"github.com/npezzotti/go-mystery/internal/types"
	"go.uber.org/zap"
)

type CreateSessionRequest struct {
	Name        string `json:"name"`
	CharacterId int    `json:"character_id"`
}

type SessionResponse struct {
	Session session.Session `json:"session"`
	View    *game.View      `json:"view,omitempty"`
	// Demo is set when state lives in process memory and is lost on restart.
	Demo bool `json:"demo"`
}

type RoomResponse struct {
	Room   types.Room   `json:"room"`
	Player types.Player `json:"player"`
}

type AdvanceRequest struct {
	From types.Phase `json:"from"`
}

type SearchRequest struct {
	LocationId int `json:"location_id"`
}

func (s *App) writeJson(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("json encode", zap.Error(err))
	}
}

func (s *App) writeError(w http.ResponseWriter, err error) {
	errResp := fromGameError(err)
	if errResp.StatusCode >= http.StatusInternalServerError {
		s.log.Error("request failed", zap.Error(err))
	}
	s.writeJson(w, errResp.StatusCode, errResp)
}

func (s *App) readJson(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return false
	}
	return true
}

// saveSession writes the cookie for sess. It reports false after writing
// an error response.
func (s *App) saveSession(w http.ResponseWriter, sess session.Session) bool {
	if err := s.sessions.Save(w, sess); err != nil {
		errResp := NewInternalServerError(err)
		s.log.Error("save session", zap.Error(err))
		s.writeJson(w, errResp.StatusCode, errResp)
		return false
	}
	return true
}

func currentSession(r *http.Request) session.Session {
	sess, _ := session.FromContext(r.Context())
	return sess
}

func roomCode(r *http.Request) string {
	return game.NormalizeRoomCode(r.PathValue("code"))
}

func (s *App) healthCheck(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.log.Error("health check", zap.Error(err))
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// createSession sets the player's name and character. An existing player
// keeps their id and room, and cannot switch character while seated in it.
func (s *App) createSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if !s.readJson(w, r, &req) {
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		s.writeError(w, game.ErrNameRequired)
		return
	}
	if c, ok := scenario.CharacterById(req.CharacterId); !ok || !c.Playable {
		s.writeError(w, game.ErrCharacterInvalid)
		return
	}

	characterId := req.CharacterId
	sess, err := s.sessions.Load(r)
	if err != nil || !sess.Valid() {
		sess, err = session.New(req.Name, &characterId)
		if err != nil {
			errResp := NewInternalServerError(err)
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	} else {
		if sess.InRoom() && sess.CharacterId != nil && *sess.CharacterId != characterId {
			s.writeError(w, game.ErrCharacterLocked)
			return
		}
		sess.Name = req.Name
		sess.CharacterId = &characterId
	}

	if !s.saveSession(w, sess) {
		return
	}
	s.writeJson(w, http.StatusOK, SessionResponse{Session: sess, Demo: s.game.Demo()})
}

// getSession returns the identity and, when the room can be resumed, its view.
func (s *App) getSession(w http.ResponseWriter, r *http.Request) {
	sess := currentSession(r)

	view, resumed, err := s.game.Resume(r.Context(), sess)
	switch {
	case err == nil:
		s.writeJson(w, http.StatusOK, SessionResponse{Session: resumed, View: &view, Demo: s.game.Demo()})
	case errors.Is(err, game.ErrNotJoined), errors.Is(err, game.ErrRoomNotFound), errors.Is(err, game.ErrFinalPhase):
		if resumed.RoomId != sess.RoomId && !s.saveSession(w, resumed) {
			return
		}
		s.writeJson(w, http.StatusOK, SessionResponse{Session: resumed, Demo: s.game.Demo()})
	default:
		s.writeError(w, err)
	}
}

func (s *App) restartSession(w http.ResponseWriter, r *http.Request) {
	s.game.Restart(currentSession(r))
	s.sessions.Clear(w)
	w.WriteHeader(http.StatusNoContent)
}

func (s *App) leaveRoom(w http.ResponseWriter, r *http.Request) {
	sess := s.game.Leave(currentSession(r))
	if !s.saveSession(w, sess) {
		return
	}
	s.writeJson(w, http.StatusOK, SessionResponse{Session: sess, Demo: s.game.Demo()})
}

func (s *App) createRoom(w http.ResponseWriter, r *http.Request) {
	sess := currentSession(r)

	room, player, err := s.game.CreateRoom(r.Context(), sess)
	if err != nil {
		s.writeError(w, err)
		return
	}

	if !s.saveSession(w, sess.EnterRoom(room.Id)) {
		return
	}
	s.writeJson(w, http.StatusCreated, RoomResponse{Room: room, Player: player})
}

func (s *App) joinRoom(w http.ResponseWriter, r *http.Request) {
	sess := currentSession(r)
	code := roomCode(r)

	player, err := s.game.JoinRoom(r.Context(), sess, code)
	if err != nil {
		s.writeError(w, err)
		return
	}

	if !s.saveSession(w, sess.EnterRoom(code)) {
		return
	}
	s.writeJson(w, http.StatusOK, player)
}

func (s *App) getRoom(w http.ResponseWriter, r *http.Request) {
	view, err := s.game.View(r.Context(), currentSession(r), roomCode(r))
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, view)
}

func (s *App) startGame(w http.ResponseWriter, r *http.Request) {
	room, err := s.game.Start(r.Context(), currentSession(r), roomCode(r))
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, room)
}

func (s *App) advancePhase(w http.ResponseWriter, r *http.Request) {
	// an empty body advances from whatever phase the room is in
	var req AdvanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}
	if req.From != "" && game.Index(req.From) < 0 {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	room, err := s.game.Advance(r.Context(), currentSession(r), roomCode(r), req.From)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, room)
}

func (s *App) getInvestigation(w http.ResponseWriter, r *http.Request) {
	state, err := s.game.Investigation(r.Context(), currentSession(r), roomCode(r))
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, state)
}

func (s *App) search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if !s.readJson(w, r, &req) {
		return
	}

	result, err := s.game.Search(r.Context(), currentSession(r), roomCode(r), req.LocationId)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, result)
}

func (s *App) finishInvestigation(w http.ResponseWriter, r *http.Request) {
	room, err := s.game.FinishInvestigation(r.Context(), currentSession(r), roomCode(r))
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, room)
}

func (s *App) getVotingStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.game.VotingStatus(r.Context(), currentSession(r), roomCode(r))
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, status)
}

func (s *App) submitVote(w http.ResponseWriter, r *http.Request) {
	var ballot scenario.Answer
	if !s.readJson(w, r, &ballot) {
		return
	}

	vote, err := s.game.SubmitVote(r.Context(), currentSession(r), roomCode(r), ballot)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusCreated, vote)
}

func (s *App) retryVote(w http.ResponseWriter, r *http.Request) {
	if err := s.game.RetryVote(r.Context(), currentSession(r), roomCode(r)); err != nil {
		s.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *App) proceedToResult(w http.ResponseWriter, r *http.Request) {
	room, err := s.game.ProceedToResult(r.Context(), currentSession(r), roomCode(r))
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, room)
}

func (s *App) getResult(w http.ResponseWriter, r *http.Request) {
	result, err := s.game.Result(r.Context(), currentSession(r), roomCode(r))
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, result)
}

func (s *App) getChat(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.game.Chat(r.Context(), currentSession(r), roomCode(r))
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, msgs)
}

func (s *App) serveWs(w http.ResponseWriter, r *http.Request) {
	sess := currentSession(r)

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("error upgrading connection", zap.Error(err))
		return
	}

	client := server.NewClient(sess, conn, s.gs, s.log)
	s.gs.RegisterClient(client)

	go client.Write()
	go client.Read()

	if code := r.URL.Query().Get("room"); code != "" {
		client.JoinRoom(code)
	}
}
