package mockserver

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/joss/fedcli/internal/domain"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(v); err != nil {
		return badRequest("Malformed request body: %v", err)
	}
	return nil
}

func writeUser(w http.ResponseWriter, status int, u domain.User) {
	writeJSON(w, status, domain.UserRecord{User: u})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in loginRequest
	if err := decode(r, &in); err != nil {
		writeError(w, err)
		return
	}
	user, err := s.state.Authenticate(in.Email, in.Password)
	if err != nil {
		s.log.Info("login_rejected", map[string]interface{}{"email": in.Email})
		writeError(w, err)
		return
	}
	token, err := s.issuer.issue(user)
	if err != nil {
		writeError(w, err)
		return
	}
	s.log.WithUser(user.Base().ID).Info("login", nil)
	writeJSON(w, http.StatusOK, loginResponse{Token: token})
}

// ─── Chat ────────────────────────────────────────────────────────────

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.state.History(currentUser(r).Base(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (s *Server) handleSummaries(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.state.Summaries())
}

func (s *Server) handleAssign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	admin := currentUser(r).Base().ID
	if err := s.state.Assign(id, admin); err != nil {
		s.log.WithUser(admin).WithConversation(id).Info("assign_rejected", map[string]interface{}{"reason": err.Error()})
		writeError(w, err)
		return
	}
	s.log.WithUser(admin).WithConversation(id).Info("assigned", nil)
	writeText(w, http.StatusOK, MsgAssigned)
}

func (s *Server) handleRelease(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.state.Release(id); err != nil {
		writeError(w, err)
		return
	}
	s.log.WithUser(currentUser(r).Base().ID).WithConversation(id).Info("released", nil)
	writeText(w, http.StatusOK, MsgReleased)
}

// ─── Users ───────────────────────────────────────────────────────────

func (s *Server) handleUserByEmail(w http.ResponseWriter, r *http.Request) {
	u, err := s.state.UserByEmail(chi.URLParam(r, "email"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeUser(w, http.StatusOK, u)
}

func (s *Server) handleUser(w http.ResponseWriter, r *http.Request) {
	u, err := s.state.User(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeUser(w, http.StatusOK, u)
}

func (s *Server) handleUsersByRole(w http.ResponseWriter, r *http.Request) {
	role := domain.Role(chi.URLParam(r, "role"))
	if !role.Valid() {
		writeError(w, badRequest("Unknown role %s", role))
		return
	}
	users := s.state.UsersByRole(role)
	out := make([]domain.UserRecord, 0, len(users))
	for _, u := range users {
		out = append(out, domain.UserRecord{User: u})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var in domain.CreateUser
	if err := decode(r, &in); err != nil {
		writeError(w, err)
		return
	}
	if in.Role == domain.RoleFederationManager && currentUser(r).Base().Role != domain.RoleFederationManager {
		writeError(w, forbidden("Only federation managers can create federation managers."))
		return
	}
	u, err := s.state.CreateUser(in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeUser(w, http.StatusCreated, u)
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, badRequest("Malformed request body: %v", err))
		return
	}
	patch, err := domain.UnmarshalUser(body)
	if err != nil {
		writeError(w, badRequest("%s", err.Error()))
		return
	}
	u, err := s.state.UpdateUser(currentUser(r).Base(), chi.URLParam(r, "id"), patch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeUser(w, http.StatusOK, u)
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var in domain.ChangePassword
	if err := decode(r, &in); err != nil {
		writeError(w, err)
		return
	}
	if err := s.state.ChangePassword(currentUser(r).Base(), chi.URLParam(r, "id"), in); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ─── Clubs ───────────────────────────────────────────────────────────

func (s *Server) handleCreateClub(w http.ResponseWriter, r *http.Request) {
	var in domain.CreateClub
	if err := decode(r, &in); err != nil {
		writeError(w, err)
		return
	}
	c, err := s.state.CreateClub(in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleClub(w http.ResponseWriter, r *http.Request) {
	c, err := s.state.Club(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleApproveClub(w http.ResponseWriter, r *http.Request) {
	if err := s.state.ApproveClub(chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClubsToApprove(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.state.ClubsToApprove())
}

// ─── Events ──────────────────────────────────────────────────────────

func (s *Server) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	var in domain.CreateEvent
	if err := decode(r, &in); err != nil {
		writeError(w, err)
		return
	}
	e, err := s.state.CreateEvent(in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.state.Events())
}

func (s *Server) handleEnroll(w http.ResponseWriter, r *http.Request) {
	var in domain.CreateEnrollment
	if err := decode(r, &in); err != nil {
		writeError(w, err)
		return
	}
	e, err := s.state.Enroll(currentUser(r), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

// ─── Athletes ────────────────────────────────────────────────────────

func (s *Server) handleCreateAthlete(w http.ResponseWriter, r *http.Request) {
	var in domain.CreateUser
	if err := decode(r, &in); err != nil {
		writeError(w, err)
		return
	}
	in.Role = domain.RoleAthlete
	if cm, ok := currentUser(r).(domain.ClubManager); ok && cm.ClubID != in.ClubID {
		writeError(w, forbidden("You can only register athletes of your own club."))
		return
	}
	u, err := s.state.CreateUser(in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (s *Server) handleApproveAthlete(w http.ResponseWriter, r *http.Request) {
	if err := s.state.ApproveAthlete(chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAthletesToApprove(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.state.AthletesToApprove())
}
