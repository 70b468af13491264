package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"strings"

	"github.com/sirupsen/logrus"

	"tfttracker/internal/apperr"
	"tfttracker/internal/auth"
	"tfttracker/internal/data"
)

type registerRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginRequest struct {
	Identifier string `json:"identifier"` // Email or username
	Password   string `json:"password"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

type roleUpdateRequest struct {
	RoleName string `json:"role_name"`
}

type userOut struct {
	ID       int64  `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username"`
	Role     string `json:"role,omitempty"`
	GameName string `json:"game_name,omitempty"`
	TagLine  string `json:"tag_line,omitempty"`
	Region   string `json:"region,omitempty"`
}

func toUserOut(u *data.User) userOut {
	return userOut{
		ID:       u.ID,
		Email:    u.Email,
		Username: u.Username,
		Role:     u.RoleName,
		GameName: u.GameName,
		TagLine:  u.TagLine,
		Region:   u.Region,
	}
}

func detail(format string, args ...any) map[string]string {
	return map[string]string{"detail": fmt.Sprintf(format, args...)}
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	req.Username = strings.TrimSpace(req.Username)
	if req.Email == "" || req.Username == "" || req.Password == "" {
		writeError(w, r, s.log, unprocessable("email, username and password are required"))
		return
	}
	if addr, err := mail.ParseAddress(req.Email); err != nil || addr.Address != req.Email {
		writeError(w, r, s.log, apperr.New(apperr.CodeInvalidArgument, "Invalid email address."))
		return
	}

	ctx := r.Context()
	if _, err := s.store.GetUserByEmail(ctx, req.Email); err == nil {
		writeError(w, r, s.log, apperr.New(apperr.CodeAlreadyExists, "Email already in use."))
		return
	} else if !errors.Is(err, data.ErrNotFound) {
		writeError(w, r, s.log, err)
		return
	}
	if _, err := s.store.GetUserByUsername(ctx, req.Username); err == nil {
		writeError(w, r, s.log, apperr.New(apperr.CodeAlreadyExists, "Username already in use."))
		return
	} else if !errors.Is(err, data.ErrNotFound) {
		writeError(w, r, s.log, err)
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeError(w, r, s.log, apperr.Wrap(apperr.CodeInvalidArgument, "Invalid password", err))
		return
	}
	u, err := s.store.CreateUser(ctx, data.NewUser{
		Email:          req.Email,
		Username:       req.Username,
		HashedPassword: hash,
	})
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}

	s.log.WithField("user_id", u.ID).Info("user registered")
	writeJSON(w, http.StatusOK, toUserOut(u))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, s.log, err)
		return
	}

	badCredentials := apperr.New(apperr.CodeUnauthenticated, "Incorrect username/email or password")
	u, err := s.store.GetUserByIdentifier(r.Context(), req.Identifier)
	if errors.Is(err, data.ErrNotFound) {
		writeError(w, r, s.log, badCredentials)
		return
	}
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	if !auth.VerifyPassword(req.Password, u.HashedPassword) {
		writeError(w, r, s.log, badCredentials)
		return
	}

	token, err := s.tokens.Issue(u.Username)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{AccessToken: token, TokenType: "bearer"})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request, u *data.User) {
	writeJSON(w, http.StatusOK, toUserOut(u))
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request, _ *data.User) {
	users, err := s.store.ListUsers(r.Context())
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	out := make([]userOut, 0, len(users))
	for i := range users {
		out = append(out, toUserOut(&users[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

// loadTarget fetches the user an admin action applies to
func (s *Server) loadTarget(r *http.Request) (*data.User, error) {
	id, err := pathID(r, "id")
	if err != nil {
		return nil, err
	}
	target, err := s.store.GetUserByID(r.Context(), id)
	if errors.Is(err, data.ErrNotFound) {
		return nil, apperr.New(apperr.CodeNotFound, "User not found")
	}
	return target, err
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request, admin *data.User) {
	target, err := s.loadTarget(r)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	if target.ID == admin.ID {
		writeError(w, r, s.log, apperr.New(apperr.CodePermissionDenied, "You cannot delete yourself."))
		return
	}
	if target.IsAdmin() {
		writeError(w, r, s.log, apperr.New(apperr.CodePermissionDenied, "You cannot delete another administrator."))
		return
	}

	if err := s.store.DeleteUser(r.Context(), target.ID); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	if err := s.cache.InvalidateUser(r.Context(), target.ID); err != nil {
		s.log.WithError(err).Warn("cache invalidation failed")
	}

	s.log.WithFields(logrus.Fields{"admin_id": admin.ID, "user_id": target.ID}).Info("user deleted")
	writeJSON(w, http.StatusOK, detail("User with ID %d deleted.", target.ID))
}

func (s *Server) handleUpdateRole(w http.ResponseWriter, r *http.Request, admin *data.User) {
	target, err := s.loadTarget(r)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	var req roleUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	if target.ID == admin.ID {
		writeError(w, r, s.log, apperr.New(apperr.CodePermissionDenied, "You cannot change your own role."))
		return
	}

	updated, err := s.store.SetUserRole(r.Context(), target.ID, req.RoleName)
	if errors.Is(err, data.ErrNotFound) {
		writeError(w, r, s.log, apperr.New(apperr.CodeInvalidArgument, "Invalid role"))
		return
	}
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, detail("Role of user '%s' updated to '%s'.", updated.Username, updated.RoleName))
}
