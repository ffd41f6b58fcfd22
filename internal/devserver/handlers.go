package devserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/pribylovaa/go-workconnect/internal/models"
	logctx "github.com/pribylovaa/go-workconnect/internal/pkg/log"
	"github.com/pribylovaa/go-workconnect/internal/pkg/redact"
)

var errBadJSON = errors.New("malformed json body")

const maxBody = 1 << 20

// Handlers — HTTP-слой над Service.
type Handlers struct {
	svc *Service
}

func NewHandlers(svc *Service) *Handlers {
	return &Handlers{svc: svc}
}

func decode(w http.ResponseWriter, r *http.Request, value any) error {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(value); err != nil {
		return fmt.Errorf("%w: %v", errBadJSON, err)
	}
	return nil
}

func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	var in models.RegisterRequest
	if err := decode(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}

	out, err := h.svc.Register(r.Context(), in)
	if err != nil {
		logctx.From(r.Context()).Info("register_rejected",
			slog.String("email", redact.Email(in.Email)),
			slog.String("err", err.Error()),
		)
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, out)
}

func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var in models.LoginRequest
	if err := decode(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}

	out, err := h.svc.Login(r.Context(), in)
	if err != nil {
		logctx.From(r.Context()).Info("login_rejected",
			slog.String("email", redact.Email(in.Email)),
			slog.String("err", err.Error()),
		)
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) Refresh(w http.ResponseWriter, r *http.Request) {
	var in models.RefreshRequest
	if err := decode(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}

	out, err := h.svc.Refresh(r.Context(), in.Refresh)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	var in models.LogoutRequest
	if err := decode(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.svc.Logout(r.Context(), in.Refresh); err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Logout successful"})
}

func (h *Handlers) Profile(w http.ResponseWriter, r *http.Request) {
	uid, err := h.svc.Authenticate(bearerFrom(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}

	u, err := h.svc.Profile(r.Context(), uid)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, u)
}
