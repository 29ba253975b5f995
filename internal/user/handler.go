package user

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-user-go/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-user-go/pkg/database"
	"github.com/ovaphlow/pitchfork/service-user-go/pkg/utilities"
)

// Handler exposes the user operations over HTTP.
type Handler struct {
	svc    *UserService
	logger *zap.SugaredLogger
}

func NewHandler(svc *UserService, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// Request is the body of create and update calls. UserID is only honoured on create.
type Request struct {
	UserID    string        `json:"user_id" validate:"omitempty,uuid"`
	Name      string        `json:"name" validate:"required"`
	Surname   string        `json:"surname" validate:"required"`
	BirthDate database.Date `json:"birth_date" validate:"omitempty,past"`
	Email     string        `json:"email" validate:"required,email"`
}

func (req Request) toEntity() *entity.User {
	return &entity.User{
		ID:        req.UserID,
		Name:      req.Name,
		Surname:   req.Surname,
		BirthDate: req.BirthDate,
		Email:     req.Email,
	}
}

func (h *Handler) AppendRoutes(r chi.Router) {
	r.Route("/api/users", func(r chi.Router) {
		r.Post("/", h.create)
		r.Get("/", h.search)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.get)
			r.Put("/", h.update)
			r.Delete("/", h.delete)
			r.Patch("/activate", h.activate)
			r.Patch("/deactivate", h.deactivate)
		})
	})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := utilities.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	v, err := h.svc.Create(r.Context(), req.toEntity())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	utilities.WriteJSON(w, http.StatusCreated, v)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	v, err := h.svc.GetByID(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	utilities.WriteJSON(w, http.StatusOK, v)
}

// search filters on "name" (or "firstName") and "surname".
func (h *Handler) search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, size, err := utilities.PageParams(q)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	name := q.Get("name")
	if name == "" {
		name = q.Get("firstName")
	}
	res, err := h.svc.Search(r.Context(), name, q.Get("surname"), page, size)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	utilities.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req Request
	if err := utilities.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	v, err := h.svc.Update(r.Context(), id, req.toEntity())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	utilities.WriteJSON(w, http.StatusOK, v)
}

func (h *Handler) activate(w http.ResponseWriter, r *http.Request) {
	h.flip(w, r, h.svc.Activate)
}

func (h *Handler) deactivate(w http.ResponseWriter, r *http.Request) {
	h.flip(w, r, h.svc.Deactivate)
}

func (h *Handler) flip(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, id string) error) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := op(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.svc.Delete(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if !utilities.IsEntityID(id) {
		utilities.WriteValidation(w, utilities.NewValidationError("id", "must be a UUID"))
		return "", false
	}
	return id, true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var verr *utilities.ValidationError
	switch {
	case errors.As(err, &verr):
		h.logger.Debugw("invalid user request", "path", r.URL.Path, "err", err)
		utilities.WriteValidation(w, verr)
	case errors.Is(err, ErrNotFound):
		utilities.WriteError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrDuplicateIdentity):
		utilities.WriteError(w, http.StatusConflict, err.Error())
	default:
		h.logger.Errorw("user request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		utilities.WriteError(w, http.StatusInternalServerError, "internal error")
	}
}
