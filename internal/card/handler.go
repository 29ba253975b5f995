package card

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-user-go/internal/card/entity"
	"github.com/ovaphlow/pitchfork/service-user-go/pkg/database"
	"github.com/ovaphlow/pitchfork/service-user-go/pkg/utilities"
)

// Handler exposes the card operations over HTTP.
type Handler struct {
	svc    *CardService
	logger *zap.SugaredLogger
}

func NewHandler(svc *CardService, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// Request is the body of create and update calls. The owner cannot be
// changed by an update, so UserID is ignored there.
type Request struct {
	UserID         string        `json:"user_id" validate:"required,uuid"`
	Number         string        `json:"number" validate:"required,len=16,number"`
	Holder         string        `json:"holder" validate:"required"`
	ExpirationDate database.Date `json:"expiration_date" validate:"required,future"`
}

func (req Request) toEntity() *entity.Card {
	return &entity.Card{
		UserID:         req.UserID,
		Number:         req.Number,
		Holder:         req.Holder,
		ExpirationDate: req.ExpirationDate,
	}
}

// DeleteResponse tells the caller whose card was removed.
type DeleteResponse struct {
	UserID string `json:"user_id"`
}

func (h *Handler) AppendRoutes(r chi.Router) {
	r.Route("/api/cards", func(r chi.Router) {
		r.Post("/", h.create)
		r.Get("/", h.search)
		r.Get("/user-cards/{userID}", h.listByUser)
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
	c, err := h.svc.Create(r.Context(), req.toEntity())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	utilities.WriteJSON(w, http.StatusCreated, c)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	c, err := h.svc.GetByID(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	utilities.WriteJSON(w, http.StatusOK, c)
}

func (h *Handler) search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, size, err := utilities.PageParams(q)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.svc.Search(r.Context(), q.Get("number"), q.Get("holder"), page, size)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	utilities.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) listByUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.pathID(w, r, "userID")
	if !ok {
		return
	}
	cards, err := h.svc.ListByUser(r.Context(), userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	utilities.WriteJSON(w, http.StatusOK, cards)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req Request
	if err := utilities.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	c, err := h.svc.Update(r.Context(), id, req.toEntity())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	utilities.WriteJSON(w, http.StatusOK, c)
}

func (h *Handler) activate(w http.ResponseWriter, r *http.Request) {
	h.flip(w, r, h.svc.Activate)
}

func (h *Handler) deactivate(w http.ResponseWriter, r *http.Request) {
	h.flip(w, r, h.svc.Deactivate)
}

func (h *Handler) flip(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, id string) error) {
	id, ok := h.pathID(w, r, "id")
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
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	owner, err := h.svc.Delete(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	utilities.WriteJSON(w, http.StatusOK, DeleteResponse{UserID: owner})
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, param string) (string, bool) {
	id := chi.URLParam(r, param)
	if !utilities.IsEntityID(id) {
		utilities.WriteValidation(w, utilities.NewValidationError(param, "must be a UUID"))
		return "", false
	}
	return id, true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var verr *utilities.ValidationError
	switch {
	case errors.As(err, &verr):
		h.logger.Debugw("invalid card request", "path", r.URL.Path, "err", err)
		utilities.WriteValidation(w, verr)
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrOwnerNotFound):
		utilities.WriteError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrLimitExceeded):
		utilities.WriteError(w, http.StatusConflict, err.Error())
	default:
		h.logger.Errorw("card request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		utilities.WriteError(w, http.StatusInternalServerError, "internal error")
	}
}
