package quota

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/aidqr/aidqr/internal/api"
)

type IssueRequest struct {
	Data struct {
		ID            string `json:"id" validate:"required"`
		Disadvantaged string `json:"disadvantaged" validate:"required"`
	} `json:"data"`
}

type IssueResponse struct {
	Message   string    `json:"message"`
	Key       string    `json:"key"`
	QRCode    string    `json:"qrCode"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type ScanRequest struct {
	ID   string `json:"id" validate:"required"`
	Key  string `json:"key" validate:"required"`
	Type string `json:"type" validate:"required,oneof=water meals"`
}

type ScanResponse struct {
	Message   string    `json:"message"`
	Remaining Allowance `json:"remaining"`
}

type ActiveKeyStatus struct {
	ExpiresAt time.Time `json:"expiresAt"`
}

type StatusResponse struct {
	ID            string                    `json:"id"`
	Disadvantaged string                    `json:"disadvantaged"`
	DailyLimit    Allowance                 `json:"dailyLimit"`
	Used          Allowance                 `json:"used"`
	Remaining     Allowance                 `json:"remaining"`
	LastReset     time.Time                 `json:"lastReset"`
	ActiveKeys    map[Kind]*ActiveKeyStatus `json:"activeKeys"`
}

type Handler struct {
	svc      *Service
	validate *validator.Validate
}

func NewHandler(svc *Service) *Handler {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	return &Handler{
		svc:      svc,
		validate: v,
	}
}

// IssueWater handles POST /generate-water-qrcode.
func (h *Handler) IssueWater(w http.ResponseWriter, r *http.Request) {
	h.issue(w, r, Water)
}

// IssueMeals handles POST /generate-meal-qrcode.
func (h *Handler) IssueMeals(w http.ResponseWriter, r *http.Request) {
	h.issue(w, r, Meals)
}

func (h *Handler) issue(w http.ResponseWriter, r *http.Request, kind Kind) {
	var req IssueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(validationMessage(err)))
		return
	}

	issued, err := h.svc.Issue(r.Context(), req.Data.ID, req.Data.Disadvantaged, kind)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	api.JSONRaw(w, http.StatusOK, IssueResponse{
		Message:   fmt.Sprintf("%s QR code generated", kindLabel(kind)),
		Key:       issued.Key,
		QRCode:    issued.QRCode,
		ExpiresAt: issued.ExpiresAt,
	})
}

// Scan handles POST /scan-qrcode.
func (h *Handler) Scan(w http.ResponseWriter, r *http.Request) {
	var req ScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(validationMessage(err)))
		return
	}

	kind, err := ParseKind(req.Type)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	remaining, err := h.svc.Redeem(r.Context(), req.ID, req.Key, kind)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	api.JSONRaw(w, http.StatusOK, ScanResponse{
		Message:   fmt.Sprintf("%s redeemed", kindLabel(kind)),
		Remaining: remaining,
	})
}

// Status handles GET /quota/{id}.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	rec, err := h.svc.Status(r.Context(), id)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	resp := StatusResponse{
		ID:            rec.ID,
		Disadvantaged: rec.Disadvantaged,
		DailyLimit:    rec.DailyLimit,
		Used:          rec.Used,
		Remaining:     rec.Remaining(),
		LastReset:     rec.LastReset,
		ActiveKeys:    make(map[Kind]*ActiveKeyStatus, len(Kinds)),
	}
	now := h.svc.Now()
	for _, k := range Kinds {
		resp.ActiveKeys[k] = nil
		if _, expires, ok := rec.ActiveKey(k); ok && expires.After(now) {
			resp.ActiveKeys[k] = &ActiveKeyStatus{ExpiresAt: expires}
		}
	}

	api.JSON(w, http.StatusOK, resp)
}

func (h *Handler) handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrValidation),
		errors.Is(err, ErrQuotaExceeded),
		errors.Is(err, ErrInvalidKey):
		api.HandleError(w, api.NewBadRequestError(err.Error()))
	case errors.Is(err, ErrNotFound):
		api.HandleError(w, api.NewNotFoundError(err.Error()))
	case errors.Is(err, ErrRender):
		slog.Error("rendering qr code", "error", err)
		api.HandleError(w, api.NewInternalError("failed to generate qr code"))
	default:
		slog.Error("quota request failed", "error", err)
		api.HandleError(w, api.ErrInternalServer)
	}
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", fe.Field()))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s is invalid", fe.Field()))
		}
	}
	return strings.Join(msgs, "; ")
}

func kindLabel(k Kind) string {
	if k == Meals {
		return "Meal"
	}
	return "Water"
}
