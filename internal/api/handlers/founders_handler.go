package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/foundernet/engine/internal/api/middleware"
	"github.com/foundernet/engine/internal/api/types"
	"github.com/foundernet/engine/internal/models"
	"github.com/foundernet/engine/internal/policy"
	"github.com/foundernet/engine/internal/services"
	appErr "github.com/foundernet/engine/pkg/errors"
)

// maxAvatarBytes caps avatar uploads.
const maxAvatarBytes = 5 << 20

// FoundersHandler serves founder profiles. Every call runs as the actor
// OptionalAuth placed in the context, anonymous included.
type FoundersHandler struct {
	identities  services.IdentityService
	provisioner services.Provisioner
	profiles    services.ProfileService
	avatars     services.AvatarService
}

func NewFoundersHandler(identities services.IdentityService, prov services.Provisioner, profiles services.ProfileService, avatars services.AvatarService) *FoundersHandler {
	return &FoundersHandler{identities: identities, provisioner: prov, profiles: profiles, avatars: avatars}
}

// Provision creates or merges the caller's profile. The email comes from
// the identity, never from the body.
func (h *FoundersHandler) Provision(w http.ResponseWriter, r *http.Request) {
	actor := middleware.GetActor(r.Context())
	if err := policy.Founders.Gate(actor, policy.Insert); err != nil {
		writeError(w, r, err)
		return
	}
	var req types.ProfileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	u, err := h.identities.Get(r.Context(), actor.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	f, err := h.provisioner.Provision(r.Context(), actor, u.ID.String(), u.Email, req.FounderFields)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, f)
}

func (h *FoundersHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	h.fetch(w, r, middleware.GetActor(r.Context()).ID)
}

func (h *FoundersHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, appErr.Invalid("id must be a UUID"))
		return
	}
	h.fetch(w, r, id)
}

// fetch reads through the retrying lookup. Absence is a 404 that carries
// the attempt count, so clients can tell "not there" from "could not read".
func (h *FoundersHandler) fetch(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	actor := middleware.GetActor(r.Context())
	l, err := h.profiles.FetchProfile(r.Context(), actor, id, services.FetchOptions{})
	if err != nil {
		writeError(w, r, err)
		return
	}
	meta := &types.Meta{
		RequestID:      middleware.GetRequestID(r.Context()),
		Attempts:       l.Attempts,
		RetryExhausted: l.RetryExhausted,
	}
	if !l.Found {
		writeJSON(w, http.StatusNotFound, types.APIResponse{
			Success: false,
			Error:   &types.APIError{Code: string(appErr.CodeNotFound), Message: "founder not found"},
			Meta:    meta,
		})
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: l.Founder, Meta: meta})
}

func (h *FoundersHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	actor := middleware.GetActor(r.Context())
	var req types.ProfileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	f, err := h.profiles.Update(r.Context(), actor, actor.ID, req.FounderFields)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, f)
}

func (h *FoundersHandler) CompleteOnboarding(w http.ResponseWriter, r *http.Request) {
	actor := middleware.GetActor(r.Context())
	f, err := h.profiles.CompleteOnboarding(r.Context(), actor, actor.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, f)
}

func (h *FoundersHandler) DeleteMe(w http.ResponseWriter, r *http.Request) {
	actor := middleware.GetActor(r.Context())
	if err := h.profiles.Delete(r.Context(), actor, actor.ID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UploadAvatar takes a multipart "file" field.
func (h *FoundersHandler) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	actor := middleware.GetActor(r.Context())
	if err := policy.Founders.Gate(actor, policy.Update); err != nil {
		writeError(w, r, err)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxAvatarBytes)
	if err := r.ParseMultipartForm(maxAvatarBytes); err != nil {
		writeError(w, r, appErr.Wrap(err, appErr.CodeInvalid, "avatar must be a multipart upload under 5MB"))
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, appErr.Wrap(err, appErr.CodeInvalid, "missing file field"))
		return
	}
	defer file.Close()

	f, err := h.avatars.Upload(r.Context(), actor, actor.ID, file)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, f)
}

// List returns discoverable profiles, newest first.
func (h *FoundersHandler) List(w http.ResponseWriter, r *http.Request) {
	actor := middleware.GetActor(r.Context())
	filters := &services.ProfileFilters{
		Page:     queryInt(r, "page"),
		PageSize: queryInt(r, "page_size"),
	}
	rows, err := h.profiles.ListDiscoverable(r.Context(), actor, filters)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if rows == nil {
		rows = []models.Founder{}
	}
	writeJSON(w, http.StatusOK, types.APIResponse{
		Success: true,
		Data:    rows,
		Meta: &types.Meta{
			RequestID: middleware.GetRequestID(r.Context()),
			Page:      filters.Page,
			PageSize:  filters.PageSize,
		},
	})
}

func queryInt(r *http.Request, key string) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
