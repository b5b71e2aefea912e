package handlers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/foundernet/engine/internal/api/middleware"
	"github.com/foundernet/engine/internal/api/types"
	"github.com/foundernet/engine/internal/models"
	"github.com/foundernet/engine/internal/policy"
	"github.com/foundernet/engine/internal/queue/tasks"
	"github.com/foundernet/engine/internal/services"
	"github.com/foundernet/engine/internal/validators"
	appErr "github.com/foundernet/engine/pkg/errors"
	"github.com/foundernet/engine/pkg/logger"
)

type AuthHandler struct {
	identities  services.IdentityService
	provisioner services.Provisioner
	queue       tasks.Enqueuer
	// provisionTimeout bounds the inline provisioning call made at sign-up.
	provisionTimeout time.Duration
	tokenTTL         time.Duration
}

type AuthOptions struct {
	ProvisionTimeout time.Duration
	TokenTTL         time.Duration
}

// NewAuthHandler wires sign-up, login and the identity lookup. queue may be
// nil, in which case a sign-up whose provisioning cannot finish inline
// fails instead of being deferred.
func NewAuthHandler(identities services.IdentityService, prov services.Provisioner, queue tasks.Enqueuer, opts AuthOptions) *AuthHandler {
	if opts.ProvisionTimeout <= 0 {
		opts.ProvisionTimeout = 5 * time.Second
	}
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = 24 * time.Hour
	}
	return &AuthHandler{
		identities:       identities,
		provisioner:      prov,
		queue:            queue,
		provisionTimeout: opts.ProvisionTimeout,
		tokenTTL:         opts.TokenTTL,
	}
}

func identityResponse(u *models.Identity) types.IdentityResponse {
	return types.IdentityResponse{ID: u.ID.String(), Email: u.Email, Confirmed: u.Confirmed()}
}

// SignUp creates the identity and then its founder profile. When the
// profile cannot be written in time the work is queued and the response is
// 202; the client reads the profile later through the retrying fetch.
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req types.SignUpRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := validators.Struct(req); err != nil {
		writeError(w, r, err)
		return
	}

	u, err := h.identities.SignUp(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var fields models.FounderFields
	if req.Profile != nil {
		fields = *req.Profile
	}
	actor := policy.As(u.ID)

	ctx, cancel := context.WithTimeout(r.Context(), h.provisionTimeout)
	defer cancel()
	f, err := h.provisioner.Provision(ctx, actor, u.ID.String(), u.Email, fields)
	if err == nil {
		writeData(w, r, http.StatusCreated, map[string]any{
			"identity": identityResponse(u),
			"founder":  f,
		})
		return
	}
	deferrable := appErr.Retryable(err) || appErr.IsCode(err, appErr.CodeDeadline)
	if !deferrable || h.queue == nil {
		writeError(w, r, err)
		return
	}

	logger.L().Warn("inline provisioning did not finish, deferring",
		zap.String("founder_id", u.ID.String()),
		zap.Error(err),
	)
	payload := tasks.ProvisionPayload{IdentityID: u.ID.String(), Email: u.Email, Fields: fields}
	if err := tasks.EnqueueProvision(context.WithoutCancel(r.Context()), h.queue, payload); err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusAccepted, map[string]any{
		"identity":     identityResponse(u),
		"provisioning": "queued",
	})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req types.LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := validators.Struct(req); err != nil {
		writeError(w, r, err)
		return
	}

	token, u, err := h.identities.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, types.TokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int64(h.tokenTTL.Seconds()),
		Identity:    identityResponse(u),
	})
}

// Me returns the calling identity.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	actor := middleware.GetActor(r.Context())
	if !actor.Authenticated() {
		writeError(w, r, appErr.New(appErr.CodeUnauthorized, "not signed in"))
		return
	}
	u, err := h.identities.Get(r.Context(), actor.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, identityResponse(u))
}
