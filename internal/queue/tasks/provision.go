package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/foundernet/engine/internal/models"
	"github.com/foundernet/engine/internal/policy"
	"github.com/foundernet/engine/internal/services"
	appErr "github.com/foundernet/engine/pkg/errors"
	"github.com/foundernet/engine/pkg/logger"
)

// TypeFounderProvision replays a provisioning call that could not finish
// inline.
const TypeFounderProvision = "founder:provision"

// ProvisionPayload is the task payload for founder provisioning. The task
// runs as IdentityID, the identity that asked for it.
type ProvisionPayload struct {
	IdentityID string               `json:"identity_id"`
	Email      string               `json:"email"`
	Fields     models.FounderFields `json:"fields"`
}

// NewProvisionTask builds the task. Its id is derived from the identity, so
// a second enqueue for the same identity while one is pending is dropped.
func NewProvisionTask(p ProvisionPayload) (*asynq.Task, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal provision payload: %w", err)
	}
	return asynq.NewTask(TypeFounderProvision, b,
		asynq.TaskID(TypeFounderProvision+":"+p.IdentityID),
		asynq.MaxRetry(10),
		asynq.Timeout(30*time.Second),
	), nil
}

// Enqueuer is the part of *asynq.Client the API uses.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// EnqueueProvision schedules p. A task already pending for the identity
// counts as success.
func EnqueueProvision(ctx context.Context, q Enqueuer, p ProvisionPayload) error {
	task, err := NewProvisionTask(p)
	if err != nil {
		return err
	}
	info, err := q.EnqueueContext(ctx, task)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		logger.L().Info("provision task already queued", zap.String("founder_id", p.IdentityID))
		return nil
	}
	if err != nil {
		return appErr.Unavailable(err, "enqueue provision task failed")
	}
	logger.L().Info("provision task queued",
		zap.String("founder_id", p.IdentityID),
		zap.String("task_id", info.ID),
		zap.String("queue", info.Queue),
	)
	return nil
}

// ProvisionTaskHandler handles founder provisioning tasks.
type ProvisionTaskHandler struct {
	provisioner services.Provisioner
}

func NewProvisionTaskHandler(prov services.Provisioner) *ProvisionTaskHandler {
	return &ProvisionTaskHandler{provisioner: prov}
}

// HandleProvision runs the same upsert as the inline path. Transient
// failures are returned for asynq to retry; anything else skips retry.
func (h *ProvisionTaskHandler) HandleProvision(ctx context.Context, t *asynq.Task) error {
	var p ProvisionPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		logger.L().Error("invalid provision task payload", zap.Error(err))
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}
	id, err := uuid.Parse(p.IdentityID)
	if err != nil {
		logger.L().Error("invalid identity id in task", zap.String("identity_id", p.IdentityID), zap.Error(err))
		return fmt.Errorf("identity id: %v: %w", err, asynq.SkipRetry)
	}

	logger.L().Info("handling provision task", zap.String("founder_id", id.String()))

	f, err := h.provisioner.Provision(ctx, policy.As(id), p.IdentityID, p.Email, p.Fields)
	if err != nil {
		if appErr.Retryable(err) {
			logger.L().Warn("provision task will retry", zap.String("founder_id", id.String()), zap.Error(err))
			return err
		}
		logger.L().Error("provision task failed",
			zap.String("founder_id", id.String()),
			zap.String("code", string(appErr.CodeOf(err))),
			zap.Error(err),
		)
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	logger.L().Info("provision task completed",
		zap.String("founder_id", f.ID.String()),
		zap.Bool("onboarding_completed", f.OnboardingCompleted),
	)
	return nil
}
