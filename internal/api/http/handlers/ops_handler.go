package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/sla-monitor/internal/service"
	apperrors "github.com/spec-kit/sla-monitor/pkg/util/errorutil"
)

// TaskLister reports running background tasks.
type TaskLister interface {
	Running() []string
}

// OpsHandler lets operators trigger a scan or a mailbox poll outside the schedule.
type OpsHandler struct {
	sla       *service.SLAService
	ingestion *service.IngestionService
	tasks     TaskLister
}

// NewOpsHandler constructs handler. tasks may be nil.
func NewOpsHandler(slaService *service.SLAService, ingestion *service.IngestionService, tasks TaskLister) *OpsHandler {
	return &OpsHandler{sla: slaService, ingestion: ingestion, tasks: tasks}
}

// RunSLAScan POST /ops/sla-scan.
func (h *OpsHandler) RunSLAScan(c *fiber.Ctx) error {
	result, err := h.sla.RunSlaScan(c.UserContext())
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	return c.JSON(fiber.Map{"data": result})
}

// RunMailIngestion POST /ops/mail-ingestion.
func (h *OpsHandler) RunMailIngestion(c *fiber.Ctx) error {
	result, err := h.ingestion.RunMailIngestion(c.UserContext())
	if err != nil {
		if errors.Is(err, apperrors.ErrTransientConnection) {
			return apperrors.NewDomainError("MAILBOX_UNAVAILABLE", "mailbox unreachable", fiber.StatusServiceUnavailable, nil)
		}
		return apperrors.NewInternalError(err)
	}
	return c.JSON(fiber.Map{"data": result})
}

// Tasks GET /ops/tasks.
func (h *OpsHandler) Tasks(c *fiber.Ctx) error {
	running := []string{}
	if h.tasks != nil {
		running = h.tasks.Running()
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"running": running}})
}
