// Package web provides HTTP handlers and REST API endpoints for session management.
package web

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/flowsync-io/flowsync/pkg/journal"
	"github.com/flowsync-io/flowsync/pkg/session"
	"github.com/flowsync-io/flowsync/pkg/streamer"
)

type APIHandlers struct {
	registry  *session.Registry
	validator *validator.Validate
	journal   journal.Journal // optional
}

func NewAPIHandlers(registry *session.Registry, validator *validator.Validate, jrnl journal.Journal) *APIHandlers {
	return &APIHandlers{
		registry:  registry,
		validator: validator,
		journal:   jrnl,
	}
}

func (h *APIHandlers) OpenSession(c fiber.Ctx) error {
	var req OpenSessionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	sess, err := h.registry.Open(c.Context(), req.SessionID, req.WorkspaceID, &req.Workflow)
	if err != nil {
		return handleSessionError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(sess.SyncState())
}

func (h *APIHandlers) GetSessionState(c fiber.Ctx) error {
	sess, err := h.session(c)
	if err != nil {
		return handleSessionError(c, err)
	}

	return c.JSON(sess.SyncState())
}

func (h *APIHandlers) CloseSession(c fiber.Ctx) error {
	if err := h.registry.Close(c.Context(), c.Params("id")); err != nil {
		return handleSessionError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) EnableSync(c fiber.Ctx) error {
	sess, err := h.session(c)
	if err != nil {
		return handleSessionError(c, err)
	}

	sess.EnableSync(c.Context())

	return c.JSON(sess.SyncState())
}

func (h *APIHandlers) DisableSync(c fiber.Ctx) error {
	sess, err := h.session(c)
	if err != nil {
		return handleSessionError(c, err)
	}

	sess.DisableSync(c.Context())

	return c.JSON(sess.SyncState())
}

func (h *APIHandlers) RecordVisualChange(c fiber.Ctx) error {
	sess, err := h.session(c)
	if err != nil {
		return handleSessionError(c, err)
	}

	var req RecordChangeRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	change, err := req.ToChangeEvent()
	if err != nil {
		return badRequest(c, err.Error())
	}

	conflict, err := sess.RecordVisualChange(c.Context(), change)
	if err != nil {
		return handleSessionError(c, err)
	}

	return c.JSON(RecordChangeResponse{
		Applied:  conflict == nil,
		Conflict: conflict,
	})
}

func (h *APIHandlers) ListConflicts(c fiber.Ctx) error {
	sess, err := h.session(c)
	if err != nil {
		return handleSessionError(c, err)
	}

	return c.JSON(fiber.Map{
		"conflicts": sess.SyncState().Conflicts,
	})
}

func (h *APIHandlers) ResolveConflict(c fiber.Ctx) error {
	sess, err := h.session(c)
	if err != nil {
		return handleSessionError(c, err)
	}

	var req ResolveConflictRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	if err := sess.ResolveConflict(c.Context(), c.Params("conflictId"), req.Resolution); err != nil {
		return handleSessionError(c, err)
	}

	return c.JSON(sess.SyncState())
}

func (h *APIHandlers) StartExecution(c fiber.Ctx) error {
	sess, err := h.session(c)
	if err != nil {
		return handleSessionError(c, err)
	}

	var req StartExecutionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	executionID, err := sess.StartExecution(c.Context(), req.UserID)
	if err != nil {
		return handleSessionError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"execution_id": executionID,
	})
}

func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	sess, err := h.session(c)
	if err != nil {
		return handleSessionError(c, err)
	}

	execution := sess.Execution()
	if execution == nil {
		return notFound(c, "no execution in this session")
	}

	return c.JSON(execution)
}

func (h *APIHandlers) PostChatMessage(c fiber.Ctx) error {
	sess, err := h.session(c)
	if err != nil {
		return handleSessionError(c, err)
	}

	var req ChatMessageRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	reply, err := sess.HandleChatMessage(c.Context(), req.ActorID, req.Text)
	if err != nil {
		return handleSessionError(c, err)
	}

	return c.JSON(reply)
}

func (h *APIHandlers) ExportLog(c fiber.Ctx) error {
	sess, err := h.session(c)
	if err != nil {
		return handleSessionError(c, err)
	}

	format := streamer.ExportFormat(c.Query("format", string(streamer.ExportFormatJSON)))

	data, err := sess.ExportLog(format)
	if err != nil {
		return handleSessionError(c, err)
	}

	switch format {
	case streamer.ExportFormatJSON:
		c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	case streamer.ExportFormatCSV:
		c.Set(fiber.HeaderContentType, "text/csv")
	case streamer.ExportFormatText:
		c.Set(fiber.HeaderContentType, fiber.MIMETextPlain)
	}

	return c.Send(data)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	status := "healthy"
	message := "FlowSync API is healthy"
	httpStatus := http.StatusOK
	journalCheck := "not configured"

	if h.journal != nil {
		journalCheck = "ok"

		if err := h.journal.HealthCheck(c.Context()); err != nil {
			status = "unhealthy"
			message = "FlowSync API is unhealthy"
			httpStatus = http.StatusInternalServerError
			journalCheck = err.Error()
		}
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"journal":  journalCheck,
			"sessions": h.registry.Len(),
		},
		"timestamp": time.Now().UTC(),
	})
}

func (h *APIHandlers) session(c fiber.Ctx) (*session.Session, error) {
	return h.registry.Get(c.Params("id"))
}
