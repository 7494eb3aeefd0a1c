package web

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"

	"github.com/flowsync-io/flowsync/pkg/session"
	"github.com/flowsync-io/flowsync/pkg/streamer"
	"github.com/flowsync-io/flowsync/pkg/syncer"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType("not_found").
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func conflictError(c fiber.Ctx, errType, detail string) error {
	problem := problems.NewStatusProblem(409).
		WithInstance(c.Path()).
		WithType(errType).
		WithDetail(detail)

	return c.Status(fiber.StatusConflict).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleSessionError provides typed error handling for session layer errors.
func handleSessionError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		return notFound(c, "session not found")

	case errors.Is(err, session.ErrSessionExists):
		return conflictError(c, "session_exists", err.Error())

	case errors.Is(err, syncer.ErrConflictNotFound):
		return notFound(c, "conflict not found")

	case errors.Is(err, syncer.ErrMergeNotPossible):
		return conflictError(c, "merge_not_possible", err.Error())

	case errors.Is(err, streamer.ErrExecutionAlreadyActive):
		return conflictError(c, "execution_already_active", err.Error())

	case errors.Is(err, streamer.ErrExecutionNotActive):
		return notFound(c, "no active execution")

	case syncer.IsValidationError(err), streamer.IsValidationError(err):
		return badRequest(c, err.Error())

	default:
		return internalError(c, err)
	}
}
