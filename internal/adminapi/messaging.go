package adminapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/waplex/waplex/internal/session"
	"github.com/waplex/waplex/internal/webserver"
)

func registerMessagingRoutes() {
	webserver.ApiPOST("/accounts/:id/send", postSendMessage)
	webserver.ApiPOST("/accounts/:id/send/bulk", postSendBulk)
	webserver.ApiGET("/send/jobs/:jobId", getBulkJob)
}

// postSendMessage sends one text message through a connected session.
func postSendMessage(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid account ID", nil)
	}

	var payload struct {
		To   string `json:"to"`
		Body string `json:"body"`
	}
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse request", err.Error())
	}
	if payload.To == "" || payload.Body == "" {
		return fail(c, http.StatusBadRequest, "MISSING_FIELDS", "to and body are required", nil)
	}

	msg, err := manager.SendMessage(c.Request().Context(), id, payload.To, payload.Body)
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		return fail(c, http.StatusNotFound, "SESSION_NOT_FOUND", "No active session for this account", nil)
	case errors.Is(err, session.ErrNotConnected):
		return fail(c, http.StatusConflict, "NOT_CONNECTED", "Session is not connected", nil)
	case err != nil:
		return fail(c, http.StatusInternalServerError, "SEND_FAILED", "Failed to send message", err.Error())
	}
	return ok(c, msg)
}

// postSendBulk enqueues a bulk send job and returns its job id immediately.
func postSendBulk(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid account ID", nil)
	}

	var payload struct {
		Recipients []string `json:"recipients"`
		Body       string   `json:"body"`
	}
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse request", err.Error())
	}
	if len(payload.Recipients) == 0 || payload.Body == "" {
		return fail(c, http.StatusBadRequest, "MISSING_FIELDS", "recipients and body are required", nil)
	}

	jobID, err := manager.SendBulk(id, payload.Recipients, payload.Body)
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		return fail(c, http.StatusNotFound, "SESSION_NOT_FOUND", "No active session for this account", nil)
	case errors.Is(err, session.ErrNotConnected):
		return fail(c, http.StatusConflict, "NOT_CONNECTED", "Session is not connected", nil)
	case err != nil:
		return fail(c, http.StatusInternalServerError, "BULK_FAILED", "Failed to enqueue bulk job", err.Error())
	}
	return ok(c, map[string]interface{}{
		"job_id": strconv.FormatInt(jobID, 10),
		"total":  len(payload.Recipients),
	})
}

func getBulkJob(c echo.Context) error {
	jobID, err := parseIDParam(c, "jobId")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid job ID", nil)
	}
	job, err := manager.JobStatus(jobID)
	if errors.Is(err, session.ErrJobNotFound) {
		return fail(c, http.StatusNotFound, "JOB_NOT_FOUND", "Bulk job not found", nil)
	} else if err != nil {
		return fail(c, http.StatusInternalServerError, "JOB_FAILED", "Failed to query job", err.Error())
	}
	return ok(c, job)
}
