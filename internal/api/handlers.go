package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/modfin/kuvert"
	"github.com/modfin/kuvert/internal/admission"
	"github.com/modfin/kuvert/internal/auth"
	"github.com/modfin/kuvert/internal/dao"
	"github.com/modfin/kuvert/internal/template"
)

func apiKeyOf(c echo.Context) string {
	key := c.Request().Header.Get("x-api-key")
	if key == "" {
		key = c.QueryParam("key")
	}
	return key
}

func bearerOf(c echo.Context) string {
	h := c.Request().Header.Get(echo.HeaderAuthorization)
	return strings.TrimPrefix(h, "Bearer ")
}

// respondErr maps the pipeline's error taxonomy onto the HTTP boundary.
// Anything unclassified is a 500 with a generic body, internals stay inside.
func (s *Server) respondErr(c echo.Context, err error) error {
	var missing template.MissingVariableError

	var code int
	var msg string
	switch {
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, admission.ErrUnauthorized):
		code, msg = http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, admission.ErrTemplateNotFound),
		errors.Is(err, dao.ErrTemplateNotFound):
		code, msg = http.StatusNotFound, "template not found"
	case errors.Is(err, dao.ErrProjectNotFound):
		code, msg = http.StatusNotFound, "project not found"
	case errors.Is(err, dao.ErrSendNotFound):
		code, msg = http.StatusNotFound, "send not found"
	case errors.As(err, &missing):
		code, msg = http.StatusBadRequest, missing.Error()
	case errors.Is(err, admission.ErrInvalidRecipient):
		code, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, admission.ErrQueueUnavailable):
		code, msg = http.StatusServiceUnavailable, "delivery queue unavailable, retry later"
	default:
		s.log.WithError(err).Error("unhandled error on api boundary")
		code, msg = http.StatusInternalServerError, "internal error"
	}
	return c.JSON(code, kuvert.ErrorResponse{Error: msg})
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) createProject(c echo.Context) error {
	_, err := s.authn.Verify(c.Request().Context(), bearerOf(c))
	if err != nil {
		return s.respondErr(c, err)
	}

	var req kuvert.CreateProjectRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, kuvert.ErrorResponse{Error: "could not parse body"})
	}
	if req.Name == "" {
		return c.JSON(http.StatusBadRequest, kuvert.ErrorResponse{Error: "a project name must be provided"})
	}

	project, err := s.db.CreateProject(req.Name)
	if err != nil {
		return s.respondErr(c, err)
	}
	return c.JSON(http.StatusCreated, kuvert.CreateProjectResponse{Id: project.Id, ApiKey: project.ApiKey})
}

func (s *Server) createTemplate(c echo.Context) error {
	_, err := s.authn.Verify(c.Request().Context(), bearerOf(c))
	if err != nil {
		return s.respondErr(c, err)
	}

	var req kuvert.CreateTemplateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, kuvert.ErrorResponse{Error: "could not parse body"})
	}

	tmpl, err := s.templates.Create(req.ProjectId, req.Name, req.HTML, req.Text, req.RequiredVariables)
	if errors.Is(err, dao.ErrProjectNotFound) {
		return s.respondErr(c, err)
	}
	if err != nil {
		return c.JSON(http.StatusBadRequest, kuvert.ErrorResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusCreated, kuvert.CreateTemplateResponse{Id: tmpl.Id})
}

func (s *Server) send(c echo.Context) error {
	var req kuvert.SendRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, kuvert.ErrorResponse{Error: "could not parse body"})
	}
	if req.Template == "" {
		return c.JSON(http.StatusBadRequest, kuvert.ErrorResponse{Error: "a template must be provided"})
	}

	ack, err := s.admission.Submit(c.Request().Context(), apiKeyOf(c), req.Template, req.Data)
	if err != nil {
		return s.respondErr(c, err)
	}
	return c.JSON(http.StatusOK, kuvert.SendAck{Id: ack.Id})
}

func (s *Server) getSend(c echo.Context) error {
	rec, err := s.admission.Record(c.Request().Context(), apiKeyOf(c), c.Param("id"))
	if err != nil {
		return s.respondErr(c, err)
	}
	return c.JSON(http.StatusOK, toStatus(rec))
}

func (s *Server) listSends(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	recs, err := s.admission.List(c.Request().Context(), apiKeyOf(c), limit)
	if err != nil {
		return s.respondErr(c, err)
	}
	out := make([]kuvert.SendStatus, 0, len(recs))
	for i := range recs {
		out = append(out, toStatus(&recs[i]))
	}
	return c.JSON(http.StatusOK, out)
}

func toStatus(rec *dao.SendRecord) kuvert.SendStatus {
	return kuvert.SendStatus{
		Id:        rec.Id,
		Template:  rec.TemplateId,
		Recipient: rec.Recipient,
		Status:    rec.Status,
		CreatedAt: rec.CreatedAt.In(time.UTC).Format(time.RFC3339),
		UpdatedAt: rec.UpdatedAt.In(time.UTC).Format(time.RFC3339),
	}
}
