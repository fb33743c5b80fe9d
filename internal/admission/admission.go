// Package admission is the synchronous half of the send pipeline. It
// authenticates, validates and persists a send, publishes the delivery job,
// and answers before any delivery is attempted.
package admission

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/modfin/kuvert/internal/dao"
	"github.com/modfin/kuvert/internal/metrics"
	"github.com/modfin/kuvert/internal/queue"
	"github.com/modfin/kuvert/internal/template"
	"github.com/modfin/kuvert/pkg/zid"
	"github.com/modfin/kuvert/tools"
)

var ErrUnauthorized = errors.New("unauthorized")
var ErrTemplateNotFound = errors.New("template not found")
var ErrInvalidRecipient = errors.New("invalid recipient")
var ErrQueueUnavailable = errors.New("delivery queue unavailable")

type Ack struct {
	Id string
}

type Service struct {
	db        dao.DAO
	templates *template.Resolver
	queue     queue.Queue
	log       *logrus.Logger
}

func New(db dao.DAO, templates *template.Resolver, q queue.Queue, log *logrus.Logger) *Service {
	return &Service{db: db, templates: templates, queue: q, log: log}
}

// Submit admits one send. On success exactly one queued send record and one
// published job exist, on any failure neither does.
func (s *Service) Submit(ctx context.Context, apiKey string, templateId string, data map[string]string) (*Ack, error) {
	project, err := s.db.GetProjectByKey(apiKey)
	if errors.Is(err, dao.ErrMalformedKey) || errors.Is(err, dao.ErrProjectNotFound) {
		metrics.SendsRejected.WithLabelValues("unauthorized").Inc()
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve api key, %w", err)
	}

	tmpl, err := s.templates.Get(templateId)
	if errors.Is(err, dao.ErrTemplateNotFound) {
		metrics.SendsRejected.WithLabelValues("template_not_found").Inc()
		return nil, ErrTemplateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve template, %w", err)
	}
	// Cross-tenant isolation. Another project's template is reported the
	// same way as a missing one, its existence must not leak.
	if tmpl.ProjectId != project.Id {
		metrics.SendsRejected.WithLabelValues("template_not_found").Inc()
		return nil, ErrTemplateNotFound
	}

	if err := template.Validate(tmpl, data); err != nil {
		metrics.SendsRejected.WithLabelValues("validation").Inc()
		return nil, err
	}

	recipient := data["email"]
	if err := tools.ValidAddress(recipient); err != nil {
		metrics.SendsRejected.WithLabelValues("validation").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecipient, err)
	}

	id := zid.New()
	rec := dao.SendRecord{
		Id:         id.String(),
		ProjectId:  project.Id,
		TemplateId: tmpl.Id,
		Recipient:  recipient,
		Variables:  data,
	}
	err = s.db.AddSendToQueue(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to persist send record, %w", err)
	}

	job := queue.Job{
		SendId:      id,
		ProjectId:   project.Id,
		TemplateId:  tmpl.Id,
		Recipient:   recipient,
		Variables:   data,
		PublishedAt: id.Time(),
	}
	err = s.queue.Publish(ctx, job)
	if err != nil {
		// All or nothing, a queued record without a job on the broker would
		// never reach a terminal state.
		if vErr := s.db.VoidSend(id.String()); vErr != nil {
			s.log.WithError(vErr).WithField("send_id", id.String()).Error("could not void send record after publish failure")
		}
		metrics.QueuePublishFailures.Inc()
		s.log.WithError(err).WithField("send_id", id.String()).Warn("queue publish failed, send voided")
		return nil, fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
	}

	metrics.SendsAdmitted.Inc()
	s.log.WithField("send_id", id.String()).WithField("project_id", project.Id).Info("send admitted and queued")
	return &Ack{Id: id.String()}, nil
}

// Record looks up a send on behalf of the key's project. Records of other
// projects are reported as missing.
func (s *Service) Record(ctx context.Context, apiKey string, id string) (*dao.SendRecord, error) {
	project, err := s.db.GetProjectByKey(apiKey)
	if errors.Is(err, dao.ErrMalformedKey) || errors.Is(err, dao.ErrProjectNotFound) {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	if err != nil {
		return nil, err
	}

	rec, err := s.db.GetSend(id)
	if err != nil {
		return nil, err
	}
	if rec.ProjectId != project.Id {
		return nil, dao.ErrSendNotFound
	}
	return rec, nil
}

// List returns the key's project's sends in admission order.
func (s *Service) List(ctx context.Context, apiKey string, limit int) ([]dao.SendRecord, error) {
	project, err := s.db.GetProjectByKey(apiKey)
	if errors.Is(err, dao.ErrMalformedKey) || errors.Is(err, dao.ErrProjectNotFound) {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}
	return s.db.ListSends(project.Id, limit)
}
