// Package worker is the asynchronous half of the send pipeline. It consumes
// delivery jobs, renders final content, performs the transport send and
// resolves each send record into a terminal state. Worker errors never reach
// the submitting client, they only show up in the record's status.
package worker

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/modfin/kuvert/internal/dao"
	"github.com/modfin/kuvert/internal/metrics"
	"github.com/modfin/kuvert/internal/queue"
	"github.com/modfin/kuvert/internal/template"
	"github.com/modfin/kuvert/internal/transport"
)

type Config struct {
	Concurrency int
	MaxAttempts int

	// Backoff is the requeue delay schedule indexed by attempt, the last
	// entry repeats. A jitter of +/-25% is applied to spread redeliveries.
	Backoff []time.Duration

	// SendTimeout bounds a single transport attempt. Keep it below the
	// queue's visibility timeout, once that elapses the broker redelivers
	// the job even though this attempt may still be outstanding. Accepted
	// at-least-once tradeoff, the terminal-state guard below keeps the
	// duplicate from sending twice once the first attempt has finished.
	SendTimeout time.Duration
}

type Worker struct {
	cfg       Config
	db        dao.DAO
	templates *template.Resolver
	queue     queue.Queue
	sender    transport.Sender
	log       *logrus.Logger

	ostart sync.Once
	ostop  sync.Once
}

func New(cfg Config, db dao.DAO, templates *template.Resolver, q queue.Queue, sender transport.Sender, log *logrus.Logger) *Worker {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if len(cfg.Backoff) == 0 {
		cfg.Backoff = []time.Duration{time.Second}
	}
	return &Worker{cfg: cfg, db: db, templates: templates, queue: q, sender: sender, log: log}
}

func (w *Worker) Start() (err error) {
	w.ostart.Do(func() {
		w.log.Infof("starting delivery worker with %d handlers", w.cfg.Concurrency)
		err = w.queue.Consume(w.Handle, w.cfg.Concurrency)
	})
	return err
}

func (w *Worker) Stop(ctx context.Context) (err error) {
	w.ostop.Do(func() {
		err = w.queue.Stop(ctx)
	})
	return err
}

// Handle processes one delivery of a job. Redeliveries of the same job are
// expected, the send record's terminal state decides whether anything is
// actually sent.
func (w *Worker) Handle(job queue.Job, h queue.Handle) {
	log := w.log.WithField("send_id", job.SendId.String()).WithField("attempt", job.Attempt)

	rec, err := w.db.GetSend(job.SendId.String())
	if errors.Is(err, dao.ErrSendNotFound) {
		// Voided or unknown record, nothing to deliver.
		log.Warn("job without a send record, discarding")
		metrics.DeliveriesDiscarded.Inc()
		h.Finish()
		return
	}
	if err != nil {
		log.WithError(err).Error("could not load send record, requeueing")
		h.Requeue(w.delay(job.Attempt + 1))
		return
	}
	if dao.Terminal(rec.Status) {
		// Duplicate delivery after the record was finished, the idempotency
		// guard against double sends.
		log.WithField("status", rec.Status).Info("send already terminal, discarding redelivered job")
		metrics.DeliveriesDiscarded.Inc()
		h.Finish()
		return
	}

	tmpl, err := w.templates.Get(rec.TemplateId)
	if errors.Is(err, dao.ErrTemplateNotFound) {
		w.fail(rec.Id, log, "template no longer exists")
		h.Finish()
		return
	}
	if err != nil {
		log.WithError(err).Error("could not load template, requeueing")
		h.Requeue(w.delay(job.Attempt + 1))
		return
	}

	rendered, err := template.Render(tmpl, rec.Variables)
	if err != nil {
		// Admission validated the variables and templates are immutable, a
		// render failure here is permanent.
		w.fail(rec.Id, log, "render failed: "+err.Error())
		h.Finish()
		return
	}

	subject := tmpl.Name
	if s, ok := rec.Variables["subject"]; ok && s != "" {
		subject = s
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.cfg.SendTimeout)
	err = w.sender.Send(ctx, transport.Message{
		To:      rec.Recipient,
		Subject: subject,
		HTML:    rendered.HTML,
		Text:    rendered.Text,
	})
	cancel()

	if err != nil {
		retryable := transport.Retryable(err)
		if retryable && job.Attempt+1 < w.cfg.MaxAttempts {
			delay := w.delay(job.Attempt + 1)
			_ = w.db.AddSendLogEntry(rec.Id, "transport failed, will retry: "+err.Error())
			log.WithError(err).WithField("delay", delay.String()).Info("transport failed, requeueing")
			metrics.DeliveriesRequeued.Inc()
			h.Requeue(delay)
			return
		}
		reason := "transport failed permanently: " + err.Error()
		if retryable {
			reason = "transport failed, attempts exhausted: " + err.Error()
		}
		w.fail(rec.Id, log, reason)
		h.Finish()
		return
	}

	err = w.db.FinishSend(rec.Id, dao.SendStatusSent)
	if errors.Is(err, dao.ErrSendTerminal) {
		// A concurrent duplicate won the race after our send went out. The
		// record keeps its first outcome.
		log.Warn("send finished concurrently, keeping first outcome")
		h.Finish()
		return
	}
	if err != nil {
		log.WithError(err).Error("delivered but could not finish send record")
	}
	log.Info("delivered")
	metrics.DeliveriesSent.Inc()
	h.Finish()
}

func (w *Worker) fail(id string, log *logrus.Entry, reason string) {
	err := w.db.FinishSend(id, dao.SendStatusFailed)
	if err != nil && !errors.Is(err, dao.ErrSendTerminal) {
		log.WithError(err).Error("could not mark send failed")
	}
	_ = w.db.AddSendLogEntry(id, reason)
	log.WithField("reason", reason).Warn("delivery failed")
	metrics.DeliveriesFailed.Inc()
}

func (w *Worker) delay(attempt int) time.Duration {
	idx := attempt - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(w.cfg.Backoff) {
		idx = len(w.cfg.Backoff) - 1
	}
	base := w.cfg.Backoff[idx]
	jitter := 1 + (rand.Float64()*2-1)*0.25
	return time.Duration(float64(base) * jitter)
}
