package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nsqio/go-nsq"
	"github.com/sirupsen/logrus"
)

type NSQConfig struct {
	NsqdTCPAddr    string
	LookupHTTPAddr string

	Topic   string
	Channel string

	// VisibilityTimeout is the broker side msg-timeout, an unacknowledged
	// job is redelivered once it elapses.
	VisibilityTimeout time.Duration
	MaxInFlight       int
}

// NSQ carries delivery jobs over an nsqd topic. Publishes are synchronous,
// the broker has the message on disk before Publish returns.
type NSQ struct {
	cfg  NSQConfig
	log  *logrus.Logger
	prod *nsq.Producer
	cons *nsq.Consumer
}

func NewNSQ(cfg NSQConfig, log *logrus.Logger) (*NSQ, error) {
	nc := nsq.NewConfig()
	if cfg.VisibilityTimeout > 0 {
		nc.MsgTimeout = cfg.VisibilityTimeout
	}

	prod, err := nsq.NewProducer(cfg.NsqdTCPAddr, nc)
	if err != nil {
		return nil, fmt.Errorf("could not create nsq producer, %w", err)
	}

	return &NSQ{cfg: cfg, log: log, prod: prod}, nil
}

func (q *NSQ) Publish(ctx context.Context, job Job) error {
	b, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("could not marshal job, %w", err)
	}
	err = q.prod.Publish(q.cfg.Topic, b)
	if err != nil {
		return fmt.Errorf("nsq publish: %w", err)
	}
	return nil
}

func (q *NSQ) Consume(handler Handler, concurrency int) error {
	nc := nsq.NewConfig()
	if q.cfg.VisibilityTimeout > 0 {
		nc.MsgTimeout = q.cfg.VisibilityTimeout
	}
	if q.cfg.MaxInFlight > 0 {
		nc.MaxInFlight = q.cfg.MaxInFlight
	}

	cons, err := nsq.NewConsumer(q.cfg.Topic, q.cfg.Channel, nc)
	if err != nil {
		return fmt.Errorf("could not create nsq consumer, %w", err)
	}

	cons.AddConcurrentHandlers(nsq.HandlerFunc(func(m *nsq.Message) error {
		m.DisableAutoResponse() // the handler finishes or requeues explicitly
		defer func() {
			if !m.HasResponded() {
				q.log.Warn("job had no response, finishing")
				m.Finish()
			}
		}()

		var job Job
		if err := json.Unmarshal(m.Body, &job); err != nil {
			q.log.WithError(err).Error("bad job payload, dropping")
			m.Finish() // terminal, a bad payload does not get better on retry
			return nil
		}
		job.Attempt = int(m.Attempts) - 1

		handler(job, nsqHandle{m: m})
		return nil
	}), concurrency)

	q.cons = cons

	// Connecting directly to nsqd forces topic and channel creation instead
	// of the channel being lazily created on first publish.
	if err := cons.ConnectToNSQD(q.cfg.NsqdTCPAddr); err != nil {
		return fmt.Errorf("connect to nsqd failed, %w", err)
	}
	if q.cfg.LookupHTTPAddr != "" {
		if err := cons.ConnectToNSQLookupd(q.cfg.LookupHTTPAddr); err != nil {
			return fmt.Errorf("connect to nsqlookupd failed, %w", err)
		}
	}
	return nil
}

func (q *NSQ) Stop(ctx context.Context) error {
	if q.cons != nil {
		q.cons.Stop()
		select {
		case <-q.cons.StopChan:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	q.prod.Stop()
	return nil
}

type nsqHandle struct {
	m *nsq.Message
}

func (h nsqHandle) Finish() {
	h.m.Finish()
}

func (h nsqHandle) Requeue(delay time.Duration) {
	h.m.Requeue(delay)
}

func (h nsqHandle) Touch() {
	h.m.Touch()
}
