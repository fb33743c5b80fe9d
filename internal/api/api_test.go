package api

import (
	"context"
	"errors"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modfin/kuvert"
	"github.com/modfin/kuvert/internal/admission"
	"github.com/modfin/kuvert/internal/auth"
	"github.com/modfin/kuvert/internal/dao"
	"github.com/modfin/kuvert/internal/queue"
	"github.com/modfin/kuvert/internal/template"
	"github.com/modfin/kuvert/internal/transport"
	"github.com/modfin/kuvert/internal/worker"
)

type flakyQueue struct {
	queue.Queue

	mu   sync.Mutex
	fail bool
}

func (q *flakyQueue) setFail(fail bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.fail = fail
}

func (q *flakyQueue) Publish(ctx context.Context, job queue.Job) error {
	q.mu.Lock()
	fail := q.fail
	q.mu.Unlock()
	if fail {
		return errors.New("broker gone")
	}
	return q.Queue.Publish(ctx, job)
}

type countingSender struct {
	mu   sync.Mutex
	sent []transport.Message
}

func (s *countingSender) Send(ctx context.Context, msg transport.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)
	return nil
}

func (s *countingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

// The prometheus middleware registers collectors globally, so all scenarios
// share one server instance.
func TestAPI(t *testing.T) {
	log := logrus.New()
	db, err := dao.NewSQLite(filepath.Join(t.TempDir(), "kuvert.sqlite"))
	require.NoError(t, err)

	q := &flakyQueue{Queue: queue.NewMemory(time.Minute)}
	resolver := template.New(db)
	adm := admission.New(db, resolver, q, log)
	authn := &auth.Static{Token: "hunter2", Subject: "local"}

	s := New(Config{Port: 0}, db, adm, resolver, authn, log)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	sender := &countingSender{}
	w := worker.New(worker.Config{
		Concurrency: 1,
		MaxAttempts: 3,
		Backoff:     []time.Duration{time.Millisecond},
		SendTimeout: time.Second,
	}, db, resolver, q.Queue, sender, log)
	require.NoError(t, w.Start())
	defer w.Stop(context.Background())

	ctx := context.Background()
	anon := kuvert.NewClient(srv.URL, "")

	var apiKey string
	var templateId string

	t.Run("health", func(t *testing.T) {
		assert.NoError(t, anon.Health(ctx))
	})

	t.Run("create project requires token", func(t *testing.T) {
		_, err := anon.CreateProject(ctx, "acme")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "status 401")
	})

	admin := anon.WithToken("hunter2")

	t.Run("create project", func(t *testing.T) {
		project, err := admin.CreateProject(ctx, "acme")
		require.NoError(t, err)
		require.NotEmpty(t, project.Id)
		require.NotEmpty(t, project.ApiKey)

		tmpl, err := admin.CreateTemplate(ctx, kuvert.CreateTemplateRequest{
			ProjectId:         project.Id,
			Name:              "WELCOME",
			HTML:              "<h1>Hello {{name}}</h1>",
			Text:              "Hello {{name}}",
			RequiredVariables: []string{"name"},
		})
		require.NoError(t, err)
		require.NotEmpty(t, tmpl.Id)

		apiKey = project.ApiKey
		templateId = tmpl.Id
	})

	t.Run("create template rejects unknown project", func(t *testing.T) {
		_, err := admin.CreateTemplate(ctx, kuvert.CreateTemplateRequest{
			ProjectId: "nope",
			Name:      "X",
			Text:      "x",
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "status 404")
	})

	client := kuvert.NewClient(srv.URL, apiKey)

	t.Run("send and deliver", func(t *testing.T) {
		ack, err := client.Send(ctx, templateId, map[string]string{
			"name":  "Ada",
			"email": "ada@example.com",
		})
		require.NoError(t, err)
		require.NotEmpty(t, ack.Id)

		require.Eventually(t, func() bool {
			status, err := client.Status(ctx, ack.Id)
			return err == nil && status.Status == dao.SendStatusSent
		}, 2*time.Second, 10*time.Millisecond)

		require.Equal(t, 1, sender.count())
		assert.Equal(t, "ada@example.com", sender.sent[0].To)
		assert.Equal(t, "WELCOME", sender.sent[0].Subject)
		assert.Equal(t, "Hello Ada", sender.sent[0].Text)
	})

	t.Run("send rejects unknown key", func(t *testing.T) {
		stranger := kuvert.NewClient(srv.URL, "not-a-uuid")
		_, err := stranger.Send(ctx, templateId, map[string]string{
			"name":  "Ada",
			"email": "ada@example.com",
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "status 401")
	})

	t.Run("send rejects unknown template", func(t *testing.T) {
		_, err := client.Send(ctx, "nope", map[string]string{
			"name":  "Ada",
			"email": "ada@example.com",
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "status 404")
	})

	t.Run("send rejects missing variable", func(t *testing.T) {
		_, err := client.Send(ctx, templateId, map[string]string{
			"email": "ada@example.com",
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "status 400")
		assert.Contains(t, err.Error(), "name")
	})

	t.Run("send rejects invalid recipient", func(t *testing.T) {
		_, err := client.Send(ctx, templateId, map[string]string{
			"name":  "Ada",
			"email": "not an address",
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "status 400")
	})

	t.Run("send reports queue outage", func(t *testing.T) {
		q.setFail(true)
		defer q.setFail(false)

		_, err := client.Send(ctx, templateId, map[string]string{
			"name":  "Ada",
			"email": "ada@example.com",
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "status 503")
	})

	t.Run("status of unknown send", func(t *testing.T) {
		_, err := client.Status(ctx, "nope")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "status 404")
	})
}
