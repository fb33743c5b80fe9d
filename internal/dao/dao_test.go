package dao

import (
	"path/filepath"
	"testing"

	"github.com/go-test/deep"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modfin/kuvert/pkg/zid"
)

func setup(t *testing.T) DAO {
	t.Helper()
	db, err := NewSQLite(filepath.Join(t.TempDir(), "kuvert.sqlite"))
	require.NoError(t, err)
	return db
}

func queuedSend(t *testing.T, db DAO, projectId, templateId string) SendRecord {
	t.Helper()
	rec := SendRecord{
		Id:         zid.New().String(),
		ProjectId:  projectId,
		TemplateId: templateId,
		Recipient:  "a@x.com",
		Variables:  map[string]string{"name": "Ada", "email": "a@x.com"},
	}
	require.NoError(t, db.AddSendToQueue(rec))
	return rec
}

func TestProjectRoundTrip(t *testing.T) {
	db := setup(t)

	p, err := db.CreateProject("acme")
	require.NoError(t, err)
	require.NotEmpty(t, p.Id)
	require.NotEmpty(t, p.ApiKey)

	byKey, err := db.GetProjectByKey(p.ApiKey)
	require.NoError(t, err)
	assert.Equal(t, p.Id, byKey.Id)
	assert.Equal(t, "acme", byKey.Name)

	byId, err := db.GetProject(p.Id)
	require.NoError(t, err)
	assert.Equal(t, p.ApiKey, byId.ApiKey)
}

func TestGetProjectByKeyErrors(t *testing.T) {
	db := setup(t)

	_, err := db.GetProjectByKey("not-a-uuid")
	assert.ErrorIs(t, err, ErrMalformedKey)

	// Well formed but unknown.
	_, err = db.GetProjectByKey("00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, ErrProjectNotFound)
}

func TestTemplateRoundTrip(t *testing.T) {
	db := setup(t)
	p, err := db.CreateProject("acme")
	require.NoError(t, err)

	created, err := db.CreateTemplate(Template{
		ProjectId:    p.Id,
		Name:         "WELCOME",
		HTML:         "<h1>Hello {{name}}</h1>",
		Text:         "Hello {{name}}",
		RequiredVars: []string{"name", "product"},
	})
	require.NoError(t, err)

	got, err := db.GetTemplate(created.Id)
	require.NoError(t, err)

	created.CreatedAt = got.CreatedAt // sqlite timestamp round trip differs in precision
	if diff := deep.Equal(created, got); diff != nil {
		t.Error(diff)
	}

	_, err = db.GetTemplate("nope")
	assert.ErrorIs(t, err, ErrTemplateNotFound)
}

func TestSendLifecycle(t *testing.T) {
	db := setup(t)
	p, err := db.CreateProject("acme")
	require.NoError(t, err)

	rec := queuedSend(t, db, p.Id, "tmpl-1")

	got, err := db.GetSend(rec.Id)
	require.NoError(t, err)
	assert.Equal(t, SendStatusQueued, got.Status)
	assert.Equal(t, rec.Variables, got.Variables)
	assert.Equal(t, "a@x.com", got.Recipient)

	require.NoError(t, db.FinishSend(rec.Id, SendStatusSent))

	got, err = db.GetSend(rec.Id)
	require.NoError(t, err)
	assert.Equal(t, SendStatusSent, got.Status)
}

func TestFinishSendIsTerminal(t *testing.T) {
	db := setup(t)
	p, err := db.CreateProject("acme")
	require.NoError(t, err)

	rec := queuedSend(t, db, p.Id, "tmpl-1")
	require.NoError(t, db.FinishSend(rec.Id, SendStatusSent))

	// sent and failed are terminal, no transition leaves them.
	err = db.FinishSend(rec.Id, SendStatusFailed)
	assert.ErrorIs(t, err, ErrSendTerminal)

	got, err := db.GetSend(rec.Id)
	require.NoError(t, err)
	assert.Equal(t, SendStatusSent, got.Status)
}

func TestFinishSendRejectsNonTerminalStatus(t *testing.T) {
	db := setup(t)
	p, err := db.CreateProject("acme")
	require.NoError(t, err)

	rec := queuedSend(t, db, p.Id, "tmpl-1")
	assert.Error(t, db.FinishSend(rec.Id, SendStatusQueued))
}

func TestVoidSend(t *testing.T) {
	db := setup(t)
	p, err := db.CreateProject("acme")
	require.NoError(t, err)

	rec := queuedSend(t, db, p.Id, "tmpl-1")
	require.NoError(t, db.VoidSend(rec.Id))

	_, err = db.GetSend(rec.Id)
	assert.ErrorIs(t, err, ErrSendNotFound)

	// A finished send cannot be voided.
	rec = queuedSend(t, db, p.Id, "tmpl-1")
	require.NoError(t, db.FinishSend(rec.Id, SendStatusFailed))
	assert.Error(t, db.VoidSend(rec.Id))
}

func TestListSendsOrderedByAdmission(t *testing.T) {
	db := setup(t)
	p, err := db.CreateProject("acme")
	require.NoError(t, err)

	first := queuedSend(t, db, p.Id, "tmpl-1")
	second := queuedSend(t, db, p.Id, "tmpl-1")

	recs, err := db.ListSends(p.Id, 10)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, first.Id, recs[0].Id)
	assert.Equal(t, second.Id, recs[1].Id)

	recs, err = db.ListSends("other-project", 10)
	require.NoError(t, err)
	assert.Empty(t, recs)
}
