package dao

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/modfin/kuvert/tools"
)

var ErrMalformedKey = errors.New("api key is malformed")
var ErrProjectNotFound = errors.New("no project owns this api key")
var ErrTemplateNotFound = errors.New("template not found")
var ErrSendNotFound = errors.New("send record not found")
var ErrSendTerminal = errors.New("send record is already in a terminal state")

type DAO interface {
	CreateProject(name string) (*Project, error)
	GetProject(id string) (*Project, error)
	GetProjectByKey(key string) (*Project, error)

	CreateTemplate(t Template) (*Template, error)
	GetTemplate(id string) (*Template, error)

	AddSendToQueue(rec SendRecord) error
	GetSend(id string) (*SendRecord, error)
	ListSends(projectId string, limit int) ([]SendRecord, error)
	VoidSend(id string) error
	FinishSend(id string, status string) error
	AddSendLogEntry(id string, log string) error
}

func NewSQLite(path string) (DAO, error) {
	lite := &sqlite{path: path}
	err := lite.ensureSchema()
	return lite, err
}

type sqlite struct {
	db   *sqlx.DB
	path string
}

func (s *sqlite) CreateProject(name string) (*Project, error) {
	if len(name) == 0 {
		return nil, errors.New("a project name must be provided")
	}

	p := Project{
		Id:        uuid.New().String(),
		Name:      name,
		ApiKey:    uuid.New().String(),
		CreatedAt: time.Now().In(time.UTC),
	}

	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	q := `INSERT INTO project (id, name, api_key, created_at) VALUES (?, ?, ?, ?)`
	_, err = db.Exec(q, p.Id, p.Name, p.ApiKey, p.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert project, %w", err)
	}
	return &p, nil
}

func (s *sqlite) GetProject(id string) (*Project, error) {
	q := `SELECT * FROM project WHERE id = ?`
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}
	var p Project
	err = db.Get(&p, q, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProjectNotFound
	}
	return &p, err
}

func (s *sqlite) GetProjectByKey(key string) (*Project, error) {
	// Keys are uuids, reject anything else before touching the store.
	if _, err := uuid.Parse(key); err != nil {
		return nil, ErrMalformedKey
	}

	q := `SELECT * FROM project WHERE api_key = ?`
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}
	var p Project
	err = db.Get(&p, q, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProjectNotFound
	}
	return &p, err
}

func (s *sqlite) CreateTemplate(t Template) (*Template, error) {
	t.Id = uuid.New().String()
	t.CreatedAt = time.Now().In(time.UTC)

	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	q := `INSERT INTO template (id, project_id, name, html, text, required_vars, created_at)
	      VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err = db.Exec(q, t.Id, t.ProjectId, t.Name, t.HTML, t.Text, tools.JoinVars(t.RequiredVars), t.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert template, %w", err)
	}
	return &t, nil
}

func (s *sqlite) GetTemplate(id string) (*Template, error) {
	q := `SELECT * FROM template WHERE id = ?`
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}
	var intr struct {
		Template
		RequiredVars string `db:"required_vars"`
	}
	err = db.Get(&intr, q, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTemplateNotFound
	}
	if err != nil {
		return nil, err
	}
	t := intr.Template
	t.RequiredVars = tools.SplitVars(intr.RequiredVars)
	return &t, nil
}

func (s *sqlite) AddSendToQueue(rec SendRecord) (err error) {
	vars, err := json.Marshal(rec.Variables)
	if err != nil {
		return fmt.Errorf("failed to marshal variables, %w", err)
	}

	q1 := `
	INSERT INTO send (id, project_id, template_id, recipient, variables, status, created_at, updated_at)
	VALUES (:id, :project_id, :template_id, :recipient, :variables, :status, :created_at, :updated_at)
`
	var tx *sqlx.Tx
	tx, err = s.getTX()
	if err != nil {
		err = fmt.Errorf("failed to get transaction, err %v", err)
		return
	}
	defer func() {
		if err == nil {
			err = tx.Commit()
			return
		}
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareNamed(q1)
	if err != nil {
		err = fmt.Errorf("failed to prepare statement, err %v", err)
		return
	}
	defer stmt.Close()

	now := time.Now().In(time.UTC)
	_, err = stmt.Exec(map[string]interface{}{
		"id":          rec.Id,
		"project_id":  rec.ProjectId,
		"template_id": rec.TemplateId,
		"recipient":   rec.Recipient,
		"variables":   string(vars),
		"status":      SendStatusQueued,
		"created_at":  now,
		"updated_at":  now,
	})
	if err != nil {
		err = fmt.Errorf("failed to insert into send table, err %v", err)
		return
	}

	err = s.addSendLogEntryTx(tx, rec.Id, "send record created and queued")
	return
}

func (s *sqlite) GetSend(id string) (*SendRecord, error) {
	q := `SELECT * FROM send WHERE id = ?`
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}
	var intr struct {
		SendRecord
		Variables string `db:"variables"`
	}
	err = db.Get(&intr, q, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSendNotFound
	}
	if err != nil {
		return nil, err
	}
	rec := intr.SendRecord
	err = json.Unmarshal([]byte(intr.Variables), &rec.Variables)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal variables of send %s, %w", id, err)
	}
	return &rec, nil
}

func (s *sqlite) ListSends(projectId string, limit int) (recs []SendRecord, err error) {
	q := `
		SELECT *
		FROM send
		WHERE project_id = ?
		ORDER BY id
		LIMIT ?
	`
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	var intr []struct {
		SendRecord
		Variables string `db:"variables"`
	}
	err = db.Select(&intr, q, projectId, limit)
	if err != nil {
		return nil, err
	}

	for _, row := range intr {
		rec := row.SendRecord
		err = json.Unmarshal([]byte(row.Variables), &rec.Variables)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal variables of send %s, %w", rec.Id, err)
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// VoidSend removes a send record that never made it onto the queue. It is
// only valid while the record is still queued, a record the worker has
// finished stays put.
func (s *sqlite) VoidSend(id string) (err error) {
	q := `DELETE FROM send WHERE id = ? AND status = 'queued'`

	var tx *sqlx.Tx
	tx, err = s.getTX()
	if err != nil {
		return err
	}
	defer func() {
		if err == nil {
			err = tx.Commit()
			return
		}
		_ = tx.Rollback()
	}()

	res, err := tx.Exec(q, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected != 1 {
		err = fmt.Errorf("could not void send %s, %d rows affected", id, affected)
		return
	}

	err = s.addSendLogEntryTx(tx, id, "send record voided, queue publish failed")
	return
}

// FinishSend transitions a queued send to a terminal state. sent and failed
// are terminal, re-finishing an already finished send is rejected so that a
// redelivered job cannot flip the outcome.
func (s *sqlite) FinishSend(id string, status string) (err error) {
	if !Terminal(status) {
		return fmt.Errorf("%s is not a terminal send status", status)
	}

	q := `
		UPDATE send
		SET status = ?, updated_at = ?
		WHERE id = ?
		  AND status = 'queued'
	`

	var tx *sqlx.Tx
	tx, err = s.getTX()
	if err != nil {
		return err
	}
	defer func() {
		if err == nil {
			err = tx.Commit()
			return
		}
		_ = tx.Rollback()
	}()

	res, err := tx.Exec(q, status, time.Now().In(time.UTC), id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected != 1 {
		err = ErrSendTerminal
		return
	}

	err = s.addSendLogEntryTx(tx, id, "send record finished as "+status)
	return
}

func (s *sqlite) AddSendLogEntry(id, log string) error {
	tx, err := s.getTX()
	if err != nil {
		return err
	}
	err = s.addSendLogEntryTx(tx, id, log)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *sqlite) addSendLogEntryTx(tx *sqlx.Tx, id, log string) error {
	q := `
	INSERT INTO send_log (send_id, created_at, log)
	VALUES (?, ?, ?)
	`
	_, err := tx.Exec(q, id, time.Now().In(time.UTC), log)
	if err != nil {
		return fmt.Errorf("failed to insert log entry, %v", err)
	}
	return err
}

func (s *sqlite) tuneDatabase() error {
	q := `pragma journal_mode = WAL;
			pragma synchronous = normal;
			pragma temp_store = memory;
			pragma foreign_keys = on;`

	if s.db == nil {
		return errors.New("db must be instantiated")
	}
	_, err := s.db.Exec(q)
	return err
}

func (s *sqlite) getDB() (*sqlx.DB, error) {
	var err error
	for s.db == nil || s.db.Ping() != nil {
		if s.db != nil {
			_ = s.db.Close()
			s.db = nil
		}

		s.db, err = sqlx.Connect("sqlite3", s.path)
		if err != nil {
			return nil, fmt.Errorf("error while connecting, %w", err)
		}
		err = s.tuneDatabase()
		if err != nil {
			return nil, fmt.Errorf("error while tuning db instance, %w", err)
		}
	}
	return s.db, nil
}

func (s *sqlite) getTX() (*sqlx.Tx, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}
	return db.Beginx()
}

func (s *sqlite) ensureSchema() error {
	db, err := s.getDB()
	if err != nil {
		return fmt.Errorf("could not get db, %w", err)
	}

	_, err = db.Exec(`
	CREATE TABLE IF NOT EXISTS project (
	    id TEXT PRIMARY KEY,
	    name TEXT NOT NULL,
	    api_key TEXT NOT NULL UNIQUE,
		created_at DATETIME NOT NULL DEFAULT (strftime('%Y-%m-%d %H:%M:%f', 'now'))
	);

	CREATE TABLE IF NOT EXISTS template (
	    id TEXT PRIMARY KEY,
	    project_id TEXT NOT NULL REFERENCES project(id),
	    name TEXT NOT NULL,
	    html TEXT NOT NULL DEFAULT '',
	    text TEXT NOT NULL DEFAULT '',
	    required_vars TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL DEFAULT (strftime('%Y-%m-%d %H:%M:%f', 'now'))
	);

	CREATE TABLE IF NOT EXISTS send (
	    id TEXT PRIMARY KEY,
	    project_id TEXT NOT NULL,
	    template_id TEXT NOT NULL,
	    recipient TEXT NOT NULL,
	    variables TEXT NOT NULL DEFAULT '{}',

	    status TEXT NOT NULL, -- queued, sent, failed

		created_at DATETIME NOT NULL DEFAULT (strftime('%Y-%m-%d %H:%M:%f', 'now')),
		updated_at DATETIME NOT NULL DEFAULT (strftime('%Y-%m-%d %H:%M:%f', 'now'))
	);

	CREATE INDEX IF NOT EXISTS idx_send_project ON send(project_id);

	CREATE TABLE IF NOT EXISTS send_log (
	    send_id TEXT NOT NULL,
	    created_at DATETIME NOT NULL DEFAULT (strftime('%Y-%m-%d %H:%M:%f', 'now')),
	    log TEXT NOT NULL,
	    PRIMARY KEY (send_id, created_at)
	);
`)
	if err != nil {
		return fmt.Errorf("could not upsert schema, %w", err)
	}
	return err
}
