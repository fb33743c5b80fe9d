package dao

import "time"

const SendStatusQueued = "queued"
const SendStatusSent = "sent"
const SendStatusFailed = "failed"

// Terminal reports whether a send status permits no further transition.
func Terminal(status string) bool {
	return status == SendStatusSent || status == SendStatusFailed
}

type Project struct {
	Id        string    `db:"id"`
	Name      string    `db:"name"`
	ApiKey    string    `db:"api_key"`
	CreatedAt time.Time `db:"created_at"`
}

type Template struct {
	Id        string `db:"id"`
	ProjectId string `db:"project_id"`
	Name      string `db:"name"`
	HTML      string `db:"html"`
	Text      string `db:"text"`
	// Declaration order is significant, missing-variable errors report the
	// first absent variable in this order.
	RequiredVars []string
	CreatedAt    time.Time `db:"created_at"`
}

type SendRecord struct {
	Id         string `db:"id"`
	ProjectId  string `db:"project_id"`
	TemplateId string `db:"template_id"`
	Recipient  string `db:"recipient"`
	Variables  map[string]string
	Status     string    `db:"status"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}
