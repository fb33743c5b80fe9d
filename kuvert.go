package kuvert

// Wire types for the kuvert HTTP API.

type SendRequest struct {
	Template string            `json:"template"`
	Data     map[string]string `json:"data"`
}

type SendAck struct {
	Id string `json:"id"`
}

// SendStatus is the queryable state of an admitted send. Status is one of
// queued, sent or failed. A send never leaves sent or failed.
type SendStatus struct {
	Id        string `json:"id"`
	Template  string `json:"template"`
	Recipient string `json:"recipient"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

type CreateProjectRequest struct {
	Name string `json:"name"`
}

type CreateProjectResponse struct {
	Id     string `json:"id"`
	ApiKey string `json:"api_key"`
}

type CreateTemplateRequest struct {
	ProjectId         string   `json:"project_id"`
	Name              string   `json:"name"`
	HTML              string   `json:"html"`
	Text              string   `json:"text"`
	RequiredVariables []string `json:"required_variables"`
}

type CreateTemplateResponse struct {
	Id string `json:"id"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
