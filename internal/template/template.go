// Package template stores named templates per project and renders them
// against a variable map.
package template

import (
	"errors"
	"fmt"
	"strings"

	"github.com/modfin/kuvert/internal/dao"
	"github.com/modfin/kuvert/tools"
)

type MissingVariableError struct {
	Name string
}

func (e MissingVariableError) Error() string {
	return fmt.Sprintf("required variable %s is missing", e.Name)
}

type Rendered struct {
	HTML string
	Text string
}

type Resolver struct {
	db dao.DAO
}

func New(db dao.DAO) *Resolver {
	return &Resolver{db: db}
}

func (r *Resolver) Create(projectId, name, html, text string, required []string) (*dao.Template, error) {
	if len(name) == 0 {
		return nil, errors.New("a template name must be provided")
	}
	if len(html) == 0 && len(text) == 0 {
		return nil, errors.New("content of the template must be provided")
	}
	if tools.HasDuplicates(required) {
		return nil, errors.New("required_variables contains duplicates")
	}
	for _, v := range required {
		if !tools.ValidVarName(v) {
			return nil, fmt.Errorf("required variable %q is not a valid variable name", v)
		}
	}

	// FK invariant, a template belongs to exactly one existing project.
	_, err := r.db.GetProject(projectId)
	if err != nil {
		return nil, err
	}

	return r.db.CreateTemplate(dao.Template{
		ProjectId:    projectId,
		Name:         name,
		HTML:         html,
		Text:         text,
		RequiredVars: required,
	})
}

func (r *Resolver) Get(id string) (*dao.Template, error) {
	return r.db.GetTemplate(id)
}

// Validate checks the variable map against the template's required
// variables. It reports the first absent variable in declaration order.
func Validate(t *dao.Template, vars map[string]string) error {
	for _, name := range t.RequiredVars {
		if _, ok := vars[name]; !ok {
			return MissingVariableError{Name: name}
		}
	}
	return nil
}

// Render substitutes {{var}} tokens in the template bodies with the supplied
// variables. The first required variable absent from the map, in declaration
// order, fails the render. Extra variables in the map are not an error, and
// placeholders that are neither required nor supplied are left verbatim.
func Render(t *dao.Template, vars map[string]string) (Rendered, error) {
	if err := Validate(t, vars); err != nil {
		return Rendered{}, err
	}

	out := Rendered{HTML: t.HTML, Text: t.Text}
	for name, value := range vars {
		token := "{{" + name + "}}"
		out.HTML = strings.ReplaceAll(out.HTML, token, value)
		out.Text = strings.ReplaceAll(out.Text, token, value)
	}
	return out, nil
}
