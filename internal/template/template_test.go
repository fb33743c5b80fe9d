package template

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modfin/kuvert/internal/dao"
)

func setup(t *testing.T) (*Resolver, *dao.Project) {
	t.Helper()
	db, err := dao.NewSQLite(filepath.Join(t.TempDir(), "kuvert.sqlite"))
	require.NoError(t, err)

	project, err := db.CreateProject("test project")
	require.NoError(t, err)

	return New(db), project
}

func TestCreateAndGet(t *testing.T) {
	r, project := setup(t)

	created, err := r.Create(project.Id, "WELCOME", "<h1>Hello {{name}}</h1>", "Hello {{name}}", []string{"name"})
	require.NoError(t, err)
	require.NotEmpty(t, created.Id)

	got, err := r.Get(created.Id)
	require.NoError(t, err)
	assert.Equal(t, project.Id, got.ProjectId)
	assert.Equal(t, "WELCOME", got.Name)
	assert.Equal(t, []string{"name"}, got.RequiredVars)
}

func TestCreateValidation(t *testing.T) {
	r, project := setup(t)

	_, err := r.Create("no-such-project", "T", "<p>x</p>", "x", nil)
	assert.ErrorIs(t, err, dao.ErrProjectNotFound)

	_, err = r.Create(project.Id, "T", "", "", nil)
	assert.Error(t, err, "empty content must be rejected")

	_, err = r.Create(project.Id, "T", "<p>x</p>", "x", []string{"name", "name"})
	assert.Error(t, err, "duplicate required variables must be rejected")

	_, err = r.Create(project.Id, "T", "<p>x</p>", "x", []string{"na me"})
	assert.Error(t, err, "variable names with spaces must be rejected")

	_, err = r.Create(project.Id, "", "<p>x</p>", "x", nil)
	assert.Error(t, err, "a template needs a name")
}

func TestGetNotFound(t *testing.T) {
	r, _ := setup(t)
	_, err := r.Get("nope")
	assert.ErrorIs(t, err, dao.ErrTemplateNotFound)
}

func TestRenderSubstitution(t *testing.T) {
	tmpl := &dao.Template{
		HTML:         "<h1>Hello {{name}}</h1><p>{{name}}, welcome to {{product}}</p>",
		Text:         "Hello {{name}}",
		RequiredVars: []string{"name", "product"},
	}

	out, err := Render(tmpl, map[string]string{"name": "Ada", "product": "kuvert"})
	require.NoError(t, err)
	assert.Equal(t, "<h1>Hello Ada</h1><p>Ada, welcome to kuvert</p>", out.HTML)
	assert.Equal(t, "Hello Ada", out.Text)
}

func TestRenderMissingVariableIsDeterministic(t *testing.T) {
	tmpl := &dao.Template{
		HTML:         "{{a}} {{b}} {{c}}",
		RequiredVars: []string{"a", "b", "c"},
	}

	// With several variables missing, the first one in declaration order is
	// reported, never a different one.
	for i := 0; i < 10; i++ {
		_, err := Render(tmpl, map[string]string{"c": "3"})
		var missing MissingVariableError
		require.ErrorAs(t, err, &missing)
		assert.Equal(t, "a", missing.Name)
	}

	_, err := Render(tmpl, map[string]string{"a": "1", "c": "3"})
	var missing MissingVariableError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "b", missing.Name)
}

func TestRenderExtraVariablesIgnored(t *testing.T) {
	tmpl := &dao.Template{
		Text:         "Hello {{name}}",
		RequiredVars: []string{"name"},
	}
	out, err := Render(tmpl, map[string]string{"name": "Ada", "email": "a@x.com"})
	require.NoError(t, err)
	assert.Equal(t, "Hello Ada", out.Text)
}

func TestRenderUndeclaredPlaceholderLeftVerbatim(t *testing.T) {
	// Placeholders outside required_variables that no supplied variable
	// matches are passed through untouched, not stripped.
	tmpl := &dao.Template{
		Text:         "Hello {{name}}, ref {{order_id}}",
		RequiredVars: []string{"name"},
	}
	out, err := Render(tmpl, map[string]string{"name": "Ada"})
	require.NoError(t, err)
	assert.Equal(t, "Hello Ada, ref {{order_id}}", out.Text)
}

func TestValidate(t *testing.T) {
	tmpl := &dao.Template{RequiredVars: []string{"name"}}
	assert.NoError(t, Validate(tmpl, map[string]string{"name": "x"}))
	assert.Error(t, Validate(tmpl, map[string]string{}))
}
