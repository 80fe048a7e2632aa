package templates

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	fsys := fstest.MapFS{
		"card.html":   {Data: []byte(`{{define "card"}}<b>{{.Name}}</b>{{end}}`)},
		"signal.html": {Data: []byte(`{{define "signal"}}<div data-signals='{{json .}}'></div>{{end}}`)},
		"nested.html": {Data: []byte(`{{define "nested"}}{{template "card" (dict "Name" .)}}{{end}}`)},
	}
	r, err := NewFS(fsys)
	require.NoError(t, err)

	out, err := r.Render("card", map[string]string{"Name": "<Portland>"})
	require.NoError(t, err)
	assert.Equal(t, "<b>&lt;Portland&gt;</b>", out)

	out, err = r.Render("nested", "Hawthorne")
	require.NoError(t, err)
	assert.Equal(t, "<b>Hawthorne</b>", out)

	out, err = r.Render("signal", map[string]string{"basemap": "arcgis-nova"})
	require.NoError(t, err)
	assert.Contains(t, out, "arcgis-nova")

	_, err = r.Render("missing", nil)
	assert.Error(t, err)
}

func TestReload(t *testing.T) {
	fsys := fstest.MapFS{"a.html": {Data: []byte(`{{define "a"}}one{{end}}`)}}
	r, err := NewFS(fsys)
	require.NoError(t, err)

	fsys["a.html"] = &fstest.MapFile{Data: []byte(`{{define "a"}}two{{end}}`)}
	require.NoError(t, r.Reload())

	out, err := r.Render("a", nil)
	require.NoError(t, err)
	assert.Equal(t, "two", out)
}
