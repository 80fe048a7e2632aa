package editor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-scene/internal/scene"
	"github.com/joeblew999/plat-scene/internal/service"
	"github.com/joeblew999/plat-scene/internal/templates"
)

func setup(t *testing.T) (*http.ServeMux, *service.SceneService) {
	t.Helper()
	renderer, err := templates.New("../../../web/templates/fragments")
	require.NoError(t, err)

	svc := service.NewSceneService(t.TempDir())
	_, err = svc.Create(context.Background(), scene.Scene{
		ID:       "portland",
		Name:     "Portland bridges",
		View:     scene.ViewConfig{Basemap: "arcgis-nova", Center: [2]float64{-122.6784, 45.5152}, Zoom: 10, Container: "viewDiv"},
		Basemaps: []string{"arcgis-nova", "arcgis-streets"},
	})
	require.NoError(t, err)

	mux := http.NewServeMux()
	cfg := huma.DefaultConfig("editor test", "1.0.0")
	cfg.CreateHooks = nil
	NewSceneHandler(svc, renderer).RegisterRoutes(humago.New(mux, cfg))
	return mux, svc
}

func do(mux *http.ServeMux, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestListScenes(t *testing.T) {
	mux, _ := setup(t)
	rec := do(mux, http.MethodGet, "/api/v1/editor/scenes", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	assert.Contains(t, body, "datastar-patch-elements")
	assert.Contains(t, body, `id="scene-portland"`)
	assert.Contains(t, body, "unbuilt")
}

func TestListStyles(t *testing.T) {
	mux, _ := setup(t)
	rec := do(mux, http.MethodGet, "/api/v1/editor/scenes/portland/styles", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `<option value="arcgis-nova" selected>arcgis-nova</option>`)
	assert.Contains(t, body, `<option value="arcgis-streets">arcgis-streets</option>`)

	assert.Equal(t, http.StatusNotFound, do(mux, http.MethodGet, "/api/v1/editor/scenes/nowhere/styles", "").Code)
}

func TestSelectStyle(t *testing.T) {
	mux, svc := setup(t)

	rec := do(mux, http.MethodPost, "/api/v1/editor/scenes/portland/style", `{"basemap":"arcgis-streets"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "has not been built")

	rec = do(mux, http.MethodPost, "/api/v1/editor/scenes/portland/build", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "scene-ready")

	rec = do(mux, http.MethodPost, "/api/v1/editor/scenes/portland/style", `{"basemap":"arcgis-streets"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "datastar-patch-signals")
	assert.Contains(t, body, "Basemap set to arcgis-streets")
	assert.Contains(t, body, "basemap-changed")

	doc, err := svc.Document("portland")
	require.NoError(t, err)
	assert.Equal(t, "arcgis-streets", doc.View.Basemap)

	rec = do(mux, http.MethodPost, "/api/v1/editor/scenes/portland/style", `{"basemap":"osm"}`)
	assert.Contains(t, rec.Body.String(), `unknown basemap \"osm\"`)
	doc, _ = svc.Document("portland")
	assert.Equal(t, "arcgis-streets", doc.View.Basemap)

	rec = do(mux, http.MethodPost, "/api/v1/editor/scenes/portland/style", `{"basemap":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// streamRecorder lets the test read a response while the handler is still
// writing it.
type streamRecorder struct {
	*httptest.ResponseRecorder
	mu sync.Mutex
}

func (r *streamRecorder) Write(b []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ResponseRecorder.Write(b)
}

func (r *streamRecorder) Flush() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ResponseRecorder.Flush()
}

func (r *streamRecorder) String() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Body.String()
}

func TestEvents(t *testing.T) {
	mux, svc := setup(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/editor/events", nil).WithContext(ctx)
	rec := &streamRecorder{ResponseRecorder: httptest.NewRecorder()}
	done := make(chan struct{})
	go func() {
		mux.ServeHTTP(rec, req)
		close(done)
	}()

	require.Eventually(t, func() bool { return svc.Bus().Subscribers() == 1 }, time.Second, 5*time.Millisecond)
	_, err := svc.Build(context.Background(), "portland")
	require.NoError(t, err)

	require.Eventually(t, func() bool { return strings.Contains(rec.String(), "scene-changed") }, time.Second, 5*time.Millisecond)
	assert.Contains(t, rec.String(), `id="scene-portland"`)

	cancel()
	<-done
	assert.Equal(t, 0, svc.Bus().Subscribers())
}
