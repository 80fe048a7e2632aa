package scene

import (
	"context"
	"sync"
)

// Handles are opaque engine references.
type (
	MapHandle struct {
		ID string `json:"id"`
	}
	ViewHandle struct {
		ID  string    `json:"id"`
		Map MapHandle `json:"map"`
	}
	WidgetHandle struct {
		ID string `json:"id"`
	}
	GraphicsContainer struct {
		ID string `json:"id"`
	}
	GraphicHandle struct {
		ID string `json:"id"`
	}
	LayerHandle struct {
		ID string `json:"id"`
	}
)

// Engine is the rendering/view engine a scene is handed to. The builder
// only declares intent through it; rendering, tile loading and feature
// queries happen on the engine's side.
type Engine interface {
	// CreateView requests a view. The returned Readiness resolves once the
	// view is usable or has failed to load.
	CreateView(ctx context.Context, cfg ViewConfig) (ViewHandle, *Readiness, error)
	CreateWidget(view ViewHandle, w Widget) (WidgetHandle, error)
	AddWidgetToUI(view ViewHandle, widget WidgetHandle, anchor Anchor, index int) error
	CreateGraphicsLayer(m MapHandle) (GraphicsContainer, error)
	CreateGraphic(o GraphicOverlay) (GraphicHandle, error)
	AddGraphic(c GraphicsContainer, g GraphicHandle) error
	CreateFeatureLayer(ref RemoteLayerRef) (LayerHandle, error)
	AddLayer(m MapHandle, l LayerHandle) error
	SetBasemap(view ViewHandle, basemap string) error
}

// Readiness is a one-shot completion: it resolves exactly once, either
// with nil (view ready) or with the load failure.
type Readiness struct {
	once sync.Once
	done chan struct{}
	err  error
}

// NewReadiness returns an unresolved Readiness.
func NewReadiness() *Readiness {
	return &Readiness{done: make(chan struct{})}
}

// Resolve settles the readiness. Only the first call has any effect; it
// reports whether this call was the one that resolved it.
func (r *Readiness) Resolve(err error) bool {
	resolved := false
	r.once.Do(func() {
		r.err = err
		close(r.done)
		resolved = true
	})
	return resolved
}

// Done is closed when the readiness has resolved.
func (r *Readiness) Done() <-chan struct{} {
	return r.done
}

// Err returns the load failure, or nil if the view is ready or still pending.
func (r *Readiness) Err() error {
	select {
	case <-r.done:
		return r.err
	default:
		return nil
	}
}

// Wait blocks until the readiness resolves or ctx is done.
func (r *Readiness) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-r.done:
		return r.err
	}
}
