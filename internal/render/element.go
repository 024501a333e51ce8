// Package render holds the displayed image state and verifies that a source
// can actually be rendered before it becomes visible.
package render

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"strings"
	"sync"

	"github.com/jo-hoe/sheetimage/internal/backend/imageprocessing"
	"github.com/vincent-petithory/dataurl"
)

var ErrRenderFailed = errors.New("image failed to render")

// Mode selects how the image is placed on the page.
type Mode string

const (
	ModeImage      Mode = "image"
	ModeBackground Mode = "background"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(s)) {
	case "", ModeImage:
		return ModeImage, nil
	case ModeBackground:
		return ModeBackground, nil
	default:
		return "", fmt.Errorf("unknown render mode: %s", s)
	}
}

// Source is what gets assigned to the image.
type Source struct {
	URL string
	// CrossOrigin is set when a remote URL is used directly.
	CrossOrigin string
}

type State struct {
	Source      string `json:"source"`
	Visible     bool   `json:"visible"`
	CrossOrigin string `json:"crossOrigin,omitempty"`
	Mode        Mode   `json:"mode"`
	Revision    uint64 `json:"revision"`
}

type Target interface {
	// Hide makes the image invisible but keeps its source.
	Hide()
	// Clear hides the image and drops its source.
	Clear()
	// Show assigns the source and makes it visible once it renders.
	// On a render failure the target is cleared and ErrRenderFailed returned.
	Show(source Source) error
	State() State
}

// ImageElement is the in-process render target.
type ImageElement struct {
	mu        sync.Mutex
	state     State
	listeners map[int]func(State)
	nextID    int
}

func NewImageElement(mode Mode) *ImageElement {
	return &ImageElement{
		state:     State{Mode: mode},
		listeners: make(map[int]func(State)),
	}
}

func (e *ImageElement) Hide() {
	e.update(func(s *State) {
		s.Visible = false
	})
}

func (e *ImageElement) Clear() {
	e.update(func(s *State) {
		s.Visible = false
		s.Source = ""
		s.CrossOrigin = ""
	})
}

func (e *ImageElement) Show(source Source) error {
	e.update(func(s *State) {
		s.Source = source.URL
		s.CrossOrigin = source.CrossOrigin
	})

	if err := verify(source.URL); err != nil {
		slog.Warn("image failed to render, hiding it", "error", err)
		e.Clear()
		return fmt.Errorf("%w: %v", ErrRenderFailed, err)
	}

	e.update(func(s *State) {
		s.Visible = true
	})
	return nil
}

func (e *ImageElement) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// OnChange registers a listener called after every state change.
func (e *ImageElement) OnChange(listener func(State)) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.nextID
	e.nextID++
	e.listeners[id] = listener
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.listeners, id)
	}
}

// ReportLoadError clears the element after the viewer failed to load the
// source shown at revision. Reports for an older revision are ignored and
// return false.
func (e *ImageElement) ReportLoadError(revision uint64) bool {
	cleared := e.updateIf(func(s State) bool {
		return s.Revision == revision && s.Source != ""
	}, func(s *State) {
		s.Visible = false
		s.Source = ""
		s.CrossOrigin = ""
	})
	if cleared {
		slog.Warn("viewer failed to load image, hiding it", "revision", revision)
	}
	return cleared
}

func (e *ImageElement) update(change func(*State)) {
	e.updateIf(nil, change)
}

// updateIf applies change when guard accepts the current state and reports
// whether the state changed.
func (e *ImageElement) updateIf(guard func(State) bool, change func(*State)) bool {
	e.mu.Lock()
	if guard != nil && !guard(e.state) {
		e.mu.Unlock()
		return false
	}
	before := e.state
	change(&e.state)
	if e.state == before {
		e.mu.Unlock()
		return false
	}
	e.state.Revision++
	state := e.state
	listeners := make([]func(State), 0, len(e.listeners))
	for _, l := range e.listeners {
		listeners = append(listeners, l)
	}
	e.mu.Unlock()

	for _, l := range listeners {
		l(state)
	}
	return true
}

// verify decodes embedded data URLs. Remote URLs are loaded by the viewer and
// cannot be verified here.
func verify(url string) error {
	if url == "" {
		return errors.New("empty source")
	}
	if !strings.HasPrefix(url, "data:") {
		return nil
	}

	decoded, err := dataurl.DecodeString(url)
	if err != nil {
		return fmt.Errorf("invalid data url: %w", err)
	}
	if len(decoded.Data) == 0 {
		return errors.New("empty image data")
	}
	if decoded.ContentType() == "image/svg+xml" || imageprocessing.IsSVG(decoded.Data) {
		return imageprocessing.ParseSVG(decoded.Data)
	}
	if _, _, err := image.DecodeConfig(bytes.NewReader(decoded.Data)); err != nil {
		return fmt.Errorf("undecodable image: %w", err)
	}
	return nil
}
