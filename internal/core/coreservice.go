package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/jo-hoe/sheetimage/internal/configuration"
	"github.com/jo-hoe/sheetimage/internal/dashboard"
	"github.com/jo-hoe/sheetimage/internal/fetch"
	"github.com/jo-hoe/sheetimage/internal/refresh"
	"github.com/jo-hoe/sheetimage/internal/render"
	"github.com/jo-hoe/sheetimage/internal/settings"
)

// CoreService owns the extension session: the settings store, the picker and
// the refresh loop driving the image element.
type CoreService struct {
	config    *ServiceConfig
	settings  *settings.Settings
	dashboard *dashboard.Fixture
	converter refresh.ImageConverter
	manager   *configuration.Manager
	element   *render.ImageElement

	mu     sync.Mutex
	ctx    context.Context
	wizard *configuration.Wizard
	loop   *refresh.Loop
	record *configuration.Record
}

func NewCoreService(config *ServiceConfig) (*CoreService, error) {
	backend, err := settings.NewBackend(config.Settings)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize settings: %w", err)
	}
	fixture, err := dashboard.LoadFixture(config.DashboardFile)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}
	converter, err := fetch.NewConverter(&http.Client{}, config.Fetch)
	if err != nil {
		_ = backend.Close()
		return nil, fmt.Errorf("failed to initialize image converter: %w", err)
	}
	slog.Info("dashboard loaded", "file", config.DashboardFile, "worksheets", dashboard.WorksheetNames(fixture))
	return newCoreService(config, backend, fixture, converter), nil
}

func newCoreService(config *ServiceConfig, backend settings.Backend, fixture *dashboard.Fixture, converter refresh.ImageConverter) *CoreService {
	// ParseMode accepted the mode during config validation.
	mode, _ := render.ParseMode(config.Render.Mode)
	store := settings.New(backend)
	manager := configuration.NewManager(store)
	return &CoreService{
		config:    config,
		settings:  store,
		dashboard: fixture,
		converter: converter,
		manager:   manager,
		element:   render.NewImageElement(mode),
		ctx:       context.Background(),
		wizard:    configuration.NewWizard(fixture, manager),
	}
}

// Start loads the settings. With a persisted record the image refresh starts
// right away, otherwise the picker stays open. A malformed record is logged
// and treated as missing so the picker can overwrite it.
func (service *CoreService) Start(ctx context.Context) error {
	if err := service.settings.Load(ctx); err != nil {
		return err
	}

	record, err := service.manager.Load()
	if errors.Is(err, configuration.ErrMalformedRecord) {
		slog.Error("ignoring persisted image configuration", "error", err)
		record = nil
	} else if err != nil {
		return err
	}

	service.mu.Lock()
	service.ctx = ctx
	service.mu.Unlock()

	if record == nil {
		slog.Info("waiting for image configuration")
		return nil
	}
	return service.startLoop(*record)
}

func (service *CoreService) startLoop(record configuration.Record) error {
	service.mu.Lock()
	defer service.mu.Unlock()

	loop := refresh.New(service.dashboard, service.converter, service.element, service.config.Refresh)
	if err := loop.Start(service.ctx, record); err != nil {
		return fmt.Errorf("failed to start image refresh: %w", err)
	}
	service.loop = loop
	service.record = &record
	return nil
}

// Configured reports whether the image refresh is running.
func (service *CoreService) Configured() bool {
	service.mu.Lock()
	defer service.mu.Unlock()
	return service.record != nil
}

func (service *CoreService) Record() *configuration.Record {
	service.mu.Lock()
	defer service.mu.Unlock()
	if service.record == nil {
		return nil
	}
	record := *service.record
	return &record
}

func (service *CoreService) currentWizard() *configuration.Wizard {
	service.mu.Lock()
	defer service.mu.Unlock()
	return service.wizard
}

func (service *CoreService) Worksheets() []string {
	return service.currentWizard().Worksheets()
}

func (service *CoreService) SelectWorksheet(ctx context.Context, name string) ([]string, error) {
	return service.currentWizard().SelectWorksheet(ctx, name)
}

func (service *CoreService) SelectedWorksheet() string {
	return service.currentWizard().SelectedWorksheet()
}

// CompleteConfiguration persists the chosen column and starts the refresh.
func (service *CoreService) CompleteConfiguration(ctx context.Context, column string) (*configuration.Record, error) {
	record, err := service.currentWizard().SelectColumn(ctx, column)
	if err != nil {
		return nil, err
	}
	if err := service.startLoop(*record); err != nil {
		return nil, err
	}
	return record, nil
}

// Reset stops the refresh, erases the persisted record and reopens the picker.
func (service *CoreService) Reset(ctx context.Context) error {
	service.mu.Lock()
	loop := service.loop
	service.loop = nil
	service.record = nil
	service.wizard = configuration.NewWizard(service.dashboard, service.manager)
	service.mu.Unlock()

	if loop != nil {
		loop.Stop()
	}
	service.element.Clear()
	return service.manager.Reset(ctx)
}

func (service *CoreService) ImageState() render.State {
	return service.element.State()
}

func (service *CoreService) OnImageChange(listener func(render.State)) func() {
	return service.element.OnChange(listener)
}

// LastOutcome returns the result of the latest refresh cycle.
func (service *CoreService) LastOutcome() (refresh.Outcome, bool) {
	service.mu.Lock()
	loop := service.loop
	service.mu.Unlock()
	if loop == nil {
		return refresh.Outcome{}, false
	}
	return loop.LastOutcome(), true
}

func (service *CoreService) SetParameter(name string, value any) error {
	return service.dashboard.SetParameter(name, value)
}

func (service *CoreService) SetFilter(worksheet, field string, values []string) error {
	return service.dashboard.SetFilter(worksheet, field, values)
}

func (service *CoreService) SelectMarks(worksheet string) error {
	return service.dashboard.SelectMarks(worksheet)
}

func (service *CoreService) Close() error {
	service.mu.Lock()
	loop := service.loop
	service.loop = nil
	service.mu.Unlock()

	if loop != nil {
		loop.Stop()
	}
	return service.settings.Close()
}

// ReportImageError hides and clears the image after the viewer failed to load
// the source it was given at revision.
func (service *CoreService) ReportImageError(revision uint64) bool {
	return service.element.ReportLoadError(revision)
}
