// Package refresh keeps the rendered image in sync with the configured
// worksheet column.
//
// Every trigger (the initial load, a dashboard event or a scheduled tick)
// starts a new refresh cycle. Cycles never overlap: a new trigger cancels the
// cycle in flight and waits for it to return before starting the next one.
// A cycle that sees its cancellation returns without touching the render
// target, so the last triggered cycle always owns the final image state.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jo-hoe/sheetimage/internal/configuration"
	"github.com/jo-hoe/sheetimage/internal/dashboard"
	"github.com/jo-hoe/sheetimage/internal/render"
	"github.com/robfig/cron/v3"
)

var ErrAlreadyStarted = errors.New("refresh loop already started")

// ImageConverter turns an image URL into an embeddable source.
type ImageConverter interface {
	ToDataURL(ctx context.Context, url string) (string, bool)
}

// Fallback decides what to show when the image cannot be embedded.
type Fallback string

const (
	// FallbackRemote assigns the remote URL directly with anonymous CORS.
	FallbackRemote Fallback = "remote"
	FallbackNone   Fallback = "none"
)

type Options struct {
	// SettleDelay lets upstream recalculation finish before data is read.
	SettleDelay time.Duration `yaml:"settleDelay"`
	// WorksheetEvents also refreshes on filter and mark selection changes.
	WorksheetEvents bool `yaml:"worksheetEvents"`
	// Schedule is an optional cron expression for periodic refreshes.
	Schedule string   `yaml:"schedule"`
	Fallback Fallback `yaml:"fallback"`
}

type State string

const (
	Idle          State = "idle"
	FetchingData  State = "fetching-data"
	NoData        State = "no-data"
	ColumnMissing State = "column-missing"
	InvalidURL    State = "invalid-url"
	LoadingImage  State = "loading-image"
	Displayed     State = "displayed"
	Hidden        State = "hidden"
	Canceled      State = "canceled"
)

// Outcome describes how a cycle ended. Final is Displayed, Hidden or Canceled;
// Reason is the state that led to Hidden.
type Outcome struct {
	Final    State
	Reason   State
	Source   string
	Fallback bool
}

type Loop struct {
	dashboard dashboard.Dashboard
	converter ImageConverter
	target    render.Target
	options   Options

	mu         sync.Mutex
	state      State
	last       Outcome
	worksheet  dashboard.Worksheet
	column     string
	observers  []func(Outcome)
	unregister []dashboard.Unregister
	scheduler  *cron.Cron
	cancel     context.CancelFunc
	done       chan struct{}

	triggers chan string
}

func New(d dashboard.Dashboard, converter ImageConverter, target render.Target, options Options) *Loop {
	if options.Fallback == "" {
		options.Fallback = FallbackRemote
	}
	return &Loop{
		dashboard: d,
		converter: converter,
		target:    target,
		options:   options,
		state:     Idle,
		triggers:  make(chan string, 1),
	}
}

// OnCycle registers an observer called after every finished cycle.
func (l *Loop) OnCycle(observer func(Outcome)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.observers = append(l.observers, observer)
}

// Bind resolves the configured worksheet. The worksheet must exist; the set of
// worksheets is assumed stable for the session.
func (l *Loop) Bind(record configuration.Record) error {
	worksheet, err := dashboard.FindWorksheet(l.dashboard, record.WorksheetName)
	if err != nil {
		slog.Error("cannot bind image refresh", "worksheet", record.WorksheetName, "error", err)
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.worksheet = worksheet
	l.column = record.ColumnName
	return nil
}

// Start binds the loop, runs the initial refresh and subscribes to the
// dashboard events.
func (l *Loop) Start(ctx context.Context, record configuration.Record) error {
	l.mu.Lock()
	started := l.done != nil
	l.mu.Unlock()
	if started {
		return ErrAlreadyStarted
	}
	if err := l.Bind(record); err != nil {
		return err
	}

	l.mu.Lock()
	worksheet := l.worksheet
	runCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.done = make(chan struct{})
	l.mu.Unlock()

	go l.run(runCtx)
	l.Trigger("initial")

	if err := l.subscribe(runCtx, worksheet); err != nil {
		l.Stop()
		return err
	}

	slog.Info("image refresh started",
		"worksheet", record.WorksheetName,
		"column", record.ColumnName,
		"settle_delay", l.options.SettleDelay,
		"worksheet_events", l.options.WorksheetEvents,
		"schedule", l.options.Schedule)
	return nil
}

func (l *Loop) subscribe(ctx context.Context, worksheet dashboard.Worksheet) error {
	handler := func(event dashboard.Event) {
		l.Trigger(fmt.Sprintf("%s:%s", event.Type, event.Source))
	}

	parameters, err := l.dashboard.Parameters(ctx)
	if err != nil {
		return fmt.Errorf("failed to get dashboard parameters: %w", err)
	}
	var unregister []dashboard.Unregister
	// Listeners registered before a failure are handed to Stop as well.
	defer func() {
		l.mu.Lock()
		l.unregister = append(l.unregister, unregister...)
		l.mu.Unlock()
	}()
	for _, parameter := range parameters {
		u, err := parameter.AddEventListener(dashboard.ParameterChanged, handler)
		if err != nil {
			return fmt.Errorf("failed to listen on parameter %s: %w", parameter.Name(), err)
		}
		unregister = append(unregister, u)
	}

	if l.options.WorksheetEvents {
		for _, eventType := range []dashboard.EventType{dashboard.FilterChanged, dashboard.MarkSelectionChanged} {
			u, err := worksheet.AddEventListener(eventType, handler)
			if err != nil {
				return fmt.Errorf("failed to listen on worksheet %s: %w", worksheet.Name(), err)
			}
			unregister = append(unregister, u)
		}
	}

	var scheduler *cron.Cron
	if l.options.Schedule != "" {
		scheduler = cron.New()
		if _, err := scheduler.AddFunc(l.options.Schedule, func() { l.Trigger("schedule") }); err != nil {
			return fmt.Errorf("invalid refresh schedule %q: %w", l.options.Schedule, err)
		}
		scheduler.Start()
	}

	l.mu.Lock()
	l.scheduler = scheduler
	l.mu.Unlock()
	return nil
}

// Trigger requests a refresh. Triggers arriving while one is pending coalesce.
func (l *Loop) Trigger(reason string) {
	select {
	case l.triggers <- reason:
		slog.Debug("image refresh triggered", "reason", reason)
	default:
		slog.Debug("image refresh already pending", "reason", reason)
	}
}

// Stop cancels the cycle in flight and removes all subscriptions.
func (l *Loop) Stop() {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	unregister, scheduler := l.unregister, l.scheduler
	l.unregister, l.scheduler = nil, nil
	l.mu.Unlock()

	for _, u := range unregister {
		u()
	}
	if scheduler != nil {
		<-scheduler.Stop().Done()
	}
	if cancel != nil {
		cancel()
		<-done
	}
}

func (l *Loop) run(ctx context.Context) {
	defer close(l.done)

	var cancelCycle context.CancelFunc
	var cycleDone chan struct{}
	stopCycle := func() {
		if cancelCycle != nil {
			cancelCycle()
			<-cycleDone
			cancelCycle = nil
		}
	}

	for {
		select {
		case <-ctx.Done():
			stopCycle()
			return
		case reason := <-l.triggers:
			stopCycle()

			cycleCtx, cancel := context.WithCancel(ctx)
			done := make(chan struct{})
			cancelCycle, cycleDone = cancel, done
			go func() {
				defer close(done)
				outcome := l.Refresh(cycleCtx)
				slog.Debug("image refresh cycle finished",
					"reason", reason,
					"final", outcome.Final,
					"hidden_reason", outcome.Reason)
				l.notify(outcome)
			}()
		}
	}
}

func (l *Loop) notify(outcome Outcome) {
	l.mu.Lock()
	observers := append([]func(Outcome){}, l.observers...)
	l.mu.Unlock()
	for _, observer := range observers {
		observer(outcome)
	}
}

// Refresh runs one cycle against row 0 of the worksheet's summary data.
// Only the first row is ever read.
func (l *Loop) Refresh(ctx context.Context) Outcome {
	l.mu.Lock()
	worksheet, column := l.worksheet, l.column
	l.mu.Unlock()
	if worksheet == nil {
		return l.finish(Outcome{Final: Hidden, Reason: Idle})
	}

	if err := sleep(ctx, l.options.SettleDelay); err != nil {
		return l.canceled()
	}

	l.target.Hide()
	l.setState(FetchingData)

	table, err := worksheet.SummaryData(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return l.canceled()
		}
		slog.Error("failed to get summary data", "worksheet", worksheet.Name(), "error", err)
		return l.hide(ctx, FetchingData)
	}

	idx := table.ColumnIndex(column)
	if idx < 0 {
		slog.Warn("configured column not found", "worksheet", worksheet.Name(), "column", column)
		return l.hide(ctx, ColumnMissing)
	}
	if len(table.Data) == 0 || idx >= len(table.Data[0]) {
		slog.Info("worksheet has no data", "worksheet", worksheet.Name())
		return l.hide(ctx, NoData)
	}

	url, ok := imageURL(table.Data[0][idx].Value)
	if !ok {
		slog.Info("first row does not hold an image url", "column", column, "value", table.Data[0][idx].Value)
		return l.hide(ctx, InvalidURL)
	}

	l.setState(LoadingImage)
	source := render.Source{}
	fallback := false
	if dataURL, ok := l.converter.ToDataURL(ctx, url); ok {
		source.URL = dataURL
	} else if l.options.Fallback == FallbackRemote {
		source = render.Source{URL: url, CrossOrigin: "anonymous"}
		fallback = true
	}
	if ctx.Err() != nil {
		return l.canceled()
	}
	if source.URL == "" {
		return l.hide(ctx, LoadingImage)
	}

	if err := l.target.Show(source); err != nil {
		return l.finish(Outcome{Final: Hidden, Reason: LoadingImage})
	}
	return l.finish(Outcome{Final: Displayed, Source: source.URL, Fallback: fallback})
}

func (l *Loop) hide(ctx context.Context, reason State) Outcome {
	if ctx.Err() != nil {
		return l.canceled()
	}
	l.setState(reason)
	l.target.Clear()
	return l.finish(Outcome{Final: Hidden, Reason: reason})
}

func (l *Loop) canceled() Outcome {
	return l.finish(Outcome{Final: Canceled})
}

func (l *Loop) finish(outcome Outcome) Outcome {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state = outcome.Final
	l.last = outcome
	return outcome
}

func (l *Loop) setState(state State) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state = state
}

// State returns the state of the most recent cycle.
func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *Loop) LastOutcome() Outcome {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.last
}

func imageURL(value any) (string, bool) {
	s, ok := value.(string)
	if !ok {
		return "", false
	}
	if strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") {
		return s, true
	}
	return "", false
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
