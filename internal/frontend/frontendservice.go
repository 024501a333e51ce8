package frontend

import (
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"strings"
	"text/template"

	"github.com/jo-hoe/sheetimage/internal/common"
	"github.com/jo-hoe/sheetimage/internal/configuration"
	"github.com/jo-hoe/sheetimage/internal/core"
	"github.com/jo-hoe/sheetimage/internal/dashboard"
	"github.com/jo-hoe/sheetimage/internal/render"
	"github.com/labstack/echo/v4"
)

const MainPageName = "index.html"

type FrontendService struct {
	coreService *core.CoreService
	config      *core.ServiceConfig
}

func NewFrontendService(config *core.ServiceConfig, coreService *core.CoreService) *FrontendService {
	return &FrontendService{
		coreService: coreService,
		config:      config,
	}
}

type indexData struct {
	Configured bool
	Mode       string
}

type worksheetForm struct {
	Worksheet string `form:"worksheet" json:"worksheet" validate:"required"`
}

type columnForm struct {
	Column string `form:"column" json:"column" validate:"required"`
}

type parameterRequest struct {
	Value string `form:"value" json:"value" validate:"required"`
}

type filterRequest struct {
	Field  string   `json:"field" validate:"required"`
	Values []string `json:"values"`
}

type imageErrorRequest struct {
	Revision uint64 `json:"revision" validate:"required"`
}

type outcomeResponse struct {
	Final    string `json:"final"`
	Reason   string `json:"reason,omitempty"`
	Fallback bool   `json:"fallback"`
}

type imageResponse struct {
	Configured bool                  `json:"configured"`
	Record     *configuration.Record `json:"record,omitempty"`
	State      render.State          `json:"state"`
	Outcome    *outcomeResponse      `json:"outcome,omitempty"`
}

// rootRedirectHandler redirects root path to index.html
func (service *FrontendService) rootRedirectHandler(ctx echo.Context) error {
	return ctx.Redirect(http.StatusMovedPermanently, "/"+MainPageName)
}

func (service *FrontendService) SetRoutes(e *echo.Echo) {
	e.Renderer = &Template{
		templates: template.Must(template.New("").ParseFS(templateFS, viewsPattern)),
	}
	if e.Validator == nil {
		e.Validator = &common.GenericEchoValidator{}
	}

	e.GET("/", service.rootRedirectHandler)
	e.GET("/"+MainPageName, service.indexHandler)
	e.GET("/icon.svg", service.iconHandler)
	e.GET("/healthz", service.healthHandler)

	// Picker
	e.GET("/htmx/worksheets", service.htmxWorksheetsHandler)
	e.POST("/htmx/worksheet", service.htmxSelectWorksheetHandler)
	e.POST("/htmx/column", service.htmxSelectColumnHandler)

	e.GET("/htmx/image", service.htmxImageHandler)
	e.POST("/api/image/error", service.apiImageErrorHandler)
	e.GET("/ws", service.websocketHandler)

	// Dashboard host actions and administration
	e.GET("/api/image", service.apiImageHandler)
	e.POST("/api/parameters/:name", service.apiSetParameterHandler)
	e.POST("/api/worksheets/:name/filters", service.apiSetFilterHandler)
	e.POST("/api/worksheets/:name/selection", service.apiSelectMarksHandler)
	e.DELETE("/api/configuration", service.apiResetHandler)
}

func (service *FrontendService) indexHandler(ctx echo.Context) error {
	service.setNoCache(ctx)
	return ctx.Render(http.StatusOK, MainPageName, indexData{
		Configured: service.coreService.Configured(),
		Mode:       string(service.coreService.ImageState().Mode),
	})
}

func (service *FrontendService) healthHandler(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "ok")
}

func (service *FrontendService) htmxWorksheetsHandler(ctx echo.Context) error {
	if service.coreService.Configured() {
		return ctx.HTML(http.StatusOK, service.buildImageHTML(service.coreService.ImageState()))
	}
	service.setNoCache(ctx)
	return ctx.HTML(http.StatusOK, service.buildWorksheetPickerHTML(service.coreService.Worksheets()))
}

func (service *FrontendService) htmxSelectWorksheetHandler(ctx echo.Context) error {
	var form worksheetForm
	if err := service.bindAndValidate(ctx, &form); err != nil {
		return err
	}

	columns, err := service.coreService.SelectWorksheet(ctx.Request().Context(), form.Worksheet)
	if err != nil {
		if errors.Is(err, dashboard.ErrWorksheetNotFound) {
			slog.Warn("htmxSelectWorksheetHandler: unknown worksheet",
				"status", http.StatusNotFound, "worksheet", form.Worksheet)
			return ctx.String(http.StatusNotFound, "Worksheet not found")
		}
		if errors.Is(err, configuration.ErrWizardComplete) {
			return ctx.String(http.StatusConflict, "Configuration already completed")
		}
		slog.Error("htmxSelectWorksheetHandler: failed to read worksheet columns",
			"status", http.StatusInternalServerError, "worksheet", form.Worksheet, "error", err)
		return ctx.String(http.StatusInternalServerError, "Failed to read worksheet columns")
	}

	service.setNoCache(ctx)
	return ctx.HTML(http.StatusOK, service.buildColumnPickerHTML(form.Worksheet, columns))
}

func (service *FrontendService) htmxSelectColumnHandler(ctx echo.Context) error {
	var form columnForm
	if err := service.bindAndValidate(ctx, &form); err != nil {
		return err
	}

	_, err := service.coreService.CompleteConfiguration(ctx.Request().Context(), form.Column)
	switch {
	case err == nil:
	case errors.Is(err, configuration.ErrNoWorksheetSelected), errors.Is(err, configuration.ErrUnknownColumn):
		slog.Warn("htmxSelectColumnHandler: invalid selection",
			"status", http.StatusBadRequest, "column", form.Column, "error", err)
		return ctx.String(http.StatusBadRequest, "Invalid column selection")
	case errors.Is(err, configuration.ErrWizardComplete):
		return ctx.String(http.StatusConflict, "Configuration already completed")
	default:
		slog.Error("htmxSelectColumnHandler: failed to save configuration",
			"status", http.StatusInternalServerError, "column", form.Column, "error", err)
		return ctx.String(http.StatusInternalServerError, "Failed to save configuration")
	}

	service.setNoCache(ctx)
	return ctx.HTML(http.StatusOK, service.buildImageHTML(service.coreService.ImageState()))
}

func (service *FrontendService) htmxImageHandler(ctx echo.Context) error {
	service.setNoCache(ctx)
	return ctx.HTML(http.StatusOK, service.buildImageHTML(service.coreService.ImageState()))
}

func (service *FrontendService) apiImageHandler(ctx echo.Context) error {
	response := imageResponse{
		Configured: service.coreService.Configured(),
		Record:     service.coreService.Record(),
		State:      service.coreService.ImageState(),
	}
	if outcome, ok := service.coreService.LastOutcome(); ok {
		response.Outcome = &outcomeResponse{
			Final:    string(outcome.Final),
			Reason:   string(outcome.Reason),
			Fallback: outcome.Fallback,
		}
	}
	service.setNoCache(ctx)
	return ctx.JSON(http.StatusOK, response)
}

// apiImageErrorHandler is called by the viewer when the browser could not load
// the source of the given revision. Reports for older revisions are rejected.
func (service *FrontendService) apiImageErrorHandler(ctx echo.Context) error {
	var request imageErrorRequest
	if err := service.bindAndValidate(ctx, &request); err != nil {
		return err
	}
	if !service.coreService.ReportImageError(request.Revision) {
		return ctx.String(http.StatusConflict, "Image revision is no longer current")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (service *FrontendService) apiSetParameterHandler(ctx echo.Context) error {
	var request parameterRequest
	if err := service.bindAndValidate(ctx, &request); err != nil {
		return err
	}
	name := ctx.Param("name")
	if err := service.coreService.SetParameter(name, request.Value); err != nil {
		return service.dashboardError(ctx, err)
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (service *FrontendService) apiSetFilterHandler(ctx echo.Context) error {
	var request filterRequest
	if err := service.bindAndValidate(ctx, &request); err != nil {
		return err
	}
	if err := service.coreService.SetFilter(ctx.Param("name"), request.Field, request.Values); err != nil {
		return service.dashboardError(ctx, err)
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (service *FrontendService) apiSelectMarksHandler(ctx echo.Context) error {
	if err := service.coreService.SelectMarks(ctx.Param("name")); err != nil {
		return service.dashboardError(ctx, err)
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (service *FrontendService) apiResetHandler(ctx echo.Context) error {
	if err := service.coreService.Reset(ctx.Request().Context()); err != nil {
		slog.Error("apiResetHandler: failed to reset configuration",
			"status", http.StatusInternalServerError, "error", err)
		return ctx.String(http.StatusInternalServerError, "Failed to reset configuration")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (service *FrontendService) dashboardError(ctx echo.Context, err error) error {
	if errors.Is(err, dashboard.ErrParameterNotFound) || errors.Is(err, dashboard.ErrWorksheetNotFound) {
		slog.Warn("dashboard target not found", "status", http.StatusNotFound, "path", ctx.Path(), "error", err)
		return ctx.String(http.StatusNotFound, err.Error())
	}
	slog.Warn("dashboard update rejected", "status", http.StatusBadRequest, "path", ctx.Path(), "error", err)
	return ctx.String(http.StatusBadRequest, err.Error())
}

func (service *FrontendService) bindAndValidate(ctx echo.Context, target any) error {
	if err := ctx.Bind(target); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to parse request body")
	}
	return ctx.Validate(target)
}

func (service *FrontendService) iconHandler(ctx echo.Context) error {
	data, err := assetsFS.ReadFile("views/icon.svg")
	if err != nil {
		slog.Error("iconHandler: failed to read icon.svg", "status", http.StatusInternalServerError, "error", err)
		return ctx.String(http.StatusInternalServerError, "Failed to load icon")
	}
	// Cache for 7 days
	ctx.Response().Header().Set("Cache-Control", "public, max-age=604800, immutable")
	return ctx.Blob(http.StatusOK, "image/svg+xml", data)
}

func (service *FrontendService) setNoCache(ctx echo.Context) {
	ctx.Response().Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
	ctx.Response().Header().Set("Pragma", "no-cache")
	ctx.Response().Header().Set("Expires", "0")
}

func (service *FrontendService) buildWorksheetPickerHTML(worksheets []string) string {
	var b strings.Builder
	if len(worksheets) == 0 {
		b.WriteString(`<p>This dashboard has no worksheets.</p>`)
		return b.String()
	}
	b.WriteString(`<form hx-post="/htmx/worksheet" hx-target="#picker" hx-swap="innerHTML">`)
	b.WriteString(`<label for="worksheet">Select the worksheet</label> <select id="worksheet" name="worksheet">`)
	for _, name := range worksheets {
		escaped := html.EscapeString(name)
		b.WriteString(fmt.Sprintf(`<option value="%s">%s</option>`, escaped, escaped))
	}
	b.WriteString(`</select> <button type="submit">Next</button></form>`)
	return b.String()
}

func (service *FrontendService) buildColumnPickerHTML(worksheet string, columns []string) string {
	var b strings.Builder
	if len(columns) == 0 {
		b.WriteString(fmt.Sprintf(`<p>Worksheet %s has no columns.</p>`, html.EscapeString(worksheet)))
		return b.String()
	}
	b.WriteString(`<form hx-post="/htmx/column" hx-target="#picker" hx-swap="outerHTML">`)
	b.WriteString(fmt.Sprintf(`<p>Worksheet: %s</p>`, html.EscapeString(worksheet)))
	b.WriteString(`<label for="column">Select the image URL column</label> <select id="column" name="column">`)
	for _, name := range columns {
		escaped := html.EscapeString(name)
		b.WriteString(fmt.Sprintf(`<option value="%s">%s</option>`, escaped, escaped))
	}
	b.WriteString(`</select> <button type="submit">Save</button></form>`)
	return b.String()
}

// imageErrorScript hides the element before the page script reports the failure.
const imageErrorScript = `document.getElementById('dashboard-image').style.display='none';window.reportImageError&&window.reportImageError()`

var cssURLEscaper = strings.NewReplacer(
	`\`, "%5C", `'`, "%27", `"`, "%22", "(", "%28", ")", "%29",
	" ", "%20", "\t", "%09", "\n", "%0A", "\r", "%0D", "\f", "%0C",
)

// cssURL quotes src for a CSS url() value. Characters that could close the
// string or the function are percent-encoded.
func cssURL(src string) string {
	return `url("` + cssURLEscaper.Replace(src) + `")`
}

// buildImageHTML renders the element in its current state. Hidden images keep
// their node so websocket updates can reveal them. A source the browser fails
// to load hides the element and is reported back with its revision.
func (service *FrontendService) buildImageHTML(state render.State) string {
	display := "none"
	if state.Visible {
		display = "block"
	}
	onerror := html.EscapeString(imageErrorScript)

	if state.Mode == render.ModeBackground {
		background := ""
		if state.Source != "" {
			background = "background-image:" + cssURL(state.Source) + ";"
		}
		fragment := fmt.Sprintf(`<div id="dashboard-image" role="img" data-revision="%d" style="%sdisplay:%s"></div>`,
			state.Revision, html.EscapeString(background), display)
		if state.Source != "" {
			// Backgrounds have no error event, so a hidden loader watches the source.
			fragment += fmt.Sprintf(`<img id="dashboard-image-loader" alt="" hidden src="%s" onerror="%s">`,
				html.EscapeString(state.Source), onerror)
		}
		return fragment
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf(`<img id="dashboard-image" alt="" data-revision="%d"`, state.Revision))
	if state.Source != "" {
		b.WriteString(fmt.Sprintf(` src="%s"`, html.EscapeString(state.Source)))
	}
	if state.CrossOrigin != "" {
		b.WriteString(fmt.Sprintf(` crossorigin="%s"`, html.EscapeString(state.CrossOrigin)))
	}
	b.WriteString(fmt.Sprintf(` onerror="%s" style="display:%s">`, onerror, display))
	return b.String()
}
