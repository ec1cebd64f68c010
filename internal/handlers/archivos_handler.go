package handlers

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/damacus/iron-archivos/internal/browser"
	"github.com/damacus/iron-archivos/internal/models"
	"github.com/damacus/iron-archivos/internal/records"
	"github.com/damacus/iron-archivos/internal/utils"
	"github.com/labstack/echo/v4"
)

const (
	eventPreviewChanged = "preview-changed"
	eventCloseModal     = "close-modal"
	eventOpenDownload   = "open-download"

	officeViewerURL = "https://view.officeapps.live.com/op/embed.aspx?src="
)

// ProcessGetter resolves a process by id
type ProcessGetter interface {
	Get(id string) (*records.Process, error)
}

// NavigatorSource hands out the navigator of a session and process
type NavigatorSource interface {
	Get(sessionID, processID, bucket string) *browser.Navigator
}

// ArchivosHandler serves the file browser of one process
type ArchivosHandler struct {
	processes  ProcessGetter
	workspaces NavigatorSource
	now        func() time.Time
}

func NewArchivosHandler(processes ProcessGetter, workspaces NavigatorSource) *ArchivosHandler {
	return &ArchivosHandler{processes: processes, workspaces: workspaces, now: time.Now}
}

// navigator loads the process from the path and the navigator of the caller
func (h *ArchivosHandler) navigator(c echo.Context) (*records.Process, *browser.Navigator, error) {
	session, err := GetSession(c)
	if err != nil {
		return nil, nil, err
	}

	proc, err := h.processes.Get(c.Param("id"))
	if err != nil {
		if errors.Is(err, records.ErrNotFound) {
			return nil, nil, echo.NewHTTPError(http.StatusNotFound, "Process not found")
		}
		return nil, nil, echo.NewHTTPError(http.StatusInternalServerError, "Failed to load process").SetInternal(err)
	}

	return proc, h.workspaces.Get(session.ID, proc.ID, proc.BucketPath), nil
}

// Browse renders the file browser page. A prefix query parameter navigates
// there first; otherwise the listing is loaded on the first visit only.
func (h *ArchivosHandler) Browse(c echo.Context) error {
	proc, nav, err := h.navigator(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()

	if prefix, ok := c.QueryParams()["prefix"]; ok {
		id := browser.RootID
		if len(prefix) > 0 && prefix[0] != "" {
			id = prefix[0]
		}
		_, err = nav.Dispatch(ctx, browser.OpenDirectory{Entry: browser.Entry{ID: id, IsDir: true}})
	} else if !nav.Snapshot().Loaded {
		_, err = nav.Dispatch(ctx, browser.Refresh{})
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to load files").SetInternal(err)
	}

	return c.Render(http.StatusOK, "archivos", map[string]interface{}{
		"Title":     proc.Name,
		"ActiveNav": "procesos",
		"CSRFToken": CSRFToken(c),
		"Process":   processRow(*proc),
		"Listing":   h.listing(proc, nav, browser.Result{}),
		"Preview":   previewView(proc.ID, nav.Preview().Snapshot()),
	})
}

// Open enters a folder or selects a file for preview
func (h *ArchivosHandler) Open(c echo.Context) error {
	proc, nav, err := h.navigator(c)
	if err != nil {
		return err
	}

	id := c.FormValue("id")
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Entry id is required")
	}
	entry := nav.Lookup([]string{id})[0]
	if c.FormValue("dir") == "true" {
		entry.IsDir = true
	}

	var action browser.Action = browser.OpenFile{Entry: entry}
	if entry.IsDir {
		action = browser.OpenDirectory{Entry: entry}
	}
	return h.dispatch(c, proc, nav, action, eventPreviewChanged)
}

// CreateFolderModal renders the folder creation modal
func (h *ArchivosHandler) CreateFolderModal(c echo.Context) error {
	proc, nav, err := h.navigator(c)
	if err != nil {
		return err
	}
	prefix, ok := displayedPrefix(c)
	if !ok {
		prefix = nav.Prefix()
	}
	return c.Render(http.StatusOK, "folder_create_modal", map[string]interface{}{
		"ProcessID": proc.ID,
		"Prefix":    browser.NormalizePrefix(prefix),
	})
}

// CreateFolder creates a folder below the current prefix
func (h *ArchivosHandler) CreateFolder(c echo.Context) error {
	proc, nav, err := h.navigator(c)
	if err != nil {
		return err
	}
	return h.dispatch(c, proc, nav, browser.CreateFolder{Name: c.FormValue("folderName")}, eventCloseModal)
}

// Upload stores every file of the multipart "files" field
func (h *ArchivosHandler) Upload(c echo.Context) error {
	proc, nav, err := h.navigator(c)
	if err != nil {
		return err
	}

	form, err := c.MultipartForm()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid upload").SetInternal(err)
	}
	headers := form.File["files"]
	if len(headers) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "No files provided")
	}

	uploads := make([]browser.Upload, 0, len(headers))
	for _, fh := range headers {
		uploads = append(uploads, browser.Upload{
			Name: path.Base(fh.Filename),
			Open: openPart(fh),
		})
	}
	return h.dispatch(c, proc, nav, browser.UploadFiles{Files: uploads}, "")
}

func openPart(fh *multipart.FileHeader) func() (io.ReadCloser, error) {
	return func() (io.ReadCloser, error) {
		return fh.Open()
	}
}

// Delete removes the selected files and folders
func (h *ArchivosHandler) Delete(c echo.Context) error {
	proc, nav, err := h.navigator(c)
	if err != nil {
		return err
	}
	ids, err := selectedIDs(c)
	if err != nil {
		return err
	}
	return h.dispatch(c, proc, nav, browser.DeleteEntries{Entries: nav.Lookup(ids)}, eventPreviewChanged)
}

// Download resolves links for the selected files. A single link is opened
// by the browser right away; every link is also listed.
func (h *ArchivosHandler) Download(c echo.Context) error {
	proc, nav, err := h.navigator(c)
	if err != nil {
		return err
	}
	ids, err := selectedIDs(c)
	if err != nil {
		return err
	}

	res, err := h.run(c, nav, browser.DownloadEntries{Entries: nav.Lookup(ids)})
	if err != nil {
		return err
	}
	if len(res.Downloads) == 1 {
		if err := HTMXTriggerDetail(c, eventOpenDownload, map[string]string{"url": res.Downloads[0].URL}); err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "Action failed").SetInternal(err)
		}
	}
	return c.Render(http.StatusOK, "file_list", h.listing(proc, nav, res))
}

// Preview renders the preview pane. While a link is resolving the pane keeps
// polling itself.
func (h *ArchivosHandler) Preview(c echo.Context) error {
	proc, nav, err := h.navigator(c)
	if err != nil {
		return err
	}
	return c.Render(http.StatusOK, "preview", previewView(proc.ID, nav.Preview().Snapshot()))
}

func (h *ArchivosHandler) dispatch(c echo.Context, proc *records.Process, nav *browser.Navigator, action browser.Action, event string) error {
	res, err := h.run(c, nav, action)
	if err != nil {
		return err
	}
	if event != "" {
		HTMXTrigger(c, event)
	}
	return c.Render(http.StatusOK, "file_list", h.listing(proc, nav, res))
}

// run dispatches action in the folder the requesting page shows, when the
// page sent one.
func (h *ArchivosHandler) run(c echo.Context, nav *browser.Navigator, action browser.Action) (browser.Result, error) {
	if prefix, ok := displayedPrefix(c); ok {
		action = browser.At{Prefix: prefix, Action: action}
	}
	res, err := nav.Dispatch(c.Request().Context(), action)
	if err != nil {
		return res, echo.NewHTTPError(http.StatusInternalServerError, "Action failed").SetInternal(err)
	}
	return res, nil
}

// displayedPrefix reads the "prefix" field every file browser form carries.
// Pages of the same session share one navigator, so the server side prefix
// may belong to another tab.
func displayedPrefix(c echo.Context) (string, bool) {
	params, err := c.FormParams()
	if err != nil {
		return "", false
	}
	values, ok := params["prefix"]
	if !ok || len(values) == 0 {
		return "", false
	}
	return values[0], true
}

func selectedIDs(c echo.Context) ([]string, error) {
	params, err := c.FormParams()
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "Invalid form").SetInternal(err)
	}
	return params["ids"], nil
}

// listing builds the file list view and drains pending notices
func (h *ArchivosHandler) listing(proc *records.Process, nav *browser.Navigator, res browser.Result) models.ListingView {
	snap := nav.Snapshot()
	now := h.now()

	view := models.ListingView{
		ProcessID: proc.ID,
		Prefix:    snap.Prefix,
		HasBucket: snap.Bucket != "",
		Loaded:    snap.Loaded,
	}

	for _, e := range snap.Entries {
		ev := models.EntryView{
			ID:         e.ID,
			Name:       e.Name,
			IsDir:      e.IsDir,
			IsParent:   e.IsParent(),
			Modified:   utils.FormatRelative(e.LastModified, now),
			ModifiedAt: utils.FormatDate(e.LastModified),
			Icon:       entryIcon(e),
		}
		if !e.IsDir {
			ev.FormattedSize = utils.FormatFileSize(e.Size)
		}
		view.Entries = append(view.Entries, ev)
	}

	for i, b := range snap.Breadcrumbs {
		id := b.Prefix
		if id == "" {
			id = browser.RootID
		}
		view.Breadcrumbs = append(view.Breadcrumbs, models.BreadcrumbView{
			ID:   id,
			Name: b.Name,
			Last: i == len(snap.Breadcrumbs)-1,
		})
	}

	for _, n := range nav.TakeNotices() {
		view.Notices = append(view.Notices, models.NoticeView{Level: string(n.Level), Message: n.Message})
	}
	for _, d := range res.Downloads {
		view.Downloads = append(view.Downloads, models.DownloadView{Name: d.Entry.Name, URL: d.URL})
	}
	return view
}

func entryIcon(e browser.Entry) string {
	switch {
	case e.IsParent():
		return "parent"
	case e.IsDir:
		return "folder"
	}
	if kind, ok := browser.ViewerFor(browser.Extension(e.Name)); ok {
		return string(kind)
	}
	return "file"
}

func previewView(processID string, snap browser.PreviewSnapshot) models.PreviewView {
	view := models.PreviewView{
		ProcessID: processID,
		State:     string(snap.State),
		Kind:      string(snap.Kind),
		URL:       snap.URL,
		Polling:   snap.State == browser.PreviewLoading,
	}
	if snap.Entry != nil {
		view.Name = snap.Entry.Name
	}
	if snap.State == browser.PreviewError {
		view.Message = "No se pudo cargar la vista previa."
	}
	if snap.Kind == browser.ViewerOffice && snap.URL != "" {
		view.OfficeURL = officeViewerURL + url.QueryEscape(snap.URL)
	}
	return view
}
