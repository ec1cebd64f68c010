package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/damacus/iron-archivos/internal/models"
	"github.com/damacus/iron-archivos/internal/records"
	"github.com/damacus/iron-archivos/internal/services"
	"github.com/damacus/iron-archivos/internal/utils"
	"github.com/labstack/echo/v4"
)

// ProcessLister reads process records
type ProcessLister interface {
	List(clientID string) ([]records.Process, error)
	Get(id string) (*records.Process, error)
}

// ProcessProvisioner creates, edits and removes processes
type ProcessProvisioner interface {
	Create(ctx context.Context, in services.NewProcess) (*records.Process, error)
	Update(id string, in services.NewProcess) (*records.Process, error)
	Delete(id string) error
}

// WorkspaceDropper forgets the browsing state of a process
type WorkspaceDropper interface {
	Drop(processID string)
}

type ProcessesHandler struct {
	store       ProcessLister
	provisioner ProcessProvisioner
	workspaces  WorkspaceDropper
}

func NewProcessesHandler(store ProcessLister, provisioner ProcessProvisioner, workspaces WorkspaceDropper) *ProcessesHandler {
	return &ProcessesHandler{store: store, provisioner: provisioner, workspaces: workspaces}
}

var processStatuses = []records.Status{records.StatusActive, records.StatusInactive}

// ListProcesses renders the process table, optionally filtered by client
func (h *ProcessesHandler) ListProcesses(c echo.Context) error {
	filter := strings.TrimSpace(c.QueryParam("cliente"))

	procs, err := h.store.List(filter)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to list processes").SetInternal(err)
	}

	rows := make([]models.ProcessRow, 0, len(procs))
	for _, p := range procs {
		rows = append(rows, processRow(p))
	}

	return c.Render(http.StatusOK, "processes", map[string]interface{}{
		"Title":     "Procesos",
		"ActiveNav": "procesos",
		"CSRFToken": CSRFToken(c),
		"Filter":    filter,
		"Processes": rows,
	})
}

// processModal renders the create or edit form for a process
func processModal(c echo.Context, status int, action, heading, submit string, in services.NewProcess, msg string) error {
	return c.Render(status, "process_create_modal", map[string]interface{}{
		"Action":   action,
		"Heading":  heading,
		"Submit":   submit,
		"Error":    msg,
		"Statuses": processStatuses,
		"ClientID": in.ClientID,
		"Name":     in.Name,
		"Radicado": in.Radicado,
		"Status":   string(in.Status),
	})
}

func processForm(c echo.Context) services.NewProcess {
	return services.NewProcess{
		ClientID: c.FormValue("clientId"),
		Name:     c.FormValue("nombre"),
		Radicado: c.FormValue("radicado"),
		Status:   records.Status(c.FormValue("estado")),
	}
}

// CreateProcessModal renders the process creation modal
func (h *ProcessesHandler) CreateProcessModal(c echo.Context) error {
	return processModal(c, http.StatusOK, "/procesos/create", "Nuevo proceso", "Crear",
		services.NewProcess{Status: records.StatusActive}, "")
}

// CreateProcess registers a process and provisions its bucket
func (h *ProcessesHandler) CreateProcess(c echo.Context) error {
	in := processForm(c)
	modal := func(status int, msg string) error {
		return processModal(c, status, "/procesos/create", "Nuevo proceso", "Crear", in, msg)
	}

	proc, err := h.provisioner.Create(c.Request().Context(), in)
	if err != nil {
		var validationErr *services.ValidationError
		if errors.As(err, &validationErr) {
			return modal(http.StatusBadRequest, "Datos inválidos: "+validationErr.Error())
		}
		slog.Error("process creation failed", "client", in.ClientID, "error", err)
		return modal(http.StatusInternalServerError, "No se pudo crear el proceso. Inténtalo de nuevo.")
	}

	slog.Info("process created", "process", proc.ID, "client", proc.ClientID)
	return HTMXRedirect(c, "/procesos")
}

// EditProcessModal renders the edit modal filled with the stored values
func (h *ProcessesHandler) EditProcessModal(c echo.Context) error {
	id := c.Param("id")
	proc, err := h.store.Get(id)
	if err != nil {
		if errors.Is(err, records.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "Process not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to load process").SetInternal(err)
	}

	return processModal(c, http.StatusOK, editAction(id), "Editar proceso", "Guardar", services.NewProcess{
		ClientID: proc.ClientID,
		Name:     proc.Name,
		Radicado: proc.Radicado,
		Status:   proc.Status,
	}, "")
}

// UpdateProcess saves the edited fields of a process
func (h *ProcessesHandler) UpdateProcess(c echo.Context) error {
	id := c.Param("id")
	in := processForm(c)
	modal := func(status int, msg string) error {
		return processModal(c, status, editAction(id), "Editar proceso", "Guardar", in, msg)
	}

	if _, err := h.provisioner.Update(id, in); err != nil {
		var validationErr *services.ValidationError
		switch {
		case errors.As(err, &validationErr):
			return modal(http.StatusBadRequest, "Datos inválidos: "+validationErr.Error())
		case errors.Is(err, records.ErrNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "Process not found")
		}
		slog.Error("process update failed", "process", id, "error", err)
		return modal(http.StatusInternalServerError, "No se pudo actualizar el proceso. Inténtalo de nuevo.")
	}

	return HTMXRedirect(c, "/procesos")
}

func editAction(id string) string {
	return "/procesos/" + id + "/edit"
}

// DeleteProcess removes a process record and forgets its workspaces
func (h *ProcessesHandler) DeleteProcess(c echo.Context) error {
	id := c.Param("id")

	if err := h.provisioner.Delete(id); err != nil {
		if errors.Is(err, records.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "Process not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to delete process").SetInternal(err)
	}
	h.workspaces.Drop(id)

	return HTMXRedirect(c, "/procesos")
}

func processRow(p records.Process) models.ProcessRow {
	return models.ProcessRow{
		ID:        p.ID,
		ClientID:  p.ClientID,
		Name:      p.Name,
		Radicado:  p.Radicado,
		Status:    string(p.Status),
		CreatedAt: utils.FormatDate(p.CreatedAt),
		Bucket:    p.BucketPath,
	}
}
