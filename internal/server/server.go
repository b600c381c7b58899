// Package server exposes scanning over a local HTTP API.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	logging "github.com/ipfs/go-log/v2"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/rxscan/rxscan/pkg/bus/events"
	"github.com/rxscan/rxscan/pkg/folders"
	"github.com/rxscan/rxscan/pkg/pipeline"
	"github.com/rxscan/rxscan/pkg/pipeline/model"
	"github.com/rxscan/rxscan/pkg/scanner"
	"github.com/rxscan/rxscan/pkg/types"
)

var log = logging.Logger("rxscan/server")

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 500
	shutdownTimeout     = 5 * time.Second
)

type Devices interface {
	Devices() []scanner.Device
	CurrentDeviceID() (string, bool)
	Select(id string) error
}

type Runner interface {
	Run(ctx context.Context, mode scanner.ColorMode) (pipeline.Outcome, error)
	Status() events.PipelineEvent
}

type Folders interface {
	DefaultFolder(ctx context.Context) (folders.Folder, error)
	SetDefaultFolder(ctx context.Context, path string) (folders.Folder, error)
}

type History interface {
	ListScans(ctx context.Context, limit int) ([]model.ScanRecord, error)
}

type Server struct {
	echo    *echo.Echo
	devices Devices
	runner  Runner
	folders Folders
	history History

	mu     sync.Mutex
	cancel context.CancelFunc
}

func New(devices Devices, runner Runner, folders Folders, history History) *Server {
	s := &Server{
		echo:    echo.New(),
		devices: devices,
		runner:  runner,
		folders: folders,
		history: history,
	}
	e := s.echo
	e.HideBanner = true
	e.HidePort = true
	e.Use(requestLogger())
	e.Use(middleware.Recover())

	e.GET("/devices", s.listDevices)
	e.POST("/devices/select", s.selectDevice)
	e.POST("/scan", s.scan)
	e.DELETE("/scan", s.cancelScan)
	e.GET("/status", s.status)
	e.GET("/folder", s.getFolder)
	e.PUT("/folder", s.setFolder)
	e.GET("/history", s.listHistory)
	return s
}

// Handler returns the traced HTTP handler.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.echo, "rxscan")
}

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler()}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serving: %w", err)
	case <-ctx.Done():
	}

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

func requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				log.Warnw("request", "method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency, "err", v.Error)
				return nil
			}
			log.Debugw("request", "method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency)
			return nil
		},
	})
}

type deviceView struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Vendor    string `json:"vendor,omitempty"`
	Model     string `json:"model,omitempty"`
	Available bool   `json:"available"`
	Selected  bool   `json:"selected"`
}

type devicesResponse struct {
	Devices  []deviceView `json:"devices"`
	Selected string       `json:"selected,omitempty"`
}

func (s *Server) listDevices(c echo.Context) error {
	selected, _ := s.devices.CurrentDeviceID()
	resp := devicesResponse{Devices: []deviceView{}, Selected: selected}
	for _, d := range s.devices.Devices() {
		resp.Devices = append(resp.Devices, deviceView{
			ID:        d.ID,
			Name:      d.Name,
			Vendor:    d.Vendor,
			Model:     d.Model,
			Available: d.Available,
			Selected:  d.ID == selected,
		})
	}
	return c.JSON(http.StatusOK, resp)
}

type selectRequest struct {
	ID string `json:"id"`
}

func (s *Server) selectDevice(c echo.Context) error {
	var req selectRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if err := s.devices.Select(req.ID); err != nil {
		if errors.Is(err, types.ErrInvalidDevice) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"selected": req.ID})
}

type scanRequest struct {
	Mode string `json:"mode"`
}

type outcomeView struct {
	ID       uuid.UUID `json:"id"`
	Status   string    `json:"status"`
	Message  string    `json:"message"`
	DeviceID string    `json:"device_id,omitempty"`
	Mode     string    `json:"mode"`
	Output   string    `json:"output,omitempty"`
	Size     int64     `json:"size,omitempty"`
}

func (s *Server) scan(c echo.Context) error {
	var req scanRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	mode, err := scanner.ParseColorMode(req.Mode)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	// The scan outlives a dropped connection; DELETE /scan cancels it.
	ctx, cancel := context.WithCancel(context.WithoutCancel(c.Request().Context()))
	defer cancel()
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return echo.NewHTTPError(http.StatusConflict, types.ErrBusy.Error())
	}
	s.cancel = cancel
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.cancel = nil
		s.mu.Unlock()
	}()

	out, err := s.runner.Run(ctx, mode)
	switch {
	case errors.Is(err, types.ErrBusy):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, types.ErrNoScannerAvailable):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	case err != nil:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, outcomeView{
		ID:       out.ID,
		Status:   string(out.Status),
		Message:  out.Status.Message(),
		DeviceID: out.DeviceID,
		Mode:     out.Mode.String(),
		Output:   out.Output,
		Size:     out.Size,
	})
}

func (s *Server) cancelScan(c echo.Context) error {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel == nil {
		return echo.NewHTTPError(http.StatusNotFound, "no scan in progress")
	}
	cancel()
	return c.NoContent(http.StatusAccepted)
}

type statusView struct {
	Status  string     `json:"status"`
	Message string     `json:"message"`
	Busy    bool       `json:"busy"`
	ScanID  *uuid.UUID `json:"scan_id,omitempty"`
	Output  string     `json:"output,omitempty"`
	Error   string     `json:"error,omitempty"`
}

func (s *Server) status(c echo.Context) error {
	evt := s.runner.Status()
	view := statusView{
		Status:  string(evt.Status),
		Message: evt.Status.Message(),
		Busy:    evt.Status.Busy(),
		Output:  evt.Output,
	}
	if evt.ScanID != uuid.Nil {
		view.ScanID = &evt.ScanID
	}
	if evt.Error != nil {
		view.Error = evt.Error.Error()
	}
	return c.JSON(http.StatusOK, view)
}

type folderView struct {
	Path  string `json:"path"`
	Token string `json:"token"`
}

func (s *Server) getFolder(c echo.Context) error {
	f, err := s.folders.DefaultFolder(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, folderView{Path: f.Path, Token: f.Token})
}

type setFolderRequest struct {
	Path string `json:"path"`
}

func (s *Server) setFolder(c echo.Context) error {
	var req setFolderRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if req.Path == "" {
		return echo.NewHTTPError(http.StatusBadRequest, types.ErrEmpty{Field: "path"}.Error())
	}
	f, err := s.folders.SetDefaultFolder(c.Request().Context(), req.Path)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, folderView{Path: f.Path, Token: f.Token})
}

type recordView struct {
	ID        uuid.UUID `json:"id"`
	DeviceID  string    `json:"device_id"`
	Mode      string    `json:"mode"`
	Status    string    `json:"status"`
	Output    string    `json:"output,omitempty"`
	Size      int64     `json:"size,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *Server) listHistory(c echo.Context) error {
	limit := defaultHistoryLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = min(n, maxHistoryLimit)
	}
	records, err := s.history.ListScans(c.Request().Context(), limit)
	if err != nil {
		return err
	}
	views := make([]recordView, 0, len(records))
	for _, r := range records {
		views = append(views, recordView{
			ID:        r.ID,
			DeviceID:  r.DeviceID,
			Mode:      r.Mode.String(),
			Status:    string(r.Status),
			Output:    r.OutputPath,
			Size:      r.OutputSize,
			Error:     r.Error,
			CreatedAt: r.CreatedAt,
		})
	}
	return c.JSON(http.StatusOK, map[string]any{"scans": views})
}
