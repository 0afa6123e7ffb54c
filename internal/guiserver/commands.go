package guiserver

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	jsoniter "github.com/json-iterator/go"

	"github.com/wizardpipe/wizard/internal/common/apperrors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// LaunchController opens and kills DCC processes. The launcher
// satisfies it.
type LaunchController interface {
	Launch(ctx context.Context, workEnvID, versionID int64) apperrors.Error
	Kill(workEnvID int64) bool
	Running() []int64
}

// SubtaskRunner queues background jobs. The subtask pool satisfies it
// through a thin adapter in the daemon.
type SubtaskRunner interface {
	Submit(name string, command, env []string, dir string) (string, error)
	Cancel(id string) bool
	ReadLog(id string) ([]byte, error)
}

// MountCommands adds the GUI command API. Call before Start.
func (s *Server) MountCommands(launcher LaunchController, tasks SubtaskRunner) {
	s.router.Post("/api/launch", s.handleLaunch(launcher))
	s.router.Post("/api/launch/{workEnvID}/kill", s.handleKill(launcher))
	s.router.Get("/api/launch", s.handleRunning(launcher))
	s.router.Post("/api/subtasks", s.handleSubmit(tasks))
	s.router.Post("/api/subtasks/{taskID}/cancel", s.handleCancel(tasks))
	s.router.Get("/api/subtasks/{taskID}/log", s.handleReadLog(tasks))
}

type launchRequest struct {
	WorkEnvID int64 `json:"work_env_id"`
	VersionID int64 `json:"version_id"`
}

type submitRequest struct {
	Name    string   `json:"name"`
	Command []string `json:"command"`
	Env     []string `json:"env,omitempty"`
	Dir     string   `json:"dir,omitempty"`
}

func (s *Server) handleLaunch(launcher LaunchController) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req launchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "undecodable request")
			return
		}
		if err := launcher.Launch(r.Context(), req.WorkEnvID, req.VersionID); err != nil {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"work_env_id": req.WorkEnvID})
	}
}

func (s *Server) handleKill(launcher LaunchController) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := int64Param(r, "workEnvID")
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad work environment id")
			return
		}
		if !launcher.Kill(id) {
			writeError(w, http.StatusNotFound, "nothing running on this work environment")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleRunning(launcher LaunchController) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"running": launcher.Running()})
	}
}

func (s *Server) handleSubmit(tasks SubtaskRunner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req submitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "undecodable request")
			return
		}
		id, err := tasks.Submit(req.Name, req.Command, req.Env, req.Dir)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{"task_id": id})
	}
}

func (s *Server) handleCancel(tasks SubtaskRunner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !tasks.Cancel(chi.URLParam(r, "taskID")) {
			writeError(w, http.StatusNotFound, "unknown or finished task")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleReadLog(tasks SubtaskRunner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := tasks.ReadLog(chi.URLParam(r, "taskID"))
		if err != nil {
			writeError(w, http.StatusNotFound, "no retained log for this task")
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write(data)
	}
}

func int64Param(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, name), 10, 64)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
