package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"collab/backend/internal/domain/files"
	"collab/backend/internal/domain/project"
	"collab/backend/internal/httpjson"
)

func (h *handlers) listProjects(w http.ResponseWriter, r *http.Request) {
	out, err := h.Projects.ListProjects(r.Context(), authUser(r).UID, queryInt(r, "limit"))
	if err != nil {
		h.fail(w, r, err, mapProjectError)
		return
	}
	httpjson.Write(w, http.StatusOK, map[string]any{"projects": out})
}

func (h *handlers) createProject(w http.ResponseWriter, r *http.Request) {
	au := authUser(r)
	var in project.CreateProjectInput
	if !decode(w, r, &in) {
		return
	}
	p, err := h.Projects.CreateProject(r.Context(), au.UID, in)
	if err != nil {
		h.fail(w, r, err, mapProjectError)
		return
	}
	h.Usage.Track(r.Context(), au.UID, "project_created", map[string]any{"projectId": p.ID})
	httpjson.Write(w, http.StatusCreated, p)
}

func (h *handlers) getProject(w http.ResponseWriter, r *http.Request) {
	p, err := h.Projects.GetProject(r.Context(), authUser(r).UID, chi.URLParam(r, "projectID"))
	if err != nil {
		h.fail(w, r, err, mapProjectError)
		return
	}
	httpjson.Write(w, http.StatusOK, p)
}

func (h *handlers) updateProject(w http.ResponseWriter, r *http.Request) {
	var in project.UpdateProjectInput
	if !decode(w, r, &in) {
		return
	}
	p, err := h.Projects.UpdateProject(r.Context(), authUser(r).UID, chi.URLParam(r, "projectID"), in)
	if err != nil {
		h.fail(w, r, err, mapProjectError)
		return
	}
	httpjson.Write(w, http.StatusOK, p)
}

func (h *handlers) deleteProject(w http.ResponseWriter, r *http.Request) {
	if err := h.Projects.DeleteProject(r.Context(), authUser(r).UID, chi.URLParam(r, "projectID")); err != nil {
		h.fail(w, r, err, mapProjectError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) addCollaborator(w http.ResponseWriter, r *http.Request) {
	var in project.CollaboratorInput
	if !decode(w, r, &in) {
		return
	}
	p, err := h.Projects.AddCollaborator(r.Context(), authUser(r).UID, chi.URLParam(r, "projectID"), in)
	if err != nil {
		h.fail(w, r, err, mapProjectError)
		return
	}
	httpjson.Write(w, http.StatusOK, p)
}

func (h *handlers) removeCollaborator(w http.ResponseWriter, r *http.Request) {
	p, err := h.Projects.RemoveCollaborator(r.Context(), authUser(r).UID, chi.URLParam(r, "projectID"), chi.URLParam(r, "uid"))
	if err != nil {
		h.fail(w, r, err, mapProjectError)
		return
	}
	httpjson.Write(w, http.StatusOK, p)
}

func (h *handlers) listTasks(w http.ResponseWriter, r *http.Request) {
	out, err := h.Projects.ListTasks(r.Context(), authUser(r).UID, chi.URLParam(r, "projectID"))
	if err != nil {
		h.fail(w, r, err, mapProjectError)
		return
	}
	httpjson.Write(w, http.StatusOK, map[string]any{"tasks": out})
}

func (h *handlers) createTask(w http.ResponseWriter, r *http.Request) {
	var in project.CreateTaskInput
	if !decode(w, r, &in) {
		return
	}
	t, err := h.Projects.CreateTask(r.Context(), authUser(r).UID, chi.URLParam(r, "projectID"), in)
	if err != nil {
		h.fail(w, r, err, mapProjectError)
		return
	}
	httpjson.Write(w, http.StatusCreated, t)
}

func (h *handlers) updateTask(w http.ResponseWriter, r *http.Request) {
	var in project.UpdateTaskInput
	if !decode(w, r, &in) {
		return
	}
	t, err := h.Projects.UpdateTask(r.Context(), authUser(r).UID, chi.URLParam(r, "projectID"), chi.URLParam(r, "taskID"), in)
	if err != nil {
		h.fail(w, r, err, mapProjectError)
		return
	}
	httpjson.Write(w, http.StatusOK, t)
}

func (h *handlers) deleteTask(w http.ResponseWriter, r *http.Request) {
	if err := h.Projects.DeleteTask(r.Context(), authUser(r).UID, chi.URLParam(r, "projectID"), chi.URLParam(r, "taskID")); err != nil {
		h.fail(w, r, err, mapProjectError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type batchTasksReq struct {
	Updates []project.TaskStatusUpdate `json:"updates"`
}

func (h *handlers) batchUpdateTasks(w http.ResponseWriter, r *http.Request) {
	var req batchTasksReq
	if !decode(w, r, &req) {
		return
	}
	if err := h.Projects.BatchUpdateTasks(r.Context(), authUser(r).UID, chi.URLParam(r, "projectID"), req.Updates); err != nil {
		h.fail(w, r, err, mapProjectError)
		return
	}
	httpjson.Write(w, http.StatusOK, map[string]any{"success": true, "updated": len(req.Updates)})
}

func (h *handlers) listMessages(w http.ResponseWriter, r *http.Request) {
	out, err := h.Projects.ListMessages(r.Context(), authUser(r).UID, chi.URLParam(r, "projectID"), queryInt(r, "limit"))
	if err != nil {
		h.fail(w, r, err, mapProjectError)
		return
	}
	httpjson.Write(w, http.StatusOK, map[string]any{"messages": out})
}

func (h *handlers) postMessage(w http.ResponseWriter, r *http.Request) {
	au := authUser(r)
	var in project.PostMessageInput
	if !decode(w, r, &in) {
		return
	}
	if in.AuthorName == "" {
		if name, ok := au.Claims["name"].(string); ok {
			in.AuthorName = name
		}
	}
	m, err := h.Projects.PostMessage(r.Context(), au.UID, chi.URLParam(r, "projectID"), in)
	if err != nil {
		h.fail(w, r, err, mapProjectError)
		return
	}
	httpjson.Write(w, http.StatusCreated, m)
}

func (h *handlers) watchProject(w http.ResponseWriter, r *http.Request) {
	uid, id := authUser(r).UID, chi.URLParam(r, "projectID")
	h.stream(w, r, mapProjectError, func(send sendFunc) error {
		return h.Projects.WatchProject(r.Context(), uid, id, func(p *project.Project) error {
			return send("project", p)
		})
	})
}

func (h *handlers) watchTasks(w http.ResponseWriter, r *http.Request) {
	uid, id := authUser(r).UID, chi.URLParam(r, "projectID")
	h.stream(w, r, mapProjectError, func(send sendFunc) error {
		return h.Projects.WatchTasks(r.Context(), uid, id, func(ts []project.Task) error {
			return send("tasks", ts)
		})
	})
}

func (h *handlers) watchMessages(w http.ResponseWriter, r *http.Request) {
	uid, id := authUser(r).UID, chi.URLParam(r, "projectID")
	limit := queryInt(r, "limit")
	h.stream(w, r, mapProjectError, func(send sendFunc) error {
		return h.Projects.WatchMessages(r.Context(), uid, id, limit, func(ms []project.Message) error {
			return send("messages", ms)
		})
	})
}

func (h *handlers) listFiles(w http.ResponseWriter, r *http.Request) {
	out, err := h.Files.List(r.Context(), authUser(r).UID, chi.URLParam(r, "projectID"))
	if err != nil {
		h.fail(w, r, err, mapFilesError)
		return
	}
	httpjson.Write(w, http.StatusOK, map[string]any{"files": out})
}

func (h *handlers) createUploadURL(w http.ResponseWriter, r *http.Request) {
	var in files.UploadInput
	if !decode(w, r, &in) {
		return
	}
	out, err := h.Files.UploadURL(r.Context(), authUser(r).UID, chi.URLParam(r, "projectID"), in)
	if err != nil {
		h.fail(w, r, err, mapFilesError)
		return
	}
	httpjson.Write(w, http.StatusOK, out)
}
