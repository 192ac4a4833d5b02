package controllers

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/zarkopopovski/persona-chat/db"
	"github.com/zarkopopovski/persona-chat/models"
)

type ProjectController struct {
	DBManager      *db.DBManager
	AuthController *AuthController
	Logger         *zap.Logger
}

type projectRequest struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	SystemPrompt string `json:"system_prompt"`
}

func (projectController *ProjectController) CreateProject(w http.ResponseWriter, r *http.Request) {
	setJSONHeaders(w)

	userID, ok := projectController.AuthController.Authenticate(w, r)
	if !ok {
		return
	}

	var body projectRequest
	if err := parseRequestBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	name := strings.TrimSpace(body.Name)
	if name == "" {
		writeError(w, http.StatusBadRequest, "Name is required")
		return
	}

	project := &models.Project{
		UserID:       userID,
		Name:         name,
		Description:  body.Description,
		SystemPrompt: body.SystemPrompt,
	}
	if err := projectController.DBManager.InsertProject(r.Context(), project); err != nil {
		projectController.fail(w, "create project", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"data": project})
}

// ListProjects returns the user's projects, newest first.
func (projectController *ProjectController) ListProjects(w http.ResponseWriter, r *http.Request) {
	setJSONHeaders(w)

	userID, ok := projectController.AuthController.Authenticate(w, r)
	if !ok {
		return
	}

	projects, err := projectController.DBManager.ListProjects(r.Context(), userID)
	if err != nil {
		projectController.fail(w, "list projects", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"data": projects})
}

func (projectController *ProjectController) GetProject(w http.ResponseWriter, r *http.Request) {
	setJSONHeaders(w)

	userID, ok := projectController.AuthController.Authenticate(w, r)
	if !ok {
		return
	}

	project, err := projectController.DBManager.GetProjectForUser(r.Context(), userID, r.PathValue("projectID"))
	if err != nil {
		projectController.fail(w, "get project", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"data": project})
}

// UpdateProject replaces the project's name, description and system prompt.
func (projectController *ProjectController) UpdateProject(w http.ResponseWriter, r *http.Request) {
	setJSONHeaders(w)

	userID, ok := projectController.AuthController.Authenticate(w, r)
	if !ok {
		return
	}

	var body projectRequest
	if err := parseRequestBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	name := strings.TrimSpace(body.Name)
	if name == "" {
		writeError(w, http.StatusBadRequest, "Name is required")
		return
	}

	ctx := r.Context()

	project, err := projectController.DBManager.GetProjectForUser(ctx, userID, r.PathValue("projectID"))
	if err != nil {
		projectController.fail(w, "get project", err)
		return
	}

	project.Name = name
	project.Description = body.Description
	project.SystemPrompt = body.SystemPrompt

	if err := projectController.DBManager.UpdateProject(ctx, project); err != nil {
		projectController.fail(w, "update project", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"data": project})
}

func (projectController *ProjectController) DeleteProject(w http.ResponseWriter, r *http.Request) {
	setJSONHeaders(w)

	userID, ok := projectController.AuthController.Authenticate(w, r)
	if !ok {
		return
	}

	if err := projectController.DBManager.DeleteProject(r.Context(), userID, r.PathValue("projectID")); err != nil {
		projectController.fail(w, "delete project", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Successfully deleted"})
}

func (projectController *ProjectController) ListProjectFiles(w http.ResponseWriter, r *http.Request) {
	setJSONHeaders(w)

	userID, ok := projectController.AuthController.Authenticate(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	projectID := r.PathValue("projectID")

	if _, err := projectController.DBManager.GetProjectForUser(ctx, userID, projectID); err != nil {
		projectController.fail(w, "get project", err)
		return
	}

	files, err := projectController.DBManager.ListProjectFiles(ctx, userID, projectID)
	if err != nil {
		projectController.fail(w, "list project files", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"data": files})
}

func (projectController *ProjectController) fail(w http.ResponseWriter, op string, err error) {
	if !errors.Is(err, db.ErrNotFound) {
		projectController.Logger.Error(op+" failed", zap.Error(err))
	}
	status, message := errorStatus(err)
	writeError(w, status, message)
}
