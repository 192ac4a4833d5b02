package controllers

import (
	"context"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/zarkopopovski/persona-chat/completion"
	"github.com/zarkopopovski/persona-chat/db"
	"github.com/zarkopopovski/persona-chat/models"
)

const DefaultMaxUploadSize = 1024 * 1024 * 50 // 50MB

type FileUploader interface {
	Upload(ctx context.Context, filename string, content io.Reader, purpose string) (*completion.UploadedFile, error)
}

type FileController struct {
	DBManager      *db.DBManager
	AuthController *AuthController
	Uploader       FileUploader
	MaxUploadSize  int64
	Logger         *zap.Logger
}

// UploadFile forwards a reference file to the vendor file store. When
// projectId is given the returned file reference is recorded for the project.
func (fileController *FileController) UploadFile(w http.ResponseWriter, r *http.Request) {
	setJSONHeaders(w)

	userID, ok := fileController.AuthController.Authenticate(w, r)
	if !ok {
		return
	}

	maxUploadSize := fileController.MaxUploadSize
	if maxUploadSize <= 0 {
		maxUploadSize = DefaultMaxUploadSize
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		writeError(w, http.StatusBadRequest, "The uploaded file is too big or the form is invalid")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file provided")
		return
	}
	defer file.Close()

	purpose := r.FormValue("purpose")
	if purpose == "" {
		purpose = completion.DefaultFilePurpose
	}

	ctx := r.Context()
	projectID := r.FormValue("projectId")

	if projectID != "" {
		if _, err := fileController.DBManager.GetProjectForUser(ctx, userID, projectID); err != nil {
			status, message := errorStatus(err)
			writeError(w, status, message)
			return
		}
	}

	uploaded, err := fileController.Uploader.Upload(ctx, header.Filename, file, purpose)
	if err != nil {
		fileController.Logger.Error("file upload failed", zap.String("filename", header.Filename), zap.Error(err))
		status, message := errorStatus(err)
		writeError(w, status, message)
		return
	}

	if projectID != "" {
		projectFile := &models.ProjectFile{
			ProjectID: projectID,
			UserID:    userID,
			FileID:    uploaded.ID,
			Filename:  uploaded.Filename,
			Bytes:     uploaded.Bytes,
			Status:    uploaded.Status,
			Purpose:   purpose,
		}
		if err := fileController.DBManager.InsertProjectFile(ctx, projectFile); err != nil {
			fileController.Logger.Error("failed to record project file",
				zap.String("project_id", projectID),
				zap.String("file_id", uploaded.ID),
				zap.Error(err),
			)
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"fileId":   uploaded.ID,
		"filename": uploaded.Filename,
		"bytes":    uploaded.Bytes,
		"status":   uploaded.Status,
	})
}
