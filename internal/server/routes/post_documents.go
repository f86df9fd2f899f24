package routes

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/drivetrace/backend/internal/queue"
	"github.com/drivetrace/backend/internal/server/middleware"
	"github.com/drivetrace/backend/internal/storage"
	"github.com/drivetrace/backend/pkg/domain"
	"github.com/drivetrace/backend/pkg/logger"
)

// UploadDocumentsHandler accepts documents as multipart/form-data, parks
// them in object storage and enqueues one ingest message per file. The
// worker assigns the document its public ID once the file hash is known,
// so the response carries the storage key as the tracking handle.
func UploadDocumentsHandler(c echo.Context) error {
	type uploadedFile struct {
		Filename string `json:"filename"`
		FileKey  string `json:"file_key"`
		Status   string `json:"status"`
	}

	type uploadResponse struct {
		Message string         `json:"message"`
		Files   []uploadedFile `json:"files,omitempty"`
	}

	form, err := c.MultipartForm()
	if err != nil {
		return c.JSON(http.StatusBadRequest, uploadResponse{
			Message: "Invalid request body",
		})
	}
	uploads := form.File["files"]
	if len(uploads) == 0 {
		return c.JSON(http.StatusBadRequest, uploadResponse{
			Message: "No files provided",
		})
	}

	contentType := domain.ContentType(c.FormValue("content_type"))
	if contentType != "" && !contentType.IsValid() {
		return c.JSON(http.StatusBadRequest, uploadResponse{
			Message: fmt.Sprintf("Unknown content type %q", contentType),
		})
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	files := make([]uploadedFile, 0, len(uploads))
	for _, file := range uploads {
		src, err := file.Open()
		if err != nil {
			return c.JSON(http.StatusBadRequest, uploadResponse{
				Message: "Could not open file",
			})
		}
		defer src.Close()

		fId, err := gonanoid.New()
		if err != nil {
			return c.JSON(http.StatusInternalServerError, uploadResponse{
				Message: "Internal server error",
			})
		}
		key, err := storage.PutFile(
			ctx,
			app.S3,
			app.Config.S3Bucket,
			fmt.Sprintf("documents/%s/%s", fId, file.Filename),
			src,
		)
		if err != nil {
			logger.Error("Failed to upload file", "err", err)
			return c.JSON(http.StatusInternalServerError, uploadResponse{
				Message: "Internal server error",
			})
		}

		msg, err := json.Marshal(queue.IngestDocumentMsg{
			Filename:    file.Filename,
			FileKey:     key,
			ContentType: contentType,
		})
		if err != nil {
			return c.JSON(http.StatusInternalServerError, uploadResponse{
				Message: "Internal server error",
			})
		}
		if err := queue.PublishFIFO(app.Queue, queue.IngestQueue, msg); err != nil {
			logger.Error("Failed to publish ingest message", "err", err, "key", key)
			return c.JSON(http.StatusInternalServerError, uploadResponse{
				Message: "Internal server error",
			})
		}

		files = append(files, uploadedFile{
			Filename: file.Filename,
			FileKey:  key,
			Status:   "queued",
		})
	}

	return c.JSON(http.StatusAccepted, uploadResponse{
		Message: "Documents queued for ingestion",
		Files:   files,
	})
}
