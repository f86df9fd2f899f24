package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/drivetrace/backend/pkg/docload"
	"github.com/drivetrace/backend/pkg/domain"
	"github.com/drivetrace/backend/pkg/logger"
	"github.com/drivetrace/backend/pkg/pipeline"
)

// IngestDocumentMsg asks the worker to ingest one uploaded document. The
// file itself lives in object storage under FileKey.
type IngestDocumentMsg struct {
	Filename    string             `json:"filename"`
	FileKey     string             `json:"file_key"`
	ContentType domain.ContentType `json:"content_type,omitempty"`
}

// DeleteDocumentMsg asks the worker to remove a document and everything
// derived from it.
type DeleteDocumentMsg struct {
	DocumentID string `json:"document_id"`
}

// ProcessIngestMessage downloads the document and runs it through the
// pipeline. Malformed documents are not retried: the pipeline already
// recorded the failure and redelivering the same bytes cannot change the
// outcome. Every other failure propagates so the delivery is retried.
func ProcessIngestMessage(
	ctx context.Context,
	loader docload.FileLoader,
	p *pipeline.Pipeline,
	msgBody []byte,
) error {
	var msg IngestDocumentMsg
	if err := json.Unmarshal(msgBody, &msg); err != nil {
		return fmt.Errorf("malformed ingest message: %w", err)
	}
	if msg.Filename == "" || msg.FileKey == "" {
		return fmt.Errorf("ingest message missing filename or file key")
	}

	content, err := loader.GetFileBytes(ctx, docload.SourceFile{
		Name:   msg.Filename,
		Path:   msg.FileKey,
		Loader: loader,
	})
	if err != nil {
		return fmt.Errorf("fetch %s: %w", msg.FileKey, err)
	}

	doc, err := p.Ingest(ctx, pipeline.Input{
		Filename:    msg.Filename,
		Content:     content,
		ContentType: msg.ContentType,
	})
	if err != nil {
		var malformed *domain.MalformedDocumentError
		if errors.As(err, &malformed) {
			logger.Warn("[Queue] Dropping malformed document", "file", msg.Filename, "reason", malformed.Reason)
			return nil
		}
		return err
	}

	logger.Info("[Queue] Ingest finished", "file", msg.Filename, "document", doc.PublicID, "status", doc.Status)
	return nil
}

// ProcessDeleteMessage removes a document from both stores.
func ProcessDeleteMessage(
	ctx context.Context,
	p *pipeline.Pipeline,
	msgBody []byte,
) error {
	var msg DeleteDocumentMsg
	if err := json.Unmarshal(msgBody, &msg); err != nil {
		return fmt.Errorf("malformed delete message: %w", err)
	}
	if msg.DocumentID == "" {
		return fmt.Errorf("delete message missing document id")
	}

	if err := p.Delete(ctx, msg.DocumentID); err != nil {
		return err
	}
	logger.Info("[Queue] Document deleted", "document", msg.DocumentID)
	return nil
}
