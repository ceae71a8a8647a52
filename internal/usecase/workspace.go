package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"go.uber.org/zap"

	"nexus/internal/domain"
	"nexus/internal/logger"
	"nexus/internal/port"
)

// DirResult contains the results of ingesting a directory.
type DirResult struct {
	Ingested  int
	Unchanged int
	Failed    int
	Removed   int
	Errors    []string
	Reports   []IngestReport
}

// DirOptions are progress hooks for IngestDir.
type DirOptions struct {
	OnStart func(total int)
	OnDone  func(IngestReport)
}

// IngestDir ingests every matching file under root and removes local
// documents whose file no longer exists.
func (u *IngestUseCase) IngestDir(
	ctx context.Context,
	root string,
	walker port.FileWalker,
	reader port.FileReader,
	opts DirOptions,
) (*DirResult, error) {
	result := &DirResult{}

	files, err := walker.Walk(root)
	if err != nil {
		return nil, fmt.Errorf("failed to walk directory: %w", err)
	}

	existing, err := u.store.ListDocs()
	if err != nil {
		return nil, fmt.Errorf("failed to list existing docs: %w", err)
	}

	seen := make(map[string]bool, len(files))
	docs := make([]domain.SourceDocument, 0, len(files))
	for _, file := range files {
		text, err := reader.ReadFile(file.Path)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("failed to read %s: %v", file.RelPath, err))
			continue
		}
		id := generateDocID(file.RelPath)
		seen[id] = true
		docs = append(docs, domain.SourceDocument{
			ID:     id,
			Source: domain.SourceLocal,
			Title:  file.RelPath,
			Path:   file.RelPath,
			Text:   text,
		})
	}

	if opts.OnStart != nil {
		opts.OnStart(len(docs))
	}

	result.Reports = u.IngestBatch(ctx, docs, opts.OnDone)
	for _, r := range result.Reports {
		switch r.Outcome {
		case OutcomeIngested:
			result.Ingested++
		case OutcomeUnchanged:
			result.Unchanged++
		default:
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("failed to ingest %s: %s", r.DocID, r.Error))
		}
	}

	// Delete documents for files that no longer exist
	for _, doc := range existing {
		if doc.Source != domain.SourceLocal || seen[doc.ID] {
			continue
		}
		if err := u.Remove(ctx, doc.ID); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("failed to remove %s: %v", doc.Path, err))
			continue
		}
		result.Removed++
	}

	logger.FromContext(ctx, u.logger).Info("directory ingested",
		zap.String("root", root),
		zap.Int("ingested", result.Ingested),
		zap.Int("unchanged", result.Unchanged),
		zap.Int("failed", result.Failed),
		zap.Int("removed", result.Removed),
	)
	return result, nil
}

// generateDocID creates a stable ID for a workspace file from its relative path.
func generateDocID(relPath string) string {
	hash := sha256.Sum256([]byte(relPath))
	return hex.EncodeToString(hash[:8])
}
