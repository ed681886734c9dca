// Package enrichment runs the background stages that follow ingestion:
// malware scanning and structured data extraction. Each stage is
// idempotent per document and tolerates redelivery of its unit of work.
package enrichment

import (
	"context"
	"fmt"
	"io"
	"time"

	"clientdocs-backend/internal/documents"
	"clientdocs-backend/internal/extraction"
	"clientdocs-backend/internal/queue"
	"clientdocs-backend/internal/scanner"
	"clientdocs-backend/internal/shared/metrics"
	"clientdocs-backend/internal/shared/resilience"
	"clientdocs-backend/internal/shared/storage/object"
	"clientdocs-backend/internal/shared/telemetry"
)

// ReviewThreshold is the confidence floor below which a completed
// extraction is routed to human review instead.
const ReviewThreshold = 0.8

// Service executes enrichment stages against stored documents. Scan and
// extraction carry separate executors because their collaborators have
// very different latency profiles.
type Service struct {
	Repo    documents.Repo
	Store   object.BlobStore
	Scanner scanner.Scanner
	Engine  extraction.Engine

	ScanExec    *resilience.Executor
	ExtractExec *resilience.Executor
}

// Process dispatches one unit of work to its stage handler.
func (s *Service) Process(ctx context.Context, msg queue.Message) error {
	switch msg.Stage {
	case queue.StageScan:
		return s.ProcessScan(ctx, msg.DocumentID)
	case queue.StageExtraction:
		return s.ProcessExtraction(ctx, msg.DocumentID)
	default:
		return fmt.Errorf("unknown stage %q", msg.Stage)
	}
}

// ProcessScan runs the malware scan stage. Redeliveries are no-ops once
// a verdict is recorded or another worker holds the in-flight claim.
func (s *Service) ProcessScan(ctx context.Context, documentID string) error {
	start := time.Now()

	doc, err := s.Repo.Get(ctx, documentID)
	if err != nil {
		return fmt.Errorf("load document: %w", err)
	}
	if doc.Scanned {
		telemetry.Info("scan.already_done", stageFields(ctx, documentID, map[string]any{
			"verdict": doc.ScanVerdict,
		}))
		return nil
	}

	claimed, err := s.Repo.BeginScan(ctx, documentID)
	if err != nil {
		return fmt.Errorf("claim scan: %w", err)
	}
	if !claimed {
		telemetry.Info("scan.claim_lost", stageFields(ctx, documentID, nil))
		return nil
	}

	var result scanner.Result
	scanErr := s.ScanExec.Execute(ctx, "scan", func(callCtx context.Context) error {
		var innerErr error
		result, innerErr = s.Scanner.Scan(callCtx, doc.StorageKey)
		return innerErr
	})

	verdict := documents.ScanVerdictClean
	switch {
	case scanErr != nil:
		verdict = documents.ScanVerdictFailed
		telemetry.Error("scan.failed", stageFields(ctx, documentID, map[string]any{
			"err": scanErr.Error(),
		}))
	case !result.Clean:
		verdict = documents.ScanVerdictInfected
		telemetry.Warn("scan.infected", stageFields(ctx, documentID, map[string]any{
			"signature": result.Signature,
		}))
	}

	if err := s.Repo.FinishScan(ctx, documentID, verdict, time.Now().UTC()); err != nil {
		return fmt.Errorf("record scan verdict: %w", err)
	}

	telemetry.Info("scan.status_transition", stageFields(ctx, documentID, map[string]any{
		"from": documents.ScanVerdictScanning,
		"to":   verdict,
	}))
	metrics.IncStage(queue.StageScan, verdict)
	metrics.ObserveStageDuration(queue.StageScan, time.Since(start).Seconds())
	return nil
}

// ProcessExtraction runs the data extraction stage. The document must be
// in pending; terminal documents and concurrent claims are skipped. Hard
// failures are recorded on the document and absorbed, so a redelivered
// message does not loop on the same broken input.
func (s *Service) ProcessExtraction(ctx context.Context, documentID string) error {
	start := time.Now()

	doc, err := s.Repo.Get(ctx, documentID)
	if err != nil {
		return fmt.Errorf("load document: %w", err)
	}
	if documents.ExtractionTerminal(doc.ExtractionStatus) {
		telemetry.Info("extraction.already_done", stageFields(ctx, documentID, map[string]any{
			"status": doc.ExtractionStatus,
		}))
		return nil
	}
	if doc.ExtractionStatus == documents.ExtractionNotRequested {
		return nil
	}

	claimed, err := s.Repo.TransitionExtraction(ctx, documentID,
		[]string{documents.ExtractionPending}, documents.ExtractionProcessing)
	if err != nil {
		return fmt.Errorf("claim extraction: %w", err)
	}
	if !claimed {
		telemetry.Info("extraction.claim_lost", stageFields(ctx, documentID, nil))
		return nil
	}
	telemetry.Info("extraction.status_transition", stageFields(ctx, documentID, map[string]any{
		"from": documents.ExtractionPending,
		"to":   documents.ExtractionProcessing,
	}))

	data, err := s.readBlob(ctx, doc.StorageKey)
	if err != nil {
		return s.finishFailed(ctx, documentID, start, nil, fmt.Errorf("read blob: %w", err))
	}

	result, extractErr := s.runEngine(ctx, data, doc.MimeType)
	if extractErr != nil {
		payload := partialPayload(result)
		return s.finishFailed(ctx, documentID, start, payload, extractErr)
	}

	var validation extraction.Validation
	validateErr := s.ExtractExec.Execute(ctx, "extract.validate", func(callCtx context.Context) error {
		var innerErr error
		validation, innerErr = s.Engine.Validate(callCtx, result)
		return innerErr
	})
	if validateErr != nil {
		return s.finishFailed(ctx, documentID, start, partialPayload(result), validateErr)
	}

	status := documents.ExtractionCompleted
	if result.Confidence < ReviewThreshold || !validation.OK {
		status = documents.ExtractionNeedsReview
	}

	payload := &documents.ExtractedPayload{
		SchemaVersion: documents.PayloadSchemaVersion,
		DocumentType:  result.DocumentType,
		Fields:        result.Fields,
		Raw:           result.Raw,
	}
	confidence := result.Confidence
	if err := s.Repo.FinishExtraction(ctx, documentID, status, &confidence, payload, result.Raw); err != nil {
		return fmt.Errorf("record extraction: %w", err)
	}

	telemetry.Info("extraction.status_transition", stageFields(ctx, documentID, map[string]any{
		"from":          documents.ExtractionProcessing,
		"to":            status,
		"document_type": result.DocumentType,
		"confidence":    result.Confidence,
		"valid":         validation.OK,
	}))
	metrics.IncStage(queue.StageExtraction, status)
	metrics.ObserveStageDuration(queue.StageExtraction, time.Since(start).Seconds())
	return nil
}

func (s *Service) runEngine(ctx context.Context, data []byte, mimeType string) (extraction.Result, error) {
	var typeGuess string
	err := s.ExtractExec.Execute(ctx, "extract.detect", func(callCtx context.Context) error {
		var innerErr error
		typeGuess, innerErr = s.Engine.DetectType(callCtx, data, mimeType)
		return innerErr
	})
	if err != nil {
		return extraction.Result{}, fmt.Errorf("detect type: %w", err)
	}

	var result extraction.Result
	err = s.ExtractExec.Execute(ctx, "extract.fields", func(callCtx context.Context) error {
		var innerErr error
		result, innerErr = s.Engine.Extract(callCtx, data, mimeType, typeGuess)
		return innerErr
	})
	if err != nil {
		return result, fmt.Errorf("extract fields: %w", err)
	}
	return result, nil
}

func (s *Service) readBlob(ctx context.Context, storageKey string) ([]byte, error) {
	reader, err := s.Store.Open(ctx, storageKey)
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	return io.ReadAll(reader)
}

// finishFailed records a failed extraction, keeping whatever partial
// payload exists. The stage error is absorbed: the failure is now the
// document's state, not the queue's problem.
func (s *Service) finishFailed(ctx context.Context, documentID string, start time.Time, payload *documents.ExtractedPayload, cause error) error {
	telemetry.Error("extraction.failed", stageFields(ctx, documentID, map[string]any{
		"err": cause.Error(),
	}))

	extractedText := ""
	if payload != nil {
		extractedText = payload.Raw
	}
	if err := s.Repo.FinishExtraction(ctx, documentID, documents.ExtractionFailed, nil, payload, extractedText); err != nil {
		return fmt.Errorf("record extraction failure: %w", err)
	}

	telemetry.Info("extraction.status_transition", stageFields(ctx, documentID, map[string]any{
		"from": documents.ExtractionProcessing,
		"to":   documents.ExtractionFailed,
	}))
	metrics.IncStage(queue.StageExtraction, documents.ExtractionFailed)
	metrics.ObserveStageDuration(queue.StageExtraction, time.Since(start).Seconds())
	return nil
}

func partialPayload(result extraction.Result) *documents.ExtractedPayload {
	if result.DocumentType == "" && len(result.Fields) == 0 && result.Raw == "" {
		return nil
	}
	return &documents.ExtractedPayload{
		SchemaVersion: documents.PayloadSchemaVersion,
		DocumentType:  result.DocumentType,
		Fields:        result.Fields,
		Raw:           result.Raw,
	}
}
