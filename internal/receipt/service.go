package receipt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zombor/receipt-processor/internal/parsing"
	"github.com/zombor/receipt-processor/internal/scanning"
)

// IDGenerator generates unique IDs for stored files
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// Parser turns OCR text into a receipt record
type Parser interface {
	Parse(raw string) (*parsing.Record, error)
}

type defaultIDGenerator struct{}

func (g *defaultIDGenerator) Generate() string {
	return uuid.NewString()
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now().UTC()
}

// stageError records which pipeline step failed
type stageError struct {
	stage string
	err   error
}

func (e *stageError) Error() string {
	return e.stage + ": " + e.err.Error()
}

func (e *stageError) Unwrap() error {
	return e.err
}

// Service handles receipt operations
type Service struct {
	db          DB
	scanner     scanning.Scanner
	storage     Storage
	parser      Parser
	metrics     *Metrics
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a new Service with default ID generator and time source
func NewService(db DB, scanner scanning.Scanner, storage Storage, parser Parser) *Service {
	return NewServiceWithDeps(db, scanner, storage, parser, &defaultIDGenerator{}, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, scanner scanning.Scanner, storage Storage, parser Parser, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		db:          db,
		scanner:     scanner,
		storage:     storage,
		parser:      parser,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

// SetMetrics makes the service record pipeline outcomes in m
func (s *Service) SetMetrics(m *Metrics) {
	s.metrics = m
}

var (
	reFilenameDrop  = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	reFilenameSpace = regexp.MustCompile(`\s+`)
	reUserDirDrop   = regexp.MustCompile(`[^a-zA-Z0-9\-_]`)
)

// sanitizeFilename cleans up a filename by removing special characters and truncating length
func sanitizeFilename(filename string) string {
	filename = filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	ext := strings.ToLower(filepath.Ext(filename))
	base := strings.TrimSuffix(filename, filepath.Ext(filename))

	base = reFilenameDrop.ReplaceAllString(base, "")
	base = strings.TrimSpace(reFilenameSpace.ReplaceAllString(base, " "))

	const maxLen = 50
	if len(base) > maxLen {
		base = base[:maxLen]
	}
	if base == "" {
		base = "receipt"
	}
	if len(ext) < 2 || reFilenameDrop.MatchString(ext[1:]) {
		ext = ""
	}
	return base + ext
}

// userDir is the storage directory holding a user's uploads
func userDir(userID string) string {
	dir := reUserDirDrop.ReplaceAllString(userID, "_")
	if dir == "" {
		dir = "_"
	}
	return dir
}

// ProcessReceipt stores an upload, scans and parses it, and saves the resulting document
func (s *Service) ProcessReceipt(ctx context.Context, userID, filename string, data []byte, contentType string) (*Receipt, error) {
	receipt, err := s.processReceipt(ctx, userID, filename, data, contentType)
	if err != nil {
		s.metrics.observeFailure(err)
		return nil, err
	}
	return receipt, nil
}

func (s *Service) processReceipt(ctx context.Context, userID, filename string, data []byte, contentType string) (*Receipt, error) {
	now := s.timeSource.Now()
	storedName := path.Join(userDir(userID), fmt.Sprintf("%s_%s", s.idGenerator.Generate(), sanitizeFilename(filename)))

	savedPath, err := s.storage.Save(storedName, data)
	if err != nil {
		return nil, &stageError{"storage", fmt.Errorf("saving file: %w", err)}
	}

	text, err := s.scanner.ScanText(ctx, data, contentType)
	if err != nil {
		slog.Error("Failed to scan receipt",
			"user", userID,
			"filename", filename,
			"content_type", contentType,
			"file_size", len(data),
			"error", err,
		)
		s.discard(savedPath)
		return nil, &stageError{"scan", fmt.Errorf("scanning receipt: %w", err)}
	}

	record, err := s.parser.Parse(text)
	if err != nil {
		slog.Warn("Failed to parse receipt text", "user", userID, "filename", filename, "error", err)
		s.discard(savedPath)
		return nil, fmt.Errorf("parsing receipt: %w", err)
	}
	logger := slog.With("correlation_id", record.CorrelationID, "user", userID)
	logger.Info("Parsed receipt",
		"merchant", record.Merchant,
		"strategy", record.Diagnostics.Strategy,
		"items", len(record.Items),
		"items_purchased", record.ItemsPurchased,
	)
	if record.Diagnostics.CountMismatch {
		logger.Warn("Printed item count differs from segmented quantity",
			"printed", record.Diagnostics.PrintedItemCount,
			"segmented", record.Diagnostics.SegmentedQuantity,
		)
	}

	receipt := FormatReceipt(record, userID, Upload{
		Filename:    filename,
		FilePath:    savedPath,
		ContentType: contentType,
	}, now)

	if err := s.db.SaveReceipt(userID, receipt); err != nil {
		s.discard(savedPath)
		return nil, &stageError{"database", fmt.Errorf("saving receipt to database: %w", err)}
	}
	logger.Info("Saved receipt", "id", receipt.ID, "file", savedPath)

	s.metrics.observeRecord(record)
	return receipt, nil
}

// discard removes a stored upload that will not be referenced by any receipt
func (s *Service) discard(savedPath string) {
	if err := s.storage.Delete(savedPath); err != nil {
		slog.Warn("Failed to delete file", "filename", savedPath, "error", err)
	}
}

// ParseText runs the parser over text that has already been through OCR
func (s *Service) ParseText(text string) (*parsing.Record, error) {
	record, err := s.parser.Parse(text)
	if err != nil {
		if errors.Is(err, parsing.ErrNoText) {
			s.metrics.observeFailure(err)
		}
		return nil, fmt.Errorf("parsing text: %w", err)
	}
	s.metrics.observeRecord(record)
	return record, nil
}

// GetReceipt retrieves a receipt by ID
func (s *Service) GetReceipt(userID, id string) (*Receipt, error) {
	receipt, err := s.db.GetReceipt(userID, id)
	if err != nil {
		return nil, fmt.Errorf("getting receipt: %w", err)
	}
	return receipt, nil
}

// ListReceipts returns the user's receipts, newest first
func (s *Service) ListReceipts(userID string) ([]*Receipt, error) {
	receipts, err := s.db.ListReceipts(userID)
	if err != nil {
		return nil, fmt.Errorf("listing receipts: %w", err)
	}
	return receipts, nil
}

// DeleteReceipt removes a receipt and its file
func (s *Service) DeleteReceipt(userID, id string) error {
	receipt, err := s.db.GetReceipt(userID, id)
	if err != nil {
		return fmt.Errorf("getting receipt for deletion: %w", err)
	}

	if receipt.Metadata.FilePath != "" {
		if err := s.storage.Delete(receipt.Metadata.FilePath); err != nil {
			// the document still goes
			slog.Warn("Failed to delete file", "filename", receipt.Metadata.FilePath, "error", err)
		}
	}

	if err := s.db.DeleteReceipt(userID, id); err != nil {
		return fmt.Errorf("deleting receipt from database: %w", err)
	}
	return nil
}

// GetReceiptFile retrieves the uploaded file for a receipt
func (s *Service) GetReceiptFile(userID, id string) ([]byte, string, error) {
	receipt, err := s.db.GetReceipt(userID, id)
	if err != nil {
		return nil, "", fmt.Errorf("getting receipt: %w", err)
	}

	data, err := s.storage.Get(receipt.Metadata.FilePath)
	if err != nil {
		return nil, "", fmt.Errorf("getting receipt file: %w", err)
	}

	return data, receipt.Metadata.ContentType, nil
}
