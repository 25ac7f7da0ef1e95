package importer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/asakaida/datagraph/internal/entities"
	"github.com/asakaida/datagraph/internal/repositories"
	"github.com/asakaida/datagraph/internal/services/validation"
)

// DefaultTimeout bounds one background import job
const DefaultTimeout = 10 * time.Minute

// Importer validates CSV rows and inserts them all or none
type Importer struct {
	schema    *entities.Schema
	registry  repositories.Registry
	validator validation.Validator
	notifier  Notifier
	logger    *zap.Logger
	timeout   time.Duration

	wg sync.WaitGroup
}

// New creates a new Importer
func New(schema *entities.Schema, registry repositories.Registry, validator validation.Validator, notifier Notifier, logger *zap.Logger) *Importer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = NewLogNotifier(logger)
	}
	return &Importer{
		schema:    schema,
		registry:  registry,
		validator: validator,
		notifier:  notifier,
		logger:    logger,
		timeout:   DefaultTimeout,
	}
}

// Import reads, validates and inserts the CSV in one transaction and returns the number
// of records created
func (im *Importer) Import(ctx context.Context, entityType string, r io.Reader) (int, error) {
	def, err := im.schema.MustEntity(entityType)
	if err != nil {
		return 0, err
	}
	store, err := im.registry.Storage(entityType)
	if err != nil {
		return 0, err
	}

	records, err := ReadRecords(def, r)
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, nil
	}
	for i, rec := range records {
		if err := im.validator.ValidateForCreate(ctx, def, rec); err != nil {
			return 0, fmt.Errorf("row %d: %w", i+2, err)
		}
	}

	n, err := store.CreateManyInTransaction(ctx, records)
	if err != nil {
		return 0, fmt.Errorf("failed to import %s: %w", def.Name, err)
	}
	return n, nil
}

// Start runs Import in the background and returns the job id at once. The result is
// handed to the notifier for recipient.
func (im *Importer) Start(ctx context.Context, entityType string, data []byte, recipient string) (string, error) {
	if _, err := im.schema.MustEntity(entityType); err != nil {
		return "", err
	}
	jobID := uuid.NewString()
	jobCtx := context.WithoutCancel(ctx)

	im.wg.Add(1)
	go func() {
		defer im.wg.Done()
		ctx, cancel := context.WithTimeout(jobCtx, im.timeout)
		defer cancel()

		res := &Result{JobID: jobID, EntityType: entityType, Recipient: recipient, StartedAt: time.Now()}
		res.Created, res.Err = im.Import(ctx, entityType, bytes.NewReader(data))
		res.FinishedAt = time.Now()

		if err := im.notifier.Notify(ctx, res); err != nil {
			im.logger.Error("failed to notify import result", zap.String("job_id", jobID), zap.Error(err))
		}
	}()

	im.logger.Info("csv import started",
		zap.String("job_id", jobID),
		zap.String("entity", entityType),
		zap.Int("bytes", len(data)))
	return jobID, nil
}

// Wait blocks until every background job has finished
func (im *Importer) Wait() {
	im.wg.Wait()
}
