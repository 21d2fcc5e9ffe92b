// Package entries implements the reading store consumed by the client: a
// service over a repository, with HTTP handlers for the /api/entries routes.
package entries

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/medrex/glucose-tracker/pkg/config"
	"github.com/medrex/glucose-tracker/pkg/interfaces"
	"github.com/medrex/glucose-tracker/pkg/logger"
	"github.com/medrex/glucose-tracker/pkg/monitoring"
	"github.com/medrex/glucose-tracker/pkg/reading"
	"github.com/medrex/glucose-tracker/pkg/sitecode"
	"github.com/medrex/glucose-tracker/pkg/types"
)

// MaxPageSize bounds a single list request
const MaxPageSize = 100

// Service implements the EntriesService interface
type Service struct {
	repository interfaces.EntryRepository
	recCfg     config.RecommendationConfig
	logger     *logger.Logger
	metrics    *monitoring.MetricsCollector
}

// NewService creates a new entries service
func NewService(repo interfaces.EntryRepository, recCfg config.RecommendationConfig, log *logger.Logger, metrics *monitoring.MetricsCollector) *Service {
	return &Service{
		repository: repo,
		recCfg:     recCfg,
		logger:     log,
		metrics:    metrics,
	}
}

// Create validates and stores a submitted reading
func (s *Service) Create(ctx context.Context, payload *types.SubmissionPayload) (*types.Entry, error) {
	if err := validatePayload(payload); err != nil {
		return nil, err
	}

	ts, _ := reading.ParseTimestamp(payload.Timestamp)
	entry := &types.Entry{
		Value:        payload.Value,
		Timestamp:    ts.UTC(),
		Description:  payload.Description,
		PunctureSpot: strings.TrimSpace(payload.PunctureSpot),
	}

	created, err := s.repository.Create(ctx, entry)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Failed to create entry")
		return nil, fmt.Errorf("failed to create entry: %w", err)
	}

	s.metrics.RecordReading("created")
	s.logger.WithContext(ctx).WithFields(map[string]interface{}{
		"id":    created.ID,
		"value": created.Value,
	}).Info("Entry created")
	return created, nil
}

// List returns one page of entries and the total number stored
func (s *Service) List(ctx context.Context, query *types.ListQuery) ([]*types.Entry, int, error) {
	if !query.SortBy.Valid() {
		return nil, 0, types.NewValidationError(types.ErrCodeInvalidInput, "unsupported sort key", map[string]interface{}{
			"sort_by": string(query.SortBy),
		})
	}
	if query.Page < 1 {
		return nil, 0, types.NewValidationError(types.ErrCodeInvalidInput, "page must be at least 1", map[string]interface{}{
			"page": query.Page,
		})
	}
	if query.Size < 1 || query.Size > MaxPageSize {
		return nil, 0, types.NewValidationError(types.ErrCodeInvalidInput, fmt.Sprintf("size must be between 1 and %d", MaxPageSize), map[string]interface{}{
			"size": query.Size,
		})
	}

	// the repository offset is (page-1)*size
	if query.Page > math.MaxInt/query.Size {
		return nil, 0, types.NewValidationError(types.ErrCodeInvalidInput, "page is out of range", map[string]interface{}{
			"page": query.Page,
			"size": query.Size,
		})
	}

	entries, err := s.repository.List(ctx, query)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list entries: %w", err)
	}

	total, err := s.repository.Count(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count entries: %w", err)
	}

	return entries, total, nil
}

// Delete removes an entry by id
func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.repository.Delete(ctx, id); err != nil {
		if types.IsNotFound(err) {
			return err
		}
		return fmt.Errorf("failed to delete entry: %w", err)
	}

	s.metrics.RecordReading("deleted")
	s.logger.WithContext(ctx).WithField("id", id).Info("Entry deleted")
	return nil
}

// RecommendedSpots ranks lateral sites by how long ago they were last used
func (s *Service) RecommendedSpots(ctx context.Context) ([]string, error) {
	recent, err := s.repository.Recent(ctx, s.recCfg.Lookback)
	if err != nil {
		return nil, fmt.Errorf("failed to load recent entries: %w", err)
	}
	return Recommend(recent, s.recCfg.Count), nil
}

func validatePayload(p *types.SubmissionPayload) error {
	if math.IsNaN(p.Value) || math.IsInf(p.Value, 0) || p.Value <= 0 {
		return types.NewValidationError(types.ErrCodeValidationFailed, "value must be a positive number", map[string]interface{}{
			"value": p.Value,
		})
	}

	if _, ok := reading.ParseTimestamp(p.Timestamp); !ok {
		return types.NewValidationError(types.ErrCodeValidationFailed, "timestamp is missing or invalid", map[string]interface{}{
			"timestamp": p.Timestamp,
		})
	}

	if spot := strings.TrimSpace(p.PunctureSpot); spot != "" {
		if _, err := sitecode.Decode(spot); err != nil {
			return &types.TrackerError{
				Type:    types.ErrorTypeValidation,
				Code:    types.ErrCodeValidationFailed,
				Message: "punctureSpot is not a valid site code",
				Details: map[string]interface{}{"punctureSpot": p.PunctureSpot},
				Cause:   err,
			}
		}
	}

	return nil
}
