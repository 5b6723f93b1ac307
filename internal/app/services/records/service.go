// Package records backs the /api/data scratch resource.
package records

import (
	"context"
	"strings"

	"github.com/moodtrail/tracker/internal/app/domain/record"
	"github.com/moodtrail/tracker/internal/app/storage"
	apperrors "github.com/moodtrail/tracker/internal/errors"
	"github.com/moodtrail/tracker/pkg/logger"
)

// CreateInput is the payload of POST /api/data.
type CreateInput struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type Service struct {
	store storage.RecordStore
	log   *logger.Logger
}

func New(store storage.RecordStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("records")
	}
	return &Service{store: store, log: log}
}

func (s *Service) Create(ctx context.Context, in CreateInput) (record.Record, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return record.Record{}, apperrors.InvalidInput("Name is required").WithDetails("field", "name")
	}
	r, err := s.store.CreateRecord(ctx, record.Record{Name: name, Value: in.Value})
	if err != nil {
		return record.Record{}, err
	}
	s.log.WithField("record_id", r.ID).Debug("record created")
	return r, nil
}

// List returns every record in creation order.
func (s *Service) List(ctx context.Context) ([]record.Record, error) {
	return s.store.ListRecords(ctx)
}
