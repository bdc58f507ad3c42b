package services

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/chioma/settlement/internal/events"
	"github.com/chioma/settlement/internal/models"
	"github.com/chioma/settlement/internal/store"
)

// PropertyService is the registry of landlord properties agreements may reference.
type PropertyService struct {
	*Engine
}

func NewPropertyService(e *Engine) *PropertyService {
	return &PropertyService{Engine: e}
}

// Register records a property owned by the caller.
func (s *PropertyService) Register(ctx context.Context, caller, propertyID, metadataHash string) (*models.PropertyDetails, error) {
	var prop *models.PropertyDetails
	err := s.mutate(ctx, "property.register", func(ctx context.Context, o *op) error {
		if _, err := s.requireLive(ctx, o.tx); err != nil {
			return err
		}
		if caller == "" {
			return fmt.Errorf("%w: landlord address is required", models.ErrNotAuthorized)
		}
		if strings.TrimSpace(propertyID) == "" || strings.TrimSpace(metadataHash) == "" {
			return fmt.Errorf("%w: property_id and metadata_hash are required", models.ErrInvalidInput)
		}
		exists, err := s.properties.Exists(ctx, o.tx, propertyID)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%w: property %s", models.ErrAlreadyExists, propertyID)
		}

		prop = &models.PropertyDetails{
			PropertyID:   propertyID,
			Landlord:     caller,
			MetadataHash: metadataHash,
			RegisteredAt: o.now,
		}
		if err := s.properties.Save(ctx, o.tx, prop); err != nil {
			return err
		}
		if _, err := s.state.Increment(ctx, o.tx, store.KeyPropertyCount); err != nil {
			return err
		}
		o.emit(events.StreamProperty, events.EventPropertyRegistered, []string{caller}, map[string]any{
			"property_id":   propertyID,
			"metadata_hash": metadataHash,
		})
		s.log.Info("property registered", zap.String("property_id", propertyID), zap.String("landlord", caller))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return prop, nil
}

// Verify marks a property verified. Admin only.
func (s *PropertyService) Verify(ctx context.Context, caller, propertyID string) (*models.PropertyDetails, error) {
	var prop *models.PropertyDetails
	err := s.mutate(ctx, "property.verify", func(ctx context.Context, o *op) error {
		p, err := s.requireLive(ctx, o.tx)
		if err != nil {
			return err
		}
		if caller == "" || caller != p.admin {
			return fmt.Errorf("%w: caller is not the admin", models.ErrNotAuthorized)
		}
		prop, err = s.properties.GetByID(ctx, o.tx, propertyID)
		if err != nil {
			return err
		}
		if prop.Verified {
			return fmt.Errorf("%w: property %s", models.ErrAlreadyVerified, propertyID)
		}
		prop.Verified = true
		prop.VerifiedAt = timePtr(o.now)
		if err := s.properties.Save(ctx, o.tx, prop); err != nil {
			return err
		}
		o.emit(events.StreamProperty, events.EventPropertyVerified, []string{prop.Landlord}, map[string]any{
			"property_id": propertyID,
			"verifier":    caller,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return prop, nil
}

func (s *PropertyService) GetByID(ctx context.Context, propertyID string) (*models.PropertyDetails, error) {
	var prop *models.PropertyDetails
	err := s.view(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		prop, err = s.properties.GetByID(ctx, tx, propertyID)
		return err
	})
	return prop, err
}

func (s *PropertyService) Has(ctx context.Context, propertyID string) (bool, error) {
	var found bool
	err := s.view(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		found, err = s.properties.Exists(ctx, tx, propertyID)
		return err
	})
	return found, err
}

func (s *PropertyService) Count(ctx context.Context) (uint32, error) {
	var n uint32
	err := s.view(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		n, err = s.state.Counter(ctx, tx, store.KeyPropertyCount)
		return err
	})
	return n, err
}
