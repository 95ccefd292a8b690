package relations

import (
	"context"

	"github.com/keyxmakerx/atlas/internal/apperror"
	"github.com/keyxmakerx/atlas/internal/entity"
)

// RelationService defines the business logic contract for the relations
// view. Handlers call these methods -- they never touch the repository
// directly.
type RelationService interface {
	// List returns the targets of targetType associated with source,
	// directly or through a group, each exactly once.
	List(ctx context.Context, source entity.Ref, targetType entity.Type) ([]Association, error)
}

// relationService implements RelationService.
type relationService struct {
	repo RelationRepository
}

// NewRelationService creates a new RelationService backed by the given
// repository.
func NewRelationService(repo RelationRepository) RelationService {
	return &relationService{repo: repo}
}

// List loads both sources and merges them.
func (s *relationService) List(ctx context.Context, source entity.Ref, targetType entity.Type) ([]Association, error) {
	if !targetType.Valid() {
		return nil, apperror.NewBadRequest("unknown target type " + string(targetType))
	}

	direct, err := s.repo.ListDirect(ctx, source, targetType)
	if err != nil {
		return nil, apperror.NewInternal(err)
	}
	derived, err := s.repo.ListViaGroups(ctx, source, targetType)
	if err != nil {
		return nil, apperror.NewInternal(err)
	}
	return MergeAssociations(direct, derived), nil
}
