package collections

import (
	"context"
	"errors"
	"fmt"
	"log"

	"modeshoot-server/modules/common/model"
	"modeshoot-server/modules/prompt"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrForbidden  = errors.New("forbidden")
	ErrValidation = errors.New("bad request")
)

// Store - collection/preset 영속성 (database.Client가 구현)
type Store interface {
	CreateCollection(ctx context.Context, collection *model.Collection) (*model.Collection, error)
	FetchCollection(ctx context.Context, collectionID string) (*model.Collection, error)
	ListCollections(ctx context.Context, userID string) ([]model.Collection, error)
	UpdateCollectionFields(ctx context.Context, collectionID string, fields map[string]interface{}) error
	DeleteCollection(ctx context.Context, collectionID string) error
	UpdateCollectionDA(ctx context.Context, collectionID string, presetID string, overrides, final map[string]interface{}) error
	FetchDAPreset(ctx context.Context, presetID string) (*model.DAPreset, error)
	FetchDefaultDAPreset(ctx context.Context) (*model.DAPreset, error)
	ListDAPresets(ctx context.Context) ([]model.DAPreset, error)
}

type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// Create - 컬렉션 생성
func (s *Service) Create(ctx context.Context, userID, name string) (*model.Collection, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrValidation)
	}

	return s.store.CreateCollection(ctx, &model.Collection{
		UserID: userID,
		Name:   name,
	})
}

// List - 사용자 컬렉션 목록
func (s *Service) List(ctx context.Context, userID string) ([]model.Collection, error) {
	collections, err := s.store.ListCollections(ctx, userID)
	if err != nil {
		return nil, err
	}
	if collections == nil {
		collections = []model.Collection{}
	}
	return collections, nil
}

// Rename - 컬렉션 이름 변경
func (s *Service) Rename(ctx context.Context, collectionID, userID, name string) (*model.Collection, error) {
	if _, err := s.Get(ctx, collectionID, userID); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, fmt.Errorf("%w: name cannot be empty", ErrValidation)
	}

	if err := s.store.UpdateCollectionFields(ctx, collectionID, map[string]interface{}{"name": name}); err != nil {
		return nil, err
	}

	return s.Get(ctx, collectionID, userID)
}

// Delete - 컬렉션 삭제
func (s *Service) Delete(ctx context.Context, collectionID, userID string) error {
	if _, err := s.Get(ctx, collectionID, userID); err != nil {
		return err
	}
	return s.store.DeleteCollection(ctx, collectionID)
}

// Get - 단건 조회 (소유자 검증)
func (s *Service) Get(ctx context.Context, collectionID, userID string) (*model.Collection, error) {
	collection, err := s.store.FetchCollection(ctx, collectionID)
	if err != nil {
		return nil, err
	}
	if collection == nil {
		return nil, fmt.Errorf("%w: collection not found", ErrNotFound)
	}
	if collection.UserID != userID {
		return nil, fmt.Errorf("%w: not the owner of this collection", ErrForbidden)
	}
	return collection, nil
}

// ListPresets - 사용 가능한 DA 프리셋 전체
func (s *Service) ListPresets(ctx context.Context) ([]model.DAPreset, error) {
	presets, err := s.store.ListDAPresets(ctx)
	if err != nil {
		return nil, err
	}
	if presets == nil {
		presets = []model.DAPreset{}
	}
	return presets, nil
}

// AttachPreset - 컬렉션에 DA 프리셋 연결 + override 적용.
// final_da_json = preset.config에 overrides를 병합한 결과.
func (s *Service) AttachPreset(ctx context.Context, collectionID, userID, presetID string, overrides map[string]interface{}) (map[string]interface{}, error) {
	if _, err := s.Get(ctx, collectionID, userID); err != nil {
		return nil, err
	}

	var preset *model.DAPreset
	var err error
	if presetID != "" {
		preset, err = s.store.FetchDAPreset(ctx, presetID)
	} else {
		preset, err = s.store.FetchDefaultDAPreset(ctx)
	}
	if err != nil {
		return nil, err
	}
	if preset == nil {
		return nil, fmt.Errorf("%w: DA preset not found", ErrNotFound)
	}

	final := prompt.MergeJSON(preset.Config, overrides)
	if final == nil {
		final = map[string]interface{}{}
	}

	if err := s.store.UpdateCollectionDA(ctx, collectionID, preset.ID, overrides, final); err != nil {
		return nil, err
	}

	log.Printf("🎨 Collection %s linked to DA preset %s (%s)", collectionID, preset.ID, preset.Name)
	return final, nil
}

// FinalDAJSON - 컬렉션의 최종 DA JSON 조회 (저장값 우선, 없으면 재계산)
func (s *Service) FinalDAJSON(ctx context.Context, collectionID, userID string) (map[string]interface{}, error) {
	collection, err := s.Get(ctx, collectionID, userID)
	if err != nil {
		return nil, err
	}

	if len(collection.FinalDAJSON) > 0 {
		return collection.FinalDAJSON, nil
	}

	var preset *model.DAPreset
	if collection.DAPresetID != "" {
		preset, err = s.store.FetchDAPreset(ctx, collection.DAPresetID)
	} else {
		preset, err = s.store.FetchDefaultDAPreset(ctx)
	}
	if err != nil {
		return nil, err
	}

	base := map[string]interface{}{}
	if preset != nil {
		base = preset.Config
	}

	final := prompt.MergeJSON(base, collection.DAOverrides)
	if final == nil {
		final = map[string]interface{}{}
	}
	return final, nil
}
