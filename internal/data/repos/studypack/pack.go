package studypack

import (
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/neurobridge-studygen/internal/domain/studypack"
	"github.com/yungbote/neurobridge-studygen/internal/platform/dbctx"
	"github.com/yungbote/neurobridge-studygen/internal/platform/logger"
)

type StudyPackRepo interface {
	Create(dbc dbctx.Context, pack *types.StudyPack) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.StudyPack, error)
	List(dbc dbctx.Context, limit int) ([]*types.StudyPack, error)
}

type studyPackRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewStudyPackRepo(db *gorm.DB, baseLog *logger.Logger) StudyPackRepo {
	return &studyPackRepo{db: db, log: baseLog.With("repo", "StudyPackRepo")}
}

func (r *studyPackRepo) Create(dbc dbctx.Context, pack *types.StudyPack) error {
	if pack == nil {
		return errors.New("study pack required")
	}
	pack.Title = strings.TrimSpace(pack.Title)
	return dbc.DB(r.db).Create(pack).Error
}

func (r *studyPackRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.StudyPack, error) {
	var p types.StudyPack
	err := dbc.DB(r.db).Where("id = ?", id).Take(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *studyPackRepo) List(dbc dbctx.Context, limit int) ([]*types.StudyPack, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var out []*types.StudyPack
	if err := dbc.DB(r.db).Order("created_at DESC, id ASC").Limit(limit).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
