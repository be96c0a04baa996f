package materials

import (
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/neurobridge-studygen/internal/domain/studypack"
	"github.com/yungbote/neurobridge-studygen/internal/platform/dbctx"
	"github.com/yungbote/neurobridge-studygen/internal/platform/logger"
)

type DocumentRepo interface {
	Create(dbc dbctx.Context, doc *types.Document) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Document, error)
	GetByPackAndTitle(dbc dbctx.Context, packID uuid.UUID, title string) (*types.Document, error)
	ListByPack(dbc dbctx.Context, packID uuid.UUID) ([]*types.Document, error)
	SetWindowCount(dbc dbctx.Context, id uuid.UUID, n int) error
}

type documentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDocumentRepo(db *gorm.DB, baseLog *logger.Logger) DocumentRepo {
	return &documentRepo{db: db, log: baseLog.With("repo", "DocumentRepo")}
}

func (r *documentRepo) Create(dbc dbctx.Context, doc *types.Document) error {
	if doc == nil {
		return errors.New("document required")
	}
	doc.Title = strings.TrimSpace(doc.Title)
	return dbc.DB(r.db).Create(doc).Error
}

func (r *documentRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Document, error) {
	var doc types.Document
	err := dbc.DB(r.db).Where("id = ?", id).Take(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *documentRepo) GetByPackAndTitle(dbc dbctx.Context, packID uuid.UUID, title string) (*types.Document, error) {
	var doc types.Document
	err := dbc.DB(r.db).
		Where("study_pack_id = ? AND title = ?", packID, strings.TrimSpace(title)).
		Take(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *documentRepo) ListByPack(dbc dbctx.Context, packID uuid.UUID) ([]*types.Document, error) {
	var out []*types.Document
	if err := dbc.DB(r.db).
		Where("study_pack_id = ?", packID).
		Order("created_at ASC, id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *documentRepo) SetWindowCount(dbc dbctx.Context, id uuid.UUID, n int) error {
	return dbc.DB(r.db).
		Model(&types.Document{}).
		Where("id = ?", id).
		Update("window_count", n).Error
}
