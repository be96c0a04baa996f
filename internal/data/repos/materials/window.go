package materials

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/neurobridge-studygen/internal/domain/studypack"
	"github.com/yungbote/neurobridge-studygen/internal/platform/dbctx"
	"github.com/yungbote/neurobridge-studygen/internal/platform/logger"
)

// WindowRepo writes windows once per document and reads them back in order.
// There is no update path.
type WindowRepo interface {
	Create(dbc dbctx.Context, windows []*types.MaterialWindow) ([]*types.MaterialWindow, error)
	ListByDocument(dbc dbctx.Context, documentID uuid.UUID) ([]*types.MaterialWindow, error)
	ListByPack(dbc dbctx.Context, packID uuid.UUID) ([]*types.MaterialWindow, error)
	CountByDocument(dbc dbctx.Context, documentID uuid.UUID) (int64, error)
}

type windowRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewWindowRepo(db *gorm.DB, baseLog *logger.Logger) WindowRepo {
	return &windowRepo{db: db, log: baseLog.With("repo", "WindowRepo")}
}

func (r *windowRepo) Create(dbc dbctx.Context, windows []*types.MaterialWindow) ([]*types.MaterialWindow, error) {
	if len(windows) == 0 {
		return []*types.MaterialWindow{}, nil
	}
	// Keep batches small because Content is large
	const batchSize = 100
	if err := dbc.DB(r.db).CreateInBatches(windows, batchSize).Error; err != nil {
		return nil, err
	}
	return windows, nil
}

func (r *windowRepo) ListByDocument(dbc dbctx.Context, documentID uuid.UUID) ([]*types.MaterialWindow, error) {
	var out []*types.MaterialWindow
	if err := dbc.DB(r.db).
		Where("document_id = ?", documentID).
		Order("order_index ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// ListByPack returns every window of the pack's live documents, documents in
// creation order and windows in order_index order within each.
func (r *windowRepo) ListByPack(dbc dbctx.Context, packID uuid.UUID) ([]*types.MaterialWindow, error) {
	var out []*types.MaterialWindow
	if err := dbc.DB(r.db).
		Joins("JOIN document ON document.id = material_window.document_id AND document.deleted_at IS NULL").
		Where("document.study_pack_id = ?", packID).
		Order("document.created_at ASC, document.id ASC, material_window.order_index ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *windowRepo) CountByDocument(dbc dbctx.Context, documentID uuid.UUID) (int64, error) {
	var n int64
	err := dbc.DB(r.db).Model(&types.MaterialWindow{}).Where("document_id = ?", documentID).Count(&n).Error
	return n, err
}
