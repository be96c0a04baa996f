package studypack

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/yungbote/neurobridge-studygen/internal/domain/studypack"
	"github.com/yungbote/neurobridge-studygen/internal/learning/mindmap"
	"github.com/yungbote/neurobridge-studygen/internal/platform/dbctx"
	"github.com/yungbote/neurobridge-studygen/internal/platform/logger"
)

type MindMapRepo interface {
	CreateMap(dbc dbctx.Context, packID uuid.UUID) (*types.MindMap, error)
	GetLiveMap(dbc dbctx.Context, packID uuid.UUID) (*types.MindMap, error)
	SoftDeleteLiveMap(dbc dbctx.Context, packID uuid.UUID) error
	// InsertNodes writes nodes in one ordered batch and returns their ids in
	// the same order.
	InsertNodes(dbc dbctx.Context, nodes []*types.MindMapNode) ([]uuid.UUID, error)
	UpdateParent(dbc dbctx.Context, nodeID uuid.UUID, parentID *uuid.UUID) error
	ListNodes(dbc dbctx.Context, mapID uuid.UUID) ([]*types.MindMapNode, error)
	SetOutcome(dbc dbctx.Context, mapID uuid.UUID, outcome datatypes.JSON) error
}

type mindMapRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMindMapRepo(db *gorm.DB, baseLog *logger.Logger) MindMapRepo {
	return &mindMapRepo{db: db, log: baseLog.With("repo", "MindMapRepo")}
}

func (r *mindMapRepo) CreateMap(dbc dbctx.Context, packID uuid.UUID) (*types.MindMap, error) {
	m := &types.MindMap{StudyPackID: packID}
	if err := dbc.DB(r.db).Create(m).Error; err != nil {
		return nil, err
	}
	return m, nil
}

func (r *mindMapRepo) GetLiveMap(dbc dbctx.Context, packID uuid.UUID) (*types.MindMap, error) {
	var m types.MindMap
	err := dbc.DB(r.db).Where("study_pack_id = ?", packID).Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *mindMapRepo) SoftDeleteLiveMap(dbc dbctx.Context, packID uuid.UUID) error {
	m, err := r.GetLiveMap(dbc, packID)
	if errors.Is(err, types.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	db := dbc.DB(r.db)
	if err := db.Where("mind_map_id = ?", m.ID).Delete(&types.MindMapNode{}).Error; err != nil {
		return err
	}
	return db.Delete(&types.MindMap{}, "id = ?", m.ID).Error
}

func (r *mindMapRepo) InsertNodes(dbc dbctx.Context, nodes []*types.MindMapNode) ([]uuid.UUID, error) {
	if len(nodes) == 0 {
		return []uuid.UUID{}, nil
	}
	for _, n := range nodes {
		if n.ID == uuid.Nil {
			n.ID = uuid.New()
		}
	}
	if err := dbc.DB(r.db).CreateInBatches(nodes, 100).Error; err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID
	}
	return ids, nil
}

func (r *mindMapRepo) UpdateParent(dbc dbctx.Context, nodeID uuid.UUID, parentID *uuid.UUID) error {
	res := dbc.DB(r.db).
		Model(&types.MindMapNode{}).
		Where("id = ?", nodeID).
		Updates(map[string]any{"parent_id": parentID, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return types.ErrNotFound
	}
	return nil
}

func (r *mindMapRepo) ListNodes(dbc dbctx.Context, mapID uuid.UUID) ([]*types.MindMapNode, error) {
	var out []*types.MindMapNode
	if err := dbc.DB(r.db).
		Where("mind_map_id = ?", mapID).
		Order("order_index ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *mindMapRepo) SetOutcome(dbc dbctx.Context, mapID uuid.UUID, outcome datatypes.JSON) error {
	return dbc.DB(r.db).
		Model(&types.MindMap{}).
		Where("id = ?", mapID).
		Updates(map[string]any{"outcome": outcome, "updated_at": time.Now().UTC()}).Error
}

// NodeStore binds a MindMapRepo to one map so the resolver can write through it.
func NodeStore(repo MindMapRepo, tx *gorm.DB, mapID uuid.UUID) mindmap.NodeStore {
	return &nodeStore{repo: repo, tx: tx, mapID: mapID}
}

type nodeStore struct {
	repo  MindMapRepo
	tx    *gorm.DB
	mapID uuid.UUID
}

func (s *nodeStore) InsertNodes(ctx context.Context, nodes []mindmap.NewNode) ([]uuid.UUID, error) {
	rows := make([]*types.MindMapNode, len(nodes))
	for i, n := range nodes {
		rows[i] = &types.MindMapNode{
			MindMapID:  s.mapID,
			ParentID:   n.ParentID,
			OrderIndex: n.OrderIndex,
			Title:      n.Title,
			Content:    n.Content,
		}
	}
	return s.repo.InsertNodes(dbctx.Context{Ctx: ctx, Tx: s.tx}, rows)
}

func (s *nodeStore) UpdateParent(ctx context.Context, id, parentID uuid.UUID) error {
	p := parentID
	return s.repo.UpdateParent(dbctx.Context{Ctx: ctx, Tx: s.tx}, id, &p)
}
