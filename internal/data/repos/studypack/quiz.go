package studypack

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/yungbote/neurobridge-studygen/internal/domain/studypack"
	"github.com/yungbote/neurobridge-studygen/internal/platform/dbctx"
	"github.com/yungbote/neurobridge-studygen/internal/platform/logger"
)

type QuizRepo interface {
	CreateQuiz(dbc dbctx.Context, packID uuid.UUID) (*types.Quiz, error)
	GetLiveQuiz(dbc dbctx.Context, packID uuid.UUID) (*types.Quiz, error)
	SoftDeleteLiveQuiz(dbc dbctx.Context, packID uuid.UUID) error
	InsertItems(dbc dbctx.Context, items []*types.QuizItem) ([]*types.QuizItem, error)
	ListItems(dbc dbctx.Context, quizID uuid.UUID) ([]*types.QuizItem, error)
	CountItems(dbc dbctx.Context, quizID uuid.UUID) (int64, error)
	SetOutcome(dbc dbctx.Context, quizID uuid.UUID, outcome datatypes.JSON) error
}

type quizRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewQuizRepo(db *gorm.DB, baseLog *logger.Logger) QuizRepo {
	return &quizRepo{db: db, log: baseLog.With("repo", "QuizRepo")}
}

func (r *quizRepo) CreateQuiz(dbc dbctx.Context, packID uuid.UUID) (*types.Quiz, error) {
	q := &types.Quiz{StudyPackID: packID}
	if err := dbc.DB(r.db).Create(q).Error; err != nil {
		return nil, err
	}
	return q, nil
}

func (r *quizRepo) GetLiveQuiz(dbc dbctx.Context, packID uuid.UUID) (*types.Quiz, error) {
	var q types.Quiz
	err := dbc.DB(r.db).Where("study_pack_id = ?", packID).Take(&q).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &q, nil
}

func (r *quizRepo) SoftDeleteLiveQuiz(dbc dbctx.Context, packID uuid.UUID) error {
	q, err := r.GetLiveQuiz(dbc, packID)
	if errors.Is(err, types.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	db := dbc.DB(r.db)
	if err := db.Where("quiz_id = ?", q.ID).Delete(&types.QuizItem{}).Error; err != nil {
		return err
	}
	return db.Delete(&types.Quiz{}, "id = ?", q.ID).Error
}

func (r *quizRepo) InsertItems(dbc dbctx.Context, items []*types.QuizItem) ([]*types.QuizItem, error) {
	if len(items) == 0 {
		return []*types.QuizItem{}, nil
	}
	if err := dbc.DB(r.db).CreateInBatches(items, 100).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *quizRepo) ListItems(dbc dbctx.Context, quizID uuid.UUID) ([]*types.QuizItem, error) {
	var out []*types.QuizItem
	if err := dbc.DB(r.db).
		Where("quiz_id = ?", quizID).
		Order("order_index ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *quizRepo) CountItems(dbc dbctx.Context, quizID uuid.UUID) (int64, error) {
	var n int64
	err := dbc.DB(r.db).Model(&types.QuizItem{}).Where("quiz_id = ?", quizID).Count(&n).Error
	return n, err
}

func (r *quizRepo) SetOutcome(dbc dbctx.Context, quizID uuid.UUID, outcome datatypes.JSON) error {
	return dbc.DB(r.db).
		Model(&types.Quiz{}).
		Where("id = ?", quizID).
		Updates(map[string]any{"outcome": outcome, "updated_at": time.Now().UTC()}).Error
}
