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

type FlashcardRepo interface {
	CreateDeck(dbc dbctx.Context, packID uuid.UUID) (*types.FlashcardDeck, error)
	GetLiveDeck(dbc dbctx.Context, packID uuid.UUID) (*types.FlashcardDeck, error)
	// SoftDeleteLiveDeck retires the pack's live deck and its cards. No-op when
	// there is none.
	SoftDeleteLiveDeck(dbc dbctx.Context, packID uuid.UUID) error
	InsertCards(dbc dbctx.Context, cards []*types.Flashcard) ([]*types.Flashcard, error)
	ListCards(dbc dbctx.Context, deckID uuid.UUID) ([]*types.Flashcard, error)
	CountCards(dbc dbctx.Context, deckID uuid.UUID) (int64, error)
	SetOutcome(dbc dbctx.Context, deckID uuid.UUID, outcome datatypes.JSON) error
}

type flashcardRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewFlashcardRepo(db *gorm.DB, baseLog *logger.Logger) FlashcardRepo {
	return &flashcardRepo{db: db, log: baseLog.With("repo", "FlashcardRepo")}
}

func (r *flashcardRepo) CreateDeck(dbc dbctx.Context, packID uuid.UUID) (*types.FlashcardDeck, error) {
	deck := &types.FlashcardDeck{StudyPackID: packID}
	if err := dbc.DB(r.db).Create(deck).Error; err != nil {
		return nil, err
	}
	return deck, nil
}

func (r *flashcardRepo) GetLiveDeck(dbc dbctx.Context, packID uuid.UUID) (*types.FlashcardDeck, error) {
	var deck types.FlashcardDeck
	err := dbc.DB(r.db).Where("study_pack_id = ?", packID).Take(&deck).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &deck, nil
}

func (r *flashcardRepo) SoftDeleteLiveDeck(dbc dbctx.Context, packID uuid.UUID) error {
	deck, err := r.GetLiveDeck(dbc, packID)
	if errors.Is(err, types.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	db := dbc.DB(r.db)
	if err := db.Where("deck_id = ?", deck.ID).Delete(&types.Flashcard{}).Error; err != nil {
		return err
	}
	return db.Delete(&types.FlashcardDeck{}, "id = ?", deck.ID).Error
}

func (r *flashcardRepo) InsertCards(dbc dbctx.Context, cards []*types.Flashcard) ([]*types.Flashcard, error) {
	if len(cards) == 0 {
		return []*types.Flashcard{}, nil
	}
	if err := dbc.DB(r.db).CreateInBatches(cards, 100).Error; err != nil {
		return nil, err
	}
	return cards, nil
}

func (r *flashcardRepo) ListCards(dbc dbctx.Context, deckID uuid.UUID) ([]*types.Flashcard, error) {
	var out []*types.Flashcard
	if err := dbc.DB(r.db).
		Where("deck_id = ?", deckID).
		Order("order_index ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *flashcardRepo) CountCards(dbc dbctx.Context, deckID uuid.UUID) (int64, error) {
	var n int64
	err := dbc.DB(r.db).Model(&types.Flashcard{}).Where("deck_id = ?", deckID).Count(&n).Error
	return n, err
}

func (r *flashcardRepo) SetOutcome(dbc dbctx.Context, deckID uuid.UUID, outcome datatypes.JSON) error {
	return dbc.DB(r.db).
		Model(&types.FlashcardDeck{}).
		Where("id = ?", deckID).
		Updates(map[string]any{"outcome": outcome, "updated_at": time.Now().UTC()}).Error
}
