package studypack

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Artifact instances. A pack has at most one live (not soft-deleted) instance
// per kind; Outcome holds the JSON summary of the last build or extension.

type FlashcardDeck struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	StudyPackID uuid.UUID      `gorm:"type:uuid;not null;index" json:"study_pack_id"`
	Outcome     datatypes.JSON `gorm:"column:outcome" json:"outcome,omitempty"`

	CreatedAt time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (FlashcardDeck) TableName() string { return "flashcard_deck" }

func (d *FlashcardDeck) BeforeCreate(*gorm.DB) error {
	ensureID(&d.ID)
	return nil
}

// SchedulingState is the spaced-repetition state a card starts with. This
// service only initialises it.
type SchedulingState struct {
	Interval    int       `json:"interval_days"`
	Repetitions int       `json:"repetitions"`
	Ease        float64   `json:"ease"`
	DueAt       time.Time `json:"due_at"`
}

func DefaultSchedulingState(now time.Time) SchedulingState {
	return SchedulingState{Interval: 0, Repetitions: 0, Ease: 2.5, DueAt: now.UTC()}
}

type Flashcard struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	DeckID      uuid.UUID `gorm:"type:uuid;not null;index" json:"deck_id"`
	StudyPackID uuid.UUID `gorm:"type:uuid;not null;index" json:"study_pack_id"`

	OrderIndex int            `gorm:"column:order_index;not null" json:"order_index"`
	Front      string         `gorm:"column:front;type:text;not null" json:"front"`
	Back       string         `gorm:"column:back;type:text;not null" json:"back"`
	Kind       string         `gorm:"column:kind;not null" json:"kind"`
	Topic      string         `gorm:"column:topic;index" json:"topic"`
	Scheduling datatypes.JSON `gorm:"column:scheduling" json:"scheduling"`

	CreatedAt time.Time      `gorm:"not null" json:"created_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Flashcard) TableName() string { return "flashcard" }

func (c *Flashcard) BeforeCreate(*gorm.DB) error {
	ensureID(&c.ID)
	if len(c.Scheduling) == 0 {
		b, err := json.Marshal(DefaultSchedulingState(time.Now()))
		if err != nil {
			return err
		}
		c.Scheduling = datatypes.JSON(b)
	}
	return nil
}

type Quiz struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	StudyPackID uuid.UUID      `gorm:"type:uuid;not null;index" json:"study_pack_id"`
	Outcome     datatypes.JSON `gorm:"column:outcome" json:"outcome,omitempty"`

	CreatedAt time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Quiz) TableName() string { return "quiz" }

func (q *Quiz) BeforeCreate(*gorm.DB) error {
	ensureID(&q.ID)
	return nil
}

type QuizItem struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	QuizID      uuid.UUID `gorm:"type:uuid;not null;index" json:"quiz_id"`
	StudyPackID uuid.UUID `gorm:"type:uuid;not null;index" json:"study_pack_id"`

	OrderIndex  int                         `gorm:"column:order_index;not null" json:"order_index"`
	Question    string                      `gorm:"column:question;type:text;not null" json:"question"`
	Options     datatypes.JSONSlice[string] `gorm:"column:options" json:"options"`
	Answer      string                      `gorm:"column:answer;type:text;not null" json:"answer"`
	Explanation string                      `gorm:"column:explanation;type:text" json:"explanation"`
	Topic       string                      `gorm:"column:topic;index" json:"topic"`

	CreatedAt time.Time      `gorm:"not null" json:"created_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (QuizItem) TableName() string { return "quiz_item" }

func (q *QuizItem) BeforeCreate(*gorm.DB) error {
	ensureID(&q.ID)
	return nil
}

type MindMap struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	StudyPackID uuid.UUID      `gorm:"type:uuid;not null;index" json:"study_pack_id"`
	Outcome     datatypes.JSON `gorm:"column:outcome" json:"outcome,omitempty"`

	CreatedAt time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (MindMap) TableName() string { return "mind_map" }

func (m *MindMap) BeforeCreate(*gorm.DB) error {
	ensureID(&m.ID)
	return nil
}

// MindMapNode forms a rooted tree per map: exactly one node has a nil ParentID.
type MindMapNode struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	MindMapID uuid.UUID  `gorm:"type:uuid;not null;index" json:"mind_map_id"`
	ParentID  *uuid.UUID `gorm:"type:uuid;index" json:"parent_id"`

	OrderIndex int    `gorm:"column:order_index;not null" json:"order_index"`
	Title      string `gorm:"column:title;not null" json:"title"`
	Content    string `gorm:"column:content;type:text" json:"content"`

	CreatedAt time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (MindMapNode) TableName() string { return "mind_map_node" }

func (n *MindMapNode) BeforeCreate(*gorm.DB) error {
	ensureID(&n.ID)
	return nil
}

// Models lists every table for AutoMigrate, parents before children.
func Models() []any {
	return []any{
		&StudyPack{},
		&Document{},
		&MaterialWindow{},
		&FlashcardDeck{},
		&Flashcard{},
		&Quiz{},
		&QuizItem{},
		&MindMap{},
		&MindMapNode{},
	}
}
