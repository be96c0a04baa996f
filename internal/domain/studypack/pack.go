// Package studypack holds the persisted models of study packs, their source
// windows, and the generated artifacts.
package studypack

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ArtifactKind names one family of generated records.
type ArtifactKind string

const (
	KindFlashcards ArtifactKind = "flashcards"
	KindQuiz       ArtifactKind = "quiz"
	KindMindMap    ArtifactKind = "mindmap"
)

func AllKinds() []ArtifactKind {
	return []ArtifactKind{KindFlashcards, KindQuiz, KindMindMap}
}

func ParseKind(s string) (ArtifactKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "flashcards", "flashcard", "cards":
		return KindFlashcards, nil
	case "quiz", "quizzes", "quiz_items":
		return KindQuiz, nil
	case "mindmap", "mind_map", "mind-map", "conceptmap":
		return KindMindMap, nil
	}
	return "", fmt.Errorf("unknown artifact kind %q", s)
}

type StudyPack struct {
	ID    uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Title string    `gorm:"column:title;not null" json:"title"`

	CreatedAt time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (StudyPack) TableName() string { return "study_pack" }

func (p *StudyPack) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}

// Document is one ingested text source. Its windows are written once.
type Document struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	StudyPackID uuid.UUID  `gorm:"type:uuid;not null;index;uniqueIndex:idx_document_pack_title" json:"study_pack_id"`
	StudyPack   *StudyPack `gorm:"constraint:OnDelete:CASCADE;foreignKey:StudyPackID;references:ID" json:"-"`

	Title       string `gorm:"column:title;not null;uniqueIndex:idx_document_pack_title" json:"title"`
	SourceURI   string `gorm:"column:source_uri" json:"source_uri,omitempty"`
	CharCount   int    `gorm:"column:char_count;not null" json:"char_count"`
	WindowCount int    `gorm:"column:window_count;not null" json:"window_count"`

	CreatedAt time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Document) TableName() string { return "document" }

func (d *Document) BeforeCreate(*gorm.DB) error {
	ensureID(&d.ID)
	return nil
}

// MaterialWindow is a bounded, overlapping excerpt of a document. OrderIndex is
// contiguous from 0 per document. Rows are immutable after ingestion.
type MaterialWindow struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	DocumentID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_window_document_order" json:"document_id"`
	Document   *Document `gorm:"constraint:OnDelete:CASCADE;foreignKey:DocumentID;references:ID" json:"-"`

	OrderIndex   int    `gorm:"column:order_index;not null;uniqueIndex:idx_window_document_order" json:"order_index"`
	Content      string `gorm:"column:content;type:text;not null" json:"content"`
	SizeEstimate int    `gorm:"column:size_estimate;not null" json:"size_estimate"`
	UnitStart    int    `gorm:"column:unit_start;not null" json:"unit_start"`
	UnitEnd      int    `gorm:"column:unit_end;not null" json:"unit_end"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

func (MaterialWindow) TableName() string { return "material_window" }

func (w *MaterialWindow) BeforeCreate(*gorm.DB) error {
	ensureID(&w.ID)
	return nil
}

func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

// ErrNotFound is returned by lookups that match no live row.
var ErrNotFound = errors.New("not found")
