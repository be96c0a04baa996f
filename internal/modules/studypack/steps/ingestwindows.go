package steps

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/neurobridge-studygen/internal/data/db"
	materialrepos "github.com/yungbote/neurobridge-studygen/internal/data/repos/materials"
	packrepos "github.com/yungbote/neurobridge-studygen/internal/data/repos/studypack"
	types "github.com/yungbote/neurobridge-studygen/internal/domain/studypack"
	"github.com/yungbote/neurobridge-studygen/internal/learning/chunking"
	"github.com/yungbote/neurobridge-studygen/internal/learning/convergence"
	"github.com/yungbote/neurobridge-studygen/internal/platform/dbctx"
	"github.com/yungbote/neurobridge-studygen/internal/platform/logger"
)

type IngestWindowsDeps struct {
	DB        *gorm.DB
	Log       *logger.Logger
	Packs     packrepos.StudyPackRepo
	Documents materialrepos.DocumentRepo
	Windows   materialrepos.WindowRepo
	Chunking  chunking.Config
}

type IngestWindowsInput struct {
	StudyPackID uuid.UUID
	Title       string
	Text        string
	SourceURI   string
}

type IngestWindowsOutput struct {
	DocumentID  uuid.UUID `json:"document_id"`
	WindowCount int       `json:"window_count"`
	// Reused is set when the document was already ingested; its windows are
	// returned untouched.
	Reused bool `json:"reused,omitempty"`
}

// IngestWindows segments text into sentence units, packs them into overlapping
// windows and persists them once per (pack, title).
func IngestWindows(ctx context.Context, deps IngestWindowsDeps, in IngestWindowsInput) (IngestWindowsOutput, error) {
	out := IngestWindowsOutput{}
	if deps.DB == nil || deps.Log == nil || deps.Packs == nil || deps.Documents == nil || deps.Windows == nil {
		return out, fmt.Errorf("ingest_windows: missing deps")
	}
	if in.StudyPackID == uuid.Nil {
		return out, fmt.Errorf("ingest_windows: missing study_pack_id")
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return out, fmt.Errorf("ingest_windows: missing title")
	}
	if err := deps.Chunking.Validate(); err != nil {
		return out, fmt.Errorf("ingest_windows: %w", err)
	}
	log := deps.Log.With("step", "ingest_windows", "study_pack_id", in.StudyPackID.String())

	if _, err := deps.Packs.GetByID(dbctx.Context{Ctx: ctx}, in.StudyPackID); err != nil {
		return out, err
	}

	existing, err := deps.Documents.GetByPackAndTitle(dbctx.Context{Ctx: ctx}, in.StudyPackID, title)
	switch {
	case err == nil:
		n, err := deps.Windows.CountByDocument(dbctx.Context{Ctx: ctx}, existing.ID)
		if err != nil {
			return out, err
		}
		log.Info("document already ingested", "document_id", existing.ID.String(), "windows", n)
		return IngestWindowsOutput{DocumentID: existing.ID, WindowCount: int(n), Reused: true}, nil
	case !errors.Is(err, types.ErrNotFound):
		return out, err
	}

	windows, err := chunking.Chunk(in.Text, deps.Chunking)
	if errors.Is(err, chunking.ErrEmptyInput) {
		return out, convergence.NewError(convergence.CodeEmptyInput, "ingest_windows", "document has no text", err)
	}
	if err != nil {
		return out, fmt.Errorf("ingest_windows: %w", err)
	}

	doc := &types.Document{
		StudyPackID: in.StudyPackID,
		Title:       title,
		SourceURI:   strings.TrimSpace(in.SourceURI),
		CharCount:   utf8.RuneCountInString(in.Text),
		WindowCount: len(windows),
	}
	err = deps.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		if err := deps.Documents.Create(dbc, doc); err != nil {
			return err
		}
		rows := make([]*types.MaterialWindow, len(windows))
		for i, w := range windows {
			rows[i] = &types.MaterialWindow{
				DocumentID:   doc.ID,
				OrderIndex:   w.OrderIndex,
				Content:      w.Content,
				SizeEstimate: w.SizeEstimate,
				UnitStart:    w.UnitStart,
				UnitEnd:      w.UnitEnd,
			}
		}
		_, err := deps.Windows.Create(dbc, rows)
		return err
	})
	if db.IsUniqueViolation(err) {
		// a concurrent ingest of the same title won
		winner, getErr := deps.Documents.GetByPackAndTitle(dbctx.Context{Ctx: ctx}, in.StudyPackID, title)
		if getErr == nil {
			log.Info("document ingested concurrently", "document_id", winner.ID.String())
			return IngestWindowsOutput{DocumentID: winner.ID, WindowCount: winner.WindowCount, Reused: true}, nil
		}
	}
	if err != nil {
		return out, convergence.PersistenceFailure("ingest_windows", len(windows), err)
	}

	log.Info("document ingested", "document_id", doc.ID.String(), "windows", len(windows), "chars", doc.CharCount)
	return IngestWindowsOutput{DocumentID: doc.ID, WindowCount: len(windows)}, nil
}
