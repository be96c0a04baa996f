package testutil

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/neurobridge-studygen/internal/domain/studypack"
)

func SeedStudyPack(tb testing.TB, ctx context.Context, tx *gorm.DB, title string) *types.StudyPack {
	tb.Helper()
	p := &types.StudyPack{ID: uuid.New(), Title: title}
	if err := tx.WithContext(ctx).Create(p).Error; err != nil {
		tb.Fatalf("seed study pack: %v", err)
	}
	return p
}

func SeedDocument(tb testing.TB, ctx context.Context, tx *gorm.DB, packID uuid.UUID, title string) *types.Document {
	tb.Helper()
	d := &types.Document{ID: uuid.New(), StudyPackID: packID, Title: title}
	if err := tx.WithContext(ctx).Create(d).Error; err != nil {
		tb.Fatalf("seed document: %v", err)
	}
	return d
}

// SeedWindows writes n windows with contents "<prefix> 0" .. "<prefix> n-1".
func SeedWindows(tb testing.TB, ctx context.Context, tx *gorm.DB, docID uuid.UUID, prefix string, n int) []*types.MaterialWindow {
	tb.Helper()
	out := make([]*types.MaterialWindow, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, &types.MaterialWindow{
			ID:           uuid.New(),
			DocumentID:   docID,
			OrderIndex:   i,
			Content:      fmt.Sprintf("%s %d", prefix, i),
			SizeEstimate: 10,
			UnitStart:    i,
			UnitEnd:      i + 1,
		})
	}
	if n > 0 {
		if err := tx.WithContext(ctx).Create(&out).Error; err != nil {
			tb.Fatalf("seed windows: %v", err)
		}
	}
	return out
}
