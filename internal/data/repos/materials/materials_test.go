package materials

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/yungbote/neurobridge-studygen/internal/data/repos/testutil"
	types "github.com/yungbote/neurobridge-studygen/internal/domain/studypack"
	"github.com/yungbote/neurobridge-studygen/internal/platform/dbctx"
)

func TestDocumentRepo(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}

	pack := testutil.SeedStudyPack(t, ctx, tx, "biology")
	repo := NewDocumentRepo(db, testutil.Logger(t))

	doc := &types.Document{StudyPackID: pack.ID, Title: "  cells  ", CharCount: 120}
	require.NoError(t, repo.Create(dbc, doc))
	require.NotEqual(t, uuid.Nil, doc.ID)
	require.Equal(t, "cells", doc.Title)

	got, err := repo.GetByPackAndTitle(dbc, pack.ID, "cells")
	require.NoError(t, err)
	require.Equal(t, doc.ID, got.ID)

	_, err = repo.GetByPackAndTitle(dbc, pack.ID, "missing")
	require.ErrorIs(t, err, types.ErrNotFound)
	_, err = repo.GetByID(dbc, uuid.New())
	require.ErrorIs(t, err, types.ErrNotFound)

	require.Error(t, testutil.Savepoint(t, tx, func(inner *gorm.DB) error {
		return repo.Create(dbc.WithTx(inner), &types.Document{StudyPackID: pack.ID, Title: "cells"})
	}))

	require.NoError(t, repo.SetWindowCount(dbc, doc.ID, 7))
	got, err = repo.GetByID(dbc, doc.ID)
	require.NoError(t, err)
	require.Equal(t, 7, got.WindowCount)

	list, err := repo.ListByPack(dbc, pack.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestWindowRepoOrdering(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}

	pack := testutil.SeedStudyPack(t, ctx, tx, "history")
	first := testutil.SeedDocument(t, ctx, tx, pack.ID, "first")
	second := &types.Document{StudyPackID: pack.ID, Title: "second", CreatedAt: first.CreatedAt.Add(time.Second)}
	require.NoError(t, tx.Create(second).Error)

	repo := NewWindowRepo(db, testutil.Logger(t))

	// insert second document's windows first, out of order
	_, err := repo.Create(dbc, []*types.MaterialWindow{
		{DocumentID: second.ID, OrderIndex: 1, Content: "b1", SizeEstimate: 1},
		{DocumentID: second.ID, OrderIndex: 0, Content: "b0", SizeEstimate: 1},
	})
	require.NoError(t, err)
	testutil.SeedWindows(t, ctx, tx, first.ID, "a", 3)

	byDoc, err := repo.ListByDocument(dbc, second.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"b0", "b1"}, contents(byDoc))

	byPack, err := repo.ListByPack(dbc, pack.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"a 0", "a 1", "a 2", "b0", "b1"}, contents(byPack))

	n, err := repo.CountByDocument(dbc, first.ID)
	require.NoError(t, err)
	require.EqualValues(t, 3, n)

	// order index is unique per document
	require.Error(t, testutil.Savepoint(t, tx, func(inner *gorm.DB) error {
		_, err := repo.Create(dbc.WithTx(inner), []*types.MaterialWindow{{DocumentID: first.ID, OrderIndex: 0, Content: "dup", SizeEstimate: 1}})
		return err
	}))

	empty, err := repo.Create(dbc, nil)
	require.NoError(t, err)
	require.Empty(t, empty)
}

func contents(ws []*types.MaterialWindow) []string {
	out := make([]string, len(ws))
	for i, w := range ws {
		out[i] = w.Content
	}
	return out
}
