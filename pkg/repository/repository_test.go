package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"coinwall/pkg/db/option"
	"coinwall/services/testutil"
)

type widget struct {
	ID   string `gorm:"column:id;primaryKey"`
	Name string `gorm:"column:name;uniqueIndex"`
	Rank int    `gorm:"column:rank"`
}

func (widget) TableName() string { return "widgets" }

func newWidgetStore(t *testing.T) Repository[widget] {
	t.Helper()
	return ProvideStore[widget](testutil.NewTestDB(t, &widget{}))
}

func TestCreateAndFindOne(t *testing.T) {
	ctx := context.Background()
	repo := newWidgetStore(t)

	require.NoError(t, repo.Create(ctx, &widget{ID: "1", Name: "alpha", Rank: 1}))

	got, err := repo.FindOne(ctx, &widget{Name: "alpha"})
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "1", got.ID)

	missing, err := repo.FindOne(ctx, &widget{Name: "nope"})
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestCreateDuplicateTranslated(t *testing.T) {
	ctx := context.Background()
	repo := newWidgetStore(t)

	require.NoError(t, repo.Create(ctx, &widget{ID: "1", Name: "alpha"}))

	err := repo.Create(ctx, &widget{ID: "2", Name: "alpha"})
	require.Error(t, err)
	require.True(t, errors.Is(err, gorm.ErrDuplicatedKey))
}

func TestUpdateByID(t *testing.T) {
	ctx := context.Background()
	repo := newWidgetStore(t)

	require.NoError(t, repo.Create(ctx, &widget{ID: "1", Name: "alpha", Rank: 1}))
	require.NoError(t, repo.Update(ctx, "1", map[string]any{"rank": 9}))

	got, err := repo.FindOne(ctx, &widget{ID: "1"})
	require.NoError(t, err)
	require.Equal(t, 9, got.Rank)
}

func TestFindWithOptions(t *testing.T) {
	ctx := context.Background()
	repo := newWidgetStore(t)

	require.NoError(t, repo.BatchCreate(ctx, []*widget{
		{ID: "1", Name: "a", Rank: 3},
		{ID: "2", Name: "b", Rank: 1},
		{ID: "3", Name: "c", Rank: 2},
	}))

	got, err := repo.Find(ctx, &widget{},
		option.WithSortBy(option.QuerySortBy{
			SortBy:  "rank",
			OrderBy: "asc",
			Allow:   map[string]bool{"rank": true},
		}),
		option.WithLimit(2),
	)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "b", got[0].Name)
	require.Equal(t, "c", got[1].Name)

	count, err := repo.Count(ctx, &widget{})
	require.NoError(t, err)
	require.Equal(t, int64(3), count)
}
