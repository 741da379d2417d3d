package scanner

import (
	"NAS_Gallery/internal/models"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePathTags(t *testing.T) {
	tests := []struct {
		name string
		rel  string
		want []TagRef
	}{
		{
			name: "full convention",
			rel:  "CoserA/CoserA - SeriesB - CharC/pic.jpg",
			want: []TagRef{
				{"CoserA", models.TagCoser},
				{"SeriesB", models.TagSeries},
				{"CharC", models.TagCharacter},
			},
		},
		{
			name: "series only",
			rel:  "CoserA/CoserA - SeriesB/pic.jpg",
			want: []TagRef{{"CoserA", models.TagCoser}, {"SeriesB", models.TagSeries}},
		},
		{
			name: "no delimiter",
			rel:  "CoserA/Summer/pic.jpg",
			want: []TagRef{{"CoserA", models.TagCoser}},
		},
		{
			name: "file directly under coser",
			rel:  "CoserA/pic.jpg",
			want: []TagRef{{"CoserA", models.TagCoser}},
		},
		{
			name: "root file",
			rel:  "pic.jpg",
			want: nil,
		},
		{
			name: "empty tokens skipped",
			rel:  "CoserA/CoserA -  - CharC/pic.jpg",
			want: []TagRef{{"CoserA", models.TagCoser}, {"CharC", models.TagCharacter}},
		},
		{
			name: "tokens trimmed",
			rel:  "CoserA/x - 明日方舟  - 阿米娅 /video/a.mp4",
			want: []TagRef{
				{"CoserA", models.TagCoser},
				{"明日方舟", models.TagSeries},
				{"阿米娅", models.TagCharacter},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParsePathTags(tt.rel))
		})
	}
}

func TestTagInitial(t *testing.T) {
	assert.Equal(t, "M", TagInitial("明日方舟"))
	assert.Equal(t, "E", TagInitial("éclair"))
	assert.Equal(t, "A", TagInitial("  amiya"))
	assert.Equal(t, "#", TagInitial("2B"))
	assert.Equal(t, "#", TagInitial(""))
	assert.Equal(t, "#", TagInitial("!!!"))
}

func TestTagResolver(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	r := NewTagResolver(store.Tags(), time.Minute)

	t.Run("creates once then reuses", func(t *testing.T) {
		first, err := r.Resolve(ctx, "CoserA", models.TagCoser)
		require.NoError(t, err)
		assert.Equal(t, models.TagCoser, first.Category)
		assert.Equal(t, "C", first.Initial)

		r.Flush()
		second, err := r.Resolve(ctx, "CoserA", models.TagSeries)
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, models.TagCoser, second.Category, "existing tag keeps its category")
	})

	t.Run("alias wins over creation", func(t *testing.T) {
		canonical := &models.Tag{Name: "明日方舟", Category: models.TagSeries, Initial: "M"}
		require.NoError(t, store.Tags().Create(ctx, canonical))
		_, err := store.Tags().CreateAlias(ctx, "Arknights", canonical.ID)
		require.NoError(t, err)

		got, err := r.Resolve(ctx, "Arknights", models.TagSeries)
		require.NoError(t, err)
		assert.Equal(t, canonical.ID, got.ID)
		assert.Equal(t, "明日方舟", got.Name)

		literal, err := store.Tags().GetByName(ctx, "Arknights")
		require.NoError(t, err)
		assert.Nil(t, literal)
	})

	t.Run("resolve all dedupes", func(t *testing.T) {
		tags, err := r.ResolveAll(ctx, "Same/Same - Same/pic.jpg")
		require.NoError(t, err)
		require.Len(t, tags, 1)
		assert.Equal(t, "Same", tags[0].Name)
	})
}
