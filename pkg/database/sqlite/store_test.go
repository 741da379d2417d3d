package sqlite

import (
	"NAS_Gallery/internal/models"
	"NAS_Gallery/pkg/database"
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "nested", "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.EnsureIndexes(context.Background()))
	t.Cleanup(func() { s.Close(context.Background()) })
	return s
}

func TestAlbumStore(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	a1, err := s.Albums().FindOrCreateByPath(ctx, "CoserA/Album", "Album")
	require.NoError(t, err)
	require.NotEmpty(t, a1.ID)
	assert.Equal(t, "CoserA/Album", a1.Path)
	assert.Empty(t, a1.TagIDs)

	a2, err := s.Albums().FindOrCreateByPath(ctx, "CoserA/Album", "Other Title")
	require.NoError(t, err)
	assert.Equal(t, a1.ID, a2.ID)
	assert.Equal(t, "Album", a2.Title, "existing album keeps its title")

	t.Run("attach tags is a union", func(t *testing.T) {
		require.NoError(t, s.Albums().AttachTags(ctx, a1.ID, []string{"t1", "t2"}))
		require.NoError(t, s.Albums().AttachTags(ctx, a1.ID, []string{"t2", "t3"}))
		require.NoError(t, s.Albums().AttachTags(ctx, a1.ID, nil))

		got, err := s.Albums().GetByID(ctx, a1.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{"t1", "t2", "t3"}, got.TagIDs)
	})

	t.Run("blurhash only set once", func(t *testing.T) {
		require.NoError(t, s.Albums().SetBlurhashIfUnset(ctx, a1.ID, "first"))
		require.NoError(t, s.Albums().SetBlurhashIfUnset(ctx, a1.ID, "second"))

		got, err := s.Albums().GetByID(ctx, a1.ID)
		require.NoError(t, err)
		require.NotNil(t, got.Blurhash)
		assert.Equal(t, "first", *got.Blurhash)
	})

	t.Run("missing album", func(t *testing.T) {
		got, err := s.Albums().GetByID(ctx, "nope")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("list and get by ids", func(t *testing.T) {
		b, err := s.Albums().FindOrCreateByPath(ctx, ".", "Root")
		require.NoError(t, err)

		albums, total, err := s.Albums().List(ctx, 1, 10)
		require.NoError(t, err)
		assert.EqualValues(t, 2, total)
		require.Len(t, albums, 2)
		assert.Equal(t, ".", albums[0].Path)

		byIDs, err := s.Albums().GetByIDs(ctx, []string{b.ID})
		require.NoError(t, err)
		require.Len(t, byIDs, 1)
		assert.Equal(t, "Root", byIDs[0].Title)
	})
}

func TestImageAndFingerprintStore(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	album, err := s.Albums().FindOrCreateByPath(ctx, "A", "A")
	require.NoError(t, err)

	pic := &models.Image{AlbumID: album.ID, FileName: "a.jpg", RelPath: "A/a.jpg", FileHash: "hash-a", MediaType: models.MediaPicture}
	vid := &models.Image{AlbumID: album.ID, FileName: "b.mp4", RelPath: "A/b.mp4", FileHash: "hash-b", MediaType: models.MediaVideo}
	require.NoError(t, s.Images().Create(ctx, pic))
	require.NoError(t, s.Images().Create(ctx, vid))

	exists, err := s.Images().ExistsByFileHash(ctx, "hash-a")
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = s.Images().ExistsByFileHash(ctx, "hash-z")
	require.NoError(t, err)
	assert.False(t, exists)

	dup := &models.Image{AlbumID: album.ID, FileName: "c.jpg", RelPath: "A/c.jpg", FileHash: "hash-a", MediaType: models.MediaPicture}
	assert.Error(t, s.Images().Create(ctx, dup), "file hash is unique")

	pending, err := s.Images().ListWithoutFingerprint(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, pic.ID, pending[0].ID)

	require.NoError(t, s.Fingerprints().Create(ctx, &models.Fingerprint{ImageID: pic.ID, AlbumID: album.ID, FileName: "a.jpg", PHash: "00ff00ff00ff00ff"}))
	pending, err = s.Images().ListWithoutFingerprint(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, pending)

	fps, err := s.Fingerprints().FindByPHash(ctx, "00ff00ff00ff00ff", 10)
	require.NoError(t, err)
	require.Len(t, fps, 1)
	assert.Equal(t, pic.ID, fps[0].ImageID)

	images, total, err := s.Images().ListByAlbumID(ctx, album.ID, 1, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	require.Len(t, images, 1)
	assert.Equal(t, "a.jpg", images[0].FileName)
}

func TestTagStore(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	tag := &models.Tag{Name: "明日方舟", Category: models.TagSeries, Initial: "M"}
	require.NoError(t, s.Tags().Create(ctx, tag))
	assert.Error(t, s.Tags().Create(ctx, &models.Tag{Name: "明日方舟", Category: models.TagOther}))

	_, err := s.Tags().CreateAlias(ctx, "Arknights", tag.ID)
	require.NoError(t, err)
	_, err = s.Tags().CreateAlias(ctx, "Arknights", tag.ID)
	assert.Error(t, err, "alias is unique")

	got, err := s.Tags().FindAlias(ctx, "Arknights")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, tag.ID, got.ID)
	assert.Equal(t, "明日方舟", got.Name)

	none, err := s.Tags().FindAlias(ctx, "Unknown")
	require.NoError(t, err)
	assert.Nil(t, none)

	byName, err := s.Tags().GetByName(ctx, "明日方舟")
	require.NoError(t, err)
	require.NotNil(t, byName)
	assert.Equal(t, models.TagSeries, byName.Category)
}

func TestWithTransactionRollsBack(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	boom := errors.New("boom")

	err := s.WithTransaction(ctx, func(ctx context.Context, tx database.Store) error {
		album, err := tx.Albums().FindOrCreateByPath(ctx, "T", "T")
		if err != nil {
			return err
		}
		if err := tx.Images().Create(ctx, &models.Image{AlbumID: album.ID, FileName: "x", RelPath: "T/x", FileHash: "hx", MediaType: models.MediaPicture}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	albums, total, err := s.Albums().List(ctx, 1, 10)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, albums)
	exists, err := s.Images().ExistsByFileHash(ctx, "hx")
	require.NoError(t, err)
	assert.False(t, exists)
}
