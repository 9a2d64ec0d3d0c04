package catalog_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/pankajkoti/data-lake-with-spark/internal/catalog"
	"github.com/pankajkoti/data-lake-with-spark/internal/lake"
	"github.com/pankajkoti/data-lake-with-spark/internal/records"
	"github.com/pankajkoti/data-lake-with-spark/internal/storage"
)

const songData = `{"num_songs": 1, "artist_id": "ARD7TVE1187B99BFB1", "artist_latitude": null, "artist_longitude": null, "artist_location": "California - LA", "artist_name": "Casual", "song_id": "SOMZWCG12A8C13C480", "title": "I Didn't Mean To", "duration": 218.93179, "year": 0}
{"num_songs": 1, "artist_id": "ARD7TVE1187B99BFB1", "artist_latitude": null, "artist_longitude": null, "artist_location": "California - LA", "artist_name": "Casual", "song_id": "SOMZWCG12A8C13C480", "title": "I Didn't Mean To", "duration": 218.93179, "year": 0}
{"num_songs": 1, "artist_id": "ARD7TVE1187B99BFB1", "artist_latitude": null, "artist_longitude": null, "artist_location": "California - LA", "artist_name": "Casual", "song_id": "SOXXXXX12A8C13C999", "title": "Another One", "duration": 100.5, "year": 2001}
{"num_songs": 1, "artist_id": "ARD7TVE1187B99BFB1", "artist_latitude": 34.05, "artist_longitude": -118.24, "artist_location": "Los Angeles", "artist_name": "Casual", "song_id": "SOMZWCG12A8C13C480", "title": "I Didn't Mean To", "duration": 218.93179, "year": 2001}
{"num_songs": 1, "artist_id": "AR1", "artist_name": "Elvis", "song_id": "S2", "title": "Hound Dog", "duration": "long", "year": 1956}
`

func decode(t *testing.T) []records.Song {
	t.Helper()
	songs, _, err := records.DecodeSongs(strings.NewReader(songData))
	require.NoError(t, err)
	return songs
}

func TestExtractSongs(t *testing.T) {
	src := decode(t)
	tables := catalog.Extract(src)

	require.Len(t, tables.Songs, 4, "exact duplicate rows collapse, rows differing in any column stay")

	for _, song := range tables.Songs {
		require.NotNil(t, song.SongID)

		found := false
		for _, rec := range src {
			if rec.SongID != nil && *rec.SongID == *song.SongID &&
				assert.ObjectsAreEqual(rec.Title, song.Title) &&
				assert.ObjectsAreEqual(rec.ArtistID, song.ArtistID) &&
				assert.ObjectsAreEqual(rec.Year, song.Year) &&
				assert.ObjectsAreEqual(rec.Duration, song.Duration) {
				found = true
			}
		}
		assert.True(t, found, "song %s has no source record", *song.SongID)
	}

	for i := range tables.Songs {
		for j := i + 1; j < len(tables.Songs); j++ {
			assert.False(t, assert.ObjectsAreEqual(tables.Songs[i], tables.Songs[j]), "rows %d and %d are identical", i, j)
		}
	}

	elvis := tables.Songs[3]
	assert.Equal(t, "S2", *elvis.SongID)
	assert.Nil(t, elvis.Duration, "coerced fields stay null instead of dropping the record")
}

func TestExtractArtists(t *testing.T) {
	tables := catalog.Extract(decode(t))

	require.Len(t, tables.Artists, 3)
	casual := tables.Artists[0]
	assert.Equal(t, "ARD7TVE1187B99BFB1", *casual.ArtistID)
	assert.Equal(t, "Casual", *casual.Name)
	assert.Equal(t, "California - LA", *casual.Location)
	assert.Nil(t, casual.Latitude)
	assert.Nil(t, casual.Longitude)

	relocated := tables.Artists[1]
	assert.Equal(t, "Los Angeles", *relocated.Location)
	assert.InDelta(t, 34.05, *relocated.Latitude, 1e-9)
	assert.InDelta(t, -118.24, *relocated.Longitude, 1e-9)

	assert.Equal(t, "Elvis", *tables.Artists[2].Name)
	assert.Nil(t, tables.Artists[2].Location)
}

func TestSongsRoundTrip(t *testing.T) {
	ctx := context.Background()
	log := zaptest.NewLogger(t)
	store, err := storage.NewLocal(log, t.TempDir())
	require.NoError(t, err)
	l := lake.New(log, store, "", t.TempDir(), "test")

	tables := catalog.Extract(decode(t))

	_, err = lake.Write(ctx, l, catalog.SongsTable, tables.Songs)
	require.NoError(t, err)
	_, err = lake.Write(ctx, l, catalog.ArtistsTable, tables.Artists)
	require.NoError(t, err)

	songs, err := lake.Read(ctx, l, catalog.SongsTable)
	require.NoError(t, err)
	assert.ElementsMatch(t, tables.Songs, songs)

	artists, err := lake.Read(ctx, l, catalog.ArtistsTable)
	require.NoError(t, err)
	assert.ElementsMatch(t, tables.Artists, artists)

	keys, err := store.List(ctx, "songs.parquet/year=0/")
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Contains(t, keys[0], "songs.parquet/year=0/artist_id=ARD7TVE1187B99BFB1/")
}
