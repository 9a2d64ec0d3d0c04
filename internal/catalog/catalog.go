// Package catalog builds the songs and artists dimension tables from song metadata.
package catalog

import (
	"github.com/pankajkoti/data-lake-with-spark/internal/lake"
	"github.com/pankajkoti/data-lake-with-spark/internal/records"
	"github.com/pankajkoti/data-lake-with-spark/internal/rowset"
)

// Song is a row of the songs table.
type Song struct {
	SongID   *string  `parquet:"name=song_id, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	Title    *string  `parquet:"name=title, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	ArtistID *string  `parquet:"name=artist_id, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	Year     *int32   `parquet:"name=year, type=INT32, repetitiontype=OPTIONAL"`
	Duration *float64 `parquet:"name=duration, type=DOUBLE, repetitiontype=OPTIONAL"`
}

// Artist is a row of the artists table.
type Artist struct {
	ArtistID  *string  `parquet:"name=artist_id, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	Name      *string  `parquet:"name=name, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	Location  *string  `parquet:"name=location, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	Latitude  *float64 `parquet:"name=latitude, type=DOUBLE, repetitiontype=OPTIONAL"`
	Longitude *float64 `parquet:"name=longitude, type=DOUBLE, repetitiontype=OPTIONAL"`
}

// SongsTable is partitioned by year, then artist.
var SongsTable = lake.Table[Song]{
	Name:        "songs",
	PartitionBy: []string{"year", "artist_id"},
	Partition: func(s Song) []string {
		return []string{lake.Int32(s.Year), lake.String(s.ArtistID)}
	},
}

// ArtistsTable is unpartitioned.
var ArtistsTable = lake.Table[Artist]{Name: "artists"}

// Tables is the output of Extract.
type Tables struct {
	Songs   []Song
	Artists []Artist
}

// Extract projects song records into distinct song and artist rows.
func Extract(songs []records.Song) Tables {
	songRows := make([]Song, 0, len(songs))
	artistRows := make([]Artist, 0, len(songs))
	for _, rec := range songs {
		songRows = append(songRows, Song{
			SongID:   rec.SongID,
			Title:    rec.Title,
			ArtistID: rec.ArtistID,
			Year:     rec.Year,
			Duration: rec.Duration,
		})
		artistRows = append(artistRows, Artist{
			ArtistID:  rec.ArtistID,
			Name:      rec.ArtistName,
			Location:  rec.ArtistLocation,
			Latitude:  rec.ArtistLatitude,
			Longitude: rec.ArtistLongitude,
		})
	}

	return Tables{
		Songs:   rowset.Distinct(songRows, songKey),
		Artists: rowset.Distinct(artistRows, artistKey),
	}
}

type songRowKey struct {
	songID, title, artistID rowset.Value[string]
	year                    rowset.Value[int32]
	duration                rowset.Value[float64]
}

func songKey(s Song) songRowKey {
	return songRowKey{
		songID:   rowset.Of(s.SongID),
		title:    rowset.Of(s.Title),
		artistID: rowset.Of(s.ArtistID),
		year:     rowset.Of(s.Year),
		duration: rowset.Of(s.Duration),
	}
}

type artistRowKey struct {
	artistID, name, location rowset.Value[string]
	latitude, longitude      rowset.Value[float64]
}

func artistKey(a Artist) artistRowKey {
	return artistRowKey{
		artistID:  rowset.Of(a.ArtistID),
		name:      rowset.Of(a.Name),
		location:  rowset.Of(a.Location),
		latitude:  rowset.Of(a.Latitude),
		longitude: rowset.Of(a.Longitude),
	}
}
