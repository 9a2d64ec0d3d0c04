package records

import "io"

// Song is one song-metadata record.
type Song struct {
	NumSongs        *int32
	ArtistID        *string
	ArtistLatitude  *float64
	ArtistLongitude *float64
	ArtistLocation  *string
	ArtistName      *string
	SongID          *string
	Title           *string
	Duration        *float64
	Year            *int32
}

// DecodeSongs decodes newline-delimited song-metadata JSON.
func DecodeSongs(r io.Reader) ([]Song, Counts, error) {
	return decodeLines(r, func(f *fields) Song {
		return Song{
			NumSongs:        f.int32("num_songs"),
			ArtistID:        f.str("artist_id"),
			ArtistLatitude:  f.float64("artist_latitude"),
			ArtistLongitude: f.float64("artist_longitude"),
			ArtistLocation:  f.str("artist_location"),
			ArtistName:      f.str("artist_name"),
			SongID:          f.str("song_id"),
			Title:           f.str("title"),
			Duration:        f.float64("duration"),
			Year:            f.int32("year"),
		}
	})
}
