// Package songplays reconstructs the songplays fact table by matching activity-log
// plays to the song catalog on song title and artist name.
//
// The log and the catalog share no key. A play matches a (song, artist) pair when
// its song text equals the song title and its artist text equals the name of that
// song's artist. Comparison is exact: no case folding, no trimming. A play can match
// several pairs when titles and names collide; the configured Policy decides which
// of them become fact rows.
package songplays

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/pankajkoti/data-lake-with-spark/internal/activity"
	"github.com/pankajkoti/data-lake-with-spark/internal/catalog"
	"github.com/pankajkoti/data-lake-with-spark/internal/lake"
	"github.com/pankajkoti/data-lake-with-spark/internal/records"
	"github.com/pankajkoti/data-lake-with-spark/internal/rowset"
)

// Songplay is a row of the songplays table.
type Songplay struct {
	StartTime *int64  `parquet:"name=start_time, type=INT64, convertedtype=TIMESTAMP_MILLIS, repetitiontype=OPTIONAL"`
	UserID    *string `parquet:"name=user_id, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	Level     *string `parquet:"name=level, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	SongID    *string `parquet:"name=song_id, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	ArtistID  *string `parquet:"name=artist_id, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	SessionID *int64  `parquet:"name=session_id, type=INT64, repetitiontype=OPTIONAL"`
	Location  *string `parquet:"name=location, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	UserAgent *string `parquet:"name=user_agent, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	Year      *int32  `parquet:"name=year, type=INT32, repetitiontype=OPTIONAL"`
	Month     *int32  `parquet:"name=month, type=INT32, repetitiontype=OPTIONAL"`
}

// Table is partitioned by year, then month.
var Table = lake.Table[Songplay]{
	Name:        "songplays",
	PartitionBy: []string{"year", "month"},
	Partition: func(s Songplay) []string {
		return []string{lake.Int32(s.Year), lake.Int32(s.Month)}
	},
}

// Policy decides which pairs of an ambiguous play become fact rows.
type Policy string

const (
	// PolicyAll writes one row per matching pair.
	PolicyAll Policy = "all"
	// PolicyFirst writes the pair with the smallest (song_id, artist_id).
	PolicyFirst Policy = "first"
	// PolicyReject writes nothing for an ambiguous play.
	PolicyReject Policy = "reject"
)

// ParsePolicy validates a configured policy name.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(s); p {
	case PolicyAll, PolicyFirst, PolicyReject:
		return p, nil
	default:
		return "", fmt.Errorf("unknown join policy %q", s)
	}
}

// Outcome classifies one play.
type Outcome int

const (
	// Matched plays resolve to exactly one pair.
	Matched Outcome = iota
	// Unmatched plays resolve to no pair and never reach the fact table.
	Unmatched
	// Ambiguous plays resolve to more than one pair.
	Ambiguous
	// Malformed plays have no song or artist text to match on.
	Malformed
)

// String implements fmt.Stringer.
func (o Outcome) String() string {
	switch o {
	case Matched:
		return "matched"
	case Unmatched:
		return "unmatched"
	case Ambiguous:
		return "ambiguous"
	case Malformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// Pair is a catalog song and its artist.
type Pair struct {
	SongID   *string
	ArtistID *string
}

func (p Pair) key() pairKey {
	return pairKey{song: rowset.Of(p.SongID), artist: rowset.Of(p.ArtistID)}
}

type pairKey struct {
	song, artist rowset.Value[string]
}

func comparePairs(a, b Pair) int {
	ak, bk := a.key(), b.key()
	if c := compareValue(ak.song, bk.song); c != 0 {
		return c
	}
	return compareValue(ak.artist, bk.artist)
}

// compareValue orders null before any string.
func compareValue(a, b rowset.Value[string]) int {
	if a.Valid != b.Valid {
		if !a.Valid {
			return -1
		}
		return 1
	}
	return cmp.Compare(a.V, b.V)
}

// Match is the resolution of one play.
type Match struct {
	Outcome Outcome
	// Pairs holds every distinct candidate, ordered by (song_id, artist_id).
	Pairs []Pair
}

// Counts tallies plays by outcome.
type Counts struct {
	Matched   int64 `json:"matched"`
	Unmatched int64 `json:"unmatched"`
	Ambiguous int64 `json:"ambiguous"`
	Malformed int64 `json:"malformed"`
}

// Total returns the number of plays counted.
func (c Counts) Total() int64 {
	return c.Matched + c.Unmatched + c.Ambiguous + c.Malformed
}

func (c *Counts) observe(o Outcome) {
	switch o {
	case Matched:
		c.Matched++
	case Unmatched:
		c.Unmatched++
	case Ambiguous:
		c.Ambiguous++
	case Malformed:
		c.Malformed++
	}
}

// Result is the output of Join.
type Result struct {
	Rows   []Songplay
	Counts Counts
}

type artistRef struct {
	artistID, name string
}

// Joiner resolves plays against one catalog snapshot.
type Joiner struct {
	policy  Policy
	byTitle map[string][]catalog.Song
	artists map[artistRef]struct{}
	times   map[int64]activity.Time
}

// NewJoiner indexes the catalog and time rows.
func NewJoiner(songs []catalog.Song, artists []catalog.Artist, times []activity.Time, policy Policy) *Joiner {
	j := &Joiner{
		policy:  policy,
		byTitle: make(map[string][]catalog.Song),
		artists: make(map[artistRef]struct{}, len(artists)),
		times:   make(map[int64]activity.Time, len(times)),
	}
	for _, s := range songs {
		if s.Title == nil {
			continue
		}
		j.byTitle[*s.Title] = append(j.byTitle[*s.Title], s)
	}
	for _, a := range artists {
		if a.ArtistID == nil || a.Name == nil {
			continue
		}
		j.artists[artistRef{artistID: *a.ArtistID, name: *a.Name}] = struct{}{}
	}
	for _, t := range times {
		j.times[t.StartTime] = t
	}
	return j
}

// Resolve finds the catalog pairs of one play.
func (j *Joiner) Resolve(e records.Event) Match {
	if e.Song == nil || e.Artist == nil {
		return Match{Outcome: Malformed}
	}

	var pairs []Pair
	seen := make(map[pairKey]struct{})
	for _, s := range j.byTitle[*e.Song] {
		if s.ArtistID == nil {
			continue
		}
		if _, ok := j.artists[artistRef{artistID: *s.ArtistID, name: *e.Artist}]; !ok {
			continue
		}
		p := Pair{SongID: s.SongID, ArtistID: s.ArtistID}
		if _, dup := seen[p.key()]; dup {
			continue
		}
		seen[p.key()] = struct{}{}
		pairs = append(pairs, p)
	}
	slices.SortFunc(pairs, comparePairs)

	switch len(pairs) {
	case 0:
		return Match{Outcome: Unmatched}
	case 1:
		return Match{Outcome: Matched, Pairs: pairs}
	default:
		return Match{Outcome: Ambiguous, Pairs: pairs}
	}
}

// Join builds the fact rows of plays.
func (j *Joiner) Join(plays []records.Event) Result {
	var res Result
	for _, e := range plays {
		m := j.Resolve(e)
		res.Counts.observe(m.Outcome)

		for _, p := range j.selected(m) {
			res.Rows = append(res.Rows, j.row(e, p))
		}
	}
	return res
}

func (j *Joiner) selected(m Match) []Pair {
	if m.Outcome != Ambiguous {
		return m.Pairs
	}
	switch j.policy {
	case PolicyFirst:
		return m.Pairs[:1]
	case PolicyReject:
		return nil
	default:
		return m.Pairs
	}
}

func (j *Joiner) row(e records.Event, p Pair) Songplay {
	row := Songplay{
		StartTime: e.Ts,
		UserID:    e.UserID,
		Level:     e.Level,
		SongID:    p.SongID,
		ArtistID:  p.ArtistID,
		SessionID: e.SessionID,
		Location:  e.Location,
		UserAgent: e.UserAgent,
	}
	if e.Ts != nil {
		if t, ok := j.times[*e.Ts]; ok {
			row.Year = rowset.Ptr(t.Year)
			row.Month = rowset.Ptr(t.Month)
		}
	}
	return row
}

// Join is a convenience wrapper around NewJoiner and Joiner.Join.
func Join(plays []records.Event, songs []catalog.Song, artists []catalog.Artist, times []activity.Time, policy Policy) Result {
	return NewJoiner(songs, artists, times, policy).Join(plays)
}
