package records

import "io"

// PageNextSong is the page value of a song-play event.
const PageNextSong = "NextSong"

// Event is one activity-log record.
type Event struct {
	Artist        *string
	Auth          *string
	FirstName     *string
	Gender        *string
	ItemInSession *int64
	LastName      *string
	Length        *float64
	Level         *string
	Location      *string
	Method        *string
	Page          *string
	Registration  *float64
	SessionID     *int64
	Song          *string
	Status        *int64
	Ts            *int64
	UserAgent     *string
	UserID        *string
}

// IsSongPlay reports whether the event is a song play.
func (e Event) IsSongPlay() bool {
	return e.Page != nil && *e.Page == PageNextSong
}

// DecodeEvents decodes newline-delimited activity-log JSON.
func DecodeEvents(r io.Reader) ([]Event, Counts, error) {
	return decodeLines(r, func(f *fields) Event {
		return Event{
			Artist:        f.str("artist"),
			Auth:          f.str("auth"),
			FirstName:     f.str("firstName"),
			Gender:        f.str("gender"),
			ItemInSession: f.int64("itemInSession"),
			LastName:      f.str("lastName"),
			Length:        f.float64("length"),
			Level:         f.str("level"),
			Location:      f.str("location"),
			Method:        f.str("method"),
			Page:          f.str("page"),
			Registration:  f.float64("registration"),
			SessionID:     f.int64("sessionId"),
			Song:          f.str("song"),
			Status:        f.int64("status"),
			Ts:            f.int64("ts"),
			UserAgent:     f.str("userAgent"),
			UserID:        f.str("userId"),
		}
	})
}
