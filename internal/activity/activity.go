// Package activity builds the users and time dimension tables from activity-log events.
package activity

import (
	"fmt"

	"github.com/pankajkoti/data-lake-with-spark/internal/lake"
	"github.com/pankajkoti/data-lake-with-spark/internal/records"
	"github.com/pankajkoti/data-lake-with-spark/internal/rowset"
)

// Plays keeps the song-play events.
func Plays(events []records.Event) []records.Event {
	plays := make([]records.Event, 0, len(events))
	for _, e := range events {
		if e.IsSongPlay() {
			plays = append(plays, e)
		}
	}
	return plays
}

// User is a row of the users table.
type User struct {
	UserID    *string `parquet:"name=user_id, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	FirstName *string `parquet:"name=first_name, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	LastName  *string `parquet:"name=last_name, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	Gender    *string `parquet:"name=gender, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	Level     *string `parquet:"name=level, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
}

// UsersTable is unpartitioned.
var UsersTable = lake.Table[User]{Name: "users"}

// UsersPolicy decides how a user whose attributes changed over time is represented.
type UsersPolicy string

const (
	// UsersDistinct keeps one row per distinct attribute tuple, so a user whose
	// level changed appears once per level.
	UsersDistinct UsersPolicy = "distinct"
	// UsersLatest keeps one row per user, taken from their play with the greatest ts.
	UsersLatest UsersPolicy = "latest"
)

// ParseUsersPolicy validates a configured policy name.
func ParseUsersPolicy(s string) (UsersPolicy, error) {
	switch p := UsersPolicy(s); p {
	case UsersDistinct, UsersLatest:
		return p, nil
	default:
		return "", fmt.Errorf("unknown users policy %q", s)
	}
}

func userRow(e records.Event) User {
	return User{
		UserID:    e.UserID,
		FirstName: e.FirstName,
		LastName:  e.LastName,
		Gender:    e.Gender,
		Level:     e.Level,
	}
}

type userRowKey struct {
	userID, firstName, lastName, gender, level rowset.Value[string]
}

func userKey(u User) userRowKey {
	return userRowKey{
		userID:    rowset.Of(u.UserID),
		firstName: rowset.Of(u.FirstName),
		lastName:  rowset.Of(u.LastName),
		gender:    rowset.Of(u.Gender),
		level:     rowset.Of(u.Level),
	}
}

// Users projects plays into user rows under policy.
func Users(plays []records.Event, policy UsersPolicy) []User {
	if policy == UsersLatest {
		return latestUsers(plays)
	}

	rows := make([]User, 0, len(plays))
	for _, e := range plays {
		rows = append(rows, userRow(e))
	}
	return rowset.Distinct(rows, userKey)
}

// latestUsers keeps, per user id, the play with the greatest ts. A null ts sorts
// first and equal ts resolve to the later play. Users keep first-seen order.
func latestUsers(plays []records.Event) []User {
	type best struct {
		index int
		ts    rowset.Value[int64]
	}

	var rows []User
	byID := make(map[rowset.Value[string]]best)
	for _, e := range plays {
		id := rowset.Of(e.UserID)
		ts := rowset.Of(e.Ts)

		current, ok := byID[id]
		if !ok {
			byID[id] = best{index: len(rows), ts: ts}
			rows = append(rows, userRow(e))
			continue
		}
		if current.ts.Valid && (!ts.Valid || ts.V < current.ts.V) {
			continue
		}
		rows[current.index] = userRow(e)
		byID[id] = best{index: current.index, ts: ts}
	}
	return rows
}
