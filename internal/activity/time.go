package activity

import (
	"time"

	"github.com/pankajkoti/data-lake-with-spark/internal/lake"
	"github.com/pankajkoti/data-lake-with-spark/internal/records"
	"github.com/pankajkoti/data-lake-with-spark/internal/rowset"
)

// Time is a row of the time table. Every field derives from StartTime.
type Time struct {
	StartTime int64 `parquet:"name=start_time, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
	Hour      int32 `parquet:"name=hour, type=INT32"`
	Day       int32 `parquet:"name=day, type=INT32"`
	Week      int32 `parquet:"name=week, type=INT32"`
	Month     int32 `parquet:"name=month, type=INT32"`
	Year      int32 `parquet:"name=year, type=INT32"`
	Weekday   int32 `parquet:"name=weekday, type=INT32"`
}

// TimeTable is partitioned by year, then month.
var TimeTable = lake.Table[Time]{
	Name:        "time",
	PartitionBy: []string{"year", "month"},
	Partition: func(t Time) []string {
		return []string{lake.Int32(&t.Year), lake.Int32(&t.Month)}
	},
}

// StartTime converts epoch milliseconds to the canonical UTC timestamp.
func StartTime(ts int64) time.Time {
	return time.UnixMilli(ts).UTC()
}

// NewTimeRow derives a time row from epoch milliseconds. Weekday counts from
// Monday=0 to Sunday=6 and week is the ISO week of the year.
func NewTimeRow(ts int64) Time {
	t := StartTime(ts)
	_, week := t.ISOWeek()
	return Time{
		StartTime: ts,
		Hour:      int32(t.Hour()),
		Day:       int32(t.Day()),
		Week:      int32(week),
		Month:     int32(t.Month()),
		Year:      int32(t.Year()),
		Weekday:   int32((t.Weekday() + 6) % 7),
	}
}

// Times builds one time row per distinct ts of plays. Plays without ts are skipped.
func Times(plays []records.Event) []Time {
	rows := make([]Time, 0, len(plays))
	for _, e := range plays {
		if e.Ts == nil {
			continue
		}
		rows = append(rows, NewTimeRow(*e.Ts))
	}
	return rowset.Distinct(rows, func(t Time) int64 { return t.StartTime })
}
