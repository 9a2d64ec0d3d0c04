// Package lake lays tables out on object storage as Hive-partitioned Parquet datasets.
package lake

import (
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/zeebo/errs"
)

// Error is the error class for dataset reads and writes.
var Error = errs.Class("lake")

const (
	// DefaultPartition names the directory of rows whose partition value is null.
	DefaultPartition = "__HIVE_DEFAULT_PARTITION__"
	// SuccessMarker is written after every part file of a dataset is stored.
	SuccessMarker = "_SUCCESS"

	datasetSuffix = ".parquet"
)

// Table describes one output dataset of row type T.
type Table[T any] struct {
	// Name is the dataset name, e.g. "songs".
	Name string
	// PartitionBy lists the partition column names in directory order.
	PartitionBy []string
	// Partition returns the formatted partition values of a row, one per PartitionBy column.
	Partition func(T) []string
}

// Dir returns the dataset directory below root, e.g. "out/songs.parquet/".
func (t Table[T]) Dir(root string) string {
	return root + t.Name + datasetSuffix + "/"
}

// partitionDir returns the relative partition directory of row, "" when unpartitioned.
func (t Table[T]) partitionDir(row T) (string, error) {
	if len(t.PartitionBy) == 0 {
		return "", nil
	}
	values := t.Partition(row)
	if len(values) != len(t.PartitionBy) {
		return "", Error.New("table %s: %d partition values for %d columns", t.Name, len(values), len(t.PartitionBy))
	}
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = t.PartitionBy[i] + "=" + escapePathName(v)
	}
	return path.Join(parts...) + "/", nil
}

// String formats a nullable string partition value.
func String(v *string) string {
	if v == nil || *v == "" {
		return DefaultPartition
	}
	return *v
}

// Int32 formats a nullable integer partition value.
func Int32(v *int32) string {
	if v == nil {
		return DefaultPartition
	}
	return strconv.FormatInt(int64(*v), 10)
}

// escapePathName percent-encodes the characters Hive reserves in partition paths.
func escapePathName(v string) string {
	if v == DefaultPartition {
		return v
	}
	var b strings.Builder
	for _, r := range v {
		if needsEscape(r) {
			fmt.Fprintf(&b, "%%%02X", r)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func needsEscape(r rune) bool {
	if r < 0x20 || r == 0x7F {
		return true
	}
	switch r {
	case '"', '#', '%', '\'', '*', '/', ':', '=', '?', '\\', '{', '[', ']', '^':
		return true
	}
	return false
}
