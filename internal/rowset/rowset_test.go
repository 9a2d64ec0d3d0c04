package rowset_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pankajkoti/data-lake-with-spark/internal/rowset"
)

func TestDistinct(t *testing.T) {
	rows := []*string{rowset.Ptr("a"), nil, rowset.Ptr("b"), rowset.Ptr("a"), nil}

	out := rowset.Distinct(rows, rowset.Of[string])

	assert.Len(t, out, 3)
	assert.Equal(t, "a", *out[0])
	assert.Nil(t, out[1])
	assert.Equal(t, "b", *out[2])
}

func TestOf(t *testing.T) {
	assert.Equal(t, rowset.Value[int]{}, rowset.Of[int](nil))
	assert.Equal(t, rowset.Value[int]{V: 0, Valid: true}, rowset.Of(rowset.Ptr(0)))
	assert.NotEqual(t, rowset.Of[int](nil), rowset.Of(rowset.Ptr(0)))
}
