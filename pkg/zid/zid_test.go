package zid

import (
	"encoding/json"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	id := New()
	require.False(t, id.IsZero())

	parsed, err := FromString(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)

	_, err = FromString("not an id")
	assert.Error(t, err)
}

func TestTimeOrdering(t *testing.T) {
	var ids []string
	for i := 0; i < 20; i++ {
		ids = append(ids, New().String())
	}
	assert.True(t, sort.StringsAreSorted(ids))
}

func TestEncodedTime(t *testing.T) {
	id := New()
	assert.WithinDuration(t, time.Now(), id.Time(), 2*time.Second)
}

func TestJSON(t *testing.T) {
	id := New()
	b, err := json.Marshal(id)
	require.NoError(t, err)
	assert.Equal(t, `"`+id.String()+`"`, string(b))

	var out ID
	require.NoError(t, json.Unmarshal(b, &out))
	assert.Equal(t, id, out)
}
