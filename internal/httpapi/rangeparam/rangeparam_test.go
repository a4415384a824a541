package rangeparam

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"varda/internal/verr"
)

func TestParseRangeDefaultsWhenEmpty(t *testing.T) {
	w, err := ParseRange("")
	require.NoError(t, err)
	assert.Equal(t, Window{First: 0, Last: DefaultLimit - 1}, w)
}

func TestParseRangeParsesExplicitWindow(t *testing.T) {
	w, err := ParseRange("items=10-19")
	require.NoError(t, err)
	assert.Equal(t, Window{First: 10, Last: 19}, w)
	assert.Equal(t, 10, w.Len())
}

func TestParseRangeRejectsMalformedHeader(t *testing.T) {
	for _, header := range []string{"bytes=0-9", "items=", "items=5", "items=9-5", "items=-1-9"} {
		_, err := ParseRange(header)
		require.Error(t, err, header)
		assert.Equal(t, verr.UnsatisfiableRange, verr.KindOf(err), header)
	}
}

func TestContentRangeClampsToTotal(t *testing.T) {
	assert.Equal(t, "items 0-4/5", ContentRange(Window{First: 0, Last: 49}, 5))
	assert.Equal(t, "items */0", ContentRange(Window{First: 10, Last: 19}, 0))
}

func TestParseOrderSplitsDirectionPrefixes(t *testing.T) {
	fields := ParseOrder("[-created_at,+name,owner]")
	require.Len(t, fields, 3)
	assert.Equal(t, SortField{Name: "created_at", Desc: true}, fields[0])
	assert.Equal(t, SortField{Name: "name", Desc: false}, fields[1])
	assert.Equal(t, SortField{Name: "owner", Desc: false}, fields[2])
}

func TestParseOrderEmptySpecYieldsNoFields(t *testing.T) {
	assert.Nil(t, ParseOrder(""))
	assert.Nil(t, ParseOrder("[]"))
}
