package procmaps

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLine(t *testing.T) {
	r, ok := parseLine("559a3f400000-559a3f421000 r--p 00000000 fd:01 1234  /usr/bin/prog")
	require.True(t, ok)
	assert.Equal(t, uint64(0x559a3f400000), r.Start)
	assert.Equal(t, uint64(0x559a3f421000), r.End)
	assert.Equal(t, "/usr/bin/prog", r.Pathname)
}

func TestParseLineAnonymousMapping(t *testing.T) {
	r, ok := parseLine("7ffd1c000000-7ffd1c021000 rw-p 00000000 00:00 0")
	require.True(t, ok)
	assert.Equal(t, "", r.Pathname)
}

func TestParseLineMalformed(t *testing.T) {
	_, ok := parseLine("")
	assert.False(t, ok)
	_, ok = parseLine("not-an-address r--p")
	assert.False(t, ok)
	_, ok = parseLine("zzzz-yyyy r--p 0 0 0")
	assert.False(t, ok)
}

func TestTableContains(t *testing.T) {
	table := &Table{Ranges: []Range{
		{Start: 0x1000, End: 0x2000},
		{Start: 0x5000, End: 0x6000},
	}}
	assert.True(t, table.Contains(0x1000))
	assert.True(t, table.Contains(0x5fff))
	assert.False(t, table.Contains(0x2000))
	assert.False(t, table.Contains(0x4fff))

	var nilTable *Table
	assert.False(t, nilTable.Contains(0x1000))
}

func TestLoadBasePicksLowestMatchingStart(t *testing.T) {
	table := &Table{Ranges: []Range{
		{Start: 0x559a3f500000, End: 0x559a3f520000, Pathname: "/usr/bin/prog"},
		{Start: 0x559a3f400000, End: 0x559a3f421000, Pathname: "/usr/bin/prog"},
		{Start: 0x7f0000000000, End: 0x7f0000100000, Pathname: "/usr/lib/libc.so.6"},
	}}

	base, ok := table.LoadBase("/usr/bin/prog")
	require.True(t, ok)
	assert.Equal(t, uint64(0x559a3f400000), base)

	_, ok = table.LoadBase("/does/not/exist")
	assert.False(t, ok)
}

func TestReadSelfMaps(t *testing.T) {
	table, err := Read()
	require.NoError(t, err)
	require.NotEmpty(t, table.Ranges)

	// every parsed range is well-formed
	for _, r := range table.Ranges {
		assert.Less(t, r.Start, r.End)
	}

	// the running test binary itself must appear in its own maps
	self, err := SelfTarget()
	require.NoError(t, err)
	_, ok := table.LoadBase(self)
	assert.True(t, ok)
}
