package srctext

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fixtureSource = `package main

import (
	"unsafe"

	"github.com/uprintf-go/uprintf"
)

func main() {
	var x int
	var p struct{ a, b int }
	up := unsafe.Pointer(&x)
	uprintf.Printf("x=%S\n", unsafe.Pointer(&x))
	uprintf.Printf("%S %S", unsafe.Pointer(&p), unsafe.Pointer(&p.a))
	uprintf.Printf("%S\n", up)
}
`

func writeFixture(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixture.go")
	require.NoError(t, os.WriteFile(path, []byte(fixtureSource), 0o644))
	return path
}

func TestArgsAtStripsUnsafePointerConversion(t *testing.T) {
	Reset()
	path := writeFixture(t)

	args, err := ArgsAt(path, 13)
	require.NoError(t, err)
	require.Len(t, args, 1)
	assert.Equal(t, "&x", args[0])
}

func TestArgsAtMultipleArguments(t *testing.T) {
	Reset()
	path := writeFixture(t)

	args, err := ArgsAt(path, 14)
	require.NoError(t, err)
	require.Len(t, args, 2)
	assert.Equal(t, "&p", args[0])
	assert.Equal(t, "&p.a", args[1])
}

func TestArgsAtLeavesBarePointerArgumentAlone(t *testing.T) {
	Reset()
	path := writeFixture(t)

	args, err := ArgsAt(path, 15)
	require.NoError(t, err)
	require.Len(t, args, 1)
	assert.Equal(t, "up", args[0])
}

func TestArgsAtMemoizes(t *testing.T) {
	Reset()
	path := writeFixture(t)

	first, err := ArgsAt(path, 13)
	require.NoError(t, err)

	// deleting the file does not invalidate the cache: the second lookup
	// must come from the memo, not a re-parse
	require.NoError(t, os.Remove(path))
	second, err := ArgsAt(path, 13)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestArgsAtNoCallOnLine(t *testing.T) {
	Reset()
	path := writeFixture(t)

	_, err := ArgsAt(path, 10)
	assert.Error(t, err)
}

func TestArgsAtUnparseableFile(t *testing.T) {
	Reset()
	path := filepath.Join(t.TempDir(), "broken.go")
	require.NoError(t, os.WriteFile(path, []byte("not go source"), 0o644))

	_, err := ArgsAt(path, 1)
	assert.Error(t, err)
}
