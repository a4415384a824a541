package reference

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestFasta(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "ref.fa")
	// 20 bases per line, two records.
	content := ">19 some description\n" +
		"ACGTACGTACGTACGTACGT\n" +
		"TTTTGGGGCCCCAAAATTTT\n" +
		">MT\n" +
		"GGGGCCCCAAAATTTTGGGG\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestBasesAcrossLineBoundary(t *testing.T) {
	fa, err := Open(writeTestFasta(t))
	require.NoError(t, err)
	defer fa.Close()

	bases, err := fa.Bases("19", 18, 23)
	require.NoError(t, err)
	assert.Equal(t, "CGTTTT", bases)
}

func TestBasesWholeFirstLine(t *testing.T) {
	fa, err := Open(writeTestFasta(t))
	require.NoError(t, err)
	defer fa.Close()

	bases, err := fa.Bases("19", 1, 20)
	require.NoError(t, err)
	assert.Equal(t, "ACGTACGTACGTACGTACGT", bases)
}

func TestCanonicalizeStripsChrPrefix(t *testing.T) {
	fa, err := Open(writeTestFasta(t))
	require.NoError(t, err)
	defer fa.Close()

	name, ok := fa.Canonicalize("chr19")
	require.True(t, ok)
	assert.Equal(t, "19", name)
}

func TestUnknownChromosome(t *testing.T) {
	fa, err := Open(writeTestFasta(t))
	require.NoError(t, err)
	defer fa.Close()

	_, err = fa.Bases("7", 1, 10)
	require.Error(t, err)
}

func TestOutOfRange(t *testing.T) {
	fa, err := Open(writeTestFasta(t))
	require.NoError(t, err)
	defer fa.Close()

	_, err = fa.Bases("19", 1, 1000)
	require.Error(t, err)
}

func TestChromosomes(t *testing.T) {
	fa, err := Open(writeTestFasta(t))
	require.NoError(t, err)
	defer fa.Close()

	chroms := fa.Chromosomes()
	require.Len(t, chroms, 2)
	assert.Equal(t, "19", chroms[0].Name)
	assert.Equal(t, int64(40), chroms[0].Length)
}
