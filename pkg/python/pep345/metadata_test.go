package pep345_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datawire/island/pkg/python/pep345"
)

func TestParse(t *testing.T) {
	t.Parallel()

	t.Run("full", func(t *testing.T) {
		t.Parallel()
		input := strings.Join([]string{
			"Metadata-Version: 2.1",
			"Name: requests",
			"Version: 2.31.0",
			"Requires-Dist: charset-normalizer (<4,>=2)",
			"Requires-Dist: idna (<4,>=2.5)",
			"Requires-Dist: urllib3 (<3,>=1.21.1)",
			"Requires-Dist: PySocks (!=1.5.7,>=1.5.6) ; extra == 'socks'",
			"",
			"Requests is an HTTP library.",
			"",
		}, "\n")
		md, err := pep345.Parse(strings.NewReader(input))
		require.NoError(t, err)
		assert.Equal(t, "requests", md.Name)
		assert.Equal(t, "2.31.0", md.Version)
		require.Len(t, md.RequiresDist, 4)
		assert.Equal(t, "pysocks", md.RequiresDist[3].Name)
		assert.True(t, md.RequiresDist[3].ExtraOnly())
		assert.Equal(t,
			[]string{"charset-normalizer", "idna", "urllib3"},
			md.DirectDependencies())
	})

	t.Run("no-body-no-blank-line", func(t *testing.T) {
		t.Parallel()
		input := "Metadata-Version: 2.1\nName: six\nVersion: 1.16.0\n"
		md, err := pep345.Parse(strings.NewReader(input))
		require.NoError(t, err)
		assert.Equal(t, "six", md.Name)
		assert.Equal(t, "1.16.0", md.Version)
		assert.Empty(t, md.DirectDependencies())
	})

	t.Run("missing-name", func(t *testing.T) {
		t.Parallel()
		_, err := pep345.Parse(strings.NewReader("Metadata-Version: 2.1\nVersion: 1.0\n"))
		assert.Error(t, err)
	})
}
