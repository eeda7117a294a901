package pep503_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/datawire/island/pkg/python/pep503"
)

func TestNormalize(t *testing.T) {
	t.Parallel()
	testcases := map[string]string{
		"requests":          "requests",
		"Django":            "django",
		"typing_extensions": "typing-extensions",
		"ruamel.yaml":       "ruamel-yaml",
		"A__B--C..D":        "a-b-c-d",
		"friendly-bard":     "friendly-bard",
		"FrIeNdLy-._.-bArD": "friendly-bard",
	}
	for input, expected := range testcases {
		input := input
		expected := expected
		t.Run(input, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, expected, pep503.Normalize(input))
		})
	}
}

func TestParseRequirementName(t *testing.T) {
	t.Parallel()
	testcases := map[string]string{
		"requests":                                   "requests",
		"requests>=2.0":                              "requests",
		"requests[security]>=2.0":                    "requests",
		"requests (>=2.0)":                           "requests",
		"PyYAML!=5.4.*,>=5.1":                        "pyyaml",
		"typing_extensions; python_version < '3.11'": "typing-extensions",
	}
	for input, expected := range testcases {
		input := input
		expected := expected
		t.Run(input, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, expected, pep503.ParseRequirementName(input))
		})
	}
}
