// Copyright (C) 2026  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package island_test

import (
	"math/rand"
	"reflect"
	"testing"
	"testing/quick"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datawire/island/pkg/island"
	"github.com/datawire/island/pkg/python/pep425"
	"github.com/datawire/island/pkg/testutil"
)

func TestNormalizeName(t *testing.T) {
	t.Parallel()
	type testcase struct {
		Input  string
		Output string
		Err    bool
	}
	testcases := map[string]testcase{
		"plain":        {Input: "pokemon", Output: "pokemon"},
		"mixed-case":   {Input: "Ocarina-Of-Time", Output: "ocarina_of_time"},
		"dots":         {Input: "a.b.c", Output: "a_b_c"},
		"whitespace":   {Input: "A Link to the Past", Output: "a_link_to_the_past"},
		"run-collapse": {Input: "a--__..b", Output: "a_b"},
		"trim":         {Input: "-hollow-knight-", Output: "hollow_knight"},
		"empty":        {Input: "", Err: true},
		"only-seps":    {Input: "-._ ", Err: true},
		"non-ascii":    {Input: "pokémon", Err: true},
	}
	for tcName, tc := range testcases {
		tc := tc
		t.Run(tcName, func(t *testing.T) {
			t.Parallel()
			actual, err := island.NormalizeName(tc.Input)
			if tc.Err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.Output, actual)
		})
	}
}

func TestBuildFilename(t *testing.T) {
	t.Parallel()
	type testcase struct {
		Name    string
		Version string
		Tag     pep425.Tag
		Output  string
		Err     bool
	}
	testcases := map[string]testcase{
		"universal-default": {
			Name:    "My-Game",
			Version: "1.2.3",
			Output:  "my_game-1.2.3-py3-none-any.island",
		},
		"prerelease-escaped": {
			Name:    "my_game",
			Version: "1.2.3-rc.1",
			Output:  "my_game-1.2.3_rc.1-py3-none-any.island",
		},
		"platform-specific": {
			Name:    "my_game",
			Version: "0.1.0",
			Tag:     pep425.Tag{Python: "cp311", ABI: "cp311", Platform: "win_amd64"},
			Output:  "my_game-0.1.0-cp311-cp311-win_amd64.island",
		},
		"bad-name": {Name: "---", Version: "1.0.0", Err: true},
		"no-version": {
			Name: "my_game", Version: "", Err: true,
		},
	}
	for tcName, tc := range testcases {
		tc := tc
		t.Run(tcName, func(t *testing.T) {
			t.Parallel()
			actual, err := island.BuildFilename(tc.Name, tc.Version, tc.Tag)
			if tc.Err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.Output, actual)
		})
	}
}

func TestParseFilename(t *testing.T) {
	t.Parallel()
	intPtr := func(n int) *int { return &n }
	type testcase struct {
		Input  string
		Output *island.FilenameData
		Err    bool
	}
	testcases := map[string]testcase{
		"universal": {
			Input: "my_game-1.2.3-py3-none-any.island",
			Output: &island.FilenameData{
				Name:    "my_game",
				Version: "1.2.3",
				Tag:     pep425.Universal(),
			},
		},
		"build-tag": {
			Input: "my_game-1.2.3-4-py3-none-any.island",
			Output: &island.FilenameData{
				Name:    "my_game",
				Version: "1.2.3",
				Build:   intPtr(4),
				Tag:     pep425.Universal(),
			},
		},
		"native": {
			Input: "my_game-0.1.0-cp311-abi3-manylinux_2_17_x86_64.island",
			Output: &island.FilenameData{
				Name:    "my_game",
				Version: "0.1.0",
				Tag:     pep425.Tag{Python: "cp311", ABI: "abi3", Platform: "manylinux_2_17_x86_64"},
			},
		},
		"wrong-extension": {Input: "my_game-1.2.3-py3-none-any.whl", Err: true},
		"missing-tag":     {Input: "my_game-1.2.3.island", Err: true},
		"uppercase-name":  {Input: "My_Game-1.2.3-py3-none-any.island", Err: true},
	}
	for tcName, tc := range testcases {
		tc := tc
		t.Run(tcName, func(t *testing.T) {
			t.Parallel()
			actual, err := island.ParseFilename(tc.Input)
			if tc.Err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.Output, actual)
		})
	}
}

func TestSdistFilename(t *testing.T) {
	t.Parallel()
	filename, err := island.BuildSdistFilename("My-Game", "1.2.3-rc.1")
	require.NoError(t, err)
	assert.Equal(t, "my_game-1.2.3_rc.1.tar.gz", filename)

	data, err := island.ParseSdistFilename(filename)
	require.NoError(t, err)
	assert.Equal(t, &island.SdistFilenameData{Name: "my_game", Version: "1.2.3_rc.1"}, data)

	_, err = island.ParseSdistFilename("my_game-1.2.3.zip")
	assert.Error(t, err)
}

// genName is a quick.Generator for already-normalized package names.
type genName string

func (genName) Generate(rand *rand.Rand, _ int) reflect.Value {
	const (
		first = "abcdefghijklmnopqrstuvwxyz0123456789"
		rest  = first + "_"
	)
	buf := make([]byte, 1+rand.Intn(16))
	buf[0] = first[rand.Intn(len(first))]
	for i := 1; i < len(buf); i++ {
		buf[i] = rest[rand.Intn(len(rest))]
	}
	// Normalization collapses underscore runs; generate names that are
	// already fixed points so that round-tripping is exact.
	name := string(buf)
	for {
		collapsed, err := island.NormalizeName(name)
		if err == nil && collapsed == name {
			break
		}
		name = collapsed
	}
	return reflect.ValueOf(genName(name))
}

// genVersion is a quick.Generator for semver strings, post filename escaping.
type genVersion string

func (genVersion) Generate(rand *rand.Rand, _ int) reflect.Value {
	ver := ""
	for i := 0; i < 3; i++ {
		if i > 0 {
			ver += "."
		}
		ver += string(rune('0' + rand.Intn(10)))
	}
	if rand.Intn(2) == 0 {
		ver += "_rc." + string(rune('1'+rand.Intn(9)))
	}
	return reflect.ValueOf(genVersion(ver))
}

func TestFilenameRoundTrip(t *testing.T) {
	t.Parallel()
	fn := func(name genName, ver genVersion) bool {
		filename, err := island.BuildFilename(string(name), string(ver), pep425.Tag{})
		if err != nil {
			return false
		}
		parsed, err := island.ParseFilename(filename)
		if err != nil {
			return false
		}
		return parsed.Name == string(name) &&
			parsed.Version == string(ver) &&
			parsed.Build == nil &&
			parsed.Tag == pep425.Universal()
	}
	testutil.QuickCheck(t, fn, quick.Config{},
		[]interface{}{genName("my_game"), genVersion("1.2.3")},
		[]interface{}{genName("a"), genVersion("0.0.1_rc.1")},
	)
}
