package pep425_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datawire/island/pkg/python/pep425"
)

func TestParseTag(t *testing.T) {
	t.Parallel()
	type testcase struct {
		Input  string
		Output pep425.Tag
		Err    bool
	}
	testcases := map[string]testcase{
		"universal": {
			Input:  "py3-none-any",
			Output: pep425.Tag{Python: "py3", ABI: "none", Platform: "any"},
		},
		"cpython-linux": {
			Input:  "cp311-cp311-manylinux_2_17_x86_64",
			Output: pep425.Tag{Python: "cp311", ABI: "cp311", Platform: "manylinux_2_17_x86_64"},
		},
		"abi3": {
			Input:  "cp38-abi3-macosx_11_0_arm64",
			Output: pep425.Tag{Python: "cp38", ABI: "abi3", Platform: "macosx_11_0_arm64"},
		},
		"too-few-parts":  {Input: "py3-none", Err: true},
		"too-many-parts": {Input: "py3-none-any-extra", Err: true},
		"empty-part":     {Input: "py3--any", Err: true},
		"empty":          {Input: "", Err: true},
	}
	for tcName, tc := range testcases {
		tc := tc
		t.Run(tcName, func(t *testing.T) {
			t.Parallel()
			tag, err := pep425.ParseTag(tc.Input)
			if tc.Err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.Output, tag)
			assert.Equal(t, tc.Input, tag.String())
		})
	}
}

func TestFamily(t *testing.T) {
	t.Parallel()
	testcases := map[string]string{
		"py3-none-any":                      "any",
		"cp311-cp311-linux_x86_64":          "linux",
		"cp311-cp311-manylinux_2_17_x86_64": "linux",
		"cp311-cp311-musllinux_1_2_x86_64":  "linux",
		"cp311-cp311-macosx_11_0_arm64":     "macosx",
		"cp311-cp311-win_amd64":             "win",
		"cp311-cp311-win32":                 "win",
		"cp311-cp311-freebsd_13_amd64":      "other",
	}
	for tagStr, family := range testcases {
		tagStr := tagStr
		family := family
		t.Run(tagStr, func(t *testing.T) {
			t.Parallel()
			tag, err := pep425.ParseTag(tagStr)
			require.NoError(t, err)
			assert.Equal(t, family, tag.Family())
		})
	}
}

func TestSpecificity(t *testing.T) {
	t.Parallel()
	// The exact scores matter less than the ordering among tags that would
	// realistically compete for "most restrictive".
	ordered := []string{
		"py3-none-any",
		"py3-none-manylinux_2_17_x86_64",
		"py3-abi3-manylinux_2_17_x86_64",
		"cp311-abi3-manylinux_2_17_x86_64",
		"cp311-cp311-manylinux_2_17_x86_64",
	}
	for i := 1; i < len(ordered); i++ {
		lo, err := pep425.ParseTag(ordered[i-1])
		require.NoError(t, err)
		hi, err := pep425.ParseTag(ordered[i])
		require.NoError(t, err)
		assert.Lessf(t, lo.Specificity(), hi.Specificity(),
			"%q should be less specific than %q", lo, hi)
	}
}

func TestCompatible(t *testing.T) {
	t.Parallel()
	type testcase struct {
		Dist   string
		Want   string
		Expect bool
	}
	testcases := map[string]testcase{
		"pure-anywhere": {
			Dist: "py3-none-any", Want: "cp311-cp311-win_amd64", Expect: true,
		},
		"exact-match": {
			Dist: "cp311-cp311-manylinux_2_17_x86_64", Want: "cp311-cp311-manylinux_2_17_x86_64", Expect: true,
		},
		"wildcard-request": {
			Dist: "cp311-abi3-manylinux_2_17_x86_64", Want: "cp311-none-any", Expect: true,
		},
		"platform-mismatch": {
			Dist: "cp311-cp311-manylinux_2_17_x86_64", Want: "cp311-cp311-win_amd64", Expect: false,
		},
		"python-mismatch": {
			Dist: "cp310-cp310-win_amd64", Want: "cp311-cp311-win_amd64", Expect: false,
		},
	}
	for tcName, tc := range testcases {
		tc := tc
		t.Run(tcName, func(t *testing.T) {
			t.Parallel()
			dist, err := pep425.ParseTag(tc.Dist)
			require.NoError(t, err)
			want, err := pep425.ParseTag(tc.Want)
			require.NoError(t, err)
			assert.Equal(t, tc.Expect, dist.Compatible(want))
		})
	}
}

func TestCheckFamilies(t *testing.T) {
	t.Parallel()
	type testcase struct {
		Tags []string
		Err  string
	}
	testcases := map[string]testcase{
		"all-pure": {
			Tags: []string{"py3-none-any", "py3-none-any"},
		},
		"one-family": {
			Tags: []string{"py3-none-any", "cp311-cp311-manylinux_2_17_x86_64", "cp311-abi3-linux_x86_64"},
		},
		"two-families": {
			Tags: []string{"cp311-cp311-manylinux_2_17_x86_64", "cp311-cp311-win_amd64"},
			Err:  "incompatible platform families: linux, win",
		},
		"three-families": {
			Tags: []string{"cp311-cp311-win_amd64", "cp311-cp311-macosx_11_0_arm64", "cp311-cp311-linux_x86_64"},
			Err:  "incompatible platform families: linux, macosx, win",
		},
	}
	for tcName, tc := range testcases {
		tc := tc
		t.Run(tcName, func(t *testing.T) {
			t.Parallel()
			tags := make([]pep425.Tag, 0, len(tc.Tags))
			for _, str := range tc.Tags {
				tag, err := pep425.ParseTag(str)
				require.NoError(t, err)
				tags = append(tags, tag)
			}
			err := pep425.CheckFamilies(tags)
			if tc.Err == "" {
				assert.NoError(t, err)
			} else {
				assert.EqualError(t, err, tc.Err)
			}
		})
	}
}

func TestMostRestrictive(t *testing.T) {
	t.Parallel()
	type testcase struct {
		Tags   []string
		Expect string
	}
	testcases := map[string]testcase{
		"empty": {
			Tags:   nil,
			Expect: "py3-none-any",
		},
		"all-pure": {
			Tags:   []string{"py3-none-any", "py3-none-any"},
			Expect: "py3-none-any",
		},
		"native-wins": {
			Tags:   []string{"py3-none-any", "cp311-cp311-manylinux_2_17_x86_64"},
			Expect: "cp311-cp311-manylinux_2_17_x86_64",
		},
		"most-specific-wins": {
			Tags: []string{
				"py3-none-manylinux_2_17_x86_64",
				"cp311-cp311-manylinux_2_17_x86_64",
				"cp311-abi3-manylinux_2_17_x86_64",
			},
			Expect: "cp311-cp311-manylinux_2_17_x86_64",
		},
		"tie-breaks-by-string": {
			Tags: []string{
				"cp311-cp311-manylinux_2_17_x86_64",
				"cp311-cp311-manylinux_2_17_aarch64",
			},
			Expect: "cp311-cp311-manylinux_2_17_aarch64",
		},
	}
	for tcName, tc := range testcases {
		tc := tc
		t.Run(tcName, func(t *testing.T) {
			t.Parallel()
			tags := make([]pep425.Tag, 0, len(tc.Tags))
			for _, str := range tc.Tags {
				tag, err := pep425.ParseTag(str)
				require.NoError(t, err)
				tags = append(tags, tag)
			}
			assert.Equal(t, tc.Expect, pep425.MostRestrictive(tags).String())
		})
	}
}
