// Copyright (C) 2026  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package api_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datawire/island/pkg/registry/api"
)

func validRegistration() api.PackageRegistration {
	return api.PackageRegistration{
		Name:             "sample-game",
		Version:          "1.0.0",
		Game:             "Sample Game",
		Authors:          []string{"A. Author"},
		MinimumAPVersion: "0.5.0",
		EntryPoints:      map[string]string{"sample": "sample_game:World"},
		Distributions: []api.RegistrationDistribution{{
			Filename:    "sample_game-1.0.0-py3-none-any.island",
			URL:         "https://host.example/sample.island",
			SHA256:      strings.Repeat("ab", 32),
			Size:        1234,
			PlatformTag: "py3-none-any",
		}},
	}
}

func TestRegistrationValidate(t *testing.T) {
	t.Parallel()
	testcases := map[string]struct {
		Mutate   func(*api.PackageRegistration)
		Code     api.ErrorCode
		ErrField string
	}{
		"valid":      {Mutate: func(*api.PackageRegistration) {}},
		"uppercase-name": {
			Mutate:   func(r *api.PackageRegistration) { r.Name = "Sample" },
			Code:     api.CodeInvalidManifest,
			ErrField: "name",
		},
		"leading-digit-name": {
			Mutate:   func(r *api.PackageRegistration) { r.Name = "1game" },
			Code:     api.CodeInvalidManifest,
			ErrField: "name",
		},
		"bad-version": {
			Mutate: func(r *api.PackageRegistration) { r.Version = "not-semver" },
			Code:   api.CodeInvalidVersion,
		},
		"loose-version": {
			Mutate: func(r *api.PackageRegistration) { r.Version = "1.0" },
			Code:   api.CodeInvalidVersion,
		},
		"no-authors": {
			Mutate:   func(r *api.PackageRegistration) { r.Authors = nil },
			Code:     api.CodeInvalidManifest,
			ErrField: "authors",
		},
		"no-entry-points": {
			Mutate:   func(r *api.PackageRegistration) { r.EntryPoints = nil },
			Code:     api.CodeInvalidManifest,
			ErrField: "entry_points",
		},
		"no-distributions": {
			Mutate:   func(r *api.PackageRegistration) { r.Distributions = nil },
			Code:     api.CodeInvalidManifest,
			ErrField: "distributions",
		},
		"http-url": {
			Mutate: func(r *api.PackageRegistration) {
				r.Distributions[0].URL = "http://host.example/sample.island"
			},
			Code:     api.CodeInvalidManifest,
			ErrField: "distributions[0].url",
		},
		"short-sha256": {
			Mutate:   func(r *api.PackageRegistration) { r.Distributions[0].SHA256 = "abcd" },
			Code:     api.CodeInvalidManifest,
			ErrField: "distributions[0].sha256",
		},
		"zero-size": {
			Mutate:   func(r *api.PackageRegistration) { r.Distributions[0].Size = 0 },
			Code:     api.CodeInvalidManifest,
			ErrField: "distributions[0].size",
		},
		"bad-minimum-ap": {
			Mutate:   func(r *api.PackageRegistration) { r.MinimumAPVersion = "latest" },
			Code:     api.CodeInvalidManifest,
			ErrField: "minimum_ap_version",
		},
		"bad-source-commit": {
			Mutate:   func(r *api.PackageRegistration) { r.SourceCommit = "abc123" },
			Code:     api.CodeInvalidManifest,
			ErrField: "source_commit",
		},
	}
	for tcName, tc := range testcases {
		tc := tc
		t.Run(tcName, func(t *testing.T) {
			t.Parallel()
			reg := validRegistration()
			tc.Mutate(&reg)
			reg.Normalize()
			err := reg.Validate()
			if tc.Code == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			var apiErr *api.Error
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tc.Code, apiErr.Code)
			if tc.ErrField != "" {
				fields := make([]string, 0, len(apiErr.Details))
				for _, detail := range apiErr.Details {
					fields = append(fields, detail.Field)
				}
				assert.Contains(t, fields, tc.ErrField)
			}
		})
	}
}

func TestRegistrationNormalize(t *testing.T) {
	t.Parallel()
	reg := validRegistration()
	reg.Distributions[0].SHA256 = strings.Repeat("AB", 32)
	reg.SourceCommit = strings.Repeat("AB", 20)
	reg.Normalize()
	assert.Equal(t, strings.Repeat("ab", 32), reg.Distributions[0].SHA256)
	assert.Equal(t, strings.Repeat("ab", 20), reg.SourceCommit)
	assert.NoError(t, reg.Validate())
}

func TestErrorCodeHTTPStatus(t *testing.T) {
	t.Parallel()
	testcases := map[api.ErrorCode]int{
		api.CodeInvalidManifest:  400,
		api.CodeInvalidVersion:   400,
		api.CodeInvalidRequest:   400,
		api.CodeVersionExists:    409,
		api.CodePackageNotFound:  404,
		api.CodeVersionNotFound:  404,
		api.CodeUnauthorized:     401,
		api.CodeForbidden:        403,
		api.CodeRateLimited:      429,
		api.CodeChecksumMismatch: 400,
		api.CodeInternalError:    500,
	}
	for code, status := range testcases {
		assert.Equal(t, status, code.HTTPStatus(), string(code))
	}
}
