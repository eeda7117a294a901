// Copyright (C) 2026  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/datawire/island/pkg/island/version"
)

var (
	rePackageName  = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)
	reSHA256Hex    = regexp.MustCompile(`^[0-9a-f]{64}$`)
	reSourceCommit = regexp.MustCompile(`^[0-9a-f]{40}$`)
)

// RegistrationDistribution is one externally-hosted artifact in a
// registration request.
type RegistrationDistribution struct {
	Filename    string `json:"filename"`
	URL         string `json:"url"`
	SHA256      string `json:"sha256"`
	Size        int64  `json:"size"`
	PlatformTag string `json:"platform_tag"`
}

// PackageRegistration is the request body of POST /v1/island/register.
type PackageRegistration struct {
	Name             string                     `json:"name"`
	Version          string                     `json:"version"`
	Game             string                     `json:"game"`
	Description      string                     `json:"description,omitempty"`
	Authors          []string                   `json:"authors"`
	MinimumAPVersion string                     `json:"minimum_ap_version"`
	MaximumAPVersion string                     `json:"maximum_ap_version,omitempty"`
	Keywords         []string                   `json:"keywords,omitempty"`
	Homepage         string                     `json:"homepage,omitempty"`
	Repository       string                     `json:"repository,omitempty"`
	License          string                     `json:"license,omitempty"`
	EntryPoints      map[string]string          `json:"entry_points"`
	Distributions    []RegistrationDistribution `json:"distributions"`
	SourceRepository string                     `json:"source_repository,omitempty"`
	SourceCommit     string                     `json:"source_commit,omitempty"`
}

// Normalize lower-cases the fields that are compared case-insensitively.
// Call it before Validate.
func (r *PackageRegistration) Normalize() {
	for i := range r.Distributions {
		r.Distributions[i].SHA256 = strings.ToLower(r.Distributions[i].SHA256)
	}
	r.SourceCommit = strings.ToLower(r.SourceCommit)
}

// Validate checks the request against the registration schema, returning
// an INVALID_MANIFEST or INVALID_VERSION *Error with per-field details.
func (r *PackageRegistration) Validate() error {
	var details []FieldDetail
	addf := func(field, msg string) {
		details = append(details, FieldDetail{Field: field, Error: msg})
	}

	if !rePackageName.MatchString(r.Name) {
		addf("name", "must match ^[a-z][a-z0-9_-]*$")
	}
	if _, err := version.Parse(r.Version); err != nil {
		return &Error{
			Code:    CodeInvalidVersion,
			Message: "version is not valid semver",
			Details: []FieldDetail{{Field: "version", Error: err.Error()}},
		}
	}
	if r.Game == "" {
		addf("game", "is required")
	}
	if len(r.Authors) == 0 {
		addf("authors", "at least one author is required")
	}
	if r.MinimumAPVersion == "" {
		addf("minimum_ap_version", "is required")
	} else if _, err := version.Parse(r.MinimumAPVersion); err != nil {
		addf("minimum_ap_version", "is not valid semver")
	}
	if r.MaximumAPVersion != "" {
		if _, err := version.Parse(r.MaximumAPVersion); err != nil {
			addf("maximum_ap_version", "is not valid semver")
		}
	}
	if len(r.EntryPoints) == 0 {
		addf("entry_points", "at least one entry point is required")
	}
	if len(r.Distributions) == 0 {
		addf("distributions", "at least one distribution is required")
	}
	for i, dist := range r.Distributions {
		field := func(name string) string {
			return fmt.Sprintf("distributions[%d].%s", i, name)
		}
		if dist.Filename == "" {
			addf(field("filename"), "is required")
		}
		if err := validateHTTPSURL(dist.URL); err != nil {
			addf(field("url"), err.Error())
		}
		if !reSHA256Hex.MatchString(dist.SHA256) {
			addf(field("sha256"), "must be 64 lowercase hex characters")
		}
		if dist.Size <= 0 {
			addf(field("size"), "must be positive")
		}
		if dist.PlatformTag == "" {
			addf(field("platform_tag"), "is required")
		}
	}
	if r.SourceCommit != "" && !reSourceCommit.MatchString(r.SourceCommit) {
		addf("source_commit", "must be 40 lowercase hex characters")
	}

	if len(details) > 0 {
		return &Error{
			Code:    CodeInvalidManifest,
			Message: "registration payload is invalid",
			Details: details,
		}
	}
	return nil
}

func validateHTTPSURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "https" {
		return errors.New("must be an https URL")
	}
	if u.Host == "" {
		return errors.New("must have a host")
	}
	return nil
}

// RegisterResponse is the success body of POST /v1/island/register.
type RegisterResponse struct {
	PackageName             string   `json:"package_name"`
	Version                 string   `json:"version"`
	RegisteredDistributions []string `json:"registered_distributions"`
	RegistryURL             string   `json:"registry_url"`
}

// DistributionInfo describes one distribution in discovery responses.
type DistributionInfo struct {
	Filename       string     `json:"filename"`
	SHA256         string     `json:"sha256"`
	Size           int64      `json:"size"`
	PlatformTag    string     `json:"platform_tag"`
	ExternalURL    string     `json:"external_url"`
	RegisteredAt   time.Time  `json:"registered_at"`
	LastVerifiedAt *time.Time `json:"last_verified_at,omitempty"`
	URLStatus      string     `json:"url_status"`
}

// VersionInfo describes one version in discovery responses.
type VersionInfo struct {
	Version          string             `json:"version"`
	Game             string             `json:"game"`
	MinimumAPVersion string             `json:"minimum_ap_version,omitempty"`
	MaximumAPVersion string             `json:"maximum_ap_version,omitempty"`
	PurePython       bool               `json:"pure_python"`
	PublishedAt      time.Time          `json:"published_at"`
	Yanked           bool               `json:"yanked"`
	YankReason       string             `json:"yank_reason,omitempty"`
	Distributions    []DistributionInfo `json:"distributions,omitempty"`
	EntryPoints      map[string]string  `json:"entry_points,omitempty"`
}

// PackageSummary is one row of the package listing.
type PackageSummary struct {
	Name          string   `json:"name"`
	DisplayName   string   `json:"display_name,omitempty"`
	Description   string   `json:"description,omitempty"`
	LatestVersion *string  `json:"latest_version"`
	Authors       []string `json:"authors,omitempty"`
	Keywords      []string `json:"keywords,omitempty"`
}

// PackageDetail is the full-metadata response for one package.
type PackageDetail struct {
	Name        string        `json:"name"`
	DisplayName string        `json:"display_name,omitempty"`
	Description string        `json:"description,omitempty"`
	License     string        `json:"license,omitempty"`
	Homepage    string        `json:"homepage,omitempty"`
	Repository  string        `json:"repository,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
	Authors     []string      `json:"authors"`
	Keywords    []string      `json:"keywords"`
	Versions    []VersionInfo `json:"versions"`
}

// Pagination is the shared page descriptor.
type Pagination struct {
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
	Total   int `json:"total"`
}

// PackageList is the response of GET /v1/island/packages.
type PackageList struct {
	Packages   []PackageSummary `json:"packages"`
	Pagination Pagination       `json:"pagination"`
}

// VersionList is the response of GET /v1/island/packages/{name}/versions.
type VersionList struct {
	PackageName string        `json:"package_name"`
	Versions    []VersionInfo `json:"versions"`
	Total       int           `json:"total"`
}

// SearchResponse is the response of GET /v1/island/search.
type SearchResponse struct {
	Results    []PackageSummary  `json:"results"`
	Query      string            `json:"query"`
	Filters    map[string]string `json:"filters"`
	Total      int               `json:"total"`
	Pagination Pagination        `json:"pagination"`
}

// IndexVersion is one version entry in the full index document.
type IndexVersion struct {
	Game             string   `json:"game"`
	MinimumAPVersion string   `json:"minimum_ap_version,omitempty"`
	MaximumAPVersion string   `json:"maximum_ap_version,omitempty"`
	PurePython       bool     `json:"pure_python"`
	PublishedAt      string   `json:"published_at"`
	Yanked           bool     `json:"yanked"`
	Distributions    []string `json:"distributions"`
}

// IndexPackage is one package entry in the full index document.
type IndexPackage struct {
	DisplayName   string                  `json:"display_name,omitempty"`
	Description   string                  `json:"description,omitempty"`
	LatestVersion *string                 `json:"latest_version"`
	Versions      map[string]IndexVersion `json:"versions"`
}

// Index is the response of GET /v1/island/index.json.
type Index struct {
	Packages      map[string]IndexPackage `json:"packages"`
	GeneratedAt   time.Time               `json:"generated_at"`
	TotalPackages int                     `json:"total_packages"`
	TotalVersions int                     `json:"total_versions"`
}

// YankRequest is the body of DELETE /v1/island/packages/{n}/{v}/yank.
type YankRequest struct {
	Reason string `json:"reason"`
}

// CollaboratorRequest is the body of POST .../collaborators.
type CollaboratorRequest struct {
	UserID           string `json:"user_id"`
	PublisherType    string `json:"publisher_type"`
	GitHubRepository string `json:"github_repository,omitempty"`
	GitHubWorkflow   string `json:"github_workflow,omitempty"`
}

// CollaboratorInfo is one row of the collaborator listing.
type CollaboratorInfo struct {
	PublisherID      string `json:"publisher_id"`
	PublisherType    string `json:"publisher_type"`
	IsOwner          bool   `json:"is_owner"`
	GitHubRepository string `json:"github_repository,omitempty"`
	GitHubWorkflow   string `json:"github_workflow,omitempty"`
}

// CollaboratorList is the response of GET .../collaborators.
type CollaboratorList struct {
	Package       string             `json:"package"`
	Collaborators []CollaboratorInfo `json:"collaborators"`
}

// MessageResponse is the generic {message} acknowledgement body.
type MessageResponse struct {
	Message string `json:"message"`
}
