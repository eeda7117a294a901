// Copyright (C) 2026  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/datawire/dlib/dlog"

	"github.com/datawire/island/pkg/python/pep425"
	"github.com/datawire/island/pkg/registry/api"
	"github.com/datawire/island/pkg/registry/auth"
	"github.com/datawire/island/pkg/registry/store"
)

func (s *Service) handleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	subject, err := s.authenticate(r)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	if err := requireScope(subject, auth.ScopeUpload); err != nil {
		writeError(ctx, w, err)
		return
	}

	var reg api.PackageRegistration
	if err := json.NewDecoder(r.Body).Decode(&reg); err != nil {
		writeError(ctx, w, api.Errorf(api.CodeInvalidRequest, "malformed JSON body: %v", err))
		return
	}
	reg.Normalize()
	if err := reg.Validate(); err != nil {
		writeError(ctx, w, err)
		return
	}

	publishers, err := s.Store.ListPublishers(ctx, reg.Name)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		writeError(ctx, w, err)
		return
	}
	if !auth.MayPublish(subject, publishers) {
		writeError(ctx, w, api.Errorf(api.CodeForbidden,
			"%s is not a publisher of %q", subject.ID, reg.Name))
		return
	}

	switch _, err := s.Store.GetVersion(ctx, reg.Name, reg.Version); {
	case err == nil:
		writeError(ctx, w, api.Errorf(api.CodeVersionExists,
			"%s %s is already registered", reg.Name, reg.Version))
		return
	case !errors.Is(err, store.ErrNotFound):
		writeError(ctx, w, err)
		return
	}

	dlog.Infof(ctx, "verifying %d distribution(s) for %s %s", len(reg.Distributions), reg.Name, reg.Version)
	if err := s.Verifier.VerifyAll(ctx, reg.Distributions); err != nil {
		writeError(ctx, w, err)
		return
	}

	if err := s.Store.CreateVersion(ctx, buildRegistration(&reg, subject)); err != nil {
		if errors.Is(err, store.ErrConflict) {
			writeError(ctx, w, api.Errorf(api.CodeVersionExists,
				"%s %s is already registered", reg.Name, reg.Version))
			return
		}
		writeError(ctx, w, err)
		return
	}
	dlog.Infof(ctx, "registered %s %s", reg.Name, reg.Version)

	filenames := make([]string, len(reg.Distributions))
	for i, dist := range reg.Distributions {
		filenames[i] = dist.Filename
	}
	writeJSON(ctx, w, http.StatusOK, api.RegisterResponse{
		PackageName:             reg.Name,
		Version:                 reg.Version,
		RegisteredDistributions: filenames,
		RegistryURL:             s.BaseURL,
	})
}

func buildRegistration(reg *api.PackageRegistration, subject *auth.Subject) *store.Registration {
	pkg := store.Package{
		Name:        reg.Name,
		DisplayName: reg.Game,
		Description: reg.Description,
		License:     reg.License,
		Homepage:    reg.Homepage,
		Repository:  reg.Repository,
		Authors:     reg.Authors,
		Keywords:    reg.Keywords,
	}

	purePython := true
	dists := make([]store.Distribution, len(reg.Distributions))
	for i, dist := range reg.Distributions {
		dists[i] = store.Distribution{
			Filename:    dist.Filename,
			SHA256:      dist.SHA256,
			Size:        dist.Size,
			PlatformTag: dist.PlatformTag,
			ExternalURL: dist.URL,
			URLStatus:   "active",
		}
		if tag, err := pep425.ParseTag(dist.PlatformTag); err == nil && !tag.IsPure() {
			purePython = false
		}
	}

	entryPoints := make([]store.EntryPoint, 0, len(reg.EntryPoints))
	for name, target := range reg.EntryPoints {
		module, attr := target, ""
		if colon := strings.LastIndexByte(target, ':'); colon >= 0 {
			module, attr = target[:colon], target[colon+1:]
		}
		entryPoints = append(entryPoints, store.EntryPoint{
			Type:   "ap-island",
			Name:   name,
			Module: module,
			Attr:   attr,
		})
	}
	sort.Slice(entryPoints, func(i, j int) bool { return entryPoints[i].Name < entryPoints[j].Name })

	return &store.Registration{
		Package: pkg,
		Version: store.Version{
			PackageName:      reg.Name,
			Version:          reg.Version,
			Game:             reg.Game,
			MinimumAPVersion: reg.MinimumAPVersion,
			MaximumAPVersion: reg.MaximumAPVersion,
			PurePython:       purePython,
			Distributions:    dists,
			EntryPoints:      entryPoints,
		},
		Owner: store.Publisher{
			PackageName:      reg.Name,
			PublisherID:      subject.ID,
			PublisherType:    subject.Type,
			IsOwner:          true,
			GitHubRepository: subject.Repository,
			GitHubWorkflow:   subject.Workflow,
		},
		Audit: store.AuditEntry{
			PackageName: reg.Name,
			Version:     reg.Version,
			Action:      "register",
			ActorID:     subject.ID,
			ActorType:   subject.Type,
			Details: map[string]interface{}{
				"distributions": distFilenames(reg.Distributions),
				"source_commit": reg.SourceCommit,
			},
			GitHubRepository: subject.Repository,
			GitHubWorkflow:   subject.Workflow,
			GitHubSHA:        subject.SHA,
		},
	}
}

func distFilenames(dists []api.RegistrationDistribution) []string {
	out := make([]string, len(dists))
	for i, dist := range dists {
		out[i] = dist.Filename
	}
	return out
}

func pageParams(r *http.Request) (page, perPage int, err error) {
	page, perPage = 1, 20
	if raw := r.URL.Query().Get("page"); raw != "" {
		page, err = strconv.Atoi(raw)
		if err != nil || page < 1 {
			return 0, 0, api.Errorf(api.CodeInvalidRequest, "page must be a positive integer")
		}
	}
	if raw := r.URL.Query().Get("per_page"); raw != "" {
		perPage, err = strconv.Atoi(raw)
		if err != nil || perPage < 1 || perPage > 100 {
			return 0, 0, api.Errorf(api.CodeInvalidRequest, "per_page must be between 1 and 100")
		}
	}
	return page, perPage, nil
}

func (s *Service) handleListPackages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	page, perPage, err := pageParams(r)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	packages, total, err := s.Store.ListPackages(ctx, page, perPage)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	summaries := make([]api.PackageSummary, 0, len(packages))
	for _, pkg := range packages {
		summary, err := s.packageSummary(r, pkg)
		if err != nil {
			writeError(ctx, w, err)
			return
		}
		summaries = append(summaries, summary)
	}
	writeJSON(ctx, w, http.StatusOK, api.PackageList{
		Packages:   summaries,
		Pagination: api.Pagination{Page: page, PerPage: perPage, Total: total},
	})
}

func (s *Service) packageSummary(r *http.Request, pkg *store.Package) (api.PackageSummary, error) {
	summary := api.PackageSummary{
		Name:        pkg.Name,
		DisplayName: pkg.DisplayName,
		Description: pkg.Description,
		Authors:     pkg.Authors,
		Keywords:    pkg.Keywords,
	}
	latest, err := s.Store.LatestVersion(r.Context(), pkg.Name)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return summary, err
	}
	if latest != nil {
		summary.LatestVersion = &latest.Version
	}
	return summary, nil
}

func (s *Service) handleGetPackage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := r.PathValue("name")

	pkg, err := s.Store.GetPackage(ctx, name)
	if errors.Is(err, store.ErrNotFound) {
		writeError(ctx, w, api.Errorf(api.CodePackageNotFound, "package %q not found", name))
		return
	}
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	versions, err := s.Store.ListVersions(ctx, name, true)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	detail := api.PackageDetail{
		Name:        pkg.Name,
		DisplayName: pkg.DisplayName,
		Description: pkg.Description,
		License:     pkg.License,
		Homepage:    pkg.Homepage,
		Repository:  pkg.Repository,
		CreatedAt:   pkg.CreatedAt,
		UpdatedAt:   pkg.UpdatedAt,
		Authors:     emptyIfNil(pkg.Authors),
		Keywords:    emptyIfNil(pkg.Keywords),
		Versions:    make([]api.VersionInfo, 0, len(versions)),
	}
	for _, ver := range versions {
		detail.Versions = append(detail.Versions, versionInfo(ver, false))
	}
	writeJSON(ctx, w, http.StatusOK, detail)
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func versionInfo(ver *store.Version, withDistributions bool) api.VersionInfo {
	info := api.VersionInfo{
		Version:          ver.Version,
		Game:             ver.Game,
		MinimumAPVersion: ver.MinimumAPVersion,
		MaximumAPVersion: ver.MaximumAPVersion,
		PurePython:       ver.PurePython,
		PublishedAt:      ver.PublishedAt,
		Yanked:           ver.Yanked,
		YankReason:       ver.YankReason,
	}
	if withDistributions {
		info.Distributions = make([]api.DistributionInfo, 0, len(ver.Distributions))
		for _, dist := range ver.Distributions {
			info.Distributions = append(info.Distributions, api.DistributionInfo{
				Filename:       dist.Filename,
				SHA256:         dist.SHA256,
				Size:           dist.Size,
				PlatformTag:    dist.PlatformTag,
				ExternalURL:    dist.ExternalURL,
				RegisteredAt:   dist.RegisteredAt,
				LastVerifiedAt: dist.LastVerifiedAt,
				URLStatus:      dist.URLStatus,
			})
		}
		if len(ver.EntryPoints) > 0 {
			info.EntryPoints = make(map[string]string, len(ver.EntryPoints))
			for _, ep := range ver.EntryPoints {
				target := ep.Module
				if ep.Attr != "" {
					target += ":" + ep.Attr
				}
				info.EntryPoints[ep.Name] = target
			}
		}
	}
	return info
}

func (s *Service) handleListVersions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := r.PathValue("name")
	includeYanked := r.URL.Query().Get("include_yanked") == "true"

	versions, err := s.Store.ListVersions(ctx, name, includeYanked)
	if errors.Is(err, store.ErrNotFound) {
		writeError(ctx, w, api.Errorf(api.CodePackageNotFound, "package %q not found", name))
		return
	}
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	list := api.VersionList{
		PackageName: name,
		Versions:    make([]api.VersionInfo, 0, len(versions)),
		Total:       len(versions),
	}
	for _, ver := range versions {
		list.Versions = append(list.Versions, versionInfo(ver, false))
	}
	writeJSON(ctx, w, http.StatusOK, list)
}

// getVersion distinguishes a missing package from a missing version.
func (s *Service) getVersion(r *http.Request, name, ver string) (*store.Version, error) {
	found, err := s.Store.GetVersion(r.Context(), name, ver)
	if errors.Is(err, store.ErrNotFound) {
		if _, pkgErr := s.Store.GetPackage(r.Context(), name); errors.Is(pkgErr, store.ErrNotFound) {
			return nil, api.Errorf(api.CodePackageNotFound, "package %q not found", name)
		}
		return nil, api.Errorf(api.CodeVersionNotFound, "%s %s not found", name, ver)
	}
	if err != nil {
		return nil, err
	}
	return found, nil
}

func (s *Service) handleGetVersion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ver, err := s.getVersion(r, r.PathValue("name"), r.PathValue("version"))
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, versionInfo(ver, true))
}

func (s *Service) handleSearch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	page, perPage, err := pageParams(r)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	params := r.URL.Query()
	query := store.SearchQuery{
		Text:           params.Get("q"),
		Author:         params.Get("author"),
		Game:           params.Get("game"),
		CompatibleWith: params.Get("compatible_with"),
		Platform:       params.Get("platform"),
		Page:           page,
		PerPage:        perPage,
	}
	packages, total, err := s.Store.SearchPackages(ctx, query)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	results := make([]api.PackageSummary, 0, len(packages))
	for _, pkg := range packages {
		summary, err := s.packageSummary(r, pkg)
		if err != nil {
			writeError(ctx, w, err)
			return
		}
		results = append(results, summary)
	}
	filters := make(map[string]string)
	for _, key := range []string{"author", "game", "compatible_with", "platform"} {
		if value := params.Get(key); value != "" {
			filters[key] = value
		}
	}
	writeJSON(ctx, w, http.StatusOK, api.SearchResponse{
		Results:    results,
		Query:      query.Text,
		Filters:    filters,
		Total:      total,
		Pagination: api.Pagination{Page: page, PerPage: perPage, Total: total},
	})
}

func (s *Service) handleIndex(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	index := api.Index{
		Packages:    make(map[string]api.IndexPackage),
		GeneratedAt: time.Now().UTC(),
	}
	// Page through everything; the index is the one unpaginated view.
	for page := 1; ; page++ {
		packages, _, err := s.Store.ListPackages(ctx, page, 100)
		if err != nil {
			writeError(ctx, w, err)
			return
		}
		if len(packages) == 0 {
			break
		}
		for _, pkg := range packages {
			entry, versionCount, err := s.indexPackage(r, pkg)
			if err != nil {
				writeError(ctx, w, err)
				return
			}
			index.Packages[pkg.Name] = entry
			index.TotalPackages++
			index.TotalVersions += versionCount
		}
	}
	writeJSON(ctx, w, http.StatusOK, index)
}

func (s *Service) indexPackage(r *http.Request, pkg *store.Package) (api.IndexPackage, int, error) {
	entry := api.IndexPackage{
		DisplayName: pkg.DisplayName,
		Description: pkg.Description,
		Versions:    make(map[string]api.IndexVersion),
	}
	versions, err := s.Store.ListVersions(r.Context(), pkg.Name, true)
	if err != nil {
		return entry, 0, err
	}
	for _, ver := range versions {
		filenames := make([]string, 0, len(ver.Distributions))
		for _, dist := range ver.Distributions {
			filenames = append(filenames, dist.Filename)
		}
		entry.Versions[ver.Version] = api.IndexVersion{
			Game:             ver.Game,
			MinimumAPVersion: ver.MinimumAPVersion,
			MaximumAPVersion: ver.MaximumAPVersion,
			PurePython:       ver.PurePython,
			PublishedAt:      ver.PublishedAt.UTC().Format(time.RFC3339),
			Yanked:           ver.Yanked,
			Distributions:    filenames,
		}
	}
	latest, err := s.Store.LatestVersion(r.Context(), pkg.Name)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return entry, 0, err
	}
	if latest != nil {
		entry.LatestVersion = &latest.Version
	}
	return entry, len(versions), nil
}

func (s *Service) handleDownloadExact(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name, verStr := r.PathValue("name"), r.PathValue("version")
	filename := r.PathValue("filename")
	ver, err := s.getVersion(r, name, verStr)
	if err != nil {
		s.recordDownloadMiss(ctx, name, verStr, missSubcase(err),
			map[string]interface{}{"filename": filename})
		writeError(ctx, w, err)
		return
	}
	subcase := "file_missing"
	for _, dist := range ver.Distributions {
		if dist.Filename != filename {
			continue
		}
		if dist.URLStatus != "active" {
			subcase = "url_unavailable"
			break
		}
		redirect(w, r, &dist, false)
		return
	}
	s.recordDownloadMiss(ctx, name, verStr, subcase,
		map[string]interface{}{"filename": filename})
	writeError(ctx, w, api.Errorf(api.CodeVersionNotFound,
		"no distribution %q for %s %s", filename, ver.PackageName, ver.Version))
}

func (s *Service) handleDownloadBestMatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name, verStr := r.PathValue("name"), r.PathValue("version")
	platform := r.URL.Query().Get("platform")
	ver, err := s.getVersion(r, name, verStr)
	if err != nil {
		s.recordDownloadMiss(ctx, name, verStr, missSubcase(err),
			map[string]interface{}{"platform": platform})
		writeError(ctx, w, err)
		return
	}
	chosen := bestDistribution(ver.Distributions, platform)
	if chosen == nil {
		s.recordDownloadMiss(ctx, name, verStr, "no_compatible_distribution",
			map[string]interface{}{"platform": platform})
		writeError(ctx, w, api.Errorf(api.CodeVersionNotFound,
			"no compatible distribution for %s %s", ver.PackageName, ver.Version))
		return
	}
	redirect(w, r, chosen, true)
}

// missSubcase names why a version lookup failed; store errors (not
// 404s) get no audit row.
func missSubcase(err error) string {
	var apiErr *api.Error
	if !errors.As(err, &apiErr) {
		return ""
	}
	switch apiErr.Code {
	case api.CodePackageNotFound:
		return "package_missing"
	case api.CodeVersionNotFound:
		return "version_missing"
	default:
		return ""
	}
}

// recordDownloadMiss audits a failed download with its specific
// subcase.  Recording failures are logged, not surfaced; the client's
// 404 stands either way.
func (s *Service) recordDownloadMiss(ctx context.Context, name, ver, subcase string, details map[string]interface{}) {
	if subcase == "" {
		return
	}
	if details == nil {
		details = map[string]interface{}{}
	}
	details["subcase"] = subcase
	dlog.Warnf(ctx, "download miss for %s %s: %s", name, ver, subcase)
	err := s.Store.AppendAudit(ctx, &store.AuditEntry{
		PackageName: name,
		Version:     ver,
		Action:      "download_miss",
		ActorType:   "anonymous",
		Details:     details,
	})
	if err != nil {
		dlog.Errorf(ctx, "append download-miss audit: %v", err)
	}
}

// bestDistribution picks among active distributions: an exact
// platform-tag match wins; otherwise the compatible distribution with
// the highest specificity, ties broken by tag string so the choice is
// stable.
func bestDistribution(dists []store.Distribution, platform string) *store.Distribution {
	var want *pep425.Tag
	if platform != "" {
		tag, err := pep425.ParseTag(platform)
		if err != nil {
			return nil
		}
		want = &tag
	}

	var best *store.Distribution
	bestScore := -1
	for i := range dists {
		dist := &dists[i]
		if dist.URLStatus != "active" {
			continue
		}
		tag, err := pep425.ParseTag(dist.PlatformTag)
		if err != nil {
			continue
		}
		if want != nil {
			if dist.PlatformTag == platform {
				return dist
			}
			if !tag.Compatible(*want) {
				continue
			}
		}
		score := tag.Specificity()
		if best == nil || score > bestScore ||
			(score == bestScore && dist.PlatformTag < best.PlatformTag) {
			best = dist
			bestScore = score
		}
	}
	return best
}

func redirect(w http.ResponseWriter, r *http.Request, dist *store.Distribution, withFilename bool) {
	w.Header().Set("X-Checksum-SHA256", dist.SHA256)
	w.Header().Set("X-Expected-Size", strconv.FormatInt(dist.Size, 10))
	if withFilename {
		w.Header().Set("X-Filename", dist.Filename)
	}
	http.Redirect(w, r, dist.ExternalURL, http.StatusFound)
}

func (s *Service) handleYank(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name, verStr := r.PathValue("name"), r.PathValue("version")

	subject, err := s.authenticate(r)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	if err := requireScope(subject, auth.ScopeUpload); err != nil {
		writeError(ctx, w, err)
		return
	}
	if err := s.requireOwner(r, subject, name); err != nil {
		writeError(ctx, w, err)
		return
	}
	if _, err := s.getVersion(r, name, verStr); err != nil {
		writeError(ctx, w, err)
		return
	}

	var body api.YankRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}
	audit := &store.AuditEntry{
		PackageName: name,
		Version:     verStr,
		Action:      "yank",
		ActorID:     subject.ID,
		ActorType:   subject.Type,
		Details:     map[string]interface{}{"reason": body.Reason},
	}
	if err := s.Store.YankVersion(ctx, name, verStr, body.Reason, audit); err != nil {
		writeError(ctx, w, err)
		return
	}
	dlog.Infof(ctx, "yanked %s %s: %s", name, verStr, body.Reason)
	writeJSON(ctx, w, http.StatusOK, api.MessageResponse{
		Message: name + " " + verStr + " has been yanked",
	})
}

func (s *Service) requireOwner(r *http.Request, subject *auth.Subject, name string) error {
	publishers, err := s.Store.ListPublishers(r.Context(), name)
	if errors.Is(err, store.ErrNotFound) {
		return api.Errorf(api.CodePackageNotFound, "package %q not found", name)
	}
	if err != nil {
		return err
	}
	if !auth.IsOwner(subject, publishers) {
		return api.Errorf(api.CodeForbidden, "%s is not an owner of %q", subject.ID, name)
	}
	return nil
}

func (s *Service) handleListCollaborators(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := r.PathValue("name")

	publishers, err := s.Store.ListPublishers(ctx, name)
	if errors.Is(err, store.ErrNotFound) {
		writeError(ctx, w, api.Errorf(api.CodePackageNotFound, "package %q not found", name))
		return
	}
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	list := api.CollaboratorList{
		Package:       name,
		Collaborators: make([]api.CollaboratorInfo, 0, len(publishers)),
	}
	for _, pub := range publishers {
		list.Collaborators = append(list.Collaborators, api.CollaboratorInfo{
			PublisherID:      pub.PublisherID,
			PublisherType:    pub.PublisherType,
			IsOwner:          pub.IsOwner,
			GitHubRepository: pub.GitHubRepository,
			GitHubWorkflow:   pub.GitHubWorkflow,
		})
	}
	writeJSON(ctx, w, http.StatusOK, list)
}

func (s *Service) handleAddCollaborator(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := r.PathValue("name")

	subject, err := s.authenticate(r)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	if err := s.requireOwner(r, subject, name); err != nil {
		writeError(ctx, w, err)
		return
	}

	var body api.CollaboratorRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(ctx, w, api.Errorf(api.CodeInvalidRequest, "malformed JSON body: %v", err))
		return
	}
	if body.UserID == "" {
		writeError(ctx, w, api.Errorf(api.CodeInvalidRequest, "user_id is required"))
		return
	}
	publisherType := body.PublisherType
	if publisherType == "" {
		publisherType = "user"
	}

	pub := &store.Publisher{
		PackageName:      name,
		PublisherID:      body.UserID,
		PublisherType:    publisherType,
		GitHubRepository: body.GitHubRepository,
		GitHubWorkflow:   body.GitHubWorkflow,
	}
	audit := &store.AuditEntry{
		PackageName: name,
		Action:      "collaborator_add",
		ActorID:     subject.ID,
		ActorType:   subject.Type,
		Details:     map[string]interface{}{"collaborator": body.UserID},
	}
	if err := s.Store.AddPublisher(ctx, pub, audit); err != nil {
		if errors.Is(err, store.ErrConflict) {
			writeError(ctx, w, api.Errorf(api.CodeInvalidRequest,
				"%s is already a collaborator of %q", body.UserID, name))
			return
		}
		writeError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, api.MessageResponse{
		Message: body.UserID + " added to " + name,
	})
}

func (s *Service) handleRemoveCollaborator(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name, collaboratorID := r.PathValue("name"), r.PathValue("id")

	subject, err := s.authenticate(r)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	if err := s.requireOwner(r, subject, name); err != nil {
		writeError(ctx, w, err)
		return
	}

	audit := &store.AuditEntry{
		PackageName: name,
		Action:      "collaborator_remove",
		ActorID:     subject.ID,
		ActorType:   subject.Type,
		Details:     map[string]interface{}{"collaborator": collaboratorID},
	}
	err = s.Store.RemovePublisher(ctx, name, collaboratorID, audit)
	switch {
	case errors.Is(err, store.ErrLastOwner):
		writeError(ctx, w, api.Errorf(api.CodeForbidden,
			"cannot remove the last owner of %q", name))
	case errors.Is(err, store.ErrNotFound):
		writeError(ctx, w, api.Errorf(api.CodePackageNotFound,
			"%s is not a collaborator of %q", collaboratorID, name))
	case err != nil:
		writeError(ctx, w, err)
	default:
		writeJSON(ctx, w, http.StatusOK, api.MessageResponse{
			Message: collaboratorID + " removed from " + name,
		})
	}
}
