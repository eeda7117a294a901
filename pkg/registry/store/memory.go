// Copyright (C) 2026  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/datawire/island/pkg/island/version"
	"github.com/datawire/island/pkg/python/pep425"
)

// Memory is an in-process Store.  It backs the test harness and
// single-process deployments with no database.
type Memory struct {
	mu         sync.RWMutex
	packages   map[string]*Package
	versions   map[string][]*Version // keyed by package name, insertion order
	publishers map[string][]*Publisher
	audit      []*AuditEntry
	tokens     []*APIToken
	nextToken  int64
}

var _ Store = (*Memory)(nil)

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		packages:   make(map[string]*Package),
		versions:   make(map[string][]*Version),
		publishers: make(map[string][]*Publisher),
	}
}

func (m *Memory) CreateVersion(_ context.Context, reg *Registration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	name := reg.Package.Name
	for _, existing := range m.versions[name] {
		if existing.Version == reg.Version.Version {
			return ErrConflict
		}
	}

	now := time.Now().UTC()
	if pkg, ok := m.packages[name]; ok {
		pkg.Description = reg.Package.Description
		if reg.Package.License != "" {
			pkg.License = reg.Package.License
		}
		if reg.Package.Homepage != "" {
			pkg.Homepage = reg.Package.Homepage
		}
		if reg.Package.Repository != "" {
			pkg.Repository = reg.Package.Repository
		}
		pkg.UpdatedAt = now
	} else {
		pkg := reg.Package
		pkg.CreatedAt = now
		pkg.UpdatedAt = now
		m.packages[name] = &pkg

		owner := reg.Owner
		owner.PackageName = name
		owner.IsOwner = true
		m.publishers[name] = []*Publisher{&owner}
	}

	ver := reg.Version
	ver.PackageName = name
	if ver.PublishedAt.IsZero() {
		ver.PublishedAt = now
	}
	for i := range ver.Distributions {
		if ver.Distributions[i].URLStatus == "" {
			ver.Distributions[i].URLStatus = "active"
		}
		if ver.Distributions[i].RegisteredAt.IsZero() {
			ver.Distributions[i].RegisteredAt = now
		}
	}
	m.versions[name] = append(m.versions[name], &ver)

	audit := reg.Audit
	audit.PackageName = name
	if audit.Timestamp.IsZero() {
		audit.Timestamp = now
	}
	m.audit = append(m.audit, &audit)
	return nil
}

func (m *Memory) GetPackage(_ context.Context, name string) (*Package, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pkg, ok := m.packages[name]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *pkg
	return &cp, nil
}

func (m *Memory) ListPackages(_ context.Context, page, perPage int) ([]*Package, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return paginate(m.sortedPackages(), page, perPage)
}

func (m *Memory) SearchPackages(_ context.Context, query SearchQuery) ([]*Package, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []*Package
	for _, pkg := range m.sortedPackages() {
		if m.matches(pkg, query) {
			matched = append(matched, pkg)
		}
	}
	return paginate(matched, query.Page, query.PerPage)
}

func (m *Memory) matches(pkg *Package, query SearchQuery) bool {
	if query.Text != "" && !m.matchesText(pkg, query.Text) {
		return false
	}
	if query.Author != "" {
		found := false
		for _, author := range pkg.Authors {
			if containsFold(author, query.Author) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if query.Game != "" || query.CompatibleWith != "" || query.Platform != "" {
		if !m.anyVersionMatches(pkg.Name, query) {
			return false
		}
	}
	return true
}

func (m *Memory) matchesText(pkg *Package, text string) bool {
	if containsFold(pkg.Name, text) ||
		containsFold(pkg.DisplayName, text) ||
		containsFold(pkg.Description, text) {
		return true
	}
	for _, keyword := range pkg.Keywords {
		if containsFold(keyword, text) {
			return true
		}
	}
	return false
}

func (m *Memory) anyVersionMatches(name string, query SearchQuery) bool {
	for _, ver := range m.versions[name] {
		if ver.Yanked {
			continue
		}
		if query.Game != "" && !strings.EqualFold(ver.Game, query.Game) {
			continue
		}
		if query.CompatibleWith != "" {
			ok, err := version.InRange(query.CompatibleWith, ver.MinimumAPVersion, ver.MaximumAPVersion)
			if err != nil || !ok {
				continue
			}
		}
		if query.Platform != "" && !anyDistCompatible(ver.Distributions, query.Platform) {
			continue
		}
		return true
	}
	return false
}

func anyDistCompatible(dists []Distribution, platform string) bool {
	want, err := pep425.ParseTag(platform)
	if err != nil {
		return false
	}
	for _, dist := range dists {
		tag, err := pep425.ParseTag(dist.PlatformTag)
		if err != nil {
			continue
		}
		if tag.Compatible(want) {
			return true
		}
	}
	return false
}

func (m *Memory) ListVersions(_ context.Context, name string, includeYanked bool) ([]*Version, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.packages[name]; !ok {
		return nil, ErrNotFound
	}
	var out []*Version
	for _, ver := range m.versions[name] {
		if ver.Yanked && !includeYanked {
			continue
		}
		cp := *ver
		out = append(out, &cp)
	}
	sortVersionsNewestFirst(out)
	return out, nil
}

func (m *Memory) GetVersion(_ context.Context, name, ver string) (*Version, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.packages[name]; !ok {
		return nil, ErrNotFound
	}
	for _, existing := range m.versions[name] {
		if existing.Version == ver {
			cp := *existing
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) LatestVersion(_ context.Context, name string) (*Version, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.packages[name]; !ok {
		return nil, ErrNotFound
	}
	var latest *Version
	for _, ver := range m.versions[name] {
		if ver.Yanked {
			continue
		}
		if latest == nil || newerThan(ver, latest) {
			latest = ver
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (m *Memory) YankVersion(_ context.Context, name, ver, reason string, audit *AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.packages[name]; !ok {
		return ErrNotFound
	}
	for _, existing := range m.versions[name] {
		if existing.Version == ver {
			existing.Yanked = true
			existing.YankReason = reason
			m.appendAuditLocked(audit)
			return nil
		}
	}
	return ErrNotFound
}

func (m *Memory) ListPublishers(_ context.Context, name string) ([]*Publisher, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.packages[name]; !ok {
		return nil, ErrNotFound
	}
	var out []*Publisher
	for _, pub := range m.publishers[name] {
		cp := *pub
		out = append(out, &cp)
	}
	return out, nil
}

func (m *Memory) AddPublisher(_ context.Context, pub *Publisher, audit *AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.packages[pub.PackageName]; !ok {
		return ErrNotFound
	}
	for _, existing := range m.publishers[pub.PackageName] {
		if existing.PublisherID == pub.PublisherID {
			return ErrConflict
		}
	}
	cp := *pub
	m.publishers[pub.PackageName] = append(m.publishers[pub.PackageName], &cp)
	m.appendAuditLocked(audit)
	return nil
}

func (m *Memory) RemovePublisher(_ context.Context, name, publisherID string, audit *AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.packages[name]; !ok {
		return ErrNotFound
	}
	pubs := m.publishers[name]
	idx := -1
	owners := 0
	for i, pub := range pubs {
		if pub.IsOwner {
			owners++
		}
		if pub.PublisherID == publisherID {
			idx = i
		}
	}
	if idx < 0 {
		return ErrNotFound
	}
	if pubs[idx].IsOwner && owners <= 1 {
		return ErrLastOwner
	}
	m.publishers[name] = append(pubs[:idx:idx], pubs[idx+1:]...)
	m.appendAuditLocked(audit)
	return nil
}

func (m *Memory) CreateToken(_ context.Context, token *APIToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextToken++
	token.ID = m.nextToken
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}
	cp := *token
	m.tokens = append(m.tokens, &cp)
	return nil
}

func (m *Memory) GetTokenByHash(_ context.Context, hash string) (*APIToken, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, token := range m.tokens {
		if token.TokenHash == hash && !token.Revoked {
			cp := *token
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) TouchToken(_ context.Context, id int64, when time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, token := range m.tokens {
		if token.ID == id {
			at := when
			token.LastUsedAt = &at
			return nil
		}
	}
	return ErrNotFound
}

func (m *Memory) RevokeToken(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, token := range m.tokens {
		if token.ID == id {
			token.Revoked = true
			return nil
		}
	}
	return ErrNotFound
}

func (m *Memory) AppendAudit(_ context.Context, audit *AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appendAuditLocked(audit)
	return nil
}

// AuditEntries returns a copy of the audit log, for tests and the
// admin surface.
func (m *Memory) AuditEntries() []*AuditEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*AuditEntry, len(m.audit))
	for i, entry := range m.audit {
		cp := *entry
		out[i] = &cp
	}
	return out
}

func (m *Memory) appendAuditLocked(audit *AuditEntry) {
	if audit == nil {
		return
	}
	cp := *audit
	if cp.Timestamp.IsZero() {
		cp.Timestamp = time.Now().UTC()
	}
	m.audit = append(m.audit, &cp)
}

func (m *Memory) sortedPackages() []*Package {
	out := make([]*Package, 0, len(m.packages))
	for _, pkg := range m.packages {
		cp := *pkg
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func paginate(pkgs []*Package, page, perPage int) ([]*Package, int, error) {
	total := len(pkgs)
	start := (page - 1) * perPage
	if start >= total {
		return nil, total, nil
	}
	end := start + perPage
	if end > total {
		end = total
	}
	return pkgs[start:end], total, nil
}

func sortVersionsNewestFirst(versions []*Version) {
	strs := make([]string, len(versions))
	byStr := make(map[string]*Version, len(versions))
	for i, ver := range versions {
		strs[i] = ver.Version
		byStr[ver.Version] = ver
	}
	version.Sort(strs)
	for i := range strs {
		versions[len(strs)-1-i] = byStr[strs[i]]
	}
}

func newerThan(a, b *Version) bool {
	if !a.PublishedAt.Equal(b.PublishedAt) {
		return a.PublishedAt.After(b.PublishedAt)
	}
	cmp, err := version.Compare(a.Version, b.Version)
	if err != nil {
		return a.Version > b.Version
	}
	return cmp > 0
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
