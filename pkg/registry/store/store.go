// Copyright (C) 2026  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package store persists the registry's packages, versions,
// distributions, publishers, tokens, and audit trail.  Two
// implementations exist: Memory for tests and single-process use, and
// Postgres for deployments.
package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound reports a missing package, version, distribution,
	// publisher, or token.
	ErrNotFound = errors.New("not found")
	// ErrConflict reports an attempt to re-create an existing
	// (package, version) pair.
	ErrConflict = errors.New("already exists")
	// ErrLastOwner reports an attempt to remove a package's only owner.
	ErrLastOwner = errors.New("cannot remove the last owner")
)

// Package is registry-level package metadata, shared by all versions.
type Package struct {
	Name        string
	DisplayName string
	Description string
	License     string
	Homepage    string
	Repository  string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Authors     []string
	Keywords    []string
}

// Version is one immutable release of a package.  Only Yanked and
// YankReason change after creation.
type Version struct {
	PackageName      string
	Version          string
	Game             string
	MinimumAPVersion string
	MaximumAPVersion string
	PurePython       bool
	PublishedAt      time.Time
	Yanked           bool
	YankReason       string
	Distributions    []Distribution
	EntryPoints      []EntryPoint
}

// Distribution is one externally-hosted artifact of a version.
type Distribution struct {
	Filename       string
	SHA256         string
	Size           int64
	PlatformTag    string
	ExternalURL    string
	RegisteredAt   time.Time
	LastVerifiedAt *time.Time
	URLStatus      string // "active" or "unavailable"
}

// EntryPoint is one named loadable object exported by a version.
type EntryPoint struct {
	Type   string
	Name   string
	Module string
	Attr   string
}

// Publisher is an identity allowed to publish a package.
type Publisher struct {
	PackageName      string
	PublisherID      string
	PublisherType    string // "user" or "trusted_publisher"
	IsOwner          bool
	GitHubRepository string
	GitHubWorkflow   string
}

// AuditEntry is one append-only audit-log row.
type AuditEntry struct {
	PackageName      string
	Version          string
	Action           string
	ActorID          string
	ActorType        string
	Timestamp        time.Time
	Details          map[string]interface{}
	GitHubRepository string
	GitHubWorkflow   string
	GitHubSHA        string
}

// APIToken is a stored credential; only the SHA-256 hex of the
// plaintext is kept.
type APIToken struct {
	ID         int64
	TokenHash  string
	UserID     string
	Name       string
	Scopes     []string
	CreatedAt  time.Time
	ExpiresAt  *time.Time
	LastUsedAt *time.Time
	Revoked    bool
}

// Registration bundles everything CreateVersion persists in one
// transaction.
type Registration struct {
	Package Package
	Version Version
	// Owner is installed as the owning publisher when the package does
	// not exist yet; ignored otherwise.
	Owner Publisher
	Audit AuditEntry
}

// SearchQuery is the conjunction of optional discovery filters.
type SearchQuery struct {
	Text           string
	Author         string
	Game           string
	CompatibleWith string
	Platform       string
	Page           int
	PerPage        int
}

// Store is the registry's persistence interface.  All methods are safe
// for concurrent use.
type Store interface {
	// CreateVersion atomically upserts the package and inserts the
	// version with its distributions, entry points, and audit entry.
	// Returns ErrConflict when the (package, version) pair exists.
	CreateVersion(ctx context.Context, reg *Registration) error

	GetPackage(ctx context.Context, name string) (*Package, error)
	ListPackages(ctx context.Context, page, perPage int) ([]*Package, int, error)
	SearchPackages(ctx context.Context, query SearchQuery) ([]*Package, int, error)

	// ListVersions returns versions newest-first.  Yanked versions are
	// included only when includeYanked is set.
	ListVersions(ctx context.Context, name string, includeYanked bool) ([]*Version, error)
	GetVersion(ctx context.Context, name, ver string) (*Version, error)
	// LatestVersion returns the newest non-yanked version, or nil when
	// the package exists but has none.
	LatestVersion(ctx context.Context, name string) (*Version, error)
	YankVersion(ctx context.Context, name, ver, reason string, audit *AuditEntry) error

	ListPublishers(ctx context.Context, name string) ([]*Publisher, error)
	AddPublisher(ctx context.Context, pub *Publisher, audit *AuditEntry) error
	// RemovePublisher returns ErrLastOwner when the row is the
	// package's only owner.
	RemovePublisher(ctx context.Context, name, publisherID string, audit *AuditEntry) error

	// AppendAudit records a standalone audit row, for events that are
	// not part of another mutation (download misses, token admin).
	AppendAudit(ctx context.Context, audit *AuditEntry) error

	CreateToken(ctx context.Context, token *APIToken) error
	GetTokenByHash(ctx context.Context, hash string) (*APIToken, error)
	TouchToken(ctx context.Context, id int64, when time.Time) error
	RevokeToken(ctx context.Context, id int64) error
}
