// Copyright (C) 2026  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/datawire/island/pkg/island/version"
)

// Postgres is the database-backed Store.
type Postgres struct {
	db *sql.DB
}

var _ Store = (*Postgres)(nil)

// NewPostgres opens a connection pool against dsn and verifies it.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Postgres{db: db}, nil
}

// Close releases the connection pool.
func (p *Postgres) Close() error { return p.db.Close() }

const schema = `
CREATE TABLE IF NOT EXISTS packages (
	name         TEXT PRIMARY KEY,
	display_name TEXT NOT NULL DEFAULT '',
	description  TEXT NOT NULL DEFAULT '',
	license      TEXT NOT NULL DEFAULT '',
	homepage     TEXT NOT NULL DEFAULT '',
	repository   TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMPTZ NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS package_authors (
	package_name TEXT NOT NULL REFERENCES packages(name) ON DELETE CASCADE,
	author       TEXT NOT NULL,
	PRIMARY KEY (package_name, author)
);

CREATE TABLE IF NOT EXISTS package_keywords (
	package_name TEXT NOT NULL REFERENCES packages(name) ON DELETE CASCADE,
	keyword      TEXT NOT NULL,
	PRIMARY KEY (package_name, keyword)
);

CREATE TABLE IF NOT EXISTS versions (
	id                 BIGSERIAL PRIMARY KEY,
	package_name       TEXT NOT NULL REFERENCES packages(name) ON DELETE CASCADE,
	version            TEXT NOT NULL,
	game               TEXT NOT NULL DEFAULT '',
	minimum_ap_version TEXT NOT NULL DEFAULT '',
	maximum_ap_version TEXT NOT NULL DEFAULT '',
	pure_python        BOOLEAN NOT NULL DEFAULT TRUE,
	published_at       TIMESTAMPTZ NOT NULL,
	yanked             BOOLEAN NOT NULL DEFAULT FALSE,
	yank_reason        TEXT NOT NULL DEFAULT '',
	UNIQUE (package_name, version)
);

CREATE TABLE IF NOT EXISTS distributions (
	id               BIGSERIAL PRIMARY KEY,
	version_id       BIGINT NOT NULL REFERENCES versions(id) ON DELETE CASCADE,
	filename         TEXT NOT NULL,
	sha256           TEXT NOT NULL,
	size             BIGINT NOT NULL,
	platform_tag     TEXT NOT NULL,
	external_url     TEXT NOT NULL,
	registered_at    TIMESTAMPTZ NOT NULL,
	last_verified_at TIMESTAMPTZ,
	url_status       TEXT NOT NULL DEFAULT 'active',
	UNIQUE (version_id, filename)
);

CREATE TABLE IF NOT EXISTS entry_points (
	id           BIGSERIAL PRIMARY KEY,
	package_name TEXT NOT NULL REFERENCES packages(name) ON DELETE CASCADE,
	version_id   BIGINT NOT NULL REFERENCES versions(id) ON DELETE CASCADE,
	type         TEXT NOT NULL,
	name         TEXT NOT NULL,
	module       TEXT NOT NULL,
	attr         TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS publishers (
	package_name      TEXT NOT NULL REFERENCES packages(name) ON DELETE CASCADE,
	publisher_id      TEXT NOT NULL,
	publisher_type    TEXT NOT NULL,
	is_owner          BOOLEAN NOT NULL DEFAULT FALSE,
	github_repository TEXT NOT NULL DEFAULT '',
	github_workflow   TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (package_name, publisher_id)
);

CREATE TABLE IF NOT EXISTS audit_log (
	id                BIGSERIAL PRIMARY KEY,
	package_name      TEXT NOT NULL,
	version           TEXT NOT NULL DEFAULT '',
	action            TEXT NOT NULL,
	actor_id          TEXT NOT NULL,
	actor_type        TEXT NOT NULL,
	at                TIMESTAMPTZ NOT NULL,
	details           JSONB,
	github_repository TEXT NOT NULL DEFAULT '',
	github_workflow   TEXT NOT NULL DEFAULT '',
	github_sha        TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS api_tokens (
	id           BIGSERIAL PRIMARY KEY,
	token_hash   TEXT NOT NULL UNIQUE,
	user_id      TEXT NOT NULL,
	name         TEXT NOT NULL DEFAULT '',
	scopes       TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMPTZ NOT NULL,
	expires_at   TIMESTAMPTZ,
	last_used_at TIMESTAMPTZ,
	revoked      BOOLEAN NOT NULL DEFAULT FALSE
);
`

// Migrate creates the schema if it does not exist.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

func (p *Postgres) CreateVersion(ctx context.Context, reg *Registration) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	name := reg.Package.Name

	var exists bool
	if err := tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM packages WHERE name = $1)`,
		name).Scan(&exists); err != nil {
		return err
	}
	if exists {
		if _, err := tx.ExecContext(ctx, `
			UPDATE packages SET
				description = $2,
				license     = CASE WHEN $3 <> '' THEN $3 ELSE license END,
				homepage    = CASE WHEN $4 <> '' THEN $4 ELSE homepage END,
				repository  = CASE WHEN $5 <> '' THEN $5 ELSE repository END,
				updated_at  = $6
			WHERE name = $1`,
			name, reg.Package.Description, reg.Package.License,
			reg.Package.Homepage, reg.Package.Repository, now); err != nil {
			return err
		}
	} else {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO packages (name, display_name, description, license, homepage, repository, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $7)`,
			name, reg.Package.DisplayName, reg.Package.Description,
			reg.Package.License, reg.Package.Homepage, reg.Package.Repository, now); err != nil {
			return err
		}
		for _, author := range reg.Package.Authors {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO package_authors (package_name, author) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
				name, author); err != nil {
				return err
			}
		}
		for _, keyword := range reg.Package.Keywords {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO package_keywords (package_name, keyword) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
				name, keyword); err != nil {
				return err
			}
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO publishers (package_name, publisher_id, publisher_type, is_owner, github_repository, github_workflow)
			VALUES ($1, $2, $3, TRUE, $4, $5)`,
			name, reg.Owner.PublisherID, reg.Owner.PublisherType,
			reg.Owner.GitHubRepository, reg.Owner.GitHubWorkflow); err != nil {
			return err
		}
	}

	publishedAt := reg.Version.PublishedAt
	if publishedAt.IsZero() {
		publishedAt = now
	}
	var versionID int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO versions (package_name, version, game, minimum_ap_version, maximum_ap_version, pure_python, published_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		name, reg.Version.Version, reg.Version.Game,
		reg.Version.MinimumAPVersion, reg.Version.MaximumAPVersion,
		reg.Version.PurePython, publishedAt).Scan(&versionID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return err
	}

	for _, dist := range reg.Version.Distributions {
		status := dist.URLStatus
		if status == "" {
			status = "active"
		}
		registeredAt := dist.RegisteredAt
		if registeredAt.IsZero() {
			registeredAt = now
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO distributions (version_id, filename, sha256, size, platform_tag, external_url, registered_at, last_verified_at, url_status)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			versionID, dist.Filename, dist.SHA256, dist.Size, dist.PlatformTag,
			dist.ExternalURL, registeredAt, dist.LastVerifiedAt, status); err != nil {
			return err
		}
	}
	for _, ep := range reg.Version.EntryPoints {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO entry_points (package_name, version_id, type, name, module, attr)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			name, versionID, ep.Type, ep.Name, ep.Module, ep.Attr); err != nil {
			return err
		}
	}
	if err := insertAudit(ctx, tx, &reg.Audit, now); err != nil {
		return err
	}
	return tx.Commit()
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func insertAudit(ctx context.Context, db execer, audit *AuditEntry, now time.Time) error {
	if audit == nil {
		return nil
	}
	at := audit.Timestamp
	if at.IsZero() {
		at = now
	}
	var details []byte
	if audit.Details != nil {
		var err error
		if details, err = json.Marshal(audit.Details); err != nil {
			return err
		}
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO audit_log (package_name, version, action, actor_id, actor_type, at, details, github_repository, github_workflow, github_sha)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		audit.PackageName, audit.Version, audit.Action, audit.ActorID,
		audit.ActorType, at, details,
		audit.GitHubRepository, audit.GitHubWorkflow, audit.GitHubSHA)
	return err
}

func (p *Postgres) AppendAudit(ctx context.Context, audit *AuditEntry) error {
	return insertAudit(ctx, p.db, audit, time.Now().UTC())
}

func (p *Postgres) GetPackage(ctx context.Context, name string) (*Package, error) {
	pkg := &Package{}
	err := p.db.QueryRowContext(ctx, `
		SELECT name, display_name, description, license, homepage, repository, created_at, updated_at
		FROM packages WHERE name = $1`, name).Scan(
		&pkg.Name, &pkg.DisplayName, &pkg.Description, &pkg.License,
		&pkg.Homepage, &pkg.Repository, &pkg.CreatedAt, &pkg.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if pkg.Authors, err = p.stringColumn(ctx,
		`SELECT author FROM package_authors WHERE package_name = $1 ORDER BY author`, name); err != nil {
		return nil, err
	}
	if pkg.Keywords, err = p.stringColumn(ctx,
		`SELECT keyword FROM package_keywords WHERE package_name = $1 ORDER BY keyword`, name); err != nil {
		return nil, err
	}
	return pkg, nil
}

func (p *Postgres) stringColumn(ctx context.Context, query string, args ...interface{}) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *Postgres) ListPackages(ctx context.Context, page, perPage int) ([]*Package, int, error) {
	var total int
	if err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM packages`).Scan(&total); err != nil {
		return nil, 0, err
	}
	names, err := p.stringColumn(ctx,
		`SELECT name FROM packages ORDER BY name LIMIT $1 OFFSET $2`,
		perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, err
	}
	out := make([]*Package, 0, len(names))
	for _, name := range names {
		pkg, err := p.GetPackage(ctx, name)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, pkg)
	}
	return out, total, nil
}

func (p *Postgres) SearchPackages(ctx context.Context, query SearchQuery) ([]*Package, int, error) {
	var (
		where []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if query.Text != "" {
		pattern := arg("%" + query.Text + "%")
		where = append(where, fmt.Sprintf(`(
			p.name ILIKE %[1]s OR p.display_name ILIKE %[1]s OR p.description ILIKE %[1]s
			OR EXISTS (SELECT 1 FROM package_keywords k WHERE k.package_name = p.name AND k.keyword ILIKE %[1]s)
		)`, pattern))
	}
	if query.Author != "" {
		pattern := arg("%" + query.Author + "%")
		where = append(where, fmt.Sprintf(
			`EXISTS (SELECT 1 FROM package_authors a WHERE a.package_name = p.name AND a.author ILIKE %s)`,
			pattern))
	}
	if query.Game != "" {
		pattern := arg(query.Game)
		where = append(where, fmt.Sprintf(
			`EXISTS (SELECT 1 FROM versions v WHERE v.package_name = p.name AND NOT v.yanked AND LOWER(v.game) = LOWER(%s))`,
			pattern))
	}
	clause := ""
	if len(where) > 0 {
		clause = "WHERE " + strings.Join(where, " AND ")
	}

	names, err := p.stringColumn(ctx,
		fmt.Sprintf(`SELECT p.name FROM packages p %s ORDER BY p.name`, clause), args...)
	if err != nil {
		return nil, 0, err
	}

	// Compatibility and platform filters need semver and tag semantics
	// that SQL cannot express; apply them in process.
	var matched []*Package
	for _, name := range names {
		if query.CompatibleWith != "" || query.Platform != "" {
			ok, err := p.versionFilterMatches(ctx, name, query)
			if err != nil {
				return nil, 0, err
			}
			if !ok {
				continue
			}
		}
		pkg, err := p.GetPackage(ctx, name)
		if err != nil {
			return nil, 0, err
		}
		matched = append(matched, pkg)
	}
	return paginate(matched, query.Page, query.PerPage)
}

func (p *Postgres) versionFilterMatches(ctx context.Context, name string, query SearchQuery) (bool, error) {
	versions, err := p.ListVersions(ctx, name, false)
	if err != nil {
		return false, err
	}
	for _, ver := range versions {
		if query.CompatibleWith != "" {
			ok, err := version.InRange(query.CompatibleWith, ver.MinimumAPVersion, ver.MaximumAPVersion)
			if err != nil || !ok {
				continue
			}
		}
		if query.Platform != "" && !anyDistCompatible(ver.Distributions, query.Platform) {
			continue
		}
		return true, nil
	}
	return false, nil
}

func (p *Postgres) ListVersions(ctx context.Context, name string, includeYanked bool) ([]*Version, error) {
	if _, err := p.GetPackage(ctx, name); err != nil {
		return nil, err
	}
	query := `
		SELECT id, package_name, version, game, minimum_ap_version, maximum_ap_version, pure_python, published_at, yanked, yank_reason
		FROM versions WHERE package_name = $1`
	if !includeYanked {
		query += ` AND NOT yanked`
	}
	rows, err := p.db.QueryContext(ctx, query, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var (
		out []*Version
		ids []int64
	)
	for rows.Next() {
		ver := &Version{}
		var id int64
		if err := rows.Scan(&id, &ver.PackageName, &ver.Version, &ver.Game,
			&ver.MinimumAPVersion, &ver.MaximumAPVersion, &ver.PurePython,
			&ver.PublishedAt, &ver.Yanked, &ver.YankReason); err != nil {
			return nil, err
		}
		out = append(out, ver)
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, ver := range out {
		if ver.Distributions, err = p.distributions(ctx, ids[i]); err != nil {
			return nil, err
		}
		if ver.EntryPoints, err = p.entryPoints(ctx, ids[i]); err != nil {
			return nil, err
		}
	}
	sortVersionsNewestFirst(out)
	return out, nil
}

func (p *Postgres) distributions(ctx context.Context, versionID int64) ([]Distribution, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT filename, sha256, size, platform_tag, external_url, registered_at, last_verified_at, url_status
		FROM distributions WHERE version_id = $1 ORDER BY filename`, versionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Distribution
	for rows.Next() {
		var dist Distribution
		var lastVerified sql.NullTime
		if err := rows.Scan(&dist.Filename, &dist.SHA256, &dist.Size,
			&dist.PlatformTag, &dist.ExternalURL, &dist.RegisteredAt,
			&lastVerified, &dist.URLStatus); err != nil {
			return nil, err
		}
		if lastVerified.Valid {
			at := lastVerified.Time
			dist.LastVerifiedAt = &at
		}
		out = append(out, dist)
	}
	return out, rows.Err()
}

func (p *Postgres) entryPoints(ctx context.Context, versionID int64) ([]EntryPoint, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT type, name, module, attr FROM entry_points WHERE version_id = $1 ORDER BY type, name`, versionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []EntryPoint
	for rows.Next() {
		var ep EntryPoint
		if err := rows.Scan(&ep.Type, &ep.Name, &ep.Module, &ep.Attr); err != nil {
			return nil, err
		}
		out = append(out, ep)
	}
	return out, rows.Err()
}

func (p *Postgres) GetVersion(ctx context.Context, name, ver string) (*Version, error) {
	versions, err := p.ListVersions(ctx, name, true)
	if err != nil {
		return nil, err
	}
	for _, existing := range versions {
		if existing.Version == ver {
			return existing, nil
		}
	}
	return nil, ErrNotFound
}

func (p *Postgres) LatestVersion(ctx context.Context, name string) (*Version, error) {
	versions, err := p.ListVersions(ctx, name, false)
	if err != nil {
		return nil, err
	}
	var latest *Version
	for _, ver := range versions {
		if latest == nil || newerThan(ver, latest) {
			latest = ver
		}
	}
	return latest, nil
}

func (p *Postgres) YankVersion(ctx context.Context, name, ver, reason string, audit *AuditEntry) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE versions SET yanked = TRUE, yank_reason = $3
		WHERE package_name = $1 AND version = $2`, name, ver, reason)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	if err := insertAudit(ctx, tx, audit, time.Now().UTC()); err != nil {
		return err
	}
	return tx.Commit()
}

func (p *Postgres) ListPublishers(ctx context.Context, name string) ([]*Publisher, error) {
	if _, err := p.GetPackage(ctx, name); err != nil {
		return nil, err
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT package_name, publisher_id, publisher_type, is_owner, github_repository, github_workflow
		FROM publishers WHERE package_name = $1 ORDER BY publisher_id`, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Publisher
	for rows.Next() {
		pub := &Publisher{}
		if err := rows.Scan(&pub.PackageName, &pub.PublisherID, &pub.PublisherType,
			&pub.IsOwner, &pub.GitHubRepository, &pub.GitHubWorkflow); err != nil {
			return nil, err
		}
		out = append(out, pub)
	}
	return out, rows.Err()
}

func (p *Postgres) AddPublisher(ctx context.Context, pub *Publisher, audit *AuditEntry) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var exists bool
	if err := tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM packages WHERE name = $1)`, pub.PackageName).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO publishers (package_name, publisher_id, publisher_type, is_owner, github_repository, github_workflow)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		pub.PackageName, pub.PublisherID, pub.PublisherType, pub.IsOwner,
		pub.GitHubRepository, pub.GitHubWorkflow); err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return err
	}
	if err := insertAudit(ctx, tx, audit, time.Now().UTC()); err != nil {
		return err
	}
	return tx.Commit()
}

func (p *Postgres) RemovePublisher(ctx context.Context, name, publisherID string, audit *AuditEntry) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var isOwner bool
	err = tx.QueryRowContext(ctx, `
		SELECT is_owner FROM publishers
		WHERE package_name = $1 AND publisher_id = $2 FOR UPDATE`,
		name, publisherID).Scan(&isOwner)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if isOwner {
		var owners int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM publishers WHERE package_name = $1 AND is_owner`,
			name).Scan(&owners); err != nil {
			return err
		}
		if owners <= 1 {
			return ErrLastOwner
		}
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM publishers WHERE package_name = $1 AND publisher_id = $2`,
		name, publisherID); err != nil {
		return err
	}
	if err := insertAudit(ctx, tx, audit, time.Now().UTC()); err != nil {
		return err
	}
	return tx.Commit()
}

func (p *Postgres) CreateToken(ctx context.Context, token *APIToken) error {
	createdAt := token.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
		token.CreatedAt = createdAt
	}
	return p.db.QueryRowContext(ctx, `
		INSERT INTO api_tokens (token_hash, user_id, name, scopes, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		token.TokenHash, token.UserID, token.Name,
		strings.Join(token.Scopes, ","), createdAt, token.ExpiresAt).Scan(&token.ID)
}

func (p *Postgres) GetTokenByHash(ctx context.Context, hash string) (*APIToken, error) {
	token := &APIToken{}
	var (
		scopes     string
		expiresAt  sql.NullTime
		lastUsedAt sql.NullTime
	)
	err := p.db.QueryRowContext(ctx, `
		SELECT id, token_hash, user_id, name, scopes, created_at, expires_at, last_used_at, revoked
		FROM api_tokens WHERE token_hash = $1 AND NOT revoked`, hash).Scan(
		&token.ID, &token.TokenHash, &token.UserID, &token.Name, &scopes,
		&token.CreatedAt, &expiresAt, &lastUsedAt, &token.Revoked)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if scopes != "" {
		token.Scopes = strings.Split(scopes, ",")
	}
	if expiresAt.Valid {
		at := expiresAt.Time
		token.ExpiresAt = &at
	}
	if lastUsedAt.Valid {
		at := lastUsedAt.Time
		token.LastUsedAt = &at
	}
	return token, nil
}

func (p *Postgres) TouchToken(ctx context.Context, id int64, when time.Time) error {
	_, err := p.db.ExecContext(ctx,
		`UPDATE api_tokens SET last_used_at = $2 WHERE id = $1`, id, when)
	return err
}

func (p *Postgres) RevokeToken(ctx context.Context, id int64) error {
	res, err := p.db.ExecContext(ctx,
		`UPDATE api_tokens SET revoked = TRUE WHERE id = $1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
