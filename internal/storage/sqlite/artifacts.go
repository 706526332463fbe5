package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/skillmeat/skillmeat/internal/storage"
	"github.com/skillmeat/skillmeat/internal/types"
)

const artifactColumns = `uuid, collection_id, name, type, origin, upstream,
	version_spec, resolved_version, content_hash, path_pattern, tags, metadata,
	created_at, updated_at`

// createArtifact inserts a single artifact. On a (collection_id, type, name)
// unique violation the existing row's uuid is returned inside ConflictError
// so importers can reuse it.
func createArtifact(ctx context.Context, q dbtx, a *types.Artifact) error {
	now := time.Now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now

	_, err := q.ExecContext(ctx, `
		INSERT INTO artifacts (`+artifactColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		a.UUID, a.CollectionID, a.Name, string(a.Type), string(a.Origin), a.Upstream,
		a.VersionSpec, a.ResolvedVersion, a.ContentHash, a.PathPattern,
		encodeStringSlice(a.Tags), encodeStringMap(a.Metadata),
		a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			var existing string
			lookupErr := q.QueryRowContext(ctx, `
				SELECT uuid FROM artifacts WHERE collection_id = ? AND type = ? AND name = ?
			`, a.CollectionID, string(a.Type), a.Name).Scan(&existing)
			if lookupErr == nil {
				return &types.ConflictError{Entity: "artifact", ExistingID: existing}
			}
			return &types.ConflictError{Entity: "artifact", ExistingID: a.UUID}
		}
		return fmt.Errorf("insert artifact: %w", err)
	}
	return nil
}

func getArtifact(ctx context.Context, q dbtx, uuid string) (*types.Artifact, error) {
	row := q.QueryRowContext(ctx, `
		SELECT `+artifactColumns+` FROM artifacts WHERE uuid = ?
	`, uuid)
	a, err := scanArtifact(row.Scan)
	if err == sql.ErrNoRows {
		return nil, &types.NotFoundError{Entity: "artifact", ID: uuid}
	}
	if err != nil {
		return nil, fmt.Errorf("get artifact: %w", err)
	}
	return a, nil
}

// updateArtifact applies the non-nil fields of upd. UUID, collection, type,
// and created_at never change; a rename keeps the uuid.
func updateArtifact(ctx context.Context, q dbtx, uuid string, upd storage.ArtifactUpdate) error {
	sets := []string{"updated_at = ?"}
	args := []any{time.Now().UTC()}

	if upd.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *upd.Name)
	}
	if upd.Upstream != nil {
		sets = append(sets, "upstream = ?")
		args = append(args, *upd.Upstream)
	}
	if upd.VersionSpec != nil {
		sets = append(sets, "version_spec = ?")
		args = append(args, *upd.VersionSpec)
	}
	if upd.ResolvedVersion != nil {
		sets = append(sets, "resolved_version = ?")
		args = append(args, *upd.ResolvedVersion)
	}
	if upd.ContentHash != nil {
		sets = append(sets, "content_hash = ?")
		args = append(args, *upd.ContentHash)
	}
	if upd.PathPattern != nil {
		sets = append(sets, "path_pattern = ?")
		args = append(args, *upd.PathPattern)
	}
	if upd.Tags != nil {
		sets = append(sets, "tags = ?")
		args = append(args, encodeStringSlice(*upd.Tags))
	}
	if upd.Metadata != nil {
		sets = append(sets, "metadata = ?")
		args = append(args, encodeStringMap(*upd.Metadata))
	}

	args = append(args, uuid)
	res, err := q.ExecContext(ctx,
		"UPDATE artifacts SET "+strings.Join(sets, ", ")+" WHERE uuid = ?", args...)
	if err != nil {
		if isUniqueConstraintError(err) {
			return &types.ConflictError{Entity: "artifact", ExistingID: uuid}
		}
		return fmt.Errorf("update artifact: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return &types.NotFoundError{Entity: "artifact", ID: uuid}
	}
	return nil
}

func deleteArtifact(ctx context.Context, q dbtx, uuid string) error {
	res, err := q.ExecContext(ctx, `DELETE FROM artifacts WHERE uuid = ?`, uuid)
	if err != nil {
		return fmt.Errorf("delete artifact: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return &types.NotFoundError{Entity: "artifact", ID: uuid}
	}
	return nil
}

func findArtifactByContentHash(ctx context.Context, q dbtx, collectionID, hash string) (*types.Artifact, error) {
	row := q.QueryRowContext(ctx, `
		SELECT `+artifactColumns+` FROM artifacts
		WHERE collection_id = ? AND content_hash = ?
		ORDER BY created_at LIMIT 1
	`, collectionID, hash)
	a, err := scanArtifact(row.Scan)
	if err == sql.ErrNoRows {
		return nil, &types.NotFoundError{Entity: "artifact", ID: hash}
	}
	if err != nil {
		return nil, fmt.Errorf("find artifact by content hash: %w", err)
	}
	return a, nil
}

func findArtifactByUpstream(ctx context.Context, q dbtx, origin types.Origin, upstream string, typ types.ArtifactType, name string) (*types.Artifact, error) {
	row := q.QueryRowContext(ctx, `
		SELECT `+artifactColumns+` FROM artifacts
		WHERE origin = ? AND upstream = ? AND type = ? AND name = ?
		ORDER BY created_at LIMIT 1
	`, string(origin), upstream, string(typ), name)
	a, err := scanArtifact(row.Scan)
	if err == sql.ErrNoRows {
		return nil, &types.NotFoundError{Entity: "artifact", ID: upstream}
	}
	if err != nil {
		return nil, fmt.Errorf("find artifact by upstream: %w", err)
	}
	return a, nil
}

// Storage methods

func (s *SQLiteStorage) CreateArtifact(ctx context.Context, a *types.Artifact) error {
	return createArtifact(ctx, s.db, a)
}

func (s *SQLiteStorage) GetArtifact(ctx context.Context, uuid string) (*types.Artifact, error) {
	return getArtifact(ctx, s.db, uuid)
}

func (s *SQLiteStorage) UpdateArtifact(ctx context.Context, uuid string, upd storage.ArtifactUpdate) error {
	return updateArtifact(ctx, s.db, uuid, upd)
}

func (s *SQLiteStorage) DeleteArtifact(ctx context.Context, uuid string) error {
	return deleteArtifact(ctx, s.db, uuid)
}

func (s *SQLiteStorage) FindArtifactByContentHash(ctx context.Context, collectionID, hash string) (*types.Artifact, error) {
	return findArtifactByContentHash(ctx, s.db, collectionID, hash)
}

func (s *SQLiteStorage) FindArtifactByUpstream(ctx context.Context, origin types.Origin, upstream string, typ types.ArtifactType, name string) (*types.Artifact, error) {
	return findArtifactByUpstream(ctx, s.db, origin, upstream, typ, name)
}

// ListArtifacts returns one keyset page ordered by (created_at, uuid).
func (s *SQLiteStorage) ListArtifacts(ctx context.Context, filter types.ArtifactFilter, page types.Page) (*types.ArtifactPage, error) {
	var conds []string
	var args []any

	if filter.CollectionID != "" {
		conds = append(conds, "collection_id = ?")
		args = append(args, filter.CollectionID)
	}
	if filter.Type != nil {
		conds = append(conds, "type = ?")
		args = append(args, string(*filter.Type))
	}
	if filter.Origin != nil {
		conds = append(conds, "origin = ?")
		args = append(args, string(*filter.Origin))
	}
	if filter.NameContains != "" {
		conds = append(conds, "name LIKE ?")
		args = append(args, "%"+filter.NameContains+"%")
	}
	if filter.Tag != "" {
		// tags is a JSON array; match the quoted element
		conds = append(conds, "tags LIKE ?")
		args = append(args, `%"`+filter.Tag+`"%`)
	}
	if key, ok := decodeCursor(page.Cursor); ok {
		conds = append(conds, "(created_at, uuid) > (?, ?)")
		args = append(args, key.CreatedAt, key.ID)
	}

	query := "SELECT " + artifactColumns + " FROM artifacts"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at, uuid"
	if page.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", page.Limit+1)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*types.Artifact
	for rows.Next() {
		a, err := scanArtifact(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan artifact: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	result := &types.ArtifactPage{Artifacts: out}
	if page.Limit > 0 && len(out) > page.Limit {
		result.Artifacts = out[:page.Limit]
		last := result.Artifacts[len(result.Artifacts)-1]
		result.NextCursor = encodeCursor(last.CreatedAt, last.UUID)
	}
	return result, nil
}

// Transaction methods

func (t *Tx) CreateArtifact(ctx context.Context, a *types.Artifact) error {
	return createArtifact(ctx, t.tx, a)
}

func (t *Tx) GetArtifact(ctx context.Context, uuid string) (*types.Artifact, error) {
	return getArtifact(ctx, t.tx, uuid)
}

func (t *Tx) UpdateArtifact(ctx context.Context, uuid string, upd storage.ArtifactUpdate) error {
	return updateArtifact(ctx, t.tx, uuid, upd)
}

func (t *Tx) DeleteArtifact(ctx context.Context, uuid string) error {
	return deleteArtifact(ctx, t.tx, uuid)
}

func (t *Tx) FindArtifactByContentHash(ctx context.Context, collectionID, hash string) (*types.Artifact, error) {
	return findArtifactByContentHash(ctx, t.tx, collectionID, hash)
}

func (t *Tx) FindArtifactByUpstream(ctx context.Context, origin types.Origin, upstream string, typ types.ArtifactType, name string) (*types.Artifact, error) {
	return findArtifactByUpstream(ctx, t.tx, origin, upstream, typ, name)
}

// scanArtifact decodes one artifact row via the provided scan function, so
// *sql.Row and *sql.Rows share a decoder. Returns sql.ErrNoRows unchanged
// for callers to translate.
func scanArtifact(scan func(dest ...any) error) (*types.Artifact, error) {
	var a types.Artifact
	var typ, origin, tags, metadata string
	err := scan(
		&a.UUID, &a.CollectionID, &a.Name, &typ, &origin, &a.Upstream,
		&a.VersionSpec, &a.ResolvedVersion, &a.ContentHash, &a.PathPattern,
		&tags, &metadata, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.Type = types.ArtifactType(typ)
	a.Origin = types.Origin(origin)
	a.Tags = decodeStringSlice(tags)
	a.Metadata = decodeStringMap(metadata)
	return &a, nil
}
