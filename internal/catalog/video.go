// SPDX-License-Identifier: MIT

package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/vds-project/vds/internal/manifest"
)

// FindVideo returns the row for id, or ErrNotFound.
func (c *Catalog) FindVideo(ctx context.Context, id uuid.UUID) (*Video, error) {
	const query = `
	SELECT id, name, file_size, downloaded_size, download_status, message, file_path, view_count
	FROM videos WHERE id = ?
	`
	row := c.db.QueryRowContext(ctx, query, id.String())
	v, err := scanVideo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: find video: %w", err)
	}
	return v, nil
}

// ListAllVideos returns every row in the store, in no particular order.
func (c *Catalog) ListAllVideos(ctx context.Context) ([]Video, error) {
	const query = `
	SELECT id, name, file_size, downloaded_size, download_status, message, file_path, view_count
	FROM videos
	`
	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("catalog: list videos: %w", err)
	}
	defer rows.Close()

	var out []Video
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, fmt.Errorf("catalog: scan video: %w", err)
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}

// InsertVideo creates a new row with status Pending, 0 views, and an empty
// path. Returns ErrAlreadyExists if id is already present.
func (c *Catalog) InsertVideo(ctx context.Context, id uuid.UUID, name string, fileSize uint64) error {
	const query = `
	INSERT INTO videos (id, name, file_size, downloaded_size, download_status, message, file_path, view_count)
	VALUES (?, ?, ?, 0, ?, '', '', 0)
	`
	_, err := c.db.ExecContext(ctx, query, id.String(), name, fileSize, StatusPending)
	if err != nil {
		if isUniqueConstraintErr(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("catalog: insert video: %w", err)
	}
	return nil
}

// DeleteVideo removes id's row, refusing with ErrVideoStillInManifest if id
// is referenced by the currently-published manifest.
func (c *Catalog) DeleteVideo(ctx context.Context, id uuid.UUID) error {
	if m, ok := c.CurrentManifest(); ok && manifestReferences(m, id) {
		return ErrVideoStillInManifest
	}
	_, err := c.db.ExecContext(ctx, `DELETE FROM videos WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("catalog: delete video: %w", err)
	}
	return nil
}

// IncrementViewCount atomically increments view_count for id.
func (c *Catalog) IncrementViewCount(ctx context.Context, id uuid.UUID) error {
	res, err := c.db.ExecContext(ctx, `UPDATE videos SET view_count = view_count + 1 WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("catalog: increment view count: %w", err)
	}
	return requireRowAffected(res, id)
}

// UpdateDownloadProgress sets status to InProgress and records the bytes
// downloaded so far.
func (c *Catalog) UpdateDownloadProgress(ctx context.Context, id uuid.UUID, downloadedBytes uint64) error {
	const query = `
	UPDATE videos SET download_status = ?, downloaded_size = ?, message = '' WHERE id = ?
	`
	res, err := c.db.ExecContext(ctx, query, StatusInProgress, downloadedBytes, id.String())
	if err != nil {
		return fmt.Errorf("catalog: update download progress: %w", err)
	}
	return requireRowAffected(res, id)
}

// SetDownloadFailed sets status to Failed with the given message.
func (c *Catalog) SetDownloadFailed(ctx context.Context, id uuid.UUID, message string) error {
	const query = `UPDATE videos SET download_status = ?, message = ? WHERE id = ?`
	res, err := c.db.ExecContext(ctx, query, StatusFailed, message, id.String())
	if err != nil {
		return fmt.Errorf("catalog: set download failed: %w", err)
	}
	return requireRowAffected(res, id)
}

// SetDownloaded sets status to Downloaded with the given local path and
// clears any failure message.
func (c *Catalog) SetDownloaded(ctx context.Context, id uuid.UUID, path string) error {
	const query = `
	UPDATE videos SET download_status = ?, downloaded_size = file_size, message = '', file_path = ? WHERE id = ?
	`
	res, err := c.db.ExecContext(ctx, query, StatusDownloaded, path, id.String())
	if err != nil {
		return fmt.Errorf("catalog: set downloaded: %w", err)
	}
	return requireRowAffected(res, id)
}

func requireRowAffected(res sql.Result, id uuid.UUID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("catalog: rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func manifestReferences(m manifest.Manifest, id uuid.UUID) bool {
	for _, section := range m.Sections {
		for _, v := range section.Content {
			if v.ID == id {
				return true
			}
		}
	}
	return false
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVideo(row rowScanner) (*Video, error) {
	var (
		v        Video
		idStr    string
		status   int
		filePath string
	)
	if err := row.Scan(&idStr, &v.Name, &v.FileSize, &v.DownloadedSize, &status, &v.Message, &filePath, &v.ViewCount); err != nil {
		return nil, err
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("parse video id: %w", err)
	}
	v.ID = id
	v.DownloadStatus = DownloadStatusKind(status)
	v.FilePath = filePath
	return &v, nil
}

func isUniqueConstraintErr(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "constraint failed: UNIQUE")
}
