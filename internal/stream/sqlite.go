// SPDX-License-Identifier: MIT

package stream

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite" // SQLite driver (pure Go, no CGO)
)

// SQLiteStore persists stream metadata in SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and migrates) the stream metadata database.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_synchronous=NORMAL", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS streams (
		info_hash TEXT PRIMARY KEY,
		torrent_name TEXT NOT NULL,
		filename TEXT NOT NULL DEFAULT '',
		file_index INTEGER NOT NULL DEFAULT -1,
		size_bytes INTEGER NOT NULL DEFAULT 0,
		announce_list TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS episodes (
		info_hash TEXT NOT NULL,
		season INTEGER NOT NULL,
		episode INTEGER NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		filename TEXT NOT NULL DEFAULT '',
		file_index INTEGER NOT NULL DEFAULT -1,
		size_bytes INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (info_hash, season, episode),
		FOREIGN KEY (info_hash) REFERENCES streams(info_hash) ON DELETE CASCADE
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Upsert inserts or replaces a stream record and its episodes.
func (s *SQLiteStore) Upsert(ctx context.Context, st *Stream) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
	INSERT INTO streams (info_hash, torrent_name, filename, file_index, size_bytes, announce_list)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(info_hash) DO UPDATE SET
		torrent_name = excluded.torrent_name,
		filename = excluded.filename,
		file_index = excluded.file_index,
		size_bytes = excluded.size_bytes,
		announce_list = excluded.announce_list
	`, strings.ToLower(st.InfoHash), st.TorrentName, st.Filename, st.FileIndex, st.Size, strings.Join(st.AnnounceList, "\n"))
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM episodes WHERE info_hash = ?`, strings.ToLower(st.InfoHash)); err != nil {
		return err
	}
	for _, e := range st.Episodes {
		_, err := tx.ExecContext(ctx, `
		INSERT INTO episodes (info_hash, season, episode, title, filename, file_index, size_bytes)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		`, strings.ToLower(st.InfoHash), e.Season, e.Episode, e.Title, e.Filename, e.FileIndex, e.Size)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetByInfoHash implements Store.
func (s *SQLiteStore) GetByInfoHash(ctx context.Context, infoHash string) (*Stream, error) {
	st := &Stream{}
	var announce string
	err := s.db.QueryRowContext(ctx, `
	SELECT info_hash, torrent_name, filename, file_index, size_bytes, announce_list
	FROM streams WHERE info_hash = ?
	`, strings.ToLower(infoHash)).Scan(&st.InfoHash, &st.TorrentName, &st.Filename, &st.FileIndex, &st.Size, &announce)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if announce != "" {
		st.AnnounceList = strings.Split(announce, "\n")
	}

	rows, err := s.db.QueryContext(ctx, `
	SELECT season, episode, title, filename, file_index, size_bytes
	FROM episodes WHERE info_hash = ?
	ORDER BY season, episode
	`, strings.ToLower(infoHash))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var e Episode
		if err := rows.Scan(&e.Season, &e.Episode, &e.Title, &e.Filename, &e.FileIndex, &e.Size); err != nil {
			return nil, err
		}
		st.Episodes = append(st.Episodes, e)
	}
	return st, rows.Err()
}
