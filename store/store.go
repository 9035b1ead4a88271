// Package store persists a lightweight history of completed research runs
// in SQLite, so past analyses survive restarts even though task state does
// not.
package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"reelscope/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS researches (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    url TEXT NOT NULL,
    platform TEXT,
    title TEXT,
    uploader TEXT,
    overall_sentiment TEXT,
    comment_count INTEGER DEFAULT 0,
    week_number INTEGER,
    year INTEGER,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
)`

type Entry struct {
	ID               int64     `json:"id"`
	URL              string    `json:"url"`
	Platform         string    `json:"platform"`
	Title            string    `json:"title"`
	Uploader         string    `json:"uploader"`
	OverallSentiment string    `json:"overallSentiment,omitempty"`
	CommentCount     int       `json:"commentCount"`
	WeekNumber       int       `json:"weekNumber"`
	Year             int       `json:"year"`
	CreatedAt        time.Time `json:"createdAt"`
}

type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Record satisfies task.History: it distills a completed task into a
// history entry.
func (s *Store) Record(t model.Task) error {
	if t.Result == nil {
		return fmt.Errorf("task %s has no result to record", t.ID)
	}
	e := Entry{
		URL:      t.Request.URL,
		Platform: t.Result.Platform,
	}
	if t.Result.Video != nil {
		e.Title = t.Result.Video.Title
		e.Uploader = t.Result.Video.Uploader
	}
	if t.Result.Sentiment != nil {
		e.OverallSentiment = t.Result.Sentiment.Summary
	}
	if t.Result.Instagram != nil {
		e.CommentCount = t.Result.Instagram.CommentCount
	}
	_, err := s.Insert(e)
	return err
}

// Insert saves an entry, stamping it with the current ISO week.
func (s *Store) Insert(e Entry) (int64, error) {
	now := time.Now().UTC()
	year, week := now.ISOWeek()

	res, err := s.db.Exec(`
        INSERT INTO researches (url, platform, title, uploader, overall_sentiment, comment_count, week_number, year, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.URL, e.Platform, e.Title, e.Uploader, e.OverallSentiment, e.CommentCount, week, year, now,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// List returns all entries, newest first.
func (s *Store) List() ([]Entry, error) {
	rows, err := s.db.Query(`
        SELECT id, url, platform, title, uploader, overall_sentiment, comment_count, week_number, year, created_at
        FROM researches ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntries(rows)
}

// ListByWeek groups entries by ISO week, keyed "2026-W35", newest weeks
// first within each group.
func (s *Store) ListByWeek() (map[string][]Entry, error) {
	rows, err := s.db.Query(`
        SELECT id, url, platform, title, uploader, overall_sentiment, comment_count, week_number, year, created_at
        FROM researches ORDER BY year DESC, week_number DESC, created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries, err := scanEntries(rows)
	if err != nil {
		return nil, err
	}

	weekly := make(map[string][]Entry)
	for _, e := range entries {
		key := fmt.Sprintf("%d-W%02d", e.Year, e.WeekNumber)
		weekly[key] = append(weekly[key], e)
	}
	return weekly, nil
}

func (s *Store) Delete(id int64) error {
	res, err := s.db.Exec("DELETE FROM researches WHERE id = ?", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.URL, &e.Platform, &e.Title, &e.Uploader,
			&e.OverallSentiment, &e.CommentCount, &e.WeekNumber, &e.Year, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
