package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/SysAdminDoc/Stock-Video-Collector-sub000/internal/entity"
	"github.com/SysAdminDoc/Stock-Video-Collector-sub000/internal/repository"
)

// Enqueue inserts a work item if the URL is not already queued.
func (s *Store) Enqueue(ctx context.Context, url string, depth, priority int, profile string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO crawl_queue(url, depth, priority, profile) VALUES (?, ?, ?, ?)`,
		url, depth, priority, profile)
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", url, err)
	}
	return nil
}

// Dequeue removes and returns the highest-priority, earliest-inserted
// item, optionally scoped to one profile. The select and delete run
// inside the store lock, so an item is handed to exactly one caller.
func (s *Store) Dequeue(ctx context.Context, profile string) (*entity.WorkItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var item entity.WorkItem
	var err error
	if profile != "" {
		err = s.db.GetContext(ctx, &item,
			`SELECT url, depth, priority, profile, added_at FROM crawl_queue
			 WHERE profile = ? ORDER BY priority DESC, added_at ASC LIMIT 1`, profile)
	} else {
		err = s.db.GetContext(ctx, &item,
			`SELECT url, depth, priority, profile, added_at FROM crawl_queue
			 ORDER BY priority DESC, added_at ASC LIMIT 1`)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrQueueEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("dequeue: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM crawl_queue WHERE url = ?`, item.URL); err != nil {
		return nil, fmt.Errorf("dequeue delete %s: %w", item.URL, err)
	}
	return &item, nil
}

// QueueSize counts queued items, optionally for one profile.
func (s *Store) QueueSize(ctx context.Context, profile string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int
	var err error
	if profile != "" {
		err = s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM crawl_queue WHERE profile = ?`, profile)
	} else {
		err = s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM crawl_queue`)
	}
	return n, err
}

// IsVisited reports whether the URL has a successful visit recorded.
func (s *Store) IsVisited(ctx context.Context, url string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var one int
	err := s.db.GetContext(ctx, &one,
		`SELECT 1 FROM page_visits WHERE url = ? AND status = ?`, url, entity.VisitDone)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// MarkVisited records the visit outcome, replacing any earlier row.
func (s *Store) MarkVisited(ctx context.Context, url string, depth int, profile, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO page_visits(url, status, depth, profile, visited_at)
		 VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)`,
		url, status, depth, profile)
	if err != nil {
		return fmt.Errorf("mark visited %s: %w", url, err)
	}
	return nil
}

// ResetVisit drops a ledger row so the URL can be crawled again, used
// when re-seeding start URLs.
func (s *Store) ResetVisit(ctx context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `DELETE FROM page_visits WHERE url = ?`, url)
	return err
}
