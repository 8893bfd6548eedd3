package store

import (
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/datallboy/gosplice/internal/domain"
)

func (s *PersistentStore) SaveQueueItem(item *domain.QueueItem) error {
	var dbo queueItemDBO
	if err := dbo.FromDomain(item); err != nil {
		return err
	}

	query := `INSERT OR REPLACE INTO queue_items (` + queueItemColumns + `)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.Exec(query, dbo.args()...)
	return err
}

func (s *PersistentStore) GetQueueItems() ([]*domain.QueueItem, error) {
	items, err := s.queryItems("SELECT " + queueItemColumns + " FROM queue_items")
	if err != nil {
		return nil, err
	}

	// Sort by KSUID (Chronological)
	sort.Slice(items, func(i, j int) bool {
		return items[i].ID < items[j].ID
	})

	return items, nil
}

func (s *PersistentStore) GetQueueItem(id string) (*domain.QueueItem, error) {
	query := `
			SELECT ` + queueItemColumns + `
			FROM queue_items
			WHERE id = ? LIMIT 1`

	var dbo queueItemDBO
	if err := dbo.scan(s.db.QueryRow(query, id)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Return nil, nil to indicate "Not found"
		}
		return nil, fmt.Errorf("failed to fetch queue item: %w", err)
	}

	return dbo.ToDomain()
}

func (s *PersistentStore) GetActiveQueueItems() ([]*domain.QueueItem, error) {
	query := `
		SELECT ` + queueItemColumns + `
		FROM queue_items
		WHERE status NOT IN ('completed', 'failed')
		ORDER BY id ASC`

	return s.queryItems(query)
}

func (s *PersistentStore) queryItems(query string, args ...any) ([]*domain.QueueItem, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*domain.QueueItem
	for rows.Next() {
		var dbo queueItemDBO
		if err := dbo.scan(rows); err != nil {
			return nil, err
		}

		item, err := dbo.ToDomain()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	return items, rows.Err()
}
