package items

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"procureflow/internal/apperr"
)

type Conf struct {
	db *sql.DB
}

func NewConf(db *sql.DB) (*Conf, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	return &Conf{db: db}, nil
}

const itemColumns = `id, name, category, price, description, created_by, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (Item, error) {
	var it Item
	var createdBy sql.NullString
	if err := row.Scan(&it.ID, &it.Name, &it.Category, &it.Price, &it.Description, &createdBy, &it.CreatedAt); err != nil {
		return Item{}, err
	}
	it.CreatedBy = createdBy.String
	return it, nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// CreateItemDB inserts it unless an item with the same name and category exists and force is
// false. Matching items are returned either way. Creates of the same name and category are
// serialized by a transaction-scoped advisory lock, so two concurrent creates cannot both miss
// each other.
func (c *Conf) CreateItemDB(ctx context.Context, it Item, force bool) (Item, []Item, error) {
	var dups []Item
	err := c.withTx(ctx, func(tx *sql.Tx) error {
		queryLock := `SELECT pg_advisory_xact_lock(hashtext(lower($1) || '/' || lower($2)))`
		if _, err := tx.ExecContext(ctx, queryLock, it.Name, it.Category); err != nil {
			return fmt.Errorf("failed to lock item name: %w", err)
		}

		var err error
		dups, err = findDuplicates(ctx, tx, it.Name, it.Category)
		if err != nil {
			return err
		}
		if len(dups) > 0 && !force {
			return nil
		}

		it, err = insertItem(ctx, tx, it)
		return err
	})
	if err != nil {
		return Item{}, nil, err
	}
	if len(dups) > 0 && !force {
		return Item{}, dups, nil
	}
	return it, dups, nil
}

func insertItem(ctx context.Context, q queryer, it Item) (Item, error) {
	query := `
		INSERT INTO items (id, name, category, price, description, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		RETURNING created_at
	`
	createdBy := sql.NullString{String: it.CreatedBy, Valid: it.CreatedBy != ""}
	err := q.QueryRowContext(ctx, query, it.ID, it.Name, it.Category, it.Price, it.Description, createdBy).Scan(&it.CreatedAt)
	if err != nil {
		return Item{}, fmt.Errorf("failed to insert item: %w", err)
	}
	return it, nil
}

// findDuplicates returns items whose name and category match case-insensitively.
func findDuplicates(ctx context.Context, q queryer, name, category string) ([]Item, error) {
	query := `
		SELECT ` + itemColumns + `
		FROM items
		WHERE lower(name) = lower($1) AND lower(category) = lower($2)
		ORDER BY created_at, id
	`
	rows, err := q.QueryContext(ctx, query, name, category)
	if err != nil {
		return nil, fmt.Errorf("failed to query duplicates: %w", err)
	}
	defer rows.Close()

	var dups []Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		dups = append(dups, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating duplicates: %w", err)
	}
	return dups, nil
}

func (c *Conf) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}

	if err := fn(tx); err != nil {
		if er := tx.Rollback(); er != nil && !errors.Is(er, sql.ErrTxDone) {
			return fmt.Errorf("failed to rollback withTx: %w", errors.Join(err, er))
		}
		return fmt.Errorf("failed to execute withTx: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit withTx: %w", err)
	}
	return nil
}

func (c *Conf) GetItemByID(ctx context.Context, id string) (Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE id = $1`
	it, err := scanItem(c.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Item{}, apperr.NotFound("item", id)
		}
		return Item{}, fmt.Errorf("failed to fetch item: %w", err)
	}
	return it, nil
}

func (c *Conf) DeleteItemFromDB(ctx context.Context, id string) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM items WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete item: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return apperr.NotFound("item", id)
	}
	return nil
}

// SearchItemsFromDB matches keyword against name, category and description.
// An empty keyword matches everything. Results are in insertion order.
func (c *Conf) SearchItemsFromDB(ctx context.Context, keyword string, limit, offset int) ([]Item, int, error) {
	pattern := "%" + escapeLike(keyword) + "%"
	where := `WHERE ($1 = '' OR name ILIKE $2 OR category ILIKE $2 OR description ILIKE $2)`

	var count int
	err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM items `+where, keyword, pattern).Scan(&count)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count items: %w", err)
	}

	query := `
		SELECT ` + itemColumns + `
		FROM items
		` + where + `
		ORDER BY created_at, id
		LIMIT $3 OFFSET $4
	`
	rows, err := c.db.QueryContext(ctx, query, keyword, pattern, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to search items: %w", err)
	}
	defer rows.Close()

	found := []Item{}
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan item: %w", err)
		}
		found = append(found, it)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating items: %w", err)
	}
	return found, count, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
