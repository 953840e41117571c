package cart

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"procureflow/internal/apperr"

	"github.com/google/uuid"
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

// AddToCartDB adds quantity of itemID to the user's cart. An existing line is incremented,
// so two adds of 1 leave a single line with quantity 2.
func (c *Conf) AddToCartDB(ctx context.Context, userID, itemID string, quantity int) error {
	return c.withTx(ctx, func(tx *sql.Tx) error {
		if err := requireItem(ctx, tx, itemID); err != nil {
			return err
		}
		cartID, err := lockOrCreateCart(ctx, tx, userID)
		if err != nil {
			return err
		}

		queryCartItem := `
			SELECT quantity
			FROM cart_items
			WHERE cart_id = $1 AND item_id = $2
		`
		var existingQuantity int
		err = tx.QueryRowContext(ctx, queryCartItem, cartID, itemID).Scan(&existingQuantity)
		if err != nil {
			if !errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("failed to query cart items: %w", err)
			}
			queryAddCartItem := `
				INSERT INTO cart_items (cart_id, item_id, quantity, created_at, updated_at)
				VALUES ($1, $2, $3, NOW(), NOW())
			`
			if _, err = tx.ExecContext(ctx, queryAddCartItem, cartID, itemID, quantity); err != nil {
				return fmt.Errorf("failed to add item to cart: %w", err)
			}
			return nil
		}

		queryUpdateCartItem := `
			UPDATE cart_items
			SET quantity = $1, updated_at = NOW()
			WHERE cart_id = $2 AND item_id = $3
		`
		if _, err = tx.ExecContext(ctx, queryUpdateCartItem, existingQuantity+quantity, cartID, itemID); err != nil {
			return fmt.Errorf("failed to update cart item quantity: %w", err)
		}
		return nil
	})
}

// SetQuantityDB replaces the line quantity; quantity 0 removes the line.
func (c *Conf) SetQuantityDB(ctx context.Context, userID, itemID string, quantity int) error {
	if quantity == 0 {
		return c.RemoveFromCartDB(ctx, userID, itemID)
	}
	return c.withTx(ctx, func(tx *sql.Tx) error {
		if err := requireItem(ctx, tx, itemID); err != nil {
			return err
		}
		cartID, err := lockOrCreateCart(ctx, tx, userID)
		if err != nil {
			return err
		}
		queryUpsert := `
			INSERT INTO cart_items (cart_id, item_id, quantity, created_at, updated_at)
			VALUES ($1, $2, $3, NOW(), NOW())
			ON CONFLICT (cart_id, item_id) DO UPDATE SET quantity = EXCLUDED.quantity, updated_at = NOW()
		`
		if _, err := tx.ExecContext(ctx, queryUpsert, cartID, itemID, quantity); err != nil {
			return fmt.Errorf("failed to set cart item quantity: %w", err)
		}
		return nil
	})
}

// RemoveFromCartDB deletes the line. A missing line or cart is not an error.
func (c *Conf) RemoveFromCartDB(ctx context.Context, userID, itemID string) error {
	query := `
		DELETE FROM cart_items
		WHERE item_id = $2 AND cart_id = (SELECT id FROM carts WHERE user_id = $1)
	`
	if _, err := c.db.ExecContext(ctx, query, userID, itemID); err != nil {
		return fmt.Errorf("failed to remove cart item: %w", err)
	}
	return nil
}

// GetActiveCartItems returns the user's cart lines joined with current item data.
func (c *Conf) GetActiveCartItems(ctx context.Context, userID string) ([]Line, error) {
	queryItems := `
		SELECT ci.item_id, i.name, i.category, i.price, ci.quantity
		FROM carts c
		JOIN cart_items ci ON ci.cart_id = c.id
		JOIN items i ON i.id = ci.item_id
		WHERE c.user_id = $1
		ORDER BY ci.created_at, ci.item_id
	`
	rows, err := c.db.QueryContext(ctx, queryItems, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query cart items: %w", err)
	}
	defer rows.Close()

	var lines []Line
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ItemID, &l.Name, &l.Category, &l.UnitPrice, &l.Quantity); err != nil {
			return nil, fmt.Errorf("failed to scan cart item: %w", err)
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cart items: %w", err)
	}
	return lines, nil
}

func requireItem(ctx context.Context, tx *sql.Tx, itemID string) error {
	var exists bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM items WHERE id = $1)`, itemID).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check item: %w", err)
	}
	if !exists {
		return apperr.NotFound("item", itemID)
	}
	return nil
}

// lockOrCreateCart returns the user's cart id, holding a row lock until the transaction ends.
func lockOrCreateCart(ctx context.Context, tx *sql.Tx, userID string) (string, error) {
	var cartID string
	queryActiveCart := `
		SELECT id
		FROM carts
		WHERE user_id = $1
		FOR UPDATE
	`
	err := tx.QueryRowContext(ctx, queryActiveCart, userID).Scan(&cartID)
	if err == nil {
		return cartID, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("failed to query cart: %w", err)
	}

	// ON CONFLICT covers a concurrent first add for the same user.
	queryCreateCart := `
		INSERT INTO carts (id, user_id, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		ON CONFLICT (user_id) DO UPDATE SET updated_at = NOW()
		RETURNING id
	`
	if err := tx.QueryRowContext(ctx, queryCreateCart, uuid.NewString(), userID).Scan(&cartID); err != nil {
		return "", fmt.Errorf("failed to create new cart: %w", err)
	}
	return cartID, nil
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
