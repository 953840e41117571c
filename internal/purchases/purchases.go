package purchases

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"procureflow/internal/apperr"
	"procureflow/internal/outbox"
	"procureflow/internal/stores/kafka"
	"procureflow/internal/stores/postgres"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Conf struct {
	db    *sql.DB
	topic string
}

func NewConf(db *sql.DB, topic string) (*Conf, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	if topic == "" {
		topic = kafka.TopicPurchaseRequestCreated
	}
	return &Conf{db: db, topic: topic}, nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// CheckoutDB turns the user's cart into a purchase request in one transaction: the cart row is
// locked, lines are snapshotted, the request and its lines are inserted, the cart is emptied and
// a created event is written to the outbox. With a non-empty key, an earlier request made with
// the same key is returned instead and nothing is written.
func (c *Conf) CheckoutDB(ctx context.Context, userID, idempotencyKey string) (CheckoutResult, error) {
	var res CheckoutResult
	err := c.withTx(ctx, func(tx *sql.Tx) error {
		var cartID string
		queryLockCart := `
			SELECT id
			FROM carts
			WHERE user_id = $1
			FOR UPDATE
		`
		err := tx.QueryRowContext(ctx, queryLockCart, userID).Scan(&cartID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to lock cart: %w", err)
		}

		if idempotencyKey != "" {
			pr, found, err := findByKey(ctx, tx, userID, idempotencyKey)
			if err != nil {
				return err
			}
			if found {
				res = CheckoutResult{PurchaseRequest: pr, Replayed: true}
				return nil
			}
		}

		if cartID == "" {
			return apperr.Validation("cart is empty", nil)
		}
		lines, err := snapshotCart(ctx, tx, cartID)
		if err != nil {
			return err
		}
		if len(lines) == 0 {
			return apperr.Validation("cart is empty", nil)
		}

		var seq int64
		if err := tx.QueryRowContext(ctx, `SELECT nextval('purchase_request_number_seq')`).Scan(&seq); err != nil {
			return fmt.Errorf("failed to allocate request number: %w", err)
		}

		pr := PurchaseRequest{
			ID:             uuid.NewString(),
			RequestNumber:  formatRequestNumber(seq),
			UserID:         userID,
			Lines:          lines,
			Total:          decimal.Zero,
			Status:         StatusSubmitted,
			IdempotencyKey: idempotencyKey,
			CreatedAt:      time.Now().UTC().Truncate(time.Microsecond),
		}
		for _, l := range lines {
			pr.Total = pr.Total.Add(l.LineTotal)
		}

		queryInsertRequest := `
			INSERT INTO purchase_requests (id, request_number, user_id, total, status, idempotency_key, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`
		key := sql.NullString{String: idempotencyKey, Valid: idempotencyKey != ""}
		_, err = tx.ExecContext(ctx, queryInsertRequest, pr.ID, pr.RequestNumber, pr.UserID, pr.Total, pr.Status, key, pr.CreatedAt)
		if err != nil {
			if postgres.IsUniqueViolation(err, "purchase_requests_user_idempotency_key") {
				return apperr.Conflict("a checkout with this idempotency key is already in progress", nil)
			}
			return fmt.Errorf("failed to insert purchase request: %w", err)
		}

		queryInsertLine := `
			INSERT INTO purchase_request_lines
				(purchase_request_id, line_no, item_id, name, category, unit_price, quantity, line_total)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`
		for _, l := range lines {
			_, err := tx.ExecContext(ctx, queryInsertLine, pr.ID, l.LineNo, l.ItemID, l.Name, l.Category, l.UnitPrice, l.Quantity, l.LineTotal)
			if err != nil {
				return fmt.Errorf("failed to insert purchase request line: %w", err)
			}
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cartID); err != nil {
			return fmt.Errorf("failed to clear cart: %w", err)
		}

		if err := outbox.Enqueue(ctx, tx, c.topic, pr.ID, createdEvent(pr)); err != nil {
			return err
		}

		res = CheckoutResult{PurchaseRequest: pr}
		return nil
	})
	if err != nil {
		return CheckoutResult{}, err
	}
	return res, nil
}

func createdEvent(pr PurchaseRequest) kafka.PurchaseRequestCreated {
	ev := kafka.PurchaseRequestCreated{
		Type:          kafka.EventPurchaseRequestCreated,
		ID:            pr.ID,
		RequestNumber: pr.RequestNumber,
		UserID:        pr.UserID,
		Total:         pr.Total,
		Lines:         make([]kafka.EventLine, 0, len(pr.Lines)),
		CreatedAt:     pr.CreatedAt,
	}
	for _, l := range pr.Lines {
		ev.Lines = append(ev.Lines, kafka.EventLine{ItemID: l.ItemID, Quantity: l.Quantity, UnitPrice: l.UnitPrice})
	}
	return ev
}

func snapshotCart(ctx context.Context, tx *sql.Tx, cartID string) ([]Line, error) {
	queryLines := `
		SELECT ci.item_id, i.name, i.category, i.price, ci.quantity
		FROM cart_items ci
		JOIN items i ON i.id = ci.item_id
		WHERE ci.cart_id = $1
		ORDER BY ci.created_at, ci.item_id
	`
	rows, err := tx.QueryContext(ctx, queryLines, cartID)
	if err != nil {
		return nil, fmt.Errorf("failed to query cart lines: %w", err)
	}
	defer rows.Close()

	var lines []Line
	for rows.Next() {
		l := Line{LineNo: len(lines) + 1}
		if err := rows.Scan(&l.ItemID, &l.Name, &l.Category, &l.UnitPrice, &l.Quantity); err != nil {
			return nil, fmt.Errorf("failed to scan cart line: %w", err)
		}
		l.LineTotal = l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cart lines: %w", err)
	}
	return lines, nil
}

const requestColumns = `id, request_number, user_id, total, status, idempotency_key, created_at`

func scanRequest(row interface{ Scan(...any) error }) (PurchaseRequest, error) {
	var pr PurchaseRequest
	var key sql.NullString
	if err := row.Scan(&pr.ID, &pr.RequestNumber, &pr.UserID, &pr.Total, &pr.Status, &key, &pr.CreatedAt); err != nil {
		return PurchaseRequest{}, err
	}
	pr.IdempotencyKey = key.String
	return pr, nil
}

func findByKey(ctx context.Context, q queryer, userID, key string) (PurchaseRequest, bool, error) {
	query := `
		SELECT ` + requestColumns + `
		FROM purchase_requests
		WHERE user_id = $1 AND idempotency_key = $2
	`
	pr, err := scanRequest(q.QueryRowContext(ctx, query, userID, key))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return PurchaseRequest{}, false, nil
		}
		return PurchaseRequest{}, false, fmt.Errorf("failed to query purchase request by key: %w", err)
	}
	pr.Lines, err = fetchLines(ctx, q, pr.ID)
	if err != nil {
		return PurchaseRequest{}, false, err
	}
	return pr, true, nil
}

func fetchLines(ctx context.Context, q queryer, requestID string) ([]Line, error) {
	query := `
		SELECT line_no, item_id, name, category, unit_price, quantity, line_total
		FROM purchase_request_lines
		WHERE purchase_request_id = $1
		ORDER BY line_no
	`
	rows, err := q.QueryContext(ctx, query, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to query purchase request lines: %w", err)
	}
	defer rows.Close()

	lines := []Line{}
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.LineNo, &l.ItemID, &l.Name, &l.Category, &l.UnitPrice, &l.Quantity, &l.LineTotal); err != nil {
			return nil, fmt.Errorf("failed to scan purchase request line: %w", err)
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating purchase request lines: %w", err)
	}
	return lines, nil
}

// ListByUser returns the user's purchase requests with their lines, newest first.
func (c *Conf) ListByUser(ctx context.Context, userID string) ([]PurchaseRequest, error) {
	query := `
		SELECT pr.id, pr.request_number, pr.user_id, pr.total, pr.status, pr.idempotency_key, pr.created_at,
			l.line_no, l.item_id, l.name, l.category, l.unit_price, l.quantity, l.line_total
		FROM purchase_requests pr
		JOIN purchase_request_lines l ON l.purchase_request_id = pr.id
		WHERE pr.user_id = $1
		ORDER BY pr.created_at DESC, pr.id, l.line_no
	`
	rows, err := c.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query purchase requests: %w", err)
	}
	defer rows.Close()

	requests := []PurchaseRequest{}
	for rows.Next() {
		var pr PurchaseRequest
		var key sql.NullString
		var l Line
		err := rows.Scan(&pr.ID, &pr.RequestNumber, &pr.UserID, &pr.Total, &pr.Status, &key, &pr.CreatedAt,
			&l.LineNo, &l.ItemID, &l.Name, &l.Category, &l.UnitPrice, &l.Quantity, &l.LineTotal)
		if err != nil {
			return nil, fmt.Errorf("failed to scan purchase request: %w", err)
		}
		if n := len(requests); n > 0 && requests[n-1].ID == pr.ID {
			requests[n-1].Lines = append(requests[n-1].Lines, l)
			continue
		}
		pr.IdempotencyKey = key.String
		pr.Lines = []Line{l}
		requests = append(requests, pr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating purchase requests: %w", err)
	}
	return requests, nil
}

// GetByID returns one of the user's purchase requests. Requests of other users are not found.
func (c *Conf) GetByID(ctx context.Context, userID, id string) (PurchaseRequest, error) {
	query := `
		SELECT ` + requestColumns + `
		FROM purchase_requests
		WHERE id = $1 AND user_id = $2
	`
	pr, err := scanRequest(c.db.QueryRowContext(ctx, query, id, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return PurchaseRequest{}, apperr.NotFound("purchase request", id)
		}
		return PurchaseRequest{}, fmt.Errorf("failed to query purchase request: %w", err)
	}
	pr.Lines, err = fetchLines(ctx, c.db, pr.ID)
	if err != nil {
		return PurchaseRequest{}, err
	}
	return pr, nil
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
