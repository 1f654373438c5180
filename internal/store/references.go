package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Agronaut41/admin-cc/internal/models"
)

const (
	cacambaColumns = "id, numero, tipo, image_url, order_id, created_at"
	orderColumns   = "id, client_name, status, image_urls, created_at, updated_at"
)

// CreateCacamba inserts one cacamba row.
func (s *Store) CreateCacamba(ctx context.Context, c *models.Cacamba) error {
	if c == nil {
		return fmt.Errorf("cacamba is required")
	}
	if strings.TrimSpace(c.ID) == "" {
		return fmt.Errorf("cacamba id is required")
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cacambas (`+cacambaColumns+`) VALUES (?, ?, ?, ?, ?, ?)
	`, c.ID, c.Numero, c.Tipo, c.ImageURL, nullIfEmpty(c.OrderID), dbFormatTime(c.CreatedAt))
	return err
}

// GetCacamba returns one cacamba, or nil when absent.
func (s *Store) GetCacamba(ctx context.Context, id string) (*models.Cacamba, error) {
	c := models.Cacamba{}
	var orderID sql.NullString
	var createdAt string
	err := s.db.QueryRowContext(ctx, `SELECT `+cacambaColumns+` FROM cacambas WHERE id = ?`, id).
		Scan(&c.ID, &c.Numero, &c.Tipo, &c.ImageURL, &orderID, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.OrderID = orderID.String
	if c.CreatedAt, err = dbParseTime(createdAt); err != nil {
		return nil, err
	}
	return &c, nil
}

// CreateOrder inserts one order row.
func (s *Store) CreateOrder(ctx context.Context, o *models.Order) error {
	if o == nil {
		return fmt.Errorf("order is required")
	}
	if strings.TrimSpace(o.ID) == "" {
		return fmt.Errorf("order id is required")
	}
	now := time.Now().UTC()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	if o.UpdatedAt.IsZero() {
		o.UpdatedAt = o.CreatedAt
	}
	if o.Status == "" {
		o.Status = "pendente"
	}
	urls, err := imageURLsToJSON(o.ImageURLs)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO orders (`+orderColumns+`) VALUES (?, ?, ?, ?, ?, ?)
	`, o.ID, o.ClientName, o.Status, urls, dbFormatTime(o.CreatedAt), dbFormatTime(o.UpdatedAt))
	return err
}

// GetOrder returns one order, or nil when absent.
func (s *Store) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, id)
	return scanOrder(row)
}

// ReplaceCacambaImageURL points every cacamba whose image_url equals oldURL
// at newURL and returns the number of rows changed.
func (s *Store) ReplaceCacambaImageURL(ctx context.Context, oldURL, newURL string) (int64, error) {
	res, err := s.db.ExecContext(ctx, "UPDATE cacambas SET image_url = ? WHERE image_url = ?", newURL, oldURL)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CountCacambasWithImageURL counts cacambas whose image_url equals url.
func (s *Store) CountCacambasWithImageURL(ctx context.Context, url string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM cacambas WHERE image_url = ?", url).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// ListOrdersWithImageURL returns every order whose image_urls array contains
// url at least once. The full result is read before returning.
func (s *Store) ListOrdersWithImageURL(ctx context.Context, url string) ([]models.Order, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE EXISTS (SELECT 1 FROM json_each(orders.image_urls) WHERE json_each.value = ?)
		ORDER BY id ASC
	`, url)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := []models.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		if o != nil {
			orders = append(orders, *o)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return orders, nil
}

// SetOrderImageURLs overwrites the whole image_urls array of one order.
func (s *Store) SetOrderImageURLs(ctx context.Context, id string, urls []string) error {
	encoded, err := imageURLsToJSON(urls)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, "UPDATE orders SET image_urls = ?, updated_at = ? WHERE id = ?",
		encoded, dbFormatTime(time.Now().UTC()), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("order %s not found", id)
	}
	return nil
}

func scanOrder(scanner interface {
	Scan(dest ...any) error
}) (*models.Order, error) {
	o := models.Order{}
	var urls, createdAt, updatedAt string
	err := scanner.Scan(&o.ID, &o.ClientName, &o.Status, &urls, &createdAt, &updatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if err := json.Unmarshal([]byte(urls), &o.ImageURLs); err != nil {
		return nil, fmt.Errorf("parse order image_urls: %w", err)
	}
	if o.CreatedAt, err = dbParseTime(createdAt); err != nil {
		return nil, err
	}
	if o.UpdatedAt, err = dbParseTime(updatedAt); err != nil {
		return nil, err
	}
	return &o, nil
}

func imageURLsToJSON(urls []string) (string, error) {
	if urls == nil {
		urls = []string{}
	}
	data, err := json.Marshal(urls)
	if err != nil {
		return "", fmt.Errorf("marshal image_urls: %w", err)
	}
	return string(data), nil
}
