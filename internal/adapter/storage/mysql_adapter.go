package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rl1809/storefront-orders/internal/core/domain"
	"github.com/rl1809/storefront-orders/internal/port"
)

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const orderColumns = `o.id, o.user_id, o.amount, o.shipping_fee, o.shipping_address, o.payment_method,
		o.status, o.payment_status, o.created_at, o.updated_at`

type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

func (m *MySQLAdapter) GetProductsByIDs(ctx context.Context, ids []string) ([]domain.Product, error) {
	if len(ids) == 0 {
		return []domain.Product{}, nil
	}

	rows, err := m.db.QueryContext(ctx, `
		SELECT id, name, price, stock, sold_quantity, is_available, weight, images, created_at, updated_at
		FROM products WHERE id IN (`+placeholders(len(ids))+`)`,
		anySlice(ids)...,
	)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	products := make([]domain.Product, 0, len(ids))
	for rows.Next() {
		var p domain.Product
		var images []byte
		var weight sql.NullInt64
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.Stock, &p.SoldQuantity, &p.IsAvailable,
			&weight, &images, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		p.Weight = int(weight.Int64)
		if len(images) > 0 {
			if err := json.Unmarshal(images, &p.Images); err != nil {
				return nil, fmt.Errorf("decode images of product %s: %w", p.ID, err)
			}
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (m *MySQLAdapter) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	var owner domain.Owner
	var ownerName, ownerEmail sql.NullString

	row := m.db.QueryRowContext(ctx, `
		SELECT `+orderColumns+`, u.name, u.email
		FROM orders o LEFT JOIN users u ON u.id = o.user_id
		WHERE o.id = ?`, orderID,
	)
	order, err := scanOrder(row, &ownerName, &ownerEmail)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query order: %w", err)
	}
	if ownerName.Valid || ownerEmail.Valid {
		owner = domain.Owner{ID: order.UserID, Name: ownerName.String, Email: ownerEmail.String}
		order.Owner = &owner
	}

	if err := loadOrderDetail(ctx, m.db, order); err != nil {
		return nil, err
	}
	return order, nil
}

func (m *MySQLAdapter) ListOrdersByUser(ctx context.Context, userID string) ([]domain.Order, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders o
		WHERE o.user_id = ?
		ORDER BY o.created_at DESC, o.id DESC`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var orders []domain.Order
	index := make(map[string]int)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		index[order.ID] = len(orders)
		orders = append(orders, *order)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return []domain.Order{}, nil
	}

	ids := make([]string, 0, len(orders))
	for _, o := range orders {
		ids = append(ids, o.ID)
	}
	items, err := queryItems(ctx, m.db, ids)
	if err != nil {
		return nil, err
	}
	for orderID, list := range items {
		orders[index[orderID]].Items = list
	}
	return orders, nil
}

func (m *MySQLAdapter) RunAtomic(ctx context.Context, fn func(ctx context.Context, tx port.OrderTx) error) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(ctx, &mysqlTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type mysqlTx struct {
	tx *sql.Tx
}

func (t *mysqlTx) DecrementStock(ctx context.Context, productID string, quantity int) (bool, error) {
	result, err := t.tx.ExecContext(ctx, `
		UPDATE products
		SET stock = stock - ?, sold_quantity = sold_quantity + ?, updated_at = NOW(6)
		WHERE id = ? AND stock >= ?`,
		quantity, quantity, productID, quantity,
	)
	if err != nil {
		return false, fmt.Errorf("update product stock: %w", err)
	}
	return affected(result)
}

func (t *mysqlTx) IncrementStock(ctx context.Context, productID string, quantity int) (bool, error) {
	result, err := t.tx.ExecContext(ctx, `
		UPDATE products
		SET stock = stock + ?, sold_quantity = sold_quantity - ?, updated_at = NOW(6)
		WHERE id = ?`,
		quantity, quantity, productID,
	)
	if err != nil {
		return false, fmt.Errorf("restore product stock: %w", err)
	}
	return affected(result)
}

func (t *mysqlTx) InsertOrder(ctx context.Context, order *domain.Order) error {
	address, err := json.Marshal(order.ShippingAddress)
	if err != nil {
		return fmt.Errorf("encode shipping address: %w", err)
	}

	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO orders (id, user_id, amount, shipping_fee, shipping_address, payment_method,
			status, payment_status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		order.ID, order.UserID, order.Amount, order.ShippingFee, address, order.PaymentMethod,
		order.Status, order.PaymentStatus, order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	if len(order.Items) > 0 {
		values := make([]string, 0, len(order.Items))
		args := make([]any, 0, len(order.Items)*8)
		for i, item := range order.Items {
			values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args, order.ID, i, item.ProductID, item.Quantity, item.Price, item.Name, item.Image, item.Weight)
		}
		_, err = t.tx.ExecContext(ctx, `
			INSERT INTO order_items (order_id, position, product_id, quantity, price, name, image, weight)
			VALUES `+strings.Join(values, ", "), args...)
		if err != nil {
			return fmt.Errorf("insert order items: %w", err)
		}
	}

	if p := order.Payment; p != nil {
		_, err = t.tx.ExecContext(ctx, `
			INSERT INTO payments (order_id, method, status, amount, updated_at)
			VALUES (?, ?, ?, ?, ?)`,
			order.ID, p.Method, p.Status, p.Amount, p.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert payment: %w", err)
		}
	}
	return nil
}

func (t *mysqlTx) LockOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	row := t.tx.QueryRowContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders o WHERE o.id = ? FOR UPDATE`, orderID,
	)
	order, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lock order: %w", err)
	}

	if err := loadOrderDetail(ctx, t.tx, order); err != nil {
		return nil, err
	}
	return order, nil
}

func (t *mysqlTx) TransitionStatus(ctx context.Context, orderID string, from []domain.OrderStatus, status domain.OrderStatus, paymentStatus domain.PaymentStatus) (bool, error) {
	if len(from) == 0 {
		return false, nil
	}

	now := time.Now().UTC()
	args := []any{status, paymentStatus, now, orderID}
	for _, s := range from {
		args = append(args, s)
	}

	result, err := t.tx.ExecContext(ctx, `
		UPDATE orders SET status = ?, payment_status = ?, updated_at = ?
		WHERE id = ? AND status IN (`+placeholders(len(from))+`)`, args...)
	if err != nil {
		return false, fmt.Errorf("update order status: %w", err)
	}
	ok, err := affected(result)
	if err != nil || !ok {
		return false, err
	}

	_, err = t.tx.ExecContext(ctx, `
		UPDATE payments SET status = ?, updated_at = ? WHERE order_id = ?`,
		paymentStatus, now, orderID,
	)
	if err != nil {
		return false, fmt.Errorf("update payment status: %w", err)
	}
	return true, nil
}

// DeleteOrder relies on ON DELETE CASCADE for order_items and payments.
func (t *mysqlTx) DeleteOrder(ctx context.Context, orderID string) error {
	_, err := t.tx.ExecContext(ctx, `DELETE FROM orders WHERE id = ?`, orderID)
	if err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOrder(row scanner, extra ...any) (*domain.Order, error) {
	var o domain.Order
	var address []byte
	dest := append([]any{
		&o.ID, &o.UserID, &o.Amount, &o.ShippingFee, &address, &o.PaymentMethod,
		&o.Status, &o.PaymentStatus, &o.CreatedAt, &o.UpdatedAt,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	if len(address) > 0 {
		if err := json.Unmarshal(address, &o.ShippingAddress); err != nil {
			return nil, fmt.Errorf("decode shipping address of order %s: %w", o.ID, err)
		}
	}
	return &o, nil
}

func loadOrderDetail(ctx context.Context, q queryer, order *domain.Order) error {
	items, err := queryItems(ctx, q, []string{order.ID})
	if err != nil {
		return err
	}
	order.Items = items[order.ID]

	var p domain.Payment
	err = q.QueryRowContext(ctx, `
		SELECT order_id, method, status, amount, updated_at
		FROM payments WHERE order_id = ?`, order.ID,
	).Scan(&p.OrderID, &p.Method, &p.Status, &p.Amount, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("query payment: %w", err)
	}
	order.Payment = &p
	return nil
}

func queryItems(ctx context.Context, q queryer, orderIDs []string) (map[string][]domain.OrderItem, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT order_id, product_id, quantity, price, name, image, weight
		FROM order_items
		WHERE order_id IN (`+placeholders(len(orderIDs))+`)
		ORDER BY order_id, position`,
		anySlice(orderIDs)...,
	)
	if err != nil {
		return nil, fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	items := make(map[string][]domain.OrderItem, len(orderIDs))
	for rows.Next() {
		var orderID string
		var item domain.OrderItem
		if err := rows.Scan(&orderID, &item.ProductID, &item.Quantity, &item.Price,
			&item.Name, &item.Image, &item.Weight); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items[orderID] = append(items[orderID], item)
	}
	return items, rows.Err()
}

func affected(result sql.Result) (bool, error) {
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return rows > 0, nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func anySlice(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

var (
	_ port.OrderRepository = (*MySQLAdapter)(nil)
	_ port.OrderTx         = (*mysqlTx)(nil)
)
