package storage

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rl1809/storefront-orders/internal/core/domain"
	"github.com/rl1809/storefront-orders/internal/port"
)

func getMySQLDB(t *testing.T) *sql.DB {
	dsn := os.Getenv("MYSQL_DSN")
	if dsn == "" {
		dsn = "root:root@tcp(localhost:3306)/storefront?parseTime=true"
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		t.Skipf("MySQL not available: %v", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		t.Skipf("MySQL not available: %v", err)
	}

	if err := Migrate(db); err != nil {
		db.Close()
		t.Fatalf("migrate: %v", err)
	}

	return db
}

func seedProduct(t *testing.T, db *sql.DB, stock int) string {
	t.Helper()
	id := "test-product-" + uuid.NewString()[:8]
	_, err := db.Exec(`
		INSERT INTO products (id, name, price, stock, sold_quantity, is_available, weight, images)
		VALUES (?, 'Test product', 25.50, ?, 0, 1, 300, '["a.png","b.png"]')`,
		id, stock,
	)
	if err != nil {
		t.Fatalf("seed product: %v", err)
	}
	t.Cleanup(func() {
		db.Exec(`DELETE FROM products WHERE id = ?`, id)
	})
	return id
}

func productStock(t *testing.T, db *sql.DB, id string) (stock, sold int) {
	t.Helper()
	if err := db.QueryRow(`SELECT stock, sold_quantity FROM products WHERE id = ?`, id).Scan(&stock, &sold); err != nil {
		t.Fatalf("read stock: %v", err)
	}
	return stock, sold
}

func newTestOrder(userID, productID string, quantity int) *domain.Order {
	now := time.Now().UTC().Truncate(time.Microsecond)
	id := uuid.NewString()
	price := decimal.RequireFromString("25.50")
	amount := price.Mul(decimal.NewFromInt(int64(quantity)))
	return &domain.Order{
		ID:          id,
		UserID:      userID,
		Amount:      amount,
		ShippingFee: decimal.NewFromInt(5),
		ShippingAddress: domain.Address{
			FullName: "Test User", Phone: "0900000000", Detail: "1 Test St",
			WardCode: "20308", DistrictID: 1444,
		},
		PaymentMethod: domain.PaymentMethodCOD,
		Status:        domain.OrderStatusPending,
		PaymentStatus: domain.PaymentStatusPending,
		Items: []domain.OrderItem{{
			ProductID: productID, Quantity: quantity, Price: price, Name: "Test product", Image: "a.png", Weight: 300,
		}},
		CreatedAt: now,
		UpdatedAt: now,
		Payment: &domain.Payment{
			OrderID: id, Method: domain.PaymentMethodCOD, Status: domain.PaymentStatusPending,
			Amount: amount.Add(decimal.NewFromInt(5)), UpdatedAt: now,
		},
	}
}

func placeOrder(ctx context.Context, adapter *MySQLAdapter, order *domain.Order) (bool, error) {
	placed := false
	err := adapter.RunAtomic(ctx, func(ctx context.Context, tx port.OrderTx) error {
		for _, item := range order.Items {
			ok, err := tx.DecrementStock(ctx, item.ProductID, item.Quantity)
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
		}
		placed = true
		return tx.InsertOrder(ctx, order)
	})
	return placed, err
}

func TestMySQL_PlaceOrder_Success(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db)
	productID := seedProduct(t, db, 10)

	order := newTestOrder("test-user", productID, 3)
	defer db.Exec(`DELETE FROM orders WHERE id = ?`, order.ID)

	placed, err := placeOrder(ctx, adapter, order)
	if err != nil {
		t.Fatalf("place order failed: %v", err)
	}
	if !placed {
		t.Fatal("expected order to be placed")
	}

	stock, sold := productStock(t, db, productID)
	if stock != 7 || sold != 3 {
		t.Errorf("expected stock 7 sold 3, got %d/%d", stock, sold)
	}

	got, err := adapter.GetOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("GetOrder failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected order, got nil")
	}
	if len(got.Items) != 1 || got.Items[0].Quantity != 3 {
		t.Errorf("unexpected items: %+v", got.Items)
	}
	if !got.Amount.Equal(order.Amount) {
		t.Errorf("expected amount %s, got %s", order.Amount, got.Amount)
	}
	if got.ShippingAddress.DistrictID != 1444 {
		t.Errorf("shipping address not round-tripped: %+v", got.ShippingAddress)
	}
	if got.Payment == nil || !got.Payment.Amount.Equal(order.Payment.Amount) {
		t.Errorf("unexpected payment: %+v", got.Payment)
	}
}

func TestMySQL_DecrementStock_Insufficient(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db)
	productID := seedProduct(t, db, 2)

	order := newTestOrder("test-user", productID, 3)
	placed, err := placeOrder(ctx, adapter, order)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if placed {
		db.Exec(`DELETE FROM orders WHERE id = ?`, order.ID)
		t.Fatal("expected guarded decrement to refuse")
	}

	stock, _ := productStock(t, db, productID)
	if stock != 2 {
		t.Errorf("expected stock 2, got %d", stock)
	}
}

func TestMySQL_RunAtomic_RollsBack(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db)
	productID := seedProduct(t, db, 5)
	boom := errors.New("boom")

	err := adapter.RunAtomic(ctx, func(ctx context.Context, tx port.OrderTx) error {
		if _, err := tx.DecrementStock(ctx, productID, 5); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	stock, sold := productStock(t, db, productID)
	if stock != 5 || sold != 0 {
		t.Errorf("expected rollback to keep 5/0, got %d/%d", stock, sold)
	}
}

func TestMySQL_TransitionStatus_Guarded(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db)
	productID := seedProduct(t, db, 5)
	order := newTestOrder("test-user", productID, 1)
	defer db.Exec(`DELETE FROM orders WHERE id = ?`, order.ID)

	if _, err := placeOrder(ctx, adapter, order); err != nil {
		t.Fatalf("place order: %v", err)
	}

	transition := func() bool {
		var ok bool
		err := adapter.RunAtomic(ctx, func(ctx context.Context, tx port.OrderTx) error {
			var err error
			ok, err = tx.TransitionStatus(ctx, order.ID, domain.CancellableStatuses, domain.OrderStatusCancelled, domain.PaymentStatusFailed)
			return err
		})
		if err != nil {
			t.Fatalf("transition: %v", err)
		}
		return ok
	}

	if !transition() {
		t.Fatal("first transition should apply")
	}
	if transition() {
		t.Fatal("second transition should be refused")
	}

	got, _ := adapter.GetOrder(ctx, order.ID)
	if got.Status != domain.OrderStatusCancelled || got.Payment.Status != domain.PaymentStatusFailed {
		t.Errorf("unexpected status %s / payment %s", got.Status, got.Payment.Status)
	}
}

func TestMySQL_DeleteOrder_Cascades(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db)
	productID := seedProduct(t, db, 5)
	order := newTestOrder("test-user", productID, 1)

	if _, err := placeOrder(ctx, adapter, order); err != nil {
		t.Fatalf("place order: %v", err)
	}

	err := adapter.RunAtomic(ctx, func(ctx context.Context, tx port.OrderTx) error {
		return tx.DeleteOrder(ctx, order.ID)
	})
	if err != nil {
		t.Fatalf("delete: %v", err)
	}

	var items, payments int
	db.QueryRow(`SELECT COUNT(*) FROM order_items WHERE order_id = ?`, order.ID).Scan(&items)
	db.QueryRow(`SELECT COUNT(*) FROM payments WHERE order_id = ?`, order.ID).Scan(&payments)
	if items != 0 || payments != 0 {
		t.Errorf("expected cascade, found %d items and %d payments", items, payments)
	}
}

func TestMySQL_ListOrdersByUser(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db)
	productID := seedProduct(t, db, 10)
	userID := "list-user-" + uuid.NewString()[:8]

	first := newTestOrder(userID, productID, 1)
	second := newTestOrder(userID, productID, 2)
	second.CreatedAt = first.CreatedAt.Add(time.Second)
	defer db.Exec(`DELETE FROM orders WHERE user_id = ?`, userID)

	for _, o := range []*domain.Order{first, second} {
		if _, err := placeOrder(ctx, adapter, o); err != nil {
			t.Fatalf("place order: %v", err)
		}
	}

	orders, err := adapter.ListOrdersByUser(ctx, userID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(orders) != 2 {
		t.Fatalf("expected 2 orders, got %d", len(orders))
	}
	if orders[0].ID != second.ID {
		t.Errorf("expected newest first")
	}
	if len(orders[0].Items) != 1 || orders[0].Items[0].Quantity != 2 {
		t.Errorf("items not attached: %+v", orders[0].Items)
	}
}

func TestMySQL_GetOrder_NotFound(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	order, err := NewMySQLAdapter(db).GetOrder(context.Background(), "nonexistent-order")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if order != nil {
		t.Error("expected nil for nonexistent order")
	}
}

func TestMySQL_ConcurrentDecrement(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db)
	productID := seedProduct(t, db, 10)
	defer db.Exec(`DELETE FROM order_items WHERE product_id = ?`, productID)

	var placedCount atomic.Int32
	var wg sync.WaitGroup
	concurrency := 40

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			order := newTestOrder("concurrent-user", productID, 1)
			placed, err := placeOrder(ctx, adapter, order)
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if placed {
				placedCount.Add(1)
				db.Exec(`DELETE FROM orders WHERE id = ?`, order.ID)
			}
		}()
	}
	wg.Wait()

	if placedCount.Load() != 10 {
		t.Errorf("expected exactly 10 orders, got %d", placedCount.Load())
	}
	stock, sold := productStock(t, db, productID)
	if stock != 0 || sold != 10 {
		t.Errorf("expected 0/10, got %d/%d", stock, sold)
	}
}
