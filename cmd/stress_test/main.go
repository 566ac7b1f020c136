package main

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/rl1809/storefront-orders/internal/adapter/handler"
	"github.com/rl1809/storefront-orders/internal/adapter/storage"
	"github.com/rl1809/storefront-orders/internal/core/domain"
	"github.com/rl1809/storefront-orders/internal/core/service"
	"github.com/rl1809/storefront-orders/internal/metrics"
	"github.com/rl1809/storefront-orders/internal/port"
)

type stockReader func(ctx context.Context) (stock, sold int, err error)

func main() {
	driver := flag.String("driver", "memory", "store driver: memory or mysql")
	dsn := flag.String("dsn", "root:root@tcp(localhost:3306)/storefront?parseTime=true", "mysql DSN")
	initialStock := flag.Int("stock", 20, "units seeded for the product")
	totalRequests := flag.Int("requests", 50, "concurrent order requests, one unit each")
	flag.Parse()

	ctx := context.Background()
	productID := "stress-" + uuid.NewString()[:8]

	repo, readStock, cleanup, err := seed(ctx, *driver, *dsn, productID, *initialStock)
	if err != nil {
		log.Fatalf("seed: %v", err)
	}
	defer cleanup()

	m := metrics.New(prometheus.NewRegistry())
	orderService := service.NewOrderService(repo, service.WithMetrics(m))
	server := httptest.NewServer(handler.NewHTTPHandler(orderService, nil, m, zerolog.Nop()).Routes())
	defer server.Close()

	client := &http.Client{Timeout: 10 * time.Second}

	var successCount, soldOutCount, errorCount atomic.Int32
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < *totalRequests; i++ {
		wg.Add(1)
		go func(userID int) {
			defer wg.Done()

			status, err := placeOrder(client, server.URL, fmt.Sprintf("user-%d", userID), productID)
			switch {
			case err != nil:
				log.Printf("user-%d: %v", userID, err)
				errorCount.Add(1)
			case status == http.StatusCreated:
				successCount.Add(1)
			case status == http.StatusBadRequest:
				soldOutCount.Add(1)
			default:
				log.Printf("user-%d: unexpected status %d", userID, status)
				errorCount.Add(1)
			}
		}(i)
	}

	wg.Wait()
	elapsed := time.Since(start)

	success := int(successCount.Load())
	soldOut := int(soldOutCount.Load())
	wantSuccess := min(*initialStock, *totalRequests)

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Driver:           %s\n", *driver)
	fmt.Printf("Initial Stock:    %d\n", *initialStock)
	fmt.Printf("Total Requests:   %d\n", *totalRequests)
	fmt.Printf("Successful:       %d\n", success)
	fmt.Printf("Sold Out:         %d\n", soldOut)
	fmt.Printf("Errors:           %d\n", errorCount.Load())
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	if success == wantSuccess && soldOut == *totalRequests-wantSuccess {
		fmt.Printf("PASS: exactly %d orders succeeded, %d sold out\n", wantSuccess, soldOut)
	} else {
		fmt.Printf("FAIL: expected %d success/%d sold out, got %d/%d\n",
			wantSuccess, *totalRequests-wantSuccess, success, soldOut)
	}

	stock, sold, err := readStock(ctx)
	if err != nil {
		log.Fatalf("read stock: %v", err)
	}
	fmt.Printf("Final Stock:      %d (sold %d)\n", stock, sold)

	if stock == *initialStock-success && stock+sold == *initialStock {
		fmt.Println("PASS: stock conserved")
	} else {
		fmt.Printf("FAIL: expected stock %d with %d sold, got %d/%d\n", *initialStock-success, success, stock, sold)
	}
}

func placeOrder(client *http.Client, baseURL, userID, productID string) (int, error) {
	body, err := json.Marshal(handler.CreateOrderRequest{
		Items: []handler.CreateOrderItem{{ProductID: productID, Quantity: 1}},
		ShippingAddress: domain.Address{
			FullName: userID, Phone: "0900000000", Detail: "1 Load St", WardCode: "20308", DistrictID: 1444,
		},
		ShippingFee:   decimal.NewFromInt(15),
		PaymentMethod: string(domain.PaymentMethodCOD),
	})
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequest(http.MethodPost, baseURL+"/orders", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(handler.HeaderUserID, userID)

	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}

func seed(ctx context.Context, driver, dsn, productID string, stock int) (port.OrderRepository, stockReader, func(), error) {
	product := domain.Product{
		ID:          productID,
		Name:        "Stress product",
		Price:       decimal.NewFromInt(10),
		Stock:       stock,
		IsAvailable: true,
	}

	if driver == "memory" {
		store := storage.NewMemoryAdapter()
		store.PutProduct(product)
		read := func(context.Context) (int, int, error) {
			p, _ := store.Product(productID)
			return p.Stock, p.SoldQuantity, nil
		}
		return store, read, func() {}, nil
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, nil, err
	}
	if err := storage.Migrate(db); err != nil {
		db.Close()
		return nil, nil, nil, err
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO products (id, name, price, stock, sold_quantity, is_available, images)
		VALUES (?, ?, ?, ?, 0, 1, '[]')`,
		product.ID, product.Name, product.Price.String(), product.Stock,
	)
	if err != nil {
		db.Close()
		return nil, nil, nil, err
	}

	read := func(ctx context.Context) (int, int, error) {
		var stock, sold int
		err := db.QueryRowContext(ctx, `SELECT stock, sold_quantity FROM products WHERE id = ?`, productID).Scan(&stock, &sold)
		return stock, sold, err
	}
	cleanup := func() {
		db.Exec(`DELETE o FROM orders o JOIN order_items i ON i.order_id = o.id WHERE i.product_id = ?`, productID)
		db.Exec(`DELETE FROM products WHERE id = ?`, productID)
		db.Close()
	}
	return storage.NewMySQLAdapter(db), read, cleanup, nil
}
