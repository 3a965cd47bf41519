//go:build integration

package firestore_test

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/exec"
	"strings"
	"testing"
	"time"

	domain "github.com/clovermart/storefront/internal/domain"
	pconfig "github.com/clovermart/storefront/internal/platform/config"
	pfirestore "github.com/clovermart/storefront/internal/platform/firestore"
	repofs "github.com/clovermart/storefront/internal/repositories/firestore"
	"github.com/clovermart/storefront/internal/services"
)

const firestoreEmulatorImage = "gcr.io/google.com/cloudsdktool/cloud-sdk:emulators"

// Finalization runs its counter allocation, promo commit, stock adjustment and
// order update in one Firestore transaction. The real client refuses reads
// after the first buffered write, so this exercises the full sequence against
// the emulator to prove the staged-write ordering holds up.
func TestOrderFinalizationTransactionIntegration(t *testing.T) {
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("docker not available: " + err.Error())
	}
	ensureDockerDaemon(t)

	port := freePort(t)
	endpoint := fmt.Sprintf("127.0.0.1:%d", port)
	containerID := startFirestoreEmulator(t, port)
	defer stopContainer(containerID)

	waitForEndpoint(t, endpoint, 30*time.Second)

	provider := pfirestore.NewProvider(pconfig.FirestoreConfig{
		ProjectID:    "test-project",
		EmulatorHost: endpoint,
	})
	t.Cleanup(func() {
		_ = provider.Close(context.Background())
	})

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	client, err := provider.Client(ctx)
	if err != nil {
		t.Fatalf("firestore client: %v", err)
	}

	now := time.Now().UTC()
	if _, err := client.Collection("products").Doc("prod-1").Set(ctx, map[string]any{
		"sku":       "MUG-01",
		"name":      "Clover Mug",
		"price":     int64(100),
		"currency":  "INR",
		"quantity":  int64(5),
		"sold":      int64(0),
		"active":    true,
		"updatedAt": now,
	}); err != nil {
		t.Fatalf("seed product: %v", err)
	}
	if _, err := client.Collection("promoCodes").Doc("SAVE5").Set(ctx, map[string]any{
		"code":       "SAVE5",
		"type":       "percentage",
		"value":      int64(5),
		"usageLimit": int64(10),
		"usedCount":  int64(0),
		"active":     true,
		"updatedAt":  now,
	}); err != nil {
		t.Fatalf("seed promo: %v", err)
	}

	orderRepo, err := repofs.NewOrderRepository(provider)
	if err != nil {
		t.Fatalf("order repository: %v", err)
	}
	productRepo, err := repofs.NewProductRepository(provider)
	if err != nil {
		t.Fatalf("product repository: %v", err)
	}
	promoRepo, err := repofs.NewPromoRepository(provider)
	if err != nil {
		t.Fatalf("promo repository: %v", err)
	}
	counterRepo, err := repofs.NewCounterRepository(provider)
	if err != nil {
		t.Fatalf("counter repository: %v", err)
	}
	unitOfWork, err := repofs.NewUnitOfWork(provider)
	if err != nil {
		t.Fatalf("unit of work: %v", err)
	}

	counters, err := services.NewCounterService(services.CounterServiceDeps{Repository: counterRepo})
	if err != nil {
		t.Fatalf("counter service: %v", err)
	}
	promos, err := services.NewPromoService(services.PromoServiceDeps{Repository: promoRepo})
	if err != nil {
		t.Fatalf("promo service: %v", err)
	}
	inventory, err := services.NewInventoryService(services.InventoryServiceDeps{Repository: productRepo})
	if err != nil {
		t.Fatalf("inventory service: %v", err)
	}
	orders, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:     orderRepo,
		Counters:   counters,
		Promos:     promos,
		Inventory:  inventory,
		UnitOfWork: unitOfWork,
	})
	if err != nil {
		t.Fatalf("order service: %v", err)
	}

	created, err := orders.Create(ctx, services.CreateOrderCommand{
		Customer:      domain.Customer{UserID: "user-1", Email: "shopper@example.com"},
		ShippingTo:    domain.Address{Name: "A Shopper", Line1: "1 Main St", City: "Pune", PostalCode: "411001", Country: "IN"},
		Lines:         []domain.OrderLine{{ProductID: "prod-1", Name: "Clover Mug", Quantity: 3, UnitPrice: 100}},
		Currency:      "INR",
		PromoCode:     "SAVE5",
		PaymentMethod: domain.PaymentMethodGateway,
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	result, err := orders.Finalize(ctx, created.ID)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if result.AlreadyApplied {
		t.Fatal("first finalization must not report AlreadyApplied")
	}
	if result.OrderNumber != 1 {
		t.Fatalf("order number = %d, want 1", result.OrderNumber)
	}

	finalized, err := orders.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("reload order: %v", err)
	}
	if finalized.Status != domain.OrderStatusProcessing {
		t.Fatalf("status = %s, want processing", finalized.Status)
	}
	if finalized.Totals.Discount != 15 || finalized.Totals.Total != 285 {
		t.Fatalf("totals = %+v, want discount 15 total 285", finalized.Totals)
	}

	product, err := productRepo.FindByID(ctx, "prod-1")
	if err != nil {
		t.Fatalf("reload product: %v", err)
	}
	if product.Quantity != 2 || product.Sold != 3 {
		t.Fatalf("stock = %+v, want quantity 2 sold 3", product)
	}

	promo, err := promoRepo.FindByCode(ctx, "SAVE5")
	if err != nil {
		t.Fatalf("reload promo: %v", err)
	}
	if promo.UsedCount != 1 {
		t.Fatalf("usedCount = %d, want 1", promo.UsedCount)
	}

	second, err := orders.Finalize(ctx, created.ID)
	if err != nil {
		t.Fatalf("repeat finalize: %v", err)
	}
	if !second.AlreadyApplied || second.OrderNumber != 1 {
		t.Fatalf("repeat finalize = %+v, want AlreadyApplied with number 1", second)
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	addr, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("unable to allocate port: %v", err)
	}
	defer addr.Close()
	return addr.Addr().(*net.TCPAddr).Port
}

func startFirestoreEmulator(t *testing.T, port int) string {
	t.Helper()
	args := []string{
		"run", "-d", "--rm",
		"-p", fmt.Sprintf("%d:8080", port),
		firestoreEmulatorImage,
		"gcloud", "beta", "emulators", "firestore", "start",
		"--host-port=0.0.0.0:8080",
		"--quiet",
	}

	cmd := exec.Command("docker", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("failed to start firestore emulator: %v - %s", err, string(out))
	}
	id := strings.TrimSpace(string(out))
	if id == "" {
		t.Fatalf("docker returned empty container id")
	}
	if len(id) > 12 {
		id = id[:12]
	}
	return id
}

func stopContainer(id string) {
	if id == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "docker", "stop", id)
	_ = cmd.Run()
}

func waitForEndpoint(t *testing.T, endpoint string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", endpoint, 500*time.Millisecond)
		if err == nil {
			conn.Close()
			return
		}
		lastErr = err
		time.Sleep(250 * time.Millisecond)
	}
	if lastErr == nil {
		lastErr = errors.New("timeout waiting for endpoint")
	}
	t.Fatalf("emulator did not become ready: %v", lastErr)
}

func ensureDockerDaemon(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, "docker", "info")
	if err := cmd.Run(); err != nil {
		t.Skip("docker daemon unavailable: " + err.Error())
	}
}
