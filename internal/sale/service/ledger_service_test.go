package service

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"sup/internal/domain"
	"sup/internal/dto"
	apperrors "sup/internal/errors"
	"sup/internal/testutil"
)

const owner = 1

type recordingPublisher struct {
	mu     sync.Mutex
	alerts []domain.StockAlert
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, alert domain.StockAlert) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.alerts = append(p.alerts, alert)
	return nil
}

func newTestLedger(store *testutil.MemStore, alerts AlertPublisher) *LedgerService {
	if alerts == nil {
		alerts = &recordingPublisher{}
	}
	svc := NewLedgerService(store, store.Products(), store.Sales(), store.Lines(), alerts, zap.NewNop())
	svc.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return svc
}

func money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func seedProduct(store *testutil.MemStore, name string, stock int, price string) domain.Product {
	return store.AddProduct(domain.Product{
		OwnerID:           owner,
		Name:              name,
		Stock:             stock,
		SalePrice:         money(price),
		AcquisitionPrice:  money(price),
		LowStockThreshold: 1,
	})
}

func stockOf(t *testing.T, store *testutil.MemStore, id int) int {
	t.Helper()
	p, ok := store.Product(id)
	require.True(t, ok)
	return p.Stock
}

func totalOf(t *testing.T, store *testutil.MemStore, id uint) decimal.Decimal {
	t.Helper()
	s, ok := store.Sale(id)
	require.True(t, ok)
	return s.Total
}

func assertTotalMatchesLines(t *testing.T, store *testutil.MemStore, saleID uint) {
	t.Helper()
	assert.True(t, domain.SumSubtotals(store.LinesOf(saleID)).Equal(totalOf(t, store, saleID)))
}

func TestLedger_ConcreteScenario(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMemStore()
	svc := newTestLedger(store, nil)

	a := seedProduct(store, "Yerba", 10, "5.00")
	b := seedProduct(store, "Azucar", 4, "2.00")
	sale, err := svc.OpenSale(ctx, domain.Sale{OwnerID: owner, SoldAt: time.Now().UTC()})
	require.NoError(t, err)
	assert.True(t, sale.Total.IsZero())

	resA, err := svc.CreateLine(ctx, owner, sale.ID, a.ID, 3, true)
	require.NoError(t, err)
	assert.Equal(t, 7, stockOf(t, store, a.ID))
	assert.Equal(t, "15.00", resA.Sale.Total.StringFixed(2))

	resB, err := svc.CreateLine(ctx, owner, sale.ID, b.ID, 2, true)
	require.NoError(t, err)
	assert.Equal(t, 2, stockOf(t, store, b.ID))
	assert.Equal(t, "19.00", resB.Sale.Total.StringFixed(2))

	upd, err := svc.UpdateLine(ctx, owner, sale.ID, resA.Line.ID, 5, true)
	require.NoError(t, err)
	assert.Equal(t, 5, stockOf(t, store, a.ID))
	assert.Equal(t, "25.00", upd.Line.Subtotal.StringFixed(2))
	assert.Equal(t, "29.00", upd.Sale.Total.StringFixed(2))

	del, err := svc.DeleteLine(ctx, owner, sale.ID, resB.Line.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, stockOf(t, store, b.ID))
	assert.Equal(t, "25.00", del.Sale.Total.StringFixed(2))
	assert.Nil(t, del.Line)

	restored, err := svc.DeleteSale(ctx, owner, sale.ID)
	require.NoError(t, err)
	require.Len(t, restored, 1)
	assert.Equal(t, 10, stockOf(t, store, a.ID))

	_, ok := store.Sale(sale.ID)
	assert.False(t, ok)
	assert.Empty(t, store.LinesOf(sale.ID))
}

func TestLedger_CreateThenDeleteIsRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMemStore()
	svc := newTestLedger(store, nil)

	p := seedProduct(store, "Harina", 50, "1.35")
	sale := store.AddSale(domain.Sale{OwnerID: owner})
	other := seedProduct(store, "Aceite", 20, "3.10")
	_, err := svc.CreateLine(ctx, owner, sale.ID, other.ID, 2, true)
	require.NoError(t, err)
	before := totalOf(t, store, sale.ID)

	res, err := svc.CreateLine(ctx, owner, sale.ID, p.ID, 7, true)
	require.NoError(t, err)
	assert.Equal(t, 43, stockOf(t, store, p.ID))

	_, err = svc.DeleteLine(ctx, owner, sale.ID, res.Line.ID)
	require.NoError(t, err)

	assert.Equal(t, 50, stockOf(t, store, p.ID))
	assert.True(t, before.Equal(totalOf(t, store, sale.ID)))
}

func TestLedger_UpdateLineKeepsPriceSnapshot(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMemStore()
	svc := newTestLedger(store, nil)

	p := seedProduct(store, "Cafe", 30, "4.50")
	sale := store.AddSale(domain.Sale{OwnerID: owner})

	res, err := svc.CreateLine(ctx, owner, sale.ID, p.ID, 2, true)
	require.NoError(t, err)

	store.SetPrice(p.ID, money("9.99"))

	upd, err := svc.UpdateLine(ctx, owner, sale.ID, res.Line.ID, 4, true)
	require.NoError(t, err)
	assert.Equal(t, "4.50", upd.Line.UnitPrice.StringFixed(2))
	assert.Equal(t, "18.00", upd.Line.Subtotal.StringFixed(2))
	assert.Equal(t, "18.00", upd.Sale.Total.StringFixed(2))
	assert.Equal(t, 26, stockOf(t, store, p.ID))
}

func TestLedger_UpdateLineDecreaseGivesStockBack(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMemStore()
	svc := newTestLedger(store, nil)

	p := seedProduct(store, "Fideos", 10, "1.00")
	sale := store.AddSale(domain.Sale{OwnerID: owner})

	res, err := svc.CreateLine(ctx, owner, sale.ID, p.ID, 8, true)
	require.NoError(t, err)

	upd, err := svc.UpdateLine(ctx, owner, sale.ID, res.Line.ID, 3, true)
	require.NoError(t, err)
	assert.Equal(t, 7, stockOf(t, store, p.ID))
	require.Len(t, upd.Products, 1)
	assert.Equal(t, 7, upd.Products[0].Stock)
}

func TestLedger_DeleteSaleRestoresEveryLine(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMemStore()
	svc := newTestLedger(store, nil)

	a := seedProduct(store, "A", 100, "1.00")
	b := seedProduct(store, "B", 100, "2.00")
	sale := store.AddSale(domain.Sale{OwnerID: owner})

	for _, step := range []struct {
		productID int
		qty       int
	}{{b.ID, 5}, {a.ID, 3}, {b.ID, 7}} {
		_, err := svc.CreateLine(ctx, owner, sale.ID, step.productID, step.qty, true)
		require.NoError(t, err)
	}
	assert.Equal(t, 97, stockOf(t, store, a.ID))
	assert.Equal(t, 88, stockOf(t, store, b.ID))

	restored, err := svc.DeleteSale(ctx, owner, sale.ID)
	require.NoError(t, err)

	require.Len(t, restored, 2)
	assert.Equal(t, a.ID, restored[0].ID)
	assert.Equal(t, b.ID, restored[1].ID)
	assert.Equal(t, 100, stockOf(t, store, a.ID))
	assert.Equal(t, 100, stockOf(t, store, b.ID))
}

func TestLedger_LinesWithoutProduct(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMemStore()
	svc := newTestLedger(store, nil)

	bystander := seedProduct(store, "Bystander", 12, "1.00")
	sale := store.AddSale(domain.Sale{OwnerID: owner})
	orphan := store.AddLine(domain.SaleLine{
		SaleID:      sale.ID,
		ProductName: "Discontinued",
		Quantity:    2,
		UnitPrice:   money("3.25"),
		Subtotal:    money("6.50"),
	})
	kept := store.AddLine(domain.SaleLine{
		SaleID:      sale.ID,
		ProductName: "Also gone",
		Quantity:    1,
		UnitPrice:   money("1.10"),
		Subtotal:    money("1.10"),
	})

	upd, err := svc.UpdateLine(ctx, owner, sale.ID, orphan.ID, 6, true)
	require.NoError(t, err)
	assert.Empty(t, upd.Products)
	assert.Equal(t, "19.50", upd.Line.Subtotal.StringFixed(2))
	assert.Equal(t, "Discontinued", upd.Line.ProductName)
	assert.Equal(t, "20.60", upd.Sale.Total.StringFixed(2))

	del, err := svc.DeleteLine(ctx, owner, sale.ID, orphan.ID)
	require.NoError(t, err)
	assert.Empty(t, del.Products)
	assert.Equal(t, "1.10", del.Sale.Total.StringFixed(2))

	_, ok := store.Line(kept.ID)
	assert.True(t, ok)

	restored, err := svc.DeleteSale(ctx, owner, sale.ID)
	require.NoError(t, err)
	assert.Empty(t, restored)
	assert.Equal(t, 12, stockOf(t, store, bystander.ID))
}

func TestLedger_FailedTotalWriteRollsBackEverything(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMemStore()
	svc := newTestLedger(store, nil)

	p := seedProduct(store, "Leche", 10, "2.00")
	sale := store.AddSale(domain.Sale{OwnerID: owner})
	boom := errors.New("connection reset")
	store.FailOn("Sales.UpdateTotal", boom)

	_, err := svc.CreateLine(ctx, owner, sale.ID, p.ID, 4, true)
	require.ErrorIs(t, err, boom)

	assert.Equal(t, 10, stockOf(t, store, p.ID))
	assert.Empty(t, store.LinesOf(sale.ID))
	assert.True(t, totalOf(t, store, sale.ID).IsZero())
}

func TestLedger_FailedDeleteSaleKeepsStock(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMemStore()
	svc := newTestLedger(store, nil)

	p := seedProduct(store, "Pan", 10, "2.00")
	sale := store.AddSale(domain.Sale{OwnerID: owner})
	_, err := svc.CreateLine(ctx, owner, sale.ID, p.ID, 4, true)
	require.NoError(t, err)

	store.FailOn("Sales.Delete", errors.New("lock wait"))
	_, err = svc.DeleteSale(ctx, owner, sale.ID)
	require.Error(t, err)

	assert.Equal(t, 6, stockOf(t, store, p.ID))
	assert.Len(t, store.LinesOf(sale.ID), 1)
}

func TestLedger_StockEnforcement(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMemStore()
	svc := newTestLedger(store, nil)

	p := seedProduct(store, "Queso", 3, "8.00")
	sale := store.AddSale(domain.Sale{OwnerID: owner})

	_, err := svc.CreateLine(ctx, owner, sale.ID, p.ID, 4, true)
	ise, ok := apperrors.IsInsufficientStockError(err)
	require.True(t, ok)
	assert.Equal(t, 4, ise.Requested)
	assert.Equal(t, 3, ise.Available)
	assert.Equal(t, 3, stockOf(t, store, p.ID))

	res, err := svc.CreateLine(ctx, owner, sale.ID, p.ID, 3, true)
	require.NoError(t, err)
	assert.Equal(t, 0, stockOf(t, store, p.ID))

	_, err = svc.UpdateLine(ctx, owner, sale.ID, res.Line.ID, 4, true)
	_, ok = apperrors.IsInsufficientStockError(err)
	assert.True(t, ok)

	_, err = svc.UpdateLine(ctx, owner, sale.ID, res.Line.ID, 5, false)
	require.NoError(t, err)
	assert.Equal(t, -2, stockOf(t, store, p.ID))
}

func TestLedger_OwnershipAndLineScope(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMemStore()
	svc := newTestLedger(store, nil)

	p := seedProduct(store, "Sal", 10, "1.00")
	saleA := store.AddSale(domain.Sale{OwnerID: owner})
	saleB := store.AddSale(domain.Sale{OwnerID: owner})
	foreign := store.AddSale(domain.Sale{OwnerID: 2})

	res, err := svc.CreateLine(ctx, owner, saleA.ID, p.ID, 1, true)
	require.NoError(t, err)

	_, err = svc.UpdateLine(ctx, owner, saleB.ID, res.Line.ID, 2, true)
	_, ok := apperrors.IsNotFoundError(err)
	assert.True(t, ok)

	_, err = svc.CreateLine(ctx, owner, foreign.ID, p.ID, 1, true)
	_, ok = apperrors.IsNotFoundError(err)
	assert.True(t, ok)

	_, err = svc.CreateLine(ctx, 2, foreign.ID, p.ID, 1, true)
	_, ok = apperrors.IsNotFoundError(err)
	assert.True(t, ok)

	assert.Equal(t, 9, stockOf(t, store, p.ID))
}

func TestLedger_PublishesLowStockAlertsOnDecrease(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMemStore()
	alerts := &recordingPublisher{}
	svc := newTestLedger(store, alerts)

	p := store.AddProduct(domain.Product{OwnerID: owner, Name: "Te", Stock: 12, SalePrice: money("1.00"), LowStockThreshold: 10})
	sale := store.AddSale(domain.Sale{OwnerID: owner})

	res, err := svc.CreateLine(ctx, owner, sale.ID, p.ID, 2, true)
	require.NoError(t, err)
	assert.Empty(t, alerts.alerts, "stock equal to threshold is not low")

	_, err = svc.UpdateLine(ctx, owner, sale.ID, res.Line.ID, 3, true)
	require.NoError(t, err)
	require.Len(t, alerts.alerts, 1)
	assert.Equal(t, p.ID, alerts.alerts[0].ProductID)
	assert.Equal(t, 9, alerts.alerts[0].Stock)
	assert.Equal(t, 10, alerts.alerts[0].Threshold)
	assert.Equal(t, sale.ID, alerts.alerts[0].SaleID)

	_, err = svc.DeleteLine(ctx, owner, sale.ID, res.Line.ID)
	require.NoError(t, err)
	assert.Len(t, alerts.alerts, 1)
}

func TestLedger_PublishFailureDoesNotFailOperation(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMemStore()
	svc := newTestLedger(store, &recordingPublisher{err: errors.New("redis down")})

	p := seedProduct(store, "Miel", 2, "6.00")
	sale := store.AddSale(domain.Sale{OwnerID: owner})

	_, err := svc.CreateLine(ctx, owner, sale.ID, p.ID, 2, true)
	require.NoError(t, err)
	assert.Equal(t, 0, stockOf(t, store, p.ID))
}

func TestLedger_UpdateSaleHeaderResumsTotal(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMemStore()
	svc := newTestLedger(store, nil)

	sale := store.AddSale(domain.Sale{OwnerID: owner, Total: money("99.00")})
	store.AddLine(domain.SaleLine{SaleID: sale.ID, ProductName: "x", Quantity: 1, UnitPrice: money("4.00"), Subtotal: money("4.00")})
	clientID := 7
	code := 1200
	soldAt := time.Date(2026, 2, 2, 9, 30, 0, 0, time.UTC)

	updated, err := svc.UpdateSaleHeader(ctx, owner, sale.ID, dto.UpdateSaleInput{ClientID: &clientID, Code: &code, SoldAt: &soldAt})
	require.NoError(t, err)
	assert.Equal(t, "4.00", updated.Total.StringFixed(2))
	assert.Equal(t, 1200, updated.Code)
	assert.Equal(t, &clientID, updated.ClientID)
	assert.True(t, soldAt.Equal(updated.SoldAt))

	updated, err = svc.UpdateSaleHeader(ctx, owner, sale.ID, dto.UpdateSaleInput{WalkIn: true})
	require.NoError(t, err)
	assert.True(t, updated.IsWalkIn())
	assert.Equal(t, 1200, updated.Code)
}

func TestLedger_ReconcileTotal(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMemStore()
	svc := newTestLedger(store, nil)

	sale := store.AddSale(domain.Sale{OwnerID: owner, Total: money("10.00")})
	store.AddLine(domain.SaleLine{SaleID: sale.ID, ProductName: "x", Quantity: 3, UnitPrice: money("2.50"), Subtotal: money("7.50")})

	res, err := svc.ReconcileTotal(ctx, owner, sale.ID)
	require.NoError(t, err)
	assert.True(t, res.Drifted)
	assert.Equal(t, "10.00", res.Previous.StringFixed(2))
	assert.Equal(t, "7.50", totalOf(t, store, sale.ID).StringFixed(2))

	res, err = svc.ReconcileTotal(ctx, owner, sale.ID)
	require.NoError(t, err)
	assert.False(t, res.Drifted)
}

func TestLedger_RandomSequenceKeepsTotalAndStock(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMemStore()
	svc := newTestLedger(store, nil)
	rng := rand.New(rand.NewSource(42))

	prices := []string{"0.10", "1.99", "3.33", "12.45"}
	products := make([]domain.Product, len(prices))
	for i, price := range prices {
		products[i] = seedProduct(store, "P", 1000, price)
	}
	sale := store.AddSale(domain.Sale{OwnerID: owner})

	for i := 0; i < 200; i++ {
		lines := store.LinesOf(sale.ID)
		switch op := rng.Intn(3); {
		case op == 0 || len(lines) == 0:
			p := products[rng.Intn(len(products))]
			_, err := svc.CreateLine(ctx, owner, sale.ID, p.ID, 1+rng.Intn(5), false)
			require.NoError(t, err)
		case op == 1:
			l := lines[rng.Intn(len(lines))]
			_, err := svc.UpdateLine(ctx, owner, sale.ID, l.ID, 1+rng.Intn(9), false)
			require.NoError(t, err)
		default:
			l := lines[rng.Intn(len(lines))]
			_, err := svc.DeleteLine(ctx, owner, sale.ID, l.ID)
			require.NoError(t, err)
		}
		assertTotalMatchesLines(t, store, sale.ID)
	}

	sold := map[int]int{}
	for _, l := range store.LinesOf(sale.ID) {
		sold[*l.ProductID] += l.Quantity
	}
	for _, p := range products {
		assert.Equal(t, 1000-sold[p.ID], stockOf(t, store, p.ID))
	}
}

func TestLedger_ConcurrentCreateLine(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMemStore()
	svc := newTestLedger(store, nil)

	p := seedProduct(store, "Galletitas", 15, "1.25")
	sale := store.AddSale(domain.Sale{OwnerID: owner})

	var wg sync.WaitGroup
	var mu sync.Mutex
	rejected := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.CreateLine(ctx, owner, sale.ID, p.ID, 1, true)
			if err != nil {
				_, ok := apperrors.IsInsufficientStockError(err)
				assert.True(t, ok)
				mu.Lock()
				rejected++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, rejected)
	assert.Equal(t, 0, stockOf(t, store, p.ID))
	assert.Len(t, store.LinesOf(sale.ID), 15)
	assert.Equal(t, "18.75", totalOf(t, store, sale.ID).StringFixed(2))
}
