package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"sup/internal/domain"
	"sup/internal/dto"
	apperrors "sup/internal/errors"
)

// MemStore is an in-memory stand-in for the MySQL repositories. Transactions
// run one at a time and their writes are undone when the unit of work
// returns an error, so tests see the same commit/rollback outcome as InnoDB.
// The *sql.Tx arguments are ignored.
type MemStore struct {
	txMu sync.Mutex
	mu   sync.Mutex

	products map[int]domain.Product
	sales    map[uint]domain.Sale
	lines    map[uint]domain.SaleLine
	clients  map[int]int
	settings map[int]domain.OwnerSettings

	nextProductID int
	nextSaleID    uint
	nextLineID    uint
	nextClientID  int

	failures map[string]error
	now      time.Time
}

func NewMemStore() *MemStore {
	return &MemStore{
		products: map[int]domain.Product{},
		sales:    map[uint]domain.Sale{},
		lines:    map[uint]domain.SaleLine{},
		clients:  map[int]int{},
		settings: map[int]domain.OwnerSettings{},
		failures: map[string]error{},
		now:      time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC),
	}
}

type memState struct {
	products map[int]domain.Product
	sales    map[uint]domain.Sale
	lines    map[uint]domain.SaleLine
}

func (s *MemStore) snapshot() memState {
	st := memState{
		products: make(map[int]domain.Product, len(s.products)),
		sales:    make(map[uint]domain.Sale, len(s.sales)),
		lines:    make(map[uint]domain.SaleLine, len(s.lines)),
	}
	for k, v := range s.products {
		st.products[k] = v
	}
	for k, v := range s.sales {
		st.sales[k] = v
	}
	for k, v := range s.lines {
		st.lines[k] = v
	}
	return st
}

func (s *MemStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	saved := s.snapshot()
	s.mu.Unlock()

	if err := fn(ctx, nil); err != nil {
		s.mu.Lock()
		s.products, s.sales, s.lines = saved.products, saved.sales, saved.lines
		s.mu.Unlock()
		return err
	}
	return nil
}

// FailOn makes the named repository call return err from now on. Names are
// "<View>.<Method>", for example "Sales.UpdateTotal".
func (s *MemStore) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = err
}

func (s *MemStore) fail(op string) error {
	return s.failures[op]
}

// Seeding and inspection helpers.

func (s *MemStore) AddProduct(p domain.Product) domain.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextProductID++
	p.ID = s.nextProductID
	if p.LowStockThreshold == 0 {
		p.LowStockThreshold = domain.DefaultLowStockThreshold
	}
	s.products[p.ID] = p
	return p
}

func (s *MemStore) AddSale(sale domain.Sale) domain.Sale {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSaleID++
	sale.ID = s.nextSaleID
	if sale.SoldAt.IsZero() {
		sale.SoldAt = s.now
	}
	s.sales[sale.ID] = sale
	return sale
}

// AddLine stores a line as-is, without touching stock or totals.
func (s *MemStore) AddLine(line domain.SaleLine) domain.SaleLine {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextLineID++
	line.ID = s.nextLineID
	s.lines[line.ID] = line
	return line
}

func (s *MemStore) AddClient(ownerID int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextClientID++
	s.clients[s.nextClientID] = ownerID
	return s.nextClientID
}

func (s *MemStore) SetSettings(ownerID int, enforceStock bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[ownerID] = domain.OwnerSettings{ID: ownerID, OwnerID: ownerID, EnforceStock: enforceStock}
}

// SetPrice changes a product's catalog price.
func (s *MemStore) SetPrice(productID int, price decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.products[productID]
	p.SalePrice = price
	s.products[productID] = p
}

func (s *MemStore) Product(id int) (domain.Product, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	return p, ok
}

func (s *MemStore) Sale(id uint) (domain.Sale, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sale, ok := s.sales[id]
	return sale, ok
}

func (s *MemStore) Line(id uint) (domain.SaleLine, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lines[id]
	return l, ok
}

func (s *MemStore) LinesOf(saleID uint) []domain.SaleLine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.linesOf(saleID)
}

func (s *MemStore) linesOf(saleID uint) []domain.SaleLine {
	lines := []domain.SaleLine{}
	for _, l := range s.lines {
		if l.SaleID == saleID {
			lines = append(lines, l)
		}
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].ID < lines[j].ID })
	return lines
}

// Repository views. Each one exposes the method set of one MySQL repository.

func (s *MemStore) Products() *MemProducts { return &MemProducts{s} }
func (s *MemStore) Sales() *MemSales       { return &MemSales{s} }
func (s *MemStore) Lines() *MemLines       { return &MemLines{s} }
func (s *MemStore) Clients() *MemClients   { return &MemClients{s} }
func (s *MemStore) Settings() *MemSettings { return &MemSettings{s} }

type MemProducts struct{ s *MemStore }

func (r *MemProducts) FindByIDsAndOwner(ctx context.Context, ids []int, ownerID int) ([]domain.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("Products.FindByIDsAndOwner"); err != nil {
		return nil, err
	}
	var found []domain.Product
	for _, id := range ids {
		if p, ok := r.s.products[id]; ok && p.OwnerID == ownerID {
			found = append(found, p)
		}
	}
	sort.Slice(found, func(i, j int) bool { return found[i].ID < found[j].ID })
	return found, nil
}

func (r *MemProducts) FindByID(ctx context.Context, productID int, ownerID int) (*domain.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("Products.FindByID"); err != nil {
		return nil, err
	}
	return r.find(productID, ownerID)
}

func (r *MemProducts) FindByIDForUpdate(ctx context.Context, tx *sql.Tx, productID int, ownerID int) (*domain.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("Products.FindByIDForUpdate"); err != nil {
		return nil, err
	}
	return r.find(productID, ownerID)
}

func (r *MemProducts) find(productID, ownerID int) (*domain.Product, error) {
	p, ok := r.s.products[productID]
	if !ok || p.OwnerID != ownerID {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("product with id %d not found", productID))
	}
	return &p, nil
}

func (r *MemProducts) AdjustStock(ctx context.Context, tx *sql.Tx, productID int, delta int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("Products.AdjustStock"); err != nil {
		return err
	}
	p, ok := r.s.products[productID]
	if !ok {
		return apperrors.NewNotFoundError(fmt.Sprintf("product with id %d not found", productID))
	}
	p.Stock += delta
	r.s.products[productID] = p
	return nil
}

func (r *MemProducts) FindLowStock(ctx context.Context, ownerID int, limit, offset int) ([]domain.Product, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("Products.FindLowStock"); err != nil {
		return nil, 0, err
	}
	low := []domain.Product{}
	for _, p := range r.s.products {
		if p.OwnerID == ownerID && p.IsLowStock() {
			low = append(low, p)
		}
	}
	sort.Slice(low, func(i, j int) bool {
		if low[i].Name != low[j].Name {
			return low[i].Name < low[j].Name
		}
		return low[i].ID < low[j].ID
	})
	return page(low, limit, offset), len(low), nil
}

// Delete mirrors the ON DELETE SET NULL foreign key on SaleLines.
func (r *MemProducts) Delete(ctx context.Context, tx *sql.Tx, productID int, ownerID int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("Products.Delete"); err != nil {
		return err
	}
	p, ok := r.s.products[productID]
	if !ok || p.OwnerID != ownerID {
		return apperrors.NewNotFoundError(fmt.Sprintf("product with id %d not found", productID))
	}
	delete(r.s.products, productID)
	for id, l := range r.s.lines {
		if l.ProductID != nil && *l.ProductID == productID {
			l.ProductID = nil
			r.s.lines[id] = l
		}
	}
	return nil
}

type MemSales struct{ s *MemStore }

func (r *MemSales) Insert(ctx context.Context, tx *sql.Tx, sale domain.Sale) (uint, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("Sales.Insert"); err != nil {
		return 0, err
	}
	r.s.nextSaleID++
	sale.ID = r.s.nextSaleID
	sale.Lines = nil
	sale.CreatedAt, sale.UpdatedAt = r.s.now, r.s.now
	r.s.sales[sale.ID] = sale
	return sale.ID, nil
}

func (r *MemSales) FindByID(ctx context.Context, id uint, ownerID int) (*domain.Sale, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("Sales.FindByID"); err != nil {
		return nil, err
	}
	return r.find(id, ownerID)
}

func (r *MemSales) FindByIDForUpdate(ctx context.Context, tx *sql.Tx, id uint, ownerID int) (*domain.Sale, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("Sales.FindByIDForUpdate"); err != nil {
		return nil, err
	}
	return r.find(id, ownerID)
}

func (r *MemSales) find(id uint, ownerID int) (*domain.Sale, error) {
	sale, ok := r.s.sales[id]
	if !ok || sale.OwnerID != ownerID {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("sale with id %d not found", id))
	}
	return &sale, nil
}

func (r *MemSales) List(ctx context.Context, ownerID int, filter dto.SaleFilter) ([]domain.Sale, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("Sales.List"); err != nil {
		return nil, 0, err
	}
	matched := []domain.Sale{}
	for _, sale := range r.s.sales {
		if sale.OwnerID != ownerID {
			continue
		}
		if filter.From != nil && sale.SoldAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && !sale.SoldAt.Before(*filter.To) {
			continue
		}
		matched = append(matched, sale)
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].SoldAt.Equal(matched[j].SoldAt) {
			return matched[i].SoldAt.After(matched[j].SoldAt)
		}
		return matched[i].ID > matched[j].ID
	})
	return page(matched, filter.Limit, filter.Offset), len(matched), nil
}

func (r *MemSales) UpdateHeader(ctx context.Context, tx *sql.Tx, sale domain.Sale) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("Sales.UpdateHeader"); err != nil {
		return err
	}
	stored, ok := r.s.sales[sale.ID]
	if !ok || stored.OwnerID != sale.OwnerID {
		return nil
	}
	stored.ClientID, stored.Code, stored.SoldAt = sale.ClientID, sale.Code, sale.SoldAt
	r.s.sales[sale.ID] = stored
	return nil
}

func (r *MemSales) UpdateTotal(ctx context.Context, tx *sql.Tx, id uint, total decimal.Decimal) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("Sales.UpdateTotal"); err != nil {
		return err
	}
	sale, ok := r.s.sales[id]
	if !ok {
		return nil
	}
	sale.Total = total
	r.s.sales[id] = sale
	return nil
}

// Delete mirrors the ON DELETE CASCADE foreign key on SaleLines.
func (r *MemSales) Delete(ctx context.Context, tx *sql.Tx, id uint) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("Sales.Delete"); err != nil {
		return err
	}
	if _, ok := r.s.sales[id]; !ok {
		return apperrors.NewNotFoundError(fmt.Sprintf("sale with id %d not found", id))
	}
	delete(r.s.sales, id)
	for lineID, l := range r.s.lines {
		if l.SaleID == id {
			delete(r.s.lines, lineID)
		}
	}
	return nil
}

type MemLines struct{ s *MemStore }

func (r *MemLines) Insert(ctx context.Context, tx *sql.Tx, line domain.SaleLine) (uint, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("Lines.Insert"); err != nil {
		return 0, err
	}
	r.s.nextLineID++
	line.ID = r.s.nextLineID
	r.s.lines[line.ID] = line
	return line.ID, nil
}

func (r *MemLines) FindByIDForUpdate(ctx context.Context, tx *sql.Tx, saleID uint, lineID uint) (*domain.SaleLine, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("Lines.FindByIDForUpdate"); err != nil {
		return nil, err
	}
	l, ok := r.s.lines[lineID]
	if !ok || l.SaleID != saleID {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("sale line with id %d not found in sale %d", lineID, saleID))
	}
	return &l, nil
}

func (r *MemLines) FindBySaleIDForUpdate(ctx context.Context, tx *sql.Tx, saleID uint) ([]domain.SaleLine, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("Lines.FindBySaleIDForUpdate"); err != nil {
		return nil, err
	}
	return r.s.linesOf(saleID), nil
}

func (r *MemLines) ListBySaleID(ctx context.Context, saleID uint) ([]domain.SaleLine, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("Lines.ListBySaleID"); err != nil {
		return nil, err
	}
	return r.s.linesOf(saleID), nil
}

func (r *MemLines) UpdateQuantity(ctx context.Context, tx *sql.Tx, lineID uint, quantity int, subtotal decimal.Decimal) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("Lines.UpdateQuantity"); err != nil {
		return err
	}
	l, ok := r.s.lines[lineID]
	if !ok {
		return nil
	}
	l.Quantity, l.Subtotal = quantity, subtotal
	r.s.lines[lineID] = l
	return nil
}

func (r *MemLines) Delete(ctx context.Context, tx *sql.Tx, lineID uint) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("Lines.Delete"); err != nil {
		return err
	}
	if _, ok := r.s.lines[lineID]; !ok {
		return apperrors.NewNotFoundError(fmt.Sprintf("sale line with id %d not found", lineID))
	}
	delete(r.s.lines, lineID)
	return nil
}

func (r *MemLines) DeleteBySaleID(ctx context.Context, tx *sql.Tx, saleID uint) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("Lines.DeleteBySaleID"); err != nil {
		return err
	}
	for id, l := range r.s.lines {
		if l.SaleID == saleID {
			delete(r.s.lines, id)
		}
	}
	return nil
}

func (r *MemLines) ClearProduct(ctx context.Context, tx *sql.Tx, productID int) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("Lines.ClearProduct"); err != nil {
		return 0, err
	}
	var n int64
	for id, l := range r.s.lines {
		if l.ProductID != nil && *l.ProductID == productID {
			l.ProductID = nil
			r.s.lines[id] = l
			n++
		}
	}
	return n, nil
}

type MemClients struct{ s *MemStore }

func (r *MemClients) FindOwnerID(ctx context.Context, clientID int) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ownerID, ok := r.s.clients[clientID]
	if !ok {
		return 0, apperrors.NewNotFoundError(fmt.Sprintf("client with id %d not found", clientID))
	}
	return ownerID, nil
}

type MemSettings struct{ s *MemStore }

func (r *MemSettings) FindByOwnerID(ctx context.Context, ownerID int) (*domain.OwnerSettings, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	settings, ok := r.s.settings[ownerID]
	if !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("settings for owner id %d not found", ownerID))
	}
	return &settings, nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return items[offset:end]
}
