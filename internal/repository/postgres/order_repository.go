package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	domainErrors "github.com/cassiomorais/orders/internal/domain/errors"
	"github.com/cassiomorais/orders/internal/domain/order"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// allowedSortColumns is a whitelist of columns valid for ORDER BY.
var allowedSortColumns = map[string]string{
	"created_at": "created_at",
	"updated_at": "updated_at",
	"total":      "total",
	"status":     "status",
}

const orderColumns = `id, tenant_id, status, subtotal, tax, total, currency,
		        customer_name, customer_email, customer_phone, notes, cancel_reason, created_at, updated_at`

// OrderRepository implements order.Repository using PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

func (r *OrderRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

// Create inserts the order and its items. Call it inside a transaction so a
// partial order is never visible.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	db := r.db(ctx)

	_, err := db.Exec(ctx,
		`INSERT INTO orders
		 (id, tenant_id, status, subtotal, tax, total, currency,
		  customer_name, customer_email, customer_phone, notes, cancel_reason, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		o.ID, o.TenantID, string(o.Status),
		centsToNumericString(o.SubtotalCents), centsToNumericString(o.TaxCents), centsToNumericString(o.TotalCents), o.Currency,
		o.Customer.Name, o.Customer.Email, o.Customer.Phone, o.Notes, o.CancelReason, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for i, it := range o.Items {
		_, err := db.Exec(ctx,
			`INSERT INTO order_items (id, order_id, menu_item_id, name, unit_price, quantity, position)
			 VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			it.ID, o.ID, it.MenuItemID, it.Name, centsToNumericString(it.UnitPriceCents), it.Quantity, i,
		)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}
	return nil
}

func (r *OrderRepository) GetByID(ctx context.Context, tenantID, id uuid.UUID) (*order.Order, error) {
	o, err := scanOrder(r.db(ctx).QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE tenant_id = $1 AND id = $2`, tenantID, id))
	if err != nil {
		return nil, err
	}

	items, err := r.loadItems(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	o.Items = items
	return o, nil
}

func (r *OrderRepository) GetForUpdate(ctx context.Context, tenantID, id uuid.UUID) (*order.Order, error) {
	return scanOrder(r.db(ctx).QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE tenant_id = $1 AND id = $2 FOR UPDATE`, tenantID, id))
}

func (r *OrderRepository) UpdateStatus(ctx context.Context, o *order.Order) error {
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE orders SET status = $1, cancel_reason = $2, updated_at = $3
		 WHERE tenant_id = $4 AND id = $5`,
		string(o.Status), o.CancelReason, o.UpdatedAt, o.TenantID, o.ID,
	)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrOrderNotFound
	}
	return nil
}

// List returns orders without items.
func (r *OrderRepository) List(ctx context.Context, f order.ListFilter) ([]*order.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE tenant_id = $1`
	args := []any{f.TenantID}
	argIdx := 2

	if f.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, string(*f.Status))
		argIdx++
	}

	// Strict whitelist for sort column
	sortBy := "created_at"
	if col, ok := allowedSortColumns[f.SortBy]; ok {
		sortBy = col
	}
	sortOrder := "DESC"
	if strings.EqualFold(f.SortOrder, "asc") {
		sortOrder = "ASC"
	}
	query += fmt.Sprintf(" ORDER BY %s %s, id", sortBy, sortOrder)

	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, limit, f.Offset)

	rows, err := r.db(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var orders []*order.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func (r *OrderRepository) loadItems(ctx context.Context, orderID uuid.UUID) ([]order.Item, error) {
	rows, err := r.db(ctx).Query(ctx,
		`SELECT id, menu_item_id, name, unit_price, quantity
		 FROM order_items WHERE order_id = $1 ORDER BY position`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list order items: %w", err)
	}
	defer rows.Close()

	var items []order.Item
	for rows.Next() {
		var (
			it    order.Item
			price string
		)
		if err := rows.Scan(&it.ID, &it.MenuItemID, &it.Name, &price, &it.Quantity); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		if it.UnitPriceCents, err = numericStringToCents(price); err != nil {
			return nil, fmt.Errorf("parse unit price: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func scanOrder(s scanner) (*order.Order, error) {
	o := &order.Order{}
	var status, subtotal, tax, total string
	err := s.Scan(
		&o.ID, &o.TenantID, &status, &subtotal, &tax, &total, &o.Currency,
		&o.Customer.Name, &o.Customer.Email, &o.Customer.Phone, &o.Notes, &o.CancelReason, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrOrderNotFound
		}
		return nil, fmt.Errorf("scan order: %w", err)
	}

	o.Status = order.Status(status)
	if o.SubtotalCents, err = numericStringToCents(subtotal); err != nil {
		return nil, fmt.Errorf("parse subtotal: %w", err)
	}
	if o.TaxCents, err = numericStringToCents(tax); err != nil {
		return nil, fmt.Errorf("parse tax: %w", err)
	}
	if o.TotalCents, err = numericStringToCents(total); err != nil {
		return nil, fmt.Errorf("parse total: %w", err)
	}
	return o, nil
}

// MenuRepository implements order.Catalog.
type MenuRepository struct {
	pool *pgxpool.Pool
}

func NewMenuRepository(pool *pgxpool.Pool) *MenuRepository {
	return &MenuRepository{pool: pool}
}

// GetMenuItems returns the requested items that belong to the tenant. Missing
// ids are simply absent from the result.
func (r *MenuRepository) GetMenuItems(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]*order.MenuItem, error) {
	rows, err := ConnFromCtx(ctx, r.pool).Query(ctx,
		`SELECT id, tenant_id, name, price, available
		 FROM menu_items WHERE tenant_id = $1 AND id = ANY($2)`, tenantID, ids)
	if err != nil {
		return nil, fmt.Errorf("get menu items: %w", err)
	}
	defer rows.Close()

	items := make(map[uuid.UUID]*order.MenuItem, len(ids))
	for rows.Next() {
		var (
			m     order.MenuItem
			price string
		)
		if err := rows.Scan(&m.ID, &m.TenantID, &m.Name, &price, &m.Available); err != nil {
			return nil, fmt.Errorf("scan menu item: %w", err)
		}
		if m.PriceCents, err = numericStringToCents(price); err != nil {
			return nil, fmt.Errorf("parse menu price: %w", err)
		}
		items[m.ID] = &m
	}
	return items, rows.Err()
}
