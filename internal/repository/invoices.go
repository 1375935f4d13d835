package repository

import (
	"context"
	"log/slog"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/invoice-intake/internal/common"
	"github.com/joseph-ayodele/invoice-intake/internal/entity"
)

var (
	invoiceColumns = []string{
		"id", "run_id", "file_name", "invoice_number", "issue_date", "vendor_name",
		"vendor_tax_id", "currency", "total", "tax", "strategy", "confidence", "total_cost", "created_at",
	}
	lineItemColumns = []string{
		"id", "invoice_id", "position", "description", "quantity", "unit_price", "line_total",
		"category", "sub_category", "extracted_category", "suggested_by",
	}
)

// InvoiceMeta is the run information stored alongside an extracted invoice.
type InvoiceMeta struct {
	RunID      string
	FileName   string
	Strategy   string
	Confidence float64
	TotalCost  decimal.Decimal
	CreatedAt  time.Time
}

// InvoiceRepository stores extracted invoices and their line items.
type InvoiceRepository struct {
	db     *DB
	logger *slog.Logger
}

func NewInvoiceRepository(db *DB, logger *slog.Logger) *InvoiceRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &InvoiceRepository{db: db, logger: logger}
}

// CreateInvoice assigns ids to the invoice and its line items and writes
// them in one transaction. The passed invoice is updated in place.
func (r *InvoiceRepository) CreateInvoice(ctx context.Context, inv *entity.Invoice, meta InvoiceMeta) error {
	if inv.ID == uuid.Nil {
		inv.ID = uuid.New()
	}
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = time.Now()
	}
	for i := range inv.LineItems {
		li := &inv.LineItems[i]
		if li.ID == uuid.Nil {
			li.ID = uuid.New()
		}
		li.InvoiceID = inv.ID
		li.Position = i
	}

	d := entsql.Dialect(r.db.Dialect())
	err := r.db.inTx(ctx, func(tx dialect.Tx) error {
		st := d.Insert(tableInvoices).
			Columns(invoiceColumns...).
			Values(
				inv.ID, meta.RunID, meta.FileName, inv.InvoiceNumber, inv.IssueDate, inv.VendorName,
				inv.VendorTaxID, inv.Currency, inv.Total, inv.Tax, meta.Strategy, meta.Confidence,
				meta.TotalCost, meta.CreatedAt.UTC(),
			)
		if _, err := exec(ctx, tx, st); err != nil {
			return err
		}
		if len(inv.LineItems) == 0 {
			return nil
		}
		items := d.Insert(tableLineItems).Columns(lineItemColumns...)
		for _, li := range inv.LineItems {
			items.Values(
				li.ID, li.InvoiceID, li.Position, li.Description, li.Quantity, li.UnitPrice, li.LineTotal,
				li.Category, li.SubCategory, li.ExtractedCategory, li.SuggestedBy,
			)
		}
		_, err := exec(ctx, tx, items)
		return err
	})
	if err != nil {
		r.logger.Error("failed to create invoice", "invoice_id", inv.ID, "run_id", meta.RunID, "error", err)
		return dbError("create invoice", err)
	}
	r.logger.Info("invoice stored", "invoice_id", inv.ID, "run_id", meta.RunID, "line_items", len(inv.LineItems))
	return nil
}

// GetInvoice loads an invoice with its line items in position order.
func (r *InvoiceRepository) GetInvoice(ctx context.Context, id uuid.UUID) (entity.Invoice, error) {
	d := entsql.Dialect(r.db.Dialect())
	st := d.Select("id", "invoice_number", "issue_date", "vendor_name", "vendor_tax_id", "currency", "total", "tax").
		From(entsql.Table(tableInvoices)).
		Where(entsql.EQ("id", id))

	var (
		inv   entity.Invoice
		found bool
	)
	err := each(ctx, r.db.drv, st, func(rows *entsql.Rows) error {
		found = true
		return rows.Scan(&inv.ID, &inv.InvoiceNumber, &inv.IssueDate, &inv.VendorName,
			&inv.VendorTaxID, &inv.Currency, &inv.Total, &inv.Tax)
	})
	if err != nil {
		return entity.Invoice{}, dbError("get invoice", err)
	}
	if !found {
		return entity.Invoice{}, common.NotFound("invoice %s not found", id)
	}

	items := d.Select(lineItemColumns...).
		From(entsql.Table(tableLineItems)).
		Where(entsql.EQ("invoice_id", id)).
		OrderBy(entsql.Asc("position"))
	err = each(ctx, r.db.drv, items, func(rows *entsql.Rows) error {
		li, err := scanLineItem(rows)
		if err != nil {
			return err
		}
		inv.LineItems = append(inv.LineItems, li)
		return nil
	})
	if err != nil {
		return entity.Invoice{}, dbError("list line items", err)
	}
	return inv, nil
}

func (r *InvoiceRepository) GetLineItem(ctx context.Context, id uuid.UUID) (entity.LineItem, error) {
	st := entsql.Dialect(r.db.Dialect()).
		Select(lineItemColumns...).
		From(entsql.Table(tableLineItems)).
		Where(entsql.EQ("id", id))

	var (
		li    entity.LineItem
		found bool
	)
	err := each(ctx, r.db.drv, st, func(rows *entsql.Rows) error {
		var err error
		li, err = scanLineItem(rows)
		found = err == nil
		return err
	})
	if err != nil {
		return entity.LineItem{}, dbError("get line item", err)
	}
	if !found {
		return entity.LineItem{}, common.NotFound("line item %s not found", id)
	}
	return li, nil
}

func (r *InvoiceRepository) UpdateLineItemCategory(ctx context.Context, id uuid.UUID, category, subCategory, suggestedBy string) error {
	st := entsql.Dialect(r.db.Dialect()).
		Update(tableLineItems).
		Set("category", category).
		Set("sub_category", subCategory).
		Set("suggested_by", suggestedBy).
		Where(entsql.EQ("id", id))
	n, err := exec(ctx, r.db.drv, st)
	if err != nil {
		r.logger.Error("failed to update line item category", "line_item_id", id, "error", err)
		return dbError("update line item", err)
	}
	if n == 0 {
		return common.NotFound("line item %s not found", id)
	}
	return nil
}

func scanLineItem(rows *entsql.Rows) (entity.LineItem, error) {
	var li entity.LineItem
	err := rows.Scan(
		&li.ID, &li.InvoiceID, &li.Position, &li.Description, &li.Quantity, &li.UnitPrice,
		&li.LineTotal, &li.Category, &li.SubCategory, &li.ExtractedCategory, &li.SuggestedBy,
	)
	return li, err
}
