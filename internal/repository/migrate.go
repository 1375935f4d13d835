package repository

import (
	"context"

	"entgo.io/ent/dialect"
	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"
)

const (
	tableInvoices    = "invoices"
	tableLineItems   = "line_items"
	tableCorrections = "correction_records"
	tablePatterns    = "learned_patterns"
	tableHistory     = "matching_history"
)

var (
	moneyType = map[string]string{dialect.Postgres: "numeric(18,6)"}
	textType  = map[string]string{dialect.Postgres: "text"}
)

func col(name string, typ field.Type) *schema.Column {
	return &schema.Column{Name: name, Type: typ}
}

func money(name string) *schema.Column {
	return &schema.Column{Name: name, Type: field.TypeString, SchemaType: moneyType}
}

func text(name string) *schema.Column {
	return &schema.Column{Name: name, Type: field.TypeString, SchemaType: textType}
}

func nullable(c *schema.Column) *schema.Column {
	c.Nullable = true
	return c
}

var (
	invoicesTable = schema.NewTable(tableInvoices).
		AddPrimary(col("id", field.TypeUUID)).
		AddColumn(col("run_id", field.TypeString)).
		AddColumn(col("file_name", field.TypeString)).
		AddColumn(col("invoice_number", field.TypeString)).
		AddColumn(col("issue_date", field.TypeString)).
		AddColumn(col("vendor_name", field.TypeString)).
		AddColumn(col("vendor_tax_id", field.TypeString)).
		AddColumn(col("currency", field.TypeString)).
		AddColumn(money("total")).
		AddColumn(money("tax")).
		AddColumn(col("strategy", field.TypeString)).
		AddColumn(col("confidence", field.TypeFloat64)).
		AddColumn(money("total_cost")).
		AddColumn(col("created_at", field.TypeTime))

	lineItemsTable = schema.NewTable(tableLineItems).
		AddPrimary(col("id", field.TypeUUID)).
		AddColumn(col("invoice_id", field.TypeUUID)).
		AddColumn(col("position", field.TypeInt)).
		AddColumn(text("description")).
		AddColumn(money("quantity")).
		AddColumn(money("unit_price")).
		AddColumn(money("line_total")).
		AddColumn(col("category", field.TypeString)).
		AddColumn(col("sub_category", field.TypeString)).
		AddColumn(col("extracted_category", field.TypeString)).
		AddColumn(col("suggested_by", field.TypeString))

	correctionsTable = schema.NewTable(tableCorrections).
		AddPrimary(col("id", field.TypeUUID)).
		AddColumn(col("kind", field.TypeString)).
		AddColumn(text("invoice_text")).
		AddColumn(col("original", field.TypeJSON)).
		AddColumn(col("corrected", field.TypeJSON)).
		AddColumn(col("user_confidence", field.TypeJSON)).
		AddColumn(col("document", field.TypeJSON)).
		AddColumn(col("changes", field.TypeJSON)).
		AddColumn(col("source_identity", field.TypeString)).
		AddColumn(col("identity", field.TypeString)).
		AddColumn(col("pattern_key", field.TypeString)).
		AddColumn(nullable(col("line_item_id", field.TypeUUID))).
		AddColumn(nullable(col("matching_history_id", field.TypeUUID))).
		AddColumn(col("created_at", field.TypeTime)).
		AddColumn(&schema.Column{Name: "seq", Type: field.TypeInt64, Default: 0}).
		AddIndex("correction_records_created_at", false, []string{"created_at"}).
		AddIndex("correction_records_seq", false, []string{"seq"}).
		AddIndex("correction_records_kind", false, []string{"kind"})

	patternsTable = schema.NewTable(tablePatterns).
		AddPrimary(col("field", field.TypeString)).
		AddPrimary(text("value")).
		AddColumn(col("matcher_kind", field.TypeString)).
		AddColumn(text("matcher_expr")).
		AddColumn(col("confidence", field.TypeFloat64)).
		AddColumn(col("examples", field.TypeJSON)).
		AddColumn(col("sub_category", field.TypeString)).
		AddColumn(col("reinforcements", field.TypeInt)).
		AddColumn(col("created_at", field.TypeTime)).
		AddColumn(col("last_reinforced_at", field.TypeTime))

	historyTable = schema.NewTable(tableHistory).
		AddPrimary(col("id", field.TypeUUID)).
		AddColumn(col("line_item_id", field.TypeUUID)).
		AddColumn(col("source_identity", field.TypeString)).
		AddColumn(col("field", field.TypeString)).
		AddColumn(col("pattern_key", field.TypeString)).
		AddColumn(col("suggested_value", field.TypeString)).
		AddColumn(col("confidence", field.TypeFloat64)).
		AddColumn(col("status", field.TypeString)).
		AddColumn(col("corrected_value", field.TypeString)).
		AddColumn(col("created_at", field.TypeTime)).
		AddColumn(nullable(col("resolved_at", field.TypeTime))).
		AddIndex("matching_history_line_item", false, []string{"line_item_id"})

	// Tables lists every table the repositories use.
	Tables = []*schema.Table{invoicesTable, lineItemsTable, correctionsTable, patternsTable, historyTable}
)

func init() {
	invoiceID, _ := lineItemsTable.Column("invoice_id")
	id, _ := invoicesTable.Column("id")
	lineItemsTable.AddForeignKey(&schema.ForeignKey{
		Symbol:     "line_items_invoices_line_items",
		Columns:    []*schema.Column{invoiceID},
		RefTable:   invoicesTable,
		RefColumns: []*schema.Column{id},
		OnDelete:   schema.Cascade,
	})
}

// Migrate creates missing tables and columns. It never drops anything.
func (d *DB) Migrate(ctx context.Context) error {
	m, err := schema.NewMigrate(d.drv)
	if err != nil {
		return dbError("migrate", err)
	}
	if err := m.Create(ctx, Tables...); err != nil {
		return dbError("migrate", err)
	}
	d.logger.Info("database migrated", "tables", len(Tables))
	return nil
}
