// Package erp declares the business table schemas that participate in
// multi-terminal synchronization. The sync engine never interprets the
// business fields; it relies only on the contract columns carried by
// SyncColumns. Business mutations (outside this service) are responsible
// for incrementing version and updated_at on every committed change.
package erp

import "time"

// SyncColumns is the contract every syncable relation exposes to the
// sync engine: stable identity, monotonically increasing version, a
// last-modified timestamp, a sync-status flag and the last writing device.
type SyncColumns struct {
	ID         string    `gorm:"column:id;primaryKey;size:190;not null" json:"id"`
	CompanyID  string    `gorm:"column:company_id;size:190;not null;default:'';index" json:"company_id"`
	Version    int64     `gorm:"column:version;not null;default:1" json:"version"`
	SyncStatus string    `gorm:"column:sync_status;size:16;not null;default:'pending';index" json:"sync_status"`
	DeviceID   string    `gorm:"column:device_id;size:190;not null;default:''" json:"device_id"`
	IsDeleted  bool      `gorm:"column:is_deleted;not null;default:false" json:"is_deleted"`
	CreatedAt  time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt  time.Time `gorm:"column:updated_at;index" json:"updated_at"`
}

// Customer is a master record for a buying party.
type Customer struct {
	SyncColumns
	Name    string `gorm:"column:name;size:320;not null" json:"name"`
	GSTIN   string `gorm:"column:gstin;size:32" json:"gstin"`
	Phone   string `gorm:"column:phone;size:32" json:"phone"`
	Email   string `gorm:"column:email;size:320" json:"email"`
	Address string `gorm:"column:address;type:text" json:"address"`
}

func (Customer) TableName() string { return "customers" }

// Vendor is a master record for a supplying party.
type Vendor struct {
	SyncColumns
	Name    string `gorm:"column:name;size:320;not null" json:"name"`
	GSTIN   string `gorm:"column:gstin;size:32" json:"gstin"`
	Phone   string `gorm:"column:phone;size:32" json:"phone"`
	Address string `gorm:"column:address;type:text" json:"address"`
}

func (Vendor) TableName() string { return "vendors" }

// Item is a purchasable or sellable stock-keeping unit.
type Item struct {
	SyncColumns
	Name         string  `gorm:"column:name;size:320;not null" json:"name"`
	SKU          string  `gorm:"column:sku;size:64" json:"sku"`
	UOMID        string  `gorm:"column:uom_id;size:190" json:"uom_id"`
	CategoryName string  `gorm:"column:category_name;size:190" json:"category_name"`
	PurchaseRate float64 `gorm:"column:purchase_rate" json:"purchase_rate"`
	SellingRate  float64 `gorm:"column:selling_rate" json:"selling_rate"`
}

func (Item) TableName() string { return "items" }

// UOM is a unit of measurement. UOMs are global reference data and are the
// one catalog entry that is not company scoped; the CompanyID column is
// unused for this relation.
type UOM struct {
	SyncColumns
	Name   string  `gorm:"column:name;size:64;not null" json:"name"`
	Symbol string  `gorm:"column:symbol;size:16" json:"symbol"`
	Factor float64 `gorm:"column:factor;default:1" json:"factor"`
}

func (UOM) TableName() string { return "uoms" }

// SalesOrder heads a confirmed sale. Document numbers carry the SO- prefix.
type SalesOrder struct {
	SyncColumns
	DocNumber   string    `gorm:"column:doc_number;size:64;not null" json:"doc_number"`
	CustomerID  string    `gorm:"column:customer_id;size:190" json:"customer_id"`
	OrderDate   time.Time `gorm:"column:order_date" json:"order_date"`
	Status      string    `gorm:"column:status;size:32;not null;default:'draft'" json:"status"`
	GrandTotal  float64   `gorm:"column:grand_total" json:"grand_total"`
	PreparedBy  string    `gorm:"column:prepared_by;size:190" json:"prepared_by"`
	LineSummary string    `gorm:"column:line_summary;type:text" json:"line_summary"`
}

func (SalesOrder) TableName() string { return "sales_orders" }

// Invoice heads a billed sale. Document numbers carry the INV- prefix.
type Invoice struct {
	SyncColumns
	DocNumber   string    `gorm:"column:doc_number;size:64;not null" json:"doc_number"`
	OrderID     string    `gorm:"column:order_id;size:190" json:"order_id"`
	CustomerID  string    `gorm:"column:customer_id;size:190" json:"customer_id"`
	InvoiceDate time.Time `gorm:"column:invoice_date" json:"invoice_date"`
	Status      string    `gorm:"column:status;size:32;not null;default:'draft'" json:"status"`
	TaxAmount   float64   `gorm:"column:tax_amount" json:"tax_amount"`
	GrandTotal  float64   `gorm:"column:grand_total" json:"grand_total"`
}

func (Invoice) TableName() string { return "invoices" }

// PurchaseOrder heads a confirmed purchase. Document numbers carry the
// PO- prefix.
type PurchaseOrder struct {
	SyncColumns
	DocNumber  string    `gorm:"column:doc_number;size:64;not null" json:"doc_number"`
	VendorID   string    `gorm:"column:vendor_id;size:190" json:"vendor_id"`
	OrderDate  time.Time `gorm:"column:order_date" json:"order_date"`
	Status     string    `gorm:"column:status;size:32;not null;default:'draft'" json:"status"`
	GrandTotal float64   `gorm:"column:grand_total" json:"grand_total"`
}

func (PurchaseOrder) TableName() string { return "purchase_orders" }

// GoodsReceipt records stock received against a purchase order (GRN-).
type GoodsReceipt struct {
	SyncColumns
	DocNumber   string    `gorm:"column:doc_number;size:64;not null" json:"doc_number"`
	OrderID     string    `gorm:"column:order_id;size:190" json:"order_id"`
	WarehouseID string    `gorm:"column:warehouse_id;size:190" json:"warehouse_id"`
	ReceivedAt  time.Time `gorm:"column:received_at" json:"received_at"`
	ReceivedBy  string    `gorm:"column:received_by;size:190" json:"received_by"`
}

func (GoodsReceipt) TableName() string { return "goods_receipts" }

// StockEntry is one movement in the stock ledger.
type StockEntry struct {
	SyncColumns
	ItemID      string  `gorm:"column:item_id;size:190;not null" json:"item_id"`
	WarehouseID string  `gorm:"column:warehouse_id;size:190" json:"warehouse_id"`
	Movement    string  `gorm:"column:movement;size:16;not null" json:"movement"`
	Quantity    float64 `gorm:"column:quantity;not null" json:"quantity"`
	Rate        float64 `gorm:"column:rate" json:"rate"`
	RefDoc      string  `gorm:"column:ref_doc;size:64" json:"ref_doc"`
}

func (StockEntry) TableName() string { return "stock_entries" }

// PaymentReceipt records money received against an invoice.
type PaymentReceipt struct {
	SyncColumns
	DocNumber  string    `gorm:"column:doc_number;size:64;not null" json:"doc_number"`
	InvoiceID  string    `gorm:"column:invoice_id;size:190" json:"invoice_id"`
	Amount     float64   `gorm:"column:amount;not null" json:"amount"`
	Mode       string    `gorm:"column:mode;size:32" json:"mode"`
	ReceivedAt time.Time `gorm:"column:received_at" json:"received_at"`
}

func (PaymentReceipt) TableName() string { return "payment_receipts" }

// Approval tracks sign-off state for documents that require one.
type Approval struct {
	SyncColumns
	DocType    string    `gorm:"column:doc_type;size:32;not null" json:"doc_type"`
	DocID      string    `gorm:"column:doc_id;size:190;not null" json:"doc_id"`
	Decision   string    `gorm:"column:decision;size:32;not null;default:'pending'" json:"decision"`
	DecidedBy  string    `gorm:"column:decided_by;size:190" json:"decided_by"`
	DecidedAt  time.Time `gorm:"column:decided_at" json:"decided_at"`
	Commentary string    `gorm:"column:commentary;type:text" json:"commentary"`
}

func (Approval) TableName() string { return "approvals" }

// Models lists every syncable business schema for migration.
func Models() []any {
	return []any{
		&Customer{},
		&Vendor{},
		&Item{},
		&UOM{},
		&SalesOrder{},
		&Invoice{},
		&PurchaseOrder{},
		&GoodsReceipt{},
		&StockEntry{},
		&PaymentReceipt{},
		&Approval{},
	}
}
