package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// ERP Errors
// ---------------------------------------------------------------------------

var (
	// ERP access errors
	ErrERPNotConfigured      = errors.New("integration: erp credentials not configured")
	ErrERPUnavailable        = errors.New("integration: erp temporarily unavailable")
	ErrERPRequestFailed      = errors.New("integration: erp request failed")
	ErrERPInvalidResponse    = errors.New("integration: invalid erp response")
	ErrERPAuthFailed         = errors.New("integration: erp authentication failed")
	ErrERPSessionExpired     = errors.New("integration: erp session expired")
	ErrStockNotFound         = errors.New("integration: product code not found in erp")
	ErrInvalidExternalID     = errors.New("integration: invalid external id")
	ErrInvalidOrder          = errors.New("integration: invalid order for erp")
	ErrInvalidPageRequest    = errors.New("integration: invalid page request")
	ErrEmptyProductSelection = errors.New("integration: no products selected")

	// Normalization errors
	ErrMalformedProduct = errors.New("integration: malformed erp product")
	ErrMissingCurrency  = errors.New("integration: erp product has no currency")
)

// ---------------------------------------------------------------------------
// External identifiers
// ---------------------------------------------------------------------------

// ExternalIDString renders an ERP id the way it is stored in metadata.external_id.
func ExternalIDString(id int64) string {
	return strconv.FormatInt(id, 10)
}

// ParseExternalID parses a metadata.external_id value back into an ERP id.
func ParseExternalID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidExternalID, s)
	}
	return id, nil
}

// ---------------------------------------------------------------------------
// Stock references
// ---------------------------------------------------------------------------

// StockRef identifies the ERP product a stock quantity belongs to.
// Code is matched on the ERP product code. A generated SKU has no ERP
// counterpart, so such variants are referenced by their ERP variant id, or
// by their template when the product has a single variant.
type StockRef struct {
	Code       string
	VariantID  int64
	TemplateID int64
}

// CodeRef references the ERP product carrying code
func CodeRef(code string) StockRef {
	return StockRef{Code: strings.TrimSpace(code)}
}

// IsZero returns true if the reference matches nothing
func (r StockRef) IsZero() bool {
	return r.Code == "" && r.VariantID <= 0 && r.TemplateID <= 0
}

// String renders the reference for logs and errors
func (r StockRef) String() string {
	switch {
	case r.Code != "":
		return r.Code
	case r.VariantID > 0:
		return fmt.Sprintf("variant:%d", r.VariantID)
	case r.TemplateID > 0:
		return fmt.Sprintf("template:%d", r.TemplateID)
	default:
		return "<none>"
	}
}

// ---------------------------------------------------------------------------
// Reference is a many-to-one link as the ERP returns it
// ---------------------------------------------------------------------------

// Reference points to another ERP record. The ERP encodes it either as a
// pair `[id, "name"]`, as an object `{"id": .., "display_name": ..}` or as
// `false` when unset; all three decode into a Reference.
type Reference struct {
	ID   int64
	Name string
}

// IsZero returns true if the reference is unset
func (r Reference) IsZero() bool {
	return r.ID == 0 && r.Name == ""
}

// UnmarshalJSON decodes the pair, object and false encodings.
func (r *Reference) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("false")) || bytes.Equal(data, []byte("null")) {
		*r = Reference{}
		return nil
	}

	switch data[0] {
	case '[':
		var pair []json.RawMessage
		if err := json.Unmarshal(data, &pair); err != nil {
			return err
		}
		*r = Reference{}
		if len(pair) > 0 {
			if err := json.Unmarshal(pair[0], &r.ID); err != nil {
				return fmt.Errorf("reference id: %w", err)
			}
		}
		if len(pair) > 1 {
			if err := json.Unmarshal(pair[1], &r.Name); err != nil {
				return fmt.Errorf("reference name: %w", err)
			}
		}
		return nil
	case '{':
		var obj struct {
			ID          int64  `json:"id"`
			DisplayName string `json:"display_name"`
			Name        string `json:"name"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		r.ID = obj.ID
		r.Name = obj.DisplayName
		if r.Name == "" {
			r.Name = obj.Name
		}
		return nil
	default:
		// A bare id
		var id int64
		if err := json.Unmarshal(data, &id); err != nil {
			return fmt.Errorf("unsupported reference encoding: %s", string(data))
		}
		*r = Reference{ID: id}
		return nil
	}
}

// MarshalJSON encodes the reference as the ERP pair form
func (r Reference) MarshalJSON() ([]byte, error) {
	if r.IsZero() {
		return []byte("false"), nil
	}
	return json.Marshal([]any{r.ID, r.Name})
}

// CurrencyCode returns the lowercased currency code carried by a currency reference
func (r Reference) CurrencyCode() string {
	return strings.ToLower(strings.TrimSpace(r.Name))
}

// ---------------------------------------------------------------------------
// External catalog records
// ---------------------------------------------------------------------------

// AttributeValue is one value of a product attribute, e.g. "Red" for "Color"
type AttributeValue struct {
	ID            int64
	AttributeName string
	Name          string
}

// AttributeLine lists the values an attribute may take on a product
type AttributeLine struct {
	ID            int64
	AttributeName string
	Values        []string
}

// ExternalVariant is one sellable variant of an ExternalProduct
type ExternalVariant struct {
	ID          int64
	DisplayName string
	Code        string
	// Price is nil when the variant has no price of its own
	Price        *decimal.Decimal
	Currency     Reference
	WeightKg     *float64
	Image        string
	QtyAvailable float64
	Values       []AttributeValue
}

// ExternalProduct is a product template as read from the ERP
type ExternalProduct struct {
	ID             int64
	Name           string
	DisplayName    string
	Description    string
	ListPrice      decimal.Decimal
	Currency       Reference
	DefaultCode    string
	QtyAvailable   float64
	WeightKg       *float64
	VolumeM3       *float64
	Image          string
	VariantIDs     []int64
	VariantCount   int
	Variants       []ExternalVariant
	AttributeLines []AttributeLine
	ModifiedAt     time.Time
}

// ExternalIDString returns the product id as stored in local metadata
func (p *ExternalProduct) ExternalIDString() string {
	return ExternalIDString(p.ID)
}

// ModificationStamp is the lightweight projection used by incremental sync
type ModificationStamp struct {
	ID         int64
	ModifiedAt time.Time
}

// ---------------------------------------------------------------------------
// Sale orders pushed to the ERP
// ---------------------------------------------------------------------------

// SaleOrderLine is one ordered item
type SaleOrderLine struct {
	SKU string
	// Ref locates the ERP product; when zero the SKU is taken as the ERP code
	Ref       StockRef
	Title     string
	Quantity  int
	UnitPrice decimal.Decimal
}

// StockRef returns the ERP product reference of the line
func (l SaleOrderLine) StockRef() StockRef {
	if l.Ref.IsZero() {
		return CodeRef(l.SKU)
	}
	return l.Ref
}

// SaleOrder is a locally placed order forwarded to the ERP
type SaleOrder struct {
	// Reference is the local order display id, stored as client_order_ref
	Reference     string
	CustomerEmail string
	CustomerName  string
	CurrencyCode  string
	Lines         []SaleOrderLine
}

// Validate validates the sale order
func (o *SaleOrder) Validate() error {
	if o.Reference == "" {
		return fmt.Errorf("%w: missing reference", ErrInvalidOrder)
	}
	if o.CustomerEmail == "" {
		return fmt.Errorf("%w: missing customer email", ErrInvalidOrder)
	}
	if len(o.Lines) == 0 {
		return fmt.Errorf("%w: no order lines", ErrInvalidOrder)
	}
	for i, line := range o.Lines {
		if line.SKU == "" {
			return fmt.Errorf("%w: line %d has no sku", ErrInvalidOrder, i)
		}
		if line.Quantity <= 0 {
			return fmt.Errorf("%w: line %d has quantity %d", ErrInvalidOrder, i, line.Quantity)
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// ERPSystem Port Interface
// ---------------------------------------------------------------------------

// ERPSystem defines the port to the external ERP.
// Implementations own the authentication session and re-authenticate lazily:
// a call failing on an expired session re-authenticates once and is retried once.
type ERPSystem interface {
	// Authenticate establishes a session. It is a no-op when already authenticated.
	Authenticate(ctx context.Context) error

	// ListProducts returns one page of products and the total number matching query.
	// A non-empty query is a case-insensitive substring match on name and code.
	ListProducts(ctx context.Context, offset, limit int, query string) ([]ExternalProduct, int, error)

	// ReadProducts reads products by id, including their variants and attribute lines
	ReadProducts(ctx context.Context, ids []int64) ([]ExternalProduct, error)

	// ReadModificationTimes returns the last modification time of each product
	ReadModificationTimes(ctx context.Context, ids []int64) ([]ModificationStamp, error)

	// ReadStock returns the on-hand quantity of the referenced product.
	// Returns ErrStockNotFound when no product matches the reference.
	ReadStock(ctx context.Context, ref StockRef) (float64, error)

	// WriteStock sets the on-hand quantity of the referenced product
	WriteStock(ctx context.Context, ref StockRef, quantity float64) error

	// CreateOrder creates a sale order and returns its ERP id
	CreateOrder(ctx context.Context, order SaleOrder) (int64, error)
}
