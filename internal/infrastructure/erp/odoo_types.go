package erp

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mendlyio/LaCabrade-V4/internal/domain/integration"
)

// ---------------------------------------------------------------------------
// JSON-RPC envelope
// ---------------------------------------------------------------------------

type rpcRequest struct {
	JSONRPC string    `json:"jsonrpc"`
	Method  string    `json:"method"`
	Params  rpcParams `json:"params"`
	ID      int64     `json:"id"`
}

type rpcParams struct {
	Service string `json:"service"`
	Method  string `json:"method"`
	Args    []any  `json:"args"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is an error returned by the Odoo server
type RPCError struct {
	Code    int          `json:"code"`
	Message string       `json:"message"`
	Data    RPCErrorData `json:"data"`
}

// RPCErrorData carries the server-side exception
type RPCErrorData struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	Debug   string `json:"debug,omitempty"`
}

// Error implements error
func (e *RPCError) Error() string {
	msg := e.Data.Message
	if msg == "" {
		msg = e.Message
	}
	if e.Data.Name != "" {
		return fmt.Sprintf("odoo: %s: %s", e.Data.Name, msg)
	}
	return fmt.Sprintf("odoo: %d: %s", e.Code, msg)
}

// IsSessionError reports whether the error means the session or credentials
// are no longer accepted
func (e *RPCError) IsSessionError() bool {
	name := e.Data.Name
	return e.Code == 100 ||
		strings.Contains(name, "SessionExpired") ||
		strings.Contains(name, "AccessDenied")
}

// Unwrap maps the server error onto the integration error taxonomy
func (e *RPCError) Unwrap() error {
	if e.IsSessionError() {
		return integration.ErrERPSessionExpired
	}
	return integration.ErrERPRequestFailed
}

// ---------------------------------------------------------------------------
// Odoo field values
// ---------------------------------------------------------------------------

// odooString decodes Odoo char/text fields, which are false when empty
type odooString string

func (s *odooString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("false")) || bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	var v string
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*s = odooString(v)
	return nil
}

// odooID decodes the result of a create call, a single id or a one-element list
type odooID int64

func (id *odooID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var ids []int64
		if err := json.Unmarshal(data, &ids); err != nil {
			return err
		}
		if len(ids) == 0 {
			return errors.New("empty id list")
		}
		*id = odooID(ids[0])
		return nil
	}
	var v int64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*id = odooID(v)
	return nil
}

// odooUID decodes the result of common.authenticate: a uid or false
type odooUID int64

func (u *odooUID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("false")) || bytes.Equal(data, []byte("null")) {
		*u = 0
		return nil
	}
	var v int64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*u = odooUID(v)
	return nil
}

// odooWriteDateLayout is the server-side datetime format, always UTC
const odooWriteDateLayout = "2006-01-02 15:04:05"

// ---------------------------------------------------------------------------
// Records
// ---------------------------------------------------------------------------

var templateListFields = []string{
	"id", "name", "display_name", "list_price", "currency_id",
	"default_code", "qty_available", "image_128", "product_variant_count",
}

var templateReadFields = []string{
	"id", "name", "display_name", "description_sale", "list_price", "currency_id",
	"default_code", "qty_available", "weight", "volume", "image_1920",
	"product_variant_ids", "product_variant_count", "attribute_line_ids", "write_date",
}

var variantReadFields = []string{
	"id", "display_name", "default_code", "lst_price", "currency_id",
	"weight", "qty_available", "product_template_variant_value_ids",
}

type odooTemplate struct {
	ID                  int64                 `json:"id"`
	Name                odooString            `json:"name"`
	DisplayName         odooString            `json:"display_name"`
	DescriptionSale     odooString            `json:"description_sale"`
	ListPrice           decimal.Decimal       `json:"list_price"`
	CurrencyID          integration.Reference `json:"currency_id"`
	DefaultCode         odooString            `json:"default_code"`
	QtyAvailable        float64               `json:"qty_available"`
	Weight              float64               `json:"weight"`
	Volume              float64               `json:"volume"`
	Image1920           odooString            `json:"image_1920"`
	Image128            odooString            `json:"image_128"`
	ProductVariantIDs   []int64               `json:"product_variant_ids"`
	ProductVariantCount int                   `json:"product_variant_count"`
	AttributeLineIDs    []int64               `json:"attribute_line_ids"`
	WriteDate           odooString            `json:"write_date"`
}

type odooVariant struct {
	ID                             int64                 `json:"id"`
	DisplayName                    odooString            `json:"display_name"`
	DefaultCode                    odooString            `json:"default_code"`
	LstPrice                       *decimal.Decimal      `json:"lst_price"`
	CurrencyID                     integration.Reference `json:"currency_id"`
	Weight                         float64               `json:"weight"`
	QtyAvailable                   float64               `json:"qty_available"`
	ProductTemplateVariantValueIDs []int64               `json:"product_template_variant_value_ids"`
}

type odooAttributeLine struct {
	ID          int64                 `json:"id"`
	AttributeID integration.Reference `json:"attribute_id"`
	ValueIDs    []int64               `json:"value_ids"`
}

type odooAttributeValue struct {
	ID   int64      `json:"id"`
	Name odooString `json:"name"`
}

type odooTemplateAttributeValue struct {
	ID          int64                 `json:"id"`
	Name        odooString            `json:"name"`
	AttributeID integration.Reference `json:"attribute_id"`
}

type odooProductRef struct {
	ID            int64                 `json:"id"`
	ProductTmplID integration.Reference `json:"product_tmpl_id"`
	QtyAvailable  float64               `json:"qty_available"`
}

type odooPartner struct {
	ID int64 `json:"id"`
}

// optionalFloat maps Odoo's 0.0 "not set" onto nil
func optionalFloat(v float64) *float64 {
	if v == 0 {
		return nil
	}
	return &v
}
