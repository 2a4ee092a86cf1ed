package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// EntityKind tags the domain type a pending action targets.
type EntityKind string

const (
	EntityProduct  EntityKind = "product"
	EntityCustomer EntityKind = "customer"
	EntityOrder    EntityKind = "order"
	EntitySupplier EntityKind = "supplier"
	EntityEmployee EntityKind = "employee"
	EntityInvoice  EntityKind = "invoice"
)

// Payload is the mutation body of a pending action. Each entity kind has its
// own concrete type; RawPayload carries kinds without a dedicated type.
// Typed fields are pointers: nil means absent, so a PATCH can clear a field
// by sending it empty.
type Payload interface {
	Entity() EntityKind
}

// ProductPayload is the create/update body for inventory products.
type ProductPayload struct {
	SKU         *string  `json:"sku,omitempty"`
	Name        *string  `json:"name,omitempty"`
	Description *string  `json:"description,omitempty"`
	Category    *string  `json:"category,omitempty"`
	Unit        *string  `json:"unit,omitempty"`
	UnitPrice   *float64 `json:"unit_price,omitempty"`
	Stock       *int     `json:"stock,omitempty"`
	Active      *bool    `json:"active,omitempty"`
}

func (ProductPayload) Entity() EntityKind { return EntityProduct }

// CustomerPayload is the create/update body for sales customers.
type CustomerPayload struct {
	Name    *string `json:"name,omitempty"`
	Email   *string `json:"email,omitempty"`
	Phone   *string `json:"phone,omitempty"`
	TaxID   *string `json:"tax_id,omitempty"`
	Address *string `json:"address,omitempty"`
}

func (CustomerPayload) Entity() EntityKind { return EntityCustomer }

// OrderLine is one line of a sales or purchase order.
type OrderLine struct {
	ProductID string  `json:"product_id"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

// OrderPayload is the create/update body for orders.
type OrderPayload struct {
	CustomerID *string      `json:"customer_id,omitempty"`
	Status     *string      `json:"status,omitempty"`
	Lines      *[]OrderLine `json:"lines,omitempty"`
	Notes      *string      `json:"notes,omitempty"`
}

func (OrderPayload) Entity() EntityKind { return EntityOrder }

// SupplierPayload is the create/update body for purchasing suppliers.
type SupplierPayload struct {
	Name        *string `json:"name,omitempty"`
	ContactName *string `json:"contact_name,omitempty"`
	Email       *string `json:"email,omitempty"`
	Phone       *string `json:"phone,omitempty"`
	TaxID       *string `json:"tax_id,omitempty"`
}

func (SupplierPayload) Entity() EntityKind { return EntitySupplier }

// EmployeePayload is the create/update body for HR employees.
type EmployeePayload struct {
	FirstName  *string `json:"first_name,omitempty"`
	LastName   *string `json:"last_name,omitempty"`
	Email      *string `json:"email,omitempty"`
	Position   *string `json:"position,omitempty"`
	Department *string `json:"department,omitempty"`
	HireDate   *string `json:"hire_date,omitempty"`
}

func (EmployeePayload) Entity() EntityKind { return EntityEmployee }

// InvoicePayload is the create/update body for finance invoices.
type InvoicePayload struct {
	Number     *string  `json:"number,omitempty"`
	OrderID    *string  `json:"order_id,omitempty"`
	CustomerID *string  `json:"customer_id,omitempty"`
	Total      *float64 `json:"total,omitempty"`
	DueDate    *string  `json:"due_date,omitempty"`
	Status     *string  `json:"status,omitempty"`
}

func (InvoicePayload) Entity() EntityKind { return EntityInvoice }

// RawPayload keeps an untyped field map for entity kinds unknown to this build.
type RawPayload struct {
	Kind   EntityKind
	Fields map[string]any
}

func (p RawPayload) Entity() EntityKind { return p.Kind }

func (p RawPayload) MarshalJSON() ([]byte, error) {
	if p.Fields == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(p.Fields)
}

// Ptr returns a pointer to v, for building payload literals.
func Ptr[T any](v T) *T {
	return &v
}

// DecodePayload decodes a JSON object into the payload type registered for entity.
// Empty input and JSON null decode to a nil Payload. Fields the entity type
// does not declare are rejected rather than dropped.
func DecodePayload(entity EntityKind, raw []byte) (Payload, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	var (
		p   Payload
		err error
	)
	switch entity {
	case EntityProduct:
		var v ProductPayload
		err = decodeStrict(raw, &v)
		p = v
	case EntityCustomer:
		var v CustomerPayload
		err = decodeStrict(raw, &v)
		p = v
	case EntityOrder:
		var v OrderPayload
		err = decodeStrict(raw, &v)
		p = v
	case EntitySupplier:
		var v SupplierPayload
		err = decodeStrict(raw, &v)
		p = v
	case EntityEmployee:
		var v EmployeePayload
		err = decodeStrict(raw, &v)
		p = v
	case EntityInvoice:
		var v InvoicePayload
		err = decodeStrict(raw, &v)
		p = v
	default:
		v := RawPayload{Kind: entity}
		err = decodeStrict(raw, &v.Fields)
		p = v
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", entity, err)
	}
	return p, nil
}

func decodeStrict(raw []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("unexpected data after payload object")
	}
	return nil
}
