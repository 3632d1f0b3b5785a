package integration

import (
	"github.com/google/uuid"
)

// DuplicateRef records a second local product tagged with an already indexed external id
type DuplicateRef struct {
	ExternalID string
	KeptID     uuid.UUID
	IgnoredID  uuid.UUID
}

// ExternalRefIndex joins ERP ids to local products for one run.
// There is no foreign key between the two systems; the index is built from
// the metadata.external_id tags of the local products read for the run.
// When two live products carry the same tag the first one seen is kept and
// the other is recorded in Duplicates.
type ExternalRefIndex struct {
	byExternalID    map[string]*LocalProduct
	reservedHandles map[string]struct{}
	duplicates      []DuplicateRef
}

// NewExternalRefIndex builds the index from local products in storage order.
// Soft-deleted products are not matched; their handles are reserved instead.
func NewExternalRefIndex(products []LocalProduct) *ExternalRefIndex {
	idx := &ExternalRefIndex{
		byExternalID:    make(map[string]*LocalProduct, len(products)),
		reservedHandles: make(map[string]struct{}),
	}
	for i := range products {
		p := &products[i]
		if !p.IsImported() {
			continue
		}
		if p.IsDeleted() {
			if p.Handle != "" {
				idx.reservedHandles[p.Handle] = struct{}{}
			}
			continue
		}
		if kept, exists := idx.byExternalID[p.ExternalID]; exists {
			idx.duplicates = append(idx.duplicates, DuplicateRef{
				ExternalID: p.ExternalID,
				KeptID:     kept.ID,
				IgnoredID:  p.ID,
			})
			continue
		}
		idx.byExternalID[p.ExternalID] = p
	}
	return idx
}

// Lookup returns the local product tagged with externalID
func (idx *ExternalRefIndex) Lookup(externalID string) (*LocalProduct, bool) {
	p, ok := idx.byExternalID[externalID]
	return p, ok
}

// ReservedHandles returns the handles held by soft-deleted prior imports
func (idx *ExternalRefIndex) ReservedHandles() map[string]struct{} {
	return idx.reservedHandles
}

// Duplicates returns the external ids tagged on more than one live product
func (idx *ExternalRefIndex) Duplicates() []DuplicateRef {
	return idx.duplicates
}

// Len returns the number of indexed external ids
func (idx *ExternalRefIndex) Len() int {
	return len(idx.byExternalID)
}

// Plan is the outcome of reconciliation
type Plan struct {
	ToCreate []ProductPayload
	ToUpdate []ProductPayload
	// Failures lists products that could not be normalized
	Failures []SyncFailure
}

// Total returns the number of items the plan accounts for
func (p *Plan) Total() int {
	return len(p.ToCreate) + len(p.ToUpdate) + len(p.Failures)
}

// Reconcile partitions ERP products into create and update payloads.
// A product matching an indexed local product is an update, any other a
// create. Products that fail normalization are reported in Failures and do
// not stop the run. Output order follows the input order.
func Reconcile(items []ExternalProduct, index *ExternalRefIndex) *Plan {
	if index == nil {
		index = NewExternalRefIndex(nil)
	}
	plan := &Plan{
		ToCreate: make([]ProductPayload, 0, len(items)),
		ToUpdate: make([]ProductPayload, 0),
	}

	for i := range items {
		item := &items[i]
		match, found := index.Lookup(item.ExternalIDString())
		if !found {
			match = nil
		}

		payload, err := Normalize(item, match, index.ReservedHandles())
		if err != nil {
			plan.Failures = append(plan.Failures, NewSyncFailure(item.ExternalIDString(), err))
			continue
		}

		if payload.IsUpdate() {
			plan.ToUpdate = append(plan.ToUpdate, *payload)
		} else {
			plan.ToCreate = append(plan.ToCreate, *payload)
		}
	}
	return plan
}
