// Package integration contains the ERP integration bounded context.
// It keeps the local product catalog and stock levels consistent with the
// external ERP, which is the system of record.
//
// Key concepts:
//   - ERPSystem: Port interface for reading catalog/stock from the ERP and writing stock and orders back
//   - CatalogStore: Port interface for the local catalog (products, variants, inventory levels)
//   - ExternalRefIndex: Per-run index joining ERP ids to local products through metadata.external_id
//   - Normalize: Converts one ERP product into a local product payload
//   - Reconcile: Partitions ERP products into create and update sets
//   - SyncedIDCache: Short-lived set of ERP ids already imported locally
//   - ProgressEvent: Ordered events emitted while a batched sync runs
//
// Design Pattern: Ports & Adapters
//   - Ports (interfaces) are defined here in the domain layer
//   - Adapters (implementations) are in the infrastructure layer
package integration
