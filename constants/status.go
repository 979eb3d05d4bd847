package constants

// BatchStatus is the conceptual state of a batch within one processing pass.
// It is never used to decide what to process; the filesystem is the source of truth.
type BatchStatus string

// Stable values (these exact strings are stored in batch_runs.status).
const (
	BatchStatusDiscovered BatchStatus = "DISCOVERED"
	BatchStatusValidated  BatchStatus = "VALIDATED" // run row created once the integrity gate passes
	BatchStatusCombined   BatchStatus = "COMBINED"
	BatchStatusDelivered  BatchStatus = "DELIVERED" // final PDF written
	BatchStatusCleaned    BatchStatus = "CLEANED"   // delivered and source removed
	BatchStatusSkipped    BatchStatus = "SKIPPED"   // failed validation, retried next cycle
	BatchStatusFailed     BatchStatus = "FAILED"    // hard error
)

// Terminal reports whether a run can end in this status.
func (s BatchStatus) Terminal() bool {
	switch s {
	case BatchStatusDelivered, BatchStatusCleaned, BatchStatusSkipped, BatchStatusFailed:
		return true
	}
	return false
}
