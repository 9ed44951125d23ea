package models

const (
	// DefaultListLimit is used when a list request does not set a limit.
	DefaultListLimit = 20

	// MaxListLimit caps list requests.
	MaxListLimit = 100

	// WorkerQueueSize is the in-memory sync queue capacity.
	WorkerQueueSize = 1000

	// BookingReferencePrefix starts every generated booking reference.
	BookingReferencePrefix = "BK"
)

const (
	SyncTaskUpsertBooking = "upsert_booking"
)
