package metrics

import (
	"testing"
	"time"
)

func TestRecordBeforeInitDoesNotPanic(t *testing.T) {
	// Collectors are package-level; recording before Init must be a no-op
	// rather than a nil deref. Not parallel: ordering against Init matters.
	RecordRequest("ok")
	RecordAttempt()
	RecordRetry()
	RecordBytes(10)
	ObserveFetchDuration(time.Second)
	RecordCacheEvent("hit")
	RecordDedupeShared()
	IncInflight()
	DecInflight()
}

func TestInitIsIdempotent(t *testing.T) {
	Init()
	Init()
	RecordRequest("ok")
	RecordCacheEvent("miss")
	RecordBytes(-1)
}
