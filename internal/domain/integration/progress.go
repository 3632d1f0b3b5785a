package integration

import "math"

// DefaultBatchSize is the number of products synced per batch
const DefaultBatchSize = 10

// ProgressEventType discriminates progress events
type ProgressEventType string

const (
	ProgressEventStart         ProgressEventType = "start"
	ProgressEventBatchStart    ProgressEventType = "batch_start"
	ProgressEventBatchComplete ProgressEventType = "batch_complete"
	ProgressEventBatchError    ProgressEventType = "batch_error"
	ProgressEventComplete      ProgressEventType = "complete"
	ProgressEventError         ProgressEventType = "error"
)

// ProgressEvent is one event of a batched run. Every event encodes to a flat
// JSON object whose "type" field carries the discriminator.
type ProgressEvent interface {
	EventType() ProgressEventType
}

// ProgressFunc receives the events of a run in order
type ProgressFunc func(ProgressEvent)

// StartEvent opens a run
type StartEvent struct {
	Type    ProgressEventType `json:"type"`
	Total   int               `json:"total"`
	Batches int               `json:"batches"`
}

func (e StartEvent) EventType() ProgressEventType { return e.Type }

// BatchStartEvent announces one batch
type BatchStartEvent struct {
	Type         ProgressEventType `json:"type"`
	BatchNum     int               `json:"batchNum"`
	TotalBatches int               `json:"totalBatches"`
	Products     []int64           `json:"products"`
}

func (e BatchStartEvent) EventType() ProgressEventType { return e.Type }

// BatchCompleteEvent reports a batch that ran
type BatchCompleteEvent struct {
	Type      ProgressEventType `json:"type"`
	BatchNum  int               `json:"batchNum"`
	Created   int               `json:"created"`
	Updated   int               `json:"updated"`
	Processed int               `json:"processed"`
	Total     int               `json:"total"`
	Progress  int               `json:"progress"`
}

func (e BatchCompleteEvent) EventType() ProgressEventType { return e.Type }

// BatchErrorEvent reports a batch that failed as a whole
type BatchErrorEvent struct {
	Type      ProgressEventType `json:"type"`
	BatchNum  int               `json:"batchNum"`
	Error     string            `json:"error"`
	Processed int               `json:"processed"`
	Total     int               `json:"total"`
}

func (e BatchErrorEvent) EventType() ProgressEventType { return e.Type }

// CompleteEvent closes a run with its totals
type CompleteEvent struct {
	Type    ProgressEventType `json:"type"`
	Total   int               `json:"total"`
	Created int               `json:"created"`
	Updated int               `json:"updated"`
	Errors  int               `json:"errors"`
	Success bool              `json:"success"`
}

func (e CompleteEvent) EventType() ProgressEventType { return e.Type }

// ErrorEvent reports a run that could not start or aborted
type ErrorEvent struct {
	Type    ProgressEventType `json:"type"`
	Message string            `json:"message"`
}

func (e ErrorEvent) EventType() ProgressEventType { return e.Type }

func NewStartEvent(total, batches int) StartEvent {
	return StartEvent{Type: ProgressEventStart, Total: total, Batches: batches}
}

func NewBatchStartEvent(batchNum, totalBatches int, products []int64) BatchStartEvent {
	return BatchStartEvent{
		Type:         ProgressEventBatchStart,
		BatchNum:     batchNum,
		TotalBatches: totalBatches,
		Products:     append([]int64(nil), products...),
	}
}

func NewBatchCompleteEvent(batchNum, created, updated, processed, total int) BatchCompleteEvent {
	return BatchCompleteEvent{
		Type:      ProgressEventBatchComplete,
		BatchNum:  batchNum,
		Created:   created,
		Updated:   updated,
		Processed: processed,
		Total:     total,
		Progress:  ProgressPercent(processed, total),
	}
}

func NewBatchErrorEvent(batchNum int, err error, processed, total int) BatchErrorEvent {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return BatchErrorEvent{
		Type:      ProgressEventBatchError,
		BatchNum:  batchNum,
		Error:     msg,
		Processed: processed,
		Total:     total,
	}
}

func NewCompleteEvent(total, created, updated, errors int) CompleteEvent {
	return CompleteEvent{
		Type:    ProgressEventComplete,
		Total:   total,
		Created: created,
		Updated: updated,
		Errors:  errors,
		Success: errors < total || total == 0,
	}
}

func NewErrorEvent(err error) ErrorEvent {
	return ErrorEvent{Type: ProgressEventError, Message: err.Error()}
}

// ProgressPercent returns processed/total as a rounded percentage
func ProgressPercent(processed, total int) int {
	if total <= 0 {
		return 100
	}
	return int(math.Round(float64(processed) / float64(total) * 100))
}

// SplitBatches splits ids into consecutive chunks of at most size ids
func SplitBatches(ids []int64, size int) [][]int64 {
	if size <= 0 {
		size = DefaultBatchSize
	}
	batches := make([][]int64, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		batches = append(batches, ids[start:end])
	}
	return batches
}
