package ingestion

import (
	"fmt"

	"github.com/sipsa-io/sipsa/internal/storage"
)

// RunContext tracks the state and metrics of a single ingestion run. It is
// passed through the pipeline, accumulating counters and rejected records.
//
// Not safe for concurrent use; a run executes on a single goroutine.
type RunContext struct {
	RunID      int64
	MethodName string
	WindowKey  string
	RequestID  string
	Source     storage.RequestSource

	seen        int
	inserted    int
	updated     int
	rejected    int
	parseErrors int

	rejects []storage.RejectInput
}

// NewRunContext creates the accumulator for one run.
func NewRunContext(runID int64, req Request, windowKey string) *RunContext {
	return &RunContext{
		RunID:      runID,
		MethodName: req.MethodName,
		WindowKey:  windowKey,
		RequestID:  req.RequestID,
		Source:     req.Source,
	}
}

// IncrementSeen counts one record encountered, processed or not.
func (c *RunContext) IncrementSeen() { c.seen++ }

// AddInserted counts n records inserted into a curated table.
func (c *RunContext) AddInserted(n int) { c.inserted += n }

// AddReject records a rejected record with its raw data and reason. Parse
// errors are counted separately on top of the reject count.
func (c *RunContext) AddReject(rawData, reason string, isParseError bool) {
	c.rejects = append(c.rejects, storage.RejectInput{
		RawData:      rawData,
		Reason:       reason,
		IsParseError: isParseError,
	})
	c.rejected++

	if isParseError {
		c.parseErrors++
	}
}

// Seen returns the number of records encountered.
func (c *RunContext) Seen() int { return c.seen }

// Inserted returns the number of records inserted.
func (c *RunContext) Inserted() int { return c.inserted }

// Updated returns the number of records updated. Always zero under the
// current skip-on-conflict policy; kept for forward compatibility.
func (c *RunContext) Updated() int { return c.updated }

// Rejected returns the number of rejected records.
func (c *RunContext) Rejected() int { return c.rejected }

// Rejects returns the accumulated reject rows for the terminal flush.
func (c *RunContext) Rejects() []storage.RejectInput { return c.rejects }

// LogSummary renders the key metrics without the reject payloads.
func (c *RunContext) LogSummary() string {
	return fmt.Sprintf(
		"runId=%d method=%s windowKey=%s requestId=%s source=%s seen=%d inserted=%d updated=%d rejected=%d parseErrors=%d",
		c.RunID, c.MethodName, c.WindowKey, c.RequestID, c.Source,
		c.seen, c.inserted, c.updated, c.rejected, c.parseErrors,
	)
}
