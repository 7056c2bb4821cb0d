package job

import (
	"context"

	"github.com/shelfscribe/engine/internal/executor"
)

// BatchProcessor builds the stock Processor for a job: each item runs through
// the batch executor, so it gets the result cache, the retry policy and the
// global concurrency gate. Items are driven one at a time in descriptor order,
// which keeps progress reports ordered and persists each outcome before the
// next item starts; concurrent jobs still interleave through the shared gate.
// The cancellation flag is polled between items.
func BatchProcessor(
	descriptors []ItemDescriptor,
	batch *executor.BatchExecutor,
	handler executor.BatchHandler,
) Processor {
	return func(ctx context.Context, j *Job, report ReportFunc, cancelled func() bool) error {
		for _, desc := range descriptors {
			if cancelled() {
				return nil
			}

			results := batch.RunBatch(ctx, desc.Kind, []executor.WorkRequest{
				{Kind: desc.Kind, Payload: desc.Payload},
			}, handler)

			outcome := ItemOutcome{ItemID: desc.ID}
			res := results[0]
			if res.Err != nil {
				outcome.Error = res.Err.Error()
			} else {
				outcome.Success = true
				outcome.Result = res.Value
				outcome.Cached = res.Cached
			}
			report(outcome)
		}
		return nil
	}
}
