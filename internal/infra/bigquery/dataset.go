package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
)

const (
	transactionsTable  = "transactions"
	processingLogTable = "file_processing_log"
	stagingTablePrefix = "staging_"

	// keyBatchSize bounds the array parameters bound to one query.
	keyBatchSize = 5000
)

// Dataset names the project and dataset holding the budget tables.
type Dataset struct {
	ProjectID string
	DatasetID string
}

// Table returns the fully qualified, quoted name of a table for use in SQL.
func (d Dataset) Table(name string) string {
	return fmt.Sprintf("`%s.%s.%s`", d.ProjectID, d.DatasetID, name)
}

func (d Dataset) handle(client *bigquery.Client, name string) *bigquery.Table {
	return client.DatasetInProject(d.ProjectID, d.DatasetID).Table(name)
}

// runDML runs a DML statement and returns the number of affected rows.
func runDML(ctx context.Context, q *bigquery.Query) (int64, error) {
	job, err := q.Run(ctx)
	if err != nil {
		return 0, fmt.Errorf("run query: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return 0, fmt.Errorf("wait for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return 0, fmt.Errorf("job error: %w", err)
	}
	if status.Statistics == nil {
		return 0, nil
	}
	if qs, ok := status.Statistics.Details.(*bigquery.QueryStatistics); ok {
		return qs.NumDMLAffectedRows, nil
	}
	return 0, nil
}

func chunks(n, size int) [][2]int {
	var out [][2]int
	for start := 0; start < n; start += size {
		end := start + size
		if end > n {
			end = n
		}
		out = append(out, [2]int{start, end})
	}
	return out
}
