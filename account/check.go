package account

import (
	"context"

	"github.com/creativeprojects/courier/mailbox"
	"golang.org/x/sync/errgroup"
)

const maxConcurrentChecks = 4

type CheckResult struct {
	Account string
	Status  *mailbox.Status
	Err     error
}

// CheckAll fetches the status of the folder on every account in parallel.
// An account failing doesn't stop the others: its error is in its result.
func (m *Manager) CheckAll(ctx context.Context, folder string) []CheckResult {
	names := m.AccountNames()
	results := make([]CheckResult, len(names))

	group := &errgroup.Group{}
	group.SetLimit(maxConcurrentChecks)
	for index, name := range names {
		group.Go(func() error {
			status, err := m.FolderStatus(ctx, name, folder)
			results[index] = CheckResult{
				Account: name,
				Status:  status,
				Err:     err,
			}
			return nil
		})
	}
	_ = group.Wait()
	return results
}
