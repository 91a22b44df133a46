package fabric

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"

	"github.com/zinrai/fabric-portal/internal/domain"
	"github.com/zinrai/fabric-portal/internal/log"
)

var _ domain.JobWaiter = (*Workflow)(nil)

// Workflow polls the workflow job API.
type Workflow struct {
	c        *client
	interval time.Duration
	timeout  time.Duration
}

// NewWorkflow returns a job waiter polling every interval and giving up after
// timeout.
func NewWorkflow(baseURL string, interval, timeout time.Duration, opts Options) *Workflow {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Workflow{
		c:        newClient("workflow", baseURL, opts),
		interval: interval,
		timeout:  timeout,
	}
}

type job struct {
	UUID      string `json:"uuid"`
	Name      string `json:"name"`
	Execution string `json:"execution"`
}

// WaitJob polls until the job succeeds or ends in any other terminal state.
func (w *Workflow) WaitJob(ctx context.Context, jobUUID string) error {
	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		var j job
		if err := w.c.do(ctx, http.MethodGet, "/jobs/"+url.PathEscape(jobUUID), nil, nil, &j); err != nil {
			return err
		}
		switch j.Execution {
		case "succeeded":
			log.G(ctx).WithField("job_uuid", jobUUID).Debug("job succeeded")
			return nil
		case "failed", "canceled":
			return errors.Errorf("job %s (%s) %s", jobUUID, j.Name, j.Execution)
		}

		select {
		case <-ctx.Done():
			return errors.Wrapf(domain.ErrUnavailable, "waiting for job %s: %v", jobUUID, ctx.Err())
		case <-ticker.C:
		}
	}
}
