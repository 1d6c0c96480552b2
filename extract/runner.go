/*
Copyright © 2024 the TEF authors.
This file is part of TEF.

TEF is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

TEF is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with TEF.  If not, see <http://www.gnu.org/licenses/>.
*/

package extract

import (
	"context"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/sirupsen/logrus"
)

// Executor runs an external command.
type Executor interface {
	Run(ctx context.Context, name string, args ...string) error
}

// CommandExecutor runs commands as local subprocesses.
type CommandExecutor struct{}

// Run runs the command and returns its combined output in the error
// if it fails.
func (CommandExecutor) Run(ctx context.Context, name string, args ...string) error {
	o, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%v: %s", err, o)
	}
	return nil
}

// Runner runs jobs in batches of concurrent subprocesses.
type Runner struct {
	// MaxProcs is the number of jobs started before waiting for all
	// of them to finish. If it is less than 1, jobs run one at a time.
	MaxProcs int

	// MaxRetries is the number of times a failed job is retried.
	MaxRetries uint64

	// RetryInterval is the initial wait before a retry. The
	// backoff default is used if it is zero.
	RetryInterval time.Duration

	// Exec runs the commands. CommandExecutor is used if it is nil.
	Exec Executor

	Log logrus.FieldLogger
}

// Run runs jobs. Up to MaxProcs jobs are started and all of them must
// finish before any more are started. If any job still fails after
// its retries, Run returns the error of the earliest such job in the
// batch without starting the rest.
func (r *Runner) Run(ctx context.Context, jobs []Job) error {
	log := r.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	ex := r.Exec
	if ex == nil {
		ex = CommandExecutor{}
	}
	n := r.MaxProcs
	if n < 1 {
		n = 1
	}
	start := time.Now()
	for b := 0; b < len(jobs); b += n {
		e := b + n
		if e > len(jobs) {
			e = len(jobs)
		}
		errs := make([]error, e-b)
		var wg sync.WaitGroup
		wg.Add(e - b)
		for i := b; i < e; i++ {
			go func(i int) {
				defer wg.Done()
				errs[i-b] = r.retry(ctx, ex, jobs[i], log)
			}(i)
		}
		wg.Wait()
		for i, err := range errs {
			if err != nil {
				return fmt.Errorf("extract: job %d (%s): %v", b+i, jobs[b+i].Name, err)
			}
		}
		log.WithFields(logrus.Fields{
			"done":    e,
			"total":   len(jobs),
			"elapsed": time.Since(start).Round(time.Millisecond),
		}).Info("finished batch")
	}
	return nil
}

func (r *Runner) retry(ctx context.Context, ex Executor, j Job, log logrus.FieldLogger) error {
	exp := backoff.NewExponentialBackOff()
	if r.RetryInterval > 0 {
		exp.InitialInterval = r.RetryInterval
	}
	return backoff.RetryNotify(
		func() error {
			return ex.Run(ctx, j.Name, j.Args...)
		},
		backoff.WithContext(backoff.WithMaxRetries(exp, r.MaxRetries), ctx),
		func(err error, d time.Duration) {
			log.WithField("job", j.String()).Warnf("%v: retrying in %v", err, d)
		},
	)
}
