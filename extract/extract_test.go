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
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/spatialmodel/tef"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoryFiles(t *testing.T) {
	files, err := HistoryFiles("/roms", "cas6_v3_lo8b", "2019.07.04", "2019.07.05", Hourly)
	require.NoError(t, err)
	require.Len(t, files, 25+24)
	assert.Equal(t, filepath.Join("/roms", "cas6_v3_lo8b", "f2019.07.04", "ocean_his_0001.nc"), files[0])
	assert.Equal(t, filepath.Join("/roms", "cas6_v3_lo8b", "f2019.07.04", "ocean_his_0025.nc"), files[24])
	assert.Equal(t, filepath.Join("/roms", "cas6_v3_lo8b", "f2019.07.05", "ocean_his_0002.nc"), files[25])
	assert.Equal(t, filepath.Join("/roms", "cas6_v3_lo8b", "f2019.07.05", "ocean_his_0025.nc"), files[48])

	files, err = HistoryFiles("/roms", "g", "2019.12.31", "2020.01.02", Daily)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join("/roms", "g", "f2019.12.31", "ocean_his_0001.nc"),
		filepath.Join("/roms", "g", "f2020.01.01", "ocean_his_0001.nc"),
		filepath.Join("/roms", "g", "f2020.01.02", "ocean_his_0001.nc"),
	}, files)

	files, err = HistoryFiles("/roms", "g", "2019.07.04", "", Hourly)
	require.NoError(t, err)
	assert.Len(t, files, 25)
}

func TestHistoryFilesErrors(t *testing.T) {
	_, err := HistoryFiles("/roms", "g", "2019-07-04", "", Hourly)
	assert.Error(t, err)
	_, err = HistoryFiles("/roms", "g", "2019.07.04", "2019.07.03", Hourly)
	assert.Error(t, err)
	_, err = HistoryFiles("/roms", "g", "2019.07.04", "", "weekly")
	assert.Error(t, err)
}

func TestMooringJobs(t *testing.T) {
	m := Mooring{Name: "ORCA", JI: tef.JI{J: 10, I: 20}, Vars: MooringVars(true, true, false, false), Staggered: true}
	jobs, cat, err := MooringJobs([]string{"a.nc", "b.nc"}, "/tmp/moor", "/out/ORCA.nc", m)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, Job{Name: "ncks", Args: []string{
		"-v", "h,zeta,salt,temp,AKs,AKv,u,v,w",
		"-d", "xi_rho,20", "-d", "eta_rho,10",
		"-d", "xi_u,20", "-d", "eta_u,10",
		"-d", "xi_v,20", "-d", "eta_v,10",
		"-O", "b.nc", filepath.Join("/tmp/moor", "moor_temp_000001.nc"),
	}}, jobs[1])
	assert.Equal(t, Job{Name: "ncrcat", Args: []string{
		"-p", "/tmp/moor", "-O", "moor_temp_000000.nc", "moor_temp_000001.nc", "/out/ORCA.nc",
	}}, cat)

	_, _, err = MooringJobs(nil, "/tmp", "/out.nc", m)
	assert.Error(t, err)
}

func TestSectionJobs(t *testing.T) {
	s := &tef.Section{Name: "ai1", Faces: []tef.Face{{UV: "u", J: 4, I: 7}, {UV: "u", J: 5, I: 7}, {UV: "u", J: 6, I: 7}}}
	jobs, cat, err := SectionJobs([]string{"a.nc"}, "/tmp/sect", "/out", []*tef.Section{s}, SectionVars(false))
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, []string{
		"-v", "h,zeta,u,salt",
		"-d", "eta_rho,4,6", "-d", "xi_rho,7,8",
		"-d", "eta_u,4,6", "-d", "xi_u,7,7",
		"-O", "a.nc", filepath.Join("/tmp/sect", "ai1_temp_000000.nc"),
	}, jobs[0].Args)
	require.Len(t, cat, 1)
	assert.Equal(t, filepath.Join("/out", "ai1.nc"), cat[0].Args[len(cat[0].Args)-1])

	mixed := &tef.Section{Name: "x", Faces: []tef.Face{{UV: "u"}, {UV: "v"}}}
	_, _, err = SectionJobs([]string{"a.nc"}, "/tmp", "/out", []*tef.Section{mixed}, nil)
	assert.Error(t, err)
}

// fakeExec records the commands it is asked to run.
type fakeExec struct {
	mu       sync.Mutex
	running  int
	maxSeen  int
	calls    []string
	failures map[string]int // remaining failures by first argument
}

func (f *fakeExec) Run(ctx context.Context, name string, args ...string) error {
	f.mu.Lock()
	f.running++
	if f.running > f.maxSeen {
		f.maxSeen = f.running
	}
	f.calls = append(f.calls, args[0])
	fail := f.failures[args[0]] > 0
	if fail {
		f.failures[args[0]]--
	}
	f.mu.Unlock()

	time.Sleep(5 * time.Millisecond)

	f.mu.Lock()
	f.running--
	f.mu.Unlock()
	if fail {
		return errors.New("exit status 1")
	}
	return nil
}

func jobs(n int) []Job {
	o := make([]Job, n)
	for i := range o {
		o[i] = Job{Name: "ncks", Args: []string{string(rune('a' + i))}}
	}
	return o
}

func TestRunnerBatches(t *testing.T) {
	f := &fakeExec{failures: map[string]int{"c": 2}}
	log, hook := test.NewNullLogger()
	r := &Runner{MaxProcs: 3, MaxRetries: 3, RetryInterval: time.Millisecond, Exec: f, Log: log}
	require.NoError(t, r.Run(context.Background(), jobs(7)))
	assert.Len(t, f.calls, 9)
	assert.LessOrEqual(t, f.maxSeen, 3)

	var retries, batches int
	for _, e := range hook.AllEntries() {
		switch {
		case e.Level == logrus.WarnLevel && strings.Contains(e.Message, "retrying"):
			retries++
		case e.Message == "finished batch":
			batches++
		}
	}
	assert.Equal(t, 2, retries)
	assert.Equal(t, 3, batches)
}

func TestRunnerFailure(t *testing.T) {
	f := &fakeExec{failures: map[string]int{"b": 10}}
	log, _ := test.NewNullLogger()
	r := &Runner{MaxProcs: 2, MaxRetries: 1, RetryInterval: time.Millisecond, Exec: f, Log: log}
	err := r.Run(context.Background(), jobs(5))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "job 1")

	// The first batch ran, with b tried twice, and nothing after it started.
	assert.ElementsMatch(t, []string{"a", "b", "b"}, f.calls)
}
