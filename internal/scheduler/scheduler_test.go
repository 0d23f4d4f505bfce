package scheduler

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-pos-hostswitch/internal/hostswitch"
	"go-pos-hostswitch/internal/payment"
)

type testerFunc func(int) (*payment.TestTransaction, error)

func (f testerFunc) TestHost(i int) (*payment.TestTransaction, error) { return f(i) }

var hosts = []hostswitch.HostDefinition{
	{Index: 1, Name: "fdms"},
	{Index: 2, Name: "amex"},
	{Index: 3, Name: "diners"},
}

func TestEchoJobTestsEveryHost(t *testing.T) {
	var seen []int
	down := errors.New("down")
	job := NewEchoJob(testerFunc(func(i int) (*payment.TestTransaction, error) {
		seen = append(seen, i)
		if i == 2 {
			return nil, down
		}
		return &payment.TestTransaction{STAN: uint32(i), ResponseCode: "00"}, nil
	}), hosts, &sync.Mutex{}, zerolog.Nop())

	err := job.Run()
	assert.ErrorIs(t, err, down)
	assert.Equal(t, []int{1, 2, 3}, seen)
	assert.Equal(t, "echo", job.Name())
}

type countingJob struct {
	runs atomic.Int32
}

func (j *countingJob) Name() string { return "counting" }
func (j *countingJob) Run() error {
	j.runs.Add(1)
	return nil
}

func TestSchedulerRunsJobs(t *testing.T) {
	s := New(zerolog.Nop())
	job := &countingJob{}
	require.NoError(t, s.AddJob("@every 1s", job))
	assert.Error(t, s.AddJob("not a schedule", job))

	s.Start()
	assert.Eventually(t, func() bool { return job.runs.Load() > 0 }, 3*time.Second, 50*time.Millisecond)
	s.Stop()
}
