package scheduler

import (
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"go-pos-hostswitch/internal/hostswitch"
	"go-pos-hostswitch/internal/payment"
)

// HostTester sends one echo to a host.
type HostTester interface {
	TestHost(hostIndex int) (*payment.TestTransaction, error)
}

// EchoJob tests every configured host in turn. The mutex is shared with
// other users of the same host switch so an echo never overlaps a sale.
type EchoJob struct {
	tester HostTester
	hosts  []hostswitch.HostDefinition
	mu     sync.Locker
	log    zerolog.Logger
}

func NewEchoJob(tester HostTester, hosts []hostswitch.HostDefinition, mu sync.Locker, log zerolog.Logger) *EchoJob {
	return &EchoJob{tester: tester, hosts: hosts, mu: mu, log: log.With().Str("job", "echo").Logger()}
}

func (j *EchoJob) Name() string { return "echo" }

func (j *EchoJob) Run() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	var errs []error
	for _, def := range j.hosts {
		echo, err := j.tester.TestHost(def.Index)
		if err != nil {
			j.log.Warn().Err(err).Str("host", def.Name).Msg("host test failed")
			errs = append(errs, err)
			continue
		}
		j.log.Info().Str("host", def.Name).Uint32("stan", echo.STAN).Time("host_time", echo.HostDatetime).Msg("host test ok")
	}
	return errors.Join(errs...)
}
