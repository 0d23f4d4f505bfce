package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"go-pos-hostswitch/internal/amex"
	"go-pos-hostswitch/internal/hostswitch"
	"go-pos-hostswitch/internal/transport"
)

var ErrInvalidHosts = errors.New("config: invalid host definitions")

// HostEntry is one host in the hosts file.
type HostEntry struct {
	Index    int    `yaml:"index"`
	Name     string `yaml:"name"`
	Protocol string `yaml:"protocol"`
	Endpoint string `yaml:"endpoint"`
	TLS      bool   `yaml:"tls"`
	TPDU     string `yaml:"tpdu"`
	NII      uint32 `yaml:"nii"`
	TID      string `yaml:"tid"`
	MID      string `yaml:"mid"`
	Currency string `yaml:"currency"`
}

type hostsFile struct {
	Amex  *amex.Config `yaml:"amex"`
	Hosts []HostEntry  `yaml:"hosts"`
}

var tpduPattern = regexp.MustCompile(`^[0-9A-Fa-f]{10}$`)

// Hosts is the parsed hosts file. It serves as the host directory of the
// switch and resolves transport endpoints by host name.
type Hosts struct {
	Amex    amex.Config
	byIndex map[int]hostswitch.HostDefinition
	byName  map[string]hostswitch.HostDefinition
}

func LoadHosts(path string) (*Hosts, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read hosts file: %w", err)
	}
	return ParseHosts(data)
}

func ParseHosts(data []byte) (*Hosts, error) {
	var f hostsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse hosts file: %w", err)
	}
	if len(f.Hosts) == 0 {
		return nil, fmt.Errorf("%w: no hosts", ErrInvalidHosts)
	}

	h := &Hosts{
		byIndex: make(map[int]hostswitch.HostDefinition, len(f.Hosts)),
		byName:  make(map[string]hostswitch.HostDefinition, len(f.Hosts)),
	}
	for _, e := range f.Hosts {
		def, err := e.definition()
		if err != nil {
			return nil, err
		}
		if _, dup := h.byIndex[def.Index]; dup {
			return nil, fmt.Errorf("%w: duplicate index %d", ErrInvalidHosts, def.Index)
		}
		if _, dup := h.byName[def.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate name %q", ErrInvalidHosts, def.Name)
		}
		if def.Protocol == hostswitch.ProtocolAmex && f.Amex == nil {
			return nil, fmt.Errorf("%w: host %q speaks amex but the amex section is missing", ErrInvalidHosts, def.Name)
		}
		h.byIndex[def.Index] = def
		h.byName[def.Name] = def
	}
	if f.Amex != nil {
		if err := f.Amex.Validate(); err != nil {
			return nil, err
		}
		h.Amex = *f.Amex
	}
	return h, nil
}

func (e HostEntry) definition() (hostswitch.HostDefinition, error) {
	p, err := hostswitch.ParseProtocol(e.Protocol)
	if err != nil {
		return hostswitch.HostDefinition{}, fmt.Errorf("%w: host %q: %v", ErrInvalidHosts, e.Name, err)
	}
	switch {
	case e.Index <= 0:
		return hostswitch.HostDefinition{}, fmt.Errorf("%w: host %q: index must be positive", ErrInvalidHosts, e.Name)
	case e.Name == "":
		return hostswitch.HostDefinition{}, fmt.Errorf("%w: host %d has no name", ErrInvalidHosts, e.Index)
	case e.Endpoint == "":
		return hostswitch.HostDefinition{}, fmt.Errorf("%w: host %q has no endpoint", ErrInvalidHosts, e.Name)
	case !tpduPattern.MatchString(e.TPDU):
		return hostswitch.HostDefinition{}, fmt.Errorf("%w: host %q: tpdu %q is not 10 hex digits", ErrInvalidHosts, e.Name, e.TPDU)
	}
	return hostswitch.HostDefinition{
		Index:    e.Index,
		Name:     e.Name,
		Protocol: p,
		Endpoint: e.Endpoint,
		TLS:      e.TLS,
		TPDU:     e.TPDU,
		NII:      e.NII,
		TID:      e.TID,
		MID:      e.MID,
		Currency: e.Currency,
	}, nil
}

func (h *Hosts) HostDefinition(index int) (hostswitch.HostDefinition, bool) {
	def, ok := h.byIndex[index]
	return def, ok
}

func (h *Hosts) ByName(name string) (hostswitch.HostDefinition, bool) {
	def, ok := h.byName[name]
	return def, ok
}

// Definitions lists the hosts in index order.
func (h *Hosts) Definitions() []hostswitch.HostDefinition {
	out := make([]hostswitch.HostDefinition, 0, len(h.byIndex))
	for _, def := range h.byIndex {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// LinkHook is told when the link to a host comes up or goes down.
type LinkHook func(host string, up bool, err error)

// TransportFactory dials hosts over TCP using their configured endpoint.
// Unknown host names get no client.
func (h *Hosts) TransportFactory(cfg *Config, log zerolog.Logger, hook LinkHook) transport.Factory {
	return func(name string) transport.Client {
		def, ok := h.byName[name]
		if !ok {
			return nil
		}
		c := transport.NewTCPClient(transport.DialConfig{
			Endpoint:     def.Endpoint,
			TLS:          def.TLS,
			Timeout:      cfg.ConnectTimeout,
			KeepAlive:    30 * time.Second,
			ReadTimeout:  cfg.OnlineTimeout,
			WriteTimeout: cfg.OnlineTimeout,
			RetryBackoff: 2 * time.Second,
		}, log)
		if hook != nil {
			c.SetCallbacks(
				func() { hook(name, true, nil) },
				func(err error) { hook(name, false, err) },
			)
		}
		return c
	}
}
