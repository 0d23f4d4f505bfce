package main

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"go-pos-hostswitch/internal/amex"
	"go-pos-hostswitch/internal/diners"
	"go-pos-hostswitch/internal/fdms"
	"go-pos-hostswitch/internal/iso8583"
)

const tpduLen = 5

var specs = map[string]*iso8583.Spec{
	"diners": diners.Spec,
	"fdms":   fdms.Spec,
	"amex":   amex.Spec,
}

// echoed are copied from request to response when present.
var echoed = []int{3, 4, 11, 24, 41, 42}

// Keys handed out on key download and key exchange.
const (
	simTMK    = "0123456789ABCDEF"
	simPINKey = "FEDCBA9876543210"
	simTLEKey = "0011223344556677"
)

type acquirer struct {
	spec      *iso8583.Spec
	reconcile bool
	log       zerolog.Logger
	now       func() time.Time

	mu  sync.Mutex
	rrn uint64
}

func newAcquirer(protocol string, reconcile bool, log zerolog.Logger) (*acquirer, error) {
	spec, ok := specs[strings.ToLower(protocol)]
	if !ok {
		return nil, fmt.Errorf("unknown protocol %q", protocol)
	}
	return &acquirer{spec: spec, reconcile: reconcile, log: log, now: time.Now}, nil
}

func (a *acquirer) nextRRN() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rrn++
	return fmt.Sprintf("%012d", a.rrn)
}

// answer builds the reply frame to one request frame: MTI+10, correlation
// fields echoed, the TPDU addresses swapped.
func (a *acquirer) answer(frame []byte) ([]byte, error) {
	if len(frame) <= tpduLen {
		return nil, fmt.Errorf("frame of %d bytes has no message", len(frame))
	}
	req, err := iso8583.Parse(a.spec, frame[tpduLen:])
	if err != nil {
		return nil, err
	}
	a.log.Debug().Msg("RX " + iso8583.Describe(req))

	mti, _ := req.MTI()
	resp := iso8583.New(a.spec)
	resp.SetMTI(mti + 10)
	for _, f := range echoed {
		if !req.HasField(f) {
			continue
		}
		v, err := req.GetString(f)
		if err != nil {
			return nil, err
		}
		resp.SetString(f, v)
	}

	now := a.now()
	code, _ := req.GetString(3)
	resp.SetString(12, now.Format("150405"))
	resp.SetString(13, now.Format("0102"))
	resp.SetString(39, a.responseCode(mti, code))

	switch {
	case mti == 800 && code == "920000":
		resp.SetString(62, "01"+simTMK+"00")
	case mti == 800 && code == "930000":
		resp.SetBytes(63, []byte("KP032"+simPINKey+simTLEKey))
	case mti == 800:
	default:
		resp.SetString(37, a.nextRRN())
		if mti == 100 || mti == 200 {
			resp.SetString(38, fmt.Sprintf("SIM%03d", now.Second()))
		}
		if dccEnquiry(req) {
			resp.SetBytes(63, []byte(simDCCOffer))
		}
	}

	body, err := resp.Pack()
	if err != nil {
		return nil, err
	}
	a.log.Debug().Msg("TX " + iso8583.Describe(resp))

	out := make([]byte, 0, tpduLen+len(body))
	out = append(out, frame[0])
	out = append(out, frame[3:5]...)
	out = append(out, frame[1:3]...)
	return append(out, body...), nil
}

// simDCCOffer quotes every conversion enquiry in US dollars.
const simDCCOffer = "DC023" + "840" + "000000001000" + "60000000"

func dccEnquiry(req *iso8583.Apdu) bool {
	if !req.HasField(63) {
		return false
	}
	b, err := req.GetBytes(63)
	return err == nil && string(b) == "DC001E"
}

// responseCode approves everything except, with reconcile set, a
// settlement sent before batch upload.
func (a *acquirer) responseCode(mti int, processingCode string) string {
	if a.reconcile && mti == 500 && processingCode == "920000" {
		return "95"
	}
	return "00"
}
