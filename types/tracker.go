package types

// RequestTracker counts outstanding network-bound operations. Every Start
// must be followed by a Stop once the operation settles, whatever the outcome.
type RequestTracker interface {
	Start()
	Stop()
	IsBusy() bool
	ActiveCount() int
}

type TrackerState struct {
	Active int  `json:"active"`
	Busy   bool `json:"busy"`
}
