// Package msg provides the message-passing primitive used by the auxiliary
// goroutines (dbus signal readers, the fsnotify watcher, exec reapers) to
// poke the core rethink loop without touching queue state themselves.
package msg

// Kind represents the reason a rethink was requested.
type Kind int

// The different poke kinds are used so the core can log why it woke up.
const (
	KindNil Kind = iota
	KindStart
	KindMutation  // an event was added/updated/deleted
	KindWakeup    // the software or hardware timer fired
	KindUI        // a dialog response or ack arrived from the UI
	KindEnv       // the environment tracker observed a change
	KindTimeChange
	KindExit
)

// String returns a human-readable name, useful in log lines.
func (k Kind) String() string {
	switch k {
	case KindNil:
		return "nil"
	case KindStart:
		return "start"
	case KindMutation:
		return "mutation"
	case KindWakeup:
		return "wakeup"
	case KindUI:
		return "ui"
	case KindEnv:
		return "env"
	case KindTimeChange:
		return "time-change"
	case KindExit:
		return "exit"
	default:
		return "unknown"
	}
}

// Pre-built messages so callers don't need NewMsg when no ACK is wanted.
var (
	Start = &Msg{Kind: KindStart}
	Exit  = &Msg{Kind: KindExit}
)

// Msg is a poke primitive: a reason, and optionally a request for an ACK so
// the sender can block until the core has processed it.
type Msg struct {
	Kind Kind

	resp chan struct{}
}

// NewMsg builds a message that wants an ACK. Use the package-level globals
// above when no ACK is required.
func NewMsg(kind Kind) *Msg {
	return &Msg{
		Kind: kind,
		resp: make(chan struct{}),
	}
}

// CanACK reports whether this message supports an ACK. It does not say
// whether one has already happened.
func (obj *Msg) CanACK() bool {
	return obj.resp != nil
}

// ACK acknowledges the message. Must not be called more than once. Unblocks
// any past or future call to Wait.
func (obj *Msg) ACK() {
	close(obj.resp)
}

// Wait blocks until ACK is called. It is safe to call before or after ACK.
func (obj *Msg) Wait() error {
	<-obj.resp
	return nil
}
