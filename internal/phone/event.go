package phone

// Event is the closed set of notifications the platform call manager
// delivers for a subscription. Only types in this package implement it.
type Event interface {
	Sub() Subscription
	Name() string
	isEvent()
}

// IncomingRing is a repeated ring indication for a ringing call.
type IncomingRing struct {
	Subscription Subscription
}

// NewRingingConnection announces a new incoming or call-waiting leg.
type NewRingingConnection struct {
	Subscription Subscription
	Conn         *Connection
	Line         LineStatus
}

// PhoneStateChanged carries the subscription's line status after any change.
type PhoneStateChanged struct {
	Subscription Subscription
	Line         LineStatus
}

// Disconnect reports that Conn ended with Cause. Line is the status of the
// subscription after the leg was removed.
type Disconnect struct {
	Subscription Subscription
	Conn         *Connection
	Cause        DisconnectCause
	Line         LineStatus
}

// SignalInfo is a CDMA signal information record.
type SignalInfo struct {
	Subscription Subscription
	Present      bool
	SignalType   int
	AlertPitch   int
	Signal       int
}

// SubscriptionChanged is raised when the user moves focus to another line.
type SubscriptionChanged struct {
	Subscription Subscription
}

// MessageWaiting toggles the voicemail indicator for a subscription.
type MessageWaiting struct {
	Subscription Subscription
	Waiting      bool
}

// CallForwardChanged toggles the call-forward indicator for a subscription.
type CallForwardChanged struct {
	Subscription Subscription
	Forwarding   bool
}

func (e IncomingRing) Sub() Subscription         { return e.Subscription }
func (e NewRingingConnection) Sub() Subscription { return e.Subscription }
func (e PhoneStateChanged) Sub() Subscription    { return e.Subscription }
func (e Disconnect) Sub() Subscription           { return e.Subscription }
func (e SignalInfo) Sub() Subscription           { return e.Subscription }
func (e SubscriptionChanged) Sub() Subscription  { return e.Subscription }
func (e MessageWaiting) Sub() Subscription       { return e.Subscription }
func (e CallForwardChanged) Sub() Subscription   { return e.Subscription }

func (IncomingRing) Name() string         { return "IncomingRing" }
func (NewRingingConnection) Name() string { return "NewRingingConnection" }
func (PhoneStateChanged) Name() string    { return "PhoneStateChanged" }
func (Disconnect) Name() string           { return "Disconnect" }
func (SignalInfo) Name() string           { return "SignalInfo" }
func (SubscriptionChanged) Name() string  { return "SubscriptionChanged" }
func (MessageWaiting) Name() string       { return "MessageWaiting" }
func (CallForwardChanged) Name() string   { return "CallForwardChanged" }

func (IncomingRing) isEvent()         {}
func (NewRingingConnection) isEvent() {}
func (PhoneStateChanged) isEvent()    {}
func (Disconnect) isEvent()           {}
func (SignalInfo) isEvent()           {}
func (SubscriptionChanged) isEvent()  {}
func (MessageWaiting) isEvent()       {}
func (CallForwardChanged) isEvent()   {}
