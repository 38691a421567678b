package metrics

// Built-in metric names
const (
	VUs               = "vus"
	VUsMax            = "vus_max"
	Iterations        = "iterations"
	IterationDuration = "iteration_duration"
	DroppedIterations = "dropped_iterations"
	Checks            = "checks"
	GroupDuration     = "group_duration"

	HTTPReqs              = "http_reqs"
	HTTPReqFailed         = "http_req_failed"
	HTTPReqDuration       = "http_req_duration"
	HTTPReqBlocked        = "http_req_blocked"
	HTTPReqConnecting     = "http_req_connecting"
	HTTPReqTLSHandshaking = "http_req_tls_handshaking"
	HTTPReqSending        = "http_req_sending"
	HTTPReqWaiting        = "http_req_waiting"
	HTTPReqReceiving      = "http_req_receiving"
	DataSent              = "data_sent"
	DataReceived          = "data_received"
)

func registerBuiltins(c *Collector) {
	c.Gauge(VUs)
	c.Gauge(VUsMax)
	c.Counter(Iterations)
	c.Trend(IterationDuration, true)
	c.Counter(DroppedIterations)
	c.Rate(Checks)
	c.Trend(GroupDuration, true)

	c.Counter(HTTPReqs)
	c.Rate(HTTPReqFailed)
	for _, name := range []string{
		HTTPReqDuration, HTTPReqBlocked, HTTPReqConnecting, HTTPReqTLSHandshaking,
		HTTPReqSending, HTTPReqWaiting, HTTPReqReceiving,
	} {
		c.Trend(name, true)
	}
	c.Counter(DataSent)
	c.Counter(DataReceived)
}
