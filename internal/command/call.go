package command

import (
	"context"
	"fmt"

	"wagate/internal/domain"
	"wagate/internal/metrics"
	"wagate/internal/notice"
)

// HandleCall rejects the call when configured and tells the caller what
// happened.
func (d *Dispatcher) HandleCall(ctx context.Context, call domain.Call) {
	rejected := false
	if d.rejectCalls && call.Reject != nil {
		if err := call.Reject(ctx); err != nil {
			d.logger.Warn("reject call failed", "from", call.From, "err", err)
		} else {
			rejected = true
			metrics.CallsRejected.Inc()
		}
	}
	d.logger.Info("call received", "from", call.From, "video", call.IsVideo, "rejected", rejected)

	if _, err := d.client.SendMessage(ctx, call.From, domain.Text(d.describeCall(call, rejected)), nil); err != nil {
		d.logger.Warn("call notice failed", "to", call.From, "err", err)
	}
}

func (d *Dispatcher) describeCall(call domain.Call, rejected bool) string {
	direction := "Incoming"
	if call.FromMe {
		direction = "Outgoing"
	}
	kind := "audio"
	if call.IsVideo {
		kind = "video"
	}
	if call.IsGroup {
		kind = "group " + kind
	}
	text := fmt.Sprintf("[%s] Phone call from %s, type %s call.", direction, call.From, kind)
	if rejected {
		text += " " + d.notices.Get(notice.CallRejected)
	}
	return text
}
