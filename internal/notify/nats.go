package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/and161185/anonmatch/internal/errs"
	"github.com/and161185/anonmatch/internal/model"
)

// DefaultSubjectPrefix is prepended to the participant id to form the delivery subject.
const DefaultSubjectPrefix = "anonmatch.events."

// AckOK is the reply body a gateway sends once the event reached the participant.
const AckOK = "ok"

// Requester is the part of *nats.Conn the notifier needs.
type Requester interface {
	RequestMsgWithContext(ctx context.Context, msg *nats.Msg) (*nats.Msg, error)
}

// NATS publishes events as request/reply so a delivery gateway can acknowledge them.
// No responder, a timeout or a non-ok reply all count as a failed delivery.
type NATS struct {
	nc      Requester
	prefix  string
	timeout time.Duration
}

// NewNATS constructs a NATS notifier. Empty prefix and zero timeout select defaults.
func NewNATS(nc Requester, prefix string, timeout time.Duration) *NATS {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &NATS{nc: nc, prefix: prefix, timeout: timeout}
}

// Envelope is the JSON body of a delivery request.
type Envelope struct {
	To        int64     `json:"to"`
	Kind      string    `json:"kind"`
	PartnerID int64     `json:"partner_id,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	At        time.Time `json:"at"`
}

func (n *NATS) Notify(ctx context.Context, to model.ParticipantID, ev model.Event) error {
	data, err := json.Marshal(Envelope{
		To: to, Kind: string(ev.Kind), PartnerID: ev.PartnerID, Reason: string(ev.Reason), At: ev.At,
	})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := &nats.Msg{
		Subject: n.prefix + strconv.FormatInt(to, 10),
		Data:    data,
		Header:  nats.Header{},
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(msg.Header))

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()
	reply, err := n.nc.RequestMsgWithContext(ctx, msg)
	if err != nil {
		return fmt.Errorf("%w: nats %s: %v", errs.ErrDeliveryFailed, msg.Subject, err)
	}
	if string(reply.Data) != AckOK {
		return fmt.Errorf("%w: nats %s: gateway replied %q", errs.ErrDeliveryFailed, msg.Subject, reply.Data)
	}
	return nil
}
