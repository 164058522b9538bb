package delivery

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/peernode/crypto"
	"github.com/opd-ai/peernode/directory"
	"github.com/opd-ai/peernode/eventbus"
	"github.com/opd-ai/peernode/friend"
	"github.com/opd-ai/peernode/limits"
	"github.com/opd-ai/peernode/messaging"
	"github.com/opd-ai/peernode/store"
	"github.com/opd-ai/peernode/transport"
)

// Notifier publishes an asynchronous state change. eventbus.Bus satisfies
// this via its Notify method; tests may supply a stub.
type Notifier interface {
	Notify(name eventbus.Name, data any)
}

// DirectoryClient is the subset of directory.Client the pipeline depends
// on. *directory.Client satisfies it; tests substitute a stub to avoid
// real HTTP calls.
type DirectoryClient interface {
	PushOffline(ctx context.Context, recipient, sender string, envelopeBytes []byte) error
	FetchOffline(ctx context.Context, recipient string) ([]directory.OfflineMessage, error)
	DeleteOffline(ctx context.Context, ids []string) error
}

// Pipeline is the node's delivery pipeline: the send and receive paths,
// bound to one node's identity, store, directory client and peer
// transport dial function.
type Pipeline struct {
	identity  *crypto.Identity
	store     *store.Store
	directory DirectoryClient
	notifier  Notifier
	dial      DialFunc
	peerPort  int
	time      crypto.TimeProvider
}

// DialFunc performs a single outbound framed send, matching
// transport.Send's signature. Injected so tests can substitute a fake
// transport without opening real sockets.
type DialFunc func(ctx context.Context, remoteIP string, remotePort int, envelope []byte) (transport.SendResult, error)

// New constructs a Pipeline around a node's identity, local store,
// directory client and dial function. peerPort is this node's own
// listening Peer Transport port, used as the default remote port when a
// friend's last-known address carries no port of its own.
func New(identity *crypto.Identity, st *store.Store, dc DirectoryClient, notifier Notifier, dial DialFunc, peerPort int) *Pipeline {
	return &Pipeline{
		identity:  identity,
		store:     st,
		directory: dc,
		notifier:  notifier,
		dial:      dial,
		peerPort:  peerPort,
		time:      crypto.GetDefaultTimeProvider(),
	}
}

// WithTimeProvider overrides the pipeline's clock, for deterministic
// tests.
func (p *Pipeline) WithTimeProvider(tp crypto.TimeProvider) *Pipeline {
	if tp != nil {
		p.time = tp
	}
	return p
}

// Send is the outbound path: resolve, construct, encrypt-and-sign, attempt
// direct delivery, fall back to the relay, and persist the outcome last
// so delivery_method reflects what actually happened.
func (p *Pipeline) Send(ctx context.Context, to, text string) (msgID string, outcome Outcome, err error) {
	f, lerr := p.store.LookupFriend(to)
	if lerr != nil {
		return "", 0, fmt.Errorf("%w: %q is not in your friend list", ErrUnknownFriend, to)
	}
	if !f.CanSendTo() {
		return "", 0, fmt.Errorf("%w: %q's published keys changed and must be re-pinned before sending", ErrKeyConflict, to)
	}
	if verr := limits.ValidateMessageText([]byte(text)); verr != nil {
		return "", 0, fmt.Errorf("%w: %v", ErrTooLarge, verr)
	}

	msgID = messaging.NewMsgID()
	now := p.time.Now()
	payload := messaging.Payload{Text: text, MsgID: msgID}

	env, berr := messaging.BuildEnvelope(
		p.identity.Username, to, payload,
		f.EncPublicKey, p.identity.EncKeyPair.Private, p.identity.SignKeyPair.Private,
		now,
	)
	if berr != nil {
		// Only RNG failure reaches here; fatal to the process,
		// but the pipeline itself never calls os.Exit; that decision
		// belongs to the scheduler's top-level goroutine.
		logrus.WithFields(logrus.Fields{
			"function": "Send",
			"error":    berr.Error(),
		}).Error("fatal crypto primitive failure building envelope")
		return "", 0, berr
	}

	envBytes, merr := env.Marshal()
	if merr != nil {
		return "", 0, merr
	}

	outcome = p.attemptDelivery(ctx, f, to, envBytes)

	msg := &messaging.Message{
		MsgID:     msgID,
		Peer:      to,
		Direction: messaging.DirectionSent,
		Plaintext: text,
		Timestamp: now,
	}
	switch outcome {
	case Direct:
		msg.MarkDelivered(messaging.DeliveryDirect)
	case Offline:
		msg.DeliveryMethod = messaging.DeliveryOffline
	case Unreliable:
		msg.MarkPending()
	}

	if perr := p.store.RecordMessage(msg); perr != nil {
		return "", 0, perr
	}

	logrus.WithFields(logrus.Fields{
		"function": "Send",
		"to":       to,
		"msg_id":   msgID,
		"outcome":  outcome.String(),
	}).Info("send path completed")

	return msgID, outcome, nil
}

// attemptDelivery tries direct Peer Transport delivery first, falling
// back to the directory's relay on any transport failure or when no
// address is known at all.
func (p *Pipeline) attemptDelivery(ctx context.Context, f *friend.Friend, to string, envBytes []byte) Outcome {
	if f.LastIP != "" {
		host, port := splitHostPort(f.LastIP, p.peerPort)
		result, err := p.dial(ctx, host, port, envBytes)
		if err == nil && result == transport.Delivered {
			return Direct
		}
		logrus.WithFields(logrus.Fields{
			"function": "attemptDelivery",
			"to":       to,
			"addr":     f.LastIP,
			"error":    errString(err),
		}).Debug("direct delivery failed, falling back to relay")
	}

	if err := p.directory.PushOffline(ctx, to, p.identity.Username, envBytes); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "attemptDelivery",
			"to":       to,
			"error":    err.Error(),
		}).Warn("relay push failed, message held as offline_pending")
		return Unreliable
	}

	return Offline
}

// splitHostPort parses a friend's last-known address, which may be a bare
// host or a host:port pair. A bare host uses defaultPort, the node's own
// configured peer_port: the directory's users collection has no per-peer
// port column, and every node in a deployment listens on the same
// conventional port unless its address explicitly says otherwise.
func splitHostPort(addr string, defaultPort int) (string, int) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return addr, defaultPort
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return host, defaultPort
	}
	return host, port
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// defaultDial adapts transport.Send to DialFunc, for production wiring.
func defaultDial(ctx context.Context, remoteIP string, remotePort int, envelope []byte) (transport.SendResult, error) {
	return transport.Send(ctx, remoteIP, remotePort, envelope)
}

// NewWithDefaultTransport is a convenience constructor that wires
// transport.Send as the dial function, for production use outside tests.
func NewWithDefaultTransport(identity *crypto.Identity, st *store.Store, dc DirectoryClient, notifier Notifier, peerPort int) *Pipeline {
	return New(identity, st, dc, notifier, defaultDial, peerPort)
}

// RetryPending re-attempts every message the send path previously left in
// the offline_pending state. A message that reaches the peer or the relay
// leaves the pending state; one that fails again is left untouched for
// the next tick.
func (p *Pipeline) RetryPending(ctx context.Context) {
	pending := p.store.ListPending()
	for _, m := range pending {
		f, err := p.store.LookupFriend(m.Peer)
		if err != nil {
			continue
		}
		if !f.CanSendTo() {
			continue
		}

		payload := messaging.Payload{Text: m.Plaintext, MsgID: m.MsgID}
		env, err := messaging.BuildEnvelope(
			p.identity.Username, m.Peer, payload,
			f.EncPublicKey, p.identity.EncKeyPair.Private, p.identity.SignKeyPair.Private,
			p.time.Now(),
		)
		if err != nil {
			continue
		}
		envBytes, err := env.Marshal()
		if err != nil {
			continue
		}

		outcome := p.attemptDelivery(ctx, f, m.Peer, envBytes)
		if outcome == Unreliable {
			continue
		}

		method := messaging.DeliveryOffline
		if outcome == Direct {
			method = messaging.DeliveryDirect
		}
		if err := p.store.UpdateDeliveryOutcome(m.MsgID, outcome == Direct, method); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "RetryPending",
				"msg_id":   m.MsgID,
				"error":    err.Error(),
			}).Warn("failed to persist pending-retry outcome")
		}
	}
}

