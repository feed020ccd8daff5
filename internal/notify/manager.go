package notify

import (
	"context"
	"regexp"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/onem2m/acme-cse/internal/eventbus"
	"github.com/onem2m/acme-cse/internal/model"
	"github.com/onem2m/acme-cse/internal/storage"
)

// Manager is the NotificationManager: owns subscription lifecycle
// (verification/deletion protocols), event-driven filtering, batching,
// and expiration-counter bookkeeping. Grounded on
// original_source/acme/services/NotificationManager.py for the full
// state machine, wired onto the teacher's WebhookNotifier/DeliveryTracker
// shapes for actual transport.
type Manager struct {
	store    storage.Store
	notifier Notifier
	tracker  DeliveryTracker
	sched    *BatchScheduler
	logger   *zap.Logger
}

// New builds a Manager and wires its BatchScheduler to drain through
// deliver. store must be the same Store the Dispatcher uses, so
// subscription lookups observe committed resource state.
func New(store storage.Store, notifier Notifier, tracker DeliveryTracker, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{store: store, notifier: notifier, tracker: tracker, logger: logger}
	m.sched = NewBatchScheduler(store, m.drainBatch, logger)
	return m
}

// AttachToBus subscribes the manager to every resource lifecycle event;
// the subsequent handling runs off the publishing goroutine via the bus's
// own worker pool, so notification delivery never blocks a CSE request.
func (m *Manager) AttachToBus(bus eventbus.Bus) {
	bus.Subscribe(m.HandleEvent)
}

// HandleEvent maps one resource-tree event onto the subscriptions watching
// its target resource and dispatches a notification to each match.
func (m *Manager) HandleEvent(ev *model.Event) {
	ctx := context.Background()

	var targetRI string
	var net model.NotificationEventType
	var childTy model.ResourceType

	switch ev.Kind {
	case model.EventUpdated:
		if ev.Resource == nil {
			return
		}
		targetRI, net = ev.Resource.RI, model.NetUpdated
	case model.EventDeleted:
		if ev.Resource == nil {
			return
		}
		targetRI, net = ev.Resource.RI, model.NetDeleted
	case model.EventRetrieved:
		if ev.Resource == nil {
			return
		}
		targetRI, net = ev.Resource.RI, model.NetRetrieve
	case model.EventCreateDirectChild:
		if ev.Parent == nil || ev.Resource == nil {
			return
		}
		targetRI, net, childTy = ev.Parent.RI, model.NetCreateDirectChild, ev.Resource.TY
	case model.EventDeleteDirectChild:
		if ev.Parent == nil || ev.Resource == nil {
			return
		}
		targetRI, net, childTy = ev.Parent.RI, model.NetDeleteDirectChild, ev.Resource.TY
	default:
		return
	}

	subs, err := m.store.SubscriptionsForParent(ctx, targetRI)
	if err != nil {
		m.logger.Error("failed to load subscriptions", zap.String("target", targetRI), zap.Error(err))
		return
	}

	for _, sub := range subs {
		if m.shouldSuppress(sub, ev, net, childTy) {
			continue
		}
		payload := buildPayload(sub, ev, net)
		m.dispatch(ctx, sub, payload, net)
	}
}

func (m *Manager) shouldSuppress(sub *storage.Subscription, ev *model.Event, net model.NotificationEventType, childTy model.ResourceType) bool {
	if len(sub.Net) > 0 && !containsNet(sub.Net, net) {
		return true
	}
	if len(sub.ChTy) > 0 && (net == model.NetCreateDirectChild || net == model.NetDeleteDirectChild) {
		if !containsType(sub.ChTy, childTy) {
			return true
		}
	}
	if net == model.NetUpdated && len(sub.Atr) > 0 {
		if !anyAttributeMatches(sub.Atr, ev.ModifiedAttributes) {
			return true
		}
	}
	// A subscription is never notified about its own creation/deletion as
	// a child resource, per NotificationManager.py's checkSubscriptions
	// (sub['ri'] == childResource.ri guard on createDirectChild/
	// deleteDirectChild).
	if (net == model.NetCreateDirectChild || net == model.NetDeleteDirectChild) && ev.Resource != nil && sub.RI == ev.Resource.RI {
		return true
	}
	return false
}

func buildPayload(sub *storage.Subscription, ev *model.Event, net model.NotificationEventType) map[string]any {
	nev := map[string]any{
		"net": int(net),
		"sur": sub.RI,
	}
	switch sub.Nct {
	case model.NctRi:
		if ev.Resource != nil {
			nev["obr"] = ev.Resource.RI
		}
	case model.NctModifiedAttributes:
		nev["rep"] = ev.ModifiedAttributes
	case model.NctTimeSeriesNotification:
		nev["missingDataNumber"] = ev.MissingDataNumber
	default: // NctAll
		if ev.Resource != nil {
			rep := map[string]any{"ri": ev.Resource.RI, "rn": ev.Resource.RN, "ty": int(ev.Resource.TY)}
			for k, v := range ev.Resource.Attrs {
				rep[k] = v
			}
			nev["rep"] = rep
		}
	}
	return map[string]any{"m2m:sgn": nev}
}

func (m *Manager) dispatch(ctx context.Context, sub *storage.Subscription, payload map[string]any, net model.NotificationEventType) {
	if sub.BnNum > 1 || sub.BnDur != "" {
		dur := parseISODuration(sub.BnDur)
		for _, nu := range sub.NU {
			if err := m.sched.Enqueue(ctx, sub.RI, nu, payload, dur); err != nil {
				m.logger.Error("failed to enqueue batch notification", zap.String("sub", sub.RI), zap.Error(err))
				continue
			}
			// Reaching bn's count drains the batch without waiting for the timer.
			if sub.BnNum > 0 {
				if n, err := m.store.CountBatchNotifications(ctx, sub.RI, nu); err == nil && n >= sub.BnNum {
					m.sched.FlushNow(ctx, sub.RI, nu)
				}
			}
		}
		return
	}

	for _, nu := range sub.NU {
		m.send(ctx, sub, nu, payload)
	}
}

func (m *Manager) send(ctx context.Context, sub *storage.Subscription, nu string, payload map[string]any) {
	err := m.notifier.Notify(ctx, nu, payload, "")
	m.record(ctx, sub.RI, nu, err)
	m.afterDelivery(ctx, sub, err)
}

func (m *Manager) record(ctx context.Context, subRI, nu string, err error) {
	if m.tracker == nil {
		return
	}
	status := DeliveryStatusSucceeded
	errMsg := ""
	if err != nil {
		status = DeliveryStatusFailed
		errMsg = err.Error()
	}
	_ = m.tracker.Track(ctx, &Delivery{
		ID: uuid.NewString(), SubscriptionRI: subRI, Target: nu,
		Status: status, Error: errMsg, CompletedAt: timeNow(),
	})
}

// afterDelivery applies the `exc` expiration-counter rule: decrement on
// every successful notification, deleting the subscription once it
// reaches zero, per spec.md §5.
func (m *Manager) afterDelivery(ctx context.Context, sub *storage.Subscription, deliveryErr error) {
	if deliveryErr != nil || sub.Exc <= 0 {
		return
	}
	sub.Exc--
	if sub.Exc <= 0 {
		if err := m.RemoveSubscription(ctx, sub.RI); err != nil {
			m.logger.Error("failed to remove expired subscription", zap.String("sub", sub.RI), zap.Error(err))
		}
		return
	}
	if err := m.store.UpdateSubscription(ctx, sub); err != nil {
		m.logger.Error("failed to persist expiration counter", zap.String("sub", sub.RI), zap.Error(err))
	}
}

func (m *Manager) drainBatch(ctx context.Context, subRI, nu string, items []*storage.BatchNotification) {
	sub, err := m.store.GetSubscription(ctx, subRI)
	if err != nil {
		m.logger.Error("batch drain: subscription vanished", zap.String("sub", subRI), zap.Error(err))
		return
	}

	var aggregate map[string]any
	if sub.Ln {
		aggregate = items[len(items)-1].Payload
	} else {
		notifications := make([]map[string]any, len(items))
		for i, it := range items {
			notifications[i] = it.Payload
		}
		aggregate = map[string]any{"m2m:agn": map[string]any{"m2m:sgn": notifications}}
	}

	deliveryErr := m.notifier.Notify(ctx, nu, aggregate, "")
	m.record(ctx, subRI, nu, deliveryErr)
	m.afterDelivery(ctx, sub, deliveryErr)
}

// AddSubscription verifies every `nu` target (sending a `vrq=true`
// verification request) before persisting the subscription, failing
// fast with subscriptionVerificationInitiationFailed on the first
// unreachable target — matching the teacher's fail-fast registration
// pattern, generalized from webhook registration to oneM2M subscription
// verification.
func (m *Manager) AddSubscription(ctx context.Context, sub *storage.Subscription) *model.CSEError {
	for _, nu := range sub.NU {
		if err := m.verify(ctx, nu); err != nil {
			return model.NewError(model.RSCSubscriptionVerificationInitiationFailed,
				"verification request to %s failed: %v", nu, err)
		}
	}
	if err := m.store.AddSubscription(ctx, sub); err != nil {
		return model.NewError(model.RSCInternalServerError, "persist subscription: %v", err)
	}
	return nil
}

// UpdateSubscription re-verifies only the newly added `nu` entries (set
// difference against the previous record), per spec.md §5.
func (m *Manager) UpdateSubscription(ctx context.Context, updated *storage.Subscription) *model.CSEError {
	existing, err := m.store.GetSubscription(ctx, updated.RI)
	if err != nil {
		return model.NewError(model.RSCNotFound, "subscription %s not found: %v", updated.RI, err)
	}

	for _, nu := range updated.NU {
		if containsString(existing.NU, nu) {
			continue
		}
		if verr := m.verify(ctx, nu); verr != nil {
			return model.NewError(model.RSCSubscriptionVerificationInitiationFailed,
				"verification request to %s failed: %v", nu, verr)
		}
	}

	if err := m.store.UpdateSubscription(ctx, updated); err != nil {
		return model.NewError(model.RSCInternalServerError, "persist subscription update: %v", err)
	}
	return nil
}

// RemoveSubscription flushes any pending batches, best-effort notifies
// `nu` and `acrs` targets of the deletion (`sud=true`, errors ignored —
// the subscription is gone regardless), and removes the record.
func (m *Manager) RemoveSubscription(ctx context.Context, ri string) error {
	sub, err := m.store.GetSubscription(ctx, ri)
	if err != nil {
		return m.store.RemoveSubscription(ctx, ri)
	}

	for _, nu := range sub.NU {
		m.sched.FlushNow(ctx, ri, nu)
	}

	deletionPayload := map[string]any{"m2m:sgn": map[string]any{"sud": true, "sur": sub.RI}}
	targets := append(append([]string(nil), sub.NU...), sub.Acrs...)
	for _, target := range targets {
		_ = m.notifier.Notify(ctx, target, deletionPayload, "")
	}

	return m.store.RemoveSubscription(ctx, ri)
}

func (m *Manager) verify(ctx context.Context, nu string) error {
	return m.notifier.Notify(ctx, nu, map[string]any{"m2m:sgn": map[string]any{"vrq": true}}, "")
}

func containsNet(list []model.NotificationEventType, v model.NotificationEventType) bool {
	for _, n := range list {
		if n == v {
			return true
		}
	}
	return false
}

func containsType(list []model.ResourceType, v model.ResourceType) bool {
	for _, t := range list {
		if t == v {
			return true
		}
	}
	return false
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func anyAttributeMatches(watched []string, modified map[string]any) bool {
	for _, a := range watched {
		if _, ok := modified[a]; ok {
			return true
		}
	}
	return false
}

var isoDurationRE = regexp.MustCompile(`^PT(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?$`)

// parseISODuration parses the small subset of ISO-8601 durations oneM2M
// uses for `bnDur` (PTnHnMnS); no corpus example carries an ISO-8601
// duration library, so this stays a targeted regexp rather than pulling
// one in for a single field.
func parseISODuration(s string) time.Duration {
	if s == "" {
		return 10 * time.Second
	}
	match := isoDurationRE.FindStringSubmatch(s)
	if match == nil {
		return 10 * time.Second
	}
	var total time.Duration
	if match[1] != "" {
		h, _ := strconv.Atoi(match[1])
		total += time.Duration(h) * time.Hour
	}
	if match[2] != "" {
		mn, _ := strconv.Atoi(match[2])
		total += time.Duration(mn) * time.Minute
	}
	if match[3] != "" {
		sec, _ := strconv.Atoi(match[3])
		total += time.Duration(sec) * time.Second
	}
	if total == 0 {
		return 10 * time.Second
	}
	return total
}

// timeNow is a var so tests can stub delivery timestamps deterministically.
var timeNow = func() time.Time { return time.Now() }
