// Package router implements the method router (spec §4.4): fetch, send
// and delete all share the same lock-acquire/collect/release-then-call
// shape, grounded on the teacher's pkg/cachemanager.go pattern of taking
// a lock just long enough to build a plan, then doing slow I/O outside
// it. Per-adapter batches are dispatched concurrently with
// golang.org/x/sync/errgroup, the same library the teacher's
// pkg/watch.Manager uses for goroutine supervision.
package router

import (
	"context"
	"encoding/json"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/foxbox/adapters/pkg/adapter"
	"github.com/foxbox/adapters/pkg/apierror"
	"github.com/foxbox/adapters/pkg/entity"
	"github.com/foxbox/adapters/pkg/ids"
	"github.com/foxbox/adapters/pkg/logging"
	"github.com/foxbox/adapters/pkg/selector"
	"github.com/foxbox/adapters/pkg/values"
)

var log = logging.Named("router")

// Method identifies which of the three batch operations to route.
type Method int

const (
	Fetch Method = iota
	Send
	Delete
)

func (m Method) String() string {
	switch m {
	case Fetch:
		return "fetch"
	case Send:
		return "send"
	case Delete:
		return "delete"
	default:
		return "unknown"
	}
}

// RWLocker is the lock pkg/manager owns; the router only ever takes the
// read half, per spec §4.6 ("acquire read lock, build per-adapter
// batches, release, then invoke adapters").
type RWLocker interface {
	RLock()
	RUnlock()
}

// Target is one (selectors, payload) group of the TargetMap the caller
// passes to PlaceCall. Payload is nil for fetch, and for sends/deletes
// that carry no argument.
type Target struct {
	Selectors []selector.Channel
	Payload   json.RawMessage
}

// Result is one channel's outcome from PlaceCall.
type Result struct {
	Channel ids.ChannelID
	Value   json.RawMessage
	Err     error
}

// PlaceCall resolves targets to channels and groups them by adapter
// while holding lock's read half, releases it, then calls every
// involved adapter concurrently (spec §4.4). decode/encode translate
// between the wire payload and values.Value using each channel's
// declared Format - pass values.DefaultDecoder/DefaultEncoder for the
// common case.
func PlaceCall(
	ctx context.Context,
	lock RWLocker,
	store *entity.Store,
	method Method,
	targets []Target,
	user ids.UserID,
	decode values.Decoder,
	encode values.Encoder,
) []Result {
	pl, errs := buildPlan(lock, store, method, targets, user, decode)

	all := append([]resultValue{}, errs...)
	var mu sync.Mutex

	grp, gctx := errgroup.WithContext(ctx)
	for adapterID, batch := range pl.perAdapter {
		adapterID, batch := adapterID, batch
		grp.Go(func() error {
			raw := invokeAdapter(gctx, method, batch)
			out := reconcileBatch(method, adapterID, batch.requests, raw)
			mu.Lock()
			all = append(all, out...)
			mu.Unlock()
			return nil
		})
	}
	_ = grp.Wait()

	return encodeResults(all, pl.returnFormats, encode)
}

// resultValue is the internal, not-yet-encoded form of a Result.
type resultValue struct {
	channel ids.ChannelID
	value   *values.Value
	err     error
}

type adapterBatch struct {
	impl     adapter.Adapter
	requests []adapter.ValueRequest
	user     ids.UserID
}

type plan struct {
	perAdapter    map[ids.AdapterID]adapterBatch
	returnFormats map[ids.ChannelID]entity.Expectation
}

func buildPlan(lock RWLocker, store *entity.Store, method Method, targets []Target, user ids.UserID, decode values.Decoder) (plan, []resultValue) {
	lock.RLock()
	defer lock.RUnlock()

	p := plan{
		perAdapter:    make(map[ids.AdapterID]adapterBatch),
		returnFormats: make(map[ids.ChannelID]entity.Expectation),
	}
	var errs []resultValue

	for _, target := range targets {
		for _, desc := range store.GetChannels(target.Selectors) {
			sig := signatureFor(desc.Signatures, method)
			if sig == nil {
				errs = append(errs, resultValue{channel: desc.ID, err: apierror.NoSuchMethod(string(desc.ID), method.String())})
				continue
			}

			payload, err := decodePayload(sig.Accepts, desc.ID, target.Payload, decode)
			if err != nil {
				errs = append(errs, resultValue{channel: desc.ID, err: err})
				continue
			}

			impl, ok := store.AdapterImpl(desc.Adapter)
			if !ok {
				errs = append(errs, resultValue{channel: desc.ID, err: apierror.NoSuchAdapter(string(desc.Adapter))})
				continue
			}

			batch := p.perAdapter[desc.Adapter]
			batch.impl = impl
			batch.user = user
			batch.requests = append(batch.requests, adapter.ValueRequest{Channel: desc.ID, Payload: payload})
			p.perAdapter[desc.Adapter] = batch
			p.returnFormats[desc.ID] = sig.Returns
		}
	}
	return p, errs
}

func signatureFor(sigs entity.MethodSignatures, method Method) *entity.Signature {
	switch method {
	case Fetch:
		return sigs.Fetch
	case Send:
		return sigs.Send
	case Delete:
		return sigs.Delete
	default:
		return nil
	}
}

// decodePayload enforces the Nothing/Optional/Required contract of spec
// §4.4 step 2 before handing raw bytes to decode. It also catches a
// payload sent as the wrong Value kind for the channel's declared
// Format: values.SniffType recognizes the wire tag of a kind that isn't
// the one accepts.Format expects (e.g. OpenClosed's "Open"/"Closed"
// sent to a channel declared for OnOff) and turns that into a clean
// apierror.TypeError{expected, got} instead of a generic parse failure.
func decodePayload(accepts entity.Expectation, channel ids.ChannelID, raw json.RawMessage, decode values.Decoder) (*values.Value, error) {
	switch accepts.Kind {
	case entity.Nothing:
		if len(raw) > 0 {
			return nil, apierror.TypeError(string(channel), "no payload", "payload provided")
		}
		return nil, nil
	case entity.Required:
		if len(raw) == 0 {
			return nil, apierror.TypeError(string(channel), "payload", "none")
		}
	case entity.Optional:
		if len(raw) == 0 {
			return nil, nil
		}
	}
	if got, ok := values.SniffType(raw); ok && got != accepts.Format.Type() {
		return nil, apierror.TypeError(string(channel), accepts.Format.Type().String(), got.String())
	}
	v, err := decode(accepts.Format, string(channel), raw)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func invokeAdapter(ctx context.Context, method Method, batch adapterBatch) []adapter.ChannelResult {
	switch method {
	case Fetch:
		return batch.impl.FetchValues(ctx, batch.requests, batch.user)
	case Send:
		return batch.impl.SendValues(ctx, batch.requests, batch.user)
	case Delete:
		return batch.impl.DeleteValues(ctx, batch.requests, batch.user)
	default:
		return nil
	}
}

// reconcileBatch pairs raw adapter results back up with the requests
// that were sent, synthesizing a GenericInternal error for any request
// the adapter silently dropped (spec §4.7: "no error aborts a batch").
func reconcileBatch(method Method, adapterID ids.AdapterID, requests []adapter.ValueRequest, raw []adapter.ChannelResult) []resultValue {
	seen := make(map[ids.ChannelID]adapter.ChannelResult, len(raw))
	for _, r := range raw {
		seen[r.Channel] = r
	}
	out := make([]resultValue, 0, len(requests))
	for _, req := range requests {
		r, ok := seen[req.Channel]
		if !ok {
			log.Info("adapter did not return a result for channel in its batch", "adapter", adapterID, "channel", req.Channel, "method", method)
			out = append(out, resultValue{channel: req.Channel, err: apierror.GenericInternal("adapter did not return a result for channel " + string(req.Channel))})
			continue
		}
		out = append(out, resultValue{channel: req.Channel, value: r.Value, err: r.Err})
	}
	return out
}

// encodeResults is the last step of spec §4.4: each returned Value is
// validated against the expected return format (Nothing/Optional/
// Required) and encoded via the caller-provided encoder; mismatches
// become per-channel errors.
func encodeResults(results []resultValue, formats map[ids.ChannelID]entity.Expectation, encode values.Encoder) []Result {
	out := make([]Result, len(results))
	for i, r := range results {
		if r.err != nil {
			out[i] = Result{Channel: r.channel, Err: r.err}
			continue
		}
		expect, ok := formats[r.channel]
		if !ok {
			out[i] = Result{Channel: r.channel}
			continue
		}
		raw, err := encodeReturn(expect, r.channel, r.value, encode)
		out[i] = Result{Channel: r.channel, Value: raw, Err: err}
	}
	return out
}

func encodeReturn(expect entity.Expectation, channel ids.ChannelID, v *values.Value, encode values.Encoder) (json.RawMessage, error) {
	switch expect.Kind {
	case entity.Nothing:
		if v != nil {
			return nil, apierror.TypeError(string(channel), "nothing", "value")
		}
		return nil, nil
	case entity.Required:
		if v == nil {
			return nil, apierror.TypeError(string(channel), "value", "none")
		}
	case entity.Optional:
		if v == nil {
			return nil, nil
		}
	}
	return encode(expect.Format, string(channel), *v)
}
