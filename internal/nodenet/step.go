package nodenet

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/joschabach/micropsi2-sub002/internal/statuslog"
	"github.com/joschabach/micropsi2-sub002/internal/world"
)

var tracer = otel.Tracer("github.com/joschabach/micropsi2-sub002/internal/nodenet")

// StepStatusPath is where failed steps are reported in the status log.
const StepStatusPath = "nodenet.step"

const surWeightTolerance = 1e-9

type gateRef struct {
	node string
	gate string
}

// Step advances the net by one step. Slots are summed from the gate values
// committed by the previous step, every node function runs against its own
// frame, and only when all of them succeed are slots, gates, state and
// datatargets committed. Monitors sample the new step afterwards.
//
// Node functions must not call back into the net; mutations from inside a
// step fail with ErrReentrancyViolation.
func (n *Net) Step(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ctx, span := tracer.Start(ctx, "nodenet.Step", trace.WithAttributes(
		attribute.String("net.uid", n.uid),
	))
	defer span.End()

	if err := n.lock(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	n.stepping.Store(true)
	defer func() {
		n.stepping.Store(false)
		n.mu.Unlock()
	}()

	step := n.currentStep + 1
	span.SetAttributes(attribute.Int("net.step", step), attribute.Int("net.nodes", len(n.nodes)))

	if n.validateSur {
		if err := n.checkSurWeights(); err != nil {
			return n.failStep(span, step, err)
		}
	}

	types := n.types.snapshot()
	if n.linkOrder == nil {
		n.linkOrder = n.sortedLinks()
	}
	order := make([]string, 0, len(n.nodes))
	for _, uid := range n.sortedNodeUIDs() {
		nd := n.nodes[uid]
		if _, ok := types[nd.typeName]; !ok {
			continue
		}
		if _, ok := n.nodespaces[nd.nodespace]; !ok {
			continue
		}
		order = append(order, uid)
	}

	slots, linked := n.collectSlots(order, types)
	datasources := n.sampleDatasources()
	modulators := copyFloats(n.modulators)

	frames := make([]*Activation, len(order))
	errs := make([]error, len(order))
	evaluate := func(i int) {
		nd := n.nodes[order[i]]
		frame := &Activation{
			uid:         nd.uid,
			name:        nd.name,
			slots:       slots[nd.uid],
			linked:      linked[nd.uid],
			params:      nd.params,
			state:       copyFloats(nd.state),
			gates:       make(map[string]float64),
			targets:     make(map[string]float64),
			datasources: datasources,
			modulators:  modulators,
		}
		frames[i] = frame
		errs[i] = callNodeFunc(types[nd.typeName].Func, frame)
	}
	runParallel(ctx, n.workers, len(order), evaluate)

	for i, err := range errs {
		if err != nil {
			nd := n.nodes[order[i]]
			return n.failStep(span, step, fmt.Errorf("node %s (%s): %w", nd.uid, nd.typeName, err))
		}
	}

	factors := n.activatorFactors(types)
	targets := make(map[string]float64)
	for i, uid := range order {
		nd := n.nodes[uid]
		t := types[nd.typeName]
		frame := frames[i]
		nd.slots = frame.slots
		nd.state = frame.state
		scale := factors[nd.nodespace]
		for _, gate := range t.Gates {
			v := frame.gates[gate]
			if t.Modulated {
				if f, ok := scale[gate]; ok {
					v *= f
				}
			}
			nd.gates[gate] = nd.gateConfig[gate].apply(v)
		}
		for key, v := range frame.targets {
			targets[key] += v
		}
	}
	if n.world != nil {
		for _, key := range sortedKeys(targets) {
			n.world.SetDatatarget(key, targets[key])
		}
	}

	n.currentStep = step
	if observer, ok := n.world.(world.StepObserver); ok {
		observer.StepCompleted(step)
	}
	n.sampleMonitorsLocked()
	return nil
}

// collectSlots sums link contributions into fresh slot maps, in link key
// order so parallel and sequential runs agree bit for bit.
func (n *Net) collectSlots(order []string, types map[string]*NodeType) (map[string]map[string]float64, map[string]map[string]bool) {
	slots := make(map[string]map[string]float64, len(order))
	linked := make(map[string]map[string]bool, len(order))
	for _, uid := range order {
		t := types[n.nodes[uid].typeName]
		values := make(map[string]float64, len(t.Slots))
		for _, slot := range t.Slots {
			values[slot] = 0
		}
		slots[uid] = values
		linked[uid] = make(map[string]bool)
	}

	fanout := make(map[gateRef]int)
	for _, key := range n.linkOrder {
		fanout[gateRef{node: key.sourceNode, gate: key.sourceGate}]++
	}

	for _, key := range n.linkOrder {
		values, ok := slots[key.targetNode]
		if !ok {
			continue
		}
		if _, ok := values[key.targetSlot]; !ok {
			continue
		}
		src, ok := n.nodes[key.sourceNode]
		if !ok {
			continue
		}
		value := src.gates[key.sourceGate]
		if src.gateConfig[key.sourceGate].Spreading == SpreadingFanout {
			value /= float64(fanout[gateRef{node: key.sourceNode, gate: key.sourceGate}])
		}
		values[key.targetSlot] += value * n.links[key].Weight
		linked[key.targetNode][key.targetSlot] = true
	}

	for _, values := range slots {
		for slot, v := range values {
			if !finite(v) {
				values[slot] = 0
			}
		}
	}
	return slots, linked
}

func (n *Net) sampleDatasources() map[string]float64 {
	if n.world == nil {
		return nil
	}
	keys := n.world.DatasourceKeys()
	out := make(map[string]float64, len(keys))
	for _, key := range keys {
		out[key] = n.world.GetDatasource(key)
	}
	return out
}

// activatorFactors sums, per nodespace and channel, the gen gate committed
// by the previous step of every activator node.
func (n *Net) activatorFactors(types map[string]*NodeType) map[string]map[string]float64 {
	var out map[string]map[string]float64
	for _, uid := range n.sortedNodeUIDs() {
		nd := n.nodes[uid]
		if nd.typeName != ActivatorType {
			continue
		}
		if _, ok := types[nd.typeName]; !ok {
			continue
		}
		channel := nd.params[ParamActivatorType]
		if !contains(pipeChannels, channel) {
			continue
		}
		if out == nil {
			out = make(map[string]map[string]float64)
		}
		if out[nd.nodespace] == nil {
			out[nd.nodespace] = make(map[string]float64)
		}
		out[nd.nodespace][channel] += nd.gates[ChannelGen]
	}
	return out
}

func (n *Net) checkSurWeights() error {
	totals := make(map[string]float64)
	for key, l := range n.links {
		if key.sourceGate != ChannelSur || key.targetSlot != ChannelSur || l.Weight <= 0 {
			continue
		}
		if nd, ok := n.nodes[key.targetNode]; !ok || nd.typeName != PipeType {
			continue
		}
		totals[key.targetNode] += l.Weight
	}
	for _, uid := range sortedKeys(totals) {
		if totals[uid] > 1+surWeightTolerance {
			return fmt.Errorf("%w: sur weights into node %s sum to %g", ErrInvalidConfiguration, uid, totals[uid])
		}
	}
	return nil
}

func (n *Net) failStep(span trace.Span, step int, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	_ = n.status.Error(StepStatusPath, statuslog.StateFailure, fmt.Sprintf("step %d failed: %v", step, err), nil)
	n.log.Error("step failed", "step", step, "error", err)
	return err
}

func callNodeFunc(fn NodeFunc, a *Activation) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("node function panicked: %v", r)
		}
	}()
	return fn(a)
}

// runParallel calls fn for every index in [0, count), striding the indices
// over at most workers goroutines.
func runParallel(ctx context.Context, workers, count int, fn func(i int)) {
	if workers <= 1 || count < 2 {
		for i := 0; i < count; i++ {
			fn(i)
		}
		return
	}
	if workers > count {
		workers = count
	}
	_, span := tracer.Start(ctx, "nodenet.evaluate", trace.WithAttributes(attribute.Int("workers", workers)))
	defer span.End()

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(offset int) {
			defer wg.Done()
			for i := offset; i < count; i += workers {
				fn(i)
			}
		}(w)
	}
	wg.Wait()
}
