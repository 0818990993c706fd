package systems

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/chewxy/math32"

	"github.com/oxyengine/oxygen/engine/core"
	"github.com/oxyengine/oxygen/engine/math"
	"github.com/oxyengine/oxygen/engine/renderer/metadata"
)

// ViewContext is the camera-derived input of one collection pass.
type ViewContext struct {
	CameraPosition math.Vec3
	View           math.Mat4
	Projection     math.Mat4
	Frustum        math.Frustum
	// Vertical resolution and field of view drive screen-space-error
	// LOD selection.
	ViewportHeight float32
	VerticalFOV    float32
	LayerMask      metadata.RenderLayer
	TimeSeconds    float32
}

// ScenePrepInput is one candidate renderable collected from the scene
// graph before the extraction stages run.
type ScenePrepInput struct {
	Node     uint64
	Visible  bool
	World    math.Mat4
	Bounds   math.BoundingSphere
	Layer    metadata.RenderLayer
	Geometry *metadata.GeometryAsset
	// Materials indexed by Submesh.MaterialSlot.
	Materials []*metadata.MaterialAsset
	Policy    metadata.MeshResolvePolicy
	PassMask  metadata.PassMask
	Flags     uint32
}

// lodState carries per-node hysteresis memory across frames.
type lodState struct {
	current  uint32
	resolved bool
}

type ScenePrepConfig struct {
	// Optional secondary visibility hook (occluders, per-pass checks).
	VisibilityHook func(input *ScenePrepInput, view *ViewContext) bool
	// Parallel producer fan-out; 0 collects on the calling goroutine.
	Workers int
}

type ScenePrepStats struct {
	Candidates    uint32
	PreFiltered   uint32
	LODUnresolved uint32
	VisFiltered   uint32
	NotResident   uint32
	NodeFailures  uint32
	EmittedDraws  uint32
}

/**
 * ScenePrepPipeline turns scene graph candidates into an immutable
 * PreparedSceneFrame. Stages run sequentially per node: pre-filter,
 * mesh resolve, visibility filter, then the producer, which deduplicates
 * transforms and materials and checks geometry residency. The finalizer
 * packs SoA arrays and publishes the frame through an atomic pointer.
 */
type ScenePrepPipeline struct {
	config     ScenePrepConfig
	transforms *TransformManager
	materials  *MaterialRegistry
	geometry   *GeometryResidencyCache
	dispatcher core.Dispatcher

	mu        sync.Mutex
	lodStates map[uint64]*lodState
	stats     ScenePrepStats

	published atomic.Pointer[metadata.PreparedSceneFrame]
}

func NewScenePrepPipeline(config *ScenePrepConfig, transforms *TransformManager, materials *MaterialRegistry, geometry *GeometryResidencyCache, dispatcher core.Dispatcher) *ScenePrepPipeline {
	return &ScenePrepPipeline{
		config:     *config,
		transforms: transforms,
		materials:  materials,
		geometry:   geometry,
		dispatcher: dispatcher,
		lodStates:  make(map[uint64]*lodState),
	}
}

// Collect runs the full pipeline for one frame and publishes the result.
func (sp *ScenePrepPipeline) Collect(view *ViewContext, inputs []ScenePrepInput, sequence metadata.FrameSequenceNumber, lights []metadata.DirectionalLightBasic) (*metadata.PreparedSceneFrame, error) {
	sp.mu.Lock()
	sp.stats = ScenePrepStats{Candidates: uint32(len(inputs))}
	sp.mu.Unlock()

	sp.transforms.Reset()
	sp.geometry.Reset()
	sp.materials.RefreshPending()

	items, err := sp.produce(view, inputs)
	if err != nil {
		return nil, err
	}
	frame := sp.finalize(view, items, sequence, lights)
	sp.published.Store(frame)
	return frame, nil
}

// Published returns the most recently published frame, or nil before
// the first collection.
func (sp *ScenePrepPipeline) Published() *metadata.PreparedSceneFrame {
	return sp.published.Load()
}

func (sp *ScenePrepPipeline) Stats() ScenePrepStats {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	return sp.stats
}

func (sp *ScenePrepPipeline) produce(view *ViewContext, inputs []ScenePrepInput) ([]metadata.RenderItemData, error) {
	if sp.config.Workers <= 1 || sp.dispatcher == nil || len(inputs) < 2 {
		items := make([]metadata.RenderItemData, 0, len(inputs))
		for i := range inputs {
			items = sp.collectNode(view, &inputs[i], items)
		}
		return items, nil
	}
	return sp.produceParallel(view, inputs)
}

// produceParallel shards inputs across workers; each shard emits into
// its own bucket so the join concatenates deterministically.
func (sp *ScenePrepPipeline) produceParallel(view *ViewContext, inputs []ScenePrepInput) ([]metadata.RenderItemData, error) {
	workers := sp.config.Workers
	if workers > len(inputs) {
		workers = len(inputs)
	}
	buckets := make([][]metadata.RenderItemData, workers)
	shard := (len(inputs) + workers - 1) / workers

	nursery := core.NewNursery(nil, sp.dispatcher)
	for w := 0; w < workers; w++ {
		w := w
		begin := w * shard
		end := min(begin+shard, len(inputs))
		nursery.Go(func(context.Context) error {
			bucket := make([]metadata.RenderItemData, 0, end-begin)
			for i := begin; i < end; i++ {
				bucket = sp.collectNode(view, &inputs[i], bucket)
			}
			buckets[w] = bucket
			return nil
		})
	}
	if err := nursery.Wait(); err != nil {
		return nil, fmt.Errorf("scene prep producer: %w", err)
	}

	total := 0
	for _, bucket := range buckets {
		total += len(bucket)
	}
	items := make([]metadata.RenderItemData, 0, total)
	for _, bucket := range buckets {
		items = append(items, bucket...)
	}
	return items, nil
}

// collectNode runs the stages for one candidate. Node failures are
// absorbed: the node is skipped, the frame continues.
func (sp *ScenePrepPipeline) collectNode(view *ViewContext, input *ScenePrepInput, items []metadata.RenderItemData) (out []metadata.RenderItemData) {
	defer func() {
		if r := recover(); r != nil {
			core.LogError("scene prep: node %d failed: %v", input.Node, r)
			sp.bump(func(s *ScenePrepStats) { s.NodeFailures++ })
			out = items
		}
	}()

	proto := metadata.RenderItemProto{
		Node:     input.Node,
		World:    input.World,
		Bounds:   input.Bounds,
		Layer:    input.Layer,
		PassMask: input.PassMask,
	}
	if sp.preFilter(view, input) {
		proto.Dropped = true
		sp.bump(func(s *ScenePrepStats) { s.PreFiltered++ })
		return items
	}
	proto.LODIndex, proto.LODResolved = sp.resolveMesh(view, input)
	if !proto.LODResolved {
		proto.Dropped = true
		sp.bump(func(s *ScenePrepStats) { s.LODUnresolved++ })
		return items
	}
	if sp.config.VisibilityHook != nil && !sp.config.VisibilityHook(input, view) {
		proto.Dropped = true
		sp.bump(func(s *ScenePrepStats) { s.VisFiltered++ })
		return items
	}
	return sp.emit(input, &proto, items)
}

// preFilter rejects cheaply: disabled nodes, wrong layer, outside the
// view frustum when bounds are available.
func (sp *ScenePrepPipeline) preFilter(view *ViewContext, input *ScenePrepInput) bool {
	if !input.Visible || input.Geometry == nil {
		return true
	}
	if input.Layer&view.LayerMask == 0 {
		return true
	}
	if input.Bounds.Radius > 0 && !view.Frustum.IntersectsSphere(input.Bounds) {
		return true
	}
	return false
}

func (sp *ScenePrepPipeline) resolveMesh(view *ViewContext, input *ScenePrepInput) (uint32, bool) {
	lodCount := uint32(len(input.Geometry.LODs))
	if lodCount == 0 {
		return 0, false
	}
	switch input.Policy.Mode {
	case metadata.MeshResolveFixed:
		if input.Policy.FixedLOD >= lodCount {
			return lodCount - 1, true
		}
		return input.Policy.FixedLOD, true
	case metadata.MeshResolveDistance:
		return sp.resolveByDistance(view, input, lodCount)
	case metadata.MeshResolveScreenSpaceError:
		return sp.resolveByScreenSpaceError(view, input, lodCount)
	}
	return 0, false
}

func (sp *ScenePrepPipeline) nodeState(node uint64) *lodState {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	state, ok := sp.lodStates[node]
	if !ok {
		state = &lodState{}
		sp.lodStates[node] = state
	}
	return state
}

// resolveByDistance selects by camera distance with a symmetric
// hysteresis band around each threshold so a node sitting on a
// boundary does not flicker between LODs.
func (sp *ScenePrepPipeline) resolveByDistance(view *ViewContext, input *ScenePrepInput, lodCount uint32) (uint32, bool) {
	thresholds := input.Policy.Distances
	if len(thresholds) == 0 {
		return 0, false
	}
	distance := input.Bounds.Center.Distance(view.CameraPosition)

	target := uint32(0)
	for _, threshold := range thresholds {
		if distance < threshold {
			break
		}
		target++
	}
	if target >= lodCount {
		target = lodCount - 1
	}

	state := sp.nodeState(input.Node)
	sp.mu.Lock()
	defer sp.mu.Unlock()
	if !state.resolved {
		state.current = target
		state.resolved = true
		return target, true
	}
	if target == state.current {
		return state.current, true
	}
	// Crossing threshold index t separates LODs t and t+1.
	var threshold float32
	if target > state.current {
		threshold = thresholds[min(int(state.current), len(thresholds)-1)]
	} else {
		threshold = thresholds[min(int(target), len(thresholds)-1)]
	}
	band := threshold * input.Policy.Hysteresis
	if distance > threshold+band || distance < threshold-band {
		state.current = target
	}
	return state.current, true
}

// resolveByScreenSpaceError picks the coarsest LOD whose projected
// geometric error stays within budget. Enter and exit scales skew the
// budget directionally so transitions to finer and coarser LODs use
// different effective thresholds.
func (sp *ScenePrepPipeline) resolveByScreenSpaceError(view *ViewContext, input *ScenePrepInput, lodCount uint32) (uint32, bool) {
	if input.Policy.ErrorBudget <= 0 || view.ViewportHeight <= 0 || view.VerticalFOV <= 0 {
		return 0, false
	}
	distance := input.Bounds.Center.Distance(view.CameraPosition)
	if distance < 1e-4 {
		distance = 1e-4
	}
	// Pixels per world unit at the node's distance.
	scale := view.ViewportHeight / (2 * distance * math32.Tan(view.VerticalFOV*0.5))

	budgetFor := func(base float32, scaleFactor float32) float32 {
		if scaleFactor <= 0 {
			return base
		}
		return base * scaleFactor
	}

	selectWithin := func(budget float32) uint32 {
		chosen := uint32(0)
		for i := uint32(0); i < lodCount; i++ {
			if input.Geometry.LODs[i].GeometricError*scale <= budget {
				chosen = i
			}
		}
		return chosen
	}

	state := sp.nodeState(input.Node)
	sp.mu.Lock()
	defer sp.mu.Unlock()
	if !state.resolved {
		state.current = selectWithin(input.Policy.ErrorBudget)
		state.resolved = true
		return state.current, true
	}
	coarser := selectWithin(budgetFor(input.Policy.ErrorBudget, input.Policy.EnterScale))
	finer := selectWithin(budgetFor(input.Policy.ErrorBudget, input.Policy.ExitScale))
	if coarser > state.current {
		state.current = coarser
	} else if finer < state.current {
		state.current = finer
	}
	if state.current >= lodCount {
		state.current = lodCount - 1
	}
	return state.current, true
}

// emit produces one RenderItemData per visible submesh, interning the
// transform and material and checking residency. Missing geometry
// drops the item for this frame; the residency request is already in
// flight and the node renders once it completes.
func (sp *ScenePrepPipeline) emit(input *ScenePrepInput, proto *metadata.RenderItemProto, items []metadata.RenderItemData) []metadata.RenderItemData {
	lod := proto.LODIndex
	if _, resident := sp.geometry.Resolve(input.Geometry, lod); !resident {
		proto.Dropped = true
		sp.bump(func(s *ScenePrepStats) { s.NotResident++ })
		return items
	}
	transformOffset := sp.transforms.GetOrAllocate(proto.World)

	for submeshIndex := range input.Geometry.LODs[lod].Submeshes {
		submesh := &input.Geometry.LODs[lod].Submeshes[submeshIndex]
		var material *metadata.MaterialAsset
		if int(submesh.MaterialSlot) < len(input.Materials) {
			material = input.Materials[submesh.MaterialSlot]
		}
		materialIndex := uint32(metadata.InvalidID)
		passMask := proto.PassMask
		flags := input.Flags
		if material != nil {
			materialIndex = sp.materials.GetOrRegister(material)
			if material.Transparent {
				passMask = metadata.PassTransparent
				flags |= metadata.DrawFlagTransparent
			}
		}
		items = append(items, metadata.RenderItemData{
			Node:            input.Node,
			LODIndex:        lod,
			SubmeshIndex:    uint32(submeshIndex),
			Geometry:        input.Geometry,
			Material:        material,
			WorldBounds:     proto.Bounds,
			PassMask:        passMask,
			Flags:           flags,
			TransformOffset: transformOffset,
			MaterialIndex:   materialIndex,
		})
		sp.bump(func(s *ScenePrepStats) { s.EmittedDraws++ })
	}
	return items
}

// finalize packs the collected items into SoA arrays with draws stably
// partitioned by pass mask.
func (sp *ScenePrepPipeline) finalize(view *ViewContext, items []metadata.RenderItemData, sequence metadata.FrameSequenceNumber, lights []metadata.DirectionalLightBasic) *metadata.PreparedSceneFrame {
	ordered, partitions := partitionByPassMask(items)

	draws := make([]metadata.DrawMetadata, len(ordered))
	for i := range ordered {
		item := &ordered[i]
		lod := &item.Geometry.LODs[item.LODIndex]
		submesh := &lod.Submeshes[item.SubmeshIndex]
		buffers, _ := sp.geometry.Resolve(item.Geometry, item.LODIndex)

		isIndexed := uint32(0)
		if lod.IsIndexed {
			isIndexed = 1
		}
		draws[i] = metadata.DrawMetadata{
			VertexBufferIndex: uint32(buffers.VertexSRV),
			IndexBufferIndex:  uint32(buffers.IndexSRV),
			IsIndexed:         isIndexed,
			InstanceCount:     1,
			TransformOffset:   item.TransformOffset,
			MaterialIndex:     item.MaterialIndex,
			Flags:             item.Flags,
			FirstIndex:        submesh.FirstIndex,
			BaseVertex:        submesh.BaseVertex,
		}
	}

	worlds, normals := sp.transforms.Snapshot()
	constants := metadata.SceneConstants{
		ViewMatrix:       view.View.Data,
		ProjectionMatrix: view.Projection.Data,
		CameraPosition:   [3]float32{view.CameraPosition.X, view.CameraPosition.Y, view.CameraPosition.Z},
		TimeSeconds:      view.TimeSeconds,
		FrameIndex:       uint32(sequence),
	}
	return &metadata.PreparedSceneFrame{
		Sequence:       sequence,
		DrawMetadata:   draws,
		WorldMatrices:  worlds,
		NormalMatrices: normals,
		Partitions:     partitions,
		Lights:         lights,
		SceneConstants: constants,
	}
}

// partitionByPassMask stably groups items by pass mask in order of
// first appearance, preserving relative order within each group.
func partitionByPassMask(items []metadata.RenderItemData) ([]metadata.RenderItemData, []metadata.PartitionRange) {
	order := make([]metadata.PassMask, 0, 4)
	groups := make(map[metadata.PassMask][]metadata.RenderItemData)
	for _, item := range items {
		if _, ok := groups[item.PassMask]; !ok {
			order = append(order, item.PassMask)
		}
		groups[item.PassMask] = append(groups[item.PassMask], item)
	}

	ordered := make([]metadata.RenderItemData, 0, len(items))
	partitions := make([]metadata.PartitionRange, 0, len(order))
	for _, mask := range order {
		begin := uint32(len(ordered))
		ordered = append(ordered, groups[mask]...)
		partitions = append(partitions, metadata.PartitionRange{
			Mask:  mask,
			Begin: begin,
			End:   uint32(len(ordered)),
		})
	}
	return ordered, partitions
}

func (sp *ScenePrepPipeline) bump(update func(*ScenePrepStats)) {
	sp.mu.Lock()
	update(&sp.stats)
	sp.mu.Unlock()
}

// ForgetNode drops hysteresis memory for a removed scene node.
func (sp *ScenePrepPipeline) ForgetNode(node uint64) {
	sp.mu.Lock()
	delete(sp.lodStates, node)
	sp.mu.Unlock()
}
