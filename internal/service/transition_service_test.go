package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/amphorabeer/brewhouse/internal/apierror"
	"github.com/amphorabeer/brewhouse/internal/dto"
	"github.com/amphorabeer/brewhouse/internal/model"
	"github.com/amphorabeer/brewhouse/internal/repository"
	"github.com/amphorabeer/brewhouse/internal/worker"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// ── In-memory stubs ──────────────────────────────────────────────────────────
//
// All stubs return nil from DB(), which makes runTx call fn(nil) directly:
// the whole engine runs against the maps below with no database attached.

type stubBatchRepo struct {
	batches map[uuid.UUID]*model.Batch
}

var _ repository.BatchRepository = (*stubBatchRepo)(nil)

func newStubBatchRepo() *stubBatchRepo {
	return &stubBatchRepo{batches: make(map[uuid.UUID]*model.Batch)}
}

func (r *stubBatchRepo) DB() *gorm.DB { return nil }

func (r *stubBatchRepo) CreateTx(ctx context.Context, tx *gorm.DB, b *model.Batch) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	r.batches[b.ID] = b
	return nil
}

func (r *stubBatchRepo) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*model.Batch, error) {
	b, ok := r.batches[id]
	if !ok || b.TenantID != tenantID {
		return nil, gorm.ErrRecordNotFound
	}
	return b, nil
}

func (r *stubBatchRepo) List(ctx context.Context, tenantID uuid.UUID, filter dto.BatchFilter) ([]model.Batch, int64, error) {
	var out []model.Batch
	for _, b := range r.batches {
		if b.TenantID != tenantID {
			continue
		}
		if filter.Status != "" && filter.Status != "all" && b.Status != filter.Status {
			continue
		}
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, int64(len(out)), nil
}

func (r *stubBatchRepo) UpdateStatusTx(tx *gorm.DB, id uuid.UUID, status string) error {
	b, ok := r.batches[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	b.Status = status
	return nil
}

type stubLotRepo struct {
	lots  map[uuid.UUID]*model.Lot
	links map[uuid.UUID]*model.LotBatch
}

var _ repository.LotRepository = (*stubLotRepo)(nil)

func newStubLotRepo() *stubLotRepo {
	return &stubLotRepo{
		lots:  make(map[uuid.UUID]*model.Lot),
		links: make(map[uuid.UUID]*model.LotBatch),
	}
}

func (r *stubLotRepo) DB() *gorm.DB { return nil }

func (r *stubLotRepo) CreateTx(ctx context.Context, tx *gorm.DB, l *model.Lot) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	r.lots[l.ID] = l
	return nil
}

func (r *stubLotRepo) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*model.Lot, error) {
	l, ok := r.lots[id]
	if !ok || l.TenantID != tenantID {
		return nil, gorm.ErrRecordNotFound
	}
	return l, nil
}

func (r *stubLotRepo) findByBatch(tenantID, batchID uuid.UUID, phase model.Phase) []model.Lot {
	seen := make(map[uuid.UUID]bool)
	var out []model.Lot
	for _, lb := range r.links {
		if lb.BatchID != batchID || seen[lb.LotID] {
			continue
		}
		l, ok := r.lots[lb.LotID]
		if !ok || l.TenantID != tenantID {
			continue
		}
		if phase != "" && l.Phase != phase {
			continue
		}
		seen[lb.LotID] = true
		out = append(out, *l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

func (r *stubLotRepo) FindByBatch(ctx context.Context, tenantID, batchID uuid.UUID, phase model.Phase) ([]model.Lot, error) {
	return r.findByBatch(tenantID, batchID, phase), nil
}

func (r *stubLotRepo) FindByBatchTx(tx *gorm.DB, tenantID, batchID uuid.UUID, phase model.Phase) ([]model.Lot, error) {
	return r.findByBatch(tenantID, batchID, phase), nil
}

func (r *stubLotRepo) findChildren(tenantID, parentID uuid.UUID) []model.Lot {
	var out []model.Lot
	for _, l := range r.lots {
		if l.TenantID == tenantID && l.ParentLotID != nil && *l.ParentLotID == parentID {
			out = append(out, *l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

func (r *stubLotRepo) FindChildren(ctx context.Context, tenantID, parentID uuid.UUID) ([]model.Lot, error) {
	return r.findChildren(tenantID, parentID), nil
}

func (r *stubLotRepo) FindChildrenTx(tx *gorm.DB, tenantID, parentID uuid.UUID) ([]model.Lot, error) {
	return r.findChildren(tenantID, parentID), nil
}

func (r *stubLotRepo) UpdateTx(tx *gorm.DB, l *model.Lot) error {
	stored, ok := r.lots[l.ID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	*stored = *l
	return nil
}

func (r *stubLotRepo) CreateLinkTx(ctx context.Context, tx *gorm.DB, lb *model.LotBatch) error {
	if lb.ID == uuid.Nil {
		lb.ID = uuid.New()
	}
	lb.CreatedAt = time.Now()
	r.links[lb.ID] = lb
	return nil
}

func (r *stubLotRepo) FindLink(ctx context.Context, tenantID, lotID, batchID uuid.UUID) (*model.LotBatch, error) {
	var latest *model.LotBatch
	for _, lb := range r.links {
		if lb.TenantID != tenantID || lb.LotID != lotID || lb.BatchID != batchID {
			continue
		}
		if latest == nil || lb.CreatedAt.After(latest.CreatedAt) {
			latest = lb
		}
	}
	if latest == nil {
		return nil, gorm.ErrRecordNotFound
	}
	out := *latest
	return &out, nil
}

func (r *stubLotRepo) FindLinksByLot(ctx context.Context, tenantID, lotID uuid.UUID) ([]model.LotBatch, error) {
	var out []model.LotBatch
	for _, lb := range r.links {
		if lb.TenantID == tenantID && lb.LotID == lotID {
			out = append(out, *lb)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *stubLotRepo) UpdateLinkTx(tx *gorm.DB, lb *model.LotBatch) error {
	stored, ok := r.links[lb.ID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	*stored = *lb
	return nil
}

// linksFor returns the stored join rows of one lot, creation order.
func (r *stubLotRepo) linksFor(lotID uuid.UUID) []model.LotBatch {
	out, _ := r.FindLinksByLot(context.Background(), r.anyTenant(), lotID)
	return out
}

func (r *stubLotRepo) anyTenant() uuid.UUID {
	for _, l := range r.lots {
		return l.TenantID
	}
	return uuid.Nil
}

type stubTankRepo struct {
	tanks map[uuid.UUID]*model.Tank
}

var _ repository.TankRepository = (*stubTankRepo)(nil)

func newStubTankRepo() *stubTankRepo {
	return &stubTankRepo{tanks: make(map[uuid.UUID]*model.Tank)}
}

func (r *stubTankRepo) DB() *gorm.DB { return nil }

func (r *stubTankRepo) Create(ctx context.Context, t *model.Tank) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	r.tanks[t.ID] = t
	return nil
}

func (r *stubTankRepo) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*model.Tank, error) {
	t, ok := r.tanks[id]
	if !ok || t.TenantID != tenantID {
		return nil, gorm.ErrRecordNotFound
	}
	return t, nil
}

func (r *stubTankRepo) List(ctx context.Context, tenantID uuid.UUID, filter dto.TankFilter) ([]model.Tank, int64, error) {
	var out []model.Tank
	for _, t := range r.tanks {
		if t.TenantID != tenantID {
			continue
		}
		if filter.Status != "" && filter.Status != "all" && t.Status != filter.Status {
			continue
		}
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, int64(len(out)), nil
}

func (r *stubTankRepo) Update(ctx context.Context, t *model.Tank) error {
	stored, ok := r.tanks[t.ID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	*stored = *t
	return nil
}

func (r *stubTankRepo) OccupyTx(tx *gorm.DB, tankID, lotID uuid.UUID, phase model.Phase) error {
	t, ok := r.tanks[tankID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	t.Status = model.TankStatusOccupied
	id := lotID
	p := phase
	t.CurrentLotID = &id
	t.CurrentPhase = &p
	return nil
}

func (r *stubTankRepo) ReleaseTx(tx *gorm.DB, tankID uuid.UUID, status string) error {
	t, ok := r.tanks[tankID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	t.Status = status
	t.CurrentLotID = nil
	t.CurrentPhase = nil
	return nil
}

func (r *stubTankRepo) UpsertRegistry(ctx context.Context, rec *model.TankRegistryRecord) error {
	return nil
}

type stubAssignmentRepo struct {
	assignments map[uuid.UUID]*model.TankAssignment
	lots        *stubLotRepo
}

var _ repository.AssignmentRepository = (*stubAssignmentRepo)(nil)

func newStubAssignmentRepo(lots *stubLotRepo) *stubAssignmentRepo {
	return &stubAssignmentRepo{
		assignments: make(map[uuid.UUID]*model.TankAssignment),
		lots:        lots,
	}
}

func (r *stubAssignmentRepo) DB() *gorm.DB { return nil }

func (r *stubAssignmentRepo) CreateTx(ctx context.Context, tx *gorm.DB, a *model.TankAssignment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	stored := *a
	r.assignments[a.ID] = &stored
	return nil
}

func (r *stubAssignmentRepo) FindActiveByTank(ctx context.Context, tenantID, tankID uuid.UUID) ([]model.TankAssignment, error) {
	var out []model.TankAssignment
	for _, a := range r.assignments {
		if a.TenantID != tenantID || a.TankID != tankID || a.Status != model.StatusActive {
			continue
		}
		item := *a
		if lot, ok := r.lots.lots[a.LotID]; ok {
			item.Lot = lot
		}
		out = append(out, item)
	}
	return out, nil
}

func (r *stubAssignmentRepo) FindOpenByLot(ctx context.Context, tenantID, lotID uuid.UUID, phase model.Phase) ([]model.TankAssignment, error) {
	var out []model.TankAssignment
	for _, a := range r.assignments {
		if a.TenantID != tenantID || a.LotID != lotID || a.Phase != phase {
			continue
		}
		if a.Status != model.StatusPlanned && a.Status != model.StatusActive {
			continue
		}
		out = append(out, *a)
	}
	return out, nil
}

func (r *stubAssignmentRepo) CloseTx(tx *gorm.DB, a *model.TankAssignment) error {
	stored, ok := r.assignments[a.ID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	stored.Status = a.Status
	stored.ActualEnd = a.ActualEnd
	return nil
}

func (r *stubAssignmentRepo) AddVolumeTx(tx *gorm.DB, id uuid.UUID, delta decimal.Decimal) error {
	stored, ok := r.assignments[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	stored.PlannedVolume = stored.PlannedVolume.Add(delta)
	return nil
}

func (r *stubAssignmentRepo) byTank(tankID uuid.UUID) []model.TankAssignment {
	var out []model.TankAssignment
	for _, a := range r.assignments {
		if a.TankID == tankID {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Status < out[j].Status })
	return out
}

type stubTransferRepo struct {
	rows []model.Transfer
}

var _ repository.TransferRepository = (*stubTransferRepo)(nil)

func (r *stubTransferRepo) CreateTx(ctx context.Context, tx *gorm.DB, t *model.Transfer) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	t.CreatedAt = time.Now()
	r.rows = append(r.rows, *t)
	return nil
}

func (r *stubTransferRepo) List(ctx context.Context, tenantID uuid.UUID, filter dto.TransferFilter) ([]model.Transfer, int64, error) {
	var out []model.Transfer
	for _, t := range r.rows {
		if t.TenantID != tenantID {
			continue
		}
		if filter.BatchID != "" && t.BatchID.String() != filter.BatchID {
			continue
		}
		if filter.Kind != "" && filter.Kind != "all" && t.Kind != filter.Kind {
			continue
		}
		out = append(out, t)
	}
	return out, int64(len(out)), nil
}

type stubMeasurementRepo struct {
	rows []model.Measurement
}

var _ repository.MeasurementRepository = (*stubMeasurementRepo)(nil)

func (r *stubMeasurementRepo) Create(ctx context.Context, m *model.Measurement) error {
	r.rows = append(r.rows, *m)
	return nil
}

// stubCodeGen hands out deterministic codes so assertions can name them.
type stubCodeGen struct {
	lots, blends int
}

var _ LotCodeGenerator = (*stubCodeGen)(nil)

func (g *stubCodeGen) NextLotCode(ctx context.Context, tenantID uuid.UUID) (string, error) {
	g.lots++
	return fmt.Sprintf("LOT-TEST-%03d", g.lots), nil
}

func (g *stubCodeGen) NextBlendCode(ctx context.Context, tenantID uuid.UUID) (string, error) {
	g.blends++
	return fmt.Sprintf("BLD-TEST-%03d", g.blends), nil
}

// ── Fixture ──────────────────────────────────────────────────────────────────

type engineFixture struct {
	tenantID uuid.UUID
	userID   uuid.UUID

	batches      *stubBatchRepo
	lots         *stubLotRepo
	tanks        *stubTankRepo
	assignments  *stubAssignmentRepo
	transfers    *stubTransferRepo
	measurements *stubMeasurementRepo

	svc TransitionService
}

func buildEngine() *engineFixture {
	lots := newStubLotRepo()
	f := &engineFixture{
		tenantID:     uuid.New(),
		userID:       uuid.New(),
		batches:      newStubBatchRepo(),
		lots:         lots,
		tanks:        newStubTankRepo(),
		assignments:  newStubAssignmentRepo(lots),
		transfers:    &stubTransferRepo{},
		measurements: &stubMeasurementRepo{},
	}
	f.svc = NewTransitionService(
		f.batches, f.lots, f.tanks, f.assignments,
		f.transfers, f.measurements, &stubCodeGen{}, nil,
	)
	return f
}

func dec(n int64) decimal.Decimal { return decimal.NewFromInt(n) }

func (f *engineFixture) addTank(name string, capacity int64) *model.Tank {
	t := &model.Tank{
		ID:       uuid.New(),
		TenantID: f.tenantID,
		Name:     name,
		Capacity: dec(capacity),
		Status:   model.TankStatusAvailable,
	}
	f.tanks.tanks[t.ID] = t
	return t
}

func (f *engineFixture) addBatch(code string, volume int64) *model.Batch {
	b := &model.Batch{
		ID:            uuid.New(),
		TenantID:      f.tenantID,
		Code:          code,
		RecipeName:    "Pilsner",
		Status:        model.BatchStatusFermenting,
		PlannedVolume: dec(volume),
		BrewedAt:      time.Now().Add(-14 * 24 * time.Hour),
	}
	f.batches.batches[b.ID] = b
	return b
}

// addLotInTank wires up the full occupancy: the lot row, a 100% join row to
// the batch, an active assignment, and the tank snapshot.
func (f *engineFixture) addLotInTank(batch *model.Batch, tank *model.Tank, code string, phase model.Phase, volume int64) *model.Lot {
	lot := &model.Lot{
		ID:            uuid.New(),
		TenantID:      f.tenantID,
		Code:          code,
		Phase:         phase,
		Status:        model.StatusActive,
		PlannedVolume: dec(volume),
	}
	f.lots.lots[lot.ID] = lot

	link := &model.LotBatch{
		ID:         uuid.New(),
		TenantID:   f.tenantID,
		LotID:      lot.ID,
		BatchID:    batch.ID,
		Phase:      phase,
		Volume:     dec(volume),
		Percentage: dec(100),
		CreatedAt:  time.Now(),
	}
	f.lots.links[link.ID] = link

	a := &model.TankAssignment{
		ID:            uuid.New(),
		TenantID:      f.tenantID,
		TankID:        tank.ID,
		LotID:         lot.ID,
		Phase:         phase,
		Status:        model.StatusActive,
		PlannedStart:  time.Now().Add(-14 * 24 * time.Hour),
		PlannedVolume: dec(volume),
	}
	f.assignments.assignments[a.ID] = a

	tank.Status = model.TankStatusOccupied
	lotID := lot.ID
	p := phase
	tank.CurrentLotID = &lotID
	tank.CurrentPhase = &p
	return lot
}

func (f *engineFixture) execute(req dto.TransitionRequest) (*dto.TransitionResponse, error) {
	return f.svc.Execute(context.Background(), f.tenantID, f.userID, req)
}

func transitionReq(batch *model.Batch, allocs ...dto.AllocationRequest) dto.TransitionRequest {
	return dto.TransitionRequest{
		BatchID:      batch.ID.String(),
		Allocations:  allocs,
		PlannedStart: time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC),
		PlannedEnd:   time.Date(2026, 9, 10, 9, 0, 0, 0, time.UTC),
	}
}

func requireAPIError(t *testing.T, err error, code string, status int) *apierror.APIError {
	t.Helper()
	require.Error(t, err)
	var apiErr *apierror.APIError
	require.True(t, errors.As(err, &apiErr), "expected *apierror.APIError, got %T", err)
	assert.Equal(t, code, apiErr.Code)
	assert.Equal(t, status, apiErr.HTTPStatus())
	return apiErr
}

// ── Direct transfer ──────────────────────────────────────────────────────────

func TestTransition_DirectTransfer(t *testing.T) {
	f := buildEngine()
	fv1 := f.addTank("FV-1", 600)
	bbt1 := f.addTank("BBT-1", 600)
	batch := f.addBatch("BATCH-2026-001", 500)
	lot := f.addLotInTank(batch, fv1, "LOT-001", model.PhaseFermentation, 500)

	req := transitionReq(batch, dto.AllocationRequest{TankID: bbt1.ID.String(), Volume: dec(500)})
	resp, err := f.execute(req)
	require.NoError(t, err)

	assert.Equal(t, "conditioning", resp.Lot.Phase)
	assert.Equal(t, model.StatusActive, resp.Lot.Status)
	require.Len(t, resp.Assignments, 1)
	assert.Equal(t, bbt1.ID.String(), resp.Assignments[0].TankID)
	assert.Equal(t, "500", resp.Assignments[0].PlannedVolume.String())

	// Source tank released for cleaning, destination occupied by the lot.
	assert.Equal(t, model.TankStatusNeedsCleaning, fv1.Status)
	assert.Nil(t, fv1.CurrentLotID)
	assert.Equal(t, model.TankStatusOccupied, bbt1.Status)
	require.NotNil(t, bbt1.CurrentLotID)
	assert.Equal(t, lot.ID, *bbt1.CurrentLotID)

	// The fermentation assignment closed at the conditioning start instant,
	// not at wall clock.
	var closed *model.TankAssignment
	for _, a := range f.assignments.byTank(fv1.ID) {
		if a.Status == model.StatusCompleted {
			c := a
			closed = &c
		}
	}
	require.NotNil(t, closed)
	require.NotNil(t, closed.ActualEnd)
	assert.True(t, closed.ActualEnd.Equal(req.PlannedStart))

	// Audit row and derived batch status.
	require.Len(t, f.transfers.rows, 1)
	tr := f.transfers.rows[0]
	assert.Equal(t, model.TransferKindMove, tr.Kind)
	assert.Equal(t, fv1.ID, *tr.FromTankID)
	assert.Equal(t, bbt1.ID, *tr.ToTankID)
	assert.Equal(t, f.userID, tr.CreatedBy)
	assert.Equal(t, model.BatchStatusConditioning, batch.Status)
}

func TestTransition_TransferBackToSameTank(t *testing.T) {
	// The moving lot's own occupancy is not a conflict: conditioning in the
	// same vessel without keep_same_tank closes the old assignment, opens a
	// new one, and never releases the tank.
	f := buildEngine()
	fv1 := f.addTank("FV-1", 800)
	batch := f.addBatch("BATCH-2026-002A", 300)
	lot := f.addLotInTank(batch, fv1, "LOT-002A", model.PhaseFermentation, 300)

	resp, err := f.execute(transitionReq(batch, dto.AllocationRequest{TankID: fv1.ID.String(), Volume: dec(300)}))
	require.NoError(t, err)

	assert.Equal(t, "conditioning", resp.Lot.Phase)
	assert.Equal(t, model.TankStatusOccupied, fv1.Status)
	require.NotNil(t, fv1.CurrentLotID)
	assert.Equal(t, lot.ID, *fv1.CurrentLotID)

	rows := f.assignments.byTank(fv1.ID)
	require.Len(t, rows, 2)
	var active, completed int
	for _, a := range rows {
		switch a.Status {
		case model.StatusActive:
			active++
		case model.StatusCompleted:
			completed++
		}
	}
	assert.Equal(t, 1, active)
	assert.Equal(t, 1, completed)
}

func TestTransition_FreshLotWhenBatchHasNone(t *testing.T) {
	f := buildEngine()
	bbt1 := f.addTank("BBT-1", 600)
	batch := f.addBatch("BATCH-2026-002", 450)

	resp, err := f.execute(transitionReq(batch, dto.AllocationRequest{TankID: bbt1.ID.String(), Volume: dec(450)}))
	require.NoError(t, err)

	// A lot was minted from the generator and carried through to conditioning.
	assert.Equal(t, "LOT-TEST-001", resp.Lot.Code)
	assert.Equal(t, "conditioning", resp.Lot.Phase)

	lotID, err := uuid.Parse(resp.Lot.ID)
	require.NoError(t, err)
	links := f.lots.linksFor(lotID)
	require.Len(t, links, 1)
	assert.Equal(t, model.PhaseFermentation, links[0].Phase)
	assert.Equal(t, "100", links[0].Percentage.String())
}

// ── Split ────────────────────────────────────────────────────────────────────

func TestTransition_Split(t *testing.T) {
	f := buildEngine()
	fv1 := f.addTank("FV-1", 600)
	bbt1 := f.addTank("BBT-1", 300)
	bbt2 := f.addTank("BBT-2", 400)
	batch := f.addBatch("BATCH-2026-003", 500)
	lot := f.addLotInTank(batch, fv1, "LOT-003", model.PhaseFermentation, 500)

	req := transitionReq(batch,
		dto.AllocationRequest{TankID: bbt1.ID.String(), Volume: dec(200)},
		dto.AllocationRequest{TankID: bbt2.ID.String(), Volume: dec(300)},
	)
	req.IsSplit = true
	resp, err := f.execute(req)
	require.NoError(t, err)

	// The parent is retired; children carry the lineage.
	assert.Equal(t, model.StatusCompleted, lot.Status)
	children := f.lots.findChildren(f.tenantID, lot.ID)
	require.Len(t, children, 2)
	assert.Equal(t, "LOT-003-A", children[0].Code)
	assert.Equal(t, "LOT-003-B", children[1].Code)
	assert.Equal(t, "200", children[0].PlannedVolume.String())
	assert.Equal(t, "300", children[1].PlannedVolume.String())
	for _, c := range children {
		assert.Equal(t, model.PhaseConditioning, c.Phase)
		assert.Equal(t, model.StatusActive, c.Status)
	}

	// Join rows carry volume-proportional percentages.
	linksA := f.lots.linksFor(children[0].ID)
	linksB := f.lots.linksFor(children[1].ID)
	require.Len(t, linksA, 1)
	require.Len(t, linksB, 1)
	assert.Equal(t, "40", linksA[0].Percentage.String())
	assert.Equal(t, "60", linksB[0].Percentage.String())

	assert.Equal(t, model.TankStatusNeedsCleaning, fv1.Status)
	assert.Equal(t, model.TankStatusOccupied, bbt1.Status)
	assert.Equal(t, model.TankStatusOccupied, bbt2.Status)
	assert.Len(t, resp.Assignments, 2)

	var splitRows int
	for _, tr := range f.transfers.rows {
		if tr.Kind == model.TransferKindSplit {
			splitRows++
		}
	}
	assert.Equal(t, 2, splitRows)
	assert.Equal(t, model.BatchStatusConditioning, batch.Status)
}

func TestTransition_SiblingAfterSplitRetiresParent(t *testing.T) {
	// A prior split left two fermentation siblings; with no explicit source
	// lot the engine picks the first sibling and retires the structural
	// parent. The batch stays fermenting while the other sibling is open.
	f := buildEngine()
	fv1 := f.addTank("FV-1", 600)
	fv2 := f.addTank("FV-2", 600)
	bbt1 := f.addTank("BBT-1", 300)
	batch := f.addBatch("BATCH-2026-004", 500)

	parent := f.addLotInTank(batch, fv1, "LOT-004", model.PhaseFermentation, 500)
	childA := f.addLotInTank(batch, fv1, "LOT-004-A", model.PhaseFermentation, 200)
	childB := f.addLotInTank(batch, fv2, "LOT-004-B", model.PhaseFermentation, 300)
	parentID := parent.ID
	childA.ParentLotID = &parentID
	childB.ParentLotID = &parentID

	resp, err := f.execute(transitionReq(batch, dto.AllocationRequest{TankID: bbt1.ID.String(), Volume: dec(200)}))
	require.NoError(t, err)

	assert.Equal(t, childA.ID.String(), resp.Lot.ID)
	assert.Equal(t, model.PhaseConditioning, childA.Phase)
	assert.Equal(t, model.StatusCompleted, parent.Status)
	assert.Equal(t, model.StatusActive, childB.Status)
	assert.Equal(t, model.BatchStatusFermenting, batch.Status)
}

// ── Stay-in-tank ─────────────────────────────────────────────────────────────

func TestTransition_StayInTank(t *testing.T) {
	f := buildEngine()
	fv1 := f.addTank("FV-1", 600)
	batch := f.addBatch("BATCH-2026-005", 500)
	lot := f.addLotInTank(batch, fv1, "LOT-005", model.PhaseFermentation, 500)

	req := transitionReq(batch)
	req.KeepSameTank = true
	resp, err := f.execute(req)
	require.NoError(t, err)

	assert.Equal(t, "conditioning", resp.Lot.Phase)
	require.Len(t, resp.Assignments, 1)
	assert.Equal(t, fv1.ID.String(), resp.Assignments[0].TankID)
	assert.Equal(t, "500", resp.Assignments[0].PlannedVolume.String())

	// The tank is never released: one closed fermentation assignment, one
	// active conditioning assignment, occupancy snapshot intact.
	assert.Equal(t, model.TankStatusOccupied, fv1.Status)
	require.NotNil(t, fv1.CurrentLotID)
	assert.Equal(t, lot.ID, *fv1.CurrentLotID)
	assert.Equal(t, model.PhaseConditioning, *fv1.CurrentPhase)

	rows := f.assignments.byTank(fv1.ID)
	require.Len(t, rows, 2)
	var active, completed int
	for _, a := range rows {
		switch a.Status {
		case model.StatusActive:
			active++
			assert.Equal(t, model.PhaseConditioning, a.Phase)
		case model.StatusCompleted:
			completed++
			require.NotNil(t, a.ActualEnd)
			assert.True(t, a.ActualEnd.Equal(req.PlannedStart))
		}
	}
	assert.Equal(t, 1, active)
	assert.Equal(t, 1, completed)

	require.Len(t, f.transfers.rows, 1)
	assert.Equal(t, model.TransferKindStay, f.transfers.rows[0].Kind)
	assert.Equal(t, model.BatchStatusConditioning, batch.Status)
}

func TestTransition_StayInTankSourceTankSelectsAssignment(t *testing.T) {
	// A lot fermenting across two tanks rolls over only the assignment on
	// the tank named by source_tank_id; the other keeps fermenting.
	f := buildEngine()
	fv1 := f.addTank("FV-1", 600)
	fv2 := f.addTank("FV-2", 600)
	batch := f.addBatch("BATCH-2026-022", 800)
	lot := f.addLotInTank(batch, fv1, "LOT-022", model.PhaseFermentation, 400)

	second := &model.TankAssignment{
		ID:            uuid.New(),
		TenantID:      f.tenantID,
		TankID:        fv2.ID,
		LotID:         lot.ID,
		Phase:         model.PhaseFermentation,
		Status:        model.StatusActive,
		PlannedStart:  time.Now().Add(-14 * 24 * time.Hour),
		PlannedVolume: dec(400),
	}
	f.assignments.assignments[second.ID] = second
	fv2.Status = model.TankStatusOccupied
	lotID := lot.ID
	phase := model.PhaseFermentation
	fv2.CurrentLotID = &lotID
	fv2.CurrentPhase = &phase

	srcID := fv2.ID.String()
	req := transitionReq(batch)
	req.KeepSameTank = true
	req.SourceTankID = &srcID
	resp, err := f.execute(req)
	require.NoError(t, err)

	require.Len(t, resp.Assignments, 1)
	assert.Equal(t, fv2.ID.String(), resp.Assignments[0].TankID)
	assert.Equal(t, model.PhaseConditioning, *fv2.CurrentPhase)

	rows := f.assignments.byTank(fv1.ID)
	require.Len(t, rows, 1)
	assert.Equal(t, model.StatusActive, rows[0].Status)
	assert.Equal(t, model.PhaseFermentation, rows[0].Phase)
}

func TestTransition_StayInTankRejectsMalformedSourceTank(t *testing.T) {
	f := buildEngine()
	fv1 := f.addTank("FV-1", 600)
	batch := f.addBatch("BATCH-2026-023", 500)
	f.addLotInTank(batch, fv1, "LOT-023", model.PhaseFermentation, 500)

	bad := "not-a-uuid"
	req := transitionReq(batch)
	req.KeepSameTank = true
	req.SourceTankID = &bad
	_, err := f.execute(req)
	requireAPIError(t, err, apierror.CodeValidation, 422)
}

func TestTransition_KeepSameTankFallsThroughWithoutAssignment(t *testing.T) {
	// keep_same_tank with no active fermentation assignment falls through
	// the precedence chain; with no allocations either, nothing can run.
	f := buildEngine()
	batch := f.addBatch("BATCH-2026-006", 500)

	req := transitionReq(batch)
	req.KeepSameTank = true
	_, err := f.execute(req)
	requireAPIError(t, err, apierror.CodeTanksUnavailable, 409)
}

// ── Blend ────────────────────────────────────────────────────────────────────

func TestTransition_Blend(t *testing.T) {
	f := buildEngine()
	fv1 := f.addTank("FV-1", 600)
	bbt1 := f.addTank("BBT-1", 800)
	moving := f.addBatch("BATCH-2026-007", 300)
	host := f.addBatch("BATCH-2026-008", 400)
	movingLot := f.addLotInTank(moving, fv1, "LOT-007", model.PhaseFermentation, 300)
	targetLot := f.addLotInTank(host, bbt1, "LOT-008", model.PhaseConditioning, 400)

	targetID := targetLot.ID.String()
	req := transitionReq(moving)
	req.EnableBlend = true
	req.BlendTargetLotID = &targetID
	resp, err := f.execute(req)
	require.NoError(t, err)

	// The target absorbed the contribution and took the blend naming.
	assert.Equal(t, "BLD-TEST-001", targetLot.Code)
	assert.True(t, targetLot.IsBlend)
	require.NotNil(t, targetLot.BlendedAt)
	assert.Equal(t, "700", targetLot.PlannedVolume.String())
	assert.Equal(t, targetLot.Code, resp.Lot.Code)

	// Dual lineage: the moving batch gains a conditioning row on the target;
	// percentages across the target's rows follow the volumes.
	links := f.lots.linksFor(targetLot.ID)
	require.Len(t, links, 2)
	byBatch := map[uuid.UUID]model.LotBatch{}
	for _, lb := range links {
		byBatch[lb.BatchID] = lb
	}
	assert.Equal(t, "57.14", byBatch[host.ID].Percentage.String())
	assert.Equal(t, "42.86", byBatch[moving.ID].Percentage.String())
	assert.Equal(t, model.PhaseConditioning, byBatch[moving.ID].Phase)
	assert.Equal(t, "300", byBatch[moving.ID].Volume.String())

	// The moving batch keeps its historical fermentation row.
	movingLinks := f.lots.linksFor(movingLot.ID)
	require.Len(t, movingLinks, 1)
	assert.Equal(t, model.PhaseFermentation, movingLinks[0].Phase)

	// Source lot retired, source tank released; the target keeps its
	// occupancy and its assignment absorbed the volume.
	assert.Equal(t, model.StatusCompleted, movingLot.Status)
	assert.Equal(t, model.TankStatusNeedsCleaning, fv1.Status)
	assert.Equal(t, model.TankStatusOccupied, bbt1.Status)
	rows := f.assignments.byTank(bbt1.ID)
	require.Len(t, rows, 1)
	assert.Equal(t, "700", rows[0].PlannedVolume.String())

	require.Len(t, f.transfers.rows, 1)
	assert.Equal(t, model.TransferKindBlend, f.transfers.rows[0].Kind)
	assert.Equal(t, "300", f.transfers.rows[0].Volume.String())

	// Every batch sharing the target lot had its status rederived.
	assert.Equal(t, model.BatchStatusConditioning, moving.Status)
	assert.Equal(t, model.BatchStatusConditioning, host.Status)
}

func TestTransition_BlendTargetOverflowAbortsBeforeRelease(t *testing.T) {
	f := buildEngine()
	fv1 := f.addTank("FV-1", 600)
	bbt1 := f.addTank("BBT-1", 600)
	moving := f.addBatch("BATCH-2026-009", 300)
	host := f.addBatch("BATCH-2026-010", 400)
	movingLot := f.addLotInTank(moving, fv1, "LOT-009", model.PhaseFermentation, 300)
	targetLot := f.addLotInTank(host, bbt1, "LOT-010", model.PhaseConditioning, 400)

	targetID := targetLot.ID.String()
	req := transitionReq(moving)
	req.EnableBlend = true
	req.BlendTargetLotID = &targetID
	_, err := f.execute(req)
	requireAPIError(t, err, apierror.CodeTankOverflow, 409)

	// Nothing moved: the source keeps its tank, the target its volume.
	assert.Equal(t, model.StatusActive, movingLot.Status)
	assert.Equal(t, model.PhaseFermentation, movingLot.Phase)
	assert.Equal(t, model.TankStatusOccupied, fv1.Status)
	assert.Equal(t, "400", targetLot.PlannedVolume.String())
	assert.Empty(t, f.transfers.rows)
}

func TestTransition_BlendTargetWithoutAssignment(t *testing.T) {
	f := buildEngine()
	fv1 := f.addTank("FV-1", 600)
	moving := f.addBatch("BATCH-2026-011", 300)
	f.addLotInTank(moving, fv1, "LOT-011", model.PhaseFermentation, 300)

	orphan := &model.Lot{
		ID:            uuid.New(),
		TenantID:      f.tenantID,
		Code:          "LOT-ORPHAN",
		Phase:         model.PhaseConditioning,
		Status:        model.StatusActive,
		PlannedVolume: dec(400),
	}
	f.lots.lots[orphan.ID] = orphan

	orphanID := orphan.ID.String()
	req := transitionReq(moving)
	req.EnableBlend = true
	req.BlendTargetLotID = &orphanID
	_, err := f.execute(req)
	requireAPIError(t, err, apierror.CodeTanksUnavailable, 409)
}

// ── Conflicts and zero-side-effect aborts ────────────────────────────────────

func TestTransition_TankOverflowLeavesNoTrace(t *testing.T) {
	f := buildEngine()
	fv1 := f.addTank("FV-1", 600)
	bbt1 := f.addTank("BBT-1", 300)
	batch := f.addBatch("BATCH-2026-012", 500)
	lot := f.addLotInTank(batch, fv1, "LOT-012", model.PhaseFermentation, 500)

	_, err := f.execute(transitionReq(batch, dto.AllocationRequest{TankID: bbt1.ID.String(), Volume: dec(500)}))
	requireAPIError(t, err, apierror.CodeTankOverflow, 409)

	assert.Equal(t, model.PhaseFermentation, lot.Phase)
	assert.Equal(t, model.StatusActive, lot.Status)
	assert.Equal(t, model.TankStatusOccupied, fv1.Status)
	assert.Equal(t, model.TankStatusAvailable, bbt1.Status)
	assert.Equal(t, model.BatchStatusFermenting, batch.Status)
	assert.Empty(t, f.transfers.rows)
}

func TestTransition_TankOccupied(t *testing.T) {
	f := buildEngine()
	fv1 := f.addTank("FV-1", 600)
	bbt1 := f.addTank("BBT-1", 600)
	batch := f.addBatch("BATCH-2026-013", 500)
	f.addLotInTank(batch, fv1, "LOT-013", model.PhaseFermentation, 500)

	other := f.addBatch("BATCH-2026-014", 200)
	squatter := f.addLotInTank(other, bbt1, "LOT-014", model.PhaseConditioning, 200)

	_, err := f.execute(transitionReq(batch, dto.AllocationRequest{TankID: bbt1.ID.String(), Volume: dec(300)}))
	apiErr := requireAPIError(t, err, apierror.CodeTankOccupied, 409)
	assert.Contains(t, apiErr.Detail, squatter.Code)
}

func TestTransition_DuplicateAllocationTank(t *testing.T) {
	// One tank cannot hold two active assignments, so a split whose entries
	// both name the same destination is a conflict even when each entry
	// fits the tank on its own.
	f := buildEngine()
	fv1 := f.addTank("FV-1", 600)
	bbt1 := f.addTank("BBT-1", 300)
	batch := f.addBatch("BATCH-2026-021", 400)
	lot := f.addLotInTank(batch, fv1, "LOT-021", model.PhaseFermentation, 400)

	req := transitionReq(batch,
		dto.AllocationRequest{TankID: bbt1.ID.String(), Volume: dec(200)},
		dto.AllocationRequest{TankID: bbt1.ID.String(), Volume: dec(200)},
	)
	req.IsSplit = true
	_, err := f.execute(req)
	apiErr := requireAPIError(t, err, apierror.CodeTankOccupied, 409)
	assert.Contains(t, apiErr.Detail, bbt1.Name)

	assert.Equal(t, model.PhaseFermentation, lot.Phase)
	assert.Equal(t, model.StatusActive, lot.Status)
	assert.Equal(t, model.TankStatusAvailable, bbt1.Status)
	assert.Empty(t, f.assignments.byTank(bbt1.ID))
	assert.Empty(t, f.transfers.rows)
}

func TestTransition_NoTanksSupplied(t *testing.T) {
	f := buildEngine()
	fv1 := f.addTank("FV-1", 600)
	batch := f.addBatch("BATCH-2026-015", 500)
	f.addLotInTank(batch, fv1, "LOT-015", model.PhaseFermentation, 500)

	_, err := f.execute(transitionReq(batch))
	requireAPIError(t, err, apierror.CodeTanksUnavailable, 409)
}

func TestTransition_BatchNotFound(t *testing.T) {
	f := buildEngine()
	req := dto.TransitionRequest{
		BatchID:      uuid.NewString(),
		PlannedStart: time.Now(),
	}
	_, err := f.execute(req)
	requireAPIError(t, err, apierror.CodeBatchNotFound, 404)
}

func TestTransition_TenantIsolation(t *testing.T) {
	f := buildEngine()
	fv1 := f.addTank("FV-1", 600)
	batch := f.addBatch("BATCH-2026-016", 500)
	f.addLotInTank(batch, fv1, "LOT-016", model.PhaseFermentation, 500)

	// Same batch id, wrong tenant.
	_, err := f.svc.Execute(context.Background(), uuid.New(), f.userID, transitionReq(batch))
	requireAPIError(t, err, apierror.CodeBatchNotFound, 404)
}

// ── Best-effort side writes ──────────────────────────────────────────────────

func TestTransition_QueueFailureIsLoggedNotFatal(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	defer func() { log.Logger = prev }()

	f := buildEngine()
	// A dispatcher whose Redis is unreachable: every enqueue errors out.
	f.svc = NewTransitionService(
		f.batches, f.lots, f.tanks, f.assignments,
		f.transfers, f.measurements, &stubCodeGen{},
		worker.NewDispatcher(redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})),
	)
	fv1 := f.addTank("FV-1", 600)
	batch := f.addBatch("BATCH-2026-024", 500)
	f.addLotInTank(batch, fv1, "LOT-024", model.PhaseFermentation, 500)

	req := transitionReq(batch)
	req.KeepSameTank = true
	resp, err := f.execute(req)
	require.NoError(t, err)
	assert.Equal(t, "conditioning", resp.Lot.Phase)

	assert.Contains(t, buf.String(), "timeline enqueue failed")
	assert.Contains(t, buf.String(), "mirror sync enqueue failed")
}

func TestTransition_MeasurementsCaptured(t *testing.T) {
	f := buildEngine()
	fv1 := f.addTank("FV-1", 600)
	bbt1 := f.addTank("BBT-1", 600)
	batch := f.addBatch("BATCH-2026-017", 500)
	f.addLotInTank(batch, fv1, "LOT-017", model.PhaseFermentation, 500)

	fg := decimal.RequireFromString("1.012")
	temp := decimal.RequireFromString("18.5")
	req := transitionReq(batch, dto.AllocationRequest{TankID: bbt1.ID.String(), Volume: dec(500)})
	req.FinalGravity = &fg
	req.Temperature = &temp
	_, err := f.execute(req)
	require.NoError(t, err)

	require.Len(t, f.measurements.rows, 2)
	kinds := map[string]decimal.Decimal{}
	for _, m := range f.measurements.rows {
		kinds[m.Kind] = m.Value
		assert.True(t, m.TakenAt.Equal(req.PlannedStart))
		assert.Equal(t, batch.ID, m.BatchID)
	}
	assert.Equal(t, "1.012", kinds[model.MeasurementFinalGravity].String())
	assert.Equal(t, "18.5", kinds[model.MeasurementTemperature].String())
}

// ── Transfer audit listing ───────────────────────────────────────────────────

func TestListTransfers_FilterByKind(t *testing.T) {
	f := buildEngine()
	fv1 := f.addTank("FV-1", 600)
	bbt1 := f.addTank("BBT-1", 300)
	bbt2 := f.addTank("BBT-2", 400)
	batch := f.addBatch("BATCH-2026-018", 500)
	f.addLotInTank(batch, fv1, "LOT-018", model.PhaseFermentation, 500)

	req := transitionReq(batch,
		dto.AllocationRequest{TankID: bbt1.ID.String(), Volume: dec(200)},
		dto.AllocationRequest{TankID: bbt2.ID.String(), Volume: dec(300)},
	)
	req.IsSplit = true
	_, err := f.execute(req)
	require.NoError(t, err)

	items, total, err := f.svc.ListTransfers(context.Background(), f.tenantID, dto.TransferFilter{Kind: model.TransferKindSplit})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	require.Len(t, items, 2)
	for _, item := range items {
		assert.Equal(t, model.TransferKindSplit, item.Kind)
		assert.Equal(t, batch.ID.String(), item.BatchID)
	}

	items, total, err = f.svc.ListTransfers(context.Background(), f.tenantID, dto.TransferFilter{Kind: model.TransferKindBlend})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, items)
}
