package recon

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/marina/internal/models"
	"github.com/your-org/marina/internal/storage"
)

// memStateStore is an in-memory StateStore with value-copy semantics.
type memStateStore struct {
	mu     sync.Mutex
	nextID int64
	states map[int64]models.State
}

func newMemStateStore() *memStateStore {
	return &memStateStore{states: make(map[int64]models.State)}
}

func (m *memStateStore) CreateState(_ context.Context, st *models.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	st.ID = m.nextID
	m.states[st.ID] = *st
	return nil
}

func (m *memStateStore) GetState(_ context.Context, id int64) (*models.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	copied := st
	return &copied, nil
}

func (m *memStateStore) UpdateState(_ context.Context, st *models.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.states[st.ID]; !ok {
		return storage.ErrNotFound
	}
	m.states[st.ID] = *st
	return nil
}

func (m *memStateStore) ListOpenStates(_ context.Context) ([]models.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var open []models.State
	for _, st := range m.states {
		if st.LastBoatPassID == nil {
			open = append(open, st)
		}
	}
	return open, nil
}

func newTestReconciler(store StateStore, policy Policy) *Reconciler {
	r := New(store, policy, 15)
	r.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	return r
}

func pass(id int64, identifier string, visitStart bool, ts time.Time) *models.BoatPass {
	return &models.BoatPass{
		ID:                 id,
		CameraID:           1,
		Timestamp:          ts,
		DetectedIdentifier: identifier,
		VisitStart:         visitStart,
	}
}

func TestOpenOrAttach_OpensNewState(t *testing.T) {
	store := newMemStateStore()
	r := newTestReconciler(store, AlwaysOpenPolicy{})

	ts := time.Date(2025, 6, 1, 10, 30, 0, 0, time.UTC)
	st, err := r.OpenOrAttach(context.Background(), pass(7, "PZ1234", true, ts))
	require.NoError(t, err)
	require.NotNil(t, st)

	assert.Equal(t, ts, *st.ArrivalTime)
	assert.Equal(t, ts, *st.DepartureTime)
	assert.Equal(t, "PZ1234", *st.BestDetectedIdentifier)
	assert.Equal(t, models.PaymentStatusUnpaid, st.PaymentStatus)
	assert.Equal(t, models.StateOfBoatTransiting, st.StateOfBoat)
	assert.Equal(t, 15, *st.TimeInMarina)
	assert.Equal(t, int64(7), *st.FirstBoatPassID)
	assert.Nil(t, st.LastBoatPassID)
	assert.False(t, st.AddedManually)
	assert.NotNil(t, st.EditTimestamp)
}

func TestOpenOrAttach_IgnoresNonVisitStart(t *testing.T) {
	store := newMemStateStore()
	r := newTestReconciler(store, AlwaysOpenPolicy{})

	st, err := r.OpenOrAttach(context.Background(), pass(1, "PZ1234", false, time.Now()))
	require.NoError(t, err)
	assert.Nil(t, st)
	assert.Empty(t, store.states)
}

func TestOpenOrAttach_AttachesToMatchingOpenState(t *testing.T) {
	store := newMemStateStore()
	r := newTestReconciler(store, IdentifierMatchPolicy{})

	arrival := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	opened, err := r.OpenOrAttach(context.Background(), pass(1, "PZ12*4", true, arrival))
	require.NoError(t, err)
	require.NotNil(t, opened)

	departure := arrival.Add(90 * time.Minute)
	closed, err := r.OpenOrAttach(context.Background(), pass(2, "PZ1234", false, departure))
	require.NoError(t, err)
	require.NotNil(t, closed)

	assert.Equal(t, opened.ID, closed.ID)
	assert.Equal(t, int64(2), *closed.LastBoatPassID)
	assert.Equal(t, departure, *closed.DepartureTime)
	assert.Equal(t, models.StateOfBoatMoored, closed.StateOfBoat)
	assert.Equal(t, 90, *closed.TimeInMarina)
	// The closing pass resolved the wildcard character.
	assert.Equal(t, "PZ1234", *closed.BestDetectedIdentifier)
}

func TestOpenOrAttach_ClampsDepartureBeforeArrival(t *testing.T) {
	store := newMemStateStore()
	r := newTestReconciler(store, IdentifierMatchPolicy{})

	arrival := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	_, err := r.OpenOrAttach(context.Background(), pass(1, "PZ1234", true, arrival))
	require.NoError(t, err)

	closed, err := r.OpenOrAttach(context.Background(), pass(2, "PZ1234", false, arrival.Add(-time.Hour)))
	require.NoError(t, err)
	require.NotNil(t, closed)

	assert.True(t, closed.WeirdState)
	assert.Equal(t, arrival, *closed.DepartureTime)
	assert.False(t, closed.DepartureTime.Before(*closed.ArrivalTime))
}

func TestApplyPayment_TouchesOnlyPaymentAndEditTimestamp(t *testing.T) {
	store := newMemStateStore()
	r := newTestReconciler(store, AlwaysOpenPolicy{})

	ts := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	opened, err := r.OpenOrAttach(context.Background(), pass(1, "PZ1234", true, ts))
	require.NoError(t, err)
	before := *opened

	updated, err := r.ApplyPayment(context.Background(), opened.ID, models.PaymentStatusPaid)
	require.NoError(t, err)

	assert.Equal(t, models.PaymentStatusPaid, updated.PaymentStatus)

	// Everything except payment status and edit timestamp is untouched.
	after := *updated
	after.PaymentStatus = before.PaymentStatus
	after.EditTimestamp = before.EditTimestamp
	assert.Equal(t, before, after)
}

func TestApplyPayment_NotFound(t *testing.T) {
	r := newTestReconciler(newMemStateStore(), AlwaysOpenPolicy{})

	_, err := r.ApplyPayment(context.Background(), 42, models.PaymentStatusPaid)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestApplyPayment_RejectsUnknownStatus(t *testing.T) {
	r := newTestReconciler(newMemStateStore(), AlwaysOpenPolicy{})

	_, err := r.ApplyPayment(context.Background(), 1, models.PaymentStatus("gratis"))
	assert.ErrorIs(t, err, ErrInvalidUpdate)
}

func TestApplyIdentifier_ResolvesMarkers(t *testing.T) {
	store := newMemStateStore()
	r := newTestReconciler(store, AlwaysOpenPolicy{})

	opened, err := r.OpenOrAttach(context.Background(), pass(1, "PZ1**4", true, time.Now()))
	require.NoError(t, err)

	updated, err := r.ApplyIdentifier(context.Background(), opened.ID, "PZ1234")
	require.NoError(t, err)
	assert.Equal(t, "PZ1234", *updated.BestDetectedIdentifier)
}

func TestApplyPatch_MergesOnlyPresentFields(t *testing.T) {
	store := newMemStateStore()
	r := newTestReconciler(store, AlwaysOpenPolicy{})

	opened, err := r.OpenOrAttach(context.Background(), pass(1, "PZ1234", true, time.Now()))
	require.NoError(t, err)

	paid := models.PaymentStatusPaid
	moored := models.StateOfBoatMoored
	updated, err := r.ApplyPatch(context.Background(), opened.ID, models.StatePatch{
		PaymentStatus: &paid,
		StateOfBoat:   &moored,
	})
	require.NoError(t, err)

	assert.Equal(t, models.PaymentStatusPaid, updated.PaymentStatus)
	assert.Equal(t, models.StateOfBoatMoored, updated.StateOfBoat)
	// Absent fields stay as they were.
	assert.Equal(t, *opened.BestDetectedIdentifier, *updated.BestDetectedIdentifier)
	assert.Equal(t, *opened.ArrivalTime, *updated.ArrivalTime)
	assert.Equal(t, *opened.TimeInMarina, *updated.TimeInMarina)
}

func TestApplyPatch_RejectsDepartureBeforeArrivalOnClosedVisit(t *testing.T) {
	store := newMemStateStore()
	r := newTestReconciler(store, AlwaysOpenPolicy{})

	opened, err := r.OpenOrAttach(context.Background(), pass(1, "PZ1234", true, time.Now()))
	require.NoError(t, err)

	lastPass := int64(2)
	badDeparture := opened.ArrivalTime.Add(-time.Hour)
	_, err = r.ApplyPatch(context.Background(), opened.ID, models.StatePatch{
		LastBoatPassID: &lastPass,
		DepartureTime:  &badDeparture,
	})
	assert.ErrorIs(t, err, ErrInvalidUpdate)
}

// randomPatch builds a patch touching a random subset of fields.
func randomPatch(rng *rand.Rand) models.StatePatch {
	var p models.StatePatch
	if rng.Intn(2) == 0 {
		statuses := []models.PaymentStatus{models.PaymentStatusPaid, models.PaymentStatusUnpaid, models.PaymentStatusExempt}
		s := statuses[rng.Intn(len(statuses))]
		p.PaymentStatus = &s
	}
	if rng.Intn(2) == 0 {
		id := randIdentifier(rng)
		p.BestDetectedIdentifier = &id
	}
	if rng.Intn(2) == 0 {
		minutes := rng.Intn(600)
		p.TimeInMarina = &minutes
	}
	if rng.Intn(2) == 0 {
		boats := []models.StateOfBoat{models.StateOfBoatMoored, models.StateOfBoatTransiting}
		b := boats[rng.Intn(len(boats))]
		p.StateOfBoat = &b
	}
	if rng.Intn(2) == 0 {
		w := rng.Intn(2) == 0
		p.WeirdState = &w
	}
	return p
}

func randIdentifier(rng *rand.Rand) string {
	letters := []byte("ABCDEFGHIJ0123456789*")
	out := make([]byte, 6)
	for i := range out {
		out[i] = letters[rng.Intn(len(letters))]
	}
	return string(out)
}

// Two concurrent patches on the same state must produce one of the two
// sequential orderings, never an interleaving.
func TestApplyPatch_ConcurrentPatchesEqualOneSequentialOrder(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	for i := 0; i < 100; i++ {
		store := newMemStateStore()
		r := newTestReconciler(store, AlwaysOpenPolicy{})

		opened, err := r.OpenOrAttach(context.Background(), pass(1, "PZ1234", true, time.Now()))
		require.NoError(t, err)

		p1 := randomPatch(rng)
		p2 := randomPatch(rng)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := r.ApplyPatch(context.Background(), opened.ID, p1)
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, err := r.ApplyPatch(context.Background(), opened.ID, p2)
			assert.NoError(t, err)
		}()
		wg.Wait()

		got, err := store.GetState(context.Background(), opened.ID)
		require.NoError(t, err)
		got.EditTimestamp = nil

		order12 := p2.Apply(p1.Apply(*opened))
		order21 := p1.Apply(p2.Apply(*opened))
		order12.EditTimestamp = nil
		order21.EditTimestamp = nil

		if !assert.True(t, *got == order12 || *got == order21,
			"iteration %d: result %+v matches neither ordering", i, *got) {
			return
		}
	}
}
