package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"workshop-emergency-backend/internal/model"
	"workshop-emergency-backend/internal/store"
)

const systemUser = int64(1)

// recordedNote is one captured notification.
type recordedNote struct {
	Sender   int64
	Receiver int64
	Message  string
	Category string
}

// fakeNotifier records notifications instead of delivering them.
type fakeNotifier struct {
	mu    sync.Mutex
	notes []recordedNote
}

func (f *fakeNotifier) Notify(_ context.Context, senderUserID, receiverUserID int64, message, category string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notes = append(f.notes, recordedNote{senderUserID, receiverUserID, message, category})
}

func (f *fakeNotifier) byCategory(category string) []recordedNote {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []recordedNote
	for _, n := range f.notes {
		if n.Category == category {
			out = append(out, n)
		}
	}
	return out
}

// testEnv is a controller wired to a fresh in-memory database with one
// customer (user 10) and three workshops (owners 101..103).
type testEnv struct {
	store    store.Store
	notifier *fakeNotifier
	ctrl     *Controller
	customer model.Customer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	name := strings.ReplaceAll(t.Name(), "/", "_")
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&model.Customer{},
		&model.Vehicle{},
		&model.EmergencyService{},
		&model.Workshop{},
		&model.WorkshopService{},
		&model.EmergencyBooking{},
		&model.BookingOffer{},
		&model.Notification{},
		&model.PushSubscription{},
	))
	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
	})

	customer := model.Customer{UserID: 10, Name: "Lina"}
	require.NoError(t, db.Create(&customer).Error)
	for i := int64(1); i <= 3; i++ {
		require.NoError(t, db.Create(&model.Workshop{
			ID:          i,
			OwnerUserID: 100 + i,
			Name:        fmt.Sprintf("Workshop %d", i),
			City:        "Ramallah",
		}).Error)
	}

	s := store.NewGormStore(db)
	notifier := &fakeNotifier{}
	return &testEnv{
		store:    s,
		notifier: notifier,
		ctrl:     NewController(s, notifier, 5*time.Minute, systemUser),
		customer: customer,
	}
}

func (e *testEnv) createBooking(t *testing.T, workshopIDs ...int64) int64 {
	t.Helper()
	bookingID, err := e.ctrl.Create(context.Background(), CreateRequest{
		CustomerID:  e.customer.ID,
		VehicleID:   1,
		ServiceID:   1,
		Notes:       "engine will not start",
		Address:     "Main St, Ramallah",
		Price:       80,
		WorkshopIDs: workshopIDs,
	})
	require.NoError(t, err)
	return bookingID
}

func (e *testEnv) offers(t *testing.T, bookingID int64) []model.BookingOffer {
	t.Helper()
	booking, err := e.store.GetBooking(context.Background(), bookingID)
	require.NoError(t, err)
	return booking.Offers
}

func (e *testEnv) pendingCount(t *testing.T, bookingID int64) int64 {
	t.Helper()
	var count int64
	require.NoError(t, e.store.DB().Model(&model.BookingOffer{}).
		Where("booking_id = ? AND status = ?", bookingID, model.OfferPending).
		Count(&count).Error)
	return count
}

func TestCreate_ActivatesFirstCandidateAndNotifies(t *testing.T) {
	env := newTestEnv(t)
	bookingID := env.createBooking(t, 1, 2, 3)

	offers := env.offers(t, bookingID)
	require.Len(t, offers, 3)
	assert.Equal(t, model.OfferPending, offers[0].Status)
	assert.Equal(t, model.OfferUnactivated, offers[1].Status)
	assert.Equal(t, model.OfferUnactivated, offers[2].Status)

	// Workshop 1's owner got the incoming request, the customer got the
	// waiting notice.
	requests := env.notifier.byCategory(CategoryRequest)
	require.Len(t, requests, 1)
	assert.Equal(t, int64(101), requests[0].Receiver)

	statuses := env.notifier.byCategory(CategoryStatus)
	require.Len(t, statuses, 1)
	assert.Equal(t, int64(10), statuses[0].Receiver)
}

func TestCreate_EmptyCandidateList(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.ctrl.Create(context.Background(), CreateRequest{
		CustomerID: env.customer.ID,
		Address:    "Main St",
	})
	assert.ErrorIs(t, err, store.ErrInvalidCandidateList)
}

func TestCreate_UnknownCustomer(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.ctrl.Create(context.Background(), CreateRequest{
		CustomerID:  999,
		Address:     "Main St",
		WorkshopIDs: []int64{1},
	})
	assert.ErrorIs(t, err, store.ErrCustomerNotFound)
}

func TestRespond_RejectCascadesToNext(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	bookingID := env.createBooking(t, 1, 2, 3)
	offers := env.offers(t, bookingID)

	status, err := env.ctrl.Respond(ctx, offers[0].ID, ActionReject)
	require.NoError(t, err)
	assert.Equal(t, model.BookingRequested, status)

	offers = env.offers(t, bookingID)
	assert.Equal(t, model.OfferRejected, offers[0].Status)
	require.NotNil(t, offers[0].ResponseTime)
	assert.Equal(t, model.OfferPending, offers[1].Status)
	assert.Equal(t, model.OfferUnactivated, offers[2].Status)
	assert.EqualValues(t, 1, env.pendingCount(t, bookingID))

	// Workshop 2's owner was told it is now its turn.
	requests := env.notifier.byCategory(CategoryRequest)
	require.Len(t, requests, 2)
	assert.Equal(t, int64(102), requests[1].Receiver)
}

func TestRespond_AcceptConfirmsBookingAndClosesQueue(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	bookingID := env.createBooking(t, 1, 2, 3)
	offers := env.offers(t, bookingID)

	// Candidate 1 declines, candidate 2 takes the job.
	_, err := env.ctrl.Respond(ctx, offers[0].ID, ActionReject)
	require.NoError(t, err)
	offers = env.offers(t, bookingID)

	status, err := env.ctrl.Respond(ctx, offers[1].ID, ActionAccept)
	require.NoError(t, err)
	assert.Equal(t, model.BookingConfirmed, status)

	booking, err := env.store.GetBooking(ctx, bookingID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingConfirmed, booking.Status)
	require.NotNil(t, booking.ConfirmedWorkshopID)
	assert.Equal(t, int64(2), *booking.ConfirmedWorkshopID)

	// Candidate 3 was never Pending but is no longer eligible either.
	assert.Equal(t, model.OfferAccepted, booking.Offers[1].Status)
	assert.Equal(t, model.OfferRejected, booking.Offers[2].Status)
	assert.Zero(t, env.pendingCount(t, bookingID))

	// Customer heard about the confirmation.
	statuses := env.notifier.byCategory(CategoryStatus)
	last := statuses[len(statuses)-1]
	assert.Equal(t, int64(10), last.Receiver)
	assert.Contains(t, last.Message, "accepted")
}

func TestRespond_DoubleResponseFails(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	bookingID := env.createBooking(t, 1)
	offers := env.offers(t, bookingID)

	_, err := env.ctrl.Respond(ctx, offers[0].ID, ActionAccept)
	require.NoError(t, err)

	// Same answer again, and the opposite answer: both are stale.
	_, err = env.ctrl.Respond(ctx, offers[0].ID, ActionAccept)
	assert.ErrorIs(t, err, ErrNoPendingRequest)
	_, err = env.ctrl.Respond(ctx, offers[0].ID, ActionReject)
	assert.ErrorIs(t, err, ErrNoPendingRequest)

	// State did not move.
	booking, err := env.store.GetBooking(ctx, bookingID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingConfirmed, booking.Status)
	assert.Equal(t, model.OfferAccepted, booking.Offers[0].Status)
}

func TestRespond_InvalidAction(t *testing.T) {
	env := newTestEnv(t)
	bookingID := env.createBooking(t, 1)
	offers := env.offers(t, bookingID)

	_, err := env.ctrl.Respond(context.Background(), offers[0].ID, Action("maybe"))
	assert.ErrorIs(t, err, ErrInvalidAction)
}

func TestRespond_UnknownOffer(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.ctrl.Respond(context.Background(), 12345, ActionAccept)
	assert.ErrorIs(t, err, ErrNoPendingRequest)
}

func TestRespond_AfterExpiryIsTreatedAsSkip(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	bookingID := env.createBooking(t, 1, 2)
	offers := env.offers(t, bookingID)

	// The window lapsed before the sweep got to it.
	past := time.Now().UTC().Add(-time.Minute)
	require.NoError(t, env.store.DB().Model(&model.BookingOffer{}).
		Where("id = ?", offers[0].ID).
		Update("expires_at", past).Error)

	_, err := env.ctrl.Respond(ctx, offers[0].ID, ActionAccept)
	assert.ErrorIs(t, err, ErrNoPendingRequest)

	// The late answer advanced the cascade instead of winning the job.
	offers = env.offers(t, bookingID)
	assert.Equal(t, model.OfferSkipped, offers[0].Status)
	assert.Equal(t, model.OfferPending, offers[1].Status)
}

func TestSkip_AdvancesQueue(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	bookingID := env.createBooking(t, 1, 2)

	result, err := env.ctrl.Skip(ctx, bookingID, env.customer.UserID)
	require.NoError(t, err)
	require.NotNil(t, result.Activated)
	assert.False(t, result.Exhausted)
	assert.Equal(t, int64(2), result.Activated.WorkshopID)
	assert.Equal(t, model.OfferSkipped, result.Skipped.Status)

	skipNotes := env.notifier.byCategory(CategorySkipped)
	require.Len(t, skipNotes, 1)
	assert.Equal(t, int64(101), skipNotes[0].Receiver)
}

func TestSkip_LastCandidateExhaustsBooking(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	bookingID := env.createBooking(t, 1)

	result, err := env.ctrl.Skip(ctx, bookingID, env.customer.UserID)
	require.NoError(t, err)
	assert.True(t, result.Exhausted)
	assert.Nil(t, result.Activated)

	booking, err := env.store.GetBooking(ctx, bookingID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingExhausted, booking.Status)
	assert.Nil(t, booking.ConfirmedWorkshopID)

	// Customer was told nobody is available.
	statuses := env.notifier.byCategory(CategoryStatus)
	last := statuses[len(statuses)-1]
	assert.Equal(t, int64(10), last.Receiver)
	assert.Contains(t, last.Message, "No workshop is available")

	// Terminal booking: further skips are conflicts.
	_, err = env.ctrl.Skip(ctx, bookingID, env.customer.UserID)
	assert.ErrorIs(t, err, ErrNoPendingRequest)
}

func TestSkip_SequentialExhaustion(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	bookingID := env.createBooking(t, 1, 2, 3)

	for i := 0; i < 2; i++ {
		result, err := env.ctrl.Skip(ctx, bookingID, env.customer.UserID)
		require.NoError(t, err)
		assert.False(t, result.Exhausted)
		assert.EqualValues(t, 1, env.pendingCount(t, bookingID))
	}

	result, err := env.ctrl.Skip(ctx, bookingID, env.customer.UserID)
	require.NoError(t, err)
	assert.True(t, result.Exhausted)

	booking, err := env.store.GetBooking(ctx, bookingID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingExhausted, booking.Status)
	for _, offer := range booking.Offers {
		assert.Equal(t, model.OfferSkipped, offer.Status)
	}
}

func TestExtend_RefreshesExpiryAndKeepsOfferLive(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	bookingID := env.createBooking(t, 1, 2)
	before := env.offers(t, bookingID)[0]

	newExpiry, err := env.ctrl.Extend(ctx, bookingID, env.customer.UserID)
	require.NoError(t, err)
	require.NotNil(t, before.ExpiresAt)
	assert.True(t, newExpiry.After(*before.ExpiresAt))

	extensions := env.notifier.byCategory(CategoryExtension)
	require.Len(t, extensions, 1)
	assert.Equal(t, int64(101), extensions[0].Receiver)

	// The offer is still Pending, so a subsequent accept succeeds.
	offers := env.offers(t, bookingID)
	status, err := env.ctrl.Respond(ctx, offers[0].ID, ActionAccept)
	require.NoError(t, err)
	assert.Equal(t, model.BookingConfirmed, status)
}

func TestExtend_NoPendingOffer(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	bookingID := env.createBooking(t, 1)
	offers := env.offers(t, bookingID)

	_, err := env.ctrl.Respond(ctx, offers[0].ID, ActionAccept)
	require.NoError(t, err)

	_, err = env.ctrl.Extend(ctx, bookingID, env.customer.UserID)
	assert.ErrorIs(t, err, ErrNoPendingRequest)
}

func TestCancel_StopsCascade(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	bookingID := env.createBooking(t, 1, 2, 3)

	require.NoError(t, env.ctrl.Cancel(ctx, bookingID, env.customer.UserID))

	booking, err := env.store.GetBooking(ctx, bookingID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingCancelled, booking.Status)
	assert.Zero(t, env.pendingCount(t, bookingID))

	// The queue is dead: no skip, extend or response can move it.
	_, err = env.ctrl.Skip(ctx, bookingID, env.customer.UserID)
	assert.ErrorIs(t, err, ErrNoPendingRequest)
	_, err = env.ctrl.Respond(ctx, booking.Offers[0].ID, ActionAccept)
	assert.ErrorIs(t, err, ErrNoPendingRequest)

	// Cancelling twice is a conflict.
	assert.ErrorIs(t, env.ctrl.Cancel(ctx, bookingID, env.customer.UserID), store.ErrInvalidTransition)
}

// brokenStore fails every offer resolution with a transport error.
type brokenStore struct {
	store.Store
	err error
}

func (b *brokenStore) ResolveOffer(context.Context, int64, model.OfferStatus, time.Time) (*store.ResolveOutcome, error) {
	return nil, b.err
}

func TestSkip_StoreFailureIsNotReportedAsSuccess(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	bookingID := env.createBooking(t, 1)

	broken := &brokenStore{Store: env.store, err: errors.New("connection reset")}
	ctrl := NewController(broken, env.notifier, 5*time.Minute, systemUser)

	result, err := ctrl.Skip(ctx, bookingID, env.customer.UserID)
	require.Error(t, err)
	assert.ErrorContains(t, err, "connection reset")
	assert.Nil(t, result)

	_, err = ctrl.Respond(ctx, env.offers(t, bookingID)[0].ID, ActionReject)
	require.Error(t, err)
	assert.ErrorContains(t, err, "connection reset")

	// Nothing moved: the booking keeps its pending offer, so the expiry
	// sweep finishes the job once the store recovers.
	booking, err := env.store.GetBooking(ctx, bookingID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingRequested, booking.Status)
	assert.EqualValues(t, 1, env.pendingCount(t, bookingID))
}

func TestRespondAndSkipRace_ExactlyOneWins(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// A single connection keeps SQLite reliable under concurrent writers;
	// the transitions still race at the controller level.
	sqlDB, err := env.store.DB().DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	bookingID := env.createBooking(t, 1, 2)
	offerID := env.offers(t, bookingID)[0].ID

	start := make(chan struct{})
	errs := make(chan error, 2)
	go func() {
		<-start
		_, err := env.ctrl.Respond(ctx, offerID, ActionAccept)
		errs <- err
	}()
	go func() {
		<-start
		_, err := env.ctrl.Skip(ctx, bookingID, env.customer.UserID)
		errs <- err
	}()
	close(start)

	var winners, conflicts int
	for i := 0; i < 2; i++ {
		switch err := <-errs; {
		case err == nil:
			winners++
		case errors.Is(err, ErrNoPendingRequest):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, winners, "exactly one side may win the offer")
	assert.Equal(t, 1, conflicts, "the loser must observe a state conflict")

	// Whichever side won, the ledger is consistent.
	booking, err := env.store.GetBooking(ctx, bookingID)
	require.NoError(t, err)
	first := booking.Offers[0]
	require.True(t, first.Status.Terminal())
	if first.Status == model.OfferAccepted {
		assert.Equal(t, model.BookingConfirmed, booking.Status)
		assert.Zero(t, env.pendingCount(t, bookingID))
	} else {
		assert.Equal(t, model.OfferSkipped, first.Status)
		assert.Equal(t, model.BookingRequested, booking.Status)
		assert.Equal(t, model.OfferPending, booking.Offers[1].Status)
		assert.EqualValues(t, 1, env.pendingCount(t, bookingID))
	}
}

func TestPendingInvariant_NeverMoreThanOne(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	bookingID := env.createBooking(t, 1, 2, 3)

	assert.EqualValues(t, 1, env.pendingCount(t, bookingID))

	offers := env.offers(t, bookingID)
	_, err := env.ctrl.Respond(ctx, offers[0].ID, ActionReject)
	require.NoError(t, err)
	assert.EqualValues(t, 1, env.pendingCount(t, bookingID))

	_, err = env.ctrl.Skip(ctx, bookingID, env.customer.UserID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, env.pendingCount(t, bookingID))

	offers = env.offers(t, bookingID)
	_, err = env.ctrl.Respond(ctx, offers[2].ID, ActionAccept)
	require.NoError(t, err)
	assert.Zero(t, env.pendingCount(t, bookingID))
}
