package service

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	bookingserrors "carpool/internal/bookings/errors"
	"carpool/internal/notify"
	rideserrors "carpool/internal/rides/errors"
	"carpool/pkg/config"
	apperrors "carpool/pkg/errors"
	"carpool/pkg/logger"
	"carpool/pkg/model"
)

const (
	driverID   = "64b0c5f2e1a4d3b2c1a4d3b3"
	passengerA = "64b0c5f2e1a4d3b2c1a4d3a1"
	passengerB = "64b0c5f2e1a4d3b2c1a4d3a2"
	rideID     = "64b0c5f2e1a4d3b2c1a4d3b2"
)

// memoryBookingRepository keeps bookings in a map so concurrent create
// attempts exercise the real insert/reserve/rollback sequence.
type memoryBookingRepository struct {
	mu       sync.Mutex
	seq      int
	bookings map[string]*model.Booking
}

func newMemoryBookingRepository() *memoryBookingRepository {
	return &memoryBookingRepository{bookings: make(map[string]*model.Booking)}
}

func (m *memoryBookingRepository) Create(ctx context.Context, booking *model.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	booking.ID = fmt.Sprintf("booking-%d", m.seq)
	booking.CreatedAt = time.Now().UTC()
	copied := *booking
	m.bookings[booking.ID] = &copied
	return nil
}

func (m *memoryBookingRepository) FindByID(ctx context.Context, id string) (*model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return nil, bookingserrors.ErrNotFound
	}
	copied := *b
	return &copied, nil
}

func (m *memoryBookingRepository) FindByRide(ctx context.Context, rideID string, statuses []string) ([]*model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Booking
	for _, b := range m.bookings {
		if b.RideID != rideID {
			continue
		}
		if statuses != nil && !contains(statuses, b.Status) {
			continue
		}
		copied := *b
		out = append(out, &copied)
	}
	return out, nil
}

func (m *memoryBookingRepository) FindByPassenger(ctx context.Context, passengerID string, limit int, offset int64) ([]*model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Booking
	for _, b := range m.bookings {
		if b.PassengerID == passengerID {
			copied := *b
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (m *memoryBookingRepository) CountByPassenger(ctx context.Context, passengerID string) (int64, error) {
	bookings, _ := m.FindByPassenger(ctx, passengerID, 0, 0)
	return int64(len(bookings)), nil
}

func (m *memoryBookingRepository) FindActiveByRideAndPassenger(ctx context.Context, rideID string, passengerID string) (*model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.bookings {
		if b.RideID == rideID && b.PassengerID == passengerID && b.HoldsSeats() {
			copied := *b
			return &copied, nil
		}
	}
	return nil, bookingserrors.ErrNotFound
}

func (m *memoryBookingRepository) FindLink(ctx context.Context, rideID string, userA string, userB string) (*model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.bookings {
		if b.RideID != rideID {
			continue
		}
		if (b.PassengerID == userA && b.DriverID == userB) || (b.PassengerID == userB && b.DriverID == userA) {
			copied := *b
			return &copied, nil
		}
	}
	return nil, bookingserrors.ErrNotFound
}

func (m *memoryBookingRepository) UpdateStatus(ctx context.Context, id string, from []string, to string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return bookingserrors.ErrNotFound
	}
	if !contains(from, b.Status) {
		return bookingserrors.ErrStateConflict
	}
	b.Status = to
	return nil
}

func (m *memoryBookingRepository) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.bookings[id]; !ok {
		return bookingserrors.ErrNotFound
	}
	delete(m.bookings, id)
	return nil
}

func (m *memoryBookingRepository) SumSeatsHeld(ctx context.Context, rideID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, b := range m.bookings {
		if b.RideID == rideID && b.HoldsSeats() {
			total += b.SeatsBooked
		}
	}
	return total, nil
}

func (m *memoryBookingRepository) CancelAllForRide(ctx context.Context, rideID string) ([]*model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var affected []*model.Booking
	for _, b := range m.bookings {
		if b.RideID == rideID && b.HoldsSeats() {
			copied := *b
			affected = append(affected, &copied)
			b.Status = model.BookingStatusCancelled
		}
	}
	return affected, nil
}

func (m *memoryBookingRepository) CompleteAllForRide(ctx context.Context, rideID string) ([]*model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var affected []*model.Booking
	for _, b := range m.bookings {
		if b.RideID == rideID && b.Status == model.BookingStatusConfirmed {
			copied := *b
			affected = append(affected, &copied)
			b.Status = model.BookingStatusCompleted
		}
	}
	return affected, nil
}


// memoryRideStore guards its seat counter with a mutex, mirroring the
// atomicity of the document-level reserve.
type memoryRideStore struct {
	mu   sync.Mutex
	ride *model.Ride
}

func (m *memoryRideStore) FindByID(ctx context.Context, id string) (*model.Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ride == nil || m.ride.ID != id {
		return nil, rideserrors.ErrNotFound
	}
	copied := *m.ride
	return &copied, nil
}

func (m *memoryRideStore) ReserveSeats(ctx context.Context, rideID string, seats int, bookingID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ride == nil || m.ride.ID != rideID ||
		m.ride.Status != model.RideStatusActive || m.ride.SeatsAvailable < seats {
		return rideserrors.ErrSeatConflict
	}
	m.ride.SeatsAvailable -= seats
	m.ride.BookingIDs = append(m.ride.BookingIDs, bookingID)
	return nil
}

func (m *memoryRideStore) ReleaseSeats(ctx context.Context, rideID string, seats int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ride == nil || m.ride.ID != rideID {
		return rideserrors.ErrNotFound
	}
	if m.ride.SeatsAvailable+seats > m.ride.TotalSeats {
		return rideserrors.ErrSeatOverflow
	}
	m.ride.SeatsAvailable += seats
	return nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
	users  []string
}

func (n *recordingNotifier) Notify(ctx context.Context, userID string, event notify.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.users = append(n.users, userID)
	n.events = append(n.events, event)
}

func (n *recordingNotifier) NotifyMany(ctx context.Context, userIDs []string, event notify.Event) {
	for _, id := range userIDs {
		n.Notify(ctx, id, event)
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func testConfig() *config.Config {
	return &config.Config{
		Log:                logger.New(logger.Config{Level: logger.ERROR, Output: io.Discard}),
		MaxSeatsPerBooking: 8,
	}
}

func requestRide(seats int) *model.Ride {
	return &model.Ride{
		ID:             rideID,
		DriverID:       driverID,
		FromCity:       "Austin",
		ToCity:         "Dallas",
		SeatsAvailable: seats,
		TotalSeats:     seats,
		BookingMode:    model.BookingModeRequest,
		Status:         model.RideStatusActive,
	}
}

func TestCreateBooking(t *testing.T) {
	tests := []struct {
		name       string
		ride       *model.Ride
		passenger  string
		seats      int
		wantCode   string
		wantStatus string
	}{
		{
			name:       "request mode starts pending",
			ride:       requestRide(4),
			passenger:  passengerA,
			seats:      2,
			wantStatus: model.BookingStatusPending,
		},
		{
			name: "direct mode starts confirmed",
			ride: func() *model.Ride {
				r := requestRide(4)
				r.BookingMode = model.BookingModeDirect
				return r
			}(),
			passenger:  passengerA,
			seats:      1,
			wantStatus: model.BookingStatusConfirmed,
		},
		{
			name:      "driver cannot book own ride",
			ride:      requestRide(4),
			passenger: driverID,
			seats:     1,
			wantCode:  apperrors.CodeForbidden,
		},
		{
			name:      "zero seats",
			ride:      requestRide(4),
			passenger: passengerA,
			seats:     0,
			wantCode:  apperrors.CodeValidation,
		},
		{
			name:      "seats above per-booking cap",
			ride:      requestRide(20),
			passenger: passengerA,
			seats:     9,
			wantCode:  apperrors.CodeValidation,
		},
		{
			name:      "more seats than available",
			ride:      requestRide(2),
			passenger: passengerA,
			seats:     3,
			wantCode:  apperrors.CodeCapacity,
		},
		{
			name: "ride not active",
			ride: func() *model.Ride {
				r := requestRide(4)
				r.Status = model.RideStatusPaused
				return r
			}(),
			passenger: passengerA,
			seats:     1,
			wantCode:  apperrors.CodeInvalidState,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMemoryBookingRepository()
			rides := &memoryRideStore{ride: tt.ride}
			notifier := &recordingNotifier{}
			svc := NewBookingService(repo, rides, notifier, testConfig())

			booking, err := svc.Create(context.Background(), tt.passenger, rideID, tt.seats)
			if tt.wantCode != "" {
				appErr := apperrors.AsAppError(err)
				if appErr.Code != tt.wantCode {
					t.Fatalf("Create() error code = %q, want %q", appErr.Code, tt.wantCode)
				}
				if len(repo.bookings) != 0 {
					t.Errorf("failed create left %d booking(s) behind", len(repo.bookings))
				}
				return
			}

			if err != nil {
				t.Fatalf("Create() unexpected error: %v", err)
			}
			if booking.Status != tt.wantStatus {
				t.Errorf("Status = %q, want %q", booking.Status, tt.wantStatus)
			}
			if booking.DriverID != driverID {
				t.Errorf("DriverID = %q, want denormalized %q", booking.DriverID, driverID)
			}
			if rides.ride.SeatsAvailable != tt.ride.TotalSeats-tt.seats {
				t.Errorf("SeatsAvailable = %d, want %d", rides.ride.SeatsAvailable, tt.ride.TotalSeats-tt.seats)
			}
			if len(notifier.users) != 1 || notifier.users[0] != driverID {
				t.Errorf("notified users = %v, want [%s]", notifier.users, driverID)
			}
		})
	}
}

func TestCreateBookingDuplicate(t *testing.T) {
	repo := newMemoryBookingRepository()
	rides := &memoryRideStore{ride: requestRide(4)}
	svc := NewBookingService(repo, rides, &recordingNotifier{}, testConfig())

	if _, err := svc.Create(context.Background(), passengerA, rideID, 1); err != nil {
		t.Fatalf("first Create() unexpected error: %v", err)
	}

	_, err := svc.Create(context.Background(), passengerA, rideID, 1)
	if appErr := apperrors.AsAppError(err); appErr.Code != apperrors.CodeConflict {
		t.Errorf("second Create() error code = %q, want %q", appErr.Code, apperrors.CodeConflict)
	}
}

// Two passengers race for the last seat: exactly one booking must survive
// and the counter must never go negative.
func TestCreateBookingLastSeatRace(t *testing.T) {
	repo := newMemoryBookingRepository()
	rides := &memoryRideStore{ride: requestRide(1)}
	svc := NewBookingService(repo, rides, &recordingNotifier{}, testConfig())

	var wg sync.WaitGroup
	errs := make([]error, 2)
	passengers := []string{passengerA, passengerB}

	for i := range passengers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Create(context.Background(), passengers[i], rideID, 1)
		}(i)
	}
	wg.Wait()

	var won, lost int
	for _, err := range errs {
		if err == nil {
			won++
			continue
		}
		lost++
		appErr := apperrors.AsAppError(err)
		if appErr.Code != apperrors.CodeCapacity {
			t.Errorf("loser error code = %q, want %q", appErr.Code, apperrors.CodeCapacity)
		}
	}

	if won != 1 || lost != 1 {
		t.Fatalf("won = %d, lost = %d, want exactly one of each", won, lost)
	}
	if rides.ride.SeatsAvailable != 0 {
		t.Errorf("SeatsAvailable = %d, want 0", rides.ride.SeatsAvailable)
	}
	if len(repo.bookings) != 1 {
		t.Errorf("surviving bookings = %d, want 1 (loser must be rolled back)", len(repo.bookings))
	}
}

func TestConfirmBooking(t *testing.T) {
	repo := newMemoryBookingRepository()
	rides := &memoryRideStore{ride: requestRide(4)}
	notifier := &recordingNotifier{}
	svc := NewBookingService(repo, rides, notifier, testConfig())

	booking, err := svc.Create(context.Background(), passengerA, rideID, 2)
	if err != nil {
		t.Fatalf("Create() unexpected error: %v", err)
	}

	if err := svc.Confirm(context.Background(), passengerA, booking.ID); err == nil {
		t.Fatal("Confirm() by passenger expected forbidden error")
	}

	if err := svc.Confirm(context.Background(), driverID, booking.ID); err != nil {
		t.Fatalf("Confirm() unexpected error: %v", err)
	}

	// Confirming an already confirmed booking is a state error.
	err = svc.Confirm(context.Background(), driverID, booking.ID)
	if appErr := apperrors.AsAppError(err); appErr.Code != apperrors.CodeInvalidState {
		t.Errorf("second Confirm() error code = %q, want %q", appErr.Code, apperrors.CodeInvalidState)
	}
}

func TestRejectBookingReleasesSeats(t *testing.T) {
	tests := []struct {
		name    string
		confirm bool
	}{
		{name: "pending booking"},
		{name: "confirmed booking", confirm: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMemoryBookingRepository()
			rides := &memoryRideStore{ride: requestRide(4)}
			svc := NewBookingService(repo, rides, &recordingNotifier{}, testConfig())

			booking, err := svc.Create(context.Background(), passengerA, rideID, 3)
			if err != nil {
				t.Fatalf("Create() unexpected error: %v", err)
			}
			if rides.ride.SeatsAvailable != 1 {
				t.Fatalf("SeatsAvailable = %d, want 1", rides.ride.SeatsAvailable)
			}
			if tt.confirm {
				if err := svc.Confirm(context.Background(), driverID, booking.ID); err != nil {
					t.Fatalf("Confirm() unexpected error: %v", err)
				}
			}

			if err := svc.Reject(context.Background(), driverID, booking.ID); err != nil {
				t.Fatalf("Reject() unexpected error: %v", err)
			}
			if rides.ride.SeatsAvailable != 4 {
				t.Errorf("SeatsAvailable after reject = %d, want 4", rides.ride.SeatsAvailable)
			}

			// The seats are gone either way, so a second rejection is a
			// state error.
			err = svc.Reject(context.Background(), driverID, booking.ID)
			if appErr := apperrors.AsAppError(err); appErr.Code != apperrors.CodeInvalidState {
				t.Errorf("second Reject() error code = %q, want %q", appErr.Code, apperrors.CodeInvalidState)
			}
		})
	}
}

func TestCancelBookingReleasesOnce(t *testing.T) {
	repo := newMemoryBookingRepository()
	rides := &memoryRideStore{ride: requestRide(4)}
	notifier := &recordingNotifier{}
	svc := NewBookingService(repo, rides, notifier, testConfig())

	booking, err := svc.Create(context.Background(), passengerA, rideID, 2)
	if err != nil {
		t.Fatalf("Create() unexpected error: %v", err)
	}

	if err := svc.Cancel(context.Background(), passengerB, booking.ID); err == nil {
		t.Fatal("Cancel() by another passenger expected forbidden error")
	}

	if err := svc.Cancel(context.Background(), passengerA, booking.ID); err != nil {
		t.Fatalf("Cancel() unexpected error: %v", err)
	}
	if rides.ride.SeatsAvailable != 4 {
		t.Errorf("SeatsAvailable after cancel = %d, want 4", rides.ride.SeatsAvailable)
	}

	// The second cancel reports not-found and must not release seats again.
	err = svc.Cancel(context.Background(), passengerA, booking.ID)
	if appErr := apperrors.AsAppError(err); appErr.Code != apperrors.CodeNotFound {
		t.Fatalf("repeated Cancel() error code = %q, want %q", appErr.Code, apperrors.CodeNotFound)
	}
	if rides.ride.SeatsAvailable != 4 {
		t.Errorf("SeatsAvailable after repeated cancel = %d, want 4", rides.ride.SeatsAvailable)
	}
}

func TestCancelCompletedBooking(t *testing.T) {
	repo := newMemoryBookingRepository()
	rides := &memoryRideStore{ride: requestRide(4)}
	svc := NewBookingService(repo, rides, &recordingNotifier{}, testConfig())

	booking, err := svc.Create(context.Background(), passengerA, rideID, 1)
	if err != nil {
		t.Fatalf("Create() unexpected error: %v", err)
	}
	repo.bookings[booking.ID].Status = model.BookingStatusCompleted

	err = svc.Cancel(context.Background(), passengerA, booking.ID)
	if appErr := apperrors.AsAppError(err); appErr.Code != apperrors.CodeInvalidState {
		t.Errorf("Cancel() of completed booking error code = %q, want %q", appErr.Code, apperrors.CodeInvalidState)
	}
}

// Walks one ride through its full life: request, confirm, a rejection, a
// passenger cancellation, and final settlement, checking the counter at
// every step.
func TestBookingLifecycleScenario(t *testing.T) {
	repo := newMemoryBookingRepository()
	rides := &memoryRideStore{ride: requestRide(4)}
	notifier := &recordingNotifier{}
	svc := NewBookingService(repo, rides, notifier, testConfig())
	ctx := context.Background()

	first, err := svc.Create(ctx, passengerA, rideID, 2)
	if err != nil {
		t.Fatalf("Create(A) unexpected error: %v", err)
	}
	second, err := svc.Create(ctx, passengerB, rideID, 2)
	if err != nil {
		t.Fatalf("Create(B) unexpected error: %v", err)
	}
	if rides.ride.SeatsAvailable != 0 {
		t.Fatalf("SeatsAvailable = %d, want 0", rides.ride.SeatsAvailable)
	}

	if err := svc.Confirm(ctx, driverID, first.ID); err != nil {
		t.Fatalf("Confirm(A) unexpected error: %v", err)
	}
	if err := svc.Reject(ctx, driverID, second.ID); err != nil {
		t.Fatalf("Reject(B) unexpected error: %v", err)
	}
	if rides.ride.SeatsAvailable != 2 {
		t.Fatalf("SeatsAvailable after reject = %d, want 2", rides.ride.SeatsAvailable)
	}

	held, err := repo.SumSeatsHeld(ctx, rideID)
	if err != nil {
		t.Fatalf("SumSeatsHeld() unexpected error: %v", err)
	}
	if held != 2 {
		t.Errorf("held seats = %d, want 2", held)
	}
	if held+rides.ride.SeatsAvailable != rides.ride.TotalSeats {
		t.Errorf("ledger invariant broken: held %d + available %d != total %d",
			held, rides.ride.SeatsAvailable, rides.ride.TotalSeats)
	}

	settled, err := repo.CompleteAllForRide(ctx, rideID)
	if err != nil {
		t.Fatalf("CompleteAllForRide() unexpected error: %v", err)
	}
	if len(settled) != 1 || settled[0].PassengerID != passengerA {
		t.Errorf("settled = %v, want A's booking only", settled)
	}
}
