package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	bookingserrors "carpool/internal/bookings/errors"
	"carpool/pkg/config"
	"carpool/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	CollectionName = "Bookings"
)

type mongoBookingRepository struct {
	cfg        *config.Config
	db         *mongo.Database
	collection *mongo.Collection
}

type BookingRepository interface {
	Create(ctx context.Context, booking *model.Booking) error
	FindByID(ctx context.Context, id string) (*model.Booking, error)
	FindByRide(ctx context.Context, rideID string, statuses []string) ([]*model.Booking, error)
	FindByPassenger(ctx context.Context, passengerID string, limit int, offset int64) ([]*model.Booking, error)
	CountByPassenger(ctx context.Context, passengerID string) (int64, error)
	FindActiveByRideAndPassenger(ctx context.Context, rideID string, passengerID string) (*model.Booking, error)
	FindLink(ctx context.Context, rideID string, userA string, userB string) (*model.Booking, error)
	UpdateStatus(ctx context.Context, id string, from []string, to string) error
	Delete(ctx context.Context, id string) error
	SumSeatsHeld(ctx context.Context, rideID string) (int, error)
	CancelAllForRide(ctx context.Context, rideID string) ([]*model.Booking, error)
	CompleteAllForRide(ctx context.Context, rideID string) ([]*model.Booking, error)
}

func NewMongoBookingRepository(cfg *config.Config) BookingRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoBookingRepository{
		cfg:        cfg,
		db:         db,
		collection: db.Collection(CollectionName),
	}
}

// withTimeout wraps the context with a timeout if not already in a transaction.
// SessionContext cannot be wrapped without breaking transaction semantics, so
// inside a transaction the context is returned unchanged with a no-op cancel.
func (r *mongoBookingRepository) withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.(mongo.SessionContext); ok {
		return ctx, func() {}
	}

	deadline, hasDeadline := ctx.Deadline()
	if !hasDeadline {
		return context.WithTimeout(ctx, timeout)
	}

	remaining := time.Until(deadline)
	if remaining < timeout {
		return context.WithTimeout(ctx, remaining)
	}

	return context.WithTimeout(ctx, timeout)
}

func (r *mongoBookingRepository) Create(ctx context.Context, booking *model.Booking) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	now := time.Now().UTC().Truncate(time.Millisecond)
	booking.CreatedAt = now
	booking.UpdatedAt = now

	result, err := r.collection.InsertOne(ctx, booking)
	if err != nil {
		return fmt.Errorf("failed to create booking: %w", err)
	}

	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		booking.ID = oid.Hex()
	}
	return nil
}

func (r *mongoBookingRepository) FindByID(ctx context.Context, id string) (*model.Booking, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", bookingserrors.ErrInvalidID, id)
	}

	var booking model.Booking
	err = r.collection.FindOne(ctx, bson.M{"_id": objectID}).Decode(&booking)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, bookingserrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find booking: %w", err)
	}

	return &booking, nil
}

func (r *mongoBookingRepository) FindByRide(ctx context.Context, rideID string, statuses []string) ([]*model.Booking, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := bson.M{"ride_id": rideID}
	if len(statuses) > 0 {
		filter["status"] = bson.M{"$in": statuses}
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find bookings by ride: %w", err)
	}
	defer cursor.Close(ctx)

	var bookings []*model.Booking
	if err = cursor.All(ctx, &bookings); err != nil {
		return nil, fmt.Errorf("failed to decode bookings: %w", err)
	}

	return bookings, nil
}

func (r *mongoBookingRepository) FindByPassenger(ctx context.Context, passengerID string, limit int, offset int64) ([]*model.Booking, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit)).
		SetSkip(offset)

	cursor, err := r.collection.Find(ctx, bson.M{"passenger_id": passengerID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find bookings by passenger: %w", err)
	}
	defer cursor.Close(ctx)

	var bookings []*model.Booking
	if err = cursor.All(ctx, &bookings); err != nil {
		return nil, fmt.Errorf("failed to decode bookings: %w", err)
	}

	return bookings, nil
}

func (r *mongoBookingRepository) CountByPassenger(ctx context.Context, passengerID string) (int64, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	count, err := r.collection.CountDocuments(ctx, bson.M{"passenger_id": passengerID})
	if err != nil {
		return 0, fmt.Errorf("failed to count bookings: %w", err)
	}

	return count, nil
}

// FindActiveByRideAndPassenger returns the passenger's seat-holding booking
// on the ride, or ErrNotFound.
func (r *mongoBookingRepository) FindActiveByRideAndPassenger(ctx context.Context, rideID string, passengerID string) (*model.Booking, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := bson.M{
		"ride_id":      rideID,
		"passenger_id": passengerID,
		"status":       bson.M{"$in": model.SeatHoldingStatuses()},
	}

	var booking model.Booking
	err := r.collection.FindOne(ctx, filter).Decode(&booking)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, bookingserrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find booking: %w", err)
	}

	return &booking, nil
}

// FindLink returns a booking on the ride connecting the two users in either
// direction, regardless of booking status. The chat gate uses it: a
// cancelled booking still proves the pair had a conversation to read.
func (r *mongoBookingRepository) FindLink(ctx context.Context, rideID string, userA string, userB string) (*model.Booking, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := bson.M{
		"ride_id": rideID,
		"$or": []bson.M{
			{"passenger_id": userA, "driver_id": userB},
			{"passenger_id": userB, "driver_id": userA},
		},
	}
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}})

	var booking model.Booking
	err := r.collection.FindOne(ctx, filter, opts).Decode(&booking)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, bookingserrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find booking link: %w", err)
	}

	return &booking, nil
}

// UpdateStatus performs a guarded transition: the write matches only when
// the current status is in the allowed source set.
func (r *mongoBookingRepository) UpdateStatus(ctx context.Context, id string, from []string, to string) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("%w: %s", bookingserrors.ErrInvalidID, id)
	}

	filter := bson.M{
		"_id":    objectID,
		"status": bson.M{"$in": from},
	}
	update := bson.M{
		"$set": bson.M{
			"status":     to,
			"updated_at": time.Now().UTC().Truncate(time.Millisecond),
		},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to update booking status: %w", err)
	}

	if result.MatchedCount == 0 {
		if _, findErr := r.FindByID(ctx, id); findErr != nil {
			return findErr
		}
		return bookingserrors.ErrStateConflict
	}

	return nil
}

func (r *mongoBookingRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("%w: %s", bookingserrors.ErrInvalidID, id)
	}

	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": objectID})
	if err != nil {
		return fmt.Errorf("failed to delete booking: %w", err)
	}

	if result.DeletedCount == 0 {
		return bookingserrors.ErrNotFound
	}

	return nil
}

// SumSeatsHeld totals the seats of pending and confirmed bookings on the
// ride. The ride lifecycle uses it to audit the seat counter.
func (r *mongoBookingRepository) SumSeatsHeld(ctx context.Context, rideID string) (int, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"ride_id": rideID,
			"status":  bson.M{"$in": model.SeatHoldingStatuses()},
		}}},
		{{Key: "$group", Value: bson.M{
			"_id":   nil,
			"seats": bson.M{"$sum": "$seats_booked"},
		}}},
	}

	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return 0, fmt.Errorf("failed to sum held seats: %w", err)
	}
	defer cursor.Close(ctx)

	var results []struct {
		Seats int `bson:"seats"`
	}
	if err = cursor.All(ctx, &results); err != nil {
		return 0, fmt.Errorf("failed to decode held seats: %w", err)
	}

	if len(results) == 0 {
		return 0, nil
	}
	return results[0].Seats, nil
}

// CancelAllForRide moves every seat-holding booking on the ride to
// cancelled and returns the bookings as they were before the write, so the
// caller can notify their passengers. Runs inside the ride-cancellation
// transaction.
func (r *mongoBookingRepository) CancelAllForRide(ctx context.Context, rideID string) ([]*model.Booking, error) {
	return r.bulkTransition(ctx, rideID, model.SeatHoldingStatuses(), model.BookingStatusCancelled)
}

// CompleteAllForRide settles the confirmed bookings of a finished ride.
func (r *mongoBookingRepository) CompleteAllForRide(ctx context.Context, rideID string) ([]*model.Booking, error) {
	return r.bulkTransition(ctx, rideID, []string{model.BookingStatusConfirmed}, model.BookingStatusCompleted)
}

func (r *mongoBookingRepository) bulkTransition(ctx context.Context, rideID string, from []string, to string) ([]*model.Booking, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	affected, err := r.FindByRide(ctx, rideID, from)
	if err != nil {
		return nil, err
	}
	if len(affected) == 0 {
		return nil, nil
	}

	filter := bson.M{
		"ride_id": rideID,
		"status":  bson.M{"$in": from},
	}
	update := bson.M{
		"$set": bson.M{
			"status":     to,
			"updated_at": time.Now().UTC().Truncate(time.Millisecond),
		},
	}

	if _, err := r.collection.UpdateMany(ctx, filter, update); err != nil {
		return nil, fmt.Errorf("failed to bulk-update bookings: %w", err)
	}

	return affected, nil
}

