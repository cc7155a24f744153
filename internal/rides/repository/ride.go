package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	rideserrors "carpool/internal/rides/errors"
	"carpool/pkg/config"
	mongotx "carpool/pkg/db/mongo"
	"carpool/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	CollectionName = "Rides"
)

// SearchFilter narrows the public ride listing. Zero values mean "any".
type SearchFilter struct {
	FromCity string
	ToCity   string
	DateFrom *time.Time
	DateTo   *time.Time
	MinSeats int
	Statuses []string
}

type mongoRideRepository struct {
	cfg        *config.Config
	db         *mongo.Database
	collection *mongo.Collection
	txManager  mongotx.TransactionManager
}

type RideRepository interface {
	Create(ctx context.Context, ride *model.Ride) error
	FindByID(ctx context.Context, id string) (*model.Ride, error)
	Update(ctx context.Context, id string, ride *model.Ride) error
	SetSeatsAvailable(ctx context.Context, id string, seats int) error
	UpdateStatus(ctx context.Context, id string, from []string, to string) error
	ReserveSeats(ctx context.Context, rideID string, seats int, bookingID string) error
	ReleaseSeats(ctx context.Context, rideID string, seats int) error
	Search(ctx context.Context, filter *SearchFilter, limit int, offset int64) ([]*model.Ride, error)
	CountSearch(ctx context.Context, filter *SearchFilter) (int64, error)
	FindByDriver(ctx context.Context, driverID string, limit int, offset int64) ([]*model.Ride, error)
	CountByDriver(ctx context.Context, driverID string) (int64, error)
	ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error
}

func NewMongoRideRepository(cfg *config.Config) RideRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoRideRepository{
		cfg:        cfg,
		db:         db,
		collection: db.Collection(CollectionName),
		txManager:  mongotx.NewTransactionManager(cfg.Client.Mongo),
	}
}

// withTimeout wraps the context with a timeout if not already in a transaction.
// SessionContext cannot be wrapped without breaking transaction semantics, so
// inside a transaction the context is returned unchanged with a no-op cancel.
func (r *mongoRideRepository) withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
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

func (r *mongoRideRepository) Create(ctx context.Context, ride *model.Ride) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	now := time.Now().UTC().Truncate(time.Millisecond)
	ride.CreatedAt = now
	ride.UpdatedAt = now

	result, err := r.collection.InsertOne(ctx, ride)
	if err != nil {
		return fmt.Errorf("failed to create ride: %w", err)
	}

	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		ride.ID = oid.Hex()
	}
	return nil
}

func (r *mongoRideRepository) FindByID(ctx context.Context, id string) (*model.Ride, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", rideserrors.ErrInvalidID, id)
	}

	var ride model.Ride
	err = r.collection.FindOne(ctx, bson.M{"_id": objectID}).Decode(&ride)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, rideserrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find ride: %w", err)
	}

	return &ride, nil
}

// Update writes the driver-editable fields only. The seat counter and the
// status never move through this path: seats go through the ledger
// operations, status through UpdateStatus.
func (r *mongoRideRepository) Update(ctx context.Context, id string, ride *model.Ride) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("%w: %s", rideserrors.ErrInvalidID, id)
	}

	update := bson.M{
		"$set": bson.M{
			"pickup_time":      ride.PickupTime,
			"reach_time":       ride.ReachTime,
			"pickup_location":  ride.PickupLocation,
			"dropoff_location": ride.DropoffLocation,
			"stops":            ride.Stops,
			"price_per_seat":   ride.PricePerSeat,
			"luggage":          ride.Luggage,
			"instructions":     ride.Instructions,
			"preferences":      ride.Preferences,
			"booking_mode":     ride.BookingMode,
			"updated_at":       time.Now().UTC().Truncate(time.Millisecond),
		},
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": objectID}, update)
	if err != nil {
		return fmt.Errorf("failed to update ride: %w", err)
	}

	if result.MatchedCount == 0 {
		return rideserrors.ErrNotFound
	}

	return nil
}

func (r *mongoRideRepository) SetSeatsAvailable(ctx context.Context, id string, seats int) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("%w: %s", rideserrors.ErrInvalidID, id)
	}

	filter := bson.M{
		"_id":    objectID,
		"status": bson.M{"$in": []string{model.RideStatusActive, model.RideStatusPaused}},
		"$expr":  bson.M{"$lte": []any{seats, "$total_seats"}},
	}
	update := bson.M{
		"$set": bson.M{
			"seats_available": seats,
			"updated_at":      time.Now().UTC().Truncate(time.Millisecond),
		},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to set seats: %w", err)
	}

	if result.MatchedCount == 0 {
		if _, findErr := r.FindByID(ctx, id); findErr != nil {
			return findErr
		}
		return rideserrors.ErrStateConflict
	}

	return nil
}

// UpdateStatus performs a guarded lifecycle transition: the write matches
// only when the current status is in the allowed set, so concurrent
// transitions cannot both win. Cancelling also stamps cancelled_at.
func (r *mongoRideRepository) UpdateStatus(ctx context.Context, id string, from []string, to string) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("%w: %s", rideserrors.ErrInvalidID, id)
	}

	set := bson.M{
		"status":     to,
		"updated_at": time.Now().UTC().Truncate(time.Millisecond),
	}
	if to == model.RideStatusCancelled {
		set["cancelled_at"] = time.Now().UTC().Truncate(time.Millisecond)
	}

	filter := bson.M{
		"_id":    objectID,
		"status": bson.M{"$in": from},
	}

	result, err := r.collection.UpdateOne(ctx, filter, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("failed to update ride status: %w", err)
	}

	if result.MatchedCount == 0 {
		if _, findErr := r.FindByID(ctx, id); findErr != nil {
			return findErr
		}
		return rideserrors.ErrStateConflict
	}

	return nil
}

// ReserveSeats is the single decrement path for the seat counter. The
// filter carries the full precondition so check and decrement happen in
// one atomic document update; two racing reservations for the last seat
// cannot both match.
func (r *mongoRideRepository) ReserveSeats(ctx context.Context, rideID string, seats int, bookingID string) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(rideID)
	if err != nil {
		return fmt.Errorf("%w: %s", rideserrors.ErrInvalidID, rideID)
	}

	filter := bson.M{
		"_id":             objectID,
		"status":          model.RideStatusActive,
		"seats_available": bson.M{"$gte": seats},
	}
	update := bson.M{
		"$inc":  bson.M{"seats_available": -seats},
		"$push": bson.M{"booking_ids": bookingID},
		"$set":  bson.M{"updated_at": time.Now().UTC().Truncate(time.Millisecond)},
	}

	err = r.collection.FindOneAndUpdate(ctx, filter, update).Err()
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return rideserrors.ErrSeatConflict
		}
		return fmt.Errorf("failed to reserve seats: %w", err)
	}

	return nil
}

// ReleaseSeats returns seats to the pool. The $expr guard refuses any
// release that would push the counter past total_seats.
func (r *mongoRideRepository) ReleaseSeats(ctx context.Context, rideID string, seats int) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(rideID)
	if err != nil {
		return fmt.Errorf("%w: %s", rideserrors.ErrInvalidID, rideID)
	}

	filter := bson.M{
		"_id": objectID,
		"$expr": bson.M{
			"$lte": []any{
				bson.M{"$add": []any{"$seats_available", seats}},
				"$total_seats",
			},
		},
	}
	update := bson.M{
		"$inc": bson.M{"seats_available": seats},
		"$set": bson.M{"updated_at": time.Now().UTC().Truncate(time.Millisecond)},
	}

	err = r.collection.FindOneAndUpdate(ctx, filter, update).Err()
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			if _, findErr := r.FindByID(ctx, rideID); findErr != nil {
				return findErr
			}
			return rideserrors.ErrSeatOverflow
		}
		return fmt.Errorf("failed to release seats: %w", err)
	}

	return nil
}

func (r *mongoRideRepository) Search(ctx context.Context, filter *SearchFilter, limit int, offset int64) ([]*model.Ride, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "pickup_time", Value: 1}}).
		SetLimit(int64(limit)).
		SetSkip(offset)

	cursor, err := r.collection.Find(ctx, buildSearchFilter(filter), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to search rides: %w", err)
	}
	defer cursor.Close(ctx)

	var rides []*model.Ride
	if err = cursor.All(ctx, &rides); err != nil {
		return nil, fmt.Errorf("failed to decode rides: %w", err)
	}

	return rides, nil
}

func (r *mongoRideRepository) CountSearch(ctx context.Context, filter *SearchFilter) (int64, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	count, err := r.collection.CountDocuments(ctx, buildSearchFilter(filter))
	if err != nil {
		return 0, fmt.Errorf("failed to count rides by search: %w", err)
	}
	return count, nil
}

func buildSearchFilter(f *SearchFilter) bson.M {
	filter := bson.M{}
	if f == nil {
		return filter
	}

	if f.FromCity != "" {
		filter["from_city"] = f.FromCity
	}
	if f.ToCity != "" {
		filter["to_city"] = f.ToCity
	}
	if f.MinSeats > 0 {
		filter["seats_available"] = bson.M{"$gte": f.MinSeats}
	}
	if len(f.Statuses) > 0 {
		filter["status"] = bson.M{"$in": f.Statuses}
	}

	if f.DateFrom != nil || f.DateTo != nil {
		timeFilter := bson.M{}
		if f.DateFrom != nil {
			timeFilter["$gte"] = *f.DateFrom
		}
		if f.DateTo != nil {
			timeFilter["$lt"] = *f.DateTo
		}
		filter["pickup_time"] = timeFilter
	}

	return filter
}

func (r *mongoRideRepository) FindByDriver(ctx context.Context, driverID string, limit int, offset int64) ([]*model.Ride, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "pickup_time", Value: -1}}).
		SetLimit(int64(limit)).
		SetSkip(offset)

	cursor, err := r.collection.Find(ctx, bson.M{"driver_id": driverID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find rides by driver: %w", err)
	}
	defer cursor.Close(ctx)

	var rides []*model.Ride
	if err = cursor.All(ctx, &rides); err != nil {
		return nil, fmt.Errorf("failed to decode rides: %w", err)
	}

	return rides, nil
}

func (r *mongoRideRepository) CountByDriver(ctx context.Context, driverID string) (int64, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	count, err := r.collection.CountDocuments(ctx, bson.M{"driver_id": driverID})
	if err != nil {
		return 0, fmt.Errorf("failed to count rides by driver: %w", err)
	}
	return count, nil
}

func (r *mongoRideRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return r.txManager.ExecuteTransaction(ctx, fn)
}
