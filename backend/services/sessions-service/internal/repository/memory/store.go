// Package memory is an in-process implementation of every repository and of
// the transaction manager. Units of work are serialized by a single lock and
// rolled back by restoring a snapshot.
package memory

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"chargepark/backend/services/sessions-service/internal/models"
	"chargepark/backend/services/sessions-service/internal/repository"
)

type txKey struct{}

type state struct {
	users    map[int64]models.User
	points   map[int64]models.ChargingPoint
	vehicles map[int64]models.Vehicle
	orders   map[int64]models.Order
	sessions map[int64]models.Session
	fees     map[int64]models.Fee
	seq      int64
}

func (s state) clone() state {
	return state{
		users:    maps.Clone(s.users),
		points:   maps.Clone(s.points),
		vehicles: maps.Clone(s.vehicles),
		orders:   maps.Clone(s.orders),
		sessions: maps.Clone(s.sessions),
		fees:     maps.Clone(s.fees),
		seq:      s.seq,
	}
}

// Store keeps all entities in maps guarded by one mutex.
type Store struct {
	mu sync.Mutex
	st state
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{st: state{
		users:    map[int64]models.User{},
		points:   map[int64]models.ChargingPoint{},
		vehicles: map[int64]models.Vehicle{},
		orders:   map[int64]models.Order{},
		sessions: map[int64]models.Session{},
		fees:     map[int64]models.Fee{},
	}}
}

// Do runs fn while holding the store lock. Changes are discarded when fn
// returns an error or panics. Nested calls join the outer unit.
func (s *Store) Do(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if inTx(ctx) {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	defer func() {
		if p := recover(); p != nil {
			s.st = snapshot
			panic(p)
		}
		if err != nil {
			s.st = snapshot
		}
	}()

	return fn(context.WithValue(ctx, txKey{}, true))
}

func inTx(ctx context.Context) bool {
	v, _ := ctx.Value(txKey{}).(bool)
	return v
}

// locked runs fn under the store lock unless ctx already holds it.
func (s *Store) locked(ctx context.Context, fn func()) {
	if !inTx(ctx) {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	fn()
}

func (s *Store) nextID() int64 {
	s.st.seq++
	return s.st.seq
}

// AddUser seeds a user. A zero ID is assigned.
func (s *Store) AddUser(u models.User) models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == 0 {
		u.ID = s.nextID()
	}
	if u.Status == "" {
		u.Status = models.UserStatusActive
	}
	s.st.users[u.ID] = u
	return u
}

// AddChargingPoint seeds a charging point. A zero ID is assigned.
func (s *Store) AddChargingPoint(p models.ChargingPoint) models.ChargingPoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == 0 {
		p.ID = s.nextID()
	}
	s.st.points[p.ID] = p
	return p
}

// AddVehicle seeds a vehicle. A zero ID is assigned.
func (s *Store) AddVehicle(v models.Vehicle) models.Vehicle {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v.ID == 0 {
		v.ID = s.nextID()
	}
	s.st.vehicles[v.ID] = v
	return v
}

// Orders returns the order repository view.
func (s *Store) Orders() *Orders { return &Orders{s} }

// Sessions returns the session repository view.
func (s *Store) Sessions() *Sessions { return &Sessions{s} }

// Fees returns the fee repository view.
func (s *Store) Fees() *Fees { return &Fees{s} }

// Users returns the user repository view.
func (s *Store) Users() *Users { return &Users{s} }

// Catalog returns the catalog view.
func (s *Store) Catalog() *Catalog { return &Catalog{s} }

// Orders implements the order repository.
type Orders struct{ s *Store }

func (r *Orders) Create(ctx context.Context, order *models.Order) error {
	r.s.locked(ctx, func() {
		order.ID = r.s.nextID()
		r.s.st.orders[order.ID] = *order
	})
	return nil
}

func (r *Orders) GetByID(ctx context.Context, id int64) (*models.Order, error) {
	var (
		o  models.Order
		ok bool
	)
	r.s.locked(ctx, func() { o, ok = r.s.st.orders[id] })
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &o, nil
}

func (r *Orders) GetForUpdate(ctx context.Context, id int64) (*models.Order, error) {
	return r.GetByID(ctx, id)
}

func (r *Orders) Update(ctx context.Context, order *models.Order) error {
	var err error
	r.s.locked(ctx, func() {
		cur, ok := r.s.st.orders[order.ID]
		if !ok {
			err = repository.ErrNotFound
			return
		}
		cur.Status = order.Status
		cur.CancellationReason = order.CancellationReason
		cur.UpdatedAt = order.UpdatedAt
		r.s.st.orders[order.ID] = cur
	})
	return err
}

// LockChargingPoint is a no-op; units of work are already serialized.
func (r *Orders) LockChargingPoint(context.Context, int64) error { return nil }

func (r *Orders) HasActiveOverlap(ctx context.Context, pointID, userID int64, start, end time.Time) (bool, error) {
	var found bool
	r.s.locked(ctx, func() {
		for _, o := range r.s.st.orders {
			if o.ChargingPointID != pointID && o.UserID != userID {
				continue
			}
			if o.Status != models.OrderStatusBooked && o.Status != models.OrderStatusCharging {
				continue
			}
			if o.StartTime.Before(end) && o.EndTime.After(start) {
				found = true
				return
			}
		}
	})
	return found, nil
}

func (r *Orders) ListBookedStartingBefore(ctx context.Context, cutoff time.Time, afterID int64, limit int) ([]models.Order, error) {
	var out []models.Order
	r.s.locked(ctx, func() {
		for _, o := range r.s.st.orders {
			if o.ID > afterID && o.Status == models.OrderStatusBooked && o.StartTime.Before(cutoff) {
				out = append(out, o)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return truncate(out, limit), nil
}

// Sessions implements the session repository.
type Sessions struct{ s *Store }

func (r *Sessions) Create(ctx context.Context, session *models.Session) error {
	r.s.locked(ctx, func() {
		session.ID = r.s.nextID()
		r.s.st.sessions[session.ID] = *session
	})
	return nil
}

func (r *Sessions) GetByID(ctx context.Context, id int64) (*models.Session, error) {
	var (
		s  models.Session
		ok bool
	)
	r.s.locked(ctx, func() { s, ok = r.s.st.sessions[id] })
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &s, nil
}

func (r *Sessions) GetForUpdate(ctx context.Context, id int64) (*models.Session, error) {
	return r.GetByID(ctx, id)
}

func (r *Sessions) GetByOrderID(ctx context.Context, orderID int64) (*models.Session, error) {
	var (
		s  models.Session
		ok bool
	)
	r.s.locked(ctx, func() {
		for _, cur := range r.s.st.sessions {
			if cur.OrderID == orderID {
				s, ok = cur, true
				return
			}
		}
	})
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &s, nil
}

// Update keeps finalized energy and cost once set.
func (r *Sessions) Update(ctx context.Context, session *models.Session) error {
	var err error
	r.s.locked(ctx, func() {
		cur, ok := r.s.st.sessions[session.ID]
		if !ok {
			err = repository.ErrNotFound
			return
		}
		next := *session
		next.OrderID, next.UserID, next.VehicleID = cur.OrderID, cur.UserID, cur.VehicleID
		next.StartTime, next.CreatedAt = cur.StartTime, cur.CreatedAt
		if cur.PowerConsumed != nil {
			next.PowerConsumed = cur.PowerConsumed
		}
		if cur.BaseCost != nil {
			next.BaseCost = cur.BaseCost
		}
		r.s.st.sessions[session.ID] = next
	})
	return err
}

func (r *Sessions) ListByStatus(ctx context.Context, status models.SessionStatus, afterID int64, limit int) ([]models.Session, error) {
	return r.filter(ctx, afterID, limit, func(s models.Session) bool { return s.Status == status }), nil
}

func (r *Sessions) ListChargingStartedBefore(ctx context.Context, cutoff time.Time, afterID int64, limit int) ([]models.Session, error) {
	return r.filter(ctx, afterID, limit, func(s models.Session) bool {
		return s.Status == models.SessionStatusCharging && s.StartTime.Before(cutoff)
	}), nil
}

func (r *Sessions) ListParkingStartedBefore(ctx context.Context, cutoff time.Time, afterID int64, limit int) ([]models.Session, error) {
	return r.filter(ctx, afterID, limit, func(s models.Session) bool {
		return s.Status == models.SessionStatusParking && s.ParkingStartTime != nil && s.ParkingStartTime.Before(cutoff)
	}), nil
}

func (r *Sessions) filter(ctx context.Context, afterID int64, limit int, keep func(models.Session) bool) []models.Session {
	var out []models.Session
	r.s.locked(ctx, func() {
		for _, s := range r.s.st.sessions {
			if s.ID > afterID && keep(s) {
				out = append(out, s)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return truncate(out, limit)
}

// Fees implements the fee repository.
type Fees struct{ s *Store }

func (r *Fees) Create(ctx context.Context, fee *models.Fee) error {
	r.s.locked(ctx, func() {
		fee.ID = r.s.nextID()
		r.s.st.fees[fee.ID] = *fee
	})
	return nil
}

func (r *Fees) GetByIDs(ctx context.Context, ids []int64) ([]models.Fee, error) {
	var out []models.Fee
	r.s.locked(ctx, func() {
		for _, id := range ids {
			if f, ok := r.s.st.fees[id]; ok {
				out = append(out, f)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *Fees) ListBySession(ctx context.Context, sessionID int64) ([]models.Fee, error) {
	return r.filter(ctx, func(f models.Fee) bool {
		return f.SessionID != nil && *f.SessionID == sessionID
	}, false), nil
}

func (r *Fees) ListByUser(ctx context.Context, userID int64, unpaidOnly bool) ([]models.Fee, error) {
	return r.filter(ctx, func(f models.Fee) bool {
		return f.UserID == userID && (!unpaidOnly || !f.Paid)
	}, true), nil
}

func (r *Fees) CountUnpaidByUser(ctx context.Context, userID int64) (int, error) {
	fees, _ := r.ListByUser(ctx, userID, true)
	return len(fees), nil
}

func (r *Fees) MarkPaid(ctx context.Context, ids []int64, paidAt time.Time) (int, error) {
	var changed int
	r.s.locked(ctx, func() {
		for _, id := range ids {
			f, ok := r.s.st.fees[id]
			if !ok || f.Paid {
				continue
			}
			at := paidAt
			f.Paid, f.PaidAt = true, &at
			r.s.st.fees[id] = f
			changed++
		}
	})
	return changed, nil
}

func (r *Fees) filter(ctx context.Context, keep func(models.Fee) bool, newestFirst bool) []models.Fee {
	var out []models.Fee
	r.s.locked(ctx, func() {
		for _, f := range r.s.st.fees {
			if keep(f) {
				out = append(out, f)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool {
		if newestFirst {
			return out[i].ID > out[j].ID
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Users implements the user repository.
type Users struct{ s *Store }

func (r *Users) GetByID(ctx context.Context, id int64) (*models.User, error) {
	var (
		u  models.User
		ok bool
	)
	r.s.locked(ctx, func() { u, ok = r.s.st.users[id] })
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

func (r *Users) GetForUpdate(ctx context.Context, id int64) (*models.User, error) {
	return r.GetByID(ctx, id)
}

func (r *Users) UpdateViolationState(ctx context.Context, user *models.User) error {
	var err error
	r.s.locked(ctx, func() {
		cur, ok := r.s.st.users[user.ID]
		if !ok {
			err = repository.ErrNotFound
			return
		}
		cur.Status = user.Status
		cur.ViolationCount = user.ViolationCount
		cur.ViolationLog = user.ViolationLog
		cur.BanReason = user.BanReason
		cur.BannedAt = user.BannedAt
		cur.UpdatedAt = user.UpdatedAt
		r.s.st.users[user.ID] = cur
	})
	return err
}

// Catalog implements the read-only catalog.
type Catalog struct{ s *Store }

func (r *Catalog) GetChargingPoint(ctx context.Context, id int64) (*models.ChargingPoint, error) {
	var (
		p  models.ChargingPoint
		ok bool
	)
	r.s.locked(ctx, func() { p, ok = r.s.st.points[id] })
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (r *Catalog) GetVehicle(ctx context.Context, id int64) (*models.Vehicle, error) {
	var (
		v  models.Vehicle
		ok bool
	)
	r.s.locked(ctx, func() { v, ok = r.s.st.vehicles[id] })
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &v, nil
}

func truncate[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}
