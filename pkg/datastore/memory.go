package datastore

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
)

// DefaultReportCacheSize bounds the reports kept by a MemoryStore
const DefaultReportCacheSize = 128

// Config configures a MemoryStore
type Config struct {
	// ReportCacheSize is the number of reports retained; older reports are
	// evicted least-recently-used first.
	ReportCacheSize int
	Logger          *logrus.Logger
}

// MemoryStore is an in-memory Repository
type MemoryStore struct {
	mu        sync.RWMutex
	trips     map[string]*Trip
	tickets   map[string]*Ticket
	vehicles  map[string]*Vehicle
	schedules []*Schedule
	reports   *lru.Cache[string, *Report]
	evicted   atomic.Int64

	validate *validator.Validate
	logger   *logrus.Logger
	now      func() time.Time
}

var _ Repository = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store
func NewMemoryStore(cfg Config) (*MemoryStore, error) {
	if cfg.ReportCacheSize <= 0 {
		cfg.ReportCacheSize = DefaultReportCacheSize
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}

	s := &MemoryStore{
		trips:    make(map[string]*Trip),
		tickets:  make(map[string]*Ticket),
		vehicles: make(map[string]*Vehicle),
		validate: newValidator(),
		logger:   cfg.Logger,
		now:      time.Now,
	}

	reports, err := lru.New[string, *Report](cfg.ReportCacheSize)
	if err != nil {
		return nil, err
	}
	s.reports = reports
	return s, nil
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func (s *MemoryStore) check(entity string, v interface{}) error {
	if err := s.validate.Struct(v); err != nil {
		return toValidationError(entity, err)
	}
	return nil
}

// Load replaces the store's trips, tickets and vehicles with fixtures.
// Nothing is stored unless every fixture is valid.
func (s *MemoryStore) Load(f Fixtures) error {
	now := s.now()
	trips := make(map[string]*Trip, len(f.Trips))
	for i := range f.Trips {
		t := f.Trips[i]
		if t.ID == "" {
			t.ID = uuid.New().String()
		}
		if t.Status == "" {
			t.Status = TripScheduled
		}
		t.CreatedAt, t.UpdatedAt = now, now
		if err := s.check("trip", &t); err != nil {
			return err
		}
		trips[t.ID] = &t
	}

	vehicles := make(map[string]*Vehicle, len(f.Vehicles))
	for i := range f.Vehicles {
		v := f.Vehicles[i]
		if v.ID == "" {
			v.ID = uuid.New().String()
		}
		if v.Status == "" {
			v.Status = VehicleAvailable
		}
		v.UpdatedAt = now
		if err := s.check("vehicle", &v); err != nil {
			return err
		}
		vehicles[v.ID] = &v
	}

	tickets := make(map[string]*Ticket, len(f.Tickets))
	for i := range f.Tickets {
		t := f.Tickets[i]
		if t.ID == "" {
			t.ID = uuid.New().String()
		}
		if t.Status == "" {
			t.Status = TicketReserved
		}
		t.CreatedAt, t.UpdatedAt = now, now
		if err := s.check("ticket", &t); err != nil {
			return err
		}
		if _, ok := trips[t.TripID]; !ok {
			return &ValidationError{Entity: "ticket", Fields: []FieldError{{Field: "trip_id", Rule: "exists"}}}
		}
		tickets[t.ID] = &t
	}

	s.mu.Lock()
	s.trips, s.tickets, s.vehicles = trips, tickets, vehicles
	s.schedules = nil
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{
		"trips":    len(trips),
		"tickets":  len(tickets),
		"vehicles": len(vehicles),
	}).Info("datastore fixtures loaded")
	return nil
}

// ReportsEvicted returns the number of reports pushed out of the cache
func (s *MemoryStore) ReportsEvicted() int64 {
	return s.evicted.Load()
}

// Trips

func (s *MemoryStore) LoadTrips(ctx context.Context) ([]*Trip, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Trip, 0, len(s.trips))
	for _, t := range s.trips {
		out = append(out, t.clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DepartureAt.Equal(out[j].DepartureAt) {
			return out[i].DepartureAt.Before(out[j].DepartureAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) LoadTrip(ctx context.Context, id string) (*Trip, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.trips[id]
	if !ok {
		return nil, notFound("trip", id)
	}
	return t.clone(), nil
}

func (s *MemoryStore) CreateTrip(ctx context.Context, trip Trip) (*Trip, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	now := s.now()
	trip.ID = uuid.New().String()
	if trip.Status == "" {
		trip.Status = TripScheduled
	}
	trip.StartedAt, trip.CompletedAt = nil, nil
	trip.CreatedAt, trip.UpdatedAt = now, now
	if err := s.check("trip", &trip); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if trip.VehicleID != "" {
		if _, ok := s.vehicles[trip.VehicleID]; !ok {
			return nil, &ValidationError{Entity: "trip", Fields: []FieldError{{Field: "vehicle_id", Rule: "exists"}}}
		}
	}
	s.trips[trip.ID] = &trip
	return trip.clone(), nil
}

func (s *MemoryStore) UpdateTrip(ctx context.Context, id string, upd TripUpdate) (*Trip, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.trips[id]
	if !ok {
		return nil, notFound("trip", id)
	}

	if len(upd.FromStatus) > 0 && !tripIn(current.Status, upd.FromStatus) {
		to := ""
		if upd.Status != nil {
			to = string(*upd.Status)
		}
		return nil, transitionError("trip", string(current.Status), to)
	}

	next := current.clone()
	if upd.Route != nil {
		next.Route = *upd.Route
	}
	if upd.Origin != nil {
		next.Origin = *upd.Origin
	}
	if upd.Destination != nil {
		next.Destination = *upd.Destination
	}
	if upd.DepartureAt != nil {
		next.DepartureAt = *upd.DepartureAt
	}
	if upd.Seats != nil {
		next.Seats = *upd.Seats
	}
	if upd.VehicleID != nil {
		next.VehicleID = *upd.VehicleID
	}
	if upd.DriverID != nil {
		next.DriverID = *upd.DriverID
	}
	now := s.now()
	if upd.Status != nil && *upd.Status != next.Status {
		next.Status = *upd.Status
		switch next.Status {
		case TripInProgress:
			next.StartedAt = &now
		case TripCompleted:
			next.CompletedAt = &now
		}
	}
	if err := s.check("trip", next); err != nil {
		return nil, err
	}
	if next.VehicleID != "" {
		if _, ok := s.vehicles[next.VehicleID]; !ok {
			return nil, &ValidationError{Entity: "trip", Fields: []FieldError{{Field: "vehicle_id", Rule: "exists"}}}
		}
	}

	next.UpdatedAt = now
	s.trips[id] = next
	return next.clone(), nil
}

// DeleteTrip removes a trip and the tickets sold on it
func (s *MemoryStore) DeleteTrip(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.trips[id]; !ok {
		return notFound("trip", id)
	}
	delete(s.trips, id)
	for tid, t := range s.tickets {
		if t.TripID == id {
			delete(s.tickets, tid)
		}
	}
	return nil
}

// PublishSchedule snapshots the ids of every scheduled trip in departure order
func (s *MemoryStore) PublishSchedule(ctx context.Context, publishedBy string) (*Schedule, error) {
	trips, err := s.LoadTrips(ctx)
	if err != nil {
		return nil, err
	}

	sched := &Schedule{
		ID:          uuid.New().String(),
		TripIDs:     []string{},
		PublishedBy: publishedBy,
		PublishedAt: s.now(),
	}
	for _, t := range trips {
		if t.Status == TripScheduled {
			sched.TripIDs = append(sched.TripIDs, t.ID)
		}
	}
	if err := s.check("schedule", sched); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.schedules = append(s.schedules, sched)
	s.mu.Unlock()
	return sched.clone(), nil
}

// Schedules returns every published schedule, oldest first
func (s *MemoryStore) Schedules() []*Schedule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Schedule, 0, len(s.schedules))
	for _, sc := range s.schedules {
		out = append(out, sc.clone())
	}
	return out
}

// Tickets

func (s *MemoryStore) LoadTickets(ctx context.Context) ([]*Ticket, error) {
	return s.loadTickets(ctx, func(*Ticket) bool { return true })
}

func (s *MemoryStore) LoadTicketsForTrip(ctx context.Context, tripID string) ([]*Ticket, error) {
	s.mu.RLock()
	_, ok := s.trips[tripID]
	s.mu.RUnlock()
	if !ok {
		return nil, notFound("trip", tripID)
	}
	return s.loadTickets(ctx, func(t *Ticket) bool { return t.TripID == tripID })
}

func (s *MemoryStore) loadTickets(ctx context.Context, keep func(*Ticket) bool) ([]*Ticket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Ticket, 0, len(s.tickets))
	for _, t := range s.tickets {
		if keep(t) {
			out = append(out, t.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TripID != out[j].TripID {
			return out[i].TripID < out[j].TripID
		}
		return out[i].Seat < out[j].Seat
	})
	return out, nil
}

func (s *MemoryStore) LoadTicket(ctx context.Context, id string) (*Ticket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tickets[id]
	if !ok {
		return nil, notFound("ticket", id)
	}
	return t.clone(), nil
}

// CreateTicket reserves a seat. The trip must exist, the seat must be
// within the trip's capacity and not held by another live ticket.
func (s *MemoryStore) CreateTicket(ctx context.Context, ticket Ticket) (*Ticket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	now := s.now()
	ticket.ID = uuid.New().String()
	if ticket.Status == "" {
		ticket.Status = TicketReserved
	}
	ticket.CreatedAt, ticket.UpdatedAt = now, now
	if err := s.check("ticket", &ticket); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	trip, ok := s.trips[ticket.TripID]
	if !ok {
		return nil, notFound("trip", ticket.TripID)
	}
	if err := s.seatAvailable(trip, ticket.ID, ticket.Seat); err != nil {
		return nil, err
	}
	s.tickets[ticket.ID] = &ticket
	return ticket.clone(), nil
}

func (s *MemoryStore) seatAvailable(trip *Trip, ticketID string, seat int) error {
	if seat > trip.Seats {
		return &ValidationError{Entity: "ticket", Fields: []FieldError{{Field: "seat", Rule: "max"}}}
	}
	for _, t := range s.tickets {
		if t.ID == ticketID || t.TripID != trip.ID || t.Seat != seat {
			continue
		}
		if t.Status == TicketReserved || t.Status == TicketValidated {
			return &ValidationError{Entity: "ticket", Fields: []FieldError{{Field: "seat", Rule: "unique"}}}
		}
	}
	return nil
}

func (s *MemoryStore) UpdateTicket(ctx context.Context, id string, upd TicketUpdate) (*Ticket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.tickets[id]
	if !ok {
		return nil, notFound("ticket", id)
	}
	if len(upd.FromStatus) > 0 && !ticketIn(current.Status, upd.FromStatus) {
		to := ""
		if upd.Status != nil {
			to = string(*upd.Status)
		}
		return nil, transitionError("ticket", string(current.Status), to)
	}
	next := current.clone()
	if upd.Seat != nil {
		next.Seat = *upd.Seat
	}
	if upd.Status != nil {
		next.Status = *upd.Status
	}
	if err := s.check("ticket", next); err != nil {
		return nil, err
	}
	if upd.Seat != nil {
		if trip, ok := s.trips[next.TripID]; ok {
			if err := s.seatAvailable(trip, id, next.Seat); err != nil {
				return nil, err
			}
		}
	}

	next.UpdatedAt = s.now()
	s.tickets[id] = next
	return next.clone(), nil
}

func (s *MemoryStore) DeleteTicket(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tickets[id]; !ok {
		return notFound("ticket", id)
	}
	delete(s.tickets, id)
	return nil
}

// Vehicles

func (s *MemoryStore) LoadVehicles(ctx context.Context) ([]*Vehicle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Vehicle, 0, len(s.vehicles))
	for _, v := range s.vehicles {
		out = append(out, v.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Plate < out[j].Plate })
	return out, nil
}

func (s *MemoryStore) LoadVehicle(ctx context.Context, id string) (*Vehicle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.vehicles[id]
	if !ok {
		return nil, notFound("vehicle", id)
	}
	return v.clone(), nil
}

func (s *MemoryStore) CreateVehicle(ctx context.Context, vehicle Vehicle) (*Vehicle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vehicle.ID = uuid.New().String()
	if vehicle.Status == "" {
		vehicle.Status = VehicleAvailable
	}
	vehicle.UpdatedAt = s.now()
	if err := s.check("vehicle", &vehicle); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.vehicles[vehicle.ID] = &vehicle
	s.mu.Unlock()
	return vehicle.clone(), nil
}

func (s *MemoryStore) UpdateVehicle(ctx context.Context, id string, upd VehicleUpdate) (*Vehicle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.vehicles[id]
	if !ok {
		return nil, notFound("vehicle", id)
	}
	next := current.clone()
	if upd.Status != nil {
		next.Status = *upd.Status
	}
	if upd.Notes != nil {
		next.Notes = *upd.Notes
	}
	if err := s.check("vehicle", next); err != nil {
		return nil, err
	}

	next.UpdatedAt = s.now()
	s.vehicles[id] = next
	return next.clone(), nil
}

// DeleteVehicle removes a vehicle and detaches it from any trip
func (s *MemoryStore) DeleteVehicle(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.vehicles[id]; !ok {
		return notFound("vehicle", id)
	}
	delete(s.vehicles, id)
	for _, t := range s.trips {
		if t.VehicleID == id {
			t.VehicleID = ""
		}
	}
	return nil
}

// Reports

// LoadReports returns the retained reports, oldest first
func (s *MemoryStore) LoadReports(ctx context.Context) ([]*Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Report, 0, s.reports.Len())
	for _, id := range s.reports.Keys() {
		if r, ok := s.reports.Peek(id); ok {
			out = append(out, r.clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) LoadReport(ctx context.Context, id string) (*Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r, ok := s.reports.Get(id)
	if !ok {
		return nil, notFound("report", id)
	}
	return r.clone(), nil
}

func (s *MemoryStore) CreateReport(ctx context.Context, report Report) (*Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	report.ID = uuid.New().String()
	report.CreatedAt = s.now()
	if err := s.check("report", &report); err != nil {
		return nil, err
	}
	if report.TripID != "" {
		s.mu.RLock()
		_, ok := s.trips[report.TripID]
		s.mu.RUnlock()
		if !ok {
			return nil, notFound("trip", report.TripID)
		}
	}

	stored := report.clone()
	s.mu.Lock()
	evicted := s.reports.Add(stored.ID, stored)
	s.mu.Unlock()
	if evicted {
		s.evicted.Add(1)
		s.logger.WithField("report_id", stored.ID).Debug("report cache full, oldest report evicted")
	}
	return stored.clone(), nil
}

func (s *MemoryStore) DeleteReport(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.reports.Remove(id) {
		return notFound("report", id)
	}
	return nil
}

func tripIn(s TripStatus, set []TripStatus) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

func ticketIn(s TicketStatus, set []TicketStatus) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

// transitionError reports a status precondition that no longer holds
func transitionError(entity, from, to string) error {
	return &ValidationError{
		Entity: entity,
		Fields: []FieldError{{Field: "status", Rule: fmt.Sprintf("cannot move from %s to %s", from, to)}},
	}
}
