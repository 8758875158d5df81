package datastore

import "time"

// TripStatus is the lifecycle state of a trip
type TripStatus string

const (
	TripScheduled  TripStatus = "scheduled"
	TripInProgress TripStatus = "in_progress"
	TripCompleted  TripStatus = "completed"
	TripCancelled  TripStatus = "cancelled"
)

// Trip is one scheduled run of a route
type Trip struct {
	ID          string     `json:"id" yaml:"id"`
	Route       string     `json:"route" yaml:"route" validate:"required"`
	Origin      string     `json:"origin" yaml:"origin" validate:"required"`
	Destination string     `json:"destination" yaml:"destination" validate:"required,nefield=Origin"`
	DepartureAt time.Time  `json:"departure_at" yaml:"departure_at" validate:"required"`
	Seats       int        `json:"seats" yaml:"seats" validate:"min=1,max=500"`
	VehicleID   string     `json:"vehicle_id,omitempty" yaml:"vehicle_id,omitempty"`
	DriverID    string     `json:"driver_id,omitempty" yaml:"driver_id,omitempty"`
	Status      TripStatus `json:"status" yaml:"status" validate:"oneof=scheduled in_progress completed cancelled"`
	StartedAt   *time.Time `json:"started_at,omitempty" yaml:"-"`
	CompletedAt *time.Time `json:"completed_at,omitempty" yaml:"-"`
	CreatedAt   time.Time  `json:"created_at" yaml:"-"`
	UpdatedAt   time.Time  `json:"updated_at" yaml:"-"`
}

// TripUpdate is a partial trip update; nil fields are left untouched
type TripUpdate struct {
	Route       *string     `json:"route,omitempty"`
	Origin      *string     `json:"origin,omitempty"`
	Destination *string     `json:"destination,omitempty"`
	DepartureAt *time.Time  `json:"departure_at,omitempty"`
	Seats       *int        `json:"seats,omitempty"`
	VehicleID   *string     `json:"vehicle_id,omitempty"`
	DriverID    *string     `json:"driver_id,omitempty"`
	Status      *TripStatus `json:"status,omitempty"`

	// FromStatus, when set, is checked under the write lock: the update
	// applies only while the trip is in one of these states
	FromStatus []TripStatus `json:"-"`
}

// TicketStatus is the lifecycle state of a ticket
type TicketStatus string

const (
	TicketReserved  TicketStatus = "reserved"
	TicketValidated TicketStatus = "validated"
	TicketCancelled TicketStatus = "cancelled"
	TicketRefunded  TicketStatus = "refunded"
)

// Ticket is a seat reservation on a trip
type Ticket struct {
	ID            string       `json:"id" yaml:"id"`
	TripID        string       `json:"trip_id" yaml:"trip_id" validate:"required"`
	PassengerName string       `json:"passenger_name" yaml:"passenger_name" validate:"required"`
	Seat          int          `json:"seat" yaml:"seat" validate:"min=1"`
	Price         float64      `json:"price" yaml:"price" validate:"gte=0"`
	Status        TicketStatus `json:"status" yaml:"status" validate:"oneof=reserved validated cancelled refunded"`
	CreatedAt     time.Time    `json:"created_at" yaml:"-"`
	UpdatedAt     time.Time    `json:"updated_at" yaml:"-"`
}

// TicketUpdate is a partial ticket update
type TicketUpdate struct {
	Seat   *int          `json:"seat,omitempty"`
	Status *TicketStatus `json:"status,omitempty"`

	// FromStatus, when set, is checked under the write lock: the update
	// applies only while the ticket is in one of these states
	FromStatus []TicketStatus `json:"-"`
}

// VehicleStatus is the operational state of a vehicle
type VehicleStatus string

const (
	VehicleAvailable   VehicleStatus = "available"
	VehicleInService   VehicleStatus = "in_service"
	VehicleMaintenance VehicleStatus = "maintenance"
	VehicleOutOfOrder  VehicleStatus = "out_of_service"
)

// Vehicle is a bus in the fleet
type Vehicle struct {
	ID        string        `json:"id" yaml:"id"`
	Plate     string        `json:"plate" yaml:"plate" validate:"required"`
	Capacity  int           `json:"capacity" yaml:"capacity" validate:"min=1"`
	Status    VehicleStatus `json:"status" yaml:"status" validate:"oneof=available in_service maintenance out_of_service"`
	Notes     string        `json:"notes,omitempty" yaml:"notes,omitempty"`
	UpdatedAt time.Time     `json:"updated_at" yaml:"-"`
}

// VehicleUpdate is a partial vehicle update
type VehicleUpdate struct {
	Status *VehicleStatus `json:"status,omitempty"`
	Notes  *string        `json:"notes,omitempty"`
}

// ReportKind distinguishes generated summaries from field incident reports
type ReportKind string

const (
	ReportSummary  ReportKind = "summary"
	ReportIncident ReportKind = "incident"
)

// Report is a generated summary or an incident filed by a driver
type Report struct {
	ID        string            `json:"id"`
	Kind      ReportKind        `json:"kind" validate:"oneof=summary incident"`
	Title     string            `json:"title" validate:"required"`
	Body      string            `json:"body,omitempty"`
	TripID    string            `json:"trip_id,omitempty"`
	AuthorID  string            `json:"author_id" validate:"required"`
	Metrics   map[string]int    `json:"metrics,omitempty"`
	Labels    map[string]string `json:"labels,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// Schedule is a published snapshot of the scheduled trips
type Schedule struct {
	ID          string    `json:"id"`
	TripIDs     []string  `json:"trip_ids"`
	PublishedBy string    `json:"published_by" validate:"required"`
	PublishedAt time.Time `json:"published_at"`
}

// Fixtures is the initial content of a store
type Fixtures struct {
	Trips    []Trip    `json:"trips" yaml:"trips"`
	Tickets  []Ticket  `json:"tickets" yaml:"tickets"`
	Vehicles []Vehicle `json:"vehicles" yaml:"vehicles"`
}

func (t *Trip) clone() *Trip {
	c := *t
	if t.StartedAt != nil {
		s := *t.StartedAt
		c.StartedAt = &s
	}
	if t.CompletedAt != nil {
		s := *t.CompletedAt
		c.CompletedAt = &s
	}
	return &c
}

func (t *Ticket) clone() *Ticket {
	c := *t
	return &c
}

func (v *Vehicle) clone() *Vehicle {
	c := *v
	return &c
}

func (r *Report) clone() *Report {
	c := *r
	if r.Metrics != nil {
		c.Metrics = make(map[string]int, len(r.Metrics))
		for k, v := range r.Metrics {
			c.Metrics[k] = v
		}
	}
	if r.Labels != nil {
		c.Labels = make(map[string]string, len(r.Labels))
		for k, v := range r.Labels {
			c.Labels[k] = v
		}
	}
	return &c
}

func (s *Schedule) clone() *Schedule {
	c := *s
	c.TripIDs = append([]string(nil), s.TripIDs...)
	return &c
}
