package datastore

import "context"

// Repository is the data-access collaborator behind module operations.
// Lookups of missing entities fail with ErrNotFound; rejected writes fail
// with a *ValidationError.
type Repository interface {
	TripRepository
	TicketRepository
	VehicleRepository
	ReportRepository
}

// TripRepository manages trips and schedule publication
type TripRepository interface {
	LoadTrips(ctx context.Context) ([]*Trip, error)
	LoadTrip(ctx context.Context, id string) (*Trip, error)
	CreateTrip(ctx context.Context, trip Trip) (*Trip, error)
	UpdateTrip(ctx context.Context, id string, upd TripUpdate) (*Trip, error)
	DeleteTrip(ctx context.Context, id string) error
	PublishSchedule(ctx context.Context, publishedBy string) (*Schedule, error)
}

// TicketRepository manages tickets
type TicketRepository interface {
	LoadTickets(ctx context.Context) ([]*Ticket, error)
	LoadTicket(ctx context.Context, id string) (*Ticket, error)
	LoadTicketsForTrip(ctx context.Context, tripID string) ([]*Ticket, error)
	CreateTicket(ctx context.Context, ticket Ticket) (*Ticket, error)
	UpdateTicket(ctx context.Context, id string, upd TicketUpdate) (*Ticket, error)
	DeleteTicket(ctx context.Context, id string) error
}

// VehicleRepository manages the fleet
type VehicleRepository interface {
	LoadVehicles(ctx context.Context) ([]*Vehicle, error)
	LoadVehicle(ctx context.Context, id string) (*Vehicle, error)
	CreateVehicle(ctx context.Context, vehicle Vehicle) (*Vehicle, error)
	UpdateVehicle(ctx context.Context, id string, upd VehicleUpdate) (*Vehicle, error)
	DeleteVehicle(ctx context.Context, id string) error
}

// ReportRepository manages generated and filed reports
type ReportRepository interface {
	LoadReports(ctx context.Context) ([]*Report, error)
	LoadReport(ctx context.Context, id string) (*Report, error)
	CreateReport(ctx context.Context, report Report) (*Report, error)
	DeleteReport(ctx context.Context, id string) error
}
