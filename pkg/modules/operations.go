package modules

import (
	"context"
	"fmt"

	"github.com/platinummonkey/waypoint/pkg/datastore"
	"github.com/platinummonkey/waypoint/pkg/rbac"
)

type opFunc func(ctx context.Context, c *call) (outcome, error)

var handlers = map[string]opFunc{
	OpLoadTrips:             loadTrips,
	OpLoadTickets:           loadTickets,
	OpLoadReports:           loadReports,
	OpLoadVehicles:          loadVehicles,
	OpLoadUsers:             loadUsers,
	OpLoadDashboard:         loadDashboard,
	OpCreateReservation:     createReservation,
	OpCancelReservation:     setTicketStatus(datastore.TicketCancelled, datastore.TicketReserved),
	OpRefundTicket:          setTicketStatus(datastore.TicketRefunded, datastore.TicketReserved, datastore.TicketCancelled),
	OpValidatePassengerList: validatePassengerList,
	OpStartTrip:             moveTrip(datastore.TripInProgress, datastore.TripScheduled),
	OpCompleteTrip:          moveTrip(datastore.TripCompleted, datastore.TripInProgress),
	OpValidateTicket:        setTicketStatus(datastore.TicketValidated, datastore.TicketReserved),
	OpUpdateVehicleStatus:   updateVehicleStatus,
	OpReportIncident:        reportIncident,
	OpCreateTrip:            createTrip,
	OpUpdateTrip:            updateTrip,
	OpDeleteTrip:            deleteTrip,
	OpPublishSchedule:       publishSchedule,
	OpCreateUser:            createUser,
	OpUpdateUser:            updateUser,
	OpDeleteUser:            deleteUser,
	OpGenerateReport:        generateReport,
}

// Passenger is one row of a validated passenger list
type Passenger struct {
	TicketID string                 `json:"ticket_id"`
	Name     string                 `json:"name"`
	Seat     int                    `json:"seat"`
	Status   datastore.TicketStatus `json:"status"`
}

// PassengerList is the result of validatePassengerList
type PassengerList struct {
	TripID     string      `json:"trip_id"`
	Passengers []Passenger `json:"passengers"`
	Boarding   int         `json:"boarding"`
	Validated  int         `json:"validated"`
	Seats      int         `json:"seats"`
	Overbooked bool        `json:"overbooked"`
}

// Summary is the result of loadDashboard
type Summary struct {
	Department rbac.Department `json:"department"`
	UserID     string          `json:"user_id"`
	Operations []string        `json:"operations"`
	Sections   []string        `json:"sections"`
}

// reads

func loadTrips(ctx context.Context, c *call) (outcome, error) {
	trips, err := c.env.repo.LoadTrips(ctx)
	if err != nil {
		return outcome{}, err
	}
	if c.origin.department == rbac.DepartmentDriver {
		own := trips[:0]
		for _, t := range trips {
			if t.DriverID == c.origin.userID {
				own = append(own, t)
			}
		}
		trips = own
	}
	return outcome{value: trips, summary: fmt.Sprintf("loaded %d trips", len(trips))}, nil
}

func loadTickets(ctx context.Context, c *call) (outcome, error) {
	tickets, err := c.env.repo.LoadTickets(ctx)
	if err != nil {
		return outcome{}, err
	}
	return outcome{value: tickets, summary: fmt.Sprintf("loaded %d tickets", len(tickets))}, nil
}

func loadReports(ctx context.Context, c *call) (outcome, error) {
	reports, err := c.env.repo.LoadReports(ctx)
	if err != nil {
		return outcome{}, err
	}
	return outcome{value: reports, summary: fmt.Sprintf("loaded %d reports", len(reports))}, nil
}

func loadVehicles(ctx context.Context, c *call) (outcome, error) {
	vehicles, err := c.env.repo.LoadVehicles(ctx)
	if err != nil {
		return outcome{}, err
	}
	return outcome{value: vehicles, summary: fmt.Sprintf("loaded %d vehicles", len(vehicles))}, nil
}

func loadUsers(ctx context.Context, c *call) (outcome, error) {
	users := []*rbac.User{}
	if c.env.users != nil {
		users = c.env.users.ListUsers()
	}
	return outcome{value: users, summary: fmt.Sprintf("loaded %d users", len(users))}, nil
}

func loadDashboard(ctx context.Context, c *call) (outcome, error) {
	ops := c.origin.Operations()
	var sections []string
	for _, s := range Sections() {
		if loader, ok := LoaderFor(s); ok && c.origin.Operation(loader) {
			sections = append(sections, s)
		}
	}
	return outcome{
		value: Summary{
			Department: c.origin.department,
			UserID:     c.origin.userID,
			Operations: ops,
			Sections:   sections,
		},
		summary: fmt.Sprintf("dashboard with %d operations", len(ops)),
	}, nil
}

// agent

func createReservation(ctx context.Context, c *call) (outcome, error) {
	var in datastore.Ticket
	if err := c.payload.Decode(&in); err != nil {
		return outcome{}, err
	}
	in.Status = datastore.TicketReserved
	ticket, err := c.env.repo.CreateTicket(ctx, in)
	if err != nil {
		return outcome{}, err
	}
	return outcome{
		value:    ticket,
		entityID: ticket.ID,
		summary:  fmt.Sprintf("reserved seat %d on trip %s for %s", ticket.Seat, ticket.TripID, ticket.PassengerName),
	}, nil
}

// setTicketStatus moves a ticket to status when it is currently in one of from
func setTicketStatus(status datastore.TicketStatus, from ...datastore.TicketStatus) opFunc {
	return func(ctx context.Context, c *call) (outcome, error) {
		if err := c.payload.require("ticket_id"); err != nil {
			return outcome{}, err
		}
		id := c.payload.String("ticket_id")
		ticket, err := c.env.repo.UpdateTicket(ctx, id, datastore.TicketUpdate{Status: &status, FromStatus: from})
		if err != nil {
			return outcome{}, err
		}
		return outcome{
			value:    ticket,
			entityID: ticket.ID,
			summary:  fmt.Sprintf("ticket %s %s", ticket.ID, status),
		}, nil
	}
}

func validatePassengerList(ctx context.Context, c *call) (outcome, error) {
	if err := c.payload.require("trip_id"); err != nil {
		return outcome{}, err
	}
	tripID := c.payload.String("trip_id")
	trip, err := c.env.repo.LoadTrip(ctx, tripID)
	if err != nil {
		return outcome{}, err
	}
	tickets, err := c.env.repo.LoadTicketsForTrip(ctx, tripID)
	if err != nil {
		return outcome{}, err
	}

	list := PassengerList{TripID: tripID, Seats: trip.Seats, Passengers: []Passenger{}}
	for _, t := range tickets {
		switch t.Status {
		case datastore.TicketReserved:
			list.Boarding++
		case datastore.TicketValidated:
			list.Boarding++
			list.Validated++
		default:
			continue
		}
		list.Passengers = append(list.Passengers, Passenger{TicketID: t.ID, Name: t.PassengerName, Seat: t.Seat, Status: t.Status})
	}
	list.Overbooked = list.Boarding > trip.Seats

	return outcome{
		value:    list,
		entityID: tripID,
		summary:  fmt.Sprintf("passenger list for trip %s validated: %d boarding, %d checked in", tripID, list.Boarding, list.Validated),
	}, nil
}

// driver

// moveTrip advances a trip from one status to the next. Drivers may only
// move trips assigned to them.
func moveTrip(to, from datastore.TripStatus) opFunc {
	return func(ctx context.Context, c *call) (outcome, error) {
		if err := c.payload.require("trip_id"); err != nil {
			return outcome{}, err
		}
		id := c.payload.String("trip_id")
		trip, err := c.env.repo.LoadTrip(ctx, id)
		if err != nil {
			return outcome{}, err
		}
		if c.origin.department == rbac.DepartmentDriver && trip.DriverID != c.origin.userID {
			return outcome{}, fmt.Errorf("%w: trip %s is not assigned to %s", ErrPermissionDenied, id, c.origin.userID)
		}
		trip, err = c.env.repo.UpdateTrip(ctx, id, datastore.TripUpdate{Status: &to, FromStatus: []datastore.TripStatus{from}})
		if err != nil {
			return outcome{}, err
		}
		return outcome{value: trip, entityID: id, summary: fmt.Sprintf("trip %s %s", id, to)}, nil
	}
}

func updateVehicleStatus(ctx context.Context, c *call) (outcome, error) {
	var in struct {
		VehicleID string `json:"vehicle_id"`
		datastore.VehicleUpdate
	}
	if err := c.payload.Decode(&in); err != nil {
		return outcome{}, err
	}
	if in.VehicleID == "" || in.Status == nil {
		return outcome{}, fmt.Errorf("%w: vehicle_id and status are required", ErrInvalidPayload)
	}
	vehicle, err := c.env.repo.UpdateVehicle(ctx, in.VehicleID, in.VehicleUpdate)
	if err != nil {
		return outcome{}, err
	}
	return outcome{
		value:    vehicle,
		entityID: vehicle.ID,
		summary:  fmt.Sprintf("vehicle %s is %s", vehicle.Plate, vehicle.Status),
	}, nil
}

func reportIncident(ctx context.Context, c *call) (outcome, error) {
	var in struct {
		Title  string `json:"title"`
		Body   string `json:"body"`
		TripID string `json:"trip_id"`
	}
	if err := c.payload.Decode(&in); err != nil {
		return outcome{}, err
	}
	report, err := c.env.repo.CreateReport(ctx, datastore.Report{
		Kind:     datastore.ReportIncident,
		Title:    in.Title,
		Body:     in.Body,
		TripID:   in.TripID,
		AuthorID: c.origin.userID,
	})
	if err != nil {
		return outcome{}, err
	}
	return outcome{value: report, entityID: report.ID, summary: fmt.Sprintf("incident reported: %s", report.Title)}, nil
}

// admin

func createTrip(ctx context.Context, c *call) (outcome, error) {
	var in datastore.Trip
	if err := c.payload.Decode(&in); err != nil {
		return outcome{}, err
	}
	trip, err := c.env.repo.CreateTrip(ctx, in)
	if err != nil {
		return outcome{}, err
	}
	return outcome{
		value:    trip,
		entityID: trip.ID,
		summary:  fmt.Sprintf("trip %s created on route %s", trip.ID, trip.Route),
	}, nil
}

func updateTrip(ctx context.Context, c *call) (outcome, error) {
	var in struct {
		TripID string `json:"trip_id"`
		datastore.TripUpdate
	}
	if err := c.payload.Decode(&in); err != nil {
		return outcome{}, err
	}
	if in.TripID == "" {
		return outcome{}, fmt.Errorf("%w: trip_id is required", ErrInvalidPayload)
	}
	trip, err := c.env.repo.UpdateTrip(ctx, in.TripID, in.TripUpdate)
	if err != nil {
		return outcome{}, err
	}
	return outcome{value: trip, entityID: trip.ID, summary: fmt.Sprintf("trip %s updated", trip.ID)}, nil
}

func deleteTrip(ctx context.Context, c *call) (outcome, error) {
	if err := c.payload.require("trip_id"); err != nil {
		return outcome{}, err
	}
	id := c.payload.String("trip_id")
	if err := c.env.repo.DeleteTrip(ctx, id); err != nil {
		return outcome{}, err
	}
	return outcome{value: map[string]string{"trip_id": id}, entityID: id, summary: fmt.Sprintf("trip %s deleted", id)}, nil
}

func publishSchedule(ctx context.Context, c *call) (outcome, error) {
	sched, err := c.env.repo.PublishSchedule(ctx, c.origin.userID)
	if err != nil {
		return outcome{}, err
	}
	return outcome{
		value:    sched,
		entityID: sched.ID,
		summary:  fmt.Sprintf("schedule published with %d trips", len(sched.TripIDs)),
	}, nil
}

func createUser(ctx context.Context, c *call) (outcome, error) {
	if c.env.users == nil {
		return outcome{}, errNoUserAdmin
	}
	var in rbac.UserInput
	if err := c.payload.Decode(&in); err != nil {
		return outcome{}, err
	}
	user, err := c.env.users.CreateUser(in)
	if err != nil {
		return outcome{}, err
	}
	return outcome{value: user, entityID: user.ID, summary: fmt.Sprintf("user %s created in %s", user.ID, user.Department)}, nil
}

func updateUser(ctx context.Context, c *call) (outcome, error) {
	if c.env.users == nil {
		return outcome{}, errNoUserAdmin
	}
	var in struct {
		UserID string `json:"user_id"`
		rbac.UserUpdate
	}
	if err := c.payload.Decode(&in); err != nil {
		return outcome{}, err
	}
	if in.UserID == "" {
		return outcome{}, fmt.Errorf("%w: user_id is required", ErrInvalidPayload)
	}
	user, err := c.env.users.UpdateUser(in.UserID, in.UserUpdate)
	if err != nil {
		return outcome{}, err
	}
	return outcome{value: user, entityID: user.ID, summary: fmt.Sprintf("user %s updated", user.ID)}, nil
}

func deleteUser(ctx context.Context, c *call) (outcome, error) {
	if c.env.users == nil {
		return outcome{}, errNoUserAdmin
	}
	if err := c.payload.require("user_id"); err != nil {
		return outcome{}, err
	}
	id := c.payload.String("user_id")
	if err := c.env.users.DeleteUser(id); err != nil {
		return outcome{}, err
	}
	return outcome{value: map[string]string{"user_id": id}, entityID: id, summary: fmt.Sprintf("user %s deleted", id)}, nil
}

func generateReport(ctx context.Context, c *call) (outcome, error) {
	trips, err := c.env.repo.LoadTrips(ctx)
	if err != nil {
		return outcome{}, err
	}
	tickets, err := c.env.repo.LoadTickets(ctx)
	if err != nil {
		return outcome{}, err
	}
	vehicles, err := c.env.repo.LoadVehicles(ctx)
	if err != nil {
		return outcome{}, err
	}

	metrics := map[string]int{
		"trips":    len(trips),
		"tickets":  len(tickets),
		"vehicles": len(vehicles),
	}
	for _, t := range trips {
		metrics["trips_"+string(t.Status)]++
	}
	for _, t := range tickets {
		metrics["tickets_"+string(t.Status)]++
	}
	for _, v := range vehicles {
		metrics["vehicles_"+string(v.Status)]++
	}

	title := c.payload.String("title")
	if title == "" {
		title = "Operations summary " + c.env.now().Format("2006-01-02")
	}
	report, err := c.env.repo.CreateReport(ctx, datastore.Report{
		Kind:     datastore.ReportSummary,
		Title:    title,
		AuthorID: c.origin.userID,
		Metrics:  metrics,
	})
	if err != nil {
		return outcome{}, err
	}
	return outcome{value: report, entityID: report.ID, summary: fmt.Sprintf("report %q generated", report.Title)}, nil
}
