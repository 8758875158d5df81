package datastore

import "time"

// DefaultFixtures returns a small demo fleet with one day of trips
// departing from base.
func DefaultFixtures(base time.Time) Fixtures {
	day := time.Date(base.Year(), base.Month(), base.Day(), 0, 0, 0, 0, base.Location())
	return Fixtures{
		Vehicles: []Vehicle{
			{ID: "v1", Plate: "WP-1001", Capacity: 48, Status: VehicleAvailable},
			{ID: "v2", Plate: "WP-1002", Capacity: 48, Status: VehicleAvailable},
			{ID: "v3", Plate: "WP-2001", Capacity: 22, Status: VehicleMaintenance, Notes: "brake inspection"},
		},
		Trips: []Trip{
			{ID: "t1", Route: "R1", Origin: "Central", Destination: "Harbor", DepartureAt: day.Add(7 * time.Hour), Seats: 48, VehicleID: "v1", DriverID: "u3"},
			{ID: "t2", Route: "R1", Origin: "Harbor", Destination: "Central", DepartureAt: day.Add(9 * time.Hour), Seats: 48, VehicleID: "v1", DriverID: "u3"},
			{ID: "t3", Route: "R7", Origin: "Central", Destination: "Airport", DepartureAt: day.Add(11 * time.Hour), Seats: 48, VehicleID: "v2"},
		},
		Tickets: []Ticket{
			{ID: "k1", TripID: "t1", PassengerName: "Mara Quinn", Seat: 1, Price: 4.5},
			{ID: "k2", TripID: "t1", PassengerName: "Jon Bell", Seat: 2, Price: 4.5},
			{ID: "k3", TripID: "t3", PassengerName: "Ivo Lenz", Seat: 12, Price: 9},
		},
	}
}
