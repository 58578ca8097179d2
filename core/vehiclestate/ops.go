package vehiclestate

import (
	"fmt"

	"github.com/kilianp07/fleetsim/core/environment"
	"github.com/kilianp07/fleetsim/core/mechatronics"
	"github.com/kilianp07/fleetsim/core/model"
	"github.com/kilianp07/fleetsim/core/report"
	"github.com/kilianp07/fleetsim/core/roadnetwork"
	"github.com/kilianp07/fleetsim/core/simstate"
)

// move advances a routed state along its route for one timestep. A vehicle
// that runs dry on the way is sent out of service where it stands.
func move(sim *simstate.SimulationState, env *environment.Environment, s routed) (*simstate.SimulationState, error) {
	const op = "move"
	v, err := vehicle(sim, op, s.VehicleID())
	if err != nil {
		return nil, err
	}
	m, err := mechatronicsFor(sim, env, op, v)
	if err != nil {
		return nil, err
	}

	tr := roadnetwork.Traverse(s.Route(), float64(sim.TimestepSeconds()))
	if len(tr.Experienced) == 0 {
		return sim.ModifyVehicle(v.WithState(s.withRoute(nil)))
	}

	spent := m.ConsumeEnergy(v, tr.Experienced)
	if m.IsEmpty(spent) {
		drained, err := sim.ModifyVehicle(spent)
		if err != nil {
			return nil, fail(sim, op, v.ID, err)
		}
		out, err := Transition(drained, env, s, NewOutOfService(v.ID, sim.SimTime()))
		if err != nil {
			return nil, err
		}
		if out == nil {
			return drained, nil
		}
		return out, nil
	}

	last := tr.Experienced[len(tr.Experienced)-1]
	moved := spent.
		WithPosition(model.Position{LinkID: last.LinkID, GeoID: last.End}).
		AddDistance(tr.DistanceKm).
		WithState(s.withRoute(tr.Remaining))

	next, err := sim.ModifyVehicle(moved)
	if err != nil {
		return nil, fail(sim, op, v.ID, err)
	}
	lat, lng := last.End.LatLng()
	env.File(report.New(report.VehicleMoveEvent, sim.SimTime(), map[string]any{
		"vehicle_id":    v.ID,
		"vehicle_state": s.Kind().String(),
		"distance_km":   tr.DistanceKm,
		"energy":        energyDelta(v, spent),
		"geoid":         last.End.String(),
		"lat":           lat,
		"lon":           lng,
	}))
	return next, nil
}

func energyDelta(before, after model.Vehicle) float64 {
	var d float64
	for t, kwh := range after.Energy {
		d += kwh - before.Energy[t]
	}
	return d
}

// charge adds one timestep of energy from a station charger and settles the
// bill between vehicle and station.
func charge(sim *simstate.SimulationState, env *environment.Environment, vehicleID, stationID, chargerID string) (*simstate.SimulationState, error) {
	const op = "charge"
	v, err := vehicle(sim, op, vehicleID)
	if err != nil {
		return nil, err
	}
	st, err := station(sim, op, stationID)
	if err != nil {
		return nil, err
	}
	m, err := mechatronicsFor(sim, env, op, v)
	if err != nil {
		return nil, err
	}
	c, err := env.Charger(chargerID)
	if err != nil {
		return nil, fail(sim, op, vehicleID, err)
	}
	if m.IsFull(v) {
		return nil, fail(sim, op, vehicleID, fmt.Errorf("vehicle is full but still charging at %s", stationID))
	}

	charged, _ := m.AddEnergy(v, c, sim.TimestepSeconds())
	kwh := charged.Energy[c.EnergyType] - v.Energy[c.EnergyType]
	price, _ := st.Price(chargerID)
	cost := kwh * price

	withVehicle, err := sim.ModifyVehicle(charged.SendPayment(cost))
	if err != nil {
		return nil, fail(sim, op, vehicleID, err)
	}
	out, err := withVehicle.ModifyStation(st.ReceivePayment(cost))
	if err != nil {
		return nil, fail(sim, op, stationID, err)
	}

	env.File(report.New(report.VehicleChargeEvent, sim.SimTime(), map[string]any{
		"vehicle_id":        vehicleID,
		"station_id":        stationID,
		"charger_id":        chargerID,
		"vehicle_state":     v.State.Kind().String(),
		"energy":            kwh,
		"energy_units":      "kwh",
		"vehicle_start_soc": m.SOC(v),
		"vehicle_end_soc":   m.SOC(charged),
		"price":             cost,
		"geoid":             st.GeoID().String(),
	}))
	return out, nil
}

// chargeComplete is the terminal test of the charging states: the vehicle is
// full, or it is on a fast charger and reached the configured limit.
func chargeComplete(env *environment.Environment, m mechatronics.Mechatronics, v model.Vehicle, chargerID string) bool {
	if m.IsFull(v) {
		return true
	}
	limit := env.Params.IdealFastchargeSOCLimit
	if limit <= 0 || limit >= 1 {
		return false
	}
	c, err := env.Charger(chargerID)
	if err != nil {
		return false
	}
	return c.RateKW >= env.Params.FastChargeMinKW && m.SOC(v) >= limit
}

// dropOff lets every passenger out of the vehicle.
func dropOff(sim *simstate.SimulationState, env *environment.Environment, vehicleID string, req model.Request, departure model.SimTime) (*simstate.SimulationState, error) {
	const op = "drop_off"
	v, err := vehicle(sim, op, vehicleID)
	if err != nil {
		return nil, err
	}
	if len(v.Passengers) == 0 {
		return sim, nil
	}
	stranded := false
	for _, p := range v.Passengers {
		if p.Destination.GeoID != v.GeoID() {
			stranded = true
		}
	}
	lat, lng := v.GeoID().LatLng()
	env.File(report.New(report.DropoffRequestEvent, sim.SimTime(), map[string]any{
		"vehicle_id":   vehicleID,
		"request_id":   req.ID,
		"dropoff_time": int64(sim.SimTime()),
		"travel_time":  int64(sim.SimTime() - departure),
		"fleet_id":     req.Membership.String(),
		"geoid":        v.GeoID().String(),
		"lat":          lat,
		"lon":          lng,
		"stranded":     stranded,
	}))
	return sim.ModifyVehicle(v.DropOff())
}

func reportRecovery(sim *simstate.SimulationState, before, after model.Vehicle, startSOC, endSOC float64, since model.SimTime) report.Report {
	return report.New(report.VehicleChargeEvent, sim.SimTime(), map[string]any{
		"vehicle_id":        before.ID,
		"charge_kind":       "roadside_recovery",
		"vehicle_state":     model.StateOutOfService.String(),
		"energy":            energyDelta(before, after),
		"energy_units":      "kwh",
		"vehicle_start_soc": startSOC,
		"vehicle_end_soc":   endSOC,
		"out_of_service_s":  int64(sim.SimTime() - since),
		"geoid":             before.GeoID().String(),
	})
}
