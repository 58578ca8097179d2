// Package scenario reads simulation inputs: a YAML document describing the
// fleet, infrastructure and demand, optionally pointing at CSV side files in
// the column layout of common ride-hail datasets.
package scenario

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/fleetsim/core/mechatronics"
	"github.com/kilianp07/fleetsim/core/model"
	"github.com/kilianp07/fleetsim/core/update"
)

// DefaultSeats is used for vehicles that do not give a seat count.
const DefaultSeats = 4

// File is a scenario document.
type File struct {
	Name           string                   `yaml:"name"`
	Chargers       []model.Charger          `yaml:"chargers"`
	Mechatronics   []mechatronics.BEVConfig `yaml:"mechatronics"`
	Vehicles       []Vehicle                `yaml:"vehicles"`
	Stations       []Station                `yaml:"stations"`
	Bases          []Base                   `yaml:"bases"`
	Requests       []Request                `yaml:"requests"`
	Fleets         map[string]Fleet         `yaml:"fleets"`
	RateStructure  *model.RateStructure     `yaml:"rate_structure"`
	ChargingPrices []update.PriceChange     `yaml:"charging_prices"`
	Files          SideFiles                `yaml:"files"`
}

// SideFiles are CSV inputs appended to the inline lists. Relative paths are
// resolved against the scenario file.
type SideFiles struct {
	Vehicles string `yaml:"vehicles"`
	Requests string `yaml:"requests"`
	Stations string `yaml:"stations"`
	Bases    string `yaml:"bases"`
}

// Fleet names the entities that belong to a fleet, in addition to any
// fleet ids set on the entities themselves.
type Fleet struct {
	Vehicles []string `yaml:"vehicles"`
	Stations []string `yaml:"stations"`
	Bases    []string `yaml:"bases"`
}

type Vehicle struct {
	ID             string   `yaml:"vehicle_id"`
	Lat            float64  `yaml:"lat"`
	Lon            float64  `yaml:"lon"`
	MechatronicsID string   `yaml:"mechatronics_id"`
	InitialSOC     float64  `yaml:"initial_soc"`
	TotalSeats     int      `yaml:"total_seats"`
	FleetIDs       []string `yaml:"fleet_ids"`
}

// Station lists charger counts and optional prices per charger id.
type Station struct {
	ID       string             `yaml:"station_id"`
	Lat      float64            `yaml:"lat"`
	Lon      float64            `yaml:"lon"`
	Chargers map[string]int     `yaml:"chargers"`
	Prices   map[string]float64 `yaml:"prices"`
	FleetIDs []string           `yaml:"fleet_ids"`
}

type Base struct {
	ID         string   `yaml:"base_id"`
	Lat        float64  `yaml:"lat"`
	Lon        float64  `yaml:"lon"`
	StallCount int      `yaml:"stall_count"`
	StationID  string   `yaml:"station_id"`
	FleetIDs   []string `yaml:"fleet_ids"`
}

// Request departure times are integer seconds or RFC 3339 timestamps.
type Request struct {
	ID            string   `yaml:"request_id"`
	OLat          float64  `yaml:"o_lat"`
	OLon          float64  `yaml:"o_lon"`
	DLat          float64  `yaml:"d_lat"`
	DLon          float64  `yaml:"d_lon"`
	DepartureTime string   `yaml:"departure_time"`
	Passengers    int      `yaml:"passengers"`
	Value         float64  `yaml:"value"`
	FleetIDs      []string `yaml:"fleet_ids"`
}

// Load reads a scenario file and the CSV files it references.
func Load(path string) (*File, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f File
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}
	if f.Name == "" {
		f.Name = trimExt(filepath.Base(path))
	}
	dir := filepath.Dir(path)
	resolve := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(dir, p)
	}
	if p := resolve(f.Files.Vehicles); p != "" {
		vs, err := readVehicles(p)
		if err != nil {
			return nil, err
		}
		f.Vehicles = append(f.Vehicles, vs...)
	}
	if p := resolve(f.Files.Requests); p != "" {
		rs, err := readRequests(p)
		if err != nil {
			return nil, err
		}
		f.Requests = append(f.Requests, rs...)
	}
	if p := resolve(f.Files.Stations); p != "" {
		ss, err := readStations(p)
		if err != nil {
			return nil, err
		}
		f.Stations = append(f.Stations, ss...)
	}
	if p := resolve(f.Files.Bases); p != "" {
		bs, err := readBases(p)
		if err != nil {
			return nil, err
		}
		f.Bases = append(f.Bases, bs...)
	}
	return &f, nil
}

func trimExt(name string) string {
	return name[:len(name)-len(filepath.Ext(name))]
}
