package scenario

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// table reads a headered CSV file and calls fn with each row keyed by column.
func table(path string, required []string, fn func(line int, row map[string]string) error) error {
	fh, err := os.Open(path)
	if err != nil {
		return err
	}
	defer fh.Close()
	r := csv.NewReader(fh)
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		return fmt.Errorf("%s: read header: %w", path, err)
	}
	for i := range header {
		header[i] = strings.ToLower(strings.TrimSpace(header[i]))
	}
	for _, col := range required {
		if !contains(header, col) {
			return fmt.Errorf("%s: missing column %q", path, col)
		}
	}
	for line := 2; ; line++ {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		row := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(rec) {
				row[col] = strings.TrimSpace(rec[i])
			}
		}
		if err := fn(line, row); err != nil {
			return fmt.Errorf("%s:%d: %w", path, line, err)
		}
	}
}

func contains(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}

type fields struct {
	row map[string]string
	err error
}

func (f *fields) str(col string) string { return f.row[col] }

func (f *fields) float(col string) float64 {
	s := f.row[col]
	if s == "" || f.err != nil {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		f.err = fmt.Errorf("column %s: %w", col, err)
	}
	return v
}

func (f *fields) int(col string) int {
	return int(f.float(col))
}

func (f *fields) fleets(col string) []string {
	s := f.row[col]
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ";")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func readVehicles(path string) ([]Vehicle, error) {
	var out []Vehicle
	err := table(path, []string{"vehicle_id", "lat", "lon", "mechatronics_id", "initial_soc"}, func(_ int, row map[string]string) error {
		f := &fields{row: row}
		v := Vehicle{
			ID:             f.str("vehicle_id"),
			Lat:            f.float("lat"),
			Lon:            f.float("lon"),
			MechatronicsID: f.str("mechatronics_id"),
			InitialSOC:     f.float("initial_soc"),
			TotalSeats:     f.int("total_seats"),
			FleetIDs:       f.fleets("fleet_id"),
		}
		out = append(out, v)
		return f.err
	})
	return out, err
}

func readRequests(path string) ([]Request, error) {
	var out []Request
	err := table(path, []string{"request_id", "o_lat", "o_lon", "d_lat", "d_lon", "departure_time", "passengers"}, func(_ int, row map[string]string) error {
		f := &fields{row: row}
		r := Request{
			ID:            f.str("request_id"),
			OLat:          f.float("o_lat"),
			OLon:          f.float("o_lon"),
			DLat:          f.float("d_lat"),
			DLon:          f.float("d_lon"),
			DepartureTime: f.str("departure_time"),
			Passengers:    f.int("passengers"),
			Value:         f.float("value"),
			FleetIDs:      f.fleets("fleet_id"),
		}
		out = append(out, r)
		return f.err
	})
	return out, err
}

// readStations merges rows sharing a station id: one row per charger type.
func readStations(path string) ([]Station, error) {
	var out []Station
	index := map[string]int{}
	err := table(path, []string{"station_id", "lat", "lon", "charger_id", "charger_count"}, func(_ int, row map[string]string) error {
		f := &fields{row: row}
		id := f.str("station_id")
		i, seen := index[id]
		if !seen {
			out = append(out, Station{
				ID:       id,
				Lat:      f.float("lat"),
				Lon:      f.float("lon"),
				Chargers: map[string]int{},
				Prices:   map[string]float64{},
				FleetIDs: f.fleets("fleet_id"),
			})
			i = len(out) - 1
			index[id] = i
		}
		cid := f.str("charger_id")
		out[i].Chargers[cid] += f.int("charger_count")
		if row["price_per_kwh"] != "" {
			out[i].Prices[cid] = f.float("price_per_kwh")
		}
		return f.err
	})
	return out, err
}

func readBases(path string) ([]Base, error) {
	var out []Base
	err := table(path, []string{"base_id", "lat", "lon", "stall_count"}, func(_ int, row map[string]string) error {
		f := &fields{row: row}
		b := Base{
			ID:         f.str("base_id"),
			Lat:        f.float("lat"),
			Lon:        f.float("lon"),
			StallCount: f.int("stall_count"),
			StationID:  f.str("station_id"),
			FleetIDs:   f.fleets("fleet_id"),
		}
		if strings.EqualFold(b.StationID, "none") {
			b.StationID = ""
		}
		out = append(out, b)
		return f.err
	})
	return out, err
}
