package report

import (
	"encoding/json"
	"fmt"

	"github.com/kilianp07/fleetsim/core/model"
	corereport "github.com/kilianp07/fleetsim/core/report"
)

// Record is a report tagged with the run that produced it.
type Record struct {
	RunID string
	corereport.Report
}

func (r Record) MarshalJSON() ([]byte, error) {
	flat := make(map[string]any, len(r.Data)+3)
	for k, v := range r.Data {
		flat[k] = v
	}
	flat["run_id"] = r.RunID
	flat["report_type"] = r.Type
	flat["sim_time"] = int64(r.SimTime)
	return json.Marshal(flat)
}

func (r *Record) UnmarshalJSON(b []byte) error {
	var rep corereport.Report
	if err := json.Unmarshal(b, &rep); err != nil {
		return err
	}
	id, _ := rep.Data["run_id"].(string)
	delete(rep.Data, "run_id")
	*r = Record{RunID: id, Report: rep}
	return nil
}

func records(b corereport.Batch) []Record {
	out := make([]Record, len(b.Reports))
	for i, rep := range b.Reports {
		out[i] = Record{RunID: b.RunID, Report: rep}
	}
	return out
}

// Query selects stored records. Zero fields match everything.
type Query struct {
	RunID string
	Types []corereport.Type
	From  model.SimTime
	To    model.SimTime
}

func (q Query) match(r Record) bool {
	if q.RunID != "" && r.RunID != q.RunID {
		return false
	}
	if q.From != 0 && r.SimTime < q.From {
		return false
	}
	if q.To != 0 && r.SimTime > q.To {
		return false
	}
	if len(q.Types) == 0 {
		return true
	}
	for _, t := range q.Types {
		if t == r.Type {
			return true
		}
	}
	return false
}

func topicFor(prefix string, r Record) string {
	return fmt.Sprintf("%s/%s/%s", prefix, r.RunID, r.Type)
}
