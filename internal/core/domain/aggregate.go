package domain

// AggregateStatus classifies a datacenter from its devices.
type AggregateStatus string

const (
	AggregateOnline  AggregateStatus = "online"
	AggregateOffline AggregateStatus = "offline"
	AggregatePartial AggregateStatus = "partial"
	AggregateUnknown AggregateStatus = "unknown"
)

// Tally counts the devices contributing to an aggregate.
type Tally struct {
	Total  int `json:"total"`
	Online int `json:"online"`
}

// Classify folds a tally into an AggregateStatus.
func (t Tally) Classify() AggregateStatus {
	switch {
	case t.Total == 0:
		return AggregateUnknown
	case t.Online == t.Total:
		return AggregateOnline
	case t.Online == 0:
		return AggregateOffline
	default:
		return AggregatePartial
	}
}

// Stats is the live statistics summary shown next to the map.
type Stats struct {
	Total   int `json:"total"`
	Online  int `json:"online"`
	Offline int `json:"offline"`
	Errors  int `json:"errors"`
	Unknown int `json:"unknown"`
}
