package domain

import (
	"context"
	"time"
)

// Source identifies the incident taxonomy a record belongs to.
type Source string

const (
	SourceCollision Source = "collision"
	SourceCrime     Source = "crime"
)

// RawCollisionRecord is the flat JSON shape of one collision row.
type RawCollisionRecord struct {
	CollisionID         string `json:"collision_id,omitempty" csv:"collision_id,omitempty"`
	CrashDate           string `json:"crash_date" csv:"crash_date"`
	CrashTime           string `json:"crash_time" csv:"crash_time"`
	Borough             string `json:"borough,omitempty" csv:"borough,omitempty"`
	Latitude            string `json:"latitude" csv:"latitude"`
	Longitude           string `json:"longitude" csv:"longitude"`
	OnStreetName        string `json:"on_street_name,omitempty" csv:"on_street_name,omitempty"`
	PersonsInjured      string `json:"number_of_persons_injured" csv:"number_of_persons_injured"`
	PersonsKilled       string `json:"number_of_persons_killed" csv:"number_of_persons_killed"`
	PedestriansInjured  string `json:"number_of_pedestrians_injured" csv:"number_of_pedestrians_injured"`
	PedestriansKilled   string `json:"number_of_pedestrians_killed" csv:"number_of_pedestrians_killed"`
	CyclistsInjured     string `json:"number_of_cyclist_injured" csv:"number_of_cyclist_injured"`
	CyclistsKilled      string `json:"number_of_cyclist_killed" csv:"number_of_cyclist_killed"`
}

// RawCrimeRecord is the flat JSON shape of one crime complaint row.
type RawCrimeRecord struct {
	ComplaintNumber string `json:"cmplnt_num,omitempty" csv:"cmplnt_num,omitempty"`
	ComplaintDate   string `json:"cmplnt_fr_dt" csv:"cmplnt_fr_dt"`
	ComplaintTime   string `json:"cmplnt_fr_tm,omitempty" csv:"cmplnt_fr_tm,omitempty"`
	Offense         string `json:"ofns_desc" csv:"ofns_desc"`
	LawCategory     string `json:"law_cat_cd,omitempty" csv:"law_cat_cd,omitempty"`
	Borough         string `json:"boro_nm,omitempty" csv:"boro_nm,omitempty"`
	Premise         string `json:"prem_typ_desc,omitempty" csv:"prem_typ_desc,omitempty"`
	Arrest          string `json:"arrest,omitempty" csv:"arrest,omitempty"`
	Latitude        string `json:"latitude" csv:"latitude"`
	Longitude       string `json:"longitude" csv:"longitude"`
}

// RawEvent represents an unprocessed source row from a file or topic.
type RawEvent struct {
	Source    Source
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// Incident is a typed, immutable incident record ready for aggregation.
type Incident struct {
	ID         string    `json:"id"`
	Source     Source    `json:"source"`
	OccurredAt time.Time `json:"occurred_at"`
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	Severity   float64   `json:"severity"`

	// Collision-only sub-severities.
	PedestrianSeverity float64 `json:"pedestrian_severity,omitempty"`
	CyclistSeverity    float64 `json:"cyclist_severity,omitempty"`

	Offense  string `json:"offense,omitempty"`
	Street   string `json:"street,omitempty"`
	Locality string `json:"locality,omitempty"`

	// GeoSource records where the coordinates came from: "original",
	// "forward" (geocoded) or "failed".
	GeoSource string `json:"geo_source,omitempty"`
}

// HasLocation reports whether the incident carries usable coordinates.
func (i Incident) HasLocation() bool {
	return i.Lat != 0 || i.Lng != 0
}
