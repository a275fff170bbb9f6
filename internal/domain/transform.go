package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrUnknownSource is returned when a raw event names no supported taxonomy.
var ErrUnknownSource = errors.New("unknown incident source")

// ErrIndoorPremise marks crime records filtered out by premise type.
var ErrIndoorPremise = errors.New("crime premise is not outdoors")

// offenseWeights maps offense descriptions to base severity. NYPD and
// Chicago names share one table; the key sets do not conflict.
var offenseWeights = map[string]float64{
	// NYPD
	"MURDER & NON-NEGL. MANSLAUGHTER": 10,
	"RAPE":                            8,
	"ROBBERY":                         5,
	"FELONY ASSAULT":                  4,
	"ASSAULT 3 & RELATED OFFENSES":    2,
	"DANGEROUS WEAPONS":               3,
	"SEX CRIMES":                      3,
	"GRAND LARCENY":                   1,
	"PETIT LARCENY":                   1,
	"GRAND LARCENY OF MOTOR VEHICLE":  1,
	// Chicago
	"HOMICIDE":                10,
	"CRIM SEXUAL ASSAULT":     8,
	"CRIMINAL SEXUAL ASSAULT": 8,
	"KIDNAPPING":              6,
	"BATTERY":                 4,
	"ASSAULT":                 3,
	"WEAPONS VIOLATION":       3,
	"SEX OFFENSE":             3,
	"THEFT":                   1,
	"MOTOR VEHICLE THEFT":     1,
}

var outdoorPremises = map[string]struct{}{
	// NYPD
	"STREET": {}, "PARK/PLAYGROUND": {}, "TRANSIT - NYC SUBWAY": {},
	"TRANSIT FACILITY (OTHER)": {}, "OPEN AREAS (OPEN COVERAGE)": {},
	"PARKING LOT/GARAGE (PUBLIC)": {}, "BUS STOP": {}, "TUNNEL": {},
	"BRIDGE": {}, "HIGHWAY/PARKWAY": {}, "PEDESTRIAN OVERPASS": {},
	// Chicago
	"SIDEWALK": {}, "ALLEY": {}, "PARKING LOT/GARAGE(NON.RESID.)": {},
	"PARKING LOT": {}, "PARK PROPERTY": {}, "CTA PLATFORM": {},
	"CTA STATION": {}, "CTA BUS": {}, "CTA TRAIN": {}, "CTA L PLATFORM": {},
	"CTA L TRAIN": {}, "HIGHWAY/EXPRESSWAY": {}, "DRIVEWAY - RESIDENTIAL": {},
	"GAS STATION": {}, "LAKEFRONT/WATERFRONT/RIVERBANK": {},
	"SCHOOL, PUBLIC, GROUNDS": {}, "SPORTS ARENA/STADIUM": {},
}

const (
	felonyMultiplier = 1.5
	arrestMultiplier = 1.3
)

// OffenseWeight returns the base severity for an offense description.
// Unknown offenses weigh 1.
func OffenseWeight(offense string) float64 {
	if w, ok := offenseWeights[strings.ToUpper(strings.TrimSpace(offense))]; ok {
		return w
	}
	return 1
}

// IsOutdoorPremise reports whether a premise description is an outdoor or
// street location. An empty description counts as outdoors.
func IsOutdoorPremise(premise string) bool {
	premise = strings.ToUpper(strings.TrimSpace(premise))
	if premise == "" {
		return true
	}
	_, ok := outdoorPremises[premise]
	return ok
}

// ParseRawEvent decodes a raw event into a typed Incident. The event's
// Source field wins over the "source" header. A record without its own id
// is identified by the event's position in its topic or file.
func ParseRawEvent(raw RawEvent) (Incident, error) {
	source := raw.Source
	if source == "" {
		source = Source(raw.Headers["source"])
	}
	switch source {
	case SourceCollision:
		var rec RawCollisionRecord
		if err := json.Unmarshal(raw.Value, &rec); err != nil {
			return Incident{}, fmt.Errorf("parse collision record: %w", err)
		}
		ref := strings.TrimSpace(rec.CollisionID)
		if ref == "" {
			ref = eventRef(raw)
		}
		return parseCollision(rec, ref)
	case SourceCrime:
		var rec RawCrimeRecord
		if err := json.Unmarshal(raw.Value, &rec); err != nil {
			return Incident{}, fmt.Errorf("parse crime record: %w", err)
		}
		ref := strings.TrimSpace(rec.ComplaintNumber)
		if ref == "" {
			ref = eventRef(raw)
		}
		return parseCrime(rec, ref)
	default:
		return Incident{}, fmt.Errorf("%w: %q", ErrUnknownSource, source)
	}
}

// ParseCollision converts a collision row into an Incident.
func ParseCollision(rec RawCollisionRecord) (Incident, error) {
	return parseCollision(rec, strings.TrimSpace(rec.CollisionID))
}

func parseCollision(rec RawCollisionRecord, ref string) (Incident, error) {
	occurred, err := parseLocalTime(rec.CrashDate, rec.CrashTime, "")
	if err != nil {
		return Incident{}, fmt.Errorf("collision timestamp: %w", err)
	}

	injured := parseFloatOrZero(rec.PersonsInjured)
	killed := parseFloatOrZero(rec.PersonsKilled)

	inc := Incident{
		Source:             SourceCollision,
		OccurredAt:         occurred,
		Lat:                parseFloatOrZero(rec.Latitude),
		Lng:                parseFloatOrZero(rec.Longitude),
		Severity:           killed*10 + injured*2 + 1,
		PedestrianSeverity: parseFloatOrZero(rec.PedestriansInjured)*2 + parseFloatOrZero(rec.PedestriansKilled)*10,
		CyclistSeverity:    parseFloatOrZero(rec.CyclistsInjured)*2 + parseFloatOrZero(rec.CyclistsKilled)*10,
		Street:             strings.TrimSpace(rec.OnStreetName),
		Locality:           strings.TrimSpace(rec.Borough),
		GeoSource:          "original",
	}
	inc.ID = generateID(inc.Source, ref, inc.Lat, inc.Lng, inc.OccurredAt, inc.Severity)
	return inc, nil
}

// ParseCrime converts a crime complaint row into an Incident. Records at
// indoor premises are rejected with ErrIndoorPremise.
func ParseCrime(rec RawCrimeRecord) (Incident, error) {
	return parseCrime(rec, strings.TrimSpace(rec.ComplaintNumber))
}

func parseCrime(rec RawCrimeRecord, ref string) (Incident, error) {
	if !IsOutdoorPremise(rec.Premise) {
		return Incident{}, fmt.Errorf("%w: %q", ErrIndoorPremise, rec.Premise)
	}

	occurred, err := parseLocalTime(rec.ComplaintDate, rec.ComplaintTime, "12:00:00")
	if err != nil {
		return Incident{}, fmt.Errorf("crime timestamp: %w", err)
	}

	severity := OffenseWeight(rec.Offense)
	if strings.EqualFold(strings.TrimSpace(rec.LawCategory), "FELONY") {
		severity *= felonyMultiplier
	}
	if strings.EqualFold(strings.TrimSpace(rec.Arrest), "true") {
		severity *= arrestMultiplier
	}

	inc := Incident{
		Source:     SourceCrime,
		OccurredAt: occurred,
		Lat:        parseFloatOrZero(rec.Latitude),
		Lng:        parseFloatOrZero(rec.Longitude),
		Severity:   severity,
		Offense:    strings.ToUpper(strings.TrimSpace(rec.Offense)),
		Locality:   strings.TrimSpace(rec.Borough),
		GeoSource:  "original",
	}
	inc.ID = generateID(inc.Source, ref, inc.Lat, inc.Lng, inc.OccurredAt, inc.Severity)
	return inc, nil
}

// parseFloatOrZero parses a string as float64, returning 0 on failure.
func parseFloatOrZero(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

var timeLayouts = []string{"15:04:05", "15:04"}

// parseLocalTime joins the date part of a Socrata timestamp
// ("2024-03-15T00:00:00.000") with an HH:MM[:SS] time of day.
func parseLocalTime(date, timeOfDay, defaultTimeOfDay string) (time.Time, error) {
	date = strings.TrimSpace(date)
	if len(date) < 10 {
		return time.Time{}, fmt.Errorf("invalid date %q", date)
	}
	day, err := time.Parse(time.DateOnly, date[:10])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", date, err)
	}

	timeOfDay = strings.TrimSpace(timeOfDay)
	if timeOfDay == "" {
		timeOfDay = defaultTimeOfDay
	}
	if timeOfDay == "" {
		// A bare date carries its own time component when present.
		if len(date) >= 19 {
			if ts, err := time.Parse("2006-01-02T15:04:05", date[:19]); err == nil {
				return ts, nil
			}
		}
		return day, nil
	}

	for _, layout := range timeLayouts {
		tod, err := time.Parse(layout, timeOfDay)
		if err == nil {
			return time.Date(day.Year(), day.Month(), day.Day(),
				tod.Hour(), tod.Minute(), tod.Second(), 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time of day %q", timeOfDay)
}

// eventRef identifies an event by where it was read from, or "" when the
// event carries no position.
func eventRef(raw RawEvent) string {
	if raw.Topic == "" {
		return ""
	}
	return fmt.Sprintf("%s/%d/%d", raw.Topic, raw.Partition, raw.Offset)
}

// generateID produces a deterministic ID from the record reference and the
// incident's key fields.
func generateID(source Source, ref string, lat, lng float64, occurred time.Time, severity float64) string {
	input := fmt.Sprintf("%s|%s|%.6f|%.6f|%s|%g", source, ref, lat, lng, occurred.Format(time.RFC3339), severity)
	hash := sha256.Sum256([]byte(input))
	return string(source) + "-" + hex.EncodeToString(hash[:8])
}
