// Package domain models the incident records that feed the risk surface.
//
// # Data Sources
//
// Two incident taxonomies are supported. Collision records follow the NYC
// Motor Vehicle Collisions dataset (Socrata field names such as crash_date,
// crash_time, number_of_persons_injured). Crime records follow the NYPD
// complaint dataset (cmplnt_fr_dt, ofns_desc, law_cat_cd, prem_typ_desc);
// Chicago records are accepted in the same shape, with the Chicago primary
// type mapped to the offense field and the arrest flag carried as a string.
//
// Each source row travels as flat JSON inside a [RawEvent], whether it was
// read from a CSV file or consumed from Kafka. The "source" header (or the
// extractor that produced the event) selects the parser.
//
// # Severity
//
// Collisions:
//
//	severity            = killed*10 + injured*2 + 1
//	pedestrian_severity = pedestrians_injured*2 + pedestrians_killed*10
//	cyclist_severity    = cyclists_injured*2 + cyclists_killed*10
//
// The +1 gives property-damage-only crashes a non-zero weight.
//
// Crimes: the offense weight comes from [OffenseWeight] (unknown offenses
// weigh 1), multiplied by 1.5 for felonies and by 1.3 when an arrest was
// made. Only offenses committed at outdoor premises are kept; records with
// no premise description are kept.
//
// # Timestamps
//
// Timestamps are local wall-clock times. They are parsed without a zone and
// stored as UTC so that Hour and Weekday return the local values used for
// time-of-day bucketing. A crime record with no time of day defaults to noon.
//
// # Time Buckets
//
//	night        [0, 6)
//	morning_rush [6, 9)
//	midday       [9, 16)
//	evening_rush [16, 19)
//	evening      [19, 24)
//
// crossed with weekday / weekend (Saturday and Sunday). Hours outside 0-23
// fall back to night. The same bucketing is used when building the surface
// and when routing.
//
// # ID Generation
//
// Incident IDs are deterministic SHA-256 hashes of
// source|ref|lat|lng|timestamp|severity, so replaying a source produces the
// same IDs. The ref is the dataset's own record id (collision_id or
// cmplnt_num). Rows without one fall back to the event position
// (topic/partition/offset, or file/0/row for CSV input), which keeps records
// with identical fields apart.
package domain
