package http

import (
	"fmt"
	"math"
	"net/url"
	"strconv"

	"github.com/couchcryptid/saferoute/internal/hexgrid"
	"github.com/couchcryptid/saferoute/internal/routing"
)

const (
	defaultRouteBeta   = 0.5
	defaultCompareBeta = 5.0
	defaultHour        = 12
)

type requestError struct {
	param string
	msg   string
}

func (e *requestError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.param, e.msg)
}

// parseRequest reads start_lat, start_lng, end_lat, end_lng (required) and
// beta, hour, weekend, mode (optional) from the query string.
func parseRequest(q url.Values, beta float64) (routing.Request, error) {
	req := routing.Request{
		Beta: beta,
		Hour: defaultHour,
		Mode: routing.ParseTravelMode(q.Get("mode")),
	}

	coords := []struct {
		name string
		dst  *float64
	}{
		{"start_lat", &req.Start.Lat},
		{"start_lng", &req.Start.Lng},
		{"end_lat", &req.End.Lat},
		{"end_lng", &req.End.Lng},
	}
	for _, c := range coords {
		raw := q.Get(c.name)
		if raw == "" {
			return routing.Request{}, &requestError{c.name, "required"}
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return routing.Request{}, &requestError{c.name, "must be a number"}
		}
		*c.dst = v
	}
	if !validLatLng(req.Start) {
		return routing.Request{}, &requestError{"start", "coordinate out of range"}
	}
	if !validLatLng(req.End) {
		return routing.Request{}, &requestError{"end", "coordinate out of range"}
	}

	if raw := q.Get("beta"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(v) || v < 0 || v > 10 {
			return routing.Request{}, &requestError{"beta", "must be a number in [0, 10]"}
		}
		req.Beta = v
	}
	if raw := q.Get("hour"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 || v > 23 {
			return routing.Request{}, &requestError{"hour", "must be an integer in [0, 23]"}
		}
		req.Hour = v
	}
	if raw := q.Get("weekend"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return routing.Request{}, &requestError{"weekend", "must be a boolean"}
		}
		req.Weekend = v
	}
	return req, nil
}

func validLatLng(p hexgrid.LatLng) bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}
