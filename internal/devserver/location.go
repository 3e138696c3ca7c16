package devserver

import (
	"math"
	"net/http"
)

type place struct {
	Zip   string
	Label string
	Lat   float64
	Long  float64
}

// places is the ZIP table the development backend knows about.
var places = []place{
	{"02139", "Cambridge, MA", 42.3647, -71.1042},
	{"10001", "New York, NY", 40.7506, -73.9972},
	{"30303", "Atlanta, GA", 33.7525, -84.3888},
	{"60601", "Chicago, IL", 41.8858, -87.6181},
	{"73301", "Austin, TX", 30.2672, -97.7431},
	{"80202", "Denver, CO", 39.7527, -104.9992},
	{"94103", "San Francisco, CA", 37.7725, -122.4091},
	{"98101", "Seattle, WA", 47.6114, -122.3305},
}

func lookupPlace(zip string) (place, bool) {
	for _, p := range places {
		if p.Zip == zip {
			return p, true
		}
	}
	return place{}, false
}

func zipLabel(zip string) string {
	if p, found := lookupPlace(zip); found {
		return p.Label
	}
	return zip
}

func nearestPlace(lat, long float64) place {
	best, bestD := places[0], math.Inf(1)
	for _, p := range places {
		d := math.Hypot(p.Lat-lat, p.Long-long)
		if d < bestD {
			best, bestD = p, d
		}
	}
	return best
}

func (s *Server) handleZipCheck(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Zip string `json:"zip"`
	}
	if !decode(w, r, &in) {
		return
	}
	_, found := lookupPlace(in.Zip)
	ok(w, map[string]any{"result": found})
}

func (s *Server) handleZipLookup(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Lat  float64 `json:"lat"`
		Long float64 `json:"long"`
	}
	if !decode(w, r, &in) {
		return
	}
	ok(w, map[string]any{"zip": nearestPlace(in.Lat, in.Long).Zip})
}
