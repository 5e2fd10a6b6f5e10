package evidence

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HeaderValue preserves the single-or-multi shape of an HTTP header. A header
// that arrived once serializes as a plain string; a repeated header serializes
// as a list. The distinction survives a JSON round trip.
type HeaderValue struct {
	values []string
	multi  bool
}

// SingleHeader wraps one header value.
func SingleHeader(v string) HeaderValue {
	return HeaderValue{values: []string{v}}
}

// MultiHeader wraps a repeated header. A one-element slice still marshals as
// a list, matching how it arrived.
func MultiHeader(vs []string) HeaderValue {
	cp := make([]string, len(vs))
	copy(cp, vs)
	return HeaderValue{values: cp, multi: true}
}

// IsMulti reports whether the header carried multiple values.
func (h HeaderValue) IsMulti() bool { return h.multi }

// First returns the first value, or "" for an empty header.
func (h HeaderValue) First() string {
	if len(h.values) == 0 {
		return ""
	}
	return h.values[0]
}

// Values returns a copy of all values.
func (h HeaderValue) Values() []string {
	cp := make([]string, len(h.values))
	copy(cp, h.values)
	return cp
}

func (h HeaderValue) MarshalJSON() ([]byte, error) {
	if h.multi {
		return json.Marshal(h.values)
	}
	return json.Marshal(h.First())
}

func (h *HeaderValue) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*h = SingleHeader(single)
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err == nil {
		*h = MultiHeader(many)
		return nil
	}
	return fmt.Errorf("header value is neither string nor string list: %s", data)
}

// HeaderMap is a response header set with multi-valued headers preserved.
type HeaderMap map[string]HeaderValue

// HeadersFromHTTP converts net/http headers, keeping repeated headers as
// multi values.
func HeadersFromHTTP(h http.Header) HeaderMap {
	out := make(HeaderMap, len(h))
	for name, vals := range h {
		if len(vals) == 1 {
			out[name] = SingleHeader(vals[0])
		} else {
			out[name] = MultiHeader(vals)
		}
	}
	return out
}

// RedirectHop is one request/response pair within a single logical fetch.
// A transport-level failure records a synthetic hop with Status 0, no headers,
// and a nil BodySize.
type RedirectHop struct {
	URL         string    `json:"url"`
	Status      int       `json:"status"`
	StatusText  string    `json:"statusText"`
	Headers     HeaderMap `json:"headers,omitempty"`
	Location    *string   `json:"location"`
	Method      string    `json:"method"`
	RequestedAt time.Time `json:"requestedAt"`
	RespondedAt time.Time `json:"respondedAt"`
	DurationMs  int64     `json:"durationMs"`
	BodySize    *int64    `json:"bodySize"`
}
