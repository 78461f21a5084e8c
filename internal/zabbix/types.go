package zabbix

import (
	"strconv"
	"time"
)

// Host is one record from host.get.
type Host struct {
	HostID     string      `json:"hostid"`
	Host       string      `json:"host"`
	Name       string      `json:"name"`
	Status     string      `json:"status"`    // "0" monitored, "1" unmonitored
	Available  string      `json:"available"` // "0" unknown, "1" available, "2" unavailable
	Interfaces []Interface `json:"interfaces,omitempty"`
}

// Interface is a host interface address.
type Interface struct {
	IP string `json:"ip"`
}

// FirstIP returns the first non-empty interface address.
func (h Host) FirstIP() string {
	for _, iface := range h.Interfaces {
		if iface.IP != "" {
			return iface.IP
		}
	}
	return ""
}

// Event is one record from event.get. Zabbix encodes every scalar as a string.
type Event struct {
	EventID      string      `json:"eventid"`
	Source       string      `json:"source"`
	Object       string      `json:"object"`
	ObjectID     string      `json:"objectid"`
	Clock        string      `json:"clock"`
	Value        string      `json:"value"` // "1" problem, "0" OK
	Acknowledged string      `json:"acknowledged"`
	Name         string      `json:"name"`
	Severity     string      `json:"severity"` // priority code 0-5
	Hosts        []EventHost `json:"hosts,omitempty"`
}

// EventHost is a host reference attached by selectHosts.
type EventHost struct {
	HostID string `json:"hostid"`
}

// Event state values.
const (
	ValueOK      = "0"
	ValueProblem = "1"
)

// Time parses Clock as unix seconds. A malformed clock yields the zero time.
func (e Event) Time() time.Time {
	sec, err := strconv.ParseInt(e.Clock, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

// Priority parses Severity. A missing or malformed value yields -1.
func (e Event) Priority() int {
	p, err := strconv.Atoi(e.Severity)
	if err != nil {
		return -1
	}
	return p
}

// HostID returns the host the event belongs to: the first selected host
// when present, otherwise the event's object id.
func (e Event) HostID() string {
	for _, h := range e.Hosts {
		if h.HostID != "" {
			return h.HostID
		}
	}
	return e.ObjectID
}

// HostFilter holds extra host.get parameters merged into the request.
type HostFilter map[string]any
