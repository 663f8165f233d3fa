package satellites

import (
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Snapshot is one immutable generation of the registry. Only enabled records
// are indexed; lookups never see a disabled record.
type Snapshot struct {
	Version  uint64
	LoadedAt time.Time
	Source   string

	records  []Record
	byHost   map[string]int
	byID     map[string]int
	byOrigin map[string]int

	total     int
	expiresAt time.Time
}

// Stats mirrors the counts an operator asks for.
type Stats struct {
	Total        int `json:"total"`
	Enabled      int `json:"enabled"`
	WithTenantID int `json:"withTenantId"`
}

// NewSnapshot indexes recs. On a hostname, id or origin collision the first
// record wins and the later one is dropped with a warning.
func NewSnapshot(version uint64, source string, recs []Record, log *zap.SugaredLogger) *Snapshot {
	s := &Snapshot{
		Version:  version,
		LoadedAt: time.Now(),
		Source:   source,
		byHost:   make(map[string]int, len(recs)),
		byID:     make(map[string]int, len(recs)),
		byOrigin: make(map[string]int, len(recs)),
		total:    len(recs),
	}
	for _, r := range recs {
		if !r.Enabled {
			continue
		}
		host := strings.ToLower(r.Hostname)
		if prev, dup := s.byHost[host]; dup {
			log.Warnw("duplicate satellite hostname, keeping first", "hostname", host, "kept", s.records[prev].ID, "dropped", r.ID)
			continue
		}
		if prev, dup := s.byID[r.ID]; dup {
			log.Warnw("duplicate satellite id, keeping first", "id", r.ID, "kept", s.records[prev].Hostname, "dropped", host)
			continue
		}
		if prev, dup := s.byOrigin[r.Origin]; dup {
			log.Warnw("duplicate satellite origin, keeping first", "origin", r.Origin, "kept", s.records[prev].ID, "dropped", r.ID)
			continue
		}
		idx := len(s.records)
		s.records = append(s.records, r)
		s.byHost[host] = idx
		s.byID[r.ID] = idx
		s.byOrigin[r.Origin] = idx
	}
	return s
}

// ResolveByHostname is an exact, case-insensitive hostname lookup.
func (s *Snapshot) ResolveByHostname(hostname string) (Record, bool) {
	if s == nil {
		return Record{}, false
	}
	i, ok := s.byHost[strings.ToLower(hostname)]
	if !ok {
		return Record{}, false
	}
	return s.records[i], true
}

func (s *Snapshot) ResolveByID(id string) (Record, bool) {
	if s == nil {
		return Record{}, false
	}
	i, ok := s.byID[id]
	if !ok {
		return Record{}, false
	}
	return s.records[i], true
}

// HasOrigin reports whether origin (as sent in an Origin header) exactly
// matches a registered satellite origin.
func (s *Snapshot) HasOrigin(origin string) bool {
	if s == nil || origin == "" {
		return false
	}
	_, ok := s.byOrigin[origin]
	return ok
}

// Records returns a copy of the enabled records in load order.
func (s *Snapshot) Records() []Record {
	if s == nil {
		return nil
	}
	return append([]Record(nil), s.records...)
}

func (s *Snapshot) Hostnames() []string {
	if s == nil {
		return nil
	}
	out := make([]string, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r.Hostname)
	}
	sort.Strings(out)
	return out
}

func (s *Snapshot) Origins() []string {
	if s == nil {
		return nil
	}
	out := make([]string, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r.Origin)
	}
	return out
}

func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.records)
}

func (s *Snapshot) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	st := Stats{Total: s.total, Enabled: len(s.records)}
	for _, r := range s.records {
		if r.TenantID != "" {
			st.WithTenantID++
		}
	}
	return st
}

// withExpiry returns a shallow copy sharing the (read-only) indexes.
func (s *Snapshot) withExpiry(t time.Time) *Snapshot {
	cp := *s
	cp.expiresAt = t
	return &cp
}
