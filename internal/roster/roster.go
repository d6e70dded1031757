// Package roster loads the list of known chat servers from JSON.
package roster

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
)

// ServerInfo describes one chat server a peer may dial.
type ServerInfo struct {
	PCName      string `json:"PcName"`
	IPAddress   string `json:"IpAddress"`
	Port        int    `json:"Port"`
	DisplayName string `json:"DisplayName"`
	IsActive    bool   `json:"IsActive"`
}

// Address returns the host:port dial target.
func (s ServerInfo) Address() string {
	return net.JoinHostPort(s.IPAddress, strconv.Itoa(s.Port))
}

// Roster is a concurrency-safe set of servers.
type Roster struct {
	mu      sync.RWMutex
	servers []ServerInfo
}

// Load decodes a JSON array of servers. A JSON null yields an empty roster.
func Load(r io.Reader) (*Roster, error) {
	var servers []ServerInfo
	if err := json.NewDecoder(r).Decode(&servers); err != nil {
		return nil, fmt.Errorf("roster: decode: %w", err)
	}
	return &Roster{servers: servers}, nil
}

// LoadFile reads a roster from path.
func LoadFile(path string) (*Roster, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("roster: open %q: %w", path, err)
	}
	defer f.Close()
	return Load(f)
}

// Servers returns a copy of every entry.
func (r *Roster) Servers() []ServerInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]ServerInfo{}, r.servers...)
}

// Find looks a server up by PC name, ignoring case.
func (r *Roster) Find(pcName string) (ServerInfo, bool) {
	if pcName == "" {
		return ServerInfo{}, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.servers {
		if strings.EqualFold(s.PCName, pcName) {
			return s, true
		}
	}
	return ServerInfo{}, false
}

// Active returns the servers marked active.
func (r *Roster) Active() []ServerInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []ServerInfo{}
	for _, s := range r.servers {
		if s.IsActive {
			out = append(out, s)
		}
	}
	return out
}

// SetActive updates the active flag of the named server and reports whether it exists.
func (r *Roster) SetActive(pcName string, active bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.servers {
		if strings.EqualFold(r.servers[i].PCName, pcName) {
			r.servers[i].IsActive = active
			return true
		}
	}
	return false
}

// ContainsHost reports whether hostname, typically os.Hostname(), is listed.
func (r *Roster) ContainsHost(hostname string) bool {
	_, ok := r.Find(hostname)
	return ok
}
