package api

import (
	"time"

	"github.com/argus-vision/argus/internal/identity"
	"github.com/argus-vision/argus/internal/radar"
	"github.com/argus-vision/argus/internal/session"
	"github.com/argus-vision/argus/internal/watchlist"
)

type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	UptimeS  int64  `json:"uptime_s"`
	ServerID string `json:"server_id"`
}

type CommandResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

type CameraResponse struct {
	ID          string  `json:"id"`
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
	RemoteAddr  string  `json:"remote_addr"`
	State       string  `json:"state"`
	ConnectedAt string  `json:"connected_at"`
}

type CamerasResponse struct {
	Cameras []CameraResponse `json:"cameras"`
}

type RadarRecordResponse struct {
	SourceIP string  `json:"source_ip"`
	Host     string  `json:"host"`
	Port     int     `json:"port"`
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
	LastSeen string  `json:"last_seen"`
}

type RadarResponse struct {
	Records []RadarRecordResponse `json:"records"`
}

type SightingResponse struct {
	Seq    int64   `json:"seq"`
	Lat    float64 `json:"lat"`
	Lng    float64 `json:"lng"`
	SeenAt string  `json:"seen_at"`
}

type PersonResponse struct {
	ID         string             `json:"id"`
	Name       string             `json:"name,omitempty"`
	Embeddings int                `json:"embeddings"`
	Sightings  []SightingResponse `json:"sightings"`
	CreatedAt  string             `json:"created_at"`
}

type PersonsResponse struct {
	Persons []PersonResponse `json:"persons"`
}

type EnrollRequest struct {
	Name  string   `json:"name"`
	Crops []string `json:"crops"` // base64 JPEG face crops
}

type WatchlistEntryResponse struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Embeddings int    `json:"embeddings"`
	CreatedAt  string `json:"created_at"`
}

type WatchlistResponse struct {
	Entries []WatchlistEntryResponse `json:"entries"`
}

type AlertResponse struct {
	EntryID   string           `json:"entry_id"`
	EntryName string           `json:"entry_name"`
	PersonID  string           `json:"person_id"`
	Sighting  SightingResponse `json:"sighting"`
	RaisedAt  string           `json:"raised_at"`
}

type AlertsResponse struct {
	Alerts []AlertResponse `json:"alerts"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func CameraToResponse(info session.Info) CameraResponse {
	return CameraResponse{
		ID:          info.ID,
		Lat:         info.Location.Lat,
		Lng:         info.Location.Lng,
		RemoteAddr:  info.RemoteAddr,
		State:       string(info.State),
		ConnectedAt: info.ConnectedAt.Format(time.RFC3339),
	}
}

func RadarRecordToResponse(rec radar.Record) RadarRecordResponse {
	return RadarRecordResponse{
		SourceIP: rec.SourceIP,
		Host:     rec.Host,
		Port:     rec.Port,
		Lat:      rec.Location.Lat,
		Lng:      rec.Location.Lng,
		LastSeen: rec.LastSeen.Format(time.RFC3339),
	}
}

func SightingToResponse(s identity.Sighting) SightingResponse {
	return SightingResponse{
		Seq:    s.Seq,
		Lat:    s.Location.Lat,
		Lng:    s.Location.Lng,
		SeenAt: s.SeenAt.Format(time.RFC3339),
	}
}

func PersonToResponse(p *identity.Person) PersonResponse {
	resp := PersonResponse{
		ID:         p.ID,
		Name:       p.Name,
		Embeddings: len(p.EmbeddingIDs),
		Sightings:  make([]SightingResponse, len(p.Sightings)),
		CreatedAt:  p.CreatedAt.Format(time.RFC3339),
	}
	for i, s := range p.Sightings {
		resp.Sightings[i] = SightingToResponse(s)
	}
	return resp
}

func EntryToResponse(e *watchlist.Entry) WatchlistEntryResponse {
	return WatchlistEntryResponse{
		ID:         e.ID,
		Name:       e.Name,
		Embeddings: e.EmbeddingCount,
		CreatedAt:  e.CreatedAt.Format(time.RFC3339),
	}
}

func AlertToResponse(a watchlist.Alert) AlertResponse {
	return AlertResponse{
		EntryID:   a.EntryID,
		EntryName: a.EntryName,
		PersonID:  a.PersonID,
		Sighting:  SightingToResponse(a.Sighting),
		RaisedAt:  a.RaisedAt.Format(time.RFC3339),
	}
}
