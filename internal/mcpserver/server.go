// Package mcpserver exposes the dashboard's saved location, alert log,
// weather and advice as MCP tools over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/Aditya-Ranjan1234/AgroVision/internal/collab"
	"github.com/Aditya-Ranjan1234/AgroVision/internal/db"
)

const (
	serverName    = "agrovision"
	defaultAlerts = 10
	maxAlerts     = 100
)

// errNoLocation is reported when a tool needs a location and none is saved.
var errNoLocation = errors.New("no saved location; pass lat and lon or set one in the dashboard")

// Store is the local database.
type Store interface {
	Location() (*db.SavedLocation, error)
	RecentAlerts(limit int) ([]db.AlertRecord, error)
}

// Farm is the server-side weather and advice API.
type Farm interface {
	Weather(ctx context.Context, lat, lon float64) (collab.Weather, error)
	Advice(ctx context.Context, w collab.Weather, place collab.Place) (string, error)
}

// Server wraps the MCP server and its tool handlers.
type Server struct {
	store Store
	farm  Farm
	log   zerolog.Logger
	mcp   *server.MCPServer
}

// New builds the server and registers the tools.
func New(store Store, farm Farm, version string, log zerolog.Logger) *Server {
	s := &Server{
		store: store,
		farm:  farm,
		log:   log,
		mcp:   server.NewMCPServer(serverName, version, server.WithToolCapabilities(false)),
	}

	s.mcp.AddTool(mcp.NewTool("saved_location",
		mcp.WithDescription("Return the farm location saved in the AgroVision dashboard."),
	), s.handleSavedLocation)

	s.mcp.AddTool(mcp.NewTool("recent_alerts",
		mcp.WithDescription("List the most recent camera alerts received by the dashboard, newest first."),
		mcp.WithNumber("limit", mcp.Description("Maximum number of alerts (default 10, max 100)")),
	), s.handleRecentAlerts)

	s.mcp.AddTool(mcp.NewTool("current_weather",
		mcp.WithDescription("Current weather at a location. Defaults to the saved farm location."),
		mcp.WithNumber("lat", mcp.Description("Latitude")),
		mcp.WithNumber("lon", mcp.Description("Longitude")),
	), s.handleWeather)

	s.mcp.AddTool(mcp.NewTool("farm_advice",
		mcp.WithDescription("Farming advice for the current weather at a location. Defaults to the saved farm location."),
		mcp.WithNumber("lat", mcp.Description("Latitude")),
		mcp.WithNumber("lon", mcp.Description("Longitude")),
	), s.handleAdvice)

	return s
}

// Serve speaks MCP over in/out until ctx is done or in closes.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	return server.NewStdioServer(s.mcp).Listen(ctx, in, out)
}

func (s *Server) handleSavedLocation(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	loc, err := s.store.Location()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("read location: %v", err)), nil
	}
	if loc == nil {
		return mcp.NewToolResultText("No location saved."), nil
	}
	return jsonResult(map[string]any{
		"lat":        loc.Lat,
		"lon":        loc.Lon,
		"name":       loc.Name,
		"updated_at": loc.UpdatedAt,
	})
}

func (s *Server) handleRecentAlerts(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := req.GetInt("limit", defaultAlerts)
	if limit <= 0 {
		limit = defaultAlerts
	}
	if limit > maxAlerts {
		limit = maxAlerts
	}

	records, err := s.store.RecentAlerts(limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("read alerts: %v", err)), nil
	}
	if len(records) == 0 {
		return mcp.NewToolResultText("No alerts recorded."), nil
	}

	out := make([]map[string]any, 0, len(records))
	for _, r := range records {
		entry := map[string]any{
			"message":     r.Message,
			"severity":    r.Severity,
			"timestamp":   r.Timestamp,
			"received_at": r.ReceivedAt,
		}
		if r.ID != "" {
			entry["id"] = r.ID
		}
		if r.Type != "" {
			entry["type"] = r.Type
		}
		if r.CameraID != "" {
			entry["camera_id"] = r.CameraID
		}
		if r.Confidence != nil {
			entry["confidence"] = *r.Confidence
		}
		out = append(out, entry)
	}
	return jsonResult(out)
}

// place resolves lat/lon arguments, falling back to the saved location.
func (s *Server) place(req mcp.CallToolRequest) (collab.Place, error) {
	args := req.GetArguments()
	_, hasLat := args["lat"]
	_, hasLon := args["lon"]
	if hasLat && hasLon {
		return collab.Place{Lat: req.GetFloat("lat", 0), Lon: req.GetFloat("lon", 0)}, nil
	}

	loc, err := s.store.Location()
	if err != nil {
		return collab.Place{}, fmt.Errorf("read location: %w", err)
	}
	if loc == nil {
		return collab.Place{}, errNoLocation
	}
	return collab.Place{Lat: loc.Lat, Lon: loc.Lon, Name: loc.Name}, nil
}

func (s *Server) handleWeather(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p, err := s.place(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	w, err := s.farm.Weather(ctx, p.Lat, p.Lon)
	if err != nil {
		s.log.Warn().Err(err).Msg("weather tool failed")
		return mcp.NewToolResultError(fmt.Sprintf("weather: %v", err)), nil
	}
	return jsonResult(w)
}

func (s *Server) handleAdvice(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p, err := s.place(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	w, err := s.farm.Weather(ctx, p.Lat, p.Lon)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("weather: %v", err)), nil
	}
	advice, err := s.farm.Advice(ctx, w, p)
	if err != nil {
		s.log.Warn().Err(err).Msg("advice tool failed")
		return mcp.NewToolResultError(fmt.Sprintf("advice: %v", err)), nil
	}
	return mcp.NewToolResultText(advice), nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
