package collab

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// Weather is the /api/weather answer.
type Weather struct {
	Temp        float64 `json:"temp"`
	Description string  `json:"description"`
	Humidity    float64 `json:"humidity"`
	WindSpeed   float64 `json:"wind_speed"`
	Icon        string  `json:"icon,omitempty"`
	Sunrise     string  `json:"sunrise,omitempty"`
	Sunset      string  `json:"sunset,omitempty"`
	City        string  `json:"city,omitempty"`
	Country     string  `json:"country,omitempty"`
}

// Place is the location block sent with advice requests.
type Place struct {
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
	Name string  `json:"name,omitempty"`
}

// Weather fetches conditions for lat/lon. Answers are cached per location.
func (c *Client) Weather(ctx context.Context, lat, lon float64) (Weather, error) {
	key := fmt.Sprintf("%.4f,%.4f", lat, lon)
	if cached, ok := c.weather.Get(key); ok {
		return cached.(Weather), nil
	}

	var w Weather
	if err := c.postJSON(ctx, "/api/weather", map[string]float64{"lat": lat, "lon": lon}, &w); err != nil {
		return Weather{}, err
	}
	c.weather.SetDefault(key, w)
	return w, nil
}

// Advice asks for farming advice for the current weather. Servers that only
// expose /api/advice are used as a fallback.
func (c *Client) Advice(ctx context.Context, w Weather, place Place) (string, error) {
	in := map[string]any{"weather": w, "location": place, "lang": c.lang}

	var reply struct {
		Advice      string   `json:"advice"`
		Suggestions []string `json:"suggestions"`
	}
	err := c.postJSON(ctx, "/api/suggestions", in, &reply)
	if IsStatus(err, http.StatusNotFound) {
		err = c.postJSON(ctx, "/api/advice", in, &reply)
	}
	if err != nil {
		return "", err
	}
	if reply.Advice != "" {
		return reply.Advice, nil
	}
	if len(reply.Suggestions) > 0 {
		return strings.Join(reply.Suggestions, ", "), nil
	}
	return "", fmt.Errorf("advice: %w", ErrEmptyResponse)
}

// RecentAlerts fetches the server's alert history. Entries are returned raw
// for the alert pipeline to validate.
func (c *Client) RecentAlerts(ctx context.Context, limit int) ([]json.RawMessage, error) {
	path := "/api/alerts"
	if limit > 0 {
		path = fmt.Sprintf("/api/alerts?limit=%d", limit)
	}
	var raw []json.RawMessage
	if err := c.getJSON(ctx, path, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// GeoLocation is the /api/location answer.
type GeoLocation struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	City      string  `json:"city"`
	Country   string  `json:"country"`
}

// Name is a display name such as "Pune, India".
func (g GeoLocation) Name() string {
	switch {
	case g.City != "" && g.Country != "":
		return g.City + ", " + g.Country
	case g.City != "":
		return g.City
	}
	return g.Country
}

// DetectLocation asks the server to geolocate this client by IP.
func (c *Client) DetectLocation(ctx context.Context) (GeoLocation, error) {
	var g GeoLocation
	if err := c.getJSON(ctx, "/api/location", &g); err != nil {
		return GeoLocation{}, err
	}
	return g, nil
}
