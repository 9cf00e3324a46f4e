// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package geocoding

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/jcodagnone/geosites/spatial"
)

// DefaultNominatimURL is the public OpenStreetMap Nominatim instance.
const DefaultNominatimURL = "https://nominatim.openstreetmap.org"

// NominatimProvider searches an OpenStreetMap Nominatim server.
type NominatimProvider struct {
	baseURL    string
	httpClient *http.Client
	// Limit caps the number of candidates requested.
	Limit int
	// BiasRadiusKm is the half-size of the viewbox sent with a bias.
	BiasRadiusKm float64
}

// NewNominatimProvider returns a provider for the server at baseURL. The
// client should set a descriptive User-Agent, as the public instance
// requires one.
func NewNominatimProvider(baseURL string, client *http.Client) *NominatimProvider {
	if baseURL == "" {
		baseURL = DefaultNominatimURL
	}

	return &NominatimProvider{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		httpClient:   client,
		Limit:        5,
		BiasRadiusKm: 250,
	}
}

type nominatimPlace struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// Search implements Provider.
func (n *NominatimProvider) Search(ctx context.Context, query string, bias *spatial.Point) ([]Candidate, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "jsonv2")
	params.Set("limit", strconv.Itoa(n.Limit))

	if bias != nil {
		box := BoxAround(*bias, n.BiasRadiusKm)
		// preferred area, results outside it are still allowed
		params.Set("viewbox", fmt.Sprintf("%f,%f,%f,%f", box.West, box.North, box.East, box.South))
		params.Set("bounded", "0")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return nil, &GeocodingError{Type: ErrorTypeInvalidRequest, Message: "building nominatim request", Err: err}
	}

	req.Header.Set("Accept", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		errType := ErrorTypeNetworkError
		if IsTimeoutError(err) {
			errType = ErrorTypeTimeout
		}

		return nil, &GeocodingError{Type: errType, Message: "nominatim request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))

		return nil, ClassifyHTTPError(resp.StatusCode, string(body))
	}

	var places []nominatimPlace
	if err := json.NewDecoder(resp.Body).Decode(&places); err != nil {
		return nil, &GeocodingError{Type: ErrorTypeUnknown, Message: "decoding nominatim response", Err: err}
	}

	candidates := make([]Candidate, 0, len(places))

	for _, p := range places {
		lat, errLat := strconv.ParseFloat(p.Lat, 64)
		lng, errLng := strconv.ParseFloat(p.Lon, 64)

		if errLat != nil || errLng != nil {
			continue
		}

		candidates = append(candidates, Candidate{
			Point:       spatial.Point{Lat: lat, Lng: lng},
			DisplayName: p.DisplayName,
			Provider:    "nominatim",
		})
	}

	return candidates, nil
}
