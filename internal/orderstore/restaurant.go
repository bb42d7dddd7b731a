package orderstore

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	domainerrors "drone-dispatch/internal/errors"
)

// RestaurantClient resolves display names from the restaurant service.
// Tracking treats every failure here as "name unknown", never as an error.
type RestaurantClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewRestaurantClient(baseURL string, timeout time.Duration) *RestaurantClient {
	return &RestaurantClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *RestaurantClient) GetName(ctx context.Context, restaurantID string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/internal/restaurants/"+restaurantID, nil)
	if err != nil {
		return "", domainerrors.NewInternal("build restaurant request", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", domainerrors.NewUnavailable("restaurant service lookup failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", domainerrors.NewNotFound("restaurant", restaurantID)
	}
	if resp.StatusCode != http.StatusOK {
		return "", domainerrors.NewUnavailable("restaurant service lookup failed", fmt.Errorf("status %d", resp.StatusCode))
	}

	var body struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", domainerrors.NewInternal("decode restaurant response", err)
	}
	return body.Name, nil
}
