package carrier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"busline/internal/shared/config"
)

// ErrUnavailable wraps any transport or upstream failure so callers can
// classify remote errors without inspecting status codes.
var ErrUnavailable = errors.New("carrier unavailable")

// SeatMapService fetches the seat-occupancy map for a trip
type SeatMapService interface {
	FetchSeatMap(ctx context.Context, ticketID, token string) (*SeatMapResponse, error)
}

// PassengerDirectory is the remote saved-passenger store
type PassengerDirectory interface {
	ListPassengers(ctx context.Context) ([]SavedPassenger, error)
	BulkCreatePassengers(ctx context.Context, passengers []NewPassenger) ([]SavedPassenger, error)
	UpdatePassenger(ctx context.Context, passengerID string, fields NewPassenger) error
	ValidatePassengers(ctx context.Context, passengers []NewPassenger) (*DuplicateCheck, error)
}

// ArtifactService uploads and deletes seat-layout captures
type ArtifactService interface {
	UploadArtifact(ctx context.Context, artifact []byte) (*ArtifactRef, error)
	DeleteArtifact(ctx context.Context, ref string) error
}

// OrderService creates orders and requests payment handles
type OrderService interface {
	CreateOrder(ctx context.Context, req OrderRequest) (*OrderResponse, error)
	Purchase(ctx context.Context, req PurchaseRequest) (*PurchaseResponse, error)
}

// Gateway bundles every carrier collaborator
type Gateway interface {
	SeatMapService
	PassengerDirectory
	ArtifactService
	OrderService
}

// HTTPGateway implements Gateway against the carrier REST API
type HTTPGateway struct {
	baseURL     string
	apiKey      string
	callbackURL string
	client      *http.Client
}

// NewHTTPGateway creates a carrier gateway from configuration
func NewHTTPGateway(cfg config.CarrierConfig) *HTTPGateway {
	return &HTTPGateway{
		baseURL:     cfg.BaseURL,
		apiKey:      cfg.APIKey,
		callbackURL: cfg.CallbackURL,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

func (g *HTTPGateway) FetchSeatMap(ctx context.Context, ticketID, token string) (*SeatMapResponse, error) {
	path := fmt.Sprintf("/v2/tickets/%s/seat-map?token=%s", ticketID, token)
	var out SeatMapResponse
	if err := g.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, fmt.Errorf("failed to fetch seat map: %w", err)
	}
	return &out, nil
}

func (g *HTTPGateway) ListPassengers(ctx context.Context) ([]SavedPassenger, error) {
	var out struct {
		Passengers []SavedPassenger `json:"passengers"`
	}
	if err := g.doJSON(ctx, http.MethodGet, "/v2/passengers", nil, &out); err != nil {
		return nil, fmt.Errorf("failed to list passengers: %w", err)
	}
	return out.Passengers, nil
}

func (g *HTTPGateway) BulkCreatePassengers(ctx context.Context, passengers []NewPassenger) ([]SavedPassenger, error) {
	body := struct {
		Passengers []NewPassenger `json:"passengers"`
	}{Passengers: passengers}

	var out struct {
		Passengers []SavedPassenger `json:"passengers"`
	}
	if err := g.doJSON(ctx, http.MethodPost, "/v2/passengers/bulk", body, &out); err != nil {
		return nil, fmt.Errorf("failed to create passengers: %w", err)
	}
	return out.Passengers, nil
}

func (g *HTTPGateway) UpdatePassenger(ctx context.Context, passengerID string, fields NewPassenger) error {
	path := fmt.Sprintf("/v2/passengers/%s", passengerID)
	if err := g.doJSON(ctx, http.MethodPut, path, fields, nil); err != nil {
		return fmt.Errorf("failed to update passenger %s: %w", passengerID, err)
	}
	return nil
}

func (g *HTTPGateway) ValidatePassengers(ctx context.Context, passengers []NewPassenger) (*DuplicateCheck, error) {
	body := struct {
		Passengers []NewPassenger `json:"passengers"`
	}{Passengers: passengers}

	var out DuplicateCheck
	if err := g.doJSON(ctx, http.MethodPost, "/v2/passengers/validate", body, &out); err != nil {
		return nil, fmt.Errorf("failed to validate passengers: %w", err)
	}
	return &out, nil
}

func (g *HTTPGateway) UploadArtifact(ctx context.Context, artifact []byte) (*ArtifactRef, error) {
	body := struct {
		Artifact []byte `json:"artifact"`
	}{Artifact: artifact}

	var out ArtifactRef
	if err := g.doJSON(ctx, http.MethodPost, "/v2/assets", body, &out); err != nil {
		return nil, fmt.Errorf("failed to upload artifact: %w", err)
	}
	return &out, nil
}

func (g *HTTPGateway) DeleteArtifact(ctx context.Context, ref string) error {
	path := fmt.Sprintf("/v2/assets/%s", ref)
	if err := g.doJSON(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("failed to delete artifact %s: %w", ref, err)
	}
	return nil
}

func (g *HTTPGateway) CreateOrder(ctx context.Context, req OrderRequest) (*OrderResponse, error) {
	var out OrderResponse
	if err := g.doJSON(ctx, http.MethodPost, "/v2/orders", req, &out); err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}
	return &out, nil
}

func (g *HTTPGateway) Purchase(ctx context.Context, req PurchaseRequest) (*PurchaseResponse, error) {
	if req.CallbackURL == "" {
		req.CallbackURL = g.callbackURL
	}
	var out PurchaseResponse
	if err := g.doJSON(ctx, http.MethodPost, "/v2/orders/purchase", req, &out); err != nil {
		return nil, fmt.Errorf("failed to purchase order: %w", err)
	}
	return &out, nil
}

// doJSON performs one carrier call with JSON in and out. Non-2xx responses
// and transport errors both collapse into ErrUnavailable.
func (g *HTTPGateway) doJSON(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		req.Header.Set("X-Api-Key", g.apiKey)
	}

	start := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s after %s: %v", ErrUnavailable, method, path, time.Since(start).Round(time.Millisecond), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%w: %s %s returned %d: %s", ErrUnavailable, method, path, resp.StatusCode, string(payload))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
