package mapping

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	log "github.com/sirupsen/logrus"
)

// Базовый адрес Google Maps API
const googleMapsAPIBase = "https://maps.googleapis.com/maps/api"

// distanceMatrixResponse - ответ Distance Matrix API (только нужные поля).
type distanceMatrixResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Rows         []struct {
		Elements []struct {
			Status            string      `json:"status"`
			Distance          valueObject `json:"distance"`
			Duration          valueObject `json:"duration"`
			DurationInTraffic *valueObject `json:"duration_in_traffic"`
		} `json:"elements"`
	} `json:"rows"`
}

type valueObject struct {
	Value float64 `json:"value"`
	Text  string  `json:"text"`
}

// geocodeResponse - ответ Geocoding API.
type geocodeResponse struct {
	Status  string `json:"status"`
	Results []struct {
		FormattedAddress string `json:"formatted_address"`
	} `json:"results"`
}

// GoogleProvider запрашивает расстояния у Google Distance Matrix API.
type GoogleProvider struct {
	APIKey  string
	BaseURL string
	Client  *http.Client
}

// NewGoogleProvider создает провайдера с HTTP-клиентом по умолчанию.
func NewGoogleProvider(apiKey string) *GoogleProvider {
	return &GoogleProvider{
		APIKey:  apiKey,
		BaseURL: googleMapsAPIBase,
		Client:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (g *GoogleProvider) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	params.Set("key", g.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.BaseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("ошибка создания HTTP-запроса: %w", err)
	}
	resp, err := g.Client.Do(req)
	if err != nil {
		return fmt.Errorf("ошибка выполнения запроса к Google Maps: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("ошибка чтения ответа Google Maps: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		log.Printf("Google Maps вернул ошибку: статус %d, тело: %s", resp.StatusCode, string(body))
		return fmt.Errorf("ошибка API Google Maps, статус: %d", resp.StatusCode)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("ошибка обработки ответа Google Maps: %w", err)
	}
	return nil
}

// Distance возвращает (км, минуты) для пары адресов. duration_in_traffic предпочтительнее duration.
func (g *GoogleProvider) Distance(ctx context.Context, origin, destination string) (float64, float64, error) {
	if g.APIKey == "" {
		return 0, 0, ErrNotConfigured
	}
	params := url.Values{}
	params.Set("origins", origin)
	params.Set("destinations", destination)
	params.Set("units", "metric")
	params.Set("mode", "driving")
	params.Set("language", "de")
	params.Set("region", "DE")

	var data distanceMatrixResponse
	if err := g.get(ctx, "/distancematrix/json", params, &data); err != nil {
		return 0, 0, err
	}
	if data.Status != "OK" || len(data.Rows) == 0 || len(data.Rows[0].Elements) == 0 {
		return 0, 0, fmt.Errorf("Google Maps API-Fehler: %s %s", data.Status, data.ErrorMessage)
	}
	el := data.Rows[0].Elements[0]
	if el.Status != "OK" {
		return 0, 0, fmt.Errorf("Google Maps Element-Fehler: %s", el.Status)
	}
	km := el.Distance.Value / 1000
	minutes := el.Duration.Value / 60
	if el.DurationInTraffic != nil && el.DurationInTraffic.Value > 0 {
		minutes = el.DurationInTraffic.Value / 60
	}
	return km, minutes, nil
}

// Geocode возвращает стандартизированный адрес (только Германия).
func (g *GoogleProvider) Geocode(ctx context.Context, address string) (string, bool, error) {
	if g.APIKey == "" {
		return address, true, ErrNotConfigured
	}
	params := url.Values{}
	params.Set("address", address)
	params.Set("language", "de")
	params.Set("region", "DE")
	params.Set("components", "country:DE")

	var data geocodeResponse
	if err := g.get(ctx, "/geocode/json", params, &data); err != nil {
		return address, true, err
	}
	if data.Status == "OK" && len(data.Results) > 0 {
		return data.Results[0].FormattedAddress, true, nil
	}
	return address, false, nil
}
