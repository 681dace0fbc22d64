package spotify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/dcamposv/pulsehub/internal/provider"
)

// Profile is the authenticated user profile from GET /v1/me.
type Profile struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	Country     string `json:"country"`
	Product     string `json:"product"`
	Followers   int64  `json:"followers"`
}

// TopItem is an entry from GET /v1/me/top/{type}, either an artist or a
// track depending on the requested type.
type TopItem struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Popularity int      `json:"popularity"`
	Genres     []string `json:"genres,omitempty"`
	Artists    []string `json:"artists,omitempty"`
}

// Valores admitidos por el parámetro time_range.
const (
	RangeLongTerm   = "long_term"
	RangeMediumTerm = "medium_term"
	RangeShortTerm  = "short_term"
)

func (s *Client) getJSON(ctx context.Context, op, path, accessToken string, q url.Values, out any) error {
	u := s.apiBaseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")
	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		var b struct {
			Error struct {
				Status  int    `json:"status"`
				Message string `json:"message"`
			} `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&b)
		return &provider.Error{Provider: Name, Op: op, StatusCode: resp.StatusCode, Description: b.Error.Message}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (s *Client) Profile(ctx context.Context, accessToken string) (*Profile, error) {
	var raw struct {
		ID          string `json:"id"`
		DisplayName string `json:"display_name"`
		Email       string `json:"email"`
		Country     string `json:"country"`
		Product     string `json:"product"`
		Followers   struct {
			Total int64 `json:"total"`
		} `json:"followers"`
	}
	if err := s.getJSON(ctx, "me", "/v1/me", accessToken, nil, &raw); err != nil {
		return nil, err
	}
	return &Profile{
		ID:          raw.ID,
		DisplayName: raw.DisplayName,
		Email:       raw.Email,
		Country:     raw.Country,
		Product:     raw.Product,
		Followers:   raw.Followers.Total,
	}, nil
}

// TopItems devuelve los artistas o tracks más escuchados. itemType es
// "artists" o "tracks"; timeRange uno de los Range*.
func (s *Client) TopItems(ctx context.Context, accessToken, itemType, timeRange string) ([]TopItem, error) {
	q := url.Values{}
	q.Set("time_range", timeRange)
	q.Set("limit", "20")

	var raw struct {
		Items []struct {
			ID         string   `json:"id"`
			Name       string   `json:"name"`
			Popularity int      `json:"popularity"`
			Genres     []string `json:"genres"`
			Artists    []struct {
				Name string `json:"name"`
			} `json:"artists"`
		} `json:"items"`
	}
	if err := s.getJSON(ctx, "top."+itemType, "/v1/me/top/"+itemType, accessToken, q, &raw); err != nil {
		return nil, err
	}
	out := make([]TopItem, 0, len(raw.Items))
	for _, it := range raw.Items {
		item := TopItem{ID: it.ID, Name: it.Name, Popularity: it.Popularity, Genres: it.Genres}
		for _, a := range it.Artists {
			item.Artists = append(item.Artists, a.Name)
		}
		out = append(out, item)
	}
	return out, nil
}
