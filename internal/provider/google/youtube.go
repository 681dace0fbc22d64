package google

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/dcamposv/pulsehub/internal/provider"
)

// Channel is a YouTube channel as returned by the Data API channels.list
// endpoint, reduced to the fields the dashboard consumes.
type Channel struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Subscribers int64  `json:"subscribers"`
	Views       int64  `json:"views"`
	Videos      int64  `json:"videos"`
}

// Analytics is a 28-day report from the YouTube Analytics API.
type Analytics struct {
	ChannelID               string `json:"channel_id,omitempty"`
	Views                   int64  `json:"views"`
	EstimatedMinutesWatched int64  `json:"estimated_minutes_watched"`
	SubscribersGained       int64  `json:"subscribers_gained"`
}

func (g *Client) getJSON(ctx context.Context, op, rawURL, accessToken string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")
	resp, err := g.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		var b struct {
			Error struct {
				Status  string `json:"status"`
				Message string `json:"message"`
			} `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&b)
		return &provider.Error{Provider: Name, Op: op, StatusCode: resp.StatusCode, Code: b.Error.Status, Description: b.Error.Message}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type channelListResponse struct {
	Items []struct {
		ID      string `json:"id"`
		Snippet struct {
			Title string `json:"title"`
		} `json:"snippet"`
		Statistics struct {
			SubscriberCount string `json:"subscriberCount"`
			ViewCount       string `json:"viewCount"`
			VideoCount      string `json:"videoCount"`
		} `json:"statistics"`
	} `json:"items"`
}

// MyChannels lista los canales del usuario. Con managed=true consulta los
// canales administrados vía content owner en lugar de los propios; cuentas
// de marca a veces no devuelven nada con mine=true.
func (g *Client) MyChannels(ctx context.Context, accessToken string, managed bool) ([]Channel, error) {
	q := url.Values{}
	q.Set("part", "snippet,statistics")
	q.Set("maxResults", "50")
	if managed {
		q.Set("managedByMe", "true")
	} else {
		q.Set("mine", "true")
	}
	var raw channelListResponse
	if err := g.getJSON(ctx, "channels.list", g.channelsURL+"?"+q.Encode(), accessToken, &raw); err != nil {
		return nil, err
	}
	out := make([]Channel, 0, len(raw.Items))
	for _, it := range raw.Items {
		out = append(out, Channel{
			ID:          it.ID,
			Title:       it.Snippet.Title,
			Subscribers: atoi64(it.Statistics.SubscriberCount),
			Views:       atoi64(it.Statistics.ViewCount),
			Videos:      atoi64(it.Statistics.VideoCount),
		})
	}
	return out, nil
}

type analyticsResponse struct {
	ColumnHeaders []struct {
		Name string `json:"name"`
	} `json:"columnHeaders"`
	Rows [][]json.Number `json:"rows"`
}

func (g *Client) queryAnalytics(ctx context.Context, accessToken, ids string) (*Analytics, error) {
	end := time.Now().UTC()
	start := end.AddDate(0, 0, -28)
	q := url.Values{}
	q.Set("ids", ids)
	q.Set("metrics", "views,estimatedMinutesWatched,subscribersGained")
	q.Set("startDate", start.Format("2006-01-02"))
	q.Set("endDate", end.Format("2006-01-02"))

	var raw analyticsResponse
	if err := g.getJSON(ctx, "reports.query", g.analyticsURL+"?"+q.Encode(), accessToken, &raw); err != nil {
		return nil, err
	}
	out := &Analytics{}
	if len(raw.Rows) == 0 {
		return out, nil
	}
	row := raw.Rows[0]
	for i, h := range raw.ColumnHeaders {
		if i >= len(row) {
			break
		}
		v, _ := row[i].Int64()
		switch h.Name {
		case "views":
			out.Views = v
		case "estimatedMinutesWatched":
			out.EstimatedMinutesWatched = v
		case "subscribersGained":
			out.SubscribersGained = v
		}
	}
	return out, nil
}

// ChannelAnalytics consulta el reporte acotado a un canal concreto.
func (g *Client) ChannelAnalytics(ctx context.Context, accessToken, channelID string) (*Analytics, error) {
	a, err := g.queryAnalytics(ctx, accessToken, fmt.Sprintf("channel==%s", channelID))
	if err != nil {
		return nil, err
	}
	a.ChannelID = channelID
	return a, nil
}

// AccountAnalytics consulta el reporte a nivel de cuenta (channel==MINE).
func (g *Client) AccountAnalytics(ctx context.Context, accessToken string) (*Analytics, error) {
	return g.queryAnalytics(ctx, accessToken, "channel==MINE")
}

func atoi64(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}
