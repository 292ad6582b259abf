package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/RevTvGG/l4d2-ranked-sub000/internal/config"
	"github.com/RevTvGG/l4d2-ranked-sub000/internal/constants"
	"github.com/RevTvGG/l4d2-ranked-sub000/internal/domain"
	"github.com/RevTvGG/l4d2-ranked-sub000/internal/service"

	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"
)

// GameServerClient talks to the server-provisioning API that hands out
// game servers for ready matches.
type GameServerClient struct {
	baseURL string
	apiKey  string
	client  *fasthttp.Client
	logger  zerolog.Logger
}

func NewGameServerClient(cfg *config.Config, logger zerolog.Logger) *GameServerClient {
	return &GameServerClient{
		baseURL: cfg.GameServerAPIURL,
		apiKey:  cfg.GameServerAPIKey,
		client: &fasthttp.Client{
			MaxConnsPerHost:     16,
			ReadTimeout:         constants.ServerAssignTimeout,
			WriteTimeout:        constants.ServerAssignTimeout,
			MaxIdleConnDuration: 1 * time.Minute,
		},
		logger: logger,
	}
}

type allocateRequest struct {
	MatchID string `json:"match_id"`
	Map     string `json:"map"`
}

type allocateResponse struct {
	IP       string `json:"ip"`
	Port     int    `json:"port"`
	Password string `json:"password"`
}

// Allocate reserves a server for the match. HTTP 409/503 from the
// provisioner means the pool is exhausted right now, which is the
// retryable "no server available" outcome, not a failure.
func (c *GameServerClient) Allocate(ctx context.Context, matchID, mapID string) (*service.ServerAssignment, error) {
	body, err := json.Marshal(allocateRequest{MatchID: matchID, Map: mapID})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal allocate request: %w", err)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.baseURL + "/servers/allocate")
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.SetBody(body)

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(constants.ServerAssignTimeout)
	}
	if err := c.client.DoDeadline(req, resp, deadline); err != nil {
		return nil, fmt.Errorf("server allocation request failed: %w", err)
	}

	switch resp.StatusCode() {
	case http.StatusOK, http.StatusCreated:
	case http.StatusConflict, http.StatusServiceUnavailable:
		return nil, domain.ErrNoServerAvailable
	default:
		return nil, fmt.Errorf("server allocation returned status %d", resp.StatusCode())
	}

	var out allocateResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, fmt.Errorf("failed to decode allocate response: %w", err)
	}
	if out.IP == "" || out.Port == 0 {
		return nil, fmt.Errorf("allocate response missing server address")
	}

	c.logger.Debug().
		Str("match_id", matchID).
		Str("ip", out.IP).
		Int("port", out.Port).
		Msg("server allocated")

	return &service.ServerAssignment{IP: out.IP, Port: out.Port, Password: out.Password}, nil
}
