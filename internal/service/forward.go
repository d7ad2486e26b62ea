package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/homeadapt/securevoice/internal/errors"
	"github.com/homeadapt/securevoice/internal/model"
)

const forwardTimeout = 10 * time.Second

// forwardPayload is the command envelope the home automation backends accept.
type forwardPayload struct {
	ToolCalls []forwardToolCall `json:"toolCalls"`
}

type forwardToolCall struct {
	Function forwardFunction `json:"function"`
}

type forwardFunction struct {
	Arguments forwardArguments `json:"arguments"`
}

type forwardArguments struct {
	Device string `json:"device"`
	Action string `json:"action"`
}

// ForwardService delivers control commands to a tenant's backend. A command
// is sent exactly once; there are no retries.
type ForwardService struct {
	client *http.Client
}

func NewForwardService() *ForwardService {
	return &ForwardService{
		client: &http.Client{
			Timeout: forwardTimeout,
		},
	}
}

// Forward posts a device command to the tenant's backend and returns the
// confirmation text to speak on success.
func (s *ForwardService) Forward(ctx context.Context, tenant *model.Tenant, device, action string) (string, error) {
	endpoint := fmt.Sprintf("%s/api/webhook/%s",
		strings.TrimRight(tenant.BackendURL, "/"), tenant.WebhookID)

	payload := forwardPayload{
		ToolCalls: []forwardToolCall{
			{Function: forwardFunction{Arguments: forwardArguments{Device: device, Action: action}}},
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()

	log.Info().
		Str("tenantId", tenant.ID).
		Str("device", device).
		Str("action", action).
		Msg("forwarding command to backend")

	resp, err := s.client.Do(req)
	elapsed := time.Since(start)

	if err != nil {
		log.Error().
			Err(err).
			Str("tenantId", tenant.ID).
			Dur("elapsed", elapsed).
			Msg("backend forward error")
		return "", apperrors.ForwardFailed("Backend unreachable", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Error().
			Str("tenantId", tenant.ID).
			Int("status", resp.StatusCode).
			Dur("elapsed", elapsed).
			Msg("backend forward failed")
		return "", apperrors.ForwardFailed(
			fmt.Sprintf("Backend returned status %d", resp.StatusCode), nil)
	}

	log.Info().
		Str("tenantId", tenant.ID).
		Int("status", resp.StatusCode).
		Dur("elapsed", elapsed).
		Msg("backend forward successful")

	return confirmationText(device, action), nil
}

// confirmationText renders the spoken acknowledgement, e.g. device "fan" and
// action "turn_on" become "Fan turn on".
func confirmationText(device, action string) string {
	name := device
	if name != "" {
		name = strings.ToUpper(name[:1]) + name[1:]
	}
	return name + " " + strings.ReplaceAll(action, "_", " ")
}
