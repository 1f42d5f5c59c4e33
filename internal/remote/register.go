// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jeranaias/wave-tui/internal/model"
)

// registerTimeout bounds the account-creation round trip.
const registerTimeout = 15 * time.Second

// maxRegisterResponse caps the response body read.
const maxRegisterResponse = 1 << 20

// Register creates an account through the server's REST endpoint and
// returns the created user. Registration is the one operation that runs
// outside the duplex channel, since no session exists yet.
func Register(ctx context.Context, apiURL, name, password string) (model.User, error) {
	endpoint := strings.TrimSuffix(apiURL, "/") + "/users"
	query := url.Values{"name": {name}, "password": {password}}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return model.User{}, fmt.Errorf("%w: build register request: %v", ErrNetwork, err)
	}

	client := &http.Client{Timeout: registerTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return model.User{}, fmt.Errorf("%w: register: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRegisterResponse))
	if err != nil {
		return model.User{}, fmt.Errorf("%w: read register response: %v", ErrNetwork, err)
	}

	switch {
	case resp.StatusCode == http.StatusConflict || resp.StatusCode == http.StatusUnauthorized ||
		resp.StatusCode == http.StatusForbidden:
		return model.User{}, fmt.Errorf("%w: register %q: %s", ErrAuth, name, strings.TrimSpace(string(body)))
	case resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated:
		return model.User{}, fmt.Errorf("%w: register %q: HTTP %d", ErrNetwork, name, resp.StatusCode)
	}

	var u model.User
	if err := json.Unmarshal(body, &u); err != nil {
		return model.User{}, fmt.Errorf("%w: parse register response: %v", ErrNetwork, err)
	}
	if u.ID <= 0 || u.Name == "" {
		return model.User{}, fmt.Errorf("%w: register returned no user", ErrNetwork)
	}
	return u, nil
}
