// Package surreal is the target-side binding: a WebSocket RPC client, the
// server version probe, one sink implementation per supported SDK major
// version, and a target-backed checkpoint store.
package surreal

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/surrealdb/surreal-sync/core"
)

// SDKVersion selects which of the two incompatible wire protocols a run
// speaks. The choice is made once at process start and is immutable for the
// run.
type SDKVersion int

const (
	// VersionAuto probes the server banner at connect time.
	VersionAuto SDKVersion = iota
	V2
	V3
)

func (v SDKVersion) String() string {
	switch v {
	case V2:
		return "v2"
	case V3:
		return "v3"
	}
	return "auto"
}

// ParseSDKVersion parses the --sdk-version flag.
func ParseSDKVersion(s string) (SDKVersion, error) {
	switch strings.ToLower(s) {
	case "", "auto":
		return VersionAuto, nil
	case "v2", "2":
		return V2, nil
	case "v3", "3":
		return V3, nil
	}
	return 0, &core.ConfigError{Msg: fmt.Sprintf("unknown SDK version %q, valid values: auto, v2, v3", s)}
}

// DetectVersion probes the server's HTTP version banner and maps the major
// version to an SDK version.
func DetectVersion(ctx context.Context, endpoint string) (SDKVersion, error) {
	url := strings.TrimSuffix(httpEndpoint(endpoint), "/") + "/version"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, &core.ConfigError{Msg: "invalid target endpoint", Err: err}
	}
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return 0, &core.SinkError{Op: "probe server version", Err: err}
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 256))
	if err != nil {
		return 0, &core.SinkError{Op: "read server version", Err: err}
	}

	banner := strings.TrimSpace(string(body))
	version, err := parseBanner(banner)
	if err != nil {
		return 0, err
	}
	log.WithFields(log.Fields{"banner": banner, "sdk": version}).Info("auto-detected server version")
	return version, nil
}

// parseBanner maps a banner like "surrealdb-2.3.7" to the SDK version.
func parseBanner(banner string) (SDKVersion, error) {
	s := strings.TrimPrefix(banner, "surrealdb-")
	switch {
	case strings.HasPrefix(s, "2."):
		return V2, nil
	case strings.HasPrefix(s, "3."):
		return V3, nil
	}
	return 0, &core.SinkError{Op: "detect server version", Err: fmt.Errorf("unsupported server banner %q", banner)}
}

// Resolve returns the concrete version for a run: the explicit choice, or the
// probed one.
func Resolve(ctx context.Context, endpoint string, explicit SDKVersion) (SDKVersion, error) {
	if explicit != VersionAuto {
		log.WithField("sdk", explicit).Info("using explicitly selected SDK version")
		return explicit, nil
	}
	return DetectVersion(ctx, endpoint)
}

// httpEndpoint maps ws:// endpoints back to their HTTP form for the probe.
func httpEndpoint(endpoint string) string {
	s := strings.Replace(endpoint, "ws://", "http://", 1)
	return strings.Replace(s, "wss://", "https://", 1)
}

// wsEndpoint upgrades http:// endpoints to their WebSocket form and appends
// the RPC path.
func wsEndpoint(endpoint string) string {
	s := strings.Replace(endpoint, "http://", "ws://", 1)
	s = strings.Replace(s, "https://", "wss://", 1)
	if !strings.HasSuffix(s, "/rpc") {
		s = strings.TrimSuffix(s, "/") + "/rpc"
	}
	return s
}
