package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	bao "github.com/openbao/openbao/api/v2"
)

var ErrOpenBaoSecretNotFound = errors.New("openbao secret path not found")

// BootstrapFromOpenBao loads secrets from an OpenBao KV v2 path and exports
// them as environment variables, so config.Load picks them up. Without
// OPENBAO_ADDR, OPENBAO_TOKEN and OPENBAO_SECRET_PATH it does nothing.
func BootstrapFromOpenBao(ctx context.Context) error {
	cfg := openBaoConfigFromEnv()
	if !cfg.enabled {
		return nil
	}

	values, err := readSecrets(ctx, cfg)
	if err != nil {
		return err
	}
	for k, v := range values {
		if err := os.Setenv(k, v); err != nil {
			return fmt.Errorf("export %s: %w", k, err)
		}
	}
	return nil
}

type openBaoConfig struct {
	addr      string
	token     string
	mountPath string
	secretKey string
	namespace string
	enabled   bool
}

func openBaoConfigFromEnv() openBaoConfig {
	addr := strings.TrimSpace(os.Getenv("OPENBAO_ADDR"))
	token := os.Getenv("OPENBAO_TOKEN")
	secretPath := strings.Trim(strings.TrimSpace(os.Getenv("OPENBAO_SECRET_PATH")), "/")

	if addr == "" || token == "" || secretPath == "" {
		return openBaoConfig{enabled: false}
	}

	mount := os.Getenv("OPENBAO_MOUNT")
	if mount == "" {
		mount = "secret"
	}

	return openBaoConfig{
		addr:      strings.TrimRight(addr, "/"),
		token:     token,
		mountPath: strings.Trim(strings.TrimSpace(mount), "/"),
		secretKey: secretPath,
		namespace: strings.TrimSpace(os.Getenv("OPENBAO_NAMESPACE")),
		enabled:   true,
	}
}

func readSecrets(ctx context.Context, cfg openBaoConfig) (map[string]string, error) {
	clientCfg := bao.DefaultConfig()
	clientCfg.Address = cfg.addr
	clientCfg.Timeout = 5 * time.Second
	clientCfg.MaxRetries = 0

	client, err := bao.NewClient(clientCfg)
	if err != nil {
		return nil, fmt.Errorf("create OpenBao client: %w", err)
	}
	client.SetToken(cfg.token)
	if cfg.namespace != "" {
		client.SetNamespace(cfg.namespace)
	}

	secret, err := client.KVv2(cfg.mountPath).Get(ctx, cfg.secretKey)
	if errors.Is(err, bao.ErrSecretNotFound) {
		return nil, fmt.Errorf("%w: %s/%s", ErrOpenBaoSecretNotFound, cfg.mountPath, cfg.secretKey)
	}
	if err != nil {
		return nil, fmt.Errorf("read OpenBao secret: %w", err)
	}
	return flatten(secret.Data), nil
}

// flatten keeps scalar values. Nested values are skipped.
func flatten(data map[string]any) map[string]string {
	out := make(map[string]string, len(data))
	for k, v := range data {
		switch val := v.(type) {
		case string:
			out[k] = val
		case json.Number:
			out[k] = val.String()
		case float64:
			out[k] = strconv.FormatFloat(val, 'f', -1, 64)
		case bool:
			out[k] = strconv.FormatBool(val)
		case fmt.Stringer:
			out[k] = val.String()
		}
	}
	return out
}
