package main

import (
	"strings"
	"sync"

	"github.com/m-aliabbas/whisper-at-server/internal/client"
	"github.com/m-aliabbas/whisper-at-server/internal/config"
)

type commandContext struct {
	configFlag *string
	serverFlag *string
	tokenFlag  *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag, serverFlag, tokenFlag *string) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		serverFlag: serverFlag,
		tokenFlag:  tokenFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// serviceURL resolves the service base URL: the --server flag wins, then the
// configured worker service URL, then the configured bind address.
func (c *commandContext) serviceURL() (string, error) {
	if c.serverFlag != nil {
		if url := strings.TrimSpace(*c.serverFlag); url != "" {
			return url, nil
		}
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return "", err
	}
	if url := strings.TrimSpace(cfg.Worker.ServiceURL); url != "" {
		return url, nil
	}
	bind := cfg.Server.Bind
	if strings.HasPrefix(bind, "0.0.0.0") {
		bind = "127.0.0.1" + strings.TrimPrefix(bind, "0.0.0.0")
	}
	return "http://" + bind, nil
}

func (c *commandContext) newClient() (*client.Client, error) {
	url, err := c.serviceURL()
	if err != nil {
		return nil, err
	}
	var opts []client.Option
	if c.tokenFlag != nil && strings.TrimSpace(*c.tokenFlag) != "" {
		opts = append(opts, client.WithAPIToken(*c.tokenFlag))
	} else if cfg, err := c.ensureConfig(); err == nil && cfg.Server.APIToken != "" {
		opts = append(opts, client.WithAPIToken(cfg.Server.APIToken))
	}
	return client.New(url, opts...)
}
