package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateEngine(); err != nil {
		return err
	}
	if err := c.validateQueue(); err != nil {
		return err
	}
	if err := c.validateJournal(); err != nil {
		return err
	}
	if err := c.validateWorker(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Bind == "" {
		return errors.New("server.bind must be set")
	}
	if c.Server.MaxUploadMiB <= 0 {
		return errors.New("server.max_upload_mib must be positive")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("server.shutdown_timeout must be positive")
	}
	return nil
}

func (c *Config) validateEngine() error {
	if strings.TrimSpace(c.Engine.Binary) == "" {
		return errors.New("engine.binary must be set")
	}
	if c.Engine.Model == "" {
		return errors.New("engine.model must be set")
	}
	if c.Engine.Instances < 1 {
		return errors.New("engine.instances must be at least 1")
	}
	if c.Engine.LoadTimeout <= 0 {
		return errors.New("engine.load_timeout must be positive")
	}
	if c.Engine.TranscribeTimeout <= 0 {
		return errors.New("engine.transcribe_timeout must be positive")
	}
	return nil
}

func (c *Config) validateQueue() error {
	if c.Queue.Capacity < 1 {
		return errors.New("queue.capacity must be at least 1")
	}
	if c.Queue.AwaitTimeout <= 0 {
		return errors.New("queue.await_timeout must be positive")
	}
	return nil
}

func (c *Config) validateJournal() error {
	if c.Journal.RetentionDays < 0 {
		return errors.New("journal.retention_days must not be negative")
	}
	return nil
}

func (c *Config) validateWorker() error {
	if strings.TrimSpace(c.Worker.RedisAddr) == "" {
		return errors.New("worker.redis_addr must be set")
	}
	if strings.TrimSpace(c.Worker.PendingList) == "" {
		return errors.New("worker.pending_list must be set")
	}
	if strings.TrimSpace(c.Worker.ProcessingList) == "" {
		return errors.New("worker.processing_list must be set")
	}
	if c.Worker.PendingList == c.Worker.ProcessingList {
		return errors.New("worker.pending_list and worker.processing_list must differ")
	}
	if c.Worker.ResultTTL <= 0 {
		return errors.New("worker.result_ttl must be positive")
	}
	if c.Worker.PollTimeout <= 0 {
		return errors.New("worker.poll_timeout must be positive")
	}
	if strings.TrimSpace(c.Worker.ServiceURL) == "" {
		return errors.New("worker.service_url must be set")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	return nil
}
