package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"pabench/internal/config"
	"pabench/internal/worlds"
)

const (
	MailboxURLEnv  = "GMAIL_INSTANCE_URL"
	CalendarURLEnv = "CALENDAR_INSTANCE_URL"
)

// ErrEndpointsUndefined reports instance URLs that could not be resolved
// while provisioning is disabled.
var ErrEndpointsUndefined = errors.New("instance URLs undefined")

// Provisioner creates fresh service instances.
type Provisioner interface {
	CreateInstances(ctx context.Context, baseURL string) (worlds.Endpoints, error)
}

// EndpointOptions carries explicit overrides and the workspace config.
type EndpointOptions struct {
	MailboxURL  string
	CalendarURL string
	BaseURL     string
	EnvFile     string
	Create      bool
	// Getenv defaults to os.Getenv.
	Getenv func(string) string
}

// EndpointOptionsFromConfig seeds options from pab.yml. Explicit flags are
// applied on top by the caller.
func EndpointOptionsFromConfig(workspace string, cfg *config.Config) EndpointOptions {
	opts := EndpointOptions{Create: true}
	if cfg == nil {
		return opts
	}
	opts.MailboxURL = cfg.Worlds.GmailURL
	opts.CalendarURL = cfg.Worlds.CalendarURL
	opts.BaseURL = cfg.Worlds.BaseURL
	opts.Create = cfg.Worlds.CreateIfMissing()
	if cfg.Worlds.EnvFile != "" {
		opts.EnvFile = cfg.Worlds.EnvFile
		if !filepath.IsAbs(opts.EnvFile) && workspace != "" {
			opts.EnvFile = filepath.Join(workspace, opts.EnvFile)
		}
	}
	return opts
}

// ResolveEndpoints picks instance URLs from explicit options, then the
// process environment, then the env file. When both are still unknown and
// creation is allowed, fresh instances are provisioned and written back to
// the env file.
func ResolveEndpoints(ctx context.Context, opts EndpointOptions, p Provisioner) (worlds.Endpoints, error) {
	getenv := opts.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	fileVals, err := readEnvFile(opts.EnvFile)
	if err != nil {
		return worlds.Endpoints{}, err
	}
	ep := worlds.Endpoints{
		Mailbox:  firstNonEmpty(opts.MailboxURL, getenv(MailboxURLEnv), fileVals.GetString(MailboxURLEnv)),
		Calendar: firstNonEmpty(opts.CalendarURL, getenv(CalendarURLEnv), fileVals.GetString(CalendarURLEnv)),
	}
	if ep.Mailbox != "" && ep.Calendar != "" {
		return ep, nil
	}
	if !opts.Create || p == nil {
		var missing []string
		if ep.Mailbox == "" {
			missing = append(missing, MailboxURLEnv)
		}
		if ep.Calendar == "" {
			missing = append(missing, CalendarURLEnv)
		}
		return worlds.Endpoints{}, fmt.Errorf("%w: %s; set them via flags, env vars or %s", ErrEndpointsUndefined, strings.Join(missing, ", "), envFileName(opts.EnvFile))
	}
	created, err := p.CreateInstances(ctx, opts.BaseURL)
	if err != nil {
		return worlds.Endpoints{}, fmt.Errorf("create instances: %w", err)
	}
	if opts.EnvFile != "" {
		if err := SetEnvValue(opts.EnvFile, MailboxURLEnv, created.Mailbox); err != nil {
			return worlds.Endpoints{}, fmt.Errorf("persist %s: %w", MailboxURLEnv, err)
		}
		if err := SetEnvValue(opts.EnvFile, CalendarURLEnv, created.Calendar); err != nil {
			return worlds.Endpoints{}, fmt.Errorf("persist %s: %w", CalendarURLEnv, err)
		}
	}
	return created, nil
}

func readEnvFile(path string) (*viper.Viper, error) {
	v := viper.New()
	if path == "" {
		return v, nil
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return v, nil
		}
		return nil, err
	}
	v.SetConfigFile(path)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return v, nil
}

func envFileName(path string) string {
	if path == "" {
		return ".env"
	}
	return path
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// SetEnvValue writes key=value into a dotenv file, replacing an existing
// assignment of key and keeping every other line.
func SetEnvValue(path, key, value string) error {
	var lines []string
	seen := false
	f, err := os.Open(path)
	if err == nil {
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := scanner.Text()
			if strings.HasPrefix(line, key+"=") {
				lines = append(lines, fmt.Sprintf("%s=%s", key, value))
				seen = true
			} else {
				lines = append(lines, line)
			}
		}
		if err := scanner.Err(); err != nil {
			f.Close()
			return err
		}
		f.Close()
	} else if !os.IsNotExist(err) {
		return err
	}
	if !seen {
		lines = append(lines, fmt.Sprintf("%s=%s", key, value))
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	content := strings.Join(lines, "\n")
	if content != "" && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	return os.WriteFile(path, []byte(content), 0o644)
}
