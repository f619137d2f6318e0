package config

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/davarch/pipeline-lineage/internal/domain"
	"gopkg.in/yaml.v3"
)

const (
	defaultBaseURL        = "https://dev.azure.com"
	defaultTimeout        = 30 * time.Second
	defaultMaxConcurrency = 200
	defaultParallelism    = 16
	defaultInterval       = 15 * time.Minute
	defaultReportPath     = "~/.cache/pipeline-lineage/report.json"
	defaultPauseFile      = "~/.cache/pipeline-lineage/paused"
)

// Target is one configured scan entry. An empty PipelineID covers every
// pipeline of the project.
type Target struct {
	Name       string `yaml:"name,omitempty"`
	Project    string `yaml:"project"`
	PipelineID string `yaml:"pipeline_id,omitempty"`
	Enabled    bool   `yaml:"enabled"`
}

type Config struct {
	AzureDevOps struct {
		BaseURL      string        `yaml:"base_url"`
		Organization string        `yaml:"organization"`
		Token        string        `yaml:"token,omitempty"`
		Timeout      time.Duration `yaml:"timeout"`
	} `yaml:"azure_devops"`

	API struct {
		MaxConcurrency int64 `yaml:"max_concurrency"`
	} `yaml:"api"`

	Scan struct {
		Interval    time.Duration `yaml:"interval"`
		Parallelism int           `yaml:"parallelism"`
		PauseFile   string        `yaml:"pause_file"`
		Targets     []Target      `yaml:"targets"`
	} `yaml:"scan"`

	Report struct {
		Path string `yaml:"path"`
	} `yaml:"report"`

	Notify struct {
		Urgency string        `yaml:"urgency,omitempty"`
		Expire  time.Duration `yaml:"expire,omitempty"`
	} `yaml:"notify"`

	Metrics struct {
		Addr string `yaml:"addr,omitempty"`
	} `yaml:"metrics"`
}

func (c Config) EnabledTargets() []domain.ScanTarget {
	var out []domain.ScanTarget
	for _, t := range c.Scan.Targets {
		if t.Enabled {
			out = append(out, domain.ScanTarget{Project: t.Project, PipelineID: t.PipelineID})
		}
	}
	return out
}

func Load(path string) (Config, error) {
	var c Config

	c.AzureDevOps.BaseURL = defaultBaseURL
	c.AzureDevOps.Timeout = defaultTimeout
	c.API.MaxConcurrency = defaultMaxConcurrency
	c.Scan.Interval = defaultInterval
	c.Scan.Parallelism = defaultParallelism
	c.Report.Path = defaultReportPath

	if path != "" {
		if b, err := os.ReadFile(path); err == nil {
			if err := yaml.Unmarshal(b, &c); err != nil {
				return c, err
			}
		}
	}

	if v := os.Getenv("AZDO_BASE_URL"); v != "" {
		c.AzureDevOps.BaseURL = v
	}

	if v := os.Getenv("AZDO_ORG"); v != "" {
		c.AzureDevOps.Organization = v
	}

	if v := os.Getenv("AZDO_TOKEN"); v != "" {
		c.AzureDevOps.Token = v
	}

	if v := os.Getenv("AZDO_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.AzureDevOps.Timeout = d
		}
	}

	if v := os.Getenv("SCAN_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Scan.Interval = d
		}
	}

	if v := os.Getenv("SCAN_PARALLELISM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Scan.Parallelism = n
		}
	}

	if v := os.Getenv("REPORT_PATH"); v != "" {
		c.Report.Path = v
	}

	if v := os.Getenv("METRICS_ADDR"); v != "" {
		c.Metrics.Addr = v
	}

	if s := os.Getenv("AZDO_TARGETS"); s != "" {
		if ts := parseTargets(s); len(ts) > 0 {
			c.Scan.Targets = ts
		}
	}

	c.Report.Path = expandHome(c.Report.Path)
	c.AzureDevOps.BaseURL = strings.TrimRight(c.AzureDevOps.BaseURL, "/")
	if c.AzureDevOps.BaseURL == "" {
		c.AzureDevOps.BaseURL = defaultBaseURL
	}

	if c.AzureDevOps.Timeout <= 0 {
		c.AzureDevOps.Timeout = defaultTimeout
	}

	if c.API.MaxConcurrency <= 0 {
		c.API.MaxConcurrency = defaultMaxConcurrency
	}

	if c.Scan.Interval <= 0 {
		c.Scan.Interval = defaultInterval
	}

	if c.Scan.Parallelism <= 0 {
		c.Scan.Parallelism = defaultParallelism
	}

	if c.Scan.PauseFile == "" {
		c.Scan.PauseFile = defaultPauseFile
	}
	c.Scan.PauseFile = expandHome(c.Scan.PauseFile)

	if c.AzureDevOps.Token == "" {
		return c, errors.New("AZDO_TOKEN is required")
	}

	if c.AzureDevOps.Organization == "" {
		return c, errors.New("organization is required (azure_devops.organization or AZDO_ORG)")
	}

	if len(c.Scan.Targets) == 0 {
		return c, errors.New("no targets configured (YAML or ENV)")
	}

	return c, nil
}

// parseTargets reads "project:id,project" lists. A bare project scans the
// whole project.
func parseTargets(s string) []Target {
	var ts []Target
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		project, id, _ := strings.Cut(item, ":")
		project = strings.TrimSpace(project)
		if project == "" {
			continue
		}
		ts = append(ts, Target{Project: project, PipelineID: strings.TrimSpace(id), Enabled: true})
	}
	return ts
}

// Save writes c back to path. The token is never persisted when it came
// from the environment.
func Save(path string, c Config) error {
	if path == "" {
		return errors.New("empty config path")
	}

	if os.Getenv("AZDO_TOKEN") == c.AzureDevOps.Token {
		c.AzureDevOps.Token = ""
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	lockFile := path + ".lock"
	lf, err := os.OpenFile(lockFile, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return err
	}
	defer func() { _ = lf.Close() }()

	if runtime.GOOS != "windows" {
		if err := syscall.Flock(int(lf.Fd()), syscall.LOCK_EX); err != nil {
			return err
		}
		defer func() { _ = syscall.Flock(int(lf.Fd()), syscall.LOCK_UN) }()
	}

	b, err := yaml.Marshal(&c)
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}

	defer func() { _ = f.Close() }()

	if _, err := f.Write(b); err != nil {
		return err
	}

	if err := f.Sync(); err != nil {
		return err
	}

	return os.Rename(tmp, path)
}

func expandHome(p string) string {
	if strings.HasPrefix(p, "~/") {
		if h, _ := os.UserHomeDir(); h != "" {
			return h + p[1:]
		}
	}
	return p
}
