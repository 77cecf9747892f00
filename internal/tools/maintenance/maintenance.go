// Package maintenance runs the NetLink retention jobs: purging characters
// idle past the inactivity window and kicked memberships past their retention.
package maintenance

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	entrypoint "github.com/zenite-os/zenite/internal/platform/cmd"
	"github.com/zenite-os/zenite/internal/platform/logging"
	server "github.com/zenite-os/zenite/internal/services/netlink/app"
	"github.com/zenite-os/zenite/internal/services/netlink/realtime"
	"github.com/zenite-os/zenite/internal/services/netlink/service"
)

// Job names.
const (
	JobInactiveCharacters = "inactive-characters"
	JobKickedMembers      = "kicked-members"
)

// Config holds maintenance command configuration.
type Config struct {
	DBPath      string `env:"ZENITE_NETLINK_DB_PATH" envDefault:"data/netlink.db"`
	PostgresDSN string `env:"ZENITE_POSTGRES_DSN"`
	// Schedules use the standard five-field cron syntax or @descriptors.
	CharacterSchedule string        `env:"ZENITE_MAINTENANCE_CHARACTER_SCHEDULE" envDefault:"0 3 * * *"`
	MemberSchedule    string        `env:"ZENITE_MAINTENANCE_MEMBER_SCHEDULE"    envDefault:"30 3 * * *"`
	Timeout           time.Duration `env:"ZENITE_MAINTENANCE_TIMEOUT"            envDefault:"10m"`
	Log               logging.Config

	Once       bool
	JSONOutput bool
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "SQLite database path")
	fs.StringVar(&cfg.PostgresDSN, "postgres-dsn", cfg.PostgresDSN, "Postgres DSN, overrides -db-path")
	fs.StringVar(&cfg.CharacterSchedule, "character-schedule", cfg.CharacterSchedule, "cron schedule for the inactive character purge")
	fs.StringVar(&cfg.MemberSchedule, "member-schedule", cfg.MemberSchedule, "cron schedule for the kicked member purge")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "timeout per job run")
	fs.BoolVar(&cfg.Once, "once", false, "run every job once and exit")
	fs.BoolVar(&cfg.JSONOutput, "json", false, "output JSON reports")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Purger deletes expired NetLink data.
type Purger interface {
	PurgeInactiveCharacters(ctx context.Context) (int, error)
	PurgeKickedMembers(ctx context.Context) (int, error)
}

// Report is the outcome of one job run.
type Report struct {
	Job        string    `json:"job"`
	Deleted    int       `json:"deleted"`
	Error      string    `json:"error,omitempty"`
	FinishedAt time.Time `json:"finished_at"`
}

type job struct {
	name     string
	schedule string
	run      func(context.Context) (int, error)
}

// Run opens the configured store and runs the purge jobs, once or on their
// schedules until ctx is done.
func Run(ctx context.Context, cfg Config, out io.Writer, errOut io.Writer) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceMaintenance, func(ctx context.Context) error {
		logger, err := logging.New("maintenance", cfg.Log)
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		store, err := server.OpenStore(cfg.DBPath, cfg.PostgresDSN)
		if err != nil {
			return err
		}
		defer func() {
			if err := store.Close(); err != nil && errOut != nil {
				fmt.Fprintf(errOut, "close store: %v\n", err)
			}
		}()

		svc, err := service.New(service.Config{
			Store:  store,
			Bus:    realtime.NewMemoryBus(),
			Logger: logger,
		})
		if err != nil {
			return fmt.Errorf("init service: %w", err)
		}
		return RunJobs(ctx, cfg, svc, logger, out, errOut)
	})
}

// RunJobs runs the purge jobs of p. With cfg.Once each job runs a single time
// and the joined job errors are returned; otherwise jobs run on their cron
// schedules until ctx is done.
func RunJobs(ctx context.Context, cfg Config, p Purger, logger logging.Logger, out io.Writer, errOut io.Writer) error {
	if p == nil {
		return errors.New("purger is required")
	}
	if logger == nil {
		logger = logging.Nop()
	}
	if out == nil {
		out = io.Discard
	}
	if errOut == nil {
		errOut = io.Discard
	}
	jobs := []job{
		{name: JobInactiveCharacters, schedule: cfg.CharacterSchedule, run: p.PurgeInactiveCharacters},
		{name: JobKickedMembers, schedule: cfg.MemberSchedule, run: p.PurgeKickedMembers},
	}

	if cfg.Once {
		var errs []error
		for _, j := range jobs {
			report := runJob(ctx, cfg.Timeout, j)
			if err := writeReport(out, report, cfg.JSONOutput); err != nil {
				return err
			}
			if report.Error != "" {
				errs = append(errs, fmt.Errorf("%s: %s", j.name, report.Error))
			}
		}
		return errors.Join(errs...)
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger{logger})))
	for _, j := range jobs {
		spec := strings.TrimSpace(j.schedule)
		if spec == "" {
			return fmt.Errorf("%s: schedule is required", j.name)
		}
		if _, err := c.AddFunc(spec, func() {
			report := runJob(ctx, cfg.Timeout, j)
			if report.Error != "" {
				logger.Warn("maintenance job failed", logging.Fields{"job": report.Job, "error": report.Error})
			}
			if err := writeReport(out, report, cfg.JSONOutput); err != nil {
				fmt.Fprintf(errOut, "write report: %v\n", err)
			}
		}); err != nil {
			return fmt.Errorf("%s: invalid schedule %q: %w", j.name, spec, err)
		}
		logger.Info("maintenance job scheduled", logging.Fields{"job": j.name, "schedule": spec})
	}

	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

func runJob(ctx context.Context, timeout time.Duration, j job) Report {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	n, err := j.run(ctx)
	report := Report{Job: j.name, Deleted: n, FinishedAt: time.Now().UTC()}
	if err != nil {
		report.Error = err.Error()
	}
	return report
}

func writeReport(out io.Writer, report Report, asJSON bool) error {
	if asJSON {
		return json.NewEncoder(out).Encode(report)
	}
	if report.Error != "" {
		_, err := fmt.Fprintf(out, "%s: failed: %s\n", report.Job, report.Error)
		return err
	}
	_, err := fmt.Fprintf(out, "%s: deleted %d\n", report.Job, report.Deleted)
	return err
}

// cronLogger adapts logging.Logger to cron.Logger.
type cronLogger struct {
	logger logging.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, pairs(keysAndValues))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, err, pairs(keysAndValues))
}

func pairs(keysAndValues []any) logging.Fields {
	fields := logging.Fields{}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return fields
}
