package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/relay/pkg/cli"
	"mercator-hq/relay/pkg/config"
	relaytls "mercator-hq/relay/pkg/security/tls"
	"mercator-hq/relay/pkg/session/redisstore"
	"mercator-hq/relay/pkg/telemetry/health"
	"mercator-hq/relay/pkg/telemetry/tracing"
	"mercator-hq/relay/pkg/usage/storage"
)

const (
	checkOK   = "ok"
	checkWarn = "warn"
	checkFail = "fail"
)

var validateFlags struct {
	checkDeps bool
	timeout   time.Duration
	format    string
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration",
	Long: `Validate the configuration file and the environment it needs.

The validate command loads the configuration with its .env file and
environment overrides, runs the startup checks, and inspects the TLS
certificate when TLS is enabled. With --check-deps it also connects to the
origin, the durable store and the usage database.

Examples:
  # Validate the default config file
  relay validate

  # Also check that dependencies are reachable
  relay validate --config /etc/relay/config.yaml --check-deps

  # Machine-readable output
  relay validate --format json`,
	RunE: validateConfig,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().BoolVar(&validateFlags.checkDeps, "check-deps", false, "connect to the origin, Redis and the usage database")
	validateCmd.Flags().DurationVar(&validateFlags.timeout, "timeout", 5*time.Second, "timeout for each dependency check")
	validateCmd.Flags().StringVar(&validateFlags.format, "format", "text", "output format: text, json, csv")
}

type checkResults struct {
	table  cli.Table
	failed int
}

func (c *checkResults) add(name, status, detail string) {
	if status == checkFail {
		c.failed++
	}
	c.table.AddRow(name, status, detail)
}

func (c *checkResults) addErr(name string, err error, okDetail string) {
	if err != nil {
		c.add(name, checkFail, err.Error())
		return
	}
	c.add(name, checkOK, okDetail)
}

func validateConfig(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(validateFlags.format)
	if err != nil {
		return err
	}

	results := &checkResults{table: cli.Table{Headers: []string{"check", "status", "detail"}}}

	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		results.add("config", checkFail, err.Error())
		if ferr := cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), &results.table); ferr != nil {
			return ferr
		}
		return cli.NewConfigError("", fmt.Sprintf("failed to load config: %v", err))
	}
	results.add("config", checkOK, cfgFile)
	results.addErr("startup", config.StartupChecks(cfg), "directories writable, cookie secret set")

	if cfg.Security.TLS.Enabled {
		status, detail := checkCertificate(cfg.Security.TLS, time.Now())
		results.add("tls", status, detail)
	}

	if tc := cfg.Telemetry.Tracing; tc.Enabled {
		results.addErr("tracing", tracing.ValidateSampler(tc.Sampler, tc.SampleRatio), tc.Sampler+" sampler, exporting to "+tc.Endpoint)
	}

	if validateFlags.checkDeps {
		checkDependencies(cmd.Context(), cfg, results)
	}

	if err := cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), &results.table); err != nil {
		return err
	}
	if results.failed > 0 {
		return cli.NewCommandError("validate", fmt.Errorf("%d check(s) failed", results.failed))
	}
	return nil
}

// checkCertificate loads the listener certificate and reports its subject
// and remaining lifetime.
func checkCertificate(cfg config.TLSConfig, now time.Time) (status, detail string) {
	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return checkFail, fmt.Sprintf("load key pair: %v", err)
	}
	info, err := relaytls.ExtractCertificateInfo(&cert)
	if err != nil {
		return checkFail, err.Error()
	}
	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return checkFail, err.Error()
	}
	if err := relaytls.ValidateX509Certificate(leaf, now); err != nil {
		return checkFail, err.Error()
	}

	subject := info.Subject
	if len(info.DNSNames) > 0 {
		subject = strings.Join(info.DNSNames, ",")
	}
	days, warning := relaytls.CheckCertificateExpiration(leaf, now)
	if warning != "" {
		return checkWarn, fmt.Sprintf("%s: %s", subject, warning)
	}
	return checkOK, fmt.Sprintf("%s, expires %s (%d days)", subject, info.NotAfter.Format("2006-01-02"), days)
}

func checkDependencies(ctx context.Context, cfg *config.Config, results *checkResults) {
	timeout := validateFlags.timeout

	upstreamCtx, cancel := context.WithTimeout(ctx, timeout)
	err := health.UpstreamCheck(&http.Client{Timeout: timeout}, cfg.Proxy.Upstream)(upstreamCtx)
	cancel()
	results.addErr("upstream", err, cfg.Proxy.Upstream)

	if cfg.Durable.RedisURL != "" {
		redisCtx, cancel := context.WithTimeout(ctx, timeout)
		client, err := redisstore.Dial(redisCtx, cfg.Durable.RedisURL)
		cancel()
		if err == nil {
			_ = client.Close()
		}
		results.addErr("redis", err, "reachable")
	}

	if cfg.Usage.Enabled {
		results.addErr("usage_db", pingUsage(ctx, cfg, timeout), cfg.Usage.Backend+" "+cfg.Usage.Path)
	}
}

func pingUsage(ctx context.Context, cfg *config.Config, timeout time.Duration) error {
	st, err := storage.Open(cfg.Usage.Backend, cfg.Usage.Path)
	if err != nil {
		return err
	}
	defer st.Close()

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return usagePing(st)(pingCtx)
}
