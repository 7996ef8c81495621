package main

import (
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/flowmill/flowmill/agent"
	"github.com/flowmill/flowmill/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type cli struct {
	cfg config.Config
}

func setupFlags(cmd *cobra.Command) error {
	cmd.Flags().String("config-file", "", "Path to config file.")
	cmd.Flags().String("redis-addr", "localhost:6379", "comma separated list of redis host:port")
	cmd.Flags().String("namespace", "flowmill", "namespace used in storage")
	cmd.Flags().String("storage-impl", "redis", "implementation of underline storage (redis|memory)")
	cmd.Flags().Int("http-port", 8080, "http port for rest endpoints")
	cmd.Flags().String("executor-endpoint", "http://localhost:8090/execute", "url of the external action executor")
	cmd.Flags().Duration("definition-cache-ttl", config.DefaultDefinitionCacheTTL, "ttl of cached workflow definitions")
	cmd.Flags().Duration("plan-cache-ttl", config.DefaultPlanCacheTTL, "ttl of cached execution plans")
	cmd.Flags().Int("fallback-cache-capacity", 1024, "capacity of the in-memory fallback cache")
	cmd.Flags().Duration("wait-timeout", config.DefaultWaitTimeout, "max age of a wait token before the node fails")
	cmd.Flags().Duration("sweep-interval", config.DefaultSweepInterval, "interval of the wait token sweep")
	cmd.Flags().Int("max-dispatch-attempts", 3, "max scheduling attempts per node")
	cmd.Flags().Duration("retry-backoff-base", config.DefaultRetryBackoffBase, "base delay of dispatch retry backoff")
	cmd.Flags().Duration("retry-backoff-cap", config.DefaultRetryBackoffCap, "max delay of dispatch retry backoff")
	cmd.Flags().Int("worker-count", 8, "number of dispatch workers")
	cmd.Flags().Int("worker-capacity", 512, "dispatch queue capacity")
	return viper.BindPFlags(cmd.Flags())
}

func (c *cli) setupConfig(cmd *cobra.Command, args []string) error {
	configFile, err := cmd.Flags().GetString("config-file")
	if err != nil {
		return err
	}
	viper.SetConfigFile(configFile)

	if err = viper.ReadInConfig(); err != nil {
		// it's ok if config file doesn't exist
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
	}

	c.cfg.RedisConfig.Addrs = strings.Split(viper.GetString("redis-addr"), ",")
	c.cfg.RedisConfig.Namespace = viper.GetString("namespace")
	c.cfg.StorageType = config.StorageType(viper.GetString("storage-impl"))
	c.cfg.HttpPort = viper.GetInt("http-port")
	c.cfg.ExecutorEndpoint = viper.GetString("executor-endpoint")
	c.cfg.DefinitionCacheTTL = viper.GetDuration("definition-cache-ttl")
	c.cfg.PlanCacheTTL = viper.GetDuration("plan-cache-ttl")
	c.cfg.FallbackCacheCapacity = viper.GetInt("fallback-cache-capacity")
	c.cfg.WaitTimeout = viper.GetDuration("wait-timeout")
	c.cfg.SweepInterval = viper.GetDuration("sweep-interval")
	c.cfg.MaxDispatchAttempts = viper.GetInt("max-dispatch-attempts")
	c.cfg.RetryBackoffBase = viper.GetDuration("retry-backoff-base")
	c.cfg.RetryBackoffCap = viper.GetDuration("retry-backoff-cap")
	c.cfg.WorkerCount = viper.GetInt("worker-count")
	c.cfg.WorkerCapacity = viper.GetInt("worker-capacity")
	return nil
}

func (c *cli) run(cmd *cobra.Command, args []string) error {
	a, err := agent.New(c.cfg)
	if err != nil {
		panic(err)
	}
	if err := a.Start(); err != nil {
		panic(err)
	}
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	return a.Shutdown()
}

func main() {
	c := &cli{}

	cmd := &cobra.Command{
		Use:     "flowmill",
		PreRunE: c.setupConfig,
		RunE:    c.run,
	}

	if err := setupFlags(cmd); err != nil {
		log.Fatal(err)
	}

	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
