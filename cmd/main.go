package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/marwenkh02/secrets-management-app/pkg/config"
	"github.com/marwenkh02/secrets-management-app/pkg/lease"
	"github.com/marwenkh02/secrets-management-app/pkg/metrics"
	"github.com/marwenkh02/secrets-management-app/pkg/postgres"
	"github.com/marwenkh02/secrets-management-app/pkg/server"
	"github.com/marwenkh02/secrets-management-app/pkg/vault"
)

var (
	listenAddr = kingpin.Flag("listen", "Address to serve the API on").Default(":8000").Envar("LISTEN_ADDR").String()
	configFile = kingpin.Flag("config", "Path to config file").Envar("CONFIG_FILE").ExistingFile()

	vaultAddr  = kingpin.Flag("vault-addr", "Vault address, e.g. http://vault:8200").Default("http://vault:8200").Envar("VAULT_ADDR").String()
	vaultToken = kingpin.Flag("vault-token", "Vault token").Envar("VAULT_TOKEN").String()
	caCert     = kingpin.Flag("ca-cert", "Path to CA certificate to validate Vault server").Envar("VAULT_CACERT").String()

	authMethod          = kingpin.Flag("auth-method", "Vault authentication method").Default("token").Enum("token", "kubernetes")
	loginPath           = kingpin.Flag("login-path", "Vault path to authenticate against").Default("kubernetes/login").String()
	authRole            = kingpin.Flag("auth-role", "Kubernetes authentication role").String()
	serviceAccountToken = kingpin.Flag("token-file", "Service account token path").Default("/var/run/secrets/kubernetes.io/serviceaccount/token").String()

	connectTimeout = kingpin.Flag("connect-timeout", "How long to keep retrying the initial Vault connection").Default("2m").Duration()
	jsonOutput     = kingpin.Flag("json-log", "Output log in JSON format").Default("false").Bool()
)

var (
	SHA = ""
)

func main() {
	kingpin.Parse()

	if *jsonOutput {
		log.SetFormatter(&log.JSONFormatter{})
	}

	logger := log.WithFields(log.Fields{"gitSHA": SHA})
	logger.Infof("started application")

	cfg := config.Default()
	if *configFile != "" {
		var err error
		cfg, err = config.FromFile(*configFile)
		if err != nil {
			log.Fatal("error loading config: ", err)
		}
	}

	vaultConfig := &vault.Config{
		Addr: *vaultAddr,
		TLS:  &vault.TLSConfig{CACert: *caCert},
	}

	var factory vault.ClientFactory
	switch *authMethod {
	case "kubernetes":
		factory = vault.NewKubernetesClientFactory(vaultConfig, &vault.KubernetesAuthConfig{
			TokenFile: *serviceAccountToken,
			LoginPath: *loginPath,
			Role:      *authRole,
		})
	default:
		factory = vault.NewTokenClientFactory(vaultConfig, *vaultToken)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client, err := vault.Connect(ctx, factory, *connectTimeout)
	if err != nil {
		log.Fatal("error connecting to vault: ", err)
	}

	staticStore := vault.NewStaticStore(client, cfg.KVMount)
	if _, err := staticStore.Read(ctx, "db"); err != nil {
		log.Warnf("KV access test failed: %s", err)
	}

	provider := vault.NewDynamicProvider(client, cfg.DatabaseEngine)
	resolver := lease.NewResolver(lease.NewStore(), provider, lease.SystemClock)

	checker := postgres.NewChecker(postgres.Config{
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
	})

	status := vault.NewStatus(client, cfg.DatabaseEngine)
	m := metrics.New()
	api := server.New(cfg, resolver, staticStore, status, checker, m)

	srv := &http.Server{
		Addr:    *listenAddr,
		Handler: api.Handler(),
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Infof("listening on %s", *listenAddr)
		errChan <- srv.ListenAndServe()
	}()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		log.Fatal("server error: ", err)
	case sig := <-c:
		logger.Infof("received %s, shutting down", sig)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("error draining connections: %s", err)
	}
	cancel()
}
