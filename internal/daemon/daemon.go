package daemon

import (
	"crypto/tls"
	"database/sql"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/agor-live/agor/internal/credentials"
	"github.com/agor-live/agor/internal/definitions"
	"github.com/agor-live/agor/internal/sessiontoken"
	"github.com/agor-live/agor/internal/worktree"
	"github.com/tdeslauriers/carapace/pkg/config"
	"github.com/tdeslauriers/carapace/pkg/connect"
	"github.com/tdeslauriers/carapace/pkg/data"
	"github.com/tdeslauriers/carapace/pkg/diagnostics"
	"github.com/tdeslauriers/carapace/pkg/jwt"
	"github.com/tdeslauriers/carapace/pkg/sign"
)

// EnvSessionTokenSecret holds the base64 encoded symmetric secret shared with
// the general authentication layer for signing session capability tokens.
const EnvSessionTokenSecret = "AGOR_SESSION_TOKEN_SECRET"

// Daemon is the access-and-identity control surface of the orchestration
// daemon: worktree group provisioning, session capability tokens, and MCP
// credential disconnection.
type Daemon interface {
	Run() error
	CloseDb() error
}

func New(config config.Config) (Daemon, error) {

	// pki for the daemon's mTLS server
	serverPki := &connect.Pki{
		CertFile: *config.Certs.ServerCert,
		KeyFile:  *config.Certs.ServerKey,
		CaFiles:  []string{*config.Certs.ServerCa},
	}

	serverTlsConfig, err := connect.NewTlsServerConfig(config.Tls, serverPki).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to configure daemon server mtls: %v", err)
	}

	// db client
	dbClientPki := &connect.Pki{
		CertFile: *config.Certs.DbClientCert,
		KeyFile:  *config.Certs.DbClientKey,
		CaFiles:  []string{*config.Certs.DbCaCert},
	}

	dbClientTlsConfig, err := connect.NewTlsClientConfig(dbClientPki).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to configure db client tls: %v", err)
	}

	// db connection config
	dbUrl := data.DbUrl{
		Name:     config.Database.Name,
		Addr:     config.Database.Url,
		Username: config.Database.Username,
		Password: config.Database.Password,
	}

	// database
	db, err := data.NewSqlDbConnector(dbUrl, dbClientTlsConfig).Connect()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %v", err)
	}

	// for blind index generation and lookups on user identity columns
	dbHmacSecret, err := base64.StdEncoding.DecodeString(config.Database.IndexSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to decode hmac key: %v", err)
	}

	dbIndexer := data.NewIndexer(dbHmacSecret)

	// field level encryption for oauth auth bags at rest
	aes, err := base64.StdEncoding.DecodeString(config.Database.FieldSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to decode field level encryption key: %v", err)
	}

	cryptor := data.NewServiceAesGcmKey(aes)

	// jwt verifiers for inbound service and user tokens
	s2sPublicKey, err := sign.ParsePublicEcdsaCert(config.Jwt.S2sVerifyingKey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse s2s verifying public key: %v", err)
	}

	iamPublicKey, err := sign.ParsePublicEcdsaCert(config.Jwt.UserVerifyingKey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse iam verifying public key: %v", err)
	}

	// session capability token signing secret, shared with the general
	// authentication layer so issued artifacts verify without the registry
	envSessionSecret, ok := os.LookupEnv(EnvSessionTokenSecret)
	if !ok {
		return nil, fmt.Errorf("%s environment variable is not set", EnvSessionTokenSecret)
	}
	sessionSecret, err := base64.StdEncoding.DecodeString(envSessionSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to decode session token secret: %v", err)
	}

	tokenService := sessiontoken.NewService(sessionSecret)

	// daemon-tier credential cache plus the core-library cache it fronts
	daemonCache := credentials.NewOriginCache()
	coreCache := credentials.NewOriginCache()

	credentialsRepo := credentials.NewCredentialsRepository(db, dbIndexer, cryptor)

	return &daemon{
		config:            config,
		serverTls:         serverTlsConfig,
		repository:        db,
		s2sVerifier:       jwt.NewVerifier(config.ServiceName, s2sPublicKey),
		iamVerifier:       jwt.NewVerifier(config.ServiceName, iamPublicKey),
		groupService:      worktree.NewGroupService(),
		tokenService:      tokenService,
		sweeper:           sessiontoken.NewSweeper(tokenService, sessiontoken.DefaultSweepInterval),
		disconnectService: credentials.NewDisconnectService(credentialsRepo, daemonCache, coreCache.Clear),

		logger: slog.Default().
			With(slog.String(definitions.ServiceKey, definitions.ServiceName)).
			With(slog.String(definitions.ComponentKey, definitions.ComponentDaemon)),
	}, nil
}

var _ Daemon = (*daemon)(nil)

type daemon struct {
	config            config.Config
	serverTls         *tls.Config
	repository        *sql.DB
	s2sVerifier       jwt.Verifier
	iamVerifier       jwt.Verifier
	groupService      worktree.GroupService
	tokenService      sessiontoken.Service
	sweeper           *sessiontoken.Sweeper
	disconnectService credentials.DisconnectService

	logger *slog.Logger
}

func (d *daemon) CloseDb() error {
	if err := d.repository.Close(); err != nil {
		return err
	}
	return nil
}

func (d *daemon) Run() error {

	mux := http.NewServeMux()
	mux.HandleFunc("/health", diagnostics.HealthCheckHandler)

	// worktree group provisioning/teardown command plans
	worktreeHandler := worktree.NewHandler(d.groupService, d.s2sVerifier, d.iamVerifier)
	mux.HandleFunc("/worktrees/groups", worktreeHandler.HandleGroups)

	// executor session capability tokens
	tokenHandler := sessiontoken.NewHandler(d.tokenService, d.s2sVerifier)
	mux.HandleFunc("/sessions/tokens", tokenHandler.HandleIssue)
	mux.HandleFunc("/sessions/tokens/introspect", tokenHandler.HandleIntrospect)
	mux.HandleFunc("/sessions/tokens/revoke", tokenHandler.HandleRevoke)

	// mcp credential disconnection
	credentialsHandler := credentials.NewHandler(d.disconnectService, d.s2sVerifier, d.iamVerifier)
	mux.HandleFunc("/mcp/credentials/disconnect", credentialsHandler.HandleDisconnect)

	server := &connect.TlsServer{
		Addr:      d.config.ServicePort,
		Mux:       mux,
		TlsConfig: d.serverTls,
	}

	go func() {

		d.logger.Info(fmt.Sprintf("starting %s access control daemon on %s...", d.config.ServiceName, server.Addr[1:]))
		if err := server.Initialize(); err != http.ErrServerClosed {
			d.logger.Error(fmt.Sprintf("failed to start %s access control daemon: %v", d.config.ServiceName, err.Error()))
		}
	}()

	// hourly expired-token sweep; validation stays correct without it
	d.sweeper.Start()

	return nil
}
