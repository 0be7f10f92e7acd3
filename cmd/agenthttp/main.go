package main

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/crgimenes/goconfig"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/decisionhub/agent/libagent"
)

// Config this struct is using the goconfig library for simple flag and env var
// parsing. See: https://github.com/crgimenes/goconfig
type Config struct {
	HTTPListenAddr     string `cfgDefault:"0.0.0.0:8080" cfg:"HTTP_LISTEN_ADDR"`
	LogLevel           string `cfgDefault:"info" cfg:"LOG_LEVEL" cfgHelper:"Log levels: debug, info, warning, error, fatal, panic"`
	ProviderType       string `cfgDefault:"Zip" cfg:"PROVIDER_TYPE" cfgHelper:"Source backend: Zip, Filesystem, S3, AzureStorage, GCS"`
	RootDir            string `cfgDefault:"data" cfg:"ROOT_DIR" cfgHelper:"Directory scanned by the Zip and Filesystem backends"`
	Bucket             string `cfg:"BUCKET" cfgHelper:"Bucket name for the S3 and GCS backends"`
	KeyPrefix          string `cfg:"KEY_PREFIX" cfgHelper:"Key prefix restricting the remote listing"`
	Endpoint           string `cfg:"ENDPOINT" cfgHelper:"Endpoint override for S3-compatible stores"`
	ForcePathStyle     bool   `cfgDefault:"false" cfg:"FORCE_PATH_STYLE" cfgHelper:"Address the S3 bucket in the path instead of the host"`
	ConnectionString   string `cfg:"CONNECTION_STRING" cfgHelper:"Azure storage connection string"`
	Container          string `cfg:"CONTAINER" cfgHelper:"Azure blob container name"`
	GCSCredentials     string `cfg:"GOOGLE_CLOUD_CREDENTIALS" cfgHelper:"Base64-encoded GCS service-account JSON"`
	PollIntervalMS     int    `cfgDefault:"5000" cfg:"POLL_INTERVAL" cfgHelper:"Refresh interval in milliseconds"`
	ReleaseZipPassword string `cfg:"RELEASE_ZIP_PASSWORD" cfgHelper:"Password for encrypted bundle entries"`
	CORSPermissive     bool   `cfgDefault:"false" cfg:"CORS_PERMISSIVE" cfgHelper:"Allow any origin"`
	OtelEnabled        bool   `cfgDefault:"false" cfg:"OTEL_ENABLED" cfgHelper:"Install the W3C trace-context propagator"`
	SSLCert            string `cfg:"SSL_CERT" cfgHelper:"Base64-encoded PEM certificate chain"`
	SSLKey             string `cfg:"SSL_KEY" cfgHelper:"Base64-encoded PEM private key"`
}

func main() {
	ctx := context.Background()
	// parse our config
	conf := Config{}
	err := goconfig.Parse(&conf)
	if err != nil {
		log.Fatal().Msgf("failed to parse config: %v", err)
	}

	// setup pretty logging
	zerolog.SetGlobalLevel(logLevel(conf))
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	ctx = log.Logger.WithContext(ctx)

	if conf.OtelEnabled {
		otel.SetTextMapPropagator(propagation.TraceContext{})
	}

	a, err := libagent.New(ctx, confToOptions(conf))
	if err != nil {
		log.Fatal().Msgf("failed to create agent: %v", err)
	}

	var h http.Handler = libagent.NewHTTP(a)
	if conf.CORSPermissive {
		h = permissiveCORS(h)
	}
	srv := &http.Server{
		Addr:        conf.HTTPListenAddr,
		Handler:     h,
		BaseContext: func(_ net.Listener) context.Context { return ctx },
	}

	log.Printf("starting http server on %v", conf.HTTPListenAddr)
	if conf.SSLCert != "" && conf.SSLKey != "" {
		cert, err := decodeKeyPair(conf.SSLCert, conf.SSLKey)
		if err != nil {
			log.Fatal().Msgf("failed to load TLS key pair: %v", err)
		}
		srv.TLSConfig = &tls.Config{Certificates: []tls.Certificate{cert}}
		err = srv.ListenAndServeTLS("", "")
		if err != nil {
			log.Fatal().Msgf("failed to start https server: %v", err)
		}
		return
	}
	err = srv.ListenAndServe()
	if err != nil {
		log.Fatal().Msgf("failed to start http server: %v", err)
	}
}

func logLevel(conf Config) zerolog.Level {
	level := strings.ToLower(conf.LogLevel)
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "panic":
		return zerolog.PanicLevel
	default:
		return zerolog.InfoLevel
	}
}

func confToOptions(conf Config) libagent.Options {
	return libagent.Options{
		Provider: libagent.ProviderConfig{
			Kind:              conf.ProviderType,
			RootDir:           conf.RootDir,
			Bucket:            conf.Bucket,
			Prefix:            conf.KeyPrefix,
			Endpoint:          conf.Endpoint,
			ForcePathStyle:    conf.ForcePathStyle,
			ConnectionString:  conf.ConnectionString,
			Container:         conf.Container,
			Base64Credentials: conf.GCSCredentials,
		},
		PollInterval:       time.Duration(conf.PollIntervalMS) * time.Millisecond,
		ReleaseZipPassword: conf.ReleaseZipPassword,
	}
}

func decodeKeyPair(cert, key string) (tls.Certificate, error) {
	c, err := base64.StdEncoding.DecodeString(cert)
	if err != nil {
		return tls.Certificate{}, err
	}
	k, err := base64.StdEncoding.DecodeString(key)
	if err != nil {
		return tls.Certificate{}, err
	}
	return tls.X509KeyPair(c, k)
}

func permissiveCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Access-Token")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
