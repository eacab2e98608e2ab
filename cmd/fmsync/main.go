package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/fmsync/fmsync/internal/config"
	_ "github.com/fmsync/fmsync/internal/connector/filemaker"
	"github.com/fmsync/fmsync/internal/endpoint"
	"github.com/fmsync/fmsync/internal/sink"
	"github.com/fmsync/fmsync/internal/state"
	fmsync "github.com/fmsync/fmsync/internal/sync"
	"github.com/fmsync/fmsync/pkg/logger"
)

func main() {
	configPath := flag.String("config", "config.json", "path to the run configuration document")
	printResult := flag.Bool("print-result", true, "print the run result as JSON on stdout")
	flag.Parse()

	_ = godotenv.Load()

	log, err := logger.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init: %v\n", err)
		os.Exit(2)
	}
	defer log.Sync()

	if err := run(*configPath, *printResult, log); err != nil {
		log.Error("exiting with failure", zap.Error(err))
		os.Exit(1)
	}
}

func run(configPath string, printResult bool, log *zap.Logger) error {
	rt := config.LoadRuntimeConfig()
	if err := rt.Validate(); err != nil {
		return err
	}
	if !rt.SSLVerify {
		log.Warn("TLS certificate verification is disabled")
	}

	queryConfig, err := config.ParseFile(configPath)
	if err != nil {
		return err
	}
	log.Info("loaded run configuration", zap.String("target", queryConfig.String()))

	source, err := endpoint.DefaultRegistry().CreateSource("http.filemaker", map[string]any{
		"baseUrl":    rt.BaseURL,
		"username":   rt.Username,
		"password":   rt.Password,
		"apiVersion": rt.APIVersion,
		"sslVerify":  rt.SSLVerify,
	})
	if err != nil {
		return err
	}
	defer source.Close()

	store, err := openStateStore(rt)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if rt.RunTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, time.Duration(rt.RunTimeout)*time.Second)
		defer cancel()
	}

	out, err := openSink(ctx, rt)
	if err != nil {
		return err
	}
	defer out.Close()

	orchestrator := fmsync.NewOrchestrator(source, store, out, log)
	result := orchestrator.Run(ctx, queryConfig)

	if printResult {
		doc, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(doc))
	}

	if result.Status != fmsync.StatusDone {
		return fmt.Errorf("run %s failed: %s", result.RunID, result.Failure.Message)
	}
	return nil
}

func openStateStore(rt *config.RuntimeConfig) (state.Store, error) {
	if rt.StateDSN != "" {
		return state.NewPostgresStore(rt.StateDSN)
	}
	return state.NewFileStore(rt.StatePath)
}

func openSink(ctx context.Context, rt *config.RuntimeConfig) (sink.Sink, error) {
	switch rt.SinkKind {
	case "postgres":
		return sink.NewPostgresSink(rt.SinkDSN)
	case "object":
		return sink.NewObjectSink(ctx, &sink.ObjectSinkConfig{
			EndpointURL:     rt.ObjectEndpoint,
			AccessKeyID:     rt.ObjectAccessKey,
			SecretAccessKey: rt.ObjectSecretKey,
			Bucket:          rt.ObjectBucket,
			Prefix:          rt.ObjectPrefix,
			UseSSL:          rt.ObjectUseSSL,
		})
	default:
		return sink.NewCSVSink(rt.OutputDir)
	}
}
