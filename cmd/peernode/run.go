package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/opd-ai/peernode/config"
	"github.com/opd-ai/peernode/controlplane"
	"github.com/opd-ai/peernode/crypto"
	"github.com/opd-ai/peernode/delivery"
	"github.com/opd-ai/peernode/directory"
	"github.com/opd-ai/peernode/eventbus"
	"github.com/opd-ai/peernode/scheduler"
	"github.com/opd-ai/peernode/store"
	"github.com/opd-ai/peernode/transport"
)

func runCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "start the node and block until terminated",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNode(configPath)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "./config.json", "path to the node's JSON config file")
	return cmd
}

func runNode(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if level, parseErr := logrus.ParseLevel(cfg.LogLevel); parseErr == nil {
		logrus.SetLevel(level)
	}

	identity, err := crypto.LoadOrCreateIdentity(cfg.KeysPath, cfg.Username)
	if err != nil {
		return fmt.Errorf("load or create identity: %w", err)
	}

	st, err := store.Open(cfg.StorePath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	dirClient := directory.NewClient(cfg.DirectoryURL, cfg.DirectoryAPIKey)

	bus := eventbus.New()
	pipeline := delivery.NewWithDefaultTransport(identity, st, dirClient, bus, cfg.PeerPort)

	peerServer, err := transport.Listen(cfg.PeerPort, func(payload []byte, remoteAddr string) {
		if recvErr := pipeline.Receive(payload, delivery.SourceDirect); recvErr != nil {
			logrus.WithFields(logrus.Fields{
				"function":    "runNode",
				"remote_addr": remoteAddr,
				"error":       recvErr.Error(),
			}).Warn("failed to process inbound envelope")
		}
	})
	if err != nil {
		return fmt.Errorf("listen on peer port: %w", err)
	}
	defer peerServer.Close()

	controlServer := controlplane.NewServer(identity, st, pipeline, dirClient, cfg.PeerPort)

	apiHTTP := &http.Server{
		Addr:    net.JoinHostPort("127.0.0.1", fmt.Sprintf("%d", cfg.APIPort)),
		Handler: controlServer.Router(),
	}
	bus.SetHandler(clientEventLogger{})
	eventsHTTP := &http.Server{
		Addr:    net.JoinHostPort("127.0.0.1", fmt.Sprintf("%d", cfg.EventsPort)),
		Handler: bus.Handler(),
	}

	go func() {
		if serveErr := apiHTTP.ListenAndServe(); serveErr != nil && serveErr != http.ErrServerClosed {
			logrus.WithFields(logrus.Fields{
				"function": "runNode",
				"error":    serveErr.Error(),
			}).Fatal("control plane server failed")
		}
	}()
	go func() {
		if serveErr := eventsHTTP.ListenAndServe(); serveErr != nil && serveErr != http.ErrServerClosed {
			logrus.WithFields(logrus.Fields{
				"function": "runNode",
				"error":    serveErr.Error(),
			}).Fatal("event bus server failed")
		}
	}()

	selfAddr := fmt.Sprintf(":%d", cfg.PeerPort)
	registerCtx, registerCancel := context.WithTimeout(context.Background(), directory.RequestTimeout)
	regErr := dirClient.Register(registerCtx, directory.Record{
		Username:            identity.Username,
		NodeID:              identity.NodeID,
		EncryptionPublicKey: crypto.EncodeB64(identity.EncKeyPair.Public[:]),
		SigningPublicKey:    crypto.EncodeB64(identity.SignKeyPair.Public[:]),
		LastIP:              selfAddr,
		LastSeen:            time.Now(),
	})
	registerCancel()
	controlServer.SetDirectoryConnected(regErr == nil)
	if regErr != nil {
		logrus.WithFields(logrus.Fields{
			"function": "runNode",
			"error":    regErr.Error(),
		}).Warn("initial directory registration failed, will retry via heartbeat")
	}

	sched := scheduler.New(identity, st, dirClient, pipeline, bus, controlServer, selfAddr)
	sched.Start()

	logrus.WithFields(logrus.Fields{
		"function":  "runNode",
		"username":  identity.Username,
		"peer_port": cfg.PeerPort,
		"api_port":  cfg.APIPort,
	}).Info("peernode started")

	waitForShutdownSignal()

	// Stop accepting new control-plane requests, event subscribers and
	// peer connections before the scheduler's Stop flushes the store and
	// wipes the identity's secret keys: an in-flight envelope must never
	// race against zeroed key material.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), scheduler.GracePeriod)
	defer shutdownCancel()
	_ = apiHTTP.Shutdown(shutdownCtx)
	_ = eventsHTTP.Shutdown(shutdownCtx)
	_ = peerServer.Close()

	sched.Stop()

	logrus.WithFields(logrus.Fields{
		"function": "runNode",
	}).Info("peernode stopped")
	return nil
}

func waitForShutdownSignal() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
}
