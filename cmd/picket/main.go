// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Picket is a self-hosted service monitor: it schedules probes against
// configured services and dispatches notifications on state changes.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/DataDog/picket/pkg/site"
	"github.com/DataDog/picket/pkg/util/log"
	"github.com/DataDog/picket/pkg/web"
)

var (
	configPath string
	initSite   bool
	webUI      bool
	logLevel   string
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "picket",
		Short:        "Self-hosted service monitor",
		SilenceUsage: true,
		RunE:         run,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.json", "site configuration file")
	rootCmd.PersistentFlags().BoolVar(&initSite, "init", false, "create a new site configuration and exit")
	rootCmd.PersistentFlags().BoolVar(&webUI, "webui", true, "serve the web interface")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(-1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	defer log.Flush()
	log.Setup(logLevel)
	if initSite {
		return site.Init(configPath, os.Stdin, os.Stdout)
	}

	st, err := site.Load(configPath)
	if err != nil {
		log.Errorf("%v", err) //nolint:errcheck
		log.Flush()
		os.Exit(-1)
	}

	var srv *web.Server
	if webUI {
		srv, err = web.New(st)
		if err != nil {
			log.Warnf("Web interface disabled: %v", err) //nolint:errcheck
			srv = nil
		} else {
			go func() {
				if err := srv.Run(); err != nil && err != http.ErrServerClosed {
					log.Errorf("Web interface: %v", err) //nolint:errcheck
				}
			}()
		}
	}

	st.Start()
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGTERM, os.Interrupt)
	got := <-sig
	log.Infof("Received %s, shutting down", got)

	if srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := srv.Shutdown(ctx); err != nil {
			log.Warnf("Web interface shutdown: %v", err) //nolint:errcheck
		}
		cancel()
	}
	st.Stop()
	if err := st.SaveConfig(); err != nil {
		log.Errorf("Config not saved on exit: %v", err) //nolint:errcheck
		return err
	}
	return nil
}
