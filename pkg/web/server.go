// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package web serves the authenticated JSON interface over TLS.
package web

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	jsoniter "github.com/json-iterator/go"

	"github.com/DataDog/picket/pkg/check"
	"github.com/DataDog/picket/pkg/site"
	"github.com/DataDog/picket/pkg/util/log"
	"github.com/DataDog/picket/pkg/util/passwd"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Server is the TLS JSON interface over one loaded site.
type Server struct {
	site      *site.Site
	cfg       *site.WebConfig
	decoyHash string
	srv       *http.Server
}

// New builds a server for the site's web configuration. Returns an
// error when the site has no web section or no TLS material.
func New(s *site.Site) (*Server, error) {
	cfg := s.Web()
	if cfg == nil {
		return nil, fmt.Errorf("site has no web configuration")
	}
	if cfg.Cert == "" || cfg.Key == "" {
		return nil, fmt.Errorf("web configuration is missing certificate or key")
	}

	// unknown users verify against a decoy so the response time does
	// not reveal whether the username exists
	decoy := cfg.Users[""]
	if decoy == "" {
		pw, err := passwd.RandPass()
		if err != nil {
			return nil, err
		}
		if decoy, err = passwd.CreateHash(pw); err != nil {
			return nil, err
		}
	}

	srv := &Server{site: s, cfg: cfg, decoyHash: decoy}
	r := mux.NewRouter()
	r.HandleFunc("/status", srv.getStatus).Methods(http.MethodGet)
	r.HandleFunc("/log", srv.getLog).Methods(http.MethodGet)
	r.HandleFunc("/checks/{name}/run", srv.runCheck).Methods(http.MethodPost)
	r.HandleFunc("/checks/{name}", srv.putCheck).Methods(http.MethodPut)
	r.HandleFunc("/checks/{name}", srv.deleteCheck).Methods(http.MethodDelete)
	r.HandleFunc("/update", srv.remoteUpdate).Methods(http.MethodPost)
	r.HandleFunc("/actions/test", srv.testActions).Methods(http.MethodPost)
	r.Use(srv.authenticate)

	srv.srv = &http.Server{
		Addr:         net.JoinHostPort(cfg.Hostname, strconv.Itoa(cfg.Port)),
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return srv, nil
}

// Run serves until Shutdown; it returns http.ErrServerClosed on a
// clean shutdown like the underlying listener.
func (s *Server) Run() error {
	log.Infof("Web interface listening on https://%s/", s.srv.Addr)
	return s.srv.ListenAndServeTLS(s.cfg.Cert, s.cfg.Key)
}

// Shutdown stops the listener and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// authenticate enforces basic auth against the configured argon2id
// user hashes.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok {
			s.deny(w)
			return
		}
		hash, known := s.cfg.Users[user]
		if !known || user == "" {
			hash = s.decoyHash
			known = false
		}
		if !passwd.Verify(pass, hash) || !known {
			log.Warnf("Rejected login for user %q from %s", user, r.RemoteAddr) //nolint:errcheck
			s.deny(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) deny(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Basic realm="picket"`)
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debugf("Response write failed: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.site.GetStatus())
}

func (s *Server) getLog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"log": s.site.Log()})
}

func (s *Server) runCheck(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	fs, err := s.site.RunCheck(name)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"name":      name,
		"failState": fs,
	})
}

func (s *Server) putCheck(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	var config map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&config); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decoding check: %w", err))
		return
	}
	newName, _ := config["name"].(string)
	if err := s.site.UpdateCheck(name, newName, config); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.site.SaveConfig(); err != nil {
		log.Errorf("Config not saved: %v", err) //nolint:errcheck
	}
	writeJSON(w, http.StatusOK, map[string]string{"name": name})
}

func (s *Server) deleteCheck(w http.ResponseWriter, r *http.Request) {
	s.site.DeleteCheck(mux.Vars(r)["name"])
	if err := s.site.SaveConfig(); err != nil {
		log.Errorf("Config not saved: %v", err) //nolint:errcheck
	}
	w.WriteHeader(http.StatusNoContent)
}

// remoteUpdate accepts a pushed check report in msgObj shape:
// {"name": ..., "type": ..., "data": {...}}.
func (s *Server) remoteUpdate(w http.ResponseWriter, r *http.Request) {
	var msg struct {
		Name string                 `json:"name"`
		Type string                 `json:"type"`
		Data map[string]interface{} `json:"data"`
	}
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decoding update: %w", err))
		return
	}
	c := s.site.GetCheck(msg.Name)
	if c == nil {
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown check %s", msg.Name))
		return
	}
	c.RemoteUpdate(msg.Type, check.DataFromConfig(msg.Data))
	writeJSON(w, http.StatusOK, map[string]string{"name": msg.Name})
}

func (s *Server) testActions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": s.site.TestActions()})
}
